package elasticsearch

// DefaultIndexName is the default Elasticsearch index used for product documents.
const DefaultIndexName = "products"

// buildIndexMapping returns the JSON mapping for the products index with an
// edge n-gram subfield on name for autocomplete.
func buildIndexMapping() string {
	return `{
  "settings": {
    "number_of_shards": 1,
    "number_of_replicas": 0,
    "analysis": {
      "analyzer": {
        "catalog_text": {
          "type": "custom",
          "tokenizer": "standard",
          "filter": ["lowercase", "asciifolding", "english_stop", "english_stemmer"]
        },
        "autocomplete_analyzer": {
          "type": "custom",
          "tokenizer": "autocomplete_tokenizer",
          "filter": ["lowercase"]
        },
        "autocomplete_search": {
          "type": "custom",
          "tokenizer": "standard",
          "filter": ["lowercase"]
        }
      },
      "tokenizer": {
        "autocomplete_tokenizer": {
          "type": "edge_ngram",
          "min_gram": 2,
          "max_gram": 20,
          "token_chars": ["letter", "digit"]
        }
      },
      "filter": {
        "english_stop": {
          "type": "stop",
          "stopwords": "_english_"
        },
        "english_stemmer": {
          "type": "stemmer",
          "language": "light_english"
        }
      }
    }
  },
  "mappings": {
    "properties": {
      "id":            { "type": "keyword" },
      "name":          { "type": "text", "analyzer": "catalog_text", "fields": { "keyword": { "type": "keyword", "ignore_above": 256 }, "autocomplete": { "type": "text", "analyzer": "autocomplete_analyzer", "search_analyzer": "autocomplete_search" } } },
      "sku":           { "type": "keyword" },
      "slug":          { "type": "keyword" },
      "description":   { "type": "text", "analyzer": "catalog_text" },
      "category_id":   { "type": "keyword" },
      "category_name": { "type": "text", "analyzer": "catalog_text", "fields": { "keyword": { "type": "keyword" } } },
      "vendor_id":     { "type": "keyword" },
      "vendor_name":   { "type": "text", "analyzer": "catalog_text", "fields": { "keyword": { "type": "keyword" } } },
      "price":         { "type": "long" },
      "currency":      { "type": "keyword" },
      "status":        { "type": "keyword" },
      "stock":         { "type": "integer" },
      "image_url":     { "type": "keyword", "index": false },
      "tags":          { "type": "keyword" },
      "popularity":    { "type": "long" },
      "created_at":    { "type": "date" },
      "updated_at":    { "type": "date" }
    }
  }
}`
}
