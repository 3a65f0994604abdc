package elasticsearch

import (
	"github.com/utafrali/productsearch/internal/domain"
)

// buildSearchQuery constructs the query DSL for a text query window.
func buildSearchQuery(spec domain.QuerySpec, offset, limit int) map[string]any {
	return map[string]any{
		"query":            map[string]any{"bool": buildBoolQuery(spec)},
		"from":             offset,
		"size":             limit,
		"track_total_hits": true,
		"sort":             buildSort(spec.Sort),
	}
}

// buildBoolQuery combines the free-text clause with the structured filters.
func buildBoolQuery(spec domain.QuerySpec) map[string]any {
	var must any
	if spec.HasText() {
		must = map[string]any{
			"multi_match": map[string]any{
				"query":         spec.Text,
				"fields":        []string{"name^3", "name.autocomplete^2", "description", "category_name", "vendor_name", "tags"},
				"type":          "best_fields",
				"operator":      "and",
				"fuzziness":     "AUTO",
				"prefix_length": 1,
			},
		}
	} else {
		must = map[string]any{"match_all": map[string]any{}}
	}

	boolQuery := map[string]any{
		"must": []any{must},
	}
	if filters := buildFilters(spec); len(filters) > 0 {
		boolQuery["filter"] = filters
	}
	return boolQuery
}

// buildFilters constructs the filter clauses for the query.
func buildFilters(spec domain.QuerySpec) []any {
	var filters []any

	if len(spec.Categories) > 0 {
		filters = append(filters, map[string]any{"terms": map[string]any{"category_id": spec.Categories}})
	}
	if len(spec.VendorIDs) > 0 {
		filters = append(filters, map[string]any{"terms": map[string]any{"vendor_id": spec.VendorIDs}})
	}
	if len(spec.Statuses) > 0 {
		filters = append(filters, map[string]any{"terms": map[string]any{"status": spec.Statuses}})
	}
	for _, tag := range spec.Tags {
		filters = append(filters, map[string]any{"term": map[string]any{"tags": tag}})
	}
	if spec.PriceMin != nil || spec.PriceMax != nil {
		rangeFilter := map[string]any{}
		if spec.PriceMin != nil {
			rangeFilter["gte"] = *spec.PriceMin
		}
		if spec.PriceMax != nil {
			rangeFilter["lte"] = *spec.PriceMax
		}
		filters = append(filters, map[string]any{"range": map[string]any{"price": rangeFilter}})
	}
	if spec.RequireStock != nil && *spec.RequireStock {
		filters = append(filters, map[string]any{"range": map[string]any{"stock": map[string]any{"gt": 0}}})
	}

	return filters
}

// buildSort constructs the sort clause. Every option ends with created_at
// descending so ties are stable.
func buildSort(sortBy domain.SortOption) []any {
	newest := map[string]any{"created_at": "desc"}
	switch sortBy {
	case domain.SortPriceAsc:
		return []any{map[string]any{"price": "asc"}, newest}
	case domain.SortPriceDesc:
		return []any{map[string]any{"price": "desc"}, newest}
	case domain.SortDateAsc:
		return []any{map[string]any{"created_at": "asc"}}
	case domain.SortNameAsc:
		return []any{map[string]any{"name.keyword": "asc"}, newest}
	case domain.SortNameDesc:
		return []any{map[string]any{"name.keyword": "desc"}, newest}
	case domain.SortPopularity:
		return []any{map[string]any{"popularity": "desc"}, newest}
	case domain.SortRelevance:
		return []any{map[string]any{"_score": "desc"}, newest}
	default:
		return []any{newest}
	}
}

// facetAggregation returns the aggregation for one facet dimension.
func facetAggregation(dimension string) (map[string]any, bool) {
	switch dimension {
	case domain.FacetCategory:
		return labelledTerms("category_id", "category_name.keyword"), true
	case domain.FacetVendor:
		return labelledTerms("vendor_id", "vendor_name.keyword"), true
	case domain.FacetStatus:
		return map[string]any{"terms": map[string]any{"field": "status", "size": 50}}, true
	case domain.FacetPriceRange:
		var ranges []any
		for _, b := range domain.PriceBuckets() {
			r := map[string]any{"key": b.Key, "from": b.Min}
			if b.Max > 0 {
				r["to"] = b.Max
			}
			ranges = append(ranges, r)
		}
		return map[string]any{"range": map[string]any{"field": "price", "ranges": ranges}}, true
	}
	return nil, false
}

func labelledTerms(idField, labelField string) map[string]any {
	return map[string]any{
		"terms": map[string]any{"field": idField, "size": 50},
		"aggs": map[string]any{
			"label": map[string]any{"terms": map[string]any{"field": labelField, "size": 1}},
		},
	}
}
