package domain

import (
	"time"
)

// MatchType names the engine(s) that produced a hit.
type MatchType string

// Match types.
const (
	MatchText     MatchType = "text"
	MatchSemantic MatchType = "semantic"
	MatchHybrid   MatchType = "hybrid"
)

// TextHit is a candidate produced by the text engine. Score is the engine's
// raw relevance and is only comparable within one result set.
type TextHit struct {
	Product Product
	Score   float64
}

// SemanticHit is a candidate produced by the vector store. Distance is the
// cosine distance to the query vector. Product is populated from the vector
// store's metadata when available and may be partial.
type SemanticHit struct {
	ProductID string
	Distance  float64
	Product   *Product
}

// Similarity converts the cosine distance into a similarity where larger is
// better. The result is not bounded; fusion normalizes it.
func (h SemanticHit) Similarity() float64 {
	return 1 - h.Distance
}

// SearchHit is one ranked row of a result page.
type SearchHit struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	SKU          string    `json:"sku"`
	Slug         string    `json:"slug,omitempty"`
	Price        int64     `json:"price"`
	Currency     string    `json:"currency"`
	CategoryID   string    `json:"category_id"`
	CategoryName string    `json:"category_name"`
	VendorID     string    `json:"vendor_id"`
	VendorName   string    `json:"vendor_name"`
	Stock        int       `json:"stock"`
	ImageURL     string    `json:"image_url,omitempty"`
	Popularity   int64     `json:"popularity,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	Score        float64   `json:"score"`
	MatchType    MatchType `json:"match_type"`
}

// NewSearchHit builds a hit from a catalog product.
func NewSearchHit(p *Product, score float64, match MatchType) SearchHit {
	return SearchHit{
		ID:           p.ID,
		Name:         p.Name,
		SKU:          p.SKU,
		Slug:         p.Slug,
		Price:        p.Price,
		Currency:     p.Currency,
		CategoryID:   p.CategoryID,
		CategoryName: p.CategoryName,
		VendorID:     p.VendorID,
		VendorName:   p.VendorName,
		Stock:        p.Stock,
		ImageURL:     p.ImageURL,
		Popularity:   p.Popularity,
		CreatedAt:    p.CreatedAt,
		Score:        score,
		MatchType:    match,
	}
}

// Facet dimensions.
const (
	FacetCategory   = "category"
	FacetVendor     = "vendor"
	FacetPriceRange = "price_range"
	FacetStatus     = "status"
)

// FacetDimensions lists every facet computed for a result page.
func FacetDimensions() []string {
	return []string{FacetCategory, FacetVendor, FacetPriceRange, FacetStatus}
}

// FacetDisplayName returns the human-readable title of a facet dimension.
func FacetDisplayName(dimension string) string {
	switch dimension {
	case FacetCategory:
		return "Category"
	case FacetVendor:
		return "Vendor"
	case FacetPriceRange:
		return "Price"
	case FacetStatus:
		return "Status"
	}
	return dimension
}

// Facet is a filterable dimension with per-value counts.
type Facet struct {
	Name        string       `json:"name"`
	DisplayName string       `json:"display_name"`
	Values      []FacetValue `json:"values"`
}

// FacetValue is one bucket of a facet.
type FacetValue struct {
	Value    string `json:"value"`
	Label    string `json:"label,omitempty"`
	Count    int    `json:"count"`
	Selected bool   `json:"selected"`
}

// PriceBucket is a fixed price range used by the price facet, in minor units.
// Max is exclusive; a zero Max means unbounded.
type PriceBucket struct {
	Key   string
	Label string
	Min   int64
	Max   int64
}

// PriceBuckets returns the fixed price ranges in ascending order.
func PriceBuckets() []PriceBucket {
	return []PriceBucket{
		{Key: "0-2500", Label: "Under 25", Min: 0, Max: 2500},
		{Key: "2500-5000", Label: "25 to 50", Min: 2500, Max: 5000},
		{Key: "5000-10000", Label: "50 to 100", Min: 5000, Max: 10000},
		{Key: "10000-50000", Label: "100 to 500", Min: 10000, Max: 50000},
		{Key: "50000-100000", Label: "500 to 1000", Min: 50000, Max: 100000},
		{Key: "100000+", Label: "1000 and above", Min: 100000},
	}
}

// PriceBucketFor returns the bucket key containing price.
func PriceBucketFor(price int64) string {
	buckets := PriceBuckets()
	for _, b := range buckets {
		if price >= b.Min && (b.Max == 0 || price < b.Max) {
			return b.Key
		}
	}
	return buckets[0].Key
}

// SearchResultPage is the response to a search. It is always fully populated,
// including when every engine failed.
type SearchResultPage struct {
	Results     []SearchHit `json:"results"`
	TotalCount  int         `json:"total_count"`
	Page        int         `json:"page"`
	PageSize    int         `json:"page_size"`
	ElapsedMs   int64       `json:"elapsed_ms"`
	Facets      []Facet     `json:"facets"`
	Suggestions []string    `json:"suggestions"`
	Mode        SearchMode  `json:"mode"`
	Degraded    bool        `json:"degraded"`
}

// EmptyPage returns a well-formed page with no results for spec.
func EmptyPage(spec QuerySpec) *SearchResultPage {
	return &SearchResultPage{
		Results:     []SearchHit{},
		TotalCount:  0,
		Page:        spec.Page,
		PageSize:    spec.PageSize,
		Facets:      []Facet{},
		Suggestions: []string{},
		Mode:        spec.Mode,
	}
}

// SuggestionType names the source of an autocomplete suggestion.
type SuggestionType string

// Suggestion types.
const (
	SuggestionProduct  SuggestionType = "product"
	SuggestionCategory SuggestionType = "category"
	SuggestionVendor   SuggestionType = "vendor"
)

// Suggestion is one autocomplete candidate.
type Suggestion struct {
	Text  string         `json:"text"`
	Type  SuggestionType `json:"type"`
	Score float64        `json:"score"`
}
