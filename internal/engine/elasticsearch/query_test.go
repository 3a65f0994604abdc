package elasticsearch

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/productsearch/internal/domain"
)

func TestBuildSearchQuery_FilterOnlyUsesMatchAll(t *testing.T) {
	q := buildSearchQuery(domain.QuerySpec{}.Normalize(), 40, 20)

	assert.Equal(t, 40, q["from"])
	assert.Equal(t, 20, q["size"])
	boolQuery := q["query"].(map[string]any)["bool"].(map[string]any)
	must := boolQuery["must"].([]any)
	assert.Contains(t, must[0], "match_all")
	assert.NotContains(t, boolQuery, "filter")
	assert.Equal(t, []any{map[string]any{"created_at": "desc"}}, q["sort"])
}

func TestBuildSearchQuery_Filters(t *testing.T) {
	minPrice, maxPrice := int64(100), int64(500)
	inStock := true
	spec := domain.QuerySpec{
		Text:         "desk",
		Categories:   []string{"c1"},
		VendorIDs:    []string{"v1"},
		Tags:         []string{"oak"},
		PriceMin:     &minPrice,
		PriceMax:     &maxPrice,
		RequireStock: &inStock,
	}.Normalize()

	filters := buildFilters(spec)
	require.Len(t, filters, 5)
	assert.Equal(t, map[string]any{"terms": map[string]any{"category_id": []string{"c1"}}}, filters[0])
	assert.Equal(t, map[string]any{"terms": map[string]any{"vendor_id": []string{"v1"}}}, filters[1])
	assert.Equal(t, map[string]any{"term": map[string]any{"tags": "oak"}}, filters[2])
	assert.Equal(t, map[string]any{"range": map[string]any{"price": map[string]any{"gte": minPrice, "lte": maxPrice}}}, filters[3])
	assert.Equal(t, map[string]any{"range": map[string]any{"stock": map[string]any{"gt": 0}}}, filters[4])

	boolQuery := buildBoolQuery(spec)
	must := boolQuery["must"].([]any)[0].(map[string]any)
	assert.Equal(t, "desk", must["multi_match"].(map[string]any)["query"])
}

func TestBuildSort_RelevanceBreaksTiesByDate(t *testing.T) {
	sort := buildSort(domain.SortRelevance)
	require.Len(t, sort, 2)
	assert.Equal(t, map[string]any{"_score": "desc"}, sort[0])
	assert.Equal(t, map[string]any{"created_at": "desc"}, sort[1])

	assert.Equal(t, map[string]any{"price": "asc"}, buildSort(domain.SortPriceAsc)[0])
	assert.Equal(t, map[string]any{"popularity": "desc"}, buildSort(domain.SortPopularity)[0])
}

func TestFacetAggregation_PriceRangeIsOpenEnded(t *testing.T) {
	agg, ok := facetAggregation(domain.FacetPriceRange)
	require.True(t, ok)
	ranges := agg["range"].(map[string]any)["ranges"].([]any)
	require.Len(t, ranges, len(domain.PriceBuckets()))
	last := ranges[len(ranges)-1].(map[string]any)
	assert.Equal(t, "100000+", last["key"])
	assert.NotContains(t, last, "to")

	_, ok = facetAggregation("color")
	assert.False(t, ok)
}

func TestFacetValuesFromBuckets(t *testing.T) {
	raw := `[
		{"key":"v2","doc_count":1,"label":{"buckets":[{"key":"Globex"}]}},
		{"key":"v1","doc_count":3,"label":{"buckets":[{"key":"Acme"}]}},
		{"key":"v3","doc_count":0}
	]`
	var buckets []esBucket
	require.NoError(t, json.Unmarshal([]byte(raw), &buckets))

	values := facetValuesFromBuckets(domain.FacetVendor, buckets)
	require.Len(t, values, 2)
	assert.Equal(t, domain.FacetValue{Value: "v1", Label: "Acme", Count: 3}, values[0])
	assert.Equal(t, domain.FacetValue{Value: "v2", Label: "Globex", Count: 1}, values[1])
}

func TestFacetValuesFromBuckets_PriceLabels(t *testing.T) {
	var buckets []esBucket
	require.NoError(t, json.Unmarshal([]byte(`[{"key":"0-2500","doc_count":2}]`), &buckets))

	values := facetValuesFromBuckets(domain.FacetPriceRange, buckets)
	require.Len(t, values, 1)
	assert.Equal(t, "Under 25", values[0].Label)
}

func TestCaseInsensitivePattern(t *testing.T) {
	assert.Equal(t, "[lL][aA][pP]", caseInsensitivePattern("lap"))
	assert.Equal(t, `4[kK]\.`, caseInsensitivePattern("4k."))
}
