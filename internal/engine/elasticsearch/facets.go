package elasticsearch

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/utafrali/productsearch/internal/domain"
)

// esBucket is one terms or range aggregation bucket.
type esBucket struct {
	Key      json.RawMessage `json:"key"`
	DocCount int             `json:"doc_count"`
	Label    *struct {
		Buckets []struct {
			Key string `json:"key"`
		} `json:"buckets"`
	} `json:"label,omitempty"`
}

type esFacetAggregations struct {
	Facet struct {
		Buckets []esBucket `json:"buckets"`
	} `json:"facet"`
}

// FacetCounts counts matching documents grouped by one facet dimension.
func (e *Engine) FacetCounts(ctx context.Context, spec domain.QuerySpec, dimension string) ([]domain.FacetValue, error) {
	agg, ok := facetAggregation(dimension)
	if !ok {
		return nil, fmt.Errorf("elasticsearch facet counts: unknown dimension %q", dimension)
	}

	body := map[string]any{
		"query": map[string]any{"bool": buildBoolQuery(spec)},
		"size":  0,
		"aggs":  map[string]any{"facet": agg},
	}
	esResp, err := e.search(ctx, "facet counts", body)
	if err != nil {
		return nil, err
	}

	var aggs esFacetAggregations
	if len(esResp.Aggregations) > 0 {
		if err := json.Unmarshal(esResp.Aggregations, &aggs); err != nil {
			return nil, fmt.Errorf("elasticsearch facet counts: decode aggregations: %w", err)
		}
	}
	return facetValuesFromBuckets(dimension, aggs.Facet.Buckets), nil
}

// facetValuesFromBuckets converts aggregation buckets into facet values,
// dropping empty buckets and ordering by count descending then value.
func facetValuesFromBuckets(dimension string, buckets []esBucket) []domain.FacetValue {
	labels := map[string]string{}
	if dimension == domain.FacetPriceRange {
		for _, b := range domain.PriceBuckets() {
			labels[b.Key] = b.Label
		}
	}

	values := make([]domain.FacetValue, 0, len(buckets))
	for _, b := range buckets {
		if b.DocCount == 0 {
			continue
		}
		var key string
		if err := json.Unmarshal(b.Key, &key); err != nil {
			key = string(b.Key)
		}
		fv := domain.FacetValue{Value: key, Label: labels[key], Count: b.DocCount}
		if b.Label != nil && len(b.Label.Buckets) > 0 {
			fv.Label = b.Label.Buckets[0].Key
		}
		values = append(values, fv)
	}

	sort.SliceStable(values, func(i, j int) bool {
		if values[i].Count != values[j].Count {
			return values[i].Count > values[j].Count
		}
		return values[i].Value < values[j].Value
	})
	return values
}
