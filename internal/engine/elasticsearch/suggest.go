package elasticsearch

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/utafrali/productsearch/internal/domain"
	"github.com/utafrali/productsearch/internal/engine"
)

type esNameAggregations struct {
	Categories struct {
		Buckets []struct {
			Key string `json:"key"`
		} `json:"buckets"`
	} `json:"categories"`
	Vendors struct {
		Buckets []struct {
			Key string `json:"key"`
		} `json:"buckets"`
	} `json:"vendors"`
}

// Suggest returns product, category and vendor names containing the
// fragment. Product names come from published documents only.
func (e *Engine) Suggest(ctx context.Context, fragment string, limit int) (*engine.SuggestCandidates, error) {
	if limit <= 0 {
		limit = 10
	}
	body := buildSuggestQuery(fragment, limit)

	esResp, err := e.search(ctx, "suggest", body)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(strings.TrimSpace(fragment))
	seen := make(map[string]struct{})
	var names []string
	for _, hit := range esResp.Hits.Hits {
		name := hit.Source.Name
		if _, exists := seen[name]; exists {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}

	var aggs esNameAggregations
	if len(esResp.Aggregations) > 0 {
		if err := json.Unmarshal(esResp.Aggregations, &aggs); err != nil {
			return nil, fmt.Errorf("elasticsearch suggest: decode aggregations: %w", err)
		}
	}

	out := &engine.SuggestCandidates{Products: names}
	for _, b := range aggs.Categories.Buckets {
		if strings.Contains(strings.ToLower(b.Key), needle) {
			out.Categories = append(out.Categories, b.Key)
		}
	}
	for _, b := range aggs.Vendors.Buckets {
		if strings.Contains(strings.ToLower(b.Key), needle) {
			out.Vendors = append(out.Vendors, b.Key)
		}
	}
	sort.Strings(out.Categories)
	sort.Strings(out.Vendors)
	return out, nil
}

// buildSuggestQuery matches the fragment anywhere in the product name and
// collects category and vendor names through case-insensitive include
// patterns on the keyword subfields.
func buildSuggestQuery(fragment string, limit int) map[string]any {
	needle := strings.ToLower(strings.TrimSpace(fragment))
	include := ".*" + caseInsensitivePattern(needle) + ".*"

	return map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"should": []any{
					map[string]any{"match": map[string]any{"name.autocomplete": needle}},
					map[string]any{"wildcard": map[string]any{
						"name.keyword": map[string]any{"value": "*" + needle + "*", "case_insensitive": true},
					}},
				},
				"minimum_should_match": 1,
				"filter": []any{
					map[string]any{"term": map[string]any{"status": domain.StatusPublished}},
				},
			},
		},
		"size":    limit,
		"_source": []string{"name"},
		"sort":    []any{map[string]any{"_score": "desc"}, map[string]any{"popularity": "desc"}},
		"aggs": map[string]any{
			"categories": map[string]any{"terms": map[string]any{
				"field": "category_name.keyword", "size": limit, "include": include,
			}},
			"vendors": map[string]any{"terms": map[string]any{
				"field": "vendor_name.keyword", "size": limit, "include": include,
			}},
		},
	}
}

// caseInsensitivePattern turns "lap" into "[lL][aA][pP]" for Lucene regexps,
// which have no case-insensitive flag in terms include.
func caseInsensitivePattern(s string) string {
	var b strings.Builder
	for _, r := range s {
		lower, upper := strings.ToLower(string(r)), strings.ToUpper(string(r))
		if lower == upper {
			b.WriteString(regexp.QuoteMeta(string(r)))
			continue
		}
		b.WriteString("[" + lower + upper + "]")
	}
	return b.String()
}
