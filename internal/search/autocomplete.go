package search

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/utafrali/productsearch/internal/domain"
)

// Autocomplete limits and the minimum prefix length.
const (
	DefaultSuggestLimit = 10
	MaxSuggestLimit     = 20
	MinPrefixLength     = 2
)

// Suggestion scores by source.
const (
	scoreProductPrefix    = 0.9
	scoreCategory         = 0.8
	scoreProductSubstring = 0.7
	scoreVendor           = 0.6
)

// Autocomplete blends product, category and vendor names containing the
// prefix. Prefixes shorter than two characters yield nothing.
func (o *Orchestrator) Autocomplete(ctx context.Context, prefix string, limit int) []domain.Suggestion {
	prefix = strings.Join(strings.Fields(prefix), " ")
	if utf8.RuneCountInString(prefix) < MinPrefixLength {
		return []domain.Suggestion{}
	}
	limit = ClampSuggestLimit(limit)

	ctx, cancel := context.WithTimeout(ctx, o.cfg.SubqueryTimeout)
	defer cancel()
	candidates, err := o.text.Suggest(ctx, prefix, limit)
	if err != nil {
		o.logger.WarnContext(ctx, "autocomplete unavailable", slog.String("error", err.Error()))
		return []domain.Suggestion{}
	}

	needle := strings.ToLower(prefix)
	best := make(map[string]domain.Suggestion)
	add := func(text string, typ domain.SuggestionType, score float64) {
		key := strings.ToLower(text)
		if prev, ok := best[key]; ok && prev.Score >= score {
			return
		}
		best[key] = domain.Suggestion{Text: text, Type: typ, Score: score}
	}
	for _, name := range candidates.Products {
		if strings.HasPrefix(strings.ToLower(name), needle) {
			add(name, domain.SuggestionProduct, scoreProductPrefix)
		} else {
			add(name, domain.SuggestionProduct, scoreProductSubstring)
		}
	}
	for _, name := range candidates.Categories {
		add(name, domain.SuggestionCategory, scoreCategory)
	}
	for _, name := range candidates.Vendors {
		add(name, domain.SuggestionVendor, scoreVendor)
	}

	out := make([]domain.Suggestion, 0, len(best))
	for _, s := range best {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Text < out[j].Text
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// ClampSuggestLimit applies the default and maximum suggestion counts.
func ClampSuggestLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultSuggestLimit
	case limit > MaxSuggestLimit:
		return MaxSuggestLimit
	}
	return limit
}
