package search

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/utafrali/productsearch/internal/domain"
)

// Weights are the per-engine blend factors of hybrid fusion. They must be
// non-negative and sum to 1.
type Weights struct {
	Text     float64
	Semantic float64
}

// DefaultWeights blends both engines equally.
func DefaultWeights() Weights {
	return Weights{Text: 0.5, Semantic: 0.5}
}

// Validate checks the weights form a convex blend.
func (w Weights) Validate() error {
	if w.Text < 0 || w.Semantic < 0 {
		return fmt.Errorf("fusion weights must be non-negative, got text=%v semantic=%v", w.Text, w.Semantic)
	}
	if math.Abs(w.Text+w.Semantic-1) > 1e-6 {
		return fmt.Errorf("fusion weights must sum to 1, got %v", w.Text+w.Semantic)
	}
	return nil
}

// normalize min-max scales scores into [0,1]. A single score, or a set where
// every score is equal, maps to 1.
func normalize(scores []float64) []float64 {
	out := make([]float64, len(scores))
	if len(scores) == 0 {
		return out
	}
	lo, hi := scores[0], scores[0]
	for _, s := range scores[1:] {
		lo = math.Min(lo, s)
		hi = math.Max(hi, s)
	}
	if hi == lo {
		for i := range out {
			out[i] = 1
		}
		return out
	}
	for i, s := range scores {
		out[i] = (s - lo) / (hi - lo)
	}
	return out
}

type fusedEntry struct {
	product    domain.Product
	textNorm   float64
	semNorm    float64
	inText     bool
	inSemantic bool
}

// Fuse blends text and semantic candidates into one ranking. Semantic hits
// are resolved through products; hits whose product is absent are dropped,
// which is how post-filtering removes semantic candidates that fail the
// query's filters. A product missing from one side contributes 0 for it.
func Fuse(text []domain.TextHit, semantic []domain.SemanticHit, products map[string]domain.Product, w Weights) []domain.SearchHit {
	entries := make(map[string]*fusedEntry, len(text)+len(semantic))
	order := make([]string, 0, len(text)+len(semantic))

	textScores := make([]float64, len(text))
	for i, h := range text {
		textScores[i] = h.Score
	}
	for i, norm := range normalize(textScores) {
		id := text[i].Product.ID
		if _, dup := entries[id]; dup {
			continue
		}
		entries[id] = &fusedEntry{product: text[i].Product, textNorm: norm, inText: true}
		order = append(order, id)
	}

	resolved := make([]domain.SemanticHit, 0, len(semantic))
	for _, h := range semantic {
		if _, ok := products[h.ProductID]; ok {
			resolved = append(resolved, h)
		} else if e, ok := entries[h.ProductID]; ok {
			resolved = append(resolved, domain.SemanticHit{ProductID: h.ProductID, Distance: h.Distance, Product: &e.product})
		}
	}
	semScores := make([]float64, len(resolved))
	for i, h := range resolved {
		semScores[i] = h.Similarity()
	}
	for i, norm := range normalize(semScores) {
		id := resolved[i].ProductID
		e, ok := entries[id]
		if !ok {
			e = &fusedEntry{product: products[id]}
			entries[id] = e
			order = append(order, id)
		}
		if e.inSemantic {
			continue
		}
		e.semNorm = norm
		e.inSemantic = true
	}

	hits := make([]domain.SearchHit, 0, len(order))
	for _, id := range order {
		e := entries[id]
		score := clamp01(w.Text*e.textNorm + w.Semantic*e.semNorm)
		match := domain.MatchText
		switch {
		case e.inText && e.inSemantic:
			match = domain.MatchHybrid
		case e.inSemantic:
			match = domain.MatchSemantic
		}
		hits = append(hits, domain.NewSearchHit(&e.product, score, match))
	}
	sortByScore(hits)
	return hits
}

// scoreTextHits converts text hits into SearchHits with normalized scores,
// keeping the engine's order.
func scoreTextHits(text []domain.TextHit) []domain.SearchHit {
	scores := make([]float64, len(text))
	for i, h := range text {
		scores[i] = h.Score
	}
	hits := make([]domain.SearchHit, len(text))
	for i, norm := range normalize(scores) {
		hits[i] = domain.NewSearchHit(&text[i].Product, norm, domain.MatchText)
	}
	return hits
}

// scoreSemanticHits converts hydrated semantic hits into SearchHits ordered
// by normalized similarity. Hits without a product are dropped.
func scoreSemanticHits(semantic []domain.SemanticHit, products map[string]domain.Product) []domain.SearchHit {
	resolved := make([]domain.SemanticHit, 0, len(semantic))
	for _, h := range semantic {
		if _, ok := products[h.ProductID]; ok {
			resolved = append(resolved, h)
		}
	}
	scores := make([]float64, len(resolved))
	for i, h := range resolved {
		scores[i] = h.Similarity()
	}
	hits := make([]domain.SearchHit, len(resolved))
	for i, norm := range normalize(scores) {
		p := products[resolved[i].ProductID]
		hits[i] = domain.NewSearchHit(&p, norm, domain.MatchSemantic)
	}
	sortByScore(hits)
	return hits
}

// sortByScore orders by score descending, then newest first, then id.
func sortByScore(hits []domain.SearchHit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return newerFirst(hits[i], hits[j])
	})
}

// applySort reorders fused hits for an explicit non-relevance sort.
func applySort(hits []domain.SearchHit, sortBy domain.SortOption) {
	var less func(a, b domain.SearchHit) bool
	switch sortBy {
	case domain.SortPriceAsc:
		less = func(a, b domain.SearchHit) bool { return a.Price < b.Price }
	case domain.SortPriceDesc:
		less = func(a, b domain.SearchHit) bool { return a.Price > b.Price }
	case domain.SortDateAsc:
		less = func(a, b domain.SearchHit) bool { return a.CreatedAt.Before(b.CreatedAt) }
	case domain.SortDateDesc:
		less = func(a, b domain.SearchHit) bool { return a.CreatedAt.After(b.CreatedAt) }
	case domain.SortNameAsc:
		less = func(a, b domain.SearchHit) bool { return strings.ToLower(a.Name) < strings.ToLower(b.Name) }
	case domain.SortNameDesc:
		less = func(a, b domain.SearchHit) bool { return strings.ToLower(a.Name) > strings.ToLower(b.Name) }
	case domain.SortPopularity:
		less = func(a, b domain.SearchHit) bool { return a.Popularity > b.Popularity }
	default:
		return
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if less(hits[i], hits[j]) {
			return true
		}
		if less(hits[j], hits[i]) {
			return false
		}
		return newerFirst(hits[i], hits[j])
	})
}

func newerFirst(a, b domain.SearchHit) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID < b.ID
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
