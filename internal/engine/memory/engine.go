package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/utafrali/productsearch/internal/domain"
	"github.com/utafrali/productsearch/internal/engine"
)

// Engine is an in-memory implementation of the TextEngine and Indexer
// interfaces. It tokenizes the query and matches each term against the
// product's name, description, category, vendor and tags.
// Thread-safe via sync.RWMutex.
type Engine struct {
	mu       sync.RWMutex
	products map[string]domain.Product
}

var (
	_ engine.TextEngine = (*Engine)(nil)
	_ engine.Indexer    = (*Engine)(nil)
)

// New creates a new in-memory search engine.
func New() *Engine {
	return &Engine{
		products: make(map[string]domain.Product),
	}
}

// Index adds or updates a single product in the in-memory index.
func (e *Engine) Index(_ context.Context, product *domain.Product) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.products[product.ID] = *product
	return nil
}

// Delete removes a product from the in-memory index by its ID.
func (e *Engine) Delete(_ context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.products, id)
	return nil
}

// BulkIndex adds or updates multiple products in the in-memory index.
func (e *Engine) BulkIndex(_ context.Context, products []domain.Product) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range products {
		e.products[products[i].ID] = products[i]
	}
	return nil
}

// Ping always succeeds.
func (e *Engine) Ping(_ context.Context) error {
	return nil
}

// Search executes a text query against the in-memory index.
func (e *Engine) Search(_ context.Context, q engine.TextQuery) (*engine.TextResult, error) {
	terms := tokenize(q.Spec.Text)

	e.mu.RLock()
	matched := make([]domain.TextHit, 0)
	for _, p := range e.products {
		if !q.Spec.Matches(&p) {
			continue
		}
		score := 0.0
		if len(terms) > 0 {
			var ok bool
			if score, ok = scoreProduct(&p, q.Spec.Text, terms); !ok {
				continue
			}
		}
		matched = append(matched, domain.TextHit{Product: p, Score: score})
	}
	e.mu.RUnlock()

	sortHits(matched, q.Spec.Sort)

	total := len(matched)
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	limit := q.Limit
	if limit < 1 {
		limit = domain.DefaultPageSize
	}
	end := offset + limit
	if end > total {
		end = total
	}

	return &engine.TextResult{
		Hits:  matched[offset:end],
		Total: total,
	}, nil
}

// GetByIDs returns the indexed products with the given IDs in request order.
func (e *Engine) GetByIDs(_ context.Context, ids []string) ([]domain.Product, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]domain.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := e.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// FacetCounts groups the products matching spec by dimension.
func (e *Engine) FacetCounts(_ context.Context, spec domain.QuerySpec, dimension string) ([]domain.FacetValue, error) {
	terms := tokenize(spec.Text)

	counts := make(map[string]*domain.FacetValue)
	e.mu.RLock()
	for _, p := range e.products {
		if !spec.Matches(&p) {
			continue
		}
		if len(terms) > 0 {
			if _, ok := scoreProduct(&p, spec.Text, terms); !ok {
				continue
			}
		}
		value, label := facetKey(&p, dimension)
		if value == "" {
			continue
		}
		fv, ok := counts[value]
		if !ok {
			fv = &domain.FacetValue{Value: value, Label: label}
			counts[value] = fv
		}
		fv.Count++
	}
	e.mu.RUnlock()

	out := make([]domain.FacetValue, 0, len(counts))
	for _, fv := range counts {
		out = append(out, *fv)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	return out, nil
}

// Suggest returns published product names and the category and vendor names
// that contain the fragment.
func (e *Engine) Suggest(_ context.Context, fragment string, limit int) (*engine.SuggestCandidates, error) {
	if limit <= 0 {
		limit = 10
	}
	needle := strings.ToLower(strings.TrimSpace(fragment))

	products := map[string]struct{}{}
	categories := map[string]struct{}{}
	vendors := map[string]struct{}{}

	e.mu.RLock()
	for _, p := range e.products {
		if p.Status != "" && p.Status != domain.StatusPublished {
			continue
		}
		if strings.Contains(strings.ToLower(p.Name), needle) {
			products[p.Name] = struct{}{}
		}
		if p.CategoryName != "" && strings.Contains(strings.ToLower(p.CategoryName), needle) {
			categories[p.CategoryName] = struct{}{}
		}
		if p.VendorName != "" && strings.Contains(strings.ToLower(p.VendorName), needle) {
			vendors[p.VendorName] = struct{}{}
		}
	}
	e.mu.RUnlock()

	return &engine.SuggestCandidates{
		Products:   sortedKeys(products, limit),
		Categories: sortedKeys(categories, limit),
		Vendors:    sortedKeys(vendors, limit),
	}, nil
}

// Len returns the number of indexed products.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.products)
}

func tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// scoreProduct returns the relevance of p for the query terms. Every term
// must appear in at least one field.
func scoreProduct(p *domain.Product, phrase string, terms []string) (float64, bool) {
	name := strings.ToLower(p.Name)
	desc := strings.ToLower(p.Description)
	meta := strings.ToLower(p.CategoryName + " " + p.VendorName + " " + strings.Join(p.Tags, " "))

	score := 0.0
	for _, term := range terms {
		termScore := 0.0
		if strings.Contains(name, term) {
			termScore += 3
			if strings.HasPrefix(name, term) {
				termScore++
			}
		}
		if strings.Contains(desc, term) {
			termScore++
		}
		if strings.Contains(meta, term) {
			termScore++
		}
		if termScore == 0 {
			return 0, false
		}
		score += termScore
	}
	if len(terms) > 1 && strings.Contains(name, strings.ToLower(strings.Join(strings.Fields(phrase), " "))) {
		score += 2
	}
	return score, true
}

func facetKey(p *domain.Product, dimension string) (string, string) {
	switch dimension {
	case domain.FacetCategory:
		return p.CategoryID, p.CategoryName
	case domain.FacetVendor:
		return p.VendorID, p.VendorName
	case domain.FacetStatus:
		return p.Status, p.Status
	case domain.FacetPriceRange:
		key := domain.PriceBucketFor(p.Price)
		for _, b := range domain.PriceBuckets() {
			if b.Key == key {
				return key, b.Label
			}
		}
	}
	return "", ""
}

// sortHits orders hits by the sort option. Relevance ties fall back to
// newest first, then ID.
func sortHits(hits []domain.TextHit, sortBy domain.SortOption) {
	less := func(a, b *domain.TextHit) bool {
		switch sortBy {
		case domain.SortPriceAsc:
			if a.Product.Price != b.Product.Price {
				return a.Product.Price < b.Product.Price
			}
		case domain.SortPriceDesc:
			if a.Product.Price != b.Product.Price {
				return a.Product.Price > b.Product.Price
			}
		case domain.SortDateAsc:
			if !a.Product.CreatedAt.Equal(b.Product.CreatedAt) {
				return a.Product.CreatedAt.Before(b.Product.CreatedAt)
			}
		case domain.SortNameAsc:
			if a.Product.Name != b.Product.Name {
				return a.Product.Name < b.Product.Name
			}
		case domain.SortNameDesc:
			if a.Product.Name != b.Product.Name {
				return a.Product.Name > b.Product.Name
			}
		case domain.SortPopularity:
			if a.Product.Popularity != b.Product.Popularity {
				return a.Product.Popularity > b.Product.Popularity
			}
		case domain.SortRelevance:
			if a.Score != b.Score {
				return a.Score > b.Score
			}
		}
		if !a.Product.CreatedAt.Equal(b.Product.CreatedAt) {
			return a.Product.CreatedAt.After(b.Product.CreatedAt)
		}
		return a.Product.ID < b.Product.ID
	}
	sort.SliceStable(hits, func(i, j int) bool { return less(&hits[i], &hits[j]) })
}

func sortedKeys(set map[string]struct{}, limit int) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
