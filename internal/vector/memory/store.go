// Package memory provides an in-process vector store backed by a hashing
// embedder. It is used for local development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/utafrali/productsearch/internal/domain"
	"github.com/utafrali/productsearch/internal/vector"
)

type entry struct {
	product   domain.Product
	embedding []float32
}

// Store is a thread-safe in-memory vector store.
type Store struct {
	mu       sync.RWMutex
	entries  map[string]entry
	embedder HashEmbedder
	failErr  error
}

var _ vector.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		entries:  make(map[string]entry),
		embedder: HashEmbedder{Dimension: DefaultDimension},
	}
}

// Upsert embeds and stores products.
func (s *Store) Upsert(_ context.Context, products ...domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range products {
		s.entries[p.ID] = entry{product: p, embedding: s.embedder.Embed(productText(&p))}
	}
	return nil
}

// Remove deletes a product's vector. Missing IDs are ignored.
func (s *Store) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
	return nil
}

// SetFailure makes every subsequent call return err until cleared with nil.
func (s *Store) SetFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failErr = err
}

// Query returns the K nearest products by cosine distance.
func (s *Store) Query(ctx context.Context, q vector.Query) ([]domain.SemanticHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failErr != nil {
		return nil, fmt.Errorf("vector query: %w", s.failErr)
	}

	if q.K <= 0 {
		return []domain.SemanticHit{}, nil
	}
	target := q.Embedding
	if len(target) == 0 {
		target = s.embedder.Embed(q.Text)
	}

	hits := make([]domain.SemanticHit, 0, len(s.entries))
	for id, e := range s.entries {
		if !matchesFilter(&e.product, q.Filter) {
			continue
		}
		sim := cosineSimilarity(target, e.embedding)
		if sim <= 0 {
			continue
		}
		p := e.product
		hits = append(hits, domain.SemanticHit{ProductID: id, Distance: 1 - sim, Product: &p})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].ProductID < hits[j].ProductID
	})
	if len(hits) > q.K {
		hits = hits[:q.K]
	}
	return hits, nil
}

// Embedding returns the stored vector of a product.
func (s *Store) Embedding(ctx context.Context, productID string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failErr != nil {
		return nil, fmt.Errorf("vector embedding: %w", s.failErr)
	}
	e, ok := s.entries[productID]
	if !ok {
		return nil, vector.ErrNotFound
	}
	out := make([]float32, len(e.embedding))
	copy(out, e.embedding)
	return out, nil
}

// Ping reports the injected failure, if any.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.failErr
}

// Len returns the number of stored vectors.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func matchesFilter(p *domain.Product, f vector.Filter) bool {
	return in(f.CategoryIDs, p.CategoryID) && in(f.VendorIDs, p.VendorID) && in(f.Statuses, p.Status)
}

func in(set []string, v string) bool {
	if len(set) == 0 {
		return true
	}
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
