// Package vector defines the contract of the embedding store used for
// semantic search. Embedding lifecycle (upserts) is owned by the catalog
// pipeline; this subsystem only reads.
package vector

import (
	"context"
	"errors"

	"github.com/utafrali/productsearch/internal/domain"
)

// ErrNotFound is returned by Embedding when the store holds no vector for
// the requested product.
var ErrNotFound = errors.New("vector: embedding not found")

// Filter restricts nearest-neighbour candidates by product metadata. Empty
// fields do not filter.
type Filter struct {
	CategoryIDs []string
	VendorIDs   []string
	Statuses    []string
}

// IsEmpty reports whether the filter has no conditions.
func (f Filter) IsEmpty() bool {
	return len(f.CategoryIDs) == 0 && len(f.VendorIDs) == 0 && len(f.Statuses) == 0
}

// FilterFromSpec derives the metadata filter a vector store can apply
// natively. Remaining conditions are post-filtered by the caller.
func FilterFromSpec(spec domain.QuerySpec) Filter {
	return Filter{
		CategoryIDs: spec.Categories,
		VendorIDs:   spec.VendorIDs,
		Statuses:    spec.Statuses,
	}
}

// Query asks for the K nearest neighbours of either a text (embedded by the
// store) or an explicit vector. Embedding wins when both are set.
type Query struct {
	Text      string
	Embedding []float32
	K         int
	Filter    Filter
}

// Store answers nearest-neighbour queries by cosine distance.
type Store interface {
	// Query returns up to q.K hits ordered by ascending distance.
	Query(ctx context.Context, q Query) ([]domain.SemanticHit, error)

	// Embedding returns the stored vector of a product.
	Embedding(ctx context.Context, productID string) ([]float32, error)

	// Ping checks whether the store is reachable.
	Ping(ctx context.Context) error
}
