package engine

import (
	"context"

	"github.com/utafrali/productsearch/internal/domain"
)

// TextQuery is a filtered text query against the catalog. An empty
// Spec.Text runs filter-only. Offset and Limit select the window; Spec.Page
// and Spec.PageSize are ignored by engines.
type TextQuery struct {
	Spec   domain.QuerySpec
	Offset int
	Limit  int
}

// TextResult is a window of text hits plus the total number of matches.
type TextResult struct {
	Hits  []domain.TextHit
	Total int
}

// SuggestCandidates are raw names containing an autocomplete fragment.
type SuggestCandidates struct {
	Products   []string
	Categories []string
	Vendors    []string
}

// TextEngine is the relational / full-text side of hybrid search.
// Implementations may use PostgreSQL, Elasticsearch, or in-memory storage.
type TextEngine interface {
	// Search executes a filtered text query ordered by Spec.Sort.
	Search(ctx context.Context, q TextQuery) (*TextResult, error)

	// GetByIDs loads products by ID. Missing IDs are skipped.
	GetByIDs(ctx context.Context, ids []string) ([]domain.Product, error)

	// FacetCounts counts the products matching spec grouped by the given
	// facet dimension.
	FacetCounts(ctx context.Context, spec domain.QuerySpec, dimension string) ([]domain.FacetValue, error)

	// Suggest returns product, category and vendor names containing the
	// fragment, case-insensitively.
	Suggest(ctx context.Context, fragment string, limit int) (*SuggestCandidates, error)

	// Ping checks whether the backing store is reachable.
	Ping(ctx context.Context) error
}

// Indexer is implemented by engines that own their index and accept catalog
// updates from product events.
type Indexer interface {
	// Index adds or updates a single product.
	Index(ctx context.Context, product *domain.Product) error

	// Delete removes a product by its ID.
	Delete(ctx context.Context, id string) error

	// BulkIndex adds or updates multiple products.
	BulkIndex(ctx context.Context, products []domain.Product) error
}
