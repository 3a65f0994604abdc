package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/utafrali/productsearch/internal/analytics"
	"github.com/utafrali/productsearch/internal/cache"
	"github.com/utafrali/productsearch/internal/domain"
	"github.com/utafrali/productsearch/internal/engine"
	"github.com/utafrali/productsearch/internal/search"
	apperrors "github.com/utafrali/productsearch/pkg/errors"
)

// defaultWarmQueries is how many popular queries a warm run takes when the
// caller gives none.
const defaultWarmQueries = 20

// Searcher is the uncached search path.
type Searcher interface {
	Search(ctx context.Context, spec domain.QuerySpec) *domain.SearchResultPage
	SearchWithFacets(ctx context.Context, spec domain.QuerySpec, facets []domain.Facet) *domain.SearchResultPage
	Autocomplete(ctx context.Context, prefix string, limit int) []domain.Suggestion
	Similar(ctx context.Context, productID string, limit int, excludeSameVendor bool) ([]domain.SearchHit, error)
}

// Reports is the read side of the analytics pipeline.
type Reports interface {
	Dashboard(ctx context.Context, days int) (*domain.DashboardMetrics, error)
	QueryInsights(ctx context.Context, query string, days int) (*domain.QueryInsights, error)
	BusinessReport(ctx context.Context, period string) (*domain.BIReport, error)
	Trending(ctx context.Context, limit int, period string) ([]domain.TrendingQuery, error)
	Popular(ctx context.Context, limit int) ([]domain.PopularQuery, error)
}

// RequestMeta describes who asked and through which channel.
type RequestMeta struct {
	UserID   string
	UserType string
	Source   string
}

// Deps are the collaborators of a SearchService. Catalog and Indexer are
// optional: without an Indexer the index is read-only.
type Deps struct {
	Searcher  Searcher
	Cache     *cache.Cache
	Analytics analytics.Sink
	Reports   Reports
	Catalog   engine.TextEngine
	Indexer   engine.Indexer
	Logger    *slog.Logger
}

// SearchService puts the cache in front of the orchestrator and feeds every
// served search to analytics.
type SearchService struct {
	searcher  Searcher
	cache     *cache.Cache
	analytics analytics.Sink
	reports   Reports
	catalog   engine.TextEngine
	indexer   engine.Indexer
	logger    *slog.Logger
}

// NewSearchService creates a new search service.
func NewSearchService(deps Deps) *SearchService {
	return &SearchService{
		searcher:  deps.Searcher,
		cache:     deps.Cache,
		analytics: deps.Analytics,
		reports:   deps.Reports,
		catalog:   deps.Catalog,
		indexer:   deps.Indexer,
		logger:    deps.Logger,
	}
}

// Search answers a query from the EXACT tier, then the PROCESSED tier, then
// the orchestrator. Fresh pages are written back unless degraded. The only
// errors are invalid input.
func (s *SearchService) Search(ctx context.Context, spec domain.QuerySpec, meta RequestMeta) (*domain.SearchResultPage, error) {
	start := time.Now()
	spec = spec.Normalize()
	if spec.PriceMin != nil && spec.PriceMax != nil && *spec.PriceMin > *spec.PriceMax {
		return nil, apperrors.InvalidInput("price_min must not exceed price_max")
	}

	page, hit := s.cache.Get(ctx, spec, domain.TierExact)
	if !hit {
		if page, hit = s.cache.Get(ctx, spec, domain.TierProcessed); hit {
			s.cache.Put(ctx, spec, domain.TierExact, page)
		}
	}

	if hit {
		page.ElapsedMs = time.Since(start).Milliseconds()
	} else {
		facets, facetsHit := s.cache.GetFacets(ctx, spec)
		page = s.searcher.SearchWithFacets(ctx, spec, facets)
		if !page.Degraded {
			s.cache.Put(ctx, spec, domain.TierExact, page)
			s.cache.Put(ctx, spec, domain.TierProcessed, page)
			if !facetsHit {
				s.cache.PutFacets(ctx, spec, page.Facets)
			}
		}
	}

	s.track(spec, meta, page, hit)

	s.logger.DebugContext(ctx, "search executed",
		slog.String("query", spec.Text),
		slog.String("mode", string(spec.Mode)),
		slog.Int("total", page.TotalCount),
		slog.Int64("took_ms", page.ElapsedMs),
		slog.Bool("cache_hit", hit),
		slog.Bool("degraded", page.Degraded),
	)
	return page, nil
}

func (s *SearchService) track(spec domain.QuerySpec, meta RequestMeta, page *domain.SearchResultPage, cacheHit bool) {
	if s.analytics == nil {
		return
	}
	s.analytics.Track(domain.NewAnalyticsEvent(domain.EventInput{
		Query:        spec.Text,
		UserID:       meta.UserID,
		UserType:     meta.UserType,
		ResultsCount: page.TotalCount,
		ElapsedMs:    page.ElapsedMs,
		Filters:      spec.FilterMap(),
		Page:         spec.Page,
		Source:       meta.Source,
		CacheHit:     cacheHit,
		Degraded:     page.Degraded,
	}))
}

// Autocomplete returns suggestions for a prefix, cached in the AUTOCOMPLETE
// tier. Prefixes shorter than two characters yield an empty list.
func (s *SearchService) Autocomplete(ctx context.Context, prefix string, limit int) []domain.Suggestion {
	prefix = strings.Join(strings.Fields(prefix), " ")
	if utf8.RuneCountInString(prefix) < search.MinPrefixLength {
		return []domain.Suggestion{}
	}
	limit = search.ClampSuggestLimit(limit)

	key := cache.AutocompleteKey(prefix, limit)
	var cached []domain.Suggestion
	if s.cache.GetJSON(ctx, domain.TierAutocomplete, key, &cached) {
		return cached
	}

	suggestions := s.searcher.Autocomplete(ctx, prefix, limit)
	if len(suggestions) > 0 {
		s.cache.SetJSON(ctx, domain.TierAutocomplete, key, suggestions)
	}
	return suggestions
}

// Similar returns products near the given one, cached in the PROCESSED tier
// under the product's similar namespace.
func (s *SearchService) Similar(ctx context.Context, productID string, limit int, excludeSameVendor bool) ([]domain.SearchHit, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, apperrors.InvalidInput("product id is required")
	}
	limit = search.ClampSimilarLimit(limit)

	key := cache.SimilarKey(productID, limit, excludeSameVendor)
	var cached []domain.SearchHit
	if s.cache.GetJSON(ctx, domain.TierProcessed, key, &cached) {
		return cached, nil
	}

	hits, err := s.searcher.Similar(ctx, productID, limit, excludeSameVendor)
	if err != nil {
		return nil, fmt.Errorf("similar products: %w", err)
	}
	if len(hits) > 0 {
		s.cache.SetJSON(ctx, domain.TierProcessed, key, hits)
	}
	return hits, nil
}

// Trending returns queries whose volume is growing.
func (s *SearchService) Trending(ctx context.Context, limit int, period string) ([]domain.TrendingQuery, error) {
	return s.reports.Trending(ctx, limit, period)
}

// Popular returns the most searched queries.
func (s *SearchService) Popular(ctx context.Context, limit int) ([]domain.PopularQuery, error) {
	return s.reports.Popular(ctx, limit)
}

// Analytics returns the dashboard for the last days.
func (s *SearchService) Analytics(ctx context.Context, days int) (*domain.DashboardMetrics, error) {
	return s.reports.Dashboard(ctx, days)
}

// QueryInsights returns the history and rating of one query.
func (s *SearchService) QueryInsights(ctx context.Context, query string, days int) (*domain.QueryInsights, error) {
	return s.reports.QueryInsights(ctx, query, days)
}

// BusinessReport returns the report for a week, month or quarter.
func (s *SearchService) BusinessReport(ctx context.Context, period string) (*domain.BIReport, error) {
	return s.reports.BusinessReport(ctx, period)
}

// Invalidate deletes the cache entries a selector matches.
func (s *SearchService) Invalidate(ctx context.Context, sel cache.Selector) (int, error) {
	if sel.IsEmpty() {
		return 0, apperrors.InvalidInput("at least one of pattern, product_ids, category_ids or vendor_ids is required")
	}
	return s.cache.Invalidate(ctx, sel), nil
}

// InvalidateAll empties every cache tier. Analytics counters are kept.
func (s *SearchService) InvalidateAll(ctx context.Context) int {
	return s.cache.InvalidateAll(ctx)
}

// WarmCache pre-populates the cache for the given queries, or for the
// current popular queries when none are given.
func (s *SearchService) WarmCache(ctx context.Context, queries []string) (cache.WarmReport, error) {
	if len(queries) == 0 {
		popular, err := s.reports.Popular(ctx, defaultWarmQueries)
		if err != nil {
			return cache.WarmReport{}, fmt.Errorf("load popular queries: %w", err)
		}
		for _, p := range popular {
			queries = append(queries, p.Query)
		}
	}

	return s.cache.Warm(ctx, s.searcher, queries), nil
}

// CacheStats returns the cache counters of this process.
func (s *SearchService) CacheStats() cache.Stats {
	return s.cache.Stats()
}

// IndexProduct adds or replaces a product in the writable index and drops
// the cache entries of its category and vendor.
func (s *SearchService) IndexProduct(ctx context.Context, product *domain.Product) error {
	if s.indexer == nil {
		return apperrors.ServiceUnavailable("search index is read-only", nil)
	}
	if err := validateProduct(product); err != nil {
		return err
	}

	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	if product.Tags == nil {
		product.Tags = []string{}
	}

	if err := s.indexer.Index(ctx, product); err != nil {
		return fmt.Errorf("index product: %w", err)
	}
	s.invalidateProducts(ctx, *product)

	s.logger.InfoContext(ctx, "product indexed",
		slog.String("product_id", product.ID),
		slog.String("name", product.Name),
	)
	return nil
}

// DeleteProduct removes a product from the writable index.
func (s *SearchService) DeleteProduct(ctx context.Context, id string) error {
	if s.indexer == nil {
		return apperrors.ServiceUnavailable("search index is read-only", nil)
	}
	if id == "" {
		return apperrors.InvalidInput("product id is required")
	}

	existing := domain.Product{ID: id}
	if s.catalog != nil {
		if found, err := s.catalog.GetByIDs(ctx, []string{id}); err == nil && len(found) == 1 {
			existing = found[0]
		}
	}

	if err := s.indexer.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	s.invalidateProducts(ctx, existing)

	s.logger.InfoContext(ctx, "product deleted from index",
		slog.String("product_id", id),
	)
	return nil
}

// BulkIndex indexes many products at once. Products without an ID or name
// are skipped. It returns how many were indexed.
func (s *SearchService) BulkIndex(ctx context.Context, products []domain.Product) (int, error) {
	if s.indexer == nil {
		return 0, apperrors.ServiceUnavailable("search index is read-only", nil)
	}

	now := time.Now().UTC()
	valid := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if validateProduct(&p) != nil {
			continue
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		p.UpdatedAt = now
		if p.Tags == nil {
			p.Tags = []string{}
		}
		valid = append(valid, p)
	}
	if len(valid) == 0 {
		return 0, nil
	}

	if err := s.indexer.BulkIndex(ctx, valid); err != nil {
		return 0, fmt.Errorf("bulk index: %w", err)
	}
	s.invalidateProducts(ctx, valid...)

	s.logger.InfoContext(ctx, "bulk index completed",
		slog.Int("count", len(valid)),
		slog.Int("skipped", len(products)-len(valid)),
	)
	return len(valid), nil
}

func (s *SearchService) invalidateProducts(ctx context.Context, products ...domain.Product) {
	var sel cache.Selector
	seen := make(map[string]struct{})
	add := func(dst *[]string, kind, v string) {
		if v == "" {
			return
		}
		if _, ok := seen[kind+v]; ok {
			return
		}
		seen[kind+v] = struct{}{}
		*dst = append(*dst, v)
	}
	for _, p := range products {
		add(&sel.ProductIDs, "p", p.ID)
		add(&sel.CategoryIDs, "c", p.CategoryID)
		add(&sel.VendorIDs, "v", p.VendorID)
	}
	if sel.IsEmpty() {
		return
	}
	n := s.cache.Invalidate(ctx, sel)
	s.logger.DebugContext(ctx, "catalog change invalidated cache",
		slog.Int("products", len(products)),
		slog.Int("deleted", n),
	)
}

func validateProduct(p *domain.Product) error {
	if p == nil || p.ID == "" {
		return apperrors.InvalidInput("product id is required")
	}
	if p.Name == "" {
		return apperrors.InvalidInput("product name is required")
	}
	if p.Status != "" && !domain.IsValidStatus(p.Status) {
		return apperrors.InvalidInput(fmt.Sprintf("unknown product status %q", p.Status))
	}
	return nil
}
