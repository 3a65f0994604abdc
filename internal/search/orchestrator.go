// Package search runs hybrid product search: a filtered text query and a
// vector-similarity query, executed concurrently and fused into one ranked
// page. Every collaborator failure degrades the answer instead of failing it.
package search

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/utafrali/productsearch/internal/domain"
	"github.com/utafrali/productsearch/internal/engine"
	"github.com/utafrali/productsearch/internal/vector"
	"github.com/utafrali/productsearch/pkg/tracing"
)

const zeroResultSuggestions = 5

// Config tunes the orchestrator.
type Config struct {
	Weights         Weights
	SubqueryTimeout time.Duration
	MaxCandidates   int
}

// DefaultConfig returns equal weights, an 800 ms sub-query budget and a
// 200-candidate fusion window.
func DefaultConfig() Config {
	return Config{
		Weights:         DefaultWeights(),
		SubqueryTimeout: 800 * time.Millisecond,
		MaxCandidates:   200,
	}
}

// Orchestrator is stateless per call and safe for concurrent use.
type Orchestrator struct {
	text    engine.TextEngine
	vectors vector.Store
	cfg     Config
	logger  *slog.Logger
	tracer  trace.Tracer
}

// New creates an Orchestrator. Zero config fields take their defaults.
func New(text engine.TextEngine, vectors vector.Store, cfg Config, logger *slog.Logger) *Orchestrator {
	def := DefaultConfig()
	if cfg.Weights == (Weights{}) {
		cfg.Weights = def.Weights
	}
	if cfg.SubqueryTimeout <= 0 {
		cfg.SubqueryTimeout = def.SubqueryTimeout
	}
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = def.MaxCandidates
	}
	return &Orchestrator{
		text:    text,
		vectors: vectors,
		cfg:     cfg,
		logger:  logger,
		tracer:  tracing.Tracer("productsearch/search"),
	}
}

// Search answers a query. It never fails: a failed engine contributes no
// signal, and when nothing could be retrieved the page is empty and marked
// degraded.
func (o *Orchestrator) Search(ctx context.Context, spec domain.QuerySpec) *domain.SearchResultPage {
	return o.SearchWithFacets(ctx, spec, nil)
}

// SearchWithFacets is Search with precomputed facets. A nil facets slice
// computes them alongside the page.
func (o *Orchestrator) SearchWithFacets(ctx context.Context, spec domain.QuerySpec, facets []domain.Facet) *domain.SearchResultPage {
	start := time.Now()
	spec = spec.Normalize()

	ctx, span := o.tracer.Start(ctx, "search.Search", trace.WithAttributes(
		attribute.String("search.mode", string(spec.Mode)),
		attribute.Bool("search.has_text", spec.HasText()),
		attribute.Int("search.page", spec.Page),
	))
	defer span.End()

	var page *domain.SearchResultPage
	// Page and facets are independent; neither may cancel the other.
	var g errgroup.Group
	g.Go(func() error {
		page = o.searchPage(ctx, spec)
		return nil
	})
	if facets == nil {
		g.Go(func() error {
			facets = o.Facets(ctx, spec)
			return nil
		})
	}
	_ = g.Wait()

	page.Facets = facets
	if spec.HasText() && page.TotalCount == 0 {
		for _, s := range o.Autocomplete(ctx, spec.Text, zeroResultSuggestions) {
			page.Suggestions = append(page.Suggestions, s.Text)
		}
	}
	page.ElapsedMs = time.Since(start).Milliseconds()

	span.SetAttributes(
		attribute.Int("search.total_count", page.TotalCount),
		attribute.Bool("search.degraded", page.Degraded),
	)
	return page
}

func (o *Orchestrator) searchPage(ctx context.Context, spec domain.QuerySpec) *domain.SearchResultPage {
	switch {
	case !spec.HasText(), spec.Mode == domain.ModeText:
		return o.textPage(ctx, spec)
	case spec.Mode == domain.ModeSemantic:
		return o.semanticPage(ctx, spec)
	case spec.Offset() >= o.cfg.MaxCandidates:
		// Beyond the fusion window pages come straight from the text engine.
		return o.textPage(ctx, spec)
	default:
		return o.hybridPage(ctx, spec)
	}
}

// textPage serves text mode and filter-only queries from the text engine.
func (o *Orchestrator) textPage(ctx context.Context, spec domain.QuerySpec) *domain.SearchResultPage {
	res, err := o.searchText(ctx, spec, spec.Offset(), spec.PageSize)
	if err != nil {
		o.logger.WarnContext(ctx, "text engine unavailable", slog.String("error", err.Error()))
		if spec.HasText() && spec.Mode == domain.ModeHybrid {
			page := o.semanticPage(ctx, spec)
			page.Degraded = true
			return page
		}
		return o.degradedPage(spec)
	}

	page := domain.EmptyPage(spec)
	page.Results = scoreTextHits(res.Hits)
	page.TotalCount = res.Total
	return page
}

// semanticPage serves semantic mode. Candidates are hydrated through the text
// engine, post-filtered and paginated in memory.
func (o *Orchestrator) semanticPage(ctx context.Context, spec domain.QuerySpec) *domain.SearchResultPage {
	k := o.candidateCount(spec)
	hits, err := o.queryVectors(ctx, vector.Query{Text: spec.Text, K: k, Filter: vector.FilterFromSpec(spec)})
	if err != nil {
		o.logger.WarnContext(ctx, "vector store unavailable, serving text results", slog.String("error", err.Error()))
		res, terr := o.searchText(ctx, spec, spec.Offset(), spec.PageSize)
		if terr != nil {
			o.logger.WarnContext(ctx, "text engine unavailable", slog.String("error", terr.Error()))
			return o.degradedPage(spec)
		}
		page := domain.EmptyPage(spec)
		page.Results = scoreTextHits(res.Hits)
		page.TotalCount = res.Total
		page.Degraded = true
		return page
	}

	products, degraded := o.hydrate(ctx, hits, nil)
	filterProducts(products, spec)
	ranked := scoreSemanticHits(hits, products)
	applySort(ranked, spec.Sort)

	page := domain.EmptyPage(spec)
	page.Results = paginate(ranked, spec)
	page.TotalCount = len(ranked)
	page.Degraded = degraded
	return page
}

// hybridPage runs both engines concurrently over a candidate superset of the
// requested page and fuses the results.
func (o *Orchestrator) hybridPage(ctx context.Context, spec domain.QuerySpec) *domain.SearchResultPage {
	k := o.candidateCount(spec)

	var (
		textRes *engine.TextResult
		semHits []domain.SemanticHit
		textErr error
		semErr  error
	)
	var g errgroup.Group
	g.Go(func() error {
		textRes, textErr = o.searchText(ctx, spec, 0, k)
		return nil
	})
	g.Go(func() error {
		semHits, semErr = o.queryVectors(ctx, vector.Query{Text: spec.Text, K: k, Filter: vector.FilterFromSpec(spec)})
		return nil
	})
	_ = g.Wait()

	switch {
	case textErr != nil && semErr != nil:
		o.logger.WarnContext(ctx, "all search engines unavailable",
			slog.String("text_error", textErr.Error()),
			slog.String("vector_error", semErr.Error()),
		)
		return o.degradedPage(spec)

	case semErr != nil:
		o.logger.WarnContext(ctx, "vector store unavailable, serving text results", slog.String("error", semErr.Error()))
		ranked := scoreTextHits(textRes.Hits)
		applySort(ranked, spec.Sort)
		page := domain.EmptyPage(spec)
		page.Results = paginate(ranked, spec)
		page.TotalCount = textRes.Total
		page.Degraded = true
		return page

	case textErr != nil:
		o.logger.WarnContext(ctx, "text engine unavailable, serving semantic results", slog.String("error", textErr.Error()))
		products := metadataProducts(semHits)
		filterProducts(products, spec)
		ranked := scoreSemanticHits(semHits, products)
		applySort(ranked, spec.Sort)
		page := domain.EmptyPage(spec)
		page.Results = paginate(ranked, spec)
		page.TotalCount = len(ranked)
		page.Degraded = true
		return page
	}

	known := make(map[string]struct{}, len(textRes.Hits))
	for _, h := range textRes.Hits {
		known[h.Product.ID] = struct{}{}
	}
	products, _ := o.hydrate(ctx, semHits, known)
	filterProducts(products, spec)

	fused := Fuse(textRes.Hits, semHits, products, o.cfg.Weights)
	applySort(fused, spec.Sort)

	page := domain.EmptyPage(spec)
	page.Results = paginate(fused, spec)
	page.TotalCount = max(textRes.Total, len(fused))
	return page
}

// hydrate loads the products behind semantic hits, skipping IDs in known.
// When the text engine fails it falls back to the vector store's metadata
// and reports degraded.
func (o *Orchestrator) hydrate(ctx context.Context, hits []domain.SemanticHit, known map[string]struct{}) (map[string]domain.Product, bool) {
	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		if _, ok := known[h.ProductID]; !ok {
			ids = append(ids, h.ProductID)
		}
	}
	if len(ids) == 0 {
		return map[string]domain.Product{}, false
	}

	ctx, cancel := context.WithTimeout(ctx, o.cfg.SubqueryTimeout)
	defer cancel()
	ctx, span := o.tracer.Start(ctx, "search.hydrate", trace.WithAttributes(attribute.Int("search.ids", len(ids))))
	defer span.End()

	loaded, err := o.text.GetByIDs(ctx, ids)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.logger.WarnContext(ctx, "hydration failed, using vector metadata", slog.String("error", err.Error()))
		products := metadataProducts(hits)
		for id := range known {
			delete(products, id)
		}
		return products, true
	}

	products := make(map[string]domain.Product, len(loaded))
	for _, p := range loaded {
		products[p.ID] = p
	}
	return products, false
}

func (o *Orchestrator) searchText(ctx context.Context, spec domain.QuerySpec, offset, limit int) (*engine.TextResult, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.SubqueryTimeout)
	defer cancel()
	ctx, span := o.tracer.Start(ctx, "search.text", trace.WithAttributes(
		attribute.Int("search.offset", offset),
		attribute.Int("search.limit", limit),
	))
	defer span.End()

	res, err := o.text.Search(ctx, engine.TextQuery{Spec: spec, Offset: offset, Limit: limit})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return res, nil
}

func (o *Orchestrator) queryVectors(ctx context.Context, q vector.Query) ([]domain.SemanticHit, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.SubqueryTimeout)
	defer cancel()
	ctx, span := o.tracer.Start(ctx, "search.vector", trace.WithAttributes(attribute.Int("search.k", q.K)))
	defer span.End()

	hits, err := o.vectors.Query(ctx, q)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return hits, nil
}

// candidateCount is the per-engine window used for fusion: twice the depth
// of the requested page, capped.
func (o *Orchestrator) candidateCount(spec domain.QuerySpec) int {
	return min(spec.Page*spec.PageSize*2, o.cfg.MaxCandidates)
}

func (o *Orchestrator) degradedPage(spec domain.QuerySpec) *domain.SearchResultPage {
	page := domain.EmptyPage(spec)
	page.Degraded = true
	return page
}

// metadataProducts collects the partial products carried by semantic hits.
func metadataProducts(hits []domain.SemanticHit) map[string]domain.Product {
	products := make(map[string]domain.Product, len(hits))
	for _, h := range hits {
		if h.Product != nil {
			products[h.ProductID] = *h.Product
		}
	}
	return products
}

// filterProducts drops products failing the query's structured filters.
func filterProducts(products map[string]domain.Product, spec domain.QuerySpec) {
	for id, p := range products {
		if !spec.Matches(&p) {
			delete(products, id)
		}
	}
}

func paginate(hits []domain.SearchHit, spec domain.QuerySpec) []domain.SearchHit {
	offset := spec.Offset()
	if offset < 0 || offset >= len(hits) {
		return []domain.SearchHit{}
	}
	end := min(offset+spec.PageSize, len(hits))
	return hits[offset:end]
}
