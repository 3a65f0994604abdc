package search

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/productsearch/internal/domain"
	"github.com/utafrali/productsearch/internal/engine"
	textmem "github.com/utafrali/productsearch/internal/engine/memory"
	vecmem "github.com/utafrali/productsearch/internal/vector/memory"
	apperrors "github.com/utafrali/productsearch/pkg/errors"
)

var errDown = errors.New("connection refused")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// downText is a text engine whose every call fails.
type downText struct{}

func (downText) Search(context.Context, engine.TextQuery) (*engine.TextResult, error) {
	return nil, errDown
}
func (downText) GetByIDs(context.Context, []string) ([]domain.Product, error) { return nil, errDown }
func (downText) FacetCounts(context.Context, domain.QuerySpec, string) ([]domain.FacetValue, error) {
	return nil, errDown
}
func (downText) Suggest(context.Context, string, int) (*engine.SuggestCandidates, error) {
	return nil, errDown
}
func (downText) Ping(context.Context) error { return errDown }

func catalog() []domain.Product {
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	mk := func(id, name, desc, cat, catName, vendor, vendorName string, price int64, age time.Duration) domain.Product {
		return domain.Product{
			ID: id, Name: name, Description: desc,
			CategoryID: cat, CategoryName: catName,
			VendorID: vendor, VendorName: vendorName,
			Price: price, Currency: "USD", Status: domain.StatusPublished, Stock: 5,
			CreatedAt: now.Add(-age), UpdatedAt: now.Add(-age),
		}
	}
	return []domain.Product{
		mk("lap-1", "Budget Laptop", "portable laptop for students", "c-laptops", "Laptops", "v-acme", "Acme", 50000, 3*time.Hour),
		mk("lap-2", "Office Laptop", "light laptop for office work", "c-laptops", "Laptops", "v-globex", "Globex", 90000, 2*time.Hour),
		mk("lap-3", "Gaming Laptop", "fast laptop with dedicated graphics", "c-laptops", "Laptops", "v-acme", "Acme", 150000, time.Hour),
		mk("mug-1", "Coffee Mug", "ceramic mug", "c-kitchen", "Kitchen", "v-globex", "Globex", 200000, 0),
	}
}

type fixture struct {
	text    *textmem.Engine
	vectors *vecmem.Store
	orch    *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	text := textmem.New()
	vectors := vecmem.New()
	require.NoError(t, text.BulkIndex(ctx, catalog()))
	require.NoError(t, vectors.Upsert(ctx, catalog()...))
	return &fixture{
		text:    text,
		vectors: vectors,
		orch:    New(text, vectors, DefaultConfig(), testLogger()),
	}
}

func priceMax(v int64) *int64 { return &v }

func TestSearch_LaptopsUnderPriceCap(t *testing.T) {
	f := newFixture(t)

	for _, mode := range []domain.SearchMode{domain.ModeHybrid, domain.ModeText, domain.ModeSemantic} {
		t.Run(string(mode), func(t *testing.T) {
			page := f.orch.Search(context.Background(), domain.QuerySpec{
				Text:     "laptop",
				PriceMax: priceMax(100000),
				Mode:     mode,
				Page:     1,
				PageSize: 20,
			})

			require.Len(t, page.Results, 2)
			assert.Equal(t, 2, page.TotalCount)
			assert.False(t, page.Degraded)
			for _, h := range page.Results {
				assert.LessOrEqual(t, h.Price, int64(100000))
			}
			assert.GreaterOrEqual(t, page.Results[0].Score, page.Results[1].Score)
		})
	}
}

func TestSearch_HybridTagsBothEngines(t *testing.T) {
	f := newFixture(t)

	page := f.orch.Search(context.Background(), domain.QuerySpec{Text: "laptop", PriceMax: priceMax(100000)})
	require.NotEmpty(t, page.Results)
	for _, h := range page.Results {
		assert.Equal(t, domain.MatchHybrid, h.MatchType)
	}
	assert.Equal(t, domain.ModeHybrid, page.Mode)
}

func TestSearch_ScoresBounded(t *testing.T) {
	f := newFixture(t)

	for _, text := range []string{"laptop", "gaming laptop", "mug", ""} {
		page := f.orch.Search(context.Background(), domain.QuerySpec{Text: text})
		for _, h := range page.Results {
			assert.GreaterOrEqual(t, h.Score, 0.0, text)
			assert.LessOrEqual(t, h.Score, 1.0, text)
		}
	}
}

func TestSearch_Idempotent(t *testing.T) {
	f := newFixture(t)
	spec := domain.QuerySpec{Text: "laptop", Categories: []string{"c-laptops"}}

	first := f.orch.Search(context.Background(), spec)
	second := f.orch.Search(context.Background(), spec)

	assert.Equal(t, first.Results, second.Results)
	assert.Equal(t, first.TotalCount, second.TotalCount)
	assert.Equal(t, first.Facets, second.Facets)
}

func TestSearch_FilterOnlyNewestFirst(t *testing.T) {
	f := newFixture(t)

	page := f.orch.Search(context.Background(), domain.QuerySpec{Categories: []string{"c-laptops"}})
	require.Len(t, page.Results, 3)
	assert.Equal(t, []string{"lap-3", "lap-2", "lap-1"}, ids(page.Results))
	assert.Equal(t, 3, page.TotalCount)
	for _, h := range page.Results {
		assert.Equal(t, domain.MatchText, h.MatchType)
	}
}

func TestSearch_ExplicitSortAfterFusion(t *testing.T) {
	f := newFixture(t)

	page := f.orch.Search(context.Background(), domain.QuerySpec{Text: "laptop", Sort: domain.SortPriceDesc})
	require.Len(t, page.Results, 3)
	assert.Equal(t, []string{"lap-3", "lap-2", "lap-1"}, ids(page.Results))
}

func TestSearch_Pagination(t *testing.T) {
	f := newFixture(t)

	page := f.orch.Search(context.Background(), domain.QuerySpec{Text: "laptop", Page: 2, PageSize: 2})
	assert.Equal(t, 3, page.TotalCount)
	assert.Len(t, page.Results, 1)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 2, page.PageSize)
}

func TestSearch_HugePageIsClampedNotOverflowed(t *testing.T) {
	f := newFixture(t)

	for _, mode := range []domain.SearchMode{domain.ModeHybrid, domain.ModeSemantic, domain.ModeText} {
		t.Run(string(mode), func(t *testing.T) {
			var page *domain.SearchResultPage
			require.NotPanics(t, func() {
				page = f.orch.Search(context.Background(), domain.QuerySpec{
					Text: "laptop", Mode: mode, Page: 1<<62 + 1, PageSize: 2,
				})
			})
			assert.Equal(t, domain.MaxPage, page.Page)
			assert.NotNil(t, page.Results)
			assert.Empty(t, page.Results)
		})
	}
}

func TestPaginate_NegativeOffset(t *testing.T) {
	hits := []domain.SearchHit{{ID: "a"}, {ID: "b"}}

	got := paginate(hits, domain.QuerySpec{Page: 1<<62 + 1, PageSize: 2})
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestSearch_VectorDownServesText(t *testing.T) {
	f := newFixture(t)
	f.vectors.SetFailure(errDown)

	page := f.orch.Search(context.Background(), domain.QuerySpec{Text: "laptop", PriceMax: priceMax(100000)})
	assert.True(t, page.Degraded)
	require.Len(t, page.Results, 2)
	assert.Equal(t, 2, page.TotalCount)
	for _, h := range page.Results {
		assert.Equal(t, domain.MatchText, h.MatchType)
	}
}

func TestSearch_TextDownServesSemantic(t *testing.T) {
	vectors := vecmem.New()
	require.NoError(t, vectors.Upsert(context.Background(), catalog()...))
	orch := New(downText{}, vectors, DefaultConfig(), testLogger())

	page := orch.Search(context.Background(), domain.QuerySpec{Text: "laptop", PriceMax: priceMax(100000)})
	assert.True(t, page.Degraded)
	require.NotEmpty(t, page.Results)
	for _, h := range page.Results {
		assert.Equal(t, domain.MatchSemantic, h.MatchType)
		assert.LessOrEqual(t, h.Price, int64(100000))
	}
	assert.Empty(t, page.Facets)
}

func TestSearch_AllEnginesDown(t *testing.T) {
	vectors := vecmem.New()
	vectors.SetFailure(errDown)
	orch := New(downText{}, vectors, DefaultConfig(), testLogger())

	page := orch.Search(context.Background(), domain.QuerySpec{Text: "laptop"})
	assert.True(t, page.Degraded)
	assert.Equal(t, 0, page.TotalCount)
	assert.NotNil(t, page.Results)
	assert.Empty(t, page.Results)
	assert.NotNil(t, page.Facets)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, domain.DefaultPageSize, page.PageSize)
}

func TestSearch_ZeroResultsAttachSuggestions(t *testing.T) {
	f := newFixture(t)

	page := f.orch.Search(context.Background(), domain.QuerySpec{Text: "laptop", Categories: []string{"c-none"}})
	assert.Equal(t, 0, page.TotalCount)
	assert.Contains(t, page.Suggestions, "Budget Laptop")
	assert.LessOrEqual(t, len(page.Suggestions), 5)
}

func TestFacets_CountsWithOwnFilterRemoved(t *testing.T) {
	f := newFixture(t)

	facets := f.orch.Facets(context.Background(), domain.QuerySpec{Categories: []string{"c-laptops"}})
	require.Len(t, facets, len(domain.FacetDimensions()))

	var category, vendor domain.Facet
	for _, fc := range facets {
		switch fc.Name {
		case domain.FacetCategory:
			category = fc
		case domain.FacetVendor:
			vendor = fc
		}
	}

	require.Len(t, category.Values, 2)
	assert.Equal(t, domain.FacetValue{Value: "c-laptops", Label: "Laptops", Count: 3, Selected: true}, category.Values[0])
	assert.Equal(t, domain.FacetValue{Value: "c-kitchen", Label: "Kitchen", Count: 1}, category.Values[1])
	assert.Equal(t, "Category", category.DisplayName)

	// The vendor facet keeps the category filter.
	total := 0
	for _, v := range vendor.Values {
		total += v.Count
		assert.False(t, v.Selected)
	}
	assert.Equal(t, 3, total)
}

func TestSearchWithFacets_ReusesGivenFacets(t *testing.T) {
	f := newFixture(t)
	given := []domain.Facet{{Name: domain.FacetCategory, DisplayName: "Category"}}

	page := f.orch.SearchWithFacets(context.Background(), domain.QuerySpec{Text: "laptop", Mode: domain.ModeText}, given)
	assert.Equal(t, given, page.Facets)
	assert.Equal(t, 3, page.TotalCount)
}

func TestFacets_PriceBucketSelection(t *testing.T) {
	spec := domain.QuerySpec{PriceMax: priceMax(100000)}
	assert.True(t, isSelected(spec, domain.FacetPriceRange, "50000-100000"))
	assert.True(t, isSelected(spec, domain.FacetPriceRange, "0-2500"))
	assert.False(t, isSelected(spec, domain.FacetPriceRange, "100000+"))
	assert.False(t, isSelected(domain.QuerySpec{}, domain.FacetPriceRange, "0-2500"))
}

func TestAutocomplete_Boundary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.Empty(t, f.orch.Autocomplete(ctx, "", 10))
	assert.Empty(t, f.orch.Autocomplete(ctx, "l", 10))
	assert.Empty(t, f.orch.Autocomplete(ctx, "  l  ", 10))
	assert.NotEmpty(t, f.orch.Autocomplete(ctx, "la", 10))
	assert.NotEmpty(t, f.orch.Autocomplete(ctx, " la ", 10))
}

func TestAutocomplete_RankingAndDedup(t *testing.T) {
	ctx := context.Background()
	text := textmem.New()
	now := time.Now()
	require.NoError(t, text.BulkIndex(ctx, []domain.Product{
		{ID: "1", Name: "Laptop Pro", CategoryName: "Laptops", VendorName: "Laptopia", Status: domain.StatusPublished, CreatedAt: now},
		{ID: "2", Name: "Gaming Laptop", CategoryName: "Laptops", VendorName: "Acme", Status: domain.StatusPublished, CreatedAt: now},
		{ID: "3", Name: "laptops", CategoryName: "Bags", VendorName: "Acme", Status: domain.StatusPublished, CreatedAt: now},
	}))
	orch := New(text, vecmem.New(), DefaultConfig(), testLogger())

	got := orch.Autocomplete(ctx, "lap", 10)
	require.Len(t, got, 4)

	assert.Equal(t, domain.Suggestion{Text: "Laptop Pro", Type: domain.SuggestionProduct, Score: 0.9}, got[0])
	// "laptops" the product (0.9) beats "Laptops" the category (0.8).
	assert.Equal(t, domain.Suggestion{Text: "laptops", Type: domain.SuggestionProduct, Score: 0.9}, got[1])
	assert.Equal(t, domain.Suggestion{Text: "Gaming Laptop", Type: domain.SuggestionProduct, Score: 0.7}, got[2])
	assert.Equal(t, domain.Suggestion{Text: "Laptopia", Type: domain.SuggestionVendor, Score: 0.6}, got[3])

	assert.Len(t, orch.Autocomplete(ctx, "lap", 2), 2)
}

func TestAutocomplete_LimitClamp(t *testing.T) {
	assert.Equal(t, DefaultSuggestLimit, ClampSuggestLimit(0))
	assert.Equal(t, MaxSuggestLimit, ClampSuggestLimit(500))
	assert.Equal(t, 7, ClampSuggestLimit(7))
}

func TestAutocomplete_EngineDown(t *testing.T) {
	orch := New(downText{}, vecmem.New(), DefaultConfig(), testLogger())
	assert.Empty(t, orch.Autocomplete(context.Background(), "laptop", 10))
}

func TestSimilar_ExcludesSelfAndSameVendor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	hits, err := f.orch.Similar(ctx, "lap-1", 10, false)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	for _, h := range hits {
		assert.NotEqual(t, "lap-1", h.ID)
		assert.Equal(t, domain.MatchSemantic, h.MatchType)
	}

	hits, err = f.orch.Similar(ctx, "lap-1", 10, true)
	require.NoError(t, err)
	for _, h := range hits {
		assert.NotEqual(t, "v-acme", h.VendorID)
	}
}

func TestSimilar_UnknownProduct(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.Similar(context.Background(), "nope", 5, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestSimilar_VectorDownFallsBackToText(t *testing.T) {
	f := newFixture(t)
	f.vectors.SetFailure(errDown)

	hits, err := f.orch.Similar(context.Background(), "lap-1", 5, false)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	for _, h := range hits {
		assert.NotEqual(t, "lap-1", h.ID)
		assert.Equal(t, domain.MatchText, h.MatchType)
	}
}

func TestFallbackQueries(t *testing.T) {
	p := &domain.Product{Name: "Budget Laptop", Description: "A portable laptop, for students."}
	assert.Equal(t, []string{"Budget Laptop", "budget", "laptop", "portable", "students"}, fallbackQueries(p))
	assert.Empty(t, fallbackQueries(&domain.Product{}))
}
