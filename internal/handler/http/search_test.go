package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/productsearch/internal/cache"
	"github.com/utafrali/productsearch/internal/domain"
	textmem "github.com/utafrali/productsearch/internal/engine/memory"
	"github.com/utafrali/productsearch/internal/search"
	"github.com/utafrali/productsearch/internal/service"
	vecmem "github.com/utafrali/productsearch/internal/vector/memory"
	"github.com/utafrali/productsearch/pkg/health"
	"github.com/utafrali/productsearch/pkg/httputil"
	"github.com/utafrali/productsearch/pkg/middleware"
)

// =============================================================================
// Test doubles
// =============================================================================

type recordingSink struct {
	mu     sync.Mutex
	events []domain.AnalyticsEvent
}

func (r *recordingSink) Track(ev domain.AnalyticsEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingSink) all() []domain.AnalyticsEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.AnalyticsEvent(nil), r.events...)
}

type stubReports struct {
	popular []domain.PopularQuery
}

func (s *stubReports) Dashboard(_ context.Context, days int) (*domain.DashboardMetrics, error) {
	return &domain.DashboardMetrics{Days: days}, nil
}

func (s *stubReports) QueryInsights(_ context.Context, q string, days int) (*domain.QueryInsights, error) {
	return &domain.QueryInsights{Query: q, Days: days}, nil
}

func (s *stubReports) BusinessReport(_ context.Context, period string) (*domain.BIReport, error) {
	return &domain.BIReport{Period: period}, nil
}

func (s *stubReports) Trending(context.Context, int, string) ([]domain.TrendingQuery, error) {
	return []domain.TrendingQuery{{Query: "laptop", Count: 3}}, nil
}

func (s *stubReports) Popular(context.Context, int) ([]domain.PopularQuery, error) {
	return s.popular, nil
}

// =============================================================================
// Fixture
// =============================================================================

type envelope struct {
	Data  json.RawMessage         `json:"data"`
	Error *httputil.ErrorResponse `json:"error"`
}

type testServer struct {
	router  http.Handler
	mr      *miniredis.Miniredis
	sink    *recordingSink
	reports *stubReports
}

type serverOption func(*RouterConfig, *service.Deps)

func withAdminToken(token string) serverOption {
	return func(cfg *RouterConfig, _ *service.Deps) { cfg.AdminToken = token }
}

func readOnly() serverOption {
	return func(_ *RouterConfig, deps *service.Deps) { deps.Indexer = nil }
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func catalog() []domain.Product {
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	mk := func(id, name, cat, catName, vendor, vendorName string, price int64, age time.Duration) domain.Product {
		return domain.Product{
			ID: id, Name: name, Description: name + " for everyday use",
			CategoryID: cat, CategoryName: catName,
			VendorID: vendor, VendorName: vendorName,
			Price: price, Currency: "USD", Status: domain.StatusPublished, Stock: 4,
			CreatedAt: now.Add(-age), UpdatedAt: now.Add(-age),
		}
	}
	return []domain.Product{
		mk("lap-1", "Budget Laptop", "c-laptops", "Laptops", "v-acme", "Acme", 50000, 3*time.Hour),
		mk("lap-2", "Office Laptop", "c-laptops", "Laptops", "v-globex", "Globex", 90000, 2*time.Hour),
		mk("lap-3", "Gaming Laptop", "c-laptops", "Laptops", "v-acme", "Acme", 150000, time.Hour),
		mk("mug-1", "Coffee Mug", "c-kitchen", "Kitchen", "v-globex", "Globex", 1500, 0),
	}
}

func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()
	ctx := context.Background()

	text := textmem.New()
	vectors := vecmem.New()
	require.NoError(t, text.BulkIndex(ctx, catalog()))
	require.NoError(t, vectors.Upsert(ctx, catalog()...))

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	c := cache.New(client, testLogger())
	sink := &recordingSink{}
	reports := &stubReports{}
	deps := service.Deps{
		Searcher:  search.New(text, vectors, search.DefaultConfig(), testLogger()),
		Cache:     c,
		Analytics: sink,
		Reports:   reports,
		Catalog:   text,
		Indexer:   text,
		Logger:    testLogger(),
	}
	cfg := RouterConfig{
		ServiceName: "search-test",
		CORS:        middleware.DefaultCORSConfig(),
		CacheMaxAge: 60,
	}
	for _, opt := range opts {
		opt(&cfg, &deps)
	}

	healthHandler := health.NewHandler()
	healthHandler.RegisterNonCritical("catalog", text.Ping)
	healthHandler.RegisterNonCritical("vector_store", vectors.Ping)
	healthHandler.RegisterNonCritical("cache_store", c.Ping)

	return &testServer{
		router:  NewRouter(service.NewSearchService(deps), healthHandler, cfg, testLogger()),
		mr:      mr,
		sink:    sink,
		reports: reports,
	}
}

func (s *testServer) do(t *testing.T, method, target, body string, headers ...string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

// =============================================================================
// Search
// =============================================================================

func TestSearch_PriceCeiling(t *testing.T) {
	srv := newTestServer(t)

	rec, env := srv.do(t, http.MethodPost, "/api/v1/search",
		`{"text":"laptop","price_max":100000,"mode":"text","page":1,"page_size":20}`)

	require.Equal(t, http.StatusOK, rec.Code)
	page := decodeData[domain.SearchResultPage](t, env)
	assert.Equal(t, 2, page.TotalCount)
	require.Len(t, page.Results, 2)
	for _, hit := range page.Results {
		assert.LessOrEqual(t, hit.Price, int64(100000))
		assert.GreaterOrEqual(t, hit.Score, 0.0)
		assert.LessOrEqual(t, hit.Score, 1.0)
	}
}

func TestSearch_QueryParamsOverrideBodyPaging(t *testing.T) {
	srv := newTestServer(t)

	rec, env := srv.do(t, http.MethodPost, "/api/v1/search?page=2&page_size=1",
		`{"text":"laptop","mode":"text","page":1,"page_size":50}`)

	require.Equal(t, http.StatusOK, rec.Code)
	page := decodeData[domain.SearchResultPage](t, env)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 1, page.PageSize)
	assert.Equal(t, 3, page.TotalCount)
	assert.Len(t, page.Results, 1)
}

func TestSearch_TracksRequestMeta(t *testing.T) {
	srv := newTestServer(t)

	rec, _ := srv.do(t, http.MethodPost, "/api/v1/search", `{"text":"mug","mode":"text"}`,
		"X-User-ID", "u-42", "X-Search-Source", domain.SourceMobile)
	require.Equal(t, http.StatusOK, rec.Code)

	events := srv.sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, "mug", events[0].Query)
	assert.Equal(t, "u-42", events[0].UserID)
	assert.Equal(t, "registered", events[0].UserType)
	assert.Equal(t, domain.SourceMobile, events[0].Source)
}

func TestSearch_DefaultSourceIsWeb(t *testing.T) {
	srv := newTestServer(t)

	rec, _ := srv.do(t, http.MethodGet, "/api/v1/search?q=mug&mode=text", "")
	require.Equal(t, http.StatusOK, rec.Code)

	events := srv.sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, domain.SourceWeb, events[0].Source)
	assert.Equal(t, "anonymous", events[0].UserType)
}

func TestSearch_ValidationErrors(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{"unknown sort", `{"text":"laptop","sort":"cheapest"}`, "VALIDATION_ERROR"},
		{"unknown mode", `{"text":"laptop","mode":"fuzzy"}`, "VALIDATION_ERROR"},
		{"negative price", `{"text":"laptop","price_min":-1}`, "VALIDATION_ERROR"},
		{"unknown status", `{"statuses":["deleted"]}`, "VALIDATION_ERROR"},
		{"inverted price range", `{"price_min":500,"price_max":100}`, "INVALID_INPUT"},
		{"malformed body", `{"text":`, "INVALID_INPUT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := srv.do(t, http.MethodPost, "/api/v1/search", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.wantCode, env.Error.Code)
		})
	}
	assert.Empty(t, srv.sink.all())
}

func TestSearch_PageUpperBound(t *testing.T) {
	srv := newTestServer(t)

	rec, env := srv.do(t, http.MethodPost, "/api/v1/search?page=4611686018427387905&page_size=2",
		`{"text":"laptop"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	rec, env = srv.do(t, http.MethodGet, "/api/v1/search?q=laptop&page=10000&page_size=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	page := decodeData[domain.SearchResultPage](t, env)
	assert.Equal(t, 10000, page.Page)
	assert.Empty(t, page.Results)
}

func TestSearch_NewestAliasAccepted(t *testing.T) {
	srv := newTestServer(t)

	rec, env := srv.do(t, http.MethodPost, "/api/v1/search", `{"categories":["c-laptops"],"sort":"newest"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	page := decodeData[domain.SearchResultPage](t, env)
	require.Len(t, page.Results, 3)
	assert.Equal(t, "lap-3", page.Results[0].ID)
}

func TestSearch_RejectsNonJSONContentType(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/search", strings.NewReader(`text=laptop`))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	assert.Contains(t, rec.Body.String(), "UNSUPPORTED_MEDIA_TYPE")
}

func TestSearchQuery_Filters(t *testing.T) {
	srv := newTestServer(t)

	rec, env := srv.do(t, http.MethodGet, "/api/v1/search?q=laptop&mode=text&vendor_id=v-acme&in_stock=true", "")

	require.Equal(t, http.StatusOK, rec.Code)
	page := decodeData[domain.SearchResultPage](t, env)
	assert.Equal(t, 2, page.TotalCount)
	for _, hit := range page.Results {
		assert.Equal(t, "v-acme", hit.VendorID)
	}
}

func TestSearchQuery_BadParams(t *testing.T) {
	srv := newTestServer(t)

	for _, target := range []string{
		"/api/v1/search?q=laptop&min_price=abc",
		"/api/v1/search?q=laptop&max_price=-5",
		"/api/v1/search?q=laptop&page=two",
		"/api/v1/search?q=laptop&in_stock=maybe",
	} {
		rec, env := srv.do(t, http.MethodGet, target, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		require.NotNil(t, env.Error, target)
	}
}

func TestSearch_SecondRequestServedFromCache(t *testing.T) {
	srv := newTestServer(t)
	body := `{"text":"laptop","categories":["c-laptops"],"mode":"text"}`

	rec, _ := srv.do(t, http.MethodPost, "/api/v1/search", body)
	require.Equal(t, http.StatusOK, rec.Code)
	rec, _ = srv.do(t, http.MethodPost, "/api/v1/search", body)
	require.Equal(t, http.StatusOK, rec.Code)

	events := srv.sink.all()
	require.Len(t, events, 2)
	assert.False(t, events[0].CacheHit)
	assert.True(t, events[1].CacheHit)

	rec, env := srv.do(t, http.MethodGet, "/api/v1/cache/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decodeData[cache.Stats](t, env)
	assert.Equal(t, uint64(1), stats.Hits)
}

// =============================================================================
// Autocomplete and similar
// =============================================================================

func TestAutocomplete(t *testing.T) {
	srv := newTestServer(t)

	type payload struct {
		Query       string              `json:"query"`
		Suggestions []domain.Suggestion `json:"suggestions"`
	}

	rec, env := srv.do(t, http.MethodGet, "/api/v1/autocomplete?q=a", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeData[payload](t, env).Suggestions)

	rec, env = srv.do(t, http.MethodGet, "/api/v1/autocomplete?q=lap&limit=3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "public, max-age=60", rec.Header().Get("Cache-Control"))
	got := decodeData[payload](t, env)
	assert.Equal(t, "lap", got.Query)
	require.NotEmpty(t, got.Suggestions)
	assert.LessOrEqual(t, len(got.Suggestions), 3)
	assert.Equal(t, domain.Suggestion{Text: "Laptops", Type: domain.SuggestionCategory, Score: 0.8}, got.Suggestions[0])
}

func TestAutocomplete_BadLimit(t *testing.T) {
	srv := newTestServer(t)

	rec, env := srv.do(t, http.MethodGet, "/api/v1/autocomplete?q=lap&limit=ten", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "INVALID_INPUT", env.Error.Code)
}

func TestSimilar(t *testing.T) {
	srv := newTestServer(t)

	type payload struct {
		ProductID string             `json:"product_id"`
		Results   []domain.SearchHit `json:"results"`
	}

	rec, env := srv.do(t, http.MethodGet, "/api/v1/products/lap-1/similar?limit=2&exclude_same_vendor=true", "")

	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeData[payload](t, env)
	assert.Equal(t, "lap-1", got.ProductID)
	assert.LessOrEqual(t, len(got.Results), 2)
	for _, hit := range got.Results {
		assert.NotEqual(t, "lap-1", hit.ID)
		assert.NotEqual(t, "v-acme", hit.VendorID)
	}
}

func TestSimilar_UnknownProduct(t *testing.T) {
	srv := newTestServer(t)

	rec, env := srv.do(t, http.MethodGet, "/api/v1/products/missing/similar", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

// =============================================================================
// Analytics
// =============================================================================

func TestAnalyticsEndpoints(t *testing.T) {
	srv := newTestServer(t)
	srv.reports.popular = []domain.PopularQuery{{Query: "laptop", Count: 9}}

	rec, env := srv.do(t, http.MethodGet, "/api/v1/trending?period=week&limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "public, max-age=60", rec.Header().Get("Cache-Control"))
	trending := decodeData[[]domain.TrendingQuery](t, env)
	require.Len(t, trending, 1)
	assert.Equal(t, "laptop", trending[0].Query)

	rec, env = srv.do(t, http.MethodGet, "/api/v1/popular", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeData[[]domain.PopularQuery](t, env), 1)

	rec, env = srv.do(t, http.MethodGet, "/api/v1/analytics?days=14", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 14, decodeData[domain.DashboardMetrics](t, env).Days)

	rec, env = srv.do(t, http.MethodGet, "/api/v1/analytics/queries?q=laptop&days=3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	insights := decodeData[domain.QueryInsights](t, env)
	assert.Equal(t, "laptop", insights.Query)
	assert.Equal(t, 3, insights.Days)

	rec, env = srv.do(t, http.MethodGet, "/api/v1/analytics/report", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "week", decodeData[domain.BIReport](t, env).Period)
}

func TestPopular_EmptyIsArray(t *testing.T) {
	srv := newTestServer(t)

	rec, _ := srv.do(t, http.MethodGet, "/api/v1/popular", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":[]}`, rec.Body.String())
}

func TestAnalytics_BadDays(t *testing.T) {
	srv := newTestServer(t)

	rec, _ := srv.do(t, http.MethodGet, "/api/v1/analytics?days=week", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// Cache maintenance
// =============================================================================

func TestInvalidate_ByCategory(t *testing.T) {
	srv := newTestServer(t)

	rec, _ := srv.do(t, http.MethodPost, "/api/v1/search", `{"text":"laptop","categories":["c-laptops"],"mode":"text"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec, _ = srv.do(t, http.MethodPost, "/api/v1/search", `{"text":"mug","categories":["c-kitchen"],"mode":"text"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env := srv.do(t, http.MethodPost, "/api/v1/cache/invalidate", `{"category_ids":["c-laptops"]}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]int{"invalidated": 3}, decodeData[map[string]int](t, env))
	assert.True(t, srv.mr.Exists(cache.Key(domain.QuerySpec{Text: "mug", Categories: []string{"c-kitchen"}, Mode: domain.ModeText}, domain.TierExact)))
}

func TestInvalidate_All(t *testing.T) {
	srv := newTestServer(t)

	rec, _ := srv.do(t, http.MethodPost, "/api/v1/search", `{"text":"mug","mode":"text"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env := srv.do(t, http.MethodPost, "/api/v1/cache/invalidate", `{"all":true}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Positive(t, decodeData[map[string]int](t, env)["invalidated"])
}

func TestInvalidate_EmptySelector(t *testing.T) {
	srv := newTestServer(t)

	rec, env := srv.do(t, http.MethodPost, "/api/v1/cache/invalidate", `{}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "INVALID_INPUT", env.Error.Code)
}

func TestWarm_RunsInBackground(t *testing.T) {
	srv := newTestServer(t)
	srv.reports.popular = []domain.PopularQuery{{Query: "laptop", Count: 9}}

	rec, env := srv.do(t, http.MethodPost, "/api/v1/cache/warm", "")

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "warming", decodeData[map[string]any](t, env)["status"])
	key := cache.Key(domain.QuerySpec{Text: "laptop"}, domain.TierExact)
	assert.Eventually(t, func() bool { return srv.mr.Exists(key) }, 2*time.Second, 10*time.Millisecond)
}

func TestWarm_ExplicitQueries(t *testing.T) {
	srv := newTestServer(t)

	rec, env := srv.do(t, http.MethodPost, "/api/v1/cache/warm", `{"queries":["mug"]}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.EqualValues(t, 1, decodeData[map[string]any](t, env)["queries"])
	key := cache.Key(domain.QuerySpec{Text: "mug"}, domain.TierExact)
	assert.Eventually(t, func() bool { return srv.mr.Exists(key) }, 2*time.Second, 10*time.Millisecond)
}

func TestAdminRoutes_RequireToken(t *testing.T) {
	srv := newTestServer(t, withAdminToken("s3cret"))

	rec, _ := srv.do(t, http.MethodGet, "/api/v1/cache/stats", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = srv.do(t, http.MethodGet, "/api/v1/cache/stats", "", "Authorization", "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = srv.do(t, http.MethodGet, "/api/v1/cache/stats", "", "Authorization", "Bearer s3cret")
	assert.Equal(t, http.StatusOK, rec.Code)

	// Public reads stay open.
	rec, _ = srv.do(t, http.MethodGet, "/api/v1/search?q=mug", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

// =============================================================================
// Catalog maintenance
// =============================================================================

func TestIndexProduct_ThenSearchable(t *testing.T) {
	srv := newTestServer(t)

	rec, env := srv.do(t, http.MethodPost, "/api/v1/products",
		`{"id":"kb-1","name":"Mechanical Keyboard","category_id":"c-peripherals","category_name":"Peripherals","vendor_id":"v-acme","price":12000,"stock":7}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "indexed", decodeData[map[string]string](t, env)["status"])

	rec, env = srv.do(t, http.MethodGet, "/api/v1/search?q=keyboard&mode=text", "")
	require.Equal(t, http.StatusOK, rec.Code)
	page := decodeData[domain.SearchResultPage](t, env)
	require.Len(t, page.Results, 1)
	assert.Equal(t, "kb-1", page.Results[0].ID)
}

func TestIndexProduct_Validation(t *testing.T) {
	srv := newTestServer(t)

	rec, env := srv.do(t, http.MethodPost, "/api/v1/products", `{"id":"kb-1","price":-3}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
	assert.Contains(t, env.Error.Fields, "name")
	assert.Contains(t, env.Error.Fields, "price")
}

func TestIndexProduct_RejectsBodyOver1MB(t *testing.T) {
	srv := newTestServer(t)
	body := `{"id":"big","name":"` + strings.Repeat("x", 1<<20+1) + `"}`

	rec, env := srv.do(t, http.MethodPost, "/api/v1/products", body)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "INVALID_INPUT", env.Error.Code)
}

func TestIndexProduct_ReadOnlyIndex(t *testing.T) {
	srv := newTestServer(t, readOnly())

	rec, env := srv.do(t, http.MethodPost, "/api/v1/products", `{"id":"kb-1","name":"Keyboard"}`)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "SERVICE_UNAVAILABLE", env.Error.Code)
}

func TestBulkIndex(t *testing.T) {
	srv := newTestServer(t)

	rec, env := srv.do(t, http.MethodPost, "/api/v1/products/bulk",
		`{"products":[{"id":"kb-1","name":"Keyboard"},{"id":"ms-1","name":"Mouse","status":"draft"}]}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decodeData[map[string]any](t, env)["indexed"])

	rec, _ = srv.do(t, http.MethodPost, "/api/v1/products/bulk", `{"products":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteProduct_RemovesFromResults(t *testing.T) {
	srv := newTestServer(t)

	rec, _ := srv.do(t, http.MethodDelete, "/api/v1/products/lap-3", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env := srv.do(t, http.MethodGet, "/api/v1/search?q=laptop&mode=text", "")
	require.Equal(t, http.StatusOK, rec.Code)
	page := decodeData[domain.SearchResultPage](t, env)
	assert.Equal(t, 2, page.TotalCount)
	for _, hit := range page.Results {
		assert.NotEqual(t, "lap-3", hit.ID)
	}
}

// =============================================================================
// Health
// =============================================================================

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	rec, _ := srv.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp health.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, health.StatusUp, resp.Status)
	assert.Len(t, resp.Checks, 3)

	srv.mr.Close()
	rec, _ = srv.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, health.StatusDegraded, resp.Status)
	assert.Equal(t, health.StatusDown, resp.Checks["cache_store"].Status)
}
