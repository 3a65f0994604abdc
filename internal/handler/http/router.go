package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/productsearch/internal/service"
	"github.com/utafrali/productsearch/pkg/health"
	"github.com/utafrali/productsearch/pkg/middleware"
)

// RouterConfig holds the HTTP surface settings.
type RouterConfig struct {
	ServiceName    string
	CORS           middleware.CORSConfig
	AdminToken     string
	AdminJWTSecret string
	// RateLimitRPS caps public search reads per client; zero disables it.
	RateLimitRPS   float64
	RateLimitBurst int
	PprofCIDRs     []string
	RequestTimeout time.Duration
	// CacheMaxAge is the Cache-Control max-age, in seconds, of the
	// autocomplete and trending reads.
	CacheMaxAge int
}

// NewRouter creates a chi router with all search service routes registered.
func NewRouter(
	searchService *service.SearchService,
	healthHandler *health.Handler,
	cfg RouterConfig,
	logger *slog.Logger,
) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(cfg.RequestTimeout))
	r.Use(middleware.Tracing(cfg.ServiceName))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.PrometheusMetrics(cfg.ServiceName))

	// Health check endpoints
	r.Get("/health", healthHandler.StatusHandler())
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})
	if len(cfg.PprofCIDRs) > 0 {
		middleware.RegisterPprof(r, cfg.PprofCIDRs, logger)
	}

	searchHandler := NewSearchHandler(searchService, logger)
	analyticsHandler := NewAnalyticsHandler(searchService, logger)
	cacheHandler := NewCacheHandler(searchService, logger)
	catalogHandler := NewCatalogHandler(searchService, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst, logger))

			r.Get("/search", searchHandler.SearchQuery)
			r.Post("/search", searchHandler.Search)
			r.Get("/products/{id}/similar", searchHandler.Similar)

			r.Group(func(r chi.Router) {
				if cfg.CacheMaxAge > 0 {
					r.Use(middleware.CacheControl(cfg.CacheMaxAge))
				}
				r.Get("/autocomplete", searchHandler.Autocomplete)
				r.Get("/trending", analyticsHandler.Trending)
				r.Get("/popular", analyticsHandler.Popular)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(adminOnly(cfg.AdminToken, cfg.AdminJWTSecret))

			r.Get("/analytics", analyticsHandler.Dashboard)
			r.Get("/analytics/queries", analyticsHandler.QueryInsights)
			r.Get("/analytics/report", analyticsHandler.Report)

			r.Post("/cache/invalidate", cacheHandler.Invalidate)
			r.Post("/cache/warm", cacheHandler.Warm)
			r.Get("/cache/stats", cacheHandler.Stats)

			r.Post("/products", catalogHandler.IndexProduct)
			r.Post("/products/bulk", catalogHandler.BulkIndex)
			r.Delete("/products/{id}", catalogHandler.DeleteProduct)
		})
	})

	return r
}
