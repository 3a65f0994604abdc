package http

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/utafrali/productsearch/internal/domain"
	"github.com/utafrali/productsearch/internal/service"
	"github.com/utafrali/productsearch/pkg/httputil"
)

const defaultReportPeriod = "week"

// AnalyticsHandler serves the reporting endpoints.
type AnalyticsHandler struct {
	service *service.SearchService
	logger  *slog.Logger
}

// NewAnalyticsHandler creates a new analytics HTTP handler.
func NewAnalyticsHandler(svc *service.SearchService, logger *slog.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{
		service: svc,
		logger:  logger,
	}
}

// Trending handles GET /api/v1/trending
func (h *AnalyticsHandler) Trending(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	period := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("period")))

	trending, err := h.service.Trending(r.Context(), limit, period)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	if trending == nil {
		trending = []domain.TrendingQuery{}
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: trending})
}

// Popular handles GET /api/v1/popular
func (h *AnalyticsHandler) Popular(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	popular, err := h.service.Popular(r.Context(), limit)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	if popular == nil {
		popular = []domain.PopularQuery{}
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: popular})
}

// Dashboard handles GET /api/v1/analytics
func (h *AnalyticsHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	days, err := intParam(r, "days", 0)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	metrics, err := h.service.Analytics(r.Context(), days)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: metrics})
}

// QueryInsights handles GET /api/v1/analytics/queries
func (h *AnalyticsHandler) QueryInsights(w http.ResponseWriter, r *http.Request) {
	days, err := intParam(r, "days", 0)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	insights, err := h.service.QueryInsights(r.Context(), r.URL.Query().Get("q"), days)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: insights})
}

// Report handles GET /api/v1/analytics/report
func (h *AnalyticsHandler) Report(w http.ResponseWriter, r *http.Request) {
	period := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("period")))
	if period == "" {
		period = defaultReportPeriod
	}

	report, err := h.service.BusinessReport(r.Context(), period)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: report})
}
