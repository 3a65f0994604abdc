package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/utafrali/productsearch/internal/cache"
	"github.com/utafrali/productsearch/internal/service"
	"github.com/utafrali/productsearch/pkg/httputil"
	"github.com/utafrali/productsearch/pkg/validator"
)

const warmTimeout = 5 * time.Minute

// CacheHandler serves the cache maintenance endpoints.
type CacheHandler struct {
	service *service.SearchService
	logger  *slog.Logger
}

// NewCacheHandler creates a new cache HTTP handler.
func NewCacheHandler(svc *service.SearchService, logger *slog.Logger) *CacheHandler {
	return &CacheHandler{
		service: svc,
		logger:  logger,
	}
}

// InvalidateRequest selects cache entries to drop. All wins over the other
// selectors.
type InvalidateRequest struct {
	Pattern     string   `json:"pattern" validate:"max=200"`
	ProductIDs  []string `json:"product_ids" validate:"max=500,dive,required"`
	CategoryIDs []string `json:"category_ids" validate:"max=500,dive,required"`
	VendorIDs   []string `json:"vendor_ids" validate:"max=500,dive,required"`
	All         bool     `json:"all"`
}

// WarmRequest lists the queries to pre-populate. Empty means popular queries.
type WarmRequest struct {
	Queries []string `json:"queries" validate:"max=100,dive,required,max=500"`
}

// Invalidate handles POST /api/v1/cache/invalidate
func (h *CacheHandler) Invalidate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req InvalidateRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	var n int
	if req.All {
		n = h.service.InvalidateAll(r.Context())
	} else {
		var err error
		n, err = h.service.Invalidate(r.Context(), cache.Selector{
			Pattern:     req.Pattern,
			ProductIDs:  req.ProductIDs,
			CategoryIDs: req.CategoryIDs,
			VendorIDs:   req.VendorIDs,
		})
		if err != nil {
			httputil.WriteError(w, r, err, h.logger)
			return
		}
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]int{"invalidated": n}})
}

// Warm handles POST /api/v1/cache/warm. The run continues after the
// response is written.
func (h *CacheHandler) Warm(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req WarmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}
	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	ctx := context.WithoutCancel(r.Context())
	go func() {
		ctx, cancel := context.WithTimeout(ctx, warmTimeout)
		defer cancel()
		if _, err := h.service.WarmCache(ctx, req.Queries); err != nil {
			h.logger.ErrorContext(ctx, "background cache warm failed", slog.String("error", err.Error()))
		}
	}()

	httputil.WriteJSON(w, http.StatusAccepted, httputil.Response{Data: map[string]any{
		"status":  "warming",
		"queries": len(req.Queries),
	}})
}

// Stats handles GET /api/v1/cache/stats
func (h *CacheHandler) Stats(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: h.service.CacheStats()})
}
