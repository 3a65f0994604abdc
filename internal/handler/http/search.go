package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/productsearch/internal/domain"
	"github.com/utafrali/productsearch/internal/service"
	apperrors "github.com/utafrali/productsearch/pkg/errors"
	"github.com/utafrali/productsearch/pkg/httputil"
	"github.com/utafrali/productsearch/pkg/validator"
)

// SearchHandler handles HTTP requests for search endpoints.
type SearchHandler struct {
	service *service.SearchService
	logger  *slog.Logger
}

// NewSearchHandler creates a new search HTTP handler.
func NewSearchHandler(svc *service.SearchService, logger *slog.Logger) *SearchHandler {
	return &SearchHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// SearchRequest is the JSON request body for a search.
type SearchRequest struct {
	Text         string   `json:"text" validate:"max=500"`
	Categories   []string `json:"categories" validate:"max=50,dive,required"`
	PriceMin     *int64   `json:"price_min" validate:"omitempty,gte=0"`
	PriceMax     *int64   `json:"price_max" validate:"omitempty,gte=0"`
	VendorIDs    []string `json:"vendor_ids" validate:"max=50,dive,required"`
	RequireStock *bool    `json:"require_stock"`
	Statuses     []string `json:"statuses" validate:"dive,oneof=draft published archived"`
	Tags         []string `json:"tags" validate:"max=50,dive,required"`
	Sort         string   `json:"sort" validate:"omitempty,oneof=relevance price_asc price_desc date_asc date_desc name_asc name_desc popularity newest"`
	Mode         string   `json:"mode" validate:"omitempty,oneof=text semantic hybrid"`
	Page         int      `json:"page" validate:"omitempty,min=1,max=10000"`
	PageSize     int      `json:"page_size"`
}

func (req SearchRequest) toSpec() (domain.QuerySpec, error) {
	sortBy, err := domain.ParseSort(req.Sort)
	if err != nil {
		return domain.QuerySpec{}, apperrors.InvalidInput(err.Error())
	}
	mode, err := domain.ParseMode(req.Mode)
	if err != nil {
		return domain.QuerySpec{}, apperrors.InvalidInput(err.Error())
	}
	return domain.QuerySpec{
		Text:         req.Text,
		Categories:   req.Categories,
		PriceMin:     req.PriceMin,
		PriceMax:     req.PriceMax,
		VendorIDs:    req.VendorIDs,
		RequireStock: req.RequireStock,
		Statuses:     req.Statuses,
		Tags:         req.Tags,
		Sort:         sortBy,
		Mode:         mode,
		Page:         req.Page,
		PageSize:     req.PageSize,
	}, nil
}

// --- Handlers ---

// Search handles POST /api/v1/search
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}
	if err := h.applyPaging(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.run(w, r, req)
}

// SearchQuery handles GET /api/v1/search
func (h *SearchHandler) SearchQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := SearchRequest{
		Text:       q.Get("q"),
		Categories: listParam(r, "category_id"),
		VendorIDs:  listParam(r, "vendor_id"),
		Statuses:   listParam(r, "status"),
		Tags:       listParam(r, "tag"),
		Sort:       q.Get("sort"),
		Mode:       q.Get("mode"),
	}

	var err error
	if req.PriceMin, err = int64Param(r, "min_price"); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	if req.PriceMax, err = int64Param(r, "max_price"); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	if q.Get("in_stock") != "" {
		inStock, err := boolParam(r, "in_stock")
		if err != nil {
			httputil.WriteError(w, r, err, h.logger)
			return
		}
		req.RequireStock = &inStock
	}
	if err := h.applyPaging(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.run(w, r, req)
}

// applyPaging lets the page and page_size query parameters override the body.
func (h *SearchHandler) applyPaging(r *http.Request, req *SearchRequest) error {
	page, err := intParam(r, "page", req.Page)
	if err != nil {
		return err
	}
	pageSize, err := intParam(r, "page_size", req.PageSize)
	if err != nil {
		return err
	}
	req.Page, req.PageSize = page, pageSize
	return nil
}

func (h *SearchHandler) run(w http.ResponseWriter, r *http.Request, req SearchRequest) {
	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}
	spec, err := req.toSpec()
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	page, err := h.service.Search(r.Context(), spec, requestMeta(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: page})
}

// Autocomplete handles GET /api/v1/autocomplete
func (h *SearchHandler) Autocomplete(w http.ResponseWriter, r *http.Request) {
	prefix := strings.TrimSpace(r.URL.Query().Get("q"))
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	suggestions := h.service.Autocomplete(r.Context(), prefix, limit)

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]any{
		"query":       prefix,
		"suggestions": suggestions,
	}})
}

// Similar handles GET /api/v1/products/{id}/similar
func (h *SearchHandler) Similar(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	excludeSameVendor, err := boolParam(r, "exclude_same_vendor")
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	hits, err := h.service.Similar(r.Context(), id, limit, excludeSameVendor)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	if hits == nil {
		hits = []domain.SearchHit{}
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]any{
		"product_id": id,
		"results":    hits,
	}})
}
