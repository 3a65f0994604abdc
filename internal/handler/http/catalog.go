package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/productsearch/internal/domain"
	"github.com/utafrali/productsearch/internal/service"
	"github.com/utafrali/productsearch/pkg/httputil"
	"github.com/utafrali/productsearch/pkg/validator"
)

// CatalogHandler handles index maintenance requests.
type CatalogHandler struct {
	service *service.SearchService
	logger  *slog.Logger
}

// NewCatalogHandler creates a new catalog HTTP handler.
func NewCatalogHandler(svc *service.SearchService, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// IndexProductRequest is the JSON request body for indexing a product.
type IndexProductRequest struct {
	ID           string     `json:"id" validate:"required"`
	Name         string     `json:"name" validate:"required,min=1"`
	SKU          string     `json:"sku"`
	Slug         string     `json:"slug"`
	Description  string     `json:"description"`
	CategoryID   string     `json:"category_id"`
	CategoryName string     `json:"category_name"`
	VendorID     string     `json:"vendor_id"`
	VendorName   string     `json:"vendor_name"`
	Price        int64      `json:"price" validate:"gte=0"`
	Currency     string     `json:"currency"`
	Status       string     `json:"status" validate:"omitempty,oneof=draft published archived"`
	Stock        int        `json:"stock" validate:"gte=0"`
	ImageURL     string     `json:"image_url"`
	Tags         []string   `json:"tags"`
	Popularity   int64      `json:"popularity" validate:"gte=0"`
	CreatedAt    *time.Time `json:"created_at"`
}

func (req IndexProductRequest) toProduct() domain.Product {
	p := domain.Product{
		ID:           req.ID,
		Name:         req.Name,
		SKU:          req.SKU,
		Slug:         req.Slug,
		Description:  req.Description,
		CategoryID:   req.CategoryID,
		CategoryName: req.CategoryName,
		VendorID:     req.VendorID,
		VendorName:   req.VendorName,
		Price:        req.Price,
		Currency:     req.Currency,
		Status:       req.Status,
		Stock:        req.Stock,
		ImageURL:     req.ImageURL,
		Tags:         req.Tags,
		Popularity:   req.Popularity,
	}
	if p.Status == "" {
		p.Status = domain.StatusPublished
	}
	if req.CreatedAt != nil {
		p.CreatedAt = req.CreatedAt.UTC()
	}
	return p
}

// BulkIndexRequest is the JSON request body for bulk indexing products.
type BulkIndexRequest struct {
	Products []IndexProductRequest `json:"products" validate:"required,min=1,max=500,dive"`
}

// --- Handlers ---

// IndexProduct handles POST /api/v1/products
func (h *CatalogHandler) IndexProduct(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req IndexProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	product := req.toProduct()
	if err := h.service.IndexProduct(r.Context(), &product); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]string{"id": product.ID, "status": "indexed"}})
}

// BulkIndex handles POST /api/v1/products/bulk
func (h *CatalogHandler) BulkIndex(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)

	var req BulkIndexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	products := make([]domain.Product, 0, len(req.Products))
	for _, p := range req.Products {
		products = append(products, p.toProduct())
	}

	n, err := h.service.BulkIndex(r.Context(), products)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]any{"indexed": n, "status": "ok"}})
}

// DeleteProduct handles DELETE /api/v1/products/{id}
func (h *CatalogHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.service.DeleteProduct(r.Context(), id); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]string{"id": id, "status": "deleted"}})
}
