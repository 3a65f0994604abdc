package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/utafrali/productsearch/internal/domain"
	pkgkafka "github.com/utafrali/productsearch/pkg/kafka"
)

// Kafka topic constants for product domain events consumed by the search service.
const (
	TopicProductCreated = "ecommerce.product.created"
	TopicProductUpdated = "ecommerce.product.updated"
	TopicProductDeleted = "ecommerce.product.deleted"
)

// ProductTopics lists the topics the product consumer subscribes to.
func ProductTopics() []string {
	return []string{TopicProductCreated, TopicProductUpdated, TopicProductDeleted}
}

// ProductEventData represents the payload from product domain events. The
// catalog calls vendors brands; either field name is accepted.
type ProductEventData struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	SKU          string     `json:"sku"`
	Slug         string     `json:"slug"`
	Description  string     `json:"description"`
	BrandID      *string    `json:"brand_id,omitempty"`
	BrandName    string     `json:"brand_name"`
	VendorID     *string    `json:"vendor_id,omitempty"`
	VendorName   string     `json:"vendor_name"`
	CategoryID   *string    `json:"category_id,omitempty"`
	CategoryName string     `json:"category_name"`
	Status       string     `json:"status"`
	BasePrice    int64      `json:"base_price"`
	Currency     string     `json:"currency"`
	Stock        int        `json:"stock"`
	ImageURL     string     `json:"image_url"`
	Tags         []string   `json:"tags"`
	CreatedAt    *time.Time `json:"created_at,omitempty"`
}

func (d ProductEventData) toProduct() *domain.Product {
	p := &domain.Product{
		ID:           d.ID,
		Name:         d.Name,
		SKU:          d.SKU,
		Slug:         d.Slug,
		Description:  d.Description,
		CategoryName: d.CategoryName,
		VendorName:   d.VendorName,
		Price:        d.BasePrice,
		Currency:     d.Currency,
		Status:       d.Status,
		Stock:        d.Stock,
		ImageURL:     d.ImageURL,
		Tags:         d.Tags,
	}
	if d.CategoryID != nil {
		p.CategoryID = *d.CategoryID
	}
	switch {
	case d.VendorID != nil:
		p.VendorID = *d.VendorID
	case d.BrandID != nil:
		p.VendorID = *d.BrandID
	}
	if p.VendorName == "" {
		p.VendorName = d.BrandName
	}
	if d.CreatedAt != nil {
		p.CreatedAt = d.CreatedAt.UTC()
	}
	return p
}

// ProductDeletedData represents the payload from a product.deleted event.
type ProductDeletedData struct {
	ID string `json:"id"`
}

// ProductIndexer applies catalog changes to the search index.
type ProductIndexer interface {
	IndexProduct(ctx context.Context, product *domain.Product) error
	DeleteProduct(ctx context.Context, id string) error
}

// Consumer handles Kafka events related to product changes for search indexing.
type Consumer struct {
	indexer ProductIndexer
	logger  *slog.Logger
}

// NewConsumer creates a new event consumer for the search service.
func NewConsumer(indexer ProductIndexer, logger *slog.Logger) *Consumer {
	return &Consumer{
		indexer: indexer,
		logger:  logger,
	}
}

// Handle processes a Kafka event based on its type.
func (c *Consumer) Handle(ctx context.Context, event *pkgkafka.Event) error {
	switch event.EventType {
	case TopicProductCreated, TopicProductUpdated:
		return c.handleProductUpserted(ctx, event)
	case TopicProductDeleted:
		return c.handleProductDeleted(ctx, event)
	default:
		c.logger.WarnContext(ctx, "unknown event type received",
			slog.String("event_type", event.EventType),
			slog.String("event_id", event.EventID),
		)
		return nil
	}
}

// handleProductUpserted indexes a created or updated product.
func (c *Consumer) handleProductUpserted(ctx context.Context, event *pkgkafka.Event) error {
	var data ProductEventData
	if err := event.UnmarshalData(&data); err != nil {
		return fmt.Errorf("unmarshal %s data: %w", event.EventType, err)
	}

	if err := c.indexer.IndexProduct(ctx, data.toProduct()); err != nil {
		return fmt.Errorf("index product from %s: %w", event.EventType, err)
	}

	c.logger.InfoContext(ctx, "indexed product from event",
		slog.String("event_type", event.EventType),
		slog.String("product_id", data.ID),
	)
	return nil
}

// handleProductDeleted removes a deleted product from the index.
func (c *Consumer) handleProductDeleted(ctx context.Context, event *pkgkafka.Event) error {
	var data ProductDeletedData
	if err := event.UnmarshalData(&data); err != nil {
		return fmt.Errorf("unmarshal product.deleted data: %w", err)
	}
	if data.ID == "" {
		data.ID = event.AggregateID
	}

	if err := c.indexer.DeleteProduct(ctx, data.ID); err != nil {
		return fmt.Errorf("delete product from deleted event: %w", err)
	}

	c.logger.InfoContext(ctx, "deleted product from deleted event",
		slog.String("product_id", data.ID),
	)
	return nil
}
