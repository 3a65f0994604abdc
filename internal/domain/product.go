package domain

import (
	"time"
)

// Product statuses.
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
	StatusArchived  = "archived"
)

// IsValidStatus checks whether s is a known product status.
func IsValidStatus(s string) bool {
	switch s {
	case StatusDraft, StatusPublished, StatusArchived:
		return true
	}
	return false
}

// Product is the catalog row the search engines index and hydrate hits from.
type Product struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	SKU          string    `json:"sku"`
	Slug         string    `json:"slug"`
	Description  string    `json:"description"`
	CategoryID   string    `json:"category_id"`
	CategoryName string    `json:"category_name"`
	VendorID     string    `json:"vendor_id"`
	VendorName   string    `json:"vendor_name"`
	Price        int64     `json:"price"`
	Currency     string    `json:"currency"`
	Status       string    `json:"status"`
	Stock        int       `json:"stock"`
	ImageURL     string    `json:"image_url"`
	Tags         []string  `json:"tags"`
	Popularity   int64     `json:"popularity"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// InStock reports whether the product has sellable stock.
func (p *Product) InStock() bool {
	return p.Stock > 0
}

// HasTag reports whether the product carries the given tag.
func (p *Product) HasTag(tag string) bool {
	for _, t := range p.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
