package search

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/utafrali/productsearch/internal/domain"
)

// Facets counts every facet dimension over the query's matches with that
// dimension's own filter removed, so each value shows how many results
// selecting it would yield. Any failure drops all facets.
func (o *Orchestrator) Facets(ctx context.Context, spec domain.QuerySpec) []domain.Facet {
	spec = spec.Normalize()
	dims := domain.FacetDimensions()
	results := make([]domain.Facet, len(dims))

	var (
		mu       sync.Mutex
		firstErr error
	)
	var g errgroup.Group
	for i, dim := range dims {
		g.Go(func() error {
			values, err := o.facetCounts(ctx, spec.WithoutFacet(dim), dim)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return nil
			}
			for j := range values {
				values[j].Selected = isSelected(spec, dim, values[j].Value)
			}
			results[i] = domain.Facet{
				Name:        dim,
				DisplayName: domain.FacetDisplayName(dim),
				Values:      values,
			}
			return nil
		})
	}
	_ = g.Wait()

	if firstErr != nil {
		o.logger.WarnContext(ctx, "facet computation failed", slog.String("error", firstErr.Error()))
		return []domain.Facet{}
	}
	return results
}

func (o *Orchestrator) facetCounts(ctx context.Context, spec domain.QuerySpec, dim string) ([]domain.FacetValue, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.SubqueryTimeout)
	defer cancel()
	values, err := o.text.FacetCounts(ctx, spec, dim)
	if err != nil {
		return nil, err
	}
	if values == nil {
		values = []domain.FacetValue{}
	}
	return values, nil
}

// isSelected reports whether a facet value is part of the query's filters.
// A price bucket is selected when it lies inside the requested range.
func isSelected(spec domain.QuerySpec, dim, value string) bool {
	switch dim {
	case domain.FacetCategory:
		return inSet(spec.Categories, value)
	case domain.FacetVendor:
		return inSet(spec.VendorIDs, value)
	case domain.FacetStatus:
		return inSet(spec.Statuses, value)
	case domain.FacetPriceRange:
		if spec.PriceMin == nil && spec.PriceMax == nil {
			return false
		}
		for _, b := range domain.PriceBuckets() {
			if b.Key != value {
				continue
			}
			if spec.PriceMin != nil && b.Min < *spec.PriceMin {
				return false
			}
			if spec.PriceMax != nil && (b.Max == 0 || b.Max-1 > *spec.PriceMax) {
				return false
			}
			return true
		}
	}
	return false
}

func inSet(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
