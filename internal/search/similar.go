package search

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/utafrali/productsearch/internal/domain"
	"github.com/utafrali/productsearch/internal/vector"
	apperrors "github.com/utafrali/productsearch/pkg/errors"
)

// Similar-product limits.
const (
	DefaultSimilarLimit = 10
	MaxSimilarLimit     = 20
)

// Similar returns products near the target in embedding space. When the
// vector store fails it substitutes a text search over the target's name and
// then its description. The only error is an unknown product.
func (o *Orchestrator) Similar(ctx context.Context, productID string, limit int, excludeSameVendor bool) ([]domain.SearchHit, error) {
	limit = ClampSimilarLimit(limit)

	ctx, span := o.tracer.Start(ctx, "search.Similar")
	defer span.End()

	target, targetErr := o.loadTarget(ctx, productID)
	if targetErr == nil && target == nil {
		return nil, apperrors.NotFound("product", productID)
	}

	hits, vecErr := o.similarByVector(ctx, productID, target, limit, excludeSameVendor)
	if vecErr == nil {
		return hits, nil
	}

	if target == nil {
		if errors.Is(vecErr, vector.ErrNotFound) {
			return nil, apperrors.NotFound("product", productID)
		}
		o.logger.WarnContext(ctx, "similar products unavailable",
			slog.String("product_id", productID),
			slog.String("text_error", targetErr.Error()),
			slog.String("vector_error", vecErr.Error()),
		)
		return []domain.SearchHit{}, nil
	}

	o.logger.WarnContext(ctx, "vector store unavailable, similar products from text search",
		slog.String("product_id", productID),
		slog.String("error", vecErr.Error()),
	)
	return o.similarByText(ctx, target, limit, excludeSameVendor), nil
}

// loadTarget returns the product, nil when it does not exist, or an error
// when the text engine is unavailable.
func (o *Orchestrator) loadTarget(ctx context.Context, productID string) (*domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.SubqueryTimeout)
	defer cancel()

	products, err := o.text.GetByIDs(ctx, []string{productID})
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, nil
	}
	return &products[0], nil
}

func (o *Orchestrator) similarByVector(ctx context.Context, productID string, target *domain.Product, limit int, excludeSameVendor bool) ([]domain.SearchHit, error) {
	embedCtx, cancel := context.WithTimeout(ctx, o.cfg.SubqueryTimeout)
	emb, err := o.vectors.Embedding(embedCtx, productID)
	cancel()
	if err != nil {
		return nil, err
	}

	k := limit + 1
	if excludeSameVendor {
		k += limit
	}
	hits, err := o.queryVectors(ctx, vector.Query{Embedding: emb, K: k})
	if err != nil {
		return nil, err
	}

	neighbours := make([]domain.SemanticHit, 0, len(hits))
	for _, h := range hits {
		if h.ProductID == productID {
			if target == nil && h.Product != nil {
				p := *h.Product
				target = &p
			}
			continue
		}
		neighbours = append(neighbours, h)
	}

	products, _ := o.hydrate(ctx, neighbours, nil)
	if excludeSameVendor && target != nil && target.VendorID != "" {
		for id, p := range products {
			if p.VendorID == target.VendorID {
				delete(products, id)
			}
		}
	}

	ranked := scoreSemanticHits(neighbours, products)
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

// similarByText searches for the target's name, then for each of its
// keywords in turn, until a search finds other products.
func (o *Orchestrator) similarByText(ctx context.Context, target *domain.Product, limit int, excludeSameVendor bool) []domain.SearchHit {
	fetch := limit + 1
	if excludeSameVendor {
		fetch += limit
	}

	for _, text := range fallbackQueries(target) {
		spec := domain.QuerySpec{Text: text, Mode: domain.ModeText, PageSize: min(fetch, domain.MaxPageSize)}.Normalize()
		res, err := o.searchText(ctx, spec, 0, spec.PageSize)
		if err != nil {
			o.logger.WarnContext(ctx, "similar text fallback failed", slog.String("error", err.Error()))
			return []domain.SearchHit{}
		}

		kept := make([]domain.TextHit, 0, len(res.Hits))
		for _, h := range res.Hits {
			if h.Product.ID == target.ID {
				continue
			}
			if excludeSameVendor && target.VendorID != "" && h.Product.VendorID == target.VendorID {
				continue
			}
			kept = append(kept, h)
		}
		if len(kept) == 0 {
			continue
		}
		ranked := scoreTextHits(kept)
		if len(ranked) > limit {
			ranked = ranked[:limit]
		}
		return ranked
	}
	return []domain.SearchHit{}
}

// fallbackQueries is the product name followed by the distinct words longer
// than three letters from its name and description, at most six of them.
func fallbackQueries(p *domain.Product) []string {
	queries := []string{}
	if name := strings.TrimSpace(p.Name); name != "" {
		queries = append(queries, name)
	}
	seen := map[string]struct{}{}
	for _, w := range strings.Fields(p.Name + " " + p.Description) {
		w = strings.ToLower(strings.Trim(w, ".,;:!?()\"'"))
		if len([]rune(w)) <= 3 {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		queries = append(queries, w)
		if len(seen) == 6 {
			break
		}
	}
	return queries
}

// ClampSimilarLimit applies the default and maximum neighbour counts.
func ClampSimilarLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultSimilarLimit
	case limit > MaxSimilarLimit:
		return MaxSimilarLimit
	}
	return limit
}
