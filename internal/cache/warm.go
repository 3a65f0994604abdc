package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/utafrali/productsearch/internal/domain"
)

// Searcher runs a query through the uncached search path.
type Searcher interface {
	Search(ctx context.Context, spec domain.QuerySpec) *domain.SearchResultPage
}

// WarmReport summarizes one warming run.
type WarmReport struct {
	Requested int   `json:"requested"`
	Warmed    int   `json:"warmed"`
	Skipped   int   `json:"skipped"`
	Failed    int   `json:"failed"`
	ElapsedMs int64 `json:"elapsed_ms"`
}

// Warm pre-populates the EXACT and PROCESSED tiers for the first page of each
// query. Queries already cached are skipped. Degraded pages are not stored.
func (c *Cache) Warm(ctx context.Context, searcher Searcher, queries []string) WarmReport {
	start := time.Now()
	report := WarmReport{Requested: len(queries)}

	seen := make(map[string]struct{}, len(queries))
	for _, q := range queries {
		if ctx.Err() != nil {
			break
		}
		spec := domain.QuerySpec{Text: q}.Normalize()
		if !spec.HasText() {
			report.Skipped++
			continue
		}
		if _, dup := seen[domain.NormalizeQuery(spec.Text)]; dup {
			report.Skipped++
			continue
		}
		seen[domain.NormalizeQuery(spec.Text)] = struct{}{}

		exists, err := c.client.Exists(ctx, Key(spec, domain.TierExact)).Result()
		if err == nil && exists > 0 {
			report.Skipped++
			continue
		}

		page := searcher.Search(ctx, spec)
		if page == nil || page.Degraded {
			report.Failed++
			continue
		}
		c.Put(ctx, spec, domain.TierExact, page)
		c.Put(ctx, spec, domain.TierProcessed, page)
		report.Warmed++
	}

	report.ElapsedMs = time.Since(start).Milliseconds()
	c.logger.InfoContext(ctx, "cache warmed",
		slog.Int("requested", report.Requested),
		slog.Int("warmed", report.Warmed),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed", report.Failed),
		slog.Int64("elapsed_ms", report.ElapsedMs),
	)
	return report
}
