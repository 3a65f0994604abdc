package cache

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/utafrali/productsearch/internal/domain"
	"github.com/utafrali/productsearch/pkg/slug"
)

const scanBatch = 100

// Selector picks the entries to invalidate. Empty fields select nothing.
type Selector struct {
	Pattern     string   `json:"pattern,omitempty"`
	CategoryIDs []string `json:"category_ids,omitempty"`
	VendorIDs   []string `json:"vendor_ids,omitempty"`
	ProductIDs  []string `json:"product_ids,omitempty"`
}

// IsEmpty reports whether the selector selects nothing.
func (s Selector) IsEmpty() bool {
	return slug.Generate(s.Pattern) == "" && len(s.CategoryIDs) == 0 && len(s.VendorIDs) == 0 && len(s.ProductIDs) == 0
}

type scopedPattern struct {
	tier    domain.CacheTier
	pattern string
	// match filters SCAN results further when set.
	match func(key string) bool
}

// patterns expands the selector into SCAN MATCH patterns:
//   - a text pattern hits EXACT, PROCESSED and AUTOCOMPLETE entries
//   - a category hits EXACT, PROCESSED and FACETS entries tagged with it
//   - a vendor hits EXACT and PROCESSED entries tagged with it
//   - a product hits its PROCESSED similar-products entries
func (s Selector) patterns() []scopedPattern {
	var out []scopedPattern
	if slug.Generate(s.Pattern) != "" {
		for _, tier := range []domain.CacheTier{domain.TierExact, domain.TierProcessed, domain.TierAutocomplete} {
			out = append(out, scopedPattern{tier, textPattern(tier, s.Pattern), textMatcher(tier, s.Pattern)})
		}
	}
	for _, id := range s.CategoryIDs {
		if sanitize(id) == "" {
			continue
		}
		for _, tier := range []domain.CacheTier{domain.TierExact, domain.TierProcessed, domain.TierFacets} {
			out = append(out, scopedPattern{tier: tier, pattern: categoryPattern(tier, id)})
		}
	}
	for _, id := range s.VendorIDs {
		if sanitize(id) == "" {
			continue
		}
		for _, tier := range []domain.CacheTier{domain.TierExact, domain.TierProcessed} {
			out = append(out, scopedPattern{tier: tier, pattern: vendorPattern(tier, id)})
		}
	}
	for _, id := range s.ProductIDs {
		if sanitize(id) == "" {
			continue
		}
		out = append(out, scopedPattern{tier: domain.TierProcessed, pattern: similarPattern(id)})
	}
	return out
}

// Invalidate deletes every entry matched by sel and returns how many keys
// were removed. Errors are logged and the count reflects what was deleted
// before the failure.
func (c *Cache) Invalidate(ctx context.Context, sel Selector) int {
	total := 0
	for _, p := range sel.patterns() {
		n, err := c.deleteMatching(ctx, p.pattern, p.match)
		total += n
		if n > 0 {
			c.record(p.tier, outcomeInvalidated, uint64(n))
		}
		if err != nil {
			c.fail(p.tier, "cache invalidate failed", p.pattern, err)
		}
	}

	c.logger.InfoContext(ctx, "cache invalidated",
		slog.String("pattern", sel.Pattern),
		slog.Int("categories", len(sel.CategoryIDs)),
		slog.Int("vendors", len(sel.VendorIDs)),
		slog.Int("products", len(sel.ProductIDs)),
		slog.Int("deleted", total),
	)
	return total
}

// InvalidateAll deletes every entry of every tier.
func (c *Cache) InvalidateAll(ctx context.Context) int {
	total := 0
	for _, tier := range domain.AllCacheTiers() {
		n, err := c.deleteMatching(ctx, tierPattern(tier), nil)
		total += n
		if n > 0 {
			c.record(tier, outcomeInvalidated, uint64(n))
		}
		if err != nil {
			c.fail(tier, "cache invalidate all failed", tierPattern(tier), err)
		}
	}
	c.logger.InfoContext(ctx, "cache cleared", slog.Int("deleted", total))
	return total
}

// Sweep inspects up to maxKeys keys across the tier namespaces and deletes
// those without an expiry. It returns the number of keys removed.
func (c *Cache) Sweep(ctx context.Context, maxKeys int) int {
	scanned, removed := 0, 0
	for _, tier := range domain.AllCacheTiers() {
		var cursor uint64
		for {
			if maxKeys > 0 && scanned >= maxKeys {
				return removed
			}
			keys, next, err := c.client.Scan(ctx, cursor, tierPattern(tier), scanBatch).Result()
			if err != nil {
				c.fail(tier, "cache sweep scan failed", tierPattern(tier), err)
				break
			}
			for _, key := range keys {
				scanned++
				ttl, err := c.client.TTL(ctx, key).Result()
				if err != nil || ttl != -1 {
					continue
				}
				if err := c.client.Del(ctx, key).Err(); err == nil {
					removed++
				}
			}
			cursor = next
			if cursor == 0 {
				break
			}
		}
	}
	if removed > 0 {
		c.logger.Info("cache sweep removed keys without expiry", slog.Int("removed", removed))
	}
	return removed
}

// deleteMatching SCANs for pattern and deletes the matches batch by batch.
// A non-nil match keeps only the keys it accepts.
func (c *Cache) deleteMatching(ctx context.Context, pattern string, match func(string) bool) (int, error) {
	var cursor uint64
	deleted := 0
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return deleted, fmt.Errorf("scan %s: %w", pattern, err)
		}
		if match != nil {
			keys = slices.DeleteFunc(keys, func(k string) bool { return !match(k) })
		}
		if len(keys) > 0 {
			n, err := c.client.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, fmt.Errorf("delete keys: %w", err)
			}
			deleted += int(n)
		}
		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}
