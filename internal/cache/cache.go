// Package cache is the tiered Redis cache in front of the search path.
// Every failure degrades to a miss; callers never see cache errors.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/productsearch/internal/domain"
)

// Cache stores search pages and auxiliary payloads in Redis, one namespace per
// tier. Entries expire with the tier TTL.
type Cache struct {
	client    *redis.Client
	logger    *slog.Logger
	threshold int
	stats     stats
}

// Option configures a Cache.
type Option func(*Cache)

// WithCompressThreshold overrides the size above which payloads are gzipped.
func WithCompressThreshold(n int) Option {
	return func(c *Cache) { c.threshold = n }
}

// New creates a Cache backed by the given Redis client.
func New(client *redis.Client, logger *slog.Logger, opts ...Option) *Cache {
	c := &Cache{
		client:    client,
		logger:    logger,
		threshold: CompressThreshold,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached page for spec in tier.
func (c *Cache) Get(ctx context.Context, spec domain.QuerySpec, tier domain.CacheTier) (*domain.SearchResultPage, bool) {
	var page domain.SearchResultPage
	if !c.get(ctx, tier, Key(spec, tier), &page) {
		return nil, false
	}
	return &page, true
}

// Put stores page for spec in tier.
func (c *Cache) Put(ctx context.Context, spec domain.QuerySpec, tier domain.CacheTier, page *domain.SearchResultPage) {
	if page == nil {
		return
	}
	c.set(ctx, tier, Key(spec, tier), page)
}

// GetFacets returns the cached facets of the result set described by spec.
func (c *Cache) GetFacets(ctx context.Context, spec domain.QuerySpec) ([]domain.Facet, bool) {
	var facets []domain.Facet
	if !c.get(ctx, domain.TierFacets, FacetsKey(spec), &facets) {
		return nil, false
	}
	return facets, true
}

// PutFacets stores the facets of the result set described by spec. Empty
// facet lists are not stored since they may stem from a failed computation.
func (c *Cache) PutFacets(ctx context.Context, spec domain.QuerySpec, facets []domain.Facet) {
	if len(facets) == 0 {
		return
	}
	c.set(ctx, domain.TierFacets, FacetsKey(spec), facets)
}

// GetJSON decodes the value stored under key in tier into dest.
func (c *Cache) GetJSON(ctx context.Context, tier domain.CacheTier, key string, dest any) bool {
	return c.get(ctx, tier, tierPrefix(tier)+key, dest)
}

// SetJSON stores v under key in tier.
func (c *Cache) SetJSON(ctx context.Context, tier domain.CacheTier, key string, v any) {
	c.set(ctx, tier, tierPrefix(tier)+key, v)
}

// Stats returns a snapshot of the in-process counters.
func (c *Cache) Stats() Stats {
	return c.stats.snapshot()
}

// Ping checks whether Redis is reachable.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Cache) get(ctx context.Context, tier domain.CacheTier, key string, dest any) bool {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.record(tier, outcomeMiss, 1)
		return false
	}
	if err != nil {
		c.fail(tier, "cache get failed", key, err)
		c.record(tier, outcomeMiss, 1)
		return false
	}

	data, err := decode(raw)
	if err != nil {
		c.fail(tier, "cache decode failed", key, err)
		c.record(tier, outcomeMiss, 1)
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		c.fail(tier, "cache unmarshal failed", key, err)
		c.record(tier, outcomeMiss, 1)
		return false
	}

	c.record(tier, outcomeHit, 1)
	return true
}

func (c *Cache) set(ctx context.Context, tier domain.CacheTier, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.fail(tier, "cache marshal failed", key, err)
		return
	}

	payload, compressed, err := encode(data, c.threshold)
	if err != nil {
		c.fail(tier, "cache compress failed", key, err)
		return
	}

	if err := c.client.Set(ctx, key, payload, tier.TTL()).Err(); err != nil {
		c.fail(tier, "cache set failed", key, err)
		return
	}

	c.record(tier, outcomeSet, 1)
	if compressed {
		c.record(tier, outcomeCompressed, 1)
	}
}

// fail records an error outcome and logs it.
func (c *Cache) fail(tier domain.CacheTier, msg, key string, err error) {
	c.record(tier, outcomeError, 1)
	c.logger.Warn(msg,
		slog.String("tier", tier.String()),
		slog.String("key", key),
		slog.String("error", err.Error()),
	)
}
