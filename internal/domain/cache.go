package domain

import (
	"fmt"
	"time"
)

// CacheTier is the closed set of cache namespaces. Each tier carries its own
// TTL and key namespace.
type CacheTier int

// Cache tiers.
const (
	TierExact CacheTier = iota
	TierProcessed
	TierFacets
	TierAutocomplete
	TierPopular
	TierTrending
	TierAnalytics
)

var tierSpecs = [...]struct {
	name string
	ttl  time.Duration
}{
	TierExact:        {"exact", 300 * time.Second},
	TierProcessed:    {"processed", 1800 * time.Second},
	TierFacets:       {"facets", 3600 * time.Second},
	TierAutocomplete: {"autocomplete", 7200 * time.Second},
	TierPopular:      {"popular", 86400 * time.Second},
	TierTrending:     {"trending", 1800 * time.Second},
	TierAnalytics:    {"analytics", 3600 * time.Second},
}

// AllCacheTiers returns every tier in declaration order.
func AllCacheTiers() []CacheTier {
	return []CacheTier{
		TierExact, TierProcessed, TierFacets, TierAutocomplete,
		TierPopular, TierTrending, TierAnalytics,
	}
}

// Valid reports whether t is a declared tier.
func (t CacheTier) Valid() bool {
	return t >= TierExact && t <= TierAnalytics
}

// String returns the tier's namespace.
func (t CacheTier) String() string {
	if !t.Valid() {
		return fmt.Sprintf("tier(%d)", int(t))
	}
	return tierSpecs[t].name
}

// TTL returns the tier's expiry policy.
func (t CacheTier) TTL() time.Duration {
	if !t.Valid() {
		return 0
	}
	return tierSpecs[t].ttl
}
