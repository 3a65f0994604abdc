package cache

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/utafrali/productsearch/internal/domain"
)

// Operation outcomes.
const (
	outcomeHit         = "hit"
	outcomeMiss        = "miss"
	outcomeError       = "error"
	outcomeSet         = "set"
	outcomeCompressed  = "compressed"
	outcomeInvalidated = "invalidated"
)

// operationsTotal counts cache operations per tier and outcome.
var operationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "search_cache_operations_total",
		Help: "Total number of search cache operations by tier and outcome",
	},
	[]string{"tier", "outcome"},
)

// stats holds in-process counters. They are never reset.
type stats struct {
	hits         atomic.Uint64
	misses       atomic.Uint64
	errors       atomic.Uint64
	sets         atomic.Uint64
	compressions atomic.Uint64
	invalidated  atomic.Uint64
}

// Stats is a point-in-time snapshot of the cache counters.
type Stats struct {
	Hits         uint64  `json:"hits"`
	Misses       uint64  `json:"misses"`
	Errors       uint64  `json:"errors"`
	Sets         uint64  `json:"sets"`
	Compressions uint64  `json:"compressions"`
	Invalidated  uint64  `json:"invalidated"`
	TotalGets    uint64  `json:"total_gets"`
	HitRate      float64 `json:"hit_rate"`
}

func (s *stats) snapshot() Stats {
	hits := s.hits.Load()
	misses := s.misses.Load()
	total := hits + misses

	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}
	return Stats{
		Hits:         hits,
		Misses:       misses,
		Errors:       s.errors.Load(),
		Sets:         s.sets.Load(),
		Compressions: s.compressions.Load(),
		Invalidated:  s.invalidated.Load(),
		TotalGets:    total,
		HitRate:      hitRate,
	}
}

func (c *Cache) record(tier domain.CacheTier, outcome string, n uint64) {
	switch outcome {
	case outcomeHit:
		c.stats.hits.Add(n)
	case outcomeMiss:
		c.stats.misses.Add(n)
	case outcomeError:
		c.stats.errors.Add(n)
	case outcomeSet:
		c.stats.sets.Add(n)
	case outcomeCompressed:
		c.stats.compressions.Add(n)
	case outcomeInvalidated:
		c.stats.invalidated.Add(n)
	}
	operationsTotal.WithLabelValues(tier.String(), outcome).Add(float64(n))
}
