// Package analytics records served searches into Redis counters and builds
// dashboards and reports from them.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/utafrali/productsearch/internal/domain"
)

// Recorder persists one analytics event.
type Recorder interface {
	Record(ctx context.Context, event domain.AnalyticsEvent) error
}

// Store writes events into Redis using atomic counter primitives only, so
// concurrent writers never need coordination.
type Store struct {
	client *redis.Client
	logger *slog.Logger
}

var _ Recorder = (*Store)(nil)

// NewStore creates a Store.
func NewStore(client *redis.Client, logger *slog.Logger) *Store {
	return &Store{client: client, logger: logger}
}

// Record fans the event out into five independent writes. A failing write is
// logged and does not stop the others; the joined errors are returned for
// the caller's information.
func (s *Store) Record(ctx context.Context, event domain.AnalyticsEvent) error {
	writes := []struct {
		name string
		fn   func(context.Context, domain.AnalyticsEvent) error
	}{
		{"daily", s.writeDaily},
		{"hourly", s.writeHourly},
		{"query", s.writeQuery},
		{"latency", s.writeLatency},
		{"patterns", s.writePatterns},
	}

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, w := range writes {
		g.Go(func() error {
			if err := w.fn(ctx, event); err != nil {
				s.logger.Warn("analytics write failed",
					slog.String("write", w.name),
					slog.String("event_id", event.EventID),
					slog.String("error", err.Error()),
				)
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", w.name, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}

func (s *Store) writeDaily(ctx context.Context, ev domain.AnalyticsEvent) error {
	key := dailyKey(ev.Timestamp)
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, key, fieldTotal, 1)
		pipe.HIncrBy(ctx, key, fieldZero, flag(ev.IsZeroResults))
		pipe.HIncrBy(ctx, key, fieldSlow, flag(ev.IsSlow))
		pipe.HIncrBy(ctx, key, fieldLow, flag(ev.IsLowResults))
		pipe.HIncrBy(ctx, key, fieldResultsSum, int64(ev.ResultsCount))
		pipe.HIncrBy(ctx, key, fieldElapsedSum, ev.ElapsedMs)
		if ev.UserType != "" {
			pipe.HIncrBy(ctx, key, userTypeFieldPrefix+ev.UserType, 1)
		}
		if ev.Source != "" {
			pipe.HIncrBy(ctx, key, sourceFieldPrefix+ev.Source, 1)
		}
		pipe.Expire(ctx, key, dailyRetention)
		return nil
	})
	if err != nil {
		return fmt.Errorf("update daily totals: %w", err)
	}
	return nil
}

func (s *Store) writeHourly(ctx context.Context, ev domain.AnalyticsEvent) error {
	key := hourlyKey(ev.Timestamp)
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, key, fieldTotal, 1)
		pipe.HIncrBy(ctx, key, fieldZero, flag(ev.IsZeroResults))
		pipe.HIncrBy(ctx, key, fieldSlow, flag(ev.IsSlow))
		pipe.HIncrBy(ctx, key, fieldElapsedSum, ev.ElapsedMs)
		pipe.Expire(ctx, key, hourlyRetention)
		return nil
	})
	if err != nil {
		return fmt.Errorf("update hourly totals: %w", err)
	}
	return nil
}

// writeQuery keeps the per-query rolling stats and the daily query ranking.
// Filter-only browsing carries no query and is skipped.
func (s *Store) writeQuery(ctx context.Context, ev domain.AnalyticsEvent) error {
	q := domain.NormalizeQuery(ev.Query)
	if q == "" {
		return nil
	}
	key := queryKey(q)
	ranking := queriesKey(ev.Timestamp)
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, key, fieldCount, 1)
		pipe.HIncrBy(ctx, key, fieldZero, flag(ev.IsZeroResults))
		pipe.HIncrBy(ctx, key, fieldSlow, flag(ev.IsSlow))
		pipe.HIncrBy(ctx, key, fieldResultsSum, int64(ev.ResultsCount))
		pipe.HIncrBy(ctx, key, fieldElapsedSum, ev.ElapsedMs)
		pipe.HSet(ctx, key, fieldLastSeen, ev.Timestamp.UTC().Format(time.RFC3339))
		pipe.Expire(ctx, key, queryRetention)
		pipe.ZIncrBy(ctx, ranking, 1, q)
		pipe.Expire(ctx, ranking, queryRetention)
		return nil
	})
	if err != nil {
		return fmt.Errorf("update query stats: %w", err)
	}
	return nil
}

func (s *Store) writeLatency(ctx context.Context, ev domain.AnalyticsEvent) error {
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, latencyKey, strconv.FormatInt(ev.ElapsedMs, 10))
		pipe.LTrim(ctx, latencyKey, 0, latencySampleSize-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("update latency sample: %w", err)
	}
	return nil
}

// writePatterns feeds the zero-result and slow-query detectors.
func (s *Store) writePatterns(ctx context.Context, ev domain.AnalyticsEvent) error {
	q := domain.NormalizeQuery(ev.Query)
	if q == "" || (!ev.IsZeroResults && !ev.IsSlow) {
		return nil
	}
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		if ev.IsZeroResults {
			key := zeroKey(ev.Timestamp)
			pipe.ZIncrBy(ctx, key, 1, q)
			pipe.Expire(ctx, key, queryRetention)
		}
		if ev.IsSlow {
			key := slowKey(ev.Timestamp)
			pipe.ZIncrBy(ctx, key, 1, q)
			pipe.Expire(ctx, key, queryRetention)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("update pattern detectors: %w", err)
	}
	return nil
}

func flag(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
