package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/utafrali/productsearch/internal/domain"
)

var eventsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "search_analytics_events_total",
		Help: "Total number of analytics events by outcome",
	},
	[]string{"outcome"},
)

// Sink accepts events without blocking the caller.
type Sink interface {
	Track(event domain.AnalyticsEvent)
}

// TrackerConfig tunes the asynchronous pipeline.
type TrackerConfig struct {
	QueueSize     int
	Workers       int
	RecordTimeout time.Duration
}

// DefaultTrackerConfig returns the defaults used when no configuration is given.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		QueueSize:     1024,
		Workers:       8,
		RecordTimeout: 2 * time.Second,
	}
}

// Tracker queues events in a bounded channel and records them on a worker
// pool. When the queue is full new events are dropped.
type Tracker struct {
	recorder Recorder
	cfg      TrackerConfig
	logger   *slog.Logger

	queue chan domain.AnalyticsEvent
	pool  *ants.Pool
	tasks sync.WaitGroup
	done  chan struct{}

	mu     sync.RWMutex
	closed bool

	dropped  atomic.Uint64
	recorded atomic.Uint64
	failed   atomic.Uint64
}

var _ Sink = (*Tracker)(nil)

// NewTracker creates a Tracker and starts its dispatcher.
func NewTracker(recorder Recorder, cfg TrackerConfig, logger *slog.Logger) (*Tracker, error) {
	def := DefaultTrackerConfig()
	if cfg.QueueSize < 1 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.Workers < 1 {
		cfg.Workers = def.Workers
	}
	if cfg.RecordTimeout <= 0 {
		cfg.RecordTimeout = def.RecordTimeout
	}

	pool, err := ants.NewPool(cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("create analytics worker pool: %w", err)
	}

	t := &Tracker{
		recorder: recorder,
		cfg:      cfg,
		logger:   logger,
		queue:    make(chan domain.AnalyticsEvent, cfg.QueueSize),
		pool:     pool,
		done:     make(chan struct{}),
	}
	go t.dispatch()
	return t, nil
}

// Track enqueues an event. It never blocks.
func (t *Tracker) Track(event domain.AnalyticsEvent) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.closed {
		t.drop(event, "tracker closed")
		return
	}
	select {
	case t.queue <- event:
		eventsTotal.WithLabelValues("queued").Inc()
	default:
		t.drop(event, "analytics queue full")
	}
}

// Dropped returns how many events were discarded.
func (t *Tracker) Dropped() uint64 { return t.dropped.Load() }

// Recorded returns how many events were recorded successfully.
func (t *Tracker) Recorded() uint64 { return t.recorded.Load() }

// Failed returns how many events had at least one failed write.
func (t *Tracker) Failed() uint64 { return t.failed.Load() }

// Close stops accepting events, drains the queue and waits for in-flight
// records to finish or ctx to expire.
func (t *Tracker) Close(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.queue)
	t.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		<-t.done
		t.tasks.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		t.pool.Release()
		return nil
	case <-ctx.Done():
		t.pool.Release()
		return fmt.Errorf("drain analytics queue: %w", ctx.Err())
	}
}

func (t *Tracker) dispatch() {
	defer close(t.done)
	for event := range t.queue {
		t.tasks.Add(1)
		if err := t.pool.Submit(func() {
			defer t.tasks.Done()
			t.record(event)
		}); err != nil {
			t.tasks.Done()
			t.logger.Warn("analytics worker pool rejected event, recording inline",
				slog.String("event_id", event.EventID),
				slog.String("error", err.Error()),
			)
			t.record(event)
		}
	}
}

func (t *Tracker) record(event domain.AnalyticsEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), t.cfg.RecordTimeout)
	defer cancel()

	if err := t.recorder.Record(ctx, event); err != nil {
		t.failed.Add(1)
		eventsTotal.WithLabelValues("failed").Inc()
		t.logger.Warn("failed to record analytics event",
			slog.String("event_id", event.EventID),
			slog.String("error", err.Error()),
		)
		return
	}
	t.recorded.Add(1)
	eventsTotal.WithLabelValues("recorded").Inc()
}

func (t *Tracker) drop(event domain.AnalyticsEvent, reason string) {
	t.dropped.Add(1)
	eventsTotal.WithLabelValues("dropped").Inc()
	t.logger.Warn("analytics event dropped",
		slog.String("reason", reason),
		slog.String("event_id", event.EventID),
		slog.String("query", event.Query),
	)
}
