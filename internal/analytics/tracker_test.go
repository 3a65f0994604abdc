package analytics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/productsearch/internal/domain"
	"github.com/utafrali/productsearch/pkg/kafka"
)

type fakeRecorder struct {
	mu      sync.Mutex
	events  []domain.AnalyticsEvent
	started int
	block   chan struct{}
	err     error
}

func (f *fakeRecorder) Record(_ context.Context, ev domain.AnalyticsEvent) error {
	f.mu.Lock()
	f.started++
	f.mu.Unlock()

	if f.block != nil {
		<-f.block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return f.err
}

func (f *fakeRecorder) startedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}

func (f *fakeRecorder) recorded() []domain.AnalyticsEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.AnalyticsEvent(nil), f.events...)
}

func TestTracker_RecordsEvents(t *testing.T) {
	rec := &fakeRecorder{}
	tracker, err := NewTracker(rec, TrackerConfig{QueueSize: 16, Workers: 2}, testLogger())
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		tracker.Track(event("laptop", 3, 10, testNow))
	}
	require.NoError(t, tracker.Close(context.Background()))

	assert.Len(t, rec.recorded(), 5)
	assert.Equal(t, uint64(5), tracker.Recorded())
	assert.Zero(t, tracker.Dropped())
}

func TestTracker_DropsWhenQueueFull(t *testing.T) {
	rec := &fakeRecorder{block: make(chan struct{})}
	tracker, err := NewTracker(rec, TrackerConfig{QueueSize: 1, Workers: 1}, testLogger())
	require.NoError(t, err)

	tracker.Track(event("first", 1, 10, testNow))
	require.Eventually(t, func() bool { return rec.startedCount() == 1 }, time.Second, 5*time.Millisecond)

	// The only worker is busy: at most one event waits in the dispatcher and
	// one in the queue, the rest are dropped.
	for i := 0; i < 10; i++ {
		tracker.Track(event("burst", 1, 10, testNow))
	}
	assert.GreaterOrEqual(t, tracker.Dropped(), uint64(8))

	close(rec.block)
	require.NoError(t, tracker.Close(context.Background()))
	assert.Equal(t, uint64(11), tracker.Recorded()+tracker.Dropped())
}

func TestTracker_TrackAfterCloseDrops(t *testing.T) {
	rec := &fakeRecorder{}
	tracker, err := NewTracker(rec, DefaultTrackerConfig(), testLogger())
	require.NoError(t, err)
	require.NoError(t, tracker.Close(context.Background()))
	require.NoError(t, tracker.Close(context.Background()))

	tracker.Track(event("late", 1, 10, testNow))
	assert.Equal(t, uint64(1), tracker.Dropped())
	assert.Empty(t, rec.recorded())
}

func TestTracker_CountsFailures(t *testing.T) {
	rec := &fakeRecorder{err: errors.New("redis down")}
	tracker, err := NewTracker(rec, TrackerConfig{QueueSize: 4, Workers: 1}, testLogger())
	require.NoError(t, err)

	tracker.Track(event("laptop", 1, 10, testNow))
	require.NoError(t, tracker.Close(context.Background()))

	assert.Equal(t, uint64(1), tracker.Failed())
	assert.Zero(t, tracker.Recorded())
}

func TestTracker_CloseHonoursDeadline(t *testing.T) {
	rec := &fakeRecorder{block: make(chan struct{})}
	defer close(rec.block)
	tracker, err := NewTracker(rec, TrackerConfig{QueueSize: 4, Workers: 1}, testLogger())
	require.NoError(t, err)

	tracker.Track(event("stuck", 1, 10, testNow))
	require.Eventually(t, func() bool { return rec.startedCount() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, tracker.Close(ctx), context.DeadlineExceeded)
}

type fakeProducer struct {
	topic string
	event *kafka.Event
	err   error
}

func (f *fakeProducer) Publish(_ context.Context, topic string, ev *kafka.Event) error {
	f.topic = topic
	f.event = ev
	return f.err
}

func TestPublisher_Record(t *testing.T) {
	producer := &fakeProducer{}
	pub := NewPublisher(producer)
	ev := event("laptop", 3, 42, testNow)

	require.NoError(t, pub.Record(context.Background(), ev))

	assert.Equal(t, "ecommerce.search.query_tracked", producer.topic)
	require.NotNil(t, producer.event)
	assert.Equal(t, ev.EventID, producer.event.EventID)
	assert.Equal(t, EventQueryTracked, producer.event.EventType)

	var decoded domain.AnalyticsEvent
	require.NoError(t, producer.event.UnmarshalData(&decoded))
	assert.Equal(t, "laptop", decoded.Query)
	assert.Equal(t, int64(42), decoded.ElapsedMs)
}

func TestPublisher_RecordError(t *testing.T) {
	pub := NewPublisher(&fakeProducer{err: errors.New("broker unavailable")})

	err := pub.Record(context.Background(), event("laptop", 3, 42, testNow))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker unavailable")
}
