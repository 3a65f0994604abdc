package analytics

import (
	"context"
	"fmt"

	"github.com/utafrali/productsearch/internal/domain"
	"github.com/utafrali/productsearch/pkg/kafka"
)

// Event type and aggregate of published analytics events.
const (
	EventQueryTracked = "search.query_tracked"
	aggregateType     = "search_query"
	eventSource       = "search-service"
)

// QueryTrackedTopic is the topic analytics events are published to.
var QueryTrackedTopic = kafka.Topic("search", "query_tracked")

// EventPublisher is the subset of the Kafka producer used here.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event *kafka.Event) error
}

// Publisher is a Recorder that forwards events to Kafka instead of writing
// them to Redis. A consumer on the other side calls Store.Record.
type Publisher struct {
	producer EventPublisher
	topic    string
}

var _ Recorder = (*Publisher)(nil)

// NewPublisher creates a Publisher writing to QueryTrackedTopic.
func NewPublisher(producer EventPublisher) *Publisher {
	return &Publisher{producer: producer, topic: QueryTrackedTopic}
}

// Record publishes the event. The envelope reuses the analytics event ID so
// consumers can deduplicate redeliveries.
func (p *Publisher) Record(ctx context.Context, event domain.AnalyticsEvent) error {
	envelope, err := kafka.NewEvent(EventQueryTracked, event.EventID, aggregateType, eventSource, event)
	if err != nil {
		return fmt.Errorf("build analytics envelope: %w", err)
	}
	envelope.EventID = event.EventID
	if err := p.producer.Publish(ctx, p.topic, envelope); err != nil {
		return fmt.Errorf("publish analytics event: %w", err)
	}
	return nil
}
