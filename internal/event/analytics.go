package event

import (
	"context"
	"log/slog"

	"github.com/utafrali/productsearch/internal/analytics"
	"github.com/utafrali/productsearch/internal/domain"
	pkgkafka "github.com/utafrali/productsearch/pkg/kafka"
)

// AnalyticsConsumer persists query events published by search replicas.
// Failures are logged and swallowed: analytics never blocks the topic.
type AnalyticsConsumer struct {
	recorder analytics.Recorder
	logger   *slog.Logger
}

// NewAnalyticsConsumer creates a consumer writing into recorder.
func NewAnalyticsConsumer(recorder analytics.Recorder, logger *slog.Logger) *AnalyticsConsumer {
	return &AnalyticsConsumer{
		recorder: recorder,
		logger:   logger,
	}
}

// Handle records one query_tracked event.
func (c *AnalyticsConsumer) Handle(ctx context.Context, event *pkgkafka.Event) error {
	if event.EventType != analytics.EventQueryTracked {
		c.logger.WarnContext(ctx, "unknown event type received",
			slog.String("event_type", event.EventType),
			slog.String("event_id", event.EventID),
		)
		return nil
	}

	var ev domain.AnalyticsEvent
	if err := event.UnmarshalData(&ev); err != nil {
		c.logger.WarnContext(ctx, "malformed analytics event dropped",
			slog.String("event_id", event.EventID),
			slog.String("error", err.Error()),
		)
		return nil
	}

	if err := c.recorder.Record(ctx, ev); err != nil {
		c.logger.WarnContext(ctx, "analytics event not recorded",
			slog.String("event_id", ev.EventID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}
