package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// handlerAttempts bounds how often one message is handed to the handler
// before it is dead-lettered and committed.
const handlerAttempts = 3

// Handler processes one decoded event.
type Handler func(ctx context.Context, event *Event) error

type ConsumerConfig struct {
	Brokers  []string
	GroupID  string
	Topic    string
	MinBytes int
	MaxBytes int
	// DLQ receives messages that failed every attempt. Nil drops them.
	DLQ DeadLetterPublisher
}

// DeadLetterPublisher parks messages that could not be handled.
type DeadLetterPublisher interface {
	Publish(ctx context.Context, originalMsg kafka.Message, lastErr error, consumerGroup string) error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads one topic as part of a consumer group and commits each
// message after it was handled, dead-lettered or found undecodable.
type Consumer struct {
	reader    messageReader
	topic     string
	group     string
	dlq       DeadLetterPublisher
	logger    *slog.Logger
	handler   Handler
	backoff   time.Duration
	closeOnce sync.Once
}

func NewConsumer(cfg ConsumerConfig, handler Handler, logger *slog.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: cfg.MinBytes,
		MaxBytes: cfg.MaxBytes,
	})
	return newConsumer(r, cfg, handler, logger)
}

func newConsumer(r messageReader, cfg ConsumerConfig, handler Handler, logger *slog.Logger) *Consumer {
	return &Consumer{
		reader:  r,
		topic:   cfg.Topic,
		group:   cfg.GroupID,
		dlq:     cfg.DLQ,
		logger:  logger.With(slog.String("topic", cfg.Topic), slog.String("group", cfg.GroupID)),
		handler: handler,
		backoff: 100 * time.Millisecond,
	}
}

func (c *Consumer) Topic() string {
	return c.topic
}

// Start consumes until ctx is canceled, then closes the reader.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	defer c.logger.Info("consumer stopped")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return c.Close()
			}
			c.logger.Error("fetch message failed", slog.String("error", err.Error()))
			if !c.wait(ctx, c.backoff) {
				return c.Close()
			}
			continue
		}
		if !c.process(ctx, msg) {
			return c.Close()
		}
	}
}

// process handles and commits msg. It returns false when ctx ended between
// attempts; the message then stays uncommitted and is redelivered.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) bool {
	ConsumerMessagesReceived.WithLabelValues(msg.Topic, c.group).Inc()
	log := c.logger.With(slog.Int("partition", msg.Partition), slog.Int64("offset", msg.Offset))

	event, err := UnmarshalEvent(msg.Value)
	if err != nil {
		log.Error("undecodable message", slog.String("error", err.Error()))
		c.deadLetter(ctx, msg, fmt.Errorf("unmarshal event: %w", err))
		c.commit(ctx, msg)
		return true
	}
	log = log.With(slog.String("event_type", event.EventType), slog.String("aggregate_id", event.AggregateID))

	ctx = otel.GetTextMapPropagator().Extract(ctx, NewKafkaHeaderCarrier(&msg.Headers))
	ctx, span := otel.Tracer(tracerName).Start(ctx, "kafka.consume "+msg.Topic,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination.name", msg.Topic),
			attribute.String("messaging.consumer.group.name", c.group),
			attribute.String("messaging.event_type", event.EventType),
			attribute.Int64("messaging.kafka.offset", msg.Offset),
		),
	)
	defer span.End()

	start := time.Now()
	var lastErr error
	for attempt := 1; attempt <= handlerAttempts; attempt++ {
		if lastErr = c.handler(ctx, event); lastErr == nil {
			break
		}
		log.Warn("handler failed",
			slog.String("error", lastErr.Error()),
			slog.Int("attempt", attempt),
		)
		if attempt < handlerAttempts && !c.wait(ctx, time.Duration(attempt)*c.backoff) {
			return false
		}
	}
	ConsumerProcessingDuration.WithLabelValues(msg.Topic, c.group).Observe(time.Since(start).Seconds())

	if lastErr != nil {
		span.RecordError(lastErr)
		span.SetStatus(codes.Error, lastErr.Error())
		ConsumerMessagesFailed.WithLabelValues(msg.Topic, c.group).Inc()
		log.Error("giving up on message", slog.String("error", lastErr.Error()))
		c.deadLetter(ctx, msg, lastErr)
	} else {
		ConsumerMessagesProcessed.WithLabelValues(msg.Topic, c.group).Inc()
	}
	c.commit(ctx, msg)
	return true
}

// wait sleeps for d and reports whether ctx is still live.
func (c *Consumer) wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Consumer) deadLetter(ctx context.Context, msg kafka.Message, cause error) {
	if c.dlq == nil {
		return
	}
	if err := c.dlq.Publish(ctx, msg, cause, c.group); err == nil {
		ConsumerDLQPublished.WithLabelValues(msg.Topic, c.group).Inc()
	}
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.logger.Error("commit failed",
			slog.Int64("offset", msg.Offset),
			slog.String("error", err.Error()),
		)
	}
}

// Close closes the reader once; later calls return nil.
func (c *Consumer) Close() error {
	var err error
	c.closeOnce.Do(func() { err = c.reader.Close() })
	return err
}

// TopicPrefix namespaces every catalog and search topic.
const TopicPrefix = "ecommerce"

// Topic returns "ecommerce.<domain>.<action>".
func Topic(domain, action string) string {
	return TopicPrefix + "." + domain + "." + action
}
