package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// DLQTopicPrefix namespaces dead-letter topics.
const DLQTopicPrefix = "ecommerce.dlq"

// DLQ header keys describing where a parked message came from.
const (
	HeaderDLQTopic     = "dlq.original_topic"
	HeaderDLQPartition = "dlq.original_partition"
	HeaderDLQOffset    = "dlq.original_offset"
	HeaderDLQGroup     = "dlq.consumer_group"
	HeaderDLQError     = "dlq.error"
)

// DLQProducer parks messages a consumer gave up on. Each message is
// written synchronously so the consumer only commits after it is stored.
type DLQProducer struct {
	writer messageWriter
	logger *slog.Logger
}

func NewDLQProducer(brokers []string, logger *slog.Logger) *DLQProducer {
	return &DLQProducer{
		writer: newWriter(brokers, 1, 100*time.Millisecond),
		logger: logger,
	}
}

// DLQTopic maps a source topic onto its dead-letter topic.
func DLQTopic(topic string) string {
	return DLQTopicPrefix + "." + topic
}

// Publish copies msg to its dead-letter topic with provenance headers.
func (d *DLQProducer) Publish(ctx context.Context, msg kafka.Message, lastErr error, consumerGroup string) error {
	parked := kafka.Message{
		Topic:   DLQTopic(msg.Topic),
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: deadLetterHeaders(msg, lastErr, consumerGroup),
	}

	log := d.logger.With(
		slog.String("dlq_topic", parked.Topic),
		slog.String("original_topic", msg.Topic),
		slog.Int("partition", msg.Partition),
		slog.Int64("offset", msg.Offset),
	)
	if err := d.writer.WriteMessages(ctx, parked); err != nil {
		log.Error("failed to publish message to DLQ", slog.String("error", err.Error()))
		return fmt.Errorf("publish to DLQ %s: %w", parked.Topic, err)
	}
	log.Warn("message sent to DLQ", slog.String("consumer_group", consumerGroup))
	return nil
}

func deadLetterHeaders(msg kafka.Message, lastErr error, group string) []kafka.Header {
	headers := append(make([]kafka.Header, 0, len(msg.Headers)+5), msg.Headers...)
	headers = append(headers,
		kafka.Header{Key: HeaderDLQTopic, Value: []byte(msg.Topic)},
		kafka.Header{Key: HeaderDLQPartition, Value: []byte(strconv.Itoa(msg.Partition))},
		kafka.Header{Key: HeaderDLQOffset, Value: []byte(strconv.FormatInt(msg.Offset, 10))},
		kafka.Header{Key: HeaderDLQGroup, Value: []byte(group)},
	)
	if lastErr != nil {
		headers = append(headers, kafka.Header{Key: HeaderDLQError, Value: []byte(lastErr.Error())})
	}
	return headers
}

func (d *DLQProducer) Close() error {
	return d.writer.Close()
}
