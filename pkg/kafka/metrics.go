package kafka

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	consumerLabels = []string{"topic", "consumer_group"}
	producerLabels = []string{"topic"}
)

func counter(subsystem, name, help string, labels []string) *prometheus.CounterVec {
	return promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kafka",
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, labels)
}

func histogram(subsystem, name, help string, labels []string) *prometheus.HistogramVec {
	return promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "kafka",
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
		Buckets:   prometheus.DefBuckets,
	}, labels)
}

// Consumer side.
var (
	ConsumerMessagesReceived = counter("consumer", "messages_received_total",
		"Messages fetched from the broker.", consumerLabels)
	ConsumerMessagesProcessed = counter("consumer", "messages_processed_total",
		"Messages handled successfully.", consumerLabels)
	ConsumerMessagesFailed = counter("consumer", "messages_failed_total",
		"Messages that exhausted every handler attempt.", consumerLabels)
	ConsumerDLQPublished = counter("consumer", "dlq_published_total",
		"Messages parked on a dead-letter topic.", consumerLabels)
	ConsumerProcessingDuration = histogram("consumer", "processing_duration_seconds",
		"Handler time per message, retries included.", consumerLabels)

	// ConsumerMessagesDuplicate is labelled by event type because the
	// idempotency guard sits below the topic-aware consumer loop.
	ConsumerMessagesDuplicate = counter("consumer", "messages_duplicate_total",
		"Events skipped because their ID was already processed.", []string{"event_type"})
)

// Producer side.
var (
	ProducerMessagesPublished = counter("producer", "messages_published_total",
		"Events written to the broker.", producerLabels)
	ProducerPublishErrors = counter("producer", "publish_errors_total",
		"Failed event writes.", producerLabels)
	ProducerPublishDuration = histogram("producer", "publish_duration_seconds",
		"Time spent writing one event.", producerLabels)
)
