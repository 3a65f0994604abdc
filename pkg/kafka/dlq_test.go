package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDLQProducer_Publish_AddsProvenance(t *testing.T) {
	w := &captureWriter{}
	d := &DLQProducer{writer: w, logger: testLogger()}
	original := kafka.Message{
		Topic:     "ecommerce.product.updated",
		Partition: 2,
		Offset:    1187,
		Key:       []byte("p-1"),
		Value:     []byte(`{"event_id":"e-1"}`),
		Headers:   []kafka.Header{{Key: "event_type", Value: []byte("product.updated")}},
	}

	require.NoError(t, d.Publish(context.Background(), original, errors.New("index unavailable"), "search-service"))

	require.Len(t, w.msgs, 1)
	parked := w.msgs[0]
	assert.Equal(t, "ecommerce.dlq.ecommerce.product.updated", parked.Topic)
	assert.Equal(t, original.Key, parked.Key)
	assert.Equal(t, original.Value, parked.Value)
	assert.Equal(t, "product.updated", header(parked, "event_type"))
	assert.Equal(t, "ecommerce.product.updated", header(parked, HeaderDLQTopic))
	assert.Equal(t, "2", header(parked, HeaderDLQPartition))
	assert.Equal(t, "1187", header(parked, HeaderDLQOffset))
	assert.Equal(t, "search-service", header(parked, HeaderDLQGroup))
	assert.Equal(t, "index unavailable", header(parked, HeaderDLQError))
	assert.Len(t, original.Headers, 1, "source headers are not mutated")
}

func TestDLQProducer_Publish_NoCause(t *testing.T) {
	w := &captureWriter{}
	d := &DLQProducer{writer: w, logger: testLogger()}
	require.NoError(t, d.Publish(context.Background(), kafka.Message{Topic: "t"}, nil, "g"))
	assert.Empty(t, header(w.msgs[0], HeaderDLQError))
}

func TestDLQProducer_Publish_WriteFailure(t *testing.T) {
	w := &captureWriter{err: errors.New("broker down")}
	d := &DLQProducer{writer: w, logger: testLogger()}
	err := d.Publish(context.Background(), kafka.Message{Topic: "ecommerce.product.deleted"}, nil, "g")
	assert.ErrorContains(t, err, "publish to DLQ ecommerce.dlq.ecommerce.product.deleted")

	require.NoError(t, d.Close())
	assert.True(t, w.closed)
}
