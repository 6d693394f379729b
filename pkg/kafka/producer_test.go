package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	got    []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.got = append(f.got, msgs...)
	return f.err
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestPublishBatchEncodesValues(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, "spx.replay_snapshots", "gzip")

	err := p.PublishBatch(context.Background(), []Message{
		{Key: []byte("SPX:2026-02-20"), Value: map[string]int{"flow_event_count": 3}},
		{Key: []byte("SPX:2026-02-20"), Value: "raw"},
		{Value: []byte(`{"a":1}`)},
	})
	require.NoError(t, err)
	require.Len(t, w.got, 3)
	assert.Equal(t, "SPX:2026-02-20", string(w.got[0].Key))
	assert.JSONEq(t, `{"flow_event_count":3}`, string(w.got[0].Value))
	assert.Equal(t, "raw", string(w.got[1].Value))
	assert.Equal(t, `{"a":1}`, string(w.got[2].Value))
	assert.False(t, w.got[0].Time.IsZero())
}

func TestPublishBatchEmptyIsNoop(t *testing.T) {
	w := &fakeWriter{}
	require.NoError(t, NewProducerWithWriter(w, "t", "gzip").PublishBatch(context.Background(), nil))
	assert.Empty(t, w.got)
}

func TestPublishBatchUnmarshalableValue(t *testing.T) {
	w := &fakeWriter{}
	err := NewProducerWithWriter(w, "t", "gzip").PublishBatch(context.Background(), []Message{{Value: make(chan int)}})
	require.Error(t, err)
	assert.Empty(t, w.got)
}

func TestPublishBatchRecordsResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	w := &fakeWriter{err: errors.New("leader not available")}
	p := NewProducerWithWriter(w, "spx.replay_snapshots", "gzip")
	p.metrics = newProducerMetrics(reg)

	err := p.PublishBatch(context.Background(), []Message{{Value: "a"}, {Value: "b"}})
	require.ErrorContains(t, err, "leader not available")
	assert.Equal(t, 2.0, testutil.ToFloat64(p.metrics.msgs.WithLabelValues("spx.replay_snapshots", "error")))

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestNewProducerRequiresBrokersAndTopic(t *testing.T) {
	_, err := NewProducer(WithTopic("t"))
	assert.ErrorContains(t, err, "brokers")

	_, err = NewProducer(WithBrokers([]string{"localhost:9092"}))
	assert.ErrorContains(t, err, "topic")

	p, err := NewProducer(WithBrokers([]string{"localhost:9092"}), WithTopic("spx.replay_snapshots"), WithCompression("zstd"))
	require.NoError(t, err)
	assert.Equal(t, "spx.replay_snapshots", p.Topic())
	require.NoError(t, p.Close())
}
