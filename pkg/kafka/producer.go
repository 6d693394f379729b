package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer the producer uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Message is one record to publish. Value is sent as-is when it is []byte
// or string and JSON-encoded otherwise.
type Message struct {
	Key   []byte
	Value interface{}
}

// Producer publishes JSON records to a single topic.
type Producer struct {
	writer  MessageWriter
	topic   string
	comp    string
	metrics *producerMetrics
}

// NewProducer builds a kafka-go writer from options.
func NewProducer(opts ...ProducerOption) (*Producer, error) {
	cfg := &ProducerConfig{
		RequiredAcks: -1,
		Compression:  "gzip",
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		BatchSize:    100,
		BatchTimeout: 50 * time.Millisecond,
		HashByKey:    true,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}

	bal := kafka.Balancer(&kafka.LeastBytes{})
	if cfg.HashByKey {
		bal = &kafka.Hash{}
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     bal,
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:  parseCompression(cfg.Compression),
		MaxAttempts:  cfg.MaxAttempts,
		WriteTimeout: cfg.WriteTimeout,
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
	}
	p := NewProducerWithWriter(writer, cfg.Topic, cfg.Compression)
	if cfg.Registerer != nil {
		p.metrics = newProducerMetrics(cfg.Registerer)
	}
	return p, nil
}

// NewProducerWithWriter wraps an existing writer whose topic is already set.
func NewProducerWithWriter(w MessageWriter, topic, compression string) *Producer {
	return &Producer{writer: w, topic: topic, comp: compression}
}

func (p *Producer) Topic() string { return p.topic }

// PublishBatch encodes and writes messages in one call.
func (p *Producer) PublishBatch(ctx context.Context, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}

	start := time.Now()
	msgs := make([]kafka.Message, 0, len(messages))
	var totalBytes int64
	for _, m := range messages {
		var v []byte
		switch val := m.Value.(type) {
		case []byte:
			v = val
		case string:
			v = []byte(val)
		default:
			var err error
			v, err = json.Marshal(m.Value)
			if err != nil {
				return fmt.Errorf("marshal value: %w", err)
			}
		}
		msgs = append(msgs, kafka.Message{Key: m.Key, Value: v, Time: start})
		totalBytes += int64(len(v))
	}

	err := p.writer.WriteMessages(ctx, msgs...)
	p.metrics.observe(p.topic, p.comp, totalBytes, len(messages), time.Since(start), err)
	if err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

func (p *Producer) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}

func parseCompression(s string) kafka.Compression {
	switch s {
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Gzip
	}
}

type producerMetrics struct {
	msgs    *prometheus.CounterVec
	bytes   *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

func newProducerMetrics(reg prometheus.Registerer) *producerMetrics {
	f := promauto.With(reg)
	return &producerMetrics{
		msgs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "spxengine_kafka_producer_messages_total",
			Help: "Messages published to Kafka by result",
		}, []string{"topic", "result"}),
		bytes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "spxengine_kafka_producer_bytes_total",
			Help: "Payload bytes published",
		}, []string{"topic", "compression"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "spxengine_kafka_producer_publish_seconds",
			Help:    "Publish latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"topic"}),
	}
}

func (m *producerMetrics) observe(topic, comp string, bytes int64, count int, dur time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.msgs.WithLabelValues(topic, result).Add(float64(count))
	m.bytes.WithLabelValues(topic, comp).Add(float64(bytes))
	m.latency.WithLabelValues(topic).Observe(dur.Seconds())
}
