package kafka

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"
)

// ProducerOption configures Producer.
type ProducerOption func(*ProducerConfig)

// ProducerConfig holds producer configuration.
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	RequiredAcks int
	Compression  string
	MaxAttempts  int
	WriteTimeout time.Duration
	BatchSize    int
	BatchTimeout time.Duration
	HashByKey    bool
	Registerer   prometheus.Registerer
}

func WithBrokers(brokers []string) ProducerOption {
	return func(c *ProducerConfig) {
		c.Brokers = brokers
	}
}

func WithTopic(topic string) ProducerOption {
	return func(c *ProducerConfig) {
		c.Topic = topic
	}
}

// WithCompression sets gzip, snappy, lz4 or zstd.
func WithCompression(compression string) ProducerOption {
	return func(c *ProducerConfig) {
		if compression != "" {
			c.Compression = compression
		}
	}
}

// WithRequiredAcks sets required acknowledgements (-1 = all).
func WithRequiredAcks(acks int) ProducerOption {
	return func(c *ProducerConfig) {
		c.RequiredAcks = acks
	}
}

// WithMaxAttempts sets max retry attempts by the writer.
func WithMaxAttempts(n int) ProducerOption {
	return func(c *ProducerConfig) {
		if n > 0 {
			c.MaxAttempts = n
		}
	}
}

func WithWriteTimeout(d time.Duration) ProducerOption {
	return func(c *ProducerConfig) {
		if d > 0 {
			c.WriteTimeout = d
		}
	}
}

// WithBatchTimeout bounds how long the writer waits to fill a batch.
func WithBatchTimeout(timeout time.Duration) ProducerOption {
	return func(c *ProducerConfig) {
		if timeout > 0 {
			c.BatchTimeout = timeout
		}
	}
}

// WithHashByKey keeps records with the same key on one partition.
func WithHashByKey(hash bool) ProducerOption {
	return func(c *ProducerConfig) {
		c.HashByKey = hash
	}
}

// WithRegisterer enables producer metrics on reg.
func WithRegisterer(reg prometheus.Registerer) ProducerOption {
	return func(c *ProducerConfig) {
		c.Registerer = reg
	}
}

// ConsumerOption configures Consumer.
type ConsumerOption func(*ConsumerConfig)

// ConsumerConfig holds consumer configuration.
type ConsumerConfig struct {
	Brokers         []string
	GroupID         string
	AutoOffsetReset string
	RetryMax        int
	BackoffMin      time.Duration
	BackoffMax      time.Duration
	DLQTopic        string
	DLQWriter       MessageWriter
	MinBytes        int
	MaxBytes        int
	Registerer      prometheus.Registerer
}

func newConsumerConfig(opts []ConsumerOption) *ConsumerConfig {
	cfg := &ConsumerConfig{
		GroupID:         "spxengine",
		AutoOffsetReset: "earliest",
		RetryMax:        3,
		BackoffMin:      50 * time.Millisecond,
		BackoffMax:      2 * time.Second,
		MinBytes:        1,
		MaxBytes:        10e6, // 10MB
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

func (c *ConsumerConfig) startOffset() int64 {
	if c.AutoOffsetReset == "latest" {
		return kafka.LastOffset
	}
	return kafka.FirstOffset
}

func WithConsumerBrokers(brokers []string) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.Brokers = brokers
	}
}

func WithConsumerGroupID(groupID string) ConsumerOption {
	return func(c *ConsumerConfig) {
		if groupID != "" {
			c.GroupID = groupID
		}
	}
}

// WithConsumerAutoOffsetReset picks earliest or latest for new groups.
func WithConsumerAutoOffsetReset(reset string) ConsumerOption {
	return func(c *ConsumerConfig) {
		if reset != "" {
			c.AutoOffsetReset = reset
		}
	}
}

// WithConsumerRetry configures retry attempts and backoff range.
func WithConsumerRetry(max int, backoffMin, backoffMax time.Duration) ConsumerOption {
	return func(c *ConsumerConfig) {
		if max >= 0 {
			c.RetryMax = max
		}
		if backoffMin > 0 {
			c.BackoffMin = backoffMin
		}
		if backoffMax > 0 {
			c.BackoffMax = backoffMax
		}
	}
}

// WithConsumerDLQ dead-letters failed messages to topic.
func WithConsumerDLQ(topic string) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.DLQTopic = topic
	}
}

// WithConsumerDLQWriter sets the dead-letter writer directly.
func WithConsumerDLQWriter(w MessageWriter) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.DLQWriter = w
	}
}

// WithConsumerFetch sets fetch min/max bytes.
func WithConsumerFetch(minBytes, maxBytes int) ConsumerOption {
	return func(c *ConsumerConfig) {
		if minBytes > 0 {
			c.MinBytes = minBytes
		}
		if maxBytes > 0 {
			c.MaxBytes = maxBytes
		}
	}
}

// WithConsumerRegisterer enables consumer metrics on reg.
func WithConsumerRegisterer(reg prometheus.Registerer) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.Registerer = reg
	}
}
