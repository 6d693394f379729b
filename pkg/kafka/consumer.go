package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"

	applogger "SPXEngine/pkg/logger"
)

// MessageHandler handles messages from a specific topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// MessageReader is the subset of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. The message is dead-lettered
// (when a DLQ is set) and committed.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Consumer reads one topic and hands each message to a handler, in
// order, committing after it is handled.
type Consumer struct {
	cfg     *ConsumerConfig
	reader  MessageReader
	handler MessageHandler
	dlq     MessageWriter
	log     *applogger.Logger
	metrics *consumerMetrics

	runMu    sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// NewConsumer builds a kafka-go group reader for handler.Topic().
func NewConsumer(handler MessageHandler, log *applogger.Logger, opts ...ConsumerOption) (*Consumer, error) {
	cfg := newConsumerConfig(opts)
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	if handler == nil || handler.Topic() == "" {
		return nil, fmt.Errorf("handler topic is required")
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       handler.Topic(),
		GroupID:     cfg.GroupID,
		MinBytes:    cfg.MinBytes,
		MaxBytes:    cfg.MaxBytes,
		StartOffset: cfg.startOffset(),
	})
	if cfg.DLQTopic != "" && cfg.DLQWriter == nil {
		cfg.DLQWriter = &kafka.Writer{
			Addr:     kafka.TCP(cfg.Brokers...),
			Topic:    cfg.DLQTopic,
			Balancer: &kafka.LeastBytes{},
		}
	}
	return newConsumer(cfg, reader, handler, log), nil
}

// NewConsumerWithReader wraps an existing reader.
func NewConsumerWithReader(reader MessageReader, handler MessageHandler, log *applogger.Logger, opts ...ConsumerOption) *Consumer {
	return newConsumer(newConsumerConfig(opts), reader, handler, log)
}

func newConsumer(cfg *ConsumerConfig, reader MessageReader, handler MessageHandler, log *applogger.Logger) *Consumer {
	if log == nil {
		log = applogger.Nop()
	}
	c := &Consumer{
		cfg:     cfg,
		reader:  reader,
		handler: handler,
		dlq:     cfg.DLQWriter,
		log:     log.With(applogger.String("topic", handler.Topic())),
	}
	if cfg.Registerer != nil {
		c.metrics = newConsumerMetrics(cfg.Registerer)
	}
	return c
}

func (c *Consumer) Topic() string { return c.handler.Topic() }

// Start launches the fetch loop. Calling it again is a no-op.
func (c *Consumer) Start(ctx context.Context) {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.done != nil {
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	go c.run(ctx, c.done)
	c.log.Info("kafka consumer started", applogger.String("group_id", c.cfg.GroupID))
}

// Stop ends the fetch loop, waits for the in-flight message and closes
// the reader and DLQ writer. Safe to call more than once.
func (c *Consumer) Stop(ctx context.Context) error {
	var stopErr error
	c.stopOnce.Do(func() {
		c.runMu.Lock()
		cancel, done := c.cancel, c.done
		c.runMu.Unlock()

		if cancel != nil {
			cancel()
			select {
			case <-done:
			case <-ctx.Done():
				stopErr = fmt.Errorf("timeout waiting for consumer to stop: %w", ctx.Err())
			}
		}
		if err := c.reader.Close(); err != nil {
			stopErr = errors.Join(stopErr, fmt.Errorf("close reader: %w", err))
		}
		if c.dlq != nil {
			if err := c.dlq.Close(); err != nil {
				stopErr = errors.Join(stopErr, fmt.Errorf("close dlq writer: %w", err))
			}
		}
		c.log.Info("kafka consumer stopped")
	})
	return stopErr
}

func (c *Consumer) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	failures := 0
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return
			}
			failures++
			c.log.Warn("kafka fetch failed", applogger.Error(err))
			if !c.sleep(ctx, backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, failures)) {
				return
			}
			continue
		}
		failures = 0
		c.process(ctx, msg)
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) {
	start := time.Now()
	err := c.handleWithRetry(ctx, msg.Value)
	if err != nil && ctx.Err() != nil {
		// Shutting down mid-retry; leave the offset for the next member.
		return
	}

	result := "ok"
	commit := err == nil
	if err != nil {
		result = "failed"
		c.log.Warn("kafka message handling failed",
			applogger.Int("partition", msg.Partition),
			applogger.Int64("offset", msg.Offset),
			applogger.Bool("permanent", IsPermanent(err)),
			applogger.Error(err),
		)
		if c.deadLetter(ctx, msg, err) {
			result = "dead_lettered"
			commit = true
		} else if IsPermanent(err) {
			commit = true
		}
	}
	if commit {
		c.commitWithRetry(ctx, msg, 3)
	}
	c.metrics.observe(c.handler.Topic(), result, time.Since(start))
}

func (c *Consumer) handleWithRetry(ctx context.Context, data []byte) error {
	for attempt := 1; ; attempt++ {
		err := c.safeHandle(ctx, data)
		if err == nil || IsPermanent(err) || attempt > c.cfg.RetryMax {
			return err
		}
		if !c.sleep(ctx, backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt)) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) safeHandle(ctx context.Context, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = Permanent(fmt.Errorf("handler panic: %v", r))
		}
	}()
	return c.handler.Handle(ctx, data)
}

func (c *Consumer) deadLetter(ctx context.Context, msg kafka.Message, cause error) bool {
	if c.dlq == nil {
		return false
	}
	headers := append([]kafka.Header{}, msg.Headers...)
	headers = append(headers,
		kafka.Header{Key: "source_topic", Value: []byte(c.handler.Topic())},
		kafka.Header{Key: "error", Value: []byte(cause.Error())},
	)
	err := c.dlq.WriteMessages(ctx, kafka.Message{
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers,
		Time:    time.Now(),
	})
	if err != nil {
		c.log.Error("kafka dlq write failed", applogger.Error(err))
		return false
	}
	return true
}

func (c *Consumer) commitWithRetry(ctx context.Context, msg kafka.Message, max int) {
	var err error
	for attempt := 1; attempt <= max; attempt++ {
		cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err = c.reader.CommitMessages(cctx, msg)
		cancel()
		if err == nil {
			return
		}
		if !c.sleep(ctx, backoffWithJitter(50*time.Millisecond, 500*time.Millisecond, attempt)) {
			break
		}
	}
	c.log.Error("kafka commit failed",
		applogger.Int64("offset", msg.Offset),
		applogger.Int("attempts", max),
		applogger.Error(err),
	)
}

func (c *Consumer) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	if attempt < 1 {
		attempt = 1
	}
	exp := max
	if attempt < 32 {
		if d := min * time.Duration(1<<uint(attempt-1)); d > 0 && d < max {
			exp = d
		}
	}
	// jitter up to 50%
	half := int64(exp) / 2
	if half <= 0 {
		return exp
	}
	return exp - time.Duration(rand.Int63n(half))
}

type consumerMetrics struct {
	msgs    *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

func newConsumerMetrics(reg prometheus.Registerer) *consumerMetrics {
	f := promauto.With(reg)
	return &consumerMetrics{
		msgs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "spxengine_kafka_consumer_messages_total",
			Help: "Messages consumed from Kafka by result",
		}, []string{"topic", "result"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "spxengine_kafka_consumer_handle_seconds",
			Help:    "Handling time per message including retries",
			Buckets: prometheus.DefBuckets,
		}, []string{"topic"}),
	}
}

func (m *consumerMetrics) observe(topic, result string, dur time.Duration) {
	if m == nil {
		return
	}
	m.msgs.WithLabelValues(topic, result).Inc()
	m.latency.WithLabelValues(topic).Observe(dur.Seconds())
}
