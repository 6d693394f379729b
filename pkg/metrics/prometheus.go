package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"SPXEngine/internal/domain/models"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	rowsTotal      *prometheus.CounterVec
	batchesTotal   prometheus.Counter
	pendingRows    prometheus.Gauge
	insertFailures *prometheus.CounterVec
	contextSources *prometheus.CounterVec
	latency        *prometheus.HistogramVec
}

// New creates a recorder registered on reg (the default registry when nil).
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		rowsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spxengine_replay_rows_total",
				Help: "Replay snapshot rows flushed, by outcome",
			},
			[]string{"outcome"},
		),
		batchesTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "spxengine_replay_batches_total",
				Help: "Replay snapshot insert batches attempted",
			},
		),
		pendingRows: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "spxengine_replay_pending_rows",
				Help: "Rows waiting in the replay writer queue",
			},
		),
		insertFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spxengine_replay_insert_failures_total",
				Help: "Failed replay inserts by error code",
			},
			[]string{"code"},
		),
		contextSources: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spxengine_multi_tf_context_total",
				Help: "Multi-timeframe contexts served, by source",
			},
			[]string{"source"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "spxengine_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordFlush adds one flush outcome.
func (r *Recorder) RecordFlush(o models.FlushOutcome) {
	r.rowsTotal.WithLabelValues("inserted").Add(float64(o.Inserted))
	r.rowsTotal.WithLabelValues("discarded").Add(float64(o.Discarded))
	r.batchesTotal.Add(float64(o.Batches))
}

// RecordPending sets the queue depth gauge.
func (r *Recorder) RecordPending(n int) {
	r.pendingRows.Set(float64(n))
}

// RecordInsertFailure counts a failed batch insert.
func (r *Recorder) RecordInsertFailure(code string) {
	if code == "" {
		code = "unknown"
	}
	r.insertFailures.WithLabelValues(code).Inc()
}

// RecordContextSource counts where a context was served from.
func (r *Recorder) RecordContextSource(source string) {
	r.contextSources.WithLabelValues(source).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// Nop discards every measurement.
type Nop struct{}

func (Nop) RecordFlush(models.FlushOutcome) {}
func (Nop) RecordPending(int) {}
func (Nop) RecordInsertFailure(string) {}
func (Nop) RecordContextSource(string) {}
func (Nop) RecordLatency(string, float64) {}
