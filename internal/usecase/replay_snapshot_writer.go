package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"SPXEngine/internal/domain/models"
	domrepo "SPXEngine/internal/domain/repository"
	domsvc "SPXEngine/internal/domain/service"
	"SPXEngine/pkg/logger"
	"SPXEngine/pkg/markethours"
	"SPXEngine/pkg/metrics"
)

const (
	// ReplayBatchSize is the fixed number of rows per insert call.
	ReplayBatchSize = 5

	DefaultReplayFlushInterval = 60 * time.Second
)

// ReplayWriterConfig is the runtime configuration of the writer.
type ReplayWriterConfig struct {
	Enabled       bool
	FlushInterval time.Duration
	Symbol        string
}

// ReplayWriterOption customizes collaborators, mostly for tests.
type ReplayWriterOption func(*ReplaySnapshotWriter)

// WithMarketOpen replaces the market-open predicate.
func WithMarketOpen(fn domsvc.MarketOpenFunc) ReplayWriterOption {
	return func(w *ReplaySnapshotWriter) { w.isMarketOpen = fn }
}

// WithWriterClock replaces time.Now.
func WithWriterClock(now func() time.Time) ReplayWriterOption {
	return func(w *ReplaySnapshotWriter) { w.now = now }
}

// WithWriterMetrics sets the metrics sink.
func WithWriterMetrics(m domrepo.Metrics) ReplayWriterOption {
	return func(w *ReplaySnapshotWriter) { w.metrics = m }
}

// ReplayWriterStats is a point-in-time view for operators.
type ReplayWriterStats struct {
	Enabled     bool                `json:"enabled"`
	Running     bool                `json:"running"`
	Pending     int                 `json:"pending"`
	Totals      models.FlushOutcome `json:"totals"`
	LastFlush   models.FlushOutcome `json:"lastFlush"`
	LastFlushAt time.Time           `json:"lastFlushAt"`
}

type flushCall struct {
	done    chan struct{}
	outcome models.FlushOutcome
}

// ReplaySnapshotWriter queues replay rows and writes them in batches of
// ReplayBatchSize. Insert failures are logged and the batch is dropped;
// no method returns an error to the caller.
type ReplaySnapshotWriter struct {
	table        domrepo.ReplaySnapshotTable
	log          *logger.Logger
	metrics      domrepo.Metrics
	isMarketOpen domsvc.MarketOpenFunc
	now          func() time.Time

	enabled  bool
	interval time.Duration
	symbol   string

	mu          sync.Mutex
	pending     []models.ReplaySnapshotRow
	inflight    *flushCall
	totals      models.FlushOutcome
	last        models.FlushOutcome
	lastFlushAt time.Time

	runMu  sync.Mutex
	stopCh chan struct{}
	doneCh chan struct{}
}

func NewReplaySnapshotWriter(table domrepo.ReplaySnapshotTable, log *logger.Logger, cfg ReplayWriterConfig, opts ...ReplayWriterOption) *ReplaySnapshotWriter {
	if log == nil {
		log = logger.Nop()
	}
	interval := cfg.FlushInterval
	if interval <= 0 {
		interval = DefaultReplayFlushInterval
	}
	w := &ReplaySnapshotWriter{
		table:        table,
		log:          log.With(logger.String("component", "replay_snapshot_writer")),
		metrics:      metrics.Nop{},
		isMarketOpen: markethours.IsMarketOpen,
		now:          time.Now,
		enabled:      cfg.Enabled,
		interval:     interval,
		symbol:       cfg.Symbol,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Enabled reports the configuration flag.
func (w *ReplaySnapshotWriter) Enabled() bool { return w.enabled }

// Interval is the periodic flush interval.
func (w *ReplaySnapshotWriter) Interval() time.Duration { return w.interval }

// PendingCount returns the number of queued rows.
func (w *ReplaySnapshotWriter) PendingCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Stats returns cumulative flush totals and the current queue depth.
func (w *ReplaySnapshotWriter) Stats() ReplayWriterStats {
	w.runMu.Lock()
	running := w.stopCh != nil
	w.runMu.Unlock()

	w.mu.Lock()
	defer w.mu.Unlock()
	return ReplayWriterStats{
		Enabled:     w.enabled,
		Running:     running,
		Pending:     len(w.pending),
		Totals:      w.totals,
		LastFlush:   w.last,
		LastFlushAt: w.lastFlushAt,
	}
}

// Capture maps in to a row and queues it. It reports whether a row was
// queued. Interval captures, the default when no mode is set, are skipped
// while the market is closed; setup transitions are always queued. Reaching ReplayBatchSize pending
// rows flushes before returning.
func (w *ReplaySnapshotWriter) Capture(ctx context.Context, in models.CaptureInput) bool {
	if !w.enabled {
		return false
	}
	if in.Symbol == "" {
		in.Symbol = w.symbol
	}
	if in.CaptureMode == "" {
		in.CaptureMode = models.CaptureInterval
	}

	if in.CaptureMode == models.CaptureInterval {
		at := ResolveCapturedAt(in.CapturedAt, in.Snapshot.GeneratedAt, w.now)
		if !w.isMarketOpen(at) {
			w.log.Debug("replay snapshot capture skipped because market is closed",
				logger.Time("captured_at", at),
			)
			return false
		}
	}

	row := MapSnapshotToReplaySnapshotRow(in, w.now)

	w.mu.Lock()
	w.pending = append(w.pending, row)
	n := len(w.pending)
	w.mu.Unlock()
	w.metrics.RecordPending(n)

	if n >= ReplayBatchSize {
		w.Flush(ctx)
	}
	return true
}

// Flush drains the queue in FIFO batches. Concurrent callers share the
// outcome of the flush already in progress.
func (w *ReplaySnapshotWriter) Flush(ctx context.Context) models.FlushOutcome {
	w.mu.Lock()
	if c := w.inflight; c != nil {
		w.mu.Unlock()
		select {
		case <-c.done:
			return c.outcome
		case <-ctx.Done():
			return models.FlushOutcome{}
		}
	}
	c := &flushCall{done: make(chan struct{})}
	w.inflight = c
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.inflight = nil
		w.totals.Add(c.outcome)
		if c.outcome.Batches > 0 {
			w.last = c.outcome
			w.lastFlushAt = w.now()
		}
		pending := len(w.pending)
		w.mu.Unlock()

		w.metrics.RecordFlush(c.outcome)
		w.metrics.RecordPending(pending)
		close(c.done)
	}()

	c.outcome = w.drain(ctx)
	return c.outcome
}

func (w *ReplaySnapshotWriter) drain(ctx context.Context) models.FlushOutcome {
	var out models.FlushOutcome
	if !w.enabled {
		w.mu.Lock()
		w.pending = nil
		w.mu.Unlock()
		return out
	}

	for {
		w.mu.Lock()
		if len(w.pending) == 0 {
			w.mu.Unlock()
			return out
		}
		n := min(ReplayBatchSize, len(w.pending))
		batch := make([]models.ReplaySnapshotRow, n)
		copy(batch, w.pending[:n])
		w.pending = w.pending[n:]
		if len(w.pending) == 0 {
			w.pending = nil
		}
		w.mu.Unlock()

		out.Batches++
		if err := w.insert(ctx, batch); err != nil {
			code := insertErrorCode(err)
			w.log.Warn("replay snapshot insert failed; continuing without blocking engine",
				logger.Int("batch_size", n),
				logger.String("code", code),
				logger.Error(err),
			)
			w.metrics.RecordInsertFailure(code)
			out.Discarded += n
			continue
		}
		out.Inserted += n
	}
}

func (w *ReplaySnapshotWriter) insert(ctx context.Context, batch []models.ReplaySnapshotRow) (err error) {
	if w.table == nil {
		return errors.New("no replay table configured")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("insert panicked: %v", r)
		}
	}()
	start := w.now()
	err = w.table.Insert(ctx, batch)
	w.metrics.RecordLatency("replay_insert", w.now().Sub(start).Seconds())
	return err
}

func insertErrorCode(err error) string {
	var ie *models.InsertError
	if errors.As(err, &ie) {
		return ie.Code
	}
	if errors.Is(err, domrepo.ErrTableUnavailable) {
		return "unavailable"
	}
	return ""
}

// Start arms the periodic flush. It is a no-op when disabled or already
// running. The loop keeps ctx values but not its cancellation; Stop ends it.
func (w *ReplaySnapshotWriter) Start(ctx context.Context) {
	if !w.enabled {
		return
	}
	w.runMu.Lock()
	defer w.runMu.Unlock()
	if w.stopCh != nil {
		return
	}
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	go w.loop(context.WithoutCancel(ctx), w.stopCh, w.doneCh)
}

func (w *ReplaySnapshotWriter) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *ReplaySnapshotWriter) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Warn("replay snapshot periodic flush failed", logger.Any("panic", r))
		}
	}()
	w.Flush(ctx)
}

// Stop disarms the timer, then runs one final flush and returns its outcome.
// A flush already in progress is not interrupted.
func (w *ReplaySnapshotWriter) Stop(ctx context.Context) models.FlushOutcome {
	w.runMu.Lock()
	stop, done := w.stopCh, w.doneCh
	w.stopCh, w.doneCh = nil, nil
	w.runMu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
	return w.Flush(ctx)
}

var _ domsvc.ReplayRecorder = (*ReplaySnapshotWriter)(nil)
