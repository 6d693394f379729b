package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SPXEngine/internal/domain/models"
	"SPXEngine/pkg/logger"
)

type fakeReplayTable struct {
	mu      sync.Mutex
	batches [][]models.ReplaySnapshotRow
	fail    func(call int) error
	block   chan struct{}
	calls   int
}

func (f *fakeReplayTable) Insert(_ context.Context, rows []models.ReplaySnapshotRow) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail != nil {
		if err := f.fail(f.calls); err != nil {
			return err
		}
	}
	f.batches = append(f.batches, rows)
	return nil
}

func (f *fakeReplayTable) sizes() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int, 0, len(f.batches))
	for _, b := range f.batches {
		out = append(out, len(b))
	}
	return out
}

func (f *fakeReplayTable) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) records(t *testing.T) []map[string]interface{} {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(b.buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func newTestWriter(t *testing.T, table *fakeReplayTable, cfg ReplayWriterConfig, opts ...ReplayWriterOption) (*ReplaySnapshotWriter, *syncBuffer) {
	t.Helper()
	buf := &syncBuffer{}
	log, err := logger.NewWithWriter(buf, "debug")
	require.NoError(t, err)
	opts = append([]ReplayWriterOption{WithWriterClock(fixedNow)}, opts...)
	return NewReplaySnapshotWriter(table, log, cfg, opts...), buf
}

func transitionInput(t *testing.T) models.CaptureInput {
	return models.CaptureInput{
		Snapshot:    loadSnapshotFixture(t),
		CaptureMode: models.CaptureSetupTransition,
	}
}

func TestReplayWriter_BatchesOfFive(t *testing.T) {
	table := &fakeReplayTable{}
	w, _ := newTestWriter(t, table, ReplayWriterConfig{Enabled: true, FlushInterval: time.Hour})
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		assert.True(t, w.Capture(ctx, transitionInput(t)))
	}
	assert.Equal(t, []int{5}, table.sizes())
	assert.Equal(t, 1, w.PendingCount())

	out := w.Flush(ctx)
	assert.Equal(t, models.FlushOutcome{Inserted: 1, Batches: 1}, out)
	assert.Equal(t, []int{5, 1}, table.sizes())
	assert.Equal(t, 0, w.PendingCount())

	stats := w.Stats()
	assert.Equal(t, models.FlushOutcome{Inserted: 6, Batches: 2}, stats.Totals)
	assert.Equal(t, out, stats.LastFlush)
}

func TestReplayWriter_FlushDrainsFIFO(t *testing.T) {
	table := &fakeReplayTable{}
	w, _ := newTestWriter(t, table, ReplayWriterConfig{Enabled: true})

	// Fill the queue directly so no automatic flush runs.
	for i := 0; i < 12; i++ {
		w.pending = append(w.pending, models.ReplaySnapshotRow{Symbol: string(rune('A' + i))})
	}

	out := w.Flush(context.Background())
	assert.Equal(t, models.FlushOutcome{Inserted: 12, Batches: 3}, out)
	require.Equal(t, []int{5, 5, 2}, table.sizes())
	assert.Equal(t, "A", table.batches[0][0].Symbol)
	assert.Equal(t, "F", table.batches[1][0].Symbol)
	assert.Equal(t, "L", table.batches[2][1].Symbol)
}

func TestReplayWriter_FailureDropsBatchAndWarns(t *testing.T) {
	table := &fakeReplayTable{
		fail: func(call int) error {
			if call == 1 {
				return &models.InsertError{Code: "23505", Message: "duplicate key"}
			}
			return nil
		},
	}
	w, buf := newTestWriter(t, table, ReplayWriterConfig{Enabled: true})
	for i := 0; i < 7; i++ {
		w.pending = append(w.pending, models.ReplaySnapshotRow{})
	}

	out := w.Flush(context.Background())
	assert.Equal(t, models.FlushOutcome{Inserted: 2, Discarded: 5, Batches: 2}, out)
	assert.Equal(t, 0, w.PendingCount())
	assert.Equal(t, []int{2}, table.sizes())

	var warned bool
	for _, rec := range buf.records(t) {
		if rec["level"] != "warn" {
			continue
		}
		warned = true
		assert.Equal(t, "replay snapshot insert failed; continuing without blocking engine", rec["message"])
		assert.EqualValues(t, 5, rec["batch_size"])
		assert.Equal(t, "23505", rec["code"])
		assert.Contains(t, rec["error"], "duplicate key")
	}
	assert.True(t, warned)
}

func TestReplayWriter_PanickingTableIsContained(t *testing.T) {
	table := &fakeReplayTable{fail: func(int) error { panic("driver exploded") }}
	w, _ := newTestWriter(t, table, ReplayWriterConfig{Enabled: true})
	w.pending = append(w.pending, models.ReplaySnapshotRow{})

	var out models.FlushOutcome
	require.NotPanics(t, func() { out = w.Flush(context.Background()) })
	assert.Equal(t, models.FlushOutcome{Discarded: 1, Batches: 1}, out)
}

func TestReplayWriter_MarketGate(t *testing.T) {
	var calls atomic.Int32
	closed := func(time.Time) bool {
		calls.Add(1)
		return false
	}
	table := &fakeReplayTable{}
	w, buf := newTestWriter(t, table, ReplayWriterConfig{Enabled: true}, WithMarketOpen(closed))
	ctx := context.Background()

	in := transitionInput(t)
	in.CaptureMode = models.CaptureInterval
	assert.False(t, w.Capture(ctx, in))
	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, 0, w.PendingCount())

	var skipped bool
	for _, rec := range buf.records(t) {
		if rec["level"] == "debug" && strings.Contains(rec["message"].(string), "market is closed") {
			skipped = true
		}
	}
	assert.True(t, skipped)

	assert.True(t, w.Capture(ctx, transitionInput(t)))
	assert.EqualValues(t, 1, calls.Load(), "transitions bypass the gate")
	assert.Equal(t, 1, w.PendingCount())
}

func TestReplayWriter_MissingModeIsGatedAsInterval(t *testing.T) {
	var calls atomic.Int32
	w, _ := newTestWriter(t, &fakeReplayTable{}, ReplayWriterConfig{Enabled: true},
		WithMarketOpen(func(time.Time) bool {
			calls.Add(1)
			return false
		}))

	queued := w.Capture(context.Background(), models.CaptureInput{Snapshot: loadSnapshotFixture(t)})
	assert.False(t, queued)
	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, 0, w.PendingCount())
}

func TestReplayWriter_GateUsesResolvedCaptureTime(t *testing.T) {
	var seen time.Time
	w, _ := newTestWriter(t, &fakeReplayTable{}, ReplayWriterConfig{Enabled: true},
		WithMarketOpen(func(at time.Time) bool {
			seen = at
			return true
		}))

	in := transitionInput(t)
	in.CaptureMode = models.CaptureInterval
	assert.True(t, w.Capture(context.Background(), in))
	assert.Equal(t, time.Date(2026, 2, 20, 15, 0, 0, 0, time.UTC), seen.UTC())
}

func TestReplayWriter_Disabled(t *testing.T) {
	table := &fakeReplayTable{}
	w, _ := newTestWriter(t, table, ReplayWriterConfig{Enabled: false, FlushInterval: 10 * time.Millisecond})
	ctx := context.Background()

	assert.False(t, w.Capture(ctx, transitionInput(t)))
	w.pending = append(w.pending, models.ReplaySnapshotRow{})

	out := w.Flush(ctx)
	assert.Equal(t, models.FlushOutcome{}, out)
	assert.Equal(t, 0, w.PendingCount())

	w.Start(ctx)
	assert.False(t, w.Stats().Running)
	assert.Zero(t, table.callCount())
}

func TestReplayWriter_PeriodicFlush(t *testing.T) {
	table := &fakeReplayTable{}
	w, _ := newTestWriter(t, table, ReplayWriterConfig{Enabled: true, FlushInterval: 25 * time.Millisecond})
	ctx := context.Background()

	w.Start(ctx)
	w.Start(ctx)
	defer w.Stop(ctx)
	assert.True(t, w.Stats().Running)

	assert.True(t, w.Capture(ctx, transitionInput(t)))
	require.Eventually(t, func() bool {
		sizes := table.sizes()
		return len(sizes) == 1 && sizes[0] == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, w.PendingCount())
}

func TestReplayWriter_StopFlushesAndHalts(t *testing.T) {
	table := &fakeReplayTable{}
	w, _ := newTestWriter(t, table, ReplayWriterConfig{Enabled: true, FlushInterval: 10 * time.Millisecond})
	ctx := context.Background()

	w.Start(ctx)
	w.Stop(ctx)
	assert.False(t, w.Stats().Running)

	w.pending = append(w.pending, models.ReplaySnapshotRow{}, models.ReplaySnapshotRow{})
	assert.Never(t, func() bool { return table.callCount() > 0 }, 60*time.Millisecond, 10*time.Millisecond)

	out := w.Stop(ctx)
	assert.Equal(t, models.FlushOutcome{Inserted: 2, Batches: 1}, out)
}

func TestReplayWriter_ConcurrentFlushSharesInFlight(t *testing.T) {
	table := &fakeReplayTable{block: make(chan struct{})}
	w, _ := newTestWriter(t, table, ReplayWriterConfig{Enabled: true})
	for i := 0; i < 3; i++ {
		w.pending = append(w.pending, models.ReplaySnapshotRow{})
	}
	ctx := context.Background()

	results := make(chan models.FlushOutcome, 2)
	go func() { results <- w.Flush(ctx) }()
	require.Eventually(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return w.inflight != nil
	}, time.Second, time.Millisecond)
	go func() { results <- w.Flush(ctx) }()
	time.Sleep(20 * time.Millisecond)

	close(table.block)
	first, second := <-results, <-results
	assert.Equal(t, first, second)
	assert.Equal(t, models.FlushOutcome{Inserted: 3, Batches: 1}, first)
	assert.Equal(t, 1, table.callCount())
}

func TestInsertErrorCode(t *testing.T) {
	wrapped := errors.Join(errors.New("context"), &models.InsertError{Code: "241", Message: "memory limit"})
	assert.Equal(t, "241", insertErrorCode(wrapped))
	assert.Equal(t, "", insertErrorCode(errors.New("plain")))
}
