package service

import (
	"context"
	"time"

	"SPXEngine/internal/domain/models"
)

// ContextProvider assembles the multi-timeframe context for a symbol and day.
// Implementations never fail; they degrade to a fallback context.
type ContextProvider interface {
	GetContext(ctx context.Context, opts ContextOptions) models.MultiTFContext
}

// ContextOptions selects which context to assemble.
type ContextOptions struct {
	Symbol         string
	EvaluationTime time.Time
	ForceRefresh   bool
}

// ReplayRecorder queues snapshots for the backtest store.
type ReplayRecorder interface {
	Capture(ctx context.Context, in models.CaptureInput) bool
	Flush(ctx context.Context) models.FlushOutcome
	PendingCount() int
}

// MarketOpenFunc reports whether the regular session is open at t.
type MarketOpenFunc func(t time.Time) bool
