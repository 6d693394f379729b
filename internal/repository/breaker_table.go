package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"SPXEngine/internal/domain/models"
	domrepo "SPXEngine/internal/domain/repository"
	applogger "SPXEngine/pkg/logger"
)

// BreakerConfig tunes the insert circuit breaker.
type BreakerConfig struct {
	Name                string
	ConsecutiveFailures uint32
	Interval            time.Duration
	OpenTimeout         time.Duration
}

// BreakerTable short-circuits inserts while the wrapped table keeps failing.
// An open breaker returns ErrTableUnavailable without calling the table.
type BreakerTable struct {
	next domrepo.ReplaySnapshotTable
	cb   *gobreaker.CircuitBreaker
}

func NewBreakerTable(next domrepo.ReplaySnapshotTable, cfg BreakerConfig, l *applogger.Logger) *BreakerTable {
	if l == nil {
		l = applogger.Nop()
	}
	trips := cfg.ConsecutiveFailures
	if trips == 0 {
		trips = 3
	}
	st := gobreaker.Settings{
		Name:     cfg.Name,
		Interval: cfg.Interval,
		Timeout:  cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= trips
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			l.Warn("replay insert breaker state changed",
				applogger.String("breaker", name),
				applogger.String("from", from.String()),
				applogger.String("to", to.String()),
			)
		},
	}
	return &BreakerTable{next: next, cb: gobreaker.NewCircuitBreaker(st)}
}

func (b *BreakerTable) Insert(ctx context.Context, rows []models.ReplaySnapshotRow) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.Insert(ctx, rows)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", domrepo.ErrTableUnavailable, err)
	}
	return err
}

// State reports the breaker state for health output.
func (b *BreakerTable) State() string {
	return b.cb.State().String()
}

// Health fails while the breaker is open, otherwise defers to the wrapped
// table when it can be pinged.
func (b *BreakerTable) Health(ctx context.Context) error {
	if b.cb.State() == gobreaker.StateOpen {
		return fmt.Errorf("%w: breaker %s", domrepo.ErrTableUnavailable, b.cb.Name())
	}
	if h, ok := b.next.(healthChecker); ok {
		return h.Health(ctx)
	}
	return nil
}

type healthChecker interface {
	Health(ctx context.Context) error
}

var _ domrepo.ReplaySnapshotTable = (*BreakerTable)(nil)
