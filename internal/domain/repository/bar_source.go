package repository

import (
	"context"
	"errors"
	"time"

	"SPXEngine/internal/domain/models"
)

// Timeframe represents bar resolution buckets.
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF1h  Timeframe = "1h"
)

// ErrNoBars is returned when a bar source has nothing for the requested range.
var ErrNoBars = errors.New("no bars for range")

// BarSource provides read-only access to OHLCV bars keyed by symbol, timeframe and date range.
type BarSource interface {
	GetBars(ctx context.Context, symbol string, tf Timeframe, from, to time.Time) ([]models.ChartBar, error)
}
