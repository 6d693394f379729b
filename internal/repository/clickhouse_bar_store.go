package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"SPXEngine/internal/domain/models"
	domrepo "SPXEngine/internal/domain/repository"
	pkgch "SPXEngine/pkg/clickhouse"
	applogger "SPXEngine/pkg/logger"
)

// DefaultBarTable holds OHLCV bars for every timeframe.
const DefaultBarTable = "spx_bars"

// ClickHouseBarStore implements BarSource over a single bar table keyed by
// (symbol, timeframe, ts).
type ClickHouseBarStore struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewClickHouseBarStore(ch *pkgch.Client, table string, l *applogger.Logger) *ClickHouseBarStore {
	if table == "" {
		table = DefaultBarTable
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &ClickHouseBarStore{db: ch.DB(), table: table, l: l}
}

// GetBars returns bars with from <= ts < to in ascending time order.
// An empty range yields ErrNoBars.
func (s *ClickHouseBarStore) GetBars(ctx context.Context, symbol string, tf domrepo.Timeframe, from, to time.Time) ([]models.ChartBar, error) {
	if !domrepo.IsValidTimeframe(tf) {
		return nil, fmt.Errorf("unsupported timeframe: %s", tf)
	}
	start := time.Now()
	fields := []applogger.Field{
		applogger.String("table", s.table),
		applogger.String("symbol", symbol),
		applogger.String("tf", string(tf)),
	}

	q := fmt.Sprintf(`
        SELECT ts, open, high, low, close, volume
        FROM %s
        WHERE symbol = ? AND timeframe = ? AND ts >= ? AND ts < ?
        ORDER BY ts ASC
    `, s.table)
	rows, err := s.db.QueryContext(ctx, q, symbol, string(tf), from.UTC(), to.UTC())
	if err != nil {
		s.l.Error("clickhouse get_bars query error", append(fields, applogger.Error(err))...)
		return nil, fmt.Errorf("get bars: %w", err)
	}
	defer rows.Close()

	out := make([]models.ChartBar, 0, 512)
	for rows.Next() {
		var b models.ChartBar
		if err := rows.Scan(&b.Time, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			s.l.Error("clickhouse get_bars scan error", append(fields, applogger.Error(err))...)
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		s.l.Error("clickhouse get_bars rows error", append(fields, applogger.Error(err))...)
		return nil, fmt.Errorf("rows: %w", err)
	}

	s.l.Debug("clickhouse get_bars ok", append(fields,
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)...)
	if len(out) == 0 {
		return nil, domrepo.ErrNoBars
	}
	return out, nil
}

var _ domrepo.BarSource = (*ClickHouseBarStore)(nil)
