package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domrepo "SPXEngine/internal/domain/repository"
	pkgch "SPXEngine/pkg/clickhouse"
)

func newMockClient(t *testing.T) (*pkgch.Client, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return pkgch.NewClientFromDB(db), mock
}

func TestClickHouseBarStoreGetBars(t *testing.T) {
	client, mock := newMockClient(t)
	store := NewClickHouseBarStore(client, "", nil)

	from := time.Date(2026, 2, 20, 5, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)
	t1 := time.Date(2026, 2, 20, 14, 30, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"ts", "open", "high", "low", "close", "volume"}).
		AddRow(t1, 6000.0, 6001.5, 5999.0, 6001.0, 1200.0).
		AddRow(t1.Add(time.Minute), 6001.0, 6003.0, 6000.5, 6002.5, 900.0)
	mock.ExpectQuery(`SELECT ts, open, high, low, close, volume\s+FROM spx_bars`).
		WithArgs("SPX", "1m", from, to).
		WillReturnRows(rows)

	bars, err := store.GetBars(context.Background(), "SPX", domrepo.TF1m, from, to)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, t1, bars[0].Time)
	assert.Equal(t, 6002.5, bars[1].Close)
	assert.Equal(t, 900.0, bars[1].Volume)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClickHouseBarStoreEmptyRange(t *testing.T) {
	client, mock := newMockClient(t)
	store := NewClickHouseBarStore(client, "market.spx_bars", nil)

	mock.ExpectQuery(`FROM market.spx_bars`).
		WillReturnRows(sqlmock.NewRows([]string{"ts", "open", "high", "low", "close", "volume"}))

	_, err := store.GetBars(context.Background(), "SPX", domrepo.TF1h, time.Now().Add(-time.Hour), time.Now())
	assert.ErrorIs(t, err, domrepo.ErrNoBars)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClickHouseBarStoreQueryError(t *testing.T) {
	client, mock := newMockClient(t)
	store := NewClickHouseBarStore(client, "", nil)

	mock.ExpectQuery(`FROM spx_bars`).WillReturnError(errors.New("connection refused"))

	_, err := store.GetBars(context.Background(), "SPX", domrepo.TF5m, time.Now(), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get bars")
	assert.NotErrorIs(t, err, domrepo.ErrNoBars)
}

func TestClickHouseBarStoreRejectsUnknownTimeframe(t *testing.T) {
	client, _ := newMockClient(t)
	store := NewClickHouseBarStore(client, "", nil)

	_, err := store.GetBars(context.Background(), "SPX", domrepo.Timeframe("1s"), time.Now(), time.Now())
	require.Error(t, err)
}
