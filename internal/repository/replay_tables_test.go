package repository

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"testing"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SPXEngine/internal/domain/models"
	domrepo "SPXEngine/internal/domain/repository"
	pkgch "SPXEngine/pkg/clickhouse"
	pkgkafka "SPXEngine/pkg/kafka"
)

// passthroughConverter lets pointers and slices reach the mock unchanged.
type passthroughConverter struct{}

func (passthroughConverter) ConvertValue(v interface{}) (driver.Value, error) { return v, nil }

func sampleRows(n int) []models.ReplaySnapshotRow {
	gamma := 123456.0
	out := make([]models.ReplaySnapshotRow, n)
	for i := range out {
		out[i] = models.ReplaySnapshotRow{
			SessionDate:    "2026-02-20",
			Symbol:         "SPX",
			CapturedAt:     time.Date(2026, 2, 20, 15, i, 0, 0, time.UTC),
			GEXNetGamma:    &gamma,
			FlowEvents:     json.RawMessage(`[]`),
			EnvGateReasons: []string{},
		}
	}
	return out
}

func anyArgs(n int) []driver.Value {
	out := make([]driver.Value, n)
	for i := range out {
		out[i] = sqlmock.AnyArg()
	}
	return out
}

func newPassthroughClient(t *testing.T) (*pkgch.Client, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.ValueConverterOption(passthroughConverter{}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return pkgch.NewClientFromDB(db), mock
}

func TestReplayArgsMatchColumns(t *testing.T) {
	args := replayArgs(models.ReplaySnapshotRow{})
	assert.Len(t, args, len(replayColumns))
	assert.Equal(t, []string{}, args[33], "env_gate_reasons is never NULL")
	assert.Nil(t, args[8].(*string), "missing JSON stays NULL")
}

func TestClickHouseReplayTableInsert(t *testing.T) {
	client, mock := newPassthroughClient(t)
	table := NewClickHouseReplayTable(client, "")

	mock.ExpectExec(`INSERT INTO replay_snapshots \(session_date, symbol, captured_at, .*memory_score\) VALUES \(.+\),\(.+\)`).
		WithArgs(anyArgs(2 * len(replayColumns))...).
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, table.Insert(context.Background(), sampleRows(2)))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClickHouseReplayTableInsertErrorCode(t *testing.T) {
	client, mock := newPassthroughClient(t)
	table := NewClickHouseReplayTable(client, "")

	mock.ExpectExec(`INSERT INTO replay_snapshots`).
		WillReturnError(&ch.Exception{Code: 241, Message: "memory limit exceeded"})

	err := table.Insert(context.Background(), sampleRows(1))
	var ie *models.InsertError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "241", ie.Code)
}

func TestClickHouseReplayTableEmptyBatch(t *testing.T) {
	client, mock := newPassthroughClient(t)
	table := NewClickHouseReplayTable(client, "")
	require.NoError(t, table.Insert(context.Background(), nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

type fakeBatchResults struct {
	errs  []error
	calls int
}

func (r *fakeBatchResults) Exec() (pgconn.CommandTag, error) {
	var err error
	if r.calls < len(r.errs) {
		err = r.errs[r.calls]
	}
	r.calls++
	return pgconn.NewCommandTag("INSERT 0 1"), err
}

func (r *fakeBatchResults) Query() (pgx.Rows, error) { return nil, errors.New("not supported") }
func (r *fakeBatchResults) QueryRow() pgx.Row          { return nil }
func (r *fakeBatchResults) Close() error               { return nil }

type fakeSender struct {
	batch   *pgx.Batch
	results *fakeBatchResults
}

func (s *fakeSender) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	s.batch = b
	return s.results
}

func TestPostgresReplayTableInsert(t *testing.T) {
	sender := &fakeSender{results: &fakeBatchResults{}}
	table := NewPostgresReplayTable(sender, "")

	require.NoError(t, table.Insert(context.Background(), sampleRows(3)))
	require.NotNil(t, sender.batch)
	assert.Equal(t, 3, sender.batch.Len())
	assert.Equal(t, 3, sender.results.calls)

	q := sender.batch.QueuedQueries[0]
	assert.Contains(t, q.SQL, "INSERT INTO replay_snapshots")
	assert.Contains(t, q.SQL, "$1::date")
	assert.Contains(t, q.SQL, "$47)")
	assert.Len(t, q.Arguments, len(replayColumns))
}

func TestPostgresReplayTableMapsSQLState(t *testing.T) {
	sender := &fakeSender{results: &fakeBatchResults{errs: []error{nil, &pgconn.PgError{Code: "23505", Message: "duplicate key"}}}}
	table := NewPostgresReplayTable(sender, "")

	err := table.Insert(context.Background(), sampleRows(2))
	var ie *models.InsertError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "23505", ie.Code)
	assert.Equal(t, 2, sender.results.calls, "every queued result is drained")
}

type fakePublisher struct {
	msgs []pkgkafka.Message
	err  error
}

func (p *fakePublisher) PublishBatch(_ context.Context, msgs []pkgkafka.Message) error {
	p.msgs = append(p.msgs, msgs...)
	return p.err
}

func (p *fakePublisher) Close() error { return nil }

func TestKafkaReplayTableInsert(t *testing.T) {
	pub := &fakePublisher{}
	table := NewKafkaReplayTable(pub)

	require.NoError(t, table.Insert(context.Background(), sampleRows(2)))
	require.Len(t, pub.msgs, 2)
	assert.Equal(t, []byte("SPX:2026-02-20"), pub.msgs[0].Key)
	row, ok := pub.msgs[1].Value.(models.ReplaySnapshotRow)
	require.True(t, ok)
	assert.Equal(t, 1, row.CapturedAt.Minute())

	pub.err = errors.New("leader not available")
	err := table.Insert(context.Background(), sampleRows(1))
	var ie *models.InsertError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "kafka", ie.Code)
}

type countingTable struct {
	calls int
	err   error
}

func (c *countingTable) Insert(context.Context, []models.ReplaySnapshotRow) error {
	c.calls++
	return c.err
}

func TestBreakerTableOpensAfterConsecutiveFailures(t *testing.T) {
	inner := &countingTable{err: &models.InsertError{Code: "08006", Message: "connection failure"}}
	table := NewBreakerTable(inner, BreakerConfig{Name: "test", ConsecutiveFailures: 2, OpenTimeout: time.Minute}, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		err := table.Insert(ctx, sampleRows(1))
		var ie *models.InsertError
		require.ErrorAs(t, err, &ie)
	}
	assert.Equal(t, "open", table.State())

	err := table.Insert(ctx, sampleRows(1))
	assert.ErrorIs(t, err, domrepo.ErrTableUnavailable)
	assert.Equal(t, 2, inner.calls, "open breaker skips the table")
	assert.ErrorIs(t, table.Health(ctx), domrepo.ErrTableUnavailable)
}

func TestBreakerTablePassesThroughSuccess(t *testing.T) {
	inner := &countingTable{}
	table := NewBreakerTable(inner, BreakerConfig{Name: "ok"}, nil)
	require.NoError(t, table.Insert(context.Background(), sampleRows(1)))
	assert.Equal(t, "closed", table.State())
	assert.NoError(t, table.Health(context.Background()))
}
