package repository

import (
	"context"
	"errors"

	"SPXEngine/internal/domain/models"
)

// ReplaySnapshotsTable is the logical table name rows are written to.
const ReplaySnapshotsTable = "replay_snapshots"

// ErrTableUnavailable is returned by a guarded table while inserts are short-circuited.
var ErrTableUnavailable = errors.New("replay table unavailable")

// ReplaySnapshotTable accepts batches of replay rows.
type ReplaySnapshotTable interface {
	Insert(ctx context.Context, rows []models.ReplaySnapshotRow) error
}

// Storage is a table that also owns schema and connection lifecycle.
type Storage interface {
	ReplaySnapshotTable
	Init(ctx context.Context) error
	Health(ctx context.Context) error
	Close() error
}

type Metrics interface {
	RecordFlush(outcome models.FlushOutcome)
	RecordPending(n int)
	RecordContextSource(source string)
	RecordInsertFailure(code string)
	RecordLatency(op string, seconds float64)
}
