package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"SPXEngine/internal/domain/models"
	domrepo "SPXEngine/internal/domain/repository"
	pkgpg "SPXEngine/pkg/postgres"
)

// batchSender is the part of pgxpool.Pool the table needs.
type batchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// PostgresReplayTable queues one INSERT per row in a pgx.Batch.
type PostgresReplayTable struct {
	pool  batchSender
	table string
	query string
}

func NewPostgresReplayTable(pool batchSender, table string) *PostgresReplayTable {
	if table == "" {
		table = domrepo.ReplaySnapshotsTable
	}
	return &PostgresReplayTable{pool: pool, table: table, query: postgresInsertSQL(table)}
}

func postgresInsertSQL(table string) string {
	casts := map[string]string{
		"session_date":         "::date",
		"gex_key_levels":       "::jsonb",
		"gex_expiry_breakdown": "::jsonb",
		"flow_events":          "::jsonb",
		"levels":               "::jsonb",
		"cluster_zones":        "::jsonb",
		"macro_next_event":     "::jsonb",
	}
	params := make([]string, len(replayColumns))
	for i, col := range replayColumns {
		params[i] = fmt.Sprintf("$%d%s", i+1, casts[col])
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(replayColumns, ", "), strings.Join(params, ", "))
}

func (s *PostgresReplayTable) Insert(ctx context.Context, rows []models.ReplaySnapshotRow) error {
	if len(rows) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(s.query, replayArgs(r)...)
	}

	br := s.pool.SendBatch(ctx, batch)
	var firstErr error
	for range rows {
		if _, err := br.Exec(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := br.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if firstErr != nil {
		code, _ := pkgpg.ErrorCode(firstErr)
		return &models.InsertError{Code: code, Message: "postgres replay insert failed", Err: firstErr}
	}
	return nil
}

var _ domrepo.ReplaySnapshotTable = (*PostgresReplayTable)(nil)
