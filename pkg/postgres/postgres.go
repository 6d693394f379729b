package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool wraps pgxpool.Pool for dependency injection.
type Pool struct {
	*pgxpool.Pool
}

// NewPool parses dsn, connects and pings.
func NewPool(ctx context.Context, dsn string, maxConns int32) (*Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if maxConns > 0 {
		config.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// Health pings the pool.
func (p *Pool) Health(ctx context.Context) error {
	return p.Ping(ctx)
}

// InitSchema runs the replay DDL.
func (p *Pool) InitSchema(ctx context.Context) error {
	for _, stmt := range SchemaStatements() {
		if _, err := p.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// ErrorCode returns the SQLSTATE carried by err, if any.
func ErrorCode(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, true
	}
	return "", false
}

// SchemaStatements is the replay_snapshots DDL.
func SchemaStatements() []string {
	return []string{`CREATE TABLE IF NOT EXISTS replay_snapshots (
    id BIGSERIAL PRIMARY KEY,
    session_date DATE NOT NULL,
    symbol TEXT NOT NULL,
    captured_at TIMESTAMPTZ NOT NULL,
    gex_net_gamma DOUBLE PRECISION,
    gex_call_wall DOUBLE PRECISION,
    gex_put_wall DOUBLE PRECISION,
    gex_flip_point DOUBLE PRECISION,
    gex_key_levels JSONB,
    gex_expiry_breakdown JSONB,
    flow_bias_5m TEXT,
    flow_bias_15m TEXT,
    flow_bias_30m TEXT,
    flow_event_count INTEGER NOT NULL DEFAULT 0,
    flow_sweep_count INTEGER NOT NULL DEFAULT 0,
    flow_bullish_premium DOUBLE PRECISION NOT NULL DEFAULT 0,
    flow_bearish_premium DOUBLE PRECISION NOT NULL DEFAULT 0,
    flow_events JSONB,
    regime TEXT,
    regime_direction TEXT,
    regime_probability DOUBLE PRECISION,
    regime_confidence DOUBLE PRECISION,
    regime_volume_trend TEXT,
    levels JSONB,
    cluster_zones JSONB,
    mtf_1h_trend TEXT,
    mtf_15m_trend TEXT,
    mtf_5m_trend TEXT,
    mtf_1m_trend TEXT,
    mtf_composite DOUBLE PRECISION,
    mtf_aligned BOOLEAN,
    vix_value DOUBLE PRECISION,
    vix_regime TEXT,
    env_gate_passed BOOLEAN,
    env_gate_reasons TEXT[] NOT NULL DEFAULT '{}',
    macro_next_event JSONB,
    session_minute_et INTEGER,
    basis_value DOUBLE PRECISION,
    spx_price DOUBLE PRECISION,
    spy_price DOUBLE PRECISION,
    rr_ratio DOUBLE PRECISION,
    ev_r DOUBLE PRECISION,
    memory_setup_type TEXT,
    memory_test_count INTEGER,
    memory_win_rate DOUBLE PRECISION,
    memory_hold_rate DOUBLE PRECISION,
    memory_confidence DOUBLE PRECISION,
    memory_score DOUBLE PRECISION
)`,
		`CREATE INDEX IF NOT EXISTS replay_snapshots_symbol_session_idx
    ON replay_snapshots (symbol, session_date, captured_at)`,
	}
}
