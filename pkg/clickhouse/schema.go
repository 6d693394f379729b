package clickhouse

import "fmt"

// SchemaStatements returns the DDL for the bar table and the replay table
// in database db.
func SchemaStatements(db string) []string {
	return []string{
		fmt.Sprintf(`CREATE DATABASE IF NOT EXISTS %s`, db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.spx_bars (
    symbol LowCardinality(String),
    timeframe LowCardinality(String),
    ts DateTime64(3, 'UTC'),
    open Float64,
    high Float64,
    low Float64,
    close Float64,
    volume Float64
) ENGINE = ReplacingMergeTree
PARTITION BY toYYYYMM(ts)
ORDER BY (symbol, timeframe, ts)`, db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.replay_snapshots (
    session_date Date,
    symbol LowCardinality(String),
    captured_at DateTime64(3, 'UTC'),
    gex_net_gamma Nullable(Float64),
    gex_call_wall Nullable(Float64),
    gex_put_wall Nullable(Float64),
    gex_flip_point Nullable(Float64),
    gex_key_levels Nullable(String),
    gex_expiry_breakdown Nullable(String),
    flow_bias_5m Nullable(String),
    flow_bias_15m Nullable(String),
    flow_bias_30m Nullable(String),
    flow_event_count UInt32,
    flow_sweep_count UInt32,
    flow_bullish_premium Float64,
    flow_bearish_premium Float64,
    flow_events Nullable(String),
    regime Nullable(String),
    regime_direction Nullable(String),
    regime_probability Nullable(Float64),
    regime_confidence Nullable(Float64),
    regime_volume_trend Nullable(String),
    levels Nullable(String),
    cluster_zones Nullable(String),
    mtf_1h_trend Nullable(String),
    mtf_15m_trend Nullable(String),
    mtf_5m_trend Nullable(String),
    mtf_1m_trend Nullable(String),
    mtf_composite Nullable(Float64),
    mtf_aligned Nullable(Bool),
    vix_value Nullable(Float64),
    vix_regime Nullable(String),
    env_gate_passed Nullable(Bool),
    env_gate_reasons Array(String),
    macro_next_event Nullable(String),
    session_minute_et Nullable(Int32),
    basis_value Nullable(Float64),
    spx_price Nullable(Float64),
    spy_price Nullable(Float64),
    rr_ratio Nullable(Float64),
    ev_r Nullable(Float64),
    memory_setup_type Nullable(String),
    memory_test_count Nullable(Int32),
    memory_win_rate Nullable(Float64),
    memory_hold_rate Nullable(Float64),
    memory_confidence Nullable(Float64),
    memory_score Nullable(Float64)
) ENGINE = MergeTree
PARTITION BY toYYYYMM(session_date)
ORDER BY (symbol, session_date, captured_at)`, db),
	}
}
