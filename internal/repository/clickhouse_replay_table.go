package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"SPXEngine/internal/domain/models"
	domrepo "SPXEngine/internal/domain/repository"
	pkgch "SPXEngine/pkg/clickhouse"
)

// replayColumns is the column order shared by every SQL replay sink.
var replayColumns = []string{
	"session_date", "symbol", "captured_at",
	"gex_net_gamma", "gex_call_wall", "gex_put_wall", "gex_flip_point", "gex_key_levels", "gex_expiry_breakdown",
	"flow_bias_5m", "flow_bias_15m", "flow_bias_30m", "flow_event_count", "flow_sweep_count",
	"flow_bullish_premium", "flow_bearish_premium", "flow_events",
	"regime", "regime_direction", "regime_probability", "regime_confidence", "regime_volume_trend",
	"levels", "cluster_zones",
	"mtf_1h_trend", "mtf_15m_trend", "mtf_5m_trend", "mtf_1m_trend", "mtf_composite", "mtf_aligned",
	"vix_value", "vix_regime", "env_gate_passed", "env_gate_reasons", "macro_next_event", "session_minute_et",
	"basis_value", "spx_price", "spy_price",
	"rr_ratio", "ev_r",
	"memory_setup_type", "memory_test_count", "memory_win_rate", "memory_hold_rate", "memory_confidence", "memory_score",
}

// replayArgs flattens r in replayColumns order. JSON columns are passed as
// text (nil for NULL).
func replayArgs(r models.ReplaySnapshotRow) []any {
	reasons := r.EnvGateReasons
	if reasons == nil {
		reasons = []string{}
	}
	return []any{
		r.SessionDate, r.Symbol, r.CapturedAt,
		r.GEXNetGamma, r.GEXCallWall, r.GEXPutWall, r.GEXFlipPoint, jsonText(r.GEXKeyLevels), jsonText(r.GEXExpiryBreakdown),
		r.FlowBias5m, r.FlowBias15m, r.FlowBias30m, r.FlowEventCount, r.FlowSweepCount,
		r.FlowBullishPremium, r.FlowBearishPremium, jsonText(r.FlowEvents),
		r.Regime, r.RegimeDirection, r.RegimeProbability, r.RegimeConfidence, r.RegimeVolumeTrend,
		jsonText(r.Levels), jsonText(r.ClusterZones),
		r.MTF1hTrend, r.MTF15mTrend, r.MTF5mTrend, r.MTF1mTrend, r.MTFComposite, r.MTFAligned,
		r.VixValue, r.VixRegime, r.EnvGatePassed, reasons, jsonText(r.MacroNextEvent), r.SessionMinuteET,
		r.BasisValue, r.SPXPrice, r.SPYPrice,
		r.RRRatio, r.EvR,
		r.MemorySetupType, r.MemoryTestCount, r.MemoryWinRate, r.MemoryHoldRate, r.MemoryConfidence, r.MemoryScore,
	}
}

func jsonText(raw json.RawMessage) *string {
	if len(raw) == 0 {
		return nil
	}
	s := string(raw)
	return &s
}

// ClickHouseReplayTable writes replay rows with one multi-row INSERT per batch.
type ClickHouseReplayTable struct {
	db    *sql.DB
	table string
}

func NewClickHouseReplayTable(ch *pkgch.Client, table string) *ClickHouseReplayTable {
	if table == "" {
		table = domrepo.ReplaySnapshotsTable
	}
	return &ClickHouseReplayTable{db: ch.DB(), table: table}
}

func (s *ClickHouseReplayTable) Init(ctx context.Context) error {
	return nil // schema is applied by pkg/clickhouse
}

func (s *ClickHouseReplayTable) Insert(ctx context.Context, rows []models.ReplaySnapshotRow) error {
	if len(rows) == 0 {
		return nil
	}
	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(replayColumns)), ", ") + ")"
	values := make([]string, 0, len(rows))
	args := make([]any, 0, len(rows)*len(replayColumns))
	for _, r := range rows {
		values = append(values, placeholder)
		args = append(args, replayArgs(r)...)
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", s.table, strings.Join(replayColumns, ", "), strings.Join(values, ","))
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		code, _ := pkgch.ExceptionCode(err)
		return &models.InsertError{Code: code, Message: "clickhouse replay insert failed", Err: err}
	}
	return nil
}

func (s *ClickHouseReplayTable) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHouseReplayTable) Close() error {
	return nil // pool is owned by pkg/clickhouse
}

var _ domrepo.Storage = (*ClickHouseReplayTable)(nil)
