package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// CaptureMode tells the writer why a snapshot is being captured.
type CaptureMode string

const (
	CaptureInterval        CaptureMode = "interval"
	CaptureSetupTransition CaptureMode = "setup_transition"
)

// CaptureInput is what producers hand to the replay writer.
type CaptureInput struct {
	Snapshot       SPXSnapshot
	CapturedAt     time.Time
	Symbol         string
	CaptureMode    CaptureMode
	MultiTFContext *MultiTFContext
}

// ReplaySnapshotRow is one flattened replay_snapshots record.
// Nil pointers are stored as NULL.
type ReplaySnapshotRow struct {
	SessionDate string    `json:"session_date" db:"session_date"`
	Symbol      string    `json:"symbol" db:"symbol"`
	CapturedAt  time.Time `json:"captured_at" db:"captured_at"`

	GEXNetGamma        *float64        `json:"gex_net_gamma" db:"gex_net_gamma"`
	GEXCallWall        *float64        `json:"gex_call_wall" db:"gex_call_wall"`
	GEXPutWall         *float64        `json:"gex_put_wall" db:"gex_put_wall"`
	GEXFlipPoint       *float64        `json:"gex_flip_point" db:"gex_flip_point"`
	GEXKeyLevels       json.RawMessage `json:"gex_key_levels" db:"gex_key_levels"`
	GEXExpiryBreakdown json.RawMessage `json:"gex_expiry_breakdown" db:"gex_expiry_breakdown"`

	FlowBias5m         *string         `json:"flow_bias_5m" db:"flow_bias_5m"`
	FlowBias15m        *string         `json:"flow_bias_15m" db:"flow_bias_15m"`
	FlowBias30m        *string         `json:"flow_bias_30m" db:"flow_bias_30m"`
	FlowEventCount     int             `json:"flow_event_count" db:"flow_event_count"`
	FlowSweepCount     int             `json:"flow_sweep_count" db:"flow_sweep_count"`
	FlowBullishPremium float64         `json:"flow_bullish_premium" db:"flow_bullish_premium"`
	FlowBearishPremium float64         `json:"flow_bearish_premium" db:"flow_bearish_premium"`
	FlowEvents         json.RawMessage `json:"flow_events" db:"flow_events"`

	Regime            *string  `json:"regime" db:"regime"`
	RegimeDirection   *string  `json:"regime_direction" db:"regime_direction"`
	RegimeProbability *float64 `json:"regime_probability" db:"regime_probability"`
	RegimeConfidence  *float64 `json:"regime_confidence" db:"regime_confidence"`
	RegimeVolumeTrend *string  `json:"regime_volume_trend" db:"regime_volume_trend"`

	Levels       json.RawMessage `json:"levels" db:"levels"`
	ClusterZones json.RawMessage `json:"cluster_zones" db:"cluster_zones"`

	MTF1hTrend   *string  `json:"mtf_1h_trend" db:"mtf_1h_trend"`
	MTF15mTrend  *string  `json:"mtf_15m_trend" db:"mtf_15m_trend"`
	MTF5mTrend   *string  `json:"mtf_5m_trend" db:"mtf_5m_trend"`
	MTF1mTrend   *string  `json:"mtf_1m_trend" db:"mtf_1m_trend"`
	MTFComposite *float64 `json:"mtf_composite" db:"mtf_composite"`
	MTFAligned   *bool    `json:"mtf_aligned" db:"mtf_aligned"`

	VixValue        *float64        `json:"vix_value" db:"vix_value"`
	VixRegime       *string         `json:"vix_regime" db:"vix_regime"`
	EnvGatePassed   *bool           `json:"env_gate_passed" db:"env_gate_passed"`
	EnvGateReasons  []string        `json:"env_gate_reasons" db:"env_gate_reasons"`
	MacroNextEvent  json.RawMessage `json:"macro_next_event" db:"macro_next_event"`
	SessionMinuteET *int            `json:"session_minute_et" db:"session_minute_et"`

	BasisValue *float64 `json:"basis_value" db:"basis_value"`
	SPXPrice   *float64 `json:"spx_price" db:"spx_price"`
	SPYPrice   *float64 `json:"spy_price" db:"spy_price"`

	RRRatio *float64 `json:"rr_ratio" db:"rr_ratio"`
	EvR     *float64 `json:"ev_r" db:"ev_r"`

	MemorySetupType  *string  `json:"memory_setup_type" db:"memory_setup_type"`
	MemoryTestCount  *int     `json:"memory_test_count" db:"memory_test_count"`
	MemoryWinRate    *float64 `json:"memory_win_rate" db:"memory_win_rate"`
	MemoryHoldRate   *float64 `json:"memory_hold_rate" db:"memory_hold_rate"`
	MemoryConfidence *float64 `json:"memory_confidence" db:"memory_confidence"`
	MemoryScore      *float64 `json:"memory_score" db:"memory_score"`
}

// InsertError is the structured failure returned by a replay table.
type InsertError struct {
	Code    string
	Message string
	Err     error
}

func (e *InsertError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (code %s)", e.Message, e.Code)
	}
	return e.Message
}

func (e *InsertError) Unwrap() error { return e.Err }

// FlushOutcome reports what one flush pass did with the pending rows.
type FlushOutcome struct {
	Inserted  int `json:"inserted"`
	Discarded int `json:"discarded"`
	Batches   int `json:"batches"`
}

// Add accumulates another outcome into o.
func (o *FlushOutcome) Add(other FlushOutcome) {
	o.Inserted += other.Inserted
	o.Discarded += other.Discarded
	o.Batches += other.Batches
}
