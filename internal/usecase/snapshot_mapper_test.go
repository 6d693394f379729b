package usecase

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SPXEngine/internal/domain/models"
)

const snapshotFixture = `{
  "generatedAt": "2026-02-20T15:00:00.000Z",
  "levels": [{"price": 6000, "source": "pivot"}],
  "clusters": [{"id": "cz-1", "priceLow": 5995, "priceHigh": 6002}],
  "gex": {
    "spx": {
      "symbol": "SPX",
      "netGex": 123456,
      "callWall": 6030,
      "putWall": 5950,
      "flipPoint": 5987,
      "keyLevels": [{"strike": 6000, "gex": 1200}],
      "expirationBreakdown": {"2026-02-20": 55000}
    }
  },
  "basis": {"current": 0.75, "trend": "stable", "spxPrice": 6001, "spyPrice": 600.1},
  "regime": {"regime": "trending", "direction": "bullish", "probability": 68, "confidence": 80},
  "flow": [
    {"id": "f1", "type": "sweep", "symbol": "SPX", "strike": 6000, "direction": "bullish", "premium": 160000},
    {"id": "f2", "type": "block", "symbol": "SPX", "strike": 5990, "direction": "bearish", "premium": 70000}
  ],
  "flowAggregation": {
    "directionalBias": "bullish",
    "windows": {
      "5m": {"window": "5m", "bias": "bullish"},
      "15m": {"window": "15m", "bias": "neutral"},
      "30m": {"window": "30m", "bias": "bearish"}
    }
  },
  "environmentGate": {
    "passed": true,
    "reasons": [],
    "vixRegime": "normal",
    "breakdown": {
      "vixRegime": {"value": 17.5},
      "macroCalendar": {"nextEvent": {"event": "FOMC Minutes", "at": "2026-02-20T19:00:00.000Z", "minutesUntil": 240}},
      "sessionTime": {"minuteEt": 600}
    }
  },
  "setups": [
    {
      "id": "setup-2",
      "type": "fade_at_wall",
      "direction": "bearish",
      "status": "forming",
      "confluenceScore": 4.9
    },
    {
      "id": "setup-1",
      "type": "trend_pullback",
      "direction": "bullish",
      "status": "ready",
      "confluenceScore": 4.4,
      "entryZone": {"low": 5998, "high": 6000},
      "stop": 5994,
      "target1": {"price": 6011, "label": "T1"},
      "target2": {"price": 6020, "label": "T2"},
      "evR": 0.78,
      "volumeTrend": "rising",
      "clusterZone": {"id": "cz-1", "holdRate": 72},
      "memoryContext": {"tests": 12, "winRatePct": 70, "confidence": 0.84, "score": 78},
      "multiTFConfluence": {"score": 81.5, "aligned": true}
    }
  ]
}`

func loadSnapshotFixture(t *testing.T) models.SPXSnapshot {
	t.Helper()
	var snap models.SPXSnapshot
	require.NoError(t, json.Unmarshal([]byte(snapshotFixture), &snap))
	return snap
}

func fixedNow() time.Time {
	return time.Date(2026, 2, 20, 16, 0, 0, 0, time.UTC)
}

func fixtureContext() *models.MultiTFContext {
	return &models.MultiTFContext{
		TF1h:  models.FrameSnapshot{Trend: models.TrendUp},
		TF15m: models.FrameSnapshot{Trend: models.TrendUp},
		TF5m:  models.FrameSnapshot{Trend: models.TrendFlat},
		TF1m:  models.FrameSnapshot{Trend: models.TrendDown},
	}
}

func TestMapSnapshotToReplaySnapshotRow(t *testing.T) {
	row := MapSnapshotToReplaySnapshotRow(models.CaptureInput{
		Snapshot:       loadSnapshotFixture(t),
		CaptureMode:    models.CaptureInterval,
		MultiTFContext: fixtureContext(),
	}, fixedNow)

	assert.Equal(t, "2026-02-20", row.SessionDate)
	assert.Equal(t, "SPX", row.Symbol)
	assert.Equal(t, time.Date(2026, 2, 20, 15, 0, 0, 0, time.UTC), row.CapturedAt)

	require.NotNil(t, row.GEXNetGamma)
	assert.Equal(t, 123456.0, *row.GEXNetGamma)
	assert.Equal(t, 6030.0, *row.GEXCallWall)
	assert.Equal(t, 5950.0, *row.GEXPutWall)
	assert.Equal(t, 5987.0, *row.GEXFlipPoint)
	assert.JSONEq(t, `[{"strike": 6000, "gex": 1200}]`, string(row.GEXKeyLevels))
	assert.JSONEq(t, `{"2026-02-20": 55000}`, string(row.GEXExpiryBreakdown))

	assert.Equal(t, 2, row.FlowEventCount)
	assert.Equal(t, 1, row.FlowSweepCount)
	assert.Equal(t, 160000.0, row.FlowBullishPremium)
	assert.Equal(t, 70000.0, row.FlowBearishPremium)
	assert.Equal(t, "bullish", *row.FlowBias5m)
	assert.Equal(t, "neutral", *row.FlowBias15m)
	assert.Equal(t, "bearish", *row.FlowBias30m)

	var events []models.FlowEvent
	require.NoError(t, json.Unmarshal(row.FlowEvents, &events))
	assert.Len(t, events, 2)

	assert.Equal(t, "trending", *row.Regime)
	assert.Equal(t, "bullish", *row.RegimeDirection)
	assert.Equal(t, 68.0, *row.RegimeProbability)
	assert.Equal(t, 80.0, *row.RegimeConfidence)
	assert.Equal(t, "rising", *row.RegimeVolumeTrend)

	assert.Equal(t, "up", *row.MTF1hTrend)
	assert.Equal(t, "up", *row.MTF15mTrend)
	assert.Equal(t, "flat", *row.MTF5mTrend)
	assert.Equal(t, "down", *row.MTF1mTrend)
	assert.Equal(t, 81.5, *row.MTFComposite)
	assert.True(t, *row.MTFAligned)

	assert.Equal(t, 17.5, *row.VixValue)
	assert.Equal(t, "normal", *row.VixRegime)
	assert.True(t, *row.EnvGatePassed)
	assert.Equal(t, []string{}, row.EnvGateReasons)
	assert.JSONEq(t, `{"event": "FOMC Minutes", "at": "2026-02-20T19:00:00.000Z", "minutesUntil": 240}`, string(row.MacroNextEvent))
	assert.Equal(t, 600, *row.SessionMinuteET)

	assert.Equal(t, 0.75, *row.BasisValue)
	assert.Equal(t, 6001.0, *row.SPXPrice)
	assert.Equal(t, 600.1, *row.SPYPrice)

	require.NotNil(t, row.RRRatio)
	assert.InDelta(t, 2.4, *row.RRRatio, 1e-9)
	assert.Equal(t, 0.78, *row.EvR)

	assert.Equal(t, "trend_pullback", *row.MemorySetupType)
	assert.Equal(t, 12, *row.MemoryTestCount)
	assert.Equal(t, 70.0, *row.MemoryWinRate)
	assert.Equal(t, 72.0, *row.MemoryHoldRate)
	assert.Equal(t, 0.84, *row.MemoryConfidence)
	assert.Equal(t, 78.0, *row.MemoryScore)

	assert.JSONEq(t, `[{"price": 6000, "source": "pivot"}]`, string(row.Levels))
	assert.JSONEq(t, `[{"id": "cz-1", "priceLow": 5995, "priceHigh": 6002}]`, string(row.ClusterZones))
}

func TestMapSnapshotToReplaySnapshotRow_Sparse(t *testing.T) {
	row := MapSnapshotToReplaySnapshotRow(models.CaptureInput{
		Snapshot: models.SPXSnapshot{GeneratedAt: "not a time"},
		Symbol:   "NDX",
	}, fixedNow)

	assert.Equal(t, "NDX", row.Symbol)
	assert.Equal(t, fixedNow(), row.CapturedAt)
	assert.Equal(t, "2026-02-20", row.SessionDate)

	assert.Nil(t, row.GEXNetGamma)
	assert.Nil(t, row.GEXKeyLevels)
	assert.Nil(t, row.FlowBias5m)
	assert.Zero(t, row.FlowEventCount)
	assert.Zero(t, row.FlowBullishPremium)
	assert.JSONEq(t, `[]`, string(row.FlowEvents))
	assert.Nil(t, row.Regime)
	assert.Nil(t, row.MTF1hTrend)
	assert.Nil(t, row.MTFComposite)
	assert.Nil(t, row.EnvGatePassed)
	assert.Equal(t, []string{}, row.EnvGateReasons)
	assert.Nil(t, row.RRRatio)
	assert.Nil(t, row.MemorySetupType)
	assert.Nil(t, row.Levels)
}

func TestMapSnapshotToReplaySnapshotRow_ExplicitCapturedAt(t *testing.T) {
	// 01:30 UTC on the 21st is still the 20th in New York.
	at := time.Date(2026, 2, 21, 1, 30, 0, 0, time.UTC)
	row := MapSnapshotToReplaySnapshotRow(models.CaptureInput{
		Snapshot:   loadSnapshotFixture(t),
		CapturedAt: at,
	}, fixedNow)

	assert.Equal(t, at, row.CapturedAt)
	assert.Equal(t, "2026-02-20", row.SessionDate)
}

func TestMapSnapshotToReplaySnapshotRow_DropsNonFiniteAndWrongShapes(t *testing.T) {
	nan := math.NaN()
	snap := models.SPXSnapshot{
		Levels: json.RawMessage(`{"not": "an array"}`),
		GEX: &models.GEXSet{SPX: &models.GEXProfile{
			NetGex:              &nan,
			KeyLevels:           json.RawMessage(`"text"`),
			ExpirationBreakdown: json.RawMessage(`[1, 2]`),
		}},
		EnvironmentGate: &models.EnvironmentGate{Reasons: []any{"vix elevated", 42, "macro window"}},
	}

	row := MapSnapshotToReplaySnapshotRow(models.CaptureInput{Snapshot: snap}, fixedNow)

	assert.Nil(t, row.GEXNetGamma)
	assert.Nil(t, row.GEXKeyLevels)
	assert.Nil(t, row.GEXExpiryBreakdown)
	assert.Nil(t, row.Levels)
	assert.Equal(t, []string{"vix elevated", "macro window"}, row.EnvGateReasons)
}

func TestMapSnapshotToReplaySnapshotRow_FractionalCounts(t *testing.T) {
	var snap models.SPXSnapshot
	require.NoError(t, json.Unmarshal([]byte(`{
	  "generatedAt": "2026-02-20T15:00:00.000Z",
	  "environmentGate": {"breakdown": {"sessionTime": {"minuteEt": 600.6}}},
	  "setups": [{"id": "s1", "status": "ready", "memoryContext": {"tests": 4.2}}]
	}`), &snap))

	row := MapSnapshotToReplaySnapshotRow(models.CaptureInput{Snapshot: snap}, fixedNow)
	require.NotNil(t, row.SessionMinuteET)
	assert.Equal(t, 601, *row.SessionMinuteET)
	require.NotNil(t, row.MemoryTestCount)
	assert.Equal(t, 4, *row.MemoryTestCount)

	inf := math.Inf(1)
	snap.EnvironmentGate.Breakdown.SessionTime.MinuteEt = &inf
	row = MapSnapshotToReplaySnapshotRow(models.CaptureInput{Snapshot: snap}, fixedNow)
	assert.Nil(t, row.SessionMinuteET)
}

func TestSelectPrimarySetup(t *testing.T) {
	score := func(v float64) *float64 { return &v }

	tests := []struct {
		name   string
		setups []models.Setup
		wantID string
	}{
		{
			name: "status rank beats score",
			setups: []models.Setup{
				{ID: "a", Status: models.StatusForming, ConfluenceScore: score(4.9)},
				{ID: "b", Status: models.StatusReady, ConfluenceScore: score(4.4)},
			},
			wantID: "b",
		},
		{
			name: "triggered first",
			setups: []models.Setup{
				{ID: "a", Status: models.StatusReady, ConfluenceScore: score(5)},
				{ID: "b", Status: models.StatusTriggered, ConfluenceScore: score(1)},
			},
			wantID: "b",
		},
		{
			name: "higher score within status",
			setups: []models.Setup{
				{ID: "a", Status: models.StatusReady, ConfluenceScore: score(3)},
				{ID: "b", Status: models.StatusReady, ConfluenceScore: score(4)},
			},
			wantID: "b",
		},
		{
			name: "missing score counts as zero",
			setups: []models.Setup{
				{ID: "a", Status: models.StatusReady},
				{ID: "b", Status: models.StatusReady, ConfluenceScore: score(0.5)},
			},
			wantID: "b",
		},
		{
			name: "id breaks ties",
			setups: []models.Setup{
				{ID: "z", Status: models.StatusReady, ConfluenceScore: score(2)},
				{ID: "m", Status: models.StatusReady, ConfluenceScore: score(2)},
			},
			wantID: "m",
		},
		{
			name: "unknown status last",
			setups: []models.Setup{
				{ID: "a", Status: "mystery", ConfluenceScore: score(9)},
				{ID: "b", Status: models.StatusExpired},
			},
			wantID: "b",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectPrimarySetup(tt.setups)
			require.NotNil(t, got)
			assert.Equal(t, tt.wantID, got.ID)
		})
	}

	assert.Nil(t, SelectPrimarySetup(nil))
}

func TestRiskReward(t *testing.T) {
	f := func(v float64) *float64 { return &v }

	rr := RiskReward(&models.Setup{
		EntryZone: &models.PriceZone{Low: f(5998), High: f(6000)},
		Stop:      f(5994),
		Target1:   &models.PriceTarget{Price: f(6011)},
	})
	require.NotNil(t, rr)
	assert.InDelta(t, 2.4, *rr, 1e-9)

	assert.Nil(t, RiskReward(nil))
	assert.Nil(t, RiskReward(&models.Setup{
		EntryZone: &models.PriceZone{Low: f(6000), High: f(6000)},
		Stop:      f(6000),
		Target1:   &models.PriceTarget{Price: f(6010)},
	}), "zero risk")
	assert.Nil(t, RiskReward(&models.Setup{
		EntryZone: &models.PriceZone{Low: f(5998), High: f(6000)},
		Target1:   &models.PriceTarget{Price: f(6010)},
	}), "missing stop")
}

func TestResolveCapturedAt(t *testing.T) {
	explicit := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	assert.Equal(t, explicit, ResolveCapturedAt(explicit, "2026-02-20T15:00:00Z", fixedNow))
	assert.Equal(t, time.Date(2026, 2, 20, 15, 0, 0, 0, time.UTC),
		ResolveCapturedAt(time.Time{}, "2026-02-20T15:00:00Z", fixedNow).UTC())
	assert.Equal(t, fixedNow(), ResolveCapturedAt(time.Time{}, "", fixedNow))
}
