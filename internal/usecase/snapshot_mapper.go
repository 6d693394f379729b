package usecase

import (
	"encoding/json"
	"math"
	"sort"
	"time"

	"SPXEngine/internal/domain/models"
	"SPXEngine/pkg/markethours"
	"SPXEngine/pkg/util"
)

// ResolveCapturedAt picks the explicit time, then the snapshot's
// generatedAt, then now.
func ResolveCapturedAt(explicit time.Time, generatedAt string, now func() time.Time) time.Time {
	if !explicit.IsZero() {
		return explicit
	}
	if t, ok := util.ParseTime(generatedAt); ok {
		return t
	}
	return now()
}

// SelectPrimarySetup ranks setups by status, then confluence score
// descending (missing counts as 0), then id ascending.
func SelectPrimarySetup(setups []models.Setup) *models.Setup {
	if len(setups) == 0 {
		return nil
	}
	ranked := make([]models.Setup, len(setups))
	copy(ranked, setups)
	sort.SliceStable(ranked, func(i, j int) bool {
		l, r := ranked[i], ranked[j]
		if dl, dr := l.Status.Rank(), r.Status.Rank(); dl != dr {
			return dl < dr
		}
		if sl, sr := valueOr(l.ConfluenceScore, 0), valueOr(r.ConfluenceScore, 0); sl != sr {
			return sl > sr
		}
		return l.ID < r.ID
	})
	return &ranked[0]
}

// RiskReward is |target1 - mid| / |mid - stop| where mid is the entry zone
// midpoint. Nil when an input is missing or the risk is not positive.
func RiskReward(s *models.Setup) *float64 {
	if s == nil || s.EntryZone == nil || s.Target1 == nil {
		return nil
	}
	low, high := finitePtr(s.EntryZone.Low), finitePtr(s.EntryZone.High)
	stop, t1 := finitePtr(s.Stop), finitePtr(s.Target1.Price)
	if low == nil || high == nil || stop == nil || t1 == nil {
		return nil
	}
	entry := (*low + *high) / 2
	risk := math.Abs(entry - *stop)
	if risk <= 0 || math.IsInf(risk, 0) || math.IsNaN(risk) {
		return nil
	}
	rr := math.Abs(*t1-entry) / risk
	if math.IsInf(rr, 0) || math.IsNaN(rr) {
		return nil
	}
	return &rr
}

// MapSnapshotToReplaySnapshotRow flattens one capture into a replay row.
// Unknown numeric values stay nil; zero is a real value.
func MapSnapshotToReplaySnapshotRow(in models.CaptureInput, now func() time.Time) models.ReplaySnapshotRow {
	if now == nil {
		now = time.Now
	}
	snap := in.Snapshot
	capturedAt := ResolveCapturedAt(in.CapturedAt, snap.GeneratedAt, now)

	symbol := in.Symbol
	if symbol == "" {
		symbol = defaultSymbol
	}

	row := models.ReplaySnapshotRow{
		SessionDate:    markethours.SessionDate(capturedAt),
		Symbol:         symbol,
		CapturedAt:     capturedAt.UTC(),
		Levels:         rawArray(snap.Levels),
		ClusterZones:   rawArray(snap.Clusters),
		EnvGateReasons: []string{},
	}

	if snap.GEX != nil && snap.GEX.SPX != nil {
		g := snap.GEX.SPX
		row.GEXNetGamma = finitePtr(g.NetGex)
		row.GEXCallWall = finitePtr(g.CallWall)
		row.GEXPutWall = finitePtr(g.PutWall)
		row.GEXFlipPoint = finitePtr(g.FlipPoint)
		row.GEXKeyLevels = rawArray(g.KeyLevels)
		row.GEXExpiryBreakdown = rawObject(g.ExpirationBreakdown)
	}

	if agg := snap.FlowAggregation; agg != nil {
		row.FlowBias5m = windowBias(agg, "5m")
		row.FlowBias15m = windowBias(agg, "15m")
		row.FlowBias30m = windowBias(agg, "30m")
	}
	events := snap.Flow
	if events == nil {
		events = []models.FlowEvent{}
	}
	row.FlowEventCount = len(events)
	for _, e := range events {
		if e.Type == "sweep" {
			row.FlowSweepCount++
		}
		premium := valueOr(finitePtr(e.Premium), 0)
		switch models.Direction(e.Direction) {
		case models.Bullish:
			row.FlowBullishPremium += premium
		case models.Bearish:
			row.FlowBearishPremium += premium
		}
	}
	if data, err := json.Marshal(events); err == nil {
		row.FlowEvents = data
	}

	if r := snap.Regime; r != nil {
		row.Regime = r.Regime
		row.RegimeDirection = r.Direction
		row.RegimeProbability = finitePtr(r.Probability)
		row.RegimeConfidence = finitePtr(r.Confidence)
	}

	if c := in.MultiTFContext; c != nil {
		row.MTF1hTrend = trendPtr(c.TF1h.Trend)
		row.MTF15mTrend = trendPtr(c.TF15m.Trend)
		row.MTF5mTrend = trendPtr(c.TF5m.Trend)
		row.MTF1mTrend = trendPtr(c.TF1m.Trend)
	}

	if gate := snap.EnvironmentGate; gate != nil {
		row.EnvGatePassed = gate.Passed
		row.VixRegime = gate.VixRegime
		for _, reason := range gate.Reasons {
			if s, ok := reason.(string); ok {
				row.EnvGateReasons = append(row.EnvGateReasons, s)
			}
		}
		if b := gate.Breakdown; b != nil {
			if b.VixRegime != nil {
				row.VixValue = finitePtr(b.VixRegime.Value)
			}
			if b.MacroCalendar != nil {
				row.MacroNextEvent = rawObject(b.MacroCalendar.NextEvent)
			}
			if b.SessionTime != nil {
				row.SessionMinuteET = finiteIntPtr(b.SessionTime.MinuteEt)
			}
		}
	}

	if b := snap.Basis; b != nil {
		row.BasisValue = finitePtr(b.Current)
		row.SPXPrice = finitePtr(b.SPXPrice)
		row.SPYPrice = finitePtr(b.SPYPrice)
	}

	primary := SelectPrimarySetup(snap.Setups)
	row.RRRatio = RiskReward(primary)
	if primary != nil {
		row.EvR = finitePtr(primary.EvR)
		row.RegimeVolumeTrend = primary.VolumeTrend
		if primary.Type != "" {
			t := primary.Type
			row.MemorySetupType = &t
		}
		if m := primary.MultiTFConfluence; m != nil {
			row.MTFComposite = finitePtr(m.Score)
			row.MTFAligned = m.Aligned
		}
		if m := primary.MemoryContext; m != nil {
			row.MemoryTestCount = finiteIntPtr(m.Tests)
			row.MemoryWinRate = finitePtr(m.WinRatePct)
			row.MemoryConfidence = finitePtr(m.Confidence)
			row.MemoryScore = finitePtr(m.Score)
		}
		if primary.ClusterZone != nil {
			row.MemoryHoldRate = finitePtr(primary.ClusterZone.HoldRate)
		}
	}
	return row
}

func windowBias(agg *models.FlowAggregation, window string) *string {
	if w, ok := agg.Windows[window]; ok {
		return w.Bias
	}
	return nil
}

func trendPtr(t models.Trend) *string {
	if t == "" {
		return nil
	}
	s := string(t)
	return &s
}

func finitePtr(v *float64) *float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	out := *v
	return &out
}

// finiteIntPtr rounds a finite number for the integer columns.
func finiteIntPtr(v *float64) *int {
	f := finitePtr(v)
	if f == nil || math.Abs(*f) > math.MaxInt32 {
		return nil
	}
	out := int(math.Round(*f))
	return &out
}

func valueOr(v *float64, def float64) float64 {
	if v == nil || math.IsNaN(*v) {
		return def
	}
	return *v
}

// rawArray keeps v only when it is a JSON array.
func rawArray(v json.RawMessage) json.RawMessage {
	return rawOfKind(v, '[')
}

// rawObject keeps v only when it is a JSON object.
func rawObject(v json.RawMessage) json.RawMessage {
	return rawOfKind(v, '{')
}

func rawOfKind(v json.RawMessage, open byte) json.RawMessage {
	for _, c := range v {
		switch c {
		case ' ', '\t', '\n', '\r':
			continue
		case open:
			return v
		default:
			return nil
		}
	}
	return nil
}
