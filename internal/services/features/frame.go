package features

import (
    "math"
    "sort"
    "time"

    "SPXEngine/internal/domain/models"
)

const (
    // MaxFrameBars caps how many bars a frame keeps.
    MaxFrameBars = 80
    // SwingLookback is the number of trailing bars used for swing extremes.
    SwingLookback = 12
    // Precision is the number of decimals every frame output is rounded to.
    Precision = 4

    DefaultEMAFast = 21
    DefaultEMASlow = 55
)

// FrameConfig holds the EMA periods used by BuildFrameSnapshot.
type FrameConfig struct {
    EMAFast int
    EMASlow int
}

// DefaultFrameConfig returns the 21/55 pair.
func DefaultFrameConfig() FrameConfig {
    return FrameConfig{EMAFast: DefaultEMAFast, EMASlow: DefaultEMASlow}
}

func (c FrameConfig) normalized() FrameConfig {
    if c.EMAFast < 1 {
        c.EMAFast = DefaultEMAFast
    }
    if c.EMASlow < 1 {
        c.EMASlow = DefaultEMASlow
    }
    return c
}

// EMA computes the exponential moving average of values seeded with the
// first value, alpha = 2/(period+1). Empty input yields 0.
func EMA(values []float64, period int) float64 {
    if len(values) == 0 {
        return 0
    }
    if period < 1 {
        period = 1
    }
    k := 2 / (float64(period) + 1)
    cur := values[0]
    for i := 1; i < len(values); i++ {
        cur = values[i]*k + cur*(1-k)
    }
    return cur
}

// Round rounds v to the given number of decimals.
func Round(v float64, decimals int) float64 {
    p := math.Pow(10, float64(decimals))
    return math.Round(v*p) / p
}

func finite(v float64) bool {
    return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ToFrameBars drops bars with non-finite prices, sorts by time and keeps the
// most recent MaxFrameBars. Non-finite volume becomes 0.
func ToFrameBars(bars []models.ChartBar) []models.FrameBar {
    out := make([]models.FrameBar, 0, len(bars))
    for _, b := range bars {
        if b.Time.IsZero() || !finite(b.Close) || !finite(b.High) || !finite(b.Low) {
            continue
        }
        v := b.Volume
        if !finite(v) {
            v = 0
        }
        out = append(out, models.FrameBar{T: b.Time.UnixMilli(), C: b.Close, H: b.High, L: b.Low, V: v})
    }
    sort.SliceStable(out, func(i, j int) bool { return out[i].T < out[j].T })
    if len(out) > MaxFrameBars {
        out = out[len(out)-MaxFrameBars:]
    }
    return out
}

// ClassifyTrend is up only when the fast EMA leads and rises, down when it
// trails and falls, flat otherwise.
func ClassifyTrend(emaFast, emaSlow, slope float64) models.Trend {
    if emaFast > emaSlow && slope > 0 {
        return models.TrendUp
    }
    if emaFast < emaSlow && slope < 0 {
        return models.TrendDown
    }
    return models.TrendFlat
}

// BuildFrameSnapshot summarizes one timeframe's bars. Short history shrinks
// the EMA windows; empty input returns NeutralFrame.
func BuildFrameSnapshot(timeframe string, bars []models.FrameBar, cfg FrameConfig) models.FrameSnapshot {
    if len(bars) == 0 {
        return NeutralFrame(timeframe)
    }
    cfg = cfg.normalized()
    if len(bars) > MaxFrameBars {
        bars = bars[len(bars)-MaxFrameBars:]
    }

    closes := make([]float64, len(bars))
    for i, b := range bars {
        closes[i] = b.C
    }
    n := len(closes)

    emaFast := EMA(closes, min(cfg.EMAFast, n))
    emaSlow := EMA(closes, min(cfg.EMASlow, n))
    slope := 0.0
    if prior := closes[:n-1]; len(prior) > 0 {
        slope = emaFast - EMA(prior, min(cfg.EMAFast, len(prior)))
    }
    latest := closes[n-1]

    swing := bars
    if len(swing) > SwingLookback {
        swing = swing[len(swing)-SwingLookback:]
    }
    hi, lo := math.Inf(-1), math.Inf(1)
    for _, b := range swing {
        hi = math.Max(hi, b.H)
        lo = math.Min(lo, b.L)
    }
    if !finite(hi) {
        hi = latest
    }
    if !finite(lo) {
        lo = latest
    }

    return models.FrameSnapshot{
        Timeframe:   timeframe,
        EMA21:       Round(emaFast, Precision),
        EMAReliable: n >= cfg.EMAFast,
        EMA55:       Round(emaSlow, Precision),
        Slope21:     Round(slope, Precision),
        LatestClose: Round(latest, Precision),
        Trend:       ClassifyTrend(emaFast, emaSlow, slope),
        SwingHigh:   Round(hi, Precision),
        SwingLow:    Round(lo, Precision),
        Bars:        bars,
    }
}

// NeutralFrame is the zeroed, flat frame used when no data is available.
func NeutralFrame(timeframe string) models.FrameSnapshot {
    return models.FrameSnapshot{
        Timeframe: timeframe,
        Trend:     models.TrendFlat,
        Bars:      []models.FrameBar{},
    }
}

// NeutralContext is the fallback context: every frame zeroed and flat.
func NeutralContext(asOf time.Time) models.MultiTFContext {
    return models.MultiTFContext{
        AsOf:   FormatAsOf(asOf),
        TF1m:   NeutralFrame("1m"),
        TF5m:   NeutralFrame("5m"),
        TF15m:  NeutralFrame("15m"),
        TF1h:   NeutralFrame("1h"),
        Source: models.SourceFallback,
    }
}

// FormatAsOf renders t as UTC RFC3339 with millisecond precision.
func FormatAsOf(t time.Time) string {
    return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
