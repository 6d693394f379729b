package analytics

import (
    "math"

    "SPXEngine/internal/domain/models"
    "SPXEngine/internal/services/features"
)

// Component caps. Their sum (76) normalizes the composite.
const (
    cap1hStructure = 25.0
    cap15mSwing    = 20.0
    cap5mMomentum  = 15.0
    cap1mMicro     = 16.0

    compositeNormalizer = cap1hStructure + cap15mSwing + cap5mMomentum + cap1mMicro
    alignedThreshold    = 60.0
    unreliablePenalty   = 0.6
)

// TimeframeWeights scale each component relative to BaseWeights.
type TimeframeWeights struct {
    W1h  float64
    W15m float64
    W5m  float64
    W1m  float64
}

// BaseWeights is the neutral profile; scoring with it equals sum/76.
var BaseWeights = TimeframeWeights{W1h: 0.55, W15m: 0.2, W5m: 0.15, W1m: 0.1}

// ScoreOptions tunes ScoreConfluence. The zero value scores with BaseWeights.
type ScoreOptions struct {
    Weights            *TimeframeWeights
    PenalizeUnreliable bool
}

// FallbackConfluence is returned when no context is available.
func FallbackConfluence() models.ConfluenceScore {
    return models.ConfluenceScore{
        TF1hStructureAligned:  6,
        TF15mSwingProximity:   4,
        TF5mMomentumAlignment: 4,
        TF1mMicrostructure:    4,
        Composite:             24,
        Aligned:               false,
    }
}

// ScoreConfluence grades how well the four timeframes agree with direction at price.
func ScoreConfluence(ctx *models.MultiTFContext, direction models.Direction, price float64, opts ScoreOptions) models.ConfluenceScore {
    if ctx == nil {
        return FallbackConfluence()
    }
    want := direction.ExpectedTrend()

    s := models.ConfluenceScore{
        TF1hStructureAligned:  trendPoints(ctx.TF1h.Trend, want, 25, 11, 5),
        TF15mSwingProximity:   swingPoints(price, ctx.TF15m),
        TF5mMomentumAlignment: trendPoints(ctx.TF5m.Trend, want, 15, 8, 3),
        TF1mMicrostructure:    6,
    }
    if microAligned(ctx.TF1m, direction, price) {
        s.TF1mMicrostructure = 16
    }

    w := BaseWeights
    if opts.Weights != nil {
        w = *opts.Weights
    }
    sc1h := math.Max(0, w.W1h) / BaseWeights.W1h
    sc15 := math.Max(0, w.W15m) / BaseWeights.W15m
    sc5 := math.Max(0, w.W5m) / BaseWeights.W5m
    sc1 := math.Max(0, w.W1m) / BaseWeights.W1m

    raw := s.TF1hStructureAligned*sc1h + s.TF15mSwingProximity*sc15 + s.TF5mMomentumAlignment*sc5 + s.TF1mMicrostructure*sc1
    norm := cap1hStructure*sc1h + cap15mSwing*sc15 + cap5mMomentum*sc5 + cap1mMicro*sc1
    if norm <= 0 {
        norm = compositeNormalizer
    }

    s.Composite = features.Round(clamp(raw/norm*100, 0, 100), 2)
    if opts.PenalizeUnreliable && anyUnreliable(ctx) {
        s.Composite = features.Round(s.Composite*unreliablePenalty, 2)
    }
    s.Aligned = s.Composite >= alignedThreshold
    return s
}

func trendPoints(got, want models.Trend, match, flat, against float64) float64 {
    switch got {
    case want:
        return match
    case models.TrendFlat:
        return flat
    default:
        return against
    }
}

func swingPoints(price float64, f models.FrameSnapshot) float64 {
    d := math.Min(math.Abs(price-f.SwingHigh), math.Abs(price-f.SwingLow))
    switch {
    case d <= 4:
        return 20
    case d <= 8:
        return 12
    case d <= 14:
        return 7
    default:
        return 3
    }
}

// microAligned: for the 1m frame, the price must sit on the right side of
// the fast EMA and the slope must not oppose the direction.
func microAligned(f models.FrameSnapshot, direction models.Direction, price float64) bool {
    if direction == models.Bearish {
        return price <= f.EMA21 && f.Slope21 <= 0
    }
    return price >= f.EMA21 && f.Slope21 >= 0
}

func anyUnreliable(ctx *models.MultiTFContext) bool {
    for _, f := range ctx.Frames() {
        if !f.EMAReliable {
            return true
        }
    }
    return false
}

func clamp(v, lo, hi float64) float64 {
    if math.IsNaN(v) {
        return lo
    }
    return math.Max(lo, math.Min(hi, v))
}
