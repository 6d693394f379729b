package analytics

import (
    "fmt"
    "math"
    "time"

    "SPXEngine/internal/domain/models"
    "SPXEngine/internal/services/features"
    "SPXEngine/pkg/util"
)

const (
    neutralAlignment  = 50.0
    baseConfidence    = 35.0
    defaultRiskPct    = 20.0
    maxNotes          = 6
    momentumBefore    = 5
    momentumAfter     = 10
    trendLookahead    = 15
    nearStrikePoints  = 80.0
    farStrikePoints   = 250.0
    momentumThreshold = 0.5
    trendThreshold    = 1.0
)

const (
    noDriversNote = "No strong alignment drivers identified"
    noRisksNote   = "No major execution risks flagged"
)

// ScoreTradeReplay grades a historical trade against the session's bars.
// pnlPct is the realized P&L percent when known.
func ScoreTradeReplay(trade models.ParsedTrade, bars []models.ChartBar, pnlPct *float64) models.TradeEvaluation {
    sign := trade.DirectionSign()
    score := neutralAlignment
    var drivers, risks []string

    if len(bars) >= 2 {
        move := (bars[len(bars)-1].Close - bars[0].Close) * sign
        switch {
        case move > 0:
            score += 12
            drivers = append(drivers, fmt.Sprintf("Session moved %.2f pts in the trade's favor", math.Abs(move)))
        case move < 0:
            score -= 12
            risks = append(risks, fmt.Sprintf("Session moved %.2f pts against the trade", math.Abs(move)))
        }
    } else {
        risks = append(risks, "Limited intraday history for this session")
    }

    idx := entryBarIndex(trade.EntryTimestamp, bars)
    if idx >= 0 {
        spot := bars[idx].Close
        dist := math.Abs(trade.Contract.Strike - spot)
        switch {
        case dist <= nearStrikePoints:
            score += 8
            drivers = append(drivers, fmt.Sprintf("Strike %.0f was %.0f pts from spot at entry", trade.Contract.Strike, dist))
        case dist >= farStrikePoints:
            score -= 8
            risks = append(risks, fmt.Sprintf("Strike %.0f was %.0f pts from spot at entry", trade.Contract.Strike, dist))
        }

        before := avgClose(bars, idx-momentumBefore, idx)
        after := avgClose(bars, idx+1, idx+1+momentumAfter)
        if !math.IsNaN(before) && !math.IsNaN(after) {
            delta := (after - before) * sign
            switch {
            case delta > momentumThreshold:
                score += 14
                drivers = append(drivers, "Post-entry momentum confirmed direction")
            case delta < -momentumThreshold:
                score -= 14
                risks = append(risks, "Post-entry momentum faded against the trade")
            }
        }
    } else {
        risks = append(risks, "Entry bar could not be located")
    }

    hasStops := hasStopManagement(trade)
    if hasStops {
        score += 8
        drivers = append(drivers, "Stop management was defined")
    } else {
        score -= 8
        risks = append(risks, "No stop management recorded")
    }
    if hasExit(trade, models.ExitTrim) {
        score += 6
        drivers = append(drivers, "Partial profits were taken")
    }
    if trade.Sizing != nil && *trade.Sizing == models.SizingLight {
        score += 4
        drivers = append(drivers, "Position was sized light")
    }
    if pnlPct != nil {
        switch {
        case *pnlPct > 0:
            score += 10
            drivers = append(drivers, fmt.Sprintf("Realized P&L %+.1f%%", *pnlPct))
        case *pnlPct < 0:
            score -= 10
            risks = append(risks, fmt.Sprintf("Realized P&L %+.1f%%", *pnlPct))
        }
    }
    score = clamp(score, 0, 100)

    conf := baseConfidence
    switch {
    case len(bars) >= 30:
        conf += 20
    case len(bars) > 0:
        conf += 10
    default:
        conf -= 10
    }
    if idx >= 0 {
        conf += 15
    }
    if len(trade.ExitEvents) > 0 {
        conf += 10
    }
    if pnlPct != nil {
        conf += 15
    }
    if hasStops {
        conf += 5
    }
    conf += math.Abs(score-neutralAlignment) / 5
    conf = clamp(conf, 0, 100)

    base := (score - neutralAlignment) / 2
    if pnlPct != nil {
        base = *pnlPct
    }

    return models.TradeEvaluation{
        AlignmentScore:  features.Round(score, 2),
        Confidence:      features.Round(conf, 2),
        ConfidenceTrend: confidenceTrend(bars, idx, sign),
        ExpectedValueR:  features.Round(base/assumedRiskPct(trade), 2),
        Drivers:         capNotes(drivers, noDriversNote),
        Risks:           capNotes(risks, noRisksNote),
    }
}

// entryBarIndex returns the bar closest in time to the entry, or -1.
func entryBarIndex(ts string, bars []models.ChartBar) int {
    if len(bars) == 0 {
        return -1
    }
    at, ok := util.ParseTime(ts)
    if !ok {
        return -1
    }
    best, bestDist := -1, time.Duration(math.MaxInt64)
    for i, b := range bars {
        d := b.Time.Sub(at)
        if d < 0 {
            d = -d
        }
        if d < bestDist {
            best, bestDist = i, d
        }
    }
    return best
}

// avgClose averages closes over bars[from:to], clipped to bounds. NaN if empty.
func avgClose(bars []models.ChartBar, from, to int) float64 {
    from = max(from, 0)
    to = min(to, len(bars))
    if from >= to {
        return math.NaN()
    }
    sum := 0.0
    for _, b := range bars[from:to] {
        sum += b.Close
    }
    return sum / float64(to-from)
}

func confidenceTrend(bars []models.ChartBar, idx int, sign float64) models.Trend {
    if idx < 0 {
        return models.TrendFlat
    }
    later := min(idx+trendLookahead, len(bars)-1)
    if later <= idx {
        return models.TrendFlat
    }
    move := (bars[later].Close - bars[idx].Close) * sign
    switch {
    case move > trendThreshold:
        return models.TrendUp
    case move < -trendThreshold:
        return models.TrendDown
    default:
        return models.TrendFlat
    }
}

func hasStopManagement(t models.ParsedTrade) bool {
    if len(t.StopLevels) > 0 {
        return true
    }
    for _, e := range t.ExitEvents {
        if e.IsStop() {
            return true
        }
    }
    return false
}

func hasExit(t models.ParsedTrade, kind string) bool {
    for _, e := range t.ExitEvents {
        if e.Type == kind {
            return true
        }
    }
    return false
}

// assumedRiskPct is the mean magnitude of recorded stop-exit percentages.
func assumedRiskPct(t models.ParsedTrade) float64 {
    sum, n := 0.0, 0
    for _, e := range t.ExitEvents {
        if !e.IsStop() || e.Percentage == nil || *e.Percentage == 0 {
            continue
        }
        sum += math.Abs(*e.Percentage)
        n++
    }
    if n == 0 {
        return defaultRiskPct
    }
    return sum / float64(n)
}

func capNotes(notes []string, filler string) []string {
    if len(notes) == 0 {
        return []string{filler}
    }
    if len(notes) > maxNotes {
        notes = notes[:maxNotes]
    }
    return notes
}
