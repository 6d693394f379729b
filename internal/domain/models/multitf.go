package models

// Trend is the direction classification of one timeframe.
type Trend string

const (
	TrendUp   Trend = "up"
	TrendDown Trend = "down"
	TrendFlat Trend = "flat"
)

// Direction of a setup or trade idea.
type Direction string

const (
	Bullish Direction = "bullish"
	Bearish Direction = "bearish"
)

// ExpectedTrend maps a direction to the trend that confirms it.
func (d Direction) ExpectedTrend() Trend {
	if d == Bearish {
		return TrendDown
	}
	return TrendUp
}

// ContextSource tells where a MultiTFContext came from.
type ContextSource string

const (
	SourceComputed ContextSource = "computed"
	SourceCached   ContextSource = "cached"
	SourceFallback ContextSource = "fallback"
)

// FrameSnapshot is the trend summary of a single timeframe.
type FrameSnapshot struct {
	Timeframe   string     `json:"timeframe"`
	EMA21       float64    `json:"ema21"`
	EMAReliable bool       `json:"emaReliable"`
	EMA55       float64    `json:"ema55"`
	Slope21     float64    `json:"slope21"`
	LatestClose float64    `json:"latestClose"`
	Trend       Trend      `json:"trend"`
	SwingHigh   float64    `json:"swingHigh"`
	SwingLow    float64    `json:"swingLow"`
	Bars        []FrameBar `json:"bars"`
}

// MultiTFContext bundles the four frames used for confluence scoring.
type MultiTFContext struct {
	AsOf   string        `json:"asOf"`
	TF1m   FrameSnapshot `json:"tf1m"`
	TF5m   FrameSnapshot `json:"tf5m"`
	TF15m  FrameSnapshot `json:"tf15m"`
	TF1h   FrameSnapshot `json:"tf1h"`
	Source ContextSource `json:"source"`
}

// Frames returns the frames ordered from the fastest to the slowest timeframe.
func (c *MultiTFContext) Frames() []FrameSnapshot {
	return []FrameSnapshot{c.TF1m, c.TF5m, c.TF15m, c.TF1h}
}

// ConfluenceScore is the weighted alignment of the four timeframes.
type ConfluenceScore struct {
	TF1hStructureAligned  float64 `json:"tf1hStructureAligned"`
	TF15mSwingProximity   float64 `json:"tf15mSwingProximity"`
	TF5mMomentumAlignment float64 `json:"tf5mMomentumAlignment"`
	TF1mMicrostructure    float64 `json:"tf1mMicrostructure"`
	Composite             float64 `json:"composite"`
	Aligned               bool    `json:"aligned"`
}
