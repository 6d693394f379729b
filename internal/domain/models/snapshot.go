package models

import "encoding/json"

// SetupStatus is the lifecycle state of a candidate setup.
type SetupStatus string

const (
	StatusForming     SetupStatus = "forming"
	StatusReady       SetupStatus = "ready"
	StatusTriggered   SetupStatus = "triggered"
	StatusInvalidated SetupStatus = "invalidated"
	StatusExpired     SetupStatus = "expired"
)

// Rank orders statuses for primary setup selection. Lower wins.
func (s SetupStatus) Rank() int {
	switch s {
	case StatusTriggered:
		return 0
	case StatusReady:
		return 1
	case StatusForming:
		return 2
	case StatusInvalidated:
		return 3
	case StatusExpired:
		return 4
	default:
		return 5
	}
}

// SPXSnapshot is the fully assembled market state produced by the analytics
// collaborator. Only the fields this engine reads are typed; pass-through
// collections stay raw.
type SPXSnapshot struct {
	GeneratedAt     string           `json:"generatedAt"`
	Levels          json.RawMessage  `json:"levels,omitempty"`
	Clusters        json.RawMessage  `json:"clusters,omitempty"`
	GEX             *GEXSet          `json:"gex,omitempty"`
	Basis           *BasisState      `json:"basis,omitempty"`
	Setups          []Setup          `json:"setups"`
	Regime          *RegimeState     `json:"regime,omitempty"`
	Flow            []FlowEvent      `json:"flow"`
	FlowAggregation *FlowAggregation `json:"flowAggregation,omitempty"`
	EnvironmentGate *EnvironmentGate `json:"environmentGate,omitempty"`
}

type GEXSet struct {
	SPX      *GEXProfile `json:"spx,omitempty"`
	SPY      *GEXProfile `json:"spy,omitempty"`
	Combined *GEXProfile `json:"combined,omitempty"`
}

type GEXProfile struct {
	Symbol              string          `json:"symbol"`
	SpotPrice           *float64        `json:"spotPrice,omitempty"`
	NetGex              *float64        `json:"netGex,omitempty"`
	FlipPoint           *float64        `json:"flipPoint,omitempty"`
	CallWall            *float64        `json:"callWall,omitempty"`
	PutWall             *float64        `json:"putWall,omitempty"`
	KeyLevels           json.RawMessage `json:"keyLevels,omitempty"`
	ExpirationBreakdown json.RawMessage `json:"expirationBreakdown,omitempty"`
}

type BasisState struct {
	Current  *float64 `json:"current,omitempty"`
	Trend    string   `json:"trend,omitempty"`
	SPXPrice *float64 `json:"spxPrice,omitempty"`
	SPYPrice *float64 `json:"spyPrice,omitempty"`
}

type RegimeState struct {
	Regime      *string  `json:"regime,omitempty"`
	Direction   *string  `json:"direction,omitempty"`
	Probability *float64 `json:"probability,omitempty"`
	Confidence  *float64 `json:"confidence,omitempty"`
}

// FlowEvent is one options flow print (sweep, block...).
type FlowEvent struct {
	ID        string   `json:"id"`
	Type      string   `json:"type"`
	Symbol    string   `json:"symbol"`
	Strike    float64  `json:"strike"`
	Expiry    string   `json:"expiry"`
	Size      float64  `json:"size"`
	Direction string   `json:"direction"`
	Premium   *float64 `json:"premium,omitempty"`
	Timestamp string   `json:"timestamp"`
}

type FlowWindow struct {
	Window         string   `json:"window"`
	EventCount     int      `json:"eventCount"`
	SweepCount     int      `json:"sweepCount"`
	BullishPremium float64  `json:"bullishPremium"`
	BearishPremium float64  `json:"bearishPremium"`
	Bias           *string  `json:"bias,omitempty"`
	FlowScore      *float64 `json:"flowScore,omitempty"`
}

type FlowAggregation struct {
	DirectionalBias string                `json:"directionalBias,omitempty"`
	Windows         map[string]FlowWindow `json:"windows,omitempty"`
}

type EnvironmentGate struct {
	Passed    *bool          `json:"passed,omitempty"`
	Reasons   []any          `json:"reasons,omitempty"`
	VixRegime *string        `json:"vixRegime,omitempty"`
	Breakdown *GateBreakdown `json:"breakdown,omitempty"`
}

type GateBreakdown struct {
	VixRegime *struct {
		Value *float64 `json:"value,omitempty"`
	} `json:"vixRegime,omitempty"`
	MacroCalendar *struct {
		NextEvent json.RawMessage `json:"nextEvent,omitempty"`
	} `json:"macroCalendar,omitempty"`
	SessionTime *struct {
		MinuteEt *float64 `json:"minuteEt,omitempty"`
	} `json:"sessionTime,omitempty"`
}

type PriceZone struct {
	Low  *float64 `json:"low,omitempty"`
	High *float64 `json:"high,omitempty"`
}

type PriceTarget struct {
	Price *float64 `json:"price,omitempty"`
	Label string   `json:"label,omitempty"`
}

type ClusterZone struct {
	ID        string   `json:"id"`
	PriceLow  *float64 `json:"priceLow,omitempty"`
	PriceHigh *float64 `json:"priceHigh,omitempty"`
	HoldRate  *float64 `json:"holdRate,omitempty"`
}

// MemoryContext summarizes how this level behaved in prior sessions.
type MemoryContext struct {
	Tests      *float64 `json:"tests,omitempty"`
	WinRatePct *float64 `json:"winRatePct,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
	Score      *float64 `json:"score,omitempty"`
}

// SetupConfluence is the multi-timeframe score attached to a setup.
type SetupConfluence struct {
	Score                 *float64 `json:"score,omitempty"`
	Aligned               *bool    `json:"aligned,omitempty"`
	TF1hStructureAligned  float64  `json:"tf1hStructureAligned"`
	TF15mSwingProximity   float64  `json:"tf15mSwingProximity"`
	TF5mMomentumAlignment float64  `json:"tf5mMomentumAlignment"`
	TF1mMicrostructure    float64  `json:"tf1mMicrostructure"`
}

// Setup is an externally detected candidate trade.
type Setup struct {
	ID                string           `json:"id"`
	Type              string           `json:"type"`
	Direction         Direction        `json:"direction"`
	EntryZone         *PriceZone       `json:"entryZone,omitempty"`
	Stop              *float64         `json:"stop,omitempty"`
	Target1           *PriceTarget     `json:"target1,omitempty"`
	Target2           *PriceTarget     `json:"target2,omitempty"`
	ConfluenceScore   *float64         `json:"confluenceScore,omitempty"`
	Status            SetupStatus      `json:"status"`
	ClusterZone       *ClusterZone     `json:"clusterZone,omitempty"`
	MemoryContext     *MemoryContext   `json:"memoryContext,omitempty"`
	MultiTFConfluence *SetupConfluence `json:"multiTFConfluence,omitempty"`
	EvR               *float64         `json:"evR,omitempty"`
	VolumeTrend       *string          `json:"volumeTrend,omitempty"`
}
