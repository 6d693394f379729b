package models

// Exit event kinds.
const (
	ExitTrim          = "trim"
	ExitStop          = "stop"
	ExitTrailStop     = "trail_stop"
	ExitBreakevenStop = "breakeven_stop"
	ExitFull          = "full_exit"
)

// Sizing flags.
const (
	SizingNormal = "normal"
	SizingLight  = "light"
)

// Contract is the option contract a trade was taken on.
type Contract struct {
	Symbol string  `json:"symbol" validate:"required,eq=SPX"`
	Strike float64 `json:"strike" validate:"gte=4000,lte=8000"`
	Type   string  `json:"type" validate:"required,oneof=call put"`
	Expiry string  `json:"expiry" validate:"required,datetime=2006-01-02"`
}

// ExitEvent is one partial or full exit. Percentage is the share of the
// position (or the loss percent for stop kinds) when known.
type ExitEvent struct {
	Type       string   `json:"type" validate:"required,oneof=trim stop trail_stop breakeven_stop full_exit"`
	Percentage *float64 `json:"percentage,omitempty"`
	Timestamp  string   `json:"timestamp" validate:"required"`
}

// IsStop reports whether the event closes risk through a stop.
func (e ExitEvent) IsStop() bool {
	switch e.Type {
	case ExitStop, ExitTrailStop, ExitBreakevenStop:
		return true
	default:
		return false
	}
}

// StopLevel is a stop placement on the underlying.
type StopLevel struct {
	SPXLevel  float64 `json:"spxLevel" validate:"gt=0"`
	Timestamp string  `json:"timestamp" validate:"required"`
}

// ParsedTrade is a historical trade extracted upstream. Read-only here.
type ParsedTrade struct {
	Contract       Contract    `json:"contract" validate:"required"`
	Direction      string      `json:"direction" validate:"required,eq=long"`
	EntryPrice     float64     `json:"entryPrice" validate:"gt=0"`
	EntryTimestamp string      `json:"entryTimestamp" validate:"required"`
	ExitEvents     []ExitEvent `json:"exitEvents" validate:"dive"`
	StopLevels     []StopLevel `json:"stopLevels" validate:"dive"`
	Sizing         *string     `json:"sizing,omitempty" validate:"omitempty,oneof=normal light"`
}

// DirectionSign is +1 when the trade profits from the underlying rising and
// -1 when it profits from a decline.
func (t ParsedTrade) DirectionSign() float64 {
	sign := 1.0
	if t.Contract.Type == "put" {
		sign = -1
	}
	if t.Direction == "short" {
		sign = -sign
	}
	return sign
}

// TradeEvaluation is the retrospective grade of one trade.
type TradeEvaluation struct {
	AlignmentScore  float64  `json:"alignmentScore"`
	Confidence      float64  `json:"confidence"`
	ConfidenceTrend Trend    `json:"confidenceTrend"`
	ExpectedValueR  float64  `json:"expectedValueR"`
	Drivers         []string `json:"drivers"`
	Risks           []string `json:"risks"`
}
