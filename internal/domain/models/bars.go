package models

import "time"

// ChartBar is one OHLCV record for a single timeframe, ordered by Time.
type ChartBar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// FrameBar is the compact bar kept inside a FrameSnapshot.
// T is unix milliseconds.
type FrameBar struct {
	T int64   `json:"t"`
	C float64 `json:"c"`
	H float64 `json:"h"`
	L float64 `json:"l"`
	V float64 `json:"v"`
}
