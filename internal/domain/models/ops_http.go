package models

// MultiTFRequest is the query of GET /ops/multi-tf.
// Price 0 scores against the latest 1m close.
type MultiTFRequest struct {
	Symbol    string  `query:"symbol" json:"symbol" default:"SPX" validate:"required,alpha,max=8"`
	At        string  `query:"at" json:"at"`
	Refresh   bool    `query:"refresh" json:"refresh"`
	Direction string  `query:"direction" json:"direction" default:"bullish" validate:"oneof=bullish bearish"`
	Price     float64 `query:"price" json:"price" validate:"gte=0"`
}

// MultiTFResponse pairs the assembled context with its confluence score.
type MultiTFResponse struct {
	Context    MultiTFContext  `json:"context"`
	Confluence ConfluenceScore `json:"confluence"`
	Direction  Direction       `json:"direction"`
	Price      float64         `json:"price"`
}

// CaptureRequest is the wire form of one replay capture, accepted by
// POST /ops/replay/capture and the snapshots topic. An empty captureMode
// is an interval capture.
type CaptureRequest struct {
	Snapshot    *SPXSnapshot `json:"snapshot" validate:"required"`
	CaptureMode CaptureMode  `json:"captureMode" validate:"omitempty,oneof=interval setup_transition"`
	CapturedAt  string       `json:"capturedAt"`
	Symbol      string       `json:"symbol" validate:"omitempty,alpha,max=8"`
}

type CaptureResponse struct {
	Queued  bool `json:"queued"`
	Pending int  `json:"pending"`
}
