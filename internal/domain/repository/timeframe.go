package repository

import "time"

// IsValidTimeframe returns true if tf is one of the four confluence timeframes.
func IsValidTimeframe(tf Timeframe) bool {
	switch tf {
	case TF1m, TF5m, TF15m, TF1h:
		return true
	default:
		return false
	}
}

// DefaultTimeframe returns the default timeframe.
func DefaultTimeframe() Timeframe { return TF1m }

// NormalizeTimeframe converts raw string to a valid timeframe (or default).
func NormalizeTimeframe(s string) Timeframe {
	if s == "" {
		return DefaultTimeframe()
	}
	tf := Timeframe(s)
	if IsValidTimeframe(tf) {
		return tf
	}
	return DefaultTimeframe()
}

// Duration is the bucket width of tf.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case TF5m:
		return 5 * time.Minute
	case TF15m:
		return 15 * time.Minute
	case TF1h:
		return time.Hour
	default:
		return time.Minute
	}
}
