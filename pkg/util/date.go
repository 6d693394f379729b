package util

import (
    "strconv"
    "time"
)

// ParseTime tries RFC3339, RFC3339Nano, and unix seconds. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
    if s == "" {
        return time.Time{}, false
    }
    if t, err := time.Parse(time.RFC3339, s); err == nil {
        return t, true
    }
    if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
        return t, true
    }
    if t, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
        return t, true
    }
    if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
        if ts > 1e12 {
            return time.UnixMilli(ts).UTC(), true
        }
        return time.Unix(ts, 0).UTC(), true
    }
    return time.Time{}, false
}

// ParseTimeDefault parses time or returns default if empty/invalid.
func ParseTimeDefault(s string, def time.Time) time.Time {
    if t, ok := ParseTime(s); ok {
        return t
    }
    return def
}
