package util

import (
    "strconv"
    "strings"
)

// ParseIntDefault parses string to int or returns default if empty/invalid.
func ParseIntDefault(s string, def int) int {
    if s == "" {
        return def
    }
    v, err := strconv.Atoi(strings.TrimSpace(s))
    if err != nil {
        return def
    }
    return v
}

// ParsePositiveInt returns (v, true) only for integers > 0.
func ParsePositiveInt(s string) (int, bool) {
    v := ParseIntDefault(s, 0)
    return v, v > 0
}

// ParseBoolFlag accepts true/1/yes/on and false/0/no/off, case-insensitive.
// Anything else reports ok=false.
func ParseBoolFlag(s string) (value bool, ok bool) {
    switch strings.ToLower(strings.TrimSpace(s)) {
    case "true", "1", "yes", "on":
        return true, true
    case "false", "0", "no", "off":
        return false, true
    default:
        return false, false
    }
}

// SplitCSV splits on commas and drops empty items.
func SplitCSV(s string) []string {
    var out []string
    for _, part := range strings.Split(s, ",") {
        if p := strings.TrimSpace(part); p != "" {
            out = append(out, p)
        }
    }
    return out
}
