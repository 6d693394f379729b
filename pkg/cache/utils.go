package cache

import (
	"fmt"
	"strings"
)

// GenerateKeyWithParams creates a cache key with multiple parameters.
// Empty string parameters are skipped.
func GenerateKeyWithParams(prefix string, params ...interface{}) string {
	var b strings.Builder
	b.WriteString(prefix)
	for _, param := range params {
		if s, ok := param.(string); ok && s == "" {
			continue
		}
		fmt.Fprintf(&b, ":%v", param)
	}
	return b.String()
}
