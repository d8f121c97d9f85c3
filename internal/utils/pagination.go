// Package utils provides small helpers shared by the transport and service
// layers. Nothing here knows about posts.
package utils

import "strconv"

// AtoiDefault parses s as an int, returning def when s is empty or invalid.
// No trimming is applied.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// ClampLimit resolves a requested page size: non-positive means def, and
// anything above max (when max > 0) is lowered to max.
func ClampLimit(limit, def, max int) int {
	if limit <= 0 {
		limit = def
	}
	if max > 0 && limit > max {
		limit = max
	}
	return limit
}
