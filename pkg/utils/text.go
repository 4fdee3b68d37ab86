// Package utils provides shared helpers for logging, vector math and text output.
package utils

import (
	"strconv"
	"strings"
)

// Truncate returns s truncated to maxLen bytes, with "..." appended if truncated.
// If maxLen is 0 or negative, returns s unchanged.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// PreviewFloats renders the first n components of v, e.g. "[0.1250, -0.0330, ...] (512 dims)".
func PreviewFloats(v []float32, n int) string {
	if n <= 0 || n > len(v) {
		n = len(v)
	}
	var b strings.Builder
	b.WriteByte('[')
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(strconv.FormatFloat(float64(v[i]), 'f', 4, 32))
	}
	if n < len(v) {
		b.WriteString(", ...")
	}
	b.WriteString("] (")
	b.WriteString(strconv.Itoa(len(v)))
	b.WriteString(" dims)")
	return b.String()
}
