// Package code formats and normalizes canonical business codes.
//
// A canonical code is a kind prefix followed by a sequence value, for
// example CON-007 or CON-1042. Values below 1000 are padded to three
// digits, larger values are rendered as-is:
//
//	code.Format("CON", 7)    // "CON-007"
//	code.Format("CON", 1042) // "CON-1042"
//
// Lookups are case-insensitive, so every code arriving from a caller goes
// through Normalize before it reaches a query.
package code

import (
	"fmt"
	"strconv"
	"strings"
)

// Format renders prefix and value as a canonical code.
// Negative values are clamped to zero.
func Format(prefix string, value int64) string {
	if value < 0 {
		value = 0
	}
	if value < 1000 {
		return fmt.Sprintf("%s-%03d", prefix, value)
	}
	return prefix + "-" + strconv.FormatInt(value, 10)
}

// Normalize trims and uppercases raw. The second result is false when
// nothing is left, which callers treat as "no code".
func Normalize(raw string) (string, bool) {
	c := strings.ToUpper(strings.TrimSpace(raw))
	if c == "" {
		return "", false
	}
	return c, true
}

// Prefix returns the part of a normalized code before the first dash, or
// the empty string if the code has no dash.
func Prefix(c string) string {
	i := strings.IndexByte(c, '-')
	if i <= 0 {
		return ""
	}
	return c[:i]
}
