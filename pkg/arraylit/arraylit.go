// Package arraylit renders the backend's array literal syntax: a
// brace-delimited, comma-separated list where numeric elements are
// unquoted and everything else is single-quoted.
package arraylit

import "strings"

// Render returns the array literal for values: "{v1,v2,...}" with each
// element unquoted when it parses as numeric, single-quoted otherwise.
// Single quotes and backslashes inside a quoted element are escaped by
// doubling, the backend's own quoting convention.
func Render(values []string) string {
	var b strings.Builder
	b.WriteByte('{')
	for i, v := range values {
		if i > 0 {
			b.WriteByte(',')
		}
		if isNumeric(v) {
			b.WriteString(v)
		} else {
			b.WriteByte('\'')
			b.WriteString(escape(v))
			b.WriteByte('\'')
		}
	}
	b.WriteByte('}')
	return b.String()
}

// isNumeric reports whether v is a bare integer or decimal literal: an
// optional leading sign, digits, and at most one decimal point. Empty
// strings and anything with an exponent, whitespace, or other character is
// quoted instead.
func isNumeric(v string) bool {
	if v == "" {
		return false
	}
	i := 0
	if v[i] == '+' || v[i] == '-' {
		i++
	}
	if i == len(v) {
		return false
	}
	sawDigit := false
	sawDot := false
	for ; i < len(v); i++ {
		switch {
		case v[i] >= '0' && v[i] <= '9':
			sawDigit = true
		case v[i] == '.' && !sawDot:
			sawDot = true
		default:
			return false
		}
	}
	return sawDigit
}

func escape(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `''`)
	return v
}
