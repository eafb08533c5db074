// Package stringutil provides common string manipulation utilities.
package stringutil

import (
	"strconv"
	"strings"
	"unicode"
)

// LeadingInt parses the run of ASCII digits at the start of the first
// whitespace-separated token of s. "1 пара" yields 1; "пара 1" and "" fail.
func LeadingInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}

// CollapseSpace trims s and replaces each run of whitespace with one space.
func CollapseSpace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range strings.TrimSpace(s) {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space {
			b.WriteByte(' ')
			space = false
		}
		b.WriteRune(r)
	}
	return b.String()
}
