package answer

import (
	"strings"
	"unicode"
)

// Truncate keeps the first max characters (runes) of s.
func Truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}

// StripMarkers removes trailing end-of-turn markers, repeatedly, and surrounding whitespace.
func StripMarkers(s string, markers []string) string {
	s = strings.TrimSpace(s)
	for {
		changed := false
		for _, m := range markers {
			if m != "" && strings.HasSuffix(s, m) {
				s = strings.TrimRightFunc(strings.TrimSuffix(s, m), unicode.IsSpace)
				changed = true
			}
		}
		if !changed {
			return s
		}
	}
}
