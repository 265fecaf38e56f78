package validators

import (
	"strings"
	"unicode/utf8"
)

// SanitizeString trims surrounding space and caps the result at maxLen
// characters, never splitting a multi-byte rune.
func SanitizeString(input string, maxLen int) string {
	trimmed := strings.TrimSpace(input)
	if maxLen <= 0 || utf8.RuneCountInString(trimmed) <= maxLen {
		return trimmed
	}
	count := 0
	for i := range trimmed {
		if count == maxLen {
			return trimmed[:i]
		}
		count++
	}
	return trimmed
}
