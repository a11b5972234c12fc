package media

import (
	"regexp"
	"strings"
)

var unsafeTitleChars = regexp.MustCompile(`[^A-Za-z0-9_\-. ]`)

// SanitizeTitle replaces every rune outside [A-Za-z0-9_-. ] with '_'.
// The result has exactly one rune per input rune.
func SanitizeTitle(title string) string {
	return unsafeTitleChars.ReplaceAllString(title, "_")
}

// fileStem returns the sanitized title unchanged, or "audio" when it is
// made only of spaces and dots.
func fileStem(title string) string {
	stem := SanitizeTitle(title)
	if strings.Trim(stem, ". ") == "" {
		return "audio"
	}
	return stem
}
