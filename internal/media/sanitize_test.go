package media

import (
	"regexp"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

var safeStem = regexp.MustCompile(`^[A-Za-z0-9_\-. ]*$`)

// TestSanitizeTitle checks replacement of unsafe characters.
func TestSanitizeTitle(t *testing.T) {
	cases := map[string]string{
		"Hello World":           "Hello World",
		"a/b\\c:d":              "a_b_c_d",
		"Rock & Roll (Live!)":   "Rock _ Roll _Live__",
		"v1.2-final_cut":        "v1.2-final_cut",
		"Café ☕ talk":            "Caf_ _ talk",
		"":                      "",
		"tab\there\nnewline":    "tab_here_newline",
		"日本語":                   "___",
		"emoji 🎉 party":          "emoji _ party",
		"quote \"x\" 'y' <z> |": "quote _x_ _y_ _z_ _",
	}
	for in, want := range cases {
		assert.Equal(t, want, SanitizeTitle(in), "input %q", in)
	}
}

// TestSanitizeTitleProperties checks the allowed alphabet and one-rune mapping.
func TestSanitizeTitleProperties(t *testing.T) {
	inputs := []string{
		"plain",
		"Ünïcödé – dash — em",
		"../../etc/passwd",
		"mixed 123 !@#$%^&*()",
		"\x00\x01control",
		"   ",
		"🎵🎶",
	}
	for _, in := range inputs {
		out := SanitizeTitle(in)
		assert.Regexp(t, safeStem, out, "input %q", in)
		assert.Equal(t, utf8.RuneCountInString(in), utf8.RuneCountInString(out), "input %q", in)
	}
}

// TestFileStemFallback checks empty and dot-only stems get a usable name.
func TestFileStemFallback(t *testing.T) {
	assert.Equal(t, "audio", fileStem(""))
	assert.Equal(t, "audio", fileStem("   "))
	assert.Equal(t, "audio", fileStem(".."))
	assert.Equal(t, "audio", fileStem(". ."))
	assert.Equal(t, "My_Talk", fileStem("My/Talk"))
}

// TestFileStemKeepsSurroundingSpaces checks the stem keeps the sanitized title length.
func TestFileStemKeepsSurroundingSpaces(t *testing.T) {
	title := "  Demo Talk: part 1 "
	stem := fileStem(title)
	assert.Equal(t, "  Demo Talk_ part 1 ", stem)
	assert.Len(t, []rune(stem), len([]rune(title)))
}
