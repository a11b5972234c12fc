package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video2article/internal/domain"
)

// TestParseColorMode checks the accepted values and the error for anything else.
func TestParseColorMode(t *testing.T) {
	for input, want := range map[string]ColorMode{"": ColorAuto, "auto": ColorAuto, "always": ColorAlways, "never": ColorNever} {
		got, err := ParseColorMode(input)
		require.NoError(t, err)
		assert.Equal(t, want, got, input)
	}
	_, err := ParseColorMode("sometimes")
	assert.Error(t, err)
}

// TestResolveColors checks explicit modes win and auto honours NO_COLOR.
func TestResolveColors(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	assert.True(t, ResolveColors(ColorAlways, false))
	assert.False(t, ResolveColors(ColorNever, true))
	assert.False(t, ResolveColors(ColorAuto, true))
}

// TestPrinterPlain checks uncolored prefixes and stream routing.
func TestPrinterPlain(t *testing.T) {
	var out, errOut bytes.Buffer
	p := NewPrinter(&out, &errOut, false, false)

	p.Info("fetching %s", "audio")
	p.Success("done")
	p.Warning("slow")
	p.Error("broken")

	assert.Equal(t, "fetching audio\n[OK] done\n", out.String())
	assert.Equal(t, "[WARN] slow\n[ERROR] broken\n", errOut.String())
}

// TestPrinterQuiet checks only errors survive quiet mode.
func TestPrinterQuiet(t *testing.T) {
	var out, errOut bytes.Buffer
	p := NewPrinter(&out, &errOut, false, true)

	p.Info("hidden")
	p.Warning("hidden")
	p.Error("shown")

	assert.Empty(t, out.String())
	assert.Equal(t, "[ERROR] shown\n", errOut.String())
}

// TestDiagnosticsTable checks every item is listed with a fix hint for fixable failures.
func TestDiagnosticsTable(t *testing.T) {
	var out bytes.Buffer
	p := NewPrinter(&out, &out, false, false)

	err := p.Diagnostics(domain.DiagnosticReport{Items: []domain.DiagnosticItem{
		{ID: "tool_downloader", Name: "yt-dlp", Status: domain.DiagnosticStatusPass, Message: "found"},
		{ID: "tool_ffmpeg", Name: "ffmpeg", Status: domain.DiagnosticStatusFail, Message: "missing", Fixable: true},
	}})
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "[pass]")
	assert.Contains(t, text, "[fail]")
	assert.Contains(t, text, "tool_downloader")
	assert.Contains(t, text, "video2article fix tool_ffmpeg")
}
