package diagnostics

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/samber/lo"

	"video2article/internal/domain"
)

// Diagnostic item IDs, also accepted by the fix action.
const (
	IDDownloader = "tool_downloader"
	IDFFmpeg     = "tool_ffmpeg"
	IDWorkDir    = "work_dir"
	IDAPIKey     = "api_key"
)

// CredentialState reports whether a speech-to-text key is available for this session.
type CredentialState interface {
	Configured() bool
}

// Checker validates external tools, the work directory and the credential.
type Checker struct {
	lookPath   func(string) (string, error)
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
	now        func() time.Time
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker() *Checker {
	return &Checker{
		lookPath:   exec.LookPath,
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
		now:        time.Now,
	}
}

// Run executes all checks and returns a combined report.
func (c *Checker) Run(settings domain.Settings, credentials CredentialState) domain.DiagnosticReport {
	items := []domain.DiagnosticItem{
		c.checkDownloader(settings.DownloaderPath),
		c.checkFFmpeg(),
		c.checkWorkDir(settings.WorkDir),
		checkAPIKey(credentials),
	}

	return domain.DiagnosticReport{
		GeneratedAt: c.now().UTC(),
		HasFailures: lo.SomeBy(items, func(item domain.DiagnosticItem) bool {
			return item.Status == domain.DiagnosticStatusFail
		}),
		Items: items,
	}
}

func (c *Checker) checkDownloader(downloader string) domain.DiagnosticItem {
	name := strings.TrimSpace(downloader)
	if name == "" {
		name = "yt-dlp"
	}
	item := c.checkTool(IDDownloader, name)
	if item.Status == domain.DiagnosticStatusFail {
		item.Hint = "Use the install action, or install yt-dlp with pipx, pip or your package manager."
	}
	return item
}

func (c *Checker) checkFFmpeg() domain.DiagnosticItem {
	item := c.checkTool(IDFFmpeg, "ffmpeg")
	if item.Status == domain.DiagnosticStatusFail {
		item.Hint = "yt-dlp needs ffmpeg to convert audio to mp3. Use the install action or your package manager."
	}
	return item
}

// checkTool verifies a required CLI executable is on PATH.
func (c *Checker) checkTool(id, name string) domain.DiagnosticItem {
	path, err := c.lookPath(name)
	if err != nil {
		return domain.DiagnosticItem{
			ID:      id,
			Name:    name,
			Status:  domain.DiagnosticStatusFail,
			Message: fmt.Sprintf("Tool not found in PATH: %s", name),
			Fixable: true,
		}
	}

	return domain.DiagnosticItem{
		ID:      id,
		Name:    name,
		Status:  domain.DiagnosticStatusPass,
		Message: fmt.Sprintf("Found at %s", path),
	}
}

// checkWorkDir validates work directory existence and write access.
func (c *Checker) checkWorkDir(workDir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   IDWorkDir,
		Name: "Work directory",
	}

	if strings.TrimSpace(workDir) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Work directory is empty."
		item.Hint = "Set work_dir to a location where downloads can be written."
		return item
	}

	if err := c.mkdirAll(workDir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create work directory: %s", workDir)
		item.Hint = "Choose a writable location or adjust filesystem permissions."
		item.Fixable = true
		return item
	}

	tmpFile, err := c.createTemp(workDir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Work directory is not writable: %s", workDir)
		item.Hint = "Choose a writable directory for downloaded audio."
		item.Fixable = true
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", workDir)
	return item
}

func checkAPIKey(credentials CredentialState) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   IDAPIKey,
		Name: "Speech-to-text API key",
	}
	if credentials != nil && credentials.Configured() {
		item.Status = domain.DiagnosticStatusPass
		item.Message = "API key is set for this session."
		return item
	}

	item.Status = domain.DiagnosticStatusFail
	item.Message = "No API key configured."
	item.Hint = "Set ASSEMBLYAI_API_KEY (or add it to .env), or enter the key when prompted. It is never saved to disk."
	return item
}

// NewCheckerForTests creates checker with injectable dependencies.
func NewCheckerForTests(
	lookPath func(string) (string, error),
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
) *Checker {
	return &Checker{
		lookPath:   lookPath,
		mkdirAll:   mkdirAll,
		createTemp: createTemp,
		remove:     remove,
		now:        time.Now,
	}
}

