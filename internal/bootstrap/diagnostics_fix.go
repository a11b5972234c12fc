package bootstrap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"video2article/internal/config"
	"video2article/internal/diagnostics"
	"video2article/internal/domain"
	"video2article/internal/media"
)

const fixTimeout = 30 * time.Minute

// InstallOrFixDiagnostic applies an OS-specific remediation for one failed diagnostic item.
func (a *App) InstallOrFixDiagnostic(itemID string) (domain.DiagnosticReport, error) {
	ctx, cancel := context.WithTimeout(context.Background(), fixTimeout)
	defer cancel()
	return a.FixDiagnostic(ctx, itemID)
}

// FixDiagnostic is InstallOrFixDiagnostic with a caller-controlled context.
func (a *App) FixDiagnostic(ctx context.Context, itemID string) (domain.DiagnosticReport, error) {
	id := strings.TrimSpace(itemID)
	if id == "" {
		return domain.DiagnosticReport{}, fmt.Errorf("diagnostic item id is required")
	}

	settings := a.GetSettings()
	settingsChanged := false
	var fixErr error

	switch id {
	case diagnostics.IDDownloader:
		installer, ok := a.installers[id]
		if !ok {
			return domain.DiagnosticReport{}, fmt.Errorf("no installer configured for %s", id)
		}
		fetcher := media.NewFetcher(media.Options{
			DownloaderPath: settings.DownloaderPath,
			WorkDir:        settings.WorkDir,
			Installer:      installer,
			Logger:         a.logger.With("component", "media"),
		})
		a.logger.Info("checking downloader", "item", id, "path", settings.DownloaderPath)
		if err := fetcher.EnsureDownloader(ctx); err != nil {
			fixErr = fmt.Errorf("install for %s: %w", id, err)
		}
	case diagnostics.IDFFmpeg:
		installer, ok := a.installers[id]
		if !ok {
			return domain.DiagnosticReport{}, fmt.Errorf("no installer configured for %s", id)
		}
		a.logger.Info("installing tool", "item", id)
		if err := installer.Install(ctx); err != nil {
			fixErr = fmt.Errorf("install for %s: %w", id, err)
		}
	case diagnostics.IDWorkDir:
		settings, settingsChanged, fixErr = installOrFixWorkDir(settings)
	case diagnostics.IDAPIKey:
		fixErr = fmt.Errorf("set %s or enter the key in the app; it cannot be installed", config.APIKeyEnv)
	default:
		return domain.DiagnosticReport{}, fmt.Errorf("unsupported diagnostic item id: %s", id)
	}

	if settingsChanged {
		if _, saveErr := a.SaveSettings(settings); saveErr != nil {
			return a.RefreshDiagnostics(), fmt.Errorf("save settings after fix: %w", saveErr)
		}
	}

	report := a.RefreshDiagnostics()
	if fixErr != nil {
		return report, fixErr
	}
	return report, nil
}

// ensureLocalBinOnPATH prepends the app's bin directory so released tool binaries are found.
func ensureLocalBinOnPATH(binDir string) error {
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return err
	}

	current := os.Getenv("PATH")
	entries := filepath.SplitList(current)
	for _, entry := range entries {
		if filepath.Clean(entry) == filepath.Clean(binDir) {
			return nil
		}
	}

	if current == "" {
		return os.Setenv("PATH", binDir)
	}
	return os.Setenv("PATH", binDir+string(os.PathListSeparator)+current)
}

// installOrFixWorkDir creates the configured work directory, falling back to the default one.
func installOrFixWorkDir(settings domain.Settings) (domain.Settings, bool, error) {
	workDir := strings.TrimSpace(settings.WorkDir)
	if workDir != "" {
		if err := os.MkdirAll(workDir, 0o755); err == nil {
			return settings, false, nil
		}
	}

	fallback := config.DefaultSettings().WorkDir
	if err := os.MkdirAll(fallback, 0o755); err != nil {
		return settings, false, fmt.Errorf("create work directory %s: %w", fallback, err)
	}
	settings.WorkDir = fallback
	return settings, workDir != fallback, nil
}
