package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"time"
)

const (
	installCommandTimeout = 20 * time.Minute
	downloadToolTimeout   = 10 * time.Minute

	ytDLPReleaseURL        = "https://github.com/yt-dlp/yt-dlp/releases/latest/download/yt-dlp"
	ytDLPWindowsReleaseURL = "https://github.com/yt-dlp/yt-dlp/releases/latest/download/yt-dlp.exe"
)

// InstallOption is one package manager and the commands it runs.
type InstallOption struct {
	Manager  string
	Commands [][]string
}

// ToolInstaller tries package managers in order, then an optional release download.
type ToolInstaller struct {
	Tool       string
	Options    []InstallOption
	ReleaseURL string
	BinDir     string

	runner   commandRunner
	lookPath func(string) (string, error)
	client   *http.Client
}

// NewDownloaderInstaller returns the installer used for yt-dlp on the current OS.
// The release binary lands in binDir, which the caller keeps on PATH.
func NewDownloaderInstaller(binDir string) *ToolInstaller {
	releaseURL := ytDLPReleaseURL
	if goruntime.GOOS == "windows" {
		releaseURL = ytDLPWindowsReleaseURL
	}
	return &ToolInstaller{
		Tool:       DefaultDownloader,
		Options:    downloaderInstallOptions(goruntime.GOOS),
		ReleaseURL: releaseURL,
		BinDir:     binDir,
		runner:     &execRunner{},
		lookPath:   exec.LookPath,
		client:     &http.Client{Timeout: downloadToolTimeout},
	}
}

// NewFFmpegInstaller returns the installer for ffmpeg, which the downloader needs for mp3 conversion.
func NewFFmpegInstaller() *ToolInstaller {
	return &ToolInstaller{
		Tool:     "ffmpeg",
		Options:  ffmpegInstallOptions(goruntime.GOOS),
		runner:   &execRunner{},
		lookPath: exec.LookPath,
		client:   http.DefaultClient,
	}
}

// Install runs the first install option whose manager is available.
func (i *ToolInstaller) Install(ctx context.Context) error {
	installErr := i.runFirstSuccessfulInstall(ctx)
	if installErr == nil {
		if _, err := i.lookPath(i.Tool); err == nil {
			return nil
		}
		installErr = fmt.Errorf("%s installed but not found on PATH", i.Tool)
	}

	if i.ReleaseURL == "" || i.BinDir == "" {
		return installErr
	}

	if err := i.installFromRelease(ctx); err != nil {
		return fmt.Errorf("%v | release fallback: %w", installErr, err)
	}
	return nil
}

func (i *ToolInstaller) runFirstSuccessfulInstall(ctx context.Context) error {
	if len(i.Options) == 0 {
		return fmt.Errorf("no install commands configured for OS %s", goruntime.GOOS)
	}

	errorsByManager := make([]string, 0, len(i.Options))
	atLeastOneManager := false

	for _, option := range i.Options {
		if _, err := i.lookPath(option.Manager); err != nil {
			continue
		}
		atLeastOneManager = true
		err := i.runInstallCommands(ctx, option.Commands)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		errorsByManager = append(errorsByManager, fmt.Sprintf("%s: %v", option.Manager, err))
	}

	if !atLeastOneManager {
		return fmt.Errorf("no supported package manager found for %s", goruntime.GOOS)
	}
	return errors.New(strings.Join(errorsByManager, " | "))
}

func (i *ToolInstaller) runInstallCommands(ctx context.Context, commands [][]string) error {
	for _, command := range commands {
		if err := i.runWithPossibleElevation(ctx, command); err != nil {
			return err
		}
	}
	return nil
}

func (i *ToolInstaller) runWithPossibleElevation(ctx context.Context, command []string) error {
	if len(command) == 0 {
		return fmt.Errorf("empty command")
	}

	candidates := [][]string{command}
	if goruntime.GOOS == "linux" && requiresElevation(command[0]) {
		if _, err := i.lookPath("sudo"); err == nil {
			candidates = append(candidates, append([]string{"sudo", "-n"}, command...))
		}
	}

	attemptErrors := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		err := i.runCommand(ctx, candidate[0], candidate[1:]...)
		if err == nil {
			return nil
		}
		attemptErrors = append(attemptErrors, err.Error())
	}
	return errors.New(strings.Join(attemptErrors, " | "))
}

func (i *ToolInstaller) runCommand(ctx context.Context, name string, args ...string) error {
	ctx, cancel := context.WithTimeout(ctx, installCommandTimeout)
	defer cancel()

	result, err := i.runner.Run(ctx, name, args...)
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s timed out after %s", formatCommand(name, args), installCommandTimeout)
	}

	output := strings.TrimSpace(result.Stderr)
	if output == "" {
		output = strings.TrimSpace(result.Stdout)
	}
	if len(output) > 500 {
		output = output[:500] + "..."
	}
	if output == "" {
		return fmt.Errorf("%s failed: %w", formatCommand(name, args), err)
	}
	return fmt.Errorf("%s failed: %w (%s)", formatCommand(name, args), err, output)
}

// installFromRelease downloads the standalone binary into BinDir.
func (i *ToolInstaller) installFromRelease(ctx context.Context) error {
	if err := os.MkdirAll(i.BinDir, 0o755); err != nil {
		return fmt.Errorf("create local bin directory: %w", err)
	}

	name := i.Tool
	if goruntime.GOOS == "windows" {
		name += ".exe"
	}
	destination := filepath.Join(i.BinDir, name)
	tmpPath := destination + ".download"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, i.ReleaseURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "video2article")

	resp, err := i.client.Do(req)
	if err != nil {
		return fmt.Errorf("request download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected HTTP status: %s", resp.Status)
	}

	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o755)
	if err != nil {
		return fmt.Errorf("create temporary file: %w", err)
	}

	_, copyErr := io.Copy(file, resp.Body)
	closeErr := file.Close()
	if copyErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write binary: %w", copyErr)
	}
	if closeErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close binary: %w", closeErr)
	}

	if err := os.Rename(tmpPath, destination); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("move binary into place: %w", err)
	}
	return nil
}

func downloaderInstallOptions(goos string) []InstallOption {
	// user-level pip installs come first; they need no elevated rights
	pip := []InstallOption{
		{Manager: "python3", Commands: [][]string{{"python3", "-m", "pip", "install", "--user", "--upgrade", "yt-dlp"}}},
		{Manager: "pipx", Commands: [][]string{{"pipx", "install", "yt-dlp"}}},
	}

	switch goos {
	case "windows":
		return append([]InstallOption{
			{Manager: "python", Commands: [][]string{{"python", "-m", "pip", "install", "--user", "--upgrade", "yt-dlp"}}},
		}, append(pip,
			InstallOption{Manager: "winget", Commands: [][]string{{"winget", "install", "--id", "yt-dlp.yt-dlp", "--exact", "--accept-source-agreements", "--accept-package-agreements"}}},
			InstallOption{Manager: "scoop", Commands: [][]string{{"scoop", "install", "yt-dlp"}}},
		)...)
	case "darwin":
		return append(pip,
			InstallOption{Manager: "brew", Commands: [][]string{{"brew", "install", "yt-dlp"}}},
		)
	default:
		return append(pip,
			InstallOption{Manager: "brew", Commands: [][]string{{"brew", "install", "yt-dlp"}}},
			InstallOption{Manager: "apt-get", Commands: [][]string{{"apt-get", "update"}, {"apt-get", "install", "-y", "yt-dlp"}}},
			InstallOption{Manager: "dnf", Commands: [][]string{{"dnf", "install", "-y", "yt-dlp"}}},
			InstallOption{Manager: "pacman", Commands: [][]string{{"pacman", "-Sy", "--noconfirm", "yt-dlp"}}},
		)
	}
}

func ffmpegInstallOptions(goos string) []InstallOption {
	switch goos {
	case "windows":
		return []InstallOption{
			{Manager: "winget", Commands: [][]string{{"winget", "install", "--id", "Gyan.FFmpeg", "--exact", "--accept-source-agreements", "--accept-package-agreements"}}},
			{Manager: "choco", Commands: [][]string{{"choco", "install", "ffmpeg", "-y"}}},
			{Manager: "scoop", Commands: [][]string{{"scoop", "install", "ffmpeg"}}},
		}
	case "darwin":
		return []InstallOption{
			{Manager: "brew", Commands: [][]string{{"brew", "install", "ffmpeg"}}},
		}
	default:
		return []InstallOption{
			{Manager: "apt-get", Commands: [][]string{{"apt-get", "update"}, {"apt-get", "install", "-y", "ffmpeg"}}},
			{Manager: "dnf", Commands: [][]string{{"dnf", "install", "-y", "ffmpeg"}}},
			{Manager: "pacman", Commands: [][]string{{"pacman", "-Sy", "--noconfirm", "ffmpeg"}}},
			{Manager: "zypper", Commands: [][]string{{"zypper", "install", "-y", "ffmpeg"}}},
			{Manager: "brew", Commands: [][]string{{"brew", "install", "ffmpeg"}}},
		}
	}
}

func requiresElevation(manager string) bool {
	switch manager {
	case "apt-get", "dnf", "pacman", "zypper":
		return true
	default:
		return false
	}
}

// NewToolInstallerForTests creates an installer with injectable dependencies.
func NewToolInstallerForTests(
	tool string,
	options []InstallOption,
	runner commandRunner,
	lookPath func(string) (string, error),
	releaseURL string,
	binDir string,
	client *http.Client,
) *ToolInstaller {
	return &ToolInstaller{
		Tool:       tool,
		Options:    options,
		ReleaseURL: releaseURL,
		BinDir:     binDir,
		runner:     runner,
		lookPath:   lookPath,
		client:     client,
	}
}
