// Package media retrieves a remote video's audio track with an external downloader.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// DefaultDownloader is the command used when no downloader path is configured.
const DefaultDownloader = "yt-dlp"

// Fetch stages reported through Request.OnStage.
const (
	StageInstalling  = "installing"
	StageResolving   = "resolving"
	StageDownloading = "downloading"
	StageRetrying    = "retrying"
)

// AudioExtensions are accepted when scanning a download directory for output.
var AudioExtensions = []string{".mp3", ".mp4"}

var (
	// ErrEmptyURL is returned when no source URL was supplied.
	ErrEmptyURL = errors.New("source URL is required")
	// ErrDownloaderUnavailable is returned when the downloader is missing and could not be installed.
	ErrDownloaderUnavailable = errors.New("downloader is not available")
	// ErrAudioNotFound is returned when neither extraction strategy left an audio file behind.
	ErrAudioNotFound = errors.New("could not find downloaded audio file")
)

// Installer installs the downloader when it is not available.
type Installer interface {
	Install(ctx context.Context) error
}

// Request contains the source URL and execution callbacks for one fetch.
type Request struct {
	URL     string
	OnStage func(stage string)
	OnLog   func(log CommandLog)
}

// Result contains the extracted audio file, its title and the command logs.
type Result struct {
	AudioPath string
	Title     string
	Logs      []CommandLog
	tempDir   string
	removeAll func(string) error
}

// Dir returns the per-run directory holding the audio file.
func (r *Result) Dir() string {
	if r == nil {
		return ""
	}
	return r.tempDir
}

// Cleanup removes the per-run directory created by Fetch.
func (r *Result) Cleanup() error {
	if r == nil || r.tempDir == "" {
		return nil
	}

	remove := r.removeAll
	if remove == nil {
		remove = os.RemoveAll
	}
	if err := remove(r.tempDir); err != nil {
		return err
	}
	r.tempDir = ""
	return nil
}

// Options configures a production Fetcher.
type Options struct {
	DownloaderPath string
	WorkDir        string
	Installer      Installer
	Logger         *slog.Logger
}

// Fetcher drives the downloader: availability check, title lookup and extraction.
type Fetcher struct {
	downloaderPath string
	workDir        string
	installer      Installer
	logger         *slog.Logger
	runner         commandRunner
	mkdirTemp      func(dir, pattern string) (string, error)
	removeAll      func(path string) error
	stat           func(name string) (os.FileInfo, error)
	readDir        func(name string) ([]os.DirEntry, error)
}

// NewFetcher constructs the production fetcher with OS dependencies.
func NewFetcher(opts Options) *Fetcher {
	downloader := strings.TrimSpace(opts.DownloaderPath)
	if downloader == "" {
		downloader = DefaultDownloader
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Fetcher{
		downloaderPath: downloader,
		workDir:        opts.WorkDir,
		installer:      opts.Installer,
		logger:         logger,
		runner:         &execRunner{},
		mkdirTemp:      os.MkdirTemp,
		removeAll:      os.RemoveAll,
		stat:           os.Stat,
		readDir:        os.ReadDir,
	}
}

// Fetch resolves the title and extracts the audio track of url into a fresh directory.
func (f *Fetcher) Fetch(ctx context.Context, req Request) (Result, error) {
	url := strings.TrimSpace(req.URL)
	if url == "" {
		return Result{}, ErrEmptyURL
	}

	var logs []CommandLog
	record := func(log CommandLog) {
		logs = append(logs, log)
		emitLog(req.OnLog, log)
	}

	if err := f.ensureDownloader(ctx, req.OnStage, record); err != nil {
		return Result{}, err
	}

	emitStage(req.OnStage, StageResolving)
	titleLog, err := f.invoke(ctx, record, "--get-title", url)
	if err != nil {
		return Result{}, fmt.Errorf("resolve title: %w", err)
	}
	title := firstLine(titleLog.Stdout)

	tempDir, err := f.mkdirTemp(f.workDir, "video2article-*")
	if err != nil {
		return Result{}, fmt.Errorf("create download directory: %w", err)
	}

	audioPath, err := f.extract(ctx, req.OnStage, record, url, tempDir, fileStem(title))
	if err != nil {
		_ = f.removeAll(tempDir)
		return Result{}, err
	}

	f.logger.Info("audio extracted",
		slog.String("title", title),
		slog.String("path", audioPath),
	)
	return Result{
		AudioPath: audioPath,
		Title:     title,
		Logs:      logs,
		tempDir:   tempDir,
		removeAll: f.removeAll,
	}, nil
}

// EnsureDownloader checks the downloader and installs it when missing.
func (f *Fetcher) EnsureDownloader(ctx context.Context) error {
	return f.ensureDownloader(ctx, nil, func(CommandLog) {})
}

func (f *Fetcher) ensureDownloader(ctx context.Context, onStage func(string), record func(CommandLog)) error {
	if _, err := f.invoke(ctx, record, "--version"); err == nil {
		return nil
	} else if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	if f.installer == nil {
		return fmt.Errorf("%w: %s", ErrDownloaderUnavailable, f.downloaderPath)
	}

	emitStage(onStage, StageInstalling)
	f.logger.Info("downloader not found, installing", slog.String("downloader", f.downloaderPath))
	if err := f.installer.Install(ctx); err != nil {
		return fmt.Errorf("%w: install %s: %v", ErrDownloaderUnavailable, f.downloaderPath, err)
	}

	if _, err := f.invoke(ctx, record, "--version"); err != nil {
		return fmt.Errorf("%w: %s still unavailable after install: %v", ErrDownloaderUnavailable, f.downloaderPath, err)
	}
	return nil
}

// extract runs the primary strategy, then the fallback, then scans the directory.
func (f *Fetcher) extract(ctx context.Context, onStage func(string), record func(CommandLog), url, dir, stem string) (string, error) {
	emitStage(onStage, StageDownloading)
	template := filepath.Join(dir, stem+".%(ext)s")
	if _, err := f.invoke(ctx, record, buildPrimaryArgs(template, url)...); err != nil {
		return "", fmt.Errorf("download audio: %w", err)
	}
	if path, ok := f.findAudio(dir, ".mp3"); ok {
		return path, nil
	}

	emitStage(onStage, StageRetrying)
	f.logger.Warn("no mp3 after primary download, trying alternative configuration", slog.String("dir", dir))
	fallbackPath := filepath.Join(dir, "audio.mp3")
	if _, err := f.invoke(ctx, record, buildFallbackArgs(fallbackPath, url)...); err != nil {
		return "", fmt.Errorf("download audio with alternative configuration: %w", err)
	}
	if _, err := f.stat(fallbackPath); err == nil {
		return fallbackPath, nil
	}
	if path, ok := f.findAudio(dir, AudioExtensions...); ok {
		return path, nil
	}

	return "", ErrAudioNotFound
}

// invoke runs the downloader once and records its log.
func (f *Fetcher) invoke(ctx context.Context, record func(CommandLog), args ...string) (CommandLog, error) {
	result, err := f.runner.Run(ctx, f.downloaderPath, args...)
	log := CommandLog{
		Command:  f.downloaderPath,
		Args:     args,
		ExitCode: result.ExitCode,
		Stdout:   result.Stdout,
		Stderr:   result.Stderr,
	}
	record(log)
	f.logger.Debug("downloader finished",
		slog.String("command", log.CommandLine()),
		slog.Int("exit_code", log.ExitCode),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return log, ctxErr
		}
		return log, &CommandError{Log: log, Err: err}
	}
	return log, nil
}

// findAudio returns the first regular file in dir with one of the extensions.
func (f *Fetcher) findAudio(dir string, exts ...string) (string, bool) {
	entries, err := f.readDir(dir)
	if err != nil {
		return "", false
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		for _, want := range exts {
			if ext == want {
				return filepath.Join(dir, entry.Name()), true
			}
		}
	}
	return "", false
}

// buildPrimaryArgs extracts audio and converts it to mp3 at the output template.
func buildPrimaryArgs(outputTemplate, url string) []string {
	return []string{
		"-x",
		"--audio-format", "mp3",
		"-o", outputTemplate,
		url,
	}
}

// buildFallbackArgs selects the best audio-only format at the highest quality.
func buildFallbackArgs(outputPath, url string) []string {
	return []string{
		"-f", "bestaudio",
		"--extract-audio",
		"--audio-format", "mp3",
		"--audio-quality", "0",
		"-o", outputPath,
		url,
	}
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// NewFetcherForTests constructs a fetcher with injectable dependencies.
func NewFetcherForTests(
	downloaderPath string,
	runner commandRunner,
	installer Installer,
	mkdirTemp func(dir, pattern string) (string, error),
	removeAll func(path string) error,
) *Fetcher {
	return &Fetcher{
		downloaderPath: downloaderPath,
		installer:      installer,
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		runner:         runner,
		mkdirTemp:      mkdirTemp,
		removeAll:      removeAll,
		stat:           os.Stat,
		readDir:        os.ReadDir,
	}
}

// NewResultForTests builds a Result owning dir, as Fetch would return it.
func NewResultForTests(audioPath, title, dir string, logs []CommandLog) Result {
	return Result{
		AudioPath: audioPath,
		Title:     title,
		Logs:      logs,
		tempDir:   dir,
		removeAll: os.RemoveAll,
	}
}
