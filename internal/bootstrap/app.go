package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"video2article/internal/article"
	"video2article/internal/config"
	"video2article/internal/diagnostics"
	"video2article/internal/domain"
	"video2article/internal/jobs"
	"video2article/internal/media"
	"video2article/internal/metrics"
	"video2article/internal/pipeline"
	"video2article/internal/transcription"
)

var (
	// ErrInvalidURL is returned when a submission is not an absolute http(s) URL.
	ErrInvalidURL = errors.New("a valid http(s) video URL is required")
	// ErrResultNotFound is returned when no finished result exists for a job.
	ErrResultNotFound = errors.New("no result for job")
)

// App wires configuration, jobs, pipeline, credentials and UI runtime callbacks.
type App struct {
	Store       config.Store
	Jobs        *jobs.Manager
	Credentials *transcription.SessionCredentials

	mu            sync.Mutex
	settings      domain.Settings
	diagnostics   domain.DiagnosticReport
	converter     converter
	buildPipeline func(domain.Settings) converter
	checker       *diagnostics.Checker
	installers    map[string]media.Installer
	logger        *slog.Logger
	events        *jobs.EventBus
	newID         func() string

	activeJobID string
	cancel      context.CancelFunc
	done        chan struct{}
	lastJobID   string
	lastResult  *pipeline.Result
	runtimeCtx  context.Context
	stopPush    func()
}

// converter isolates the conversion pipeline behind an interface.
type converter interface {
	Convert(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

// Options configures New.
type Options struct {
	Settings    domain.Settings
	Store       config.Store
	Credentials *transcription.SessionCredentials
	Logger      *slog.Logger
}

// New builds the application from resolved settings and runs startup diagnostics.
func New(opts Options) (*App, error) {
	if err := ensureLocalBinOnPATH(config.BinDir()); err != nil {
		return nil, fmt.Errorf("prepare local tool path: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	credentials := opts.Credentials
	if credentials == nil {
		credentials = transcription.NewSessionCredentials(opts.Settings.APIKey, nil)
	}
	store := opts.Store
	if store == nil {
		store = config.NewJSONStore(config.SettingsPath())
	}

	a := &App{
		Store:       store,
		Jobs:        jobs.NewManager(),
		Credentials: credentials,
		settings:    opts.Settings,
		checker:     diagnostics.NewChecker(),
		installers: map[string]media.Installer{
			diagnostics.IDDownloader: media.NewDownloaderInstaller(config.BinDir()),
			diagnostics.IDFFmpeg:     media.NewFFmpegInstaller(),
		},
		logger: logger,
		events: jobs.NewEventBus(1000),
		newID:  uuid.NewString,
	}
	a.buildPipeline = a.productionPipeline
	a.converter = a.buildPipeline(opts.Settings)
	a.diagnostics = a.checker.Run(opts.Settings, credentials)
	return a, nil
}

// productionPipeline composes the downloader, the speech-to-text client and the formatter.
func (a *App) productionPipeline(settings domain.Settings) converter {
	fetcher := media.NewFetcher(media.Options{
		DownloaderPath: settings.DownloaderPath,
		WorkDir:        settings.WorkDir,
		Installer:      a.installers[diagnostics.IDDownloader],
		Logger:         a.logger.With(slog.String("component", "media")),
	})
	client := transcription.NewClient(transcription.Config{
		BaseURL:      settings.APIBaseURL,
		Language:     settings.Language,
		PollInterval: settings.PollInterval,
		PollTimeout:  settings.PollTimeout,
		Logger:       a.logger.With(slog.String("component", "transcription")),
	}, a.Credentials)
	return pipeline.New(pipeline.Options{
		Fetcher:     fetcher,
		Transcriber: client,
		Logger:      a.logger.With(slog.String("component", "pipeline")),
	})
}

// GetSettings returns the active settings. The API key is never included.
func (a *App) GetSettings() domain.Settings {
	a.mu.Lock()
	defer a.mu.Unlock()
	settings := a.settings
	settings.APIKey = ""
	return settings
}

// SaveSettings validates and persists settings, then rebuilds the pipeline and diagnostics.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	normalized := normalizeSettings(settings)
	if !IsSupportedLanguage(normalized.Language) {
		return domain.Settings{}, fmt.Errorf("unsupported language: %s", normalized.Language)
	}
	if err := config.Validate(normalized); err != nil {
		return domain.Settings{}, err
	}
	if a.Jobs.IsRunning() {
		return domain.Settings{}, jobs.ErrJobAlreadyRunning
	}
	if err := a.Store.Save(normalized); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}

	a.mu.Lock()
	a.settings = normalized
	a.converter = a.buildPipeline(normalized)
	a.diagnostics = a.checker.Run(normalized, a.Credentials)
	a.mu.Unlock()

	normalized.APIKey = ""
	return normalized, nil
}

// SetAPIKey caches the speech-to-text key for this session only.
func (a *App) SetAPIKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return transcription.ErrCredentialRequired
	}
	a.Credentials.Set(key)
	a.RefreshDiagnostics()
	return nil
}

// ClearAPIKey forgets the session key.
func (a *App) ClearAPIKey() {
	a.Credentials.Clear()
	a.RefreshDiagnostics()
}

// HasAPIKey reports whether a key is available for this session.
func (a *App) HasAPIKey() bool {
	return a.Credentials.Configured()
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.diagnostics
}

// RefreshDiagnostics reruns dependency checks against the active settings.
func (a *App) RefreshDiagnostics() domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.diagnostics = a.checker.Run(a.settings, a.Credentials)
	return a.diagnostics
}

// StartConversion creates a job for sourceURL and runs it asynchronously.
// The previous job's artifacts are removed.
func (a *App) StartConversion(sourceURL string) (domain.Job, error) {
	normalized, err := NormalizeURL(sourceURL)
	if err != nil {
		return domain.Job{}, err
	}

	if !a.Credentials.Available() {
		return domain.Job{}, transcription.ErrCredentialRequired
	}

	jobID := a.newID()
	if err := a.Jobs.Start(jobID, normalized); err != nil {
		return domain.Job{}, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	a.mu.Lock()
	a.activeJobID = jobID
	a.cancel = cancel
	a.done = done
	previous := a.lastResult
	a.lastResult = nil
	a.lastJobID = ""
	conv := a.converter
	a.mu.Unlock()

	if previous != nil {
		if err := previous.Cleanup(); err != nil {
			a.logger.Warn("remove previous artifacts", slog.String("error", err.Error()))
		}
	}

	a.logger.Info("conversion started", slog.String("job_id", jobID), slog.String("url", normalized))
	a.publishStatus(jobID, domain.JobStatusFetching, "Job started")

	go func() {
		defer close(done)
		a.runConversion(ctx, conv, jobID, normalized)
	}()
	return a.Jobs.Current(), nil
}

// CancelConversion cancels the currently running job, if any.
func (a *App) CancelConversion() error {
	a.mu.Lock()
	cancel := a.cancel
	activeJobID := a.activeJobID
	a.mu.Unlock()

	if cancel == nil {
		return jobs.ErrNoRunningJob
	}

	cancel()
	if err := a.Jobs.Cancel(); err != nil && !errors.Is(err, jobs.ErrNoRunningJob) {
		return err
	}

	if activeJobID != "" {
		a.publishStatus(activeJobID, domain.JobStatusCancelled, "Cancellation requested")
	}
	return nil
}

// Wait blocks until the running job, if any, has finished or ctx is done.
func (a *App) Wait(ctx context.Context) error {
	a.mu.Lock()
	done := a.done
	a.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown cancels a running job and removes the last job's artifacts.
func (a *App) Shutdown(ctx context.Context) error {
	if err := a.CancelConversion(); err != nil && !errors.Is(err, jobs.ErrNoRunningJob) {
		return err
	}
	if err := a.Wait(ctx); err != nil {
		return err
	}

	a.mu.Lock()
	last := a.lastResult
	a.lastResult = nil
	a.lastJobID = ""
	a.mu.Unlock()
	if last != nil {
		return last.Cleanup()
	}
	return nil
}

// CurrentJob returns current job metadata and status.
func (a *App) CurrentJob() domain.Job {
	return a.Jobs.Current()
}

// JobEvents returns all events with sequence greater than sinceSeq.
func (a *App) JobEvents(sinceSeq int64) []jobs.Event {
	return a.events.Since(sinceSeq)
}

// LastEventSeq returns the sequence number of the newest published event.
func (a *App) LastEventSeq() int64 {
	return a.events.LastSeq()
}

// SubscribeEvents streams job events published from now on.
func (a *App) SubscribeEvents(buffer int) (<-chan jobs.Event, func()) {
	return a.events.Subscribe(buffer)
}

// Result returns the finished conversion for jobID.
func (a *App) Result(jobID string) (domain.Conversion, error) {
	result, err := a.result(jobID)
	if err != nil {
		return domain.Conversion{}, err
	}
	return result.Conversion(jobID), nil
}

// ArticleText returns the rendered article for jobID.
func (a *App) ArticleText(jobID string) (string, error) {
	result, err := a.result(jobID)
	if err != nil {
		return "", err
	}
	return article.Render(result.Article), nil
}

// AudioFile returns the path of the extracted audio for jobID.
func (a *App) AudioFile(jobID string) (string, error) {
	result, err := a.result(jobID)
	if err != nil {
		return "", err
	}
	return result.AudioPath, nil
}

func (a *App) result(jobID string) (*pipeline.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.lastResult == nil || strings.TrimSpace(jobID) == "" || a.lastJobID != jobID {
		return nil, fmt.Errorf("%w: %s", ErrResultNotFound, jobID)
	}
	return a.lastResult, nil
}

// runConversion executes the pipeline and maps outcomes to job events.
func (a *App) runConversion(ctx context.Context, conv converter, jobID, sourceURL string) {
	started := time.Now()
	metrics.SetJobRunning(true)
	// a newer job may already own the gauge
	defer func() { metrics.SetJobRunning(a.Jobs.IsRunning()) }()

	req := pipeline.Request{
		URL: sourceURL,
		OnStage: func(stage string) {
			status := domain.JobStatus(stage)
			if err := a.Jobs.Transition(jobID, status); err == nil {
				a.publishStatus(jobID, status, "Running "+stage+" stage")
			}
		},
		OnLog: func(log media.CommandLog) {
			a.publishEvent(commandEvent(jobID, "Command completed", log))
		},
		OnProgress: func(p pipeline.Progress) {
			a.publishEvent(jobs.Event{
				JobID:   jobID,
				Type:    jobs.EventTypeProgress,
				Status:  domain.JobStatus(p.Stage),
				Step:    p.Step,
				Percent: p.Percent,
				Message: progressMessage(p),
			})
		},
	}

	result, err := conv.Convert(ctx, req)
	if err != nil {
		a.finishWithError(jobID, err)
		return
	}

	a.mu.Lock()
	stale := a.activeJobID != jobID
	if !stale {
		a.lastJobID = jobID
		a.lastResult = &result
	}
	a.mu.Unlock()
	if !stale {
		a.Jobs.Describe(jobID, result.Title, result.AudioPath)
	}

	if stale || a.Jobs.Transition(jobID, domain.JobStatusDone) != nil {
		// cancelled after the last stage finished, or replaced by a newer job
		a.mu.Lock()
		if a.lastJobID == jobID {
			a.lastJobID = ""
			a.lastResult = nil
		}
		a.mu.Unlock()
		_ = result.Cleanup()
		metrics.RecordJob(string(domain.JobStatusCancelled))
		a.clearActiveJob(jobID)
		return
	}

	metrics.RecordJob(string(domain.JobStatusDone))
	a.logger.Info("conversion done",
		slog.String("job_id", jobID),
		slog.String("title", result.Title),
		slog.Duration("elapsed", time.Since(started)),
	)
	a.publishStatus(jobID, domain.JobStatusDone, "Job completed")
	a.publishEvent(jobs.Event{
		JobID:       jobID,
		Type:        jobs.EventTypeResult,
		Status:      domain.JobStatusDone,
		Message:     "Article ready",
		ArticlePath: result.ArticlePath,
	})
	a.clearActiveJob(jobID)
}

func (a *App) finishWithError(jobID string, err error) {
	defer a.clearActiveJob(jobID)

	kind := pipeline.KindOf(err)
	if kind == pipeline.KindCancelled {
		metrics.RecordJob(string(domain.JobStatusCancelled))
		if errors.Is(a.Jobs.Transition(jobID, domain.JobStatusCancelled), jobs.ErrStaleJob) {
			return
		}
		a.publishStatus(jobID, domain.JobStatusCancelled, "Job cancelled")
		return
	}

	metrics.RecordJob(string(domain.JobStatusFailed))
	if errors.Is(a.Jobs.Transition(jobID, domain.JobStatusFailed), jobs.ErrStaleJob) {
		a.logger.Warn("stale job failed", slog.String("job_id", jobID), slog.String("error", err.Error()))
		return
	}
	a.logger.Error("conversion failed", slog.String("job_id", jobID), slog.String("error", err.Error()))
	a.publishStatus(jobID, domain.JobStatusFailed, "Job failed")

	event := jobs.Event{
		JobID:     jobID,
		Type:      jobs.EventTypeError,
		Status:    domain.JobStatusFailed,
		Message:   err.Error(),
		ErrorKind: string(kind),
	}
	var pErr *pipeline.Error
	if errors.As(err, &pErr) {
		event.Payload = pErr.Payload
		if pErr.CommandLog.Command != "" {
			a.publishEvent(commandEvent(jobID, "Failed command", pErr.CommandLog))
		}
	}
	a.publishEvent(event)
}

func commandEvent(jobID, message string, log media.CommandLog) jobs.Event {
	return jobs.Event{
		JobID:    jobID,
		Type:     jobs.EventTypeLog,
		Message:  message,
		Command:  log.Command,
		Args:     log.Args,
		ExitCode: log.ExitCode,
		Stdout:   log.Stdout,
		Stderr:   log.Stderr,
	}
}

// progressMessage is the human-readable line shown for a progress step.
func progressMessage(p pipeline.Progress) string {
	switch p.Step {
	case media.StageInstalling:
		return "Installing downloader"
	case media.StageResolving:
		return "Resolving video title"
	case media.StageDownloading:
		return "Downloading audio"
	case media.StageRetrying:
		return "Retrying download with alternative configuration"
	case pipeline.StepUploading:
		return "Uploading audio"
	case pipeline.StepSubmitting:
		return "Submitting transcription job"
	case pipeline.StepProcessing:
		if p.Percent > 0 {
			return fmt.Sprintf("Transcribing: %.0f%%", p.Percent)
		}
		return "Waiting for transcription"
	default:
		return p.Step
	}
}

// publishStatus sends a normalized status event.
func (a *App) publishStatus(jobID string, status domain.JobStatus, message string) {
	a.publishEvent(jobs.Event{
		JobID:   jobID,
		Type:    jobs.EventTypeStatus,
		Status:  status,
		Message: message,
	})
}

// publishEvent stores event history; desktop push happens through a bus subscription.
func (a *App) publishEvent(event jobs.Event) {
	a.events.Publish(event)
}

// clearActiveJob clears cancellation handles for completed job IDs.
func (a *App) clearActiveJob(jobID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.activeJobID == jobID {
		a.activeJobID = ""
		a.cancel = nil
	}
}

// NormalizeURL trims input and requires an absolute http or https URL.
func NormalizeURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ErrInvalidURL
	}
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", fmt.Errorf("%w: %q", ErrInvalidURL, trimmed)
	}
	return trimmed, nil
}

// normalizeSettings trims user inputs and fills defaults for empty fields.
func normalizeSettings(settings domain.Settings) domain.Settings {
	settings.DownloaderPath = strings.TrimSpace(settings.DownloaderPath)
	settings.Language = strings.ToLower(strings.TrimSpace(settings.Language))
	settings.APIBaseURL = strings.TrimSpace(settings.APIBaseURL)
	settings.WorkDir = strings.TrimSpace(settings.WorkDir)
	settings.ListenAddr = strings.TrimSpace(settings.ListenAddr)
	settings.LogLevel = strings.ToLower(strings.TrimSpace(settings.LogLevel))

	def := config.DefaultSettings()
	if settings.DownloaderPath == "" {
		settings.DownloaderPath = def.DownloaderPath
	}
	if settings.Language == "" {
		settings.Language = def.Language
	}
	if settings.APIBaseURL == "" {
		settings.APIBaseURL = def.APIBaseURL
	}
	if settings.WorkDir == "" {
		settings.WorkDir = def.WorkDir
	}
	if settings.PollInterval <= 0 {
		settings.PollInterval = def.PollInterval
	}
	if settings.PollTimeout <= 0 {
		settings.PollTimeout = def.PollTimeout
	}
	if settings.ListenAddr == "" {
		settings.ListenAddr = def.ListenAddr
	}
	if settings.LogLevel == "" {
		settings.LogLevel = def.LogLevel
	}
	return settings
}
