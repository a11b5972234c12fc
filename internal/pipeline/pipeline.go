// Package pipeline runs one conversion: fetch audio, transcribe it, format the article.
package pipeline

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/samber/lo"

	"video2article/internal/article"
	"video2article/internal/domain"
	"video2article/internal/media"
	"video2article/internal/metrics"
)

// Pipeline stages, in order.
const (
	StageFetching     = string(domain.JobStatusFetching)
	StageTranscribing = string(domain.JobStatusTranscribing)
	StageFormatting   = string(domain.JobStatusFormatting)
)

// Transcription steps reported through Request.OnProgress.
const (
	StepUploading  = "uploading"
	StepSubmitting = "submitting"
	StepProcessing = "processing"
)

// ArticleFileName is written next to the extracted audio.
const ArticleFileName = "article.txt"

// AudioFetcher extracts the audio track of a remote video.
type AudioFetcher interface {
	Fetch(ctx context.Context, req media.Request) (media.Result, error)
}

// Transcriber runs the three steps of a remote transcription.
type Transcriber interface {
	Upload(ctx context.Context, audioPath string) (string, error)
	Submit(ctx context.Context, uploadURL string) (string, error)
	Wait(ctx context.Context, jobID string, onProgress func(percent float64)) (string, error)
}

// Progress is a step inside a stage. Percent is only meaningful for StepProcessing.
type Progress struct {
	Stage   string  `json:"stage"`
	Step    string  `json:"step"`
	Percent float64 `json:"percent"`
}

// Request contains the source URL and execution callbacks for one conversion.
type Request struct {
	URL        string
	OnStage    func(stage string)
	OnLog      func(log media.CommandLog)
	OnProgress func(p Progress)
}

// Result contains the article, transcript and artifact paths of a successful run.
type Result struct {
	SourceURL   string
	Title       string
	AudioPath   string
	ArticlePath string
	Transcript  string
	Article     domain.Article
	Audio       domain.AudioInfo
	Logs        []media.CommandLog
	fetched     media.Result
}

// Dir returns the per-run directory holding the artifacts.
func (r *Result) Dir() string {
	if r == nil {
		return ""
	}
	return r.fetched.Dir()
}

// Cleanup removes the per-run directory and every artifact in it.
func (r *Result) Cleanup() error {
	if r == nil {
		return nil
	}
	return r.fetched.Cleanup()
}

// Conversion returns the payload shown by the UI for job id.
func (r *Result) Conversion(jobID string) domain.Conversion {
	return domain.Conversion{
		JobID:      jobID,
		SourceURL:  r.SourceURL,
		Title:      r.Title,
		Transcript: r.Transcript,
		Article:    r.Article,
		Audio:      r.Audio,
	}
}

// Options configures a Pipeline.
type Options struct {
	Fetcher     AudioFetcher
	Transcriber Transcriber
	Logger      *slog.Logger
}

// Pipeline composes the fetcher, the transcriber and the formatter.
type Pipeline struct {
	fetcher     AudioFetcher
	transcriber Transcriber
	logger      *slog.Logger
	writeFile   func(name string, data []byte, perm os.FileMode) error
	stat        func(name string) (os.FileInfo, error)
	now         func() time.Time
}

// New constructs a pipeline from its collaborators.
func New(opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Pipeline{
		fetcher:     opts.Fetcher,
		transcriber: opts.Transcriber,
		logger:      logger,
		writeFile:   os.WriteFile,
		stat:        os.Stat,
		now:         time.Now,
	}
}

// Convert runs fetching, transcribing and formatting strictly in order.
// A failed run returns an *Error and leaves no artifacts behind.
func (p *Pipeline) Convert(ctx context.Context, req Request) (Result, error) {
	url := strings.TrimSpace(req.URL)
	if url == "" {
		return Result{}, p.fail(StageFetching, p.now(), media.ErrEmptyURL)
	}

	emitStage(req.OnStage, StageFetching)
	started := p.now()
	fetched, err := p.fetcher.Fetch(ctx, media.Request{
		URL: url,
		OnStage: func(step string) {
			emitProgress(req.OnProgress, Progress{Stage: StageFetching, Step: step})
		},
		OnLog: req.OnLog,
	})
	if err != nil {
		return Result{}, p.fail(StageFetching, started, err)
	}
	p.observe(StageFetching, started)

	emitStage(req.OnStage, StageTranscribing)
	started = p.now()
	transcript, err := p.transcribe(ctx, fetched.AudioPath, req.OnProgress)
	if err != nil {
		_ = fetched.Cleanup()
		return Result{}, p.fail(StageTranscribing, started, err)
	}
	p.observe(StageTranscribing, started)

	emitStage(req.OnStage, StageFormatting)
	started = p.now()
	doc := article.Format(transcript, fetched.Title)
	articlePath := filepath.Join(filepath.Dir(fetched.AudioPath), ArticleFileName)
	if err := p.writeFile(articlePath, []byte(article.Render(doc)), 0o644); err != nil {
		_ = fetched.Cleanup()
		return Result{}, p.fail(StageFormatting, started, err)
	}
	p.observe(StageFormatting, started)
	metrics.RecordArticle(len(doc.Sections))

	p.logger.Info("conversion finished",
		slog.String("title", fetched.Title),
		slog.Int("sections", len(doc.Sections)),
		slog.Int("sentences", lo.SumBy(doc.Sections, article.SentenceCount)),
		slog.String("article", articlePath),
	)
	return Result{
		SourceURL:   url,
		Title:       fetched.Title,
		AudioPath:   fetched.AudioPath,
		ArticlePath: articlePath,
		Transcript:  transcript,
		Article:     doc,
		Audio:       p.audioInfo(fetched.AudioPath),
		Logs:        fetched.Logs,
		fetched:     fetched,
	}, nil
}

// transcribe uploads, submits and waits, reporting each step.
func (p *Pipeline) transcribe(ctx context.Context, audioPath string, onProgress func(Progress)) (string, error) {
	emitProgress(onProgress, Progress{Stage: StageTranscribing, Step: StepUploading})
	uploadURL, err := p.transcriber.Upload(ctx, audioPath)
	if err != nil {
		return "", err
	}

	emitProgress(onProgress, Progress{Stage: StageTranscribing, Step: StepSubmitting})
	jobID, err := p.transcriber.Submit(ctx, uploadURL)
	if err != nil {
		return "", err
	}
	p.logger.Info("transcription submitted", slog.String("job_id", jobID))

	emitProgress(onProgress, Progress{Stage: StageTranscribing, Step: StepProcessing})
	return p.transcriber.Wait(ctx, jobID, func(percent float64) {
		emitProgress(onProgress, Progress{Stage: StageTranscribing, Step: StepProcessing, Percent: percent})
	})
}

func (p *Pipeline) audioInfo(path string) domain.AudioInfo {
	info := domain.AudioInfo{FileName: filepath.Base(path)}
	if fi, err := p.stat(path); err == nil {
		info.SizeBytes = fi.Size()
		info.SizeLabel = humanize.Bytes(uint64(fi.Size()))
	}
	return info
}

func (p *Pipeline) fail(stage string, started time.Time, err error) *Error {
	pErr := classify(stage, err)
	metrics.RecordStage(stage, string(pErr.Kind), p.now().Sub(started).Seconds())
	p.logger.Warn("conversion failed",
		slog.String("stage", stage),
		slog.String("kind", string(pErr.Kind)),
		slog.String("error", err.Error()),
	)
	return pErr
}

func (p *Pipeline) observe(stage string, started time.Time) {
	metrics.RecordStage(stage, "", p.now().Sub(started).Seconds())
}

// emitStage forwards stage updates when callback is configured.
func emitStage(cb func(stage string), stage string) {
	if cb != nil {
		cb(stage)
	}
}

func emitProgress(cb func(Progress), p Progress) {
	if cb != nil {
		cb(p)
	}
}

// NewForTests constructs a pipeline with an injectable file writer.
func NewForTests(
	fetcher AudioFetcher,
	transcriber Transcriber,
	writeFile func(name string, data []byte, perm os.FileMode) error,
) *Pipeline {
	p := New(Options{Fetcher: fetcher, Transcriber: transcriber})
	if writeFile != nil {
		p.writeFile = writeFile
	}
	return p
}
