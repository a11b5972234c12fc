// Package server exposes the browser UI and the JSON API over HTTP.
package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"video2article/internal/domain"
	"video2article/internal/jobs"
)

// Service is the application surface the HTTP layer drives.
type Service interface {
	StartConversion(sourceURL string) (domain.Job, error)
	CancelConversion() error
	CurrentJob() domain.Job
	JobEvents(sinceSeq int64) []jobs.Event
	LastEventSeq() int64
	Result(jobID string) (domain.Conversion, error)
	ArticleText(jobID string) (string, error)
	AudioFile(jobID string) (string, error)
	SetAPIKey(key string) error
	ClearAPIKey()
	HasAPIKey() bool
	GetSettings() domain.Settings
	RefreshDiagnostics() domain.DiagnosticReport
	FixDiagnostic(ctx context.Context, itemID string) (domain.DiagnosticReport, error)
	Languages() []domain.LanguageOption
}

// Options tunes the HTTP layer.
type Options struct {
	Logger *slog.Logger
	// SubmitRate limits job submissions per client IP; zero uses one every two seconds.
	SubmitRate  rate.Limit
	SubmitBurst int
}

// New creates the echo instance with middleware and routes.
func New(svc Service, opts Options) *echo.Echo {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.SubmitRate == 0 {
		opts.SubmitRate = rate.Every(2 * time.Second)
	}
	if opts.SubmitBurst <= 0 {
		opts.SubmitBurst = 3
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = newRequestValidator()
	e.HTTPErrorHandler = errorHandler(logger)

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			path := c.Request().URL.Path
			return path == "/health" || path == "/metrics" || path == "/api/jobs/events"
		},
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.InfoContext(c.Request().Context(), "HTTP request completed",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"error", v.Error)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("1M"))
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "SAMEORIGIN",
	}))

	h := &handler{svc: svc, logger: logger, page: mustParsePage()}
	submitLimiter := newRateLimiter(opts.SubmitRate, opts.SubmitBurst)

	e.GET("/", h.index)
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api")
	api.POST("/jobs", h.startJob, submitLimiter.Middleware())
	api.GET("/jobs/current", h.currentJob)
	api.DELETE("/jobs/current", h.cancelJob)
	api.GET("/jobs/events", h.jobEvents)
	api.GET("/jobs/:id/result", h.result)
	api.GET("/jobs/:id/article.txt", h.articleText)
	api.GET("/jobs/:id/audio", h.audio)
	api.GET("/credentials", h.credentials)
	api.POST("/credentials", h.setCredentials)
	api.DELETE("/credentials", h.clearCredentials)
	api.GET("/diagnostics", h.diagnostics)
	api.POST("/diagnostics/:id/fix", h.fixDiagnostic)
	api.GET("/languages", h.languages)
	api.GET("/settings", h.settings)

	return e
}
