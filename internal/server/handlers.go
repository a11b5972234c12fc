package server

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"video2article/internal/domain"
	"video2article/internal/jobs"
)

const fixTimeout = 30 * time.Minute

type handler struct {
	svc    Service
	logger *slog.Logger
	page   *template.Template
}

type startJobRequest struct {
	URL string `json:"url" form:"url" validate:"required,http_url"`
}

type credentialsRequest struct {
	APIKey string `json:"apiKey" form:"apiKey" validate:"required"`
}

type credentialsResponse struct {
	Configured bool `json:"configured"`
}

type eventsResponse struct {
	Job     domain.Job   `json:"job"`
	Events  []jobs.Event `json:"events"`
	LastSeq int64        `json:"lastSeq"`
}

func (h *handler) startJob(c echo.Context) error {
	var req startJobRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	job, err := h.svc.StartConversion(req.URL)
	if err != nil {
		return err
	}
	h.logger.Info("conversion accepted", "job_id", job.ID, "url", job.SourceURL)
	return c.JSON(http.StatusAccepted, job)
}

func (h *handler) currentJob(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.CurrentJob())
}

func (h *handler) cancelJob(c echo.Context) error {
	if err := h.svc.CancelConversion(); err != nil {
		return err
	}
	return c.NoContent(http.StatusAccepted)
}

// jobEvents returns events after ?since together with the current job snapshot.
func (h *handler) jobEvents(c echo.Context) error {
	var since int64
	if raw := c.QueryParam("since"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "since must be a non-negative integer")
		}
		since = parsed
	}

	// cursor before events: anything published in between is still returned
	lastSeq := h.svc.LastEventSeq()
	events := h.svc.JobEvents(since)
	if events == nil {
		events = []jobs.Event{}
	}
	if n := len(events); n > 0 && events[n-1].Seq > lastSeq {
		lastSeq = events[n-1].Seq
	}
	return c.JSON(http.StatusOK, eventsResponse{Job: h.svc.CurrentJob(), Events: events, LastSeq: lastSeq})
}

func (h *handler) result(c echo.Context) error {
	conversion, err := h.svc.Result(c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, conversion)
}

func (h *handler) articleText(c echo.Context) error {
	text, err := h.svc.ArticleText(c.Param("id"))
	if err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="article.txt"`)
	return c.Blob(http.StatusOK, echo.MIMETextPlainCharsetUTF8, []byte(text))
}

// audio streams the extracted mp3; ?download=1 asks the browser to save it.
func (h *handler) audio(c echo.Context) error {
	path, err := h.svc.AudioFile(c.Param("id"))
	if err != nil {
		return err
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open audio file: %w", err)
	}
	defer file.Close()

	disposition := "inline"
	if c.QueryParam("download") != "" {
		disposition = "attachment"
	}
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("%s; filename=%q", disposition, filepath.Base(path)))
	return c.Stream(http.StatusOK, "audio/mp3", file)
}

func (h *handler) credentials(c echo.Context) error {
	return c.JSON(http.StatusOK, credentialsResponse{Configured: h.svc.HasAPIKey()})
}

// setCredentials caches the key for this process only.
func (h *handler) setCredentials(c echo.Context) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if err := h.svc.SetAPIKey(req.APIKey); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, credentialsResponse{Configured: h.svc.HasAPIKey()})
}

// clearCredentials forgets the session key.
func (h *handler) clearCredentials(c echo.Context) error {
	h.svc.ClearAPIKey()
	return c.JSON(http.StatusOK, credentialsResponse{Configured: h.svc.HasAPIKey()})
}

func (h *handler) diagnostics(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.RefreshDiagnostics())
}

func (h *handler) fixDiagnostic(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), fixTimeout)
	defer cancel()

	report, err := h.svc.FixDiagnostic(ctx, c.Param("id"))
	if err != nil {
		h.logger.Warn("diagnostic fix failed", "item", c.Param("id"), "error", err)
		return c.JSON(http.StatusUnprocessableEntity, struct {
			Error  string                  `json:"error"`
			Report domain.DiagnosticReport `json:"report"`
		}{Error: err.Error(), Report: report})
	}
	return c.JSON(http.StatusOK, report)
}

func (h *handler) languages(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Languages())
}

func (h *handler) settings(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.GetSettings())
}

type pageData struct {
	HasAPIKey bool
	Language  string
	Languages []domain.LanguageOption
}

func (h *handler) index(c echo.Context) error {
	settings := h.svc.GetSettings()
	data := pageData{
		HasAPIKey: h.svc.HasAPIKey(),
		Language:  settings.Language,
		Languages: h.svc.Languages(),
	}

	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(http.StatusOK)
	return h.page.Execute(c.Response(), data)
}
