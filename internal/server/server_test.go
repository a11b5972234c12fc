package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"video2article/internal/bootstrap"
	"video2article/internal/domain"
	"video2article/internal/jobs"
	"video2article/internal/transcription"
)

type fakeService struct {
	mu         sync.Mutex
	started    []string
	startErr   error
	cancelErr  error
	job        domain.Job
	events     []jobs.Event
	sinceSeen  int64
	lastSeq    int64
	conversion domain.Conversion
	article    string
	audioPath  string
	apiKey     string
	fixErr     error
	fixedItem  string
}

func (f *fakeService) StartConversion(sourceURL string) (domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return domain.Job{}, f.startErr
	}
	f.started = append(f.started, sourceURL)
	return domain.Job{ID: "job-1", SourceURL: sourceURL, Status: domain.JobStatusFetching}, nil
}

func (f *fakeService) CancelConversion() error { return f.cancelErr }

func (f *fakeService) CurrentJob() domain.Job { return f.job }

func (f *fakeService) JobEvents(sinceSeq int64) []jobs.Event {
	f.sinceSeen = sinceSeq
	return f.events
}

func (f *fakeService) LastEventSeq() int64 { return f.lastSeq }

func (f *fakeService) Result(jobID string) (domain.Conversion, error) {
	if jobID != f.conversion.JobID {
		return domain.Conversion{}, bootstrap.ErrResultNotFound
	}
	return f.conversion, nil
}

func (f *fakeService) ArticleText(jobID string) (string, error) {
	if jobID != f.conversion.JobID {
		return "", bootstrap.ErrResultNotFound
	}
	return f.article, nil
}

func (f *fakeService) AudioFile(jobID string) (string, error) {
	if jobID != f.conversion.JobID {
		return "", bootstrap.ErrResultNotFound
	}
	return f.audioPath, nil
}

func (f *fakeService) SetAPIKey(key string) error {
	f.apiKey = key
	return nil
}

func (f *fakeService) ClearAPIKey() { f.apiKey = "" }

func (f *fakeService) HasAPIKey() bool { return f.apiKey != "" }

func (f *fakeService) GetSettings() domain.Settings {
	return domain.Settings{Language: "en"}
}

func (f *fakeService) RefreshDiagnostics() domain.DiagnosticReport {
	return domain.DiagnosticReport{Items: []domain.DiagnosticItem{{ID: "tool_downloader", Status: domain.DiagnosticStatusPass}}}
}

func (f *fakeService) FixDiagnostic(_ context.Context, itemID string) (domain.DiagnosticReport, error) {
	f.fixedItem = itemID
	return f.RefreshDiagnostics(), f.fixErr
}

func (f *fakeService) Languages() []domain.LanguageOption {
	return []domain.LanguageOption{{Code: "en", Name: "English"}}
}

func doRequest(t *testing.T, svc Service, opts Options, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := New(svc, opts)
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

// TestStartJobAccepted checks a valid URL is handed to the service.
func TestStartJobAccepted(t *testing.T) {
	svc := &fakeService{}
	rec := doRequest(t, svc, Options{}, http.MethodPost, "/api/jobs", `{"url":"https://www.youtube.com/watch?v=abc"}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"https://www.youtube.com/watch?v=abc"}, svc.started)

	var job domain.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, "job-1", job.ID)
	assert.Equal(t, domain.JobStatusFetching, job.Status)
}

// TestStartJobValidation checks missing and malformed URLs are rejected before the service.
func TestStartJobValidation(t *testing.T) {
	cases := map[string]string{
		"missing":    `{}`,
		"not a url":  `{"url":"youtube"}`,
		"ftp scheme": `{"url":"ftp://example.com/video"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			svc := &fakeService{}
			rec := doRequest(t, svc, Options{}, http.MethodPost, "/api/jobs", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, svc.started)
		})
	}
}

// TestStartJobErrorMapping checks service errors become the right status codes.
func TestStartJobErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{jobs.ErrJobAlreadyRunning, http.StatusConflict},
		{bootstrap.ErrInvalidURL, http.StatusBadRequest},
		{transcription.ErrCredentialRequired, http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		svc := &fakeService{startErr: tc.err}
		rec := doRequest(t, svc, Options{}, http.MethodPost, "/api/jobs", `{"url":"https://example.com/v"}`)
		assert.Equal(t, tc.code, rec.Code, tc.err.Error())
		assert.NotEmpty(t, decodeError(t, rec))
	}
}

// TestStartJobRateLimited checks repeated submissions from one client are throttled.
func TestStartJobRateLimited(t *testing.T) {
	svc := &fakeService{}
	e := New(svc, Options{SubmitRate: rate.Limit(0.001), SubmitBurst: 1})

	codes := make([]int, 0, 2)
	for range 2 {
		req := httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(`{"url":"https://example.com/v"}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
		if rec.Code == http.StatusTooManyRequests {
			assert.NotEmpty(t, rec.Header().Get("Retry-After"))
		}
	}
	assert.Equal(t, []int{http.StatusAccepted, http.StatusTooManyRequests}, codes)
}

// TestCancelWithoutJob checks cancelling with nothing running is a conflict.
func TestCancelWithoutJob(t *testing.T) {
	svc := &fakeService{cancelErr: jobs.ErrNoRunningJob}
	rec := doRequest(t, svc, Options{}, http.MethodDelete, "/api/jobs/current", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	svc.cancelErr = nil
	rec = doRequest(t, svc, Options{}, http.MethodDelete, "/api/jobs/current", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

// TestJobEventsSince checks the cursor is parsed and the job snapshot is included.
func TestJobEventsSince(t *testing.T) {
	svc := &fakeService{
		job:     domain.Job{ID: "job-1", Status: domain.JobStatusTranscribing},
		events:  []jobs.Event{{Seq: 4, Type: jobs.EventTypeProgress, Step: "processing", Percent: 40}},
		lastSeq: 4,
	}
	rec := doRequest(t, svc, Options{}, http.MethodGet, "/api/jobs/events?since=3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(3), svc.sinceSeen)

	var body eventsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, domain.JobStatusTranscribing, body.Job.Status)
	require.Len(t, body.Events, 1)
	assert.Equal(t, float64(40), body.Events[0].Percent)
	assert.Equal(t, int64(4), body.LastSeq)

	rec = doRequest(t, svc, Options{}, http.MethodGet, "/api/jobs/events?since=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// TestJobEventsEmptyIsArray checks clients always receive a JSON array and the cursor.
func TestJobEventsEmptyIsArray(t *testing.T) {
	rec := doRequest(t, &fakeService{lastSeq: 12}, Options{}, http.MethodGet, "/api/jobs/events?since=12", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"events":[]`)
	assert.Contains(t, rec.Body.String(), `"lastSeq":12`)
}

// TestJobEventsCursorCoversLateEvents checks lastSeq never trails the returned events.
func TestJobEventsCursorCoversLateEvents(t *testing.T) {
	svc := &fakeService{
		events:  []jobs.Event{{Seq: 7, Type: jobs.EventTypeStatus}, {Seq: 8, Type: jobs.EventTypeLog}},
		lastSeq: 7,
	}
	rec := doRequest(t, svc, Options{}, http.MethodGet, "/api/jobs/events?since=6", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body eventsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(8), body.LastSeq)
}

// TestResultEndpoints checks the result, article download and audio stream.
func TestResultEndpoints(t *testing.T) {
	audio := filepath.Join(t.TempDir(), "talk.mp3")
	require.NoError(t, os.WriteFile(audio, []byte("ID3-bytes"), 0o644))

	svc := &fakeService{
		conversion: domain.Conversion{
			JobID:      "job-1",
			SourceURL:  "https://www.youtube.com/watch?v=abc",
			Title:      "Talk",
			Transcript: "Hello.",
			Audio:      domain.AudioInfo{FileName: "talk.mp3", SizeBytes: 9, SizeLabel: "9 B"},
		},
		article:    "Talk\n\nIntroduction\nHello.\n",
		audioPath:  audio,
	}

	rec := doRequest(t, svc, Options{}, http.MethodGet, "/api/jobs/job-1/result", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var conversion domain.Conversion
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conversion))
	assert.Equal(t, "Hello.", conversion.Transcript)
	// fields read by the audio panel
	var raw map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	assert.Equal(t, "Talk", raw["title"])
	assert.Equal(t, "https://www.youtube.com/watch?v=abc", raw["sourceUrl"])
	assert.Equal(t, "talk.mp3", raw["audio"].(map[string]any)["fileName"])

	rec = doRequest(t, svc, Options{}, http.MethodGet, "/api/jobs/job-1/article.txt", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain; charset=UTF-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename="article.txt"`)
	assert.Equal(t, svc.article, rec.Body.String())

	rec = doRequest(t, svc, Options{}, http.MethodGet, "/api/jobs/job-1/audio?download=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/mp3", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="talk.mp3"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "ID3-bytes", rec.Body.String())
}

// TestResultUnknownJob checks stale job IDs are a 404.
func TestResultUnknownJob(t *testing.T) {
	svc := &fakeService{conversion: domain.Conversion{JobID: "job-2"}}
	for _, path := range []string{"/api/jobs/job-1/result", "/api/jobs/job-1/article.txt", "/api/jobs/job-1/audio"} {
		rec := doRequest(t, svc, Options{}, http.MethodGet, path, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

// TestCredentials checks the key is accepted and only its presence is reported back.
func TestCredentials(t *testing.T) {
	svc := &fakeService{}
	rec := doRequest(t, svc, Options{}, http.MethodGet, "/api/credentials", "")
	assert.JSONEq(t, `{"configured":false}`, rec.Body.String())

	rec = doRequest(t, svc, Options{}, http.MethodPost, "/api/credentials", `{"apiKey":"secret-key"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"configured":true}`, rec.Body.String())
	assert.Equal(t, "secret-key", svc.apiKey)
	assert.NotContains(t, rec.Body.String(), "secret-key")

	rec = doRequest(t, svc, Options{}, http.MethodPost, "/api/credentials", `{"apiKey":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, svc, Options{}, http.MethodDelete, "/api/credentials", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"configured":false}`, rec.Body.String())
	assert.Empty(t, svc.apiKey)
}

// TestDiagnosticsFix checks the item ID is passed through and failures carry the report.
func TestDiagnosticsFix(t *testing.T) {
	svc := &fakeService{}
	rec := doRequest(t, svc, Options{}, http.MethodPost, "/api/diagnostics/tool_ffmpeg/fix", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tool_ffmpeg", svc.fixedItem)

	svc.fixErr = errors.New("no supported package manager found")
	rec = doRequest(t, svc, Options{}, http.MethodPost, "/api/diagnostics/tool_ffmpeg/fix", "")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "no supported package manager found")
	assert.Contains(t, rec.Body.String(), `"items"`)
}

// TestIndexPage checks the UI renders the language and hides the key form when a key is set.
func TestIndexPage(t *testing.T) {
	rec := doRequest(t, &fakeService{}, Options{}, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "Language: en")
	assert.Contains(t, rec.Body.String(), `<form id="key-form" >`)

	rec = doRequest(t, &fakeService{apiKey: "k"}, Options{}, http.MethodGet, "/", "")
	assert.Contains(t, rec.Body.String(), `<form id="key-form" hidden>`)
}

// TestIndexPageAudioPanel checks the audio tab has slots for the title and source link.
func TestIndexPageAudioPanel(t *testing.T) {
	body := doRequest(t, &fakeService{}, Options{}, http.MethodGet, "/", "").Body.String()
	for _, want := range []string{
		`id="audio-title"`,
		`<a id="audio-source"`,
		`el("audio-title").textContent = res.title`,
		`el("audio-source").href = res.sourceUrl`,
	} {
		assert.Contains(t, body, want)
	}
}

// TestIndexPageDesktopHooks checks the page uses pushed events and native save dialogs in the desktop shell.
func TestIndexPageDesktopHooks(t *testing.T) {
	body := doRequest(t, &fakeService{}, Options{}, http.MethodGet, "/", "").Body.String()
	for _, want := range []string{
		`window.go.bootstrap.App`,
		`window.runtime.EventsOn("job:event", handleEvent)`,
		`saveWith("SaveArticleAs")`,
		`saveWith("SaveAudioAs")`,
		`desktop.OpenArtifactsFolder(resultJob)`,
	} {
		assert.Contains(t, body, want)
	}
}

// TestHealthAndMetrics checks the health and metrics endpoints respond.
func TestHealthAndMetrics(t *testing.T) {
	rec := doRequest(t, &fakeService{}, Options{}, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())

	rec = doRequest(t, &fakeService{}, Options{}, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
