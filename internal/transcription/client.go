// Package transcription talks to an AssemblyAI-compatible speech-to-text API.
package transcription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the public AssemblyAI endpoint.
	DefaultBaseURL = "https://api.assemblyai.com"
	// DefaultLanguage is the language hint sent with every job.
	DefaultLanguage = "en"
	// DefaultPollInterval is the delay between status polls.
	DefaultPollInterval = 3 * time.Second
	// DefaultPollTimeout bounds the whole polling phase.
	DefaultPollTimeout = 30 * time.Minute
)

// Job statuses reported by the service.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusError      = "error"
)

// Operations named in APIError.
const (
	OpUpload = "upload"
	OpSubmit = "submit"
	OpPoll   = "poll"
)

// ErrPollTimeout is returned when the job has not finished within the poll budget.
var ErrPollTimeout = errors.New("transcription did not finish before the poll deadline")

// APIError is a non-200 response from one of the service endpoints.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

// Error formats the failed operation with the raw service payload.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.StatusCode, e.Body)
}

// RemoteError is a job that the service finished with status "error".
type RemoteError struct {
	JobID   string
	Message string
	Payload string
}

// Error returns the service payload verbatim.
func (e *RemoteError) Error() string {
	return fmt.Sprintf("transcription %s failed: %s", e.JobID, e.Payload)
}

// Config holds the client settings injected by the caller.
type Config struct {
	BaseURL      string
	Language     string
	PollInterval time.Duration
	PollTimeout  time.Duration
	// MaxPolls caps the number of status requests; zero leaves only PollTimeout.
	MaxPolls   int
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client uploads audio, submits a job and polls it to completion.
type Client struct {
	cfg         Config
	credentials Credentials
	http        *http.Client
	logger      *slog.Logger
	open        func(name string) (io.ReadCloser, error)
}

// JobStatus is the polling response of a transcription job.
type JobStatus struct {
	ID              string   `json:"id"`
	Status          string   `json:"status"`
	PercentComplete *float64 `json:"percent_complete,omitempty"`
	Text            string   `json:"text,omitempty"`
	Error           string   `json:"error,omitempty"`
}

type uploadResponse struct {
	UploadURL string `json:"upload_url"`
}

type submitRequest struct {
	AudioURL     string `json:"audio_url"`
	LanguageCode string `json:"language_code"`
}

// NewClient builds a client. Empty config fields fall back to the defaults.
func NewClient(cfg Config, credentials Credentials) *Client {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if strings.TrimSpace(cfg.Language) == "" {
		cfg.Language = DefaultLanguage
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = DefaultPollTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				MaxIdleConns:          10,
				IdleConnTimeout:       60 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 2 * time.Minute,
			},
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{
		cfg:         cfg,
		credentials: credentials,
		http:        httpClient,
		logger:      logger,
		open: func(name string) (io.ReadCloser, error) {
			return os.Open(name)
		},
	}
}

// Transcribe uploads the audio file, submits a job and waits for its text.
// onProgress receives percent_complete while the job is processing.
func (c *Client) Transcribe(ctx context.Context, audioPath string, onProgress func(percent float64)) (string, error) {
	key, err := c.apiKey(ctx)
	if err != nil {
		return "", err
	}

	uploadURL, err := c.upload(ctx, key, audioPath)
	if err != nil {
		return "", err
	}

	jobID, err := c.submit(ctx, key, uploadURL)
	if err != nil {
		return "", err
	}
	c.logger.Info("transcription submitted", slog.String("job_id", jobID))

	return c.wait(ctx, key, jobID, onProgress)
}

// Upload streams the audio file to the service and returns the resource URL.
func (c *Client) Upload(ctx context.Context, audioPath string) (string, error) {
	key, err := c.apiKey(ctx)
	if err != nil {
		return "", err
	}
	return c.upload(ctx, key, audioPath)
}

// Submit creates a transcription job for an uploaded resource and returns its ID.
func (c *Client) Submit(ctx context.Context, uploadURL string) (string, error) {
	key, err := c.apiKey(ctx)
	if err != nil {
		return "", err
	}
	return c.submit(ctx, key, uploadURL)
}

// Wait polls a job until it completes, fails or exceeds the poll budget.
func (c *Client) Wait(ctx context.Context, jobID string, onProgress func(percent float64)) (string, error) {
	key, err := c.apiKey(ctx)
	if err != nil {
		return "", err
	}
	return c.wait(ctx, key, jobID, onProgress)
}

func (c *Client) apiKey(ctx context.Context) (string, error) {
	if c.credentials == nil {
		return "", ErrCredentialRequired
	}
	key, err := c.credentials.APIKey(ctx)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(key) == "" {
		return "", ErrCredentialRequired
	}
	return key, nil
}

func (c *Client) upload(ctx context.Context, key, audioPath string) (string, error) {
	file, err := c.open(audioPath)
	if err != nil {
		return "", fmt.Errorf("open audio file: %w", err)
	}
	defer file.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v2/upload", file)
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("authorization", key)
	req.Header.Set("content-type", "application/octet-stream")

	var out uploadResponse
	if err := c.do(req, OpUpload, &out); err != nil {
		return "", err
	}
	if out.UploadURL == "" {
		return "", &APIError{Op: OpUpload, StatusCode: http.StatusOK, Body: "response did not include upload_url"}
	}
	return out.UploadURL, nil
}

func (c *Client) submit(ctx context.Context, key, uploadURL string) (string, error) {
	payload, err := json.Marshal(submitRequest{AudioURL: uploadURL, LanguageCode: c.cfg.Language})
	if err != nil {
		return "", fmt.Errorf("encode submit request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v2/transcript", strings.NewReader(string(payload)))
	if err != nil {
		return "", fmt.Errorf("build submit request: %w", err)
	}
	req.Header.Set("authorization", key)
	req.Header.Set("content-type", "application/json")

	var out JobStatus
	if err := c.do(req, OpSubmit, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", &APIError{Op: OpSubmit, StatusCode: http.StatusOK, Body: "response did not include id"}
	}
	return out.ID, nil
}

func (c *Client) status(ctx context.Context, key, jobID string) (JobStatus, string, error) {
	endpoint := c.cfg.BaseURL + "/v2/transcript/" + url.PathEscape(jobID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return JobStatus{}, "", fmt.Errorf("build poll request: %w", err)
	}
	req.Header.Set("authorization", key)
	req.Header.Set("content-type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return JobStatus{}, "", fmt.Errorf("%s: %w", OpPoll, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return JobStatus{}, "", fmt.Errorf("%s: read response: %w", OpPoll, err)
	}
	if resp.StatusCode != http.StatusOK {
		return JobStatus{}, "", &APIError{Op: OpPoll, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var out JobStatus
	if err := json.Unmarshal(body, &out); err != nil {
		return JobStatus{}, "", fmt.Errorf("%s: decode response: %w", OpPoll, err)
	}
	return out, string(body), nil
}

// wait paces status requests with a limiter; the first request goes out immediately.
func (c *Client) wait(ctx context.Context, key, jobID string, onProgress func(percent float64)) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.PollTimeout)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(c.cfg.PollInterval), 1)
	for polls := 0; c.cfg.MaxPolls <= 0 || polls < c.cfg.MaxPolls; polls++ {
		if err := limiter.Wait(ctx); err != nil {
			return "", c.pollStopped(ctx, err)
		}

		job, raw, err := c.status(ctx, key, jobID)
		if err != nil {
			if ctx.Err() != nil {
				return "", c.pollStopped(ctx, err)
			}
			return "", err
		}

		switch job.Status {
		case StatusCompleted:
			c.logger.Info("transcription completed", slog.String("job_id", jobID), slog.Int("polls", polls+1))
			if onProgress != nil {
				onProgress(100)
			}
			return job.Text, nil
		case StatusError:
			return "", &RemoteError{JobID: jobID, Message: job.Error, Payload: strings.TrimSpace(raw)}
		case StatusProcessing:
			if job.PercentComplete != nil && onProgress != nil {
				onProgress(*job.PercentComplete)
			}
		}
		c.logger.Debug("transcription pending", slog.String("job_id", jobID), slog.String("status", job.Status))
	}

	return "", fmt.Errorf("%w: %d polls", ErrPollTimeout, c.cfg.MaxPolls)
}

// pollStopped maps deadlines to ErrPollTimeout and keeps caller cancellation as is.
// The limiter fails early, with ctx still alive, when the next tick would pass the deadline.
func (c *Client) pollStopped(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	return fmt.Errorf("%w: %s: %v", ErrPollTimeout, c.cfg.PollTimeout, err)
}

// do sends req, rejects non-200 responses and decodes the JSON body into out.
func (c *Client) do(req *http.Request, op string, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read response: %w", op, err)
	}
	if resp.StatusCode != http.StatusOK {
		return &APIError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}
