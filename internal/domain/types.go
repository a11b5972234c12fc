package domain

import "time"

// JobStatus tracks each pipeline stage for a single conversion job.
type JobStatus string

const (
	JobStatusIdle         JobStatus = "idle"
	JobStatusFetching     JobStatus = "fetching"
	JobStatusTranscribing JobStatus = "transcribing"
	JobStatusFormatting   JobStatus = "formatting"
	JobStatusDone         JobStatus = "done"
	JobStatusFailed       JobStatus = "failed"
	JobStatusCancelled    JobStatus = "cancelled"
)

// Settings contains runtime configuration. APIKey is never persisted.
type Settings struct {
	DownloaderPath string        `json:"downloaderPath" mapstructure:"downloader_path"`
	Language       string        `json:"language" mapstructure:"language"`
	APIBaseURL     string        `json:"apiBaseUrl" mapstructure:"api_base_url"`
	WorkDir        string        `json:"workDir" mapstructure:"work_dir"`
	PollInterval   time.Duration `json:"pollInterval" mapstructure:"poll_interval"`
	PollTimeout    time.Duration `json:"pollTimeout" mapstructure:"poll_timeout"`
	ListenAddr     string        `json:"listenAddr" mapstructure:"listen_addr"`
	LogLevel       string        `json:"logLevel" mapstructure:"log_level"`
	APIKey         string        `json:"-" mapstructure:"api_key"`
}

// Job stores the current job identity, source and lifecycle status.
type Job struct {
	ID         string    `json:"id"`
	SourceURL  string    `json:"sourceUrl,omitempty"`
	Title      string    `json:"title,omitempty"`
	AudioPath  string    `json:"audioPath,omitempty"`
	Status     JobStatus `json:"status"`
	StartedAt  time.Time `json:"startedAt,omitzero"`
	FinishedAt time.Time `json:"finishedAt,omitzero"`
}
