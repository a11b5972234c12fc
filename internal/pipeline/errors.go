package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"video2article/internal/media"
	"video2article/internal/transcription"
)

// Kind classifies pipeline failures for the UI, the CLI and metrics.
type Kind string

const (
	KindInvalidInput    Kind = "invalid_input"
	KindToolUnavailable Kind = "tool_unavailable"
	KindDownload        Kind = "download"
	KindFileDiscovery   Kind = "file_discovery"
	KindCredential      Kind = "credential"
	KindAPI             Kind = "api"
	KindRemote          Kind = "remote"
	KindTimeout         Kind = "timeout"
	KindCancelled       Kind = "cancelled"
	KindInternal        Kind = "internal"
)

// Error is a stage-aware error with optional command context and raw service payload.
type Error struct {
	Stage      string           `json:"stage"`
	Kind       Kind             `json:"kind"`
	Message    string           `json:"message"`
	Payload    string           `json:"payload,omitempty"`
	CommandLog media.CommandLog `json:"commandLog"`
	Err        error            `json:"-"`
}

// Error formats pipeline failures for logs and UI.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.CommandLog.Command == "" {
		return fmt.Sprintf("%s: %s", e.Stage, e.Message)
	}

	return fmt.Sprintf(
		"%s: %s (cmd=%s exit=%d)",
		e.Stage,
		e.Message,
		e.CommandLog.Command,
		e.CommandLog.ExitCode,
	)
}

// Unwrap exposes underlying error for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// KindOf returns the kind of a pipeline error, or KindInternal for anything else.
func KindOf(err error) Kind {
	var pErr *Error
	if errors.As(err, &pErr) {
		return pErr.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	return KindInternal
}

// classify wraps err into an *Error for stage.
func classify(stage string, err error) *Error {
	var pErr *Error
	if errors.As(err, &pErr) {
		return pErr
	}

	out := &Error{Stage: stage, Kind: KindInternal, Message: err.Error(), Err: err}

	var cmdErr *media.CommandError
	var apiErr *transcription.APIError
	var remoteErr *transcription.RemoteError
	switch {
	case errors.Is(err, context.Canceled):
		out.Kind = KindCancelled
		out.Message = "conversion was cancelled"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, transcription.ErrPollTimeout):
		out.Kind = KindTimeout
	case errors.Is(err, media.ErrEmptyURL):
		out.Kind = KindInvalidInput
	case errors.Is(err, media.ErrDownloaderUnavailable):
		out.Kind = KindToolUnavailable
	case errors.Is(err, media.ErrAudioNotFound):
		out.Kind = KindFileDiscovery
	case errors.Is(err, transcription.ErrCredentialRequired):
		out.Kind = KindCredential
	case errors.As(err, &remoteErr):
		out.Kind = KindRemote
		out.Payload = remoteErr.Payload
	case errors.As(err, &apiErr):
		out.Kind = KindAPI
		out.Payload = apiErr.Body
	case errors.As(err, &cmdErr):
		out.Kind = KindDownload
		out.CommandLog = cmdErr.Log
		out.Message = fmt.Sprintf("%s failed: %s", cmdErr.Log.Command, lastLine(cmdErr.Log.Stderr, err.Error()))
	case errors.Is(err, os.ErrNotExist) && stage == StageTranscribing:
		out.Kind = KindFileDiscovery
	case stage == StageTranscribing:
		out.Kind = KindAPI
	}
	return out
}

// lastLine returns the last non-empty line of s, which is where the downloader puts its error.
func lastLine(s, fallback string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if line := strings.TrimSpace(lines[len(lines)-1]); line != "" {
		return line
	}
	return fallback
}
