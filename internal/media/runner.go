package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// processWaitDelay bounds how long a cancelled command may hold its output pipes.
const processWaitDelay = 5 * time.Second

// CommandLog is the captured outcome of one downloader or installer run.
type CommandLog struct {
	Command  string   `json:"command"`
	Args     []string `json:"args"`
	ExitCode int      `json:"exitCode"`
	Stdout   string   `json:"stdout"`
	Stderr   string   `json:"stderr"`
}

// CommandLine joins the command and its arguments for display.
func (l CommandLog) CommandLine() string {
	return formatCommand(l.Command, l.Args)
}

// CommandError wraps a non-zero exit with the captured output.
type CommandError struct {
	Log CommandLog
	Err error
}

func (e *CommandError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s exited with code %d: %v", e.Log.Command, e.Log.ExitCode, e.Err)
}

func (e *CommandError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner is swapped for a fake in tests.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

type execRunner struct{}

// Run starts name and waits for it. ExitCode is -1 when the process never ran.
func (execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = processWaitDelay

	runErr := cmd.Run()
	result := commandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if runErr == nil {
		return result, nil
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
	} else {
		result.ExitCode = -1
	}
	return result, runErr
}

func formatCommand(name string, args []string) string {
	return strings.TrimSpace(name + " " + strings.Join(args, " "))
}

func emitLog(cb func(log CommandLog), log CommandLog) {
	if cb != nil {
		cb(log)
	}
}

func emitStage(cb func(stage string), stage string) {
	if cb != nil {
		cb(stage)
	}
}
