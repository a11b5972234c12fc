package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner simulates command execution order and outcomes.
type fakeRunner struct {
	run   func(ctx context.Context, name string, args ...string) (commandResult, error)
	calls [][]string
}

// Run records the call and delegates to injected behavior.
func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.run == nil {
		return commandResult{}, nil
	}
	return f.run(ctx, name, args...)
}

// fakeInstaller counts install attempts and returns a fixed error.
type fakeInstaller struct {
	err   error
	calls int
	after func()
}

// Install records the attempt.
func (f *fakeInstaller) Install(context.Context) error {
	f.calls++
	if f.after != nil {
		f.after()
	}
	return f.err
}

func newTestFetcher(t *testing.T, runner *fakeRunner, installer Installer) (*Fetcher, *string) {
	t.Helper()
	var tempDir string
	fetcher := NewFetcherForTests(
		"yt-dlp-custom",
		runner,
		installer,
		func(string, string) (string, error) {
			tempDir = t.TempDir()
			return tempDir, nil
		},
		os.RemoveAll,
	)
	return fetcher, &tempDir
}

// TestFetchPrimaryStrategy checks title lookup and the primary mp3 extraction.
func TestFetchPrimaryStrategy(t *testing.T) {
	runner := &fakeRunner{}
	runner.run = func(ctx context.Context, name string, args ...string) (commandResult, error) {
		assert.Equal(t, "yt-dlp-custom", name)
		switch args[0] {
		case "--version":
			return commandResult{Stdout: "2025.01.01"}, nil
		case "--get-title":
			return commandResult{Stdout: "My Video: Part 1/2\n"}, nil
		case "-x":
			template := argValue(args, "-o")
			mustWriteFile(t, filepath.Join(filepath.Dir(template), "My Video_ Part 1_2.mp3"), "mp3")
			return commandResult{}, nil
		}
		t.Fatalf("unexpected args: %v", args)
		return commandResult{}, nil
	}

	fetcher, tempDir := newTestFetcher(t, runner, nil)
	var stages []string
	var logs []CommandLog
	result, err := fetcher.Fetch(context.Background(), Request{
		URL:     "https://www.youtube.com/watch?v=abc",
		OnStage: func(stage string) { stages = append(stages, stage) },
		OnLog:   func(log CommandLog) { logs = append(logs, log) },
	})
	require.NoError(t, err)

	assert.Equal(t, "My Video: Part 1/2", result.Title)
	assert.Equal(t, filepath.Join(*tempDir, "My Video_ Part 1_2.mp3"), result.AudioPath)
	assert.Equal(t, *tempDir, result.Dir())
	assert.Equal(t, []string{StageResolving, StageDownloading}, stages)
	assert.Len(t, logs, 3)
	assert.Len(t, result.Logs, 3)

	primary := runner.calls[2]
	assert.Equal(t, filepath.Join(*tempDir, "My Video_ Part 1_2.%(ext)s"), argValue(primary[1:], "-o"))
	assert.Equal(t, "mp3", argValue(primary[1:], "--audio-format"))

	require.NoError(t, result.Cleanup())
	_, statErr := os.Stat(*tempDir)
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
}

// TestFetchFallbackStrategy checks the alternative configuration after an empty primary run.
func TestFetchFallbackStrategy(t *testing.T) {
	runner := &fakeRunner{}
	runner.run = func(ctx context.Context, name string, args ...string) (commandResult, error) {
		switch args[0] {
		case "--get-title":
			return commandResult{Stdout: "Title"}, nil
		case "-f":
			assert.Equal(t, "bestaudio", args[1])
			assert.Equal(t, "0", argValue(args, "--audio-quality"))
			mustWriteFile(t, argValue(args, "-o"), "mp3")
		}
		return commandResult{}, nil
	}

	fetcher, tempDir := newTestFetcher(t, runner, nil)
	var stages []string
	result, err := fetcher.Fetch(context.Background(), Request{
		URL:     "https://example.com/v",
		OnStage: func(stage string) { stages = append(stages, stage) },
	})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(*tempDir, "audio.mp3"), result.AudioPath)
	assert.Contains(t, stages, StageRetrying)
}

// TestFetchFallbackScansForAcceptedExtensions checks the final directory scan.
func TestFetchFallbackScansForAcceptedExtensions(t *testing.T) {
	runner := &fakeRunner{}
	runner.run = func(ctx context.Context, name string, args ...string) (commandResult, error) {
		switch args[0] {
		case "--get-title":
			return commandResult{Stdout: "Title"}, nil
		case "-f":
			out := argValue(args, "-o")
			mustWriteFile(t, filepath.Join(filepath.Dir(out), "audio.mp4"), "mp4")
		}
		return commandResult{}, nil
	}

	fetcher, tempDir := newTestFetcher(t, runner, nil)
	result, err := fetcher.Fetch(context.Background(), Request{URL: "https://example.com/v"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(*tempDir, "audio.mp4"), result.AudioPath)
}

// TestFetchNoAudioAfterBothStrategies checks the file-discovery failure and cleanup.
func TestFetchNoAudioAfterBothStrategies(t *testing.T) {
	runner := &fakeRunner{}
	runner.run = func(ctx context.Context, name string, args ...string) (commandResult, error) {
		if args[0] == "--get-title" {
			return commandResult{Stdout: "Title"}, nil
		}
		if args[0] == "-f" {
			out := argValue(args, "-o")
			mustWriteFile(t, filepath.Join(filepath.Dir(out), "audio.webm"), "webm")
		}
		return commandResult{}, nil
	}

	fetcher, tempDir := newTestFetcher(t, runner, nil)
	result, err := fetcher.Fetch(context.Background(), Request{URL: "https://example.com/v"})
	require.ErrorIs(t, err, ErrAudioNotFound)
	assert.Empty(t, result.AudioPath)

	_, statErr := os.Stat(*tempDir)
	assert.True(t, errors.Is(statErr, os.ErrNotExist), "temp dir should be removed")
}

// TestFetchPrimaryFailureIsHard checks a non-zero exit stops the fetch.
func TestFetchPrimaryFailureIsHard(t *testing.T) {
	runner := &fakeRunner{}
	runner.run = func(ctx context.Context, name string, args ...string) (commandResult, error) {
		switch args[0] {
		case "--get-title":
			return commandResult{Stdout: "Title"}, nil
		case "-x":
			return commandResult{Stderr: "ERROR: unavailable", ExitCode: 1}, errors.New("exit status 1")
		}
		return commandResult{}, nil
	}

	fetcher, _ := newTestFetcher(t, runner, nil)
	_, err := fetcher.Fetch(context.Background(), Request{URL: "https://example.com/v"})
	require.Error(t, err)

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, 1, cmdErr.Log.ExitCode)
	assert.Equal(t, "ERROR: unavailable", cmdErr.Log.Stderr)
	for _, call := range runner.calls {
		assert.NotEqual(t, "-f", call[1], "fallback must not run after a failed primary invocation")
	}
}

// TestFetchInstallsMissingDownloader checks the install side effect.
func TestFetchInstallsMissingDownloader(t *testing.T) {
	installed := false
	runner := &fakeRunner{}
	runner.run = func(ctx context.Context, name string, args ...string) (commandResult, error) {
		switch args[0] {
		case "--version":
			if !installed {
				return commandResult{ExitCode: -1}, errors.New("executable file not found")
			}
		case "--get-title":
			return commandResult{Stdout: "Title"}, nil
		case "-x":
			mustWriteFile(t, filepath.Join(filepath.Dir(argValue(args, "-o")), "Title.mp3"), "mp3")
		}
		return commandResult{}, nil
	}
	installer := &fakeInstaller{after: func() { installed = true }}

	fetcher, _ := newTestFetcher(t, runner, installer)
	var stages []string
	_, err := fetcher.Fetch(context.Background(), Request{
		URL:     "https://example.com/v",
		OnStage: func(stage string) { stages = append(stages, stage) },
	})
	require.NoError(t, err)
	assert.Equal(t, 1, installer.calls)
	assert.Equal(t, StageInstalling, stages[0])
}

// TestFetchDownloaderUnavailable checks the tool-availability failure.
func TestFetchDownloaderUnavailable(t *testing.T) {
	runner := &fakeRunner{run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
		return commandResult{ExitCode: -1}, errors.New("executable file not found")
	}}
	installer := &fakeInstaller{err: errors.New("no supported package manager")}

	fetcher, _ := newTestFetcher(t, runner, installer)
	_, err := fetcher.Fetch(context.Background(), Request{URL: "https://example.com/v"})
	require.ErrorIs(t, err, ErrDownloaderUnavailable)
	assert.Contains(t, err.Error(), "no supported package manager")
	assert.Len(t, runner.calls, 1)

	fetcher, _ = newTestFetcher(t, runner, nil)
	_, err = fetcher.Fetch(context.Background(), Request{URL: "https://example.com/v"})
	require.ErrorIs(t, err, ErrDownloaderUnavailable)
}

// TestFetchEmptyURL checks input validation happens before any command runs.
func TestFetchEmptyURL(t *testing.T) {
	runner := &fakeRunner{}
	fetcher, _ := newTestFetcher(t, runner, nil)
	_, err := fetcher.Fetch(context.Background(), Request{URL: "  "})
	require.ErrorIs(t, err, ErrEmptyURL)
	assert.Empty(t, runner.calls)
}

// TestFetchCancelled checks context cancellation is reported as such.
func TestFetchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	runner := &fakeRunner{run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
		if args[0] == "--get-title" {
			cancel()
			return commandResult{ExitCode: -1}, errors.New("signal: killed")
		}
		return commandResult{}, nil
	}}

	fetcher, _ := newTestFetcher(t, runner, nil)
	_, err := fetcher.Fetch(ctx, Request{URL: "https://example.com/v"})
	require.ErrorIs(t, err, context.Canceled)
}

func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func argValue(args []string, key string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == key {
			return args[i+1]
		}
	}
	return ""
}

// TestCommandLine checks the display form of a recorded command.
func TestCommandLine(t *testing.T) {
	log := CommandLog{Command: "yt-dlp", Args: []string{"--get-title", "https://example.com/v"}}
	assert.Equal(t, "yt-dlp --get-title https://example.com/v", log.CommandLine())
	assert.Equal(t, "yt-dlp", CommandLog{Command: "yt-dlp"}.CommandLine())
}
