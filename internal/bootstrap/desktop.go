package bootstrap

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"

	"video2article/internal/pipeline"
)

// JobEventName is the runtime event carrying every job event to the window.
const JobEventName = "job:event"

var articleDialogFilter = []wailsruntime.FileFilter{
	{DisplayName: "Text files", Pattern: "*.txt"},
	{DisplayName: "All files", Pattern: "*"},
}

var audioDialogFilter = []wailsruntime.FileFilter{
	{DisplayName: "Audio files", Pattern: "*.mp3;*.mp4"},
	{DisplayName: "All files", Pattern: "*"},
}

// RunDesktop starts the Wails window serving handler and binds backend methods.
func (a *App) RunDesktop(handler http.Handler) error {
	return wails.Run(&options.App{
		Title:     "Video to Article",
		Width:     1180,
		Height:    780,
		MinWidth:  720,
		MinHeight: 520,
		AssetServer: &assetserver.Options{
			Handler: handler,
		},
		OnStartup: a.Startup,
		OnShutdown: func(ctx context.Context) {
			a.mu.Lock()
			stop := a.stopPush
			a.runtimeCtx = nil
			a.stopPush = nil
			a.mu.Unlock()
			if stop != nil {
				stop()
			}
			if err := a.Shutdown(ctx); err != nil {
				a.logger.Warn("shutdown", "error", err)
			}
		},
		Bind: []interface{}{a},
	})
}

// Startup stores the Wails runtime context and starts pushing job events to the window.
func (a *App) Startup(ctx context.Context) {
	events, stop := a.events.Subscribe(256)

	a.mu.Lock()
	a.runtimeCtx = ctx
	a.stopPush = stop
	a.mu.Unlock()

	go func() {
		for event := range events {
			wailsruntime.EventsEmit(ctx, JobEventName, event)
		}
	}()
}

// SaveArticleAs asks for a destination and writes the rendered article there.
// An empty path means the dialog was dismissed.
func (a *App) SaveArticleAs(jobID string) (string, error) {
	text, err := a.ArticleText(jobID)
	if err != nil {
		return "", err
	}

	target, err := a.saveDialog("Save article", pipeline.ArticleFileName, articleDialogFilter)
	if err != nil || target == "" {
		return "", err
	}
	if err := os.WriteFile(target, []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("write article: %w", err)
	}
	return target, nil
}

// SaveAudioAs asks for a destination and copies the extracted audio there.
func (a *App) SaveAudioAs(jobID string) (string, error) {
	source, err := a.AudioFile(jobID)
	if err != nil {
		return "", err
	}

	target, err := a.saveDialog("Save audio", filepath.Base(source), audioDialogFilter)
	if err != nil || target == "" {
		return "", err
	}
	if err := copyFile(source, target); err != nil {
		return "", err
	}
	return target, nil
}

// OpenArtifactsFolder opens the directory holding the job's audio and article.
func (a *App) OpenArtifactsFolder(jobID string) error {
	audio, err := a.AudioFile(jobID)
	if err != nil {
		return err
	}
	return openInFileManager(filepath.Dir(audio))
}

func (a *App) saveDialog(title, defaultName string, filters []wailsruntime.FileFilter) (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.SaveFileDialog(ctx, wailsruntime.SaveDialogOptions{
		Title:           title,
		DefaultFilename: defaultName,
		Filters:         filters,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(path), nil
}

// runtimeContext returns current Wails runtime context for dialog APIs.
func (a *App) runtimeContext() (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runtimeCtx == nil {
		return nil, fmt.Errorf("runtime context is not initialized")
	}
	return a.runtimeCtx, nil
}

func copyFile(source, target string) error {
	in, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("open audio: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy audio: %w", err)
	}
	return out.Close()
}

// openInFileManager launches the platform file explorer for the provided path.
func openInFileManager(path string) error {
	var cmd *exec.Cmd
	switch goruntime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", filepath.Clean(path))
	default:
		cmd = exec.Command("xdg-open", path)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch file manager: %w", err)
	}
	return nil
}
