package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"video2article/internal/config"
	"video2article/internal/domain"
	"video2article/internal/jobs"
	"video2article/internal/transcription"
)

// conversionApp is the part of the application convert drives.
type conversionApp interface {
	StartConversion(sourceURL string) (domain.Job, error)
	CancelConversion() error
	SubscribeEvents(buffer int) (<-chan jobs.Event, func())
	Wait(ctx context.Context) error
	CurrentJob() domain.Job
	Result(jobID string) (domain.Conversion, error)
	ArticleText(jobID string) (string, error)
	AudioFile(jobID string) (string, error)
	Shutdown(ctx context.Context) error
}

type convertOptions struct {
	articleOut string
	audioOut   string
	transcript bool
}

func newConvertCommand(opts *globalOptions) *cobra.Command {
	var co convertOptions
	cmd := &cobra.Command{
		Use:   "convert URL",
		Short: "Convert one video and print or save the article",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.newApp(opts.promptAPIKey)
			if err != nil {
				return err
			}
			// ask before downloading anything
			if _, err := app.Credentials.APIKey(cmd.Context()); err != nil {
				return fmt.Errorf("%w: set %s or run in a terminal", err, config.APIKeyEnv)
			}
			return runConvert(cmd.Context(), opts, app, args[0], co)
		},
	}
	cmd.Flags().StringVarP(&co.articleOut, "output", "o", "", "write the article to this file instead of stdout")
	cmd.Flags().StringVar(&co.audioOut, "audio-out", "", "keep a copy of the extracted audio at this path")
	cmd.Flags().BoolVar(&co.transcript, "transcript", false, "print the raw transcript after the article")
	return cmd
}

// promptAPIKey reads the key from the terminal without echoing it.
func (o *globalOptions) promptAPIKey(context.Context) (string, error) {
	f, ok := o.stdin.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return "", transcription.ErrCredentialRequired
	}
	fmt.Fprint(o.stderr, "Speech-to-text API key: ")
	key, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(o.stderr)
	if err != nil {
		return "", fmt.Errorf("read API key: %w", err)
	}
	return string(key), nil
}

// runConvert starts one job, follows its events and writes the outputs.
func runConvert(ctx context.Context, opts *globalOptions, app conversionApp, sourceURL string, co convertOptions) error {
	events, unsubscribe := app.SubscribeEvents(256)
	defer unsubscribe()
	defer func() {
		if err := app.Shutdown(context.Background()); err != nil {
			opts.logger.Warn("remove job artifacts", "error", err)
		}
	}()

	job, err := app.StartConversion(sourceURL)
	if err != nil {
		return err
	}
	opts.printer.Info("Converting %s", job.SourceURL)

	final, err := follow(ctx, opts, app, job.ID, events)
	if err != nil {
		return err
	}

	switch final.Status {
	case domain.JobStatusDone:
	case domain.JobStatusCancelled:
		return context.Canceled
	default:
		return fmt.Errorf("conversion %s", final.Status)
	}

	return writeOutputs(opts, app, job.ID, co)
}

// follow prints events for jobID until the job settles and returns its final state.
func follow(ctx context.Context, opts *globalOptions, app conversionApp, jobID string, events <-chan jobs.Event) (domain.Job, error) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = app.Wait(context.Background())
	}()

	cancelled := false
	for {
		select {
		case event, ok := <-events:
			if !ok {
				<-done
				return app.CurrentJob(), nil
			}
			if event.JobID == jobID {
				printEvent(opts, event)
			}
		case <-ctx.Done():
			if !cancelled {
				cancelled = true
				opts.printer.Warning("Cancelling...")
				if err := app.CancelConversion(); err != nil && !errors.Is(err, jobs.ErrNoRunningJob) {
					return domain.Job{}, err
				}
			}
			ctx = context.Background()
		case <-done:
			drain(opts, jobID, events)
			return app.CurrentJob(), nil
		}
	}
}

func drain(opts *globalOptions, jobID string, events <-chan jobs.Event) {
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if event.JobID == jobID {
				printEvent(opts, event)
			}
		default:
			return
		}
	}
}

func printEvent(opts *globalOptions, event jobs.Event) {
	p := opts.printer
	switch event.Type {
	case jobs.EventTypeProgress:
		p.Info("  %s", event.Message)
	case jobs.EventTypeLog:
		line := strings.TrimSpace(event.Command + " " + strings.Join(event.Args, " "))
		opts.logger.Debug(event.Message, "command", line, "exit_code", event.ExitCode)
		if event.ExitCode != 0 {
			p.Warning("%s (exit %d)", line, event.ExitCode)
			if stderr := strings.TrimSpace(event.Stderr); stderr != "" {
				p.Print("%s", p.Dim(stderr))
			}
		}
	case jobs.EventTypeError:
		p.Error("%s [%s]", event.Message, event.ErrorKind)
		if event.Payload != "" {
			p.Print("%s", p.Dim(event.Payload))
		}
	case jobs.EventTypeResult:
		p.Success("%s", event.Message)
	case jobs.EventTypeStatus:
		if event.Status == domain.JobStatusCancelled {
			p.Warning("Cancelled")
		}
	}
}

func writeOutputs(opts *globalOptions, app conversionApp, jobID string, co convertOptions) error {
	conversion, err := app.Result(jobID)
	if err != nil {
		return err
	}
	text, err := app.ArticleText(jobID)
	if err != nil {
		return err
	}

	if co.articleOut == "" {
		fmt.Fprint(opts.stdout, text)
	} else {
		if err := os.WriteFile(co.articleOut, []byte(text), 0o644); err != nil {
			return fmt.Errorf("write article: %w", err)
		}
		opts.printer.Success("Article saved to %s (%d sections)", co.articleOut, len(conversion.Article.Sections))
	}

	if co.transcript {
		fmt.Fprintf(opts.stdout, "\nTranscript\n%s\n", conversion.Transcript)
	}

	if co.audioOut != "" {
		source, err := app.AudioFile(jobID)
		if err != nil {
			return err
		}
		target := co.audioOut
		if info, err := os.Stat(target); err == nil && info.IsDir() {
			target = filepath.Join(target, filepath.Base(source))
		}
		if err := copyFile(source, target); err != nil {
			return fmt.Errorf("save audio: %w", err)
		}
		opts.printer.Success("Audio saved to %s (%s)", target, humanize.Bytes(uint64(conversion.Audio.SizeBytes)))
	}
	return nil
}

func copyFile(source, target string) error {
	in, err := os.Open(source)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
