// Package cli implements the video2article command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"video2article/internal/bootstrap"
	"video2article/internal/config"
	"video2article/internal/domain"
	"video2article/internal/output"
	"video2article/internal/transcription"
)

var version = "dev"

// SetVersion sets the version string reported by the CLI.
func SetVersion(v string) {
	version = v
}

// globalOptions holds persistent flags and what PersistentPreRunE resolved from them.
type globalOptions struct {
	v         *viper.Viper
	colorMode string
	quiet     bool
	settings  domain.Settings
	store     config.Store
	logger    *slog.Logger
	printer   *output.Printer
	stdin     io.Reader
	stdout    io.Writer
	stderr    io.Writer
}

// NewRootCommand builds the command tree with fresh flag and config state.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&globalOptions{
		v:      viper.New(),
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
	})
}

func newRootCommand(opts *globalOptions) *cobra.Command {
	root := &cobra.Command{
		Use:   "video2article",
		Short: "Turn an online video into a transcribed, sectioned article",
		Long: `video2article downloads the audio track of a video with yt-dlp, transcribes it
with an AssemblyAI-compatible speech-to-text service and formats the transcript
into an article with an introduction, sections and a conclusion.

The API key is read from ASSEMBLYAI_API_KEY (or V2A_API_KEY), entered in the UI,
or prompted for. It is never written to disk.

Example usage:
  video2article serve                      # browser UI on 127.0.0.1:8080
  video2article desktop                    # native window
  video2article convert https://youtu.be/x # convert and print the article
  video2article doctor                     # check yt-dlp, ffmpeg and the key`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.init(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.colorMode, "color", "auto", "color output: auto, always, never")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "only print errors and results")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("language", "", "transcription language code")
	flags.String("downloader", "", "path to the yt-dlp executable")
	flags.String("work-dir", "", "directory receiving per-job download folders")
	flags.String("api-base-url", "", "speech-to-text API base URL")
	flags.Duration("poll-interval", 0, "delay between transcription status polls")
	flags.Duration("poll-timeout", 0, "maximum time to wait for a transcription")

	bindings := map[string]string{
		config.KeyLogLevel:       "log-level",
		config.KeyLanguage:       "language",
		config.KeyDownloaderPath: "downloader",
		config.KeyWorkDir:        "work-dir",
		config.KeyAPIBaseURL:     "api-base-url",
		config.KeyPollInterval:   "poll-interval",
		config.KeyPollTimeout:    "poll-timeout",
	}
	for key, flag := range bindings {
		_ = opts.v.BindPFlag(key, flags.Lookup(flag))
	}

	root.AddCommand(
		newServeCommand(opts),
		newDesktopCommand(opts),
		newConvertCommand(opts),
		newDoctorCommand(opts),
		newFixCommand(opts),
		newLanguagesCommand(opts),
	)
	return root
}

// Execute runs the CLI until it finishes or the process is interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCommand().ExecuteContext(ctx)
}

func (o *globalOptions) init(cmd *cobra.Command) error {
	mode, err := output.ParseColorMode(o.colorMode)
	if err != nil {
		return err
	}
	o.printer = output.NewPrinter(o.stdout, o.stderr, output.ResolveColors(mode, isTerminal(o.stdout)), o.quiet)

	if o.store == nil {
		o.store = config.NewJSONStore(config.SettingsPath())
	}
	settings, err := config.Load(o.v, o.store)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	o.settings = settings

	o.logger = slog.New(slog.NewTextHandler(o.stderr, &slog.HandlerOptions{
		Level: parseLevel(settings.LogLevel),
	}))
	o.logger.Debug("configuration loaded",
		"command", cmd.Name(),
		"language", settings.Language,
		"downloader", settings.DownloaderPath,
		"work_dir", settings.WorkDir,
		"api_key_set", settings.APIKey != "",
	)
	return nil
}

// newApp builds the application around credentials; prompt may be nil.
func (o *globalOptions) newApp(prompt transcription.PromptFunc) (*bootstrap.App, error) {
	return bootstrap.New(bootstrap.Options{
		Settings:    o.settings,
		Store:       o.store,
		Credentials: transcription.NewSessionCredentials(o.settings.APIKey, prompt),
		Logger:      o.logger,
	})
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
