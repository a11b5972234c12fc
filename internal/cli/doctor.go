package cli

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"video2article/internal/domain"
)

const fixTimeout = 30 * time.Minute

// errChecksFailed makes doctor exit non-zero without printing a second message.
var errChecksFailed = errors.New("one or more checks failed")

func newDoctorCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the downloader, ffmpeg, work directory and API key",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			app, err := opts.newApp(nil)
			if err != nil {
				return err
			}
			return printReport(opts, app.RefreshDiagnostics())
		},
	}
}

func newFixCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "fix ID",
		Short: "Install or repair one diagnostic item",
		Long:  "Install or repair one item reported by doctor, e.g. tool_downloader, tool_ffmpeg or work_dir.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.newApp(nil)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), fixTimeout)
			defer cancel()

			opts.printer.Info("Fixing %s...", args[0])
			report, fixErr := app.FixDiagnostic(ctx, args[0])
			if fixErr != nil {
				opts.printer.Error("%v", fixErr)
			}
			if err := printReport(opts, report); err != nil && fixErr == nil {
				return err
			}
			if fixErr != nil {
				return errChecksFailed
			}
			return nil
		},
	}
}

func printReport(opts *globalOptions, report domain.DiagnosticReport) error {
	if err := opts.printer.Diagnostics(report); err != nil {
		return err
	}
	if report.HasFailures {
		opts.printer.Warning("Some checks failed")
		return errChecksFailed
	}
	opts.printer.Success("All checks passed")
	return nil
}
