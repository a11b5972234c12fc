package cli

import (
	"github.com/spf13/cobra"

	"video2article/internal/server"
)

func newDesktopCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "desktop",
		Short: "Open the native desktop window",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runDesktop(opts)
		},
	}
}

// runDesktop serves the same UI inside a Wails window.
func runDesktop(opts *globalOptions) error {
	app, err := opts.newApp(nil)
	if err != nil {
		return err
	}
	return app.RunDesktop(server.New(app, server.Options{Logger: opts.logger}))
}

// RunDesktop starts the desktop window with default configuration.
func RunDesktop() error {
	root := NewRootCommand()
	root.SetArgs([]string{"desktop"})
	return root.Execute()
}
