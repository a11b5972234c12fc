package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"video2article/internal/config"
	"video2article/internal/server"
)

const shutdownTimeout = 15 * time.Second

func newServeCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the browser UI and JSON API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := opts.newApp(nil)
			if err != nil {
				return err
			}
			handler := server.New(app, server.Options{Logger: opts.logger})
			srv := &http.Server{
				Addr:              opts.settings.ListenAddr,
				Handler:           handler,
				ReadHeaderTimeout: 10 * time.Second,
			}
			return serve(cmd.Context(), opts, srv, app.Shutdown)
		},
	}
	cmd.Flags().String("listen", "", "listen address (default 127.0.0.1:8080)")
	_ = opts.v.BindPFlag(config.KeyListenAddr, cmd.Flags().Lookup("listen"))
	return cmd
}

// serve runs srv until ctx is cancelled, then drains requests and stops the app.
func serve(ctx context.Context, opts *globalOptions, srv *http.Server, shutdownApp func(context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		opts.printer.Success("Listening on http://%s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		opts.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return errors.Join(srv.Shutdown(shutdownCtx), shutdownApp(shutdownCtx))
	})

	return g.Wait()
}
