package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackmichael/species-poster/internal/httpserver"
	"github.com/blackmichael/species-poster/internal/scheduler"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Post on a cron schedule and serve /health and /status.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Set up graceful shutdown
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			a, err := open(ctx, true)
			if err != nil {
				return err
			}
			defer a.Close()
			logger := a.logger

			pipeline, err := a.pipeline(false)
			if err != nil {
				return err
			}

			sched, err := scheduler.New(a.cfg.Scheduler.Cron, a.cfg.Scheduler.Location(), func(ctx context.Context) error {
				_, err := pipeline.Run(ctx)
				return err
			}, logger.With("component", "scheduler"))
			if err != nil {
				return err
			}
			sched.Start(ctx)

			// Start the HTTP server
			server := httpserver.NewServer(a.cfg.Server.Port, a.repo, sched, logger.With("component", "http"))
			go func() {
				if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("http server exited with error", "error", err)
				}
			}()

			logger.Info("server started", "port", a.cfg.Server.Port, "schedule", a.cfg.Scheduler.Cron)

			// Wait for shutdown signal
			select {
			case sig := <-sigCh:
				logger.Info("received signal, shutting down", "signal", sig)
			case <-ctx.Done():
			}
			cancel()

			shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
			defer done()

			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Error("error shutting down http server", "error", err)
			}
			sched.Stop(shutdownCtx)

			return nil
		},
	}
}
