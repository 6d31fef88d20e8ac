package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"evalgo.org/nodelink/internal/api"
	"evalgo.org/nodelink/internal/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	Long: `Start the panel-facing HTTP API.

It issues WebSocket session tokens to panel users and proxies power and file
listing calls to the node hosting each server.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	provider, err := metrics.NewProvider()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}
	defer func() { _ = provider.Shutdown(context.Background()) }()

	rec, err := metrics.NewRecorder(provider.MeterProvider(), "nodelink")
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}

	reg := newRegistry()
	server := api.New(cfg, newAuthority(reg, rec),
		api.WithMetrics(provider, rec),
		api.WithDaemonOptions(daemonOptions(rec)...),
		api.WithLogger(logger),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(),
		os.Interrupt,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		return nil

	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}
}
