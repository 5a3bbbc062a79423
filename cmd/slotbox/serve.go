package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/slotbox/config"
	"github.com/jpalmerr/slotbox/internal/server"
	"github.com/spf13/cobra"
)

const (
	shutdownTimeout = 10 * time.Second
)

// newLogger creates a JSON logger for CLI use.
func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// serveCmd starts the slotbox server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the slotbox server",
	Long: `Start the slotbox server.

The server will:
  - Load configuration from the specified YAML file
  - Build an empty channel table for the configured endpoint range
  - Serve the session API on the configured unix socket or TCP address

The server runs until interrupted (Ctrl+C) or receives SIGTERM. All stored
messages are released on shutdown.

Example:
  slotbox serve -c config.yaml
  slotbox serve --config /etc/slotbox/config.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = serveCmd.MarkFlagRequired("config")
}

func runServe(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := newLogger(cfg.SlogLevel())

	network, address, err := cfg.Network()
	if err != nil {
		return fmt.Errorf("invalid listen address: %w", err)
	}

	st, err := config.NewStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}

	logger.Info("config loaded",
		"buffer_size", cfg.BufferSize,
		"max_endpoints", cfg.MaxEndpoints,
		"max_sessions", cfg.MaxSessions,
		"max_slots", cfg.MaxSlots,
		"session_idle_timeout", cfg.SessionIdleTimeout.Duration().String(),
	)

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.NewServer(st, network, address, cfg.SessionIdleTimeout.Duration(), logger)
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	<-ctx.Done()

	// signal received, wait for graceful shutdown with timeout
	select {
	case <-srv.Done():
	case <-time.After(shutdownTimeout):
		logger.Warn("shutdown timed out",
			"timeout", shutdownTimeout.String(),
			"action", "forcing exit",
		)
		return nil
	}

	if err := st.Teardown(); err != nil {
		logger.Warn("teardown skipped", "error", err)
		return nil
	}
	logger.Info("shutdown complete")
	return nil
}
