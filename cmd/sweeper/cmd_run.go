package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/yairfalse/sweeper/internal/daemon"
)

var (
	runImmediately  bool
	shutdownTimeout time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the cleanup daemon",
	Long: `Run sweeper as a daemon. A cleanup pass runs on every tick of
TimerExpression; overlapping ticks are skipped.

Features:
- Prometheus metrics on /metrics
- Health checks on /health, /-/healthy, /-/ready
- Graceful shutdown on SIGTERM/SIGINT`,
	Example: `  sweeper run                          # Run with environment configuration
  sweeper run --config sweeper.toml    # Add settings from a file
  sweeper run --dry-run --now          # Log what would be deleted, starting now`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&runImmediately, "now", false, "Run a pass at startup instead of waiting for the first tick")
	runCmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 30*time.Second, "How long to wait for running work at shutdown")
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			log.Warn().Err(err).Msg("shutdown")
		}
	}()

	d, err := daemon.NewDaemon(daemon.Config{
		Schedule:        cfg.Cleanup.TimerExpression,
		Addr:            cfg.Server.Addr,
		RunOnStart:      runImmediately,
		ShutdownTimeout: shutdownTimeout,
	}, a.coordinator,
		daemon.WithMetrics(a.metrics),
		daemon.WithMetricsHandler(a.telemetry.MetricsHandler()),
	)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}

	log.Info().
		Str("version", version).
		Str("subscription", cfg.Azure.SubscriptionID).
		Str("tag", cfg.Cleanup.ExpirationTag).
		Str("schedule", cfg.Cleanup.TimerExpression).
		Bool("dry_run", cfg.DryRun).
		Msg("sweeper starting")

	var g run.Group
	{
		daemonCtx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			return d.Start(daemonCtx)
		}, func(error) {
			cancel()
		})
	}
	g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))

	err = g.Run()
	var sig run.SignalError
	if errors.As(err, &sig) {
		log.Info().Str("signal", sig.Signal.String()).Msg("daemon stopped")
		return nil
	}
	return err
}
