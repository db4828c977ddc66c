package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/yairfalse/sweeper/internal/audit"
	"github.com/yairfalse/sweeper/internal/config"
	"github.com/yairfalse/sweeper/internal/daemon"
	"github.com/yairfalse/sweeper/internal/filter"
	"github.com/yairfalse/sweeper/internal/plugin"
	"github.com/yairfalse/sweeper/internal/plugin/azure"
	"github.com/yairfalse/sweeper/internal/reconciler"
	"github.com/yairfalse/sweeper/internal/telemetry"
)

// app holds the components shared by the run and once commands.
type app struct {
	cfg         *config.Config
	telemetry   *telemetry.Provider
	metrics     *daemon.DaemonMetrics
	sink        audit.Sink
	coordinator *reconciler.Coordinator
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dryRun {
		cfg.DryRun = true
	}
	return cfg, nil
}

// newApp validates cfg, configures logging and connects to Azure.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := telemetry.SetupLogging(cfg.Log, debug); err != nil {
		return nil, err
	}

	client, err := azure.New(azure.Config{
		TenantID:       cfg.Azure.TenantID,
		ClientID:       cfg.Azure.ClientID,
		ClientSecret:   cfg.Azure.ClientSecret,
		SubscriptionID: cfg.Azure.SubscriptionID,
		PollFrequency:  cfg.Azure.PollInterval,
	})
	if err != nil {
		return nil, err
	}

	var dir plugin.Directory = client
	if cfg.DryRun {
		dir = plugin.NewDryRun(client)
	}
	return assemble(ctx, cfg, dir)
}

// assemble wires telemetry, the audit sink and the coordinator around dir.
func assemble(ctx context.Context, cfg *config.Config, dir plugin.Directory) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	tp, err := telemetry.NewProvider(ctx, cfg.OTEL)
	if err != nil {
		return nil, fmt.Errorf("setup telemetry: %w", err)
	}

	metrics, err := daemon.NewDaemonMetrics(tp.Meter())
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, fmt.Errorf("create metrics: %w", err)
	}

	sink, err := newSink(ctx, cfg)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, err
	}

	policy := filter.New(cfg.Cleanup.ExpirationTag,
		filter.WithProtectTag(cfg.Cleanup.ProtectTag),
		filter.WithLocation(loc),
	)

	coordinator := reconciler.New(dir, policy, sink,
		reconciler.WithInFlight(reconciler.NewInFlightSet()),
		reconciler.WithMetrics(metrics),
		reconciler.WithTracer(tp.Tracer()),
	)

	return &app{
		cfg:         cfg,
		telemetry:   tp,
		metrics:     metrics,
		sink:        sink,
		coordinator: coordinator,
	}, nil
}

// newSink opens the configured audit destinations. Dry runs record nothing.
func newSink(ctx context.Context, cfg *config.Config) (audit.Sink, error) {
	if cfg.DryRun {
		return audit.Discard, nil
	}

	var sinks []audit.Sink
	closeAll := func() {
		for _, s := range sinks {
			_ = s.Close()
		}
	}

	if cfg.Audit.ConnectionString != "" {
		table, err := audit.NewTableSink(ctx, cfg.Audit.ConnectionString, cfg.Audit.Table)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, table)
	}

	if cfg.Audit.LocalPath != "" {
		local, err := audit.OpenBolt(cfg.Audit.LocalPath)
		if err != nil {
			closeAll()
			return nil, err
		}
		sinks = append(sinks, local)
	}

	switch len(sinks) {
	case 0:
		return nil, errors.New("no audit sink configured")
	case 1:
		return sinks[0], nil
	default:
		return audit.NewMultiSink(sinks...), nil
	}
}

// Close releases the audit sink and flushes telemetry.
func (a *app) Close(ctx context.Context) error {
	return errors.Join(
		a.sink.Close(),
		a.telemetry.Shutdown(ctx),
	)
}
