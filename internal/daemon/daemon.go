// Package daemon runs reconciliation passes on a cron schedule and serves
// health and metrics endpoints.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/yairfalse/sweeper/internal/config"
	"github.com/yairfalse/sweeper/pkg/resource"
)

const defaultShutdownTimeout = 30 * time.Second

// Config holds daemon configuration
type Config struct {
	Schedule        string        // Cron expression, see config.ScheduleParser
	Addr            string        // Listen address for /metrics and health
	RunOnStart      bool          // Run a pass immediately instead of waiting for the first tick
	ShutdownTimeout time.Duration // Bound on draining in-flight work at shutdown
}

// Reconciler runs one cleanup pass per call. *reconciler.Coordinator implements it.
type Reconciler interface {
	Reconcile(ctx context.Context) (resource.PassResult, error)
	Wait(ctx context.Context) error
}

// Option configures a Daemon.
type Option func(*Daemon)

// WithMetrics records pass metrics to m.
func WithMetrics(m *DaemonMetrics) Option {
	return func(d *Daemon) {
		d.metrics = m
	}
}

// WithMetricsHandler serves h on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(d *Daemon) {
		d.metricsHandler = h
	}
}

// Daemon manages scheduled reconciliation
type Daemon struct {
	cfg            Config
	schedule       cron.Schedule
	reconciler     Reconciler
	metrics        *DaemonMetrics
	metricsHandler http.Handler

	startTime time.Time
	port      atomic.Int64
	ready     atomic.Bool

	running  sync.Mutex
	ticks    sync.WaitGroup
	passes   atomic.Int64
	failures atomic.Int64
	skipped  atomic.Int64
	last     atomic.Pointer[passStatus]
}

type passStatus struct {
	At       time.Time
	Duration time.Duration
	Result   resource.PassResult
	Err      error
}

// NewDaemon creates a new daemon instance
func NewDaemon(cfg Config, r Reconciler, opts ...Option) (*Daemon, error) {
	schedule, err := config.ScheduleParser.Parse(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", cfg.Schedule, err)
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}

	d := &Daemon{
		cfg:        cfg,
		schedule:   schedule,
		reconciler: r,
		startTime:  time.Now(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Start serves HTTP and runs passes on schedule until ctx is done, then
// stops the scheduler, waits for the running pass and drains deletes.
func (d *Daemon) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", d.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", d.cfg.Addr, err)
	}
	if addr, ok := ln.Addr().(*net.TCPAddr); ok {
		d.port.Store(int64(addr.Port))
	}

	server := &http.Server{
		Handler:           d.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", ln.Addr().String()).Msg("starting metrics server")
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server error")
		}
	}()

	c := cron.New(
		cron.WithParser(config.ScheduleParser),
		cron.WithChain(cron.Recover(cronLogger{})),
		cron.WithLogger(cronLogger{}),
	)
	c.Schedule(d.schedule, cron.FuncJob(func() { d.tick(ctx) }))
	c.Start()
	d.ready.Store(true)

	log.Info().
		Str("schedule", d.cfg.Schedule).
		Time("next_run", d.schedule.Next(time.Now())).
		Msg("scheduler started")

	if d.cfg.RunOnStart {
		d.ticks.Add(1)
		go func() {
			defer d.ticks.Done()
			d.tick(ctx)
		}()
	}

	<-ctx.Done()
	d.ready.Store(false)
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), d.cfg.ShutdownTimeout)
	defer cancel()

	select {
	case <-c.Stop().Done():
	case <-shutdownCtx.Done():
		log.Warn().Msg("timed out waiting for running pass")
	}
	d.ticks.Wait()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("metrics server shutdown")
	}

	if err := d.reconciler.Wait(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("stopped before all deletes completed")
	}

	return nil
}

// tick runs one pass unless the previous one is still running.
func (d *Daemon) tick(ctx context.Context) {
	if !d.running.TryLock() {
		d.skipped.Add(1)
		if d.metrics != nil {
			d.metrics.RecordSkippedTick(ctx)
		}
		log.Warn().Msg("previous pass still running, skipping tick")
		return
	}
	defer d.running.Unlock()

	if ctx.Err() != nil {
		return
	}

	d.passes.Add(1)
	start := time.Now()
	result, err := d.reconciler.Reconcile(ctx)
	elapsed := time.Since(start)

	d.last.Store(&passStatus{At: start, Duration: elapsed, Result: result, Err: err})

	status := statusSuccess
	if err != nil {
		status = statusError
		d.failures.Add(1)
		log.Error().Err(err).Dur("duration", elapsed).Msg("reconciliation pass failed")
	} else {
		log.Info().
			Int("eligible", result.Eligible).
			Int("dispatched", len(result.Dispatched)).
			Int("in_flight", len(result.InFlight)).
			Int("failed", len(result.Failed)).
			Int("pruned", len(result.Pruned)).
			Int("tracked", result.Tracked).
			Dur("duration", elapsed).
			Msg("reconciliation pass complete")
	}

	if d.metrics != nil {
		d.metrics.RecordPass(ctx, status, result, elapsed)
	}
}

func (d *Daemon) routes() http.Handler {
	mux := http.NewServeMux()
	if d.metricsHandler != nil {
		mux.Handle("/metrics", d.metricsHandler)
	}
	mux.HandleFunc("/health", d.handleHealth)
	mux.HandleFunc("/-/healthy", d.handleHealth)
	mux.HandleFunc("/-/ready", d.handleReady)
	return mux
}

func (d *Daemon) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(d.Health())
}

func (d *Daemon) handleReady(w http.ResponseWriter, _ *http.Request) {
	if !d.ready.Load() {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	_, _ = w.Write([]byte("ok\n"))
}

// HealthStatus represents daemon health
type HealthStatus struct {
	Status    string    `json:"status"`
	Uptime    int64     `json:"uptime_seconds"`
	Passes    int64     `json:"passes"`
	Failures  int64     `json:"failures"`
	Skipped   int64     `json:"skipped_ticks"`
	LastPass  time.Time `json:"last_pass,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	Tracked   int       `json:"tracked"`
}

// Health returns daemon health status. A failed last pass reports "degraded".
func (d *Daemon) Health() HealthStatus {
	h := HealthStatus{
		Status:   "healthy",
		Uptime:   int64(time.Since(d.startTime).Seconds()),
		Passes:   d.passes.Load(),
		Failures: d.failures.Load(),
		Skipped:  d.skipped.Load(),
	}
	if last := d.last.Load(); last != nil {
		h.LastPass = last.At
		h.Tracked = last.Result.Tracked
		if last.Err != nil {
			h.Status = "degraded"
			h.LastError = last.Err.Error()
		}
	}
	return h
}

// PassCount returns total passes run
func (d *Daemon) PassCount() int64 {
	return d.passes.Load()
}

// MetricsPort returns the bound HTTP port, or 0 before Start.
func (d *Daemon) MetricsPort() int {
	return int(d.port.Load())
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
