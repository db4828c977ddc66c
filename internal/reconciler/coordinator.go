// Package reconciler runs the expired resource group cleanup pass.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/yairfalse/sweeper/internal/audit"
	"github.com/yairfalse/sweeper/internal/filter"
	"github.com/yairfalse/sweeper/internal/plugin"
	"github.com/yairfalse/sweeper/pkg/resource"
)

// ErrPassInProgress is returned when Reconcile is called while a pass is running.
var ErrPassInProgress = errors.New("reconciliation pass already running")

// Metrics receives coordinator events. DaemonMetrics implements it.
type Metrics interface {
	RecordDispatch(ctx context.Context, err error)
	RecordCompletion(ctx context.Context, err error, elapsed time.Duration)
	RecordAuditFailure(ctx context.Context)
	RecordInFlight(ctx context.Context, count int)
}

type nopMetrics struct{}

func (nopMetrics) RecordDispatch(context.Context, error) {}
func (nopMetrics) RecordCompletion(context.Context, error, time.Duration) {}
func (nopMetrics) RecordAuditFailure(context.Context) {}
func (nopMetrics) RecordInFlight(context.Context, int) {}

// Coordinator owns the in-flight set and runs one pass per call to Reconcile.
type Coordinator struct {
	directory plugin.Directory
	policy    *filter.Policy
	sink      audit.Sink
	inFlight  *InFlightSet
	metrics   Metrics
	tracer    trace.Tracer
	now       func() time.Time

	pass        sync.Mutex
	completions errgroup.Group
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithInFlight uses set instead of a fresh empty one.
func WithInFlight(set *InFlightSet) Option {
	return func(c *Coordinator) {
		if set != nil {
			c.inFlight = set
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m Metrics) Option {
	return func(c *Coordinator) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithTracer sets the tracer used for pass spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *Coordinator) {
		if t != nil {
			c.tracer = t
		}
	}
}

// New creates a Coordinator. Construct one per process.
func New(directory plugin.Directory, policy *filter.Policy, sink audit.Sink, opts ...Option) *Coordinator {
	c := &Coordinator{
		directory: directory,
		policy:    policy,
		sink:      sink,
		inFlight:  NewInFlightSet(),
		metrics:   nopMetrics{},
		tracer:    otel.Tracer("sweeper.reconciler"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// InFlight returns the coordinator's in-flight set.
func (c *Coordinator) InFlight() *InFlightSet {
	return c.inFlight
}

// Reconcile runs one pass: list eligible groups, delete the untracked ones
// without waiting, then prune tracked names missing from the listing.
// A listing failure aborts the pass before any state changes.
func (c *Coordinator) Reconcile(ctx context.Context) (resource.PassResult, error) {
	if !c.pass.TryLock() {
		return resource.PassResult{}, ErrPassInProgress
	}
	defer c.pass.Unlock()

	start := c.now()
	cutoff := c.policy.Cutoff(start)
	result := resource.PassResult{StartedAt: start, Cutoff: cutoff}

	ctx, span := c.tracer.Start(ctx, "reconciler.pass", trace.WithAttributes(
		attribute.String("directory", c.directory.Name()),
		attribute.String("expiration_tag", c.policy.TagName()),
	))
	defer span.End()

	groups, err := c.directory.ListGroups(ctx, c.policy.Predicate(cutoff))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list failed")
		return result, fmt.Errorf("list expired resource groups: %w", err)
	}
	result.Eligible = len(groups)

	listed := make(map[string]struct{}, len(groups))
	for _, g := range groups {
		listed[g.Name] = struct{}{}

		if c.inFlight.Contains(g.Name) {
			result.InFlight = append(result.InFlight, g.Name)
			continue
		}

		if c.dispatch(ctx, g) {
			result.Dispatched = append(result.Dispatched, g.Name)
		} else {
			result.Failed = append(result.Failed, g.Name)
		}
	}

	result.Pruned = c.inFlight.Retain(listed)
	result.Tracked = c.inFlight.Len()
	result.Duration = c.now().Sub(start)

	for _, name := range result.Pruned {
		log.Debug().Str("resource_group", name).Msg("no longer eligible, untracked")
	}
	c.metrics.RecordInFlight(ctx, result.Tracked)

	span.SetAttributes(
		attribute.Int("eligible", result.Eligible),
		attribute.Int("dispatched", len(result.Dispatched)),
		attribute.Int("failed", len(result.Failed)),
		attribute.Int("pruned", len(result.Pruned)),
	)

	return result, nil
}

// dispatch issues the delete for g, tracks it and appends its audit record.
// It reports false when the delete was rejected at dispatch.
func (c *Coordinator) dispatch(ctx context.Context, g resource.ResourceGroup) bool {
	rec := resource.NewDeletionRecord(g, c.now())

	deletion, err := c.directory.DeleteGroup(ctx, g.Name)
	c.metrics.RecordDispatch(ctx, err)
	if err != nil {
		log.Error().Ctx(ctx).
			Err(err).
			Str("resource_group", g.Name).
			Msg("delete dispatch failed")
		return false
	}

	c.inFlight.Add(g.Name)

	if err := c.sink.Append(ctx, rec); err != nil {
		c.metrics.RecordAuditFailure(ctx)
		log.Error().Ctx(ctx).
			Err(err).
			Str("resource_group", g.Name).
			Str("row_key", rec.RowKey).
			Msg("audit append failed")
	}

	log.Info().Ctx(ctx).
		Str("name", rec.Name).
		Time("removed_on", rec.RemovedOn).
		Msg("resource group deleted")

	c.observe(deletion)
	return true
}

// observe logs the outcome of a delete once it finishes. It never touches
// the in-flight set; tracking is driven by the listing alone.
func (c *Coordinator) observe(d *plugin.Deletion) {
	c.completions.Go(func() error {
		<-d.Done()
		elapsed := time.Since(d.IssuedAt)
		err := d.Err()
		c.metrics.RecordCompletion(context.Background(), err, elapsed)

		if err != nil {
			log.Warn().Err(err).Str("resource_group", d.Name).Dur("elapsed", elapsed).Msg("delete did not complete")
			return nil
		}
		log.Debug().Str("resource_group", d.Name).Dur("elapsed", elapsed).Msg("delete completed")
		return nil
	})
}

// Wait blocks until every observed delete has finished or ctx is done.
// Call it only after the last Reconcile has returned.
func (c *Coordinator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		_ = c.completions.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
