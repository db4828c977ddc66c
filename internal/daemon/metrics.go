package daemon

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/yairfalse/sweeper/pkg/resource"
)

// DaemonMetrics holds operational metrics using OTEL semantic conventions.
// It implements reconciler.Metrics.
type DaemonMetrics struct {
	passes         metric.Int64Counter
	passDuration   metric.Float64Histogram
	eligibleGroups metric.Int64Gauge
	inFlightGroups metric.Int64Gauge
	deletes        metric.Int64Counter
	completions    metric.Int64Counter
	deleteDuration metric.Float64Histogram
	auditFailures  metric.Int64Counter
	skippedTicks   metric.Int64Counter
}

// NewDaemonMetrics creates daemon metrics. A nil meter uses the global provider.
func NewDaemonMetrics(meter metric.Meter) (*DaemonMetrics, error) {
	if meter == nil {
		meter = otel.Meter("sweeper.daemon")
	}

	passes, err := meter.Int64Counter(
		"sweeper.passes",
		metric.WithDescription("Number of reconciliation passes"),
		metric.WithUnit("{pass}"),
	)
	if err != nil {
		return nil, err
	}

	passDuration, err := meter.Float64Histogram(
		"sweeper.pass.duration",
		metric.WithDescription("Duration of reconciliation passes"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	eligibleGroups, err := meter.Int64Gauge(
		"sweeper.resource_groups.eligible",
		metric.WithDescription("Expired resource groups returned by the last listing"),
		metric.WithUnit("{resource_group}"),
	)
	if err != nil {
		return nil, err
	}

	inFlightGroups, err := meter.Int64Gauge(
		"sweeper.resource_groups.in_flight",
		metric.WithDescription("Resource groups with a delete in flight"),
		metric.WithUnit("{resource_group}"),
	)
	if err != nil {
		return nil, err
	}

	deletes, err := meter.Int64Counter(
		"sweeper.deletes",
		metric.WithDescription("Delete requests issued"),
		metric.WithUnit("{delete}"),
	)
	if err != nil {
		return nil, err
	}

	completions, err := meter.Int64Counter(
		"sweeper.deletes.completed",
		metric.WithDescription("Delete operations that finished"),
		metric.WithUnit("{delete}"),
	)
	if err != nil {
		return nil, err
	}

	deleteDuration, err := meter.Float64Histogram(
		"sweeper.delete.duration",
		metric.WithDescription("Time from delete dispatch to completion"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	auditFailures, err := meter.Int64Counter(
		"sweeper.audit.failures",
		metric.WithDescription("Audit records that could not be appended"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, err
	}

	skippedTicks, err := meter.Int64Counter(
		"sweeper.ticks.skipped",
		metric.WithDescription("Scheduler ticks skipped because a pass was still running"),
		metric.WithUnit("{tick}"),
	)
	if err != nil {
		return nil, err
	}

	return &DaemonMetrics{
		passes:         passes,
		passDuration:   passDuration,
		eligibleGroups: eligibleGroups,
		inFlightGroups: inFlightGroups,
		deletes:        deletes,
		completions:    completions,
		deleteDuration: deleteDuration,
		auditFailures:  auditFailures,
		skippedTicks:   skippedTicks,
	}, nil
}

// RecordPass records a finished pass with status "success" or "error".
func (m *DaemonMetrics) RecordPass(ctx context.Context, status string, result resource.PassResult, elapsed time.Duration) {
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.passes.Add(ctx, 1, attrs)
	m.passDuration.Record(ctx, elapsed.Seconds(), attrs)
	if status == statusSuccess {
		m.eligibleGroups.Record(ctx, int64(result.Eligible))
	}
}

// RecordSkippedTick records a tick dropped because the previous pass was running.
func (m *DaemonMetrics) RecordSkippedTick(ctx context.Context) {
	m.skippedTicks.Add(ctx, 1)
}

// RecordDispatch records a delete request.
func (m *DaemonMetrics) RecordDispatch(ctx context.Context, err error) {
	m.deletes.Add(ctx, 1, metric.WithAttributes(attribute.String("status", statusOf(err))))
}

// RecordCompletion records a delete that finished.
func (m *DaemonMetrics) RecordCompletion(ctx context.Context, err error, elapsed time.Duration) {
	attrs := metric.WithAttributes(attribute.String("status", statusOf(err)))
	m.completions.Add(ctx, 1, attrs)
	m.deleteDuration.Record(ctx, elapsed.Seconds(), attrs)
}

// RecordAuditFailure records a failed audit append.
func (m *DaemonMetrics) RecordAuditFailure(ctx context.Context) {
	m.auditFailures.Add(ctx, 1)
}

// RecordInFlight records the in-flight set size.
func (m *DaemonMetrics) RecordInFlight(ctx context.Context, count int) {
	m.inFlightGroups.Record(ctx, int64(count))
}

const (
	statusSuccess = "success"
	statusError   = "error"
)

func statusOf(err error) string {
	if err != nil {
		return statusError
	}
	return statusSuccess
}
