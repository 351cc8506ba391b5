package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/CavellTopDev/pitchey-app-sub015/ext"
	"github.com/CavellTopDev/pitchey-app-sub015/workflow"
)

const meterName = "github.com/CavellTopDev/pitchey-app-sub015/observability"

// Metric names.
const (
	MetricRunsStarted   = "dealflow.run.started"
	MetricRunsSuspended = "dealflow.run.suspended"
	MetricRunsCompleted = "dealflow.run.completed"
	MetricRunsFailed    = "dealflow.run.failed"
	MetricRunsCancelled = "dealflow.run.cancelled"
	MetricRunDuration   = "dealflow.run.duration"
	MetricSweepRuns     = "dealflow.sweep.runs"
)

var (
	_ ext.Extension      = (*MetricsExtension)(nil)
	_ ext.RunStarted     = (*MetricsExtension)(nil)
	_ ext.RunSuspended   = (*MetricsExtension)(nil)
	_ ext.RunCompleted   = (*MetricsExtension)(nil)
	_ ext.RunFailed      = (*MetricsExtension)(nil)
	_ ext.RunCancelled   = (*MetricsExtension)(nil)
	_ ext.SweepCompleted = (*MetricsExtension)(nil)
)

// MetricsExtension counts run lifecycle events. Every run counter carries
// a workflow attribute; the run duration histogram covers runs that
// completed, measured from the start of the execution that finished them.
type MetricsExtension struct {
	started   metric.Int64Counter
	suspended metric.Int64Counter
	completed metric.Int64Counter
	failed    metric.Int64Counter
	cancelled metric.Int64Counter
	duration  metric.Float64Histogram
	sweep     metric.Int64Counter
}

// NewMetricsExtension uses the global MeterProvider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter uses meter for every instrument.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	counter := func(name, desc string) metric.Int64Counter {
		c, _ := meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit("{run}"))
		return c
	}
	duration, _ := meter.Float64Histogram(MetricRunDuration,
		metric.WithDescription("Duration of the execution that completed a run, in seconds"),
		metric.WithUnit("s"),
	)
	return &MetricsExtension{
		started:   counter(MetricRunsStarted, "Workflow runs started"),
		suspended: counter(MetricRunsSuspended, "Times a run parked on a wait or sleep"),
		completed: counter(MetricRunsCompleted, "Workflow runs completed"),
		failed:    counter(MetricRunsFailed, "Workflow runs failed"),
		cancelled: counter(MetricRunsCancelled, "Workflow runs cancelled"),
		duration:  duration,
		sweep:     counter(MetricSweepRuns, "Runs driven by wake-up sweeps"),
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

func byWorkflow(r *workflow.Run) metric.AddOption {
	return metric.WithAttributes(attribute.String("workflow", r.Name))
}

// OnRunStarted implements ext.RunStarted.
func (m *MetricsExtension) OnRunStarted(ctx context.Context, r *workflow.Run) error {
	m.started.Add(ctx, 1, byWorkflow(r))
	return nil
}

// OnRunSuspended implements ext.RunSuspended.
func (m *MetricsExtension) OnRunSuspended(ctx context.Context, r *workflow.Run, _ string) error {
	m.suspended.Add(ctx, 1, byWorkflow(r))
	return nil
}

// OnRunCompleted implements ext.RunCompleted.
func (m *MetricsExtension) OnRunCompleted(ctx context.Context, r *workflow.Run, elapsed time.Duration) error {
	m.completed.Add(ctx, 1, byWorkflow(r))
	m.duration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.String("workflow", r.Name)))
	return nil
}

// OnRunFailed implements ext.RunFailed.
func (m *MetricsExtension) OnRunFailed(ctx context.Context, r *workflow.Run, _ error) error {
	m.failed.Add(ctx, 1, byWorkflow(r))
	return nil
}

// OnRunCancelled implements ext.RunCancelled.
func (m *MetricsExtension) OnRunCancelled(ctx context.Context, r *workflow.Run) error {
	m.cancelled.Add(ctx, 1, byWorkflow(r))
	return nil
}

// OnSweepCompleted implements ext.SweepCompleted.
func (m *MetricsExtension) OnSweepCompleted(ctx context.Context, driven int, _ time.Duration) error {
	m.sweep.Add(ctx, int64(driven))
	return nil
}
