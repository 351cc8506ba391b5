package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/CavellTopDev/pitchey-app-sub015/workflow"
)

// Metric names recorded by Metrics.
const (
	MetricStepDuration = "dealflow.step.duration"
	MetricStepAttempts = "dealflow.step.attempts"
)

// Metrics records step attempt metrics on the global MeterProvider.
//
// Instruments:
//   - dealflow.step.duration (Float64Histogram, seconds)
//   - dealflow.step.attempts (Int64Counter)
//
// Both carry the attributes workflow, step and status ("ok" or "error").
func Metrics() workflow.Interceptor {
	return MetricsWithMeter(otel.Meter(instrumentationName))
}

// MetricsWithMeter is Metrics with an explicit meter.
func MetricsWithMeter(meter metric.Meter) workflow.Interceptor {
	// Instrument errors still yield usable noop instruments.
	duration, _ := meter.Float64Histogram(MetricStepDuration,
		metric.WithDescription("Duration of step attempts in seconds"),
		metric.WithUnit("s"),
	)
	attempts, _ := meter.Int64Counter(MetricStepAttempts,
		metric.WithDescription("Step attempts executed"),
		metric.WithUnit("{attempt}"),
	)

	return func(ctx context.Context, info *workflow.StepInfo, next workflow.StepFunc) error {
		start := time.Now()
		err := next(ctx)

		status := "ok"
		if err != nil {
			status = "error"
		}
		attrs := metric.WithAttributes(
			attribute.String("workflow", info.Workflow),
			attribute.String("step", info.Step),
			attribute.String("status", status),
		)
		duration.Record(ctx, time.Since(start).Seconds(), attrs)
		attempts.Add(ctx, 1, attrs)
		return err
	}
}
