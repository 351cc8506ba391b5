package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/CavellTopDev/pitchey-app-sub015/workflow"
)

// instrumentationName is the scope name for dealflow spans and metrics.
const instrumentationName = "github.com/CavellTopDev/pitchey-app-sub015"

// SpanName is the name of the span opened around each step attempt.
const SpanName = "dealflow.step"

// Tracing wraps each step attempt in a span from the global
// TracerProvider. Without a configured provider the noop tracer is used.
func Tracing() workflow.Interceptor {
	return TracingWithTracer(otel.Tracer(instrumentationName))
}

// TracingWithTracer is Tracing with an explicit tracer.
func TracingWithTracer(tracer trace.Tracer) workflow.Interceptor {
	return func(ctx context.Context, info *workflow.StepInfo, next workflow.StepFunc) error {
		ctx, span := tracer.Start(ctx, SpanName,
			trace.WithAttributes(
				attribute.String("dealflow.run_id", info.RunID.String()),
				attribute.String("dealflow.workflow", info.Workflow),
				attribute.String("dealflow.step", info.Step),
				attribute.Int("dealflow.attempt", info.Attempt),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		span.SetStatus(codes.Ok, "")
		return nil
	}
}
