package middleware_test

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	mw "github.com/CavellTopDev/pitchey-app-sub015/middleware"
)

func setupTestTracer() (*tracetest.SpanRecorder, trace.Tracer) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	return sr, tp.Tracer("test")
}

func TestTracing_SpanPerAttempt(t *testing.T) {
	sr, tracer := setupTestTracer()
	ic := mw.TracingWithTracer(tracer)
	info := newStepInfo()

	if err := ic(context.Background(), info, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name() != mw.SpanName {
		t.Errorf("span name = %q, want %q", span.Name(), mw.SpanName)
	}
	if span.Status().Code != codes.Ok {
		t.Errorf("status = %v, want Ok", span.Status().Code)
	}

	want := map[string]any{
		"dealflow.run_id":   info.RunID.String(),
		"dealflow.workflow": "investment",
		"dealflow.step":     "capture-payment",
		"dealflow.attempt":  int64(2),
	}
	got := make(map[string]any)
	for _, a := range span.Attributes() {
		switch a.Value.Type() {
		case attribute.STRING:
			got[string(a.Key)] = a.Value.AsString()
		case attribute.INT64:
			got[string(a.Key)] = a.Value.AsInt64()
		}
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("attribute %q = %v, want %v", k, got[k], v)
		}
	}
}

func TestTracing_ErrorStatus(t *testing.T) {
	sr, tracer := setupTestTracer()
	ic := mw.TracingWithTracer(tracer)
	want := errors.New("declined")

	err := ic(context.Background(), newStepInfo(), func(context.Context) error { return want })
	if !errors.Is(err, want) {
		t.Fatalf("err = %v, want %v", err, want)
	}

	span := sr.Ended()[0]
	if span.Status().Code != codes.Error {
		t.Errorf("status = %v, want Error", span.Status().Code)
	}
	if span.Status().Description != "declined" {
		t.Errorf("description = %q", span.Status().Description)
	}
	if len(span.Events()) == 0 {
		t.Error("expected a recorded error event")
	}
}

func TestTracing_ChildContext(t *testing.T) {
	sr, tracer := setupTestTracer()
	ic := mw.TracingWithTracer(tracer)

	_ = ic(context.Background(), newStepInfo(), func(ctx context.Context) error {
		if !trace.SpanContextFromContext(ctx).IsValid() {
			t.Error("step context carries no span")
		}
		return nil
	})
	if len(sr.Ended()) != 1 {
		t.Fatalf("expected 1 span")
	}
}

func TestTracing_GlobalNoopSafe(t *testing.T) {
	ic := mw.Tracing()
	called := false
	if err := ic(context.Background(), newStepInfo(), func(context.Context) error {
		called = true
		return nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("step not called")
	}
}
