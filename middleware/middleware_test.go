package middleware_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/CavellTopDev/pitchey-app-sub015/id"
	"github.com/CavellTopDev/pitchey-app-sub015/middleware"
	"github.com/CavellTopDev/pitchey-app-sub015/workflow"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func newStepInfo() *workflow.StepInfo {
	return &workflow.StepInfo{
		RunID:    id.NewRunID(),
		Workflow: "investment",
		Step:     "capture-payment",
		Attempt:  2,
	}
}

func TestRecover_CatchesPanic(t *testing.T) {
	ic := middleware.Recover(quiet)

	err := ic(context.Background(), newStepInfo(), func(context.Context) error {
		panic("card network down")
	})
	if err == nil {
		t.Fatal("expected error from panic recovery")
	}
	if got, want := err.Error(), "panic in step capture-payment: card network down"; got != want {
		t.Errorf("error = %q, want %q", got, want)
	}
}

func TestRecover_PassesThrough(t *testing.T) {
	ic := middleware.Recover(quiet)
	want := errors.New("declined")

	err := ic(context.Background(), newStepInfo(), func(context.Context) error { return want })
	if !errors.Is(err, want) {
		t.Fatalf("err = %v, want %v", err, want)
	}
}

func TestLogging_FailedAttemptAtWarn(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	ic := middleware.Logging(logger)

	_ = ic(context.Background(), newStepInfo(), func(context.Context) error { return nil })
	if buf.Len() != 0 {
		t.Fatalf("successful attempt logged at warn: %s", buf.String())
	}

	_ = ic(context.Background(), newStepInfo(), func(context.Context) error { return errors.New("declined") })
	out := buf.String()
	for _, want := range []string{"step attempt failed", "step=capture-payment", "attempt=2", "error=declined"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output %q missing %q", out, want)
		}
	}
}

func TestTimeout_BoundsAttempt(t *testing.T) {
	ic := middleware.Timeout(10 * time.Millisecond)

	err := ic(context.Background(), newStepInfo(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
}

func TestTimeout_KeepsSoonerDeadline(t *testing.T) {
	ic := middleware.Timeout(time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	want, _ := ctx.Deadline()

	_ = ic(ctx, newStepInfo(), func(ctx context.Context) error {
		got, ok := ctx.Deadline()
		if !ok || !got.Equal(want) {
			t.Errorf("deadline = %v, want %v", got, want)
		}
		return nil
	})
}

func TestTimeout_ZeroDisabled(t *testing.T) {
	ic := middleware.Timeout(0)
	_ = ic(context.Background(), newStepInfo(), func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); ok {
			t.Error("unexpected deadline")
		}
		return nil
	})
}

func TestChain_RecoverAroundRunnerStep(t *testing.T) {
	var steps []string
	record := func(ctx context.Context, info *workflow.StepInfo, next workflow.StepFunc) error {
		steps = append(steps, info.Step)
		return next(ctx)
	}
	ic := workflow.Chain(middleware.Recover(quiet), record)

	err := ic(context.Background(), newStepInfo(), func(context.Context) error {
		panic("boom")
	})
	if err == nil || !strings.Contains(err.Error(), "panic in step") {
		t.Fatalf("err = %v, want recovered panic", err)
	}
	if len(steps) != 1 || steps[0] != "capture-payment" {
		t.Fatalf("steps = %v", steps)
	}
}
