package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	dealflow "github.com/CavellTopDev/pitchey-app-sub015"
	"github.com/CavellTopDev/pitchey-app-sub015/id"
	"github.com/CavellTopDev/pitchey-app-sub015/workflow"
)

func TestRunner_StartAndComplete(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	var got orderInput
	workflow.Register(h.reg, workflow.NewWorkflow("order", func(wf *workflow.Workflow, in orderInput) error {
		got = in
		if err := wf.Step("reserve", func(context.Context) error { return nil }); err != nil {
			return err
		}
		wf.SetOutcome("SHIPPED", "all items reserved")
		return nil
	}))

	run, err := workflow.Start(ctx, h.runner, "order", orderInput{OrderID: "o-1", Amount: 3})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got.OrderID != "o-1" || got.Amount != 3 {
		t.Errorf("handler input = %+v", got)
	}
	if run.State != workflow.RunStateCompleted {
		t.Errorf("state = %q, want %q", run.State, workflow.RunStateCompleted)
	}
	if run.Status != "SHIPPED" || run.Reason != "all items reserved" {
		t.Errorf("outcome = %q/%q", run.Status, run.Reason)
	}
	if run.CompletedAt == nil || !run.CompletedAt.Equal(epoch) {
		t.Errorf("CompletedAt = %v, want %v", run.CompletedAt, epoch)
	}

	want := []string{"started:order", "step:reserve", "completed:order"}
	if events := h.emitter.Events(); !slices.Equal(events, want) {
		t.Errorf("events = %v, want %v", events, want)
	}
}

func TestRunner_StartFailure(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	errBoom := errors.New("boom")

	workflow.Register(h.reg, workflow.NewWorkflow("order", func(wf *workflow.Workflow, _ orderInput) error {
		return wf.Step("charge", func(context.Context) error { return errBoom })
	}))

	run, err := workflow.Start(ctx, h.runner, "order", orderInput{OrderID: "o-1"})
	if !errors.Is(err, errBoom) {
		t.Fatalf("Start err = %v, want %v", err, errBoom)
	}
	var stepErr *workflow.StepError
	if !errors.As(err, &stepErr) || stepErr.Step != "charge" || stepErr.Attempts != 1 {
		t.Errorf("step error = %+v", stepErr)
	}
	if run == nil {
		t.Fatal("expected the failed run to be returned")
	}
	if run.State != workflow.RunStateFailed {
		t.Errorf("state = %q, want %q", run.State, workflow.RunStateFailed)
	}
	if !strings.Contains(run.Error, "boom") {
		t.Errorf("Error = %q, want it to mention boom", run.Error)
	}
	if events := h.emitter.Events(); !slices.Contains(events, "step-failed:charge") || !slices.Contains(events, "failed:order") {
		t.Errorf("events = %v", events)
	}
}

func TestRunner_StartRejectsInvalidInput(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	def := workflow.NewWorkflow("order", func(*workflow.Workflow, orderInput) error { return nil })
	def.Validate = func(in orderInput) error {
		if in.Amount <= 0 {
			return errors.New("amount must be positive")
		}
		return nil
	}
	workflow.Register(h.reg, def)

	run, err := workflow.Start(ctx, h.runner, "order", orderInput{OrderID: "o-1"})
	if !errors.Is(err, dealflow.ErrInvalidParams) {
		t.Fatalf("Start err = %v, want ErrInvalidParams", err)
	}
	if run != nil {
		t.Errorf("run = %+v, want nil", run)
	}

	runs, err := h.store.ListRuns(ctx, workflow.ListOpts{})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("runs = %d, want none created", len(runs))
	}

	if _, err := h.runner.StartRaw(ctx, "order", []byte(`{"amount":"many"}`)); !errors.Is(err, dealflow.ErrInvalidParams) {
		t.Errorf("StartRaw with malformed input err = %v, want ErrInvalidParams", err)
	}
}

func TestRunner_StartUnknownWorkflow(t *testing.T) {
	h := newHarness()

	_, err := workflow.Start(context.Background(), h.runner, "missing", orderInput{})
	if !errors.Is(err, dealflow.ErrWorkflowNotFound) {
		t.Fatalf("Start err = %v, want ErrWorkflowNotFound", err)
	}
}

func TestRunner_ResumeReplaysCheckpoints(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	var first, second counter
	workflow.Register(h.reg, workflow.NewWorkflow("order", func(wf *workflow.Workflow, _ orderInput) error {
		if err := wf.Step("first", func(context.Context) error { first.inc(); return nil }); err != nil {
			return err
		}
		return wf.Step("second", func(context.Context) error { second.inc(); return nil })
	}))

	// A run left behind by a crashed process after its first step.
	run := &workflow.Run{
		Entity:    dealflow.NewEntity(),
		ID:        id.NewRunID(),
		Name:      "order",
		State:     workflow.RunStateRunning,
		Input:     []byte(`{"order_id":"o-1"}`),
		StartedAt: epoch,
	}
	if err := h.store.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if err := h.store.SaveCheckpoint(ctx, &workflow.Checkpoint{
		ID: id.NewCheckpointID(), RunID: run.ID, StepName: "first", CreatedAt: epoch,
	}); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}

	if err := h.runner.ResumeAll(ctx); err != nil {
		t.Fatalf("ResumeAll: %v", err)
	}

	if first.get() != 0 {
		t.Errorf("first ran %d times, want 0 (checkpointed)", first.get())
	}
	if second.get() != 1 {
		t.Errorf("second ran %d times, want 1", second.get())
	}
	if got := h.load(t, run.ID).State; got != workflow.RunStateCompleted {
		t.Errorf("state = %q, want completed", got)
	}

	if err := h.runner.Resume(ctx, run.ID); !errors.Is(err, dealflow.ErrInvalidTransition) {
		t.Errorf("Resume of completed run err = %v, want ErrInvalidTransition", err)
	}
}

func TestRunner_ResumeDueWakesExpiredWaits(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	var timedOut bool
	workflow.Register(h.reg, workflow.NewWorkflow("order", func(wf *workflow.Workflow, _ orderInput) error {
		evt, err := wf.WaitForEvent("approval", time.Hour)
		if err != nil {
			return err
		}
		timedOut = evt == nil
		return nil
	}))

	run, err := workflow.Start(ctx, h.runner, "order", orderInput{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if run.State != workflow.RunStateWaiting {
		t.Fatalf("state = %q, want waiting", run.State)
	}

	n, err := h.runner.ResumeDue(ctx, 10, 2)
	if err != nil {
		t.Fatalf("ResumeDue: %v", err)
	}
	if n != 0 {
		t.Errorf("ResumeDue before deadline drove %d runs, want 0", n)
	}

	h.clock.Advance(time.Hour)

	n, err = h.runner.ResumeDue(ctx, 10, 2)
	if err != nil {
		t.Fatalf("ResumeDue: %v", err)
	}
	if n != 1 {
		t.Errorf("ResumeDue after deadline drove %d runs, want 1", n)
	}
	if !timedOut {
		t.Error("expected the wait to resolve as timed out")
	}
	if got := h.load(t, run.ID).State; got != workflow.RunStateCompleted {
		t.Errorf("state = %q, want completed", got)
	}
}

func TestRunner_TerminalRunsRejectInput(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	workflow.Register(h.reg, workflow.NewWorkflow("order", func(*workflow.Workflow, orderInput) error { return nil }))

	run, err := workflow.Start(ctx, h.runner, "order", orderInput{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if _, err := h.runner.Deliver(ctx, run.ID, "approval", nil); !errors.Is(err, dealflow.ErrRunTerminal) {
		t.Errorf("Deliver err = %v, want ErrRunTerminal", err)
	}
	if err := h.runner.Cancel(ctx, run.ID, "too late"); !errors.Is(err, dealflow.ErrRunTerminal) {
		t.Errorf("Cancel err = %v, want ErrRunTerminal", err)
	}
	if _, err := h.runner.Deliver(ctx, id.NewRunID(), "approval", nil); !errors.Is(err, dealflow.ErrRunNotFound) {
		t.Errorf("Deliver to unknown run err = %v, want ErrRunNotFound", err)
	}
}

func TestRunner_LeaseHeldElsewhereSkipsExecution(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	var executions counter
	workflow.Register(h.reg, workflow.NewWorkflow("order", func(wf *workflow.Workflow, _ orderInput) error {
		executions.inc()
		_, err := wf.WaitForEvent("approval", 24*time.Hour)
		return err
	}))

	run, err := workflow.Start(ctx, h.runner, "order", orderInput{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	ok, err := h.store.ClaimRun(ctx, run.ID, "other-node", h.clock.Now(), time.Hour)
	if err != nil || !ok {
		t.Fatalf("ClaimRun by other node = %v, %v", ok, err)
	}

	h.deliver(t, run.ID, "approval", map[string]bool{"approved": true})
	if executions.get() != 1 {
		t.Errorf("executions = %d, want 1 while leased elsewhere", executions.get())
	}
	if got := h.load(t, run.ID).State; got != workflow.RunStateWaiting {
		t.Errorf("state = %q, want waiting", got)
	}

	h.clock.Advance(2 * time.Hour)

	if _, err := h.runner.ResumeDue(ctx, 10, 1); err != nil {
		t.Fatalf("ResumeDue: %v", err)
	}
	if executions.get() != 2 {
		t.Errorf("executions = %d, want 2 after the lease expired", executions.get())
	}
	if got := h.load(t, run.ID).State; got != workflow.RunStateCompleted {
		t.Errorf("state = %q, want completed", got)
	}
}

func TestRunner_CancelRunsCompensationsThenHandler(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	var (
		mu    sync.Mutex
		calls []string
	)
	record := func(s string) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, s)
	}

	def := workflow.NewWorkflow("order", func(wf *workflow.Workflow, _ orderInput) error {
		err := wf.StepWithCompensation("charge",
			func(context.Context) error { record("charge"); return nil },
			func(context.Context) error { record("refund"); return nil },
		)
		if err != nil {
			return err
		}
		wf.SetStatus("AWAITING_SHIPMENT")
		_, err = wf.WaitForEvent("shipped", 24*time.Hour)
		return err
	})
	def.OnCancel = func(wf *workflow.Workflow, in orderInput) error {
		return wf.Step("notify-cancel", func(context.Context) error {
			record(fmt.Sprintf("notify:%s", in.OrderID))
			return nil
		})
	}
	workflow.Register(h.reg, def)

	run, err := workflow.Start(ctx, h.runner, "order", orderInput{OrderID: "o-7"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := h.runner.Cancel(ctx, run.ID, "operator abort"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	got := h.load(t, run.ID)
	if got.State != workflow.RunStateCancelled {
		t.Errorf("state = %q, want cancelled", got.State)
	}
	if got.Reason != "operator abort" {
		t.Errorf("reason = %q, want %q", got.Reason, "operator abort")
	}
	if got.WakeAt != nil || got.WaitingOn != "" {
		t.Errorf("wait fields not cleared: %v %q", got.WakeAt, got.WaitingOn)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"charge", "refund", "notify:o-7"}
	if !slices.Equal(calls, want) {
		t.Errorf("calls = %v, want %v", calls, want)
	}
	if events := h.emitter.Events(); !slices.Contains(events, "cancelled:order") {
		t.Errorf("events = %v, want cancelled", events)
	}
}
