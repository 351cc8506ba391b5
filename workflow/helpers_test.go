package workflow_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/CavellTopDev/pitchey-app-sub015/id"
	"github.com/CavellTopDev/pitchey-app-sub015/store/memory"
	"github.com/CavellTopDev/pitchey-app-sub015/workflow"
)

// epoch anchors every fake clock used by the tests.
var epoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

// testLogger returns a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingEmitter implements workflow.RunEmitter and records every call
// as "<hook>:<detail>".
type recordingEmitter struct {
	mu     sync.Mutex
	events []string
}

func (e *recordingEmitter) add(s string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, s)
}

func (e *recordingEmitter) Events() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.events...)
}

func (e *recordingEmitter) EmitStepCompleted(_ context.Context, _ *workflow.Run, step string, _ time.Duration) {
	e.add("step:" + step)
}

func (e *recordingEmitter) EmitStepFailed(_ context.Context, _ *workflow.Run, step string, _ error) {
	e.add("step-failed:" + step)
}

func (e *recordingEmitter) EmitWorkflowStarted(_ context.Context, run *workflow.Run) {
	e.add("started:" + run.Name)
}

func (e *recordingEmitter) EmitWorkflowSuspended(_ context.Context, _ *workflow.Run, wait string) {
	e.add("suspended:" + wait)
}

func (e *recordingEmitter) EmitWorkflowCompleted(_ context.Context, run *workflow.Run, _ time.Duration) {
	e.add("completed:" + run.Name)
}

func (e *recordingEmitter) EmitWorkflowFailed(_ context.Context, run *workflow.Run, _ error) {
	e.add("failed:" + run.Name)
}

func (e *recordingEmitter) EmitWorkflowCancelled(_ context.Context, run *workflow.Run) {
	e.add("cancelled:" + run.Name)
}

// harness bundles a runner with its collaborators.
type harness struct {
	runner  *workflow.Runner
	reg     *workflow.Registry
	store   *memory.Store
	clock   *clockwork.FakeClock
	emitter *recordingEmitter
}

func newHarness(opts ...workflow.Option) *harness {
	h := &harness{
		reg:     workflow.NewRegistry(),
		store:   memory.New(),
		clock:   clockwork.NewFakeClockAt(epoch),
		emitter: &recordingEmitter{},
	}
	opts = append([]workflow.Option{workflow.WithClock(h.clock), workflow.WithOwner("test")}, opts...)
	h.runner = workflow.NewRunner(h.reg, h.store, h.store, h.emitter, testLogger(), opts...)
	return h
}

// load fetches the stored run.
func (h *harness) load(t *testing.T, runID id.RunID) *workflow.Run {
	t.Helper()
	r, err := h.store.GetRun(context.Background(), runID)
	if err != nil {
		t.Fatalf("GetRun(%s): %v", runID, err)
	}
	return r
}

// deliver sends a JSON payload to a run and fails the test on error.
func (h *harness) deliver(t *testing.T, runID id.RunID, name string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	if _, err := h.runner.Deliver(context.Background(), runID, name, data); err != nil {
		t.Fatalf("Deliver(%q): %v", name, err)
	}
}

// counter is a concurrency-safe call counter.
type counter struct {
	mu sync.Mutex
	n  int
}

func (c *counter) inc() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return c.n
}

func (c *counter) get() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

type orderInput struct {
	OrderID string `json:"order_id"`
	Amount  int    `json:"amount"`
}
