package workflow

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/CavellTopDev/pitchey-app-sub015/event"
	"github.com/CavellTopDev/pitchey-app-sub015/id"
)

// StepEmitter is called by the Workflow to emit step lifecycle events.
// ext.Registry implements it.
type StepEmitter interface {
	EmitStepCompleted(ctx context.Context, run *Run, stepName string, elapsed time.Duration)
	EmitStepFailed(ctx context.Context, run *Run, stepName string, err error)
}

// Workflow is the execution context passed to workflow handler functions.
// It provides durable steps, event waits, durable sleeps and saga
// compensations. Every primitive checkpoints before control returns to
// the body, so a body that keeps its I/O inside steps can be replayed
// from the top any number of times.
type Workflow struct {
	ctx         context.Context
	run         *Run
	store       Store
	eventStore  event.Store
	emitter     StepEmitter
	codec       Codec
	clock       clockwork.Clock
	interceptor Interceptor
	logger      *slog.Logger

	compensations []compensation
	occurrences   map[string]int

	// compensating disables the cancellation gate so compensation steps
	// can run after ErrCancelled unwound the body.
	compensating bool

	// suspendedOn is the wait that made the body return ErrSuspended.
	suspendedOn *PendingEvent
}

// NewWorkflowContext creates a new Workflow execution context.
// This is called by the workflow runner, not by users.
func NewWorkflowContext(
	ctx context.Context,
	run *Run,
	store Store,
	eventStore event.Store,
	emitter StepEmitter,
	logger *slog.Logger,
) *Workflow {
	return &Workflow{
		ctx:         ctx,
		run:         run,
		store:       store,
		eventStore:  eventStore,
		emitter:     emitter,
		codec:       JSONCodec{},
		clock:       clockwork.NewRealClock(),
		logger:      logger,
		occurrences: make(map[string]int),
	}
}

// Context returns the underlying context.Context.
func (w *Workflow) Context() context.Context { return w.ctx }

// RunID returns the ID of the current workflow run.
func (w *Workflow) RunID() id.RunID { return w.run.ID }

// Run returns a snapshot of the current run.
func (w *Workflow) Run() Run { return *w.run }

// Logger returns the workflow's logger enriched with the run id.
func (w *Workflow) Logger() *slog.Logger {
	return w.logger.With(
		slog.String("run_id", w.run.ID.String()),
		slog.String("workflow", w.run.Name),
	)
}

// Now returns the runtime clock's current time. Bodies must not use it to
// make decisions that are not captured by a step or a wait.
func (w *Workflow) Now() time.Time { return w.clock.Now().UTC() }

// SetStatus records the domain status of the run. It is persisted when
// the body suspends or returns.
func (w *Workflow) SetStatus(status string) { w.run.Status = status }

// SetOutcome records the domain status and the reason explaining it.
func (w *Workflow) SetOutcome(status, reason string) {
	w.run.Status = status
	w.run.Reason = reason
}

// Interrupted reports whether err must be returned from the body
// unchanged: the run suspended, was cancelled, or the runner is
// shutting down.
func (w *Workflow) Interrupted(err error) bool {
	return IsInterrupt(err) || w.ctx.Err() != nil
}

// SuspendedOn returns the wait the body suspended on, or nil.
func (w *Workflow) SuspendedOn() *PendingEvent { return w.suspendedOn }

// UniqueName returns base the first time it is called with base during
// one execution and base#n for the n-th call. Bodies use it to name
// steps that sit inside loops.
func (w *Workflow) UniqueName(base string) string { return w.nextKey(base) }

// nextKey returns base for its first use within one execution and
// base#n for the n-th repeat.
func (w *Workflow) nextKey(base string) string {
	w.occurrences[base]++
	n := w.occurrences[base]
	if n == 1 {
		return base
	}
	return base + "#" + strconv.Itoa(n)
}

// checkCancel gates every unresolved primitive.
func (w *Workflow) checkCancel() error {
	if w.run.CancelRequested && !w.compensating {
		return ErrCancelled
	}
	return nil
}
