package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	dealflow "github.com/CavellTopDev/pitchey-app-sub015"
	"github.com/CavellTopDev/pitchey-app-sub015/event"
	"github.com/CavellTopDev/pitchey-app-sub015/id"
)

// RunEmitter emits workflow-level lifecycle events.
// ext.Registry implements it.
type RunEmitter interface {
	StepEmitter
	EmitWorkflowStarted(ctx context.Context, run *Run)
	EmitWorkflowSuspended(ctx context.Context, run *Run, wait string)
	EmitWorkflowCompleted(ctx context.Context, run *Run, elapsed time.Duration)
	EmitWorkflowFailed(ctx context.Context, run *Run, err error)
	EmitWorkflowCancelled(ctx context.Context, run *Run)
}

// Option configures a Runner.
type Option func(*Runner)

// WithClock sets the clock used for wait deadlines and timestamps.
func WithClock(c clockwork.Clock) Option {
	return func(r *Runner) { r.clock = c }
}

// WithCodec sets the codec used for step results.
func WithCodec(c Codec) Option {
	return func(r *Runner) { r.codec = c }
}

// WithInterceptor sets the interceptor that wraps every step attempt.
func WithInterceptor(ic Interceptor) Option {
	return func(r *Runner) { r.interceptor = ic }
}

// WithOwner sets the lease owner name of this runner.
func WithOwner(owner string) Option {
	return func(r *Runner) { r.owner = owner }
}

// WithLeaseTTL sets how long an execution lease is held before other
// runners may take over.
func WithLeaseTTL(d time.Duration) Option {
	return func(r *Runner) { r.leaseTTL = d }
}

// Runner orchestrates workflow execution: creating runs, driving bodies
// until they suspend or finish, delivering events, and waking runs whose
// deadlines passed.
//
// Execution of one run is single-flight. Within a process an active set
// collapses concurrent triggers into one more pass; across processes a
// store lease keeps two runners from executing the same run.
type Runner struct {
	registry    *Registry
	store       Store
	eventStore  event.Store
	bus         *event.Bus
	emitter     RunEmitter
	logger      *slog.Logger
	clock       clockwork.Clock
	codec       Codec
	interceptor Interceptor
	owner       string
	leaseTTL    time.Duration

	mu     sync.Mutex
	active map[id.RunID]*activeRun
}

type activeRun struct {
	rerun bool
}

// NewRunner creates a workflow runner.
func NewRunner(
	registry *Registry,
	store Store,
	eventStore event.Store,
	emitter RunEmitter,
	logger *slog.Logger,
	opts ...Option,
) *Runner {
	if emitter == nil {
		emitter = nopEmitter{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{
		registry:   registry,
		store:      store,
		eventStore: eventStore,
		emitter:    emitter,
		logger:     logger,
		clock:      clockwork.NewRealClock(),
		codec:      JSONCodec{},
		owner:      defaultOwner(),
		leaseTTL:   5 * time.Minute,
		active:     make(map[id.RunID]*activeRun),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.bus = event.NewBus(eventStore, event.WithClock(r.clock))
	return r
}

func defaultOwner() string {
	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}
	return host + ":" + strconv.Itoa(os.Getpid())
}

// Registry returns the workflow registry.
func (r *Runner) Registry() *Registry { return r.registry }

// Store returns the run store.
func (r *Runner) Store() Store { return r.store }

// Owner returns the lease owner name of this runner.
func (r *Runner) Owner() string { return r.owner }

// Start starts a new workflow run with a typed input.
// The input is JSON-marshaled and stored on the Run.
func Start[T any](ctx context.Context, runner *Runner, name string, input T) (*Run, error) {
	data, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("marshal input for workflow %q: %w", name, err)
	}

	return runner.StartRaw(ctx, name, data)
}

// StartRaw creates a run with pre-serialized JSON input and drives it
// until it suspends or finishes. When the body fails during this first
// execution the run is returned together with the failure, so callers
// can match admission errors with errors.Is.
func (r *Runner) StartRaw(ctx context.Context, name string, input []byte) (*Run, error) {
	if err := r.registry.Validate(name, input); err != nil {
		return nil, err
	}

	now := r.clock.Now().UTC()
	run := &Run{
		Entity:    dealflow.NewEntity(),
		ID:        id.NewRunID(),
		Name:      name,
		State:     RunStateRunning,
		Input:     input,
		StartedAt: now,
	}

	if err := r.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create run for workflow %q: %w", name, err)
	}

	r.logger.Info("workflow run started",
		slog.String("run_id", run.ID.String()),
		slog.String("workflow", name),
	)
	r.emitter.EmitWorkflowStarted(ctx, run)

	failure, err := r.drive(ctx, run.ID)
	if err != nil {
		return run, err
	}

	latest, err := r.store.GetRun(ctx, run.ID)
	if err != nil {
		return run, fmt.Errorf("get run %s: %w", run.ID, err)
	}
	if failure != nil {
		return latest, fmt.Errorf("workflow %s run %s: %w", name, run.ID, failure)
	}
	return latest, nil
}

// Deliver buffers an event for a run and drives the run so a wait on it
// resolves.
func (r *Runner) Deliver(ctx context.Context, runID id.RunID, name string, payload json.RawMessage) (*event.Event, error) {
	run, err := r.store.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	if run.State.IsTerminal() {
		return nil, fmt.Errorf("%w: run %s is %s", dealflow.ErrRunTerminal, runID, run.State)
	}

	evt, err := r.bus.Publish(ctx, runID, name, payload)
	if err != nil {
		return nil, fmt.Errorf("publish event %q to run %s: %w", name, runID, err)
	}

	r.logger.Debug("event delivered",
		slog.String("run_id", runID.String()),
		slog.String("event", name),
	)

	if _, err := r.drive(ctx, runID); err != nil {
		return evt, err
	}
	return evt, nil
}

// Wake drives a run once. Runs with nothing to do re-suspend immediately.
func (r *Runner) Wake(ctx context.Context, runID id.RunID) error {
	_, err := r.drive(ctx, runID)
	return err
}

// Cancel requests cancellation of a run and drives it so the request is
// honored at the first unresolved step or wait. Registered compensations
// run before the run is marked cancelled.
func (r *Runner) Cancel(ctx context.Context, runID id.RunID, reason string) error {
	run, err := r.store.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("get run %s: %w", runID, err)
	}
	if run.State.IsTerminal() {
		return fmt.Errorf("%w: run %s is %s", dealflow.ErrRunTerminal, runID, run.State)
	}
	if err := r.store.RequestCancel(ctx, runID, reason); err != nil {
		return fmt.Errorf("request cancel of run %s: %w", runID, err)
	}

	r.logger.Info("workflow run cancel requested",
		slog.String("run_id", runID.String()),
		slog.String("reason", reason),
	)

	_, err = r.drive(ctx, runID)
	return err
}

// Resume re-executes a run left in running state by a crashed process.
// Checkpointed steps are replayed from the store.
func (r *Runner) Resume(ctx context.Context, runID id.RunID) error {
	run, err := r.store.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("get run %s: %w", runID, err)
	}
	if run.State != RunStateRunning {
		return fmt.Errorf("%w: run %s is in state %q, not running", dealflow.ErrInvalidTransition, runID, run.State)
	}
	_, err = r.drive(ctx, runID)
	return err
}

// ResumeAll finds all runs in "running" state and resumes them.
// Called at startup for crash recovery.
func (r *Runner) ResumeAll(ctx context.Context) error {
	runs, err := r.store.ListRuns(ctx, ListOpts{State: RunStateRunning})
	if err != nil {
		return fmt.Errorf("list running workflow runs: %w", err)
	}

	for _, run := range runs {
		r.logger.Info("resuming workflow run",
			slog.String("run_id", run.ID.String()),
			slog.String("workflow", run.Name),
		)
		if resumeErr := r.Resume(ctx, run.ID); resumeErr != nil {
			r.logger.Error("failed to resume workflow run",
				slog.String("run_id", run.ID.String()),
				slog.String("error", resumeErr.Error()),
			)
		}
	}

	return nil
}

// ResumeDue drives every run the store reports as due: waits past their
// deadline, waits with a buffered matching event, pending cancellations
// and runs whose lease expired. At most concurrency runs execute at
// once. It returns the number of runs driven.
func (r *Runner) ResumeDue(ctx context.Context, limit, concurrency int) (int, error) {
	runs, err := r.store.ListDueRuns(ctx, r.clock.Now().UTC(), limit)
	if err != nil {
		return 0, fmt.Errorf("list due workflow runs: %w", err)
	}
	if len(runs) == 0 {
		return 0, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for _, run := range runs {
		g.Go(func() error {
			if _, driveErr := r.drive(gctx, run.ID); driveErr != nil {
				r.logger.Error("failed to wake workflow run",
					slog.String("run_id", run.ID.String()),
					slog.String("error", driveErr.Error()),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	return len(runs), ctx.Err()
}

// ──────────────────────────────────────────────────
// Execution
// ──────────────────────────────────────────────────

// drive executes a run until it suspends or finishes, repeating while
// other triggers arrived during the execution. failure is the body error
// of a run that failed; err reports infrastructure problems.
func (r *Runner) drive(ctx context.Context, runID id.RunID) (failure, err error) {
	r.mu.Lock()
	if a, ok := r.active[runID]; ok {
		a.rerun = true
		r.mu.Unlock()
		return nil, nil
	}
	a := &activeRun{}
	r.active[runID] = a
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.active, runID)
		r.mu.Unlock()
	}()

	for {
		failure, err = r.executeOnce(ctx, runID)
		if err != nil || failure != nil {
			return failure, err
		}

		r.mu.Lock()
		again := a.rerun
		a.rerun = false
		r.mu.Unlock()
		if !again {
			return nil, nil
		}
	}
}

func (r *Runner) executeOnce(ctx context.Context, runID id.RunID) (failure, err error) {
	run, err := r.store.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	if run.State.IsTerminal() {
		return nil, nil
	}

	fn, ok := r.registry.Get(run.Name)
	if !ok {
		return nil, fmt.Errorf("%w: %q (run %s)", dealflow.ErrWorkflowNotFound, run.Name, runID)
	}

	claimed, err := r.store.ClaimRun(ctx, runID, r.owner, r.clock.Now().UTC(), r.leaseTTL)
	if err != nil {
		return nil, fmt.Errorf("claim run %s: %w", runID, err)
	}
	if !claimed {
		r.logger.Debug("run leased by another runner",
			slog.String("run_id", runID.String()),
		)
		return nil, nil
	}
	defer func() {
		if relErr := r.store.ReleaseRun(context.WithoutCancel(ctx), runID, r.owner); relErr != nil {
			r.logger.Error("failed to release run lease",
				slog.String("run_id", runID.String()),
				slog.String("error", relErr.Error()),
			)
		}
	}()

	// Reload under the lease so cancel requests and the latest state are
	// visible.
	run, err = r.store.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	if run.State.IsTerminal() {
		return nil, nil
	}

	return r.execute(ctx, run, fn)
}

func (r *Runner) newWorkflow(ctx context.Context, run *Run) *Workflow {
	wf := NewWorkflowContext(ctx, run, r.store, r.eventStore, r.emitter, r.logger)
	wf.clock = r.clock
	wf.codec = r.codec
	wf.interceptor = r.interceptor
	return wf
}

// execute runs the body once and records how it ended.
func (r *Runner) execute(ctx context.Context, run *Run, fn RunnerFunc) (failure, err error) {
	wf := r.newWorkflow(ctx, run)

	start := time.Now()
	bodyErr := fn(wf, run.Input)
	elapsed := time.Since(start)
	now := r.clock.Now().UTC()

	// The runner is shutting down: leave the run as it is so it is
	// resumed later.
	if bodyErr != nil && ctx.Err() != nil && !IsSuspended(bodyErr) {
		r.logger.Warn("workflow run interrupted",
			slog.String("run_id", run.ID.String()),
			slog.String("error", bodyErr.Error()),
		)
		return nil, ctx.Err()
	}

	switch {
	case bodyErr == nil:
		run.State = RunStateCompleted
		run.WakeAt = nil
		run.WaitingOn = ""
		run.CompletedAt = &now
		if updErr := r.store.UpdateRun(ctx, run); updErr != nil {
			return nil, fmt.Errorf("update run %s as completed: %w", run.ID, updErr)
		}
		r.logger.Info("workflow run completed",
			slog.String("run_id", run.ID.String()),
			slog.String("workflow", run.Name),
			slog.String("status", run.Status),
		)
		r.emitter.EmitWorkflowCompleted(ctx, run, elapsed)
		return nil, nil

	case IsSuspended(bodyErr):
		run.State = RunStateWaiting
		run.WakeAt = nil
		run.WaitingOn = ""
		wait := ""
		if pe := wf.SuspendedOn(); pe != nil {
			deadline := pe.Deadline
			run.WakeAt = &deadline
			run.WaitingOn = pe.EventName
			wait = pe.StepName
		}
		if updErr := r.store.UpdateRun(ctx, run); updErr != nil {
			return nil, fmt.Errorf("update run %s as waiting: %w", run.ID, updErr)
		}
		r.emitter.EmitWorkflowSuspended(ctx, run, wait)
		return nil, nil

	case errors.Is(bodyErr, ErrCancelled):
		return nil, r.finishCancelled(ctx, wf, run)

	default:
		if wf.Compensations() > 0 {
			r.logger.Info("running saga compensations",
				slog.String("run_id", run.ID.String()),
				slog.Int("count", wf.Compensations()),
			)
			if compErr := wf.RunCompensations(); compErr != nil {
				r.logger.Error("compensation errors during workflow failure",
					slog.String("run_id", run.ID.String()),
					slog.String("error", compErr.Error()),
				)
			}
		}

		run.State = RunStateFailed
		run.Error = bodyErr.Error()
		run.WakeAt = nil
		run.WaitingOn = ""
		run.CompletedAt = &now
		if updErr := r.store.UpdateRun(ctx, run); updErr != nil {
			return bodyErr, fmt.Errorf("update run %s as failed: %w", run.ID, updErr)
		}
		r.logger.Warn("workflow run failed",
			slog.String("run_id", run.ID.String()),
			slog.String("workflow", run.Name),
			slog.String("error", bodyErr.Error()),
		)
		r.emitter.EmitWorkflowFailed(ctx, run, bodyErr)
		return bodyErr, nil
	}
}

func (r *Runner) finishCancelled(ctx context.Context, wf *Workflow, run *Run) error {
	if compErr := wf.RunCompensations(); compErr != nil {
		r.logger.Error("compensation errors during cancellation",
			slog.String("run_id", run.ID.String()),
			slog.String("error", compErr.Error()),
		)
	}

	if cancelFn, ok := r.registry.getCancel(run.Name); ok {
		wf.compensating = true
		if err := cancelFn(wf, run.Input); err != nil {
			r.logger.Error("cancel handler failed",
				slog.String("run_id", run.ID.String()),
				slog.String("error", err.Error()),
			)
		}
		wf.compensating = false
	}

	now := r.clock.Now().UTC()
	run.State = RunStateCancelled
	if run.CancelReason != "" {
		run.Reason = run.CancelReason
	}
	run.WakeAt = nil
	run.WaitingOn = ""
	run.CompletedAt = &now
	if err := r.store.UpdateRun(ctx, run); err != nil {
		return fmt.Errorf("update run %s as cancelled: %w", run.ID, err)
	}
	r.logger.Info("workflow run cancelled",
		slog.String("run_id", run.ID.String()),
		slog.String("reason", run.CancelReason),
	)
	r.emitter.EmitWorkflowCancelled(ctx, run)
	return nil
}

// nopEmitter discards lifecycle events.
type nopEmitter struct{}

func (nopEmitter) EmitStepCompleted(context.Context, *Run, string, time.Duration) {}
func (nopEmitter) EmitStepFailed(context.Context, *Run, string, error)            {}
func (nopEmitter) EmitWorkflowStarted(context.Context, *Run)                      {}
func (nopEmitter) EmitWorkflowSuspended(context.Context, *Run, string)            {}
func (nopEmitter) EmitWorkflowCompleted(context.Context, *Run, time.Duration)     {}
func (nopEmitter) EmitWorkflowFailed(context.Context, *Run, error)                {}
func (nopEmitter) EmitWorkflowCancelled(context.Context, *Run)                    {}
