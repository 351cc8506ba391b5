package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/CavellTopDev/pitchey-app-sub015/workflow"
)

// entry pairs a hook with the name of the extension that provided it.
type entry[H any] struct {
	name string
	hook H
}

// collect appends e to list when it implements H.
func collect[H any](list []entry[H], name string, e Extension) []entry[H] {
	if h, ok := e.(H); ok {
		return append(list, entry[H]{name: name, hook: h})
	}
	return list
}

// Registry holds registered extensions and fans lifecycle events out to
// them in registration order. Hook membership is resolved once at
// registration.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	runStarted     []entry[RunStarted]
	runSuspended   []entry[RunSuspended]
	runCompleted   []entry[RunCompleted]
	runFailed      []entry[RunFailed]
	runCancelled   []entry[RunCancelled]
	stepCompleted  []entry[StepCompleted]
	stepFailed     []entry[StepFailed]
	sweepCompleted []entry[SweepCompleted]
	shutdown       []entry[Shutdown]
}

var _ workflow.RunEmitter = (*Registry)(nil)

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds an extension.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	r.runStarted = collect(r.runStarted, name, e)
	r.runSuspended = collect(r.runSuspended, name, e)
	r.runCompleted = collect(r.runCompleted, name, e)
	r.runFailed = collect(r.runFailed, name, e)
	r.runCancelled = collect(r.runCancelled, name, e)
	r.stepCompleted = collect(r.stepCompleted, name, e)
	r.stepFailed = collect(r.stepFailed, name, e)
	r.sweepCompleted = collect(r.sweepCompleted, name, e)
	r.shutdown = collect(r.shutdown, name, e)
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// EmitWorkflowStarted notifies RunStarted hooks.
func (r *Registry) EmitWorkflowStarted(ctx context.Context, run *workflow.Run) {
	for _, e := range r.runStarted {
		r.check("OnRunStarted", e.name, e.hook.OnRunStarted(ctx, run))
	}
}

// EmitWorkflowSuspended notifies RunSuspended hooks.
func (r *Registry) EmitWorkflowSuspended(ctx context.Context, run *workflow.Run, wait string) {
	for _, e := range r.runSuspended {
		r.check("OnRunSuspended", e.name, e.hook.OnRunSuspended(ctx, run, wait))
	}
}

// EmitWorkflowCompleted notifies RunCompleted hooks.
func (r *Registry) EmitWorkflowCompleted(ctx context.Context, run *workflow.Run, elapsed time.Duration) {
	for _, e := range r.runCompleted {
		r.check("OnRunCompleted", e.name, e.hook.OnRunCompleted(ctx, run, elapsed))
	}
}

// EmitWorkflowFailed notifies RunFailed hooks.
func (r *Registry) EmitWorkflowFailed(ctx context.Context, run *workflow.Run, runErr error) {
	for _, e := range r.runFailed {
		r.check("OnRunFailed", e.name, e.hook.OnRunFailed(ctx, run, runErr))
	}
}

// EmitWorkflowCancelled notifies RunCancelled hooks.
func (r *Registry) EmitWorkflowCancelled(ctx context.Context, run *workflow.Run) {
	for _, e := range r.runCancelled {
		r.check("OnRunCancelled", e.name, e.hook.OnRunCancelled(ctx, run))
	}
}

// EmitStepCompleted notifies StepCompleted hooks.
func (r *Registry) EmitStepCompleted(ctx context.Context, run *workflow.Run, step string, elapsed time.Duration) {
	for _, e := range r.stepCompleted {
		r.check("OnStepCompleted", e.name, e.hook.OnStepCompleted(ctx, run, step, elapsed))
	}
}

// EmitStepFailed notifies StepFailed hooks.
func (r *Registry) EmitStepFailed(ctx context.Context, run *workflow.Run, step string, stepErr error) {
	for _, e := range r.stepFailed {
		r.check("OnStepFailed", e.name, e.hook.OnStepFailed(ctx, run, step, stepErr))
	}
}

// EmitSweepCompleted notifies SweepCompleted hooks.
func (r *Registry) EmitSweepCompleted(ctx context.Context, driven int, elapsed time.Duration) {
	for _, e := range r.sweepCompleted {
		r.check("OnSweepCompleted", e.name, e.hook.OnSweepCompleted(ctx, driven, elapsed))
	}
}

// EmitShutdown notifies Shutdown hooks.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		r.check("OnShutdown", e.name, e.hook.OnShutdown(ctx))
	}
}

func (r *Registry) check(hook, extName string, err error) {
	if err == nil {
		return
	}
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
