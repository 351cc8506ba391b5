package ext

import (
	"context"
	"time"

	"github.com/CavellTopDev/pitchey-app-sub015/workflow"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name identifies the extension in logs.
	Name() string
}

// RunStarted is called after a run is created, before its first step.
type RunStarted interface {
	OnRunStarted(ctx context.Context, r *workflow.Run) error
}

// RunSuspended is called when a run parks. wait is the wait key, such as
// "wait:signature" or "sleep:expiry".
type RunSuspended interface {
	OnRunSuspended(ctx context.Context, r *workflow.Run, wait string) error
}

// RunCompleted is called when the workflow body returns normally.
type RunCompleted interface {
	OnRunCompleted(ctx context.Context, r *workflow.Run, elapsed time.Duration) error
}

// RunFailed is called when the workflow body returns an error.
type RunFailed interface {
	OnRunFailed(ctx context.Context, r *workflow.Run, err error) error
}

// RunCancelled is called once a cancelled run finished its compensations
// and cancel handler.
type RunCancelled interface {
	OnRunCancelled(ctx context.Context, r *workflow.Run) error
}

// StepCompleted is called after a step body succeeds. Replayed steps are
// not reported.
type StepCompleted interface {
	OnStepCompleted(ctx context.Context, r *workflow.Run, step string, elapsed time.Duration) error
}

// StepFailed is called after a step attempt fails.
type StepFailed interface {
	OnStepFailed(ctx context.Context, r *workflow.Run, step string, err error) error
}

// SweepCompleted is called after each wake-up sweep with the number of
// runs it drove.
type SweepCompleted interface {
	OnSweepCompleted(ctx context.Context, driven int, elapsed time.Duration) error
}

// Shutdown is called while the engine stops.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
