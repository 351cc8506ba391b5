package workflow

import (
	"time"

	dealflow "github.com/CavellTopDev/pitchey-app-sub015"
	"github.com/CavellTopDev/pitchey-app-sub015/id"
)

// RunState represents the runtime lifecycle state of a workflow run.
// Domain progress is tracked separately in Run.Status.
type RunState string

const (
	// RunStateRunning means the body is executing or due to execute.
	RunStateRunning RunState = "running"
	// RunStateWaiting means the body is suspended on an event or timer.
	RunStateWaiting RunState = "waiting"
	// RunStateCompleted means the body returned normally.
	RunStateCompleted RunState = "completed"
	// RunStateFailed means the body returned an error.
	RunStateFailed RunState = "failed"
	// RunStateCancelled means an operator aborted the run.
	RunStateCancelled RunState = "cancelled"
)

// IsTerminal reports whether no further execution will happen.
func (s RunState) IsTerminal() bool {
	switch s {
	case RunStateCompleted, RunStateFailed, RunStateCancelled:
		return true
	default:
		return false
	}
}

// Run is one workflow instance.
type Run struct {
	dealflow.Entity
	ID    id.RunID `json:"id"`
	Name  string   `json:"name"`
	State RunState `json:"state"`

	// Status is the workflow-specific domain status (e.g. PENDING_LEGAL_REVIEW).
	Status string `json:"status,omitempty"`
	// Reason is the human-readable explanation of the current outcome.
	Reason string `json:"reason,omitempty"`

	Input  []byte `json:"input,omitempty"`
	Output []byte `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`

	// WakeAt is the earliest deadline among the run's open waits.
	WakeAt *time.Time `json:"wake_at,omitempty"`
	// WaitingOn names the event the run is suspended on. Empty for timers.
	WaitingOn string `json:"waiting_on,omitempty"`

	LockedBy    string     `json:"locked_by,omitempty"`
	LockedUntil *time.Time `json:"locked_until,omitempty"`

	CancelRequested bool   `json:"cancel_requested,omitempty"`
	CancelReason    string `json:"cancel_reason,omitempty"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ListOpts controls pagination for workflow run list queries.
type ListOpts struct {
	// Limit is the maximum number of runs to return. Zero means no limit.
	Limit int
	// Offset is the number of runs to skip.
	Offset int
	// State filters by run state. Empty means all states.
	State RunState
	// Name filters by workflow name. Empty means all workflows.
	Name string
}
