package workflow

import (
	"context"
	"time"

	"github.com/CavellTopDev/pitchey-app-sub015/id"
)

// Store defines the persistence contract for the durable runtime.
type Store interface {
	// CreateRun persists a new workflow run.
	CreateRun(ctx context.Context, run *Run) error

	// GetRun retrieves a workflow run by ID.
	GetRun(ctx context.Context, runID id.RunID) (*Run, error)

	// UpdateRun persists execution progress of a run: state, status,
	// reason, output, error, wake and completion fields. Lease and
	// cancellation fields are owned by ClaimRun, ReleaseRun and
	// RequestCancel and are left untouched.
	UpdateRun(ctx context.Context, run *Run) error

	// ListRuns returns workflow runs matching the given options.
	ListRuns(ctx context.Context, opts ListOpts) ([]*Run, error)

	// ListDueRuns returns non-terminal runs that need execution at now:
	// waiting runs whose WakeAt has passed or that have an unclaimed
	// event matching WaitingOn, and running runs whose lease expired.
	ListDueRuns(ctx context.Context, now time.Time, limit int) ([]*Run, error)

	// ClaimRun takes the execution lease of a run for owner until
	// now+ttl. It succeeds when the run is unleased, the lease expired, or
	// owner already holds it.
	ClaimRun(ctx context.Context, runID id.RunID, owner string, now time.Time, ttl time.Duration) (bool, error)

	// ReleaseRun drops owner's lease.
	ReleaseRun(ctx context.Context, runID id.RunID, owner string) error

	// RequestCancel flags a run for cancellation.
	RequestCancel(ctx context.Context, runID id.RunID, reason string) error

	// SaveCheckpoint persists a step record. An existing record for the
	// same run and step is kept; the first write wins.
	SaveCheckpoint(ctx context.Context, cp *Checkpoint) error

	// GetCheckpoint retrieves the record of one step. Returns nil, nil if
	// the step has not completed.
	GetCheckpoint(ctx context.Context, runID id.RunID, stepName string) (*Checkpoint, error)

	// ListCheckpoints returns all step records of a run.
	ListCheckpoints(ctx context.Context, runID id.RunID) ([]*Checkpoint, error)

	// SavePendingEvent records a wait point. An existing record for the
	// same run and step is kept so the deadline never moves.
	SavePendingEvent(ctx context.Context, pe *PendingEvent) error

	// GetPendingEvent returns a wait point or nil, nil.
	GetPendingEvent(ctx context.Context, runID id.RunID, stepName string) (*PendingEvent, error)

	// ResolvePendingEvent marks a wait point resolved.
	ResolvePendingEvent(ctx context.Context, runID id.RunID, stepName string, payload []byte, timedOut bool, at time.Time) error

	// ListPendingEvents returns every wait point of a run.
	ListPendingEvents(ctx context.Context, runID id.RunID) ([]*PendingEvent, error)
}
