package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	dealflow "github.com/CavellTopDev/pitchey-app-sub015"
	"github.com/CavellTopDev/pitchey-app-sub015/id"
	"github.com/CavellTopDev/pitchey-app-sub015/workflow"
)

const runColumns = `id, name, state, status, reason, input, output, error,
	wake_at, waiting_on, locked_by, locked_until, cancel_requested, cancel_reason,
	started_at, completed_at, created_at, updated_at`

// CreateRun persists a new workflow run.
func (s *Store) CreateRun(ctx context.Context, run *workflow.Run) error {
	now := time.Now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	if run.UpdatedAt.IsZero() {
		run.UpdatedAt = now
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO dealflow_runs (`+runColumns+`) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8,
			$9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18
		)`,
		run.ID, run.Name, string(run.State), run.Status, run.Reason, run.Input, run.Output, run.Error,
		run.WakeAt, run.WaitingOn, run.LockedBy, run.LockedUntil, run.CancelRequested, run.CancelReason,
		run.StartedAt, run.CompletedAt, run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return dealflow.ErrRunAlreadyExists
		}
		return fmt.Errorf("dealflow/postgres: create run: %w", err)
	}
	return nil
}

// GetRun retrieves a workflow run by ID.
func (s *Store) GetRun(ctx context.Context, runID id.RunID) (*workflow.Run, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM dealflow_runs WHERE id = $1`, runID)
	run, err := scanRun(row)
	if err != nil {
		if isNoRows(err) {
			return nil, dealflow.ErrRunNotFound
		}
		return nil, fmt.Errorf("dealflow/postgres: get run: %w", err)
	}
	return run, nil
}

// UpdateRun persists execution progress. Lease and cancellation columns
// are not written.
func (s *Store) UpdateRun(ctx context.Context, run *workflow.Run) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE dealflow_runs SET
			state = $2, status = $3, reason = $4, output = $5, error = $6,
			wake_at = $7, waiting_on = $8, completed_at = $9, updated_at = NOW()
		WHERE id = $1`,
		run.ID, string(run.State), run.Status, run.Reason, run.Output, run.Error,
		run.WakeAt, run.WaitingOn, run.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("dealflow/postgres: update run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return dealflow.ErrRunNotFound
	}
	return nil
}

// ListRuns returns workflow runs matching the given options, oldest first.
func (s *Store) ListRuns(ctx context.Context, opts workflow.ListOpts) ([]*workflow.Run, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+runColumns+` FROM dealflow_runs
		WHERE ($1 = '' OR state = $1) AND ($2 = '' OR name = $2)
		ORDER BY created_at ASC, id ASC
		LIMIT $3 OFFSET $4`,
		string(opts.State), opts.Name, limitArg(opts.Limit), max(opts.Offset, 0),
	)
	if err != nil {
		return nil, fmt.Errorf("dealflow/postgres: list runs: %w", err)
	}
	return collectRuns(rows)
}

// ListDueRuns returns runs that need execution at now: waiting runs with
// a passed deadline, a buffered event or a pending cancel, and running
// runs whose lease lapsed.
func (s *Store) ListDueRuns(ctx context.Context, now time.Time, limit int) ([]*workflow.Run, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+runColumns+` FROM dealflow_runs r
		WHERE (r.state = 'waiting' AND (
				r.cancel_requested
				OR r.wake_at <= $1
				OR (r.waiting_on <> '' AND EXISTS (
					SELECT 1 FROM dealflow_events e
					WHERE e.run_id = r.id AND e.name = r.waiting_on AND e.claimed_by = ''
				))
			))
			OR (r.state = 'running' AND (r.locked_until IS NULL OR r.locked_until <= $1))
		ORDER BY COALESCE(r.wake_at, r.updated_at) ASC
		LIMIT $2`,
		now, limitArg(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("dealflow/postgres: list due runs: %w", err)
	}
	return collectRuns(rows)
}

// ClaimRun takes the execution lease of a run with a single conditional
// update, so two processes can never both win.
func (s *Store) ClaimRun(ctx context.Context, runID id.RunID, owner string, now time.Time, ttl time.Duration) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE dealflow_runs SET locked_by = $2, locked_until = $3
		WHERE id = $1
		  AND (locked_by = '' OR locked_by = $2 OR locked_until IS NULL OR locked_until <= $4)`,
		runID, owner, now.Add(ttl), now,
	)
	if err != nil {
		return false, fmt.Errorf("dealflow/postgres: claim run: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	if _, err := s.GetRun(ctx, runID); err != nil {
		return false, err
	}
	return false, nil
}

// ReleaseRun drops owner's lease.
func (s *Store) ReleaseRun(ctx context.Context, runID id.RunID, owner string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE dealflow_runs SET locked_by = '', locked_until = NULL
		WHERE id = $1 AND locked_by = $2`,
		runID, owner,
	)
	if err != nil {
		return fmt.Errorf("dealflow/postgres: release run: %w", err)
	}
	return nil
}

// RequestCancel flags a run for cancellation.
func (s *Store) RequestCancel(ctx context.Context, runID id.RunID, reason string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE dealflow_runs SET cancel_requested = TRUE, cancel_reason = $2, updated_at = NOW()
		WHERE id = $1`,
		runID, reason,
	)
	if err != nil {
		return fmt.Errorf("dealflow/postgres: request cancel: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return dealflow.ErrRunNotFound
	}
	return nil
}

// SaveCheckpoint persists a step record. The first write wins.
func (s *Store) SaveCheckpoint(ctx context.Context, cp *workflow.Checkpoint) error {
	createdAt := cp.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO dealflow_checkpoints (id, run_id, step_name, data, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (run_id, step_name) DO NOTHING`,
		cp.ID, cp.RunID, cp.StepName, cp.Data, cp.Error, createdAt,
	)
	if err != nil {
		return fmt.Errorf("dealflow/postgres: save checkpoint: %w", err)
	}
	return nil
}

// GetCheckpoint retrieves the record of one step or nil, nil.
func (s *Store) GetCheckpoint(ctx context.Context, runID id.RunID, stepName string) (*workflow.Checkpoint, error) {
	var cp workflow.Checkpoint
	err := s.pool.QueryRow(ctx, `
		SELECT id, run_id, step_name, data, error, created_at
		FROM dealflow_checkpoints WHERE run_id = $1 AND step_name = $2`,
		runID, stepName,
	).Scan(&cp.ID, &cp.RunID, &cp.StepName, &cp.Data, &cp.Error, &cp.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("dealflow/postgres: get checkpoint: %w", err)
	}
	return &cp, nil
}

// ListCheckpoints returns all step records of a run in completion order.
func (s *Store) ListCheckpoints(ctx context.Context, runID id.RunID) ([]*workflow.Checkpoint, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, run_id, step_name, data, error, created_at
		FROM dealflow_checkpoints WHERE run_id = $1 ORDER BY seq ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("dealflow/postgres: list checkpoints: %w", err)
	}
	defer rows.Close()

	var result []*workflow.Checkpoint
	for rows.Next() {
		var cp workflow.Checkpoint
		if err := rows.Scan(&cp.ID, &cp.RunID, &cp.StepName, &cp.Data, &cp.Error, &cp.CreatedAt); err != nil {
			return nil, fmt.Errorf("dealflow/postgres: scan checkpoint: %w", err)
		}
		result = append(result, &cp)
	}
	return result, rows.Err()
}

// SavePendingEvent records a wait point. The first write wins so the
// deadline never moves.
func (s *Store) SavePendingEvent(ctx context.Context, pe *workflow.PendingEvent) error {
	createdAt := pe.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO dealflow_waits (run_id, step_name, event_name, deadline, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (run_id, step_name) DO NOTHING`,
		pe.RunID, pe.StepName, pe.EventName, pe.Deadline, createdAt,
	)
	if err != nil {
		return fmt.Errorf("dealflow/postgres: save pending event: %w", err)
	}
	return nil
}

const waitColumns = `run_id, step_name, event_name, deadline, resolved_at, timed_out, payload, created_at`

func scanWait(row pgx.Row) (*workflow.PendingEvent, error) {
	var pe workflow.PendingEvent
	err := row.Scan(&pe.RunID, &pe.StepName, &pe.EventName, &pe.Deadline,
		&pe.ResolvedAt, &pe.TimedOut, &pe.Payload, &pe.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &pe, nil
}

// GetPendingEvent returns a wait point or nil, nil.
func (s *Store) GetPendingEvent(ctx context.Context, runID id.RunID, stepName string) (*workflow.PendingEvent, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+waitColumns+` FROM dealflow_waits WHERE run_id = $1 AND step_name = $2`,
		runID, stepName)
	pe, err := scanWait(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("dealflow/postgres: get pending event: %w", err)
	}
	return pe, nil
}

// ResolvePendingEvent marks a wait point resolved. Resolving twice keeps
// the first outcome.
func (s *Store) ResolvePendingEvent(ctx context.Context, runID id.RunID, stepName string, payload []byte, timedOut bool, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE dealflow_waits SET resolved_at = $3, timed_out = $4, payload = $5
		WHERE run_id = $1 AND step_name = $2 AND resolved_at IS NULL`,
		runID, stepName, at.UTC(), timedOut, payload,
	)
	if err != nil {
		return fmt.Errorf("dealflow/postgres: resolve pending event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		pe, getErr := s.GetPendingEvent(ctx, runID, stepName)
		if getErr != nil {
			return getErr
		}
		if pe == nil {
			return fmt.Errorf("wait %q of run %s: %w", stepName, runID, dealflow.ErrWaitNotFound)
		}
	}
	return nil
}

// ListPendingEvents returns every wait point of a run in creation order.
func (s *Store) ListPendingEvents(ctx context.Context, runID id.RunID) ([]*workflow.PendingEvent, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+waitColumns+` FROM dealflow_waits WHERE run_id = $1 ORDER BY seq ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("dealflow/postgres: list pending events: %w", err)
	}
	defer rows.Close()

	var result []*workflow.PendingEvent
	for rows.Next() {
		pe, scanErr := scanWait(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("dealflow/postgres: scan pending event: %w", scanErr)
		}
		result = append(result, pe)
	}
	return result, rows.Err()
}

func scanRun(row pgx.Row) (*workflow.Run, error) {
	var (
		r     workflow.Run
		state string
	)
	err := row.Scan(
		&r.ID, &r.Name, &state, &r.Status, &r.Reason, &r.Input, &r.Output, &r.Error,
		&r.WakeAt, &r.WaitingOn, &r.LockedBy, &r.LockedUntil, &r.CancelRequested, &r.CancelReason,
		&r.StartedAt, &r.CompletedAt, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.State = workflow.RunState(state)
	return &r, nil
}

func collectRuns(rows pgx.Rows) ([]*workflow.Run, error) {
	defer rows.Close()

	var result []*workflow.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("dealflow/postgres: scan run: %w", err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dealflow/postgres: list runs: %w", err)
	}
	return result, nil
}
