package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	dealflow "github.com/CavellTopDev/pitchey-app-sub015"
	"github.com/CavellTopDev/pitchey-app-sub015/id"
	"github.com/CavellTopDev/pitchey-app-sub015/workflow"
)

func cloneRun(r *workflow.Run) *workflow.Run {
	cp := *r
	cp.Input = slices.Clone(r.Input)
	cp.Output = slices.Clone(r.Output)
	return &cp
}

// CreateRun persists a new workflow run.
func (m *Store) CreateRun(_ context.Context, run *workflow.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := run.ID.String()
	if _, exists := m.runs[key]; exists {
		return dealflow.ErrRunAlreadyExists
	}
	m.runs[key] = cloneRun(run)
	return nil
}

// GetRun retrieves a workflow run by ID.
func (m *Store) GetRun(_ context.Context, runID id.RunID) (*workflow.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.runs[runID.String()]
	if !ok {
		return nil, dealflow.ErrRunNotFound
	}
	return cloneRun(r), nil
}

// UpdateRun persists execution progress. Lease and cancellation fields
// keep their stored values.
func (m *Store) UpdateRun(_ context.Context, run *workflow.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := run.ID.String()
	existing, ok := m.runs[key]
	if !ok {
		return dealflow.ErrRunNotFound
	}
	updated := cloneRun(run)
	updated.LockedBy = existing.LockedBy
	updated.LockedUntil = existing.LockedUntil
	updated.CancelRequested = existing.CancelRequested
	updated.CancelReason = existing.CancelReason
	updated.UpdatedAt = time.Now().UTC()
	m.runs[key] = updated
	return nil
}

// ListRuns returns workflow runs matching the given options, oldest first.
func (m *Store) ListRuns(_ context.Context, opts workflow.ListOpts) ([]*workflow.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*workflow.Run, 0, len(m.runs))
	for _, r := range m.runs {
		if opts.State != "" && r.State != opts.State {
			continue
		}
		if opts.Name != "" && r.Name != opts.Name {
			continue
		}
		result = append(result, cloneRun(r))
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}

	return result, nil
}

// ListDueRuns returns runs that need execution at now.
func (m *Store) ListDueRuns(_ context.Context, now time.Time, limit int) ([]*workflow.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*workflow.Run
	for _, r := range m.runs {
		if m.due(r, now) {
			result = append(result, cloneRun(r))
		}
	}

	sort.Slice(result, func(i, k int) bool {
		return dueAt(result[i]).Before(dueAt(result[k]))
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *Store) due(r *workflow.Run, now time.Time) bool {
	switch r.State {
	case workflow.RunStateWaiting:
		if r.CancelRequested {
			return true
		}
		if r.WakeAt != nil && !r.WakeAt.After(now) {
			return true
		}
		return r.WaitingOn != "" && m.hasUnclaimed(r.ID, r.WaitingOn)
	case workflow.RunStateRunning:
		return r.LockedUntil == nil || !r.LockedUntil.After(now)
	default:
		return false
	}
}

func dueAt(r *workflow.Run) time.Time {
	if r.WakeAt != nil {
		return *r.WakeAt
	}
	return r.UpdatedAt
}

func (m *Store) hasUnclaimed(runID id.RunID, name string) bool {
	for _, e := range m.events {
		if e.evt.RunID == runID && e.evt.Name == name && e.evt.ClaimedBy == "" {
			return true
		}
	}
	return false
}

// ClaimRun takes the execution lease of a run.
func (m *Store) ClaimRun(_ context.Context, runID id.RunID, owner string, now time.Time, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.runs[runID.String()]
	if !ok {
		return false, dealflow.ErrRunNotFound
	}
	held := r.LockedBy != "" && r.LockedUntil != nil && r.LockedUntil.After(now)
	if held && r.LockedBy != owner {
		return false, nil
	}
	until := now.Add(ttl)
	r.LockedBy = owner
	r.LockedUntil = &until
	return true, nil
}

// ReleaseRun drops owner's lease.
func (m *Store) ReleaseRun(_ context.Context, runID id.RunID, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.runs[runID.String()]
	if !ok {
		return dealflow.ErrRunNotFound
	}
	if r.LockedBy == owner {
		r.LockedBy = ""
		r.LockedUntil = nil
	}
	return nil
}

// RequestCancel flags a run for cancellation.
func (m *Store) RequestCancel(_ context.Context, runID id.RunID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.runs[runID.String()]
	if !ok {
		return dealflow.ErrRunNotFound
	}
	r.CancelRequested = true
	r.CancelReason = reason
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// stepKey builds a composite map key for a checkpoint or wait.
func stepKey(runID id.RunID, stepName string) string {
	return runID.String() + ":" + stepName
}

func cloneCheckpoint(cp *workflow.Checkpoint) *workflow.Checkpoint {
	c := *cp
	c.Data = slices.Clone(cp.Data)
	return &c
}

// SaveCheckpoint persists a step record. The first write wins.
func (m *Store) SaveCheckpoint(_ context.Context, cp *workflow.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := stepKey(cp.RunID, cp.StepName)
	if _, exists := m.checkpoints[key]; exists {
		return nil
	}
	m.checkpoints[key] = &seqCheckpoint{seq: m.next(), cp: cloneCheckpoint(cp)}
	return nil
}

// GetCheckpoint retrieves the record of one step or nil, nil.
func (m *Store) GetCheckpoint(_ context.Context, runID id.RunID, stepName string) (*workflow.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.checkpoints[stepKey(runID, stepName)]
	if !ok {
		return nil, nil
	}
	return cloneCheckpoint(c.cp), nil
}

// ListCheckpoints returns all step records of a run in completion order.
func (m *Store) ListCheckpoints(_ context.Context, runID id.RunID) ([]*workflow.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	prefix := runID.String() + ":"
	var found []*seqCheckpoint
	for k, c := range m.checkpoints {
		if strings.HasPrefix(k, prefix) {
			found = append(found, c)
		}
	}
	sort.Slice(found, func(i, k int) bool { return found[i].seq < found[k].seq })

	result := make([]*workflow.Checkpoint, 0, len(found))
	for _, c := range found {
		result = append(result, cloneCheckpoint(c.cp))
	}
	return result, nil
}

func cloneWait(pe *workflow.PendingEvent) *workflow.PendingEvent {
	c := *pe
	c.Payload = slices.Clone(pe.Payload)
	if pe.ResolvedAt != nil {
		at := *pe.ResolvedAt
		c.ResolvedAt = &at
	}
	return &c
}

// SavePendingEvent records a wait point. The first write wins.
func (m *Store) SavePendingEvent(_ context.Context, pe *workflow.PendingEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := stepKey(pe.RunID, pe.StepName)
	if _, exists := m.waits[key]; exists {
		return nil
	}
	m.waits[key] = &seqWait{seq: m.next(), pe: cloneWait(pe)}
	return nil
}

// GetPendingEvent returns a wait point or nil, nil.
func (m *Store) GetPendingEvent(_ context.Context, runID id.RunID, stepName string) (*workflow.PendingEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w, ok := m.waits[stepKey(runID, stepName)]
	if !ok {
		return nil, nil
	}
	return cloneWait(w.pe), nil
}

// ResolvePendingEvent marks a wait point resolved. Resolving twice keeps
// the first outcome.
func (m *Store) ResolvePendingEvent(_ context.Context, runID id.RunID, stepName string, payload []byte, timedOut bool, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.waits[stepKey(runID, stepName)]
	if !ok {
		return fmt.Errorf("wait %q of run %s: %w", stepName, runID, dealflow.ErrWaitNotFound)
	}
	if w.pe.ResolvedAt != nil {
		return nil
	}
	resolvedAt := at.UTC()
	w.pe.ResolvedAt = &resolvedAt
	w.pe.TimedOut = timedOut
	w.pe.Payload = slices.Clone(payload)
	return nil
}

// ListPendingEvents returns every wait point of a run in creation order.
func (m *Store) ListPendingEvents(_ context.Context, runID id.RunID) ([]*workflow.PendingEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	prefix := runID.String() + ":"
	var found []*seqWait
	for k, w := range m.waits {
		if strings.HasPrefix(k, prefix) {
			found = append(found, w)
		}
	}
	sort.Slice(found, func(i, k int) bool { return found[i].seq < found[k].seq })

	result := make([]*workflow.PendingEvent, 0, len(found))
	for _, w := range found {
		result = append(result, cloneWait(w.pe))
	}
	return result, nil
}
