package workflow

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/CavellTopDev/pitchey-app-sub015/id"
)

// TimelineKind distinguishes timeline entries.
type TimelineKind string

const (
	TimelineStep    TimelineKind = "step"
	TimelineWait    TimelineKind = "wait"
	TimelineTimeout TimelineKind = "timeout"
	TimelineOpen    TimelineKind = "open"
)

// TimelineEntry represents a single step or wait in a run's history.
type TimelineEntry struct {
	StepName string       `json:"step_name"`
	Kind     TimelineKind `json:"kind"`
	Data     []byte       `json:"data,omitempty"`
	Error    string       `json:"error,omitempty"`
	// Deadline is set for waits and sleeps.
	Deadline  *time.Time `json:"deadline,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// GetTimeline returns an ordered timeline of every step and wait of a
// run. Steps are stamped with their completion time, waits with their
// resolution time, and open waits with their creation time.
func (r *Runner) GetTimeline(ctx context.Context, runID id.RunID) ([]TimelineEntry, error) {
	checkpoints, err := r.store.ListCheckpoints(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints for run %s: %w", runID, err)
	}
	waits, err := r.store.ListPendingEvents(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("list waits for run %s: %w", runID, err)
	}

	entries := make([]TimelineEntry, 0, len(checkpoints)+len(waits))
	for _, cp := range checkpoints {
		entries = append(entries, TimelineEntry{
			StepName:  cp.StepName,
			Kind:      TimelineStep,
			Data:      cp.Data,
			Error:     cp.Error,
			CreatedAt: cp.CreatedAt,
		})
	}
	for _, pe := range waits {
		deadline := pe.Deadline
		e := TimelineEntry{
			StepName:  pe.StepName,
			Kind:      TimelineOpen,
			Deadline:  &deadline,
			CreatedAt: pe.CreatedAt,
		}
		if pe.ResolvedAt != nil {
			e.CreatedAt = *pe.ResolvedAt
			e.Kind = TimelineWait
			e.Data = pe.Payload
			if pe.TimedOut {
				e.Kind = TimelineTimeout
			}
		}
		entries = append(entries, e)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
	return entries, nil
}

// InspectStep returns the checkpoint of a specific step of a run.
func (r *Runner) InspectStep(ctx context.Context, runID id.RunID, stepName string) (*Checkpoint, error) {
	cp, err := r.store.GetCheckpoint(ctx, runID, stepName)
	if err != nil {
		return nil, fmt.Errorf("get checkpoint %q for run %s: %w", stepName, runID, err)
	}
	if cp == nil {
		return nil, fmt.Errorf("no checkpoint %q found for run %s", stepName, runID)
	}
	return cp, nil
}

// PendingWaits returns the open waits of a run.
func (r *Runner) PendingWaits(ctx context.Context, runID id.RunID) ([]*PendingEvent, error) {
	waits, err := r.store.ListPendingEvents(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("list waits for run %s: %w", runID, err)
	}
	open := waits[:0]
	for _, pe := range waits {
		if pe.Open() {
			open = append(open, pe)
		}
	}
	return open, nil
}
