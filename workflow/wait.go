package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/CavellTopDev/pitchey-app-sub015/event"
)

// WaitForEvent returns the next delivery of the named event to this run.
//
// The first time the body reaches the wait a pending record with
// deadline now+timeout is persisted. If a matching event is already
// buffered it is claimed and returned; if the deadline has passed the
// wait resolves as timed out and nil, nil is returned; otherwise the
// body is unwound with ErrSuspended and the runner parks the run until
// a delivery or the deadline wakes it. Resolved waits replay their
// outcome.
//
// Repeated waits on the same name are keyed "wait:<name>",
// "wait:<name>#2" and so on.
func (w *Workflow) WaitForEvent(name string, timeout time.Duration) (*event.Event, error) {
	key := w.nextKey("wait:" + name)

	pe, err := w.openWait(key, name, func(now time.Time) time.Time { return now.Add(timeout) })
	if err != nil || pe == nil {
		return nil, err
	}
	if !pe.Open() {
		return decodeResolved(pe)
	}

	if cancelErr := w.checkCancel(); cancelErr != nil {
		return nil, cancelErr
	}

	evt, err := w.eventStore.ClaimEvent(w.ctx, w.run.ID, name, key)
	if err != nil {
		return nil, fmt.Errorf("workflow %s: claim event %q: %w", w.run.Name, name, err)
	}
	now := w.clock.Now().UTC()
	if evt != nil {
		payload, encErr := json.Marshal(evt)
		if encErr != nil {
			return nil, fmt.Errorf("workflow %s: encode event %q: %w", w.run.Name, name, encErr)
		}
		if resErr := w.store.ResolvePendingEvent(w.ctx, w.run.ID, key, payload, false, now); resErr != nil {
			return nil, fmt.Errorf("workflow %s: resolve wait %q: %w", w.run.Name, key, resErr)
		}
		w.emitter.EmitStepCompleted(w.ctx, w.run, key, now.Sub(pe.CreatedAt))
		return evt, nil
	}

	if !now.Before(pe.Deadline) {
		if resErr := w.store.ResolvePendingEvent(w.ctx, w.run.ID, key, nil, true, now); resErr != nil {
			return nil, fmt.Errorf("workflow %s: resolve wait %q: %w", w.run.Name, key, resErr)
		}
		w.logger.Info("event wait timed out",
			slog.String("run_id", w.run.ID.String()),
			slog.String("event", name),
		)
		return nil, nil
	}

	return nil, w.suspend(pe)
}

// Sleep pauses the run for d. The deadline is fixed the first time the
// body reaches the sleep, so a restart never extends it.
func (w *Workflow) Sleep(label string, d time.Duration) error {
	return w.sleep(label, func(now time.Time) time.Time { return now.Add(d) })
}

// SleepUntil pauses the run until t.
func (w *Workflow) SleepUntil(label string, t time.Time) error {
	return w.sleep(label, func(time.Time) time.Time { return t.UTC() })
}

func (w *Workflow) sleep(label string, deadline func(now time.Time) time.Time) error {
	key := w.nextKey("sleep:" + label)

	pe, err := w.openWait(key, "", deadline)
	if err != nil {
		return err
	}
	if !pe.Open() {
		return nil
	}
	if cancelErr := w.checkCancel(); cancelErr != nil {
		return cancelErr
	}

	now := w.clock.Now().UTC()
	if now.Before(pe.Deadline) {
		return w.suspend(pe)
	}
	if resErr := w.store.ResolvePendingEvent(w.ctx, w.run.ID, key, nil, true, now); resErr != nil {
		return fmt.Errorf("workflow %s: resolve sleep %q: %w", w.run.Name, key, resErr)
	}
	w.emitter.EmitStepCompleted(w.ctx, w.run, key, now.Sub(pe.CreatedAt))
	return nil
}

// openWait loads the pending record for key, creating it on first entry.
// A cancelled run never opens a new wait.
func (w *Workflow) openWait(key, eventName string, deadline func(now time.Time) time.Time) (*PendingEvent, error) {
	pe, err := w.store.GetPendingEvent(w.ctx, w.run.ID, key)
	if err != nil {
		return nil, fmt.Errorf("workflow %s: get wait %q: %w", w.run.Name, key, err)
	}
	if pe != nil {
		return pe, nil
	}
	if cancelErr := w.checkCancel(); cancelErr != nil {
		return nil, cancelErr
	}

	now := w.clock.Now().UTC()
	pe = &PendingEvent{
		RunID:     w.run.ID,
		StepName:  key,
		EventName: eventName,
		Deadline:  deadline(now),
		CreatedAt: now,
	}
	if saveErr := w.store.SavePendingEvent(w.ctx, pe); saveErr != nil {
		return nil, fmt.Errorf("workflow %s: save wait %q: %w", w.run.Name, key, saveErr)
	}
	return pe, nil
}

func (w *Workflow) suspend(pe *PendingEvent) error {
	w.suspendedOn = pe
	w.logger.Debug("suspending run",
		slog.String("run_id", w.run.ID.String()),
		slog.String("wait", pe.StepName),
		slog.Time("deadline", pe.Deadline),
	)
	return ErrSuspended
}

func decodeResolved(pe *PendingEvent) (*event.Event, error) {
	if pe.TimedOut || len(pe.Payload) == 0 {
		return nil, nil
	}
	var evt event.Event
	if err := json.Unmarshal(pe.Payload, &evt); err != nil {
		return nil, fmt.Errorf("workflow: decode wait %q: %w", pe.StepName, err)
	}
	return &evt, nil
}

// Deadline returns now+d, fixed by the checkpointed step "deadline:<label>"
// the first time the body reaches it. Loops that wait more than once
// against one window use it so that each pass waits only for the time
// left.
func (w *Workflow) Deadline(label string, d time.Duration) (time.Time, error) {
	return StepWithResult(w, w.nextKey("deadline:"+label), func(context.Context) (time.Time, error) {
		return w.Now().Add(d), nil
	})
}

// Until returns the wait left until deadline, never negative.
func (w *Workflow) Until(deadline time.Time) time.Duration {
	if d := deadline.Sub(w.Now()); d > 0 {
		return d
	}
	return 0
}

// WaitForPayload waits for the named event and decodes its payload into
// T. Deliveries whose payload does not decode are logged and skipped, and
// the wait continues against the deadline fixed on first entry. ok is
// false when the deadline passes first.
func WaitForPayload[T any](w *Workflow, name string, timeout time.Duration) (v T, ok bool, err error) {
	deadline, err := w.Deadline(name, timeout)
	if err != nil {
		return v, false, err
	}
	for {
		evt, err := w.WaitForEvent(name, w.Until(deadline))
		if err != nil || evt == nil {
			return v, false, err
		}
		var decoded T
		if decErr := evt.Decode(&decoded); decErr != nil {
			w.Logger().Warn("skipping undecodable event",
				slog.String("event", name),
				slog.String("error", decErr.Error()),
			)
			continue
		}
		return decoded, true, nil
	}
}
