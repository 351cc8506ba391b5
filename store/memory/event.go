package memory

import (
	"context"
	"slices"
	"sort"

	"github.com/CavellTopDev/pitchey-app-sub015/event"
	"github.com/CavellTopDev/pitchey-app-sub015/id"
)

func cloneEvent(e *event.Event) *event.Event {
	c := *e
	c.Payload = slices.Clone(e.Payload)
	return &c
}

// PublishEvent persists a new unclaimed event.
func (m *Store) PublishEvent(_ context.Context, evt *event.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events[evt.ID.String()] = &seqEvent{seq: m.next(), evt: cloneEvent(evt)}
	return nil
}

// ClaimEvent returns the event already claimed by claimant, or else the
// oldest unclaimed event for runID and name, marking it claimed.
func (m *Store) ClaimEvent(_ context.Context, runID id.RunID, name, claimant string) (*event.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var oldest *seqEvent
	for _, e := range m.events {
		if e.evt.RunID != runID || e.evt.Name != name {
			continue
		}
		if e.evt.ClaimedBy == claimant {
			return cloneEvent(e.evt), nil
		}
		if e.evt.ClaimedBy == "" && (oldest == nil || e.seq < oldest.seq) {
			oldest = e
		}
	}
	if oldest == nil {
		return nil, nil
	}
	oldest.evt.ClaimedBy = claimant
	return cloneEvent(oldest.evt), nil
}

// ListEvents returns every event delivered to runID, oldest first.
func (m *Store) ListEvents(_ context.Context, runID id.RunID) ([]*event.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var found []*seqEvent
	for _, e := range m.events {
		if e.evt.RunID == runID {
			found = append(found, e)
		}
	}
	sort.Slice(found, func(i, k int) bool { return found[i].seq < found[k].seq })

	result := make([]*event.Event, 0, len(found))
	for _, e := range found {
		result = append(result, cloneEvent(e.evt))
	}
	return result, nil
}
