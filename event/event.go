// Package event buffers external deliveries addressed to workflow
// instances. A delivery is persisted first and claimed later by the wait
// point that consumes it, so events that arrive before a wait opens are
// never lost.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/CavellTopDev/pitchey-app-sub015/id"
)

// Event is a named delivery for one workflow instance.
type Event struct {
	ID      id.EventID      `json:"id"`
	RunID   id.RunID        `json:"run_id"`
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload,omitempty"`

	// ClaimedBy is the wait key that consumed the event. Empty while the
	// event is still buffered.
	ClaimedBy string    `json:"claimed_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Decode unmarshals the JSON payload into v. An empty payload leaves v
// untouched.
func (e *Event) Decode(v any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("event %s: decode payload: %w", e.Name, err)
	}
	return nil
}

// Store defines the persistence contract for buffered events.
type Store interface {
	// PublishEvent persists a new unclaimed event.
	PublishEvent(ctx context.Context, evt *Event) error

	// ClaimEvent returns the oldest event for runID and name that is
	// unclaimed or already claimed by claimant, marking it claimed by
	// claimant. Claiming is idempotent per claimant so a wait that crashed
	// after claiming gets the same event back. Returns nil, nil when no
	// event is available.
	ClaimEvent(ctx context.Context, runID id.RunID, name, claimant string) (*Event, error)

	// ListEvents returns every event delivered to runID, oldest first.
	ListEvents(ctx context.Context, runID id.RunID) ([]*Event, error)
}
