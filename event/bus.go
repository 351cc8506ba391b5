package event

import (
	"context"
	"encoding/json"
	"github.com/jonboulle/clockwork"

	"github.com/CavellTopDev/pitchey-app-sub015/id"
)

// Bus is the publishing side of the event buffer. API handlers and
// webhooks publish through it; workflow waits claim through the Store.
type Bus struct {
	store Store
	clock clockwork.Clock
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithClock sets the clock that stamps published events.
func WithClock(c clockwork.Clock) BusOption {
	return func(b *Bus) { b.clock = c }
}

// NewBus creates an event bus backed by the given store.
func NewBus(store Store, opts ...BusOption) *Bus {
	b := &Bus{store: store, clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish persists a delivery of name to the instance runID.
func (b *Bus) Publish(ctx context.Context, runID id.RunID, name string, payload json.RawMessage) (*Event, error) {
	evt := &Event{
		ID:        id.NewEventID(),
		RunID:     runID,
		Name:      name,
		Payload:   payload,
		CreatedAt: b.clock.Now().UTC(),
	}
	if err := b.store.PublishEvent(ctx, evt); err != nil {
		return nil, err
	}
	return evt, nil
}

// PublishJSON marshals v and publishes it.
func (b *Bus) PublishJSON(ctx context.Context, runID id.RunID, name string, v any) (*Event, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return b.Publish(ctx, runID, name, data)
}

// Store returns the underlying event store.
func (b *Bus) Store() Store { return b.store }
