package stream

import (
	"slices"
	"sync"
	"sync/atomic"
)

// Subscriber receives events from the topics it joined with. Delivery
// never blocks the publisher: an event is dropped when the buffer is full.
type Subscriber struct {
	id     string
	topics []string
	ch     chan *Event

	dropped atomic.Int64

	// mu orders sends against Close.
	mu     sync.RWMutex
	closed bool
}

func newSubscriber(id string, topics []string, buffer int) *Subscriber {
	return &Subscriber{
		id:     id,
		topics: slices.Compact(slices.Sorted(slices.Values(topics))),
		ch:     make(chan *Event, buffer),
	}
}

// ID returns the subscriber identifier.
func (s *Subscriber) ID() string { return s.id }

// Topics returns the subscribed topic names in sorted order.
func (s *Subscriber) Topics() []string { return slices.Clone(s.topics) }

// C returns the event channel. It is closed when the subscriber is
// removed or the broker shuts down.
func (s *Subscriber) C() <-chan *Event { return s.ch }

// Dropped returns how many events were dropped on a full buffer.
func (s *Subscriber) Dropped() int64 { return s.dropped.Load() }

func (s *Subscriber) send(evt *Event) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- evt:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

// Close closes the event channel. Safe to call more than once.
func (s *Subscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}
