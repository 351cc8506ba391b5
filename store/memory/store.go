// Package memory provides an in-memory implementation of store.Store.
// Values are copied on the way in and out so callers never share state
// with the store. Intended for unit testing and development.
package memory

import (
	"context"
	"sync"

	"github.com/CavellTopDev/pitchey-app-sub015/event"
	"github.com/CavellTopDev/pitchey-app-sub015/investment"
	"github.com/CavellTopDev/pitchey-app-sub015/nda"
	"github.com/CavellTopDev/pitchey-app-sub015/production"
	"github.com/CavellTopDev/pitchey-app-sub015/risk"
	"github.com/CavellTopDev/pitchey-app-sub015/workflow"
)

// Ensure Store implements every subsystem store at compile time.
// We can't import store here (import cycle), so we verify each subsystem.
var (
	_ workflow.Store   = (*Store)(nil)
	_ event.Store      = (*Store)(nil)
	_ nda.Store        = (*Store)(nil)
	_ nda.Directory    = (*Store)(nil)
	_ investment.Store = (*Store)(nil)
	_ production.Store = (*Store)(nil)
)

// Store is a fully in-memory implementation of store.Store.
// Safe for concurrent access. A single mutex serializes every write, which
// also gives the cross-instance checks their atomicity.
type Store struct {
	mu sync.RWMutex

	// seq orders records created within the same clock tick.
	seq uint64

	runs        map[string]*workflow.Run
	checkpoints map[string]*seqCheckpoint // key: "runID:stepName"
	waits       map[string]*seqWait       // key: "runID:stepName"
	events      map[string]*seqEvent

	ndas      map[string]*nda.NDA
	grants    map[string]*nda.AccessGrant // key: NDA ID
	profiles  map[string]*risk.Profile
	templates map[string]*risk.Template

	investments map[string]*investment.Deal

	productions map[string]*production.Deal
	activations map[string]*production.Activation // key: pitch ID
}

type seqCheckpoint struct {
	seq uint64
	cp  *workflow.Checkpoint
}

type seqWait struct {
	seq uint64
	pe  *workflow.PendingEvent
}

type seqEvent struct {
	seq uint64
	evt *event.Event
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		runs:        make(map[string]*workflow.Run),
		checkpoints: make(map[string]*seqCheckpoint),
		waits:       make(map[string]*seqWait),
		events:      make(map[string]*seqEvent),
		ndas:        make(map[string]*nda.NDA),
		grants:      make(map[string]*nda.AccessGrant),
		profiles:    make(map[string]*risk.Profile),
		templates:   make(map[string]*risk.Template),
		investments: make(map[string]*investment.Deal),
		productions: make(map[string]*production.Deal),
		activations: make(map[string]*production.Activation),
	}
}

func (m *Store) next() uint64 {
	m.seq++
	return m.seq
}

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }
