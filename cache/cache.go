// Package cache publishes workflow statuses to a key-value cache so
// read paths can show progress without touching the relational store.
// Keys follow "<kind>:<id>:status", for example "nda:nda_01h...:status".
package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/CavellTopDev/pitchey-app-sub015/workflow"
)

// Kinds used in status keys.
const (
	KindNDA        = "nda"
	KindInvestment = "investment"
	KindProduction = "production"
)

// DefaultTTL bounds how long a status entry lives.
const DefaultTTL = 24 * time.Hour

// Entry is a cached status.
type Entry struct {
	Status    string    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StatusCache stores status entries with a bounded lifetime.
type StatusCache interface {
	SetStatus(ctx context.Context, key string, e Entry) error
	// GetStatus returns nil, nil for missing or expired keys.
	GetStatus(ctx context.Context, key string) (*Entry, error)
}

// StatusKey builds the cache key of an entity.
func StatusKey(kind, id string) string { return kind + ":" + id + ":status" }

// Publish writes the status of an entity from inside a workflow as a
// checkpointed step. Cache failures are logged and swallowed; only
// interrupts of the run are returned.
func Publish(wf *workflow.Workflow, c StatusCache, kind, id, status, reason string) error {
	if c == nil {
		return nil
	}
	key := StatusKey(kind, id)
	err := wf.Step(wf.UniqueName("cache:"+status), func(ctx context.Context) error {
		return c.SetStatus(ctx, key, Entry{Status: status, Reason: reason, UpdatedAt: wf.Now()})
	})
	if err == nil {
		return nil
	}
	if wf.Interrupted(err) {
		return err
	}
	wf.Logger().Warn("status cache write failed",
		slog.String("key", key),
		slog.String("error", err.Error()),
	)
	return nil
}

// ──────────────────────────────────────────────────
// Memory
// ──────────────────────────────────────────────────

var _ StatusCache = (*Memory)(nil)

type memoryEntry struct {
	entry     Entry
	expiresAt time.Time
}

// Memory is an in-process StatusCache.
type Memory struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	entries map[string]memoryEntry
}

// NewMemory creates an in-process cache. A non-positive ttl selects
// DefaultTTL.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{ttl: ttl, now: time.Now, entries: make(map[string]memoryEntry)}
}

// SetStatus stores e under key.
func (m *Memory) SetStatus(_ context.Context, key string, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{entry: e, expiresAt: m.now().Add(m.ttl)}
	return nil
}

// GetStatus returns the entry under key.
func (m *Memory) GetStatus(_ context.Context, key string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	me, ok := m.entries[key]
	if !ok || !m.now().Before(me.expiresAt) {
		return nil, nil
	}
	e := me.entry
	return &e, nil
}
