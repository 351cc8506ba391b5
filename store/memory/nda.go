package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	dealflow "github.com/CavellTopDev/pitchey-app-sub015"
	"github.com/CavellTopDev/pitchey-app-sub015/id"
	"github.com/CavellTopDev/pitchey-app-sub015/nda"
	"github.com/CavellTopDev/pitchey-app-sub015/risk"
)

func cloneNDA(n *nda.NDA) *nda.NDA {
	c := *n
	c.CustomTerms = maps.Clone(n.CustomTerms)
	c.TerritorialRestrictions = slices.Clone(n.TerritorialRestrictions)
	return &c
}

// CreateNDA inserts n unless the requester already has a non-terminal
// NDA for the pitch.
func (m *Store) CreateNDA(_ context.Context, n *nda.NDA) (*nda.NDA, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.ndas {
		if !n.RunID.IsNil() && existing.RunID == n.RunID {
			return cloneNDA(existing), nil
		}
	}
	for _, existing := range m.ndas {
		if existing.RequesterID == n.RequesterID && existing.PitchID == n.PitchID && !existing.Status.Terminal() {
			return nil, fmt.Errorf("nda %s for requester %s on pitch %s: %w",
				existing.ID, n.RequesterID, n.PitchID, dealflow.ErrDuplicateNDA)
		}
	}

	stored := cloneNDA(n)
	if stored.CreatedAt.IsZero() {
		stored.Entity = dealflow.NewEntity()
	}
	m.ndas[n.ID.String()] = stored
	return cloneNDA(stored), nil
}

// GetNDA retrieves an NDA by ID.
func (m *Store) GetNDA(_ context.Context, ndaID id.NDAID) (*nda.NDA, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n, ok := m.ndas[ndaID.String()]
	if !ok {
		return nil, dealflow.ErrNDANotFound
	}
	return cloneNDA(n), nil
}

// GetNDAByRun retrieves the NDA created by a workflow run.
func (m *Store) GetNDAByRun(_ context.Context, runID id.RunID) (*nda.NDA, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, n := range m.ndas {
		if n.RunID == runID {
			return cloneNDA(n), nil
		}
	}
	return nil, dealflow.ErrNDANotFound
}

// ActiveNDA returns the non-terminal NDA of a requester for a pitch, or
// nil, nil.
func (m *Store) ActiveNDA(_ context.Context, requesterID, pitchID string) (*nda.NDA, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, n := range m.ndas {
		if n.RequesterID == requesterID && n.PitchID == pitchID && !n.Status.Terminal() {
			return cloneNDA(n), nil
		}
	}
	return nil, nil
}

// UpdateNDA persists changes to an existing NDA.
func (m *Store) UpdateNDA(_ context.Context, n *nda.NDA) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := n.ID.String()
	if _, ok := m.ndas[key]; !ok {
		return dealflow.ErrNDANotFound
	}
	stored := cloneNDA(n)
	stored.Touch()
	m.ndas[key] = stored
	return nil
}

// GrantAccess records g unless the NDA already has a grant.
func (m *Store) GrantAccess(_ context.Context, g *nda.AccessGrant) (*nda.AccessGrant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := g.NDAID.String()
	if existing, ok := m.grants[key]; ok {
		c := *existing
		return &c, nil
	}
	stored := *g
	m.grants[key] = &stored
	c := stored
	return &c, nil
}

// RevokeAccess revokes the grant of an NDA. Revoking twice keeps the
// first timestamp.
func (m *Store) RevokeAccess(_ context.Context, ndaID id.NDAID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.grants[ndaID.String()]
	if !ok {
		return dealflow.ErrGrantNotFound
	}
	if g.RevokedAt == nil {
		revokedAt := at.UTC()
		g.RevokedAt = &revokedAt
	}
	return nil
}

// GetGrantByNDA returns the grant of an NDA.
func (m *Store) GetGrantByNDA(_ context.Context, ndaID id.NDAID) (*nda.AccessGrant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	g, ok := m.grants[ndaID.String()]
	if !ok {
		return nil, dealflow.ErrGrantNotFound
	}
	c := *g
	return &c, nil
}

// HasAccess reports whether userID holds an unrevoked grant for pitchID.
func (m *Store) HasAccess(_ context.Context, pitchID, userID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, g := range m.grants {
		if g.PitchID == pitchID && g.UserID == userID && g.RevokedAt == nil {
			return true, nil
		}
	}
	return false, nil
}

// ──────────────────────────────────────────────────
// Directory
// ──────────────────────────────────────────────────

// SaveProfile upserts a requester profile.
func (m *Store) SaveProfile(_ context.Context, p *risk.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := *p
	m.profiles[p.UserID] = &c
	return nil
}

// SaveTemplate upserts an agreement template.
func (m *Store) SaveTemplate(_ context.Context, t *risk.Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := *t
	m.templates[t.ID] = &c
	return nil
}

// Profile returns the profile of userID.
func (m *Store) Profile(_ context.Context, userID string) (*risk.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.profiles[userID]
	if !ok {
		return nil, dealflow.ErrProfileNotFound
	}
	c := *p
	return &c, nil
}

// Template returns the template with the given ID.
func (m *Store) Template(_ context.Context, templateID string) (*risk.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.templates[templateID]
	if !ok {
		return nil, dealflow.ErrTemplateNotFound
	}
	c := *t
	return &c, nil
}

// History summarizes the requester's earlier NDAs.
func (m *Store) History(_ context.Context, requesterID string) (risk.History, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var h risk.History
	for _, n := range m.ndas {
		if n.RequesterID != requesterID {
			continue
		}
		h.Total++
		if n.Breached {
			h.Breached++
		}
		if n.Disputed {
			h.Disputed++
		}
	}
	return h, nil
}
