package memory

import (
	"context"
	"fmt"
	"time"

	dealflow "github.com/CavellTopDev/pitchey-app-sub015"
	"github.com/CavellTopDev/pitchey-app-sub015/id"
	"github.com/CavellTopDev/pitchey-app-sub015/production"
)

func cloneProduction(d *production.Deal) *production.Deal {
	c := *d
	if d.FinalTerms != nil {
		t := *d.FinalTerms
		c.FinalTerms = &t
	}
	return &c
}

// exclusiveHolder returns the non-terminal deal holding exclusivity on a
// pitch, if any.
func (m *Store) exclusiveHolder(pitchID string) *production.Deal {
	for _, d := range m.productions {
		if d.PitchID == pitchID && d.ExclusivityGrantedAt != nil && !d.Status.Terminal() {
			return d
		}
	}
	return nil
}

func exclusivityConflict(pitchID string) error {
	return fmt.Errorf("pitch %s: %w", pitchID, dealflow.ErrExclusivityConflict)
}

// CreateProductionDeal inserts d unless another deal holds exclusivity on
// the pitch or the pitch is already in production.
func (m *Store) CreateProductionDeal(_ context.Context, d *production.Deal) (*production.Deal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.productions {
		if !d.RunID.IsNil() && existing.RunID == d.RunID {
			return cloneProduction(existing), nil
		}
	}
	if _, active := m.activations[d.PitchID]; active {
		return nil, exclusivityConflict(d.PitchID)
	}
	if holder := m.exclusiveHolder(d.PitchID); holder != nil {
		return nil, exclusivityConflict(d.PitchID)
	}

	stored := cloneProduction(d)
	if stored.CreatedAt.IsZero() {
		stored.Entity = dealflow.NewEntity()
	}
	m.productions[d.ID.String()] = stored
	return cloneProduction(stored), nil
}

// GetProductionDeal retrieves a deal by ID.
func (m *Store) GetProductionDeal(_ context.Context, dealID id.ProductionID) (*production.Deal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.productions[dealID.String()]
	if !ok {
		return nil, dealflow.ErrDealNotFound
	}
	return cloneProduction(d), nil
}

// GetProductionDealByRun retrieves the deal created by a workflow run.
func (m *Store) GetProductionDealByRun(_ context.Context, runID id.RunID) (*production.Deal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, d := range m.productions {
		if d.RunID == runID {
			return cloneProduction(d), nil
		}
	}
	return nil, dealflow.ErrDealNotFound
}

// UpdateProductionDeal persists changes to an existing deal. The stored
// exclusivity timestamp is owned by GrantExclusivity.
func (m *Store) UpdateProductionDeal(_ context.Context, d *production.Deal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := d.ID.String()
	existing, ok := m.productions[key]
	if !ok {
		return dealflow.ErrDealNotFound
	}
	stored := cloneProduction(d)
	stored.ExclusivityGrantedAt = existing.ExclusivityGrantedAt
	stored.Touch()
	m.productions[key] = stored
	return nil
}

// GrantExclusivity marks the deal as the pitch's exclusive negotiation.
func (m *Store) GrantExclusivity(_ context.Context, dealID id.ProductionID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.productions[dealID.String()]
	if !ok {
		return dealflow.ErrDealNotFound
	}
	if d.ExclusivityGrantedAt != nil {
		return nil
	}
	if a, active := m.activations[d.PitchID]; active && a.DealID != d.ID {
		return exclusivityConflict(d.PitchID)
	}
	if holder := m.exclusiveHolder(d.PitchID); holder != nil && holder.ID != d.ID {
		return exclusivityConflict(d.PitchID)
	}
	grantedAt := at.UTC()
	d.ExclusivityGrantedAt = &grantedAt
	return nil
}

// CheckExclusivity verifies the deal still holds exclusivity.
func (m *Store) CheckExclusivity(_ context.Context, dealID id.ProductionID) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.productions[dealID.String()]
	if !ok {
		return dealflow.ErrDealNotFound
	}
	if d.ExclusivityGrantedAt == nil || d.Status.Terminal() {
		return exclusivityConflict(d.PitchID)
	}
	if a, active := m.activations[d.PitchID]; active && a.DealID != d.ID {
		return exclusivityConflict(d.PitchID)
	}
	if holder := m.exclusiveHolder(d.PitchID); holder != nil && holder.ID != d.ID {
		return exclusivityConflict(d.PitchID)
	}
	return nil
}

// Activate records the activation of a pitch.
func (m *Store) Activate(_ context.Context, a *production.Activation) (*production.Activation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.activations[a.PitchID]; ok {
		if existing.DealID != a.DealID {
			return nil, exclusivityConflict(a.PitchID)
		}
		c := *existing
		return &c, nil
	}
	stored := *a
	m.activations[a.PitchID] = &stored
	c := stored
	return &c, nil
}

// CompanyStanding summarizes a company's deals.
func (m *Store) CompanyStanding(_ context.Context, companyID string) (production.Standing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var s production.Standing
	for _, d := range m.productions {
		if d.ProductionCompanyID != companyID {
			continue
		}
		switch {
		case d.Status == production.StatusActive:
			s.CompletedDeals++
		case d.Status == production.StatusDeclined || d.Status == production.StatusTimeout:
			s.DeclinedDeals++
		case !d.Status.Terminal():
			s.ActiveDeals++
		}
	}
	return s, nil
}
