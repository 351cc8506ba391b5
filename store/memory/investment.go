package memory

import (
	"context"
	"sort"

	dealflow "github.com/CavellTopDev/pitchey-app-sub015"
	"github.com/CavellTopDev/pitchey-app-sub015/id"
	"github.com/CavellTopDev/pitchey-app-sub015/investment"
)

func cloneInvestment(d *investment.Deal) *investment.Deal {
	c := *d
	return &c
}

// CreateInvestment inserts d. A second call for the same run returns the
// first deal.
func (m *Store) CreateInvestment(_ context.Context, d *investment.Deal) (*investment.Deal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.investments {
		if !d.RunID.IsNil() && existing.RunID == d.RunID {
			return cloneInvestment(existing), nil
		}
	}
	stored := cloneInvestment(d)
	if stored.CreatedAt.IsZero() {
		stored.Entity = dealflow.NewEntity()
	}
	m.investments[d.ID.String()] = stored
	return cloneInvestment(stored), nil
}

// GetInvestment retrieves a deal by ID.
func (m *Store) GetInvestment(_ context.Context, dealID id.InvestmentID) (*investment.Deal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.investments[dealID.String()]
	if !ok {
		return nil, dealflow.ErrDealNotFound
	}
	return cloneInvestment(d), nil
}

// GetInvestmentByRun retrieves the deal created by a workflow run.
func (m *Store) GetInvestmentByRun(_ context.Context, runID id.RunID) (*investment.Deal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, d := range m.investments {
		if d.RunID == runID {
			return cloneInvestment(d), nil
		}
	}
	return nil, dealflow.ErrDealNotFound
}

// UpdateInvestment persists changes to an existing deal.
func (m *Store) UpdateInvestment(_ context.Context, d *investment.Deal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := d.ID.String()
	if _, ok := m.investments[key]; !ok {
		return dealflow.ErrDealNotFound
	}
	stored := cloneInvestment(d)
	stored.Touch()
	m.investments[key] = stored
	return nil
}

// EvaluateFunding sums the captured amounts of the deal's pitch under the
// store mutex and moves a captured deal to escrow when the goal is not
// met.
func (m *Store) EvaluateFunding(_ context.Context, dealID id.InvestmentID) (investment.Funding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	deal, ok := m.investments[dealID.String()]
	if !ok {
		return investment.Funding{}, dealflow.ErrDealNotFound
	}

	f := investment.Funding{TargetRaise: deal.TargetRaise}
	for _, d := range m.investments {
		if d.PitchID == deal.PitchID && investment.Counted(d.Status) {
			f.TotalRaised += d.Amount
		}
	}
	f.GoalMet = f.TotalRaised >= f.TargetRaise

	if !f.GoalMet && deal.Status == investment.StatusPaymentCaptured {
		deal.Status = investment.StatusEscrow
		deal.Reason = investment.ReasonEscrow
		deal.Touch()
	}
	return f, nil
}

// EscrowedInvestments returns the deals of a pitch held in escrow.
func (m *Store) EscrowedInvestments(_ context.Context, pitchID string) ([]*investment.Deal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*investment.Deal
	for _, d := range m.investments {
		if d.PitchID == pitchID && d.Status == investment.StatusEscrow {
			result = append(result, cloneInvestment(d))
		}
	}
	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})
	return result, nil
}
