// Package production implements the production deal workflow: interest,
// exclusivity, meeting, proposal and counter negotiation, contract
// signature and activation.
package production

import (
	"context"
	"time"

	dealflow "github.com/CavellTopDev/pitchey-app-sub015"
	"github.com/CavellTopDev/pitchey-app-sub015/id"
)

// WorkflowName is the registered name of the production workflow.
const WorkflowName = "production"

// InterestType is the kind of rights a company is after.
type InterestType string

const (
	InterestOption   InterestType = "option"
	InterestPurchase InterestType = "purchase"
)

// Valid reports whether t is a known interest type.
func (t InterestType) Valid() bool {
	return t == InterestOption || t == InterestPurchase
}

// Terms are the negotiable deal terms. Budget is in whole currency
// units.
type Terms struct {
	Budget            int64   `json:"budget,omitempty"`
	Timeline          string  `json:"timeline,omitempty"`
	RightsStructure   string  `json:"rights_structure,omitempty"`
	DistributionTerms string  `json:"distribution_terms,omitempty"`
	BackendPoints     float64 `json:"backend_points,omitempty"`
}

// Merge returns t with every non-zero field of o applied on top.
func (t Terms) Merge(o Terms) Terms {
	if o.Budget != 0 {
		t.Budget = o.Budget
	}
	if o.Timeline != "" {
		t.Timeline = o.Timeline
	}
	if o.RightsStructure != "" {
		t.RightsStructure = o.RightsStructure
	}
	if o.DistributionTerms != "" {
		t.DistributionTerms = o.DistributionTerms
	}
	if o.BackendPoints != 0 {
		t.BackendPoints = o.BackendPoints
	}
	return t
}

// Deal is one production company's pursuit of a pitch.
type Deal struct {
	dealflow.Entity
	ID                  id.ProductionID `json:"id"`
	RunID               id.RunID        `json:"run_id"`
	ProductionCompanyID string          `json:"production_company_id"`
	PitchID             string          `json:"pitch_id"`
	CreatorID           string          `json:"creator_id"`
	InterestType        InterestType    `json:"interest_type"`
	ProposedBudget      int64           `json:"proposed_budget,omitempty"`
	ProposedTimeline    string          `json:"proposed_timeline,omitempty"`

	ExclusivityGrantedAt *time.Time `json:"exclusivity_granted_at,omitempty"`
	FinalTerms           *Terms     `json:"final_terms,omitempty"`
	CounterRounds        int        `json:"counter_rounds,omitempty"`
	ContractRef          string     `json:"contract_ref,omitempty"`

	Status Status `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// Activation records a pitch going into production.
type Activation struct {
	ID                  id.ActivationID `json:"id"`
	DealID              id.ProductionID `json:"deal_id"`
	PitchID             string          `json:"pitch_id"`
	ProductionCompanyID string          `json:"production_company_id"`
	ActivatedAt         time.Time       `json:"activated_at"`
}

// Standing summarizes a company's track record. It is informational
// and never blocks a deal.
type Standing struct {
	ActiveDeals    int `json:"active_deals"`
	CompletedDeals int `json:"completed_deals"`
	DeclinedDeals  int `json:"declined_deals"`
}

// Params is the input of the production workflow.
type Params struct {
	ProductionCompanyID string       `json:"production_company_id"`
	PitchID             string       `json:"pitch_id"`
	CreatorID           string       `json:"creator_id"`
	InterestType        InterestType `json:"interest_type"`
	ProposedBudget      int64        `json:"proposed_budget,omitempty"`
	ProposedTimeline    string       `json:"proposed_timeline,omitempty"`
	Message             string       `json:"message,omitempty"`
}

// Store persists production deals, exclusivity and activations.
type Store interface {
	// CreateProductionDeal inserts d. It returns ErrExclusivityConflict when
	// another company holds exclusivity on the pitch or the pitch is
	// already in production. A second call for the same RunID returns the
	// deal created by the first.
	CreateProductionDeal(ctx context.Context, d *Deal) (*Deal, error)
	GetProductionDeal(ctx context.Context, dealID id.ProductionID) (*Deal, error)
	GetProductionDealByRun(ctx context.Context, runID id.RunID) (*Deal, error)
	UpdateProductionDeal(ctx context.Context, d *Deal) error

	// GrantExclusivity atomically marks the deal as the pitch's exclusive
	// negotiation. It returns ErrExclusivityConflict when another
	// non-terminal deal already holds it. Granting twice to the same deal
	// keeps the first timestamp.
	GrantExclusivity(ctx context.Context, dealID id.ProductionID, at time.Time) error

	// CheckExclusivity returns ErrExclusivityConflict unless the deal
	// still holds exclusivity and the pitch is not in production under
	// another deal.
	CheckExclusivity(ctx context.Context, dealID id.ProductionID) error

	// Activate records the activation. At most one activation exists per
	// pitch; activating the same deal twice returns the first record.
	Activate(ctx context.Context, a *Activation) (*Activation, error)

	CompanyStanding(ctx context.Context, companyID string) (Standing, error)
}
