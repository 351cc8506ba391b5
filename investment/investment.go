// Package investment implements the investment deal workflow: range
// qualification, creator approval, term sheet signature, payment capture,
// funding-goal evaluation with escrow, and fund release with refund
// compensation.
package investment

import (
	"context"
	"time"

	dealflow "github.com/CavellTopDev/pitchey-app-sub015"
	"github.com/CavellTopDev/pitchey-app-sub015/id"
)

// WorkflowName is the registered name of the investment workflow.
const WorkflowName = "investment"

// DefaultFundingWindow applies when a deal names no funding deadline.
const DefaultFundingWindow = 90 * 24 * time.Hour

// DefaultCurrency is used when params name none.
const DefaultCurrency = "usd"

// Deal is one investor's commitment to a pitch. Amounts are whole
// currency units.
type Deal struct {
	dealflow.Entity
	ID                id.InvestmentID `json:"id"`
	RunID             id.RunID        `json:"run_id"`
	InvestorID        string          `json:"investor_id"`
	PitchID           string          `json:"pitch_id"`
	CreatorID         string          `json:"creator_id"`
	Amount            int64           `json:"amount"`
	Currency          string          `json:"currency"`
	MinimumInvestment int64           `json:"minimum_investment"`
	MaximumInvestment int64           `json:"maximum_investment"`
	TargetRaise       int64           `json:"target_raise"`
	FundingDeadline   time.Time       `json:"funding_deadline"`

	TermSheetRef    string `json:"term_sheet_ref,omitempty"`
	PaymentIntentID string `json:"payment_intent_id,omitempty"`
	TransferID      string `json:"transfer_id,omitempty"`

	Status Status `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// Params is the input of the investment workflow.
type Params struct {
	InvestorID        string    `json:"investor_id"`
	PitchID           string    `json:"pitch_id"`
	CreatorID         string    `json:"creator_id"`
	Amount            int64     `json:"amount"`
	Currency          string    `json:"currency,omitempty"`
	MinimumInvestment int64     `json:"minimum_investment"`
	MaximumInvestment int64     `json:"maximum_investment,omitempty"`
	TargetRaise       int64     `json:"target_raise"`
	FundingDeadline   time.Time `json:"funding_deadline,omitzero"`
}

// Funding is the result of a funding-goal evaluation.
type Funding struct {
	TotalRaised int64 `json:"total_raised"`
	TargetRaise int64 `json:"target_raise"`
	GoalMet     bool  `json:"goal_met"`
}

// Store persists investment deals.
type Store interface {
	// CreateInvestment inserts d. A second call for the same RunID returns the
	// deal created by the first.
	CreateInvestment(ctx context.Context, d *Deal) (*Deal, error)
	GetInvestment(ctx context.Context, dealID id.InvestmentID) (*Deal, error)
	GetInvestmentByRun(ctx context.Context, runID id.RunID) (*Deal, error)
	UpdateInvestment(ctx context.Context, d *Deal) error

	// EvaluateFunding sums the captured amounts of every deal of the
	// deal's pitch, serialized per pitch. When the sum is below the
	// deal's target a PAYMENT_CAPTURED deal is moved to ESCROW within the
	// same critical section, so a later evaluation that meets the goal
	// sees it among EscrowedInvestments.
	EvaluateFunding(ctx context.Context, dealID id.InvestmentID) (Funding, error)

	// EscrowedInvestments returns the deals of a pitch held in ESCROW.
	EscrowedInvestments(ctx context.Context, pitchID string) ([]*Deal, error)
}

// Counted reports whether a deal in status s contributes to the amount
// raised for its pitch.
func Counted(s Status) bool {
	switch s {
	case StatusPaymentCaptured, StatusEscrow, StatusFundsReleased:
		return true
	default:
		return false
	}
}
