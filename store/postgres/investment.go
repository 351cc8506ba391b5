package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	dealflow "github.com/CavellTopDev/pitchey-app-sub015"
	"github.com/CavellTopDev/pitchey-app-sub015/id"
	"github.com/CavellTopDev/pitchey-app-sub015/investment"
)

const investmentColumns = `id, run_id, investor_id, pitch_id, creator_id, amount, currency,
	minimum_investment, maximum_investment, target_raise, funding_deadline,
	term_sheet_ref, payment_intent_id, transfer_id, status, reason, created_at, updated_at`

// counted lists the statuses that contribute to a pitch's raised amount.
var counted = []string{
	string(investment.StatusPaymentCaptured),
	string(investment.StatusEscrow),
	string(investment.StatusFundsReleased),
}

// CreateInvestment inserts d. A second call for the same RunID returns
// the deal created by the first.
func (s *Store) CreateInvestment(ctx context.Context, d *investment.Deal) (*investment.Deal, error) {
	if d.CreatedAt.IsZero() {
		d.Entity = dealflow.NewEntity()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO dealflow_investments (`+investmentColumns+`) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11,
			$12, $13, $14, $15, $16, $17, $18
		)
		ON CONFLICT (run_id) DO NOTHING`,
		d.ID, d.RunID, d.InvestorID, d.PitchID, d.CreatorID, d.Amount, d.Currency,
		d.MinimumInvestment, d.MaximumInvestment, d.TargetRaise, d.FundingDeadline,
		d.TermSheetRef, d.PaymentIntentID, d.TransferID, string(d.Status), d.Reason, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("dealflow/postgres: create investment: %w", err)
	}
	if d.RunID.IsNil() {
		return s.GetInvestment(ctx, d.ID)
	}
	return s.GetInvestmentByRun(ctx, d.RunID)
}

// GetInvestment retrieves a deal by ID.
func (s *Store) GetInvestment(ctx context.Context, dealID id.InvestmentID) (*investment.Deal, error) {
	return getInvestment(ctx, s.pool, `id = $1`, dealID)
}

// GetInvestmentByRun retrieves the deal created by a workflow run.
func (s *Store) GetInvestmentByRun(ctx context.Context, runID id.RunID) (*investment.Deal, error) {
	return getInvestment(ctx, s.pool, `run_id = $1`, runID)
}

func getInvestment(ctx context.Context, q querier, where string, arg any) (*investment.Deal, error) {
	row := q.QueryRow(ctx, `SELECT `+investmentColumns+` FROM dealflow_investments WHERE `+where, arg)
	d, err := scanInvestment(row)
	if err != nil {
		if isNoRows(err) {
			return nil, dealflow.ErrDealNotFound
		}
		return nil, fmt.Errorf("dealflow/postgres: get investment: %w", err)
	}
	return d, nil
}

// UpdateInvestment persists changes to an existing deal.
func (s *Store) UpdateInvestment(ctx context.Context, d *investment.Deal) error {
	d.Touch()
	tag, err := s.pool.Exec(ctx, `
		UPDATE dealflow_investments SET
			currency = $2, funding_deadline = $3, term_sheet_ref = $4,
			payment_intent_id = $5, transfer_id = $6, status = $7, reason = $8,
			updated_at = $9
		WHERE id = $1`,
		d.ID, d.Currency, d.FundingDeadline, d.TermSheetRef,
		d.PaymentIntentID, d.TransferID, string(d.Status), d.Reason,
		d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("dealflow/postgres: update investment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return dealflow.ErrDealNotFound
	}
	return nil
}

// EvaluateFunding sums the captured amounts of the deal's pitch under the
// pitch's advisory lock and moves a captured deal to escrow when the goal
// is not met. Two deals of the same pitch finishing together therefore
// see each other's amounts.
func (s *Store) EvaluateFunding(ctx context.Context, dealID id.InvestmentID) (investment.Funding, error) {
	var f investment.Funding
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var pitchID string
		err := tx.QueryRow(ctx, `SELECT pitch_id FROM dealflow_investments WHERE id = $1`, dealID).Scan(&pitchID)
		if err != nil {
			if isNoRows(err) {
				return dealflow.ErrDealNotFound
			}
			return err
		}
		if err := lockPitch(ctx, tx, "investment", pitchID); err != nil {
			return err
		}

		deal, err := getInvestment(ctx, tx, `id = $1`, dealID)
		if err != nil {
			return err
		}
		f.TargetRaise = deal.TargetRaise

		err = tx.QueryRow(ctx, `
			SELECT COALESCE(SUM(amount), 0) FROM dealflow_investments
			WHERE pitch_id = $1 AND status = ANY($2)`,
			pitchID, counted,
		).Scan(&f.TotalRaised)
		if err != nil {
			return err
		}
		f.GoalMet = f.TotalRaised >= f.TargetRaise

		if !f.GoalMet && deal.Status == investment.StatusPaymentCaptured {
			_, err = tx.Exec(ctx, `
				UPDATE dealflow_investments SET status = $2, reason = $3, updated_at = NOW()
				WHERE id = $1`,
				dealID, string(investment.StatusEscrow), investment.ReasonEscrow,
			)
		}
		return err
	})
	if err != nil {
		return investment.Funding{}, fmt.Errorf("dealflow/postgres: evaluate funding: %w", err)
	}
	return f, nil
}

// EscrowedInvestments returns the deals of a pitch held in escrow.
func (s *Store) EscrowedInvestments(ctx context.Context, pitchID string) ([]*investment.Deal, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+investmentColumns+` FROM dealflow_investments
		WHERE pitch_id = $1 AND status = $2 ORDER BY created_at ASC`,
		pitchID, string(investment.StatusEscrow),
	)
	if err != nil {
		return nil, fmt.Errorf("dealflow/postgres: escrowed investments: %w", err)
	}
	defer rows.Close()

	var result []*investment.Deal
	for rows.Next() {
		d, scanErr := scanInvestment(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("dealflow/postgres: scan investment: %w", scanErr)
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

func scanInvestment(row pgx.Row) (*investment.Deal, error) {
	var (
		d      investment.Deal
		status string
	)
	err := row.Scan(
		&d.ID, &d.RunID, &d.InvestorID, &d.PitchID, &d.CreatorID, &d.Amount, &d.Currency,
		&d.MinimumInvestment, &d.MaximumInvestment, &d.TargetRaise, &d.FundingDeadline,
		&d.TermSheetRef, &d.PaymentIntentID, &d.TransferID, &status, &d.Reason, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.Status = investment.Status(status)
	return &d, nil
}
