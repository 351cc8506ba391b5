package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	dealflow "github.com/CavellTopDev/pitchey-app-sub015"
	"github.com/CavellTopDev/pitchey-app-sub015/id"
	"github.com/CavellTopDev/pitchey-app-sub015/production"
)

const productionColumns = `id, run_id, production_company_id, pitch_id, creator_id, interest_type,
	proposed_budget, proposed_timeline, exclusivity_granted_at, final_terms,
	counter_rounds, contract_ref, status, reason, created_at, updated_at`

// liveExclusive matches deals currently holding exclusivity on a pitch.
const liveExclusive = `exclusivity_granted_at IS NOT NULL
	AND status NOT IN ('ACTIVE', 'TIMEOUT', 'DECLINED', 'CANCELLED')`

func exclusivityConflict(pitchID string) error {
	return fmt.Errorf("pitch %s: %w", pitchID, dealflow.ErrExclusivityConflict)
}

// CreateProductionDeal inserts d under the pitch lock unless another deal
// holds exclusivity or the pitch is already in production.
func (s *Store) CreateProductionDeal(ctx context.Context, d *production.Deal) (*production.Deal, error) {
	if existing, err := s.GetProductionDealByRun(ctx, d.RunID); err == nil {
		return existing, nil
	}
	if d.CreatedAt.IsZero() {
		d.Entity = dealflow.NewEntity()
	}

	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if err := lockPitch(ctx, tx, "production", d.PitchID); err != nil {
			return err
		}
		var blocked bool
		err := tx.QueryRow(ctx, `
			SELECT EXISTS(SELECT 1 FROM dealflow_activations WHERE pitch_id = $1)
				OR EXISTS(SELECT 1 FROM dealflow_productions WHERE pitch_id = $1 AND `+liveExclusive+`)`,
			d.PitchID,
		).Scan(&blocked)
		if err != nil {
			return err
		}
		if blocked {
			return exclusivityConflict(d.PitchID)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO dealflow_productions (`+productionColumns+`) VALUES (
				$1, $2, $3, $4, $5, $6,
				$7, $8, $9, $10,
				$11, $12, $13, $14, $15, $16
			)`,
			d.ID, d.RunID, d.ProductionCompanyID, d.PitchID, d.CreatorID, string(d.InterestType),
			d.ProposedBudget, d.ProposedTimeline, d.ExclusivityGrantedAt, d.FinalTerms,
			d.CounterRounds, d.ContractRef, string(d.Status), d.Reason, d.CreatedAt, d.UpdatedAt,
		)
		return err
	})
	switch {
	case err == nil:
		return s.GetProductionDeal(ctx, d.ID)
	case violates(err, "dealflow_productions_run_id_key"):
		return s.GetProductionDealByRun(ctx, d.RunID)
	default:
		return nil, fmt.Errorf("dealflow/postgres: create production deal: %w", err)
	}
}

// GetProductionDeal retrieves a deal by ID.
func (s *Store) GetProductionDeal(ctx context.Context, dealID id.ProductionID) (*production.Deal, error) {
	return getProduction(ctx, s.pool, `id = $1`, dealID)
}

// GetProductionDealByRun retrieves the deal created by a workflow run.
func (s *Store) GetProductionDealByRun(ctx context.Context, runID id.RunID) (*production.Deal, error) {
	return getProduction(ctx, s.pool, `run_id = $1`, runID)
}

func getProduction(ctx context.Context, q querier, where string, arg any) (*production.Deal, error) {
	row := q.QueryRow(ctx, `SELECT `+productionColumns+` FROM dealflow_productions WHERE `+where, arg)
	d, err := scanProduction(row)
	if err != nil {
		if isNoRows(err) {
			return nil, dealflow.ErrDealNotFound
		}
		return nil, fmt.Errorf("dealflow/postgres: get production deal: %w", err)
	}
	return d, nil
}

// UpdateProductionDeal persists changes to an existing deal. The
// exclusivity timestamp is owned by GrantExclusivity and never written
// here.
func (s *Store) UpdateProductionDeal(ctx context.Context, d *production.Deal) error {
	d.Touch()
	tag, err := s.pool.Exec(ctx, `
		UPDATE dealflow_productions SET
			proposed_budget = $2, proposed_timeline = $3, final_terms = $4,
			counter_rounds = $5, contract_ref = $6, status = $7, reason = $8,
			updated_at = $9
		WHERE id = $1`,
		d.ID, d.ProposedBudget, d.ProposedTimeline, d.FinalTerms,
		d.CounterRounds, d.ContractRef, string(d.Status), d.Reason,
		d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("dealflow/postgres: update production deal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return dealflow.ErrDealNotFound
	}
	return nil
}

// GrantExclusivity marks the deal as the pitch's exclusive negotiation.
// The pitch lock orders competing grants and the partial unique index
// dealflow_productions_exclusive_uq backs it up.
func (s *Store) GrantExclusivity(ctx context.Context, dealID id.ProductionID, at time.Time) error {
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		d, err := getProduction(ctx, tx, `id = $1`, dealID)
		if err != nil {
			return err
		}
		if err := lockPitch(ctx, tx, "production", d.PitchID); err != nil {
			return err
		}

		var (
			granted *time.Time
			blocked bool
		)
		err = tx.QueryRow(ctx, `
			SELECT exclusivity_granted_at,
				EXISTS(SELECT 1 FROM dealflow_activations WHERE pitch_id = $2 AND deal_id <> $1)
				OR EXISTS(SELECT 1 FROM dealflow_productions WHERE pitch_id = $2 AND id <> $1 AND `+liveExclusive+`)
			FROM dealflow_productions WHERE id = $1`,
			dealID, d.PitchID,
		).Scan(&granted, &blocked)
		if err != nil {
			return err
		}
		if granted != nil {
			return nil
		}
		if blocked {
			return exclusivityConflict(d.PitchID)
		}

		_, err = tx.Exec(ctx, `UPDATE dealflow_productions SET exclusivity_granted_at = $2 WHERE id = $1`,
			dealID, at.UTC())
		if violates(err, "dealflow_productions_exclusive_uq") {
			return exclusivityConflict(d.PitchID)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("dealflow/postgres: grant exclusivity: %w", err)
	}
	return nil
}

// CheckExclusivity verifies the deal still holds exclusivity.
func (s *Store) CheckExclusivity(ctx context.Context, dealID id.ProductionID) error {
	d, err := s.GetProductionDeal(ctx, dealID)
	if err != nil {
		return err
	}
	if d.ExclusivityGrantedAt == nil || d.Status.Terminal() {
		return exclusivityConflict(d.PitchID)
	}

	var blocked bool
	err = s.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM dealflow_activations WHERE pitch_id = $2 AND deal_id <> $1)
			OR EXISTS(SELECT 1 FROM dealflow_productions WHERE pitch_id = $2 AND id <> $1 AND `+liveExclusive+`)`,
		dealID, d.PitchID,
	).Scan(&blocked)
	if err != nil {
		return fmt.Errorf("dealflow/postgres: check exclusivity: %w", err)
	}
	if blocked {
		return exclusivityConflict(d.PitchID)
	}
	return nil
}

// Activate records the activation of a pitch. The unique pitch_id column
// allows one activation per pitch.
func (s *Store) Activate(ctx context.Context, a *production.Activation) (*production.Activation, error) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO dealflow_activations (id, deal_id, pitch_id, production_company_id, activated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (pitch_id) DO NOTHING`,
		a.ID, a.DealID, a.PitchID, a.ProductionCompanyID, a.ActivatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("dealflow/postgres: activate: %w", err)
	}

	var stored production.Activation
	err = s.pool.QueryRow(ctx, `
		SELECT id, deal_id, pitch_id, production_company_id, activated_at
		FROM dealflow_activations WHERE pitch_id = $1`, a.PitchID,
	).Scan(&stored.ID, &stored.DealID, &stored.PitchID, &stored.ProductionCompanyID, &stored.ActivatedAt)
	if err != nil {
		return nil, fmt.Errorf("dealflow/postgres: get activation: %w", err)
	}
	if stored.DealID != a.DealID {
		return nil, exclusivityConflict(a.PitchID)
	}
	return &stored, nil
}

// CompanyStanding summarizes a company's deals.
func (s *Store) CompanyStanding(ctx context.Context, companyID string) (production.Standing, error) {
	var st production.Standing
	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status NOT IN ('ACTIVE', 'TIMEOUT', 'DECLINED', 'CANCELLED')),
			COUNT(*) FILTER (WHERE status = 'ACTIVE'),
			COUNT(*) FILTER (WHERE status IN ('DECLINED', 'TIMEOUT'))
		FROM dealflow_productions WHERE production_company_id = $1`, companyID,
	).Scan(&st.ActiveDeals, &st.CompletedDeals, &st.DeclinedDeals)
	if err != nil {
		return production.Standing{}, fmt.Errorf("dealflow/postgres: company standing: %w", err)
	}
	return st, nil
}

func scanProduction(row pgx.Row) (*production.Deal, error) {
	var (
		d            production.Deal
		interestType string
		status       string
	)
	err := row.Scan(
		&d.ID, &d.RunID, &d.ProductionCompanyID, &d.PitchID, &d.CreatorID, &interestType,
		&d.ProposedBudget, &d.ProposedTimeline, &d.ExclusivityGrantedAt, &d.FinalTerms,
		&d.CounterRounds, &d.ContractRef, &status, &d.Reason, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.InterestType = production.InterestType(interestType)
	d.Status = production.Status(status)
	return &d, nil
}
