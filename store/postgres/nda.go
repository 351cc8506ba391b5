package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	dealflow "github.com/CavellTopDev/pitchey-app-sub015"
	"github.com/CavellTopDev/pitchey-app-sub015/id"
	"github.com/CavellTopDev/pitchey-app-sub015/nda"
	"github.com/CavellTopDev/pitchey-app-sub015/risk"
)

const ndaColumns = `id, run_id, requester_id, requester_type, creator_id, pitch_id, template_id,
	custom_terms, duration_months, territorial_restrictions, status, reason,
	risk_score, risk_level, envelope_id, document_ref, signed_at, expires_at,
	breached, disputed, created_at, updated_at`

// CreateNDA inserts n. The partial unique index dealflow_ndas_active_uq
// rejects a second live NDA for the same requester and pitch.
func (s *Store) CreateNDA(ctx context.Context, n *nda.NDA) (*nda.NDA, error) {
	if existing, err := s.GetNDAByRun(ctx, n.RunID); err == nil {
		return existing, nil
	}

	if n.CreatedAt.IsZero() {
		n.Entity = dealflow.NewEntity()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO dealflow_ndas (`+ndaColumns+`) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18,
			$19, $20, $21, $22
		)`,
		n.ID, n.RunID, n.RequesterID, string(n.RequesterType), n.CreatorID, n.PitchID, n.TemplateID,
		n.CustomTerms, n.DurationMonths, n.TerritorialRestrictions, string(n.Status), n.Reason,
		n.RiskScore, string(n.RiskLevel), n.EnvelopeID, n.DocumentRef, n.SignedAt, n.ExpiresAt,
		n.Breached, n.Disputed, n.CreatedAt, n.UpdatedAt,
	)
	switch {
	case err == nil:
		return s.GetNDA(ctx, n.ID)
	case violates(err, "dealflow_ndas_active_uq"):
		return nil, fmt.Errorf("requester %s on pitch %s: %w", n.RequesterID, n.PitchID, dealflow.ErrDuplicateNDA)
	case violates(err, "dealflow_ndas_run_id_key"):
		return s.GetNDAByRun(ctx, n.RunID)
	default:
		return nil, fmt.Errorf("dealflow/postgres: create nda: %w", err)
	}
}

// GetNDA retrieves an NDA by ID.
func (s *Store) GetNDA(ctx context.Context, ndaID id.NDAID) (*nda.NDA, error) {
	return s.getNDA(ctx, `id = $1`, ndaID)
}

// GetNDAByRun retrieves the NDA created by a workflow run.
func (s *Store) GetNDAByRun(ctx context.Context, runID id.RunID) (*nda.NDA, error) {
	return s.getNDA(ctx, `run_id = $1`, runID)
}

func (s *Store) getNDA(ctx context.Context, where string, arg any) (*nda.NDA, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+ndaColumns+` FROM dealflow_ndas WHERE `+where, arg)
	n, err := scanNDA(row)
	if err != nil {
		if isNoRows(err) {
			return nil, dealflow.ErrNDANotFound
		}
		return nil, fmt.Errorf("dealflow/postgres: get nda: %w", err)
	}
	return n, nil
}

// ActiveNDA returns the live NDA of a requester for a pitch, or nil, nil.
func (s *Store) ActiveNDA(ctx context.Context, requesterID, pitchID string) (*nda.NDA, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+ndaColumns+` FROM dealflow_ndas
		WHERE requester_id = $1 AND pitch_id = $2
		  AND status NOT IN ('EXPIRED', 'REJECTED', 'DECLINED', 'CANCELLED')`,
		requesterID, pitchID,
	)
	n, err := scanNDA(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("dealflow/postgres: active nda: %w", err)
	}
	return n, nil
}

// UpdateNDA persists changes to an existing NDA.
func (s *Store) UpdateNDA(ctx context.Context, n *nda.NDA) error {
	n.Touch()
	tag, err := s.pool.Exec(ctx, `
		UPDATE dealflow_ndas SET
			template_id = $2, custom_terms = $3, duration_months = $4,
			territorial_restrictions = $5, status = $6, reason = $7,
			risk_score = $8, risk_level = $9, envelope_id = $10, document_ref = $11,
			signed_at = $12, expires_at = $13, breached = $14, disputed = $15,
			updated_at = $16
		WHERE id = $1`,
		n.ID, n.TemplateID, n.CustomTerms, n.DurationMonths,
		n.TerritorialRestrictions, string(n.Status), n.Reason,
		n.RiskScore, string(n.RiskLevel), n.EnvelopeID, n.DocumentRef,
		n.SignedAt, n.ExpiresAt, n.Breached, n.Disputed,
		n.UpdatedAt,
	)
	if err != nil {
		if violates(err, "dealflow_ndas_active_uq") {
			return fmt.Errorf("nda %s: %w", n.ID, dealflow.ErrDuplicateNDA)
		}
		return fmt.Errorf("dealflow/postgres: update nda: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return dealflow.ErrNDANotFound
	}
	return nil
}

func scanNDA(row pgx.Row) (*nda.NDA, error) {
	var (
		n             nda.NDA
		requesterType string
		status        string
		level         string
	)
	err := row.Scan(
		&n.ID, &n.RunID, &n.RequesterID, &requesterType, &n.CreatorID, &n.PitchID, &n.TemplateID,
		&n.CustomTerms, &n.DurationMonths, &n.TerritorialRestrictions, &status, &n.Reason,
		&n.RiskScore, &level, &n.EnvelopeID, &n.DocumentRef, &n.SignedAt, &n.ExpiresAt,
		&n.Breached, &n.Disputed, &n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	n.RequesterType = nda.RequesterType(requesterType)
	n.Status = nda.Status(status)
	n.RiskLevel = risk.Level(level)
	return &n, nil
}

// ──────────────────────────────────────────────────
// Access grants
// ──────────────────────────────────────────────────

const grantColumns = `id, pitch_id, user_id, method, nda_id, granted_at, revoked_at`

// GrantAccess records g unless the NDA already has a grant.
func (s *Store) GrantAccess(ctx context.Context, g *nda.AccessGrant) (*nda.AccessGrant, error) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO dealflow_access_grants (`+grantColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (nda_id) DO NOTHING`,
		g.ID, g.PitchID, g.UserID, g.Method, g.NDAID, g.GrantedAt, g.RevokedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("dealflow/postgres: grant access: %w", err)
	}
	return s.GetGrantByNDA(ctx, g.NDAID)
}

// RevokeAccess stamps the grant of an NDA as revoked. The first
// revocation time is kept.
func (s *Store) RevokeAccess(ctx context.Context, ndaID id.NDAID, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE dealflow_access_grants SET revoked_at = COALESCE(revoked_at, $2)
		WHERE nda_id = $1`,
		ndaID, at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("dealflow/postgres: revoke access: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("nda %s: %w", ndaID, dealflow.ErrGrantNotFound)
	}
	return nil
}

// GetGrantByNDA returns the grant issued for an NDA.
func (s *Store) GetGrantByNDA(ctx context.Context, ndaID id.NDAID) (*nda.AccessGrant, error) {
	var g nda.AccessGrant
	err := s.pool.QueryRow(ctx, `SELECT `+grantColumns+` FROM dealflow_access_grants WHERE nda_id = $1`, ndaID).
		Scan(&g.ID, &g.PitchID, &g.UserID, &g.Method, &g.NDAID, &g.GrantedAt, &g.RevokedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, dealflow.ErrGrantNotFound
		}
		return nil, fmt.Errorf("dealflow/postgres: get grant: %w", err)
	}
	return &g, nil
}

// HasAccess reports whether userID holds an unrevoked grant for pitchID.
func (s *Store) HasAccess(ctx context.Context, pitchID, userID string) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM dealflow_access_grants
			WHERE pitch_id = $1 AND user_id = $2 AND revoked_at IS NULL
		)`,
		pitchID, userID,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("dealflow/postgres: has access: %w", err)
	}
	return ok, nil
}

// ──────────────────────────────────────────────────
// Directory
// ──────────────────────────────────────────────────

// SaveProfile inserts or replaces a requester profile.
func (s *Store) SaveProfile(ctx context.Context, p *risk.Profile) error {
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO dealflow_profiles (
			user_id, name, email_verified, phone_verified, identity_verified, trust_score, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE SET
			name = EXCLUDED.name,
			email_verified = EXCLUDED.email_verified,
			phone_verified = EXCLUDED.phone_verified,
			identity_verified = EXCLUDED.identity_verified,
			trust_score = EXCLUDED.trust_score,
			created_at = EXCLUDED.created_at`,
		p.UserID, p.Name, p.EmailVerified, p.PhoneVerified, p.IdentityVerified, p.TrustScore, createdAt,
	)
	if err != nil {
		return fmt.Errorf("dealflow/postgres: save profile: %w", err)
	}
	return nil
}

// SaveTemplate inserts or replaces an agreement template.
func (s *Store) SaveTemplate(ctx context.Context, t *risk.Template) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO dealflow_templates (id, name, custom, complexity)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, custom = EXCLUDED.custom, complexity = EXCLUDED.complexity`,
		t.ID, t.Name, t.Custom, string(t.Complexity),
	)
	if err != nil {
		return fmt.Errorf("dealflow/postgres: save template: %w", err)
	}
	return nil
}

// Profile returns the profile of a user.
func (s *Store) Profile(ctx context.Context, userID string) (*risk.Profile, error) {
	var p risk.Profile
	err := s.pool.QueryRow(ctx, `
		SELECT user_id, name, email_verified, phone_verified, identity_verified, trust_score, created_at
		FROM dealflow_profiles WHERE user_id = $1`, userID,
	).Scan(&p.UserID, &p.Name, &p.EmailVerified, &p.PhoneVerified, &p.IdentityVerified, &p.TrustScore, &p.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("user %s: %w", userID, dealflow.ErrProfileNotFound)
		}
		return nil, fmt.Errorf("dealflow/postgres: get profile: %w", err)
	}
	return &p, nil
}

// Template returns an agreement template.
func (s *Store) Template(ctx context.Context, templateID string) (*risk.Template, error) {
	var (
		t          risk.Template
		complexity string
	)
	err := s.pool.QueryRow(ctx, `SELECT id, name, custom, complexity FROM dealflow_templates WHERE id = $1`, templateID).
		Scan(&t.ID, &t.Name, &t.Custom, &complexity)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("template %s: %w", templateID, dealflow.ErrTemplateNotFound)
		}
		return nil, fmt.Errorf("dealflow/postgres: get template: %w", err)
	}
	t.Complexity = risk.Complexity(complexity)
	return &t, nil
}

// History summarizes the requester's earlier NDAs.
func (s *Store) History(ctx context.Context, requesterID string) (risk.History, error) {
	var h risk.History
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE breached),
			COUNT(*) FILTER (WHERE disputed)
		FROM dealflow_ndas WHERE requester_id = $1`, requesterID,
	).Scan(&h.Total, &h.Breached, &h.Disputed)
	if err != nil {
		return risk.History{}, fmt.Errorf("dealflow/postgres: nda history: %w", err)
	}
	return h, nil
}
