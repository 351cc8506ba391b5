// Package nda implements the NDA execution workflow: admission, risk
// routing to auto-approval, creator review or legal review, agreement
// generation, e-signature, pitch access and expiry monitoring.
package nda

import (
	"context"
	"time"

	dealflow "github.com/CavellTopDev/pitchey-app-sub015"
	"github.com/CavellTopDev/pitchey-app-sub015/id"
	"github.com/CavellTopDev/pitchey-app-sub015/risk"
)

// WorkflowName is the registered name of the NDA workflow.
const WorkflowName = "nda"

// DefaultDurationMonths applies when a request names no duration.
const DefaultDurationMonths = 24

// RequesterType is the kind of party asking for the NDA.
type RequesterType string

const (
	RequesterInvestor   RequesterType = "investor"
	RequesterProduction RequesterType = "production"
	RequesterPartner    RequesterType = "partner"
)

// Valid reports whether t is a known requester type.
func (t RequesterType) Valid() bool {
	switch t {
	case RequesterInvestor, RequesterProduction, RequesterPartner:
		return true
	default:
		return false
	}
}

// NDA is one non-disclosure agreement between a requester and a pitch
// creator.
type NDA struct {
	dealflow.Entity
	ID                      id.NDAID          `json:"id"`
	RunID                   id.RunID          `json:"run_id"`
	RequesterID             string            `json:"requester_id"`
	RequesterType           RequesterType     `json:"requester_type"`
	CreatorID               string            `json:"creator_id"`
	PitchID                 string            `json:"pitch_id"`
	TemplateID              string            `json:"template_id,omitempty"`
	CustomTerms             map[string]string `json:"custom_terms,omitempty"`
	DurationMonths          int               `json:"duration_months"`
	TerritorialRestrictions []string          `json:"territorial_restrictions,omitempty"`

	Status      Status     `json:"status"`
	Reason      string     `json:"reason,omitempty"`
	RiskScore   int        `json:"risk_score"`
	RiskLevel   risk.Level `json:"risk_level,omitempty"`
	EnvelopeID  string     `json:"envelope_id,omitempty"`
	DocumentRef string     `json:"document_ref,omitempty"`
	SignedAt    *time.Time `json:"signed_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`

	// Breached and Disputed are raised by compliance after the fact and
	// feed the requester's risk history.
	Breached bool `json:"breached,omitempty"`
	Disputed bool `json:"disputed,omitempty"`
}

// AccessGrant gives a user access to a pitch's protected material.
type AccessGrant struct {
	ID        id.GrantID `json:"id"`
	PitchID   string     `json:"pitch_id"`
	UserID    string     `json:"user_id"`
	Method    string     `json:"method"`
	NDAID     id.NDAID   `json:"nda_id"`
	GrantedAt time.Time  `json:"granted_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// AccessMethodNDA marks grants issued by a signed NDA.
const AccessMethodNDA = "nda"

// Params is the input of the NDA workflow.
type Params struct {
	RequesterID             string            `json:"requester_id"`
	RequesterType           RequesterType     `json:"requester_type"`
	CreatorID               string            `json:"creator_id"`
	PitchID                 string            `json:"pitch_id"`
	TemplateID              string            `json:"template_id,omitempty"`
	CustomTerms             map[string]string `json:"custom_terms,omitempty"`
	DurationMonths          int               `json:"duration_months,omitempty"`
	TerritorialRestrictions []string          `json:"territorial_restrictions,omitempty"`
}

// Store persists NDAs and access grants.
type Store interface {
	// CreateNDA inserts n unless a non-terminal NDA already exists for
	// the same requester and pitch, in which case ErrDuplicateNDA is
	// returned. A second call for the same RunID returns the NDA created
	// by the first.
	CreateNDA(ctx context.Context, n *NDA) (*NDA, error)
	GetNDA(ctx context.Context, ndaID id.NDAID) (*NDA, error)
	GetNDAByRun(ctx context.Context, runID id.RunID) (*NDA, error)
	// ActiveNDA returns the non-terminal NDA of a requester for a pitch,
	// or nil, nil.
	ActiveNDA(ctx context.Context, requesterID, pitchID string) (*NDA, error)
	UpdateNDA(ctx context.Context, n *NDA) error

	// GrantAccess records g unless the NDA already has a grant, which is
	// returned instead.
	GrantAccess(ctx context.Context, g *AccessGrant) (*AccessGrant, error)
	RevokeAccess(ctx context.Context, ndaID id.NDAID, at time.Time) error
	GetGrantByNDA(ctx context.Context, ndaID id.NDAID) (*AccessGrant, error)
	// HasAccess reports whether userID holds an unrevoked grant for pitchID.
	HasAccess(ctx context.Context, pitchID, userID string) (bool, error)
}

// Directory answers the lookups risk assessment needs.
type Directory interface {
	// Profile returns ErrProfileNotFound for unknown users.
	Profile(ctx context.Context, userID string) (*risk.Profile, error)
	// Template returns ErrTemplateNotFound for unknown templates.
	Template(ctx context.Context, templateID string) (*risk.Template, error)
	// History summarizes a requester's earlier NDAs.
	History(ctx context.Context, requesterID string) (risk.History, error)
}
