// Package risk scores NDA requests. Assess is a pure function: the same
// input always yields the same assessment, so it is safe to call inside a
// workflow step and replay its checkpointed result.
package risk

import (
	"fmt"
	"time"
)

// Level is the coarse risk tier of a request.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// Route is the approval path a level maps to.
type Route string

const (
	RouteAutoApprove   Route = "auto-approve"
	RouteCreatorReview Route = "creator-review"
	RouteLegalReview   Route = "legal-review"
)

// Route returns the approval path for the level. Unknown levels take the
// strictest path.
func (l Level) Route() Route {
	switch l {
	case LevelLow:
		return RouteAutoApprove
	case LevelMedium:
		return RouteCreatorReview
	default:
		return RouteLegalReview
	}
}

// Complexity grades an agreement template.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// Profile is the verification state of the requesting user.
type Profile struct {
	UserID           string    `json:"user_id"`
	Name             string    `json:"name,omitempty"`
	EmailVerified    bool      `json:"email_verified"`
	PhoneVerified    bool      `json:"phone_verified"`
	IdentityVerified bool      `json:"identity_verified"`
	TrustScore       int       `json:"trust_score"`
	CreatedAt        time.Time `json:"created_at"`
}

// Template describes the agreement template of a request.
type Template struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Custom     bool       `json:"custom"`
	Complexity Complexity `json:"complexity"`
}

// History summarizes the requester's earlier agreements.
type History struct {
	Total    int `json:"total"`
	Breached int `json:"breached"`
	Disputed int `json:"disputed"`
}

// Input is everything Assess looks at.
type Input struct {
	// Profile is nil when the requester could not be found.
	Profile *Profile
	// Template is nil for the standard template.
	Template                *Template
	CustomTerms             map[string]string
	DurationMonths          int
	TerritorialRestrictions []string
	History                 History

	// Now anchors account-age scoring. Zero means time.Now.
	Now time.Time
}

// Assessment is the result of scoring one request.
type Assessment struct {
	Score   int      `json:"score"`
	Level   Level    `json:"level"`
	Reasons []string `json:"reasons,omitempty"`
}

// Weights used by Assess.
const (
	weightUnverifiedEmail    = 10
	weightUnverifiedPhone    = 10
	weightUnverifiedIdentity = 15
	weightNewAccount         = 15
	weightRecentAccount      = 8
	weightCustomTemplate     = 15
	weightHighComplexity     = 10
	weightMediumComplexity   = 5
	weightPerCustomTerm      = 5
	weightManyCustomTerms    = 10
	weightPerExtraYear       = 5
	weightPerExtraTerritory  = 3

	baselineMonths      = 24
	baselineTerritories = 3
	manyCustomTerms     = 3

	newAccountAge    = 30 * 24 * time.Hour
	recentAccountAge = 90 * 24 * time.Hour

	mediumThreshold = 25
	highThreshold   = 50
	maxScore        = 100
)

// Assess scores a request. Every factor only ever adds to the score, a
// missing requester or any breached or disputed agreement forces
// LevelHigh, and the level is derived from the score by fixed
// thresholds otherwise.
func Assess(in Input) Assessment {
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	var (
		score   int
		reasons []string
		forced  bool
	)
	add := func(points int, reason string) {
		if points <= 0 {
			return
		}
		score += points
		reasons = append(reasons, reason)
	}

	if p := in.Profile; p == nil {
		forced = true
		reasons = append(reasons, "Requester not found")
	} else {
		if !p.EmailVerified {
			add(weightUnverifiedEmail, "Email not verified")
		}
		if !p.PhoneVerified {
			add(weightUnverifiedPhone, "Phone not verified")
		}
		if !p.IdentityVerified {
			add(weightUnverifiedIdentity, "Identity not verified")
		}

		age := now.Sub(p.CreatedAt)
		switch {
		case age < newAccountAge:
			add(weightNewAccount, "Account created within the last 30 days")
		case age < recentAccountAge:
			add(weightRecentAccount, "Account created within the last 90 days")
		}

		trust := min(max(p.TrustScore, 0), 100)
		add((100-trust)/4, fmt.Sprintf("Trust score %d", trust))
	}

	if t := in.Template; t != nil {
		if t.Custom {
			add(weightCustomTemplate, "Custom agreement template")
		}
		switch t.Complexity {
		case ComplexityHigh:
			add(weightHighComplexity, "High complexity template")
		case ComplexityMedium:
			add(weightMediumComplexity, "Medium complexity template")
		}
	}

	if n := len(in.CustomTerms); n > 0 {
		add(n*weightPerCustomTerm, fmt.Sprintf("%d custom terms", n))
		if n > manyCustomTerms {
			add(weightManyCustomTerms, "Extensive custom terms")
		}
	}

	if in.DurationMonths > baselineMonths {
		extra := in.DurationMonths - baselineMonths
		add((extra*weightPerExtraYear+11)/12, fmt.Sprintf("Duration of %d months", in.DurationMonths))
	}

	if n := len(in.TerritorialRestrictions); n > baselineTerritories {
		add((n-baselineTerritories)*weightPerExtraTerritory, fmt.Sprintf("%d territories", n))
	}

	if in.History.Breached > 0 {
		forced = true
		reasons = append(reasons, fmt.Sprintf("%d breached agreements", in.History.Breached))
	}
	if in.History.Disputed > 0 {
		forced = true
		reasons = append(reasons, fmt.Sprintf("%d disputed agreements", in.History.Disputed))
	}

	score = min(score, maxScore)

	return Assessment{
		Score:   score,
		Level:   levelFor(score, forced),
		Reasons: reasons,
	}
}

func levelFor(score int, forced bool) Level {
	switch {
	case forced || score >= highThreshold:
		return LevelHigh
	case score >= mediumThreshold:
		return LevelMedium
	default:
		return LevelLow
	}
}
