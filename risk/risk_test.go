package risk_test

import (
	"slices"
	"testing"
	"time"

	"github.com/CavellTopDev/pitchey-app-sub015/risk"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func verified() *risk.Profile {
	return &risk.Profile{
		UserID:           "user-1",
		EmailVerified:    true,
		PhoneVerified:    true,
		IdentityVerified: true,
		TrustScore:       100,
		CreatedAt:        now.AddDate(-2, 0, 0),
	}
}

func TestAssess_Levels(t *testing.T) {
	tests := []struct {
		name      string
		in        func() risk.Input
		wantScore int
		wantLevel risk.Level
	}{
		{
			name:      "fully verified veteran",
			in:        func() risk.Input { return risk.Input{Profile: verified(), Now: now} },
			wantScore: 0,
			wantLevel: risk.LevelLow,
		},
		{
			name: "unverified identity and middling trust",
			in: func() risk.Input {
				p := verified()
				p.IdentityVerified = false
				p.TrustScore = 60
				return risk.Input{Profile: p, Now: now}
			},
			wantScore: 25,
			wantLevel: risk.LevelMedium,
		},
		{
			name: "new unverified account",
			in: func() risk.Input {
				return risk.Input{
					Profile: &risk.Profile{UserID: "user-2", TrustScore: 50, CreatedAt: now.AddDate(0, 0, -3)},
					Now:     now,
				}
			},
			wantScore: 10 + 10 + 15 + 15 + 12,
			wantLevel: risk.LevelHigh,
		},
		{
			name: "custom template with many terms",
			in: func() risk.Input {
				return risk.Input{
					Profile:  verified(),
					Template: &risk.Template{ID: "tpl", Custom: true, Complexity: risk.ComplexityHigh},
					CustomTerms: map[string]string{
						"a": "1", "b": "2", "c": "3", "d": "4",
					},
					Now: now,
				}
			},
			wantScore: 15 + 10 + 20 + 10,
			wantLevel: risk.LevelHigh,
		},
		{
			name: "long term across many territories",
			in: func() risk.Input {
				return risk.Input{
					Profile:                 verified(),
					DurationMonths:          48,
					TerritorialRestrictions: []string{"US", "UK", "FR", "DE", "JP"},
					Now:                     now,
				}
			},
			wantScore: 10 + 6,
			wantLevel: risk.LevelLow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := risk.Assess(tt.in())
			if got.Score != tt.wantScore {
				t.Errorf("Score = %d, want %d (reasons %v)", got.Score, tt.wantScore, got.Reasons)
			}
			if got.Level != tt.wantLevel {
				t.Errorf("Level = %q, want %q", got.Level, tt.wantLevel)
			}
		})
	}
}

func TestAssess_MissingRequesterForcesHigh(t *testing.T) {
	got := risk.Assess(risk.Input{Now: now})
	if got.Level != risk.LevelHigh {
		t.Fatalf("Level = %q, want high", got.Level)
	}
	if !slices.Contains(got.Reasons, "Requester not found") {
		t.Errorf("Reasons = %v, want to contain %q", got.Reasons, "Requester not found")
	}
}

func TestAssess_HistoryForcesHigh(t *testing.T) {
	for _, h := range []risk.History{{Total: 4, Breached: 1}, {Total: 9, Disputed: 2}} {
		got := risk.Assess(risk.Input{Profile: verified(), History: h, Now: now})
		if got.Level != risk.LevelHigh {
			t.Errorf("history %+v: Level = %q, want high", h, got.Level)
		}
		if got.Score != 0 {
			t.Errorf("history %+v: Score = %d, want 0", h, got.Score)
		}
	}
}

func TestAssess_ScoreClamped(t *testing.T) {
	terms := make(map[string]string)
	for i := range 30 {
		terms[string(rune('a'+i))] = "x"
	}
	got := risk.Assess(risk.Input{
		Profile:     &risk.Profile{CreatedAt: now},
		Template:    &risk.Template{Custom: true, Complexity: risk.ComplexityHigh},
		CustomTerms: terms,
		Now:         now,
	})
	if got.Score != 100 {
		t.Errorf("Score = %d, want 100", got.Score)
	}
}

// Adding any risk factor never lowers the score or the tier.
func TestAssess_Monotonic(t *testing.T) {
	base := risk.Input{Profile: verified(), Now: now}
	before := risk.Assess(base)

	mutations := map[string]func(in *risk.Input){
		"unverified email": func(in *risk.Input) { in.Profile.EmailVerified = false },
		"lower trust":      func(in *risk.Input) { in.Profile.TrustScore = 10 },
		"newer account":    func(in *risk.Input) { in.Profile.CreatedAt = now.AddDate(0, 0, -1) },
		"custom term":      func(in *risk.Input) { in.CustomTerms = map[string]string{"k": "v"} },
		"longer duration":  func(in *risk.Input) { in.DurationMonths = 60 },
		"more territories": func(in *risk.Input) { in.TerritorialRestrictions = []string{"a", "b", "c", "d"} },
	}

	rank := map[risk.Level]int{risk.LevelLow: 0, risk.LevelMedium: 1, risk.LevelHigh: 2}
	for name, mutate := range mutations {
		in := base
		p := *base.Profile
		in.Profile = &p
		mutate(&in)
		after := risk.Assess(in)
		if after.Score <= before.Score {
			t.Errorf("%s: score %d did not increase from %d", name, after.Score, before.Score)
		}
		if rank[after.Level] < rank[before.Level] {
			t.Errorf("%s: level dropped from %s to %s", name, before.Level, after.Level)
		}
	}
}

func TestLevel_Route(t *testing.T) {
	tests := map[risk.Level]risk.Route{
		risk.LevelLow:    risk.RouteAutoApprove,
		risk.LevelMedium: risk.RouteCreatorReview,
		risk.LevelHigh:   risk.RouteLegalReview,
		risk.Level("?"):  risk.RouteLegalReview,
	}
	for level, want := range tests {
		if got := level.Route(); got != want {
			t.Errorf("%q.Route() = %q, want %q", level, got, want)
		}
	}
}
