package nda

import "maps"

// Event names awaited by the NDA workflow.
const (
	EventCreatorReview = "creator-nda-review"
	EventLegalReview   = "legal-review"
	EventSignature     = "signature"
)

// Review decisions.
const (
	DecisionApprove = "approve"
	DecisionReject  = "reject"
	DecisionModify  = "modify"
)

// ReviewDecision is the payload of creator and legal review events.
type ReviewDecision struct {
	Decision string `json:"decision"`
	Note     string `json:"note,omitempty"`
	Reviewer string `json:"reviewer,omitempty"`

	// Modifications, merged into the NDA on approve and modify.
	ModifiedTerms           map[string]string `json:"modified_terms,omitempty"`
	DurationMonths          int               `json:"duration_months,omitempty"`
	TerritorialRestrictions []string          `json:"territorial_restrictions,omitempty"`
}

func (d ReviewDecision) modifies() bool {
	return len(d.ModifiedTerms) > 0 || d.DurationMonths > 0 || d.TerritorialRestrictions != nil
}

// apply merges the reviewer's modifications into n.
func (d ReviewDecision) apply(n *NDA) {
	if len(d.ModifiedTerms) > 0 {
		terms := maps.Clone(n.CustomTerms)
		if terms == nil {
			terms = make(map[string]string, len(d.ModifiedTerms))
		}
		maps.Copy(terms, d.ModifiedTerms)
		n.CustomTerms = terms
	}
	if d.DurationMonths > 0 {
		n.DurationMonths = d.DurationMonths
	}
	if d.TerritorialRestrictions != nil {
		n.TerritorialRestrictions = d.TerritorialRestrictions
	}
}

// Signature statuses reported by the e-signature provider.
const (
	SignatureDelivered = "delivered"
	SignatureViewed    = "viewed"
	SignatureCompleted = "completed"
	SignatureDeclined  = "declined"
)

// SignatureEvent is the payload of the signature event.
type SignatureEvent struct {
	EnvelopeID string `json:"envelope_id,omitempty"`
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
}
