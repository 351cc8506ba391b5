package investment

// Event names awaited by the investment workflow.
const (
	EventCreatorApproval    = "creator-approval"
	EventTermSheetSignature = "term-sheet-signature"
	EventPaymentWebhook     = "payment-webhook"
	EventFundingGoalMet     = "funding-goal-met"
)

// Creator decisions.
const (
	DecisionApprove = "approve"
	DecisionReject  = "reject"
)

// CreatorDecision is the payload of the creator-approval event.
type CreatorDecision struct {
	Decision string `json:"decision"`
	Note     string `json:"note,omitempty"`
}

// Term sheet signature statuses.
const (
	TermSheetSigned   = "signed"
	TermSheetDeclined = "declined"
)

// TermSheetEvent is the payload of the term-sheet-signature event.
type TermSheetEvent struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// Payment webhook statuses.
const (
	PaymentSucceeded = "succeeded"
	PaymentFailed    = "failed"
)

// PaymentEvent is the payload of the payment-webhook event.
type PaymentEvent struct {
	Status        string `json:"status"`
	IntentID      string `json:"intent_id,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// GoalMetEvent is published to escrowed deals of a pitch once another
// deal meets the funding goal.
type GoalMetEvent struct {
	PitchID     string `json:"pitch_id"`
	TotalRaised int64  `json:"total_raised"`
	TriggeredBy string `json:"triggered_by"`
}

// Outcome reasons. Timeout reasons never coincide with decline reasons.
const (
	ReasonApproved          = "Approved by creator"
	ReasonCreatorRejected   = "Rejected by creator"
	ReasonApprovalTimeout   = "Creator did not respond before the approval deadline"
	ReasonTermSheetSigned   = "Term sheet signed"
	ReasonTermSheetDeclined = "Term sheet declined by investor"
	ReasonTermSheetTimeout  = "Term sheet signature deadline missed"
	ReasonPaymentCaptured   = "Payment captured"
	ReasonPaymentFailed     = "Payment failed"
	ReasonPaymentTimeout    = "Payment not received before the deadline"
	ReasonEscrow            = "Funds held in escrow until the funding goal is met"
	ReasonFundsReleased     = "Funding goal met, funds released to creator"
	ReasonFundingDeadline   = "Funding goal not reached by the deadline, payment refunded"
	ReasonReleaseFailed     = "Fund release failed, payment refunded"
	ReasonCancelled         = "Cancelled"
)
