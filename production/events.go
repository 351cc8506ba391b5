package production

// Event names awaited by the production workflow.
const (
	EventCreatorInterest   = "creator-interest-response"
	EventMeetingOutcome    = "meeting-outcome"
	EventProposal          = "proposal"
	EventProposalResponse  = "proposal-response"
	EventCounterResponse   = "counter-response"
	EventContractSignature = "contract-signature"
)

// InterestResponse is the creator's answer to an expression of interest.
type InterestResponse struct {
	Interested bool   `json:"interested"`
	Note       string `json:"note,omitempty"`
}

// Meeting outcomes.
const (
	MeetingProceed = "proceed"
	MeetingDecline = "decline"
)

// MeetingOutcome is the payload of the meeting-outcome event.
type MeetingOutcome struct {
	Outcome string `json:"outcome"`
	Notes   string `json:"notes,omitempty"`
}

// Proposal is the payload of the proposal event.
type Proposal struct {
	Terms
	Note string `json:"note,omitempty"`
}

// Negotiation decisions, used by both sides.
const (
	DecisionAccept  = "accept"
	DecisionCounter = "counter"
	DecisionDecline = "decline"
)

// Response answers a proposal or a counter proposal. CounterTerms are
// merged over the terms on the table when Decision is counter.
type Response struct {
	Decision     string `json:"decision"`
	CounterTerms Terms  `json:"counter_terms,omitzero"`
	Note         string `json:"note,omitempty"`
}

// Contract signature statuses.
const (
	ContractSigned   = "signed"
	ContractDeclined = "declined"
)

// ContractEvent is the payload of the contract-signature event.
type ContractEvent struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// Outcome reasons. Timeout reasons never coincide with decline reasons.
const (
	ReasonCreatorInterested = "Creator interested, exclusivity granted"
	ReasonCreatorTimeout    = "Creator timeout"
	ReasonCreatorDeclined   = "Creator not interested"
	ReasonMeetingDeclined   = "Declined after meeting"
	ReasonMeetingTimeout    = "No meeting outcome before the deadline"
	ReasonProposalSent      = "Proposal sent to creator"
	ReasonProposalTimeout   = "No proposal received before the deadline"
	ReasonAccepted          = "Terms accepted"
	ReasonCountered         = "Creator countered the proposal"
	ReasonProposalDeclined  = "Proposal declined by creator"
	ReasonResponseTimeout   = "Creator did not respond to the proposal"
	ReasonCounterDeclined   = "Counter proposal declined by production company"
	ReasonCounterTimeout    = "Production company did not respond to the counter proposal"
	ReasonCounterExhausted  = "Counter negotiation rounds exhausted"
	ReasonExclusivityLost   = "Exclusivity no longer held"
	ReasonContractSigned    = "Contract signed"
	ReasonContractDeclined  = "Contract declined"
	ReasonContractTimeout   = "Contract signature deadline missed"
	ReasonActivated         = "Production active"
	ReasonCancelled         = "Cancelled"
)
