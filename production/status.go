package production

import (
	"fmt"

	dealflow "github.com/CavellTopDev/pitchey-app-sub015"
)

// Status is the lifecycle state of a production deal.
type Status string

const (
	StatusInterestSent     Status = "INTEREST_SENT"
	StatusMeetingScheduled Status = "MEETING_SCHEDULED"
	StatusProposalSent     Status = "PROPOSAL_SENT"
	StatusCountered        Status = "COUNTERED"
	StatusAccepted         Status = "ACCEPTED"
	StatusContractSigned   Status = "CONTRACT_SIGNED"
	StatusActive           Status = "ACTIVE"
	StatusTimeout          Status = "TIMEOUT"
	StatusDeclined         Status = "DECLINED"
	StatusCancelled        Status = "CANCELLED"
)

// Terminal reports whether no further transition leaves s.
func (s Status) Terminal() bool {
	switch s {
	case StatusActive, StatusTimeout, StatusDeclined, StatusCancelled:
		return true
	default:
		return false
	}
}

// Trigger is an input to the production state machine.
type Trigger string

const (
	TriggerCreatorInterested Trigger = "creator_interested"
	TriggerDecline           Trigger = "decline"
	TriggerTimeout           Trigger = "timeout"
	TriggerSubmitProposal    Trigger = "submit_proposal"
	TriggerAccept            Trigger = "accept"
	TriggerCounter           Trigger = "counter"
	TriggerSignContract      Trigger = "sign_contract"
	TriggerActivate          Trigger = "activate"
	TriggerCancel            Trigger = "cancel"
)

var transitions = map[Status]map[Trigger]Status{
	StatusInterestSent: {
		TriggerCreatorInterested: StatusMeetingScheduled,
		TriggerDecline:           StatusDeclined,
		TriggerTimeout:           StatusTimeout,
	},
	StatusMeetingScheduled: {
		TriggerSubmitProposal: StatusProposalSent,
		TriggerDecline:        StatusDeclined,
		TriggerTimeout:        StatusTimeout,
	},
	StatusProposalSent: {
		TriggerAccept:  StatusAccepted,
		TriggerCounter: StatusCountered,
		TriggerDecline: StatusDeclined,
		TriggerTimeout: StatusTimeout,
	},
	StatusCountered: {
		TriggerAccept:         StatusAccepted,
		TriggerSubmitProposal: StatusProposalSent,
		TriggerDecline:        StatusDeclined,
		TriggerTimeout:        StatusTimeout,
	},
	StatusAccepted: {
		TriggerSignContract: StatusContractSigned,
		TriggerDecline:      StatusDeclined,
		TriggerTimeout:      StatusTimeout,
	},
	StatusContractSigned: {
		TriggerActivate: StatusActive,
	},
}

// Transition returns the status reached from s by t. Every non-terminal
// status accepts TriggerCancel.
func Transition(s Status, t Trigger) (Status, error) {
	if t == TriggerCancel && !s.Terminal() {
		return StatusCancelled, nil
	}
	if next, ok := transitions[s][t]; ok {
		return next, nil
	}
	return s, fmt.Errorf("production: %s on %s: %w", t, s, dealflow.ErrInvalidTransition)
}
