package nda

import (
	"fmt"

	dealflow "github.com/CavellTopDev/pitchey-app-sub015"
)

// Status is the lifecycle state of an NDA.
type Status string

const (
	StatusDraft                Status = "DRAFT"
	StatusAutoApproved         Status = "AUTO_APPROVED"
	StatusPendingCreatorReview Status = "PENDING_CREATOR_REVIEW"
	StatusPendingLegalReview   Status = "PENDING_LEGAL_REVIEW"
	StatusApproved             Status = "APPROVED"
	StatusPending              Status = "PENDING"
	StatusViewed               Status = "VIEWED"
	StatusSigned               Status = "SIGNED"
	StatusActive               Status = "ACTIVE"
	StatusExpired              Status = "EXPIRED"
	StatusRejected             Status = "REJECTED"
	StatusDeclined             Status = "DECLINED"
	StatusCancelled            Status = "CANCELLED"
)

// Terminal reports whether no further transition leaves s.
func (s Status) Terminal() bool {
	switch s {
	case StatusExpired, StatusRejected, StatusDeclined, StatusCancelled:
		return true
	default:
		return false
	}
}

// TerminalStatuses lists every terminal status.
func TerminalStatuses() []Status {
	return []Status{StatusExpired, StatusRejected, StatusDeclined, StatusCancelled}
}

// Trigger is an input to the NDA state machine.
type Trigger string

const (
	TriggerAutoApprove          Trigger = "auto_approve"
	TriggerRequestCreatorReview Trigger = "request_creator_review"
	TriggerRequestLegalReview   Trigger = "request_legal_review"
	TriggerApprove              Trigger = "approve"
	TriggerReject               Trigger = "reject"
	TriggerReviewTimeout        Trigger = "review_timeout"
	TriggerSendForSignature     Trigger = "send_for_signature"
	TriggerView                 Trigger = "view"
	TriggerSign                 Trigger = "sign"
	TriggerDecline              Trigger = "decline"
	TriggerSignatureTimeout     Trigger = "signature_timeout"
	TriggerActivate             Trigger = "activate"
	TriggerExpire               Trigger = "expire"
	TriggerCancel               Trigger = "cancel"
)

var transitions = map[Status]map[Trigger]Status{
	StatusDraft: {
		TriggerAutoApprove:          StatusAutoApproved,
		TriggerRequestCreatorReview: StatusPendingCreatorReview,
		TriggerRequestLegalReview:   StatusPendingLegalReview,
	},
	StatusPendingCreatorReview: {
		TriggerApprove:       StatusApproved,
		TriggerReject:        StatusRejected,
		TriggerReviewTimeout: StatusRejected,
	},
	StatusPendingLegalReview: {
		TriggerApprove:       StatusApproved,
		TriggerReject:        StatusRejected,
		TriggerReviewTimeout: StatusRejected,
	},
	StatusAutoApproved: {
		TriggerSendForSignature: StatusPending,
	},
	StatusApproved: {
		TriggerSendForSignature: StatusPending,
	},
	StatusPending: {
		TriggerView:             StatusViewed,
		TriggerSign:             StatusSigned,
		TriggerDecline:          StatusDeclined,
		TriggerSignatureTimeout: StatusExpired,
	},
	StatusViewed: {
		TriggerSign:             StatusSigned,
		TriggerDecline:          StatusDeclined,
		TriggerSignatureTimeout: StatusExpired,
	},
	StatusSigned: {
		TriggerActivate: StatusActive,
	},
	StatusActive: {
		TriggerExpire: StatusExpired,
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
	return s, fmt.Errorf("nda: %s on %s: %w", t, s, dealflow.ErrInvalidTransition)
}
