package investment

import (
	"fmt"

	dealflow "github.com/CavellTopDev/pitchey-app-sub015"
)

// Status is the lifecycle state of an investment deal.
type Status string

const (
	StatusQualified       Status = "QUALIFIED"
	StatusApproved        Status = "APPROVED"
	StatusTermSheetSigned Status = "TERM_SHEET_SIGNED"
	StatusPaymentCaptured Status = "PAYMENT_CAPTURED"
	StatusEscrow          Status = "ESCROW"
	StatusFundsReleased   Status = "FUNDS_RELEASED"
	StatusRejected        Status = "REJECTED"
	StatusExpired         Status = "EXPIRED"
	StatusPaymentFailed   Status = "PAYMENT_FAILED"
	StatusRefunded        Status = "REFUNDED"
	StatusFailed          Status = "FAILED"
	StatusCancelled       Status = "CANCELLED"
)

// Terminal reports whether no further transition leaves s. ESCROW is
// not terminal: the deal waits there for the funding goal.
func (s Status) Terminal() bool {
	switch s {
	case StatusFundsReleased, StatusRejected, StatusExpired, StatusPaymentFailed,
		StatusRefunded, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Trigger is an input to the investment state machine.
type Trigger string

const (
	TriggerApprove          Trigger = "approve"
	TriggerReject           Trigger = "reject"
	TriggerApprovalTimeout  Trigger = "approval_timeout"
	TriggerSignTermSheet    Trigger = "sign_term_sheet"
	TriggerDeclineTermSheet Trigger = "decline_term_sheet"
	TriggerTermSheetTimeout Trigger = "term_sheet_timeout"
	TriggerCapture          Trigger = "capture"
	TriggerPaymentFailed    Trigger = "payment_failed"
	TriggerPaymentTimeout   Trigger = "payment_timeout"
	TriggerEscrow           Trigger = "escrow"
	TriggerRelease          Trigger = "release"
	TriggerRefund           Trigger = "refund"
	TriggerFail             Trigger = "fail"
	TriggerCancel           Trigger = "cancel"
)

var transitions = map[Status]map[Trigger]Status{
	StatusQualified: {
		TriggerApprove:         StatusApproved,
		TriggerReject:          StatusRejected,
		TriggerApprovalTimeout: StatusExpired,
	},
	StatusApproved: {
		TriggerSignTermSheet:    StatusTermSheetSigned,
		TriggerDeclineTermSheet: StatusRejected,
		TriggerTermSheetTimeout: StatusExpired,
	},
	StatusTermSheetSigned: {
		TriggerCapture:        StatusPaymentCaptured,
		TriggerPaymentFailed:  StatusPaymentFailed,
		TriggerPaymentTimeout: StatusPaymentFailed,
	},
	StatusPaymentCaptured: {
		TriggerEscrow:  StatusEscrow,
		TriggerRelease: StatusFundsReleased,
		TriggerFail:    StatusFailed,
	},
	StatusEscrow: {
		TriggerRelease: StatusFundsReleased,
		TriggerRefund:  StatusRefunded,
		TriggerFail:    StatusFailed,
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
	return s, fmt.Errorf("investment: %s on %s: %w", t, s, dealflow.ErrInvalidTransition)
}
