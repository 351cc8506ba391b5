package dealflow

import "errors"

var (
	// Store errors.
	ErrNoStore         = errors.New("dealflow: no store configured")
	ErrStoreClosed     = errors.New("dealflow: store closed")
	ErrMigrationFailed = errors.New("dealflow: migration failed")

	// Not found errors.
	ErrWorkflowNotFound = errors.New("dealflow: workflow not found")
	ErrRunNotFound      = errors.New("dealflow: run not found")
	ErrNDANotFound      = errors.New("dealflow: nda not found")
	ErrDealNotFound     = errors.New("dealflow: deal not found")
	ErrGrantNotFound    = errors.New("dealflow: access grant not found")
	ErrProfileNotFound  = errors.New("dealflow: requester profile not found")
	ErrTemplateNotFound = errors.New("dealflow: template not found")
	ErrDocumentNotFound = errors.New("dealflow: document not found")
	ErrWaitNotFound     = errors.New("dealflow: wait point not found")

	// Admission errors. These are never retried.
	ErrDuplicateNDA         = errors.New("dealflow: an active NDA already exists for this requester and pitch")
	ErrInvestmentOutOfRange = errors.New("dealflow: investment amount outside the allowed range")
	ErrExclusivityConflict  = errors.New("dealflow: pitch is under exclusive negotiation with another company")

	// State errors.
	ErrInvalidTransition = errors.New("dealflow: invalid state transition")
	ErrRunTerminal       = errors.New("dealflow: run already reached a terminal state")
	ErrRunAlreadyExists  = errors.New("dealflow: run already exists")
	ErrInvalidParams     = errors.New("dealflow: invalid workflow parameters")
)
