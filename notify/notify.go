// Package notify is the notification sink used by the deal workflows.
// Sending is always best effort: a failed notification is logged and
// never changes the outcome of a workflow.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrThrottled is returned when a recipient exceeded its send rate.
var ErrThrottled = errors.New("notify: recipient throttled")

// Notification types sent by the workflows.
const (
	TypeNDARequestReceived   = "nda_request_received"
	TypeNDALegalReview       = "nda_legal_review_required"
	TypeNDARejected          = "nda_rejected"
	TypeNDASignatureRequired = "nda_signature_required"
	TypeNDASignatureReminder = "nda_signature_reminder"
	TypeNDADeclined          = "nda_declined"
	TypeNDAExpired           = "nda_expired"
	TypeNDAActivated         = "nda_activated"
	TypeNDAExpiringSoon      = "nda_expiring_soon"

	TypeInvestmentRequest   = "investment_request"
	TypeInvestmentRejected  = "investment_rejected"
	TypeTermSheetReady      = "term_sheet_ready"
	TypePaymentRequired     = "payment_required"
	TypePaymentFailed       = "payment_failed"
	TypeFundsInEscrow       = "funds_in_escrow"
	TypeFundsReleased       = "funds_released"
	TypeInvestmentRefunded  = "investment_refunded"
	TypeInvestmentFailed    = "investment_failed"
	TypeInvestmentCancelled = "investment_cancelled"

	TypeProductionInterest  = "production_interest"
	TypeProductionDeclined  = "production_declined"
	TypeProductionTimeout   = "production_timeout"
	TypeProposalReceived    = "proposal_received"
	TypeCounterProposal     = "counter_proposal"
	TypeContractReady       = "contract_ready"
	TypeProductionActivated = "production_activated"
)

// Notification is one message to one recipient.
type Notification struct {
	Type        string         `json:"type"`
	RecipientID string         `json:"recipient_id"`
	Data        map[string]any `json:"data,omitempty"`
}

// Sender delivers notifications.
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, n Notification) error

// Send calls f.
func (f SenderFunc) Send(ctx context.Context, n Notification) error { return f(ctx, n) }

// LogSender writes notifications to a logger. It is the default sink
// when no delivery channel is configured.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Send logs n.
func (s *LogSender) Send(_ context.Context, n Notification) error {
	s.logger.Info("notification",
		slog.String("type", n.Type),
		slog.String("recipient", n.RecipientID),
		slog.Any("data", n.Data),
	)
	return nil
}

// Recorder keeps every notification in memory.
type Recorder struct {
	mu   sync.Mutex
	sent []Notification

	// Fail, when set, is consulted before recording; a non-nil result is
	// returned instead.
	Fail func(n Notification) error
}

// Send records n.
func (r *Recorder) Send(_ context.Context, n Notification) error {
	if r.Fail != nil {
		if err := r.Fail(n); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

// Sent returns a copy of everything recorded so far.
func (r *Recorder) Sent() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.sent))
	copy(out, r.sent)
	return out
}

// To returns the notification types recorded for one recipient.
func (r *Recorder) To(recipientID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var types []string
	for _, n := range r.sent {
		if n.RecipientID == recipientID {
			types = append(types, n.Type)
		}
	}
	return types
}
