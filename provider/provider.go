// Package provider defines the contracts of the external e-signature and
// payment services. Every mutating call carries an idempotency key so a
// retried workflow step never creates a second envelope, intent, refund
// or transfer.
package provider

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrTransferRejected is returned when the payout to a creator is
	// refused by the receiving bank. Retrying does not help.
	ErrTransferRejected = errors.New("provider: transfer rejected")

	// ErrIntentNotFound is returned for unknown payment intents.
	ErrIntentNotFound = errors.New("provider: payment intent not found")

	// ErrEnvelopeNotFound is returned for unknown envelopes.
	ErrEnvelopeNotFound = errors.New("provider: envelope not found")
)

// Party is a signer of an envelope.
type Party struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

// EnvelopeRequest asks for a document to be sent for signature.
type EnvelopeRequest struct {
	IdempotencyKey string            `json:"idempotency_key"`
	Subject        string            `json:"subject"`
	DocumentKey    string            `json:"document_key"`
	Signers        []Party           `json:"signers"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Envelope is a document out for signature.
type Envelope struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Signer is the e-signature service.
type Signer interface {
	CreateEnvelope(ctx context.Context, req EnvelopeRequest) (*Envelope, error)
	VoidEnvelope(ctx context.Context, envelopeID, reason string) error
}

// IntentRequest asks for a payment to be captured.
type IntentRequest struct {
	IdempotencyKey string            `json:"idempotency_key"`
	Amount         int64             `json:"amount"`
	Currency       string            `json:"currency"`
	CustomerID     string            `json:"customer_id"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Intent is a payment in flight.
type Intent struct {
	ID        string    `json:"id"`
	Amount    int64     `json:"amount"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Refund returns a captured payment.
type Refund struct {
	ID       string `json:"id"`
	IntentID string `json:"intent_id"`
	Amount   int64  `json:"amount"`
}

// TransferRequest pays funds out to a recipient.
type TransferRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	Amount         int64  `json:"amount"`
	DestinationID  string `json:"destination_id"`
	SourceIntentID string `json:"source_intent_id"`
}

// Transfer is a completed payout.
type Transfer struct {
	ID     string `json:"id"`
	Amount int64  `json:"amount"`
}

// Payments is the payment service.
type Payments interface {
	CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	Refund(ctx context.Context, intentID, idempotencyKey string) (*Refund, error)
	Transfer(ctx context.Context, req TransferRequest) (*Transfer, error)
}
