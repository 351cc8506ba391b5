package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Sandbox statuses.
const (
	EnvelopeSent   = "sent"
	EnvelopeVoided = "voided"

	IntentRequiresConfirmation = "requires_confirmation"
	IntentRefunded             = "refunded"
)

var (
	_ Signer   = (*SandboxSigner)(nil)
	_ Payments = (*SandboxPayments)(nil)
)

// SandboxSigner is an in-process Signer. Signature outcomes arrive
// through the webhook endpoint as they would from a real provider.
type SandboxSigner struct {
	mu        sync.Mutex
	envelopes map[string]*Envelope // by idempotency key
	calls     int
}

// NewSandboxSigner creates a sandbox signer.
func NewSandboxSigner() *SandboxSigner {
	return &SandboxSigner{envelopes: make(map[string]*Envelope)}
}

// CreateEnvelope returns the envelope already created for the key or a
// new one.
func (s *SandboxSigner) CreateEnvelope(_ context.Context, req EnvelopeRequest) (*Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if env, ok := s.envelopes[req.IdempotencyKey]; ok {
		cp := *env
		return &cp, nil
	}
	s.calls++
	env := &Envelope{
		ID:        "env_" + uuid.NewString(),
		Status:    EnvelopeSent,
		CreatedAt: time.Now().UTC(),
	}
	s.envelopes[req.IdempotencyKey] = env
	cp := *env
	return &cp, nil
}

// VoidEnvelope marks an envelope voided.
func (s *SandboxSigner) VoidEnvelope(_ context.Context, envelopeID, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, env := range s.envelopes {
		if env.ID == envelopeID {
			env.Status = EnvelopeVoided
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrEnvelopeNotFound, envelopeID)
}

// Created returns how many distinct envelopes were created.
func (s *SandboxSigner) Created() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// SandboxPayments is an in-process Payments.
type SandboxPayments struct {
	mu        sync.Mutex
	intents   map[string]*Intent   // by idempotency key
	refunds   map[string]*Refund   // by idempotency key
	transfers map[string]*Transfer // by idempotency key

	// RejectTransfers makes every transfer fail with ErrTransferRejected.
	RejectTransfers bool
}

// NewSandboxPayments creates a sandbox payment service.
func NewSandboxPayments() *SandboxPayments {
	return &SandboxPayments{
		intents:   make(map[string]*Intent),
		refunds:   make(map[string]*Refund),
		transfers: make(map[string]*Transfer),
	}
}

// CreateIntent returns the intent already created for the key or a new
// one.
func (p *SandboxPayments) CreateIntent(_ context.Context, req IntentRequest) (*Intent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if in, ok := p.intents[req.IdempotencyKey]; ok {
		cp := *in
		return &cp, nil
	}
	in := &Intent{
		ID:        "pi_" + uuid.NewString(),
		Amount:    req.Amount,
		Status:    IntentRequiresConfirmation,
		CreatedAt: time.Now().UTC(),
	}
	p.intents[req.IdempotencyKey] = in
	cp := *in
	return &cp, nil
}

// Refund refunds an intent once per idempotency key.
func (p *SandboxPayments) Refund(_ context.Context, intentID, idempotencyKey string) (*Refund, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if r, ok := p.refunds[idempotencyKey]; ok {
		cp := *r
		return &cp, nil
	}
	var intent *Intent
	for _, in := range p.intents {
		if in.ID == intentID {
			intent = in
			break
		}
	}
	if intent == nil {
		return nil, fmt.Errorf("%w: %s", ErrIntentNotFound, intentID)
	}
	intent.Status = IntentRefunded
	r := &Refund{ID: "re_" + uuid.NewString(), IntentID: intentID, Amount: intent.Amount}
	p.refunds[idempotencyKey] = r
	cp := *r
	return &cp, nil
}

// Transfer pays out once per idempotency key.
func (p *SandboxPayments) Transfer(_ context.Context, req TransferRequest) (*Transfer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.RejectTransfers {
		return nil, fmt.Errorf("%w: destination %s", ErrTransferRejected, req.DestinationID)
	}
	if tr, ok := p.transfers[req.IdempotencyKey]; ok {
		cp := *tr
		return &cp, nil
	}
	tr := &Transfer{ID: "tr_" + uuid.NewString(), Amount: req.Amount}
	p.transfers[req.IdempotencyKey] = tr
	cp := *tr
	return &cp, nil
}

// Refunds returns how many distinct refunds were issued.
func (p *SandboxPayments) Refunds() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.refunds)
}

// Transfers returns how many distinct transfers were made.
func (p *SandboxPayments) Transfers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.transfers)
}
