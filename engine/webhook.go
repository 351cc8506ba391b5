package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	dealflow "github.com/CavellTopDev/pitchey-app-sub015"
	"github.com/CavellTopDev/pitchey-app-sub015/event"
	"github.com/CavellTopDev/pitchey-app-sub015/id"
	"github.com/CavellTopDev/pitchey-app-sub015/investment"
	"github.com/CavellTopDev/pitchey-app-sub015/nda"
	"github.com/CavellTopDev/pitchey-app-sub015/production"
)

// SignatureWebhook is an e-signature provider callback. InstanceID names
// the run that owns the envelope.
type SignatureWebhook struct {
	InstanceID string `json:"instance_id"`
	EnvelopeID string `json:"envelope_id"`
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
}

// PaymentWebhook is a payment provider callback.
type PaymentWebhook struct {
	InstanceID    string `json:"instance_id"`
	IntentID      string `json:"intent_id"`
	Status        string `json:"status"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// HandleSignatureWebhook translates a signature callback into the event
// awaited by the owning run's workflow.
func (e *Engine) HandleSignatureWebhook(ctx context.Context, hook SignatureWebhook) (*event.Event, error) {
	runID, err := id.ParseRunID(hook.InstanceID)
	if err != nil {
		return nil, fmt.Errorf("%w: instance_id: %v", dealflow.ErrInvalidParams, err)
	}
	status := strings.ToLower(strings.TrimSpace(hook.Status))
	if status == "" {
		return nil, fmt.Errorf("%w: status is required", dealflow.ErrInvalidParams)
	}

	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	var (
		name    string
		payload any
	)
	switch run.Name {
	case nda.WorkflowName:
		name = nda.EventSignature
		payload = nda.SignatureEvent{EnvelopeID: hook.EnvelopeID, Status: status, Reason: hook.Reason}
	case investment.WorkflowName:
		name = investment.EventTermSheetSignature
		payload = investment.TermSheetEvent{Status: signedOrDeclined(status, investment.TermSheetSigned, investment.TermSheetDeclined), Reason: hook.Reason}
	case production.WorkflowName:
		name = production.EventContractSignature
		payload = production.ContractEvent{Status: signedOrDeclined(status, production.ContractSigned, production.ContractDeclined), Reason: hook.Reason}
	default:
		return nil, fmt.Errorf("%w: workflow %q takes no signature events", dealflow.ErrInvalidParams, run.Name)
	}

	return e.deliverJSON(ctx, runID, name, payload)
}

// HandlePaymentWebhook translates a payment callback into the
// payment-webhook event of an investment run.
func (e *Engine) HandlePaymentWebhook(ctx context.Context, hook PaymentWebhook) (*event.Event, error) {
	runID, err := id.ParseRunID(hook.InstanceID)
	if err != nil {
		return nil, fmt.Errorf("%w: instance_id: %v", dealflow.ErrInvalidParams, err)
	}
	status := strings.ToLower(strings.TrimSpace(hook.Status))
	switch status {
	case investment.PaymentSucceeded, investment.PaymentFailed:
	default:
		return nil, fmt.Errorf("%w: unknown payment status %q", dealflow.ErrInvalidParams, hook.Status)
	}

	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Name != investment.WorkflowName {
		return nil, fmt.Errorf("%w: workflow %q takes no payment events", dealflow.ErrInvalidParams, run.Name)
	}

	return e.deliverJSON(ctx, runID, investment.EventPaymentWebhook, investment.PaymentEvent{
		Status:        status,
		IntentID:      hook.IntentID,
		FailureReason: hook.FailureReason,
	})
}

// signedOrDeclined folds provider statuses onto a two-valued outcome.
// Anything other than a completed or signed envelope counts as declined.
func signedOrDeclined(status, signed, declined string) string {
	switch status {
	case "completed", "signed":
		return signed
	default:
		return declined
	}
}

func (e *Engine) deliverJSON(ctx context.Context, runID id.RunID, name string, v any) (*event.Event, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("engine: marshal %s payload: %w", name, err)
	}
	return e.runner.Deliver(ctx, runID, name, payload)
}
