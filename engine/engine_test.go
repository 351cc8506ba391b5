package engine_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dealflow "github.com/CavellTopDev/pitchey-app-sub015"
	"github.com/CavellTopDev/pitchey-app-sub015/cache"
	"github.com/CavellTopDev/pitchey-app-sub015/engine"
	"github.com/CavellTopDev/pitchey-app-sub015/id"
	"github.com/CavellTopDev/pitchey-app-sub015/investment"
	"github.com/CavellTopDev/pitchey-app-sub015/nda"
	"github.com/CavellTopDev/pitchey-app-sub015/notify"
	"github.com/CavellTopDev/pitchey-app-sub015/provider"
	"github.com/CavellTopDev/pitchey-app-sub015/risk"
	"github.com/CavellTopDev/pitchey-app-sub015/store/memory"
	"github.com/CavellTopDev/pitchey-app-sub015/workflow"
)

var epoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type harness struct {
	eng      *engine.Engine
	store    *memory.Store
	clock    *clockwork.FakeClock
	notes    *notify.Recorder
	payments *provider.SandboxPayments
}

func newHarness(t *testing.T, opts ...engine.Option) *harness {
	t.Helper()
	h := &harness{
		store:    memory.New(),
		clock:    clockwork.NewFakeClockAt(epoch),
		notes:    &notify.Recorder{},
		payments: provider.NewSandboxPayments(),
	}
	cfg := dealflow.DefaultConfig()
	cfg.Notify.RatePerRecipient = 0

	base := []engine.Option{
		engine.WithConfig(cfg),
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		engine.WithClock(h.clock),
		engine.WithOwner("engine-test"),
		engine.WithNotifier(h.notes),
		engine.WithPayments(h.payments),
		engine.WithRetry(workflow.RetryPolicy{Limit: 1}),
	}
	eng, err := engine.New(h.store, append(base, opts...)...)
	require.NoError(t, err)
	h.eng = eng
	return h
}

func (h *harness) profile(t *testing.T, userID string, trust int) {
	t.Helper()
	require.NoError(t, h.store.SaveProfile(context.Background(), &risk.Profile{
		UserID:           userID,
		EmailVerified:    true,
		PhoneVerified:    true,
		IdentityVerified: trust == 100,
		TrustScore:       trust,
		CreatedAt:        epoch.AddDate(-2, 0, 0),
	}))
}

func ndaParams(requester string) json.RawMessage {
	data, _ := json.Marshal(nda.Params{
		RequesterID:   requester,
		RequesterType: nda.RequesterInvestor,
		CreatorID:     "creator-1",
		PitchID:       "pitch-1",
	})
	return data
}

func investmentParams(investor string) investment.Params {
	return investment.Params{
		InvestorID:        investor,
		PitchID:           "pitch-9",
		CreatorID:         "creator-1",
		Amount:            1_000_000,
		MinimumInvestment: 10_000,
		MaximumInvestment: 1_000_000,
		TargetRaise:       1_000_000,
		FundingDeadline:   epoch.Add(30 * 24 * time.Hour),
	}
}

func TestNew_RequiresStore(t *testing.T) {
	_, err := engine.New(nil)
	assert.ErrorIs(t, err, dealflow.ErrNoStore)
}

func TestNew_RegistersWorkflowsAndSweep(t *testing.T) {
	h := newHarness(t)

	assert.ElementsMatch(t,
		[]string{nda.WorkflowName, investment.WorkflowName, "production"},
		h.eng.Registry().Names())

	entries := h.eng.Scheduler().Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, engine.SweepEntry, entries[0].Name)
	assert.Equal(t, "@every 1s", entries[0].Schedule)
}

func TestNew_RejectsBadSweepSchedule(t *testing.T) {
	cfg := dealflow.DefaultConfig()
	cfg.Runtime.SweepSchedule = "every so often"
	_, err := engine.New(memory.New(), engine.WithConfig(cfg))
	assert.Error(t, err)
}

func TestEngine_NDASignedThroughWebhook(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.profile(t, "investor-1", 100)

	run, err := h.eng.StartWorkflow(ctx, nda.WorkflowName, ndaParams("investor-1"))
	require.NoError(t, err)
	assert.Equal(t, workflow.RunStateWaiting, run.State)
	assert.Equal(t, nda.EventSignature, run.WaitingOn)

	rec, err := h.store.GetNDAByRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, nda.StatusPending, rec.Status)

	_, err = h.eng.HandleSignatureWebhook(ctx, engine.SignatureWebhook{
		InstanceID: run.ID.String(),
		EnvelopeID: rec.EnvelopeID,
		Status:     "Completed",
	})
	require.NoError(t, err)

	rec, err = h.store.GetNDAByRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, nda.StatusActive, rec.Status)

	status, err := h.eng.Status(ctx, cache.KindNDA, rec.ID.String())
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, string(nda.StatusActive), status.Status)

	timeline, err := h.eng.Timeline(ctx, run.ID)
	require.NoError(t, err)
	require.NotEmpty(t, timeline)
	var sawSignature bool
	for _, e := range timeline {
		if e.Kind == workflow.TimelineWait && e.StepName == "wait:"+nda.EventSignature {
			sawSignature = true
		}
	}
	assert.True(t, sawSignature, "timeline should include the resolved signature wait")
}

func TestEngine_SweepWakesTimedOutReview(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.profile(t, "investor-2", 60)

	run, err := h.eng.StartWorkflow(ctx, nda.WorkflowName, ndaParams("investor-2"))
	require.NoError(t, err)
	assert.Equal(t, nda.EventCreatorReview, run.WaitingOn)

	waits, err := h.eng.PendingWaits(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, waits, 1)

	n, err := h.eng.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	h.clock.Advance(h.eng.Config().NDA.CreatorReviewTimeout + time.Minute)
	n, err = h.eng.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rec, err := h.store.GetNDAByRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, nda.StatusRejected, rec.Status)
	assert.Equal(t, nda.ReasonCreatorReviewTimeout, rec.Reason)
}

func TestEngine_SchedulerDrivesSweep(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.profile(t, "investor-3", 60)

	run, err := h.eng.StartWorkflow(ctx, nda.WorkflowName, ndaParams("investor-3"))
	require.NoError(t, err)

	h.clock.Advance(h.eng.Config().NDA.CreatorReviewTimeout + time.Minute)
	require.NoError(t, h.eng.Scheduler().RunNow(ctx, engine.SweepEntry))

	final, err := h.eng.Instance(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.RunStateCompleted, final.State)
	assert.Equal(t, string(nda.StatusRejected), final.Status)
}

func TestEngine_InvestmentThroughWebhooks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	run, err := engine.Start(ctx, h.eng, investment.WorkflowName, investmentParams("investor-4"))
	require.NoError(t, err)
	assert.Equal(t, investment.EventCreatorApproval, run.WaitingOn)

	payload, err := json.Marshal(investment.CreatorDecision{Decision: investment.DecisionApprove})
	require.NoError(t, err)
	_, err = h.eng.Deliver(ctx, run.ID, investment.EventCreatorApproval, payload)
	require.NoError(t, err)

	_, err = h.eng.HandleSignatureWebhook(ctx, engine.SignatureWebhook{
		InstanceID: run.ID.String(),
		Status:     "completed",
	})
	require.NoError(t, err)

	deal, err := h.store.GetInvestmentByRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, investment.StatusTermSheetSigned, deal.Status)

	_, err = h.eng.HandlePaymentWebhook(ctx, engine.PaymentWebhook{
		InstanceID: run.ID.String(),
		IntentID:   deal.PaymentIntentID,
		Status:     "succeeded",
	})
	require.NoError(t, err)

	deal, err = h.store.GetInvestmentByRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, investment.StatusFundsReleased, deal.Status)
	assert.Equal(t, 1, h.payments.Transfers())
}

func TestEngine_WebhookValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.profile(t, "investor-5", 100)

	run, err := h.eng.StartWorkflow(ctx, nda.WorkflowName, ndaParams("investor-5"))
	require.NoError(t, err)

	_, err = h.eng.HandleSignatureWebhook(ctx, engine.SignatureWebhook{InstanceID: "nope", Status: "completed"})
	assert.ErrorIs(t, err, dealflow.ErrInvalidParams)

	_, err = h.eng.HandleSignatureWebhook(ctx, engine.SignatureWebhook{InstanceID: run.ID.String()})
	assert.ErrorIs(t, err, dealflow.ErrInvalidParams)

	_, err = h.eng.HandleSignatureWebhook(ctx, engine.SignatureWebhook{
		InstanceID: id.NewRunID().String(),
		Status:     "completed",
	})
	assert.ErrorIs(t, err, dealflow.ErrRunNotFound)

	_, err = h.eng.HandlePaymentWebhook(ctx, engine.PaymentWebhook{InstanceID: run.ID.String(), Status: "succeeded"})
	assert.ErrorIs(t, err, dealflow.ErrInvalidParams, "nda runs take no payment events")

	_, err = h.eng.HandlePaymentWebhook(ctx, engine.PaymentWebhook{InstanceID: run.ID.String(), Status: "pending"})
	assert.ErrorIs(t, err, dealflow.ErrInvalidParams)
}

func TestEngine_Cancel(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.profile(t, "investor-6", 100)

	run, err := h.eng.StartWorkflow(ctx, nda.WorkflowName, ndaParams("investor-6"))
	require.NoError(t, err)

	require.NoError(t, h.eng.Cancel(ctx, run.ID, "Pitch withdrawn"))

	final, err := h.eng.Instance(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.RunStateCancelled, final.State)

	assert.ErrorIs(t, h.eng.Cancel(ctx, run.ID, "again"), dealflow.ErrRunTerminal)

	_, err = h.eng.Deliver(ctx, run.ID, nda.EventSignature, json.RawMessage(`{"status":"completed"}`))
	assert.ErrorIs(t, err, dealflow.ErrRunTerminal)
}

func TestEngine_StartValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.eng.StartWorkflow(ctx, "unknown", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, dealflow.ErrWorkflowNotFound)

	_, err = h.eng.StartWorkflow(ctx, nda.WorkflowName, json.RawMessage(`{}`))
	assert.ErrorIs(t, err, dealflow.ErrInvalidParams)

	_, err = h.eng.Timeline(ctx, id.NewRunID())
	assert.ErrorIs(t, err, dealflow.ErrRunNotFound)
}

func TestEngine_StartAndStop(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.eng.Start(ctx))
	require.NoError(t, h.eng.Stop(ctx))
}
