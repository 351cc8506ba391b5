package investment_test

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
	"github.com/CavellTopDev/pitchey-app-sub015/docstore"
	"github.com/CavellTopDev/pitchey-app-sub015/event"
	"github.com/CavellTopDev/pitchey-app-sub015/id"
	"github.com/CavellTopDev/pitchey-app-sub015/investment"
	"github.com/CavellTopDev/pitchey-app-sub015/notify"
	"github.com/CavellTopDev/pitchey-app-sub015/provider"
	"github.com/CavellTopDev/pitchey-app-sub015/store/memory"
	"github.com/CavellTopDev/pitchey-app-sub015/workflow"
)

var epoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	store    *memory.Store
	clock    *clockwork.FakeClock
	notes    *notify.Recorder
	payments *provider.SandboxPayments
	docs     *docstore.Memory
	runner   *workflow.Runner
	cfg      dealflow.InvestmentConfig
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    memory.New(),
		clock:    clockwork.NewFakeClockAt(epoch),
		notes:    &notify.Recorder{},
		payments: provider.NewSandboxPayments(),
		docs:     docstore.NewMemory(),
		cfg:      dealflow.DefaultInvestmentConfig(),
	}
	reg := workflow.NewRegistry()
	workflow.Register(reg, investment.Workflow(investment.Deps{
		Store:     f.store,
		Documents: f.docs,
		Payments:  f.payments,
		Notifier:  f.notes,
		Events:    event.NewBus(f.store, event.WithClock(f.clock)),
		Config:    f.cfg,
		Retry:     workflow.RetryPolicy{Limit: 1},
	}))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.runner = workflow.NewRunner(reg, f.store, f.store, nil, logger,
		workflow.WithClock(f.clock), workflow.WithOwner("test"))
	return f
}

// seed records an already captured investment in the pitch.
func (f *fixture) seed(t *testing.T, pitchID string, amount int64, status investment.Status) {
	t.Helper()
	_, err := f.store.CreateInvestment(context.Background(), &investment.Deal{
		Entity:      dealflow.NewEntity(),
		ID:          id.NewInvestmentID(),
		RunID:       id.NewRunID(),
		InvestorID:  "earlier-investor",
		PitchID:     pitchID,
		CreatorID:   "creator-1",
		Amount:      amount,
		Currency:    investment.DefaultCurrency,
		TargetRaise: 1_000_000,
		Status:      status,
	})
	require.NoError(t, err)
}

func params(investor string, amount int64) investment.Params {
	return investment.Params{
		InvestorID:        investor,
		PitchID:           "pitch-1",
		CreatorID:         "creator-1",
		Amount:            amount,
		MinimumInvestment: 10_000,
		MaximumInvestment: 500_000,
		TargetRaise:       1_000_000,
		FundingDeadline:   epoch.Add(30 * 24 * time.Hour),
	}
}

func (f *fixture) start(t *testing.T, p investment.Params) *workflow.Run {
	t.Helper()
	run, err := workflow.Start(context.Background(), f.runner, investment.WorkflowName, p)
	require.NoError(t, err)
	return run
}

func (f *fixture) deliver(t *testing.T, runID id.RunID, name string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	_, err = f.runner.Deliver(context.Background(), runID, name, data)
	require.NoError(t, err)
}

func (f *fixture) sweep(t *testing.T) {
	t.Helper()
	_, err := f.runner.ResumeDue(context.Background(), 100, 4)
	require.NoError(t, err)
}

func (f *fixture) deal(t *testing.T, runID id.RunID) *investment.Deal {
	t.Helper()
	d, err := f.store.GetInvestmentByRun(context.Background(), runID)
	require.NoError(t, err)
	return d
}

func (f *fixture) run(t *testing.T, runID id.RunID) *workflow.Run {
	t.Helper()
	r, err := f.store.GetRun(context.Background(), runID)
	require.NoError(t, err)
	return r
}

// pay drives a run from QUALIFIED through payment capture.
func (f *fixture) pay(t *testing.T, runID id.RunID) {
	t.Helper()
	f.deliver(t, runID, investment.EventCreatorApproval, investment.CreatorDecision{Decision: investment.DecisionApprove})
	f.deliver(t, runID, investment.EventTermSheetSignature, investment.TermSheetEvent{Status: investment.TermSheetSigned})
	f.deliver(t, runID, investment.EventPaymentWebhook, investment.PaymentEvent{Status: investment.PaymentSucceeded})
}

func TestWorkflow_GoalMetReleasesFunds(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "pitch-1", 500_000, investment.StatusFundsReleased)
	f.seed(t, "pitch-1", 250_000, investment.StatusPaymentCaptured)

	run := f.start(t, params("investor-1", 250_000))
	assert.Equal(t, investment.EventCreatorApproval, run.WaitingOn)
	assert.Equal(t, investment.StatusQualified, f.deal(t, run.ID).Status)
	assert.Equal(t, []string{notify.TypeInvestmentRequest}, f.notes.To("creator-1"))

	f.deliver(t, run.ID, investment.EventCreatorApproval, investment.CreatorDecision{Decision: investment.DecisionApprove})
	d := f.deal(t, run.ID)
	assert.Equal(t, investment.StatusApproved, d.Status)

	doc, err := f.docs.Get(context.Background(), investment.TermSheetKey(d))
	require.NoError(t, err)
	assert.Contains(t, string(doc), "Investment amount: 250000 USD")

	f.deliver(t, run.ID, investment.EventTermSheetSignature, investment.TermSheetEvent{Status: investment.TermSheetSigned})
	assert.Equal(t, investment.StatusTermSheetSigned, f.deal(t, run.ID).Status)
	assert.Contains(t, f.notes.To("investor-1"), notify.TypePaymentRequired)

	f.deliver(t, run.ID, investment.EventPaymentWebhook, investment.PaymentEvent{Status: investment.PaymentSucceeded})

	d = f.deal(t, run.ID)
	assert.Equal(t, investment.StatusFundsReleased, d.Status)
	assert.Equal(t, investment.ReasonFundsReleased, d.Reason)
	assert.NotEmpty(t, d.TransferID)
	assert.Equal(t, 1, f.payments.Transfers())
	assert.Equal(t, 0, f.payments.Refunds())
	assert.Contains(t, f.notes.To("creator-1"), notify.TypeFundsReleased)

	final := f.run(t, run.ID)
	assert.Equal(t, workflow.RunStateCompleted, final.State)
	assert.Equal(t, string(investment.StatusFundsReleased), final.Status)
}

func TestWorkflow_OutOfRange(t *testing.T) {
	f := newFixture(t)

	for _, amount := range []int64{5_000, 750_000} {
		run, err := workflow.Start(context.Background(), f.runner, investment.WorkflowName, params("investor-2", amount))
		require.ErrorIs(t, err, dealflow.ErrInvestmentOutOfRange, "amount %d", amount)
		require.NotNil(t, run)
		assert.Equal(t, workflow.RunStateFailed, run.State)

		_, err = f.store.GetInvestmentByRun(context.Background(), run.ID)
		assert.ErrorIs(t, err, dealflow.ErrDealNotFound)
	}
}

func TestWorkflow_InvalidParams(t *testing.T) {
	f := newFixture(t)

	p := params("investor-3", 0)
	_, err := workflow.Start(context.Background(), f.runner, investment.WorkflowName, p)
	assert.ErrorIs(t, err, dealflow.ErrInvalidParams)

	p = params("", 50_000)
	_, err = workflow.Start(context.Background(), f.runner, investment.WorkflowName, p)
	assert.ErrorIs(t, err, dealflow.ErrInvalidParams)
}

func TestWorkflow_CreatorRejects(t *testing.T) {
	f := newFixture(t)

	run := f.start(t, params("investor-4", 50_000))
	f.deliver(t, run.ID, investment.EventCreatorApproval, investment.CreatorDecision{
		Decision: investment.DecisionReject,
		Note:     "Round is closed",
	})

	d := f.deal(t, run.ID)
	assert.Equal(t, investment.StatusRejected, d.Status)
	assert.Equal(t, "Rejected by creator: Round is closed", d.Reason)
	assert.Equal(t, []string{notify.TypeInvestmentRejected}, f.notes.To("investor-4"))
}

func TestWorkflow_ApprovalTimeout(t *testing.T) {
	f := newFixture(t)

	run := f.start(t, params("investor-5", 50_000))
	f.clock.Advance(f.cfg.CreatorApprovalTimeout)
	f.sweep(t)

	d := f.deal(t, run.ID)
	assert.Equal(t, investment.StatusExpired, d.Status)
	assert.Equal(t, investment.ReasonApprovalTimeout, d.Reason)
	assert.NotEqual(t, investment.ReasonCreatorRejected, d.Reason)
}

func TestWorkflow_PaymentTimeout(t *testing.T) {
	f := newFixture(t)

	run := f.start(t, params("investor-6", 50_000))
	f.deliver(t, run.ID, investment.EventCreatorApproval, investment.CreatorDecision{Decision: investment.DecisionApprove})
	f.deliver(t, run.ID, investment.EventTermSheetSignature, investment.TermSheetEvent{Status: investment.TermSheetSigned})

	waiting := f.run(t, run.ID)
	require.NotNil(t, waiting.WakeAt)
	assert.True(t, waiting.WakeAt.Equal(epoch.Add(f.cfg.PaymentTimeout)))

	f.clock.Advance(f.cfg.PaymentTimeout)
	f.sweep(t)

	d := f.deal(t, run.ID)
	assert.Equal(t, investment.StatusPaymentFailed, d.Status)
	assert.Equal(t, investment.ReasonPaymentTimeout, d.Reason)
	assert.Equal(t, 0, f.payments.Refunds())
}

func TestWorkflow_PaymentFailed(t *testing.T) {
	f := newFixture(t)

	run := f.start(t, params("investor-7", 50_000))
	f.deliver(t, run.ID, investment.EventCreatorApproval, investment.CreatorDecision{Decision: investment.DecisionApprove})
	f.deliver(t, run.ID, investment.EventTermSheetSignature, investment.TermSheetEvent{Status: investment.TermSheetSigned})
	f.deliver(t, run.ID, investment.EventPaymentWebhook, investment.PaymentEvent{
		Status:        investment.PaymentFailed,
		FailureReason: "card declined",
	})

	d := f.deal(t, run.ID)
	assert.Equal(t, investment.StatusPaymentFailed, d.Status)
	assert.Equal(t, "Payment failed: card declined", d.Reason)
	assert.Contains(t, f.notes.To("investor-7"), notify.TypePaymentFailed)
}

func TestWorkflow_ReleaseFailureRefundsAndFails(t *testing.T) {
	f := newFixture(t)
	f.payments.RejectTransfers = true
	f.seed(t, "pitch-1", 900_000, investment.StatusFundsReleased)

	run := f.start(t, params("investor-8", 100_000))
	f.pay(t, run.ID)

	d := f.deal(t, run.ID)
	assert.Equal(t, investment.StatusFailed, d.Status)
	assert.Equal(t, investment.ReasonReleaseFailed, d.Reason)
	assert.Equal(t, 1, f.payments.Refunds())
	assert.Contains(t, f.notes.To("investor-8"), notify.TypeInvestmentFailed)

	final := f.run(t, run.ID)
	assert.Equal(t, workflow.RunStateFailed, final.State)
	assert.Contains(t, final.Error, "transfer rejected")
}

func TestWorkflow_EscrowUntilDeadlineRefunds(t *testing.T) {
	f := newFixture(t)

	p := params("investor-9", 250_000)
	run := f.start(t, p)
	f.pay(t, run.ID)

	d := f.deal(t, run.ID)
	assert.Equal(t, investment.StatusEscrow, d.Status)
	assert.Equal(t, investment.ReasonEscrow, d.Reason)
	assert.Contains(t, f.notes.To("investor-9"), notify.TypeFundsInEscrow)

	waiting := f.run(t, run.ID)
	assert.Equal(t, investment.EventFundingGoalMet, waiting.WaitingOn)
	require.NotNil(t, waiting.WakeAt)
	assert.True(t, waiting.WakeAt.Equal(p.FundingDeadline))

	f.clock.Advance(p.FundingDeadline.Sub(f.clock.Now()))
	f.sweep(t)

	d = f.deal(t, run.ID)
	assert.Equal(t, investment.StatusRefunded, d.Status)
	assert.Equal(t, investment.ReasonFundingDeadline, d.Reason)
	assert.Equal(t, 1, f.payments.Refunds())
	assert.Equal(t, 0, f.payments.Transfers())
	assert.Equal(t, workflow.RunStateCompleted, f.run(t, run.ID).State)
}

func TestWorkflow_GoalMetReleasesEscrowedDeals(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "pitch-1", 350_000, investment.StatusFundsReleased)

	first := f.start(t, params("investor-10", 400_000))
	f.pay(t, first.ID)
	require.Equal(t, investment.StatusEscrow, f.deal(t, first.ID).Status)

	second := f.start(t, params("investor-11", 250_000))
	f.pay(t, second.ID)
	assert.Equal(t, investment.StatusFundsReleased, f.deal(t, second.ID).Status)

	// The escrowed run is woken by the buffered funding-goal-met event.
	f.sweep(t)

	d := f.deal(t, first.ID)
	assert.Equal(t, investment.StatusFundsReleased, d.Status)
	assert.Equal(t, 2, f.payments.Transfers())
	assert.Equal(t, 0, f.payments.Refunds())
	assert.Equal(t, workflow.RunStateCompleted, f.run(t, first.ID).State)
}

func TestWorkflow_CancelDuringEscrowRefunds(t *testing.T) {
	f := newFixture(t)

	run := f.start(t, params("investor-12", 100_000))
	f.pay(t, run.ID)
	require.Equal(t, investment.StatusEscrow, f.deal(t, run.ID).Status)

	require.NoError(t, f.runner.Cancel(context.Background(), run.ID, "Investor withdrew"))

	d := f.deal(t, run.ID)
	assert.Equal(t, investment.StatusCancelled, d.Status)
	assert.Equal(t, "Investor withdrew", d.Reason)
	assert.Equal(t, 1, f.payments.Refunds())
	assert.Contains(t, f.notes.To("investor-12"), notify.TypeInvestmentCancelled)
	assert.Equal(t, workflow.RunStateCancelled, f.run(t, run.ID).State)
}

func TestWorkflow_MalformedCreatorDecisionKeepsWaiting(t *testing.T) {
	f := newFixture(t)

	run := f.start(t, params("investor-m", 50_000))
	f.deliver(t, run.ID, investment.EventCreatorApproval, json.RawMessage(`{"decision":7}`))

	assert.Equal(t, investment.StatusQualified, f.deal(t, run.ID).Status)
	assert.Equal(t, investment.EventCreatorApproval, f.run(t, run.ID).WaitingOn)
	assert.Empty(t, f.notes.To("investor-m"))

	f.deliver(t, run.ID, investment.EventCreatorApproval, investment.CreatorDecision{Decision: investment.DecisionApprove})
	assert.Equal(t, investment.StatusApproved, f.deal(t, run.ID).Status)
}
