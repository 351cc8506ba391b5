package investment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	dealflow "github.com/CavellTopDev/pitchey-app-sub015"
	"github.com/CavellTopDev/pitchey-app-sub015/cache"
	"github.com/CavellTopDev/pitchey-app-sub015/docstore"
	"github.com/CavellTopDev/pitchey-app-sub015/event"
	"github.com/CavellTopDev/pitchey-app-sub015/id"
	"github.com/CavellTopDev/pitchey-app-sub015/notify"
	"github.com/CavellTopDev/pitchey-app-sub015/provider"
	"github.com/CavellTopDev/pitchey-app-sub015/workflow"
)

func init() {
	workflow.RegisterReplayable(provider.ErrTransferRejected)
}

// Deps are the collaborators of the investment workflow.
type Deps struct {
	Store     Store
	Documents docstore.Store
	Payments  provider.Payments
	Notifier  notify.Sender
	// Events publishes funding-goal-met to escrowed deals.
	Events *event.Bus
	Cache  cache.StatusCache

	Config dealflow.InvestmentConfig
	Retry  workflow.RetryPolicy
}

// Workflow returns the investment workflow definition bound to deps.
func Workflow(deps Deps) *workflow.Definition[Params] {
	r := &runner{Deps: deps}
	def := workflow.NewWorkflow(WorkflowName, r.run)
	def.Validate = validate
	def.OnCancel = r.cancel
	return def
}

func validate(p Params) error {
	switch {
	case p.InvestorID == "":
		return errors.New("investor_id is required")
	case p.PitchID == "":
		return errors.New("pitch_id is required")
	case p.CreatorID == "":
		return errors.New("creator_id is required")
	case p.Amount <= 0:
		return errors.New("amount must be positive")
	case p.TargetRaise <= 0:
		return errors.New("target_raise must be positive")
	case p.MinimumInvestment < 0, p.MaximumInvestment < 0:
		return errors.New("investment bounds must not be negative")
	}
	return nil
}

type runner struct {
	Deps
}

func (r *runner) retry() workflow.StepOption { return workflow.WithRetry(r.Retry) }

func (r *runner) run(wf *workflow.Workflow, p Params) error {
	if err := wf.Step("qualify", func(context.Context) error {
		return qualify(p)
	}); err != nil {
		return err
	}

	deal, err := workflow.StepWithResult(wf, "create-deal", func(ctx context.Context) (*Deal, error) {
		now := wf.Now()
		d := &Deal{
			Entity:            dealflow.NewEntity(),
			ID:                id.NewInvestmentID(),
			RunID:             wf.RunID(),
			InvestorID:        p.InvestorID,
			PitchID:           p.PitchID,
			CreatorID:         p.CreatorID,
			Amount:            p.Amount,
			Currency:          p.Currency,
			MinimumInvestment: p.MinimumInvestment,
			MaximumInvestment: p.MaximumInvestment,
			TargetRaise:       p.TargetRaise,
			FundingDeadline:   p.FundingDeadline.UTC(),
			Status:            StatusQualified,
		}
		if d.Currency == "" {
			d.Currency = DefaultCurrency
		}
		if p.FundingDeadline.IsZero() {
			d.FundingDeadline = now.Add(DefaultFundingWindow)
		}
		return r.Store.CreateInvestment(ctx, d)
	}, r.retry())
	if err != nil {
		return err
	}
	wf.SetStatus(string(deal.Status))
	if err := cache.Publish(wf, r.Cache, cache.KindInvestment, deal.ID.String(), string(deal.Status), ""); err != nil {
		return err
	}

	if done, err := r.creatorApproval(wf, deal); err != nil || done {
		return err
	}
	if done, err := r.termSheet(wf, deal); err != nil || done {
		return err
	}
	if done, err := r.payment(wf, deal); err != nil || done {
		return err
	}
	return r.settle(wf, deal)
}

func qualify(p Params) error {
	if p.Amount < p.MinimumInvestment || (p.MaximumInvestment > 0 && p.Amount > p.MaximumInvestment) {
		return workflow.Permanent(fmt.Errorf("amount %d outside [%d, %d]: %w",
			p.Amount, p.MinimumInvestment, p.MaximumInvestment, dealflow.ErrInvestmentOutOfRange))
	}
	return nil
}

func (r *runner) creatorApproval(wf *workflow.Workflow, deal *Deal) (bool, error) {
	if err := r.notify(wf, "investment-request", notify.TypeInvestmentRequest, deal.CreatorID, deal); err != nil {
		return false, err
	}

	d, ok, err := workflow.WaitForPayload[CreatorDecision](wf, EventCreatorApproval, r.Config.CreatorApprovalTimeout)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, r.finish(wf, deal, TriggerApprovalTimeout, ReasonApprovalTimeout, notify.TypeInvestmentRejected)
	}
	if d.Decision != DecisionApprove {
		reason := ReasonCreatorRejected
		if d.Note != "" {
			reason += ": " + d.Note
		}
		return true, r.finish(wf, deal, TriggerReject, reason, notify.TypeInvestmentRejected)
	}
	return false, r.advance(wf, deal, TriggerApprove, ReasonApproved, nil)
}

func (r *runner) termSheet(wf *workflow.Workflow, deal *Deal) (bool, error) {
	ref, err := workflow.StepWithResult(wf, "generate-term-sheet", func(ctx context.Context) (docstore.Ref, error) {
		return r.Documents.Put(ctx, TermSheetKey(deal), RenderTermSheet(deal))
	}, r.retry())
	if err != nil {
		return false, err
	}
	deal.TermSheetRef = ref.Key

	if err := r.notify(wf, "term-sheet-ready", notify.TypeTermSheetReady, deal.InvestorID, deal); err != nil {
		return false, err
	}

	sig, ok, err := workflow.WaitForPayload[TermSheetEvent](wf, EventTermSheetSignature, r.Config.TermSheetTimeout)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, r.finish(wf, deal, TriggerTermSheetTimeout, ReasonTermSheetTimeout, notify.TypeInvestmentRejected)
	}
	if sig.Status != TermSheetSigned {
		reason := ReasonTermSheetDeclined
		if sig.Reason != "" {
			reason += ": " + sig.Reason
		}
		return true, r.finish(wf, deal, TriggerDeclineTermSheet, reason, notify.TypeInvestmentRejected)
	}
	return false, r.advance(wf, deal, TriggerSignTermSheet, ReasonTermSheetSigned, nil)
}

// payment opens an intent and waits for the provider's webhook. The
// refund compensation is registered only once capture is confirmed.
func (r *runner) payment(wf *workflow.Workflow, deal *Deal) (bool, error) {
	intent, err := workflow.StepWithResult(wf, "create-payment-intent", func(ctx context.Context) (*provider.Intent, error) {
		return r.Payments.CreateIntent(ctx, provider.IntentRequest{
			IdempotencyKey: deal.ID.String(),
			Amount:         deal.Amount,
			Currency:       deal.Currency,
			CustomerID:     deal.InvestorID,
			Metadata:       map[string]string{"instance_id": wf.RunID().String(), "deal_id": deal.ID.String()},
		})
	}, r.retry())
	if err != nil {
		return false, err
	}
	deal.PaymentIntentID = intent.ID

	if err := notify.Dispatch(wf, r.Notifier, "payment-required", notify.Notification{
		Type:        notify.TypePaymentRequired,
		RecipientID: deal.InvestorID,
		Data: map[string]any{
			"deal_id":   deal.ID.String(),
			"intent_id": intent.ID,
			"amount":    deal.Amount,
			"currency":  deal.Currency,
		},
	}, r.retry()); err != nil {
		return false, err
	}

	deadline, err := wf.Deadline("payment", r.Config.PaymentTimeout)
	if err != nil {
		return false, err
	}
	for {
		evt, err := wf.WaitForEvent(EventPaymentWebhook, wf.Until(deadline))
		if err != nil {
			return false, err
		}
		if evt == nil {
			return true, r.finish(wf, deal, TriggerPaymentTimeout, ReasonPaymentTimeout, notify.TypePaymentFailed)
		}

		var pe PaymentEvent
		if decErr := evt.Decode(&pe); decErr != nil {
			wf.Logger().Warn("undecodable payment webhook", slog.String("error", decErr.Error()))
			continue
		}
		if pe.IntentID != "" && pe.IntentID != intent.ID {
			wf.Logger().Warn("payment webhook for another intent", slog.String("intent_id", pe.IntentID))
			continue
		}

		switch pe.Status {
		case PaymentSucceeded:
			return false, r.capture(wf, deal)
		case PaymentFailed:
			reason := ReasonPaymentFailed
			if pe.FailureReason != "" {
				reason += ": " + pe.FailureReason
			}
			return true, r.finish(wf, deal, TriggerPaymentFailed, reason, notify.TypePaymentFailed)
		default:
			wf.Logger().Warn("ignoring payment webhook", slog.String("status", pe.Status))
		}
	}
}

// capture records the captured payment as a compensated step.
func (r *runner) capture(wf *workflow.Workflow, deal *Deal) error {
	next, err := Transition(deal.Status, TriggerCapture)
	if err != nil {
		return workflow.Permanent(err)
	}
	deal.Status = next
	deal.Reason = ReasonPaymentCaptured
	snapshot := *deal

	if err := wf.StepWithCompensation("capture-payment",
		func(ctx context.Context) error {
			return r.Store.UpdateInvestment(ctx, &snapshot)
		},
		func(ctx context.Context) error {
			_, refundErr := r.Payments.Refund(ctx, snapshot.PaymentIntentID, "refund:"+snapshot.ID.String())
			return refundErr
		},
		r.retry(),
	); err != nil {
		return err
	}

	wf.SetOutcome(string(next), ReasonPaymentCaptured)
	return cache.Publish(wf, r.Cache, cache.KindInvestment, deal.ID.String(), string(next), ReasonPaymentCaptured)
}

// settle evaluates the funding goal and either releases funds or holds
// them in escrow until the goal is met or the funding deadline passes.
func (r *runner) settle(wf *workflow.Workflow, deal *Deal) error {
	funding, err := r.evaluate(wf, deal)
	if err != nil {
		return err
	}
	if funding.GoalMet {
		return r.release(wf, deal, funding)
	}

	if err := r.advance(wf, deal, TriggerEscrow, ReasonEscrow, nil); err != nil {
		return err
	}
	if err := r.notify(wf, "funds-in-escrow", notify.TypeFundsInEscrow, deal.InvestorID, deal); err != nil {
		return err
	}

	for {
		evt, err := wf.WaitForEvent(EventFundingGoalMet, wf.Until(deal.FundingDeadline))
		if err != nil {
			return err
		}

		funding, err = r.evaluate(wf, deal)
		if err != nil {
			return err
		}
		if funding.GoalMet {
			return r.release(wf, deal, funding)
		}
		if evt == nil {
			if err := wf.RunCompensations(); err != nil {
				return err
			}
			if err := r.advance(wf, deal, TriggerRefund, ReasonFundingDeadline, nil); err != nil {
				return err
			}
			return r.notify(wf, "refunded", notify.TypeInvestmentRefunded, deal.InvestorID, deal)
		}
	}
}

func (r *runner) evaluate(wf *workflow.Workflow, deal *Deal) (Funding, error) {
	funding, err := workflow.StepWithResult(wf, wf.UniqueName("evaluate-funding"), func(ctx context.Context) (Funding, error) {
		return r.Store.EvaluateFunding(ctx, deal.ID)
	}, r.retry())
	if err != nil {
		return Funding{}, err
	}
	wf.Logger().Info("funding evaluated",
		slog.String("deal_id", deal.ID.String()),
		slog.Int64("total_raised", funding.TotalRaised),
		slog.Int64("target_raise", funding.TargetRaise),
		slog.Bool("goal_met", funding.GoalMet),
	)
	return funding, nil
}

// release pays the deal out to the creator. A failed release refunds the
// investor and fails the run with the release error.
func (r *runner) release(wf *workflow.Workflow, deal *Deal, funding Funding) error {
	transfer, err := workflow.StepWithResult(wf, "release-funds", func(ctx context.Context) (*provider.Transfer, error) {
		t, transferErr := r.Payments.Transfer(ctx, provider.TransferRequest{
			IdempotencyKey: "release:" + deal.ID.String(),
			Amount:         deal.Amount,
			DestinationID:  deal.CreatorID,
			SourceIntentID: deal.PaymentIntentID,
		})
		if errors.Is(transferErr, provider.ErrTransferRejected) {
			return nil, workflow.Permanent(transferErr)
		}
		return t, transferErr
	}, r.retry())
	if err != nil {
		if wf.Interrupted(err) {
			return err
		}
		return r.failRelease(wf, deal, err)
	}

	if err := r.advance(wf, deal, TriggerRelease, ReasonFundsReleased, func(d *Deal) {
		d.TransferID = transfer.ID
	}); err != nil {
		return err
	}

	if err := wf.Step("announce-goal-met", func(ctx context.Context) error {
		escrowed, listErr := r.Store.EscrowedInvestments(ctx, deal.PitchID)
		if listErr != nil {
			return listErr
		}
		for _, other := range escrowed {
			if other.ID == deal.ID {
				continue
			}
			if _, pubErr := r.Events.PublishJSON(ctx, other.RunID, EventFundingGoalMet, GoalMetEvent{
				PitchID:     deal.PitchID,
				TotalRaised: funding.TotalRaised,
				TriggeredBy: deal.ID.String(),
			}); pubErr != nil {
				return pubErr
			}
		}
		return nil
	}, r.retry()); err != nil {
		if wf.Interrupted(err) {
			return err
		}
		wf.Logger().Warn("announce funding goal failed", slog.String("error", err.Error()))
	}

	if err := r.notify(wf, "funds-released-investor", notify.TypeFundsReleased, deal.InvestorID, deal); err != nil {
		return err
	}
	return r.notify(wf, "funds-released-creator", notify.TypeFundsReleased, deal.CreatorID, deal)
}

func (r *runner) failRelease(wf *workflow.Workflow, deal *Deal, releaseErr error) error {
	wf.Logger().Error("fund release failed",
		slog.String("deal_id", deal.ID.String()),
		slog.String("error", releaseErr.Error()),
	)
	if err := wf.RunCompensations(); err != nil {
		if wf.Interrupted(err) {
			return err
		}
		return errors.Join(releaseErr, err)
	}
	if err := r.advance(wf, deal, TriggerFail, ReasonReleaseFailed, nil); err != nil {
		return err
	}
	if err := r.notify(wf, "release-failed", notify.TypeInvestmentFailed, deal.InvestorID, deal); err != nil {
		return err
	}
	return releaseErr
}

// finish moves the deal to a terminal status and tells the investor.
func (r *runner) finish(wf *workflow.Workflow, deal *Deal, trigger Trigger, reason, typ string) error {
	if err := r.advance(wf, deal, trigger, reason, nil); err != nil {
		return err
	}
	return r.notify(wf, string(deal.Status), typ, deal.InvestorID, deal)
}

func (r *runner) notify(wf *workflow.Workflow, step, typ, recipient string, deal *Deal) error {
	return notify.Dispatch(wf, r.Notifier, step, notify.Notification{
		Type:        typ,
		RecipientID: recipient,
		Data: map[string]any{
			"deal_id":  deal.ID.String(),
			"pitch_id": deal.PitchID,
			"amount":   deal.Amount,
			"status":   string(deal.Status),
			"reason":   deal.Reason,
		},
	}, r.retry())
}

// advance moves deal along the state machine, persists it as a step and
// publishes the new status.
func (r *runner) advance(wf *workflow.Workflow, deal *Deal, trigger Trigger, reason string, mutate func(*Deal)) error {
	next, err := Transition(deal.Status, trigger)
	if err != nil {
		return workflow.Permanent(err)
	}
	deal.Status = next
	deal.Reason = reason
	if mutate != nil {
		mutate(deal)
	}

	snapshot := *deal
	if err := wf.Step(wf.UniqueName("status:"+string(next)), func(ctx context.Context) error {
		return r.Store.UpdateInvestment(ctx, &snapshot)
	}, r.retry()); err != nil {
		return err
	}

	wf.SetOutcome(string(next), reason)
	return cache.Publish(wf, r.Cache, cache.KindInvestment, deal.ID.String(), string(next), reason)
}

func (r *runner) cancel(wf *workflow.Workflow, _ Params) error {
	reason := wf.Run().CancelReason
	if reason == "" {
		reason = ReasonCancelled
	}

	deal, err := workflow.StepWithResult(wf, "cancel-deal", func(ctx context.Context) (*Deal, error) {
		d, getErr := r.Store.GetInvestmentByRun(ctx, wf.RunID())
		if errors.Is(getErr, dealflow.ErrDealNotFound) {
			return nil, nil
		}
		if getErr != nil {
			return nil, getErr
		}
		if d.Status.Terminal() {
			return nil, nil
		}
		d.Status = StatusCancelled
		d.Reason = reason
		return d, r.Store.UpdateInvestment(ctx, d)
	}, r.retry())
	if err != nil {
		return err
	}

	wf.SetOutcome(string(StatusCancelled), reason)
	if deal == nil {
		return nil
	}
	if err := cache.Publish(wf, r.Cache, cache.KindInvestment, deal.ID.String(), string(StatusCancelled), reason); err != nil {
		return err
	}
	return r.notify(wf, "cancelled", notify.TypeInvestmentCancelled, deal.InvestorID, deal)
}
