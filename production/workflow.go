package production

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	dealflow "github.com/CavellTopDev/pitchey-app-sub015"
	"github.com/CavellTopDev/pitchey-app-sub015/cache"
	"github.com/CavellTopDev/pitchey-app-sub015/docstore"
	"github.com/CavellTopDev/pitchey-app-sub015/id"
	"github.com/CavellTopDev/pitchey-app-sub015/notify"
	"github.com/CavellTopDev/pitchey-app-sub015/workflow"
)

// Deps are the collaborators of the production workflow.
type Deps struct {
	Store     Store
	Documents docstore.Store
	Notifier  notify.Sender
	Cache     cache.StatusCache

	Config dealflow.ProductionConfig
	Retry  workflow.RetryPolicy
}

// Workflow returns the production workflow definition bound to deps.
func Workflow(deps Deps) *workflow.Definition[Params] {
	r := &runner{Deps: deps}
	def := workflow.NewWorkflow(WorkflowName, r.run)
	def.Validate = validate
	def.OnCancel = r.cancel
	return def
}

func validate(p Params) error {
	switch {
	case p.ProductionCompanyID == "":
		return errors.New("production_company_id is required")
	case p.PitchID == "":
		return errors.New("pitch_id is required")
	case p.CreatorID == "":
		return errors.New("creator_id is required")
	case !p.InterestType.Valid():
		return fmt.Errorf("unknown interest_type %q", p.InterestType)
	case p.ProposedBudget < 0:
		return errors.New("proposed_budget must not be negative")
	}
	return nil
}

type runner struct {
	Deps
}

func (r *runner) retry() workflow.StepOption { return workflow.WithRetry(r.Retry) }

func (r *runner) run(wf *workflow.Workflow, p Params) error {
	deal, err := workflow.StepWithResult(wf, "create-deal", func(ctx context.Context) (*Deal, error) {
		created, createErr := r.Store.CreateProductionDeal(ctx, &Deal{
			Entity:              dealflow.NewEntity(),
			ID:                  id.NewProductionID(),
			RunID:               wf.RunID(),
			ProductionCompanyID: p.ProductionCompanyID,
			PitchID:             p.PitchID,
			CreatorID:           p.CreatorID,
			InterestType:        p.InterestType,
			ProposedBudget:      p.ProposedBudget,
			ProposedTimeline:    p.ProposedTimeline,
			Status:              StatusInterestSent,
		})
		if errors.Is(createErr, dealflow.ErrExclusivityConflict) {
			return nil, workflow.Permanent(createErr)
		}
		return created, createErr
	}, r.retry())
	if err != nil {
		return err
	}
	wf.SetStatus(string(deal.Status))
	if err := cache.Publish(wf, r.Cache, cache.KindProduction, deal.ID.String(), string(deal.Status), ""); err != nil {
		return err
	}

	standing, err := workflow.StepWithResult(wf, "company-standing", func(ctx context.Context) (Standing, error) {
		return r.Store.CompanyStanding(ctx, deal.ProductionCompanyID)
	}, r.retry())
	if err != nil {
		if wf.Interrupted(err) {
			return err
		}
		wf.Logger().Warn("company standing unavailable", slog.String("error", err.Error()))
	}

	if err := notify.Dispatch(wf, r.Notifier, "interest", notify.Notification{
		Type:        notify.TypeProductionInterest,
		RecipientID: deal.CreatorID,
		Data: map[string]any{
			"deal_id":               deal.ID.String(),
			"pitch_id":              deal.PitchID,
			"production_company_id": deal.ProductionCompanyID,
			"interest_type":         string(deal.InterestType),
			"proposed_budget":       deal.ProposedBudget,
			"proposed_timeline":     deal.ProposedTimeline,
			"message":               p.Message,
			"completed_deals":       standing.CompletedDeals,
		},
	}, r.retry()); err != nil {
		return err
	}

	if done, err := r.creatorInterest(wf, deal); err != nil || done {
		return err
	}
	if done, err := r.meeting(wf, deal); err != nil || done {
		return err
	}
	if done, err := r.negotiate(wf, deal); err != nil || done {
		return err
	}
	return r.contract(wf, deal)
}

func (r *runner) creatorInterest(wf *workflow.Workflow, deal *Deal) (bool, error) {
	resp, ok, err := workflow.WaitForPayload[InterestResponse](wf, EventCreatorInterest, r.Config.CreatorResponseTimeout)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, r.finish(wf, deal, TriggerTimeout, ReasonCreatorTimeout, notify.TypeProductionTimeout)
	}
	if !resp.Interested {
		return true, r.finish(wf, deal, TriggerDecline, withNote(ReasonCreatorDeclined, resp.Note), notify.TypeProductionDeclined)
	}

	grantedAt, err := workflow.StepWithResult(wf, "grant-exclusivity", func(ctx context.Context) (time.Time, error) {
		at := wf.Now()
		if grantErr := r.Store.GrantExclusivity(ctx, deal.ID, at); grantErr != nil {
			if errors.Is(grantErr, dealflow.ErrExclusivityConflict) {
				return time.Time{}, workflow.Permanent(grantErr)
			}
			return time.Time{}, grantErr
		}
		return at, nil
	}, r.retry())
	if err != nil {
		if wf.Interrupted(err) || !errors.Is(err, dealflow.ErrExclusivityConflict) {
			return false, err
		}
		if finErr := r.finish(wf, deal, TriggerDecline, ReasonExclusivityLost, notify.TypeProductionDeclined); finErr != nil {
			return false, finErr
		}
		return true, err
	}

	return false, r.advance(wf, deal, TriggerCreatorInterested, ReasonCreatorInterested, func(d *Deal) {
		d.ExclusivityGrantedAt = &grantedAt
	})
}

func (r *runner) meeting(wf *workflow.Workflow, deal *Deal) (bool, error) {
	out, ok, err := workflow.WaitForPayload[MeetingOutcome](wf, EventMeetingOutcome, r.Config.MeetingTimeout)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, r.finish(wf, deal, TriggerTimeout, ReasonMeetingTimeout, notify.TypeProductionTimeout)
	}
	if out.Outcome != MeetingProceed {
		return true, r.finish(wf, deal, TriggerDecline, withNote(ReasonMeetingDeclined, out.Notes), notify.TypeProductionDeclined)
	}
	return false, nil
}

// negotiate runs proposal and counter rounds until both sides agree on
// terms. done reports a terminal outcome.
func (r *runner) negotiate(wf *workflow.Workflow, deal *Deal) (bool, error) {
	prop, ok, err := workflow.WaitForPayload[Proposal](wf, EventProposal, r.Config.ProposalTimeout)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, r.finish(wf, deal, TriggerTimeout, ReasonProposalTimeout, notify.TypeProductionTimeout)
	}
	onTable := Terms{Budget: deal.ProposedBudget, Timeline: deal.ProposedTimeline}.Merge(prop.Terms)

	for {
		if err := wf.Step(wf.UniqueName("check-exclusivity"), func(ctx context.Context) error {
			checkErr := r.Store.CheckExclusivity(ctx, deal.ID)
			if errors.Is(checkErr, dealflow.ErrExclusivityConflict) {
				return workflow.Permanent(checkErr)
			}
			return checkErr
		}, r.retry()); err != nil {
			if wf.Interrupted(err) || !errors.Is(err, dealflow.ErrExclusivityConflict) {
				return false, err
			}
			if finErr := r.finish(wf, deal, TriggerDecline, ReasonExclusivityLost, notify.TypeProductionDeclined); finErr != nil {
				return false, finErr
			}
			return true, err
		}

		if err := r.advance(wf, deal, TriggerSubmitProposal, ReasonProposalSent, nil); err != nil {
			return false, err
		}
		if err := r.notifyTerms(wf, "proposal", notify.TypeProposalReceived, deal.CreatorID, deal, onTable); err != nil {
			return false, err
		}

		resp, ok, err := workflow.WaitForPayload[Response](wf, EventProposalResponse, r.Config.ProposalResponseTimeout)
		if err != nil {
			return false, err
		}
		if !ok {
			return true, r.finish(wf, deal, TriggerTimeout, ReasonResponseTimeout, notify.TypeProductionTimeout)
		}

		switch resp.Decision {
		case DecisionAccept:
			return false, r.accept(wf, deal, onTable)
		case DecisionCounter:
		default:
			return true, r.finish(wf, deal, TriggerDecline, withNote(ReasonProposalDeclined, resp.Note), notify.TypeProductionDeclined)
		}

		onTable = onTable.Merge(resp.CounterTerms)
		if err := r.advance(wf, deal, TriggerCounter, ReasonCountered, func(d *Deal) {
			d.CounterRounds++
		}); err != nil {
			return false, err
		}
		if err := r.notifyTerms(wf, "counter", notify.TypeCounterProposal, deal.ProductionCompanyID, deal, onTable); err != nil {
			return false, err
		}

		counter, ok, err := workflow.WaitForPayload[Response](wf, EventCounterResponse, r.Config.CounterResponseTimeout)
		if err != nil {
			return false, err
		}
		if !ok {
			return true, r.finish(wf, deal, TriggerTimeout, ReasonCounterTimeout, notify.TypeProductionTimeout)
		}

		switch counter.Decision {
		case DecisionAccept:
			return false, r.accept(wf, deal, onTable)
		case DecisionCounter:
			if deal.CounterRounds >= r.Config.MaxCounterRounds {
				return true, r.finish(wf, deal, TriggerDecline, ReasonCounterExhausted, notify.TypeProductionDeclined)
			}
			onTable = onTable.Merge(counter.CounterTerms)
		default:
			return true, r.finish(wf, deal, TriggerDecline, withNote(ReasonCounterDeclined, counter.Note), notify.TypeProductionDeclined)
		}
	}
}

func (r *runner) accept(wf *workflow.Workflow, deal *Deal, terms Terms) error {
	return r.advance(wf, deal, TriggerAccept, ReasonAccepted, func(d *Deal) {
		final := terms
		d.FinalTerms = &final
	})
}

func (r *runner) contract(wf *workflow.Workflow, deal *Deal) error {
	ref, err := workflow.StepWithResult(wf, "generate-contract", func(ctx context.Context) (docstore.Ref, error) {
		return r.Documents.Put(ctx, ContractKey(deal), RenderContract(deal))
	}, r.retry())
	if err != nil {
		return err
	}
	deal.ContractRef = ref.Key

	if err := r.notifyBoth(wf, "contract-ready", notify.TypeContractReady, deal); err != nil {
		return err
	}

	sig, ok, err := workflow.WaitForPayload[ContractEvent](wf, EventContractSignature, r.Config.ContractTimeout)
	if err != nil {
		return err
	}
	if !ok {
		return r.finish(wf, deal, TriggerTimeout, ReasonContractTimeout, notify.TypeProductionTimeout)
	}
	if sig.Status != ContractSigned {
		return r.finish(wf, deal, TriggerDecline, withNote(ReasonContractDeclined, sig.Reason), notify.TypeProductionDeclined)
	}

	if err := r.advance(wf, deal, TriggerSignContract, ReasonContractSigned, nil); err != nil {
		return err
	}

	if _, err := workflow.StepWithResult(wf, "activate", func(ctx context.Context) (*Activation, error) {
		a, actErr := r.Store.Activate(ctx, &Activation{
			ID:                  id.NewActivationID(),
			DealID:              deal.ID,
			PitchID:             deal.PitchID,
			ProductionCompanyID: deal.ProductionCompanyID,
			ActivatedAt:         wf.Now(),
		})
		if errors.Is(actErr, dealflow.ErrExclusivityConflict) {
			return nil, workflow.Permanent(actErr)
		}
		return a, actErr
	}, r.retry()); err != nil {
		return err
	}

	if err := r.advance(wf, deal, TriggerActivate, ReasonActivated, nil); err != nil {
		return err
	}
	return r.notifyBoth(wf, "activated", notify.TypeProductionActivated, deal)
}

// finish moves the deal to a terminal status and tells both sides.
func (r *runner) finish(wf *workflow.Workflow, deal *Deal, trigger Trigger, reason, typ string) error {
	if err := r.advance(wf, deal, trigger, reason, nil); err != nil {
		return err
	}
	return r.notifyBoth(wf, string(deal.Status), typ, deal)
}

func (r *runner) notifyBoth(wf *workflow.Workflow, step, typ string, deal *Deal) error {
	for _, recipient := range []string{deal.CreatorID, deal.ProductionCompanyID} {
		if err := notify.Dispatch(wf, r.Notifier, step, notify.Notification{
			Type:        typ,
			RecipientID: recipient,
			Data: map[string]any{
				"deal_id":  deal.ID.String(),
				"pitch_id": deal.PitchID,
				"status":   string(deal.Status),
				"reason":   deal.Reason,
			},
		}, r.retry()); err != nil {
			return err
		}
	}
	return nil
}

func (r *runner) notifyTerms(wf *workflow.Workflow, step, typ, recipient string, deal *Deal, t Terms) error {
	return notify.Dispatch(wf, r.Notifier, step, notify.Notification{
		Type:        typ,
		RecipientID: recipient,
		Data: map[string]any{
			"deal_id":            deal.ID.String(),
			"pitch_id":           deal.PitchID,
			"budget":             t.Budget,
			"timeline":           t.Timeline,
			"rights_structure":   t.RightsStructure,
			"distribution_terms": t.DistributionTerms,
			"backend_points":     t.BackendPoints,
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
		return r.Store.UpdateProductionDeal(ctx, &snapshot)
	}, r.retry()); err != nil {
		return err
	}

	wf.SetOutcome(string(next), reason)
	return cache.Publish(wf, r.Cache, cache.KindProduction, deal.ID.String(), string(next), reason)
}

func (r *runner) cancel(wf *workflow.Workflow, _ Params) error {
	reason := wf.Run().CancelReason
	if reason == "" {
		reason = ReasonCancelled
	}

	deal, err := workflow.StepWithResult(wf, "cancel-deal", func(ctx context.Context) (*Deal, error) {
		d, getErr := r.Store.GetProductionDealByRun(ctx, wf.RunID())
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
		return d, r.Store.UpdateProductionDeal(ctx, d)
	}, r.retry())
	if err != nil {
		return err
	}

	wf.SetOutcome(string(StatusCancelled), reason)
	if deal == nil {
		return nil
	}
	return cache.Publish(wf, r.Cache, cache.KindProduction, deal.ID.String(), string(StatusCancelled), reason)
}

func withNote(reason, note string) string {
	if note == "" {
		return reason
	}
	return reason + ": " + note
}
