package nda

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
	"github.com/CavellTopDev/pitchey-app-sub015/provider"
	"github.com/CavellTopDev/pitchey-app-sub015/risk"
	"github.com/CavellTopDev/pitchey-app-sub015/workflow"
)

func init() {
	workflow.RegisterReplayable(dealflow.ErrTemplateNotFound)
}

// Deps are the collaborators of the NDA workflow.
type Deps struct {
	Store     Store
	Directory Directory
	Documents docstore.Store
	Signer    provider.Signer
	Notifier  notify.Sender
	// Cache is optional.
	Cache cache.StatusCache

	Config      dealflow.NDAConfig
	LegalTeamID string
	// Retry applies to every collaborator call.
	Retry workflow.RetryPolicy
}

// Workflow returns the NDA workflow definition bound to deps.
func Workflow(deps Deps) *workflow.Definition[Params] {
	r := &runner{Deps: deps}
	def := workflow.NewWorkflow(WorkflowName, r.run)
	def.Validate = validate
	def.OnCancel = r.cancel
	return def
}

func validate(p Params) error {
	switch {
	case p.RequesterID == "":
		return errors.New("requester_id is required")
	case p.CreatorID == "":
		return errors.New("creator_id is required")
	case p.PitchID == "":
		return errors.New("pitch_id is required")
	case p.RequesterID == p.CreatorID:
		return errors.New("requester and creator must differ")
	case !p.RequesterType.Valid():
		return fmt.Errorf("unknown requester_type %q", p.RequesterType)
	case p.DurationMonths < 0:
		return errors.New("duration_months must not be negative")
	}
	return nil
}

type runner struct {
	Deps
}

func (r *runner) retry() workflow.StepOption { return workflow.WithRetry(r.Retry) }

func (r *runner) run(wf *workflow.Workflow, p Params) error {
	if p.DurationMonths == 0 {
		p.DurationMonths = DefaultDurationMonths
	}

	// Admission.
	if err := wf.Step("check-duplicate", func(ctx context.Context) error {
		existing, err := r.Store.ActiveNDA(ctx, p.RequesterID, p.PitchID)
		if err != nil {
			return err
		}
		if existing != nil && existing.RunID != wf.RunID() {
			return workflow.Permanent(fmt.Errorf("nda %s is %s: %w", existing.ID, existing.Status, dealflow.ErrDuplicateNDA))
		}
		return nil
	}, r.retry()); err != nil {
		return err
	}

	rec, err := workflow.StepWithResult(wf, "create-nda", func(ctx context.Context) (*NDA, error) {
		n := &NDA{
			Entity:                  dealflow.NewEntity(),
			ID:                      id.NewNDAID(),
			RunID:                   wf.RunID(),
			RequesterID:             p.RequesterID,
			RequesterType:           p.RequesterType,
			CreatorID:               p.CreatorID,
			PitchID:                 p.PitchID,
			TemplateID:              p.TemplateID,
			CustomTerms:             p.CustomTerms,
			DurationMonths:          p.DurationMonths,
			TerritorialRestrictions: p.TerritorialRestrictions,
			Status:                  StatusDraft,
		}
		created, createErr := r.Store.CreateNDA(ctx, n)
		if errors.Is(createErr, dealflow.ErrDuplicateNDA) {
			return nil, workflow.Permanent(createErr)
		}
		return created, createErr
	}, r.retry())
	if err != nil {
		return err
	}
	wf.SetStatus(string(rec.Status))
	if err := cache.Publish(wf, r.Cache, cache.KindNDA, rec.ID.String(), string(rec.Status), ""); err != nil {
		return err
	}

	// Risk assessment.
	assessment, tpl, err := r.assess(wf, rec)
	if err != nil {
		return err
	}

	done, err := r.route(wf, rec, assessment)
	if err != nil || done {
		return err
	}

	// Agreement and signature.
	ref, err := workflow.StepWithResult(wf, "generate-document", func(ctx context.Context) (docstore.Ref, error) {
		return r.Documents.Put(ctx, DocumentKey(rec), RenderAgreement(rec, tpl))
	}, r.retry())
	if err != nil {
		return err
	}

	env, err := workflow.StepWithResult(wf, "create-envelope", func(ctx context.Context) (*provider.Envelope, error) {
		return r.Signer.CreateEnvelope(ctx, provider.EnvelopeRequest{
			IdempotencyKey: rec.ID.String(),
			Subject:        "Non-disclosure agreement for pitch " + rec.PitchID,
			DocumentKey:    ref.Key,
			Signers:        []provider.Party{{ID: rec.RequesterID, Role: "receiving_party"}},
			Metadata:       map[string]string{"instance_id": wf.RunID().String(), "nda_id": rec.ID.String()},
		})
	}, r.retry())
	if err != nil {
		return err
	}

	if err := r.advance(wf, rec, TriggerSendForSignature, ReasonSentForSignature, func(n *NDA) {
		n.EnvelopeID = env.ID
		n.DocumentRef = ref.Key
	}); err != nil {
		return err
	}
	if err := notify.Dispatch(wf, r.Notifier, "signature-required", notify.Notification{
		Type:        notify.TypeNDASignatureRequired,
		RecipientID: rec.RequesterID,
		Data: map[string]any{
			"nda_id":   rec.ID.String(),
			"pitch_id": rec.PitchID,
			"deadline": env.CreatedAt.Add(r.Config.SignatureTimeout),
		},
	}, r.retry()); err != nil {
		return err
	}

	signedAt, done, err := r.awaitSignature(wf, rec)
	if err != nil || done {
		return err
	}

	// Activation.
	expiresAt := signedAt.AddDate(0, rec.DurationMonths, 0)
	if err := r.advance(wf, rec, TriggerSign, ReasonSigned, func(n *NDA) {
		n.SignedAt = &signedAt
		n.ExpiresAt = &expiresAt
	}); err != nil {
		return err
	}
	if err := r.activate(wf, rec, signedAt); err != nil {
		return err
	}

	return r.monitorExpiry(wf, rec, signedAt, expiresAt)
}

// assess runs the lookups and scores the request.
func (r *runner) assess(wf *workflow.Workflow, rec *NDA) (risk.Assessment, *risk.Template, error) {
	profile, err := workflow.StepWithResult(wf, "lookup-profile", func(ctx context.Context) (*risk.Profile, error) {
		p, lookupErr := r.Directory.Profile(ctx, rec.RequesterID)
		if errors.Is(lookupErr, dealflow.ErrProfileNotFound) {
			return nil, nil
		}
		return p, lookupErr
	}, r.retry())
	if err != nil {
		return risk.Assessment{}, nil, err
	}

	tpl, err := workflow.StepWithResult(wf, "lookup-template", func(ctx context.Context) (*risk.Template, error) {
		if rec.TemplateID == "" {
			return nil, nil
		}
		t, lookupErr := r.Directory.Template(ctx, rec.TemplateID)
		if errors.Is(lookupErr, dealflow.ErrTemplateNotFound) {
			return nil, workflow.Permanent(lookupErr)
		}
		return t, lookupErr
	}, r.retry())
	if err != nil {
		return risk.Assessment{}, nil, err
	}

	history, err := workflow.StepWithResult(wf, "lookup-history", func(ctx context.Context) (risk.History, error) {
		return r.Directory.History(ctx, rec.RequesterID)
	}, r.retry())
	if err != nil {
		return risk.Assessment{}, nil, err
	}

	assessment, err := workflow.StepWithResult(wf, "assess-risk", func(context.Context) (risk.Assessment, error) {
		return risk.Assess(risk.Input{
			Profile:                 profile,
			Template:                tpl,
			CustomTerms:             rec.CustomTerms,
			DurationMonths:          rec.DurationMonths,
			TerritorialRestrictions: rec.TerritorialRestrictions,
			History:                 history,
			Now:                     wf.Now(),
		}), nil
	})
	if err != nil {
		return risk.Assessment{}, nil, err
	}

	wf.Logger().Info("nda risk assessed",
		slog.String("nda_id", rec.ID.String()),
		slog.Int("score", assessment.Score),
		slog.String("level", string(assessment.Level)),
	)
	return assessment, tpl, nil
}

// route applies the approval path of the assessment. done reports that
// the NDA reached a terminal status.
func (r *runner) route(wf *workflow.Workflow, rec *NDA, a risk.Assessment) (done bool, err error) {
	setRisk := func(n *NDA) {
		n.RiskScore = a.Score
		n.RiskLevel = a.Level
	}

	switch a.Level.Route() {
	case risk.RouteAutoApprove:
		return false, r.advance(wf, rec, TriggerAutoApprove, ReasonAutoApproved, setRisk)

	case risk.RouteCreatorReview:
		if err := r.advance(wf, rec, TriggerRequestCreatorReview, "", setRisk); err != nil {
			return false, err
		}
		if err := notify.Dispatch(wf, r.Notifier, "creator-review", notify.Notification{
			Type:        notify.TypeNDARequestReceived,
			RecipientID: rec.CreatorID,
			Data: map[string]any{
				"nda_id":       rec.ID.String(),
				"pitch_id":     rec.PitchID,
				"requester_id": rec.RequesterID,
				"risk_score":   a.Score,
			},
		}, r.retry()); err != nil {
			return false, err
		}
		return r.review(wf, rec, EventCreatorReview, r.Config.CreatorReviewTimeout, reviewReasons{
			approved: ReasonCreatorApproved,
			modified: ReasonCreatorApproved,
			rejected: ReasonCreatorRejected,
			timeout:  ReasonCreatorReviewTimeout,
		})

	default:
		if err := r.advance(wf, rec, TriggerRequestLegalReview, "", setRisk); err != nil {
			return false, err
		}
		if err := notify.Dispatch(wf, r.Notifier, "legal-review", notify.Notification{
			Type:        notify.TypeNDALegalReview,
			RecipientID: r.LegalTeamID,
			Data: map[string]any{
				"nda_id":       rec.ID.String(),
				"pitch_id":     rec.PitchID,
				"requester_id": rec.RequesterID,
				"risk_score":   a.Score,
				"reasons":      a.Reasons,
			},
		}, r.retry()); err != nil {
			return false, err
		}
		return r.review(wf, rec, EventLegalReview, r.Config.LegalReviewTimeout, reviewReasons{
			approved: ReasonLegalApproved,
			modified: ReasonLegalModified,
			rejected: ReasonLegalRejected,
			timeout:  ReasonLegalReviewTimeout,
		})
	}
}

type reviewReasons struct {
	approved, modified, rejected, timeout string
}

func (r *runner) review(wf *workflow.Workflow, rec *NDA, eventName string, timeout time.Duration, reasons reviewReasons) (bool, error) {
	d, ok, err := workflow.WaitForPayload[ReviewDecision](wf, eventName, timeout)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, r.reject(wf, rec, TriggerReviewTimeout, reasons.timeout)
	}

	switch {
	case d.Decision == DecisionApprove && d.modifies():
		return false, r.advance(wf, rec, TriggerApprove, reasons.approved, d.apply)

	case d.Decision == DecisionApprove:
		return false, r.advance(wf, rec, TriggerApprove, reasons.approved, nil)

	case d.Decision == DecisionModify && reasons.modified != "":
		return false, r.advance(wf, rec, TriggerApprove, reasons.modified, d.apply)

	default:
		reason := reasons.rejected
		if d.Note != "" {
			reason += ": " + d.Note
		}
		return true, r.reject(wf, rec, TriggerReject, reason)
	}
}

func (r *runner) reject(wf *workflow.Workflow, rec *NDA, trigger Trigger, reason string) error {
	if err := r.advance(wf, rec, trigger, reason, nil); err != nil {
		return err
	}
	return notify.Dispatch(wf, r.Notifier, "rejected", notify.Notification{
		Type:        notify.TypeNDARejected,
		RecipientID: rec.RequesterID,
		Data:        map[string]any{"nda_id": rec.ID.String(), "pitch_id": rec.PitchID, "reason": reason},
	}, r.retry())
}

// awaitSignature waits for the requester to sign. The signing window is
// fixed when the envelope goes out; the first view replaces it with the
// shorter post-view window. Repeated or unknown statuses never extend
// either window.
func (r *runner) awaitSignature(wf *workflow.Workflow, rec *NDA) (signedAt time.Time, done bool, err error) {
	deadline, err := wf.Deadline("signature", r.Config.SignatureTimeout)
	if err != nil {
		return time.Time{}, false, err
	}
	for {
		evt, err := wf.WaitForEvent(EventSignature, wf.Until(deadline))
		if err != nil {
			return time.Time{}, false, err
		}
		if evt == nil {
			return time.Time{}, true, r.expireUnsigned(wf, rec)
		}

		var sig SignatureEvent
		if decErr := evt.Decode(&sig); decErr != nil {
			wf.Logger().Warn("undecodable signature event", slog.String("error", decErr.Error()))
			continue
		}

		switch sig.Status {
		case SignatureDelivered, SignatureViewed:
			if rec.Status != StatusPending {
				continue
			}
			if err := r.advance(wf, rec, TriggerView, ReasonViewed, nil); err != nil {
				return time.Time{}, false, err
			}
			if err := notify.Dispatch(wf, r.Notifier, "signature-reminder", notify.Notification{
				Type:        notify.TypeNDASignatureReminder,
				RecipientID: rec.RequesterID,
				Data:        map[string]any{"nda_id": rec.ID.String(), "pitch_id": rec.PitchID},
			}, r.retry()); err != nil {
				return time.Time{}, false, err
			}
			if deadline, err = wf.Deadline("signature-after-view", r.Config.ViewedTimeout); err != nil {
				return time.Time{}, false, err
			}

		case SignatureCompleted:
			return evt.CreatedAt.UTC(), false, nil

		case SignatureDeclined:
			reason := ReasonDeclined
			if sig.Reason != "" {
				reason += ": " + sig.Reason
			}
			if err := r.advance(wf, rec, TriggerDecline, reason, nil); err != nil {
				return time.Time{}, false, err
			}
			return time.Time{}, true, r.notifyBoth(wf, rec, "declined", notify.TypeNDADeclined)

		default:
			wf.Logger().Warn("ignoring signature event", slog.String("status", sig.Status))
		}
	}
}

func (r *runner) expireUnsigned(wf *workflow.Workflow, rec *NDA) error {
	if err := r.advance(wf, rec, TriggerSignatureTimeout, ReasonSignatureTimeout, nil); err != nil {
		return err
	}
	if err := wf.Step("void-envelope", func(ctx context.Context) error {
		return r.Signer.VoidEnvelope(ctx, rec.EnvelopeID, ReasonSignatureTimeout)
	}, r.retry()); err != nil && wf.Interrupted(err) {
		return err
	}
	return notify.Dispatch(wf, r.Notifier, "signature-expired", notify.Notification{
		Type:        notify.TypeNDAExpired,
		RecipientID: rec.RequesterID,
		Data:        map[string]any{"nda_id": rec.ID.String(), "pitch_id": rec.PitchID, "reason": ReasonSignatureTimeout},
	}, r.retry())
}

func (r *runner) activate(wf *workflow.Workflow, rec *NDA, signedAt time.Time) error {
	if err := r.advance(wf, rec, TriggerActivate, ReasonActivated, nil); err != nil {
		return err
	}

	if _, err := workflow.StepWithResult(wf, "grant-access", func(ctx context.Context) (*AccessGrant, error) {
		return r.Store.GrantAccess(ctx, &AccessGrant{
			ID:        id.NewGrantID(),
			PitchID:   rec.PitchID,
			UserID:    rec.RequesterID,
			Method:    AccessMethodNDA,
			NDAID:     rec.ID,
			GrantedAt: signedAt,
		})
	}, r.retry()); err != nil {
		return err
	}

	return r.notifyBoth(wf, rec, "activated", notify.TypeNDAActivated)
}

// notifyBoth tells creator and requester, each through its own retried
// step.
func (r *runner) notifyBoth(wf *workflow.Workflow, rec *NDA, group, typ string) error {
	for _, recipient := range []string{rec.CreatorID, rec.RequesterID} {
		if err := notify.Dispatch(wf, r.Notifier, group, notify.Notification{
			Type:        typ,
			RecipientID: recipient,
			Data: map[string]any{
				"nda_id":   rec.ID.String(),
				"pitch_id": rec.PitchID,
				"status":   string(rec.Status),
				"reason":   rec.Reason,
			},
		}, r.retry()); err != nil {
			return err
		}
	}
	return nil
}

func (r *runner) monitorExpiry(wf *workflow.Workflow, rec *NDA, signedAt, expiresAt time.Time) error {
	if reminderAt := expiresAt.Add(-r.Config.ExpiryReminderLead); reminderAt.After(signedAt) {
		if err := wf.SleepUntil("expiry-reminder", reminderAt); err != nil {
			return err
		}
		if err := notify.Dispatch(wf, r.Notifier, "expiring-soon", notify.Notification{
			Type:        notify.TypeNDAExpiringSoon,
			RecipientID: rec.RequesterID,
			Data:        map[string]any{"nda_id": rec.ID.String(), "expires_at": expiresAt},
		}, r.retry()); err != nil {
			return err
		}
	}

	if err := wf.SleepUntil("expiry", expiresAt); err != nil {
		return err
	}
	if err := r.advance(wf, rec, TriggerExpire, ReasonTermEnded, nil); err != nil {
		return err
	}
	if err := wf.Step("revoke-access", func(ctx context.Context) error {
		return r.Store.RevokeAccess(ctx, rec.ID, expiresAt)
	}, r.retry()); err != nil {
		return err
	}
	return notify.Dispatch(wf, r.Notifier, "term-ended", notify.Notification{
		Type:        notify.TypeNDAExpired,
		RecipientID: rec.RequesterID,
		Data:        map[string]any{"nda_id": rec.ID.String(), "pitch_id": rec.PitchID, "reason": ReasonTermEnded},
	}, r.retry())
}

// advance moves rec along the state machine, persists it as a step and
// publishes the new status.
func (r *runner) advance(wf *workflow.Workflow, rec *NDA, trigger Trigger, reason string, mutate func(*NDA)) error {
	next, err := Transition(rec.Status, trigger)
	if err != nil {
		return workflow.Permanent(err)
	}
	rec.Status = next
	rec.Reason = reason
	if mutate != nil {
		mutate(rec)
	}

	snapshot := *rec
	if err := wf.Step(wf.UniqueName("status:"+string(next)), func(ctx context.Context) error {
		return r.Store.UpdateNDA(ctx, &snapshot)
	}, r.retry()); err != nil {
		return err
	}

	wf.SetOutcome(string(next), reason)
	return cache.Publish(wf, r.Cache, cache.KindNDA, rec.ID.String(), string(next), reason)
}

// cancel marks the NDA of a cancelled run and undoes its side effects.
func (r *runner) cancel(wf *workflow.Workflow, _ Params) error {
	reason := wf.Run().CancelReason
	if reason == "" {
		reason = ReasonCancelled
	}

	rec, err := workflow.StepWithResult(wf, "cancel-nda", func(ctx context.Context) (*NDA, error) {
		n, getErr := r.Store.GetNDAByRun(ctx, wf.RunID())
		if errors.Is(getErr, dealflow.ErrNDANotFound) {
			return nil, nil
		}
		if getErr != nil {
			return nil, getErr
		}
		if n.Status.Terminal() {
			return nil, nil
		}

		prev := n.Status
		n.Status = StatusCancelled
		n.Reason = reason
		if updErr := r.Store.UpdateNDA(ctx, n); updErr != nil {
			return nil, updErr
		}
		if prev == StatusActive {
			if revErr := r.Store.RevokeAccess(ctx, n.ID, wf.Now()); revErr != nil {
				return nil, revErr
			}
		}
		if n.EnvelopeID != "" && (prev == StatusPending || prev == StatusViewed) {
			if voidErr := r.Signer.VoidEnvelope(ctx, n.EnvelopeID, reason); voidErr != nil {
				wf.Logger().Warn("void envelope failed", slog.String("error", voidErr.Error()))
			}
		}
		return n, nil
	}, r.retry())
	if err != nil {
		return err
	}

	wf.SetOutcome(string(StatusCancelled), reason)
	if rec == nil {
		return nil
	}
	return cache.Publish(wf, r.Cache, cache.KindNDA, rec.ID.String(), string(StatusCancelled), reason)
}
