//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	dealflow "github.com/CavellTopDev/pitchey-app-sub015"
	"github.com/CavellTopDev/pitchey-app-sub015/event"
	"github.com/CavellTopDev/pitchey-app-sub015/id"
	"github.com/CavellTopDev/pitchey-app-sub015/investment"
	"github.com/CavellTopDev/pitchey-app-sub015/nda"
	"github.com/CavellTopDev/pitchey-app-sub015/production"
	"github.com/CavellTopDev/pitchey-app-sub015/store/postgres"
	"github.com/CavellTopDev/pitchey-app-sub015/workflow"
)

// setupTestStore creates a Postgres container and returns a migrated Store.
func setupTestStore(t *testing.T) *postgres.Store {
	t.Helper()

	ctx := context.Background()

	container, err := pgmodule.Run(ctx,
		"postgres:16-alpine",
		pgmodule.WithDatabase("dealflow_test"),
		pgmodule.WithUsername("test"),
		pgmodule.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if termErr := container.Terminate(ctx); termErr != nil {
			t.Logf("terminate container: %v", termErr)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}

	s, err := postgres.New(ctx, connStr, postgres.WithLogger(slog.Default()))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if migErr := s.Migrate(ctx); migErr != nil {
		t.Fatalf("migrate: %v", migErr)
	}
	// Migrations are idempotent.
	if migErr := s.Migrate(ctx); migErr != nil {
		t.Fatalf("second migrate: %v", migErr)
	}

	return s
}

// One container serves every test below; each test works on its own rows.
func TestStore(t *testing.T) {
	s := setupTestStore(t)

	t.Run("Ping", func(t *testing.T) { testPing(t, s) })
	t.Run("Runs", func(t *testing.T) { testRuns(t, s) })
	t.Run("CheckpointsAndWaits", func(t *testing.T) { testCheckpointsAndWaits(t, s) })
	t.Run("Events", func(t *testing.T) { testEvents(t, s) })
	t.Run("NDA", func(t *testing.T) { testNDA(t, s) })
	t.Run("Funding", func(t *testing.T) { testFunding(t, s) })
	t.Run("Exclusivity", func(t *testing.T) { testExclusivity(t, s) })
}

func testPing(t *testing.T, s *postgres.Store) {
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("ping failed: %v", err)
	}
}

func newRun(t *testing.T, s *postgres.Store, state workflow.RunState) *workflow.Run {
	t.Helper()
	run := &workflow.Run{
		Entity:    dealflow.NewEntity(),
		ID:        id.NewRunID(),
		Name:      "nda",
		State:     state,
		Input:     []byte(`{"pitch_id":"p"}`),
		StartedAt: time.Now().UTC(),
	}
	if err := s.CreateRun(context.Background(), run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	return run
}

func testRuns(t *testing.T, s *postgres.Store) {
	ctx := context.Background()
	now := time.Now().UTC()

	run := newRun(t, s, workflow.RunStateRunning)
	if err := s.CreateRun(ctx, run); !errors.Is(err, dealflow.ErrRunAlreadyExists) {
		t.Fatalf("duplicate CreateRun err = %v", err)
	}

	got, err := s.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Name != "nda" || string(got.Input) != `{"pitch_id":"p"}` {
		t.Errorf("GetRun = %+v", got)
	}

	ok, err := s.ClaimRun(ctx, run.ID, "a", now, time.Minute)
	if err != nil || !ok {
		t.Fatalf("ClaimRun a = %v, %v", ok, err)
	}
	if ok, _ := s.ClaimRun(ctx, run.ID, "b", now, time.Minute); ok {
		t.Error("second owner claimed a held lease")
	}
	if ok, _ := s.ClaimRun(ctx, run.ID, "b", now.Add(2*time.Minute), time.Minute); !ok {
		t.Error("expired lease not taken over")
	}
	if _, err := s.ClaimRun(ctx, id.NewRunID(), "a", now, time.Minute); !errors.Is(err, dealflow.ErrRunNotFound) {
		t.Errorf("claim unknown run err = %v", err)
	}

	_ = s.RequestCancel(ctx, run.ID, "operator")
	wake := now.Add(-time.Second)
	got.State = workflow.RunStateWaiting
	got.WakeAt = &wake
	got.Status = "PENDING"
	if err := s.UpdateRun(ctx, got); err != nil {
		t.Fatalf("UpdateRun: %v", err)
	}
	got, _ = s.GetRun(ctx, run.ID)
	if got.LockedBy != "b" || !got.CancelRequested || got.Status != "PENDING" {
		t.Errorf("UpdateRun clobbered owned fields: %+v", got)
	}

	due, err := s.ListDueRuns(ctx, now, 0)
	if err != nil {
		t.Fatalf("ListDueRuns: %v", err)
	}
	found := false
	for _, r := range due {
		found = found || r.ID == run.ID
	}
	if !found {
		t.Error("waiting run with passed deadline not due")
	}

	_ = s.ReleaseRun(ctx, run.ID, "b")
	got, _ = s.GetRun(ctx, run.ID)
	if got.LockedBy != "" || got.LockedUntil != nil {
		t.Errorf("lease not released: %+v", got)
	}

	list, err := s.ListRuns(ctx, workflow.ListOpts{State: workflow.RunStateWaiting, Name: "nda"})
	if err != nil || len(list) == 0 {
		t.Errorf("ListRuns = %d, %v", len(list), err)
	}
}

func testCheckpointsAndWaits(t *testing.T, s *postgres.Store) {
	ctx := context.Background()
	run := newRun(t, s, workflow.RunStateRunning)

	for _, data := range []string{`1`, `2`} {
		err := s.SaveCheckpoint(ctx, &workflow.Checkpoint{
			ID: id.NewCheckpointID(), RunID: run.ID, StepName: "create-nda", Data: []byte(data),
		})
		if err != nil {
			t.Fatalf("SaveCheckpoint: %v", err)
		}
	}
	cp, err := s.GetCheckpoint(ctx, run.ID, "create-nda")
	if err != nil || cp == nil || string(cp.Data) != `1` {
		t.Fatalf("GetCheckpoint = %+v, %v; want first write", cp, err)
	}
	if cp, err := s.GetCheckpoint(ctx, run.ID, "missing"); cp != nil || err != nil {
		t.Errorf("missing checkpoint = %v, %v", cp, err)
	}
	_ = s.SaveCheckpoint(ctx, &workflow.Checkpoint{ID: id.NewCheckpointID(), RunID: run.ID, StepName: "b", Error: "boom"})
	cps, _ := s.ListCheckpoints(ctx, run.ID)
	if len(cps) != 2 || cps[1].Error != "boom" {
		t.Errorf("ListCheckpoints = %+v", cps)
	}

	deadline := time.Now().UTC().Add(time.Hour).Truncate(time.Microsecond)
	_ = s.SavePendingEvent(ctx, &workflow.PendingEvent{RunID: run.ID, StepName: "wait:signature", EventName: "signature", Deadline: deadline})
	_ = s.SavePendingEvent(ctx, &workflow.PendingEvent{RunID: run.ID, StepName: "wait:signature", EventName: "signature", Deadline: deadline.Add(time.Hour)})
	pe, _ := s.GetPendingEvent(ctx, run.ID, "wait:signature")
	if pe == nil || !pe.Deadline.Equal(deadline) {
		t.Fatalf("wait deadline moved: %+v", pe)
	}

	if err := s.ResolvePendingEvent(ctx, run.ID, "wait:signature", []byte(`{"a":1}`), false, time.Now()); err != nil {
		t.Fatalf("ResolvePendingEvent: %v", err)
	}
	_ = s.ResolvePendingEvent(ctx, run.ID, "wait:signature", nil, true, time.Now())
	pe, _ = s.GetPendingEvent(ctx, run.ID, "wait:signature")
	if pe.Open() || pe.TimedOut || string(pe.Payload) != `{"a":1}` {
		t.Errorf("first resolution not kept: %+v", pe)
	}
	if err := s.ResolvePendingEvent(ctx, run.ID, "wait:none", nil, true, time.Now()); !errors.Is(err, dealflow.ErrWaitNotFound) {
		t.Errorf("resolve unknown wait err = %v", err)
	}
}

func testEvents(t *testing.T, s *postgres.Store) {
	ctx := context.Background()
	runID := id.NewRunID()

	for i := range 2 {
		_ = s.PublishEvent(ctx, &event.Event{
			ID: id.NewEventID(), RunID: runID, Name: "signature",
			Payload: []byte{'0' + byte(i)}, CreatedAt: time.Now().UTC(),
		})
	}

	// Concurrent claimants never share an event.
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		got = map[string]string{}
	)
	for _, claimant := range []string{"wait:signature", "wait:signature#2", "wait:signature#3"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			evt, err := s.ClaimEvent(ctx, runID, "signature", claimant)
			if err != nil {
				t.Errorf("ClaimEvent: %v", err)
				return
			}
			if evt != nil {
				mu.Lock()
				got[evt.ID.String()] = claimant
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if len(got) != 2 {
		t.Fatalf("claimed %d distinct events, want 2", len(got))
	}

	evts, _ := s.ListEvents(ctx, runID)
	for _, e := range evts {
		again, _ := s.ClaimEvent(ctx, runID, "signature", e.ClaimedBy)
		if again == nil || again.ID != e.ID {
			t.Errorf("claim by %s not idempotent", e.ClaimedBy)
		}
	}
}

func testNDA(t *testing.T, s *postgres.Store) {
	ctx := context.Background()
	mk := func() *nda.NDA {
		return &nda.NDA{
			ID: id.NewNDAID(), RunID: id.NewRunID(),
			RequesterID: "alice", RequesterType: nda.RequesterInvestor,
			CreatorID: "bob", PitchID: "pitch-nda",
			CustomTerms:             map[string]string{"jurisdiction": "CA"},
			TerritorialRestrictions: []string{"US", "UK"},
			DurationMonths:          24,
			Status:                  nda.StatusDraft,
		}
	}

	first, err := s.CreateNDA(ctx, mk())
	if err != nil {
		t.Fatalf("CreateNDA: %v", err)
	}
	if first.CustomTerms["jurisdiction"] != "CA" || len(first.TerritorialRestrictions) != 2 {
		t.Errorf("round trip lost fields: %+v", first)
	}
	again, err := s.CreateNDA(ctx, &nda.NDA{ID: id.NewNDAID(), RunID: first.RunID, RequesterID: "alice", PitchID: "pitch-nda"})
	if err != nil || again.ID != first.ID {
		t.Errorf("same-run create = %v, %v", again, err)
	}
	if _, err := s.CreateNDA(ctx, mk()); !errors.Is(err, dealflow.ErrDuplicateNDA) {
		t.Fatalf("duplicate err = %v", err)
	}

	now := time.Now().UTC()
	g, err := s.GrantAccess(ctx, &nda.AccessGrant{
		ID: id.NewGrantID(), PitchID: "pitch-nda", UserID: "alice",
		Method: nda.AccessMethodNDA, NDAID: first.ID, GrantedAt: now,
	})
	if err != nil {
		t.Fatalf("GrantAccess: %v", err)
	}
	if ok, _ := s.HasAccess(ctx, "pitch-nda", "alice"); !ok {
		t.Error("no access after grant")
	}
	if err := s.RevokeAccess(ctx, g.NDAID, now); err != nil {
		t.Fatalf("RevokeAccess: %v", err)
	}
	if ok, _ := s.HasAccess(ctx, "pitch-nda", "alice"); ok {
		t.Error("access after revoke")
	}

	first.Status = nda.StatusCancelled
	if err := s.UpdateNDA(ctx, first); err != nil {
		t.Fatalf("UpdateNDA: %v", err)
	}
	if _, err := s.CreateNDA(ctx, mk()); err != nil {
		t.Errorf("create after terminal: %v", err)
	}

	h, _ := s.History(ctx, "alice")
	if h.Total != 2 {
		t.Errorf("History = %+v", h)
	}
}

func testFunding(t *testing.T, s *postgres.Store) {
	ctx := context.Background()
	mk := func(amount int64, status investment.Status) *investment.Deal {
		d, err := s.CreateInvestment(ctx, &investment.Deal{
			ID: id.NewInvestmentID(), RunID: id.NewRunID(),
			InvestorID: "inv", PitchID: "pitch-fund", CreatorID: "c",
			Amount: amount, Currency: "usd", TargetRaise: 1_000_000,
			FundingDeadline: time.Now().UTC().Add(24 * time.Hour),
			Status:          status,
		})
		if err != nil {
			t.Fatalf("CreateInvestment: %v", err)
		}
		return d
	}

	mk(400_000, investment.StatusEscrow)
	a := mk(300_000, investment.StatusPaymentCaptured)
	b := mk(300_000, investment.StatusPaymentCaptured)

	// Evaluations racing on one pitch both count every captured amount.
	var (
		wg      sync.WaitGroup
		results [2]investment.Funding
	)
	for i, d := range []*investment.Deal{a, b} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f, err := s.EvaluateFunding(ctx, d.ID)
			if err != nil {
				t.Errorf("EvaluateFunding: %v", err)
			}
			results[i] = f
		}()
	}
	wg.Wait()

	met := 0
	for _, f := range results {
		if f.TotalRaised != 1_000_000 {
			t.Errorf("TotalRaised = %d, want 1000000", f.TotalRaised)
		}
		if f.GoalMet {
			met++
		}
	}
	if met != 2 {
		t.Errorf("goal met %d times, want 2 (all captured amounts counted)", met)
	}

	escrowed, _ := s.EscrowedInvestments(ctx, "pitch-fund")
	if len(escrowed) != 1 {
		t.Errorf("EscrowedInvestments = %d, want 1", len(escrowed))
	}
}

func testExclusivity(t *testing.T, s *postgres.Store) {
	ctx := context.Background()
	now := time.Now().UTC()
	mk := func(company string) *production.Deal {
		d, err := s.CreateProductionDeal(ctx, &production.Deal{
			ID: id.NewProductionID(), RunID: id.NewRunID(),
			ProductionCompanyID: company, PitchID: "pitch-prod", CreatorID: "c",
			InterestType: production.InterestOption, Status: production.StatusInterestSent,
		})
		if err != nil {
			t.Fatalf("CreateProductionDeal: %v", err)
		}
		return d
	}
	a, b := mk("studio-a"), mk("studio-b")

	// Concurrent grants: exactly one wins.
	var (
		wg   sync.WaitGroup
		errs [2]error
	)
	for i, d := range []*production.Deal{a, b} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = s.GrantExclusivity(ctx, d.ID, now)
		}()
	}
	wg.Wait()
	wins := 0
	var winner *production.Deal
	for i, err := range errs {
		switch {
		case err == nil:
			wins++
			winner = []*production.Deal{a, b}[i]
		case !errors.Is(err, dealflow.ErrExclusivityConflict):
			t.Fatalf("GrantExclusivity: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("grants won = %d, want 1", wins)
	}
	if err := s.CheckExclusivity(ctx, winner.ID); err != nil {
		t.Errorf("winner lost exclusivity: %v", err)
	}

	terms := &production.Terms{Budget: 1_500_000, Timeline: "18 months"}
	winner, _ = s.GetProductionDeal(ctx, winner.ID)
	winner.FinalTerms = terms
	winner.Status = production.StatusContractSigned
	if err := s.UpdateProductionDeal(ctx, winner); err != nil {
		t.Fatalf("UpdateProductionDeal: %v", err)
	}
	got, _ := s.GetProductionDeal(ctx, winner.ID)
	if got.FinalTerms == nil || *got.FinalTerms != *terms || got.ExclusivityGrantedAt == nil {
		t.Errorf("round trip = %+v", got)
	}

	act, err := s.Activate(ctx, &production.Activation{
		ID: id.NewActivationID(), DealID: winner.ID, PitchID: "pitch-prod",
		ProductionCompanyID: winner.ProductionCompanyID, ActivatedAt: now,
	})
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if _, err := s.Activate(ctx, &production.Activation{
		ID: id.NewActivationID(), DealID: id.NewProductionID(), PitchID: "pitch-prod", ActivatedAt: now,
	}); !errors.Is(err, dealflow.ErrExclusivityConflict) {
		t.Errorf("second activation err = %v", err)
	}
	again, _ := s.Activate(ctx, &production.Activation{ID: id.NewActivationID(), DealID: winner.ID, PitchID: "pitch-prod", ActivatedAt: now})
	if again == nil || again.ID != act.ID {
		t.Error("Activate not idempotent per deal")
	}

	_, err = s.CreateProductionDeal(ctx, &production.Deal{
		ID: id.NewProductionID(), RunID: id.NewRunID(), ProductionCompanyID: "studio-c",
		PitchID: "pitch-prod", CreatorID: "c", InterestType: production.InterestPurchase,
		Status: production.StatusInterestSent,
	})
	if !errors.Is(err, dealflow.ErrExclusivityConflict) {
		t.Errorf("admission on activated pitch err = %v", err)
	}
}
