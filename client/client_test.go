package client_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dealflow "github.com/CavellTopDev/pitchey-app-sub015"
	"github.com/CavellTopDev/pitchey-app-sub015/api"
	"github.com/CavellTopDev/pitchey-app-sub015/client"
	"github.com/CavellTopDev/pitchey-app-sub015/engine"
	"github.com/CavellTopDev/pitchey-app-sub015/id"
	"github.com/CavellTopDev/pitchey-app-sub015/investment"
	"github.com/CavellTopDev/pitchey-app-sub015/nda"
	"github.com/CavellTopDev/pitchey-app-sub015/notify"
	"github.com/CavellTopDev/pitchey-app-sub015/store/memory"
	"github.com/CavellTopDev/pitchey-app-sub015/workflow"
)

var epoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func newClient(t *testing.T) *client.Client {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := dealflow.DefaultConfig()
	cfg.Notify.RatePerRecipient = 0

	eng, err := engine.New(memory.New(),
		engine.WithConfig(cfg),
		engine.WithLogger(logger),
		engine.WithClock(clockwork.NewFakeClockAt(epoch)),
		engine.WithNotifier(&notify.Recorder{}),
		engine.WithRetry(workflow.RetryPolicy{Limit: 1}),
	)
	require.NoError(t, err)

	srv := httptest.NewServer(api.New(eng, logger).Handler())
	t.Cleanup(srv.Close)
	return client.New(srv.URL, client.WithLogger(logger))
}

// An unknown requester scores high risk and waits on legal review.
func ndaParams() nda.Params {
	return nda.Params{
		RequesterID:   "stranger",
		RequesterType: nda.RequesterInvestor,
		CreatorID:     "creator-1",
		PitchID:       "pitch-1",
	}
}

func TestClient_Lifecycle(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()

	require.NoError(t, c.Health(ctx))

	run, err := c.StartWorkflow(ctx, nda.WorkflowName, ndaParams())
	require.NoError(t, err)
	assert.Equal(t, nda.EventLegalReview, run.WaitingOn)

	evt, err := c.Deliver(ctx, run.ID, nda.EventLegalReview, nda.ReviewDecision{
		Decision: nda.DecisionReject,
		Note:     "Terms too broad",
	})
	require.NoError(t, err)
	assert.Equal(t, nda.EventLegalReview, evt.Name)

	got, err := c.Instance(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.RunStateCompleted, got.State)
	assert.Equal(t, string(nda.StatusRejected), got.Status)

	timeline, err := c.Timeline(ctx, run.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, timeline)

	runs, err := c.Instances(ctx, client.ListOpts{Workflow: nda.WorkflowName, State: workflow.RunStateCompleted})
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestClient_CancelAndSentinels(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()

	run, err := c.StartWorkflow(ctx, nda.WorkflowName, ndaParams())
	require.NoError(t, err)

	cancelled, err := c.Cancel(ctx, run.ID, "Pitch withdrawn")
	require.NoError(t, err)
	assert.Equal(t, workflow.RunStateCancelled, cancelled.State)

	_, err = c.Cancel(ctx, run.ID, "again")
	assert.ErrorIs(t, err, dealflow.ErrRunTerminal)

	_, err = c.Instance(ctx, id.NewRunID())
	assert.ErrorIs(t, err, dealflow.ErrRunNotFound)
	assert.True(t, client.IsNotFound(err))

	_, err = c.StartWorkflow(ctx, "mortgage", nil)
	assert.ErrorIs(t, err, dealflow.ErrWorkflowNotFound)
}

func TestClient_RejectedStartReturnsRun(t *testing.T) {
	c := newClient(t)

	run, err := c.StartWorkflow(context.Background(), investment.WorkflowName, investment.Params{
		InvestorID:        "investor-1",
		PitchID:           "pitch-1",
		CreatorID:         "creator-1",
		Amount:            5_000,
		MinimumInvestment: 10_000,
		MaximumInvestment: 500_000,
		TargetRaise:       1_000_000,
		FundingDeadline:   epoch.AddDate(0, 1, 0),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, dealflow.ErrInvestmentOutOfRange)
	require.NotNil(t, run)
	assert.Equal(t, workflow.RunStateFailed, run.State)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	c := client.New(srv.URL,
		client.WithToken("secret"),
		client.WithRetry(3, time.Millisecond),
	)
	require.NoError(t, c.Health(context.Background()))
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_GivesUpAfterRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"boom"}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := client.New(srv.URL, client.WithRetry(1, time.Millisecond))
	err := c.Health(context.Background())

	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, "boom", apiErr.Message)
}
