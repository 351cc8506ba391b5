package nda_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dealflow "github.com/CavellTopDev/pitchey-app-sub015"
	"github.com/CavellTopDev/pitchey-app-sub015/nda"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		from    nda.Status
		trigger nda.Trigger
		want    nda.Status
	}{
		{nda.StatusDraft, nda.TriggerAutoApprove, nda.StatusAutoApproved},
		{nda.StatusDraft, nda.TriggerRequestCreatorReview, nda.StatusPendingCreatorReview},
		{nda.StatusDraft, nda.TriggerRequestLegalReview, nda.StatusPendingLegalReview},
		{nda.StatusPendingCreatorReview, nda.TriggerApprove, nda.StatusApproved},
		{nda.StatusPendingCreatorReview, nda.TriggerReviewTimeout, nda.StatusRejected},
		{nda.StatusPendingLegalReview, nda.TriggerReject, nda.StatusRejected},
		{nda.StatusAutoApproved, nda.TriggerSendForSignature, nda.StatusPending},
		{nda.StatusApproved, nda.TriggerSendForSignature, nda.StatusPending},
		{nda.StatusPending, nda.TriggerView, nda.StatusViewed},
		{nda.StatusPending, nda.TriggerSign, nda.StatusSigned},
		{nda.StatusViewed, nda.TriggerDecline, nda.StatusDeclined},
		{nda.StatusViewed, nda.TriggerSignatureTimeout, nda.StatusExpired},
		{nda.StatusSigned, nda.TriggerActivate, nda.StatusActive},
		{nda.StatusActive, nda.TriggerExpire, nda.StatusExpired},
		{nda.StatusPendingLegalReview, nda.TriggerCancel, nda.StatusCancelled},
		{nda.StatusActive, nda.TriggerCancel, nda.StatusCancelled},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.trigger), func(t *testing.T) {
			got, err := nda.Transition(tt.from, tt.trigger)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTransition_Rejected(t *testing.T) {
	tests := []struct {
		from    nda.Status
		trigger nda.Trigger
	}{
		{nda.StatusDraft, nda.TriggerSign},
		{nda.StatusPending, nda.TriggerApprove},
		{nda.StatusSigned, nda.TriggerExpire},
		{nda.StatusAutoApproved, nda.TriggerView},
		{nda.StatusRejected, nda.TriggerCancel},
		{nda.StatusExpired, nda.TriggerActivate},
	}
	for _, tt := range tests {
		got, err := nda.Transition(tt.from, tt.trigger)
		assert.ErrorIs(t, err, dealflow.ErrInvalidTransition, "%s on %s", tt.trigger, tt.from)
		assert.Equal(t, tt.from, got)
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, s := range nda.TerminalStatuses() {
		assert.True(t, s.Terminal(), s)
	}
	for _, s := range []nda.Status{nda.StatusDraft, nda.StatusPending, nda.StatusViewed, nda.StatusSigned, nda.StatusActive} {
		assert.False(t, s.Terminal(), s)
	}
}
