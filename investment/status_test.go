package investment_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dealflow "github.com/CavellTopDev/pitchey-app-sub015"
	"github.com/CavellTopDev/pitchey-app-sub015/investment"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		from    investment.Status
		trigger investment.Trigger
		want    investment.Status
	}{
		{investment.StatusQualified, investment.TriggerApprove, investment.StatusApproved},
		{investment.StatusQualified, investment.TriggerReject, investment.StatusRejected},
		{investment.StatusQualified, investment.TriggerApprovalTimeout, investment.StatusExpired},
		{investment.StatusApproved, investment.TriggerSignTermSheet, investment.StatusTermSheetSigned},
		{investment.StatusApproved, investment.TriggerTermSheetTimeout, investment.StatusExpired},
		{investment.StatusTermSheetSigned, investment.TriggerCapture, investment.StatusPaymentCaptured},
		{investment.StatusTermSheetSigned, investment.TriggerPaymentTimeout, investment.StatusPaymentFailed},
		{investment.StatusPaymentCaptured, investment.TriggerEscrow, investment.StatusEscrow},
		{investment.StatusPaymentCaptured, investment.TriggerRelease, investment.StatusFundsReleased},
		{investment.StatusPaymentCaptured, investment.TriggerFail, investment.StatusFailed},
		{investment.StatusEscrow, investment.TriggerRelease, investment.StatusFundsReleased},
		{investment.StatusEscrow, investment.TriggerRefund, investment.StatusRefunded},
		{investment.StatusEscrow, investment.TriggerCancel, investment.StatusCancelled},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.trigger), func(t *testing.T) {
			got, err := investment.Transition(tt.from, tt.trigger)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTransition_Rejected(t *testing.T) {
	tests := []struct {
		from    investment.Status
		trigger investment.Trigger
	}{
		{investment.StatusQualified, investment.TriggerCapture},
		{investment.StatusApproved, investment.TriggerRelease},
		{investment.StatusTermSheetSigned, investment.TriggerRefund},
		{investment.StatusFundsReleased, investment.TriggerRefund},
		{investment.StatusRefunded, investment.TriggerCancel},
	}
	for _, tt := range tests {
		_, err := investment.Transition(tt.from, tt.trigger)
		assert.ErrorIs(t, err, dealflow.ErrInvalidTransition, "%s on %s", tt.trigger, tt.from)
	}
}

func TestCounted(t *testing.T) {
	for _, s := range []investment.Status{investment.StatusPaymentCaptured, investment.StatusEscrow, investment.StatusFundsReleased} {
		assert.True(t, investment.Counted(s), s)
	}
	for _, s := range []investment.Status{investment.StatusQualified, investment.StatusRefunded, investment.StatusFailed, investment.StatusCancelled} {
		assert.False(t, investment.Counted(s), s)
	}
	assert.False(t, investment.StatusEscrow.Terminal())
	assert.True(t, investment.StatusRefunded.Terminal())
}
