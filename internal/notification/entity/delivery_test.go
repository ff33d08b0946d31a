package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeliveryStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to DeliveryStatus
		want     bool
	}{
		{DeliveryStatusPending, DeliveryStatusSent, true},
		{DeliveryStatusPending, DeliveryStatusFailed, true},
		{DeliveryStatusPending, DeliveryStatusDelivered, false},
		{DeliveryStatusPending, DeliveryStatusBounced, false},
		{DeliveryStatusSent, DeliveryStatusDelivered, true},
		{DeliveryStatusSent, DeliveryStatusBounced, true},
		{DeliveryStatusSent, DeliveryStatusDeferred, true},
		{DeliveryStatusDeferred, DeliveryStatusSent, true},
		{DeliveryStatusDeferred, DeliveryStatusDelivered, true},
		{DeliveryStatusFailed, DeliveryStatusSent, true},
		{DeliveryStatusFailed, DeliveryStatusDelivered, false},
		{DeliveryStatusDelivered, DeliveryStatusBounced, false},
		{DeliveryStatusBounced, DeliveryStatusFailed, false},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}

	assert.True(t, DeliveryStatusDelivered.IsTerminal())
	assert.True(t, DeliveryStatusBounced.IsTerminal())
	assert.False(t, DeliveryStatusDeferred.IsTerminal())
}

func TestBounceClass_Suppresses(t *testing.T) {
	assert.True(t, BounceClassHard.Suppresses())
	assert.True(t, BounceClassBlocked.Suppresses())
	assert.False(t, BounceClassSoft.Suppresses())
	assert.False(t, BounceClassUnknown.Suppresses())
}
