package model

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestBookingStatusTransitions(t *testing.T) {
	cases := []struct {
		from    BookingStatus
		to      BookingStatus
		allowed bool
	}{
		{BookingStatusPending, BookingStatusConfirmed, true},
		{BookingStatusPending, BookingStatusAwaitingPayment, true},
		{BookingStatusPending, BookingStatusCancelled, true},
		{BookingStatusPending, BookingStatusInProgress, false},
		{BookingStatusAwaitingPayment, BookingStatusConfirmed, true},
		{BookingStatusAwaitingPayment, BookingStatusPending, true},
		{BookingStatusConfirmed, BookingStatusInProgress, true},
		{BookingStatusConfirmed, BookingStatusNoShow, true},
		{BookingStatusConfirmed, BookingStatusCompleted, false},
		{BookingStatusInProgress, BookingStatusCompleted, true},
		{BookingStatusInProgress, BookingStatusDisputed, true},
		{BookingStatusInProgress, BookingStatusNoShow, false},
		{BookingStatusCompleted, BookingStatusRefunded, true},
		{BookingStatusCompleted, BookingStatusDisputed, true},
		{BookingStatusCompleted, BookingStatusInProgress, false},
		{BookingStatusDisputed, BookingStatusCompleted, true},
		{BookingStatusDisputed, BookingStatusRefunded, true},
		{BookingStatusDisputed, BookingStatusCancelled, true},
		{BookingStatusCancelled, BookingStatusConfirmed, false},
		{BookingStatusNoShow, BookingStatusConfirmed, false},
		{BookingStatusRefunded, BookingStatusCompleted, false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.allowed, tc.from.CanTransitionTo(tc.to),
			"%s -> %s", tc.from, tc.to)
	}
}

func TestBookingStatusTerminal(t *testing.T) {
	assert.True(t, BookingStatusCancelled.IsTerminal())
	assert.True(t, BookingStatusNoShow.IsTerminal())
	assert.True(t, BookingStatusRefunded.IsTerminal())
	assert.False(t, BookingStatusCompleted.IsTerminal())
	assert.False(t, BookingStatusDisputed.IsTerminal())
}

func TestBookingStatusReleasesSlot(t *testing.T) {
	assert.True(t, BookingStatusCancelled.ReleasesSlot())
	assert.True(t, BookingStatusNoShow.ReleasesSlot())
	assert.True(t, BookingStatusRefunded.ReleasesSlot())
	assert.True(t, BookingStatusCompleted.ReleasesSlot())
	assert.False(t, BookingStatusConfirmed.ReleasesSlot())
	assert.False(t, BookingStatusInProgress.ReleasesSlot())
	assert.False(t, BookingStatusDisputed.ReleasesSlot())
}

func TestCanTriggerBookingTransition(t *testing.T) {
	clientID := uuid.New()
	providerID := uuid.New()
	b := &Booking{ClientID: clientID, ProviderID: providerID}

	client := Actor{Kind: ActorClient, ID: clientID}
	provider := Actor{Kind: ActorProvider, ID: providerID}
	admin := Actor{Kind: ActorAdmin, ID: uuid.New()}
	stranger := Actor{Kind: ActorClient, ID: uuid.New()}

	// Only providers and admins start or complete work.
	assert.True(t, CanTriggerBookingTransition(provider, b, BookingStatusInProgress))
	assert.False(t, CanTriggerBookingTransition(client, b, BookingStatusInProgress))
	assert.True(t, CanTriggerBookingTransition(provider, b, BookingStatusCompleted))

	// Both parties may cancel or dispute; strangers may not.
	assert.True(t, CanTriggerBookingTransition(client, b, BookingStatusCancelled))
	assert.True(t, CanTriggerBookingTransition(provider, b, BookingStatusCancelled))
	assert.False(t, CanTriggerBookingTransition(stranger, b, BookingStatusCancelled))
	assert.True(t, CanTriggerBookingTransition(client, b, BookingStatusDisputed))

	// Refunds are admin-only.
	assert.False(t, CanTriggerBookingTransition(client, b, BookingStatusRefunded))
	assert.False(t, CanTriggerBookingTransition(provider, b, BookingStatusRefunded))
	assert.True(t, CanTriggerBookingTransition(admin, b, BookingStatusRefunded))

	// No-show reports come from the provider.
	assert.True(t, CanTriggerBookingTransition(provider, b, BookingStatusNoShow))
	assert.False(t, CanTriggerBookingTransition(client, b, BookingStatusNoShow))
}
