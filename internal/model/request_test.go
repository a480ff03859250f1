package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestStatusTransitions(t *testing.T) {
	assert.True(t, RequestStatusOpen.CanTransitionTo(RequestStatusQuoting))
	assert.True(t, RequestStatusOpen.CanTransitionTo(RequestStatusInProgress))
	assert.True(t, RequestStatusQuoting.CanTransitionTo(RequestStatusInProgress))
	assert.True(t, RequestStatusInProgress.CanTransitionTo(RequestStatusCompleted))
	assert.True(t, RequestStatusInProgress.CanTransitionTo(RequestStatusCancelled))

	// Reopen path.
	assert.True(t, RequestStatusCancelled.CanTransitionTo(RequestStatusOpen))
	assert.True(t, RequestStatusExpired.CanTransitionTo(RequestStatusOpen))

	assert.False(t, RequestStatusCompleted.CanTransitionTo(RequestStatusOpen))
	assert.False(t, RequestStatusInProgress.CanTransitionTo(RequestStatusQuoting))
	assert.False(t, RequestStatusQuoting.CanTransitionTo(RequestStatusOpen))
}

func TestRequestStatusPredicates(t *testing.T) {
	assert.True(t, RequestStatusOpen.AcceptsQuotes())
	assert.True(t, RequestStatusQuoting.AcceptsQuotes())
	assert.False(t, RequestStatusInProgress.AcceptsQuotes())
	assert.False(t, RequestStatusCancelled.AcceptsQuotes())

	assert.True(t, RequestStatusCompleted.IsClosed())
	assert.True(t, RequestStatusCancelled.IsClosed())
	assert.True(t, RequestStatusExpired.IsClosed())
	assert.False(t, RequestStatusOpen.IsClosed())
	assert.False(t, RequestStatusInProgress.IsClosed())
}

func TestQuoteStatusTransitions(t *testing.T) {
	for _, target := range []QuoteStatus{QuoteStatusAccepted, QuoteStatusRejected, QuoteStatusExpired, QuoteStatusWithdrawn} {
		assert.True(t, QuoteStatusPending.CanTransitionTo(target))
		assert.True(t, target.IsTerminal())
		assert.False(t, target.CanTransitionTo(QuoteStatusPending))
	}
	assert.False(t, QuoteStatusPending.IsTerminal())
	assert.False(t, QuoteStatusAccepted.CanTransitionTo(QuoteStatusRejected))
}
