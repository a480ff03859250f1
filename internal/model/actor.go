package model

import (
	"github.com/google/uuid"
)

type ActorKind string

const (
	ActorClient   ActorKind = "client"
	ActorProvider ActorKind = "provider"
	ActorAdmin    ActorKind = "admin"
)

// Actor identifies who is invoking an engine operation. Every operation
// takes it explicitly; the engine never reads ambient user state.
type Actor struct {
	Kind ActorKind `json:"kind"`
	ID   uuid.UUID `json:"id"`
}

func (a Actor) IsClient() bool   { return a.Kind == ActorClient }
func (a Actor) IsProvider() bool { return a.Kind == ActorProvider }
func (a Actor) IsAdmin() bool    { return a.Kind == ActorAdmin }

// bookingTransitionActors lists which actor kinds may trigger each booking
// target status. Ownership of the booking is checked separately.
var bookingTransitionActors = map[BookingStatus][]ActorKind{
	BookingStatusConfirmed:       {ActorProvider, ActorAdmin},
	BookingStatusAwaitingPayment: {ActorClient, ActorAdmin},
	BookingStatusInProgress:      {ActorProvider, ActorAdmin},
	BookingStatusCompleted:       {ActorProvider, ActorAdmin},
	BookingStatusCancelled:       {ActorClient, ActorProvider, ActorAdmin},
	BookingStatusNoShow:          {ActorProvider, ActorAdmin},
	BookingStatusDisputed:        {ActorClient, ActorProvider, ActorAdmin},
	BookingStatusRefunded:        {ActorAdmin},
}

// CanTriggerBookingTransition is the capability check evaluated before the
// state machine runs; it never inspects the current status.
func CanTriggerBookingTransition(actor Actor, b *Booking, to BookingStatus) bool {
	kinds, ok := bookingTransitionActors[to]
	if !ok {
		return false
	}
	allowed := false
	for _, k := range kinds {
		if k == actor.Kind {
			allowed = true
			break
		}
	}
	if !allowed {
		return false
	}
	if actor.IsAdmin() {
		return true
	}
	if actor.IsClient() {
		return b.ClientID == actor.ID
	}
	return b.ProviderID == actor.ID
}
