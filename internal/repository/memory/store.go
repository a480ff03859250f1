// Package memory implements the repository contracts over in-process maps.
// It backs the "memory" database driver and the engine's tests.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/serviceyard/marketplace-api/internal/model"
)

type txMarker struct{}

// Store holds all engine state behind one mutex. Transactions take the
// mutex for their whole extent and snapshot the maps, so a failing
// multi-entity cascade rolls back completely.
type Store struct {
	mu             sync.Mutex
	requests       map[uuid.UUID]*model.ServiceRequest
	quotes         map[uuid.UUID]*model.Quote
	bookings       map[uuid.UUID]*model.Booking
	slots          map[uuid.UUID]*model.Slot
	availabilities map[uuid.UUID]*model.Availability
	outbox         map[uuid.UUID]*model.OutboxEvent
}

func NewStore() *Store {
	return &Store{
		requests:       make(map[uuid.UUID]*model.ServiceRequest),
		quotes:         make(map[uuid.UUID]*model.Quote),
		bookings:       make(map[uuid.UUID]*model.Booking),
		slots:          make(map[uuid.UUID]*model.Slot),
		availabilities: make(map[uuid.UUID]*model.Availability),
		outbox:         make(map[uuid.UUID]*model.OutboxEvent),
	}
}

// lock acquires the store mutex unless the context already runs inside a
// transaction, which holds it for its whole extent.
func (s *Store) lock(ctx context.Context) func() {
	if ctx.Value(txMarker{}) != nil {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

type snapshot struct {
	requests       map[uuid.UUID]*model.ServiceRequest
	quotes         map[uuid.UUID]*model.Quote
	bookings       map[uuid.UUID]*model.Booking
	slots          map[uuid.UUID]*model.Slot
	availabilities map[uuid.UUID]*model.Availability
	outbox         map[uuid.UUID]*model.OutboxEvent
}

func (s *Store) snapshot() snapshot {
	snap := snapshot{
		requests:       make(map[uuid.UUID]*model.ServiceRequest, len(s.requests)),
		quotes:         make(map[uuid.UUID]*model.Quote, len(s.quotes)),
		bookings:       make(map[uuid.UUID]*model.Booking, len(s.bookings)),
		slots:          make(map[uuid.UUID]*model.Slot, len(s.slots)),
		availabilities: make(map[uuid.UUID]*model.Availability, len(s.availabilities)),
		outbox:         make(map[uuid.UUID]*model.OutboxEvent, len(s.outbox)),
	}
	for id, v := range s.requests {
		snap.requests[id] = cloneRequest(v)
	}
	for id, v := range s.quotes {
		snap.quotes[id] = cloneQuote(v)
	}
	for id, v := range s.bookings {
		snap.bookings[id] = cloneBooking(v)
	}
	for id, v := range s.slots {
		snap.slots[id] = cloneSlot(v)
	}
	for id, v := range s.availabilities {
		snap.availabilities[id] = cloneAvailability(v)
	}
	for id, v := range s.outbox {
		snap.outbox[id] = cloneOutboxEvent(v)
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.requests = snap.requests
	s.quotes = snap.quotes
	s.bookings = snap.bookings
	s.slots = snap.slots
	s.availabilities = snap.availabilities
	s.outbox = snap.outbox
}

// Transactor serializes transactions on the store mutex and rolls the
// maps back when fn fails.
type Transactor struct {
	store *Store
}

func NewTransactor(store *Store) *Transactor {
	return &Transactor{store: store}
}

func (t *Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txMarker{}) != nil {
		return fn(ctx)
	}

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	snap := t.store.snapshot()
	if err := fn(context.WithValue(ctx, txMarker{}, struct{}{})); err != nil {
		t.store.restore(snap)
		return err
	}
	return nil
}

func cloneRequest(r *model.ServiceRequest) *model.ServiceRequest {
	c := *r
	if r.AlternativeDates != nil {
		c.AlternativeDates = append(model.DateList(nil), r.AlternativeDates...)
	}
	return &c
}

func cloneQuote(q *model.Quote) *model.Quote {
	c := *q
	return &c
}

func cloneBooking(b *model.Booking) *model.Booking {
	c := *b
	return &c
}

func cloneSlot(s *model.Slot) *model.Slot {
	c := *s
	return &c
}

func cloneAvailability(a *model.Availability) *model.Availability {
	c := *a
	return &c
}

func cloneOutboxEvent(e *model.OutboxEvent) *model.OutboxEvent {
	c := *e
	if e.Payload != nil {
		c.Payload = append([]byte(nil), e.Payload...)
	}
	return &c
}
