package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/serviceyard/marketplace-api/internal/model"
	"github.com/serviceyard/marketplace-api/internal/repository"
	apperrors "github.com/serviceyard/marketplace-api/pkg/errors"
)

type bookingRepository struct {
	store *Store
}

func NewBookingRepository(store *Store) repository.BookingRepository {
	return &bookingRepository{store: store}
}

func (r *bookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	unlock := r.store.lock(ctx)
	defer unlock()

	r.store.bookings[booking.ID] = cloneBooking(booking)
	return nil
}

func (r *bookingRepository) Get(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	unlock := r.store.lock(ctx)
	defer unlock()

	booking, ok := r.store.bookings[id]
	if !ok {
		return nil, apperrors.NotFound("booking")
	}
	return cloneBooking(booking), nil
}

func (r *bookingRepository) GetByQuote(ctx context.Context, quoteID uuid.UUID) (*model.Booking, error) {
	unlock := r.store.lock(ctx)
	defer unlock()

	for _, booking := range r.store.bookings {
		if booking.QuoteID == quoteID {
			return cloneBooking(booking), nil
		}
	}
	return nil, apperrors.NotFound("booking")
}

func (r *bookingRepository) Update(ctx context.Context, booking *model.Booking) error {
	unlock := r.store.lock(ctx)
	defer unlock()

	existing, ok := r.store.bookings[booking.ID]
	if !ok {
		return apperrors.NotFound("booking")
	}
	if existing.Version != booking.Version {
		return apperrors.Conflict(apperrors.ReasonConcurrentUpdate, "booking was modified concurrently")
	}
	updated := cloneBooking(booking)
	updated.Version++
	updated.SlotReleased = existing.SlotReleased
	r.store.bookings[booking.ID] = updated
	booking.Version = updated.Version
	return nil
}

func (r *bookingRepository) List(ctx context.Context, filters *model.BookingFilters) ([]*model.Booking, error) {
	unlock := r.store.lock(ctx)
	defer unlock()

	var out []*model.Booking
	for _, booking := range r.store.bookings {
		if filters.ClientID != uuid.Nil && booking.ClientID != filters.ClientID {
			continue
		}
		if filters.ProviderID != uuid.Nil && booking.ProviderID != filters.ProviderID {
			continue
		}
		if filters.Status != "" && booking.Status != filters.Status {
			continue
		}
		if !filters.From.IsZero() && booking.ScheduledAt.Before(filters.From) {
			continue
		}
		if !filters.To.IsZero() && booking.ScheduledAt.After(filters.To) {
			continue
		}
		out = append(out, cloneBooking(booking))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}

func (r *bookingRepository) MarkSlotReleased(ctx context.Context, id uuid.UUID) (bool, error) {
	unlock := r.store.lock(ctx)
	defer unlock()

	booking, ok := r.store.bookings[id]
	if !ok || booking.SlotReleased {
		return false, nil
	}
	booking.SlotReleased = true
	booking.UpdatedAt = time.Now()
	return true, nil
}
