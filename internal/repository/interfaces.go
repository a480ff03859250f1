package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/serviceyard/marketplace-api/internal/model"
)

// Transactor runs fn as one serializable unit. The transaction handle is
// carried in the context so repositories join it transparently; nesting
// reuses the outer transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// All repository interfaces in one file
type (
	RequestRepository interface {
		Create(ctx context.Context, req *model.ServiceRequest) error
		Get(ctx context.Context, id uuid.UUID) (*model.ServiceRequest, error)
		Update(ctx context.Context, req *model.ServiceRequest) error
		List(ctx context.Context, filters *model.RequestFilters) ([]*model.ServiceRequest, error)
		// UpdateStatus compare-and-swaps the status; it reports false when the
		// current status was not in from.
		UpdateStatus(ctx context.Context, id uuid.UUID, from []model.RequestStatus, to model.RequestStatus, closedAt *time.Time) (bool, error)
		// ListExpired returns open/quoting requests whose expires_at passed.
		ListExpired(ctx context.Context, before time.Time, limit int) ([]*model.ServiceRequest, error)
	}

	QuoteRepository interface {
		Create(ctx context.Context, quote *model.Quote) error
		Get(ctx context.Context, id uuid.UUID) (*model.Quote, error)
		Update(ctx context.Context, quote *model.Quote) error
		ListForRequest(ctx context.Context, requestID uuid.UUID) ([]*model.Quote, error)
		CountPendingForProvider(ctx context.Context, providerID uuid.UUID) (int, error)
		HasPendingForRequest(ctx context.Context, providerID, requestID uuid.UUID) (bool, error)
		// UpdateStatus compare-and-swaps pending -> to, stamping the matching
		// timestamp column; it reports false when the quote was not pending.
		UpdateStatus(ctx context.Context, id uuid.UUID, to model.QuoteStatus, at time.Time, reason *string) (bool, error)
		// RejectPendingForRequest rejects every pending quote on the request
		// except the given one, returning the quotes it rejected.
		RejectPendingForRequest(ctx context.Context, requestID, exceptID uuid.UUID, at time.Time, reason string) ([]*model.Quote, error)
		// ListExpired returns pending quotes whose valid_until passed.
		ListExpired(ctx context.Context, before time.Time, limit int) ([]*model.Quote, error)
	}

	BookingRepository interface {
		Create(ctx context.Context, booking *model.Booking) error
		Get(ctx context.Context, id uuid.UUID) (*model.Booking, error)
		GetByQuote(ctx context.Context, quoteID uuid.UUID) (*model.Booking, error)
		// Update writes the full row guarded by the version column; a stale
		// version yields Conflict/concurrent_update.
		Update(ctx context.Context, booking *model.Booking) error
		List(ctx context.Context, filters *model.BookingFilters) ([]*model.Booking, error)
		// MarkSlotReleased flips slot_released once; it reports false when the
		// slot was already released for this booking.
		MarkSlotReleased(ctx context.Context, id uuid.UUID) (bool, error)
	}

	SlotRepository interface {
		Create(ctx context.Context, slot *model.Slot) error
		Get(ctx context.Context, id uuid.UUID) (*model.Slot, error)
		// Reserve increments booked_count iff capacity remains; Conflict/slot_full
		// otherwise. Serialized at the slot row.
		Reserve(ctx context.Context, id uuid.UUID) error
		// Release decrements booked_count; Conflict/not_reserved at zero.
		Release(ctx context.Context, id uuid.UUID) error
		FindOverlapping(ctx context.Context, providerID uuid.UUID, date, start, end time.Time) ([]*model.Slot, error)
		// FindCovering returns the slot containing [start,end) for the provider,
		// or nil when none exists.
		FindCovering(ctx context.Context, providerID uuid.UUID, start, end time.Time) (*model.Slot, error)
		ListAvailable(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]*model.Slot, error)
		// DeleteUnbookedForAvailability removes future zero-booking slots
		// generated from the rule, returning how many were removed.
		DeleteUnbookedForAvailability(ctx context.Context, availabilityID uuid.UUID, after time.Time) (int64, error)
	}

	AvailabilityRepository interface {
		Create(ctx context.Context, availability *model.Availability) error
		Get(ctx context.Context, id uuid.UUID) (*model.Availability, error)
		Update(ctx context.Context, availability *model.Availability) error
		Delete(ctx context.Context, id uuid.UUID) error
		ListForProvider(ctx context.Context, providerID uuid.UUID) ([]*model.Availability, error)
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		GetPendingEvents(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, errMsg *string) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}
)
