package model

import (
	"time"

	"github.com/google/uuid"
)

type BookingStatus string

const (
	BookingStatusPending         BookingStatus = "pending"
	BookingStatusAwaitingPayment BookingStatus = "awaiting_payment"
	BookingStatusConfirmed       BookingStatus = "confirmed"
	BookingStatusInProgress      BookingStatus = "in_progress"
	BookingStatusCompleted       BookingStatus = "completed"
	BookingStatusCancelled       BookingStatus = "cancelled"
	BookingStatusNoShow          BookingStatus = "no_show"
	BookingStatusRefunded        BookingStatus = "refunded"
	BookingStatusDisputed        BookingStatus = "disputed"
)

// bookingTransitions is the full state machine for bookings. Presentation
// concerns live with the callers; this table is the single source of
// transition legality.
var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending:         {BookingStatusConfirmed, BookingStatusCancelled, BookingStatusAwaitingPayment},
	BookingStatusAwaitingPayment: {BookingStatusPending, BookingStatusConfirmed, BookingStatusCancelled},
	BookingStatusConfirmed:       {BookingStatusInProgress, BookingStatusCancelled, BookingStatusNoShow},
	BookingStatusInProgress:      {BookingStatusCompleted, BookingStatusCancelled, BookingStatusDisputed},
	BookingStatusCompleted:       {BookingStatusRefunded, BookingStatusDisputed},
	BookingStatusDisputed:        {BookingStatusCompleted, BookingStatusRefunded, BookingStatusCancelled},
	BookingStatusCancelled:       {},
	BookingStatusNoShow:          {},
	BookingStatusRefunded:        {},
}

func (s BookingStatus) IsValid() bool {
	_, ok := bookingTransitions[s]
	return ok
}

func (s BookingStatus) CanTransitionTo(target BookingStatus) bool {
	for _, t := range bookingTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

func (s BookingStatus) IsTerminal() bool {
	return len(bookingTransitions[s]) == 0
}

// ReleasesSlot reports whether entering this status returns the booking's
// slot capacity. completed releases too; the booking's slot_released flag
// keeps the release exactly-once should a dispute follow.
func (s BookingStatus) ReleasesSlot() bool {
	switch s {
	case BookingStatusCancelled, BookingStatusNoShow, BookingStatusRefunded, BookingStatusCompleted:
		return true
	}
	return false
}

// Booking is the confirmed engagement created when a quote is accepted.
// It always references exactly one slot.
type Booking struct {
	Base
	RequestID        uuid.UUID     `db:"request_id" json:"request_id"`
	QuoteID          uuid.UUID     `db:"quote_id" json:"quote_id"`
	ClientID         uuid.UUID     `db:"client_id" json:"client_id"`
	ProviderID       uuid.UUID     `db:"provider_id" json:"provider_id"`
	SlotID           uuid.UUID     `db:"slot_id" json:"slot_id"`
	ScheduledAt      time.Time     `db:"scheduled_at" json:"scheduled_at"`
	DurationMinutes  int           `db:"duration_minutes" json:"duration_minutes"`
	AmountCents      int64         `db:"amount_cents" json:"amount_cents"`
	Status           BookingStatus `db:"status" json:"status"`
	ActualStartTime  *time.Time    `db:"actual_start_time" json:"actual_start_time,omitempty"`
	ActualEndTime    *time.Time    `db:"actual_end_time" json:"actual_end_time,omitempty"`
	CancelReason     *string       `db:"cancel_reason" json:"cancel_reason,omitempty"`
	LateCancellation bool          `db:"late_cancellation" json:"late_cancellation"`
	SlotReleased     bool          `db:"slot_released" json:"-"`
	ChargeRef        *string       `db:"charge_ref" json:"charge_ref,omitempty"`
	Version          int64         `db:"version" json:"-"`
}

type CancelBookingInput struct {
	Reason    string `json:"reason" validate:"max=1000"`
	AllowLate bool   `json:"allow_late"`
}

type BookingFilters struct {
	ClientID   uuid.UUID
	ProviderID uuid.UUID
	Status     BookingStatus
	DateRange
	Pagination
}
