package model

import (
	"time"

	"github.com/google/uuid"
)

// Slot is a concrete bookable window for one provider on one date.
// booked_count never exceeds capacity; the version column backs optimistic
// concurrency checks.
type Slot struct {
	Base
	ProviderID           uuid.UUID  `db:"provider_id" json:"provider_id"`
	Date                 time.Time  `db:"date" json:"date"`
	StartTime            time.Time  `db:"start_time" json:"start_time"`
	EndTime              time.Time  `db:"end_time" json:"end_time"`
	Capacity             int        `db:"capacity" json:"capacity"`
	BookedCount          int        `db:"booked_count" json:"booked_count"`
	IsBooked             bool       `db:"is_booked" json:"is_booked"`
	SourceAvailabilityID *uuid.UUID `db:"source_availability_id" json:"source_availability_id,omitempty"`
	Version              int64      `db:"version" json:"-"`
}

// Overlaps reports window overlap on the same provider and date. A shared
// boundary (this end == other start) does not count.
func (s *Slot) Overlaps(other *Slot) bool {
	if s.ProviderID != other.ProviderID || !sameDay(s.Date, other.Date) {
		return false
	}
	return s.StartTime.Before(other.EndTime) && other.StartTime.Before(s.EndTime)
}

// OverlapsWindow is Overlaps against a raw window.
func (s *Slot) OverlapsWindow(start, end time.Time) bool {
	return s.StartTime.Before(end) && start.Before(s.EndTime)
}

// Covers reports whether the window fits entirely inside the slot.
func (s *Slot) Covers(start, end time.Time) bool {
	return !start.Before(s.StartTime) && !end.After(s.EndTime)
}

func (s *Slot) HasCapacity() bool {
	return s.BookedCount < s.Capacity
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
