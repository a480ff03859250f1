package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Availability is a declarative rule from which bookable slots are
// generated: either one weekday recurring weekly, or a single specific
// date. Wall-clock times are stored as "15:04" strings.
type Availability struct {
	Base
	ProviderID   uuid.UUID  `db:"provider_id" json:"provider_id"`
	DayOfWeek    int        `db:"day_of_week" json:"day_of_week"`
	SpecificDate *time.Time `db:"specific_date" json:"specific_date,omitempty"`
	StartTime    string     `db:"start_time" json:"start_time"`
	EndTime      string     `db:"end_time" json:"end_time"`
	Capacity     int        `db:"capacity" json:"capacity"`
	IsRecurring  bool       `db:"is_recurring" json:"is_recurring"`
}

// WindowOn resolves the rule's wall-clock times against a calendar date.
func (a *Availability) WindowOn(date time.Time) (start, end time.Time, err error) {
	st, err := time.Parse("15:04", a.StartTime)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start time %q: %w", a.StartTime, err)
	}
	et, err := time.Parse("15:04", a.EndTime)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end time %q: %w", a.EndTime, err)
	}
	y, m, d := date.Date()
	loc := date.Location()
	start = time.Date(y, m, d, st.Hour(), st.Minute(), 0, 0, loc)
	end = time.Date(y, m, d, et.Hour(), et.Minute(), 0, 0, loc)
	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("end time %q not after start time %q", a.EndTime, a.StartTime)
	}
	return start, end, nil
}

// AppliesOn reports whether the rule yields a slot on the given date.
func (a *Availability) AppliesOn(date time.Time) bool {
	if a.IsRecurring {
		return int(date.Weekday()) == a.DayOfWeek
	}
	return a.SpecificDate != nil && sameDay(*a.SpecificDate, date)
}

type CreateAvailabilityInput struct {
	DayOfWeek    int        `json:"day_of_week" validate:"min=0,max=6"`
	SpecificDate *time.Time `json:"specific_date"`
	StartTime    string     `json:"start_time" validate:"required"`
	EndTime      string     `json:"end_time" validate:"required"`
	Capacity     int        `json:"capacity" validate:"min=1"`
	IsRecurring  bool       `json:"is_recurring"`
}

type UpdateAvailabilityInput struct {
	StartTime *string `json:"start_time"`
	EndTime   *string `json:"end_time"`
	Capacity  *int    `json:"capacity"`
}
