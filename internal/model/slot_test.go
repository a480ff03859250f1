package model

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkSlot(providerID uuid.UUID, day time.Time, startHour, endHour int) *Slot {
	return &Slot{
		ProviderID: providerID,
		Date:       day,
		StartTime:  time.Date(day.Year(), day.Month(), day.Day(), startHour, 0, 0, 0, time.UTC),
		EndTime:    time.Date(day.Year(), day.Month(), day.Day(), endHour, 0, 0, 0, time.UTC),
	}
}

func TestSlotOverlaps(t *testing.T) {
	providerID := uuid.New()
	day := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)

	base := mkSlot(providerID, day, 9, 12)

	assert.True(t, base.Overlaps(mkSlot(providerID, day, 10, 11)))
	assert.True(t, base.Overlaps(mkSlot(providerID, day, 11, 14)))
	assert.True(t, base.Overlaps(mkSlot(providerID, day, 8, 10)))

	// Shared boundary is not overlap.
	assert.False(t, base.Overlaps(mkSlot(providerID, day, 12, 14)))
	assert.False(t, base.Overlaps(mkSlot(providerID, day, 7, 9)))

	// Other provider or other day never overlaps.
	assert.False(t, base.Overlaps(mkSlot(uuid.New(), day, 10, 11)))
	assert.False(t, base.Overlaps(mkSlot(providerID, day.AddDate(0, 0, 1), 10, 11)))
}

func TestSlotCoversAndCapacity(t *testing.T) {
	providerID := uuid.New()
	day := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	s := mkSlot(providerID, day, 9, 12)
	s.Capacity = 2

	at := func(h int) time.Time {
		return time.Date(day.Year(), day.Month(), day.Day(), h, 0, 0, 0, time.UTC)
	}
	assert.True(t, s.Covers(at(9), at(12)))
	assert.True(t, s.Covers(at(10), at(11)))
	assert.False(t, s.Covers(at(8), at(10)))
	assert.False(t, s.Covers(at(11), at(13)))

	assert.True(t, s.HasCapacity())
	s.BookedCount = 2
	assert.False(t, s.HasCapacity())
}

func TestAvailabilityWindowOn(t *testing.T) {
	a := &Availability{StartTime: "09:30", EndTime: "12:00"}
	day := time.Date(2026, 9, 7, 15, 4, 5, 0, time.UTC)

	start, end, err := a.WindowOn(day)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 9, 7, 9, 30, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 9, 7, 12, 0, 0, 0, time.UTC), end)

	_, _, err = a.WindowOn(day)
	require.NoError(t, err)

	bad := &Availability{StartTime: "12:00", EndTime: "09:00"}
	_, _, err = bad.WindowOn(day)
	assert.Error(t, err)

	malformed := &Availability{StartTime: "9am", EndTime: "12:00"}
	_, _, err = malformed.WindowOn(day)
	assert.Error(t, err)
}

func TestAvailabilityAppliesOn(t *testing.T) {
	monday := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	require.Equal(t, time.Monday, monday.Weekday())

	recurring := &Availability{IsRecurring: true, DayOfWeek: int(time.Monday)}
	assert.True(t, recurring.AppliesOn(monday))
	assert.False(t, recurring.AppliesOn(monday.AddDate(0, 0, 1)))
	assert.True(t, recurring.AppliesOn(monday.AddDate(0, 0, 7)))

	date := monday.AddDate(0, 0, 3)
	oneOff := &Availability{IsRecurring: false, SpecificDate: &date}
	assert.True(t, oneOff.AppliesOn(date))
	assert.False(t, oneOff.AppliesOn(monday))

	noDate := &Availability{IsRecurring: false}
	assert.False(t, noDate.AppliesOn(monday))
}
