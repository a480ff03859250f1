package slot

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serviceyard/marketplace-api/internal/model"
	"github.com/serviceyard/marketplace-api/internal/repository"
	"github.com/serviceyard/marketplace-api/internal/repository/memory"
	"github.com/serviceyard/marketplace-api/pkg/clock"
	apperrors "github.com/serviceyard/marketplace-api/pkg/errors"
	"github.com/serviceyard/marketplace-api/pkg/logger"
	"github.com/serviceyard/marketplace-api/pkg/metrics"
)

var testMetrics = metrics.New("test", "slotsvc")

// Tuesday.
var baseTime = time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)

type fixture struct {
	clk   *clock.Fixed
	slots repository.SlotRepository
	svc   *Service
}

func newFixture(t *testing.T, horizonDays int) *fixture {
	t.Helper()
	store := memory.NewStore()
	clk := clock.NewFixed(baseTime)
	log := logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Output: io.Discard})

	slots := memory.NewSlotRepository(store)
	svc := NewService(slots, memory.NewAvailabilityRepository(store), memory.NewTransactor(store),
		testMetrics, clk, log, horizonDays, time.Minute)
	return &fixture{clk: clk, slots: slots, svc: svc}
}

func provider(id uuid.UUID) model.Actor {
	return model.Actor{Kind: model.ActorProvider, ID: id}
}

func TestCreateAvailabilityGeneratesRecurringSlots(t *testing.T) {
	f := newFixture(t, 14)
	ctx := context.Background()
	providerID := uuid.New()

	availability, err := f.svc.CreateAvailability(ctx, provider(providerID), providerID,
		&model.CreateAvailabilityInput{
			DayOfWeek:   int(time.Wednesday),
			StartTime:   "09:00",
			EndTime:     "12:00",
			Capacity:    2,
			IsRecurring: true,
		})
	require.NoError(t, err)

	slots, err := f.slots.ListAvailable(ctx, providerID, baseTime, baseTime.AddDate(0, 0, 15))
	require.NoError(t, err)
	require.Len(t, slots, 2, "two Wednesdays inside a 14-day horizon")
	for _, s := range slots {
		assert.Equal(t, time.Wednesday, s.Date.Weekday())
		assert.Equal(t, 9, s.StartTime.Hour())
		assert.Equal(t, 12, s.EndTime.Hour())
		assert.Equal(t, 2, s.Capacity)
		require.NotNil(t, s.SourceAvailabilityID)
		assert.Equal(t, availability.ID, *s.SourceAvailabilityID)
	}
}

func TestCreateAvailabilityOneOff(t *testing.T) {
	f := newFixture(t, 30)
	ctx := context.Background()
	providerID := uuid.New()
	date := baseTime.AddDate(0, 0, 5)

	_, err := f.svc.CreateAvailability(ctx, provider(providerID), providerID,
		&model.CreateAvailabilityInput{
			SpecificDate: &date,
			StartTime:    "14:00",
			EndTime:      "16:00",
			Capacity:     1,
		})
	require.NoError(t, err)

	slots, err := f.slots.ListAvailable(ctx, providerID, baseTime, baseTime.AddDate(0, 0, 31))
	require.NoError(t, err)
	require.Len(t, slots, 1)

	_, err = f.svc.CreateAvailability(ctx, provider(providerID), providerID,
		&model.CreateAvailabilityInput{StartTime: "09:00", EndTime: "10:00", Capacity: 1})
	assert.True(t, apperrors.IsKind(err, apperrors.KindPolicyViolation),
		"one-off without a date must be refused")
}

func TestCreateAvailabilityOneOffBeyondHorizon(t *testing.T) {
	f := newFixture(t, 7)
	ctx := context.Background()
	providerID := uuid.New()

	// The specific date sits well past the 7-day horizon; the rule must
	// still emit its single slot.
	date := baseTime.AddDate(0, 0, 20)
	_, err := f.svc.CreateAvailability(ctx, provider(providerID), providerID,
		&model.CreateAvailabilityInput{
			SpecificDate: &date,
			StartTime:    "10:00",
			EndTime:      "12:00",
			Capacity:     1,
		})
	require.NoError(t, err)

	slots, err := f.slots.ListAvailable(ctx, providerID, baseTime, baseTime.AddDate(0, 0, 30))
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, date.Year(), slots[0].Date.Year())
	assert.Equal(t, date.YearDay(), slots[0].Date.YearDay())
}

func TestCreateAvailabilityOneOffInPast(t *testing.T) {
	f := newFixture(t, 7)
	ctx := context.Background()
	providerID := uuid.New()

	date := baseTime.AddDate(0, 0, -1)
	_, err := f.svc.CreateAvailability(ctx, provider(providerID), providerID,
		&model.CreateAvailabilityInput{
			SpecificDate: &date,
			StartTime:    "10:00",
			EndTime:      "12:00",
			Capacity:     1,
		})
	assert.True(t, apperrors.IsKind(err, apperrors.KindPolicyViolation),
		"a rule that can never emit a slot must be refused")
}

func TestCreateAvailabilityConflictRollsBack(t *testing.T) {
	f := newFixture(t, 14)
	ctx := context.Background()
	providerID := uuid.New()
	actor := provider(providerID)

	_, err := f.svc.CreateAvailability(ctx, actor, providerID, &model.CreateAvailabilityInput{
		DayOfWeek:   int(time.Friday),
		StartTime:   "09:00",
		EndTime:     "12:00",
		Capacity:    1,
		IsRecurring: true,
	})
	require.NoError(t, err)

	// Overlapping rule on the same weekday must fail whole.
	_, err = f.svc.CreateAvailability(ctx, actor, providerID, &model.CreateAvailabilityInput{
		DayOfWeek:   int(time.Friday),
		StartTime:   "11:00",
		EndTime:     "13:00",
		Capacity:    1,
		IsRecurring: true,
	})
	assert.Equal(t, apperrors.ReasonSlotConflict, apperrors.ReasonOf(err))

	rules, err := f.svc.ListAvailabilities(ctx, providerID)
	require.NoError(t, err)
	assert.Len(t, rules, 1, "conflicting rule must not be stored")

	// Adjacent window (shared boundary) is fine.
	_, err = f.svc.CreateAvailability(ctx, actor, providerID, &model.CreateAvailabilityInput{
		DayOfWeek:   int(time.Friday),
		StartTime:   "12:00",
		EndTime:     "14:00",
		Capacity:    1,
		IsRecurring: true,
	})
	require.NoError(t, err)
}

func TestUpdateAvailabilityRegeneratesUnbookedSlots(t *testing.T) {
	f := newFixture(t, 14)
	ctx := context.Background()
	providerID := uuid.New()
	actor := provider(providerID)

	availability, err := f.svc.CreateAvailability(ctx, actor, providerID, &model.CreateAvailabilityInput{
		DayOfWeek:   int(time.Wednesday),
		StartTime:   "09:00",
		EndTime:     "12:00",
		Capacity:    1,
		IsRecurring: true,
	})
	require.NoError(t, err)

	slots, err := f.slots.ListAvailable(ctx, providerID, baseTime, baseTime.AddDate(0, 0, 15))
	require.NoError(t, err)
	require.Len(t, slots, 2)

	// Book the first Wednesday; it must survive regeneration.
	booked := slots[0]
	require.NoError(t, f.slots.Reserve(ctx, booked.ID))

	start := "10:00"
	end := "13:00"
	_, err = f.svc.UpdateAvailability(ctx, actor, availability.ID, &model.UpdateAvailabilityInput{
		StartTime: &start,
		EndTime:   &end,
	})
	require.NoError(t, err)

	got, err := f.slots.Get(ctx, booked.ID)
	require.NoError(t, err)
	assert.Equal(t, 9, got.StartTime.Hour(), "booked slot keeps its old window")
	assert.Equal(t, 1, got.BookedCount)

	all, err := f.slots.ListAvailable(ctx, providerID, baseTime, baseTime.AddDate(0, 0, 15))
	require.NoError(t, err)
	require.Len(t, all, 1, "unbooked slot regenerated on the new window")
	assert.Equal(t, 10, all[0].StartTime.Hour())
}

func TestReserveAndRelease(t *testing.T) {
	f := newFixture(t, 7)
	ctx := context.Background()
	providerID := uuid.New()

	start := baseTime.AddDate(0, 0, 1)
	s := &model.Slot{
		Base:       model.Base{ID: uuid.New(), CreatedAt: baseTime, UpdatedAt: baseTime},
		ProviderID: providerID,
		Date:       start,
		StartTime:  start,
		EndTime:    start.Add(2 * time.Hour),
		Capacity:   2,
	}
	require.NoError(t, f.slots.Create(ctx, s))

	require.NoError(t, f.svc.Reserve(ctx, s.ID))
	require.NoError(t, f.svc.Reserve(ctx, s.ID))

	err := f.svc.Reserve(ctx, s.ID)
	assert.Equal(t, apperrors.ReasonSlotFull, apperrors.ReasonOf(err))

	ok, err := f.svc.HasCapacity(ctx, s.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, f.svc.Release(ctx, s.ID))
	require.NoError(t, f.svc.Release(ctx, s.ID))
	err = f.svc.Release(ctx, s.ID)
	assert.Equal(t, apperrors.ReasonNotReserved, apperrors.ReasonOf(err))

	got, err := f.slots.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.BookedCount, "failed release must not mutate")
}

func TestConcurrentReserveHonorsCapacity(t *testing.T) {
	f := newFixture(t, 7)
	ctx := context.Background()

	start := baseTime.AddDate(0, 0, 1)
	s := &model.Slot{
		Base:       model.Base{ID: uuid.New(), CreatedAt: baseTime, UpdatedAt: baseTime},
		ProviderID: uuid.New(),
		Date:       start,
		StartTime:  start,
		EndTime:    start.Add(2 * time.Hour),
		Capacity:   1,
	}
	require.NoError(t, f.slots.Create(ctx, s))

	const attempts = 8
	results := make(chan error, attempts)
	var wg sync.WaitGroup
	wg.Add(attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			defer wg.Done()
			results <- f.svc.Reserve(ctx, s.ID)
		}()
	}
	wg.Wait()
	close(results)

	var won, full int
	for err := range results {
		switch {
		case err == nil:
			won++
		case apperrors.ReasonOf(err) == apperrors.ReasonSlotFull:
			full++
		default:
			t.Fatalf("unexpected reserve error: %v", err)
		}
	}
	assert.Equal(t, 1, won, "exactly one reservation wins")
	assert.Equal(t, attempts-1, full)

	got, err := f.slots.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.BookedCount)
}

func TestDeleteAvailabilityKeepsBookedSlots(t *testing.T) {
	f := newFixture(t, 14)
	ctx := context.Background()
	providerID := uuid.New()
	actor := provider(providerID)

	availability, err := f.svc.CreateAvailability(ctx, actor, providerID, &model.CreateAvailabilityInput{
		DayOfWeek:   int(time.Thursday),
		StartTime:   "09:00",
		EndTime:     "11:00",
		Capacity:    1,
		IsRecurring: true,
	})
	require.NoError(t, err)

	slots, err := f.slots.ListAvailable(ctx, providerID, baseTime, baseTime.AddDate(0, 0, 15))
	require.NoError(t, err)
	require.Len(t, slots, 2)
	require.NoError(t, f.slots.Reserve(ctx, slots[0].ID))

	require.NoError(t, f.svc.DeleteAvailability(ctx, actor, availability.ID))

	_, err = f.slots.Get(ctx, slots[0].ID)
	require.NoError(t, err, "booked slot survives rule deletion")
	_, err = f.slots.Get(ctx, slots[1].ID)
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))

	rules, err := f.svc.ListAvailabilities(ctx, providerID)
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestOwnershipChecks(t *testing.T) {
	f := newFixture(t, 7)
	ctx := context.Background()
	providerID := uuid.New()

	input := &model.CreateAvailabilityInput{
		DayOfWeek:   int(time.Monday),
		StartTime:   "09:00",
		EndTime:     "10:00",
		Capacity:    1,
		IsRecurring: true,
	}

	_, err := f.svc.CreateAvailability(ctx, provider(uuid.New()), providerID, input)
	assert.Equal(t, apperrors.ReasonNotOwner, apperrors.ReasonOf(err))

	_, err = f.svc.CreateAvailability(ctx, model.Actor{Kind: model.ActorAdmin, ID: uuid.New()}, providerID, input)
	require.NoError(t, err, "admins manage any schedule")
}

func TestFindCovering(t *testing.T) {
	f := newFixture(t, 7)
	ctx := context.Background()
	providerID := uuid.New()

	start := baseTime.AddDate(0, 0, 2)
	s := &model.Slot{
		Base:       model.Base{ID: uuid.New(), CreatedAt: baseTime, UpdatedAt: baseTime},
		ProviderID: providerID,
		Date:       start,
		StartTime:  start,
		EndTime:    start.Add(4 * time.Hour),
		Capacity:   1,
	}
	require.NoError(t, f.slots.Create(ctx, s))

	got, err := f.svc.FindCovering(ctx, providerID, start.Add(time.Hour), start.Add(2*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, s.ID, got.ID)

	got, err = f.svc.FindCovering(ctx, providerID, start.Add(3*time.Hour), start.Add(5*time.Hour))
	require.NoError(t, err)
	assert.Nil(t, got, "window sticking out is not covered")
}
