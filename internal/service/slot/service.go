package slot

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	cache "github.com/patrickmn/go-cache"

	"github.com/serviceyard/marketplace-api/internal/model"
	"github.com/serviceyard/marketplace-api/internal/repository"
	"github.com/serviceyard/marketplace-api/pkg/clock"
	apperrors "github.com/serviceyard/marketplace-api/pkg/errors"
	"github.com/serviceyard/marketplace-api/pkg/logger"
	"github.com/serviceyard/marketplace-api/pkg/metrics"
)

// Service owns slot capacity and the availability rules slots are
// generated from. Reserve and Release are the only ways capacity moves.
type Service struct {
	slots          repository.SlotRepository
	availabilities repository.AvailabilityRepository
	tx             repository.Transactor
	cache          *cache.Cache
	metrics        *metrics.Metrics
	clock          clock.Clock
	logger         *logger.Logger
	horizonDays    int
}

func NewService(
	slots repository.SlotRepository,
	availabilities repository.AvailabilityRepository,
	tx repository.Transactor,
	m *metrics.Metrics,
	clk clock.Clock,
	logger *logger.Logger,
	horizonDays int,
	cacheTTL time.Duration,
) *Service {
	return &Service{
		slots:          slots,
		availabilities: availabilities,
		tx:             tx,
		cache:          cache.New(cacheTTL, 2*cacheTTL),
		metrics:        m,
		clock:          clk,
		logger:         logger,
		horizonDays:    horizonDays,
	}
}

// Reserve takes one unit of capacity on the slot. A full slot yields
// Conflict/slot_full; the repository serializes the increment.
func (s *Service) Reserve(ctx context.Context, id uuid.UUID) error {
	if err := s.slots.Reserve(ctx, id); err != nil {
		if apperrors.ReasonOf(err) == apperrors.ReasonSlotFull {
			s.metrics.SlotReservations.WithLabelValues("full").Inc()
		} else {
			s.metrics.SlotReservations.WithLabelValues("error").Inc()
		}
		return err
	}
	s.metrics.SlotReservations.WithLabelValues("reserved").Inc()
	s.cache.Flush()
	return nil
}

// Release returns one unit of capacity. Releasing an unreserved slot is
// Conflict/not_reserved and leaves the slot untouched.
func (s *Service) Release(ctx context.Context, id uuid.UUID) error {
	if err := s.slots.Release(ctx, id); err != nil {
		return err
	}
	s.metrics.SlotReservations.WithLabelValues("released").Inc()
	s.cache.Flush()
	return nil
}

func (s *Service) HasCapacity(ctx context.Context, id uuid.UUID) (bool, error) {
	slot, err := s.slots.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return slot.HasCapacity(), nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Slot, error) {
	return s.slots.Get(ctx, id)
}

func (s *Service) FindOverlapping(ctx context.Context, providerID uuid.UUID, date, start, end time.Time) ([]*model.Slot, error) {
	return s.slots.FindOverlapping(ctx, providerID, date, start, end)
}

// FindCovering returns the provider's slot fully containing [start,end),
// or nil when no slot covers the window.
func (s *Service) FindCovering(ctx context.Context, providerID uuid.UUID, start, end time.Time) (*model.Slot, error) {
	return s.slots.FindCovering(ctx, providerID, start, end)
}

// ListAvailableSlots returns slots with remaining capacity in the window.
// Responses are cached briefly; any capacity change flushes the cache.
func (s *Service) ListAvailableSlots(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]*model.Slot, error) {
	key := fmt.Sprintf("slots:%s:%d:%d", providerID, from.Unix(), to.Unix())
	if cached, ok := s.cache.Get(key); ok {
		return cached.([]*model.Slot), nil
	}

	slots, err := s.slots.ListAvailable(ctx, providerID, from, to)
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(key, slots)
	return slots, nil
}

// CreateAvailability stores the rule and generates its slots over the
// horizon in one transaction. Any generated slot overlapping an existing
// one fails the whole operation.
func (s *Service) CreateAvailability(ctx context.Context, actor model.Actor, providerID uuid.UUID, input *model.CreateAvailabilityInput) (*model.Availability, error) {
	if err := checkProviderOwnership(actor, providerID); err != nil {
		return nil, err
	}
	if !input.IsRecurring && input.SpecificDate == nil {
		return nil, apperrors.PolicyViolation("missing_specific_date", "one-off availability requires a specific date")
	}

	now := s.clock.Now()
	availability := &model.Availability{
		Base: model.Base{
			ID:        uuid.New(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		ProviderID:   providerID,
		DayOfWeek:    input.DayOfWeek,
		SpecificDate: input.SpecificDate,
		StartTime:    input.StartTime,
		EndTime:      input.EndTime,
		Capacity:     input.Capacity,
		IsRecurring:  input.IsRecurring,
	}
	// Reject malformed wall-clock times before touching storage.
	if _, _, err := availability.WindowOn(now); err != nil {
		return nil, apperrors.PolicyViolation("invalid_window", err.Error())
	}
	// A one-off whose window already passed would never emit a slot.
	if availability.SpecificDate != nil {
		start, _, err := availability.WindowOn(*availability.SpecificDate)
		if err != nil {
			return nil, apperrors.PolicyViolation("invalid_window", err.Error())
		}
		if !start.After(now) {
			return nil, apperrors.PolicyViolation("specific_date_past", "one-off availability must start in the future")
		}
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.availabilities.Create(ctx, availability); err != nil {
			return err
		}
		return s.generateSlots(ctx, availability)
	})
	if err != nil {
		return nil, err
	}

	s.cache.Flush()
	return availability, nil
}

// UpdateAvailability edits the rule and regenerates its future slots.
// Slots that already carry bookings are left in place.
func (s *Service) UpdateAvailability(ctx context.Context, actor model.Actor, id uuid.UUID, input *model.UpdateAvailabilityInput) (*model.Availability, error) {
	availability, err := s.availabilities.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkProviderOwnership(actor, availability.ProviderID); err != nil {
		return nil, err
	}

	if input.StartTime != nil {
		availability.StartTime = *input.StartTime
	}
	if input.EndTime != nil {
		availability.EndTime = *input.EndTime
	}
	if input.Capacity != nil {
		availability.Capacity = *input.Capacity
	}
	now := s.clock.Now()
	availability.UpdatedAt = now
	if _, _, err := availability.WindowOn(now); err != nil {
		return nil, apperrors.PolicyViolation("invalid_window", err.Error())
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.availabilities.Update(ctx, availability); err != nil {
			return err
		}
		removed, err := s.slots.DeleteUnbookedForAvailability(ctx, availability.ID, now)
		if err != nil {
			return err
		}
		s.logger.Info("regenerating slots", map[string]interface{}{
			"availability_id": availability.ID,
			"removed":         removed,
		})
		return s.generateSlots(ctx, availability)
	})
	if err != nil {
		return nil, err
	}

	s.cache.Flush()
	return availability, nil
}

// DeleteAvailability removes the rule and its future unbooked slots.
func (s *Service) DeleteAvailability(ctx context.Context, actor model.Actor, id uuid.UUID) error {
	availability, err := s.availabilities.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := checkProviderOwnership(actor, availability.ProviderID); err != nil {
		return err
	}

	now := s.clock.Now()
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.slots.DeleteUnbookedForAvailability(ctx, id, now); err != nil {
			return err
		}
		return s.availabilities.Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	s.cache.Flush()
	return nil
}

func (s *Service) ListAvailabilities(ctx context.Context, providerID uuid.UUID) ([]*model.Availability, error) {
	return s.availabilities.ListForProvider(ctx, providerID)
}

// GenerateSlotsForAvailability materializes slots for an already stored
// rule, e.g. when extending the horizon.
func (s *Service) GenerateSlotsForAvailability(ctx context.Context, actor model.Actor, id uuid.UUID) error {
	availability, err := s.availabilities.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := checkProviderOwnership(actor, availability.ProviderID); err != nil {
		return err
	}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		return s.generateSlots(ctx, availability)
	})
	if err != nil {
		return err
	}
	s.cache.Flush()
	return nil
}

// generateSlots materializes the rule's slots. A one-off rule emits its
// single slot on the specific date no matter how far out that date lies;
// recurring rules walk the horizon day by day. Dates already covered by a
// slot from the same rule are skipped; overlap with any other slot is a
// hard conflict that aborts the enclosing transaction.
func (s *Service) generateSlots(ctx context.Context, availability *model.Availability) error {
	now := s.clock.Now()
	if !availability.IsRecurring {
		if availability.SpecificDate == nil {
			return nil
		}
		return s.generateSlotOn(ctx, availability, *availability.SpecificDate, now)
	}
	for d := 0; d <= s.horizonDays; d++ {
		date := now.AddDate(0, 0, d)
		if !availability.AppliesOn(date) {
			continue
		}
		if err := s.generateSlotOn(ctx, availability, date, now); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) generateSlotOn(ctx context.Context, availability *model.Availability, date, now time.Time) error {
	start, end, err := availability.WindowOn(date)
	if err != nil {
		return err
	}
	if !start.After(now) {
		return nil
	}

	existing, err := s.slots.FindOverlapping(ctx, availability.ProviderID, date, start, end)
	if err != nil {
		return err
	}
	alreadyGenerated := false
	for _, other := range existing {
		if other.SourceAvailabilityID != nil && *other.SourceAvailabilityID == availability.ID {
			alreadyGenerated = true
			continue
		}
		return apperrors.Conflict(apperrors.ReasonSlotConflict,
			fmt.Sprintf("window %s-%s overlaps slot %s", start.Format(time.RFC3339), end.Format(time.RFC3339), other.ID))
	}
	if alreadyGenerated {
		return nil
	}

	sourceID := availability.ID
	slot := &model.Slot{
		Base: model.Base{
			ID:        uuid.New(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		ProviderID:           availability.ProviderID,
		Date:                 date,
		StartTime:            start,
		EndTime:              end,
		Capacity:             availability.Capacity,
		SourceAvailabilityID: &sourceID,
	}
	return s.slots.Create(ctx, slot)
}

func checkProviderOwnership(actor model.Actor, providerID uuid.UUID) error {
	if actor.IsAdmin() {
		return nil
	}
	if actor.IsProvider() && actor.ID == providerID {
		return nil
	}
	return apperrors.PolicyViolation(apperrors.ReasonNotOwner, "actor does not own this provider's schedule")
}
