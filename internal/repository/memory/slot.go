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

type slotRepository struct {
	store *Store
}

func NewSlotRepository(store *Store) repository.SlotRepository {
	return &slotRepository{store: store}
}

func (r *slotRepository) Create(ctx context.Context, slot *model.Slot) error {
	unlock := r.store.lock(ctx)
	defer unlock()

	r.store.slots[slot.ID] = cloneSlot(slot)
	return nil
}

func (r *slotRepository) Get(ctx context.Context, id uuid.UUID) (*model.Slot, error) {
	unlock := r.store.lock(ctx)
	defer unlock()

	slot, ok := r.store.slots[id]
	if !ok {
		return nil, apperrors.NotFound("slot")
	}
	return cloneSlot(slot), nil
}

func (r *slotRepository) Reserve(ctx context.Context, id uuid.UUID) error {
	unlock := r.store.lock(ctx)
	defer unlock()

	slot, ok := r.store.slots[id]
	if !ok {
		return apperrors.NotFound("slot")
	}
	if slot.BookedCount >= slot.Capacity {
		return apperrors.Conflict(apperrors.ReasonSlotFull, "slot has no remaining capacity")
	}
	slot.BookedCount++
	slot.IsBooked = slot.BookedCount >= slot.Capacity
	slot.Version++
	slot.UpdatedAt = time.Now()
	return nil
}

func (r *slotRepository) Release(ctx context.Context, id uuid.UUID) error {
	unlock := r.store.lock(ctx)
	defer unlock()

	slot, ok := r.store.slots[id]
	if !ok {
		return apperrors.NotFound("slot")
	}
	if slot.BookedCount == 0 {
		return apperrors.Conflict(apperrors.ReasonNotReserved, "slot has no reservations to release")
	}
	slot.BookedCount--
	slot.IsBooked = false
	slot.Version++
	slot.UpdatedAt = time.Now()
	return nil
}

func (r *slotRepository) FindOverlapping(ctx context.Context, providerID uuid.UUID, date, start, end time.Time) ([]*model.Slot, error) {
	unlock := r.store.lock(ctx)
	defer unlock()

	probe := &model.Slot{ProviderID: providerID, Date: date, StartTime: start, EndTime: end}
	var out []*model.Slot
	for _, slot := range r.store.slots {
		if slot.Overlaps(probe) {
			out = append(out, cloneSlot(slot))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (r *slotRepository) FindCovering(ctx context.Context, providerID uuid.UUID, start, end time.Time) (*model.Slot, error) {
	unlock := r.store.lock(ctx)
	defer unlock()

	var best *model.Slot
	for _, slot := range r.store.slots {
		if slot.ProviderID != providerID || !slot.Covers(start, end) {
			continue
		}
		if best == nil || slot.StartTime.Before(best.StartTime) {
			best = slot
		}
	}
	if best == nil {
		return nil, nil
	}
	return cloneSlot(best), nil
}

func (r *slotRepository) ListAvailable(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]*model.Slot, error) {
	unlock := r.store.lock(ctx)
	defer unlock()

	var out []*model.Slot
	for _, slot := range r.store.slots {
		if slot.ProviderID != providerID || !slot.HasCapacity() {
			continue
		}
		if slot.StartTime.Before(from) || slot.EndTime.After(to) {
			continue
		}
		out = append(out, cloneSlot(slot))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (r *slotRepository) DeleteUnbookedForAvailability(ctx context.Context, availabilityID uuid.UUID, after time.Time) (int64, error) {
	unlock := r.store.lock(ctx)
	defer unlock()

	var removed int64
	for id, slot := range r.store.slots {
		if slot.SourceAvailabilityID == nil || *slot.SourceAvailabilityID != availabilityID {
			continue
		}
		if slot.BookedCount > 0 || !slot.StartTime.After(after) {
			continue
		}
		delete(r.store.slots, id)
		removed++
	}
	return removed, nil
}
