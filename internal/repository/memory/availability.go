package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/serviceyard/marketplace-api/internal/model"
	"github.com/serviceyard/marketplace-api/internal/repository"
	apperrors "github.com/serviceyard/marketplace-api/pkg/errors"
)

type availabilityRepository struct {
	store *Store
}

func NewAvailabilityRepository(store *Store) repository.AvailabilityRepository {
	return &availabilityRepository{store: store}
}

func (r *availabilityRepository) Create(ctx context.Context, availability *model.Availability) error {
	unlock := r.store.lock(ctx)
	defer unlock()

	r.store.availabilities[availability.ID] = cloneAvailability(availability)
	return nil
}

func (r *availabilityRepository) Get(ctx context.Context, id uuid.UUID) (*model.Availability, error) {
	unlock := r.store.lock(ctx)
	defer unlock()

	availability, ok := r.store.availabilities[id]
	if !ok {
		return nil, apperrors.NotFound("availability")
	}
	return cloneAvailability(availability), nil
}

func (r *availabilityRepository) Update(ctx context.Context, availability *model.Availability) error {
	unlock := r.store.lock(ctx)
	defer unlock()

	if _, ok := r.store.availabilities[availability.ID]; !ok {
		return apperrors.NotFound("availability")
	}
	r.store.availabilities[availability.ID] = cloneAvailability(availability)
	return nil
}

func (r *availabilityRepository) Delete(ctx context.Context, id uuid.UUID) error {
	unlock := r.store.lock(ctx)
	defer unlock()

	if _, ok := r.store.availabilities[id]; !ok {
		return apperrors.NotFound("availability")
	}
	delete(r.store.availabilities, id)
	return nil
}

func (r *availabilityRepository) ListForProvider(ctx context.Context, providerID uuid.UUID) ([]*model.Availability, error) {
	unlock := r.store.lock(ctx)
	defer unlock()

	var out []*model.Availability
	for _, availability := range r.store.availabilities {
		if availability.ProviderID == providerID {
			out = append(out, cloneAvailability(availability))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
