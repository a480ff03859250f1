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

type requestRepository struct {
	store *Store
}

func NewRequestRepository(store *Store) repository.RequestRepository {
	return &requestRepository{store: store}
}

func (r *requestRepository) Create(ctx context.Context, req *model.ServiceRequest) error {
	unlock := r.store.lock(ctx)
	defer unlock()

	r.store.requests[req.ID] = cloneRequest(req)
	return nil
}

func (r *requestRepository) Get(ctx context.Context, id uuid.UUID) (*model.ServiceRequest, error) {
	unlock := r.store.lock(ctx)
	defer unlock()

	req, ok := r.store.requests[id]
	if !ok {
		return nil, apperrors.NotFound("service request")
	}
	return cloneRequest(req), nil
}

func (r *requestRepository) Update(ctx context.Context, req *model.ServiceRequest) error {
	unlock := r.store.lock(ctx)
	defer unlock()

	if _, ok := r.store.requests[req.ID]; !ok {
		return apperrors.NotFound("service request")
	}
	r.store.requests[req.ID] = cloneRequest(req)
	return nil
}

func (r *requestRepository) List(ctx context.Context, filters *model.RequestFilters) ([]*model.ServiceRequest, error) {
	unlock := r.store.lock(ctx)
	defer unlock()

	var out []*model.ServiceRequest
	for _, req := range r.store.requests {
		if filters.ClientID != uuid.Nil && req.ClientID != filters.ClientID {
			continue
		}
		if filters.CategoryID != uuid.Nil && req.CategoryID != filters.CategoryID {
			continue
		}
		if filters.Status != "" && req.Status != filters.Status {
			continue
		}
		out = append(out, cloneRequest(req))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *requestRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from []model.RequestStatus, to model.RequestStatus, closedAt *time.Time) (bool, error) {
	unlock := r.store.lock(ctx)
	defer unlock()

	req, ok := r.store.requests[id]
	if !ok {
		return false, nil
	}
	matched := false
	for _, s := range from {
		if req.Status == s {
			matched = true
			break
		}
	}
	if !matched {
		return false, nil
	}
	req.Status = to
	req.ClosedAt = closedAt
	req.UpdatedAt = time.Now()
	return true, nil
}

func (r *requestRepository) ListExpired(ctx context.Context, before time.Time, limit int) ([]*model.ServiceRequest, error) {
	unlock := r.store.lock(ctx)
	defer unlock()

	var out []*model.ServiceRequest
	for _, req := range r.store.requests {
		if req.Status.AcceptsQuotes() && req.ExpiresAt.Before(before) {
			out = append(out, cloneRequest(req))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
