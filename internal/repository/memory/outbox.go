package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/serviceyard/marketplace-api/internal/model"
	"github.com/serviceyard/marketplace-api/internal/repository"
)

type outboxRepository struct {
	store *Store
}

func NewOutboxRepository(store *Store) repository.OutboxRepository {
	return &outboxRepository{store: store}
}

func (r *outboxRepository) Create(ctx context.Context, event *model.OutboxEvent) error {
	unlock := r.store.lock(ctx)
	defer unlock()

	r.store.outbox[event.ID] = cloneOutboxEvent(event)
	return nil
}

func (r *outboxRepository) GetPendingEvents(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	unlock := r.store.lock(ctx)
	defer unlock()

	var out []*model.OutboxEvent
	for _, event := range r.store.outbox {
		if event.Status == model.OutboxStatusPending {
			out = append(out, cloneOutboxEvent(event))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *outboxRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, errMsg *string) error {
	unlock := r.store.lock(ctx)
	defer unlock()

	event, ok := r.store.outbox[id]
	if !ok {
		return nil
	}
	event.Status = status
	event.ErrorMessage = errMsg
	event.RetryCount++
	now := time.Now()
	if status == model.OutboxStatusProcessed {
		event.ProcessedAt = &now
	}
	event.UpdatedAt = now
	return nil
}

func (r *outboxRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	unlock := r.store.lock(ctx)
	defer unlock()

	var removed int64
	for id, event := range r.store.outbox {
		if event.Status == model.OutboxStatusProcessed && event.ProcessedAt != nil && event.ProcessedAt.Before(before) {
			delete(r.store.outbox, id)
			removed++
		}
	}
	return removed, nil
}
