package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/serviceyard/marketplace-api/internal/model"
	"github.com/serviceyard/marketplace-api/internal/repository"
	"github.com/serviceyard/marketplace-api/pkg/clock"
	"github.com/serviceyard/marketplace-api/pkg/logger"
)

// Service writes notification events to the transactional outbox. When
// called inside a Transactor unit the event commits or rolls back with the
// state change that caused it; a background worker publishes committed
// events to the broker.
type Service struct {
	outbox repository.OutboxRepository
	clock  clock.Clock
	logger *logger.Logger
}

func NewService(outbox repository.OutboxRepository, clk clock.Clock, logger *logger.Logger) *Service {
	return &Service{outbox: outbox, clock: clk, logger: logger}
}

func (s *Service) Notify(ctx context.Context, eventType string, recipient model.Actor, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification payload: %w", err)
	}

	now := s.clock.Now()
	event := &model.OutboxEvent{
		ID:            uuid.New(),
		EventType:     eventType,
		RecipientKind: recipient.Kind,
		RecipientID:   recipient.ID,
		Payload:       body,
		Status:        model.OutboxStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.outbox.Create(ctx, event); err != nil {
		return fmt.Errorf("failed to enqueue notification: %w", err)
	}

	s.logger.Debug("notification enqueued", map[string]interface{}{
		"event_type":   eventType,
		"recipient_id": recipient.ID,
	})
	return nil
}
