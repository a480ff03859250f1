package worker

import (
	"context"
	"time"

	"github.com/serviceyard/marketplace-api/internal/model"
	"github.com/serviceyard/marketplace-api/internal/repository"
	"github.com/serviceyard/marketplace-api/pkg/logger"
	"github.com/serviceyard/marketplace-api/pkg/messaging"
	"github.com/serviceyard/marketplace-api/pkg/metrics"
)

// NotificationChannel is the broker channel outbox events are published to.
const NotificationChannel = "marketplace:notifications"

// NotifierConfig controls the outbox publishing loop.
type NotifierConfig struct {
	BatchSize     int
	PollInterval  time.Duration
	RetryAttempts int
}

// Notifier drains committed outbox events to the message broker. Events
// that keep failing past the retry budget are parked as FAILED for
// operator attention; everything else stays PENDING and is retried on
// the next poll.
type Notifier struct {
	outbox  repository.OutboxRepository
	broker  messaging.Broker
	metrics *metrics.Metrics
	logger  *logger.Logger
	cfg     NotifierConfig
}

func NewNotifier(
	outbox repository.OutboxRepository,
	broker messaging.Broker,
	m *metrics.Metrics,
	logger *logger.Logger,
	cfg NotifierConfig,
) *Notifier {
	return &Notifier{
		outbox:  outbox,
		broker:  broker,
		metrics: m,
		logger:  logger,
		cfg:     cfg,
	}
}

func (n *Notifier) Run(ctx context.Context) {
	n.logger.Info("outbox notifier started", map[string]interface{}{
		"poll_interval": n.cfg.PollInterval.String(),
		"batch_size":    n.cfg.BatchSize,
	})

	ticker := time.NewTicker(n.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			n.logger.Info("outbox notifier stopped")
			return
		case <-ticker.C:
			n.ProcessBatch(ctx)
		}
	}
}

// ProcessBatch publishes one batch of pending events.
func (n *Notifier) ProcessBatch(ctx context.Context) {
	start := time.Now()
	defer func() {
		n.metrics.OutboxProcessingLatency.Observe(time.Since(start).Seconds())
	}()

	events, err := n.outbox.GetPendingEvents(ctx, n.cfg.BatchSize)
	if err != nil {
		n.logger.Error(err, "failed to fetch pending outbox events")
		return
	}

	for _, event := range events {
		if ctx.Err() != nil {
			return
		}
		n.publish(ctx, event)
	}
}

func (n *Notifier) publish(ctx context.Context, event *model.OutboxEvent) {
	msg := messaging.Message{
		Type:    event.EventType,
		Payload: event,
	}
	err := n.broker.Publish(ctx, NotificationChannel, msg)
	if err == nil {
		if err := n.outbox.UpdateStatus(ctx, event.ID, model.OutboxStatusProcessed, nil); err != nil {
			n.logger.Error(err, "failed to mark outbox event processed", map[string]interface{}{"event_id": event.ID})
			return
		}
		n.metrics.OutboxEventsProcessed.Inc()
		return
	}

	errMsg := err.Error()
	n.metrics.OutboxRetries.WithLabelValues(event.EventType).Inc()
	status := model.OutboxStatusPending
	if event.RetryCount+1 >= n.cfg.RetryAttempts {
		status = model.OutboxStatusFailed
		n.metrics.OutboxEventsFailed.Inc()
	}
	if err := n.outbox.UpdateStatus(ctx, event.ID, status, &errMsg); err != nil {
		n.logger.Error(err, "failed to record outbox publish failure", map[string]interface{}{"event_id": event.ID})
		return
	}
	n.logger.Error(err, "outbox publish failed", map[string]interface{}{
		"event_id":    event.ID,
		"event_type":  event.EventType,
		"retry_count": event.RetryCount + 1,
		"status":      string(status),
	})
}
