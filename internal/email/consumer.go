package email

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/serviceyard/marketplace-api/internal/model"
	"github.com/serviceyard/marketplace-api/internal/worker"
	"github.com/serviceyard/marketplace-api/pkg/logger"
	"github.com/serviceyard/marketplace-api/pkg/messaging"
)

// AddressBook resolves an actor to an email address. The engine keeps no
// user directory of its own; deployments plug in whatever identity
// service they have. Returning false skips the mail.
type AddressBook func(kind model.ActorKind, id uuid.UUID) (string, bool)

var subjects = map[string]string{
	model.EventQuoteSubmitted:   "New quote on your request",
	model.EventQuoteAccepted:    "Your quote was accepted",
	model.EventQuoteRejected:    "Your quote was declined",
	model.EventQuoteExpired:     "Your quote has expired",
	model.EventQuoteWithdrawn:   "A quote was withdrawn",
	model.EventRequestExpired:   "Your request has expired",
	model.EventRequestCancelled: "A request you quoted was cancelled",
	model.EventBookingConfirmed: "Booking confirmed",
	model.EventBookingStarted:   "Booking started",
	model.EventBookingCompleted: "Booking completed",
	model.EventBookingCancelled: "Booking cancelled",
	model.EventBookingNoShow:    "Booking marked as no-show",
	model.EventBookingDisputed:  "Booking disputed",
	model.EventBookingRefunded:  "Booking refunded",
}

// Consumer subscribes to the notification channel and turns published
// outbox events into emails.
type Consumer struct {
	broker    messaging.Broker
	mailer    *Service
	addresses AddressBook
	logger    *logger.Logger
}

func NewConsumer(broker messaging.Broker, mailer *Service, addresses AddressBook, logger *logger.Logger) *Consumer {
	return &Consumer{broker: broker, mailer: mailer, addresses: addresses, logger: logger}
}

func (c *Consumer) Run(ctx context.Context) error {
	msgs, err := c.broker.Subscribe(ctx, worker.NotificationChannel)
	if err != nil {
		return err
	}
	c.logger.Info("email consumer started")

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("email consumer stopped")
			return nil
		case raw, ok := <-msgs:
			if !ok {
				return nil
			}
			c.handle(raw)
		}
	}
}

func (c *Consumer) handle(raw []byte) {
	var msg struct {
		Type    string            `json:"type"`
		Payload model.OutboxEvent `json:"payload"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.logger.Error(err, "failed to decode notification message")
		return
	}

	subject, ok := subjects[msg.Type]
	if !ok {
		c.logger.Warn("unknown notification event type", map[string]interface{}{"event_type": msg.Type})
		return
	}
	to, ok := c.addresses(msg.Payload.RecipientKind, msg.Payload.RecipientID)
	if !ok {
		c.logger.Debug("no address for recipient, skipping email", map[string]interface{}{
			"recipient_id": msg.Payload.RecipientID,
		})
		return
	}

	body := string(msg.Payload.Payload)
	if err := c.mailer.Send(to, subject, body); err != nil {
		c.logger.Error(err, "failed to send notification email", map[string]interface{}{
			"event_type": msg.Type,
			"to":         to,
		})
	}
}
