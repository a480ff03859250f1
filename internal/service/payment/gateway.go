package payment

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/serviceyard/marketplace-api/pkg/logger"
)

// Gateway is the payment port. The engine only ever talks to this
// interface; real PSP integrations implement it out of tree.
type Gateway interface {
	// Charge captures the booking amount and returns a charge reference.
	Charge(ctx context.Context, bookingID uuid.UUID, amountCents int64) (string, error)
	// Refund reverses a previous charge.
	Refund(ctx context.Context, chargeRef string, amountCents int64) error
	// Payout transfers provider earnings after completion.
	Payout(ctx context.Context, providerID uuid.UUID, amountCents int64) error
}

// LogGateway is the default no-op implementation. It records every call
// and always succeeds, which keeps local and test environments payment-free.
type LogGateway struct {
	logger *logger.Logger
}

func NewLogGateway(logger *logger.Logger) *LogGateway {
	return &LogGateway{logger: logger}
}

func (g *LogGateway) Charge(ctx context.Context, bookingID uuid.UUID, amountCents int64) (string, error) {
	ref := fmt.Sprintf("charge-%s", uuid.New())
	g.logger.Info("payment charge", map[string]interface{}{
		"booking_id":   bookingID,
		"amount_cents": amountCents,
		"charge_ref":   ref,
	})
	return ref, nil
}

func (g *LogGateway) Refund(ctx context.Context, chargeRef string, amountCents int64) error {
	g.logger.Info("payment refund", map[string]interface{}{
		"charge_ref":   chargeRef,
		"amount_cents": amountCents,
	})
	return nil
}

func (g *LogGateway) Payout(ctx context.Context, providerID uuid.UUID, amountCents int64) error {
	g.logger.Info("payment payout", map[string]interface{}{
		"provider_id":  providerID,
		"amount_cents": amountCents,
	})
	return nil
}
