package booking

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/serviceyard/marketplace-api/internal/model"
	"github.com/serviceyard/marketplace-api/internal/repository"
	"github.com/serviceyard/marketplace-api/internal/service/notification"
	"github.com/serviceyard/marketplace-api/internal/service/payment"
	"github.com/serviceyard/marketplace-api/internal/service/slot"
	"github.com/serviceyard/marketplace-api/pkg/clock"
	apperrors "github.com/serviceyard/marketplace-api/pkg/errors"
	"github.com/serviceyard/marketplace-api/pkg/logger"
	"github.com/serviceyard/marketplace-api/pkg/metrics"
)

// Config carries the booking policy knobs.
type Config struct {
	StartWindowBefore  time.Duration
	StartWindowAfter   time.Duration
	CancellationNotice time.Duration
	RetryBudget        int
}

// Service drives the booking state machine. The transition table in
// model decides legality, the actor table decides capability, and this
// service owns the time-window policies layered on top.
type Service struct {
	bookings repository.BookingRepository
	slots    *slot.Service
	gateway  payment.Gateway
	notifier *notification.Service
	tx       repository.Transactor
	metrics  *metrics.Metrics
	clock    clock.Clock
	logger   *logger.Logger
	cfg      Config
}

func NewService(
	bookings repository.BookingRepository,
	slots *slot.Service,
	gateway payment.Gateway,
	notifier *notification.Service,
	tx repository.Transactor,
	m *metrics.Metrics,
	clk clock.Clock,
	logger *logger.Logger,
	cfg Config,
) *Service {
	return &Service{
		bookings: bookings,
		slots:    slots,
		gateway:  gateway,
		notifier: notifier,
		tx:       tx,
		metrics:  m,
		clock:    clk,
		logger:   logger,
		cfg:      cfg,
	}
}

var transitionEvents = map[model.BookingStatus]string{
	model.BookingStatusConfirmed:  model.EventBookingConfirmed,
	model.BookingStatusInProgress: model.EventBookingStarted,
	model.BookingStatusCompleted:  model.EventBookingCompleted,
	model.BookingStatusCancelled:  model.EventBookingCancelled,
	model.BookingStatusNoShow:     model.EventBookingNoShow,
	model.BookingStatusDisputed:   model.EventBookingDisputed,
	model.BookingStatusRefunded:   model.EventBookingRefunded,
}

// Confirm moves a pending or awaiting_payment booking to confirmed,
// capturing payment when one is due. The charge ref is held across
// optimistic retries: a version conflict rolls back the booking write,
// not the gateway call, so the customer must never be charged twice.
func (s *Service) Confirm(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Booking, error) {
	var chargeRef *string
	return s.transition(ctx, actor, id, model.BookingStatusConfirmed, func(ctx context.Context, b *model.Booking, from model.BookingStatus) error {
		if from != model.BookingStatusAwaitingPayment || b.ChargeRef != nil {
			return nil
		}
		if chargeRef == nil {
			ref, err := s.gateway.Charge(ctx, b.ID, b.AmountCents)
			if err != nil {
				return apperrors.Internal(err)
			}
			chargeRef = &ref
		}
		b.ChargeRef = chargeRef
		return nil
	})
}

// Start moves a confirmed booking to in_progress. Starting is only legal
// inside the configured window around the scheduled time.
func (s *Service) Start(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Booking, error) {
	return s.transition(ctx, actor, id, model.BookingStatusInProgress, func(ctx context.Context, b *model.Booking, from model.BookingStatus) error {
		now := s.clock.Now()
		earliest := b.ScheduledAt.Add(-s.cfg.StartWindowBefore)
		latest := b.ScheduledAt.Add(s.cfg.StartWindowAfter)
		if now.Before(earliest) || now.After(latest) {
			return apperrors.PolicyViolation(apperrors.ReasonOutsideStartWindow, "booking can only start near its scheduled time")
		}
		b.ActualStartTime = &now
		return nil
	})
}

// Complete finishes an in_progress booking and pays out the provider.
func (s *Service) Complete(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Booking, error) {
	b, err := s.transition(ctx, actor, id, model.BookingStatusCompleted, func(ctx context.Context, b *model.Booking, from model.BookingStatus) error {
		if b.ActualStartTime == nil {
			return apperrors.PolicyViolation(apperrors.ReasonNotStarted, "booking was never started")
		}
		now := s.clock.Now()
		b.ActualEndTime = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := s.gateway.Payout(ctx, b.ProviderID, b.AmountCents); err != nil {
		// The completion stands; payout retries are the gateway's problem.
		s.logger.Error(err, "provider payout failed", map[string]interface{}{"booking_id": b.ID})
	}
	return b, nil
}

// Cancel ends the booking. Inside the cancellation notice window it is
// refused unless the caller explicitly allows a late cancellation, which
// proceeds but tags the booking.
func (s *Service) Cancel(ctx context.Context, actor model.Actor, id uuid.UUID, input *model.CancelBookingInput) (*model.Booking, error) {
	return s.transition(ctx, actor, id, model.BookingStatusCancelled, func(ctx context.Context, b *model.Booking, from model.BookingStatus) error {
		now := s.clock.Now()
		late := now.After(b.ScheduledAt.Add(-s.cfg.CancellationNotice))
		if late && !input.AllowLate {
			return apperrors.PolicyViolation(apperrors.ReasonCancellationWindowClosed, "cancellation notice window has closed")
		}
		b.LateCancellation = late
		if input.Reason != "" {
			reason := input.Reason
			b.CancelReason = &reason
		}
		return nil
	})
}

// ReportNoShow marks a confirmed booking where the client never appeared.
func (s *Service) ReportNoShow(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Booking, error) {
	return s.transition(ctx, actor, id, model.BookingStatusNoShow, nil)
}

// Dispute freezes an in_progress or completed booking for resolution.
func (s *Service) Dispute(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Booking, error) {
	return s.transition(ctx, actor, id, model.BookingStatusDisputed, nil)
}

// Resolve settles a dispute. Outcome must be completed, refunded or
// cancelled; only admins resolve.
func (s *Service) Resolve(ctx context.Context, actor model.Actor, id uuid.UUID, outcome model.BookingStatus) (*model.Booking, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.PolicyViolation(apperrors.ReasonNotOwner, "only admins resolve disputes")
	}
	switch outcome {
	case model.BookingStatusCompleted, model.BookingStatusCancelled:
		return s.transition(ctx, actor, id, outcome, nil)
	case model.BookingStatusRefunded:
		return s.Refund(ctx, actor, id)
	default:
		return nil, apperrors.InvalidTransition("booking", string(model.BookingStatusDisputed), string(outcome))
	}
}

// Refund reverses the charge and marks the booking refunded. A gateway
// failure surfaces as-is and leaves the booking untouched. Like Confirm,
// the gateway is called at most once across retry attempts.
func (s *Service) Refund(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Booking, error) {
	refunded := false
	return s.transition(ctx, actor, id, model.BookingStatusRefunded, func(ctx context.Context, b *model.Booking, from model.BookingStatus) error {
		if b.ChargeRef == nil || refunded {
			return nil
		}
		if err := s.gateway.Refund(ctx, *b.ChargeRef, b.AmountCents); err != nil {
			return apperrors.Internal(err)
		}
		refunded = true
		return nil
	})
}

func (s *Service) Get(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Booking, error) {
	b, err := s.bookings.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && actor.ID != b.ClientID && actor.ID != b.ProviderID {
		return nil, apperrors.PolicyViolation(apperrors.ReasonNotOwner, "actor is not a party to this booking")
	}
	return b, nil
}

// List scopes results to the caller unless they are an admin.
func (s *Service) List(ctx context.Context, actor model.Actor, filters *model.BookingFilters) ([]*model.Booking, error) {
	if actor.IsClient() {
		filters.ClientID = actor.ID
	}
	if actor.IsProvider() {
		filters.ProviderID = actor.ID
	}
	return s.bookings.List(ctx, filters)
}

// transition is the single path every status change takes: capability
// check, table check, policy hook, version-guarded write, exactly-once
// slot release and the outbox notification, retried within the budget
// when a concurrent writer bumps the version.
func (s *Service) transition(
	ctx context.Context,
	actor model.Actor,
	id uuid.UUID,
	to model.BookingStatus,
	mutate func(ctx context.Context, b *model.Booking, from model.BookingStatus) error,
) (*model.Booking, error) {
	var result *model.Booking
	for attempt := 0; attempt < s.cfg.RetryBudget; attempt++ {
		b, err := s.bookings.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if !model.CanTriggerBookingTransition(actor, b, to) {
			return nil, apperrors.PolicyViolation(apperrors.ReasonNotOwner, "actor may not trigger this transition")
		}
		if !b.Status.CanTransitionTo(to) {
			return nil, apperrors.InvalidTransition("booking", string(b.Status), string(to))
		}

		from := b.Status
		b.Status = to
		if mutate != nil {
			if err := mutate(ctx, b, from); err != nil {
				return nil, err
			}
		}
		b.UpdatedAt = s.clock.Now()

		err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
			if err := s.bookings.Update(ctx, b); err != nil {
				return err
			}
			if to.ReleasesSlot() {
				released, err := s.bookings.MarkSlotReleased(ctx, id)
				if err != nil {
					return err
				}
				if released {
					if err := s.slots.Release(ctx, b.SlotID); err != nil {
						return err
					}
				}
			}
			if event, ok := transitionEvents[to]; ok {
				client := model.Actor{Kind: model.ActorClient, ID: b.ClientID}
				if err := s.notifier.Notify(ctx, event, client, b); err != nil {
					return err
				}
				provider := model.Actor{Kind: model.ActorProvider, ID: b.ProviderID}
				if err := s.notifier.Notify(ctx, event, provider, b); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			if apperrors.ReasonOf(err) == apperrors.ReasonConcurrentUpdate {
				continue
			}
			return nil, err
		}
		result = b
		break
	}
	if result == nil {
		return nil, apperrors.Conflict(apperrors.ReasonConcurrentUpdate, "booking transition retries exhausted")
	}

	s.metrics.BookingTransitions.WithLabelValues(string(to)).Inc()
	s.logger.Info("booking transition", map[string]interface{}{
		"booking_id": result.ID,
		"to":         string(to),
	})
	return result, nil
}
