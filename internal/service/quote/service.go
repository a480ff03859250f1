package quote

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/serviceyard/marketplace-api/internal/model"
	"github.com/serviceyard/marketplace-api/internal/repository"
	"github.com/serviceyard/marketplace-api/internal/service/notification"
	"github.com/serviceyard/marketplace-api/internal/service/slot"
	"github.com/serviceyard/marketplace-api/pkg/clock"
	apperrors "github.com/serviceyard/marketplace-api/pkg/errors"
	"github.com/serviceyard/marketplace-api/pkg/logger"
	"github.com/serviceyard/marketplace-api/pkg/metrics"
)

// Config carries the quote policy knobs.
type Config struct {
	QuoteValidity           time.Duration
	ProviderPendingQuoteCap int
	RequirePayment          bool
}

// Service is the quote ledger. Accepting a quote is the pivotal cascade
// of the whole engine: it closes the auction, creates the booking and
// reserves slot capacity in one transaction.
type Service struct {
	quotes   repository.QuoteRepository
	requests repository.RequestRepository
	bookings repository.BookingRepository
	slots    *slot.Service
	notifier *notification.Service
	tx       repository.Transactor
	metrics  *metrics.Metrics
	clock    clock.Clock
	logger   *logger.Logger
	cfg      Config
}

func NewService(
	quotes repository.QuoteRepository,
	requests repository.RequestRepository,
	bookings repository.BookingRepository,
	slots *slot.Service,
	notifier *notification.Service,
	tx repository.Transactor,
	m *metrics.Metrics,
	clk clock.Clock,
	logger *logger.Logger,
	cfg Config,
) *Service {
	return &Service{
		quotes:   quotes,
		requests: requests,
		bookings: bookings,
		slots:    slots,
		notifier: notifier,
		tx:       tx,
		metrics:  m,
		clock:    clk,
		logger:   logger,
		cfg:      cfg,
	}
}

// Submit records a provider's offer against an open request. The first
// quote moves the request from open to quoting.
func (s *Service) Submit(ctx context.Context, actor model.Actor, input *model.SubmitQuoteInput) (*model.Quote, error) {
	if !actor.IsProvider() {
		return nil, apperrors.PolicyViolation(apperrors.ReasonNotOwner, "only providers may submit quotes")
	}

	req, err := s.requests.Get(ctx, input.RequestID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if !req.Status.AcceptsQuotes() {
		return nil, apperrors.PolicyViolation(apperrors.ReasonRequestNotOpen, "request is not accepting quotes")
	}
	if !req.ExpiresAt.After(now) {
		return nil, apperrors.Expired(apperrors.ReasonRequestExpired, "request has expired")
	}

	hasPending, err := s.quotes.HasPendingForRequest(ctx, actor.ID, input.RequestID)
	if err != nil {
		return nil, err
	}
	if hasPending {
		return nil, apperrors.Conflict(apperrors.ReasonDuplicatePendingQuote, "provider already has a pending quote on this request")
	}
	pendingCount, err := s.quotes.CountPendingForProvider(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	if pendingCount >= s.cfg.ProviderPendingQuoteCap {
		return nil, apperrors.PolicyViolation(apperrors.ReasonProviderQuoteCapExceeded, "provider pending quote cap reached")
	}

	quote := &model.Quote{
		Base: model.Base{
			ID:        uuid.New(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		RequestID:       input.RequestID,
		ProviderID:      actor.ID,
		AmountCents:     input.AmountCents,
		ProposedAt:      input.ProposedAt,
		DurationMinutes: input.DurationMinutes,
		Message:         input.Message,
		Status:          model.QuoteStatusPending,
		ValidUntil:      now.Add(s.cfg.QuoteValidity),
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.quotes.Create(ctx, quote); err != nil {
			return err
		}
		if req.Status == model.RequestStatusOpen {
			// Best effort: a concurrent quote may already have moved it.
			if _, err := s.requests.UpdateStatus(ctx, req.ID,
				[]model.RequestStatus{model.RequestStatusOpen}, model.RequestStatusQuoting, nil); err != nil {
				return err
			}
		}
		client := model.Actor{Kind: model.ActorClient, ID: req.ClientID}
		return s.notifier.Notify(ctx, model.EventQuoteSubmitted, client, quote)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("quote submitted", map[string]interface{}{
		"quote_id":    quote.ID,
		"request_id":  quote.RequestID,
		"provider_id": quote.ProviderID,
	})
	return quote, nil
}

// Update revises a pending quote and refreshes its validity window.
func (s *Service) Update(ctx context.Context, actor model.Actor, id uuid.UUID, input *model.UpdateQuoteInput) (*model.Quote, error) {
	quote, err := s.quotes.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !(actor.IsProvider() && actor.ID == quote.ProviderID) {
		return nil, apperrors.PolicyViolation(apperrors.ReasonNotOwner, "actor does not own this quote")
	}
	if quote.Status != model.QuoteStatusPending {
		return nil, apperrors.Conflict(apperrors.ReasonQuoteNotPending, "only pending quotes can be updated")
	}
	now := s.clock.Now()
	if !quote.ValidUntil.After(now) {
		return nil, apperrors.Expired(apperrors.ReasonQuoteExpired, "quote validity has lapsed")
	}

	if input.AmountCents != nil {
		quote.AmountCents = *input.AmountCents
	}
	if input.ProposedAt != nil {
		quote.ProposedAt = *input.ProposedAt
	}
	if input.DurationMinutes != nil {
		quote.DurationMinutes = *input.DurationMinutes
	}
	if input.Message != nil {
		quote.Message = *input.Message
	}
	quote.ValidUntil = now.Add(s.cfg.QuoteValidity)
	quote.UpdatedAt = now

	if err := s.quotes.Update(ctx, quote); err != nil {
		return nil, err
	}
	return quote, nil
}

// Withdraw retracts a pending quote.
func (s *Service) Withdraw(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Quote, error) {
	quote, err := s.quotes.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !(actor.IsProvider() && actor.ID == quote.ProviderID) {
		return nil, apperrors.PolicyViolation(apperrors.ReasonNotOwner, "actor does not own this quote")
	}

	now := s.clock.Now()
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		ok, err := s.quotes.UpdateStatus(ctx, id, model.QuoteStatusWithdrawn, now, nil)
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.Conflict(apperrors.ReasonQuoteNotPending, "only pending quotes can be withdrawn")
		}
		req, err := s.requests.Get(ctx, quote.RequestID)
		if err != nil {
			return err
		}
		client := model.Actor{Kind: model.ActorClient, ID: req.ClientID}
		return s.notifier.Notify(ctx, model.EventQuoteWithdrawn, client, quote)
	})
	if err != nil {
		return nil, err
	}
	return s.quotes.Get(ctx, id)
}

// Reject declines a pending quote on the client's behalf.
func (s *Service) Reject(ctx context.Context, actor model.Actor, id uuid.UUID, reason string) (*model.Quote, error) {
	quote, err := s.quotes.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	req, err := s.requests.Get(ctx, quote.RequestID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !(actor.IsClient() && actor.ID == req.ClientID) {
		return nil, apperrors.PolicyViolation(apperrors.ReasonNotOwner, "actor does not own the quoted request")
	}

	now := s.clock.Now()
	var reasonPtr *string
	if reason != "" {
		reasonPtr = &reason
	}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		ok, err := s.quotes.UpdateStatus(ctx, id, model.QuoteStatusRejected, now, reasonPtr)
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.Conflict(apperrors.ReasonQuoteNotPending, "only pending quotes can be rejected")
		}
		provider := model.Actor{Kind: model.ActorProvider, ID: quote.ProviderID}
		return s.notifier.Notify(ctx, model.EventQuoteRejected, provider, quote)
	})
	if err != nil {
		return nil, err
	}
	return s.quotes.Get(ctx, id)
}

// Accept closes the auction for a request. In one transaction it accepts
// the chosen quote, rejects every other pending quote, moves the request
// to in_progress, creates the booking and reserves the covering slot.
// Of two concurrent accepts exactly one wins; the loser sees a conflict.
func (s *Service) Accept(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Booking, error) {
	quote, err := s.quotes.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	req, err := s.requests.Get(ctx, quote.RequestID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !(actor.IsClient() && actor.ID == req.ClientID) {
		return nil, apperrors.PolicyViolation(apperrors.ReasonNotOwner, "actor does not own the quoted request")
	}

	now := s.clock.Now()
	if quote.Status != model.QuoteStatusPending {
		return nil, apperrors.Conflict(apperrors.ReasonQuoteNotPending, "quote is no longer pending")
	}
	if !quote.ValidUntil.After(now) {
		return nil, apperrors.Expired(apperrors.ReasonQuoteExpired, "quote validity has lapsed")
	}

	var booking *model.Booking
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		ok, err := s.quotes.UpdateStatus(ctx, id, model.QuoteStatusAccepted, now, nil)
		if err != nil {
			return err
		}
		if !ok {
			s.metrics.QuoteAcceptConflicts.Inc()
			return apperrors.Conflict(apperrors.ReasonQuoteNotPending, "quote was resolved concurrently")
		}

		reason := model.RejectReasonOtherAccepted
		rejected, err := s.quotes.RejectPendingForRequest(ctx, quote.RequestID, id, now, reason)
		if err != nil {
			return err
		}
		for _, loser := range rejected {
			provider := model.Actor{Kind: model.ActorProvider, ID: loser.ProviderID}
			if err := s.notifier.Notify(ctx, model.EventQuoteRejected, provider, loser); err != nil {
				return err
			}
		}

		ok, err = s.requests.UpdateStatus(ctx, quote.RequestID,
			[]model.RequestStatus{model.RequestStatusOpen, model.RequestStatusQuoting},
			model.RequestStatusInProgress, nil)
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.PolicyViolation(apperrors.ReasonRequestNotOpen, "request is no longer open")
		}

		start := quote.ProposedAt
		end := start.Add(time.Duration(quote.DurationMinutes) * time.Minute)
		covering, err := s.slots.FindCovering(ctx, quote.ProviderID, start, end)
		if err != nil {
			return err
		}
		if covering == nil {
			return apperrors.Conflict(apperrors.ReasonSlotUnavailable, "no slot covers the proposed window")
		}
		if err := s.slots.Reserve(ctx, covering.ID); err != nil {
			return err
		}

		status := model.BookingStatusConfirmed
		if s.cfg.RequirePayment {
			status = model.BookingStatusAwaitingPayment
		}
		booking = &model.Booking{
			Base: model.Base{
				ID:        uuid.New(),
				CreatedAt: now,
				UpdatedAt: now,
			},
			RequestID:       quote.RequestID,
			QuoteID:         quote.ID,
			ClientID:        req.ClientID,
			ProviderID:      quote.ProviderID,
			SlotID:          covering.ID,
			ScheduledAt:     quote.ProposedAt,
			DurationMinutes: quote.DurationMinutes,
			AmountCents:     quote.AmountCents,
			Status:          status,
		}
		if err := s.bookings.Create(ctx, booking); err != nil {
			return err
		}

		provider := model.Actor{Kind: model.ActorProvider, ID: quote.ProviderID}
		if err := s.notifier.Notify(ctx, model.EventQuoteAccepted, provider, quote); err != nil {
			return err
		}
		client := model.Actor{Kind: model.ActorClient, ID: req.ClientID}
		return s.notifier.Notify(ctx, model.EventBookingConfirmed, client, booking)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.BookingTransitions.WithLabelValues(string(booking.Status)).Inc()
	s.logger.Info("quote accepted", map[string]interface{}{
		"quote_id":   quote.ID,
		"request_id": quote.RequestID,
		"booking_id": booking.ID,
	})
	return booking, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Quote, error) {
	return s.quotes.Get(ctx, id)
}

func (s *Service) ListForRequest(ctx context.Context, requestID uuid.UUID) ([]*model.Quote, error) {
	return s.quotes.ListForRequest(ctx, requestID)
}
