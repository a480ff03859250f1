package request

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/serviceyard/marketplace-api/internal/model"
	"github.com/serviceyard/marketplace-api/internal/repository"
	"github.com/serviceyard/marketplace-api/internal/service/notification"
	"github.com/serviceyard/marketplace-api/pkg/clock"
	apperrors "github.com/serviceyard/marketplace-api/pkg/errors"
	"github.com/serviceyard/marketplace-api/pkg/logger"
)

// Service drives the service-request lifecycle. Requests are soft-closed
// through status plus closed_at and can be reopened while their preferred
// date is still in the future.
type Service struct {
	requests   repository.RequestRepository
	quotes     repository.QuoteRepository
	notifier   *notification.Service
	tx         repository.Transactor
	clock      clock.Clock
	logger     *logger.Logger
	requestTTL time.Duration
}

func NewService(
	requests repository.RequestRepository,
	quotes repository.QuoteRepository,
	notifier *notification.Service,
	tx repository.Transactor,
	clk clock.Clock,
	logger *logger.Logger,
	requestTTL time.Duration,
) *Service {
	return &Service{
		requests:   requests,
		quotes:     quotes,
		notifier:   notifier,
		tx:         tx,
		clock:      clk,
		logger:     logger,
		requestTTL: requestTTL,
	}
}

func (s *Service) Create(ctx context.Context, actor model.Actor, input *model.CreateRequestInput) (*model.ServiceRequest, error) {
	if !actor.IsClient() && !actor.IsAdmin() {
		return nil, apperrors.PolicyViolation(apperrors.ReasonNotOwner, "only clients may post service requests")
	}
	now := s.clock.Now()
	if !input.PreferredDate.After(now) {
		return nil, apperrors.PolicyViolation("preferred_date_past", "preferred date must be in the future")
	}

	req := &model.ServiceRequest{
		Base: model.Base{
			ID:        uuid.New(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		ClientID:         actor.ID,
		CategoryID:       input.CategoryID,
		Description:      input.Description,
		PreferredDate:    input.PreferredDate,
		AlternativeDates: model.DateList(input.AlternativeDates),
		Frequency:        input.Frequency,
		BudgetMinCents:   input.BudgetMinCents,
		BudgetMaxCents:   input.BudgetMaxCents,
		Status:           model.RequestStatusOpen,
		ExpiresAt:        now.Add(s.requestTTL),
	}
	if err := s.requests.Create(ctx, req); err != nil {
		return nil, err
	}

	s.logger.Info("service request created", map[string]interface{}{
		"request_id": req.ID,
		"client_id":  req.ClientID,
	})
	return req, nil
}

// Update edits a request's negotiable fields. Once quoting has produced a
// booking, or the request is closed, edits are refused.
func (s *Service) Update(ctx context.Context, actor model.Actor, id uuid.UUID, input *model.UpdateRequestInput) (*model.ServiceRequest, error) {
	req, err := s.requests.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkRequestOwnership(actor, req); err != nil {
		return nil, err
	}
	if !req.Status.AcceptsQuotes() {
		return nil, apperrors.PolicyViolation(apperrors.ReasonRequestNotOpen, "request can no longer be edited")
	}

	now := s.clock.Now()
	if input.Description != nil {
		req.Description = *input.Description
	}
	if input.PreferredDate != nil {
		if !input.PreferredDate.After(now) {
			return nil, apperrors.PolicyViolation("preferred_date_past", "preferred date must be in the future")
		}
		req.PreferredDate = *input.PreferredDate
	}
	if input.AlternativeDates != nil {
		req.AlternativeDates = model.DateList(input.AlternativeDates)
	}
	if input.BudgetMinCents != nil {
		req.BudgetMinCents = *input.BudgetMinCents
	}
	if input.BudgetMaxCents != nil {
		req.BudgetMaxCents = *input.BudgetMaxCents
	}
	if req.BudgetMaxCents < req.BudgetMinCents {
		return nil, apperrors.PolicyViolation("invalid_budget", "budget max must not be below budget min")
	}
	req.UpdatedAt = now

	if err := s.requests.Update(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// Cancel closes the request and rejects any quotes still pending on it,
// notifying each affected provider.
func (s *Service) Cancel(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.ServiceRequest, error) {
	req, err := s.requests.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkRequestOwnership(actor, req); err != nil {
		return nil, err
	}
	if !req.Status.CanTransitionTo(model.RequestStatusCancelled) {
		return nil, apperrors.InvalidTransition("request", string(req.Status), string(model.RequestStatusCancelled))
	}

	now := s.clock.Now()
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		ok, err := s.requests.UpdateStatus(ctx, id,
			[]model.RequestStatus{model.RequestStatusOpen, model.RequestStatusQuoting, model.RequestStatusInProgress},
			model.RequestStatusCancelled, &now)
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.InvalidTransition("request", string(req.Status), string(model.RequestStatusCancelled))
		}

		rejected, err := s.quotes.RejectPendingForRequest(ctx, id, uuid.Nil, now, "request_cancelled")
		if err != nil {
			return err
		}
		for _, quote := range rejected {
			recipient := model.Actor{Kind: model.ActorProvider, ID: quote.ProviderID}
			if err := s.notifier.Notify(ctx, model.EventRequestCancelled, recipient, quote); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.requests.Get(ctx, id)
}

// Reopen returns a cancelled or expired request to open with a fresh
// expiry, provided its preferred date has not passed.
func (s *Service) Reopen(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.ServiceRequest, error) {
	req, err := s.requests.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkRequestOwnership(actor, req); err != nil {
		return nil, err
	}
	if !req.Status.CanTransitionTo(model.RequestStatusOpen) {
		return nil, apperrors.InvalidTransition("request", string(req.Status), string(model.RequestStatusOpen))
	}
	now := s.clock.Now()
	if !req.PreferredDate.After(now) {
		return nil, apperrors.PolicyViolation("preferred_date_past", "cannot reopen a request whose preferred date has passed")
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		ok, err := s.requests.UpdateStatus(ctx, id,
			[]model.RequestStatus{model.RequestStatusCancelled, model.RequestStatusExpired},
			model.RequestStatusOpen, nil)
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.InvalidTransition("request", string(req.Status), string(model.RequestStatusOpen))
		}

		fresh, err := s.requests.Get(ctx, id)
		if err != nil {
			return err
		}
		fresh.ExpiresAt = now.Add(s.requestTTL)
		fresh.ClosedAt = nil
		fresh.UpdatedAt = now
		return s.requests.Update(ctx, fresh)
	})
	if err != nil {
		return nil, err
	}

	return s.requests.Get(ctx, id)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.ServiceRequest, error) {
	return s.requests.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, filters *model.RequestFilters) ([]*model.ServiceRequest, error) {
	return s.requests.List(ctx, filters)
}

func checkRequestOwnership(actor model.Actor, req *model.ServiceRequest) error {
	if actor.IsAdmin() {
		return nil
	}
	if actor.IsClient() && actor.ID == req.ClientID {
		return nil
	}
	return apperrors.PolicyViolation(apperrors.ReasonNotOwner, "actor does not own this request")
}
