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

type quoteRepository struct {
	store *Store
}

func NewQuoteRepository(store *Store) repository.QuoteRepository {
	return &quoteRepository{store: store}
}

func (r *quoteRepository) Create(ctx context.Context, quote *model.Quote) error {
	unlock := r.store.lock(ctx)
	defer unlock()

	r.store.quotes[quote.ID] = cloneQuote(quote)
	return nil
}

func (r *quoteRepository) Get(ctx context.Context, id uuid.UUID) (*model.Quote, error) {
	unlock := r.store.lock(ctx)
	defer unlock()

	quote, ok := r.store.quotes[id]
	if !ok {
		return nil, apperrors.NotFound("quote")
	}
	return cloneQuote(quote), nil
}

func (r *quoteRepository) Update(ctx context.Context, quote *model.Quote) error {
	unlock := r.store.lock(ctx)
	defer unlock()

	existing, ok := r.store.quotes[quote.ID]
	if !ok {
		return apperrors.NotFound("quote")
	}
	if existing.Status != model.QuoteStatusPending {
		return apperrors.Conflict(apperrors.ReasonQuoteNotPending, "quote is not pending")
	}
	r.store.quotes[quote.ID] = cloneQuote(quote)
	return nil
}

func (r *quoteRepository) ListForRequest(ctx context.Context, requestID uuid.UUID) ([]*model.Quote, error) {
	unlock := r.store.lock(ctx)
	defer unlock()

	var out []*model.Quote
	for _, quote := range r.store.quotes {
		if quote.RequestID == requestID {
			out = append(out, cloneQuote(quote))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *quoteRepository) CountPendingForProvider(ctx context.Context, providerID uuid.UUID) (int, error) {
	unlock := r.store.lock(ctx)
	defer unlock()

	count := 0
	for _, quote := range r.store.quotes {
		if quote.ProviderID == providerID && quote.Status == model.QuoteStatusPending {
			count++
		}
	}
	return count, nil
}

func (r *quoteRepository) HasPendingForRequest(ctx context.Context, providerID, requestID uuid.UUID) (bool, error) {
	unlock := r.store.lock(ctx)
	defer unlock()

	for _, quote := range r.store.quotes {
		if quote.ProviderID == providerID && quote.RequestID == requestID && quote.Status == model.QuoteStatusPending {
			return true, nil
		}
	}
	return false, nil
}

func (r *quoteRepository) UpdateStatus(ctx context.Context, id uuid.UUID, to model.QuoteStatus, at time.Time, reason *string) (bool, error) {
	unlock := r.store.lock(ctx)
	defer unlock()

	quote, ok := r.store.quotes[id]
	if !ok || quote.Status != model.QuoteStatusPending {
		return false, nil
	}
	applyQuoteStatus(quote, to, at, reason)
	return true, nil
}

func (r *quoteRepository) RejectPendingForRequest(ctx context.Context, requestID, exceptID uuid.UUID, at time.Time, reason string) ([]*model.Quote, error) {
	unlock := r.store.lock(ctx)
	defer unlock()

	var rejected []*model.Quote
	for _, quote := range r.store.quotes {
		if quote.RequestID != requestID || quote.ID == exceptID || quote.Status != model.QuoteStatusPending {
			continue
		}
		applyQuoteStatus(quote, model.QuoteStatusRejected, at, &reason)
		rejected = append(rejected, cloneQuote(quote))
	}
	sort.Slice(rejected, func(i, j int) bool { return rejected[i].CreatedAt.Before(rejected[j].CreatedAt) })
	return rejected, nil
}

func (r *quoteRepository) ListExpired(ctx context.Context, before time.Time, limit int) ([]*model.Quote, error) {
	unlock := r.store.lock(ctx)
	defer unlock()

	var out []*model.Quote
	for _, quote := range r.store.quotes {
		if quote.Status == model.QuoteStatusPending && quote.ValidUntil.Before(before) {
			out = append(out, cloneQuote(quote))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ValidUntil.Before(out[j].ValidUntil) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func applyQuoteStatus(quote *model.Quote, to model.QuoteStatus, at time.Time, reason *string) {
	quote.Status = to
	quote.UpdatedAt = at
	switch to {
	case model.QuoteStatusAccepted:
		t := at
		quote.AcceptedAt = &t
	case model.QuoteStatusRejected:
		t := at
		quote.RejectedAt = &t
	case model.QuoteStatusWithdrawn:
		t := at
		quote.WithdrawnAt = &t
	}
	if reason != nil {
		quote.RejectReason = reason
	}
}
