package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/serviceyard/marketplace-api/internal/model"
	"github.com/serviceyard/marketplace-api/internal/repository"
	apperrors "github.com/serviceyard/marketplace-api/pkg/errors"
)

type quoteRepository struct {
	BaseRepository
}

func NewQuoteRepository(base BaseRepository) repository.QuoteRepository {
	return &quoteRepository{base}
}

const quoteColumns = `
	id, request_id, provider_id, amount_cents, proposed_at, duration_minutes,
	message, status, valid_until, accepted_at, rejected_at, withdrawn_at,
	reject_reason, created_at, updated_at
`

func (r *quoteRepository) Create(ctx context.Context, quote *model.Quote) error {
	query := `
		INSERT INTO quotes (` + quoteColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := r.ext(ctx).ExecContext(ctx, query,
		quote.ID,
		quote.RequestID,
		quote.ProviderID,
		quote.AmountCents,
		quote.ProposedAt,
		quote.DurationMinutes,
		quote.Message,
		quote.Status,
		quote.ValidUntil,
		quote.AcceptedAt,
		quote.RejectedAt,
		quote.WithdrawnAt,
		quote.RejectReason,
		quote.CreatedAt,
		quote.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create quote: %w", err)
	}
	return nil
}

func (r *quoteRepository) Get(ctx context.Context, id uuid.UUID) (*model.Quote, error) {
	query := `SELECT ` + quoteColumns + ` FROM quotes WHERE id = $1`
	var quote model.Quote
	err := sqlx.GetContext(ctx, r.ext(ctx), &quote, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("quote")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get quote: %w", err)
	}
	return &quote, nil
}

func (r *quoteRepository) Update(ctx context.Context, quote *model.Quote) error {
	// Only pending quotes are mutable; the status guard keeps a terminal
	// quote from being re-offered.
	query := `
		UPDATE quotes
		SET amount_cents = $1, proposed_at = $2, duration_minutes = $3,
			message = $4, valid_until = $5, updated_at = $6
		WHERE id = $7 AND status = 'pending'
	`
	result, err := r.ext(ctx).ExecContext(ctx, query,
		quote.AmountCents,
		quote.ProposedAt,
		quote.DurationMinutes,
		quote.Message,
		quote.ValidUntil,
		quote.UpdatedAt,
		quote.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update quote: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.Conflict(apperrors.ReasonQuoteNotPending, "quote is not pending")
	}
	return nil
}

func (r *quoteRepository) ListForRequest(ctx context.Context, requestID uuid.UUID) ([]*model.Quote, error) {
	query := `SELECT ` + quoteColumns + ` FROM quotes WHERE request_id = $1 ORDER BY created_at ASC`
	var quotes []*model.Quote
	if err := sqlx.SelectContext(ctx, r.ext(ctx), &quotes, query, requestID); err != nil {
		return nil, fmt.Errorf("failed to list quotes: %w", err)
	}
	return quotes, nil
}

func (r *quoteRepository) CountPendingForProvider(ctx context.Context, providerID uuid.UUID) (int, error) {
	query := `SELECT COUNT(*) FROM quotes WHERE provider_id = $1 AND status = 'pending'`
	var count int
	if err := sqlx.GetContext(ctx, r.ext(ctx), &count, query, providerID); err != nil {
		return 0, fmt.Errorf("failed to count pending quotes: %w", err)
	}
	return count, nil
}

func (r *quoteRepository) HasPendingForRequest(ctx context.Context, providerID, requestID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM quotes
			WHERE provider_id = $1 AND request_id = $2 AND status = 'pending'
		)
	`
	var exists bool
	if err := sqlx.GetContext(ctx, r.ext(ctx), &exists, query, providerID, requestID); err != nil {
		return false, fmt.Errorf("failed to check pending quote: %w", err)
	}
	return exists, nil
}

// statusTimestampColumn maps target statuses to their stamp column.
// expired carries no stamp of its own; accepted/rejected/withdrawn stamps
// stay mutually exclusive.
func statusTimestampColumn(to model.QuoteStatus) string {
	switch to {
	case model.QuoteStatusAccepted:
		return "accepted_at"
	case model.QuoteStatusRejected:
		return "rejected_at"
	case model.QuoteStatusWithdrawn:
		return "withdrawn_at"
	}
	return ""
}

func (r *quoteRepository) UpdateStatus(ctx context.Context, id uuid.UUID, to model.QuoteStatus, at time.Time, reason *string) (bool, error) {
	set := "updated_at = $2"
	if col := statusTimestampColumn(to); col != "" {
		set = fmt.Sprintf("%s = $2, updated_at = $2", col)
	}

	query := fmt.Sprintf(`
		UPDATE quotes
		SET status = $1, %s, reject_reason = COALESCE($3, reject_reason)
		WHERE id = $4 AND status = 'pending'
	`, set)
	result, err := r.ext(ctx).ExecContext(ctx, query, to, at, reason, id)
	if err != nil {
		return false, fmt.Errorf("failed to update quote status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

func (r *quoteRepository) RejectPendingForRequest(ctx context.Context, requestID, exceptID uuid.UUID, at time.Time, reason string) ([]*model.Quote, error) {
	query := `
		UPDATE quotes
		SET status = 'rejected', rejected_at = $1, reject_reason = $2, updated_at = $1
		WHERE request_id = $3 AND id != $4 AND status = 'pending'
		RETURNING ` + quoteColumns
	var rejected []*model.Quote
	if err := sqlx.SelectContext(ctx, r.ext(ctx), &rejected, query, at, reason, requestID, exceptID); err != nil {
		return nil, fmt.Errorf("failed to reject competing quotes: %w", err)
	}
	return rejected, nil
}

func (r *quoteRepository) ListExpired(ctx context.Context, before time.Time, limit int) ([]*model.Quote, error) {
	query := `
		SELECT ` + quoteColumns + `
		FROM quotes
		WHERE status = 'pending' AND valid_until < $1
		ORDER BY valid_until ASC
		LIMIT $2
	`
	var quotes []*model.Quote
	if err := sqlx.SelectContext(ctx, r.ext(ctx), &quotes, query, before, limit); err != nil {
		return nil, fmt.Errorf("failed to list expired quotes: %w", err)
	}
	return quotes, nil
}
