package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/serviceyard/marketplace-api/internal/model"
	"github.com/serviceyard/marketplace-api/internal/repository"
	apperrors "github.com/serviceyard/marketplace-api/pkg/errors"
)

type bookingRepository struct {
	BaseRepository
}

func NewBookingRepository(base BaseRepository) repository.BookingRepository {
	return &bookingRepository{base}
}

const bookingColumns = `
	id, request_id, quote_id, client_id, provider_id, slot_id, scheduled_at,
	duration_minutes, amount_cents, status, actual_start_time, actual_end_time,
	cancel_reason, late_cancellation, slot_released, charge_ref, version,
	created_at, updated_at
`

func (r *bookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	query := `
		INSERT INTO bookings (` + bookingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`
	_, err := r.ext(ctx).ExecContext(ctx, query,
		booking.ID,
		booking.RequestID,
		booking.QuoteID,
		booking.ClientID,
		booking.ProviderID,
		booking.SlotID,
		booking.ScheduledAt,
		booking.DurationMinutes,
		booking.AmountCents,
		booking.Status,
		booking.ActualStartTime,
		booking.ActualEndTime,
		booking.CancelReason,
		booking.LateCancellation,
		booking.SlotReleased,
		booking.ChargeRef,
		booking.Version,
		booking.CreatedAt,
		booking.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

func (r *bookingRepository) Get(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	var booking model.Booking
	err := sqlx.GetContext(ctx, r.ext(ctx), &booking, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("booking")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return &booking, nil
}

func (r *bookingRepository) GetByQuote(ctx context.Context, quoteID uuid.UUID) (*model.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE quote_id = $1`
	var booking model.Booking
	err := sqlx.GetContext(ctx, r.ext(ctx), &booking, query, quoteID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("booking")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking by quote: %w", err)
	}
	return &booking, nil
}

// Update is guarded by the version column; losing a concurrent write race
// surfaces Conflict/concurrent_update so the caller can re-read and retry.
func (r *bookingRepository) Update(ctx context.Context, booking *model.Booking) error {
	query := `
		UPDATE bookings
		SET status = $1, actual_start_time = $2, actual_end_time = $3,
			cancel_reason = $4, late_cancellation = $5, charge_ref = $6,
			version = version + 1, updated_at = $7
		WHERE id = $8 AND version = $9
	`
	result, err := r.ext(ctx).ExecContext(ctx, query,
		booking.Status,
		booking.ActualStartTime,
		booking.ActualEndTime,
		booking.CancelReason,
		booking.LateCancellation,
		booking.ChargeRef,
		booking.UpdatedAt,
		booking.ID,
		booking.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update booking: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		if _, err := r.Get(ctx, booking.ID); err != nil {
			return err
		}
		return apperrors.Conflict(apperrors.ReasonConcurrentUpdate, "booking was modified concurrently")
	}
	booking.Version++
	return nil
}

func (r *bookingRepository) List(ctx context.Context, filters *model.BookingFilters) ([]*model.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE 1=1`
	args := []interface{}{}
	argCount := 1

	if filters.ClientID != uuid.Nil {
		query += fmt.Sprintf(" AND client_id = $%d", argCount)
		args = append(args, filters.ClientID)
		argCount++
	}
	if filters.ProviderID != uuid.Nil {
		query += fmt.Sprintf(" AND provider_id = $%d", argCount)
		args = append(args, filters.ProviderID)
		argCount++
	}
	if filters.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argCount)
		args = append(args, filters.Status)
		argCount++
	}
	if !filters.From.IsZero() {
		query += fmt.Sprintf(" AND scheduled_at >= $%d", argCount)
		args = append(args, filters.From)
		argCount++
	}
	if !filters.To.IsZero() {
		query += fmt.Sprintf(" AND scheduled_at <= $%d", argCount)
		args = append(args, filters.To)
		argCount++
	}

	query += " ORDER BY scheduled_at ASC"

	var bookings []*model.Booking
	if err := sqlx.SelectContext(ctx, r.ext(ctx), &bookings, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return bookings, nil
}

func (r *bookingRepository) MarkSlotReleased(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE bookings
		SET slot_released = true, updated_at = now()
		WHERE id = $1 AND slot_released = false
	`
	result, err := r.ext(ctx).ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark slot released: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}
