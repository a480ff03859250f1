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

type slotRepository struct {
	BaseRepository
}

func NewSlotRepository(base BaseRepository) repository.SlotRepository {
	return &slotRepository{base}
}

const slotColumns = `
	id, provider_id, date, start_time, end_time, capacity, booked_count,
	is_booked, source_availability_id, version, created_at, updated_at
`

func (r *slotRepository) Create(ctx context.Context, slot *model.Slot) error {
	query := `
		INSERT INTO slots (` + slotColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.ext(ctx).ExecContext(ctx, query,
		slot.ID,
		slot.ProviderID,
		slot.Date,
		slot.StartTime,
		slot.EndTime,
		slot.Capacity,
		slot.BookedCount,
		slot.IsBooked,
		slot.SourceAvailabilityID,
		slot.Version,
		slot.CreatedAt,
		slot.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create slot: %w", err)
	}
	return nil
}

func (r *slotRepository) Get(ctx context.Context, id uuid.UUID) (*model.Slot, error) {
	query := `SELECT ` + slotColumns + ` FROM slots WHERE id = $1`
	var slot model.Slot
	err := sqlx.GetContext(ctx, r.ext(ctx), &slot, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("slot")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get slot: %w", err)
	}
	return &slot, nil
}

// Reserve serializes concurrent reservations at the slot row: the capacity
// guard in the WHERE clause makes the losing caller observe zero rows.
func (r *slotRepository) Reserve(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE slots
		SET booked_count = booked_count + 1,
			is_booked = (booked_count + 1 >= capacity),
			version = version + 1,
			updated_at = now()
		WHERE id = $1 AND booked_count < capacity
	`
	result, err := r.ext(ctx).ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to reserve slot: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return apperrors.Conflict(apperrors.ReasonSlotFull, "slot has no remaining capacity")
	}
	return nil
}

func (r *slotRepository) Release(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE slots
		SET booked_count = booked_count - 1,
			is_booked = false,
			version = version + 1,
			updated_at = now()
		WHERE id = $1 AND booked_count > 0
	`
	result, err := r.ext(ctx).ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to release slot: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return apperrors.Conflict(apperrors.ReasonNotReserved, "slot has no reservations to release")
	}
	return nil
}

// FindOverlapping uses the half-open overlap test: a shared boundary does
// not count as a conflict.
func (r *slotRepository) FindOverlapping(ctx context.Context, providerID uuid.UUID, date, start, end time.Time) ([]*model.Slot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM slots
		WHERE provider_id = $1
		AND date::date = $2::date
		AND start_time < $4
		AND $3 < end_time
		ORDER BY start_time ASC
	`
	var slots []*model.Slot
	if err := sqlx.SelectContext(ctx, r.ext(ctx), &slots, query, providerID, date, start, end); err != nil {
		return nil, fmt.Errorf("failed to find overlapping slots: %w", err)
	}
	return slots, nil
}

func (r *slotRepository) FindCovering(ctx context.Context, providerID uuid.UUID, start, end time.Time) (*model.Slot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM slots
		WHERE provider_id = $1
		AND start_time <= $2
		AND end_time >= $3
		ORDER BY start_time ASC
		LIMIT 1
	`
	var slot model.Slot
	err := sqlx.GetContext(ctx, r.ext(ctx), &slot, query, providerID, start, end)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find covering slot: %w", err)
	}
	return &slot, nil
}

func (r *slotRepository) ListAvailable(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]*model.Slot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM slots
		WHERE provider_id = $1
		AND start_time >= $2
		AND end_time <= $3
		AND booked_count < capacity
		ORDER BY start_time ASC
	`
	var slots []*model.Slot
	if err := sqlx.SelectContext(ctx, r.ext(ctx), &slots, query, providerID, from, to); err != nil {
		return nil, fmt.Errorf("failed to list available slots: %w", err)
	}
	return slots, nil
}

func (r *slotRepository) DeleteUnbookedForAvailability(ctx context.Context, availabilityID uuid.UUID, after time.Time) (int64, error) {
	query := `
		DELETE FROM slots
		WHERE source_availability_id = $1
		AND start_time > $2
		AND booked_count = 0
	`
	result, err := r.ext(ctx).ExecContext(ctx, query, availabilityID, after)
	if err != nil {
		return 0, fmt.Errorf("failed to delete unbooked slots: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}
