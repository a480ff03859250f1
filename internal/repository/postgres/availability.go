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

type availabilityRepository struct {
	BaseRepository
}

func NewAvailabilityRepository(base BaseRepository) repository.AvailabilityRepository {
	return &availabilityRepository{base}
}

const availabilityColumns = `
	id, provider_id, day_of_week, specific_date, start_time, end_time,
	capacity, is_recurring, created_at, updated_at
`

func (r *availabilityRepository) Create(ctx context.Context, availability *model.Availability) error {
	query := `
		INSERT INTO availabilities (` + availabilityColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.ext(ctx).ExecContext(ctx, query,
		availability.ID,
		availability.ProviderID,
		availability.DayOfWeek,
		availability.SpecificDate,
		availability.StartTime,
		availability.EndTime,
		availability.Capacity,
		availability.IsRecurring,
		availability.CreatedAt,
		availability.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create availability: %w", err)
	}
	return nil
}

func (r *availabilityRepository) Get(ctx context.Context, id uuid.UUID) (*model.Availability, error) {
	query := `SELECT ` + availabilityColumns + ` FROM availabilities WHERE id = $1`
	var availability model.Availability
	err := sqlx.GetContext(ctx, r.ext(ctx), &availability, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("availability")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get availability: %w", err)
	}
	return &availability, nil
}

func (r *availabilityRepository) Update(ctx context.Context, availability *model.Availability) error {
	query := `
		UPDATE availabilities
		SET start_time = $1, end_time = $2, capacity = $3, updated_at = $4
		WHERE id = $5
	`
	result, err := r.ext(ctx).ExecContext(ctx, query,
		availability.StartTime,
		availability.EndTime,
		availability.Capacity,
		availability.UpdatedAt,
		availability.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update availability: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NotFound("availability")
	}
	return nil
}

func (r *availabilityRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.ext(ctx).ExecContext(ctx, `DELETE FROM availabilities WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete availability: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NotFound("availability")
	}
	return nil
}

func (r *availabilityRepository) ListForProvider(ctx context.Context, providerID uuid.UUID) ([]*model.Availability, error) {
	query := `SELECT ` + availabilityColumns + ` FROM availabilities WHERE provider_id = $1 ORDER BY created_at ASC`
	var availabilities []*model.Availability
	if err := sqlx.SelectContext(ctx, r.ext(ctx), &availabilities, query, providerID); err != nil {
		return nil, fmt.Errorf("failed to list availabilities: %w", err)
	}
	return availabilities, nil
}
