package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/serviceyard/marketplace-api/internal/model"
	"github.com/serviceyard/marketplace-api/internal/repository"
	apperrors "github.com/serviceyard/marketplace-api/pkg/errors"
)

type requestRepository struct {
	BaseRepository
}

func NewRequestRepository(base BaseRepository) repository.RequestRepository {
	return &requestRepository{base}
}

const requestColumns = `
	id, client_id, category_id, description, preferred_date, alternative_dates,
	frequency, budget_min_cents, budget_max_cents, status, expires_at, closed_at,
	created_at, updated_at
`

func (r *requestRepository) Create(ctx context.Context, req *model.ServiceRequest) error {
	query := `
		INSERT INTO service_requests (` + requestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := r.ext(ctx).ExecContext(ctx, query,
		req.ID,
		req.ClientID,
		req.CategoryID,
		req.Description,
		req.PreferredDate,
		req.AlternativeDates,
		req.Frequency,
		req.BudgetMinCents,
		req.BudgetMaxCents,
		req.Status,
		req.ExpiresAt,
		req.ClosedAt,
		req.CreatedAt,
		req.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create service request: %w", err)
	}
	return nil
}

func (r *requestRepository) Get(ctx context.Context, id uuid.UUID) (*model.ServiceRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM service_requests WHERE id = $1`
	var req model.ServiceRequest
	err := sqlx.GetContext(ctx, r.ext(ctx), &req, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("service request")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get service request: %w", err)
	}
	return &req, nil
}

func (r *requestRepository) Update(ctx context.Context, req *model.ServiceRequest) error {
	query := `
		UPDATE service_requests
		SET description = $1, preferred_date = $2, alternative_dates = $3,
			budget_min_cents = $4, budget_max_cents = $5, status = $6,
			expires_at = $7, closed_at = $8, updated_at = $9
		WHERE id = $10
	`
	result, err := r.ext(ctx).ExecContext(ctx, query,
		req.Description,
		req.PreferredDate,
		req.AlternativeDates,
		req.BudgetMinCents,
		req.BudgetMaxCents,
		req.Status,
		req.ExpiresAt,
		req.ClosedAt,
		req.UpdatedAt,
		req.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update service request: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NotFound("service request")
	}
	return nil
}

func (r *requestRepository) List(ctx context.Context, filters *model.RequestFilters) ([]*model.ServiceRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM service_requests WHERE 1=1`
	args := []interface{}{}
	argCount := 1

	if filters.ClientID != uuid.Nil {
		query += fmt.Sprintf(" AND client_id = $%d", argCount)
		args = append(args, filters.ClientID)
		argCount++
	}
	if filters.CategoryID != uuid.Nil {
		query += fmt.Sprintf(" AND category_id = $%d", argCount)
		args = append(args, filters.CategoryID)
		argCount++
	}
	if filters.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argCount)
		args = append(args, filters.Status)
		argCount++
	}

	query += " ORDER BY created_at DESC"
	if filters.PageSize > 0 {
		offset := 0
		if filters.Page > 1 {
			offset = (filters.Page - 1) * filters.PageSize
		}
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argCount, argCount+1)
		args = append(args, filters.PageSize, offset)
	}

	var requests []*model.ServiceRequest
	if err := sqlx.SelectContext(ctx, r.ext(ctx), &requests, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list service requests: %w", err)
	}
	return requests, nil
}

func (r *requestRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from []model.RequestStatus, to model.RequestStatus, closedAt *time.Time) (bool, error) {
	fromStr := make([]string, len(from))
	for i, s := range from {
		fromStr[i] = string(s)
	}

	query := `
		UPDATE service_requests
		SET status = $1, closed_at = $2, updated_at = now()
		WHERE id = $3 AND status = ANY($4)
	`
	result, err := r.ext(ctx).ExecContext(ctx, query, to, closedAt, id, pq.Array(fromStr))
	if err != nil {
		return false, fmt.Errorf("failed to update request status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

func (r *requestRepository) ListExpired(ctx context.Context, before time.Time, limit int) ([]*model.ServiceRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM service_requests
		WHERE status IN ('open', 'quoting') AND expires_at < $1
		ORDER BY expires_at ASC
		LIMIT $2
	`
	var requests []*model.ServiceRequest
	if err := sqlx.SelectContext(ctx, r.ext(ctx), &requests, query, before, limit); err != nil {
		return nil, fmt.Errorf("failed to list expired requests: %w", err)
	}
	return requests, nil
}
