package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type RequestStatus string

const (
	RequestStatusOpen       RequestStatus = "open"
	RequestStatusQuoting    RequestStatus = "quoting"
	RequestStatusInProgress RequestStatus = "in_progress"
	RequestStatusCompleted  RequestStatus = "completed"
	RequestStatusCancelled  RequestStatus = "cancelled"
	RequestStatusExpired    RequestStatus = "expired"
)

// requestTransitions defines the state machine for service requests.
// cancelled/expired -> open covers the reopen operation.
var requestTransitions = map[RequestStatus][]RequestStatus{
	RequestStatusOpen:       {RequestStatusQuoting, RequestStatusInProgress, RequestStatusCancelled, RequestStatusExpired},
	RequestStatusQuoting:    {RequestStatusInProgress, RequestStatusCancelled, RequestStatusExpired},
	RequestStatusInProgress: {RequestStatusCompleted, RequestStatusCancelled},
	RequestStatusCompleted:  {},
	RequestStatusCancelled:  {RequestStatusOpen},
	RequestStatusExpired:    {RequestStatusOpen},
}

func (s RequestStatus) IsValid() bool {
	_, ok := requestTransitions[s]
	return ok
}

func (s RequestStatus) CanTransitionTo(target RequestStatus) bool {
	for _, t := range requestTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// IsClosed reports whether the status requires closed_at to be set.
func (s RequestStatus) IsClosed() bool {
	return s == RequestStatusCompleted || s == RequestStatusCancelled || s == RequestStatusExpired
}

// AcceptsQuotes reports whether providers may still quote the request.
func (s RequestStatus) AcceptsQuotes() bool {
	return s == RequestStatusOpen || s == RequestStatusQuoting
}

type RequestFrequency string

const (
	FrequencyOneOff   RequestFrequency = "one_off"
	FrequencyWeekly   RequestFrequency = "weekly"
	FrequencyBiweekly RequestFrequency = "biweekly"
	FrequencyMonthly  RequestFrequency = "monthly"
)

// DateList stores alternative dates as a JSON column.
type DateList []time.Time

func (d DateList) Value() (driver.Value, error) {
	if d == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(d)
}

func (d *DateList) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*d = nil
		return nil
	case []byte:
		return json.Unmarshal(v, d)
	case string:
		return json.Unmarshal([]byte(v), d)
	default:
		return fmt.Errorf("unsupported type for DateList: %T", src)
	}
}

// ServiceRequest is a client's ask. Requests are never destroyed, only
// soft-closed through status plus closed_at.
type ServiceRequest struct {
	Base
	ClientID         uuid.UUID        `db:"client_id" json:"client_id"`
	CategoryID       uuid.UUID        `db:"category_id" json:"category_id"`
	Description      string           `db:"description" json:"description,omitempty"`
	PreferredDate    time.Time        `db:"preferred_date" json:"preferred_date"`
	AlternativeDates DateList         `db:"alternative_dates" json:"alternative_dates,omitempty"`
	Frequency        RequestFrequency `db:"frequency" json:"frequency"`
	BudgetMinCents   int64            `db:"budget_min_cents" json:"budget_min_cents"`
	BudgetMaxCents   int64            `db:"budget_max_cents" json:"budget_max_cents"`
	Status           RequestStatus    `db:"status" json:"status"`
	ExpiresAt        time.Time        `db:"expires_at" json:"expires_at"`
	ClosedAt         *time.Time       `db:"closed_at" json:"closed_at,omitempty"`
}

type CreateRequestInput struct {
	CategoryID       uuid.UUID        `json:"category_id" validate:"required"`
	Description      string           `json:"description" validate:"max=2000"`
	PreferredDate    time.Time        `json:"preferred_date" validate:"required"`
	AlternativeDates []time.Time      `json:"alternative_dates" validate:"max=5"`
	Frequency        RequestFrequency `json:"frequency" validate:"required,oneof=one_off weekly biweekly monthly"`
	BudgetMinCents   int64            `json:"budget_min_cents" validate:"min=0"`
	BudgetMaxCents   int64            `json:"budget_max_cents" validate:"gtefield=BudgetMinCents"`
}

type UpdateRequestInput struct {
	Description      *string     `json:"description"`
	PreferredDate    *time.Time  `json:"preferred_date"`
	AlternativeDates []time.Time `json:"alternative_dates"`
	BudgetMinCents   *int64      `json:"budget_min_cents"`
	BudgetMaxCents   *int64      `json:"budget_max_cents"`
}

type RequestFilters struct {
	ClientID   uuid.UUID
	CategoryID uuid.UUID
	Status     RequestStatus
	Pagination
}
