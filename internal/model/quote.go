package model

import (
	"time"

	"github.com/google/uuid"
)

type QuoteStatus string

const (
	QuoteStatusPending   QuoteStatus = "pending"
	QuoteStatusAccepted  QuoteStatus = "accepted"
	QuoteStatusRejected  QuoteStatus = "rejected"
	QuoteStatusExpired   QuoteStatus = "expired"
	QuoteStatusWithdrawn QuoteStatus = "withdrawn"
)

// Every status except pending is terminal.
var quoteTransitions = map[QuoteStatus][]QuoteStatus{
	QuoteStatusPending:   {QuoteStatusAccepted, QuoteStatusRejected, QuoteStatusExpired, QuoteStatusWithdrawn},
	QuoteStatusAccepted:  {},
	QuoteStatusRejected:  {},
	QuoteStatusExpired:   {},
	QuoteStatusWithdrawn: {},
}

func (s QuoteStatus) IsValid() bool {
	_, ok := quoteTransitions[s]
	return ok
}

func (s QuoteStatus) CanTransitionTo(target QuoteStatus) bool {
	for _, t := range quoteTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

func (s QuoteStatus) IsTerminal() bool {
	return len(quoteTransitions[s]) == 0
}

// RejectReasonOtherAccepted marks quotes auto-rejected because a competing
// quote on the same request was accepted.
const RejectReasonOtherAccepted = "other_quote_accepted"

// Quote is a provider's binding offer against one service request.
type Quote struct {
	Base
	RequestID       uuid.UUID   `db:"request_id" json:"request_id"`
	ProviderID      uuid.UUID   `db:"provider_id" json:"provider_id"`
	AmountCents     int64       `db:"amount_cents" json:"amount_cents"`
	ProposedAt      time.Time   `db:"proposed_at" json:"proposed_at"`
	DurationMinutes int         `db:"duration_minutes" json:"duration_minutes"`
	Message         string      `db:"message" json:"message,omitempty"`
	Status          QuoteStatus `db:"status" json:"status"`
	ValidUntil      time.Time   `db:"valid_until" json:"valid_until"`
	AcceptedAt      *time.Time  `db:"accepted_at" json:"accepted_at,omitempty"`
	RejectedAt      *time.Time  `db:"rejected_at" json:"rejected_at,omitempty"`
	WithdrawnAt     *time.Time  `db:"withdrawn_at" json:"withdrawn_at,omitempty"`
	RejectReason    *string     `db:"reject_reason" json:"reject_reason,omitempty"`
}

type SubmitQuoteInput struct {
	RequestID       uuid.UUID `json:"request_id" validate:"required"`
	AmountCents     int64     `json:"amount_cents" validate:"required,gt=0"`
	ProposedAt      time.Time `json:"proposed_at" validate:"required"`
	DurationMinutes int       `json:"duration_minutes" validate:"required,gt=0"`
	Message         string    `json:"message" validate:"max=2000"`
}

type UpdateQuoteInput struct {
	AmountCents     *int64     `json:"amount_cents"`
	ProposedAt      *time.Time `json:"proposed_at"`
	DurationMinutes *int       `json:"duration_minutes"`
	Message         *string    `json:"message"`
}
