package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "PENDING"
	OutboxStatusProcessed OutboxStatus = "PROCESSED"
	OutboxStatusFailed    OutboxStatus = "FAILED"
)

// OutboxEvent is a notification written in the same transaction as the
// state change that caused it; a background worker publishes it.
type OutboxEvent struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	EventType     string          `db:"event_type" json:"event_type"`
	RecipientKind ActorKind       `db:"recipient_kind" json:"recipient_kind"`
	RecipientID   uuid.UUID       `db:"recipient_id" json:"recipient_id"`
	Payload       json.RawMessage `db:"payload" json:"payload"`
	Status        OutboxStatus    `db:"status" json:"status"`
	ErrorMessage  *string         `db:"error_message" json:"error_message,omitempty"`
	RetryCount    int             `db:"retry_count" json:"retry_count"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	ProcessedAt   *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// Notification event types published through the outbox.
const (
	EventQuoteSubmitted   = "quote_submitted"
	EventQuoteAccepted    = "quote_accepted"
	EventQuoteRejected    = "quote_rejected"
	EventQuoteExpired     = "quote_expired"
	EventQuoteWithdrawn   = "quote_withdrawn"
	EventRequestExpired   = "request_expired"
	EventRequestCancelled = "request_cancelled"
	EventBookingConfirmed = "booking_confirmed"
	EventBookingStarted   = "booking_started"
	EventBookingCompleted = "booking_completed"
	EventBookingCancelled = "booking_cancelled"
	EventBookingNoShow    = "booking_no_show"
	EventBookingDisputed  = "booking_disputed"
	EventBookingRefunded  = "booking_refunded"
)
