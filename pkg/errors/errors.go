package errors

import (
	"errors"
	"fmt"
)

// Kind classifies an engine error. Handlers map kinds to HTTP statuses;
// the engine itself never returns an untyped failure.
type Kind int

const (
	KindNotFound Kind = iota + 1000
	KindInvalidTransition
	KindConflict
	KindPolicyViolation
	KindExpired
	KindInternal
)

// Machine-readable reasons carried alongside the kind.
const (
	ReasonSlotFull                 = "slot_full"
	ReasonSlotConflict             = "slot_conflict"
	ReasonSlotUnavailable          = "slot_unavailable"
	ReasonNotReserved              = "not_reserved"
	ReasonDuplicatePendingQuote    = "duplicate_pending_quote"
	ReasonProviderQuoteCapExceeded = "provider_quote_cap_exceeded"
	ReasonRequestNotOpen           = "request_not_open"
	ReasonQuoteNotPending          = "quote_not_pending"
	ReasonQuoteExpired             = "quote_expired"
	ReasonRequestExpired           = "request_expired"
	ReasonNotOwner                 = "not_owner"
	ReasonOutsideStartWindow       = "outside_start_window"
	ReasonNotStarted               = "not_started"
	ReasonCancellationWindowClosed = "cancellation_window_closed"
	ReasonConcurrentUpdate         = "concurrent_update"
)

// AppError represents an application error
type AppError struct {
	Kind    Kind   `json:"kind"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource string) *AppError {
	return &AppError{
		Kind:    KindNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

func InvalidTransition(entity, from, to string) *AppError {
	return &AppError{
		Kind:    KindInvalidTransition,
		Message: fmt.Sprintf("%s cannot transition from %s to %s", entity, from, to),
	}
}

func Conflict(reason, message string) *AppError {
	return &AppError{
		Kind:    KindConflict,
		Reason:  reason,
		Message: message,
	}
}

func PolicyViolation(reason, message string) *AppError {
	return &AppError{
		Kind:    KindPolicyViolation,
		Reason:  reason,
		Message: message,
	}
}

func Expired(reason, message string) *AppError {
	return &AppError{
		Kind:    KindExpired,
		Reason:  reason,
		Message: message,
	}
}

func Internal(err error) *AppError {
	return &AppError{
		Kind:    KindInternal,
		Message: "internal error",
		Err:     err,
	}
}

// IsKind reports whether err is an AppError of the given kind.
func IsKind(err error, kind Kind) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}

// ReasonOf returns the machine reason of err, or "" for untyped errors.
func ReasonOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Reason
	}
	return ""
}
