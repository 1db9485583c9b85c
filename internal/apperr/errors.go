package apperr

import (
	"context"
	"errors"
	"net/http"
)

// Kind is the stable, machine-readable error code sent to clients.
type Kind string

const (
	KindValidation     Kind = "validation_error"
	KindAuthentication Kind = "authentication_error"
	KindPayment        Kind = "payment_error"
	KindAuthorization  Kind = "authorization_error"
	KindNotFound       Kind = "not_found"
	KindConflict       Kind = "conflict"
	KindInvalidState   Kind = "invalid_state"
	KindRateLimited    Kind = "rate_limited"
	KindTimeout        Kind = "timeout"
	KindStorage        Kind = "storage_error"
)

// Error carries a Kind, a message safe to show to the caller and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Validation(message string) *Error     { return New(KindValidation, message) }
func Authentication(message string) *Error { return New(KindAuthentication, message) }
func Authorization(message string) *Error  { return New(KindAuthorization, message) }
func NotFound(message string) *Error       { return New(KindNotFound, message) }
func Conflict(message string) *Error       { return New(KindConflict, message) }
func InvalidState(message string) *Error   { return New(KindInvalidState, message) }
func RateLimited(message string) *Error    { return New(KindRateLimited, message) }

// Storage classifies an unexpected store failure. Deadlines become timeouts.
func Storage(message string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(KindTimeout, "the operation timed out", err)
	}
	return Wrap(KindStorage, message, err)
}

// KindOf reports the Kind of err. Errors outside the taxonomy are storage errors.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindStorage
}

// Is reports whether err belongs to kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the client-facing message for err.
func Message(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "the operation timed out"
	}
	return "Server error."
}

// HTTPStatus maps a Kind to its response status.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindPayment:
		return http.StatusPaymentRequired
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict, KindInvalidState:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindTimeout:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
