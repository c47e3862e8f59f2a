package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors sharing the same code so cloned errors compare equal
// to the predefined kinds below.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) || e == nil || other == nil {
		return false
	}
	return e.Code == other.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Ambient errors shared by every endpoint.
var (
	ErrNotFound     = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden    = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrValidation   = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal     = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss    = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// Booking lifecycle error kinds surfaced to presentation layers.
var (
	ErrInvalidInterval  = New("INVALID_INTERVAL", http.StatusBadRequest, "slot start must be before its end")
	ErrOverlapConflict  = New("OVERLAP_CONFLICT", http.StatusConflict, "slot overlaps an existing slot")
	ErrNotOwner         = New("NOT_OWNER", http.StatusForbidden, "slot belongs to another counsellor")
	ErrNotAuthorized    = New("NOT_AUTHORIZED", http.StatusForbidden, "actor may not change this booking")
	ErrSlotClaimed      = New("SLOT_CLAIMED", http.StatusConflict, "slot already has an active booking")
	ErrSlotUnavailable  = New("SLOT_UNAVAILABLE", http.StatusConflict, "slot already taken")
	ErrDuplicateClaim   = New("DUPLICATE_CLAIM", http.StatusConflict, "student already holds this slot")
	ErrAlreadyDecided   = New("ALREADY_DECIDED", http.StatusConflict, "booking already decided")
	ErrTimeout          = New("TIMEOUT", http.StatusGatewayTimeout, "request timed out")
	ErrStoreUnavailable = New("STORE_UNAVAILABLE", http.StatusServiceUnavailable, "storage temporarily unavailable")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// Cause returns a copy of kind carrying the underlying error.
func Cause(kind *Error, err error) *Error {
	if kind == nil {
		return nil
	}
	clone := *kind
	clone.Err = err
	return &clone
}
