package domain

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation policy decisions.
type Kind string

const (
	KindValidation      Kind = "validation"
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
	KindTenantIsolation Kind = "tenant_isolation"
	KindUnavailable     Kind = "unavailable"
	KindUnauthorized    Kind = "unauthorized"
)

// Machine-readable error codes surfaced to clients.
const (
	CodeInvalidTenantID          = "INVALID_TENANT_ID"
	CodeQueryMissingTenantFilter = "QUERY_MISSING_TENANT_FILTER"
	CodeTenantIsolationViolation = "TENANT_ISOLATION_VIOLATION"
	CodeUnknownEventType         = "UNKNOWN_EVENT_TYPE"
	CodeInvalidPayload           = "INVALID_PAYLOAD"
	CodeInvalidTimestamp         = "INVALID_TIMESTAMP"
	CodeGameNotFound             = "GAME_NOT_FOUND"
	CodeSeasonNotFound           = "SEASON_NOT_FOUND"
	CodeEventNotFound            = "EVENT_NOT_FOUND"
	CodeGameAlreadyFinalized     = "GAME_ALREADY_FINALIZED"
	CodeInvalidStatusTransition  = "INVALID_STATUS_TRANSITION"
	CodeEventAlreadyReversed     = "EVENT_ALREADY_REVERSED"
	CodeEventNotReversible       = "EVENT_NOT_REVERSIBLE"
	CodeScoreFloor               = "SCORE_FLOOR"
	CodeServiceUnavailable       = "SERVICE_UNAVAILABLE"
	CodeTokenMissing             = "TOKEN_MISSING"
	CodeTokenExpired             = "TOKEN_EXPIRED"
	CodeTokenInvalid             = "TOKEN_INVALID"
	CodeTenantMissing            = "TENANT_MISSING"
)

// Error is the typed error returned across the scoring pipeline. Fields
// carries optional field-level detail for client display.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Fields  map[string]string
	wrapped error
}

func (e *Error) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.wrapped }

// WithField attaches one field-level detail and returns the error.
func (e *Error) WithField(name, detail string) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[name] = detail
	return e
}

func NewValidation(code, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: fmt.Sprintf(format, args...)}
}

func NewNotFound(code, format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: fmt.Sprintf(format, args...)}
}

func NewConflict(code, format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: fmt.Sprintf(format, args...)}
}

func NewTenantIsolation(code, format string, args ...any) *Error {
	return &Error{Kind: KindTenantIsolation, Code: code, Message: fmt.Sprintf(format, args...)}
}

func NewUnauthorized(code, format string, args ...any) *Error {
	return &Error{Kind: KindUnauthorized, Code: code, Message: fmt.Sprintf(format, args...)}
}

// NewUnavailable wraps a downstream failure as a retryable condition.
func NewUnavailable(err error, format string, args ...any) *Error {
	return &Error{
		Kind:    KindUnavailable,
		Code:    CodeServiceUnavailable,
		Message: fmt.Sprintf(format, args...),
		wrapped: err,
	}
}

// KindOf returns the Kind of err, or empty string for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// CodeOf returns the machine code of err, or empty string for untyped errors.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func IsValidation(err error) bool      { return KindOf(err) == KindValidation }
func IsNotFound(err error) bool        { return KindOf(err) == KindNotFound }
func IsConflict(err error) bool        { return KindOf(err) == KindConflict }
func IsTenantIsolation(err error) bool { return KindOf(err) == KindTenantIsolation }
func IsUnavailable(err error) bool     { return KindOf(err) == KindUnavailable }
func IsUnauthorized(err error) bool    { return KindOf(err) == KindUnauthorized }
