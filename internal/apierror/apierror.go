// Package apierror defines the error taxonomy domain services return, and
// maps each variant to its HTTP status at one boundary (WriteError), so
// handlers never embed HTTP-awareness in business logic.
package apierror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind tags the taxonomy an Error belongs to.
type Kind string

const (
	KindValidation          Kind = "validation_error"
	KindNotFound            Kind = "not_found"
	KindConflict            Kind = "conflict"
	KindIdempotencyKeyReuse Kind = "idempotency_key_reuse"
	KindQuotaExceeded       Kind = "quota_exceeded"
	KindUpstreamTransient   Kind = "upstream_transient"
	KindUpstreamPermanent   Kind = "upstream_permanent"
)

// Error is a taxonomy-tagged application error.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

func newErr(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) *Error { return newErr(KindValidation, format, args...) }
func NotFound(format string, args ...any) *Error   { return newErr(KindNotFound, format, args...) }
func Conflict(format string, args ...any) *Error   { return newErr(KindConflict, format, args...) }
func IdempotencyKeyReuse(format string, args ...any) *Error {
	return newErr(KindIdempotencyKeyReuse, format, args...)
}
func QuotaExceeded(format string, args ...any) *Error {
	return newErr(KindQuotaExceeded, format, args...)
}
func UpstreamTransient(cause error, format string, args ...any) *Error {
	e := newErr(KindUpstreamTransient, format, args...)
	e.Cause = cause
	return e
}
func UpstreamPermanent(cause error, format string, args ...any) *Error {
	e := newErr(KindUpstreamPermanent, format, args...)
	e.Cause = cause
	return e
}

// statusFor maps a Kind to its HTTP status, per the error handling table.
func statusFor(k Kind) int {
	switch k {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict, KindIdempotencyKeyReuse:
		return http.StatusConflict
	case KindQuotaExceeded:
		return http.StatusTooManyRequests
	case KindUpstreamTransient:
		return http.StatusBadGateway
	case KindUpstreamPermanent:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// As extracts an *Error from err, returning ok=false if err doesn't carry one.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Status returns the HTTP status err should be reported as. Untagged errors
// map to 500.
func Status(err error) int {
	if e, ok := As(err); ok {
		return statusFor(e.Kind)
	}
	return http.StatusInternalServerError
}

// Code returns the machine-readable error code for err.
func Code(err error) string {
	if e, ok := As(err); ok {
		return string(e.Kind)
	}
	return "internal_error"
}
