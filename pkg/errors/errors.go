package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"

	// Settlement taxonomy.
	CodeBusinessRule           Code = "BUSINESS_RULE_VIOLATION"
	CodeConcurrentModification Code = "CONCURRENT_MODIFICATION"
	CodeGatewayFailure         Code = "GATEWAY_FAILURE"
)

// Metadata describes how a code surfaces over HTTP.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

const (
	retryable   = true
	withDetails = true
)

func meta(status int, message string, retry, details bool) Metadata {
	return Metadata{HTTPStatus: status, PublicMessage: message, Retryable: retry, DetailsAllowed: details}
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:             meta(http.StatusBadRequest, "validation failed", false, withDetails),
	CodeUnauthorized:           meta(http.StatusUnauthorized, "authentication required", false, false),
	CodeForbidden:              meta(http.StatusForbidden, "access denied", false, false),
	CodeNotFound:               meta(http.StatusNotFound, "resource not found", false, false),
	CodeConflict:               meta(http.StatusConflict, "conflict detected", false, false),
	CodeStateConflict:          meta(http.StatusUnprocessableEntity, "state transition disallowed", false, withDetails),
	CodeIdempotency:            meta(http.StatusConflict, "idempotency key reused", false, withDetails),
	CodeBusinessRule:           meta(http.StatusConflict, "business rule violated", false, withDetails),
	CodeConcurrentModification: meta(http.StatusConflict, "resource was modified concurrently; re-read and retry", retryable, withDetails),
	CodeGatewayFailure:         meta(http.StatusBadGateway, "payment gateway failure", retryable, withDetails),
	CodeRateLimit:              meta(http.StatusTooManyRequests, "rate limit exceeded", false, false),
	CodeInternal:               meta(http.StatusInternalServerError, "internal server error", retryable, false),
	CodeDependency:             meta(http.StatusServiceUnavailable, "dependency unavailable", retryable, withDetails),
}

// MetadataFor falls back to CodeInternal for unknown codes.
func MetadataFor(code Code) Metadata {
	if m, ok := metadataByCode[code]; ok {
		return m
	}
	return metadataByCode[CodeInternal]
}

// Error is a coded error. Its message is public for client-facing codes, so
// keep identifiers of other tenants out of it.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap attaches code and message to err. A nil err behaves like New.
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.cause != nil:
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	default:
		return fmt.Sprintf("%s: %s", e.code, e.message)
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// IsCode reports whether err carries the supplied typed code.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}

// IsRetryable reports whether the outermost typed error in err is safe to
// retry. Untyped errors are not.
func IsRetryable(err error) bool {
	typed := As(err)
	return typed != nil && MetadataFor(typed.code).Retryable
}

// As returns the outermost *Error in err's chain, or nil.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}
