package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

// Code classifies a failure for HTTP mapping and logging.
type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
)

// Metadata describes how a code surfaces over HTTP. DetailsAllowed gates
// whether structured details reach the response body or stay log-only.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

func meta(status int, retryable bool, msg string, detailsAllowed bool) Metadata {
	return Metadata{
		HTTPStatus:     status,
		Retryable:      retryable,
		PublicMessage:  msg,
		DetailsAllowed: detailsAllowed,
	}
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:    meta(http.StatusBadRequest, false, "validation failed", true),
	CodeUnauthorized:  meta(http.StatusUnauthorized, false, "authentication required", false),
	CodeForbidden:     meta(http.StatusForbidden, false, "access denied", false),
	CodeNotFound:      meta(http.StatusNotFound, false, "resource not found", false),
	CodeConflict:      meta(http.StatusConflict, false, "conflict detected", false),
	CodeStateConflict: meta(http.StatusUnprocessableEntity, false, "state transition disallowed", true),
	CodeInternal:      meta(http.StatusInternalServerError, true, "internal server error", false),
	CodeDependency:    meta(http.StatusServiceUnavailable, true, "dependency unavailable", true),
}

// MetadataFor returns the HTTP mapping for a code, defaulting to internal.
func MetadataFor(code Code) Metadata {
	if m, ok := metadataByCode[code]; ok {
		return m
	}
	return metadataByCode[CodeInternal]
}

// Error is a coded error carrying an operator message, optional structured
// details, and the wrapped cause.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
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

// WithDetails attaches structured details and returns the same error so it
// chains off New or Wrap.
func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As extracts the first coded error in the chain, or nil.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// HasCode reports whether the first coded error in the chain has the code.
func HasCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}
