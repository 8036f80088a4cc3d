package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

// Code classifies an error for transport and logging.
type Code string

const (
	CodeValidation   Code = "VALIDATION_ERROR"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeForbidden    Code = "FORBIDDEN"
	CodeNotFound     Code = "NOT_FOUND"
	CodeConflict     Code = "CONFLICT"
	CodeInvariant    Code = "DOMAIN_INVARIANT_VIOLATION"
	CodeRateLimit    Code = "RATE_LIMIT_EXCEEDED"
	CodeAnalysis     Code = "ANALYSIS_ERROR"
	CodeStorage      Code = "STORAGE_ERROR"
	CodeInternal     Code = "INTERNAL_ERROR"
	CodeDependency   Code = "DEPENDENCY_ERROR"
)

// Metadata describes how a code is surfaced to clients.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

const (
	permanent = false
	transient = true

	hideDetails = false
	showDetails = true
)

var metadataByCode = map[Code]Metadata{
	CodeValidation:   {http.StatusBadRequest, permanent, "validation failed", showDetails},
	CodeUnauthorized: {http.StatusUnauthorized, permanent, "authentication required", hideDetails},
	CodeForbidden:    {http.StatusForbidden, permanent, "access denied", hideDetails},
	CodeNotFound:     {http.StatusNotFound, permanent, "resource not found", hideDetails},
	CodeConflict:     {http.StatusConflict, permanent, "conflict detected", showDetails},
	CodeInvariant:    {http.StatusUnprocessableEntity, permanent, "operation violates a domain rule", showDetails},
	CodeRateLimit:    {http.StatusTooManyRequests, transient, "rate limit exceeded", showDetails},
	CodeAnalysis:     {http.StatusBadGateway, transient, "image analysis failed", showDetails},
	CodeStorage:      {http.StatusServiceUnavailable, transient, "storage unavailable", hideDetails},
	CodeInternal:     {http.StatusInternalServerError, transient, "internal server error", hideDetails},
	CodeDependency:   {http.StatusServiceUnavailable, transient, "dependency unavailable", showDetails},
}

// MetadataFor returns the metadata for code; unknown codes map to
// CodeInternal.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// Error is the typed error carried through services to the HTTP layer.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Newf is New with a formatted message.
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

// WithDetails sets the client-visible details and returns e.
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
	case e.cause == nil:
		return string(e.code) + ": " + e.message
	default:
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the outermost *Error in err's chain, or nil.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// HasCode reports whether the outermost typed error in err's chain has code.
func HasCode(err error, code Code) bool {
	return As(err).codeOr("") == code
}

// IsRetryable reports whether err is worth retrying. Untyped errors are
// treated as internal and therefore transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return MetadataFor(As(err).codeOr(CodeInternal)).Retryable
}

func (e *Error) codeOr(fallback Code) Code {
	if e == nil {
		return fallback
	}
	return e.code
}
