package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType represents different types of errors that can occur
type ErrorType string

const (
	ErrorTypeInvalidRange ErrorType = "invalid_range"
	ErrorTypeNotAvailable ErrorType = "not_available"
	ErrorTypeNetwork      ErrorType = "network"
	ErrorTypeRateLimit    ErrorType = "rate_limit"
	ErrorTypeServerError  ErrorType = "server_error"
	ErrorTypeAuth         ErrorType = "auth"
	ErrorTypeIO           ErrorType = "io"
	ErrorTypeConfig       ErrorType = "config"
	ErrorTypeUnknown      ErrorType = "unknown"
)

// Kind separates failures worth retrying in the same run from gaps that
// will not change by asking again.
type Kind string

const (
	KindRetriable Kind = "retriable"
	KindPermanent Kind = "permanent"
)

// Sentinels for errors.Is checks. Any *Error of the matching type
// compares equal to them.
var (
	ErrInvalidRange = &Error{Type: ErrorTypeInvalidRange, Message: "invalid time range"}
	ErrNotAvailable = &Error{Type: ErrorTypeNotAvailable, Message: "data not available"}
)

// Error represents a typed failure with an optional HTTP status code.
// RetryAfter carries the archive's Retry-After hint, if it sent one.
type Error struct {
	Type       ErrorType
	Message    string
	Code       int
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	msg := string(e.Type) + " error"
	if e.Code != 0 {
		msg = fmt.Sprintf("%s (code %d)", msg, e.Code)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same type
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Type == e.Type
}

// New creates a typed error
func New(t ErrorType, format string, args ...interface{}) *Error {
	return &Error{Type: t, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a typed error around cause
func Wrap(t ErrorType, cause error, format string, args ...interface{}) *Error {
	return &Error{Type: t, Message: fmt.Sprintf(format, args...), Err: cause}
}

// InvalidRange reports malformed time bounds
func InvalidRange(format string, args ...interface{}) *Error {
	return New(ErrorTypeInvalidRange, format, args...)
}

// NotAvailable reports that the archive has no data for a slice
func NotAvailable(format string, args ...interface{}) *Error {
	return New(ErrorTypeNotAvailable, format, args...)
}

// TypeOf returns the ErrorType carried by err, or ErrorTypeUnknown
func TypeOf(err error) ErrorType {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// RetryAfterOf returns the Retry-After hint carried by err, or 0
func RetryAfterOf(err error) time.Duration {
	var e *Error
	if stderrors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypeServerError:
		return true
	default:
		return false
	}
}

// KindOf classifies err. Untyped errors are treated as retriable since
// nothing says the slice is missing.
func KindOf(err error) Kind {
	var e *Error
	if !stderrors.As(err, &e) {
		return KindRetriable
	}
	if IsRetryable(e.Type) || (e.Type == ErrorTypeUnknown && e.Code == 0) {
		return KindRetriable
	}
	return KindPermanent
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case 429:
		return true
	case 401, 403, 404, 410:
		return false
	default:
		return statusCode >= 500
	}
}

// FromStatusCode maps an archive HTTP status to a typed error
func FromStatusCode(statusCode int, url string) *Error {
	e := &Error{Code: statusCode, Message: url}
	switch {
	case statusCode == 404 || statusCode == 410 || statusCode == 204:
		e.Type = ErrorTypeNotAvailable
	case statusCode == 429:
		e.Type = ErrorTypeRateLimit
	case statusCode == 401 || statusCode == 403:
		e.Type = ErrorTypeAuth
	case statusCode >= 500:
		e.Type = ErrorTypeServerError
	default:
		e.Type = ErrorTypeUnknown
	}
	return e
}
