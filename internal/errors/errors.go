// Package errors defines the structured error taxonomy shared by the
// collector loop and the dashboard server.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// Base error types
var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrTimeout          = errors.New("timeout")
	ErrConnectionFailed = errors.New("connection failed")
	ErrWriteFailed      = errors.New("write failed")
	ErrInvalidInput     = errors.New("invalid input")
	ErrInternalError    = errors.New("internal error")
)

// ErrorType represents the category of error
type ErrorType string

const (
	ErrorTypeAuth       ErrorType = "auth"       // credential rejection by the controller
	ErrorTypeAPI        ErrorType = "api"        // non-success status from a data endpoint
	ErrorTypeTimeout    ErrorType = "timeout"    // a call exceeded its configured duration
	ErrorTypeConnection ErrorType = "connection" // transport-level failure
	ErrorTypeWrite      ErrorType = "write"      // time-series write failed after retries
	ErrorTypeInternal   ErrorType = "internal"
)

// CollectError is a structured error for collection operations.
type CollectError struct {
	Type       ErrorType
	Op         string // operation that failed (e.g. "fetch_traffic_by_app")
	Target     string // host the operation was talking to
	Err        error  // underlying error
	StatusCode int    // HTTP status code if applicable
	Timestamp  time.Time
	Retryable  bool
}

func (e *CollectError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("%s failed on %s: %v", e.Op, e.Target, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *CollectError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is so the base sentinels match by category.
func (e *CollectError) Is(target error) bool {
	if target == nil {
		return false
	}

	switch target {
	case ErrUnauthorized:
		return e.Type == ErrorTypeAuth
	case ErrTimeout:
		return e.Type == ErrorTypeTimeout
	case ErrConnectionFailed:
		return e.Type == ErrorTypeConnection
	case ErrWriteFailed:
		return e.Type == ErrorTypeWrite
	}

	return errors.Is(e.Err, target)
}

// NewCollectError creates a new CollectError.
func NewCollectError(errorType ErrorType, op, target string, err error) *CollectError {
	return &CollectError{
		Type:      errorType,
		Op:        op,
		Target:    target,
		Err:       err,
		Timestamp: time.Now(),
		Retryable: isRetryable(errorType),
	}
}

// WithStatusCode adds the HTTP status code to the error.
func (e *CollectError) WithStatusCode(code int) *CollectError {
	e.StatusCode = code
	if code >= 500 || code == 429 || code == 408 {
		e.Retryable = true
	} else if code >= 400 && code < 500 {
		e.Retryable = false
	}
	return e
}

func isRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeConnection, ErrorTypeTimeout, ErrorTypeWrite:
		return true
	case ErrorTypeAuth, ErrorTypeAPI:
		return false
	default:
		return true
	}
}

// WrapAuthError wraps a credential rejection with operation context.
func WrapAuthError(op, target string, err error) error {
	return NewCollectError(ErrorTypeAuth, op, target, err)
}

// WrapAPIError wraps a data-endpoint failure with operation context.
func WrapAPIError(op, target string, err error, statusCode int) error {
	return NewCollectError(ErrorTypeAPI, op, target, err).WithStatusCode(statusCode)
}

// WrapTimeoutError wraps an exceeded-deadline failure with operation context.
func WrapTimeoutError(op, target string, err error) error {
	return NewCollectError(ErrorTypeTimeout, op, target, err)
}

// WrapConnectionError wraps a transport-level failure with operation context.
func WrapConnectionError(op, target string, err error) error {
	return NewCollectError(ErrorTypeConnection, op, target, err)
}

// WrapWriteError wraps an exhausted time-series write with operation context.
func WrapWriteError(op, target string, err error, statusCode int) error {
	e := NewCollectError(ErrorTypeWrite, op, target, err)
	e.StatusCode = statusCode
	return e
}

// IsRetryableError reports whether the next cycle is expected to succeed
// without operator intervention.
func IsRetryableError(err error) bool {
	var colErr *CollectError
	if errors.As(err, &colErr) {
		return colErr.Retryable
	}

	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrConnectionFailed)
}

// IsAuthError checks if an error is an authentication error.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}

	var colErr *CollectError
	if errors.As(err, &colErr) {
		if colErr.Type == ErrorTypeAuth {
			return true
		}
		if colErr.StatusCode == 401 || colErr.StatusCode == 403 {
			return true
		}
	}

	return errors.Is(err, ErrUnauthorized)
}
