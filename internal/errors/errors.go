// Package errors provides structured error handling with a fixed type
// taxonomy and HTTP status code mapping.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents the category of error for metrics and response formatting.
type ErrorType string

const (
	// TypeInvalidInput indicates malformed or out-of-range input (HTTP 400)
	TypeInvalidInput ErrorType = "invalid_input"
	// TypeNotFound indicates the resource is absent or no longer active (HTTP 404)
	TypeNotFound ErrorType = "not_found"
	// TypeTimeout indicates the operation exceeded its deadline (HTTP 504)
	TypeTimeout ErrorType = "timeout"
	// TypeUnavailable indicates a dependency is down, its breaker is open,
	// or its retry budget is exhausted (HTTP 503)
	TypeUnavailable ErrorType = "unavailable"
	// TypeInternal indicates an unexpected server-side failure (HTTP 500)
	TypeInternal ErrorType = "internal"
)

// Error represents a structured error with type, message, and context.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus returns the appropriate HTTP status code for this error type.
func (e *Error) HTTPStatus() int {
	switch e.Type {
	case TypeInvalidInput:
		return http.StatusBadRequest
	case TypeNotFound:
		return http.StatusNotFound
	case TypeTimeout:
		return http.StatusGatewayTimeout
	case TypeUnavailable:
		return http.StatusServiceUnavailable
	case TypeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether the client may usefully retry the request.
func (e *Error) Retryable() bool {
	return e.Type == TypeTimeout || e.Type == TypeUnavailable
}

// InvalidInput creates a new invalid-input error (HTTP 400).
func InvalidInput(message string) *Error {
	return &Error{
		Type:    TypeInvalidInput,
		Message: message,
		Context: make(map[string]any),
	}
}

// NotFound creates a new not-found error (HTTP 404).
func NotFound(message string) *Error {
	return &Error{
		Type:    TypeNotFound,
		Message: message,
		Context: make(map[string]any),
	}
}

// Timeout creates a new timeout error (HTTP 504).
func Timeout(message string, cause error) *Error {
	return &Error{
		Type:    TypeTimeout,
		Message: message,
		Cause:   cause,
		Context: make(map[string]any),
	}
}

// Unavailable creates a new dependency-unavailable error (HTTP 503).
func Unavailable(message string, cause error) *Error {
	return &Error{
		Type:    TypeUnavailable,
		Message: message,
		Cause:   cause,
		Context: make(map[string]any),
	}
}

// Internal creates a new internal error (HTTP 500).
func Internal(message string, cause error) *Error {
	return &Error{
		Type:    TypeInternal,
		Message: message,
		Cause:   cause,
		Context: make(map[string]any),
	}
}

// WithContext adds context fields to the error (chainable).
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// ErrorResponse represents the JSON structure sent to clients.
type ErrorResponse struct {
	Error      string         `json:"error"`
	Type       ErrorType      `json:"type"`
	RetryAfter int            `json:"retry_after_seconds,omitempty"`
	Detail     string         `json:"detail,omitempty"`
	Context    map[string]any `json:"context,omitempty"`
}

// ToResponse converts an Error to an ErrorResponse. Cause detail is only
// included when includeDetail is set (non-production configuration).
func (e *Error) ToResponse(retryAfterSeconds int, includeDetail bool) ErrorResponse {
	resp := ErrorResponse{
		Error:   e.Message,
		Type:    e.Type,
		Context: e.Context,
	}
	if e.Retryable() {
		resp.RetryAfter = retryAfterSeconds
	}
	if includeDetail && e.Cause != nil {
		resp.Detail = e.Cause.Error()
	}
	return resp
}

// AsStructuredError converts any error into a structured Error.
// If err is already an *Error, returns it unchanged.
// Otherwise wraps it as an internal error.
func AsStructuredError(err error) *Error {
	if err == nil {
		return nil
	}

	var structuredErr *Error
	if errors.As(err, &structuredErr) {
		return structuredErr
	}

	return Internal("internal server error", err)
}
