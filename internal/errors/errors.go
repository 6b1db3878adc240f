// Package errors defines the structured service errors surfaced at the HTTP
// boundary of the gateway.
package errors

import (
	"fmt"
	"net/http"
)

// ServiceError carries a machine-readable code alongside the HTTP status the
// API should respond with.
type ServiceError struct {
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause.
func (e *ServiceError) Unwrap() error { return e.Err }

// WithDetails attaches a key/value pair to the error and returns it.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// BadRequest indicates a malformed or invalid client request.
func BadRequest(message string) *ServiceError {
	return &ServiceError{Code: "bad_request", Message: message, HTTPStatus: http.StatusBadRequest}
}

// NotFound indicates a missing resource.
func NotFound(message string) *ServiceError {
	return &ServiceError{Code: "not_found", Message: message, HTTPStatus: http.StatusNotFound}
}

// Unauthorized indicates missing or rejected credentials.
func Unauthorized(message string) *ServiceError {
	return &ServiceError{Code: "unauthorized", Message: message, HTTPStatus: http.StatusUnauthorized}
}

// RateLimitExceeded indicates the caller exhausted its request budget.
func RateLimitExceeded(limit int, window string) *ServiceError {
	e := &ServiceError{
		Code:       "rate_limit_exceeded",
		Message:    "too many requests",
		HTTPStatus: http.StatusTooManyRequests,
	}
	return e.WithDetails("limit", limit).WithDetails("window", window)
}

// Internal indicates an unexpected server-side failure.
func Internal(err error) *ServiceError {
	return &ServiceError{
		Code:       "internal",
		Message:    "internal error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}
