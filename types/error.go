package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the framework.
type ErrorCode string

// Routing and delegation error codes
const (
	ErrInvalidRequest    ErrorCode = "INVALID_REQUEST"
	ErrNotFound          ErrorCode = "NOT_FOUND"
	ErrAlreadyExists     ErrorCode = "ALREADY_EXISTS"
	ErrNoAgentsAvailable ErrorCode = "NO_AGENTS_AVAILABLE"
	ErrInferenceFailed   ErrorCode = "INFERENCE_FAILED"
	ErrTrustUnavailable  ErrorCode = "TRUST_UNAVAILABLE"
	ErrTimeout           ErrorCode = "TIMEOUT"
)

// Infrastructure error codes
const (
	ErrAuthentication     ErrorCode = "AUTHENTICATION"
	ErrRateLimited        ErrorCode = "RATE_LIMITED"
	ErrCompressionFailed  ErrorCode = "COMPRESSION_FAILED"
	ErrStoreUnavailable   ErrorCode = "STORE_UNAVAILABLE"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	AgentID    string    `json:"agent_id,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithAgentID attaches the agent the error relates to.
func (e *Error) WithAgentID(agentID string) *Error {
	e.AgentID = agentID
	return e
}

// IsRetryable checks if an error is retryable. Wrapped errors are unwrapped.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error. Wrapped errors are
// unwrapped; a non-structured error yields the empty code.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
