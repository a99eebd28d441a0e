package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the library.
type ErrorCode string

// Coordination error codes
const (
	ErrAgentUnavailable  ErrorCode = "AGENT_UNAVAILABLE"
	ErrAgentNotFound     ErrorCode = "AGENT_NOT_FOUND"
	ErrInvalidTransition ErrorCode = "INVALID_TRANSITION"
	ErrHandoffNotFound   ErrorCode = "HANDOFF_NOT_FOUND"
	ErrHandoffResolved   ErrorCode = "HANDOFF_RESOLVED"
)

// Workflow error codes
const (
	ErrToolNotFound        ErrorCode = "TOOL_NOT_FOUND"
	ErrStepExecutionFailed ErrorCode = "STEP_EXECUTION_FAILED"
	ErrBoundsExceeded      ErrorCode = "WORKFLOW_BOUNDS_EXCEEDED"
	ErrWorkflowNotRunning  ErrorCode = "WORKFLOW_NOT_RUNNING"
	ErrWorkflowConcurrent  ErrorCode = "WORKFLOW_ALREADY_RUNNING"
)

// State error codes
const (
	ErrConflictUnresolved ErrorCode = "CONFLICT_UNRESOLVED"
	ErrSnapshotNotFound   ErrorCode = "SNAPSHOT_NOT_FOUND"
	ErrStateCorrupted     ErrorCode = "STATE_CORRUPTED"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	AgentID   string    `json:"agent_id,omitempty"`
	Cause     error     `json:"-"`
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

// NewErrorf creates a new Error with a formatted message.
func NewErrorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithAgent attaches the agent id the error relates to.
func (e *Error) WithAgent(agentID string) *Error {
	e.AgentID = agentID
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
