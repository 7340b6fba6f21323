// Package persistence defines the repositories the request engine stores its
// state through, and the errors every backend reports.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrRequestNotFound indicates a request was not found by the given identifier.
	ErrRequestNotFound = errors.New("request not found")

	// ErrExecutionNotFound indicates no execution record exists for a request.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrStatusConflict indicates a compare-and-set transition lost to a concurrent writer.
	ErrStatusConflict = errors.New("request status changed concurrently")

	// ErrExecutionAlreadyExists indicates an execution record already exists for the request.
	ErrExecutionAlreadyExists = errors.New("execution already exists for request")

	// ErrRequestAlreadyExists indicates a request with the same identifier already exists.
	ErrRequestAlreadyExists = errors.New("request already exists")
)

// RequestError wraps request-related errors with additional context.
type RequestError struct {
	Op        string // Operation being performed (e.g., "GetByID", "Transition")
	RequestID string
	Err       error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s operation failed for request %s: %v", e.Op, e.RequestID, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// NewRequestError creates a new request error with context.
func NewRequestError(op, requestID string, err error) *RequestError {
	return &RequestError{Op: op, RequestID: requestID, Err: err}
}

// IsRequestNotFound checks if an error indicates a request was not found.
func IsRequestNotFound(err error) bool {
	return errors.Is(err, ErrRequestNotFound)
}

// IsExecutionNotFound checks if an error indicates an execution was not found.
func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}

// IsStatusConflict checks if an error indicates a lost transition race.
func IsStatusConflict(err error) bool {
	return errors.Is(err, ErrStatusConflict)
}
