// Package services implements the request lifecycle and artifact retrieval on
// top of persistence, the execution dispatcher and the retention policy.
package services

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the request or its execution does not exist (404).
	ErrNotFound = errors.New("not found")

	// ErrInvalidState indicates the action is not allowed in the request's current status (409).
	ErrInvalidState = errors.New("invalid state")

	// ErrForbidden indicates the actor's scope does not cover the request (403).
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidArgument indicates malformed submission content or parameters (400).
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInstanceNotFound indicates the target instance is not registered (422).
	ErrInstanceNotFound = errors.New("instance not found")

	// ErrExecutionFailure indicates an executor surfaced a backend or script error.
	ErrExecutionFailure = errors.New("execution failure")

	// ErrArtifactExpired indicates the offloaded result passed its retention window (410).
	ErrArtifactExpired = errors.New("artifact expired")

	// ErrArtifactUnavailable indicates the offloaded result cannot be served (404 or 410).
	ErrArtifactUnavailable = errors.New("artifact unavailable")
)

// Codes carried by ServiceError.
const (
	CodeNotFound            = "NOT_FOUND"
	CodeInvalidState        = "INVALID_STATE"
	CodeForbidden           = "FORBIDDEN"
	CodeInvalidArgument     = "INVALID_ARGUMENT"
	CodeInstanceNotFound    = "INSTANCE_NOT_FOUND"
	CodeArtifactExpired     = "ARTIFACT_EXPIRED"
	CodeArtifactNotRecorded = "ARTIFACT_NOT_RECORDED" // no path was ever stored
	CodeArtifactGone        = "ARTIFACT_GONE"         // path stored, object missing
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func newError(op, code, message string, err error) *ServiceError {
	return &ServiceError{Op: op, Code: code, Message: message, Err: err}
}

func notFound(op, message string) *ServiceError {
	return newError(op, CodeNotFound, message, ErrNotFound)
}

func invalidState(op, message string) *ServiceError {
	return newError(op, CodeInvalidState, message, ErrInvalidState)
}

func forbidden(op, message string) *ServiceError {
	return newError(op, CodeForbidden, message, ErrForbidden)
}

func invalidArgument(op, message string) *ServiceError {
	return newError(op, CodeInvalidArgument, message, ErrInvalidArgument)
}

// ErrorCode returns the code of the first ServiceError in err's chain.
func ErrorCode(err error) string {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.Code
	}

	return ""
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState)
}

func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}

func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}

func IsInstanceNotFound(err error) bool {
	return errors.Is(err, ErrInstanceNotFound)
}

func IsArtifactExpired(err error) bool {
	return errors.Is(err, ErrArtifactExpired)
}

func IsArtifactUnavailable(err error) bool {
	return errors.Is(err, ErrArtifactUnavailable)
}
