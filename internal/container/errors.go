package container

import (
	"errors"
	"fmt"
)

// Error is returned by container entry points and wraps operation failures.
//
// Error includes structured fields for diagnostics: the container that
// raised it and, for operation failures, the operation sequence number.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// ContainerID identifies the container.
	ContainerID string

	// OperationID is the admission sequence number of the failing operation.
	// Zero when the error is not tied to an operation.
	OperationID int64

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes container errors.
type ErrorCode string

const (
	// ErrCodeClosed indicates the container has been torn down.
	ErrCodeClosed ErrorCode = "CLOSED"

	// ErrCodeQueueFull indicates the pending operation limit was reached.
	ErrCodeQueueFull ErrorCode = "QUEUE_FULL"

	// ErrCodeOperationFailed indicates a submitted operation returned an error.
	ErrCodeOperationFailed ErrorCode = "OPERATION_FAILED"

	// ErrCodeOutsideOperation indicates a Syntax was used after its operation returned.
	ErrCodeOutsideOperation ErrorCode = "OUTSIDE_OPERATION"
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	switch {
	case e.ContainerID != "" && e.OperationID != 0:
		msg = fmt.Sprintf("%s (container=%s, operation=%d)", msg, e.ContainerID, e.OperationID)
	case e.ContainerID != "":
		msg = fmt.Sprintf("%s (container=%s)", msg, e.ContainerID)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

func hasCode(err error, code ErrorCode) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}

// IsClosed returns true if err reports a torn-down container.
// Uses errors.As to handle wrapped errors.
func IsClosed(err error) bool {
	return hasCode(err, ErrCodeClosed)
}

// IsQueueFull returns true if err reports a full admission queue.
func IsQueueFull(err error) bool {
	return hasCode(err, ErrCodeQueueFull)
}

// IsOperationFailed returns true if err wraps a failed operation.
func IsOperationFailed(err error) bool {
	return hasCode(err, ErrCodeOperationFailed)
}

// IsOutsideOperation returns true if err reports Syntax misuse.
func IsOutsideOperation(err error) bool {
	return hasCode(err, ErrCodeOutsideOperation)
}

// NewClosedError creates an Error for a torn-down container.
func NewClosedError(containerID string) *Error {
	return &Error{
		Code:        ErrCodeClosed,
		Message:     "container is closed",
		ContainerID: containerID,
	}
}

// NewQueueFullError creates an Error for a rejected submission.
func NewQueueFullError(containerID string, limit int) *Error {
	return &Error{
		Code:        ErrCodeQueueFull,
		Message:     fmt.Sprintf("pending operation limit reached (%d)", limit),
		ContainerID: containerID,
	}
}

// NewOperationError wraps an operation's returned error.
func NewOperationError(containerID string, operationID int64, err error) *Error {
	return &Error{
		Code:        ErrCodeOperationFailed,
		Message:     "operation failed",
		ContainerID: containerID,
		OperationID: operationID,
		Err:         err,
	}
}

func newOutsideOperationError(containerID string, operationID int64) *Error {
	return &Error{
		Code:        ErrCodeOutsideOperation,
		Message:     "syntax used after its operation returned",
		ContainerID: containerID,
		OperationID: operationID,
	}
}
