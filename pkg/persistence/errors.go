// Package persistence provides standardized error types for storage operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations use.
var (
	// ErrWorkflowNotFound indicates a workflow was not found by the given identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrTaskNotFound indicates a background task was not found by the given identifier.
	ErrTaskNotFound = errors.New("background task not found")

	// ErrExecutionNotFound indicates an execution record was not found.
	ErrExecutionNotFound = errors.New("execution record not found")

	// ErrApprovalNotFound indicates a pending approval was not found.
	ErrApprovalNotFound = errors.New("pending approval not found")

	// ErrContinuationNotFound indicates a delay continuation was not found.
	ErrContinuationNotFound = errors.New("continuation not found")

	// ErrInvalidTransition indicates an attempted task status change that the
	// state machine forbids, including double-claims by concurrent consumers.
	ErrInvalidTransition = errors.New("invalid task status transition")
)

// StoreError wraps persistence errors with operation and record context.
type StoreError struct {
	Op       string // Operation being performed (e.g. "GetByID", "ClaimNext")
	Kind     string // Record kind (e.g. "workflow", "task")
	RecordID string // Record identifier if applicable
	Err      error  // Underlying error
}

func (e *StoreError) Error() string {
	if e.RecordID != "" {
		return fmt.Sprintf("%s operation failed for %s %s: %v", e.Op, e.Kind, e.RecordID, e.Err)
	}

	return fmt.Sprintf("%s operation failed for %s: %v", e.Op, e.Kind, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewStoreError creates a store error with context.
func NewStoreError(op, kind, recordID string, err error) *StoreError {
	return &StoreError{
		Op:       op,
		Kind:     kind,
		RecordID: recordID,
		Err:      err,
	}
}

// IsWorkflowNotFound checks if an error indicates a missing workflow.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsTaskNotFound checks if an error indicates a missing background task.
func IsTaskNotFound(err error) bool {
	return errors.Is(err, ErrTaskNotFound)
}

// IsApprovalNotFound checks if an error indicates a missing pending approval.
func IsApprovalNotFound(err error) bool {
	return errors.Is(err, ErrApprovalNotFound)
}

// IsInvalidTransition checks if an error indicates a forbidden task transition.
func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}
