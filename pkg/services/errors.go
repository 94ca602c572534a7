// Package services provides the application layer between the HTTP API and
// the engine: workflow CRUD, approval resolution, task management, and
// workflow export/import.
package services

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/fluxa-io/fluxa/pkg/models"
)

// Business logic errors. These classify into the HTTP status the API layer
// responds with.
var (
	// Validation errors (400 Bad Request).
	ErrInvalidRequest        = errors.New("invalid request")
	ErrWorkflowNil           = errors.New("workflow cannot be nil")
	ErrInvalidExportDocument = errors.New("invalid export document")

	// Authorization errors (403 Forbidden).
	ErrPermissionDenied = errors.New("permission denied")

	// Conflicts (409 Conflict).
	ErrNameConflict     = errors.New("workflow name already exists")
	ErrAlreadyResolved  = errors.New("approval already resolved")
	ErrApprovalExpired  = errors.New("approval deadline passed")
	ErrTaskNotCancelable = errors.New("task is already terminal")
)

// ServiceError wraps service-level errors with operation context.
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

// IsValidationError checks if an error should map to HTTP 400.
func IsValidationError(err error) bool {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		return true
	}

	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrWorkflowNil) ||
		errors.Is(err, ErrInvalidExportDocument) ||
		errors.Is(err, models.ErrNoTriggers) ||
		errors.Is(err, models.ErrNoActions) ||
		errors.Is(err, models.ErrUnknownPermission) ||
		errors.Is(err, models.ErrTriggerPayloadMismatch) ||
		errors.Is(err, models.ErrActionPayloadMismatch) ||
		errors.Is(err, models.ErrInvalidSchedule)
}

// IsPermissionDenied checks if an error should map to HTTP 403.
func IsPermissionDenied(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}

// IsConflictError checks if an error should map to HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrNameConflict) ||
		errors.Is(err, ErrAlreadyResolved) ||
		errors.Is(err, ErrApprovalExpired) ||
		errors.Is(err, ErrTaskNotCancelable)
}

// NewValidationError creates a validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
