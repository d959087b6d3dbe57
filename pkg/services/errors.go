// Package services provides standardized error types for service layer operations.
package services

import (
	"errors"
	"fmt"

	"github.com/dukex/itemflow/pkg/persistence"
	"github.com/dukex/itemflow/pkg/workflow"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest     = errors.New("invalid request")
	ErrInvalidSortKey     = errors.New("invalid sort key")
	ErrWorkflowNil        = errors.New("workflow cannot be nil")
	ErrNotATemplate       = errors.New("workflow is not a system template")
	ErrNoItemsRequested   = errors.New("at least one item id is required")
	ErrTargetNodeRequired = errors.New("target node or link is required")

	// Business Logic Conflicts (409 Conflict).
	ErrWorkflowInUse = errors.New("workflow belongs to a project")
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

// IsValidationError checks if an error is a validation error that should return HTTP 400.
// Duplicate titles are graph consistency errors too, but they are conflicts.
func IsValidationError(err error) bool {
	if workflow.IsDuplicateTitle(err) {
		return false
	}

	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidSortKey) ||
		errors.Is(err, ErrWorkflowNil) ||
		errors.Is(err, ErrNotATemplate) ||
		errors.Is(err, ErrNoItemsRequested) ||
		errors.Is(err, ErrTargetNodeRequired) ||
		workflow.IsGraphConsistency(err)
}

// IsNotFound checks if an error should return HTTP 404.
func IsNotFound(err error) bool {
	return persistence.IsNotFound(err)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrWorkflowInUse) ||
		workflow.IsDuplicateTitle(err) ||
		workflow.IsConcurrentModification(err) ||
		workflow.IsNoSuchTransition(err) ||
		persistence.IsVersionConflict(err)
}

// IsForbidden checks if an error should return HTTP 403.
func IsForbidden(err error) bool {
	return workflow.IsUnauthorizedTransition(err)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
