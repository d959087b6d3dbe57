// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrWorkflowNotFound indicates a workflow description was not found by the given identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrNodeDescriptionNotFound indicates a node description was not found in its workflow.
	ErrNodeDescriptionNotFound = errors.New("node description not found")

	// ErrLinkDescriptionNotFound indicates a link description was not found in its workflow.
	ErrLinkDescriptionNotFound = errors.New("link description not found")

	// ErrItemNotFound indicates an item was not found by the given identifier.
	ErrItemNotFound = errors.New("item not found")

	// ErrProjectNotFound indicates a project was not found by the given identifier.
	ErrProjectNotFound = errors.New("project not found")

	// ErrUserNotFound indicates a user was not found by the given identifier.
	ErrUserNotFound = errors.New("user not found")

	// ErrGroupNotFound indicates a group was not found by the given identifier.
	ErrGroupNotFound = errors.New("group not found")

	// ErrVersionConflict indicates a conditional update lost against a concurrent writer.
	ErrVersionConflict = errors.New("version conflict")

	// ErrNestedTransaction indicates Transaction was called on a transaction-scoped store.
	ErrNestedTransaction = errors.New("nested transactions are not supported")
)

// WorkflowError wraps workflow-related errors with additional context.
type WorkflowError struct {
	Op         string // Operation being performed (e.g., "GetByID", "Save", "Delete")
	WorkflowID string // Workflow ID if applicable
	Err        error  // Underlying error
	Message    string // Additional context message
}

func (e *WorkflowError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s operation failed for workflow %s: %s (%v)", e.Op, e.WorkflowID, e.Message, e.Err)
	}

	return fmt.Sprintf("%s operation failed for workflow %s: %v", e.Op, e.WorkflowID, e.Err)
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for workflow errors.
func (e *WorkflowError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewWorkflowError creates a new workflow error with context.
func NewWorkflowError(op, workflowID string, err error) *WorkflowError {
	return &WorkflowError{
		Op:         op,
		WorkflowID: workflowID,
		Err:        err,
	}
}

// NodeError wraps node-description errors with additional context.
type NodeError struct {
	Op         string // Operation being performed
	WorkflowID string // Workflow ID
	NodeID     string // Node description ID
	Err        error  // Underlying error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("%s operation failed for node %s in workflow %s: %v", e.Op, e.NodeID, e.WorkflowID, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

func (e *NodeError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// LinkError wraps link-description errors with additional context.
type LinkError struct {
	Op         string // Operation being performed
	WorkflowID string // Workflow ID
	LinkID     string // Link description ID
	Err        error  // Underlying error
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("%s operation failed for link %s in workflow %s: %v", e.Op, e.LinkID, e.WorkflowID, e.Err)
}

func (e *LinkError) Unwrap() error {
	return e.Err
}

func (e *LinkError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// ItemError wraps item-related errors with additional context.
type ItemError struct {
	Op     string // Operation being performed
	ItemID string // Item ID
	Err    error  // Underlying error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("%s operation failed for item %s: %v", e.Op, e.ItemID, e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}

func (e *ItemError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsWorkflowNotFound checks if an error indicates a workflow was not found.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsNodeDescriptionNotFound checks if an error indicates a node description was not found.
func IsNodeDescriptionNotFound(err error) bool {
	return errors.Is(err, ErrNodeDescriptionNotFound)
}

// IsLinkDescriptionNotFound checks if an error indicates a link description was not found.
func IsLinkDescriptionNotFound(err error) bool {
	return errors.Is(err, ErrLinkDescriptionNotFound)
}

// IsItemNotFound checks if an error indicates an item was not found.
func IsItemNotFound(err error) bool {
	return errors.Is(err, ErrItemNotFound)
}

// IsProjectNotFound checks if an error indicates a project was not found.
func IsProjectNotFound(err error) bool {
	return errors.Is(err, ErrProjectNotFound)
}

// IsUserNotFound checks if an error indicates a user was not found.
func IsUserNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound)
}

// IsGroupNotFound checks if an error indicates a group was not found.
func IsGroupNotFound(err error) bool {
	return errors.Is(err, ErrGroupNotFound)
}

// IsVersionConflict checks if an error indicates a lost optimistic update.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

// IsNotFound checks if an error indicates any entity was not found.
func IsNotFound(err error) bool {
	return IsWorkflowNotFound(err) ||
		IsNodeDescriptionNotFound(err) ||
		IsLinkDescriptionNotFound(err) ||
		IsItemNotFound(err) ||
		IsProjectNotFound(err) ||
		IsUserNotFound(err) ||
		IsGroupNotFound(err)
}
