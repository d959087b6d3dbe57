package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrGraphConsistency indicates a structural edit would violate a graph invariant.
	ErrGraphConsistency = errors.New("graph consistency violated")

	// ErrDuplicateTitle indicates a node or link title already exists in the workflow.
	ErrDuplicateTitle = fmt.Errorf("%w: duplicate title", ErrGraphConsistency)

	// ErrConcurrentModification indicates the caller's item version is stale.
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrNoSuchTransition indicates no eligible link reaches the requested target.
	ErrNoSuchTransition = errors.New("no such transition")

	// ErrUnauthorizedTransition indicates the user may not receive items at the destination node.
	ErrUnauthorizedTransition = errors.New("unauthorized transition")
)

// GraphError wraps structural edit failures with the workflow and the offending subject.
type GraphError struct {
	Op         string // Operation being performed (e.g., "AddNode", "DeleteNodes")
	WorkflowID string // Workflow description ID
	Subject    string // Node/link title or id the failure is about
	Message    string // Additional context message
	Err        error  // Underlying error
}

func (e *GraphError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s failed for %q in workflow %s: %s: %v", e.Op, e.Subject, e.WorkflowID, e.Message, e.Err)
	}

	return fmt.Sprintf("%s failed for %q in workflow %s: %v", e.Op, e.Subject, e.WorkflowID, e.Err)
}

func (e *GraphError) Unwrap() error {
	return e.Err
}

func (e *GraphError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func newGraphError(op, workflowID, subject, message string, err error) *GraphError {
	return &GraphError{
		Op:         op,
		WorkflowID: workflowID,
		Subject:    subject,
		Message:    message,
		Err:        err,
	}
}

// TransitionError wraps a rejected item transition.
type TransitionError struct {
	Op     string // "Transition" or "BulkTransition"
	ItemID string // Item being moved
	NodeID string // Requested destination node description
	Err    error  // Underlying error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s of item %s to node %s: %v", e.Op, e.ItemID, e.NodeID, e.Err)
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}

func (e *TransitionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsGraphConsistency checks if an error is a structural invariant violation, duplicates included.
func IsGraphConsistency(err error) bool {
	return errors.Is(err, ErrGraphConsistency)
}

// IsDuplicateTitle checks if an error is a title collision.
func IsDuplicateTitle(err error) bool {
	return errors.Is(err, ErrDuplicateTitle)
}

// IsConcurrentModification checks if an error is a stale-version rejection.
func IsConcurrentModification(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsNoSuchTransition checks if an error is a missing-link rejection.
func IsNoSuchTransition(err error) bool {
	return errors.Is(err, ErrNoSuchTransition)
}

// IsUnauthorizedTransition checks if an error is an authorization rejection.
func IsUnauthorizedTransition(err error) bool {
	return errors.Is(err, ErrUnauthorizedTransition)
}

// isRejection reports whether err is a per-item business rejection rather than a hard failure.
func isRejection(err error) bool {
	return IsConcurrentModification(err) || IsNoSuchTransition(err) || IsUnauthorizedTransition(err)
}
