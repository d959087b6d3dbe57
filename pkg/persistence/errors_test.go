package persistence_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/dukex/itemflow/pkg/persistence"
	"github.com/stretchr/testify/assert"
)

func TestStandardizedErrors(t *testing.T) {
	t.Parallel()

	t.Run("error constants are available", func(t *testing.T) {
		assert.NotNil(t, persistence.ErrWorkflowNotFound)
		assert.NotNil(t, persistence.ErrNodeDescriptionNotFound)
		assert.NotNil(t, persistence.ErrLinkDescriptionNotFound)
		assert.NotNil(t, persistence.ErrItemNotFound)
		assert.NotNil(t, persistence.ErrVersionConflict)
	})

	t.Run("error checking functions work correctly", func(t *testing.T) {
		workflowErr := persistence.NewWorkflowError("GetByID", "workflow-123", persistence.ErrWorkflowNotFound)
		itemErr := &persistence.ItemError{Op: "Update", ItemID: "item-1", Err: persistence.ErrVersionConflict}

		assert.True(t, persistence.IsWorkflowNotFound(workflowErr))
		assert.True(t, persistence.IsVersionConflict(itemErr))
		assert.False(t, persistence.IsItemNotFound(itemErr))

		assert.True(t, errors.Is(workflowErr, persistence.ErrWorkflowNotFound))
		assert.True(t, errors.Is(fmt.Errorf("outer: %w", itemErr), persistence.ErrVersionConflict))
	})

	t.Run("workflow error contains context", func(t *testing.T) {
		err := persistence.NewWorkflowError("Save", "workflow-123", persistence.ErrWorkflowNotFound)

		assert.Contains(t, err.Error(), "Save")
		assert.Contains(t, err.Error(), "workflow-123")
		assert.Contains(t, err.Error(), "workflow not found")
	})

	t.Run("node and link errors contain context", func(t *testing.T) {
		nodeErr := &persistence.NodeError{Op: "GetNode", WorkflowID: "wf-1", NodeID: "open", Err: persistence.ErrNodeDescriptionNotFound}
		linkErr := &persistence.LinkError{Op: "GetLink", WorkflowID: "wf-1", LinkID: "start", Err: persistence.ErrLinkDescriptionNotFound}

		assert.Contains(t, nodeErr.Error(), "node open in workflow wf-1")
		assert.Contains(t, linkErr.Error(), "link start in workflow wf-1")
		assert.True(t, persistence.IsNotFound(nodeErr))
		assert.True(t, persistence.IsNotFound(linkErr))
	})

	t.Run("is not found covers every entity", func(t *testing.T) {
		for _, err := range []error{
			persistence.ErrWorkflowNotFound,
			persistence.ErrNodeDescriptionNotFound,
			persistence.ErrLinkDescriptionNotFound,
			persistence.ErrItemNotFound,
			persistence.ErrProjectNotFound,
			persistence.ErrUserNotFound,
			persistence.ErrGroupNotFound,
		} {
			assert.True(t, persistence.IsNotFound(err), err.Error())
		}

		assert.False(t, persistence.IsNotFound(persistence.ErrVersionConflict))
	})
}
