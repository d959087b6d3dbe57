package workflow

import (
	"time"

	"github.com/dukex/itemflow/pkg/models"
	"github.com/google/uuid"
)

// Tracker moves items between node descriptions. It performs no checks.
type Tracker struct {
	graph *Graph
	newID func() string
}

// NewTracker returns a tracker over graph that stamps instances with fresh uuids.
func NewTracker(graph *Graph) *Tracker {
	return &Tracker{graph: graph, newID: uuid.NewString}
}

// CurrentNodeDescription returns the node the item occupies, or the initial
// node when the item has not entered the workflow yet.
func (t *Tracker) CurrentNodeDescription(item *models.Item) (*models.NodeDescription, bool) {
	if item.CurrentNode == nil {
		initial := t.graph.InitialNode()

		return initial, initial != nil
	}

	return t.graph.Node(item.CurrentNode.NodeDescriptionID)
}

// State classifies the item's position in the workflow.
func (t *Tracker) State(item *models.Item) models.ItemState {
	if item.CurrentNode == nil {
		return models.ItemStateCreated
	}

	if node, ok := t.graph.Node(item.CurrentNode.NodeDescriptionID); ok && node.IsFinal {
		return models.ItemStateClosed
	}

	return models.ItemStateInWorkflow
}

// Advance parks the item at the link's final node.
func (t *Tracker) Advance(item *models.Item, link *models.LinkDescription, responsible string, now time.Time) *models.WorkflowNode {
	return t.park(item, link.FinalNodeID, responsible, now)
}

// Enter parks a CREATED item at the initial node.
func (t *Tracker) Enter(item *models.Item, responsible string, now time.Time) *models.WorkflowNode {
	return t.park(item, t.graph.Description().InitialNodeID, responsible, now)
}

func (t *Tracker) park(item *models.Item, nodeID, responsible string, now time.Time) *models.WorkflowNode {
	instance := &models.WorkflowNode{
		ID:                t.newID(),
		ItemID:            item.ID,
		NodeDescriptionID: nodeID,
		Responsible:       responsible,
		CreatedAt:         now,
	}

	if item.CurrentNode != nil {
		item.History = append([]*models.WorkflowNode{item.CurrentNode}, item.History...)
	}

	item.CurrentNode = instance
	item.Version++
	item.UpdatedAt = now

	if node, ok := t.graph.Node(nodeID); ok {
		node.ReferenceCount++
	}

	return instance
}
