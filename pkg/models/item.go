package models

import "time"

// ItemState is the conceptual position of an item relative to its workflow.
type ItemState string

const (
	ItemStateCreated    ItemState = "created"     // Not yet entered the graph
	ItemStateInWorkflow ItemState = "in_workflow" // Parked at a non-final node
	ItemStateClosed     ItemState = "closed"      // Parked at a final node (advisory)
)

// Item is the part of a tracked ticket relevant to workflow movement.
type Item struct {
	ID          string          `json:"id"`
	ProjectID   string          `json:"project_id"  validate:"required"`
	WorkflowID  string          `json:"workflow_id"`
	Type        ItemType        `json:"type"        validate:"required"`
	Title       string          `json:"title"       validate:"required,min=1"`
	CurrentNode *WorkflowNode   `json:"current_node,omitempty"`
	History     []*WorkflowNode `json:"history"` // Most recent first
	Version     int64           `json:"version"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Instances returns the current node instance followed by the history.
func (i *Item) Instances() []*WorkflowNode {
	instances := make([]*WorkflowNode, 0, len(i.History)+1)
	if i.CurrentNode != nil {
		instances = append(instances, i.CurrentNode)
	}

	return append(instances, i.History...)
}
