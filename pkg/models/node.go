package models

import (
	"slices"
	"time"
)

// ItemType classifies items; links are offered only for their eligible types.
type ItemType string

const (
	ItemTypeBug         ItemType = "bug"
	ItemTypeTask        ItemType = "task"
	ItemTypeFeature     ItemType = "feature"
	ItemTypeImprovement ItemType = "improvement"
)

// NodeDescription is a named state of a workflow description.
type NodeDescription struct {
	ID         string `json:"id"                validate:"required"`
	WorkflowID string `json:"workflow_id"`
	Title      string `json:"title"             validate:"required,min=1"`
	IsFinal    bool   `json:"is_final"`
	// ReferenceCount is computed on load: links touching the node plus node
	// instances pointing at it.
	ReferenceCount   int      `json:"reference_count"`
	AuthorizedUsers  []string `json:"authorized_users"`
	AuthorizedGroups []string `json:"authorized_groups"`
}

// Authorizes reports whether the user, directly or through one of its groups,
// may be responsible for an item parked at this node.
func (n *NodeDescription) Authorizes(user *User) bool {
	if user == nil {
		return false
	}

	if slices.Contains(n.AuthorizedUsers, user.ID) {
		return true
	}

	for _, groupID := range user.GroupIDs {
		if slices.Contains(n.AuthorizedGroups, groupID) {
			return true
		}
	}

	return false
}

// LinkDescription is a named, typed, directed edge between two node descriptions.
type LinkDescription struct {
	ID            string     `json:"id"              validate:"required"`
	WorkflowID    string     `json:"workflow_id"`
	Title         string     `json:"title"           validate:"required,min=1"`
	InitialNodeID string     `json:"initial_node_id" validate:"required"`
	FinalNodeID   string     `json:"final_node_id"   validate:"required"`
	EligibleTypes []ItemType `json:"eligible_types"  validate:"required,min=1"`
}

// IsSelfLink reports whether the link leaves and enters the same node.
func (l *LinkDescription) IsSelfLink() bool {
	return l.InitialNodeID == l.FinalNodeID
}

// Touches reports whether the node is either endpoint of the link.
func (l *LinkDescription) Touches(nodeID string) bool {
	return l.InitialNodeID == nodeID || l.FinalNodeID == nodeID
}

// Accepts reports whether items of the given type may use the link.
func (l *LinkDescription) Accepts(itemType ItemType) bool {
	return slices.Contains(l.EligibleTypes, itemType)
}

// WorkflowNode is a timestamped occurrence of an item occupying a node description.
// Instances are never mutated once created; advancing creates a new one.
type WorkflowNode struct {
	ID                string    `json:"id"`
	ItemID            string    `json:"item_id"`
	NodeDescriptionID string    `json:"node_description_id"`
	Responsible       string    `json:"responsible,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}
