package web

import (
	"github.com/dukex/itemflow/pkg/models"
	"github.com/dukex/itemflow/pkg/workflow"
)

// ActorHeader names the user performing a request.
const ActorHeader = "X-User-ID"

// CreateWorkflowRequest represents the request body for creating a system template.
// Nodes and links are optional; they can be added afterwards.
type CreateWorkflowRequest struct {
	Name          string               `json:"name"                      validate:"required,min=3"`
	InitialNodeID string               `json:"initial_node_id,omitempty"`
	Nodes         []TemplateNodeRequest `json:"nodes"                     validate:"dive"`
	Links         []TemplateLinkRequest `json:"links"                     validate:"dive"`
}

// TemplateNodeRequest is a node declared inline with a new template.
type TemplateNodeRequest struct {
	ID               string   `json:"id"                validate:"required"`
	Title            string   `json:"title"             validate:"required,min=1"`
	IsFinal          bool     `json:"is_final"`
	AuthorizedUsers  []string `json:"authorized_users"`
	AuthorizedGroups []string `json:"authorized_groups"`
}

// TemplateLinkRequest is a link declared inline with a new template.
type TemplateLinkRequest struct {
	ID            string            `json:"id"              validate:"required"`
	Title         string            `json:"title"           validate:"required,min=1"`
	InitialNodeID string            `json:"initial_node_id" validate:"required"`
	FinalNodeID   string            `json:"final_node_id"   validate:"required"`
	EligibleTypes []models.ItemType `json:"eligible_types"  validate:"required,min=1,dive,oneof=bug task feature improvement"`
}

// NodeRequest represents the request body for adding or editing a node description.
type NodeRequest struct {
	Title            string   `json:"title"             validate:"required,min=1"`
	IsFinal          bool     `json:"is_final"`
	AuthorizedUsers  []string `json:"authorized_users"`
	AuthorizedGroups []string `json:"authorized_groups"`
}

// CreateLinkRequest represents the request body for adding a link description.
type CreateLinkRequest struct {
	Title         string            `json:"title"           validate:"required,min=1"`
	InitialNodeID string            `json:"initial_node_id" validate:"required"`
	FinalNodeID   string            `json:"final_node_id"   validate:"required"`
	EligibleTypes []models.ItemType `json:"eligible_types"  validate:"required,min=1,dive,oneof=bug task feature improvement"`
}

// UpdateLinkRequest represents the request body for editing a link description.
type UpdateLinkRequest struct {
	Title         string            `json:"title"          validate:"required,min=1"`
	EligibleTypes []models.ItemType `json:"eligible_types" validate:"required,min=1,dive,oneof=bug task feature improvement"`
}

// DeleteNodesRequest lists node descriptions to remove together.
type DeleteNodesRequest struct {
	NodeIDs []string `json:"node_ids" validate:"required,min=1,dive,required"`
}

// DeleteLinksRequest lists link descriptions to remove together.
type DeleteLinksRequest struct {
	LinkIDs []string `json:"link_ids" validate:"required,min=1,dive,required"`
}

// SetInitialNodeRequest moves the workflow entry point.
type SetInitialNodeRequest struct {
	NodeID string `json:"node_id" validate:"required"`
}

// CreateProjectRequest represents the request body for creating a project.
type CreateProjectRequest struct {
	Name       string `json:"name"        validate:"required,min=3"`
	TemplateID string `json:"template_id" validate:"required"`
}

// CreateItemRequest represents the request body for creating an item in a project.
type CreateItemRequest struct {
	Type  models.ItemType `json:"type"  validate:"required,oneof=bug task feature improvement"`
	Title string          `json:"title" validate:"required,min=1"`
}

// UpdateItemRequest renames an item; Version is the version last read.
type UpdateItemRequest struct {
	Version int64  `json:"version" validate:"required,min=1"`
	Title   string `json:"title"   validate:"required,min=1"`
}

// TransitionRequest represents the request body for moving one item. Either
// target_node_id or link_id is required.
type TransitionRequest struct {
	Version      int64  `json:"version"                  validate:"required,min=1"`
	TargetNodeID string `json:"target_node_id,omitempty" validate:"required_without=LinkID"`
	LinkID       string `json:"link_id,omitempty"`
	Responsible  string `json:"responsible,omitempty"`
}

// BulkTransitionRequest represents the request body for moving many items to one node.
type BulkTransitionRequest struct {
	ItemIDs      []string `json:"item_ids"       validate:"required,min=1,dive,required"`
	TargetNodeID string   `json:"target_node_id" validate:"required"`
}

// CreateUserRequest represents the request body for creating a user.
type CreateUserRequest struct {
	ID       string   `json:"id,omitempty"`
	Name     string   `json:"name"      validate:"required,min=1"`
	GroupIDs []string `json:"group_ids"`
}

// CreateGroupRequest represents the request body for creating a group.
type CreateGroupRequest struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name" validate:"required,min=1"`
}

// AddMemberRequest adds a user to a group.
type AddMemberRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

// ToDescription converts the request into a template description.
func (r CreateWorkflowRequest) ToDescription() *models.WorkflowDescription {
	description := &models.WorkflowDescription{
		Name:          r.Name,
		InitialNodeID: r.InitialNodeID,
		Nodes:         make([]*models.NodeDescription, 0, len(r.Nodes)),
		Links:         make([]*models.LinkDescription, 0, len(r.Links)),
	}

	for _, node := range r.Nodes {
		description.Nodes = append(description.Nodes, &models.NodeDescription{
			ID:               node.ID,
			Title:            node.Title,
			IsFinal:          node.IsFinal,
			AuthorizedUsers:  node.AuthorizedUsers,
			AuthorizedGroups: node.AuthorizedGroups,
		})
	}

	for _, link := range r.Links {
		description.Links = append(description.Links, &models.LinkDescription{
			ID:            link.ID,
			Title:         link.Title,
			InitialNodeID: link.InitialNodeID,
			FinalNodeID:   link.FinalNodeID,
			EligibleTypes: link.EligibleTypes,
		})
	}

	return description
}

func (r NodeRequest) toInput() workflow.NodeInput {
	return workflow.NodeInput{
		Title:            r.Title,
		IsFinal:          r.IsFinal,
		AuthorizedUsers:  r.AuthorizedUsers,
		AuthorizedGroups: r.AuthorizedGroups,
	}
}
