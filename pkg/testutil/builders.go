// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"context"
	"time"

	"github.com/dukex/itemflow/pkg/models"
	"github.com/dukex/itemflow/pkg/persistence"
	"github.com/google/uuid"
)

// Fixed ids of the Open/InProgress/Resolved workflow built by IssueWorkflow.
const (
	IssueWorkflowID = "issue-workflow"
	OpenNodeID      = "open"
	InProgressID    = "in-progress"
	ResolvedNodeID  = "resolved"
	StartLinkID     = "start"
	ResolveLinkID   = "resolve"
	ReassignLinkID  = "reassign"
	DevelopersGroup = "developers"
)

// CreateTestNodeDescription creates a node description with default values that can be overridden.
func CreateTestNodeDescription(overrides ...func(*models.NodeDescription)) *models.NodeDescription {
	node := &models.NodeDescription{
		ID:               uuid.NewString(),
		Title:            "Node " + uuid.NewString()[:8],
		AuthorizedGroups: []string{DevelopersGroup},
	}

	for _, override := range overrides {
		override(node)
	}

	return node
}

// CreateTestLink creates a link description between two nodes.
func CreateTestLink(from, to string, overrides ...func(*models.LinkDescription)) *models.LinkDescription {
	link := &models.LinkDescription{
		ID:            uuid.NewString(),
		Title:         from + " to " + to,
		InitialNodeID: from,
		FinalNodeID:   to,
		EligibleTypes: []models.ItemType{models.ItemTypeBug, models.ItemTypeTask},
	}

	for _, override := range overrides {
		override(link)
	}

	return link
}

// CreateTestItem creates a CREATED item of type bug.
func CreateTestItem(overrides ...func(*models.Item)) *models.Item {
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	item := &models.Item{
		ID:         uuid.NewString(),
		ProjectID:  "project-1",
		WorkflowID: IssueWorkflowID,
		Type:       models.ItemTypeBug,
		Title:      "Crash on save",
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	for _, override := range overrides {
		override(item)
	}

	return item
}

// WithTitle sets the node title.
func WithTitle(title string) func(*models.NodeDescription) {
	return func(n *models.NodeDescription) {
		n.Title = title
	}
}

// WithFinal marks the node as final.
func WithFinal() func(*models.NodeDescription) {
	return func(n *models.NodeDescription) {
		n.IsFinal = true
	}
}

// WithAuthorizedUsers replaces the node's authorized users.
func WithAuthorizedUsers(users ...string) func(*models.NodeDescription) {
	return func(n *models.NodeDescription) {
		n.AuthorizedUsers = users
	}
}

// WithEligibleTypes replaces the link's eligible item types.
func WithEligibleTypes(types ...models.ItemType) func(*models.LinkDescription) {
	return func(l *models.LinkDescription) {
		l.EligibleTypes = types
	}
}

// WithItemType sets the item type.
func WithItemType(itemType models.ItemType) func(*models.Item) {
	return func(i *models.Item) {
		i.Type = itemType
	}
}

// AtNode parks the item at a node with a single instance and version 2.
func AtNode(nodeID string) func(*models.Item) {
	return func(i *models.Item) {
		i.CurrentNode = &models.WorkflowNode{
			ID:                uuid.NewString(),
			ItemID:            i.ID,
			NodeDescriptionID: nodeID,
			Responsible:       "alice",
			CreatedAt:         i.CreatedAt,
		}
		i.Version = 2
	}
}

// IssueWorkflow builds Open -> InProgress -> Resolved with a reassign
// self-link on InProgress, every link eligible for bugs and tasks. Every node
// authorizes the developers group.
func IssueWorkflow() *models.WorkflowDescription {
	now := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

	return &models.WorkflowDescription{
		ID:            IssueWorkflowID,
		Name:          "Issue workflow",
		ProjectID:     "project-1",
		Version:       1,
		InitialNodeID: OpenNodeID,
		Nodes: []*models.NodeDescription{
			CreateTestNodeDescription(func(n *models.NodeDescription) { n.ID = OpenNodeID; n.Title = "Open" }),
			CreateTestNodeDescription(func(n *models.NodeDescription) { n.ID = InProgressID; n.Title = "In Progress" }),
			CreateTestNodeDescription(func(n *models.NodeDescription) { n.ID = ResolvedNodeID; n.Title = "Resolved" }, WithFinal()),
		},
		Links: []*models.LinkDescription{
			CreateTestLink(OpenNodeID, InProgressID, func(l *models.LinkDescription) { l.ID = StartLinkID; l.Title = "Start" }),
			CreateTestLink(InProgressID, ResolvedNodeID, func(l *models.LinkDescription) { l.ID = ResolveLinkID; l.Title = "Resolve" }),
			CreateTestLink(InProgressID, InProgressID, func(l *models.LinkDescription) { l.ID = ReassignLinkID; l.Title = "Reassign" }),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Developer returns a user in the developers group.
func Developer(id string) *models.User {
	return &models.User{ID: id, Name: id, GroupIDs: []string{DevelopersGroup}}
}

// Outsider returns a user in no group.
func Outsider(id string) *models.User {
	return &models.User{ID: id, Name: id}
}

// SeedIssueWorkflow stores the project, IssueWorkflow, the developers group
// and the given items.
func SeedIssueWorkflow(ctx context.Context, p persistence.Persistence, items ...*models.Item) error {
	if err := p.ProjectRepository().Save(ctx, &models.Project{
		ID:         "project-1",
		Name:       "Tracker",
		WorkflowID: IssueWorkflowID,
		CreatedAt:  time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC),
	}); err != nil {
		return err
	}

	if err := p.PrincipalRepository().SaveGroup(ctx, &models.Group{ID: DevelopersGroup, Name: "Developers"}); err != nil {
		return err
	}

	if err := p.WorkflowRepository().Save(ctx, IssueWorkflow()); err != nil {
		return err
	}

	for _, item := range items {
		if err := p.ItemRepository().Create(ctx, item); err != nil {
			return err
		}
	}

	return nil
}
