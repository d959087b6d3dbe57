// Package persistence provides data storage abstraction layer for workflow graphs and items.
package persistence

import (
	"context"

	"github.com/dukex/itemflow/pkg/models"
)

// Persistence is the graph store. Implementations must make every call made
// through the Persistence handed to a Transaction callback commit or roll back
// as one unit.
type Persistence interface {
	HealthCheck(ctx context.Context) error

	WorkflowRepository() WorkflowRepository
	NodeRepository() NodeRepository
	LinkRepository() LinkRepository
	ItemRepository() ItemRepository
	ProjectRepository() ProjectRepository
	PrincipalRepository() PrincipalRepository

	// Transaction runs fn against a transaction-scoped Persistence. A non-nil
	// error from fn discards every write made inside it.
	Transaction(ctx context.Context, fn func(ctx context.Context, tx Persistence) error) error

	Close(ctx context.Context) error
}

// ListWorkflowsOptions filters workflow description listings.
type ListWorkflowsOptions struct {
	// TemplatesOnly restricts the listing to system templates.
	TemplatesOnly bool
	ProjectID     string
}

// WorkflowRepository loads and stores whole workflow descriptions (nodes and links included).
type WorkflowRepository interface {
	List(ctx context.Context, opts ListWorkflowsOptions) ([]*models.WorkflowDescription, error)
	// GetByID returns ErrWorkflowNotFound when the description does not exist.
	// Node reference counts are populated on load.
	GetByID(ctx context.Context, id string) (*models.WorkflowDescription, error)
	// Save stores the description with all its nodes and links; nodes and
	// links missing from it are removed.
	Save(ctx context.Context, workflow *models.WorkflowDescription) error
	// UpdateAttributes stores name, initial node, version and timestamps only.
	UpdateAttributes(ctx context.Context, workflow *models.WorkflowDescription) error
	Delete(ctx context.Context, id string) error
}

// NodeRepository stores individual node descriptions of a workflow.
type NodeRepository interface {
	GetNode(ctx context.Context, workflowID, nodeID string) (*models.NodeDescription, error)
	SaveNode(ctx context.Context, workflowID string, node *models.NodeDescription) error
	DeleteNode(ctx context.Context, workflowID, nodeID string) error
}

// LinkRepository stores individual link descriptions of a workflow.
type LinkRepository interface {
	GetLink(ctx context.Context, workflowID, linkID string) (*models.LinkDescription, error)
	SaveLink(ctx context.Context, workflowID string, link *models.LinkDescription) error
	DeleteLink(ctx context.Context, workflowID, linkID string) error
	// FindLinksFrom returns the links whose initial node is nodeID, in insertion order.
	FindLinksFrom(ctx context.Context, workflowID, nodeID string) ([]*models.LinkDescription, error)
}

// ItemRepository stores items together with their node instances.
type ItemRepository interface {
	// GetByID returns ErrItemNotFound when the item does not exist.
	GetByID(ctx context.Context, id string) (*models.Item, error)
	ListByProject(ctx context.Context, projectID string) ([]*models.Item, error)
	// Create inserts a new item. Its version is stored as given.
	Create(ctx context.Context, item *models.Item) error
	// Update stores item only if the stored version equals expectedVersion,
	// otherwise it returns ErrVersionConflict and changes nothing.
	Update(ctx context.Context, item *models.Item, expectedVersion int64) error
	Delete(ctx context.Context, id string) error
	// FindHistoricalNodesReferencing returns every node instance, current or
	// historical, that points at the node description.
	FindHistoricalNodesReferencing(ctx context.Context, nodeDescriptionID string) ([]*models.WorkflowNode, error)
}

// ProjectRepository stores projects.
type ProjectRepository interface {
	GetByID(ctx context.Context, id string) (*models.Project, error)
	List(ctx context.Context) ([]*models.Project, error)
	Save(ctx context.Context, project *models.Project) error
}

// PrincipalRepository stores users and groups.
type PrincipalRepository interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	SaveUser(ctx context.Context, user *models.User) error
	GetGroup(ctx context.Context, id string) (*models.Group, error)
	SaveGroup(ctx context.Context, group *models.Group) error
}
