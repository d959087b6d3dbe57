package services

import (
	"context"
	"fmt"

	"github.com/dukex/itemflow/pkg/events"
	"github.com/dukex/itemflow/pkg/models"
	"github.com/dukex/itemflow/pkg/otelhelper"
	"github.com/dukex/itemflow/pkg/persistence"
	"github.com/dukex/itemflow/pkg/workflow"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// Workflow manages workflow descriptions and their structural edits.
type Workflow struct {
	persistence persistence.Persistence
	settings    settings
	notifier    notifier
}

// NewWorkflow creates a new workflow service.
func NewWorkflow(persistence persistence.Persistence, opts ...Option) *Workflow {
	s := newSettings("workflow_service", opts)

	return &Workflow{
		persistence: persistence,
		settings:    s,
		notifier:    s.notifier(),
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// ListWorkflowsRequest contains options for listing workflow descriptions.
type ListWorkflowsRequest struct {
	TemplatesOnly bool
	ProjectID     string
}

func (w *Workflow) List(ctx context.Context, req ListWorkflowsRequest) ([]*models.WorkflowDescription, error) {
	workflows, err := w.persistence.WorkflowRepository().List(ctx, persistence.ListWorkflowsOptions{
		TemplatesOnly: req.TemplatesOnly,
		ProjectID:     req.ProjectID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	return workflows, nil
}

func (w *Workflow) FetchByID(ctx context.Context, id string) (*models.WorkflowDescription, error) {
	return w.persistence.WorkflowRepository().GetByID(ctx, id)
}

// CreateTemplate stores a new system template. Nodes and links given with the
// description are validated as if they had been added one by one.
func (w *Workflow) CreateTemplate(ctx context.Context, description *models.WorkflowDescription) (*models.WorkflowDescription, error) {
	if description == nil {
		return nil, ErrWorkflowNil
	}

	if description.ID == "" {
		description.ID = uuid.NewString()
	}

	description.ProjectID = ""

	template, err := w.prepareTemplate(description)
	if err != nil {
		return nil, err
	}

	err = w.persistence.Transaction(ctx, func(ctx context.Context, tx persistence.Persistence) error {
		return tx.WorkflowRepository().Save(ctx, template)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save workflow template: %w", err)
	}

	w.settings.logger.InfoContext(ctx, "Workflow template created", "workflow_id", template.ID, "name", template.Name)

	return w.persistence.WorkflowRepository().GetByID(ctx, template.ID)
}

// ImportTemplates stores the given templates, replacing templates with the
// same id. Either every template is stored or none is.
func (w *Workflow) ImportTemplates(ctx context.Context, descriptions []*models.WorkflowDescription) error {
	templates := make([]*models.WorkflowDescription, 0, len(descriptions))

	for _, description := range descriptions {
		if description == nil || description.ID == "" {
			return NewValidationError("ImportTemplates", "invalid_template", "template id is required", ErrInvalidRequest)
		}

		description.ProjectID = ""

		template, err := w.prepareTemplate(description)
		if err != nil {
			return err
		}

		templates = append(templates, template)
	}

	err := w.persistence.Transaction(ctx, func(ctx context.Context, tx persistence.Persistence) error {
		for _, template := range templates {
			existing, err := tx.WorkflowRepository().GetByID(ctx, template.ID)

			switch {
			case err == nil && !existing.IsTemplate():
				return &ServiceError{Op: "ImportTemplates", Code: "workflow_in_use", Message: "workflow " + template.ID + " belongs to a project", Err: ErrWorkflowInUse}
			case err == nil:
				template.CreatedAt = existing.CreatedAt
				template.Version = existing.Version + 1
			case !persistence.IsWorkflowNotFound(err):
				return err
			}

			if err := tx.WorkflowRepository().Save(ctx, template); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to import workflow templates: %w", err)
	}

	w.settings.logger.InfoContext(ctx, "Workflow templates imported", "count", len(templates))

	return nil
}

// prepareTemplate rebuilds the description through a Graph so every structural
// rule applies to templates too.
func (w *Workflow) prepareTemplate(description *models.WorkflowDescription) (*models.WorkflowDescription, error) {
	if description.Name == "" {
		return nil, NewValidationError("CreateTemplate", "invalid_name", "workflow name is required", ErrInvalidRequest)
	}

	now := w.settings.now().UTC()
	template := &models.WorkflowDescription{
		ID:        description.ID,
		Name:      description.Name,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	graph, err := workflow.NewGraph(template)
	if err != nil {
		return nil, err
	}

	for _, node := range description.Nodes {
		if err := graph.AddNode(node); err != nil {
			return nil, err
		}
	}

	if description.InitialNodeID != "" {
		if err := graph.SetInitialNode(description.InitialNodeID); err != nil {
			return nil, err
		}
	}

	for _, link := range description.Links {
		if err := graph.AddLink(link); err != nil {
			return nil, err
		}
	}

	return graph.Description(), nil
}

// Delete removes a system template. Project workflows live as long as their project.
func (w *Workflow) Delete(ctx context.Context, id string) error {
	return w.persistence.Transaction(ctx, func(ctx context.Context, tx persistence.Persistence) error {
		existing, err := tx.WorkflowRepository().GetByID(ctx, id)
		if err != nil {
			return err
		}

		if !existing.IsTemplate() {
			return &ServiceError{Op: "Delete", Code: "workflow_in_use", Message: "workflow belongs to project " + existing.ProjectID, Err: ErrWorkflowInUse}
		}

		return tx.WorkflowRepository().Delete(ctx, id)
	})
}

// edit runs fn with an editor bound to a fresh transaction.
func (w *Workflow) edit(ctx context.Context, fn func(ctx context.Context, editor *workflow.Editor) error) error {
	return w.persistence.Transaction(ctx, func(ctx context.Context, tx persistence.Persistence) error {
		return fn(ctx, workflow.NewEditor(tx, w.settings.logger, workflow.WithEditorClock(w.settings.now)))
	})
}

func (w *Workflow) AddNode(ctx context.Context, workflowID string, input workflow.NodeInput) (*models.NodeDescription, error) {
	var node *models.NodeDescription

	err := w.edit(ctx, func(ctx context.Context, editor *workflow.Editor) error {
		var err error
		node, err = editor.AddNodeDescription(ctx, workflowID, input)

		return err
	})

	return node, err
}

func (w *Workflow) EditNode(ctx context.Context, workflowID, nodeID string, input workflow.NodeInput) (*models.NodeDescription, error) {
	var node *models.NodeDescription

	err := w.edit(ctx, func(ctx context.Context, editor *workflow.Editor) error {
		var err error
		node, err = editor.EditNodeDescription(ctx, workflowID, nodeID, input)

		return err
	})

	return node, err
}

func (w *Workflow) SetInitialNode(ctx context.Context, workflowID, nodeID string) error {
	return w.edit(ctx, func(ctx context.Context, editor *workflow.Editor) error {
		return editor.SetInitialNode(ctx, workflowID, nodeID)
	})
}

func (w *Workflow) AddLink(ctx context.Context, workflowID string, input workflow.LinkInput) (*models.LinkDescription, error) {
	var link *models.LinkDescription

	err := w.edit(ctx, func(ctx context.Context, editor *workflow.Editor) error {
		var err error
		link, err = editor.AddLinkDescription(ctx, workflowID, input)

		return err
	})

	return link, err
}

func (w *Workflow) EditLink(ctx context.Context, workflowID, linkID string, input workflow.LinkInput) (*models.LinkDescription, error) {
	var link *models.LinkDescription

	err := w.edit(ctx, func(ctx context.Context, editor *workflow.Editor) error {
		var err error
		link, err = editor.EditLinkDescription(ctx, workflowID, linkID, input)

		return err
	})

	return link, err
}

func (w *Workflow) DeleteLinks(ctx context.Context, workflowID string, linkIDs []string) error {
	if len(linkIDs) == 0 {
		return NewValidationError("DeleteLinks", "invalid_request", "at least one link id is required", ErrInvalidRequest)
	}

	return w.edit(ctx, func(ctx context.Context, editor *workflow.Editor) error {
		return editor.DeleteLinkDescriptions(ctx, workflowID, linkIDs)
	})
}

// DeleteNodes removes nodes with their cascade in one transaction and then
// announces what was removed.
func (w *Workflow) DeleteNodes(ctx context.Context, workflowID string, nodeIDs []string) (*workflow.DeletionResult, error) {
	ctx, span := otelhelper.StartSpan(ctx, w.settings.tracer, "workflow.delete_nodes",
		attribute.String(otelhelper.WorkflowIDKey, workflowID),
		attribute.StringSlice(otelhelper.NodeIDKey, nodeIDs),
	)
	defer span.End()

	if len(nodeIDs) == 0 {
		return nil, NewValidationError("DeleteNodes", "invalid_request", "at least one node id is required", ErrInvalidRequest)
	}

	var result *workflow.DeletionResult

	err := w.edit(ctx, func(ctx context.Context, editor *workflow.Editor) error {
		var err error
		result, err = editor.DeleteNodeDescriptions(ctx, workflowID, nodeIDs)

		return err
	})
	if err != nil {
		otelhelper.SetError(span, err, attribute.String(otelhelper.WorkflowIDKey, workflowID))

		return nil, err
	}

	if w.settings.metrics != nil {
		w.settings.metrics.RecordNodeDeletion(len(result.RemovedNodeIDs), len(result.ResetItemIDs))
	}

	w.notifier.publish(ctx, workflowID, events.WorkflowNodesDeleted{
		BaseEvent:        events.NewBaseEvent(events.WorkflowNodesDeletedEvent, workflowID),
		NodeIDs:          result.RemovedNodeIDs,
		LinkIDs:          result.RemovedLinkIDs,
		RemovedInstances: result.RemovedInstances,
		ResetItemIDs:     result.ResetItemIDs,
	})

	return result, nil
}
