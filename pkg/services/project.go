package services

import (
	"context"
	"fmt"

	"github.com/dukex/itemflow/pkg/events"
	"github.com/dukex/itemflow/pkg/models"
	"github.com/dukex/itemflow/pkg/persistence"
	"github.com/dukex/itemflow/pkg/workflow"
	"github.com/google/uuid"
)

// Project creates projects, each with a private clone of a system template.
type Project struct {
	persistence persistence.Persistence
	settings    settings
	notifier    notifier
}

func NewProject(persistence persistence.Persistence, opts ...Option) *Project {
	s := newSettings("project_service", opts)

	return &Project{
		persistence: persistence,
		settings:    s,
		notifier:    s.notifier(),
	}
}

type CreateProjectRequest struct {
	Name       string
	TemplateID string
}

// Create clones the template into a new workflow owned by the project and
// stores both in one transaction.
func (p *Project) Create(ctx context.Context, req CreateProjectRequest) (*models.Project, error) {
	if req.Name == "" {
		return nil, NewValidationError("Create", "invalid_name", "project name is required", ErrInvalidRequest)
	}

	if req.TemplateID == "" {
		return nil, NewValidationError("Create", "invalid_template", "template id is required", ErrInvalidRequest)
	}

	now := p.settings.now().UTC()
	project := &models.Project{
		ID:        uuid.NewString(),
		Name:      req.Name,
		CreatedAt: now,
	}

	err := p.persistence.Transaction(ctx, func(ctx context.Context, tx persistence.Persistence) error {
		template, err := tx.WorkflowRepository().GetByID(ctx, req.TemplateID)
		if err != nil {
			return err
		}

		if !template.IsTemplate() {
			return &ServiceError{Op: "Create", Code: "not_a_template", Message: "workflow " + template.ID + " is not a system template", Err: ErrNotATemplate}
		}

		editor := workflow.NewEditor(tx, p.settings.logger, workflow.WithEditorClock(p.settings.now))

		clone, err := editor.CloneWorkflow(template, project.ID)
		if err != nil {
			return err
		}

		if err := tx.WorkflowRepository().Save(ctx, clone); err != nil {
			return fmt.Errorf("failed to save project workflow: %w", err)
		}

		project.WorkflowID = clone.ID

		return tx.ProjectRepository().Save(ctx, project)
	})
	if err != nil {
		return nil, err
	}

	p.settings.logger.InfoContext(ctx, "Project created", "project_id", project.ID, "workflow_id", project.WorkflowID, "template_id", req.TemplateID)

	p.notifier.publish(ctx, project.ID, events.ProjectCreated{
		BaseEvent:  events.NewBaseEvent(events.ProjectCreatedEvent, project.WorkflowID),
		ProjectID:  project.ID,
		Name:       project.Name,
		TemplateID: req.TemplateID,
	})

	return project, nil
}

func (p *Project) List(ctx context.Context) ([]*models.Project, error) {
	projects, err := p.persistence.ProjectRepository().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}

	return projects, nil
}

func (p *Project) FetchByID(ctx context.Context, id string) (*models.Project, error) {
	return p.persistence.ProjectRepository().GetByID(ctx, id)
}
