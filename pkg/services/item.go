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

// Item manages items outside of workflow movement.
type Item struct {
	persistence persistence.Persistence
	settings    settings
	notifier    notifier
}

func NewItem(persistence persistence.Persistence, opts ...Option) *Item {
	s := newSettings("item_service", opts)

	return &Item{
		persistence: persistence,
		settings:    s,
		notifier:    s.notifier(),
	}
}

type CreateItemRequest struct {
	ProjectID string
	Type      models.ItemType
	Title     string
}

// Create stores a new item in the CREATED state of its project's workflow.
func (i *Item) Create(ctx context.Context, req CreateItemRequest) (*models.Item, error) {
	if req.ProjectID == "" || req.Type == "" || req.Title == "" {
		return nil, NewValidationError("Create", "invalid_item", "project, type and title are required", ErrInvalidRequest)
	}

	now := i.settings.now().UTC()

	var item *models.Item

	err := i.persistence.Transaction(ctx, func(ctx context.Context, tx persistence.Persistence) error {
		project, err := tx.ProjectRepository().GetByID(ctx, req.ProjectID)
		if err != nil {
			return err
		}

		item = &models.Item{
			ID:         uuid.NewString(),
			ProjectID:  project.ID,
			WorkflowID: project.WorkflowID,
			Type:       req.Type,
			Title:      req.Title,
			History:    []*models.WorkflowNode{},
			Version:    1,
			CreatedAt:  now,
			UpdatedAt:  now,
		}

		return tx.ItemRepository().Create(ctx, item)
	})
	if err != nil {
		return nil, err
	}

	i.notifier.publish(ctx, item.ID, events.ItemCreated{
		BaseEvent: events.NewBaseEvent(events.ItemCreatedEvent, item.WorkflowID),
		ItemID:    item.ID,
		ProjectID: item.ProjectID,
		ItemType:  string(item.Type),
		Title:     item.Title,
	})

	return item, nil
}

func (i *Item) FetchByID(ctx context.Context, id string) (*models.Item, error) {
	return i.persistence.ItemRepository().GetByID(ctx, id)
}

// ListByProject returns the project's items; an unknown project is not found.
func (i *Item) ListByProject(ctx context.Context, projectID string) ([]*models.Item, error) {
	if _, err := i.persistence.ProjectRepository().GetByID(ctx, projectID); err != nil {
		return nil, err
	}

	items, err := i.persistence.ItemRepository().ListByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}

	return items, nil
}

// UpdateTitle renames the item if version is still the stored one.
func (i *Item) UpdateTitle(ctx context.Context, id string, version int64, title string) (*models.Item, error) {
	if title == "" {
		return nil, NewValidationError("UpdateTitle", "invalid_title", "title is required", ErrInvalidRequest)
	}

	var item *models.Item

	err := i.persistence.Transaction(ctx, func(ctx context.Context, tx persistence.Persistence) error {
		var err error

		item, err = tx.ItemRepository().GetByID(ctx, id)
		if err != nil {
			return err
		}

		if item.Version != version {
			return &workflow.TransitionError{Op: "UpdateTitle", ItemID: id, Err: workflow.ErrConcurrentModification}
		}

		item.Title = title
		item.Version++
		item.UpdatedAt = i.settings.now().UTC()

		if err := tx.ItemRepository().Update(ctx, item, version); err != nil {
			if persistence.IsVersionConflict(err) {
				return &workflow.TransitionError{Op: "UpdateTitle", ItemID: id, Err: workflow.ErrConcurrentModification}
			}

			return err
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return item, nil
}

// Delete removes the item together with its node instances.
func (i *Item) Delete(ctx context.Context, id string) error {
	return i.persistence.Transaction(ctx, func(ctx context.Context, tx persistence.Persistence) error {
		if _, err := tx.ItemRepository().GetByID(ctx, id); err != nil {
			return err
		}

		return tx.ItemRepository().Delete(ctx, id)
	})
}

// NextNodes lists where the item could move next, sorted by sortKey
// ("title", "reference_count" or insertion order when empty).
func (i *Item) NextNodes(ctx context.Context, id, sortKey string) ([]*models.NodeDescription, error) {
	key, err := workflow.ParseSortKey(sortKey)
	if err != nil {
		return nil, NewValidationError("NextNodes", "invalid_sort_key", err.Error(), ErrInvalidSortKey)
	}

	item, err := i.persistence.ItemRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	engine := workflow.NewEngine(i.persistence, i.settings.logger)

	nodes, err := engine.FindNextNodes(ctx, item, key)
	if err != nil {
		return nil, err
	}

	if nodes == nil {
		nodes = []*models.NodeDescription{}
	}

	return nodes, nil
}
