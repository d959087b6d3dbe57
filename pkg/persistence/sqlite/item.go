package sqlite

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/itemflow/pkg/models"
	"github.com/dukex/itemflow/pkg/persistence"
	"gorm.io/gorm"
)

type itemRepository struct {
	p *Persistence
}

func (r *itemRepository) GetByID(ctx context.Context, id string) (*models.Item, error) {
	var row itemModel

	err := r.p.conn(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &persistence.ItemError{Op: "GetByID", ItemID: id, Err: persistence.ErrItemNotFound}
		}

		return nil, fmt.Errorf("failed to load item: %w", err)
	}

	item := toItem(&row)
	if err := r.loadInstances(ctx, item); err != nil {
		return nil, err
	}

	return item, nil
}

func (r *itemRepository) ListByProject(ctx context.Context, projectID string) ([]*models.Item, error) {
	var rows []itemModel

	if err := r.p.conn(ctx).Where("project_id = ?", projectID).Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}

	items := make([]*models.Item, 0, len(rows))

	for i := range rows {
		item := toItem(&rows[i])
		if err := r.loadInstances(ctx, item); err != nil {
			return nil, err
		}

		items = append(items, item)
	}

	return items, nil
}

func (r *itemRepository) Create(ctx context.Context, item *models.Item) error {
	return r.p.atomically(ctx, func(tx *Persistence) error {
		row := itemModel{
			ID:         item.ID,
			ProjectID:  item.ProjectID,
			WorkflowID: item.WorkflowID,
			Type:       string(item.Type),
			Title:      item.Title,
			Version:    item.Version,
			CreatedAt:  item.CreatedAt,
			UpdatedAt:  item.UpdatedAt,
		}

		if err := tx.conn(ctx).Create(&row).Error; err != nil {
			return fmt.Errorf("failed to insert item %s: %w", item.ID, err)
		}

		return saveInstances(ctx, tx, item)
	})
}

// Update writes only when the stored version still equals expectedVersion.
func (r *itemRepository) Update(ctx context.Context, item *models.Item, expectedVersion int64) error {
	return r.p.atomically(ctx, func(tx *Persistence) error {
		result := tx.conn(ctx).
			Model(&itemModel{}).
			Where("id = ? AND version = ?", item.ID, expectedVersion).
			Updates(map[string]any{
				"type":       string(item.Type),
				"title":      item.Title,
				"version":    item.Version,
				"updated_at": item.UpdatedAt,
			})
		if result.Error != nil {
			return fmt.Errorf("failed to update item %s: %w", item.ID, result.Error)
		}

		if result.RowsAffected == 0 {
			var count int64
			if err := tx.conn(ctx).Model(&itemModel{}).Where("id = ?", item.ID).Count(&count).Error; err != nil {
				return fmt.Errorf("failed to check item %s: %w", item.ID, err)
			}

			if count == 0 {
				return &persistence.ItemError{Op: "Update", ItemID: item.ID, Err: persistence.ErrItemNotFound}
			}

			return &persistence.ItemError{Op: "Update", ItemID: item.ID, Err: persistence.ErrVersionConflict}
		}

		if err := tx.conn(ctx).Where("item_id = ?", item.ID).Delete(&instanceModel{}).Error; err != nil {
			return fmt.Errorf("failed to delete node instances of item %s: %w", item.ID, err)
		}

		return saveInstances(ctx, tx, item)
	})
}

func (r *itemRepository) Delete(ctx context.Context, id string) error {
	return r.p.atomically(ctx, func(tx *Persistence) error {
		if err := tx.conn(ctx).Where("item_id = ?", id).Delete(&instanceModel{}).Error; err != nil {
			return fmt.Errorf("failed to delete node instances of item %s: %w", id, err)
		}

		if err := tx.conn(ctx).Where("id = ?", id).Delete(&itemModel{}).Error; err != nil {
			return fmt.Errorf("failed to delete item %s: %w", id, err)
		}

		return nil
	})
}

func (r *itemRepository) FindHistoricalNodesReferencing(ctx context.Context, nodeDescriptionID string) ([]*models.WorkflowNode, error) {
	var rows []instanceModel

	err := r.p.conn(ctx).
		Where("node_description_id = ?", nodeDescriptionID).
		Order("item_id, position").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query node instances: %w", err)
	}

	instances := make([]*models.WorkflowNode, 0, len(rows))
	for i := range rows {
		instances = append(instances, toInstance(&rows[i]))
	}

	return instances, nil
}

func (r *itemRepository) loadInstances(ctx context.Context, item *models.Item) error {
	var rows []instanceModel

	if err := r.p.conn(ctx).Where("item_id = ?", item.ID).Order("position").Find(&rows).Error; err != nil {
		return fmt.Errorf("failed to load node instances: %w", err)
	}

	for i := range rows {
		if rows[i].IsCurrent {
			item.CurrentNode = toInstance(&rows[i])
		} else {
			item.History = append(item.History, toInstance(&rows[i]))
		}
	}

	return nil
}

func saveInstances(ctx context.Context, tx *Persistence, item *models.Item) error {
	instances := item.Instances()
	if len(instances) == 0 {
		return nil
	}

	rows := make([]instanceModel, 0, len(instances))

	for position, instance := range instances {
		rows = append(rows, instanceModel{
			ID:                instance.ID,
			ItemID:            item.ID,
			NodeDescriptionID: instance.NodeDescriptionID,
			Responsible:       instance.Responsible,
			IsCurrent:         item.CurrentNode != nil && position == 0,
			Position:          position,
			CreatedAt:         instance.CreatedAt,
		})
	}

	if err := tx.conn(ctx).Create(&rows).Error; err != nil {
		return fmt.Errorf("failed to save node instances of item %s: %w", item.ID, err)
	}

	return nil
}
