package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dukex/itemflow/pkg/models"
	"github.com/dukex/itemflow/pkg/persistence"
)

// itemRepository handles items and their node instances.
type itemRepository struct {
	p *Persistence
}

const itemColumns = `id, project_id, workflow_id, type, title, version, created_at, updated_at`

func (r *itemRepository) GetByID(ctx context.Context, id string) (*models.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE id = $1`

	item, err := r.scanItem(r.p.querier().QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &persistence.ItemError{Op: "GetByID", ItemID: id, Err: persistence.ErrItemNotFound}
		}

		return nil, fmt.Errorf("failed to scan item: %w", err)
	}

	if err := r.loadInstances(ctx, item); err != nil {
		return nil, err
	}

	return item, nil
}

func (r *itemRepository) ListByProject(ctx context.Context, projectID string) ([]*models.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE project_id = $1 ORDER BY created_at, id`

	rows, err := r.p.querier().QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}

	defer r.p.closeRows(ctx, rows)

	items := make([]*models.Item, 0)

	for rows.Next() {
		item, err := r.scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}

		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating items: %w", err)
	}

	for _, item := range items {
		if err := r.loadInstances(ctx, item); err != nil {
			return nil, err
		}
	}

	return items, nil
}

func (r *itemRepository) Create(ctx context.Context, item *models.Item) error {
	return r.p.atomically(ctx, func(tx *Persistence) error {
		query := `
			INSERT INTO items (id, project_id, workflow_id, type, title, version, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`

		_, err := tx.querier().ExecContext(ctx, query,
			item.ID,
			item.ProjectID,
			item.WorkflowID,
			item.Type,
			item.Title,
			item.Version,
			item.CreatedAt,
			item.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert item %s: %w", item.ID, err)
		}

		return (&itemRepository{p: tx}).saveInstances(ctx, item)
	})
}

// Update is a conditional write: the row only changes when its stored version
// still equals expectedVersion.
func (r *itemRepository) Update(ctx context.Context, item *models.Item, expectedVersion int64) error {
	return r.p.atomically(ctx, func(tx *Persistence) error {
		query := `
			UPDATE items
			SET type = $3, title = $4, version = $5, updated_at = $6
			WHERE id = $1 AND version = $2
		`

		result, err := tx.querier().ExecContext(ctx, query,
			item.ID,
			expectedVersion,
			item.Type,
			item.Title,
			item.Version,
			item.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to update item %s: %w", item.ID, err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}

		if rowsAffected == 0 {
			return r.missOrConflict(ctx, tx, item.ID)
		}

		repo := &itemRepository{p: tx}

		_, err = tx.querier().ExecContext(ctx, `DELETE FROM node_instances WHERE item_id = $1`, item.ID)
		if err != nil {
			return fmt.Errorf("failed to delete node instances of item %s: %w", item.ID, err)
		}

		return repo.saveInstances(ctx, item)
	})
}

func (r *itemRepository) missOrConflict(ctx context.Context, tx *Persistence, id string) error {
	var exists bool

	err := tx.querier().QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM items WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check item %s: %w", id, err)
	}

	if !exists {
		return &persistence.ItemError{Op: "Update", ItemID: id, Err: persistence.ErrItemNotFound}
	}

	return &persistence.ItemError{Op: "Update", ItemID: id, Err: persistence.ErrVersionConflict}
}

// Delete removes the item; its node instances cascade.
func (r *itemRepository) Delete(ctx context.Context, id string) error {
	_, err := r.p.querier().ExecContext(ctx, `DELETE FROM items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete item %s: %w", id, err)
	}

	return nil
}

func (r *itemRepository) FindHistoricalNodesReferencing(ctx context.Context, nodeDescriptionID string) ([]*models.WorkflowNode, error) {
	query := `
		SELECT id, item_id, node_description_id, responsible, is_current, created_at
		FROM node_instances
		WHERE node_description_id = $1
		ORDER BY item_id, position
	`

	rows, err := r.p.querier().QueryContext(ctx, query, nodeDescriptionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query node instances: %w", err)
	}

	defer r.p.closeRows(ctx, rows)

	var instances []*models.WorkflowNode

	for rows.Next() {
		instance, _, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node instance: %w", err)
		}

		instances = append(instances, instance)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating node instances: %w", err)
	}

	return instances, nil
}

func (r *itemRepository) loadInstances(ctx context.Context, item *models.Item) error {
	query := `
		SELECT id, item_id, node_description_id, responsible, is_current, created_at
		FROM node_instances
		WHERE item_id = $1
		ORDER BY position
	`

	rows, err := r.p.querier().QueryContext(ctx, query, item.ID)
	if err != nil {
		return fmt.Errorf("failed to query node instances: %w", err)
	}

	defer r.p.closeRows(ctx, rows)

	item.History = make([]*models.WorkflowNode, 0)

	for rows.Next() {
		instance, current, err := scanInstance(rows)
		if err != nil {
			return fmt.Errorf("failed to scan node instance: %w", err)
		}

		if current {
			item.CurrentNode = instance
		} else {
			item.History = append(item.History, instance)
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating node instances: %w", err)
	}

	return nil
}

func (r *itemRepository) saveInstances(ctx context.Context, item *models.Item) error {
	query := `
		INSERT INTO node_instances (id, item_id, node_description_id, responsible, is_current, position, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	for position, instance := range item.Instances() {
		current := item.CurrentNode != nil && position == 0

		_, err := r.p.querier().ExecContext(ctx, query,
			instance.ID,
			item.ID,
			instance.NodeDescriptionID,
			nullable(instance.Responsible),
			current,
			position,
			instance.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to save node instance %s: %w", instance.ID, err)
		}
	}

	return nil
}

func (r *itemRepository) scanItem(row scanner) (*models.Item, error) {
	var item models.Item

	err := row.Scan(
		&item.ID,
		&item.ProjectID,
		&item.WorkflowID,
		&item.Type,
		&item.Title,
		&item.Version,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &item, nil
}

func scanInstance(row scanner) (*models.WorkflowNode, bool, error) {
	var (
		instance    models.WorkflowNode
		responsible sql.NullString
		current     bool
	)

	err := row.Scan(&instance.ID, &instance.ItemID, &instance.NodeDescriptionID, &responsible, &current, &instance.CreatedAt)
	if err != nil {
		return nil, false, err
	}

	instance.Responsible = responsible.String

	return &instance, current, nil
}
