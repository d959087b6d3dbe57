package file

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/dukex/itemflow/pkg/models"
	"github.com/dukex/itemflow/pkg/persistence"
)

// itemRepository stores one JSON document per item, node instances embedded.
type itemRepository struct {
	docs documents
	p    *Persistence
}

func (ir *itemRepository) GetByID(_ context.Context, id string) (*models.Item, error) {
	item, err := load[models.Item](ir.docs, kindItems, id)
	if err != nil {
		if isNotExist(err) {
			return nil, &persistence.ItemError{Op: "GetByID", ItemID: id, Err: persistence.ErrItemNotFound}
		}

		return nil, fmt.Errorf("failed to fetch item %s: %w", id, err)
	}

	return item, nil
}

func (ir *itemRepository) ListByProject(_ context.Context, projectID string) ([]*models.Item, error) {
	all, err := loadAll[models.Item](ir.docs, kindItems)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}

	items := slices.DeleteFunc(all, func(item *models.Item) bool {
		return item.ProjectID != projectID
	})

	slices.SortFunc(items, func(a, b *models.Item) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}

		return strings.Compare(a.ID, b.ID)
	})

	return items, nil
}

func (ir *itemRepository) Create(_ context.Context, item *models.Item) error {
	return store(ir.docs, kindItems, item.ID, item)
}

// Update compares and writes under the transaction lock.
func (ir *itemRepository) Update(ctx context.Context, item *models.Item, expectedVersion int64) error {
	return ir.p.atomically(ctx, func(tx *Persistence) error {
		stored, err := (&itemRepository{docs: tx.docs, p: tx}).GetByID(ctx, item.ID)
		if err != nil {
			return err
		}

		if stored.Version != expectedVersion {
			return &persistence.ItemError{Op: "Update", ItemID: item.ID, Err: persistence.ErrVersionConflict}
		}

		return store(tx.docs, kindItems, item.ID, item)
	})
}

func (ir *itemRepository) Delete(_ context.Context, id string) error {
	return ir.docs.remove(kindItems, id)
}

func (ir *itemRepository) FindHistoricalNodesReferencing(_ context.Context, nodeDescriptionID string) ([]*models.WorkflowNode, error) {
	items, err := loadAll[models.Item](ir.docs, kindItems)
	if err != nil {
		return nil, fmt.Errorf("failed to scan items: %w", err)
	}

	var instances []*models.WorkflowNode

	for _, item := range items {
		for _, instance := range item.Instances() {
			if instance.NodeDescriptionID == nodeDescriptionID {
				instances = append(instances, instance)
			}
		}
	}

	return instances, nil
}
