package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/itemflow/pkg/models"
	"github.com/dukex/itemflow/pkg/persistence"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type workflowRepository struct {
	p *Persistence
}

func (r *workflowRepository) List(ctx context.Context, opts persistence.ListWorkflowsOptions) ([]*models.WorkflowDescription, error) {
	query := r.p.conn(ctx).Model(&workflowModel{})

	if opts.TemplatesOnly {
		query = query.Where("project_id = ''")
	}

	if opts.ProjectID != "" {
		query = query.Where("project_id = ?", opts.ProjectID)
	}

	var rows []workflowModel
	if err := query.Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list workflow descriptions: %w", err)
	}

	workflows := make([]*models.WorkflowDescription, 0, len(rows))

	for i := range rows {
		workflow := toWorkflow(&rows[i])
		if err := r.loadGraph(ctx, workflow); err != nil {
			return nil, err
		}

		workflows = append(workflows, workflow)
	}

	return workflows, nil
}

func (r *workflowRepository) GetByID(ctx context.Context, id string) (*models.WorkflowDescription, error) {
	var row workflowModel

	err := r.p.conn(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
		}

		return nil, fmt.Errorf("failed to load workflow description: %w", err)
	}

	workflow := toWorkflow(&row)

	if err := r.loadGraph(ctx, workflow); err != nil {
		return nil, err
	}

	if err := r.countReferences(ctx, workflow); err != nil {
		return nil, err
	}

	return workflow, nil
}

func (r *workflowRepository) loadGraph(ctx context.Context, workflow *models.WorkflowDescription) error {
	var nodes []nodeModel
	if err := r.p.conn(ctx).Where("workflow_id = ?", workflow.ID).Order("seq").Find(&nodes).Error; err != nil {
		return fmt.Errorf("failed to load node descriptions: %w", err)
	}

	var links []linkModel
	if err := r.p.conn(ctx).Where("workflow_id = ?", workflow.ID).Order("seq").Find(&links).Error; err != nil {
		return fmt.Errorf("failed to load link descriptions: %w", err)
	}

	workflow.Nodes = make([]*models.NodeDescription, 0, len(nodes))
	for i := range nodes {
		workflow.Nodes = append(workflow.Nodes, toNode(&nodes[i]))
	}

	workflow.Links = make([]*models.LinkDescription, 0, len(links))
	for i := range links {
		workflow.Links = append(workflow.Links, toLink(&links[i]))
	}

	return nil
}

func (r *workflowRepository) countReferences(ctx context.Context, workflow *models.WorkflowDescription) error {
	counts := make(map[string]int, len(workflow.Nodes))

	for _, link := range workflow.Links {
		counts[link.InitialNodeID]++
		if !link.IsSelfLink() {
			counts[link.FinalNodeID]++
		}
	}

	var instanceCounts []struct {
		NodeDescriptionID string
		Count             int
	}

	err := r.p.conn(ctx).
		Model(&instanceModel{}).
		Select("node_instances.node_description_id, COUNT(*) AS count").
		Joins("JOIN items ON items.id = node_instances.item_id").
		Where("items.workflow_id = ?", workflow.ID).
		Group("node_instances.node_description_id").
		Scan(&instanceCounts).Error
	if err != nil {
		return fmt.Errorf("failed to count node references: %w", err)
	}

	for _, row := range instanceCounts {
		counts[row.NodeDescriptionID] += row.Count
	}

	for _, node := range workflow.Nodes {
		node.ReferenceCount = counts[node.ID]
	}

	return nil
}

// Save upserts the description and replaces its nodes and links.
func (r *workflowRepository) Save(ctx context.Context, workflow *models.WorkflowDescription) error {
	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	if workflow.UpdatedAt.IsZero() {
		workflow.UpdatedAt = now
	}

	return r.p.atomically(ctx, func(tx *Persistence) error {
		row := workflowModel{
			ID:            workflow.ID,
			Name:          workflow.Name,
			ProjectID:     workflow.ProjectID,
			Version:       workflow.Version,
			InitialNodeID: workflow.InitialNodeID,
			CreatedAt:     workflow.CreatedAt,
			UpdatedAt:     workflow.UpdatedAt,
		}

		err := tx.conn(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "project_id", "version", "initial_node_id", "updated_at"}),
		}).Create(&row).Error
		if err != nil {
			return fmt.Errorf("failed to save workflow description: %w", err)
		}

		if err := tx.conn(ctx).Where("workflow_id = ?", workflow.ID).Delete(&linkModel{}).Error; err != nil {
			return fmt.Errorf("failed to delete existing links: %w", err)
		}

		if err := tx.conn(ctx).Where("workflow_id = ?", workflow.ID).Delete(&nodeModel{}).Error; err != nil {
			return fmt.Errorf("failed to delete existing nodes: %w", err)
		}

		nodes := &nodeRepository{p: tx}
		for _, node := range workflow.Nodes {
			if err := nodes.SaveNode(ctx, workflow.ID, node); err != nil {
				return err
			}
		}

		links := &linkRepository{p: tx}
		for _, link := range workflow.Links {
			if err := links.SaveLink(ctx, workflow.ID, link); err != nil {
				return err
			}
		}

		return nil
	})
}

func (r *workflowRepository) UpdateAttributes(ctx context.Context, workflow *models.WorkflowDescription) error {
	result := r.p.conn(ctx).
		Model(&workflowModel{}).
		Where("id = ?", workflow.ID).
		Updates(map[string]any{
			"name":            workflow.Name,
			"initial_node_id": workflow.InitialNodeID,
			"version":         workflow.Version,
			"updated_at":      workflow.UpdatedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update workflow description: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return persistence.NewWorkflowError("UpdateAttributes", workflow.ID, persistence.ErrWorkflowNotFound)
	}

	return nil
}

// Delete removes a description with its nodes and links. Missing ids are not an error.
func (r *workflowRepository) Delete(ctx context.Context, id string) error {
	return r.p.atomically(ctx, func(tx *Persistence) error {
		for _, model := range []any{&linkModel{}, &nodeModel{}} {
			if err := tx.conn(ctx).Where("workflow_id = ?", id).Delete(model).Error; err != nil {
				return fmt.Errorf("failed to delete workflow %s graph: %w", id, err)
			}
		}

		if err := tx.conn(ctx).Where("id = ?", id).Delete(&workflowModel{}).Error; err != nil {
			return fmt.Errorf("failed to delete workflow description: %w", err)
		}

		return nil
	})
}

type nodeRepository struct {
	p *Persistence
}

func (nr *nodeRepository) GetNode(ctx context.Context, workflowID, nodeID string) (*models.NodeDescription, error) {
	var row nodeModel

	err := nr.p.conn(ctx).Where("workflow_id = ? AND id = ?", workflowID, nodeID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &persistence.NodeError{Op: "GetNode", WorkflowID: workflowID, NodeID: nodeID, Err: persistence.ErrNodeDescriptionNotFound}
		}

		return nil, fmt.Errorf("failed to load node description: %w", err)
	}

	return toNode(&row), nil
}

// SaveNode upserts a node description; its insertion position is kept on update.
func (nr *nodeRepository) SaveNode(ctx context.Context, workflowID string, node *models.NodeDescription) error {
	seq, err := nextSeq(ctx, nr.p, &nodeModel{}, workflowID)
	if err != nil {
		return err
	}

	row := nodeModel{
		WorkflowID:       workflowID,
		ID:               node.ID,
		Seq:              seq,
		Title:            node.Title,
		IsFinal:          node.IsFinal,
		AuthorizedUsers:  node.AuthorizedUsers,
		AuthorizedGroups: node.AuthorizedGroups,
	}

	err = nr.p.conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "workflow_id"}, {Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "is_final", "authorized_users", "authorized_groups"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to save node description %s: %w", node.ID, err)
	}

	node.WorkflowID = workflowID

	return nil
}

func (nr *nodeRepository) DeleteNode(ctx context.Context, workflowID, nodeID string) error {
	result := nr.p.conn(ctx).Where("workflow_id = ? AND id = ?", workflowID, nodeID).Delete(&nodeModel{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete node description %s: %w", nodeID, result.Error)
	}

	if result.RowsAffected == 0 {
		return &persistence.NodeError{Op: "DeleteNode", WorkflowID: workflowID, NodeID: nodeID, Err: persistence.ErrNodeDescriptionNotFound}
	}

	return nil
}

type linkRepository struct {
	p *Persistence
}

func (lr *linkRepository) GetLink(ctx context.Context, workflowID, linkID string) (*models.LinkDescription, error) {
	var row linkModel

	err := lr.p.conn(ctx).Where("workflow_id = ? AND id = ?", workflowID, linkID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &persistence.LinkError{Op: "GetLink", WorkflowID: workflowID, LinkID: linkID, Err: persistence.ErrLinkDescriptionNotFound}
		}

		return nil, fmt.Errorf("failed to load link description: %w", err)
	}

	return toLink(&row), nil
}

func (lr *linkRepository) SaveLink(ctx context.Context, workflowID string, link *models.LinkDescription) error {
	seq, err := nextSeq(ctx, lr.p, &linkModel{}, workflowID)
	if err != nil {
		return err
	}

	row := linkModel{
		WorkflowID:    workflowID,
		ID:            link.ID,
		Seq:           seq,
		Title:         link.Title,
		InitialNodeID: link.InitialNodeID,
		FinalNodeID:   link.FinalNodeID,
		EligibleTypes: link.EligibleTypes,
	}

	err = lr.p.conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "workflow_id"}, {Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "initial_node_id", "final_node_id", "eligible_types"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to save link description %s: %w", link.ID, err)
	}

	link.WorkflowID = workflowID

	return nil
}

func (lr *linkRepository) DeleteLink(ctx context.Context, workflowID, linkID string) error {
	result := lr.p.conn(ctx).Where("workflow_id = ? AND id = ?", workflowID, linkID).Delete(&linkModel{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete link description %s: %w", linkID, result.Error)
	}

	if result.RowsAffected == 0 {
		return &persistence.LinkError{Op: "DeleteLink", WorkflowID: workflowID, LinkID: linkID, Err: persistence.ErrLinkDescriptionNotFound}
	}

	return nil
}

func (lr *linkRepository) FindLinksFrom(ctx context.Context, workflowID, nodeID string) ([]*models.LinkDescription, error) {
	var rows []linkModel

	err := lr.p.conn(ctx).
		Where("workflow_id = ? AND initial_node_id = ?", workflowID, nodeID).
		Order("seq").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query link descriptions: %w", err)
	}

	links := make([]*models.LinkDescription, 0, len(rows))
	for i := range rows {
		links = append(links, toLink(&rows[i]))
	}

	return links, nil
}

func nextSeq(ctx context.Context, p *Persistence, model any, workflowID string) (int64, error) {
	var seq int64

	err := p.conn(ctx).Model(model).Where("workflow_id = ?", workflowID).Select("COALESCE(MAX(seq), 0) + 1").Scan(&seq).Error
	if err != nil {
		return 0, fmt.Errorf("failed to compute insertion position: %w", err)
	}

	return seq, nil
}
