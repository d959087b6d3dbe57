package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/itemflow/pkg/models"
	"github.com/dukex/itemflow/pkg/persistence"
)

type scanner interface {
	Scan(dest ...any) error
}

func nullable(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

// workflowRepository handles workflow description database operations.
type workflowRepository struct {
	p *Persistence
}

const workflowColumns = `
	id
  , name
  , project_id
  , version
  , initial_node_id
  , created_at
  , updated_at
`

func (r *workflowRepository) List(ctx context.Context, opts persistence.ListWorkflowsOptions) ([]*models.WorkflowDescription, error) {
	query := `SELECT ` + workflowColumns + `
		FROM workflow_descriptions
		WHERE ($1 = false OR project_id IS NULL)
		  AND ($2 = '' OR project_id = $2)
		ORDER BY created_at, id
	`

	rows, err := r.p.querier().QueryContext(ctx, query, opts.TemplatesOnly, opts.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow descriptions: %w", err)
	}

	defer r.p.closeRows(ctx, rows)

	workflows := make([]*models.WorkflowDescription, 0)

	for rows.Next() {
		workflow, err := r.scanWorkflowBase(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow description: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflow descriptions: %w", err)
	}

	for _, workflow := range workflows {
		if err := r.loadGraph(ctx, workflow); err != nil {
			return nil, err
		}
	}

	return workflows, nil
}

func (r *workflowRepository) GetByID(ctx context.Context, id string) (*models.WorkflowDescription, error) {
	workflow, err := r.getBase(ctx, "GetByID", id)
	if err != nil {
		return nil, err
	}

	if err := r.loadGraph(ctx, workflow); err != nil {
		return nil, err
	}

	if err := r.countReferences(ctx, workflow); err != nil {
		return nil, err
	}

	return workflow, nil
}

func (r *workflowRepository) getBase(ctx context.Context, op, id string) (*models.WorkflowDescription, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflow_descriptions WHERE id = $1`

	workflow, err := r.scanWorkflowBase(r.p.querier().QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewWorkflowError(op, id, persistence.ErrWorkflowNotFound)
		}

		return nil, fmt.Errorf("failed to scan workflow description: %w", err)
	}

	return workflow, nil
}

func (r *workflowRepository) loadGraph(ctx context.Context, workflow *models.WorkflowDescription) error {
	nodes, err := (&nodeRepository{p: r.p}).list(ctx, workflow.ID)
	if err != nil {
		return err
	}

	links, err := (&linkRepository{p: r.p}).list(ctx, `WHERE workflow_id = $1`, workflow.ID)
	if err != nil {
		return err
	}

	workflow.Nodes = nodes
	workflow.Links = links

	return nil
}

// countReferences fills ReferenceCount from the loaded links plus the node
// instances of the workflow's items.
func (r *workflowRepository) countReferences(ctx context.Context, workflow *models.WorkflowDescription) error {
	counts := make(map[string]int, len(workflow.Nodes))

	for _, link := range workflow.Links {
		counts[link.InitialNodeID]++
		if !link.IsSelfLink() {
			counts[link.FinalNodeID]++
		}
	}

	query := `
		SELECT ni.node_description_id, COUNT(*)
		FROM node_instances ni
		JOIN items i ON i.id = ni.item_id
		WHERE i.workflow_id = $1
		GROUP BY ni.node_description_id
	`

	rows, err := r.p.querier().QueryContext(ctx, query, workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to count node references: %w", err)
	}

	defer r.p.closeRows(ctx, rows)

	for rows.Next() {
		var (
			nodeID string
			count  int
		)

		if err := rows.Scan(&nodeID, &count); err != nil {
			return fmt.Errorf("failed to scan node reference count: %w", err)
		}

		counts[nodeID] += count
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating node reference counts: %w", err)
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
		query := `
			INSERT INTO workflow_descriptions (id, name, project_id, version, initial_node_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				project_id = EXCLUDED.project_id,
				version = EXCLUDED.version,
				initial_node_id = EXCLUDED.initial_node_id,
				updated_at = EXCLUDED.updated_at
		`

		_, err := tx.querier().ExecContext(ctx, query,
			workflow.ID,
			workflow.Name,
			nullable(workflow.ProjectID),
			workflow.Version,
			nullable(workflow.InitialNodeID),
			workflow.CreatedAt,
			workflow.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to save workflow description: %w", err)
		}

		// Delete existing links and nodes (for updates)
		_, err = tx.querier().ExecContext(ctx, "DELETE FROM link_descriptions WHERE workflow_id = $1", workflow.ID)
		if err != nil {
			return fmt.Errorf("failed to delete existing links: %w", err)
		}

		_, err = tx.querier().ExecContext(ctx, "DELETE FROM node_descriptions WHERE workflow_id = $1", workflow.ID)
		if err != nil {
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
	query := `
		UPDATE workflow_descriptions
		SET name = $2, initial_node_id = $3, version = $4, updated_at = $5
		WHERE id = $1
	`

	result, err := r.p.querier().ExecContext(ctx, query,
		workflow.ID,
		workflow.Name,
		nullable(workflow.InitialNodeID),
		workflow.Version,
		workflow.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update workflow description: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.NewWorkflowError("UpdateAttributes", workflow.ID, persistence.ErrWorkflowNotFound)
	}

	return nil
}

// Delete removes a description; nodes and links go with it. Missing ids are not an error.
func (r *workflowRepository) Delete(ctx context.Context, id string) error {
	_, err := r.p.querier().ExecContext(ctx, `DELETE FROM workflow_descriptions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete workflow description: %w", err)
	}

	return nil
}

func (r *workflowRepository) scanWorkflowBase(row scanner) (*models.WorkflowDescription, error) {
	var (
		workflow             models.WorkflowDescription
		projectID, initialID sql.NullString
	)

	err := row.Scan(
		&workflow.ID,
		&workflow.Name,
		&projectID,
		&workflow.Version,
		&initialID,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	workflow.ProjectID = projectID.String
	workflow.InitialNodeID = initialID.String

	return &workflow, nil
}

// nodeRepository handles node description database operations.
type nodeRepository struct {
	p *Persistence
}

func (nr *nodeRepository) list(ctx context.Context, workflowID string) ([]*models.NodeDescription, error) {
	query := `
		SELECT workflow_id, id, title, is_final, authorized_users, authorized_groups
		FROM node_descriptions
		WHERE workflow_id = $1
		ORDER BY seq
	`

	rows, err := nr.p.querier().QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query node descriptions: %w", err)
	}

	defer nr.p.closeRows(ctx, rows)

	nodes := make([]*models.NodeDescription, 0)

	for rows.Next() {
		node, err := nr.scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node description: %w", err)
		}

		nodes = append(nodes, node)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating node descriptions: %w", err)
	}

	return nodes, nil
}

func (nr *nodeRepository) GetNode(ctx context.Context, workflowID, nodeID string) (*models.NodeDescription, error) {
	query := `
		SELECT workflow_id, id, title, is_final, authorized_users, authorized_groups
		FROM node_descriptions
		WHERE workflow_id = $1 AND id = $2
	`

	node, err := nr.scanNode(nr.p.querier().QueryRowContext(ctx, query, workflowID, nodeID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &persistence.NodeError{Op: "GetNode", WorkflowID: workflowID, NodeID: nodeID, Err: persistence.ErrNodeDescriptionNotFound}
		}

		return nil, fmt.Errorf("failed to scan node description: %w", err)
	}

	return node, nil
}

// SaveNode upserts a node description; its insertion position is kept on update.
func (nr *nodeRepository) SaveNode(ctx context.Context, workflowID string, node *models.NodeDescription) error {
	usersJSON, err := json.Marshal(nonNil(node.AuthorizedUsers))
	if err != nil {
		return fmt.Errorf("failed to marshal authorized users: %w", err)
	}

	groupsJSON, err := json.Marshal(nonNil(node.AuthorizedGroups))
	if err != nil {
		return fmt.Errorf("failed to marshal authorized groups: %w", err)
	}

	query := `
		INSERT INTO node_descriptions (workflow_id, id, title, is_final, authorized_users, authorized_groups)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (workflow_id, id) DO UPDATE SET
			title = EXCLUDED.title,
			is_final = EXCLUDED.is_final,
			authorized_users = EXCLUDED.authorized_users,
			authorized_groups = EXCLUDED.authorized_groups
	`

	_, err = nr.p.querier().ExecContext(ctx, query, workflowID, node.ID, node.Title, node.IsFinal, usersJSON, groupsJSON)
	if err != nil {
		return fmt.Errorf("failed to save node description %s: %w", node.ID, err)
	}

	node.WorkflowID = workflowID

	return nil
}

func (nr *nodeRepository) DeleteNode(ctx context.Context, workflowID, nodeID string) error {
	result, err := nr.p.querier().ExecContext(ctx, `DELETE FROM node_descriptions WHERE workflow_id = $1 AND id = $2`, workflowID, nodeID)
	if err != nil {
		return fmt.Errorf("failed to delete node description %s: %w", nodeID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return &persistence.NodeError{Op: "DeleteNode", WorkflowID: workflowID, NodeID: nodeID, Err: persistence.ErrNodeDescriptionNotFound}
	}

	return nil
}

func (nr *nodeRepository) scanNode(row scanner) (*models.NodeDescription, error) {
	var (
		node                   models.NodeDescription
		usersJSON, groupsJSON []byte
	)

	err := row.Scan(&node.WorkflowID, &node.ID, &node.Title, &node.IsFinal, &usersJSON, &groupsJSON)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(usersJSON, &node.AuthorizedUsers); err != nil {
		return nil, fmt.Errorf("failed to unmarshal authorized users: %w", err)
	}

	if err := json.Unmarshal(groupsJSON, &node.AuthorizedGroups); err != nil {
		return nil, fmt.Errorf("failed to unmarshal authorized groups: %w", err)
	}

	return &node, nil
}

func nonNil[T any](values []T) []T {
	if values == nil {
		return []T{}
	}

	return values
}

// linkRepository handles link description database operations.
type linkRepository struct {
	p *Persistence
}

func (lr *linkRepository) list(ctx context.Context, where string, args ...any) ([]*models.LinkDescription, error) {
	query := `
		SELECT workflow_id, id, title, initial_node_id, final_node_id, eligible_types
		FROM link_descriptions
		` + where + `
		ORDER BY seq
	`

	rows, err := lr.p.querier().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query link descriptions: %w", err)
	}

	defer lr.p.closeRows(ctx, rows)

	links := make([]*models.LinkDescription, 0)

	for rows.Next() {
		link, err := lr.scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan link description: %w", err)
		}

		links = append(links, link)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating link descriptions: %w", err)
	}

	return links, nil
}

func (lr *linkRepository) GetLink(ctx context.Context, workflowID, linkID string) (*models.LinkDescription, error) {
	links, err := lr.list(ctx, `WHERE workflow_id = $1 AND id = $2`, workflowID, linkID)
	if err != nil {
		return nil, err
	}

	if len(links) == 0 {
		return nil, &persistence.LinkError{Op: "GetLink", WorkflowID: workflowID, LinkID: linkID, Err: persistence.ErrLinkDescriptionNotFound}
	}

	return links[0], nil
}

func (lr *linkRepository) SaveLink(ctx context.Context, workflowID string, link *models.LinkDescription) error {
	typesJSON, err := json.Marshal(nonNil(link.EligibleTypes))
	if err != nil {
		return fmt.Errorf("failed to marshal eligible types: %w", err)
	}

	query := `
		INSERT INTO link_descriptions (workflow_id, id, title, initial_node_id, final_node_id, eligible_types)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (workflow_id, id) DO UPDATE SET
			title = EXCLUDED.title,
			initial_node_id = EXCLUDED.initial_node_id,
			final_node_id = EXCLUDED.final_node_id,
			eligible_types = EXCLUDED.eligible_types
	`

	_, err = lr.p.querier().ExecContext(ctx, query, workflowID, link.ID, link.Title, link.InitialNodeID, link.FinalNodeID, typesJSON)
	if err != nil {
		return fmt.Errorf("failed to save link description %s: %w", link.ID, err)
	}

	link.WorkflowID = workflowID

	return nil
}

func (lr *linkRepository) DeleteLink(ctx context.Context, workflowID, linkID string) error {
	result, err := lr.p.querier().ExecContext(ctx, `DELETE FROM link_descriptions WHERE workflow_id = $1 AND id = $2`, workflowID, linkID)
	if err != nil {
		return fmt.Errorf("failed to delete link description %s: %w", linkID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return &persistence.LinkError{Op: "DeleteLink", WorkflowID: workflowID, LinkID: linkID, Err: persistence.ErrLinkDescriptionNotFound}
	}

	return nil
}

func (lr *linkRepository) FindLinksFrom(ctx context.Context, workflowID, nodeID string) ([]*models.LinkDescription, error) {
	return lr.list(ctx, `WHERE workflow_id = $1 AND initial_node_id = $2`, workflowID, nodeID)
}

func (lr *linkRepository) scanLink(row scanner) (*models.LinkDescription, error) {
	var (
		link      models.LinkDescription
		typesJSON []byte
	)

	err := row.Scan(&link.WorkflowID, &link.ID, &link.Title, &link.InitialNodeID, &link.FinalNodeID, &typesJSON)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(typesJSON, &link.EligibleTypes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal eligible types: %w", err)
	}

	return &link, nil
}
