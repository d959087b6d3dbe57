package file

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dukex/itemflow/pkg/models"
	"github.com/dukex/itemflow/pkg/persistence"
)

// workflowRepository stores one JSON document per workflow description, nodes
// and links embedded.
type workflowRepository struct {
	docs documents
	p    *Persistence
}

func (wr *workflowRepository) List(_ context.Context, opts persistence.ListWorkflowsOptions) ([]*models.WorkflowDescription, error) {
	all, err := loadAll[models.WorkflowDescription](wr.docs, kindWorkflows)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	filtered := make([]*models.WorkflowDescription, 0, len(all))

	for _, workflow := range all {
		if opts.TemplatesOnly && !workflow.IsTemplate() {
			continue
		}

		if opts.ProjectID != "" && workflow.ProjectID != opts.ProjectID {
			continue
		}

		filtered = append(filtered, workflow)
	}

	slices.SortFunc(filtered, func(a, b *models.WorkflowDescription) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}

		return strings.Compare(a.ID, b.ID)
	})

	return filtered, nil
}

// GetByID retrieves a workflow description and fills in node reference counts.
func (wr *workflowRepository) GetByID(_ context.Context, id string) (*models.WorkflowDescription, error) {
	workflow, err := wr.get("GetByID", id)
	if err != nil {
		return nil, err
	}

	if err := wr.countReferences(workflow); err != nil {
		return nil, err
	}

	return workflow, nil
}

func (wr *workflowRepository) get(op, id string) (*models.WorkflowDescription, error) {
	workflow, err := load[models.WorkflowDescription](wr.docs, kindWorkflows, id)
	if err != nil {
		if isNotExist(err) {
			return nil, persistence.NewWorkflowError(op, id, persistence.ErrWorkflowNotFound)
		}

		return nil, fmt.Errorf("failed to fetch workflow %s: %w", id, err)
	}

	return workflow, nil
}

func (wr *workflowRepository) countReferences(workflow *models.WorkflowDescription) error {
	counts := make(map[string]int, len(workflow.Nodes))

	for _, link := range workflow.Links {
		counts[link.InitialNodeID]++
		if !link.IsSelfLink() {
			counts[link.FinalNodeID]++
		}
	}

	items, err := loadAll[models.Item](wr.docs, kindItems)
	if err != nil {
		return fmt.Errorf("failed to count node references of workflow %s: %w", workflow.ID, err)
	}

	for _, item := range items {
		if item.WorkflowID != workflow.ID {
			continue
		}

		for _, instance := range item.Instances() {
			counts[instance.NodeDescriptionID]++
		}
	}

	for _, node := range workflow.Nodes {
		node.ReferenceCount = counts[node.ID]
	}

	return nil
}

// Save writes the whole workflow description document.
func (wr *workflowRepository) Save(_ context.Context, workflow *models.WorkflowDescription) error {
	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	if workflow.UpdatedAt.IsZero() {
		workflow.UpdatedAt = now
	}

	for _, node := range workflow.Nodes {
		node.WorkflowID = workflow.ID
	}

	for _, link := range workflow.Links {
		link.WorkflowID = workflow.ID
	}

	return store(wr.docs, kindWorkflows, workflow.ID, workflow)
}

func (wr *workflowRepository) UpdateAttributes(ctx context.Context, workflow *models.WorkflowDescription) error {
	return wr.p.atomically(ctx, func(tx *Persistence) error {
		repo := &workflowRepository{docs: tx.docs, p: tx}

		stored, err := repo.get("UpdateAttributes", workflow.ID)
		if err != nil {
			return err
		}

		stored.Name = workflow.Name
		stored.InitialNodeID = workflow.InitialNodeID
		stored.Version = workflow.Version
		stored.UpdatedAt = workflow.UpdatedAt

		return store(tx.docs, kindWorkflows, stored.ID, stored)
	})
}

// Delete removes a workflow description. Missing descriptions are not an error.
func (wr *workflowRepository) Delete(_ context.Context, id string) error {
	return wr.docs.remove(kindWorkflows, id)
}

// modify applies change to the stored description inside a transaction.
func modify(ctx context.Context, p *Persistence, op, workflowID string, change func(workflow *models.WorkflowDescription) error) error {
	return p.atomically(ctx, func(tx *Persistence) error {
		repo := &workflowRepository{docs: tx.docs, p: tx}

		workflow, err := repo.get(op, workflowID)
		if err != nil {
			return err
		}

		if err := change(workflow); err != nil {
			return err
		}

		return store(tx.docs, kindWorkflows, workflow.ID, workflow)
	})
}

type nodeRepository struct {
	docs documents
	p    *Persistence
}

func (nr *nodeRepository) GetNode(_ context.Context, workflowID, nodeID string) (*models.NodeDescription, error) {
	workflow, err := (&workflowRepository{docs: nr.docs, p: nr.p}).get("GetNode", workflowID)
	if err != nil {
		return nil, err
	}

	for _, node := range workflow.Nodes {
		if node.ID == nodeID {
			return node, nil
		}
	}

	return nil, &persistence.NodeError{Op: "GetNode", WorkflowID: workflowID, NodeID: nodeID, Err: persistence.ErrNodeDescriptionNotFound}
}

// SaveNode inserts or replaces a node description, keeping its position.
func (nr *nodeRepository) SaveNode(ctx context.Context, workflowID string, node *models.NodeDescription) error {
	return modify(ctx, nr.p, "SaveNode", workflowID, func(workflow *models.WorkflowDescription) error {
		node.WorkflowID = workflowID

		index := slices.IndexFunc(workflow.Nodes, func(existing *models.NodeDescription) bool {
			return existing.ID == node.ID
		})
		if index >= 0 {
			workflow.Nodes[index] = node
		} else {
			workflow.Nodes = append(workflow.Nodes, node)
		}

		return nil
	})
}

func (nr *nodeRepository) DeleteNode(ctx context.Context, workflowID, nodeID string) error {
	return modify(ctx, nr.p, "DeleteNode", workflowID, func(workflow *models.WorkflowDescription) error {
		before := len(workflow.Nodes)

		workflow.Nodes = slices.DeleteFunc(workflow.Nodes, func(node *models.NodeDescription) bool {
			return node.ID == nodeID
		})
		if len(workflow.Nodes) == before {
			return &persistence.NodeError{Op: "DeleteNode", WorkflowID: workflowID, NodeID: nodeID, Err: persistence.ErrNodeDescriptionNotFound}
		}

		return nil
	})
}

type linkRepository struct {
	docs documents
	p    *Persistence
}

func (lr *linkRepository) GetLink(_ context.Context, workflowID, linkID string) (*models.LinkDescription, error) {
	workflow, err := (&workflowRepository{docs: lr.docs, p: lr.p}).get("GetLink", workflowID)
	if err != nil {
		return nil, err
	}

	for _, link := range workflow.Links {
		if link.ID == linkID {
			return link, nil
		}
	}

	return nil, &persistence.LinkError{Op: "GetLink", WorkflowID: workflowID, LinkID: linkID, Err: persistence.ErrLinkDescriptionNotFound}
}

func (lr *linkRepository) SaveLink(ctx context.Context, workflowID string, link *models.LinkDescription) error {
	return modify(ctx, lr.p, "SaveLink", workflowID, func(workflow *models.WorkflowDescription) error {
		link.WorkflowID = workflowID

		index := slices.IndexFunc(workflow.Links, func(existing *models.LinkDescription) bool {
			return existing.ID == link.ID
		})
		if index >= 0 {
			workflow.Links[index] = link
		} else {
			workflow.Links = append(workflow.Links, link)
		}

		return nil
	})
}

func (lr *linkRepository) DeleteLink(ctx context.Context, workflowID, linkID string) error {
	return modify(ctx, lr.p, "DeleteLink", workflowID, func(workflow *models.WorkflowDescription) error {
		before := len(workflow.Links)

		workflow.Links = slices.DeleteFunc(workflow.Links, func(link *models.LinkDescription) bool {
			return link.ID == linkID
		})
		if len(workflow.Links) == before {
			return &persistence.LinkError{Op: "DeleteLink", WorkflowID: workflowID, LinkID: linkID, Err: persistence.ErrLinkDescriptionNotFound}
		}

		return nil
	})
}

func (lr *linkRepository) FindLinksFrom(_ context.Context, workflowID, nodeID string) ([]*models.LinkDescription, error) {
	workflow, err := (&workflowRepository{docs: lr.docs, p: lr.p}).get("FindLinksFrom", workflowID)
	if err != nil {
		return nil, err
	}

	var links []*models.LinkDescription

	for _, link := range workflow.Links {
		if link.InitialNodeID == nodeID {
			links = append(links, link)
		}
	}

	return links, nil
}
