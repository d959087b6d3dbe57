package workflow

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/dukex/itemflow/pkg/models"
	"github.com/dukex/itemflow/pkg/persistence"
	"github.com/google/uuid"
)

// NodeInput holds the editable attributes of a node description.
type NodeInput struct {
	Title            string
	IsFinal          bool
	AuthorizedUsers  []string
	AuthorizedGroups []string
}

// LinkInput holds the editable attributes of a link description. On edit, empty
// endpoints keep the current ones.
type LinkInput struct {
	Title         string
	InitialNodeID string
	FinalNodeID   string
	EligibleTypes []models.ItemType
}

// DeletionResult reports what a node deletion cascaded into.
type DeletionResult struct {
	RemovedNodeIDs   []string `json:"removed_node_ids"`
	RemovedLinkIDs   []string `json:"removed_link_ids"`
	RemovedInstances int      `json:"removed_instances"`
	// ResetItemIDs lists items whose current node was removed; they are back in CREATED.
	ResetItemIDs []string `json:"reset_item_ids"`
}

// Editor applies structural edits to workflow descriptions. Like Engine it is
// request-scoped and expects a transaction-scoped Persistence.
type Editor struct {
	persistence persistence.Persistence
	logger      *slog.Logger
	now         func() time.Time
	newID       func() string
}

type EditorOption func(*Editor)

func WithEditorClock(now func() time.Time) EditorOption {
	return func(e *Editor) {
		e.now = now
	}
}

// WithIDGenerator overrides how new node and link ids are minted.
func WithIDGenerator(newID func() string) EditorOption {
	return func(e *Editor) {
		e.newID = newID
	}
}

// NewEditor builds an editor over persistence; deletions need a transaction scope.
func NewEditor(persistence persistence.Persistence, logger *slog.Logger, opts ...EditorOption) *Editor {
	editor := &Editor{
		persistence: persistence,
		logger:      logger.With("module", "graph_editor"),
		now:         time.Now,
		newID:       uuid.NewString,
	}

	for _, opt := range opts {
		opt(editor)
	}

	return editor
}

func (e *Editor) load(ctx context.Context, workflowID string) (*Graph, error) {
	description, err := e.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	return NewGraph(description)
}

// touch bumps the description version and stores its attributes.
func (e *Editor) touch(ctx context.Context, graph *Graph) error {
	description := graph.Description()
	description.Version++
	description.UpdatedAt = e.now().UTC()

	if err := e.persistence.WorkflowRepository().UpdateAttributes(ctx, description); err != nil {
		return fmt.Errorf("failed to update workflow %s: %w", description.ID, err)
	}

	return nil
}

// AddNodeDescription adds a node to the workflow. The first node becomes the initial node.
func (e *Editor) AddNodeDescription(ctx context.Context, workflowID string, input NodeInput) (*models.NodeDescription, error) {
	graph, err := e.load(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	node := &models.NodeDescription{
		ID:               e.newID(),
		Title:            input.Title,
		IsFinal:          input.IsFinal,
		AuthorizedUsers:  input.AuthorizedUsers,
		AuthorizedGroups: input.AuthorizedGroups,
	}

	if err := graph.AddNode(node); err != nil {
		return nil, err
	}

	if err := e.persistence.NodeRepository().SaveNode(ctx, workflowID, node); err != nil {
		return nil, fmt.Errorf("failed to save node %s: %w", node.ID, err)
	}

	if err := e.touch(ctx, graph); err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "Node description added", "workflow_id", workflowID, "node_id", node.ID, "title", node.Title)

	return node, nil
}

// EditNodeDescription retitles, toggles finality and replaces authorization of a node.
func (e *Editor) EditNodeDescription(ctx context.Context, workflowID, nodeID string, input NodeInput) (*models.NodeDescription, error) {
	graph, err := e.load(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if _, ok := graph.Node(nodeID); !ok {
		return nil, &persistence.NodeError{Op: "EditNodeDescription", WorkflowID: workflowID, NodeID: nodeID, Err: persistence.ErrNodeDescriptionNotFound}
	}

	err = graph.UpdateNode(&models.NodeDescription{
		ID:               nodeID,
		Title:            input.Title,
		IsFinal:          input.IsFinal,
		AuthorizedUsers:  input.AuthorizedUsers,
		AuthorizedGroups: input.AuthorizedGroups,
	})
	if err != nil {
		return nil, err
	}

	node, _ := graph.Node(nodeID)
	if err := e.persistence.NodeRepository().SaveNode(ctx, workflowID, node); err != nil {
		return nil, fmt.Errorf("failed to save node %s: %w", nodeID, err)
	}

	if err := e.touch(ctx, graph); err != nil {
		return nil, err
	}

	return node, nil
}

// SetInitialNode moves the workflow entry point. Items already in the workflow are not affected.
func (e *Editor) SetInitialNode(ctx context.Context, workflowID, nodeID string) error {
	graph, err := e.load(ctx, workflowID)
	if err != nil {
		return err
	}

	if _, ok := graph.Node(nodeID); !ok {
		return &persistence.NodeError{Op: "SetInitialNode", WorkflowID: workflowID, NodeID: nodeID, Err: persistence.ErrNodeDescriptionNotFound}
	}

	if err := graph.SetInitialNode(nodeID); err != nil {
		return err
	}

	return e.touch(ctx, graph)
}

// AddLinkDescription adds a directed link. Self-links and cycles are allowed.
func (e *Editor) AddLinkDescription(ctx context.Context, workflowID string, input LinkInput) (*models.LinkDescription, error) {
	graph, err := e.load(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	link := &models.LinkDescription{
		ID:            e.newID(),
		Title:         input.Title,
		InitialNodeID: input.InitialNodeID,
		FinalNodeID:   input.FinalNodeID,
		EligibleTypes: input.EligibleTypes,
	}

	if err := graph.AddLink(link); err != nil {
		return nil, err
	}

	if err := e.persistence.LinkRepository().SaveLink(ctx, workflowID, link); err != nil {
		return nil, fmt.Errorf("failed to save link %s: %w", link.ID, err)
	}

	if err := e.touch(ctx, graph); err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "Link description added",
		"workflow_id", workflowID,
		"link_id", link.ID,
		"from", link.InitialNodeID,
		"to", link.FinalNodeID,
	)

	return link, nil
}

// EditLinkDescription retitles a link and replaces its eligible types.
func (e *Editor) EditLinkDescription(ctx context.Context, workflowID, linkID string, input LinkInput) (*models.LinkDescription, error) {
	graph, err := e.load(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	existing, ok := graph.Link(linkID)
	if !ok {
		return nil, &persistence.LinkError{Op: "EditLinkDescription", WorkflowID: workflowID, LinkID: linkID, Err: persistence.ErrLinkDescriptionNotFound}
	}

	updated := &models.LinkDescription{
		ID:            linkID,
		Title:         input.Title,
		InitialNodeID: cmp.Or(input.InitialNodeID, existing.InitialNodeID),
		FinalNodeID:   cmp.Or(input.FinalNodeID, existing.FinalNodeID),
		EligibleTypes: input.EligibleTypes,
	}

	if err := graph.UpdateLink(updated); err != nil {
		return nil, err
	}

	if err := e.persistence.LinkRepository().SaveLink(ctx, workflowID, existing); err != nil {
		return nil, fmt.Errorf("failed to save link %s: %w", linkID, err)
	}

	if err := e.touch(ctx, graph); err != nil {
		return nil, err
	}

	return existing, nil
}

// DeleteLinkDescriptions removes links. Node instances are unaffected.
func (e *Editor) DeleteLinkDescriptions(ctx context.Context, workflowID string, linkIDs []string) error {
	graph, err := e.load(ctx, workflowID)
	if err != nil {
		return err
	}

	for _, id := range linkIDs {
		if _, ok := graph.Link(id); !ok {
			return &persistence.LinkError{Op: "DeleteLinkDescriptions", WorkflowID: workflowID, LinkID: id, Err: persistence.ErrLinkDescriptionNotFound}
		}
	}

	removed, err := graph.DeleteLinks(linkIDs...)
	if err != nil {
		return err
	}

	for _, link := range removed {
		if err := e.persistence.LinkRepository().DeleteLink(ctx, workflowID, link.ID); err != nil {
			return fmt.Errorf("failed to delete link %s: %w", link.ID, err)
		}
	}

	return e.touch(ctx, graph)
}

// DeleteNodeDescriptions removes nodes with every link touching them and every
// node instance pointing at them. Items parked at a removed node go back to
// CREATED. A repeated id is deleted once. All of it must run in one store transaction.
func (e *Editor) DeleteNodeDescriptions(ctx context.Context, workflowID string, nodeIDs []string) (*DeletionResult, error) {
	nodeIDs = UniqueIDs(nodeIDs)

	graph, err := e.load(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	for _, id := range nodeIDs {
		if _, ok := graph.Node(id); !ok {
			return nil, &persistence.NodeError{Op: "DeleteNodeDescriptions", WorkflowID: workflowID, NodeID: id, Err: persistence.ErrNodeDescriptionNotFound}
		}
	}

	removedLinks, err := graph.DeleteNodes(nodeIDs...)
	if err != nil {
		return nil, err
	}

	result := &DeletionResult{RemovedNodeIDs: nodeIDs}

	if err := e.detachItems(ctx, nodeIDs, result); err != nil {
		return nil, err
	}

	for _, link := range removedLinks {
		if err := e.persistence.LinkRepository().DeleteLink(ctx, workflowID, link.ID); err != nil {
			return nil, fmt.Errorf("failed to delete link %s: %w", link.ID, err)
		}

		result.RemovedLinkIDs = append(result.RemovedLinkIDs, link.ID)
	}

	for _, id := range nodeIDs {
		if err := e.persistence.NodeRepository().DeleteNode(ctx, workflowID, id); err != nil {
			return nil, fmt.Errorf("failed to delete node %s: %w", id, err)
		}
	}

	if err := e.touch(ctx, graph); err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "Node descriptions deleted",
		"workflow_id", workflowID,
		"nodes", len(result.RemovedNodeIDs),
		"links", len(result.RemovedLinkIDs),
		"instances", result.RemovedInstances,
		"reset_items", len(result.ResetItemIDs),
	)

	return result, nil
}

// detachItems strips instances of the removed nodes from the items owning them.
func (e *Editor) detachItems(ctx context.Context, nodeIDs []string, result *DeletionResult) error {
	var itemIDs []string

	for _, nodeID := range nodeIDs {
		instances, err := e.persistence.ItemRepository().FindHistoricalNodesReferencing(ctx, nodeID)
		if err != nil {
			return fmt.Errorf("failed to find instances of node %s: %w", nodeID, err)
		}

		for _, instance := range instances {
			if !slices.Contains(itemIDs, instance.ItemID) {
				itemIDs = append(itemIDs, instance.ItemID)
			}
		}
	}

	removed := func(instance *models.WorkflowNode) bool {
		return slices.Contains(nodeIDs, instance.NodeDescriptionID)
	}

	for _, itemID := range itemIDs {
		item, err := e.persistence.ItemRepository().GetByID(ctx, itemID)
		if err != nil {
			return fmt.Errorf("failed to load item %s: %w", itemID, err)
		}

		expectedVersion := item.Version
		before := len(item.History)
		item.History = slices.DeleteFunc(item.History, removed)
		result.RemovedInstances += before - len(item.History)

		if item.CurrentNode != nil && removed(item.CurrentNode) {
			item.CurrentNode = nil
			result.RemovedInstances++
			result.ResetItemIDs = append(result.ResetItemIDs, item.ID)
		}

		item.Version++
		item.UpdatedAt = e.now().UTC()

		if err := e.persistence.ItemRepository().Update(ctx, item, expectedVersion); err != nil {
			if persistence.IsVersionConflict(err) {
				return &TransitionError{Op: "DeleteNodeDescriptions", ItemID: item.ID, Err: ErrConcurrentModification}
			}

			return fmt.Errorf("failed to update item %s: %w", item.ID, err)
		}
	}

	return nil
}

// CloneWorkflow deep-copies a description for a project with fresh ids
// everywhere. Reference counts start from links only.
func (e *Editor) CloneWorkflow(source *models.WorkflowDescription, projectID string) (*models.WorkflowDescription, error) {
	now := e.now().UTC()
	clone := &models.WorkflowDescription{
		ID:        e.newID(),
		Name:      source.Name,
		ProjectID: projectID,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	graph, err := NewGraph(clone)
	if err != nil {
		return nil, err
	}

	nodeIDs := make(map[string]string, len(source.Nodes))

	for _, node := range source.Nodes {
		nodeIDs[node.ID] = e.newID()

		err := graph.AddNode(&models.NodeDescription{
			ID:               nodeIDs[node.ID],
			Title:            node.Title,
			IsFinal:          node.IsFinal,
			AuthorizedUsers:  slices.Clone(node.AuthorizedUsers),
			AuthorizedGroups: slices.Clone(node.AuthorizedGroups),
		})
		if err != nil {
			return nil, err
		}
	}

	if initial, ok := nodeIDs[source.InitialNodeID]; ok {
		if err := graph.SetInitialNode(initial); err != nil {
			return nil, err
		}
	}

	for _, link := range source.Links {
		err := graph.AddLink(&models.LinkDescription{
			ID:            e.newID(),
			Title:         link.Title,
			InitialNodeID: nodeIDs[link.InitialNodeID],
			FinalNodeID:   nodeIDs[link.FinalNodeID],
			EligibleTypes: slices.Clone(link.EligibleTypes),
		})
		if err != nil {
			return nil, err
		}
	}

	return clone, nil
}
