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
)

// SortKey orders the result of FindNextNodes. Ties keep link insertion order.
type SortKey string

const (
	SortByInsertion      SortKey = "insertion"
	SortByTitle          SortKey = "title"
	SortByReferenceCount SortKey = "reference_count" // Most referenced first
)

// ParseSortKey maps a query value to a SortKey; empty means insertion order.
func ParseSortKey(value string) (SortKey, error) {
	switch SortKey(value) {
	case "", SortByInsertion:
		return SortByInsertion, nil
	case SortByTitle, SortByReferenceCount:
		return SortKey(value), nil
	default:
		return "", fmt.Errorf("unknown sort key %q", value)
	}
}

// TransitionRequest asks to move one item to a node description.
type TransitionRequest struct {
	ItemID  string
	Version int64 // Version the caller last read
	// TargetNodeID selects the destination; LinkID pins a specific link. At least one is required.
	TargetNodeID string
	LinkID       string
	User         *models.User
	// Responsible defaults to the acting user.
	Responsible string
}

// Engine computes and commits item transitions. It is request-scoped: build one
// per call over a transaction-scoped Persistence.
type Engine struct {
	persistence persistence.Persistence
	logger      *slog.Logger
	now         func() time.Time
}

type EngineOption func(*Engine)

// WithClock overrides the time source used to stamp node instances.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine builds an engine over persistence, usually a transaction scope.
func NewEngine(persistence persistence.Persistence, logger *slog.Logger, opts ...EngineOption) *Engine {
	engine := &Engine{
		persistence: persistence,
		logger:      logger.With("module", "transition_engine"),
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(engine)
	}

	return engine
}

func (e *Engine) loadGraph(ctx context.Context, workflowID string) (*Graph, error) {
	description, err := e.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	return NewGraph(description)
}

// FindNextNodes returns the node descriptions the item could move to next,
// deduplicated and ordered by sortKey. Authorization is not evaluated.
func (e *Engine) FindNextNodes(ctx context.Context, item *models.Item, sortKey SortKey) ([]*models.NodeDescription, error) {
	graph, err := e.loadGraph(ctx, item.WorkflowID)
	if err != nil {
		return nil, err
	}

	return nextNodes(graph, item, sortKey), nil
}

func nextNodes(graph *Graph, item *models.Item, sortKey SortKey) []*models.NodeDescription {
	if item.CurrentNode == nil {
		if initial := graph.InitialNode(); initial != nil {
			return []*models.NodeDescription{initial}
		}

		return nil
	}

	var (
		next []*models.NodeDescription
		seen = make(map[string]bool)
	)

	for _, link := range graph.OutgoingLinks(item.CurrentNode.NodeDescriptionID) {
		if !link.Accepts(item.Type) || seen[link.FinalNodeID] {
			continue
		}

		node, ok := graph.Node(link.FinalNodeID)
		if !ok {
			continue
		}

		seen[node.ID] = true
		next = append(next, node)
	}

	switch sortKey {
	case SortByTitle:
		slices.SortStableFunc(next, func(a, b *models.NodeDescription) int {
			return cmp.Compare(a.Title, b.Title)
		})
	case SortByReferenceCount:
		slices.SortStableFunc(next, func(a, b *models.NodeDescription) int {
			return cmp.Compare(b.ReferenceCount, a.ReferenceCount)
		})
	}

	return next
}

// Transition validates and commits a single item move. Checks run in this
// order: item exists, version matches, a link reaches the target, the user is
// authorized at the destination. The save is conditional on the version read.
func (e *Engine) Transition(ctx context.Context, req TransitionRequest) (*models.Item, error) {
	item, err := e.loadItem(ctx, "Transition", req.ItemID, req.TargetNodeID)
	if err != nil {
		return nil, err
	}

	if item.Version != req.Version {
		return nil, &TransitionError{Op: "Transition", ItemID: item.ID, NodeID: req.TargetNodeID, Err: ErrConcurrentModification}
	}

	graph, err := e.loadGraph(ctx, item.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow of item %s: %w", item.ID, err)
	}

	if err := e.commit(ctx, "Transition", graph, item, req); err != nil {
		return nil, err
	}

	return item, nil
}

// BulkTransition moves every item it can to the target node and returns the
// ids of the items it left behind, in input order. A repeated id is moved once.
// Per-item rejections never fail the call; store failures do.
func (e *Engine) BulkTransition(ctx context.Context, itemIDs []string, targetNodeID string, user *models.User) ([]string, error) {
	itemIDs = UniqueIDs(itemIDs)

	var (
		rejected []string
		graphs   = make(map[string]*Graph)
	)

	for _, itemID := range itemIDs {
		err := e.bulkMove(ctx, graphs, itemID, targetNodeID, user)
		if err == nil {
			continue
		}

		if !isRejection(err) {
			return nil, err
		}

		e.logger.DebugContext(ctx, "Item left behind by bulk transition", "item_id", itemID, "node_id", targetNodeID, "reason", err)
		rejected = append(rejected, itemID)
	}

	e.logger.InfoContext(ctx, "Bulk transition finished",
		"node_id", targetNodeID,
		"requested", len(itemIDs),
		"rejected", len(rejected),
	)

	return rejected, nil
}

func (e *Engine) bulkMove(ctx context.Context, graphs map[string]*Graph, itemID, targetNodeID string, user *models.User) error {
	item, err := e.loadItem(ctx, "BulkTransition", itemID, targetNodeID)
	if err != nil {
		return err
	}

	graph, ok := graphs[item.WorkflowID]
	if !ok {
		graph, err = e.loadGraph(ctx, item.WorkflowID)
		if err != nil {
			return fmt.Errorf("failed to load workflow of item %s: %w", item.ID, err)
		}

		graphs[item.WorkflowID] = graph
	}

	// Closed items stay where they are during bulk moves.
	if NewTracker(graph).State(item) == models.ItemStateClosed {
		return &TransitionError{Op: "BulkTransition", ItemID: item.ID, NodeID: targetNodeID, Err: ErrNoSuchTransition}
	}

	return e.commit(ctx, "BulkTransition", graph, item, TransitionRequest{
		ItemID:       item.ID,
		Version:      item.Version,
		TargetNodeID: targetNodeID,
		User:         user,
	})
}

func (e *Engine) loadItem(ctx context.Context, op, itemID, targetNodeID string) (*models.Item, error) {
	item, err := e.persistence.ItemRepository().GetByID(ctx, itemID)
	if err != nil {
		if persistence.IsItemNotFound(err) {
			return nil, &TransitionError{Op: op, ItemID: itemID, NodeID: targetNodeID, Err: ErrNoSuchTransition}
		}

		return nil, fmt.Errorf("failed to load item %s: %w", itemID, err)
	}

	return item, nil
}

// commit resolves the link, authorizes, advances and saves. The item's version
// must already have been checked against the caller's.
func (e *Engine) commit(ctx context.Context, op string, graph *Graph, item *models.Item, req TransitionRequest) error {
	reject := func(err error) error {
		return &TransitionError{Op: op, ItemID: item.ID, NodeID: req.TargetNodeID, Err: err}
	}

	tracker := NewTracker(graph)
	authorizer := NewAuthorizer(graph)

	responsible := req.Responsible
	if responsible == "" && req.User != nil {
		responsible = req.User.ID
	}

	expectedVersion := item.Version
	now := e.now().UTC()

	if item.CurrentNode == nil {
		initial := graph.InitialNode()
		if initial == nil || req.LinkID != "" || req.TargetNodeID != initial.ID {
			return reject(ErrNoSuchTransition)
		}

		if !authorizer.CanEnter(req.User, initial) {
			return reject(ErrUnauthorizedTransition)
		}

		tracker.Enter(item, responsible, now)
	} else {
		link := resolveLink(graph, item, req)
		if link == nil {
			return reject(ErrNoSuchTransition)
		}

		if !authorizer.CanExecute(req.User, link) {
			return reject(ErrUnauthorizedTransition)
		}

		tracker.Advance(item, link, responsible, now)
	}

	if err := e.persistence.ItemRepository().Update(ctx, item, expectedVersion); err != nil {
		if persistence.IsVersionConflict(err) {
			return reject(ErrConcurrentModification)
		}

		return fmt.Errorf("failed to save item %s: %w", item.ID, err)
	}

	e.logger.InfoContext(ctx, "Item transitioned",
		"op", op,
		"item_id", item.ID,
		"node_id", item.CurrentNode.NodeDescriptionID,
		"responsible", responsible,
		"version", item.Version,
	)

	return nil
}

// resolveLink finds the first eligible outgoing link of the item's current node
// matching the requested link and/or target node.
func resolveLink(graph *Graph, item *models.Item, req TransitionRequest) *models.LinkDescription {
	if req.LinkID == "" && req.TargetNodeID == "" {
		return nil
	}

	for _, link := range graph.OutgoingLinks(item.CurrentNode.NodeDescriptionID) {
		if req.LinkID != "" && link.ID != req.LinkID {
			continue
		}

		if req.TargetNodeID != "" && link.FinalNodeID != req.TargetNodeID {
			continue
		}

		if link.Accepts(item.Type) {
			return link
		}
	}

	return nil
}

// UniqueIDs drops empty and repeated ids, keeping the first occurrence.
func UniqueIDs(ids []string) []string {
	unique := make([]string, 0, len(ids))

	for _, id := range ids {
		if id != "" && !slices.Contains(unique, id) {
			unique = append(unique, id)
		}
	}

	return unique
}
