package services

import (
	"context"
	"slices"

	"github.com/dukex/itemflow/pkg/events"
	"github.com/dukex/itemflow/pkg/metrics"
	"github.com/dukex/itemflow/pkg/models"
	"github.com/dukex/itemflow/pkg/otelhelper"
	"github.com/dukex/itemflow/pkg/persistence"
	"github.com/dukex/itemflow/pkg/workflow"
	"go.opentelemetry.io/otel/attribute"
)

// Transition moves items through their workflow. Each call runs the engine in
// its own transaction and announces the result after commit.
type Transition struct {
	persistence persistence.Persistence
	settings    settings
	notifier    notifier
}

func NewTransition(persistence persistence.Persistence, opts ...Option) *Transition {
	s := newSettings("transition_service", opts)

	return &Transition{
		persistence: persistence,
		settings:    s,
		notifier:    s.notifier(),
	}
}

type TransitionRequest struct {
	ItemID       string
	Version      int64
	TargetNodeID string
	LinkID       string
	ActorID      string
	// Responsible defaults to ActorID.
	Responsible string
}

type BulkTransitionRequest struct {
	ItemIDs      []string
	TargetNodeID string
	ActorID      string
}

// BulkTransitionResult splits the requested items, both lists in request order.
type BulkTransitionResult struct {
	Moved    []string `json:"moved"`
	Rejected []string `json:"rejected"`
}

// Transition validates and commits one move. An unknown actor is reported as not found.
func (t *Transition) Transition(ctx context.Context, req TransitionRequest) (*models.Item, error) {
	ctx, span := otelhelper.StartSpan(ctx, t.settings.tracer, "item.transition",
		attribute.String(otelhelper.ItemIDKey, req.ItemID),
		attribute.String(otelhelper.NodeIDKey, req.TargetNodeID),
		attribute.String(otelhelper.LinkIDKey, req.LinkID),
		attribute.String(otelhelper.UserIDKey, req.ActorID),
	)
	defer span.End()

	if req.TargetNodeID == "" && req.LinkID == "" {
		return nil, NewValidationError("Transition", "invalid_target", "target node or link is required", ErrTargetNodeRequired)
	}

	start := t.settings.now()

	var (
		item       *models.Item
		fromNodeID string
		target     *models.NodeDescription
	)

	err := t.persistence.Transaction(ctx, func(ctx context.Context, tx persistence.Persistence) error {
		user, err := tx.PrincipalRepository().GetUser(ctx, req.ActorID)
		if err != nil {
			return err
		}

		before, err := tx.ItemRepository().GetByID(ctx, req.ItemID)

		switch {
		case err == nil && before.CurrentNode != nil:
			fromNodeID = before.CurrentNode.NodeDescriptionID
		case err != nil && !persistence.IsItemNotFound(err):
			return err
		}

		engine := workflow.NewEngine(tx, t.settings.logger, workflow.WithClock(t.settings.now))

		item, err = engine.Transition(ctx, workflow.TransitionRequest{
			ItemID:       req.ItemID,
			Version:      req.Version,
			TargetNodeID: req.TargetNodeID,
			LinkID:       req.LinkID,
			User:         user,
			Responsible:  req.Responsible,
		})
		if err != nil {
			return err
		}

		description, err := tx.WorkflowRepository().GetByID(ctx, item.WorkflowID)
		if err != nil {
			return err
		}

		graph, err := workflow.NewGraph(description)
		if err != nil {
			return err
		}

		target, _ = graph.Node(item.CurrentNode.NodeDescriptionID)

		return nil
	})

	if t.settings.metrics != nil {
		t.settings.metrics.RecordTransition(transitionOutcome(err), t.settings.now().Sub(start))
	}

	if err != nil {
		otelhelper.SetError(span, err, attribute.String(otelhelper.ItemIDKey, req.ItemID))

		return nil, err
	}

	event := events.ItemTransitioned{
		BaseEvent:   events.NewBaseEvent(events.ItemTransitionedEvent, item.WorkflowID),
		ItemID:      item.ID,
		ProjectID:   item.ProjectID,
		FromNodeID:  fromNodeID,
		ToNodeID:    item.CurrentNode.NodeDescriptionID,
		ActorID:     req.ActorID,
		Responsible: item.CurrentNode.Responsible,
		Version:     item.Version,
	}

	if target != nil {
		event.ToNodeTitle = target.Title
		event.Closed = target.IsFinal
	}

	t.notifier.publish(ctx, item.ID, event)

	return item, nil
}

// Bulk moves every item it can to the target node. Duplicate ids are moved once.
func (t *Transition) Bulk(ctx context.Context, req BulkTransitionRequest) (*BulkTransitionResult, error) {
	itemIDs := workflow.UniqueIDs(req.ItemIDs)

	ctx, span := otelhelper.StartSpan(ctx, t.settings.tracer, "item.bulk_transition",
		attribute.String(otelhelper.NodeIDKey, req.TargetNodeID),
		attribute.String(otelhelper.UserIDKey, req.ActorID),
		attribute.Int(otelhelper.ItemCountKey, len(itemIDs)),
	)
	defer span.End()

	if len(itemIDs) == 0 {
		return nil, NewValidationError("Bulk", "invalid_request", "at least one item id is required", ErrNoItemsRequested)
	}

	if req.TargetNodeID == "" {
		return nil, NewValidationError("Bulk", "invalid_target", "target node is required", ErrTargetNodeRequired)
	}

	start := t.settings.now()

	var rejected []string

	err := t.persistence.Transaction(ctx, func(ctx context.Context, tx persistence.Persistence) error {
		user, err := tx.PrincipalRepository().GetUser(ctx, req.ActorID)
		if err != nil {
			return err
		}

		engine := workflow.NewEngine(tx, t.settings.logger, workflow.WithClock(t.settings.now))

		rejected, err = engine.BulkTransition(ctx, itemIDs, req.TargetNodeID, user)

		return err
	})
	if err != nil {
		otelhelper.SetError(span, err, attribute.String(otelhelper.NodeIDKey, req.TargetNodeID))

		return nil, err
	}

	result := &BulkTransitionResult{
		Moved:    make([]string, 0, len(itemIDs)-len(rejected)),
		Rejected: make([]string, 0, len(rejected)),
	}
	result.Rejected = append(result.Rejected, rejected...)

	for _, id := range itemIDs {
		if !slices.Contains(rejected, id) {
			result.Moved = append(result.Moved, id)
		}
	}

	span.SetAttributes(attribute.Int(otelhelper.RejectedKey, len(result.Rejected)))

	if t.settings.metrics != nil {
		t.settings.metrics.RecordBulkTransition(len(itemIDs), len(result.Rejected), t.settings.now().Sub(start))
	}

	t.notifier.publish(ctx, req.TargetNodeID, events.ItemsBulkTransitioned{
		BaseEvent:       events.NewBaseEvent(events.ItemsBulkTransitionedEvent, ""),
		ToNodeID:        req.TargetNodeID,
		ActorID:         req.ActorID,
		MovedItemIDs:    result.Moved,
		RejectedItemIDs: result.Rejected,
	})

	return result, nil
}

func transitionOutcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeCommitted
	case workflow.IsConcurrentModification(err):
		return metrics.OutcomeConflict
	case workflow.IsUnauthorizedTransition(err):
		return metrics.OutcomeUnauthorized
	case workflow.IsNoSuchTransition(err), persistence.IsNotFound(err):
		return metrics.OutcomeRejected
	default:
		return metrics.OutcomeError
	}
}
