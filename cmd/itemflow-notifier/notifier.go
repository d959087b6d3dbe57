// Package main provides the itemflow notifier, which turns committed workflow
// events into notifications for the people responsible for items.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dukex/itemflow/pkg/eventbus"
	"github.com/dukex/itemflow/pkg/events"
)

// Notification is one message for one recipient.
type Notification struct {
	Recipient string
	Subject   string
	ItemID    string
	EventType events.EventType
}

// Sink delivers notifications.
type Sink interface {
	Send(ctx context.Context, notification Notification) error
}

// LogSink writes each notification to the log.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger.With("module", "notification_sink")}
}

func (s *LogSink) Send(ctx context.Context, notification Notification) error {
	s.logger.InfoContext(ctx, "Notification",
		"recipient", notification.Recipient,
		"subject", notification.Subject,
		"item_id", notification.ItemID,
		"event_type", notification.EventType,
	)

	return nil
}

type Notifier struct {
	logger   *slog.Logger
	eventBus eventbus.EventSubscriber
	sink     Sink
}

func NewNotifier(logger *slog.Logger, eventBus eventbus.EventSubscriber, sink Sink) *Notifier {
	return &Notifier{
		logger:   logger.With("module", "notifier"),
		eventBus: eventBus,
		sink:     sink,
	}
}

// Start registers the handlers and begins consuming events.
func (n *Notifier) Start(ctx context.Context) error {
	if err := n.setupEventSubscriptions(); err != nil {
		return err
	}

	if err := n.eventBus.Subscribe(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to events: %w", err)
	}

	n.logger.InfoContext(ctx, "Notifier started")

	return nil
}

// Run starts the notifier and blocks until ctx ends or the process is signalled.
func (n *Notifier) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := n.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	n.logger.Info("Shutting down gracefully")

	return nil
}

func (n *Notifier) setupEventSubscriptions() error {
	if err := n.eventBus.Handle(events.ItemTransitionedEvent, n.handleItemTransitioned); err != nil {
		return fmt.Errorf("failed to subscribe to %s events: %w", events.ItemTransitionedEvent, err)
	}

	if err := n.eventBus.Handle(events.ItemsBulkTransitionedEvent, n.handleItemsBulkTransitioned); err != nil {
		return fmt.Errorf("failed to subscribe to %s events: %w", events.ItemsBulkTransitionedEvent, err)
	}

	if err := n.eventBus.Handle(events.WorkflowNodesDeletedEvent, n.handleWorkflowNodesDeleted); err != nil {
		return fmt.Errorf("failed to subscribe to %s events: %w", events.WorkflowNodesDeletedEvent, err)
	}

	return nil
}

// handleItemTransitioned tells the new responsible user about the item, unless
// they moved it themselves.
func (n *Notifier) handleItemTransitioned(ctx context.Context, eventData any) error {
	event, ok := eventData.(*events.ItemTransitioned)
	if !ok {
		return fmt.Errorf("invalid event type for %s: %T", events.ItemTransitionedEvent, eventData)
	}

	if event.Responsible == "" || event.Responsible == event.ActorID {
		n.logger.DebugContext(ctx, "No one to notify", "item_id", event.ItemID, "responsible", event.Responsible)

		return nil
	}

	subject := fmt.Sprintf("%s moved item %s to %s", event.ActorID, event.ItemID, nodeLabel(event.ToNodeTitle, event.ToNodeID))
	if event.Closed {
		subject = fmt.Sprintf("%s closed item %s in %s", event.ActorID, event.ItemID, nodeLabel(event.ToNodeTitle, event.ToNodeID))
	}

	return n.sink.Send(ctx, Notification{
		Recipient: event.Responsible,
		Subject:   subject,
		ItemID:    event.ItemID,
		EventType: event.GetType(),
	})
}

// handleItemsBulkTransitioned reports rejected items back to the actor.
func (n *Notifier) handleItemsBulkTransitioned(ctx context.Context, eventData any) error {
	event, ok := eventData.(*events.ItemsBulkTransitioned)
	if !ok {
		return fmt.Errorf("invalid event type for %s: %T", events.ItemsBulkTransitionedEvent, eventData)
	}

	n.logger.InfoContext(ctx, "Bulk transition",
		"to_node_id", event.ToNodeID,
		"moved", len(event.MovedItemIDs),
		"rejected", len(event.RejectedItemIDs),
	)

	if len(event.RejectedItemIDs) == 0 {
		return nil
	}

	return n.sink.Send(ctx, Notification{
		Recipient: event.ActorID,
		Subject: fmt.Sprintf("%d of %d items could not be moved to %s: %s",
			len(event.RejectedItemIDs),
			len(event.MovedItemIDs)+len(event.RejectedItemIDs),
			event.ToNodeID,
			strings.Join(event.RejectedItemIDs, ", "),
		),
		EventType: event.GetType(),
	})
}

// handleWorkflowNodesDeleted logs items that lost their position. Their
// responsible users are unknown once the node instance is gone.
func (n *Notifier) handleWorkflowNodesDeleted(ctx context.Context, eventData any) error {
	event, ok := eventData.(*events.WorkflowNodesDeleted)
	if !ok {
		return fmt.Errorf("invalid event type for %s: %T", events.WorkflowNodesDeletedEvent, eventData)
	}

	for _, itemID := range event.ResetItemIDs {
		n.logger.WarnContext(ctx, "Item returned to CREATED after node deletion",
			"workflow_id", event.WorkflowID,
			"item_id", itemID,
			"node_ids", event.NodeIDs,
		)
	}

	return nil
}

func nodeLabel(title, id string) string {
	if title != "" {
		return title
	}

	return id
}
