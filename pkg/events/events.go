// Package events defines the notifications published after workflow changes commit.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic carries every itemflow event.
const Topic = "itemflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	ItemCreatedEvent           EventType = "item.created"
	ItemTransitionedEvent      EventType = "item.transitioned"
	ItemsBulkTransitionedEvent EventType = "items.bulk_transitioned"
	WorkflowNodesDeletedEvent  EventType = "workflow.nodes_deleted"
	ProjectCreatedEvent        EventType = "project.created"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
		Metadata:   make(map[string]any),
	}
}

type ItemCreated struct {
	BaseEvent

	ItemID    string `json:"item_id"`
	ProjectID string `json:"project_id"`
	ItemType  string `json:"item_type"`
	Title     string `json:"title"`
}

func (e ItemCreated) GetType() EventType {
	return ItemCreatedEvent
}

// ItemTransitioned is published once a single transition has committed.
// FromNodeID is empty when the item entered the workflow from CREATED.
type ItemTransitioned struct {
	BaseEvent

	ItemID      string `json:"item_id"`
	ProjectID   string `json:"project_id"`
	FromNodeID  string `json:"from_node_id,omitempty"`
	ToNodeID    string `json:"to_node_id"`
	ToNodeTitle string `json:"to_node_title"`
	ActorID     string `json:"actor_id"`
	Responsible string `json:"responsible"`
	Version     int64  `json:"version"`
	Closed      bool   `json:"closed"`
}

func (e ItemTransitioned) GetType() EventType {
	return ItemTransitionedEvent
}

type ItemsBulkTransitioned struct {
	BaseEvent

	ToNodeID        string   `json:"to_node_id"`
	ActorID         string   `json:"actor_id"`
	MovedItemIDs    []string `json:"moved_item_ids"`
	RejectedItemIDs []string `json:"rejected_item_ids"`
}

func (e ItemsBulkTransitioned) GetType() EventType {
	return ItemsBulkTransitionedEvent
}

type WorkflowNodesDeleted struct {
	BaseEvent

	NodeIDs          []string `json:"node_ids"`
	LinkIDs          []string `json:"link_ids"`
	RemovedInstances int      `json:"removed_instances"`
	ResetItemIDs     []string `json:"reset_item_ids"`
}

func (e WorkflowNodesDeleted) GetType() EventType {
	return WorkflowNodesDeletedEvent
}

type ProjectCreated struct {
	BaseEvent

	ProjectID  string `json:"project_id"`
	Name       string `json:"name"`
	TemplateID string `json:"template_id,omitempty"`
}

func (e ProjectCreated) GetType() EventType {
	return ProjectCreatedEvent
}

// New returns an empty event of the given type for decoding, or nil when the
// type is unknown.
func New(eventType EventType) any {
	switch eventType {
	case ItemCreatedEvent:
		return &ItemCreated{}
	case ItemTransitionedEvent:
		return &ItemTransitioned{}
	case ItemsBulkTransitionedEvent:
		return &ItemsBulkTransitioned{}
	case WorkflowNodesDeletedEvent:
		return &WorkflowNodesDeleted{}
	case ProjectCreatedEvent:
		return &ProjectCreated{}
	default:
		return nil
	}
}
