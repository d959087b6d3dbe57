package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemTransitioned_JSON(t *testing.T) {
	original := &ItemTransitioned{
		BaseEvent:   NewBaseEvent(ItemTransitionedEvent, "wf-1"),
		ItemID:      "item-1",
		ProjectID:   "project-1",
		ToNodeID:    "open",
		ToNodeTitle: "Open",
		ActorID:     "alice",
		Responsible: "bob",
		Version:     2,
	}

	data, err := json.Marshal(original)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"item.transitioned"`)
	assert.NotContains(t, string(data), "from_node_id", "entry from CREATED has no origin")

	var decoded ItemTransitioned
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, original.ID, decoded.ID)
	assert.Equal(t, original.ToNodeID, decoded.ToNodeID)
	assert.Equal(t, original.Responsible, decoded.Responsible)
	assert.Equal(t, original.Version, decoded.Version)
}

func TestNew(t *testing.T) {
	tests := []struct {
		eventType EventType
		expected  any
	}{
		{ItemCreatedEvent, &ItemCreated{}},
		{ItemTransitionedEvent, &ItemTransitioned{}},
		{ItemsBulkTransitionedEvent, &ItemsBulkTransitioned{}},
		{WorkflowNodesDeletedEvent, &WorkflowNodesDeleted{}},
		{ProjectCreatedEvent, &ProjectCreated{}},
		{"unknown", nil},
	}

	for _, tt := range tests {
		t.Run(string(tt.eventType), func(t *testing.T) {
			event := New(tt.eventType)
			assert.Equal(t, tt.expected, event)

			if typed, ok := event.(interface{ GetType() EventType }); ok {
				assert.Equal(t, tt.eventType, typed.GetType())
			}
		})
	}
}
