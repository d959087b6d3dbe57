package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/itemflow/pkg/channels/gochannel"
	"github.com/dukex/itemflow/pkg/eventbus"
	"github.com/dukex/itemflow/pkg/events"
	"github.com/dukex/itemflow/pkg/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu            sync.Mutex
	notifications []Notification
}

func (s *recordingSink) Send(_ context.Context, notification Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.notifications = append(s.notifications, notification)

	return nil
}

func (s *recordingSink) sent() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]Notification(nil), s.notifications...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifier_ItemTransitioned(t *testing.T) {
	testCases := []struct {
		name     string
		event    *events.ItemTransitioned
		expected []Notification
	}{
		{
			name: "notifies new responsible",
			event: &events.ItemTransitioned{
				ItemID: "item-1", ToNodeID: "review", ToNodeTitle: "In Review", ActorID: "alice", Responsible: "bob",
			},
			expected: []Notification{{
				Recipient: "bob",
				Subject:   "alice moved item item-1 to In Review",
				ItemID:    "item-1",
				EventType: events.ItemTransitionedEvent,
			}},
		},
		{
			name: "closed item",
			event: &events.ItemTransitioned{
				ItemID: "item-2", ToNodeID: "resolved", ActorID: "alice", Responsible: "bob", Closed: true,
			},
			expected: []Notification{{
				Recipient: "bob",
				Subject:   "alice closed item item-2 in resolved",
				ItemID:    "item-2",
				EventType: events.ItemTransitionedEvent,
			}},
		},
		{
			name:  "actor is responsible",
			event: &events.ItemTransitioned{ItemID: "item-3", ToNodeID: "open", ActorID: "alice", Responsible: "alice"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			sink := &recordingSink{}
			notifier := NewNotifier(discardLogger(), &mocks.MockEventBus{}, sink)

			require.NoError(t, notifier.handleItemTransitioned(t.Context(), tc.event))
			assert.Equal(t, tc.expected, sink.sent())
		})
	}
}

func TestNotifier_BulkTransitioned(t *testing.T) {
	sink := &recordingSink{}
	notifier := NewNotifier(discardLogger(), &mocks.MockEventBus{}, sink)

	require.NoError(t, notifier.handleItemsBulkTransitioned(t.Context(), &events.ItemsBulkTransitioned{
		ToNodeID:     "in-progress",
		ActorID:      "alice",
		MovedItemIDs: []string{"a"},
	}))
	assert.Empty(t, sink.sent())

	require.NoError(t, notifier.handleItemsBulkTransitioned(t.Context(), &events.ItemsBulkTransitioned{
		ToNodeID:        "in-progress",
		ActorID:         "alice",
		MovedItemIDs:    []string{"a"},
		RejectedItemIDs: []string{"b", "c"},
	}))

	sent := sink.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "alice", sent[0].Recipient)
	assert.Equal(t, "2 of 3 items could not be moved to in-progress: b, c", sent[0].Subject)
}

func TestNotifier_RejectsWrongPayload(t *testing.T) {
	notifier := NewNotifier(discardLogger(), &mocks.MockEventBus{}, &recordingSink{})

	assert.Error(t, notifier.handleItemTransitioned(t.Context(), &events.ItemCreated{}))
	assert.Error(t, notifier.handleItemsBulkTransitioned(t.Context(), "nope"))
	assert.Error(t, notifier.handleWorkflowNodesDeleted(t.Context(), nil))
	assert.NoError(t, notifier.handleWorkflowNodesDeleted(t.Context(), &events.WorkflowNodesDeleted{ResetItemIDs: []string{"a"}}))
}

func TestNotifier_StartFailsWhenSubscribeFails(t *testing.T) {
	bus := &mocks.MockEventBus{}
	bus.On("Handle", mock.Anything, mock.Anything).Return(nil)
	bus.On("Subscribe", mock.Anything).Return(errors.New("broker unavailable"))

	err := NewNotifier(discardLogger(), bus, &recordingSink{}).Start(t.Context())
	assert.ErrorContains(t, err, "broker unavailable")
	bus.AssertNumberOfCalls(t, "Handle", 3)
}

func TestNotifier_ReceivesPublishedEvents(t *testing.T) {
	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(discardLogger(), pub, sub)
	t.Cleanup(func() { _ = bus.Close() })

	sink := &recordingSink{}

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	require.NoError(t, NewNotifier(discardLogger(), bus, sink).Start(ctx))

	require.NoError(t, bus.Publish(ctx, "item-9", events.ItemTransitioned{
		BaseEvent:   events.NewBaseEvent(events.ItemTransitionedEvent, "wf-1"),
		ItemID:      "item-9",
		ToNodeID:    "review",
		ToNodeTitle: "In Review",
		ActorID:     "alice",
		Responsible: "bob",
		Version:     3,
	}))

	assert.Eventually(t, func() bool {
		return len(sink.sent()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, "bob", sink.sent()[0].Recipient)
}
