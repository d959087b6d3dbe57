package services

import (
	"errors"
	"strings"
	"testing"

	"github.com/dukex/itemflow/pkg/events"
	"github.com/dukex/itemflow/pkg/metrics"
	"github.com/dukex/itemflow/pkg/mocks"
	"github.com/dukex/itemflow/pkg/models"
	"github.com/dukex/itemflow/pkg/testutil"
	"github.com/prometheus/client_golang/prometheus"
	prometheustest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestTransition_EntersInitialNode(t *testing.T) {
	item := testutil.CreateTestItem()
	f := newFixture(t, item)
	service := NewTransition(f.store, f.opts...)

	moved, err := service.Transition(t.Context(), TransitionRequest{
		ItemID:       item.ID,
		Version:      1,
		TargetNodeID: testutil.OpenNodeID,
		ActorID:      "alice",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(2), moved.Version)
	require.NotNil(t, moved.CurrentNode)
	assert.Equal(t, testutil.OpenNodeID, moved.CurrentNode.NodeDescriptionID)
	assert.Equal(t, "alice", moved.CurrentNode.Responsible)
	assert.Equal(t, fixedNow, moved.CurrentNode.CreatedAt)

	stored, err := f.store.ItemRepository().GetByID(t.Context(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.Version)

	published := f.published()
	require.Len(t, published, 1)

	event, ok := published[0].(events.ItemTransitioned)
	require.True(t, ok)
	assert.Empty(t, event.FromNodeID)
	assert.Equal(t, testutil.OpenNodeID, event.ToNodeID)
	assert.Equal(t, "Open", event.ToNodeTitle)
	assert.Equal(t, "alice", event.ActorID)
	assert.False(t, event.Closed)

	expected := `
# HELP itemflow_transitions_total Single item transitions by outcome
# TYPE itemflow_transitions_total counter
itemflow_transitions_total{outcome="committed"} 1
`
	assert.NoError(t, prometheustest.GatherAndCompare(f.registry, strings.NewReader(expected), "itemflow_transitions_total"))
}

func TestTransition_ReassignAndResolve(t *testing.T) {
	item := testutil.CreateTestItem(testutil.AtNode(testutil.InProgressID))
	f := newFixture(t, item)
	service := NewTransition(f.store, f.opts...)

	reassigned, err := service.Transition(t.Context(), TransitionRequest{
		ItemID:      item.ID,
		Version:     2,
		LinkID:      testutil.ReassignLinkID,
		ActorID:     "alice",
		Responsible: "bob",
	})
	require.NoError(t, err)
	assert.Equal(t, "bob", reassigned.CurrentNode.Responsible)
	assert.Len(t, reassigned.History, 1)

	resolved, err := service.Transition(t.Context(), TransitionRequest{
		ItemID:       item.ID,
		Version:      3,
		TargetNodeID: testutil.ResolvedNodeID,
		ActorID:      "bob",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4), resolved.Version)
	assert.Equal(t, testutil.InProgressID, resolved.History[0].NodeDescriptionID)

	published := f.published()
	require.Len(t, published, 2)

	first := published[0].(events.ItemTransitioned)
	assert.Equal(t, testutil.InProgressID, first.FromNodeID)
	assert.Equal(t, testutil.InProgressID, first.ToNodeID)
	assert.Equal(t, "bob", first.Responsible)

	second := published[1].(events.ItemTransitioned)
	assert.Equal(t, testutil.ResolvedNodeID, second.ToNodeID)
	assert.True(t, second.Closed)
	assert.Equal(t, int64(4), second.Version)
}

func TestTransition_Rejections(t *testing.T) {
	testCases := []struct {
		name    string
		req     func(itemID string) TransitionRequest
		check   func(t *testing.T, err error)
		outcome string
	}{
		{
			name: "stale version",
			req: func(itemID string) TransitionRequest {
				return TransitionRequest{ItemID: itemID, Version: 1, TargetNodeID: testutil.InProgressID, ActorID: "alice"}
			},
			check: func(t *testing.T, err error) {
				assert.True(t, IsConflictError(err))
			},
			outcome: metrics.OutcomeConflict,
		},
		{
			name: "no link to target",
			req: func(itemID string) TransitionRequest {
				return TransitionRequest{ItemID: itemID, Version: 2, TargetNodeID: testutil.ResolvedNodeID, ActorID: "alice"}
			},
			check: func(t *testing.T, err error) {
				assert.True(t, IsConflictError(err))
			},
			outcome: metrics.OutcomeRejected,
		},
		{
			name: "actor not authorized at destination",
			req: func(itemID string) TransitionRequest {
				return TransitionRequest{ItemID: itemID, Version: 2, TargetNodeID: testutil.InProgressID, ActorID: "mallory"}
			},
			check: func(t *testing.T, err error) {
				assert.True(t, IsForbidden(err))
			},
			outcome: metrics.OutcomeUnauthorized,
		},
		{
			name: "unknown actor",
			req: func(itemID string) TransitionRequest {
				return TransitionRequest{ItemID: itemID, Version: 2, TargetNodeID: testutil.InProgressID, ActorID: "nobody"}
			},
			check: func(t *testing.T, err error) {
				assert.True(t, IsNotFound(err))
			},
			outcome: metrics.OutcomeRejected,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			item := testutil.CreateTestItem(testutil.AtNode(testutil.OpenNodeID))
			f := newFixture(t, item)
			service := NewTransition(f.store, f.opts...)

			_, err := service.Transition(t.Context(), tc.req(item.ID))
			require.Error(t, err)
			tc.check(t, err)

			stored, err := f.store.ItemRepository().GetByID(t.Context(), item.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(2), stored.Version)
			assert.Equal(t, testutil.OpenNodeID, stored.CurrentNode.NodeDescriptionID)
			assert.Empty(t, f.published())

			expected := `
# HELP itemflow_transitions_total Single item transitions by outcome
# TYPE itemflow_transitions_total counter
itemflow_transitions_total{outcome="` + tc.outcome + `"} 1
`
			assert.NoError(t, prometheustest.GatherAndCompare(f.registry, strings.NewReader(expected), "itemflow_transitions_total"))
		})
	}
}

func TestTransition_RequiresTarget(t *testing.T) {
	f := newFixture(t)
	service := NewTransition(f.store, f.opts...)

	_, err := service.Transition(t.Context(), TransitionRequest{ItemID: "item", Version: 1, ActorID: "alice"})
	assert.ErrorIs(t, err, ErrTargetNodeRequired)
	assert.True(t, IsValidationError(err))
}

func TestTransition_PublishFailureKeepsCommit(t *testing.T) {
	item := testutil.CreateTestItem()
	f := newFixture(t, item)

	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, item.ID, mock.Anything).Return(errors.New("broker down"))

	service := NewTransition(f.store, append(f.opts, WithPublisher(bus))...)

	moved, err := service.Transition(t.Context(), TransitionRequest{
		ItemID:       item.ID,
		Version:      1,
		TargetNodeID: testutil.OpenNodeID,
		ActorID:      "alice",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), moved.Version)
	bus.AssertExpectations(t)

	expected := `
# HELP itemflow_event_publish_failures_total Events that could not be published after commit
# TYPE itemflow_event_publish_failures_total counter
itemflow_event_publish_failures_total{event_type="item.transitioned"} 1
`
	assert.NoError(t, prometheustest.GatherAndCompare(f.registry, strings.NewReader(expected), "itemflow_event_publish_failures_total"))
}

func TestTransition_StoreFailureIsAnError(t *testing.T) {
	store := mocks.NewMockPersistence()
	store.On("Transaction", mock.Anything).Return(nil)
	store.Principals.On("GetUser", mock.Anything, "alice").Return(testutil.Developer("alice"), nil)
	store.Items.On("GetByID", mock.Anything, "item-1").Return(nil, errors.New("disk unavailable"))

	registry := prometheus.NewRegistry()
	service := NewTransition(store, WithMetrics(metrics.NewCollector(registry)))

	_, err := service.Transition(t.Context(), TransitionRequest{ItemID: "item-1", Version: 1, TargetNodeID: testutil.OpenNodeID, ActorID: "alice"})
	require.Error(t, err)
	assert.False(t, IsConflictError(err))
	assert.False(t, IsNotFound(err))

	expected := `
# HELP itemflow_transitions_total Single item transitions by outcome
# TYPE itemflow_transitions_total counter
itemflow_transitions_total{outcome="error"} 1
`
	assert.NoError(t, prometheustest.GatherAndCompare(registry, strings.NewReader(expected), "itemflow_transitions_total"))
	store.Items.AssertExpectations(t)
}

func TestTransition_Bulk(t *testing.T) {
	atOpen := testutil.CreateTestItem(testutil.AtNode(testutil.OpenNodeID))
	inProgress := testutil.CreateTestItem(testutil.AtNode(testutil.InProgressID))
	created := testutil.CreateTestItem()
	closed := testutil.CreateTestItem(testutil.AtNode(testutil.ResolvedNodeID))
	f := newFixture(t, atOpen, inProgress, created, closed)
	service := NewTransition(f.store, f.opts...)

	result, err := service.Bulk(t.Context(), BulkTransitionRequest{
		ItemIDs:      []string{atOpen.ID, created.ID, inProgress.ID, atOpen.ID, "ghost", closed.ID},
		TargetNodeID: testutil.InProgressID,
		ActorID:      "alice",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{atOpen.ID, inProgress.ID}, result.Moved)
	assert.Equal(t, []string{created.ID, "ghost", closed.ID}, result.Rejected)

	for _, id := range result.Moved {
		stored, err := f.store.ItemRepository().GetByID(t.Context(), id)
		require.NoError(t, err)
		assert.Equal(t, testutil.InProgressID, stored.CurrentNode.NodeDescriptionID)
		assert.Equal(t, int64(3), stored.Version)
	}

	for _, item := range []*models.Item{created, closed} {
		stored, err := f.store.ItemRepository().GetByID(t.Context(), item.ID)
		require.NoError(t, err)
		assert.Equal(t, item.Version, stored.Version)
	}

	published := f.published()
	require.Len(t, published, 1)

	event := published[0].(events.ItemsBulkTransitioned)
	assert.Equal(t, result.Moved, event.MovedItemIDs)
	assert.Equal(t, result.Rejected, event.RejectedItemIDs)

	expected := `
# HELP itemflow_bulk_rejections_total Items rejected by bulk transitions
# TYPE itemflow_bulk_rejections_total counter
itemflow_bulk_rejections_total 3
`
	assert.NoError(t, prometheustest.GatherAndCompare(f.registry, strings.NewReader(expected), "itemflow_bulk_rejections_total"))
}

func TestTransition_BulkValidation(t *testing.T) {
	f := newFixture(t)
	service := NewTransition(f.store, f.opts...)

	_, err := service.Bulk(t.Context(), BulkTransitionRequest{ItemIDs: []string{""}, TargetNodeID: testutil.OpenNodeID, ActorID: "alice"})
	assert.ErrorIs(t, err, ErrNoItemsRequested)

	_, err = service.Bulk(t.Context(), BulkTransitionRequest{ItemIDs: []string{"a"}, ActorID: "alice"})
	assert.ErrorIs(t, err, ErrTargetNodeRequired)

	_, err = service.Bulk(t.Context(), BulkTransitionRequest{ItemIDs: []string{"a"}, TargetNodeID: testutil.OpenNodeID, ActorID: "nobody"})
	assert.True(t, IsNotFound(err))
}

func TestTransition_BulkByOutsiderRejectsEverything(t *testing.T) {
	item := testutil.CreateTestItem(testutil.AtNode(testutil.OpenNodeID))
	f := newFixture(t, item)
	service := NewTransition(f.store, f.opts...)

	result, err := service.Bulk(t.Context(), BulkTransitionRequest{
		ItemIDs:      []string{item.ID},
		TargetNodeID: testutil.InProgressID,
		ActorID:      "mallory",
	})
	require.NoError(t, err)
	assert.Empty(t, result.Moved)
	assert.Equal(t, []string{item.ID}, result.Rejected)
}
