package services

import (
	"errors"
	"strings"
	"testing"

	"github.com/dukex/itemflow/pkg/events"
	"github.com/dukex/itemflow/pkg/mocks"
	"github.com/dukex/itemflow/pkg/models"
	"github.com/dukex/itemflow/pkg/persistence"
	"github.com/dukex/itemflow/pkg/testutil"
	"github.com/dukex/itemflow/pkg/workflow"
	prometheustest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestWorkflow_HealthCheck(t *testing.T) {
	f := newFixture(t)

	message, ok := NewWorkflow(f.store, f.opts...).HealthCheck(t.Context())
	assert.True(t, ok)
	assert.Equal(t, "Persistence layer is healthy", message)

	store := mocks.NewMockPersistence()
	store.On("HealthCheck", mock.Anything).Return(errors.New("connection refused"))

	message, ok = NewWorkflow(store).HealthCheck(t.Context())
	assert.False(t, ok)
	assert.Contains(t, message, "connection refused")
}

func TestWorkflow_CreateTemplate(t *testing.T) {
	f := newFixture(t)
	service := NewWorkflow(f.store, f.opts...)

	created, err := service.CreateTemplate(t.Context(), &models.WorkflowDescription{
		Name:      "Support",
		ProjectID: "ignored",
		Nodes: []*models.NodeDescription{
			{ID: "new", Title: "New", AuthorizedGroups: []string{testutil.DevelopersGroup}},
			{ID: "done", Title: "Done", IsFinal: true, AuthorizedGroups: []string{testutil.DevelopersGroup}},
		},
		Links: []*models.LinkDescription{
			{ID: "finish", Title: "Finish", InitialNodeID: "new", FinalNodeID: "done", EligibleTypes: []models.ItemType{models.ItemTypeTask}},
		},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.True(t, created.IsTemplate())
	assert.Equal(t, "new", created.InitialNodeID)
	assert.Equal(t, int64(1), created.Version)
	assert.Equal(t, fixedNow, created.CreatedAt)
	require.Len(t, created.Nodes, 2)
	assert.Equal(t, 1, created.Nodes[0].ReferenceCount)

	templates, err := service.List(t.Context(), ListWorkflowsRequest{TemplatesOnly: true})
	require.NoError(t, err)
	require.Len(t, templates, 1)
	assert.Equal(t, created.ID, templates[0].ID)
}

func TestWorkflow_CreateTemplate_Invalid(t *testing.T) {
	testCases := []struct {
		name        string
		description *models.WorkflowDescription
		check       func(t *testing.T, err error)
	}{
		{
			name:        "nil",
			description: nil,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrWorkflowNil)
			},
		},
		{
			name:        "missing name",
			description: &models.WorkflowDescription{},
			check: func(t *testing.T, err error) {
				assert.True(t, IsValidationError(err))
			},
		},
		{
			name: "duplicate node title",
			description: &models.WorkflowDescription{
				Name: "Dupes",
				Nodes: []*models.NodeDescription{
					{ID: "a", Title: "Open"},
					{ID: "b", Title: "Open"},
				},
			},
			check: func(t *testing.T, err error) {
				assert.True(t, workflow.IsDuplicateTitle(err))
				assert.True(t, IsConflictError(err))
				assert.False(t, IsValidationError(err))
			},
		},
		{
			name: "link without eligible types",
			description: &models.WorkflowDescription{
				Name:  "Untyped",
				Nodes: []*models.NodeDescription{{ID: "a", Title: "A"}},
				Links: []*models.LinkDescription{{ID: "l", Title: "Loop", InitialNodeID: "a", FinalNodeID: "a"}},
			},
			check: func(t *testing.T, err error) {
				assert.True(t, IsValidationError(err))
			},
		},
		{
			name: "link to foreign node",
			description: &models.WorkflowDescription{
				Name:  "Foreign",
				Nodes: []*models.NodeDescription{{ID: "a", Title: "A"}},
				Links: []*models.LinkDescription{{ID: "l", Title: "Out", InitialNodeID: "a", FinalNodeID: "elsewhere", EligibleTypes: []models.ItemType{models.ItemTypeBug}}},
			},
			check: func(t *testing.T, err error) {
				assert.True(t, workflow.IsGraphConsistency(err))
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)

			_, err := NewWorkflow(f.store, f.opts...).CreateTemplate(t.Context(), tc.description)
			require.Error(t, err)
			tc.check(t, err)
		})
	}
}

func TestWorkflow_ImportTemplates(t *testing.T) {
	f := newFixture(t)
	service := NewWorkflow(f.store, f.opts...)

	template := func() *models.WorkflowDescription {
		description := testutil.IssueWorkflow()
		description.ID = templateID
		description.ProjectID = ""

		return description
	}

	require.NoError(t, service.ImportTemplates(t.Context(), []*models.WorkflowDescription{template()}))
	require.NoError(t, service.ImportTemplates(t.Context(), []*models.WorkflowDescription{template()}))

	stored, err := service.FetchByID(t.Context(), templateID)
	require.NoError(t, err)
	assert.True(t, stored.IsTemplate())
	assert.Equal(t, int64(2), stored.Version)
	assert.Len(t, stored.Nodes, 3)
	assert.Len(t, stored.Links, 3)

	projectWorkflow := testutil.IssueWorkflow()
	err = service.ImportTemplates(t.Context(), []*models.WorkflowDescription{template(), projectWorkflow})
	assert.ErrorIs(t, err, ErrWorkflowInUse)

	owned, err := service.FetchByID(t.Context(), testutil.IssueWorkflowID)
	require.NoError(t, err)
	assert.Equal(t, "project-1", owned.ProjectID)

	err = service.ImportTemplates(t.Context(), []*models.WorkflowDescription{{Name: "No id"}})
	assert.True(t, IsValidationError(err))
}

func TestWorkflow_Delete(t *testing.T) {
	f := newFixture(t)
	f.seedTemplate(t)
	service := NewWorkflow(f.store, f.opts...)

	err := service.Delete(t.Context(), testutil.IssueWorkflowID)
	assert.ErrorIs(t, err, ErrWorkflowInUse)
	assert.True(t, IsConflictError(err))

	require.NoError(t, service.Delete(t.Context(), templateID))

	_, err = service.FetchByID(t.Context(), templateID)
	assert.True(t, IsNotFound(err))

	err = service.Delete(t.Context(), templateID)
	assert.True(t, IsNotFound(err))
}

func TestWorkflow_EditGraph(t *testing.T) {
	f := newFixture(t)
	service := NewWorkflow(f.store, f.opts...)
	ctx := t.Context()

	review, err := service.AddNode(ctx, testutil.IssueWorkflowID, workflow.NodeInput{
		Title:            "Review",
		AuthorizedGroups: []string{testutil.DevelopersGroup},
	})
	require.NoError(t, err)

	_, err = service.AddNode(ctx, testutil.IssueWorkflowID, workflow.NodeInput{Title: "Review"})
	assert.True(t, IsConflictError(err))

	link, err := service.AddLink(ctx, testutil.IssueWorkflowID, workflow.LinkInput{
		Title:         "Request review",
		InitialNodeID: testutil.InProgressID,
		FinalNodeID:   review.ID,
		EligibleTypes: []models.ItemType{models.ItemTypeBug},
	})
	require.NoError(t, err)

	_, err = service.EditLink(ctx, testutil.IssueWorkflowID, link.ID, workflow.LinkInput{
		Title:         "Ask for review",
		EligibleTypes: []models.ItemType{models.ItemTypeBug, models.ItemTypeFeature},
	})
	require.NoError(t, err)

	edited, err := service.EditNode(ctx, testutil.IssueWorkflowID, review.ID, workflow.NodeInput{
		Title:           "Code review",
		AuthorizedUsers: []string{"bob"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Code review", edited.Title)

	require.NoError(t, service.SetInitialNode(ctx, testutil.IssueWorkflowID, review.ID))

	stored, err := service.FetchByID(ctx, testutil.IssueWorkflowID)
	require.NoError(t, err)
	assert.Equal(t, review.ID, stored.InitialNodeID)
	assert.Len(t, stored.Nodes, 4)

	storedLink, err := f.store.LinkRepository().GetLink(ctx, testutil.IssueWorkflowID, link.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ask for review", storedLink.Title)
	assert.Equal(t, []models.ItemType{models.ItemTypeBug, models.ItemTypeFeature}, storedLink.EligibleTypes)

	require.NoError(t, service.DeleteLinks(ctx, testutil.IssueWorkflowID, []string{link.ID}))

	_, err = f.store.LinkRepository().GetLink(ctx, testutil.IssueWorkflowID, link.ID)
	assert.True(t, persistence.IsLinkDescriptionNotFound(err))

	err = service.DeleteLinks(ctx, testutil.IssueWorkflowID, nil)
	assert.True(t, IsValidationError(err))

	_, err = service.EditNode(ctx, testutil.IssueWorkflowID, "missing", workflow.NodeInput{Title: "X"})
	assert.True(t, IsNotFound(err))
}

func TestWorkflow_DeleteNodesCascades(t *testing.T) {
	parked := testutil.CreateTestItem(testutil.AtNode(testutil.InProgressID))
	waiting := testutil.CreateTestItem(testutil.AtNode(testutil.OpenNodeID))
	f := newFixture(t, parked, waiting)
	service := NewWorkflow(f.store, f.opts...)

	result, err := service.DeleteNodes(t.Context(), testutil.IssueWorkflowID, []string{testutil.InProgressID})
	require.NoError(t, err)

	assert.Equal(t, []string{testutil.InProgressID}, result.RemovedNodeIDs)
	assert.ElementsMatch(t, []string{testutil.StartLinkID, testutil.ResolveLinkID, testutil.ReassignLinkID}, result.RemovedLinkIDs)
	assert.Equal(t, []string{parked.ID}, result.ResetItemIDs)

	reset, err := f.store.ItemRepository().GetByID(t.Context(), parked.ID)
	require.NoError(t, err)
	assert.Nil(t, reset.CurrentNode)
	assert.Equal(t, int64(3), reset.Version)

	untouched, err := f.store.ItemRepository().GetByID(t.Context(), waiting.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), untouched.Version)

	published := f.published()
	require.Len(t, published, 1)

	event := published[0].(events.WorkflowNodesDeleted)
	assert.Equal(t, testutil.IssueWorkflowID, event.WorkflowID)
	assert.Equal(t, result.ResetItemIDs, event.ResetItemIDs)

	expected := `
# HELP itemflow_items_reset_total Items returned to CREATED because their current node was deleted
# TYPE itemflow_items_reset_total counter
itemflow_items_reset_total 1
`
	assert.NoError(t, prometheustest.GatherAndCompare(f.registry, strings.NewReader(expected), "itemflow_items_reset_total"))
}

func TestWorkflow_DeleteNodesRejectsInitialNode(t *testing.T) {
	f := newFixture(t)
	service := NewWorkflow(f.store, f.opts...)

	_, err := service.DeleteNodes(t.Context(), testutil.IssueWorkflowID, []string{testutil.OpenNodeID})
	assert.True(t, IsValidationError(err))

	_, err = service.DeleteNodes(t.Context(), testutil.IssueWorkflowID, nil)
	assert.True(t, IsValidationError(err))

	stored, err := f.store.WorkflowRepository().GetByID(t.Context(), testutil.IssueWorkflowID)
	require.NoError(t, err)
	assert.Len(t, stored.Nodes, 3)
	assert.Len(t, stored.Links, 3)
	assert.Empty(t, f.published())
}
