package services

import (
	"testing"

	"github.com/dukex/itemflow/pkg/events"
	"github.com/dukex/itemflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProject_CreateClonesTemplate(t *testing.T) {
	f := newFixture(t)
	template := f.seedTemplate(t)
	service := NewProject(f.store, f.opts...)

	project, err := service.Create(t.Context(), CreateProjectRequest{Name: "Website", TemplateID: templateID})
	require.NoError(t, err)

	assert.NotEmpty(t, project.ID)
	assert.NotEqual(t, templateID, project.WorkflowID)
	assert.Equal(t, fixedNow, project.CreatedAt)

	clone, err := f.store.WorkflowRepository().GetByID(t.Context(), project.WorkflowID)
	require.NoError(t, err)
	assert.Equal(t, project.ID, clone.ProjectID)
	require.Len(t, clone.Nodes, len(template.Nodes))
	require.Len(t, clone.Links, len(template.Links))

	for i, node := range clone.Nodes {
		assert.Equal(t, template.Nodes[i].Title, node.Title)
		assert.NotEqual(t, template.Nodes[i].ID, node.ID)
	}

	assert.Equal(t, clone.Nodes[0].ID, clone.InitialNodeID)

	original, err := f.store.WorkflowRepository().GetByID(t.Context(), templateID)
	require.NoError(t, err)
	assert.True(t, original.IsTemplate())

	fetched, err := service.FetchByID(t.Context(), project.ID)
	require.NoError(t, err)
	assert.Equal(t, project.WorkflowID, fetched.WorkflowID)

	projects, err := service.List(t.Context())
	require.NoError(t, err)
	assert.Len(t, projects, 2)

	published := f.published()
	require.Len(t, published, 1)

	event := published[0].(events.ProjectCreated)
	assert.Equal(t, project.ID, event.ProjectID)
	assert.Equal(t, templateID, event.TemplateID)
}

func TestProject_ProjectsDoNotShareGraphs(t *testing.T) {
	f := newFixture(t)
	f.seedTemplate(t)
	projects := NewProject(f.store, f.opts...)
	workflows := NewWorkflow(f.store, f.opts...)

	first, err := projects.Create(t.Context(), CreateProjectRequest{Name: "First", TemplateID: templateID})
	require.NoError(t, err)

	second, err := projects.Create(t.Context(), CreateProjectRequest{Name: "Second", TemplateID: templateID})
	require.NoError(t, err)

	firstGraph, err := workflows.FetchByID(t.Context(), first.WorkflowID)
	require.NoError(t, err)

	var resolvedID string

	for _, node := range firstGraph.Nodes {
		if node.Title == "Resolved" {
			resolvedID = node.ID
		}
	}

	_, err = workflows.DeleteNodes(t.Context(), first.WorkflowID, []string{resolvedID})
	require.NoError(t, err)

	secondGraph, err := workflows.FetchByID(t.Context(), second.WorkflowID)
	require.NoError(t, err)
	assert.Len(t, secondGraph.Nodes, 3)
	assert.Len(t, secondGraph.Links, 3)
}

func TestProject_CreateRejections(t *testing.T) {
	f := newFixture(t)
	service := NewProject(f.store, f.opts...)

	_, err := service.Create(t.Context(), CreateProjectRequest{TemplateID: templateID})
	assert.True(t, IsValidationError(err))

	_, err = service.Create(t.Context(), CreateProjectRequest{Name: "Missing template"})
	assert.True(t, IsValidationError(err))

	_, err = service.Create(t.Context(), CreateProjectRequest{Name: "Unknown", TemplateID: "nope"})
	assert.True(t, IsNotFound(err))

	_, err = service.Create(t.Context(), CreateProjectRequest{Name: "From project", TemplateID: testutil.IssueWorkflowID})
	assert.ErrorIs(t, err, ErrNotATemplate)
	assert.True(t, IsValidationError(err))

	projects, err := service.List(t.Context())
	require.NoError(t, err)
	assert.Len(t, projects, 1)
	assert.Empty(t, f.published())
}
