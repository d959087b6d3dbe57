// Package persistencetest holds the behaviour every graph store must share.
// Store packages run it against their own implementation.
package persistencetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dukex/itemflow/pkg/models"
	"github.com/dukex/itemflow/pkg/persistence"
	"github.com/dukex/itemflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Opener returns an empty store that lives until the test ends.
type Opener func(t *testing.T) persistence.Persistence

var errAbort = errors.New("abort")

// Run exercises the store contract against stores produced by open.
func Run(t *testing.T, open Opener) {
	t.Helper()

	tests := []struct {
		name string
		run  func(t *testing.T, p persistence.Persistence)
	}{
		{"workflow round trip", testWorkflowRoundTrip},
		{"workflow listing", testWorkflowListing},
		{"workflow attributes", testWorkflowAttributes},
		{"node and link edits", testNodeAndLinkEdits},
		{"item history round trip", testItemHistory},
		{"conditional item update", testConditionalUpdate},
		{"historical node references", testHistoricalReferences},
		{"transaction rollback", testTransactionRollback},
		{"nested transaction", testNestedTransaction},
		{"projects and principals", testProjectsAndPrincipals},
		{"health check", testHealthCheck},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.run(t, open(t))
		})
	}
}

func testWorkflowRoundTrip(t *testing.T, p persistence.Persistence) {
	ctx := context.Background()

	require.NoError(t, testutil.SeedIssueWorkflow(ctx, p))

	workflow, err := p.WorkflowRepository().GetByID(ctx, testutil.IssueWorkflowID)
	require.NoError(t, err)

	assert.Equal(t, "Issue workflow", workflow.Name)
	assert.Equal(t, "project-1", workflow.ProjectID)
	assert.Equal(t, testutil.OpenNodeID, workflow.InitialNodeID)

	require.Len(t, workflow.Nodes, 3)
	assert.Equal(t, testutil.OpenNodeID, workflow.Nodes[0].ID)
	assert.Equal(t, testutil.InProgressID, workflow.Nodes[1].ID)
	assert.Equal(t, testutil.ResolvedNodeID, workflow.Nodes[2].ID)
	assert.True(t, workflow.Nodes[2].IsFinal)
	assert.Equal(t, []string{testutil.DevelopersGroup}, workflow.Nodes[0].AuthorizedGroups)

	require.Len(t, workflow.Links, 3)
	assert.Equal(t, testutil.StartLinkID, workflow.Links[0].ID)
	assert.Equal(t, testutil.ResolveLinkID, workflow.Links[1].ID)
	assert.Equal(t, testutil.ReassignLinkID, workflow.Links[2].ID)
	assert.Equal(t, []models.ItemType{models.ItemTypeBug, models.ItemTypeTask}, workflow.Links[0].EligibleTypes)

	// A self-link counts once for its node.
	assert.Equal(t, 1, workflow.Nodes[0].ReferenceCount)
	assert.Equal(t, 3, workflow.Nodes[1].ReferenceCount)
	assert.Equal(t, 1, workflow.Nodes[2].ReferenceCount)

	_, err = p.WorkflowRepository().GetByID(ctx, "missing")
	assert.True(t, persistence.IsWorkflowNotFound(err))

	require.NoError(t, p.WorkflowRepository().Delete(ctx, testutil.IssueWorkflowID))

	_, err = p.WorkflowRepository().GetByID(ctx, testutil.IssueWorkflowID)
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func testWorkflowListing(t *testing.T, p persistence.Persistence) {
	ctx := context.Background()

	require.NoError(t, testutil.SeedIssueWorkflow(ctx, p))

	template := testutil.IssueWorkflow()
	template.ID = "template"
	template.ProjectID = ""
	require.NoError(t, p.WorkflowRepository().Save(ctx, template))

	all, err := p.WorkflowRepository().List(ctx, persistence.ListWorkflowsOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	templates, err := p.WorkflowRepository().List(ctx, persistence.ListWorkflowsOptions{TemplatesOnly: true})
	require.NoError(t, err)
	require.Len(t, templates, 1)
	assert.Equal(t, "template", templates[0].ID)
	assert.Len(t, templates[0].Nodes, 3)

	owned, err := p.WorkflowRepository().List(ctx, persistence.ListWorkflowsOptions{ProjectID: "project-1"})
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, testutil.IssueWorkflowID, owned[0].ID)
}

func testWorkflowAttributes(t *testing.T, p persistence.Persistence) {
	ctx := context.Background()

	require.NoError(t, testutil.SeedIssueWorkflow(ctx, p))

	workflow, err := p.WorkflowRepository().GetByID(ctx, testutil.IssueWorkflowID)
	require.NoError(t, err)

	workflow.Name = "Renamed"
	workflow.InitialNodeID = testutil.InProgressID
	workflow.Version = 7
	workflow.UpdatedAt = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	workflow.Nodes = nil
	workflow.Links = nil

	require.NoError(t, p.WorkflowRepository().UpdateAttributes(ctx, workflow))

	stored, err := p.WorkflowRepository().GetByID(ctx, testutil.IssueWorkflowID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", stored.Name)
	assert.Equal(t, testutil.InProgressID, stored.InitialNodeID)
	assert.Equal(t, int64(7), stored.Version)
	assert.Len(t, stored.Nodes, 3, "attribute updates leave the graph alone")
	assert.Len(t, stored.Links, 3)

	err = p.WorkflowRepository().UpdateAttributes(ctx, &models.WorkflowDescription{ID: "missing", Name: "Missing"})
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func testNodeAndLinkEdits(t *testing.T, p persistence.Persistence) {
	ctx := context.Background()

	require.NoError(t, testutil.SeedIssueWorkflow(ctx, p))

	nodes := p.NodeRepository()
	links := p.LinkRepository()

	review := testutil.CreateTestNodeDescription(func(n *models.NodeDescription) { n.ID = "review" }, testutil.WithTitle("Review"))
	require.NoError(t, nodes.SaveNode(ctx, testutil.IssueWorkflowID, review))

	stored, err := nodes.GetNode(ctx, testutil.IssueWorkflowID, "review")
	require.NoError(t, err)
	assert.Equal(t, "Review", stored.Title)
	assert.Equal(t, testutil.IssueWorkflowID, stored.WorkflowID)

	review.Title = "Code review"
	review.AuthorizedUsers = []string{"carol"}
	require.NoError(t, nodes.SaveNode(ctx, testutil.IssueWorkflowID, review))

	stored, err = nodes.GetNode(ctx, testutil.IssueWorkflowID, "review")
	require.NoError(t, err)
	assert.Equal(t, "Code review", stored.Title)
	assert.Equal(t, []string{"carol"}, stored.AuthorizedUsers)

	toReview := testutil.CreateTestLink(testutil.InProgressID, "review", func(l *models.LinkDescription) { l.ID = "to-review" })
	require.NoError(t, links.SaveLink(ctx, testutil.IssueWorkflowID, toReview))

	outgoing, err := links.FindLinksFrom(ctx, testutil.IssueWorkflowID, testutil.InProgressID)
	require.NoError(t, err)
	require.Len(t, outgoing, 3)
	assert.Equal(t, testutil.ResolveLinkID, outgoing[0].ID)
	assert.Equal(t, testutil.ReassignLinkID, outgoing[1].ID)
	assert.Equal(t, "to-review", outgoing[2].ID)

	link, err := links.GetLink(ctx, testutil.IssueWorkflowID, "to-review")
	require.NoError(t, err)
	assert.Equal(t, "review", link.FinalNodeID)

	require.NoError(t, links.DeleteLink(ctx, testutil.IssueWorkflowID, "to-review"))
	require.NoError(t, nodes.DeleteNode(ctx, testutil.IssueWorkflowID, "review"))

	_, err = links.GetLink(ctx, testutil.IssueWorkflowID, "to-review")
	assert.True(t, persistence.IsLinkDescriptionNotFound(err))

	_, err = nodes.GetNode(ctx, testutil.IssueWorkflowID, "review")
	assert.True(t, persistence.IsNodeDescriptionNotFound(err))

	assert.True(t, persistence.IsNodeDescriptionNotFound(nodes.DeleteNode(ctx, testutil.IssueWorkflowID, "review")))
	assert.True(t, persistence.IsLinkDescriptionNotFound(links.DeleteLink(ctx, testutil.IssueWorkflowID, "to-review")))
}

func testItemHistory(t *testing.T, p persistence.Persistence) {
	ctx := context.Background()

	item := testutil.CreateTestItem(testutil.AtNode(testutil.ResolvedNodeID))
	item.History = []*models.WorkflowNode{
		{ID: "second", ItemID: item.ID, NodeDescriptionID: testutil.InProgressID, Responsible: "bob", CreatedAt: item.CreatedAt},
		{ID: "first", ItemID: item.ID, NodeDescriptionID: testutil.OpenNodeID, CreatedAt: item.CreatedAt},
	}

	created := testutil.CreateTestItem()

	require.NoError(t, testutil.SeedIssueWorkflow(ctx, p, item, created))

	stored, err := p.ItemRepository().GetByID(ctx, item.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.CurrentNode)
	assert.Equal(t, testutil.ResolvedNodeID, stored.CurrentNode.NodeDescriptionID)
	assert.Equal(t, "alice", stored.CurrentNode.Responsible)
	require.Len(t, stored.History, 2)
	assert.Equal(t, "second", stored.History[0].ID)
	assert.Equal(t, "first", stored.History[1].ID)
	assert.Empty(t, stored.History[1].Responsible)

	fresh, err := p.ItemRepository().GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Nil(t, fresh.CurrentNode)
	assert.Empty(t, fresh.History)

	listed, err := p.ItemRepository().ListByProject(ctx, "project-1")
	require.NoError(t, err)
	assert.Len(t, listed, 2)

	require.NoError(t, p.ItemRepository().Delete(ctx, item.ID))

	_, err = p.ItemRepository().GetByID(ctx, item.ID)
	assert.True(t, persistence.IsItemNotFound(err))
}

func testConditionalUpdate(t *testing.T, p persistence.Persistence) {
	ctx := context.Background()

	item := testutil.CreateTestItem(testutil.AtNode(testutil.OpenNodeID))
	require.NoError(t, testutil.SeedIssueWorkflow(ctx, p, item))

	moved := *item
	moved.History = []*models.WorkflowNode{item.CurrentNode}
	moved.CurrentNode = &models.WorkflowNode{
		ID:                "moved",
		ItemID:            item.ID,
		NodeDescriptionID: testutil.InProgressID,
		Responsible:       "bob",
		CreatedAt:         item.CreatedAt.Add(time.Hour),
	}
	moved.Version = item.Version + 1

	require.NoError(t, p.ItemRepository().Update(ctx, &moved, item.Version))

	stale := moved
	stale.Title = "Lost update"
	stale.Version = moved.Version + 1

	err := p.ItemRepository().Update(ctx, &stale, item.Version)
	require.Error(t, err)
	assert.True(t, persistence.IsVersionConflict(err))

	stored, err := p.ItemRepository().GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, moved.Version, stored.Version)
	assert.Equal(t, item.Title, stored.Title)
	assert.Equal(t, "moved", stored.CurrentNode.ID)
	require.Len(t, stored.History, 1)
	assert.Equal(t, item.CurrentNode.ID, stored.History[0].ID)

	missing := testutil.CreateTestItem()
	err = p.ItemRepository().Update(ctx, missing, missing.Version)
	assert.True(t, persistence.IsItemNotFound(err))
}

func testHistoricalReferences(t *testing.T, p persistence.Persistence) {
	ctx := context.Background()

	first := testutil.CreateTestItem(testutil.AtNode(testutil.InProgressID))
	second := testutil.CreateTestItem(testutil.AtNode(testutil.ResolvedNodeID))
	second.History = []*models.WorkflowNode{
		{ID: "past", ItemID: second.ID, NodeDescriptionID: testutil.InProgressID, CreatedAt: second.CreatedAt},
	}

	require.NoError(t, testutil.SeedIssueWorkflow(ctx, p, first, second))

	instances, err := p.ItemRepository().FindHistoricalNodesReferencing(ctx, testutil.InProgressID)
	require.NoError(t, err)

	ids := make([]string, 0, len(instances))
	for _, instance := range instances {
		ids = append(ids, instance.ID)
	}

	assert.ElementsMatch(t, []string{first.CurrentNode.ID, "past"}, ids)

	none, err := p.ItemRepository().FindHistoricalNodesReferencing(ctx, testutil.OpenNodeID)
	require.NoError(t, err)
	assert.Empty(t, none)

	// Instances count towards the node's reference count.
	workflow, err := p.WorkflowRepository().GetByID(ctx, testutil.IssueWorkflowID)
	require.NoError(t, err)
	assert.Equal(t, 5, workflow.Nodes[1].ReferenceCount)
	assert.Equal(t, 2, workflow.Nodes[2].ReferenceCount)
}

func testTransactionRollback(t *testing.T, p persistence.Persistence) {
	ctx := context.Background()

	require.NoError(t, testutil.SeedIssueWorkflow(ctx, p))

	item := testutil.CreateTestItem()

	err := p.Transaction(ctx, func(ctx context.Context, tx persistence.Persistence) error {
		if err := tx.ItemRepository().Create(ctx, item); err != nil {
			return err
		}

		if err := tx.LinkRepository().DeleteLink(ctx, testutil.IssueWorkflowID, testutil.StartLinkID); err != nil {
			return err
		}

		// Writes are visible inside the transaction.
		if _, err := tx.ItemRepository().GetByID(ctx, item.ID); err != nil {
			return err
		}

		return errAbort
	})
	require.ErrorIs(t, err, errAbort)

	_, err = p.ItemRepository().GetByID(ctx, item.ID)
	assert.True(t, persistence.IsItemNotFound(err))

	_, err = p.LinkRepository().GetLink(ctx, testutil.IssueWorkflowID, testutil.StartLinkID)
	require.NoError(t, err)

	err = p.Transaction(ctx, func(ctx context.Context, tx persistence.Persistence) error {
		return tx.ItemRepository().Create(ctx, item)
	})
	require.NoError(t, err)

	_, err = p.ItemRepository().GetByID(ctx, item.ID)
	require.NoError(t, err)
}

func testNestedTransaction(t *testing.T, p persistence.Persistence) {
	ctx := context.Background()

	err := p.Transaction(ctx, func(ctx context.Context, tx persistence.Persistence) error {
		return tx.Transaction(ctx, func(context.Context, persistence.Persistence) error {
			return nil
		})
	})

	assert.ErrorIs(t, err, persistence.ErrNestedTransaction)
}

func testProjectsAndPrincipals(t *testing.T, p persistence.Persistence) {
	ctx := context.Background()

	project := &models.Project{ID: "project-2", Name: "Platform", CreatedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, p.ProjectRepository().Save(ctx, project))

	project.WorkflowID = "platform-workflow"
	require.NoError(t, p.ProjectRepository().Save(ctx, project))

	stored, err := p.ProjectRepository().GetByID(ctx, "project-2")
	require.NoError(t, err)
	assert.Equal(t, "Platform", stored.Name)
	assert.Equal(t, "platform-workflow", stored.WorkflowID)

	projects, err := p.ProjectRepository().List(ctx)
	require.NoError(t, err)
	assert.Len(t, projects, 1)

	_, err = p.ProjectRepository().GetByID(ctx, "missing")
	assert.True(t, persistence.IsProjectNotFound(err))

	principals := p.PrincipalRepository()

	require.NoError(t, principals.SaveGroup(ctx, &models.Group{ID: "qa", Name: "QA"}))
	require.NoError(t, principals.SaveGroup(ctx, &models.Group{ID: testutil.DevelopersGroup, Name: "Developers"}))
	require.NoError(t, principals.SaveUser(ctx, &models.User{ID: "alice", Name: "Alice", GroupIDs: []string{testutil.DevelopersGroup, "qa"}}))

	user, err := principals.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", user.Name)
	assert.ElementsMatch(t, []string{testutil.DevelopersGroup, "qa"}, user.GroupIDs)

	require.NoError(t, principals.SaveUser(ctx, &models.User{ID: "alice", Name: "Alice", GroupIDs: []string{"qa"}}))

	user, err = principals.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"qa"}, user.GroupIDs)

	group, err := principals.GetGroup(ctx, "qa")
	require.NoError(t, err)
	assert.Equal(t, "QA", group.Name)

	_, err = principals.GetUser(ctx, "missing")
	assert.True(t, persistence.IsUserNotFound(err))

	_, err = principals.GetGroup(ctx, "missing")
	assert.True(t, persistence.IsGroupNotFound(err))
}

func testHealthCheck(t *testing.T, p persistence.Persistence) {
	assert.NoError(t, p.HealthCheck(context.Background()))
}
