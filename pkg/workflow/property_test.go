package workflow

import (
	"context"
	"fmt"
	"os"
	"slices"
	"testing"
	"time"

	"github.com/dukex/itemflow/pkg/models"
	"github.com/dukex/itemflow/pkg/persistence/file"
	"github.com/dukex/itemflow/pkg/testutil"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"pgregory.net/rapid"
)

var allItemTypes = []models.ItemType{
	models.ItemTypeBug,
	models.ItemTypeTask,
	models.ItemTypeFeature,
	models.ItemTypeImprovement,
}

// drawGraph builds a random graph of 1..8 nodes and up to 20 links, self-links
// and cycles included.
func drawGraph(t *rapid.T) *Graph {
	graph, err := NewGraph(&models.WorkflowDescription{ID: "random", Name: "Random"})
	if err != nil {
		t.Fatalf("empty graph: %v", err)
	}

	nodeCount := rapid.IntRange(1, 8).Draw(t, "nodes")
	for i := range nodeCount {
		if err := graph.AddNode(&models.NodeDescription{ID: fmt.Sprintf("n%d", i), Title: fmt.Sprintf("Node %d", i)}); err != nil {
			t.Fatalf("add node: %v", err)
		}
	}

	linkCount := rapid.IntRange(0, 20).Draw(t, "links")
	for i := range linkCount {
		from := rapid.IntRange(0, nodeCount-1).Draw(t, "from")
		to := rapid.IntRange(0, nodeCount-1).Draw(t, "to")
		types := rapid.SliceOfNDistinct(rapid.SampledFrom(allItemTypes), 1, len(allItemTypes), rapid.ID[models.ItemType]).Draw(t, "types")

		err := graph.AddLink(&models.LinkDescription{
			ID:            fmt.Sprintf("l%d", i),
			Title:         fmt.Sprintf("Link %d", i),
			InitialNodeID: fmt.Sprintf("n%d", from),
			FinalNodeID:   fmt.Sprintf("n%d", to),
			EligibleTypes: types,
		})
		if err != nil {
			t.Fatalf("add link: %v", err)
		}
	}

	return graph
}

func TestProperty_DeleteNodesLeavesNoDanglingLinks(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		graph := drawGraph(t)

		var candidates []string
		for _, node := range graph.Nodes() {
			if node.ID != graph.InitialNode().ID {
				candidates = append(candidates, node.ID)
			}
		}

		if len(candidates) == 0 {
			t.Skip("only the initial node exists")
		}

		doomed := rapid.SliceOfNDistinct(rapid.SampledFrom(candidates), 1, len(candidates), rapid.ID[string]).Draw(t, "doomed")
		expectedRemoved := len(graph.LinksTouching(doomed...))
		linksBefore := len(graph.Links())

		removed, err := graph.DeleteNodes(doomed...)
		if err != nil {
			t.Fatalf("delete nodes: %v", err)
		}

		if len(removed) != expectedRemoved || len(graph.Links()) != linksBefore-expectedRemoved {
			t.Fatalf("removed %d links, expected %d", len(removed), expectedRemoved)
		}

		for _, link := range graph.Links() {
			for _, id := range doomed {
				if link.Touches(id) {
					t.Fatalf("link %s still touches deleted node %s", link.ID, id)
				}
			}
		}

		// Reference counts equal the links still touching each node.
		for _, node := range graph.Nodes() {
			expected := 0
			for _, link := range graph.Links() {
				if link.Touches(node.ID) {
					expected++
				}
			}

			if node.ReferenceCount != expected {
				t.Fatalf("node %s has reference count %d, expected %d", node.ID, node.ReferenceCount, expected)
			}
		}
	})
}

func TestProperty_NextNodesAreEligibleDestinations(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		graph := drawGraph(t)
		itemType := rapid.SampledFrom(allItemTypes).Draw(t, "type")
		sortKey := rapid.SampledFrom([]SortKey{SortByInsertion, SortByTitle, SortByReferenceCount}).Draw(t, "sort")

		created := testutil.CreateTestItem(testutil.WithItemType(itemType))
		next := nextNodes(graph, created, sortKey)

		if len(next) != 1 || next[0].ID != graph.InitialNode().ID {
			t.Fatalf("created item must only reach the initial node, got %v", nodeIDs(next))
		}

		current := rapid.SampledFrom(graph.Nodes()).Draw(t, "current")
		item := testutil.CreateTestItem(testutil.WithItemType(itemType), testutil.AtNode(current.ID))
		next = nextNodes(graph, item, sortKey)

		ids := nodeIDs(next)
		if len(slices.Compact(slices.Sorted(slices.Values(ids)))) != len(ids) {
			t.Fatalf("duplicate destinations in %v", ids)
		}

		for _, link := range graph.OutgoingLinks(current.ID) {
			reachable := slices.Contains(ids, link.FinalNodeID)
			if link.Accepts(itemType) && !reachable {
				t.Fatalf("eligible destination %s missing", link.FinalNodeID)
			}
		}

		for _, id := range ids {
			found := slices.ContainsFunc(graph.OutgoingLinks(current.ID), func(link *models.LinkDescription) bool {
				return link.FinalNodeID == id && link.Accepts(itemType)
			})
			if !found {
				t.Fatalf("destination %s has no eligible link", id)
			}
		}
	})
}

func TestProperty_AdvanceBumpsVersionAndPushesHistory(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("every advance adds exactly one version and one history entry", prop.ForAll(
		func(moves []int, startVersion int64) bool {
			graph, err := NewGraph(testutil.IssueWorkflow())
			if err != nil {
				return false
			}

			tracker := NewTracker(graph)
			links := graph.Links()
			item := testutil.CreateTestItem(func(i *models.Item) { i.Version = startVersion })
			tracker.Enter(item, "alice", fixedNow)

			for step, move := range moves {
				previous := item.CurrentNode
				version := item.Version
				history := len(item.History)

				link := links[move%len(links)]
				created := tracker.Advance(item, link, "bob", fixedNow.Add(time.Duration(step)*time.Minute))

				if item.Version != version+1 || len(item.History) != history+1 {
					return false
				}

				if item.History[0] != previous || item.CurrentNode != created {
					return false
				}

				if created.NodeDescriptionID != link.FinalNodeID || created.ItemID != item.ID {
					return false
				}
			}

			return item.Version == startVersion+1+int64(len(moves))
		},
		gen.SliceOf(gen.IntRange(0, 100)),
		gen.Int64Range(0, 1000),
	))

	properties.TestingRun(t)
}

func TestProperty_BulkRejectsExactlyTheInvalidItems(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		root, err := os.MkdirTemp("", "bulk-property")
		if err != nil {
			t.Fatalf("temp dir: %v", err)
		}
		defer os.RemoveAll(root)

		ctx := context.Background()
		store := file.NewPersistence(root)

		nodes := []string{testutil.OpenNodeID, testutil.InProgressID, testutil.ResolvedNodeID, ""}
		count := rapid.IntRange(1, 6).Draw(t, "items")

		var (
			items    []*models.Item
			expected []string
		)

		for i := range count {
			at := rapid.SampledFrom(nodes).Draw(t, "at")
			itemType := rapid.SampledFrom(allItemTypes).Draw(t, "type")

			item := testutil.CreateTestItem(testutil.WithItemType(itemType), func(it *models.Item) { it.ID = fmt.Sprintf("item-%d", i) })
			if at != "" {
				testutil.AtNode(at)(item)
			}

			// Only bugs and tasks at InProgress have an eligible link to Resolved.
			valid := at == testutil.InProgressID && (itemType == models.ItemTypeBug || itemType == models.ItemTypeTask)
			if !valid {
				expected = append(expected, item.ID)
			}

			items = append(items, item)
		}

		if err := testutil.SeedIssueWorkflow(ctx, store, items...); err != nil {
			t.Fatalf("seed: %v", err)
		}

		ids := make([]string, 0, len(items))
		for _, item := range items {
			ids = append(ids, item.ID)
		}

		rejected, err := newTestEngine(store).BulkTransition(ctx, ids, testutil.ResolvedNodeID, testutil.Developer("alice"))
		if err != nil {
			t.Fatalf("bulk transition: %v", err)
		}

		if !slices.Equal(rejected, expected) {
			t.Fatalf("rejected %v, expected %v", rejected, expected)
		}

		for _, item := range items {
			stored, err := store.ItemRepository().GetByID(ctx, item.ID)
			if err != nil {
				t.Fatalf("load: %v", err)
			}

			moved := !slices.Contains(expected, item.ID)
			if moved && (stored.CurrentNode.NodeDescriptionID != testutil.ResolvedNodeID || stored.Version != item.Version+1) {
				t.Fatalf("item %s was not moved", item.ID)
			}

			if !moved && stored.Version != item.Version {
				t.Fatalf("rejected item %s was modified", item.ID)
			}
		}
	})
}
