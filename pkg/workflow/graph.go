// Package workflow implements the workflow description graph and the item transition engine.
package workflow

import (
	"slices"

	"github.com/dukex/itemflow/pkg/models"
)

// Graph is the in-memory view of one workflow description. It is built per
// request from the store and mutated in place; callers persist the result.
type Graph struct {
	description *models.WorkflowDescription
	nodes       map[string]*models.NodeDescription
	links       map[string]*models.LinkDescription
}

// NewGraph indexes a loaded description and checks its structural invariants.
func NewGraph(description *models.WorkflowDescription) (*Graph, error) {
	graph := &Graph{
		description: description,
		nodes:       make(map[string]*models.NodeDescription, len(description.Nodes)),
		links:       make(map[string]*models.LinkDescription, len(description.Links)),
	}

	for _, node := range description.Nodes {
		if _, exists := graph.nodes[node.ID]; exists {
			return nil, newGraphError("Load", description.ID, node.ID, "duplicate node id", ErrGraphConsistency)
		}

		graph.nodes[node.ID] = node
	}

	for _, link := range description.Links {
		if _, exists := graph.links[link.ID]; exists {
			return nil, newGraphError("Load", description.ID, link.ID, "duplicate link id", ErrGraphConsistency)
		}

		if err := graph.checkEndpoints("Load", link); err != nil {
			return nil, err
		}

		graph.links[link.ID] = link
	}

	if len(description.Nodes) > 0 {
		if _, ok := graph.nodes[description.InitialNodeID]; !ok {
			return nil, newGraphError("Load", description.ID, description.InitialNodeID, "initial node is not part of the workflow", ErrGraphConsistency)
		}
	}

	return graph, nil
}

// ID returns the workflow description id.
func (g *Graph) ID() string {
	return g.description.ID
}

// Description returns the underlying (possibly edited) description.
func (g *Graph) Description() *models.WorkflowDescription {
	return g.description
}

// InitialNode returns the designated entry point, or nil for an empty graph.
func (g *Graph) InitialNode() *models.NodeDescription {
	return g.nodes[g.description.InitialNodeID]
}

// Node looks up a node description by id.
func (g *Graph) Node(id string) (*models.NodeDescription, bool) {
	node, ok := g.nodes[id]

	return node, ok
}

// Link looks up a link description by id.
func (g *Graph) Link(id string) (*models.LinkDescription, bool) {
	link, ok := g.links[id]

	return link, ok
}

// Nodes returns the node descriptions in insertion order.
func (g *Graph) Nodes() []*models.NodeDescription {
	return g.description.Nodes
}

// Links returns the link descriptions in insertion order.
func (g *Graph) Links() []*models.LinkDescription {
	return g.description.Links
}

// OutgoingLinks returns every link leaving the node, self-links included, in insertion order.
func (g *Graph) OutgoingLinks(nodeID string) []*models.LinkDescription {
	var outgoing []*models.LinkDescription

	for _, link := range g.description.Links {
		if link.InitialNodeID == nodeID {
			outgoing = append(outgoing, link)
		}
	}

	return outgoing
}

// LinksTouching returns every link with at least one endpoint among nodeIDs.
func (g *Graph) LinksTouching(nodeIDs ...string) []*models.LinkDescription {
	var touching []*models.LinkDescription

	for _, link := range g.description.Links {
		if slices.Contains(nodeIDs, link.InitialNodeID) || slices.Contains(nodeIDs, link.FinalNodeID) {
			touching = append(touching, link)
		}
	}

	return touching
}

// TitleExists reports whether a node description already uses the title.
func (g *Graph) TitleExists(title string) bool {
	return g.nodeTitleTaken(title, "")
}

// LinkTitleExists reports whether a link description already uses the title.
func (g *Graph) LinkTitleExists(title string) bool {
	return g.linkTitleTaken(title, "")
}

func (g *Graph) nodeTitleTaken(title, exceptID string) bool {
	for _, node := range g.description.Nodes {
		if node.Title == title && node.ID != exceptID {
			return true
		}
	}

	return false
}

func (g *Graph) linkTitleTaken(title, exceptID string) bool {
	for _, link := range g.description.Links {
		if link.Title == title && link.ID != exceptID {
			return true
		}
	}

	return false
}

// AddNode inserts a node description. The first node of an empty graph becomes its initial node.
func (g *Graph) AddNode(node *models.NodeDescription) error {
	if err := g.checkNode("AddNode", node, ""); err != nil {
		return err
	}

	if _, exists := g.nodes[node.ID]; exists {
		return newGraphError("AddNode", g.ID(), node.ID, "node id already in use", ErrGraphConsistency)
	}

	node.WorkflowID = g.ID()
	node.ReferenceCount = 0
	g.nodes[node.ID] = node
	g.description.Nodes = append(g.description.Nodes, node)

	if g.description.InitialNodeID == "" {
		g.description.InitialNodeID = node.ID
	}

	return nil
}

// UpdateNode replaces the editable attributes of an existing node description.
func (g *Graph) UpdateNode(updated *models.NodeDescription) error {
	existing, ok := g.nodes[updated.ID]
	if !ok {
		return newGraphError("UpdateNode", g.ID(), updated.ID, "unknown node", ErrGraphConsistency)
	}

	if err := g.checkNode("UpdateNode", updated, updated.ID); err != nil {
		return err
	}

	existing.Title = updated.Title
	existing.IsFinal = updated.IsFinal
	existing.AuthorizedUsers = updated.AuthorizedUsers
	existing.AuthorizedGroups = updated.AuthorizedGroups

	return nil
}

// SetInitialNode designates another existing node as the entry point.
func (g *Graph) SetInitialNode(nodeID string) error {
	if _, ok := g.nodes[nodeID]; !ok {
		return newGraphError("SetInitialNode", g.ID(), nodeID, "unknown node", ErrGraphConsistency)
	}

	g.description.InitialNodeID = nodeID

	return nil
}

// AddLink inserts a link description. Self-links and cycles are legal.
func (g *Graph) AddLink(link *models.LinkDescription) error {
	if err := g.checkLink("AddLink", link, ""); err != nil {
		return err
	}

	if _, exists := g.links[link.ID]; exists {
		return newGraphError("AddLink", g.ID(), link.ID, "link id already in use", ErrGraphConsistency)
	}

	link.WorkflowID = g.ID()
	g.links[link.ID] = link
	g.description.Links = append(g.description.Links, link)
	g.adjustReferences(link, 1)

	return nil
}

// UpdateLink replaces the title, endpoints and eligible types of an existing link.
func (g *Graph) UpdateLink(updated *models.LinkDescription) error {
	existing, ok := g.links[updated.ID]
	if !ok {
		return newGraphError("UpdateLink", g.ID(), updated.ID, "unknown link", ErrGraphConsistency)
	}

	if err := g.checkLink("UpdateLink", updated, updated.ID); err != nil {
		return err
	}

	g.adjustReferences(existing, -1)

	existing.Title = updated.Title
	existing.InitialNodeID = updated.InitialNodeID
	existing.FinalNodeID = updated.FinalNodeID
	existing.EligibleTypes = updated.EligibleTypes

	g.adjustReferences(existing, 1)

	return nil
}

// DeleteLinks removes the given links. Unknown ids fail the whole call.
func (g *Graph) DeleteLinks(linkIDs ...string) ([]*models.LinkDescription, error) {
	for _, id := range linkIDs {
		if _, ok := g.links[id]; !ok {
			return nil, newGraphError("DeleteLinks", g.ID(), id, "unknown link", ErrGraphConsistency)
		}
	}

	return g.removeLinks(linkIDs), nil
}

// DeleteNodes removes the given nodes together with every link touching them and
// returns the removed links. The initial node cannot be deleted.
func (g *Graph) DeleteNodes(nodeIDs ...string) ([]*models.LinkDescription, error) {
	for _, id := range nodeIDs {
		if _, ok := g.nodes[id]; !ok {
			return nil, newGraphError("DeleteNodes", g.ID(), id, "unknown node", ErrGraphConsistency)
		}

		if id == g.description.InitialNodeID {
			return nil, newGraphError("DeleteNodes", g.ID(), g.nodes[id].Title, "the initial node cannot be deleted", ErrGraphConsistency)
		}
	}

	touching := g.LinksTouching(nodeIDs...)
	linkIDs := make([]string, 0, len(touching))

	for _, link := range touching {
		linkIDs = append(linkIDs, link.ID)
	}

	removed := g.removeLinks(linkIDs)

	g.description.Nodes = slices.DeleteFunc(g.description.Nodes, func(node *models.NodeDescription) bool {
		return slices.Contains(nodeIDs, node.ID)
	})

	for _, id := range nodeIDs {
		delete(g.nodes, id)
	}

	return removed, nil
}

func (g *Graph) removeLinks(linkIDs []string) []*models.LinkDescription {
	removed := make([]*models.LinkDescription, 0, len(linkIDs))

	g.description.Links = slices.DeleteFunc(g.description.Links, func(link *models.LinkDescription) bool {
		if !slices.Contains(linkIDs, link.ID) {
			return false
		}

		removed = append(removed, link)

		return true
	})

	for _, link := range removed {
		delete(g.links, link.ID)
		g.adjustReferences(link, -1)
	}

	return removed
}

// adjustReferences keeps the link share of node reference counts current.
func (g *Graph) adjustReferences(link *models.LinkDescription, delta int) {
	if node, ok := g.nodes[link.InitialNodeID]; ok {
		node.ReferenceCount += delta
	}

	if link.IsSelfLink() {
		return
	}

	if node, ok := g.nodes[link.FinalNodeID]; ok {
		node.ReferenceCount += delta
	}
}

func (g *Graph) checkNode(op string, node *models.NodeDescription, exceptID string) error {
	if node.ID == "" {
		return newGraphError(op, g.ID(), node.Title, "node id is required", ErrGraphConsistency)
	}

	if node.Title == "" {
		return newGraphError(op, g.ID(), node.ID, "node title is required", ErrGraphConsistency)
	}

	if node.WorkflowID != "" && node.WorkflowID != g.ID() {
		return newGraphError(op, g.ID(), node.Title, "node belongs to workflow "+node.WorkflowID, ErrGraphConsistency)
	}

	if g.nodeTitleTaken(node.Title, exceptID) {
		return newGraphError(op, g.ID(), node.Title, "", ErrDuplicateTitle)
	}

	return nil
}

func (g *Graph) checkLink(op string, link *models.LinkDescription, exceptID string) error {
	if link.ID == "" {
		return newGraphError(op, g.ID(), link.Title, "link id is required", ErrGraphConsistency)
	}

	if link.Title == "" {
		return newGraphError(op, g.ID(), link.ID, "link title is required", ErrGraphConsistency)
	}

	if link.WorkflowID != "" && link.WorkflowID != g.ID() {
		return newGraphError(op, g.ID(), link.Title, "link belongs to workflow "+link.WorkflowID, ErrGraphConsistency)
	}

	if len(link.EligibleTypes) == 0 {
		return newGraphError(op, g.ID(), link.Title, "link must list at least one eligible item type", ErrGraphConsistency)
	}

	if err := g.checkEndpoints(op, link); err != nil {
		return err
	}

	if g.linkTitleTaken(link.Title, exceptID) {
		return newGraphError(op, g.ID(), link.Title, "", ErrDuplicateTitle)
	}

	return nil
}

func (g *Graph) checkEndpoints(op string, link *models.LinkDescription) error {
	for _, endpoint := range []string{link.InitialNodeID, link.FinalNodeID} {
		if _, ok := g.nodes[endpoint]; !ok {
			return newGraphError(op, g.ID(), link.Title, "endpoint "+endpoint+" is not a node of this workflow", ErrGraphConsistency)
		}
	}

	return nil
}
