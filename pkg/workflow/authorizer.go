package workflow

import "github.com/dukex/itemflow/pkg/models"

// Authorizer decides whether a user may receive items through a link.
// Authorization lives on the destination node description; links carry none.
type Authorizer struct {
	graph *Graph
}

// NewAuthorizer checks links against the node descriptions of graph.
func NewAuthorizer(graph *Graph) *Authorizer {
	return &Authorizer{graph: graph}
}

// CanExecute reports whether the user, or one of its groups, is authorized at the link's final node.
func (a *Authorizer) CanExecute(user *models.User, link *models.LinkDescription) bool {
	node, ok := a.graph.Node(link.FinalNodeID)
	if !ok {
		return false
	}

	return node.Authorizes(user)
}

// CanEnter reports whether the user may receive an item at the node without a link,
// which only happens on the implicit initial entry.
func (a *Authorizer) CanEnter(user *models.User, node *models.NodeDescription) bool {
	return node.Authorizes(user)
}
