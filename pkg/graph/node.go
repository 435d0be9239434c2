// Package graph provides the directed, capability-labeled multigraph used
// by the capability graph analyser, plus the plain topological sort the
// workflow executor and linker reuse for their own DAGs.
package graph

import "sort"

// Node represents one component in the capability graph.
type Node struct {
	// ID is the component name.
	ID string

	// DependsOn holds the IDs of provider components/sentinels this node
	// imports from (edges point consumer -> provider).
	DependsOn []string

	// DependedOnBy holds the IDs of nodes that import from this node.
	DependedOnBy []string

	// Classes accumulates the capability classes carried by every edge
	// this node consumes (its consumer -> provider edges): the label is
	// what the component can do through its wired imports.
	Classes map[string]struct{}
}

// NewNode creates a new, unlabeled graph node.
func NewNode(id string) *Node {
	return &Node{
		ID:           id,
		DependsOn:    []string{},
		DependedOnBy: []string{},
		Classes:      make(map[string]struct{}),
	}
}

// AddDependency records an outgoing edge to another node, deduplicated.
func (n *Node) AddDependency(id string) {
	for _, dep := range n.DependsOn {
		if dep == id {
			return
		}
	}
	n.DependsOn = append(n.DependsOn, id)
}

// AddDependent records an incoming edge from another node, deduplicated.
func (n *Node) AddDependent(id string) {
	for _, dep := range n.DependedOnBy {
		if dep == id {
			return
		}
	}
	n.DependedOnBy = append(n.DependedOnBy, id)
}

// AddClasses merges capability classes into this node's accumulated label.
func (n *Node) AddClasses(classes ...string) {
	for _, c := range classes {
		n.Classes[c] = struct{}{}
	}
}

// HasClass reports whether the node's accumulated label contains class c.
func (n *Node) HasClass(c string) bool {
	_, ok := n.Classes[c]
	return ok
}

// ClassList returns the node's accumulated capability classes, sorted.
func (n *Node) ClassList() []string {
	out := make([]string, 0, len(n.Classes))
	for c := range n.Classes {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
