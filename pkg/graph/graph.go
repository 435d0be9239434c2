package graph

import (
	"fmt"
	"sort"
)

// Graph is a directed multigraph over component names. Edges point from a
// consumer component to the provider it imports from; edges accumulate
// capability-class labels that roll up into the consumer's node label (a
// node's label is the union of the capability classes carried on every
// edge it consumes).
//
// The same structure, with edges left unlabeled, backs the workflow step
// DAG and the linker's provider-instantiation ordering — both need nothing
// more than Kahn's-algorithm topological sort with deterministic ties.
type Graph struct {
	Nodes map[string]*Node
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{Nodes: make(map[string]*Node)}
}

// AddNode adds a node to the graph if it isn't already present.
func (g *Graph) AddNode(id string) *Node {
	if n, ok := g.Nodes[id]; ok {
		return n
	}
	n := NewNode(id)
	g.Nodes[id] = n
	return n
}

// GetNode returns a node by ID, or nil if absent.
func (g *Graph) GetNode(id string) *Node {
	return g.Nodes[id]
}

// AddEdge adds a directed dependency edge consumer -> provider (the
// direction instantiation order must respect: providers before
// consumers), optionally labeled with capability classes. Labels roll up
// onto the CONSUMER's node, not the provider's: the consumer is the
// component actually exercising the wired capability, and it is the
// consumer's accumulated label the Trifecta/Duo policy checks inspect.
func (g *Graph) AddEdge(consumer, provider string, classes ...string) error {
	c := g.GetNode(consumer)
	if c == nil {
		return fmt.Errorf("consumer node %s not found", consumer)
	}
	p := g.GetNode(provider)
	if p == nil {
		return fmt.Errorf("provider node %s not found", provider)
	}

	c.AddDependency(provider)
	p.AddDependent(consumer)
	c.AddClasses(classes...)

	return nil
}

// TopologicalSort returns nodes in dependency order (providers before
// consumers) using Kahn's algorithm with deterministic, sorted tie-breaking.
func (g *Graph) TopologicalSort() ([]*Node, error) {
	inDegree := make(map[string]int, len(g.Nodes))
	for id, n := range g.Nodes {
		inDegree[id] = len(n.DependsOn)
	}

	var queue []string
	for id, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	var result []*Node
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		node := g.Nodes[id]
		result = append(result, node)

		for _, dependentID := range node.DependedOnBy {
			inDegree[dependentID]--
			if inDegree[dependentID] == 0 {
				queue = append(queue, dependentID)
				sort.Strings(queue)
			}
		}
	}

	if len(result) != len(g.Nodes) {
		processed := make(map[string]bool, len(result))
		for _, n := range result {
			processed[n.ID] = true
		}

		var cycleNodes []string
		for id := range g.Nodes {
			if !processed[id] {
				cycleNodes = append(cycleNodes, id)
			}
		}
		sort.Strings(cycleNodes)

		return nil, fmt.Errorf("cycle detected involving %d nodes: %v", len(cycleNodes), cycleNodes)
	}

	return result, nil
}

// CycleNodes returns the IDs of nodes that could not be ordered by
// TopologicalSort because they participate in an unbroken cycle. It runs
// TopologicalSort once to test for a cycle, then repeats the Kahn pass to
// collect the unprocessed nodes. Returns nil if the graph is acyclic.
func (g *Graph) CycleNodes() []string {
	if _, err := g.TopologicalSort(); err == nil {
		return nil
	}

	inDegree := make(map[string]int, len(g.Nodes))
	for id, n := range g.Nodes {
		inDegree[id] = len(n.DependsOn)
	}
	var queue []string
	for id, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	processed := make(map[string]bool)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		processed[id] = true
		node := g.Nodes[id]
		for _, dependentID := range node.DependedOnBy {
			inDegree[dependentID]--
			if inDegree[dependentID] == 0 {
				queue = append(queue, dependentID)
				sort.Strings(queue)
			}
		}
	}

	var cycle []string
	for id := range g.Nodes {
		if !processed[id] {
			cycle = append(cycle, id)
		}
	}
	sort.Strings(cycle)
	return cycle
}
