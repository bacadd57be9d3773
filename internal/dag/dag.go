// Package dag provides the directed graph behind view lineage.
// Edges point from a dependency to its dependent (parent -> child). Unlike a
// build DAG, the graph may contain cycles and self-loops: view definitions are
// not validated by the catalog, so both are representable and reported rather
// than rejected.
package dag

import (
	"fmt"
	"sort"
)

// Node represents a node in the graph.
type Node struct {
	// ID is the unique identifier (object name)
	ID string
	// Data holds arbitrary node data
	Data any
}

// Graph represents a directed graph with a maintained reverse index.
type Graph struct {
	nodes   map[string]*Node
	edges   map[string][]string // parent -> children (dependents)
	parents map[string][]string // child -> parents (dependencies)
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:   make(map[string]*Node),
		edges:   make(map[string][]string),
		parents: make(map[string][]string),
	}
}

// Clear removes all nodes and edges from the graph.
func (g *Graph) Clear() {
	g.nodes = make(map[string]*Node)
	g.edges = make(map[string][]string)
	g.parents = make(map[string][]string)
}

// AddNode adds a node to the graph.
func (g *Graph) AddNode(id string, data any) {
	if _, exists := g.nodes[id]; !exists {
		g.nodes[id] = &Node{ID: id, Data: data}
		g.edges[id] = []string{}
		g.parents[id] = []string{}
	} else {
		// Update data if node already exists
		g.nodes[id].Data = data
	}
}

// AddEdge adds a directed edge from parent to child (child depends on parent).
// Duplicate edges are ignored; self-loops are kept.
func (g *Graph) AddEdge(parentID, childID string) error {
	if _, exists := g.nodes[parentID]; !exists {
		return fmt.Errorf("parent node %q does not exist", parentID)
	}
	if _, exists := g.nodes[childID]; !exists {
		return fmt.Errorf("child node %q does not exist", childID)
	}

	g.edges[parentID] = insertSorted(g.edges[parentID], childID)
	g.parents[childID] = insertSorted(g.parents[childID], parentID)
	return nil
}

// RemoveParents drops every edge into id, leaving the node itself in place.
func (g *Graph) RemoveParents(id string) {
	for _, parentID := range g.parents[id] {
		g.edges[parentID] = remove(g.edges[parentID], id)
	}
	if _, exists := g.nodes[id]; exists {
		g.parents[id] = []string{}
	}
}

// RemoveNode deletes a node and all edges touching it.
func (g *Graph) RemoveNode(id string) {
	if _, exists := g.nodes[id]; !exists {
		return
	}
	g.RemoveParents(id)
	for _, childID := range g.edges[id] {
		g.parents[childID] = remove(g.parents[childID], id)
	}
	delete(g.nodes, id)
	delete(g.edges, id)
	delete(g.parents, id)
}

// GetNode returns a node by ID.
func (g *Graph) GetNode(id string) (*Node, bool) {
	node, exists := g.nodes[id]
	return node, exists
}

// HasNode reports whether id is in the graph.
func (g *Graph) HasNode(id string) bool {
	_, exists := g.nodes[id]
	return exists
}

// GetParents returns the parents (dependencies) of a node, sorted.
func (g *Graph) GetParents(id string) []string {
	return append([]string(nil), g.parents[id]...)
}

// GetChildren returns the children (dependents) of a node, sorted.
func (g *Graph) GetChildren(id string) []string {
	return append([]string(nil), g.edges[id]...)
}

// GetAllNodes returns all nodes in the graph.
func (g *Graph) GetAllNodes() []*Node {
	nodes := make([]*Node, 0, len(g.nodes))
	for _, node := range g.nodes {
		nodes = append(nodes, node)
	}
	// Sort for deterministic output
	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].ID < nodes[j].ID
	})
	return nodes
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of edges in the graph.
func (g *Graph) EdgeCount() int {
	count := 0
	for _, children := range g.edges {
		count += len(children)
	}
	return count
}

// Clone returns a deep copy of the graph structure. Node data is shared.
func (g *Graph) Clone() *Graph {
	c := NewGraph()
	for id, node := range g.nodes {
		c.nodes[id] = &Node{ID: node.ID, Data: node.Data}
		c.edges[id] = append([]string{}, g.edges[id]...)
		c.parents[id] = append([]string{}, g.parents[id]...)
	}
	return c
}

// Cycles returns every strongly connected component that contains a cycle:
// components with more than one node, and single nodes with a self-loop.
// Members of each component are sorted; components are ordered by first member.
func (g *Graph) Cycles() [][]string {
	index := 0
	indices := make(map[string]int)
	lowlink := make(map[string]int)
	onStack := make(map[string]bool)
	var stack []string
	var result [][]string

	var strongConnect func(id string)
	strongConnect = func(id string) {
		indices[id] = index
		lowlink[id] = index
		index++
		stack = append(stack, id)
		onStack[id] = true

		for _, childID := range g.edges[id] {
			if _, seen := indices[childID]; !seen {
				strongConnect(childID)
				lowlink[id] = min(lowlink[id], lowlink[childID])
			} else if onStack[childID] {
				lowlink[id] = min(lowlink[id], indices[childID])
			}
		}

		if lowlink[id] != indices[id] {
			return
		}

		var component []string
		for {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[top] = false
			component = append(component, top)
			if top == id {
				break
			}
		}
		if len(component) > 1 || contains(g.edges[id], id) {
			sort.Strings(component)
			result = append(result, component)
		}
	}

	for _, id := range g.sortedIDs() {
		if _, seen := indices[id]; !seen {
			strongConnect(id)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i][0] < result[j][0]
	})
	return result
}

// Levels peels the graph into dependency layers. Level 0 holds nodes with no
// parents; a node sits one level above its deepest parent. Nodes on or behind
// a cycle can never be peeled, so a cyclic graph returns an error naming the
// cyclic groups.
func (g *Graph) Levels() ([][]string, error) {
	pending := make(map[string]int, len(g.nodes))
	var layer []string
	for id := range g.nodes {
		pending[id] = len(g.parents[id])
		if pending[id] == 0 {
			layer = append(layer, id)
		}
	}

	levels := [][]string{}
	placed := 0
	for len(layer) > 0 {
		sort.Strings(layer)
		levels = append(levels, layer)
		placed += len(layer)

		var next []string
		for _, id := range layer {
			for _, childID := range g.edges[id] {
				pending[childID]--
				if pending[childID] == 0 {
					next = append(next, childID)
				}
			}
		}
		layer = next
	}

	if placed != len(g.nodes) {
		return nil, fmt.Errorf("graph is cyclic, %d node(s) cannot be leveled: %v", len(g.nodes)-placed, g.Cycles())
	}
	return levels, nil
}

// GetAffectedNodes returns all nodes affected by changes to the given nodes.
// This includes the changed nodes and all their downstream dependents.
func (g *Graph) GetAffectedNodes(changedIDs []string) []string {
	affected := make(map[string]bool)

	var markAffected func(id string)
	markAffected = func(id string) {
		if affected[id] {
			return
		}
		affected[id] = true

		for _, childID := range g.edges[id] {
			markAffected(childID)
		}
	}

	for _, id := range changedIDs {
		if _, exists := g.nodes[id]; exists {
			markAffected(id)
		}
	}

	result := make([]string, 0, len(affected))
	for id := range affected {
		result = append(result, id)
	}
	sort.Strings(result)
	return result
}

// GetUpstreamNodes returns all nodes upstream of the given node (its
// dependencies and their dependencies). A node on a cycle is its own
// upstream.
func (g *Graph) GetUpstreamNodes(id string) []string {
	upstream := make(map[string]bool)

	var markUpstream func(nodeID string)
	markUpstream = func(nodeID string) {
		for _, parentID := range g.parents[nodeID] {
			if !upstream[parentID] {
				upstream[parentID] = true
				markUpstream(parentID)
			}
		}
	}

	markUpstream(id)

	result := make([]string, 0, len(upstream))
	for nodeID := range upstream {
		result = append(result, nodeID)
	}
	sort.Strings(result)
	return result
}

// GetRoots returns nodes with no parents (no dependencies).
func (g *Graph) GetRoots() []string {
	var roots []string
	for id := range g.nodes {
		if len(g.parents[id]) == 0 {
			roots = append(roots, id)
		}
	}
	sort.Strings(roots)
	return roots
}

// GetLeaves returns nodes with no children (no dependents).
func (g *Graph) GetLeaves() []string {
	var leaves []string
	for id := range g.nodes {
		if len(g.edges[id]) == 0 {
			leaves = append(leaves, id)
		}
	}
	sort.Strings(leaves)
	return leaves
}

func (g *Graph) sortedIDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// insertSorted adds s to a sorted slice unless already present.
func insertSorted(slice []string, s string) []string {
	i := sort.SearchStrings(slice, s)
	if i < len(slice) && slice[i] == s {
		return slice
	}
	slice = append(slice, "")
	copy(slice[i+1:], slice[i:])
	slice[i] = s
	return slice
}

func remove(slice []string, s string) []string {
	i := sort.SearchStrings(slice, s)
	if i < len(slice) && slice[i] == s {
		return append(slice[:i], slice[i+1:]...)
	}
	return slice
}

// contains checks if a sorted slice contains a string.
func contains(slice []string, str string) bool {
	i := sort.SearchStrings(slice, str)
	return i < len(slice) && slice[i] == str
}
