// Package graph records declared dependencies between services so cycles and
// build order can be found before anything is instantiated.
package graph

import (
	"slices"
	"sync"
)

// DependencyGraph maps each service id to the service ids it depends on.
// Nodes keep insertion order so every traversal is deterministic.
type DependencyGraph struct {
	mu    sync.RWMutex
	nodes map[string]*Node
	order []string
}

// Node is one service in the graph.
type Node struct {
	ID string

	// Dependencies are the services this node needs.
	Dependencies []string

	// Dependents are the services that need this node.
	Dependents []string

	// Depth is the longest dependency chain below the node, or -1 when the
	// node is part of a cycle.
	Depth int
}

// New creates an empty graph.
func New() *DependencyGraph {
	return &DependencyGraph{nodes: make(map[string]*Node)}
}

// Add records the dependencies of id, replacing any earlier edges of id.
// Dependencies without a node of their own are added as leaves.
func (g *DependencyGraph) Add(id string, deps ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	node := g.node(id)
	for _, dep := range node.Dependencies {
		if d, ok := g.nodes[dep]; ok {
			d.Dependents = slices.DeleteFunc(d.Dependents, func(s string) bool { return s == id })
		}
	}

	node.Dependencies = node.Dependencies[:0]
	for _, dep := range deps {
		if slices.Contains(node.Dependencies, dep) {
			continue
		}
		node.Dependencies = append(node.Dependencies, dep)
		d := g.node(dep)
		d.Dependents = append(d.Dependents, id)
	}
}

// Remove drops id and every edge touching it.
func (g *DependencyGraph) Remove(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	node, ok := g.nodes[id]
	if !ok {
		return
	}

	for _, dep := range node.Dependencies {
		if d, ok := g.nodes[dep]; ok {
			d.Dependents = slices.DeleteFunc(d.Dependents, func(s string) bool { return s == id })
		}
	}
	for _, dependent := range node.Dependents {
		if d, ok := g.nodes[dependent]; ok {
			d.Dependencies = slices.DeleteFunc(d.Dependencies, func(s string) bool { return s == id })
		}
	}

	delete(g.nodes, id)
	g.order = slices.DeleteFunc(g.order, func(s string) bool { return s == id })
}

func (g *DependencyGraph) node(id string) *Node {
	if n, ok := g.nodes[id]; ok {
		return n
	}
	n := &Node{ID: id}
	g.nodes[id] = n
	g.order = append(g.order, id)
	return n
}

// Has reports whether id is a node.
func (g *DependencyGraph) Has(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.nodes[id]
	return ok
}

// Size returns the number of nodes.
func (g *DependencyGraph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// IDs returns every node id in insertion order.
func (g *DependencyGraph) IDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.order)
}

// Node returns a copy of the node registered under id.
func (g *DependencyGraph) Node(id string) (Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return Node{}, false
	}
	return Node{
		ID:           n.ID,
		Dependencies: slices.Clone(n.Dependencies),
		Dependents:   slices.Clone(n.Dependents),
		Depth:        n.Depth,
	}, true
}

// Dependencies returns the direct dependencies of id.
func (g *DependencyGraph) Dependencies(id string) []string {
	n, _ := g.Node(id)
	return n.Dependencies
}

// Dependents returns the services that directly depend on id.
func (g *DependencyGraph) Dependents(id string) []string {
	n, _ := g.Node(id)
	return n.Dependents
}

// TransitiveDependencies returns every service reachable from id, nearest
// first.
func (g *DependencyGraph) TransitiveDependencies(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	start, ok := g.nodes[id]
	if !ok {
		return nil
	}

	seen := map[string]bool{id: true}
	queue := slices.Clone(start.Dependencies)
	var result []string

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if seen[current] {
			continue
		}
		seen[current] = true
		result = append(result, current)
		if n, ok := g.nodes[current]; ok {
			queue = append(queue, n.Dependencies...)
		}
	}
	return result
}

// Roots returns the nodes nothing depends on.
func (g *DependencyGraph) Roots() []string {
	return g.filter(func(n *Node) bool { return len(n.Dependents) == 0 })
}

// Leaves returns the nodes without dependencies.
func (g *DependencyGraph) Leaves() []string {
	return g.filter(func(n *Node) bool { return len(n.Dependencies) == 0 })
}

func (g *DependencyGraph) filter(keep func(*Node) bool) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var result []string
	for _, id := range g.order {
		if keep(g.nodes[id]) {
			result = append(result, id)
		}
	}
	return result
}

// TopologicalSort orders the nodes so every service comes after its
// dependencies. It fails with a CircularDependencyError when the graph has a
// cycle.
func (g *DependencyGraph) TopologicalSort() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	pending := make(map[string]int, len(g.nodes))
	var queue []string
	for _, id := range g.order {
		pending[id] = len(g.nodes[id].Dependencies)
		if pending[id] == 0 {
			queue = append(queue, id)
		}
	}

	result := make([]string, 0, len(g.nodes))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		result = append(result, current)

		for _, dependent := range g.nodes[current].Dependents {
			pending[dependent]--
			if pending[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(result) != len(g.nodes) {
		cycles := g.cycles()
		return nil, CircularDependencyError{Path: cycles[0]}
	}
	return result, nil
}

// DetectCycles returns the first cycle found, or nil.
func (g *DependencyGraph) DetectCycles() error {
	if cycles := g.Cycles(); len(cycles) > 0 {
		return CircularDependencyError{Path: cycles[0]}
	}
	return nil
}

// IsAcyclic reports whether the graph has no cycle.
func (g *DependencyGraph) IsAcyclic() bool {
	return len(g.Cycles()) == 0
}

// Cycles returns one closed path per strongly connected group of services that
// depend on each other. Each path starts and ends with the same id.
func (g *DependencyGraph) Cycles() [][]string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cycles()
}

func (g *DependencyGraph) cycles() [][]string {
	var result [][]string
	for _, component := range g.components() {
		if len(component) == 1 && !slices.Contains(g.nodes[component[0]].Dependencies, component[0]) {
			continue
		}
		result = append(result, g.cyclePath(component))
	}
	return result
}

// components returns the strongly connected components (Tarjan), each sorted
// by insertion order.
func (g *DependencyGraph) components() [][]string {
	var (
		index    int
		stack    []string
		onStack  = make(map[string]bool)
		indices  = make(map[string]int)
		lowlinks = make(map[string]int)
		result   [][]string
	)

	position := make(map[string]int, len(g.order))
	for i, id := range g.order {
		position[id] = i
	}

	var visit func(id string)
	visit = func(id string) {
		indices[id] = index
		lowlinks[id] = index
		index++
		stack = append(stack, id)
		onStack[id] = true

		for _, dep := range g.nodes[id].Dependencies {
			if _, seen := indices[dep]; !seen {
				visit(dep)
				lowlinks[id] = min(lowlinks[id], lowlinks[dep])
			} else if onStack[dep] {
				lowlinks[id] = min(lowlinks[id], indices[dep])
			}
		}

		if lowlinks[id] != indices[id] {
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
		slices.SortFunc(component, func(a, b string) int { return position[a] - position[b] })
		result = append(result, component)
	}

	for _, id := range g.order {
		if _, seen := indices[id]; !seen {
			visit(id)
		}
	}

	slices.SortFunc(result, func(a, b []string) int { return position[a[0]] - position[b[0]] })
	return result
}

// cyclePath walks from the first member of component back to itself, staying
// inside the component.
func (g *DependencyGraph) cyclePath(component []string) []string {
	start := component[0]
	members := make(map[string]bool, len(component))
	for _, id := range component {
		members[id] = true
	}

	visited := make(map[string]bool)
	var path []string

	var walk func(id string) bool
	walk = func(id string) bool {
		path = append(path, id)
		visited[id] = true
		for _, dep := range g.nodes[id].Dependencies {
			if dep == start {
				path = append(path, start)
				return true
			}
			if members[dep] && !visited[dep] && walk(dep) {
				return true
			}
		}
		path = path[:len(path)-1]
		return false
	}

	walk(start)
	return path
}

// CalculateDepths sets the Depth of every node.
func (g *DependencyGraph) CalculateDepths() {
	g.mu.Lock()
	defer g.mu.Unlock()

	inCycle := make(map[string]bool)
	for _, cycle := range g.cycles() {
		for _, id := range cycle {
			inCycle[id] = true
		}
	}

	memo := make(map[string]int)
	var depth func(id string) int
	depth = func(id string) int {
		if inCycle[id] {
			return -1
		}
		if d, ok := memo[id]; ok {
			return d
		}
		d := 0
		for _, dep := range g.nodes[id].Dependencies {
			child := depth(dep)
			if child < 0 {
				memo[id] = -1
				return -1
			}
			d = max(d, child+1)
		}
		memo[id] = d
		return d
	}

	for _, id := range g.order {
		g.nodes[id].Depth = depth(id)
	}
}
