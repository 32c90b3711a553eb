package graph

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Visualizer renders a dependency graph.
type Visualizer struct {
	graph *DependencyGraph
}

// NewVisualizer creates a visualizer for g.
func NewVisualizer(g *DependencyGraph) *Visualizer {
	return &Visualizer{graph: g}
}

// WriteDOT writes the graph in Graphviz DOT format. Nodes in a cycle are
// filled red.
func (v *Visualizer) WriteDOT(w io.Writer) error {
	v.graph.CalculateDepths()

	var b strings.Builder
	b.WriteString("digraph dependencies {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [shape=box];\n")

	ids := v.graph.IDs()
	for _, id := range ids {
		node, _ := v.graph.Node(id)
		color := "lightblue"
		if node.Depth < 0 {
			color = "salmon"
		}
		fmt.Fprintf(&b, "  %s [style=filled, fillcolor=%q];\n", strconv.Quote(id), color)
	}

	for _, id := range ids {
		for _, dep := range v.graph.Dependencies(id) {
			fmt.Fprintf(&b, "  %s -> %s;\n", strconv.Quote(id), strconv.Quote(dep))
		}
	}

	b.WriteString("}\n")
	_, err := io.WriteString(w, b.String())
	return err
}

// WriteText writes the nodes grouped by depth, leaves first, followed by the
// cycles and a summary.
func (v *Visualizer) WriteText(w io.Writer) error {
	v.graph.CalculateDepths()

	var b strings.Builder
	b.WriteString("Dependency Graph:\n")
	b.WriteString("=================\n\n")

	levels := make(map[int][]Node)
	maxDepth := -1
	var inCycle []Node
	for _, id := range v.graph.IDs() {
		node, _ := v.graph.Node(id)
		if node.Depth < 0 {
			inCycle = append(inCycle, node)
			continue
		}
		levels[node.Depth] = append(levels[node.Depth], node)
		maxDepth = max(maxDepth, node.Depth)
	}

	for depth := 0; depth <= maxDepth; depth++ {
		nodes, ok := levels[depth]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "Level %d:\n", depth)
		for _, node := range nodes {
			writeNode(&b, node)
		}
		b.WriteString("\n")
	}

	if len(inCycle) > 0 {
		b.WriteString("Nodes in cycles:\n")
		for _, node := range inCycle {
			writeNode(&b, node)
		}
		b.WriteString("\n")
		for _, cycle := range v.graph.Cycles() {
			fmt.Fprintf(&b, "  cycle: %s\n", strings.Join(cycle, " -> "))
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Nodes: %d, roots: %d, leaves: %d\n",
		v.graph.Size(), len(v.graph.Roots()), len(v.graph.Leaves()))

	_, err := io.WriteString(w, b.String())
	return err
}

// WriteAdjacencyList writes one "id -> [deps]" line per node.
func (v *Visualizer) WriteAdjacencyList(w io.Writer) error {
	var b strings.Builder
	for _, id := range v.graph.IDs() {
		fmt.Fprintf(&b, "%s -> [%s]\n", id, strings.Join(v.graph.Dependencies(id), ", "))
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func writeNode(b *strings.Builder, node Node) {
	fmt.Fprintf(b, "  %s\n", node.ID)
	if len(node.Dependencies) > 0 {
		fmt.Fprintf(b, "    depends on: %s\n", strings.Join(node.Dependencies, ", "))
	}
}
