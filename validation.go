package dicore

import (
	"context"
	"io"
	"slices"

	"github.com/junioryono/dicore/internal/graph"
	"github.com/junioryono/dicore/internal/pipeline"
)

// CompileReport summarizes a Compile run.
type CompileReport = pipeline.CompileReport

// DependencyGraph holds the declared dependencies between services.
type DependencyGraph = graph.DependencyGraph

// Compile analyzes every bound class ahead of time, fills the prototype cache
// and looks for dependency cycles. Failing definitions are recorded in the
// report and never stop the run; the error is only set when ctx ends first.
func (c *Container) Compile(ctx context.Context) (*CompileReport, error) {
	if c.closed.Load() {
		return nil, ErrContainerClosed
	}

	report, err := c.compiler.Compile(ctx)
	if err != nil {
		return report, err
	}

	g := c.DependencyGraph()
	report.Cycles = g.Cycles()
	for _, cycle := range report.Cycles {
		c.logger.Warn("dependency cycle", "path", FormatPath(cycle))
	}

	report.Conflicts = c.lifetimeConflicts(g)
	for _, conflict := range report.Conflicts {
		c.logger.Warn("lifetime conflict", "service", conflict.ServiceID,
			"dependency", conflict.DependencyID, "path", FormatPath(conflict.Path))
	}
	return report, nil
}

// lifetimeConflicts walks the dependencies of every singleton through
// services that are not singletons themselves and reports each scoped service
// it reaches. A nested singleton reports its own conflicts.
func (c *Container) lifetimeConflicts(g *DependencyGraph) []LifetimeConflictError {
	var conflicts []LifetimeConflictError

	for _, def := range c.definitions.All() {
		if def.Lifetime != Singleton {
			continue
		}

		seen := map[string]bool{def.AbstractID: true}
		var walk func(path []string)
		walk = func(path []string) {
			for _, dep := range g.Dependencies(path[len(path)-1]) {
				if seen[dep] {
					continue
				}
				seen[dep] = true

				next := append(slices.Clone(path), dep)
				depDef, ok := c.definitions.Get(dep)
				switch {
				case ok && depDef.Lifetime == Scoped:
					conflicts = append(conflicts, LifetimeConflictError{
						ServiceID:          def.AbstractID,
						ServiceLifetime:    Singleton,
						DependencyID:       dep,
						DependencyLifetime: Scoped,
						Path:               next,
					})
				case ok && depDef.Lifetime == Singleton:
				default:
					walk(next)
				}
			}
		}
		walk([]string{def.AbstractID})
	}
	return conflicts
}

// DependencyGraph builds the graph of bound services and the classes they
// would auto-define. Edges follow constructor parameters, injected properties
// and setters that resolve to services.
func (c *Container) DependencyGraph() *DependencyGraph {
	g := graph.New()

	queue := make([]string, 0, c.definitions.Len())
	for _, def := range c.definitions.All() {
		queue = append(queue, def.AbstractID)
	}

	seen := make(map[string]bool, len(queue))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true

		deps := c.dependenciesOf(id)
		g.Add(id, deps...)
		for _, dep := range deps {
			if !seen[dep] {
				queue = append(queue, dep)
			}
		}
	}
	return g
}

// GraphFormat selects the output of WriteGraph.
type GraphFormat int

const (
	GraphText GraphFormat = iota
	GraphDOT
	GraphAdjacency
)

// WriteGraph renders the dependency graph to w.
func (c *Container) WriteGraph(w io.Writer, format GraphFormat) error {
	v := graph.NewVisualizer(c.DependencyGraph())
	switch format {
	case GraphDOT:
		return v.WriteDOT(w)
	case GraphAdjacency:
		return v.WriteAdjacencyList(w)
	default:
		return v.WriteText(w)
	}
}

// dependenciesOf returns the resolvable service ids the class behind id
// needs. Factories and instances declare none.
func (c *Container) dependenciesOf(id string) []string {
	className := id
	if def, ok := c.definitions.Get(id); ok {
		className = def.Concrete.ClassName(def.AbstractID)
	} else if !c.deps.Resolvable(id) {
		return nil
	}
	if className == "" {
		return nil
	}

	proto, ok := c.prototypes.Get(className)
	if !ok {
		if proto, ok = c.analyze(className); !ok {
			return nil
		}
		c.prototypes.Set(className, proto)
	}

	var deps []string
	for _, dep := range proto.Dependencies() {
		if c.deps.Resolvable(dep) && !slices.Contains(deps, dep) {
			deps = append(deps, dep)
		}
	}
	return deps
}
