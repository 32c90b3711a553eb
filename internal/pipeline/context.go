// Package pipeline resolves services by running an ordered chain of steps over
// a per-call resolution context.
package pipeline

import (
	"slices"

	"github.com/junioryono/dicore/internal/prototype"
	"github.com/junioryono/dicore/internal/registry"
	"github.com/junioryono/dicore/internal/state"
)

// Metadata namespaces used by the built-in steps.
const (
	NamespacePrototype   = "prototype"
	NamespaceDiagnostics = "diagnostics"
	NamespaceLifecycle   = "lifecycle"
)

// Context is the mutable record of one resolution. A fresh context is created
// for every top-level call and every nested dependency; it is never shared
// between goroutines.
type Context struct {
	ServiceID string

	// Path lists the ancestor service ids, outermost first.
	Path  []string
	Depth int

	Overrides map[string]any
	Instance  any

	// Metadata holds "<namespace>.<key>" entries steps use to pass data along.
	Metadata map[string]any

	ManualInjection bool
	ScopeID         string
	Definition      *registry.Definition

	// Owner is the nearest ancestor bound as a singleton, empty when there is
	// none. Scoped services cannot be built under an owner.
	Owner string

	State           *state.Controller

	// Resolved is set when the instance came ready-made; the remaining
	// construction steps are skipped.
	Resolved bool

	// Err is the error that stopped the run. Finalizer steps see it.
	Err error
}

// NewContext creates a root context for serviceID.
func NewContext(serviceID string, overrides map[string]any) *Context {
	return &Context{
		ServiceID: serviceID,
		Overrides: overrides,
		Metadata:  make(map[string]any),
		State:     state.NewController(),
	}
}

// Child creates the context of a dependency of c. The child inherits the scope
// and the owner, and extends the path with c's service id.
func (c *Context) Child(serviceID string) *Context {
	path := make([]string, len(c.Path), len(c.Path)+1)
	copy(path, c.Path)
	path = append(path, c.ServiceID)

	owner := c.Owner
	if c.Definition != nil && c.Definition.Lifetime == registry.Singleton {
		owner = c.ServiceID
	}

	return &Context{
		ServiceID: serviceID,
		Path:      path,
		Depth:     c.Depth + 1,
		Metadata:  make(map[string]any),
		ScopeID:   c.ScopeID,
		Owner:     owner,
		State:     state.NewController(),
	}
}

// PathCopy returns a copy of Path safe to keep in errors.
func (c *Context) PathCopy() []string {
	return slices.Clone(c.Path)
}

// InPath reports whether id is an ancestor of c.
func (c *Context) InPath(id string) bool {
	return slices.Contains(c.Path, id)
}

// Set stores value under namespace.key.
func (c *Context) Set(namespace, key string, value any) {
	c.Metadata[namespace+"."+key] = value
}

// Get returns the value stored under namespace.key.
func (c *Context) Get(namespace, key string) (any, bool) {
	v, ok := c.Metadata[namespace+"."+key]
	return v, ok
}

// Resolve stores a ready-made instance and skips the remaining construction
// steps.
func (c *Context) Resolve(instance any) {
	c.Instance = instance
	c.Resolved = true
}

// Prototype returns the prototype the analysis step stored, if any.
func (c *Context) Prototype() *prototype.ServicePrototype {
	v, _ := c.Get(NamespacePrototype, "service")
	proto, _ := v.(*prototype.ServicePrototype)
	return proto
}

// Timings returns the step timings recorded so far.
func (c *Context) Timings() []Timing {
	v, _ := c.Get(NamespaceDiagnostics, "timings")
	timings, _ := v.([]Timing)
	return timings
}

var forward = []state.ResolutionState{
	state.ContextualLookup,
	state.DefinitionLookup,
	state.Autowire,
	state.Evaluate,
	state.Instantiate,
}

// advance walks the state controller forward along the main chain until it
// reaches target. Targets off the chain are a single transition.
func (c *Context) advance(target state.ResolutionState, hit bool) error {
	from := slices.Index(forward, c.State.State())
	to := slices.Index(forward, target)
	if from >= 0 && from == to {
		return nil
	}
	if from < 0 || to < 0 || to <= from {
		return c.State.AdvanceTo(target, hit)
	}

	for _, next := range forward[from+1 : to+1] {
		if err := c.State.AdvanceTo(next, hit); err != nil {
			return err
		}
	}
	return nil
}
