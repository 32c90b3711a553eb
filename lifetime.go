package dicore

import (
	"github.com/junioryono/dicore/internal/lifecycle"
	"github.com/junioryono/dicore/internal/registry"
)

// Lifetime specifies how long a resolved instance is shared.
// Its lower-case name selects the lifecycle strategy.
type Lifetime = registry.Lifetime

const (
	// Singleton instances are created once and shared for the container's lifetime.
	// io.Closer singletons are closed by Container.Close, newest first.
	Singleton = registry.Singleton

	// Scoped instances are created once per scope and closed when the scope ends.
	// Resolving a scoped service outside a scope uses the container's root scope.
	Scoped = registry.Scoped

	// Transient instances are never cached; every resolution constructs a new one.
	Transient = registry.Transient
)

// ParseLifetime parses a lifetime name, case-insensitively.
func ParseLifetime(s string) (Lifetime, error) {
	return registry.ParseLifetime(s)
}

// LifecycleStrategy decides whether an instance is looked up before
// construction and where it is kept afterwards. Register custom strategies with
// WithLifecycleStrategy; a definition selects one by its lifetime name.
type LifecycleStrategy = lifecycle.Strategy

// LifecycleStore holds singleton and scoped instances for the strategies.
type LifecycleStore = lifecycle.Store

// LifecycleStatistics summarizes what the lifecycle store holds.
type LifecycleStatistics = lifecycle.Statistics
