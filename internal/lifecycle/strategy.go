package lifecycle

import (
	"strings"
	"sync"

	"github.com/junioryono/dicore/internal/registry"
)

// Strategy decides whether an instance is looked up before construction and
// where it is kept afterwards.
type Strategy interface {
	// Name is the key the Resolver selects the strategy by.
	Name() string

	// TryGet returns a previously stored instance for id.
	TryGet(store *Store, scopeID, id string) (any, bool)

	// Store keeps instance for later TryGet calls and returns the instance
	// callers must use, which differs when another resolution stored first.
	Store(store *Store, scopeID, id string, instance any) any
}

// SingletonStrategy keeps one instance per id for the life of the store.
type SingletonStrategy struct{}

func (SingletonStrategy) Name() string { return registry.Singleton.Name() }

func (SingletonStrategy) TryGet(store *Store, _ string, id string) (any, bool) {
	return store.Singleton(id)
}

func (SingletonStrategy) Store(store *Store, _ string, id string, instance any) any {
	return store.StoreSingleton(id, instance)
}

// ScopedStrategy keeps one instance per id and scope.
type ScopedStrategy struct{}

func (ScopedStrategy) Name() string { return registry.Scoped.Name() }

func (ScopedStrategy) TryGet(store *Store, scopeID, id string) (any, bool) {
	return store.Scoped(normalizeScope(scopeID), id)
}

func (ScopedStrategy) Store(store *Store, scopeID, id string, instance any) any {
	return store.StoreScoped(normalizeScope(scopeID), id, instance)
}

// TransientStrategy never caches.
type TransientStrategy struct{}

func (TransientStrategy) Name() string { return registry.Transient.Name() }

func (TransientStrategy) TryGet(*Store, string, string) (any, bool) {
	return nil, false
}

func (TransientStrategy) Store(_ *Store, _ string, _ string, instance any) any {
	return instance
}

func normalizeScope(scopeID string) string {
	if scopeID == "" {
		return RootScope
	}
	return scopeID
}

// Resolver maps lifetime names to strategies. Unknown names fall back to the
// transient strategy.
type Resolver struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
	fallback   Strategy
}

// NewResolver returns a resolver with the singleton, scoped and transient
// strategies registered.
func NewResolver() *Resolver {
	r := &Resolver{
		strategies: make(map[string]Strategy),
		fallback:   TransientStrategy{},
	}

	r.Register(SingletonStrategy{})
	r.Register(ScopedStrategy{})
	r.Register(TransientStrategy{})
	return r
}

// Register adds or replaces the strategy under its name.
func (r *Resolver) Register(s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[strings.ToLower(s.Name())] = s
}

// Resolve returns the strategy registered under name.
func (r *Resolver) Resolve(name string) Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if s, ok := r.strategies[strings.ToLower(name)]; ok {
		return s
	}
	return r.fallback
}

// ForDefinition selects the strategy for def; a missing definition is transient.
func (r *Resolver) ForDefinition(def *registry.Definition) Strategy {
	if def == nil {
		return r.fallback
	}
	return r.Resolve(def.Lifetime.Name())
}
