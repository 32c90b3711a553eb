package prototype

import (
	"sort"
	"sync"
)

// DefaultMaxSize is the capacity used when a registry is created without one.
const DefaultMaxSize = 1000

// Loader reads a prototype from a slower backing store. It reports false when
// the class is not present there.
type Loader func(className string) (*ServicePrototype, bool)

// Stats summarizes the registry state.
type Stats struct {
	Count       int
	MaxSize     int
	Utilization float64
	Hits        uint64
	Misses      uint64
	Evictions   uint64
}

type entry struct {
	prototype *ServicePrototype
	tick      uint64
}

// Registry is a bounded, LRU-evicting store of prototypes keyed by class name.
// Every get and set stamps the key with a monotonically increasing logical clock;
// eviction drops the keys with the oldest stamps.
type Registry struct {
	mu      sync.Mutex
	maxSize int
	clock   uint64
	entries map[string]*entry

	hits      uint64
	misses    uint64
	evictions uint64
}

// NewRegistry creates a registry holding at most maxSize prototypes.
// A non-positive maxSize selects DefaultMaxSize.
func NewRegistry(maxSize int) *Registry {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}

	return &Registry{
		maxSize: maxSize,
		entries: make(map[string]*entry),
	}
}

// Get returns the prototype for className and refreshes its recency.
func (r *Registry) Get(className string) (*ServicePrototype, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[className]
	if !ok {
		r.misses++
		return nil, false
	}

	r.hits++
	e.tick = r.tick()
	return e.prototype, true
}

// Set inserts or overwrites the prototype for className, then evicts the least
// recently used entries while the registry is over capacity.
func (r *Registry) Set(className string, p *ServicePrototype) {
	if p == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.set(className, p)
}

func (r *Registry) set(className string, p *ServicePrototype) {
	if e, ok := r.entries[className]; ok {
		e.prototype = p
		e.tick = r.tick()
		return
	}

	r.entries[className] = &entry{prototype: p, tick: r.tick()}
	if len(r.entries) > r.maxSize {
		r.evict()
	}
}

// Has reports whether className is cached. It does not refresh recency.
func (r *Registry) Has(className string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[className]
	return ok
}

// Remove drops className from the registry.
func (r *Registry) Remove(className string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, className)
}

// Clear drops every entry. Counters are kept.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]*entry)
}

// Count returns the number of cached prototypes.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Keys returns the cached class names, least recently used first.
func (r *Registry) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sortedKeys()
}

// Stats returns a snapshot of the registry state.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	return Stats{
		Count:       len(r.entries),
		MaxSize:     r.maxSize,
		Utilization: float64(len(r.entries)) / float64(r.maxSize),
		Hits:        r.hits,
		Misses:      r.misses,
		Evictions:   r.evictions,
	}
}

// Snapshot returns every cached prototype without touching recency or stats.
func (r *Registry) Snapshot() map[string]*ServicePrototype {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make(map[string]*ServicePrototype, len(r.entries))
	for key, e := range r.entries {
		result[key] = e.prototype
	}
	return result
}

// BulkLoad warms the registry from loader and returns how many prototypes it
// inserted. Classes the loader does not know are skipped.
func (r *Registry) BulkLoad(classNames []string, loader Loader) int {
	if loader == nil {
		return 0
	}

	loaded := 0
	for _, className := range classNames {
		p, ok := loader(className)
		if !ok || p == nil {
			continue
		}

		r.Set(className, p)
		loaded++
	}
	return loaded
}

func (r *Registry) tick() uint64 {
	r.clock++
	return r.clock
}

// evict must be called with the lock held.
func (r *Registry) evict() {
	excess := len(r.entries) - r.maxSize
	if excess <= 0 {
		return
	}

	for _, key := range r.sortedKeys()[:excess] {
		delete(r.entries, key)
		r.evictions++
	}
}

func (r *Registry) sortedKeys() []string {
	keys := make([]string, 0, len(r.entries))
	for key := range r.entries {
		keys = append(keys, key)
	}

	sort.Slice(keys, func(i, j int) bool {
		return r.entries[keys[i]].tick < r.entries[keys[j]].tick
	})
	return keys
}
