// Package lifecycle decides where resolved instances live and for how long.
package lifecycle

import (
	"errors"
	"fmt"
	"io"
	"reflect"
	"sync"
	"time"
)

// RootScope is the scope that is open for the whole life of a Store.
const RootScope = "root"

var (
	ErrStoreClosed   = errors.New("lifecycle store is closed")
	ErrScopeExists   = errors.New("scope already open")
	ErrScopeNotFound = errors.New("scope not found")
	ErrScopeIDEmpty  = errors.New("scope id cannot be empty")
)

// Statistics tracks store activity.
type Statistics struct {
	Singletons      int
	ActiveScopes    int
	TotalScopes     int64
	DisposedScopes  int64
	ScopedInstances int
}

type bucket struct {
	instances map[string]any
	order     []string
}

func newBucket() *bucket {
	return &bucket{instances: make(map[string]any)}
}

// load must be called with the store lock held.
func (b *bucket) load(id string) (any, bool) {
	instance, ok := b.instances[id]
	return instance, ok
}

// loadOrStore must be called with the store lock held. It returns the instance
// that ends up stored under id.
func (b *bucket) loadOrStore(id string, instance any) any {
	if existing, ok := b.instances[id]; ok {
		return existing
	}
	b.instances[id] = instance
	b.order = append(b.order, id)
	return instance
}

type scope struct {
	*bucket
	id      string
	created time.Time
}

// Store keeps the singleton instances and the instances of every open scope.
// Check-then-store is atomic per key: the first instance stored wins.
type Store struct {
	mu         sync.RWMutex
	singletons *bucket
	scopes     map[string]*scope
	stats      Statistics
	closed     bool
}

// NewStore creates a store with the root scope open.
func NewStore() *Store {
	s := &Store{
		singletons: newBucket(),
		scopes:     make(map[string]*scope),
	}
	s.scopes[RootScope] = &scope{bucket: newBucket(), id: RootScope, created: time.Now()}
	s.stats.TotalScopes = 1
	return s
}

// Singleton returns the singleton stored under id.
func (s *Store) Singleton(id string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, false
	}
	return s.singletons.load(id)
}

// StoreSingleton stores instance under id unless one is already present, and
// returns the stored one.
func (s *Store) StoreSingleton(id string, instance any) any {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return instance
	}
	return s.singletons.loadOrStore(id, instance)
}

// Scoped returns the instance stored under id in scopeID.
func (s *Store) Scoped(scopeID, id string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sc, ok := s.scopes[scopeID]
	if !ok {
		return nil, false
	}
	return sc.load(id)
}

// StoreScoped stores instance under id in scopeID unless one is already present.
// When the scope is not open the instance is returned uncached.
func (s *Store) StoreScoped(scopeID, id string, instance any) any {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, ok := s.scopes[scopeID]
	if !ok {
		return instance
	}
	return sc.loadOrStore(id, instance)
}

// BeginScope opens scopeID.
func (s *Store) BeginScope(scopeID string) error {
	if scopeID == "" {
		return ErrScopeIDEmpty
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	if _, exists := s.scopes[scopeID]; exists {
		return fmt.Errorf("%w: %s", ErrScopeExists, scopeID)
	}

	s.scopes[scopeID] = &scope{bucket: newBucket(), id: scopeID, created: time.Now()}
	s.stats.TotalScopes++
	return nil
}

// IsOpen reports whether scopeID is open.
func (s *Store) IsOpen(scopeID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.scopes[scopeID]
	return ok
}

// EndScope closes scopeID and disposes its io.Closer instances in reverse order
// of creation. The root scope only ends with the store.
func (s *Store) EndScope(scopeID string) error {
	if scopeID == RootScope {
		return fmt.Errorf("root scope ends with the store")
	}

	s.mu.Lock()
	sc, ok := s.scopes[scopeID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrScopeNotFound, scopeID)
	}
	delete(s.scopes, scopeID)
	s.stats.DisposedScopes++
	s.mu.Unlock()

	return dispose(sc.bucket)
}

// Close ends every scope, then disposes the singletons. It is idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true

	scopes := make([]*scope, 0, len(s.scopes))
	for _, sc := range s.scopes {
		scopes = append(scopes, sc)
	}
	s.scopes = make(map[string]*scope)
	singletons := s.singletons
	s.singletons = newBucket()
	s.mu.Unlock()

	var errs []error
	for _, sc := range scopes {
		if err := dispose(sc.bucket); err != nil {
			errs = append(errs, fmt.Errorf("scope %s: %w", sc.id, err))
		}
	}

	if err := dispose(singletons); err != nil {
		errs = append(errs, fmt.Errorf("singletons: %w", err))
	}

	return errors.Join(errs...)
}

// Statistics returns a snapshot of the store counters.
func (s *Store) Statistics() Statistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := s.stats
	stats.Singletons = len(s.singletons.instances)
	stats.ActiveScopes = len(s.scopes)
	for _, sc := range s.scopes {
		stats.ScopedInstances += len(sc.instances)
	}
	return stats
}

// dispose closes the io.Closer instances of b, newest first. Instances stored
// under several ids are closed once.
func dispose(b *bucket) error {
	var errs []error
	seen := make(map[any]struct{})

	for i := len(b.order) - 1; i >= 0; i-- {
		id := b.order[i]
		closer, ok := b.instances[id].(io.Closer)
		if !ok {
			continue
		}

		if reflect.ValueOf(closer).Comparable() {
			if _, done := seen[closer]; done {
				continue
			}
			seen[closer] = struct{}{}
		}

		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
		}
	}

	return errors.Join(errs...)
}

// SameInstance reports whether a and b are the same instance. Values that
// cannot be compared are reported as the same, so they are never discarded.
func SameInstance(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if !reflect.ValueOf(a).Comparable() || !reflect.ValueOf(b).Comparable() {
		return true
	}
	return a == b
}

// Discard closes instance when it is an io.Closer. It reports whether Close
// was called.
func Discard(instance any) (bool, error) {
	closer, ok := instance.(io.Closer)
	if !ok {
		return false, nil
	}
	return true, closer.Close()
}
