package registry

import (
	"sync"
)

// Store is the in-memory definition store. Definitions keep their registration
// order so bulk operations are deterministic.
type Store struct {
	mu          sync.RWMutex
	definitions map[string]*Definition
	order       []string
	extenders   map[string][]Extender
}

// NewStore creates an empty definition store.
func NewStore() *Store {
	return &Store{
		definitions: make(map[string]*Definition),
		extenders:   make(map[string][]Extender),
	}
}

// Add registers a definition, replacing any earlier one with the same id.
func (s *Store) Add(def *Definition) error {
	if def == nil {
		return ErrAbstractIDEmpty
	}

	if err := def.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.definitions[def.AbstractID]; !exists {
		s.order = append(s.order, def.AbstractID)
	}
	s.definitions[def.AbstractID] = def
	return nil
}

// Get returns the definition registered under id.
func (s *Store) Get(id string) (*Definition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.definitions[id]
	return def, ok
}

// Has reports whether a definition is registered under id.
func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.definitions[id]
	return ok
}

// Remove drops the definition registered under id.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.definitions[id]; !ok {
		return
	}
	delete(s.definitions, id)

	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// All returns every definition in registration order.
func (s *Store) All() []*Definition {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Definition, 0, len(s.order))
	for _, id := range s.order {
		result = append(result, s.definitions[id])
	}
	return result
}

// Tagged returns the definitions carrying tag, in registration order.
func (s *Store) Tagged(tag string) []*Definition {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Definition
	for _, id := range s.order {
		if def := s.definitions[id]; def.HasTag(tag) {
			result = append(result, def)
		}
	}
	return result
}

// AddExtender appends an extender for id. Use Wildcard to extend every service.
func (s *Store) AddExtender(id string, fn Extender) error {
	if id == "" {
		return ErrAbstractIDEmpty
	}

	if fn == nil {
		return ErrExtenderNil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.extenders[id] = append(s.extenders[id], fn)
	return nil
}

// Extenders returns the extenders registered for id followed by the wildcard ones.
func (s *Store) Extenders(id string) []Extender {
	s.mu.RLock()
	defer s.mu.RUnlock()

	specific := s.extenders[id]
	var wildcard []Extender
	if id != Wildcard {
		wildcard = s.extenders[Wildcard]
	}

	if len(specific)+len(wildcard) == 0 {
		return nil
	}

	result := make([]Extender, 0, len(specific)+len(wildcard))
	result = append(result, specific...)
	return append(result, wildcard...)
}

// Len returns the number of registered definitions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.definitions)
}
