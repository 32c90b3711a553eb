package dicore

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/junioryono/dicore/internal/lifecycle"
)

// Scope is a unit of work, such as one HTTP request, with its own scoped
// instances. Singletons are shared with the container. A scope is closed
// when Close is called, when its context is cancelled or when the container
// closes; closing it closes its io.Closer instances, newest first.
type Scope struct {
	id        string
	container *Container
	ctx       context.Context
	cancel    context.CancelFunc
	closed    atomic.Bool
}

// BeginScope opens a scope. The scope is attached to the returned scope's
// Context, where FromContext finds it.
func (c *Container) BeginScope(ctx context.Context) (*Scope, error) {
	if c.closed.Load() {
		return nil, ErrContainerClosed
	}

	if ctx == nil {
		ctx = context.Background()
	}

	id := uuid.NewString()
	if err := c.store.BeginScope(id); err != nil {
		if errors.Is(err, lifecycle.ErrStoreClosed) {
			return nil, ErrContainerClosed
		}
		return nil, err
	}

	s := &Scope{id: id, container: c}
	s.ctx, s.cancel = context.WithCancel(context.WithValue(ctx, scopeContextKey{}, s))

	c.scopesMu.Lock()
	if c.scopes == nil {
		c.scopesMu.Unlock()
		s.release()
		return nil, ErrContainerClosed
	}
	c.scopes[id] = s
	c.scopesMu.Unlock()

	go func() {
		<-s.ctx.Done()
		if err := s.Close(); err != nil {
			c.logger.Error("failed to close scope", "scope", id, "error", err)
		}
	}()

	return s, nil
}

// ID returns the unique identifier of the scope.
func (s *Scope) ID() string {
	return s.id
}

// Context returns the scope's context. It is cancelled when the scope closes.
func (s *Scope) Context() context.Context {
	return s.ctx
}

// Container returns the container the scope belongs to.
func (s *Scope) Container() *Container {
	return s.container
}

// IsClosed reports whether the scope was closed.
func (s *Scope) IsClosed() bool {
	return s.closed.Load()
}

// Get resolves the service id within the scope.
func (s *Scope) Get(id string) (any, error) {
	return s.Make(id, nil)
}

// Resolve resolves the service id within the scope. It makes the scope a
// Resolver.
func (s *Scope) Resolve(id string) (any, error) {
	return s.Make(id, nil)
}

// Make resolves the service id within the scope with constructor overrides.
func (s *Scope) Make(id string, overrides map[string]any) (any, error) {
	if s.closed.Load() {
		return nil, ErrScopeClosed
	}
	return s.container.resolve(s.id, id, overrides)
}

// Tagged resolves every service tagged with tag within the scope.
func (s *Scope) Tagged(tag string) ([]any, error) {
	if s.closed.Load() {
		return nil, ErrScopeClosed
	}
	return s.container.tagged(s.id, tag)
}

// Inject populates target with services of the scope.
func (s *Scope) Inject(target any) (any, error) {
	if s.closed.Load() {
		return nil, ErrScopeClosed
	}
	return s.container.inject(s.id, target)
}

// Call invokes fn with arguments resolved within the scope.
func (s *Scope) Call(fn any, overrides map[string]any, names ...string) ([]any, error) {
	if s.closed.Load() {
		return nil, ErrScopeClosed
	}
	return s.container.call(s.id, fn, overrides, names)
}

// Close ends the scope and closes its io.Closer instances. It is safe to call
// more than once.
func (s *Scope) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.cancel()

	c := s.container
	c.scopesMu.Lock()
	if c.scopes != nil {
		delete(c.scopes, s.id)
	}
	c.scopesMu.Unlock()

	err := c.store.EndScope(s.id)
	if errors.Is(err, lifecycle.ErrStoreClosed) || errors.Is(err, lifecycle.ErrScopeNotFound) {
		return nil
	}
	return err
}

// release marks the scope closed without disposing it; the store does that
// when the container closes.
func (s *Scope) release() {
	if s.closed.CompareAndSwap(false, true) {
		s.cancel()
	}
}

// scopeContextKey is the key for storing the current scope in context.
type scopeContextKey struct{}

// FromContext returns the scope attached to ctx by BeginScope.
func FromContext(ctx context.Context) (*Scope, error) {
	if ctx == nil {
		return nil, ErrScopeNotInContext
	}

	s, ok := ctx.Value(scopeContextKey{}).(*Scope)
	if !ok || s == nil {
		return nil, ErrScopeNotInContext
	}

	if s.closed.Load() {
		return nil, ErrScopeClosed
	}
	return s, nil
}
