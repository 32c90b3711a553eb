package dicore

import (
	"log/slog"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/junioryono/dicore/internal/lifecycle"
	"github.com/junioryono/dicore/internal/pipeline"
	"github.com/junioryono/dicore/internal/prototype"
	"github.com/junioryono/dicore/internal/reflection"
	"github.com/junioryono/dicore/internal/registry"
)

// Container registers services and resolves them through the resolution
// pipeline. It is safe for concurrent use.
type Container struct {
	id     string
	opts   *options
	logger *slog.Logger

	definitions *registry.Store
	catalog     *reflection.Catalog
	analyzer    *reflection.Analyzer
	prototypes  *prototype.Registry
	lifecycles  *lifecycle.Resolver
	store       *lifecycle.Store
	invoker     *reflection.Invoker

	pipeline *pipeline.Pipeline
	deps     *pipeline.Dependencies
	compiler *pipeline.Compiler

	scopesMu sync.Mutex
	scopes   map[string]*Scope
	closed   atomic.Bool
}

// New creates a container.
//
//	c := dicore.New(dicore.WithMaxDepth(32))
//	defer c.Close()
//
//	_ = c.Singleton(NewLogger)
//	_ = c.Scoped(NewUserService)
//
//	svc, err := dicore.Resolve[*UserService](c)
func New(opts ...Option) *Container {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	catalog := reflection.NewCatalog()
	c := &Container{
		id:          uuid.NewString(),
		opts:        o,
		logger:      logger,
		definitions: registry.NewStore(),
		catalog:     catalog,
		analyzer:    reflection.NewAnalyzer(catalog, o.strict),
		prototypes:  prototype.NewRegistry(o.prototypeCacheSize),
		lifecycles:  lifecycle.NewResolver(),
		store:       lifecycle.NewStore(),
		invoker:     reflection.NewInvoker(),
		scopes:      make(map[string]*Scope),
	}

	for _, strategy := range o.strategies {
		c.lifecycles.Register(strategy)
	}

	factory := pipeline.NewFactory(pipeline.Settings{
		MaxDepth:   o.maxDepth,
		StrictMode: o.strict,
		AutoDefine: o.autoDefine,
		DevMode:    o.devMode,
		Policy:     o.policy(),
		Sink:       o.sink(),
		Logger:     logger,
	}, pipeline.Collaborators{
		Definitions:  c.definitions,
		Classes:      catalog,
		Analyzer:     c.analyzer,
		Prototypes:   c.prototypes,
		Lifecycles:   c.lifecycles,
		Store:        c.store,
		Instantiator: reflection.NewInstantiator(catalog),
		Injector:     reflection.NewInjector(),
		Invoker:      c.invoker,
	})
	c.pipeline, c.deps = factory.Build()

	c.compiler = &pipeline.Compiler{
		Definitions: c.definitions,
		Analyzer:    c.analyzer,
		Prototypes:  c.prototypes,
		Concurrency: o.compileConcurrency,
		Logger:      logger,
	}

	return c
}

// ID returns the unique identifier of the container.
func (c *Container) ID() string {
	return c.id
}

// Steps returns the names of the resolution steps, in execution order.
func (c *Container) Steps() []string {
	return c.pipeline.Steps()
}

// ========================================
// Registration
// ========================================

// Provide registers the type constructor returns as a class, without binding a
// service to it. Provided classes are built on demand when auto-definition is
// enabled, or through Bind and BindType.
func (c *Container) Provide(constructor any, opts ...ClassOption) error {
	_, err := c.provide(constructor, opts)
	return err
}

func (c *Container) provide(constructor any, opts []ClassOption) (*reflection.Class, error) {
	if c.closed.Load() {
		return nil, ErrContainerClosed
	}

	class, err := c.catalog.RegisterConstructor(constructor, opts...)
	if err != nil {
		return nil, RegistrationError{Operation: "provide", Cause: err}
	}

	c.prototypes.Remove(class.Name)
	return class, nil
}

// RegisterType registers t as a class built without a constructor: pointers
// to structs are allocated, structs start from their zero value.
func (c *Container) RegisterType(t reflect.Type, opts ...ClassOption) error {
	if c.closed.Load() {
		return ErrContainerClosed
	}

	class, err := c.catalog.RegisterType(t, opts...)
	if err != nil {
		return RegistrationError{Operation: "register type", Cause: err}
	}

	c.prototypes.Remove(class.Name)
	return nil
}

// Bind registers the service id. A later Bind of the same id replaces it.
func (c *Container) Bind(id string, concrete Concrete, lifetime Lifetime, opts ...BindOption) error {
	if c.closed.Load() {
		return ErrContainerClosed
	}

	if err := c.definitions.Add(newDefinition(id, concrete, lifetime, opts)); err != nil {
		return RegistrationError{ServiceID: id, Operation: "bind", Cause: err}
	}
	return nil
}

// Singleton provides constructor and binds its result type as a singleton.
func (c *Container) Singleton(constructor any, opts ...ClassOption) error {
	return c.register(constructor, Singleton, opts)
}

// Scoped provides constructor and binds its result type as a scoped service.
func (c *Container) Scoped(constructor any, opts ...ClassOption) error {
	return c.register(constructor, Scoped, opts)
}

// Transient provides constructor and binds its result type as a transient
// service.
func (c *Container) Transient(constructor any, opts ...ClassOption) error {
	return c.register(constructor, Transient, opts)
}

// Register provides constructor and binds its result type with lifetime.
func (c *Container) Register(constructor any, lifetime Lifetime, opts ...ClassOption) error {
	return c.register(constructor, lifetime, opts)
}

func (c *Container) register(constructor any, lifetime Lifetime, opts []ClassOption) error {
	class, err := c.provide(constructor, opts)
	if err != nil {
		return err
	}
	return c.Bind(class.Name, Concrete{}, lifetime)
}

// Instance binds a pre-built value as a singleton. An empty id binds the
// value's type name.
func (c *Container) Instance(id string, value any, opts ...BindOption) error {
	if value == nil {
		return RegistrationError{ServiceID: id, Operation: "bind instance", Cause: ErrNilInstance}
	}
	if id == "" {
		id = reflection.ClassName(reflect.TypeOf(value))
	}
	return c.Bind(id, InstanceOf(value), Singleton, opts...)
}

// Factory binds the service id to a factory closure.
func (c *Container) Factory(id string, fn Factory, lifetime Lifetime, opts ...BindOption) error {
	return c.Bind(id, FactoryOf(fn), lifetime, opts...)
}

// Extend decorates every instance of id with fn. Use Wildcard to extend all
// services. Extenders run in registration order, id-specific ones first.
func (c *Container) Extend(id string, fn Extender) error {
	if c.closed.Load() {
		return ErrContainerClosed
	}

	if err := c.definitions.AddExtender(id, fn); err != nil {
		return RegistrationError{ServiceID: id, Operation: "extend", Cause: err}
	}
	return nil
}

// Tag adds tag to the definitions of ids.
func (c *Container) Tag(tag string, ids ...string) error {
	if c.closed.Load() {
		return ErrContainerClosed
	}

	for _, id := range ids {
		def, ok := c.definitions.Get(id)
		if !ok {
			return RegistrationError{ServiceID: id, Operation: "tag", Cause: ErrServiceNotFound}
		}
		if def.HasTag(tag) {
			continue
		}

		tagged := *def
		tagged.Tags = append(slices.Clone(def.Tags), tag)
		if err := c.definitions.Add(&tagged); err != nil {
			return RegistrationError{ServiceID: id, Operation: "tag", Cause: err}
		}
	}
	return nil
}

// Definition returns the definition registered under id.
func (c *Container) Definition(id string) (*Definition, bool) {
	return c.definitions.Get(id)
}

// Definitions returns every definition in registration order.
func (c *Container) Definitions() []*Definition {
	return c.definitions.All()
}

// ========================================
// Resolution
// ========================================

// Get resolves the service id.
func (c *Container) Get(id string) (any, error) {
	return c.resolve(lifecycle.RootScope, id, nil)
}

// Resolve resolves the service id. It makes the container a Resolver.
func (c *Container) Resolve(id string) (any, error) {
	return c.resolve(lifecycle.RootScope, id, nil)
}

// Make resolves the service id, passing overrides to its constructor or
// factory by parameter name. Cached singleton and scoped instances ignore the
// overrides.
func (c *Container) Make(id string, overrides map[string]any) (any, error) {
	return c.resolve(lifecycle.RootScope, id, overrides)
}

// Has reports whether id can be resolved: it is bound, or it is a class the
// container may auto-define.
func (c *Container) Has(id string) bool {
	return c.deps.Resolvable(id)
}

// Tagged resolves every service tagged with tag, in registration order.
func (c *Container) Tagged(tag string) ([]any, error) {
	return c.tagged(lifecycle.RootScope, tag)
}

// Inject populates the injected properties and setters of target and calls
// its post-construct hook. target must be a struct or a pointer to one; the
// returned value is target itself, or an injected copy for struct values.
func (c *Container) Inject(target any) (any, error) {
	return c.inject(lifecycle.RootScope, target)
}

// Call invokes fn with arguments resolved like constructor parameters and
// returns its non-error results. names optionally names the parameters for
// overrides.
func (c *Container) Call(fn any, overrides map[string]any, names ...string) ([]any, error) {
	return c.call(lifecycle.RootScope, fn, overrides, names)
}

func (c *Container) resolve(scopeID, id string, overrides map[string]any) (any, error) {
	if c.closed.Load() {
		return nil, ErrContainerClosed
	}

	ctx := pipeline.NewContext(id, overrides)
	ctx.ScopeID = scopeID
	if err := c.pipeline.Run(ctx); err != nil {
		return nil, err
	}
	return ctx.Instance, nil
}

func (c *Container) tagged(scopeID, tag string) ([]any, error) {
	defs := c.definitions.Tagged(tag)
	instances := make([]any, 0, len(defs))
	for _, def := range defs {
		instance, err := c.resolve(scopeID, def.AbstractID, nil)
		if err != nil {
			return nil, err
		}
		instances = append(instances, instance)
	}
	return instances, nil
}

func (c *Container) inject(scopeID string, target any) (any, error) {
	if c.closed.Load() {
		return nil, ErrContainerClosed
	}

	t := reflect.TypeOf(target)
	if t == nil || !c.catalog.Ensure(t) {
		return nil, errors.Wrapf(ErrInjectionTargetInvalid, "cannot inject %T", target)
	}

	ctx := pipeline.NewContext(reflection.ClassName(t), nil)
	ctx.ScopeID = scopeID
	ctx.ManualInjection = true
	ctx.Instance = target
	if err := c.pipeline.Run(ctx); err != nil {
		return nil, err
	}
	return ctx.Instance, nil
}

func (c *Container) call(scopeID string, fn any, overrides map[string]any, names []string) ([]any, error) {
	if c.closed.Load() {
		return nil, ErrContainerClosed
	}

	method, err := c.analyzer.AnalyzeFunc(fn, names...)
	if err != nil {
		return nil, err
	}

	ctx := pipeline.NewContext(method.Name, overrides)
	ctx.ScopeID = scopeID
	args, err := c.deps.Arguments(ctx, method, overrides)
	if err != nil {
		return nil, err
	}

	return c.invoker.Call(fn, args)
}

// ========================================
// Lifecycle
// ========================================

// Statistics summarizes the cached instances and scopes.
func (c *Container) Statistics() LifecycleStatistics {
	return c.store.Statistics()
}

// IsClosed reports whether Close was called.
func (c *Container) IsClosed() bool {
	return c.closed.Load()
}

// Close ends every open scope, then closes the io.Closer singletons, newest
// first. It is safe to call more than once.
func (c *Container) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.scopesMu.Lock()
	scopes := c.scopes
	c.scopes = nil
	c.scopesMu.Unlock()

	for _, s := range scopes {
		s.release()
	}

	if err := c.store.Close(); err != nil {
		c.logger.Error("failed to dispose container instances", "container", c.id, "error", err)
		return err
	}
	return nil
}
