package pipeline

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/pkg/errors"

	"github.com/junioryono/dicore/internal/lifecycle"
	"github.com/junioryono/dicore/internal/prototype"
	"github.com/junioryono/dicore/internal/reflection"
	"github.com/junioryono/dicore/internal/registry"
	"github.com/junioryono/dicore/internal/state"
)

// Instantiator builds an instance from a prototype and its resolved
// constructor arguments.
type Instantiator interface {
	Instantiate(proto *prototype.ServicePrototype, args []any) (any, error)
}

// Injector assigns resolved property values to an instance.
type Injector interface {
	InjectProperties(instance any, values map[string]any) (any, error)
}

// Invoker calls a method of an instance with resolved arguments.
type Invoker interface {
	CallMethod(instance any, name string, args []any) ([]any, error)
}

// Runner runs a context through a pipeline.
type Runner interface {
	Run(ctx *Context) error
}

// Dependencies resolves what a service needs through child contexts of the
// service's own context.
type Dependencies struct {
	Runner      Runner
	Definitions Definitions
	Classes     Classes
	AutoDefine  bool
	Strict      bool
}

// Resolvable reports whether id can be resolved as a service.
func (d *Dependencies) Resolvable(id string) bool {
	if id == "" || reflection.IsPrimitiveName(id) {
		return false
	}
	if d.Definitions.Has(id) {
		return true
	}
	return d.AutoDefine && !d.Strict && d.Classes.Has(id)
}

// Child resolves id as a dependency of parent. A scoped id needed while a
// singleton is under construction fails with LifetimeConflictError.
func (d *Dependencies) Child(parent *Context, id string) (any, error) {
	child := parent.Child(id)
	if err := d.checkLifetime(child); err != nil {
		return nil, err
	}
	if err := d.Runner.Run(child); err != nil {
		return nil, err
	}
	return child.Instance, nil
}

func (d *Dependencies) checkLifetime(child *Context) error {
	if child.Owner == "" {
		return nil
	}

	def, ok := d.Definitions.Get(child.ServiceID)
	if !ok || def.Lifetime != registry.Scoped {
		return nil
	}

	start := slices.Index(child.Path, child.Owner)
	path := append(slices.Clone(child.Path[max(start, 0):]), child.ServiceID)
	return LifetimeConflictError{
		ServiceID:          child.Owner,
		ServiceLifetime:    registry.Singleton,
		DependencyID:       child.ServiceID,
		DependencyLifetime: registry.Scoped,
		Path:               path,
	}
}

// Resolver returns a registry.Resolver whose resolutions are children of ctx.
func (d *Dependencies) Resolver(ctx *Context) registry.Resolver {
	return contextResolver{deps: d, ctx: ctx}
}

// Arguments resolves the parameters of m. Each parameter takes, in order: the
// override with its name, the service of its type, its default, nil when
// nullable. Variadic parameters without an override are empty.
func (d *Dependencies) Arguments(ctx *Context, m *prototype.MethodPrototype, overrides map[string]any) ([]any, error) {
	args := make([]any, len(m.Parameters))

	for i, p := range m.Parameters {
		if v, ok := overrides[p.Name]; ok {
			args[i] = v
			continue
		}

		switch {
		case p.IsVariadic:
			args[i] = nil
		case d.Resolvable(p.Type):
			v, err := d.Child(ctx, p.Type)
			if err != nil {
				return nil, err
			}
			args[i] = v
		case p.HasDefault:
			args[i] = p.Default
		case p.AllowsNull:
			args[i] = nil
		default:
			return nil, notFound(ctx, fmt.Errorf("%w: unresolvable parameter %q (%s) of %s", ErrServiceNotFound, p.Name, p.Type, m.Name))
		}
	}

	return args, nil
}

type contextResolver struct {
	deps *Dependencies
	ctx  *Context
}

func (r contextResolver) Resolve(id string) (any, error) {
	return r.deps.Child(r.ctx, id)
}

// ResolveInstance builds the instance from the definition's concrete.
type ResolveInstance struct {
	Dependencies *Dependencies
	Instantiator Instantiator
}

func (s *ResolveInstance) Name() string { return "ResolveInstance" }

func (s *ResolveInstance) Handle(ctx *Context) error {
	if err := ctx.advance(state.Instantiate, false); err != nil {
		return err
	}

	if ctx.ManualInjection {
		return nil
	}

	concrete := ctx.Definition.Concrete
	switch concrete.Kind() {
	case registry.ConcreteInstance:
		ctx.Instance = concrete.Instance()
		return nil
	case registry.ConcreteFactory:
		instance, err := callFactory(concrete.Factory(), s.Dependencies.Resolver(ctx), ctx.Overrides)
		if err != nil {
			if isResolutionFailure(err) {
				return err
			}
			return instantiationFailed(ctx, "", err)
		}
		ctx.Instance = instance
		return nil
	}

	proto := ctx.Prototype()
	if proto == nil {
		return ResolutionError{ServiceID: ctx.ServiceID, Path: ctx.PathCopy(), Kind: KindAnalysis, Cause: fmt.Errorf("%w: no prototype", ErrAnalysis)}
	}

	if !proto.IsInstantiable {
		return ResolutionError{ServiceID: ctx.ServiceID, Path: ctx.PathCopy(), Kind: KindNotInstantiable, Cause: fmt.Errorf("%w: %s", ErrNotInstantiable, proto.ClassName)}
	}

	var args []any
	if proto.Constructor != nil {
		var err error
		if args, err = s.Dependencies.Arguments(ctx, proto.Constructor, ctx.Overrides); err != nil {
			return err
		}
	}

	instance, err := s.Instantiator.Instantiate(proto, args)
	if err != nil {
		return instantiationFailed(ctx, proto.ClassName, err)
	}

	ctx.Instance = instance
	return nil
}

func callFactory(factory registry.Factory, r registry.Resolver, params map[string]any) (instance any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.Errorf("factory panicked: %v", p)
		}
	}()
	return factory(r, params)
}

// InjectDependencies populates injected properties, then calls the setters.
type InjectDependencies struct {
	Dependencies *Dependencies
	Injector     Injector
	Invoker      Invoker
}

func (s *InjectDependencies) Name() string { return "InjectDependencies" }

func (s *InjectDependencies) Handle(ctx *Context) error {
	proto := ctx.Prototype()
	if proto == nil {
		return nil
	}

	values := make(map[string]any, len(proto.InjectedProperties))
	for _, prop := range proto.InjectedProperties {
		switch {
		case s.Dependencies.Resolvable(prop.Type):
			v, err := s.Dependencies.Child(ctx, prop.Type)
			if err != nil {
				return err
			}
			values[prop.Name] = v
		case prop.HasDefault:
			values[prop.Name] = prop.Default
		case prop.AllowsNull:
		default:
			return notFound(ctx, fmt.Errorf("%w: missing required dependency %s for property %s", ErrServiceNotFound, prop.Type, prop.Name))
		}
	}

	instance, err := s.Injector.InjectProperties(ctx.Instance, values)
	if err != nil {
		return instantiationFailed(ctx, proto.ClassName, err)
	}
	ctx.Instance = instance

	for i := range proto.InjectedMethods {
		setter := &proto.InjectedMethods[i]
		args, err := s.Dependencies.Arguments(ctx, setter, nil)
		if err != nil {
			return err
		}
		if _, err := s.Invoker.CallMethod(ctx.Instance, setter.Name, args); err != nil {
			return instantiationFailed(ctx, proto.ClassName, errors.Wrapf(err, "setter %s", setter.Name))
		}
	}

	ctx.Set(NamespacePrototype, "constructed", ctx.Instance)
	return nil
}

// ApplyExtenders decorates the instance with the extenders of its id, then the
// wildcard extenders. Extender errors are returned unchanged.
type ApplyExtenders struct {
	Definitions  Definitions
	Dependencies *Dependencies
}

func (s *ApplyExtenders) Name() string { return "ApplyExtenders" }

func (s *ApplyExtenders) Handle(ctx *Context) error {
	if ctx.ManualInjection {
		return nil
	}

	for _, extend := range s.Definitions.Extenders(ctx.ServiceID) {
		instance, err := extend(ctx.Instance, s.Dependencies.Resolver(ctx))
		if err != nil {
			return err
		}
		ctx.Instance = instance
	}
	return nil
}

// InvokePostConstruct calls the post-construct hook of the constructed
// instance, resolving its parameters like constructor parameters.
type InvokePostConstruct struct {
	Dependencies *Dependencies
	Invoker      Invoker
}

func (s *InvokePostConstruct) Name() string { return "InvokePostConstruct" }

func (s *InvokePostConstruct) Handle(ctx *Context) error {
	proto := ctx.Prototype()
	if proto == nil || proto.PostConstruct == nil {
		return nil
	}

	target := ctx.Instance
	if constructed, ok := ctx.Get(NamespacePrototype, "constructed"); ok {
		target = constructed
	}

	args, err := s.Dependencies.Arguments(ctx, proto.PostConstruct, nil)
	if err != nil {
		return err
	}

	if _, err := s.Invoker.CallMethod(target, proto.PostConstruct.Name, args); err != nil {
		return instantiationFailed(ctx, proto.ClassName, errors.Wrapf(err, "post-construct %s", proto.PostConstruct.Name))
	}
	return nil
}

// StoreLifecycle hands the finished instance to its lifecycle strategy and
// adopts the instance the strategy keeps. When a concurrent resolution stored
// first, the instance built here is closed if it is an io.Closer.
type StoreLifecycle struct {
	Lifecycles *lifecycle.Resolver
	Store      *lifecycle.Store
	Logger     *slog.Logger
}

func (s *StoreLifecycle) Name() string { return "StoreLifecycle" }

func (s *StoreLifecycle) Handle(ctx *Context) error {
	if ctx.ManualInjection {
		return nil
	}

	built := ctx.Instance
	strategy := s.Lifecycles.ForDefinition(ctx.Definition)
	ctx.Instance = strategy.Store(s.Store, ctx.ScopeID, ctx.ServiceID, built)

	if lifecycle.SameInstance(built, ctx.Instance) {
		return nil
	}

	closed, err := lifecycle.Discard(built)
	if s.Logger != nil {
		switch {
		case err != nil:
			s.Logger.Warn("failed to close discarded instance", "service", ctx.ServiceID, "error", err)
		case closed:
			s.Logger.Debug("closed discarded instance", "service", ctx.ServiceID)
		}
	}
	return nil
}
