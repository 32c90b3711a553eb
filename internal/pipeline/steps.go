package pipeline

import (
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/junioryono/dicore/internal/lifecycle"
	"github.com/junioryono/dicore/internal/prototype"
	"github.com/junioryono/dicore/internal/reflection"
	"github.com/junioryono/dicore/internal/registry"
	"github.com/junioryono/dicore/internal/state"
)

// Definitions is the definition store the pipeline reads and, when
// auto-defining, writes.
type Definitions interface {
	Get(id string) (*registry.Definition, bool)
	Has(id string) bool
	Add(def *registry.Definition) error
	All() []*registry.Definition
	Extenders(id string) []registry.Extender
}

// Classes reports which class names can be analyzed and built.
type Classes interface {
	Has(name string) bool
}

// Analyzer builds the prototype of a class.
type Analyzer interface {
	Analyze(className string) (*reflection.Analysis, error)
	Strict() bool
}

// RetrieveFromScope returns an instance the lifecycle strategy already holds.
type RetrieveFromScope struct {
	Definitions Definitions
	Lifecycles  *lifecycle.Resolver
	Store       *lifecycle.Store
}

func (s *RetrieveFromScope) Name() string { return "RetrieveFromScope" }

func (s *RetrieveFromScope) Handle(ctx *Context) error {
	if ctx.ManualInjection {
		return nil
	}

	def, _ := s.Definitions.Get(ctx.ServiceID)
	strategy := s.Lifecycles.ForDefinition(def)
	ctx.Set(NamespaceLifecycle, "strategy", strategy.Name())

	if instance, ok := strategy.TryGet(s.Store, ctx.ScopeID, ctx.ServiceID); ok {
		ctx.Definition = def
		ctx.Resolve(instance)
	}
	return nil
}

// DepthGuard rejects contexts nested MaxDepth levels or deeper.
type DepthGuard struct {
	MaxDepth int
}

func (s *DepthGuard) Name() string { return "DepthGuard" }

func (s *DepthGuard) Handle(ctx *Context) error {
	if ctx.Depth >= s.MaxDepth {
		return DepthExceededError{
			ServiceID: ctx.ServiceID,
			Path:      ctx.PathCopy(),
			Depth:     ctx.Depth,
			MaxDepth:  s.MaxDepth,
		}
	}
	return nil
}

// CircularDependencyCheck rejects a service that is its own ancestor.
type CircularDependencyCheck struct{}

func (s *CircularDependencyCheck) Name() string { return "CircularDependencyCheck" }

func (s *CircularDependencyCheck) Handle(ctx *Context) error {
	if ctx.InPath(ctx.ServiceID) {
		return CircularDependencyError{
			ServiceID: ctx.ServiceID,
			Path:      append(ctx.PathCopy(), ctx.ServiceID),
		}
	}
	return nil
}

// GuardPolicy asks the policy whether the resolution may proceed.
type GuardPolicy struct {
	Policy Policy
}

func (s *GuardPolicy) Name() string { return "GuardPolicy" }

func (s *GuardPolicy) Handle(ctx *Context) error {
	if s.Policy == nil {
		return nil
	}

	if decision := s.Policy.Authorize(ctx); !decision.Allowed {
		return PolicyViolationError{ServiceID: ctx.ServiceID, Path: ctx.PathCopy(), Reason: decision.Reason}
	}
	return nil
}

// EnsureDefinitionExists loads the definition of the requested service. Known
// classes without one are defined as transient when auto-define is on and the
// container is not strict.
type EnsureDefinitionExists struct {
	Definitions Definitions
	Classes     Classes
	AutoDefine  bool
	Strict      bool
}

func (s *EnsureDefinitionExists) Name() string { return "EnsureDefinitionExists" }

func (s *EnsureDefinitionExists) Handle(ctx *Context) error {
	if ctx.ManualInjection {
		return nil
	}

	if err := ctx.advance(state.DefinitionLookup, false); err != nil {
		return err
	}

	if def, ok := s.Definitions.Get(ctx.ServiceID); ok {
		ctx.Definition = def
		return nil
	}

	if err := ctx.advance(state.Autowire, false); err != nil {
		return err
	}

	if s.AutoDefine && !s.Strict && !reflection.IsPrimitiveName(ctx.ServiceID) && s.Classes.Has(ctx.ServiceID) {
		def := &registry.Definition{AbstractID: ctx.ServiceID, Lifetime: registry.Transient}
		if err := s.Definitions.Add(def); err != nil {
			return notFound(ctx, err)
		}
		ctx.Definition = def
		return nil
	}

	if err := ctx.State.AdvanceTo(state.NotFound, false); err != nil {
		return err
	}
	return notFound(ctx, fmt.Errorf("%w: %s", ErrServiceNotFound, ctx.ServiceID))
}

// AnalyzePrototype loads the prototype of the target class from the cache,
// analyzing the class on a miss. Concurrent misses for one class share a
// single analysis.
type AnalyzePrototype struct {
	Analyzer   Analyzer
	Prototypes *prototype.Registry
	Logger     *slog.Logger

	group singleflight.Group
}

func (s *AnalyzePrototype) Name() string { return "AnalyzePrototype" }

func (s *AnalyzePrototype) Handle(ctx *Context) error {
	if err := ctx.advance(state.Autowire, false); err != nil {
		return err
	}

	className := ctx.ServiceID
	if !ctx.ManualInjection {
		if ctx.Definition == nil {
			return notFound(ctx, fmt.Errorf("%w: %s has no definition", ErrServiceNotFound, ctx.ServiceID))
		}
		className = ctx.Definition.Concrete.ClassName(ctx.Definition.AbstractID)
		if className == "" {
			return nil
		}
	}

	proto, err := s.load(className)
	if err != nil {
		return ResolutionError{ServiceID: ctx.ServiceID, Path: ctx.PathCopy(), Kind: KindAnalysis, Cause: fmt.Errorf("%w: %w", ErrAnalysis, err)}
	}

	if s.Analyzer.Strict() && !proto.IsInstantiable {
		return ResolutionError{ServiceID: ctx.ServiceID, Path: ctx.PathCopy(), Kind: KindNotInstantiable, Cause: fmt.Errorf("%w: %s", ErrNotInstantiable, className)}
	}

	ctx.Set(NamespacePrototype, "service", proto)
	ctx.Set(NamespacePrototype, "class", className)
	return nil
}

func (s *AnalyzePrototype) load(className string) (*prototype.ServicePrototype, error) {
	if proto, ok := s.Prototypes.Get(className); ok {
		return proto, nil
	}

	v, err, _ := s.group.Do(className, func() (any, error) {
		analysis, err := s.Analyzer.Analyze(className)
		if err != nil {
			return nil, err
		}

		for _, warning := range analysis.Warnings {
			s.logger().Warn("degraded prototype analysis", "class", className, "error", warning)
		}

		s.Prototypes.Set(className, analysis.Prototype)
		return analysis.Prototype, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*prototype.ServicePrototype), nil
}

func (s *AnalyzePrototype) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}
