package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/junioryono/dicore/internal/lifecycle"
	"github.com/junioryono/dicore/internal/pipeline"
	"github.com/junioryono/dicore/internal/prototype"
	"github.com/junioryono/dicore/internal/reflection"
	"github.com/junioryono/dicore/internal/registry"
	"github.com/junioryono/dicore/internal/state"
)

// Test types
type Logger interface {
	Log(msg string)
}

type FileLogger struct {
	lines []string
}

func (l *FileLogger) Log(msg string) { l.lines = append(l.lines, msg) }

type Service struct {
	Logger Logger
}

func NewService(logger Logger) *Service {
	return &Service{Logger: logger}
}

type Mailer struct {
	Host    string
	Port    int
	Logger  Logger   `inject:""`
	Metrics *Metrics `inject:",optional"`
	audit   *Audit
	started int
}

func NewMailer(host string, port int) *Mailer {
	return &Mailer{Host: host, Port: port}
}

func (m *Mailer) SetAudit(a *Audit) { m.audit = a }

func (m *Mailer) PostConstruct() { m.started++ }

type Metrics struct{}

type Audit struct{}

type Failing struct{}

func NewFailing() (*Failing, error) {
	return nil, errors.New("cannot connect")
}

func classOf[T any]() string {
	return reflection.ClassName(reflect.TypeOf((*T)(nil)).Elem())
}

type harness struct {
	defs     *registry.Store
	catalog  *reflection.Catalog
	protos   *prototype.Registry
	store    *lifecycle.Store
	pipeline *pipeline.Pipeline
	deps     *pipeline.Dependencies
}

func newHarness(t *testing.T, settings pipeline.Settings) *harness {
	t.Helper()

	h := &harness{
		defs:    registry.NewStore(),
		catalog: reflection.NewCatalog(),
		protos:  prototype.NewRegistry(0),
		store:   lifecycle.NewStore(),
	}

	h.pipeline, h.deps = pipeline.NewFactory(settings, pipeline.Collaborators{
		Definitions:  h.defs,
		Classes:      h.catalog,
		Analyzer:     reflection.NewAnalyzer(h.catalog, settings.StrictMode),
		Prototypes:   h.protos,
		Lifecycles:   lifecycle.NewResolver(),
		Store:        h.store,
		Instantiator: reflection.NewInstantiator(h.catalog),
		Injector:     reflection.NewInjector(),
		Invoker:      reflection.NewInvoker(),
	}).Build()

	return h
}

func (h *harness) bind(t *testing.T, id string, concrete registry.Concrete, lifetime registry.Lifetime) {
	t.Helper()
	require.NoError(t, h.defs.Add(&registry.Definition{AbstractID: id, Concrete: concrete, Lifetime: lifetime}))
}

func (h *harness) factory(t *testing.T, id string, lifetime registry.Lifetime, fn registry.Factory) {
	t.Helper()
	h.bind(t, id, registry.FactoryOf(fn), lifetime)
}

func (h *harness) resolve(id string, overrides map[string]any) (any, *pipeline.Context, error) {
	ctx := pipeline.NewContext(id, overrides)
	err := h.pipeline.Run(ctx)
	return ctx.Instance, ctx, err
}

func (h *harness) loggerAndService(t *testing.T) {
	t.Helper()
	_, err := h.catalog.RegisterType(reflect.TypeOf(&FileLogger{}))
	require.NoError(t, err)
	_, err = h.catalog.RegisterConstructor(NewService)
	require.NoError(t, err)

	h.bind(t, classOf[Logger](), registry.Class(classOf[*FileLogger]()), registry.Singleton)
	h.bind(t, classOf[*Service](), registry.Concrete{}, registry.Transient)
}

func TestFactoryStepOrder(t *testing.T) {
	expected := []string{
		"RetrieveFromScope",
		"DepthGuard",
		"CircularDependencyCheck",
		"GuardPolicy",
		"EnsureDefinitionExists",
		"AnalyzePrototype",
		"ResolveInstance",
		"InjectDependencies",
		"ApplyExtenders",
		"InvokePostConstruct",
		"StoreLifecycle",
	}

	assert.Equal(t, expected, newHarness(t, pipeline.Settings{}).pipeline.Steps())
	assert.Equal(t, append(expected, "CollectDiagnostics"), newHarness(t, pipeline.Settings{DevMode: true}).pipeline.Steps())
}

func TestLoggerServiceScenario(t *testing.T) {
	h := newHarness(t, pipeline.Settings{})
	h.loggerAndService(t)

	first, ctx, err := h.resolve(classOf[*Service](), nil)
	require.NoError(t, err)
	assert.Equal(t, state.Success, ctx.State.State())

	second, _, err := h.resolve(classOf[*Service](), nil)
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.Same(t, first.(*Service).Logger, second.(*Service).Logger)
	assert.IsType(t, &FileLogger{}, first.(*Service).Logger)
}

func TestLifecycles(t *testing.T) {
	h := newHarness(t, pipeline.Settings{})
	newValue := func(registry.Resolver, map[string]any) (any, error) {
		return &FileLogger{}, nil
	}

	h.factory(t, "singleton", registry.Singleton, newValue)
	h.factory(t, "scoped", registry.Scoped, newValue)
	h.factory(t, "transient", registry.Transient, newValue)

	t.Run("singleton", func(t *testing.T) {
		a, _, err := h.resolve("singleton", nil)
		require.NoError(t, err)
		b, ctx, err := h.resolve("singleton", nil)
		require.NoError(t, err)
		assert.Same(t, a, b)
		assert.True(t, ctx.Resolved)
		assert.Equal(t, state.ContextualLookup, ctx.State.State())
	})

	t.Run("transient", func(t *testing.T) {
		a, _, err := h.resolve("transient", nil)
		require.NoError(t, err)
		b, _, err := h.resolve("transient", nil)
		require.NoError(t, err)
		assert.NotSame(t, a, b)
	})

	t.Run("scoped", func(t *testing.T) {
		require.NoError(t, h.store.BeginScope("a"))
		require.NoError(t, h.store.BeginScope("b"))

		resolveIn := func(scope string) any {
			ctx := pipeline.NewContext("scoped", nil)
			ctx.ScopeID = scope
			require.NoError(t, h.pipeline.Run(ctx))
			return ctx.Instance
		}

		inA := resolveIn("a")
		inB := resolveIn("b")
		assert.NotSame(t, inA, inB)

		require.NoError(t, h.store.EndScope("b"))
		assert.Same(t, inA, resolveIn("a"))

		require.NoError(t, h.store.EndScope("a"))
		require.NoError(t, h.store.BeginScope("a"))
		assert.NotSame(t, inA, resolveIn("a"))
	})
}

func TestCircularDependency(t *testing.T) {
	h := newHarness(t, pipeline.Settings{})
	dependOn := func(id string) registry.Factory {
		return func(r registry.Resolver, _ map[string]any) (any, error) {
			return r.Resolve(id)
		}
	}

	h.factory(t, "a", registry.Transient, dependOn("b"))
	h.factory(t, "b", registry.Transient, dependOn("a"))
	h.factory(t, "self", registry.Transient, dependOn("self"))

	_, _, err := h.resolve("a", nil)
	require.ErrorIs(t, err, pipeline.ErrCircularDependency)

	var cycle pipeline.CircularDependencyError
	require.ErrorAs(t, err, &cycle)
	assert.Equal(t, []string{"a", "b", "a"}, cycle.Path)
	assert.Contains(t, cycle.Error(), "a (cycle)")

	_, _, err = h.resolve("self", nil)
	require.ErrorAs(t, err, &cycle)
	assert.Equal(t, []string{"self", "self"}, cycle.Path)
}

func TestDepthGuard(t *testing.T) {
	chain := func(t *testing.T, length, maxDepth int) error {
		h := newHarness(t, pipeline.Settings{MaxDepth: maxDepth})
		for i := 0; i < length; i++ {
			id, next, last := fmt.Sprintf("s%d", i), fmt.Sprintf("s%d", i+1), i == length-1
			h.factory(t, id, registry.Transient, func(r registry.Resolver, _ map[string]any) (any, error) {
				if last {
					return id, nil
				}
				return r.Resolve(next)
			})
		}
		_, _, err := h.resolve("s0", nil)
		return err
	}

	assert.NoError(t, chain(t, pipeline.DefaultMaxDepth, 0))

	err := chain(t, pipeline.DefaultMaxDepth+1, 0)
	require.ErrorIs(t, err, pipeline.ErrMaxDepthExceeded)

	var depthErr pipeline.DepthExceededError
	require.ErrorAs(t, err, &depthErr)
	assert.Equal(t, "s64", depthErr.ServiceID)
	assert.Equal(t, 64, depthErr.Depth)
	assert.Len(t, depthErr.Path, 64)

	assert.NoError(t, chain(t, 3, 3))
	assert.ErrorIs(t, chain(t, 4, 3), pipeline.ErrMaxDepthExceeded)
}

func TestNotFound(t *testing.T) {
	h := newHarness(t, pipeline.Settings{})

	_, ctx, err := h.resolve("missing", nil)
	require.ErrorIs(t, err, pipeline.ErrServiceNotFound)
	assert.Equal(t, state.NotFound, ctx.State.State())

	var resErr pipeline.ResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, pipeline.KindNotFound, resErr.Kind)
	assert.Equal(t, "missing", resErr.ServiceID)
}

func TestInstantiationFailure(t *testing.T) {
	h := newHarness(t, pipeline.Settings{})
	_, err := h.catalog.RegisterConstructor(NewFailing)
	require.NoError(t, err)
	h.bind(t, "failing", registry.Class(classOf[*Failing]()), registry.Singleton)

	_, ctx, err := h.resolve("failing", nil)
	require.ErrorIs(t, err, pipeline.ErrInstantiation)
	assert.ErrorContains(t, err, "cannot connect")
	assert.Equal(t, state.Failure, ctx.State.State())

	var instErr pipeline.InstantiationError
	require.ErrorAs(t, err, &instErr)
	assert.Equal(t, classOf[*Failing](), instErr.ClassName)

	// Failed singletons are not cached.
	assert.Equal(t, 0, h.store.Statistics().Singletons)
}

func TestPolicy(t *testing.T) {
	h := newHarness(t, pipeline.Settings{Policy: pipeline.NewDenyPatterns("internal.*")})
	h.factory(t, "internal.secret", registry.Transient, func(registry.Resolver, map[string]any) (any, error) {
		return "secret", nil
	})
	h.factory(t, "public", registry.Transient, func(r registry.Resolver, _ map[string]any) (any, error) {
		return r.Resolve("internal.secret")
	})

	_, _, err := h.resolve("public", nil)
	require.ErrorIs(t, err, pipeline.ErrPolicyViolation)

	var policyErr pipeline.PolicyViolationError
	require.ErrorAs(t, err, &policyErr)
	assert.Equal(t, "internal.secret", policyErr.ServiceID)
	assert.Equal(t, []string{"public"}, policyErr.Path)
	assert.Contains(t, policyErr.Reason, "internal.*")
}

func TestPolicies(t *testing.T) {
	deny := pipeline.PolicyFunc(func(ctx *pipeline.Context) pipeline.Decision {
		if ctx.Depth > 0 {
			return pipeline.Deny("nested")
		}
		return pipeline.Allow()
	})

	policy := pipeline.Policies{pipeline.AllowAll{}, deny}
	assert.True(t, policy.Authorize(pipeline.NewContext("x", nil)).Allowed)
	assert.Equal(t, "nested", policy.Authorize(pipeline.NewContext("x", nil).Child("y")).Reason)
}

func TestAutoDefine(t *testing.T) {
	t.Run("enabled", func(t *testing.T) {
		h := newHarness(t, pipeline.Settings{AutoDefine: true})
		h.catalog.Ensure(reflect.TypeOf(&Metrics{}))

		instance, _, err := h.resolve(classOf[*Metrics](), nil)
		require.NoError(t, err)
		assert.IsType(t, &Metrics{}, instance)

		def, ok := h.defs.Get(classOf[*Metrics]())
		require.True(t, ok)
		assert.Equal(t, registry.Transient, def.Lifetime)
	})

	t.Run("strict disables it", func(t *testing.T) {
		h := newHarness(t, pipeline.Settings{AutoDefine: true, StrictMode: true})
		h.catalog.Ensure(reflect.TypeOf(&Metrics{}))

		_, _, err := h.resolve(classOf[*Metrics](), nil)
		assert.ErrorIs(t, err, pipeline.ErrServiceNotFound)
	})
}

func lastStep(ctx *pipeline.Context) pipeline.Timing {
	timings := ctx.Timings()
	return timings[len(timings)-1]
}

func TestNonInstantiablePolicy(t *testing.T) {
	for _, strict := range []bool{true, false} {
		t.Run(fmt.Sprintf("strict=%v", strict), func(t *testing.T) {
			h := newHarness(t, pipeline.Settings{StrictMode: strict})
			_, err := h.catalog.RegisterType(reflect.TypeOf((*Logger)(nil)).Elem())
			require.NoError(t, err)
			h.bind(t, "logger", registry.Class(classOf[Logger]()), registry.Transient)

			_, ctx, err := h.resolve("logger", nil)
			require.ErrorIs(t, err, pipeline.ErrNotInstantiable)

			if strict {
				assert.Equal(t, "AnalyzePrototype", lastStep(ctx).Step)
				assert.Equal(t, state.NotFound, ctx.State.State())
			} else {
				assert.Equal(t, "ResolveInstance", lastStep(ctx).Step)
				assert.Equal(t, state.Failure, ctx.State.State())
			}
		})
	}
}

func TestArgumentsAndInjection(t *testing.T) {
	h := newHarness(t, pipeline.Settings{AutoDefine: true})
	_, err := h.catalog.RegisterConstructor(NewMailer,
		reflection.WithParamNames("host", "port"),
		reflection.WithParamDefault("port", 25),
		reflection.WithSetter("SetAudit"),
	)
	require.NoError(t, err)
	_, err = h.catalog.RegisterType(reflect.TypeOf(&FileLogger{}))
	require.NoError(t, err)
	h.bind(t, classOf[Logger](), registry.Class(classOf[*FileLogger]()), registry.Singleton)
	h.bind(t, "mailer", registry.Class(classOf[*Mailer]()), registry.Transient)

	instance, ctx, err := h.resolve("mailer", map[string]any{"host": "smtp.local"})
	require.NoError(t, err)
	assert.Equal(t, state.Success, ctx.State.State())

	mailer := instance.(*Mailer)
	assert.Equal(t, "smtp.local", mailer.Host)
	assert.Equal(t, 25, mailer.Port)
	assert.NotNil(t, mailer.Logger)
	assert.NotNil(t, mailer.Metrics, "auto-defined optional dependency is resolved")
	assert.NotNil(t, mailer.audit)
	assert.Equal(t, 1, mailer.started)

	_, _, err = h.resolve("mailer", nil)
	require.ErrorIs(t, err, pipeline.ErrServiceNotFound)
	assert.ErrorContains(t, err, `unresolvable parameter "host"`)
}

func TestMissingRequiredProperty(t *testing.T) {
	h := newHarness(t, pipeline.Settings{})
	_, err := h.catalog.RegisterConstructor(NewMailer, reflection.WithParamNames("host", "port"))
	require.NoError(t, err)
	h.bind(t, "mailer", registry.Class(classOf[*Mailer]()), registry.Transient)

	_, _, err = h.resolve("mailer", map[string]any{"host": "h", "port": 1})
	require.ErrorIs(t, err, pipeline.ErrServiceNotFound)
	assert.ErrorContains(t, err, "missing required dependency")
}

func TestExtenders(t *testing.T) {
	h := newHarness(t, pipeline.Settings{})
	h.factory(t, "greeting", registry.Singleton, func(registry.Resolver, map[string]any) (any, error) {
		return "hello", nil
	})
	h.factory(t, "name", registry.Transient, func(registry.Resolver, map[string]any) (any, error) {
		return "world", nil
	})

	require.NoError(t, h.defs.AddExtender(registry.Wildcard, func(instance any, _ registry.Resolver) (any, error) {
		return fmt.Sprintf("[%v]", instance), nil
	}))
	require.NoError(t, h.defs.AddExtender("greeting", func(instance any, r registry.Resolver) (any, error) {
		name, err := r.Resolve("name")
		if err != nil {
			return nil, err
		}
		return fmt.Sprintf("%v %v", instance, name), nil
	}))

	instance, _, err := h.resolve("greeting", nil)
	require.NoError(t, err)
	assert.Equal(t, "[hello [world]]", instance)

	// The cached singleton is the decorated one.
	cached, ctx, err := h.resolve("greeting", nil)
	require.NoError(t, err)
	assert.True(t, ctx.Resolved)
	assert.Equal(t, instance, cached)

	boom := errors.New("boom")
	require.NoError(t, h.defs.AddExtender("name", func(any, registry.Resolver) (any, error) {
		return nil, boom
	}))
	_, _, err = h.resolve("name", nil)
	assert.Same(t, boom, err)
}

func TestManualInjection(t *testing.T) {
	h := newHarness(t, pipeline.Settings{})
	_, err := h.catalog.RegisterType(reflect.TypeOf(&Mailer{}), reflection.WithSetter("SetAudit"))
	require.NoError(t, err)
	_, err = h.catalog.RegisterType(reflect.TypeOf(&FileLogger{}))
	require.NoError(t, err)
	h.bind(t, classOf[Logger](), registry.Class(classOf[*FileLogger]()), registry.Singleton)
	h.bind(t, classOf[*Audit](), registry.Concrete{}, registry.Transient)
	h.catalog.Ensure(reflect.TypeOf(&Audit{}))

	mailer := &Mailer{Host: "preset"}
	ctx := pipeline.NewContext(classOf[*Mailer](), nil)
	ctx.ManualInjection = true
	ctx.Instance = mailer

	require.NoError(t, h.pipeline.Run(ctx))
	assert.Same(t, mailer, ctx.Instance)
	assert.NotNil(t, mailer.Logger)
	assert.Nil(t, mailer.Metrics)
	assert.NotNil(t, mailer.audit)
	assert.Equal(t, 1, mailer.started)
	assert.Equal(t, "preset", mailer.Host)
	assert.Equal(t, state.Success, ctx.State.State())

	_, ok := h.defs.Get(classOf[*Mailer]())
	assert.False(t, ok, "manual injection does not define the service")
}

func TestDiagnostics(t *testing.T) {
	var mu sync.Mutex
	var events []pipeline.Event
	sink := pipeline.SinkFunc(func(e pipeline.Event) error {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
		return errors.New("sink unavailable")
	})

	h := newHarness(t, pipeline.Settings{DevMode: true, Sink: sink})
	h.factory(t, "value", registry.Singleton, func(registry.Resolver, map[string]any) (any, error) {
		return 42, nil
	})

	value, _, err := h.resolve("value", nil)
	require.NoError(t, err)
	assert.Equal(t, 42, value)
	assert.Len(t, events, 11)

	events = nil
	_, _, err = h.resolve("value", nil)
	require.NoError(t, err)
	require.Len(t, events, 1, "cache hits are reported")
	assert.Equal(t, "RetrieveFromScope", events[0].Step)

	events = nil
	_, _, err = h.resolve("missing", nil)
	require.Error(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, "EnsureDefinitionExists", events[len(events)-1].Step)
	assert.Error(t, events[len(events)-1].Err)
}

func TestDiagnosticsPanicIsSwallowed(t *testing.T) {
	sink := pipeline.SinkFunc(func(pipeline.Event) error { panic("sink crashed") })
	h := newHarness(t, pipeline.Settings{DevMode: true, Sink: sink})
	h.factory(t, "value", registry.Transient, func(registry.Resolver, map[string]any) (any, error) {
		return 1, nil
	})

	value, _, err := h.resolve("value", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, value)
}

func TestConcurrentSingletonResolution(t *testing.T) {
	h := newHarness(t, pipeline.Settings{})
	h.loggerAndService(t)

	const workers = 32
	loggers := make([]any, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			svc, _, err := h.resolve(classOf[*Service](), nil)
			if assert.NoError(t, err) {
				loggers[idx] = svc.(*Service).Logger
			}
		}(i)
	}
	wg.Wait()

	for _, l := range loggers {
		assert.Same(t, loggers[0], l)
	}
	assert.Equal(t, 2, h.protos.Count())
}

func TestCompiler(t *testing.T) {
	for _, strict := range []bool{true, false} {
		t.Run(fmt.Sprintf("strict=%v", strict), func(t *testing.T) {
			h := newHarness(t, pipeline.Settings{StrictMode: strict})
			h.loggerAndService(t)
			_, err := h.catalog.RegisterType(reflect.TypeOf((*Logger)(nil)).Elem())
			require.NoError(t, err)

			h.bind(t, "abstract", registry.Class(classOf[Logger]()), registry.Transient)
			h.bind(t, "unknown", registry.Class("no.such.Class"), registry.Transient)
			h.factory(t, "factory", registry.Transient, func(registry.Resolver, map[string]any) (any, error) {
				return nil, nil
			})

			compiler := &pipeline.Compiler{
				Definitions: h.defs,
				Analyzer:    reflection.NewAnalyzer(h.catalog, strict),
				Prototypes:  h.protos,
				Concurrency: 2,
			}

			report, err := compiler.Compile(context.Background())
			require.NoError(t, err)
			assert.False(t, report.OK())
			assert.Equal(t, 2, report.Compiled)
			assert.Equal(t, 2, report.Failed)
			assert.Equal(t, 1, report.Skipped)
			assert.ErrorIs(t, report.Errors["abstract"], pipeline.ErrNotInstantiable)
			assert.Contains(t, report.Errors, "unknown")
			assert.True(t, h.protos.Has(classOf[*Service]()))
		})
	}
}

func TestCompilerCancelled(t *testing.T) {
	h := newHarness(t, pipeline.Settings{})
	h.loggerAndService(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	compiler := &pipeline.Compiler{Definitions: h.defs, Analyzer: reflection.NewAnalyzer(h.catalog, true), Prototypes: h.protos}
	_, err := compiler.Compile(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestContextChildOwner(t *testing.T) {
	cache := pipeline.NewContext("cache", nil)
	cache.Definition = &registry.Definition{AbstractID: "cache", Lifetime: registry.Singleton}

	repo := cache.Child("repo")
	assert.Equal(t, "cache", repo.Owner)

	repo.Definition = &registry.Definition{AbstractID: "repo", Lifetime: registry.Transient}
	assert.Equal(t, "cache", repo.Child("db").Owner)

	handler := pipeline.NewContext("handler", nil)
	handler.Definition = &registry.Definition{AbstractID: "handler", Lifetime: registry.Scoped}
	assert.Empty(t, handler.Child("db").Owner)
}
