package pipeline

import (
	"log/slog"

	"github.com/junioryono/dicore/internal/lifecycle"
	"github.com/junioryono/dicore/internal/prototype"
)

// DefaultMaxDepth bounds nested resolutions when no limit is configured.
const DefaultMaxDepth = 64

// Settings configures the steps a Factory builds.
type Settings struct {
	MaxDepth   int
	StrictMode bool
	AutoDefine bool

	// DevMode appends the diagnostics step.
	DevMode bool

	Policy Policy
	Sink   Sink
	Logger *slog.Logger
}

// Collaborators are the stores and engines the steps operate on.
type Collaborators struct {
	Definitions  Definitions
	Classes      Classes
	Analyzer     Analyzer
	Prototypes   *prototype.Registry
	Lifecycles   *lifecycle.Resolver
	Store        *lifecycle.Store
	Instantiator Instantiator
	Injector     Injector
	Invoker      Invoker
}

// Factory assembles pipelines.
type Factory struct {
	settings Settings
	deps     Collaborators
}

// NewFactory creates a factory. Zero settings get the defaults: depth limit 64,
// no policy and a discarding logger.
func NewFactory(settings Settings, deps Collaborators) *Factory {
	if settings.MaxDepth <= 0 {
		settings.MaxDepth = DefaultMaxDepth
	}
	if settings.Policy == nil {
		settings.Policy = AllowAll{}
	}
	if settings.Logger == nil {
		settings.Logger = slog.New(slog.DiscardHandler)
	}
	return &Factory{settings: settings, deps: deps}
}

// Build creates the pipeline and the dependency resolver its steps share.
func (f *Factory) Build() (*Pipeline, *Dependencies) {
	s, c := f.settings, f.deps

	deps := &Dependencies{
		Definitions: c.Definitions,
		Classes:     c.Classes,
		AutoDefine:  s.AutoDefine,
		Strict:      s.StrictMode,
	}

	steps := []Step{
		&RetrieveFromScope{Definitions: c.Definitions, Lifecycles: c.Lifecycles, Store: c.Store},
		&DepthGuard{MaxDepth: s.MaxDepth},
		&CircularDependencyCheck{},
		&GuardPolicy{Policy: s.Policy},
		&EnsureDefinitionExists{Definitions: c.Definitions, Classes: c.Classes, AutoDefine: s.AutoDefine, Strict: s.StrictMode},
		&AnalyzePrototype{Analyzer: c.Analyzer, Prototypes: c.Prototypes, Logger: s.Logger},
		&ResolveInstance{Dependencies: deps, Instantiator: c.Instantiator},
		&InjectDependencies{Dependencies: deps, Injector: c.Injector, Invoker: c.Invoker},
		&ApplyExtenders{Definitions: c.Definitions, Dependencies: deps},
		&InvokePostConstruct{Dependencies: deps, Invoker: c.Invoker},
		&StoreLifecycle{Lifecycles: c.Lifecycles, Store: c.Store, Logger: s.Logger},
	}

	if s.DevMode {
		steps = append(steps, &CollectDiagnostics{Sink: s.Sink, Logger: s.Logger})
	}

	p := New(s.Logger, steps...)
	deps.Runner = p
	return p, deps
}
