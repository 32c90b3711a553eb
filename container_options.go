package dicore

import (
	"log/slog"

	"github.com/viant/gmetric"

	"github.com/junioryono/dicore/config"
	"github.com/junioryono/dicore/internal/pipeline"
	"github.com/junioryono/dicore/internal/prototype"
)

// Option configures a Container.
type Option func(*options)

type options struct {
	maxDepth           int
	strict             bool
	autoDefine         bool
	devMode            bool
	prototypeCacheSize int
	compileConcurrency int

	policies   []Policy
	sinks      []DiagnosticsSink
	logger     *slog.Logger
	loader     PrototypeLoader
	strategies []LifecycleStrategy
}

func defaultOptions() *options {
	return &options{
		maxDepth:           pipeline.DefaultMaxDepth,
		autoDefine:         true,
		prototypeCacheSize: prototype.DefaultMaxSize,
	}
}

// WithMaxDepth bounds how many services may be under construction at once in
// one resolution chain. Non-positive values select the default of 64.
func WithMaxDepth(depth int) Option {
	return func(o *options) {
		o.maxDepth = depth
	}
}

// WithStrictMode makes analysis failures fatal and disables auto-definition.
// Without it, invalid injection points are dropped with a warning.
func WithStrictMode(strict bool) Option {
	return func(o *options) {
		o.strict = strict
	}
}

// WithAutoDefine lets the container build unregistered classes it knows from
// the class catalog as transient services. Enabled by default; ignored in
// strict mode.
func WithAutoDefine(enabled bool) Option {
	return func(o *options) {
		o.autoDefine = enabled
	}
}

// WithPrototypeCacheSize bounds the number of cached prototypes.
func WithPrototypeCacheSize(size int) Option {
	return func(o *options) {
		o.prototypeCacheSize = size
	}
}

// WithCompileConcurrency bounds the number of classes Compile analyzes at once.
// Non-positive values use GOMAXPROCS.
func WithCompileConcurrency(n int) Option {
	return func(o *options) {
		o.compileConcurrency = n
	}
}

// WithDevMode appends the diagnostics step, which reports every step of every
// resolution to the configured sinks and logs it at debug level.
func WithDevMode(enabled bool) Option {
	return func(o *options) {
		o.devMode = enabled
	}
}

// WithPolicyGuard adds a policy every resolution must satisfy. Multiple guards
// must all allow.
func WithPolicyGuard(policy Policy) Option {
	return func(o *options) {
		if policy != nil {
			o.policies = append(o.policies, policy)
		}
	}
}

// WithDenyPatterns refuses services whose id matches one of the glob patterns.
func WithDenyPatterns(patterns ...string) Option {
	return func(o *options) {
		if len(patterns) > 0 {
			o.policies = append(o.policies, NewDenyPatterns(patterns...))
		}
	}
}

// WithDiagnosticsSink adds a sink for dev-mode step events.
func WithDiagnosticsSink(sink DiagnosticsSink) Option {
	return func(o *options) {
		if sink != nil {
			o.sinks = append(o.sinks, sink)
		}
	}
}

// WithMetrics records dev-mode step counts and latency as gmetric operations
// of service.
func WithMetrics(service *gmetric.Service) Option {
	return func(o *options) {
		if service != nil {
			o.sinks = append(o.sinks, pipeline.NewMetricSink(service, metricLocation))
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithPrototypeLoader sets the loader WarmUp uses when called without one.
func WithPrototypeLoader(loader PrototypeLoader) Option {
	return func(o *options) {
		o.loader = loader
	}
}

// WithLifecycleStrategy registers a custom lifecycle strategy under its name.
func WithLifecycleStrategy(strategy LifecycleStrategy) Option {
	return func(o *options) {
		if strategy != nil {
			o.strategies = append(o.strategies, strategy)
		}
	}
}

// WithConfig applies a loaded configuration. Options given after it override
// its values.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) {
		if cfg == nil {
			return
		}
		if cfg.MaxDepth > 0 {
			o.maxDepth = cfg.MaxDepth
		}
		if cfg.PrototypeCacheSize > 0 {
			o.prototypeCacheSize = cfg.PrototypeCacheSize
		}
		if cfg.AutoDefine != nil {
			o.autoDefine = *cfg.AutoDefine
		}
		o.strict = cfg.StrictMode
		o.devMode = cfg.DevMode
		o.compileConcurrency = cfg.CompileConcurrency
		if len(cfg.DenyPatterns) > 0 {
			o.policies = append(o.policies, NewDenyPatterns(cfg.DenyPatterns...))
		}
	}
}

// metricLocation is the gmetric location of the diagnostics counters.
const metricLocation = "github.com/junioryono/dicore"

func (o *options) policy() pipeline.Policy {
	switch len(o.policies) {
	case 0:
		return nil
	case 1:
		return o.policies[0]
	default:
		return pipeline.Policies(o.policies)
	}
}

func (o *options) sink() pipeline.Sink {
	switch len(o.sinks) {
	case 0:
		return nil
	case 1:
		return o.sinks[0]
	default:
		sinks := o.sinks
		return pipeline.SinkFunc(func(event pipeline.Event) error {
			var first error
			for _, s := range sinks {
				if err := s.Record(event); err != nil && first == nil {
					first = err
				}
			}
			return first
		})
	}
}
