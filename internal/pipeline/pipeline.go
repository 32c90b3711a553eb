package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/junioryono/dicore/internal/state"
)

// Step is one stage of a resolution.
type Step interface {
	Name() string
	Handle(ctx *Context) error
}

// Finalizer marks a step that runs even after the context was resolved early
// or failed. Its errors and panics never reach the caller.
type Finalizer interface {
	Step
	Finalizer() bool
}

// Timing records how long one step took.
type Timing struct {
	Step     string
	Duration time.Duration
	Err      error
}

// Pipeline runs its steps in order over a context.
type Pipeline struct {
	steps  []Step
	logger *slog.Logger
}

// New creates a pipeline from steps. A nil logger discards output.
func New(logger *slog.Logger, steps ...Step) *Pipeline {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Pipeline{steps: steps, logger: logger}
}

// Steps returns the step names in execution order.
func (p *Pipeline) Steps() []string {
	names := make([]string, len(p.steps))
	for i, s := range p.steps {
		names[i] = s.Name()
	}
	return names
}

// Run executes the steps over ctx and returns the first error.
func (p *Pipeline) Run(ctx *Context) error {
	for _, step := range p.steps {
		if f, ok := step.(Finalizer); ok && f.Finalizer() {
			p.finalize(f, ctx)
			continue
		}

		if ctx.Err != nil || ctx.Resolved {
			continue
		}

		start := time.Now()
		err := step.Handle(ctx)
		p.record(ctx, step.Name(), time.Since(start), err)

		if err != nil {
			if errors.Is(err, state.ErrInvalidTransition) {
				p.logger.Error("illegal resolution state transition",
					"service", ctx.ServiceID, "step", step.Name(), "error", err)
			}
			ctx.Err = err
		}
	}

	p.settle(ctx)
	return ctx.Err
}

func (p *Pipeline) record(ctx *Context, step string, d time.Duration, err error) {
	ctx.Set(NamespaceDiagnostics, "timings", append(ctx.Timings(), Timing{Step: step, Duration: d, Err: err}))
}

func (p *Pipeline) finalize(step Finalizer, ctx *Context) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn("finalizer step panicked", "step", step.Name(), "service", ctx.ServiceID, "panic", fmt.Sprint(r))
		}
	}()

	if err := step.Handle(ctx); err != nil {
		p.logger.Warn("finalizer step failed", "step", step.Name(), "service", ctx.ServiceID, "error", err)
	}
}

// settle moves the state controller to the terminal state matching the outcome.
// Cache hits never left ContextualLookup and stay there.
func (p *Pipeline) settle(ctx *Context) {
	var err error
	current := ctx.State.State()

	switch {
	case current == state.Instantiate && ctx.Err == nil:
		err = ctx.State.AdvanceTo(state.Success, true)
	case current == state.Instantiate:
		err = ctx.State.AdvanceTo(state.Failure, true)
	case current == state.Autowire && ctx.Err != nil:
		err = ctx.State.AdvanceTo(state.NotFound, false)
	}

	if err != nil {
		p.logger.Error("illegal resolution state transition", "service", ctx.ServiceID, "error", err)
	}
}
