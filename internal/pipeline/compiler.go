package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/junioryono/dicore/internal/prototype"
)

// CompileReport summarizes a bulk compile.
type CompileReport struct {
	Compiled int
	Failed   int

	// Skipped counts factory and instance definitions, which have no class.
	Skipped int

	// Errors maps failed service ids to their cause.
	Errors map[string]error

	// Cycles lists groups of services whose declared dependencies loop. Each
	// path starts and ends with the same id.
	Cycles [][]string

	// Conflicts lists singletons whose declared dependencies reach a scoped
	// service.
	Conflicts []LifetimeConflictError
}

// OK reports whether every definition compiled and neither a dependency cycle
// nor a lifetime conflict was found.
func (r *CompileReport) OK() bool {
	return r.Failed == 0 && len(r.Cycles) == 0 && len(r.Conflicts) == 0
}

// Compiler analyzes every registered definition ahead of time and fills the
// prototype cache. A failing definition is recorded and the compile continues.
type Compiler struct {
	Definitions Definitions
	Analyzer    Analyzer
	Prototypes  *prototype.Registry
	Concurrency int
	Logger      *slog.Logger
}

// Compile analyzes all definitions. It only returns an error when ctx ends
// before every definition was visited.
func (c *Compiler) Compile(ctx context.Context) (*CompileReport, error) {
	report := &CompileReport{Errors: make(map[string]error)}
	var mu sync.Mutex

	limit := c.Concurrency
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for _, def := range c.Definitions.All() {
		if err := gctx.Err(); err != nil {
			break
		}

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			className := def.Concrete.ClassName(def.AbstractID)
			err := c.compileOne(className)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case className == "":
				report.Skipped++
			case err != nil:
				report.Failed++
				report.Errors[def.AbstractID] = err
			default:
				report.Compiled++
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return report, err
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	if c.Logger != nil {
		c.Logger.Info("compiled service definitions",
			"compiled", report.Compiled, "failed", report.Failed, "skipped", report.Skipped)
	}
	return report, nil
}

func (c *Compiler) compileOne(className string) error {
	if className == "" {
		return nil
	}

	analysis, err := c.Analyzer.Analyze(className)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAnalysis, err)
	}

	if !analysis.Prototype.IsInstantiable {
		return fmt.Errorf("%w: %s", ErrNotInstantiable, className)
	}

	c.Prototypes.Set(className, analysis.Prototype)
	return nil
}
