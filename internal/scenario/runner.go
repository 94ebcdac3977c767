package scenario

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"kestrel/internal/ctxlog"
	"kestrel/internal/kernel"
	"kestrel/internal/ktrace"
)

// Result is the outcome of one scenario run.
type Result struct {
	Name    string
	Ops     uint64 // completed operations, scenario-defined
	Ticks   uint64 // virtual ticks the kernel advanced
	Elapsed time.Duration
	Notes   []string
	Trace   *ktrace.RingTracer // nil when tracing is disabled
}

// scenarioFn builds, runs, and tears down one kernel workload.
type scenarioFn func(cfg Config, tr ktrace.Tracer) (Result, error)

var builtins = map[string]scenarioFn{
	"msgq":    runMsgQ,
	"inherit": runInherit,
	"mbox":    runMbox,
	"sem":     runSem,
}

func allNames() []string {
	return []string{"msgq", "inherit", "mbox", "sem"}
}

// Run executes a single named scenario.
func Run(ctx context.Context, cfg Config, name string) (Result, error) {
	fn, ok := builtins[name]
	if !ok {
		return Result{}, fmt.Errorf("unknown scenario %q", name)
	}
	log := ctxlog.FromContext(ctx)
	log.Info("scenario start", "name", name)

	var ring *ktrace.RingTracer
	var tr ktrace.Tracer = ktrace.Nop
	if cfg.TraceSize > 0 {
		ring = ktrace.NewRingTracer(cfg.TraceSize)
		tr = ring
	}

	start := time.Now()
	res, err := fn(cfg, tr)
	if err != nil {
		log.Error("scenario failed", "name", name, "err", err)
		return Result{}, err
	}
	res.Name = name
	res.Elapsed = time.Since(start)
	res.Trace = ring
	log.Info("scenario done", "name", name, "ops", res.Ops, "ticks", res.Ticks, "elapsed", res.Elapsed)
	return res, nil
}

// RunAll executes the configured scenarios, each on its own kernel, in
// parallel. Results come back in configuration order.
func RunAll(ctx context.Context, cfg Config) ([]Result, error) {
	names := cfg.Names()
	results := make([]Result, len(names))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		g.Go(func() error {
			res, err := Run(gctx, cfg, name)
			if err != nil {
				return fmt.Errorf("scenario %s: %w", name, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// newKernel builds the virtual-time kernel every scenario runs on.
func newKernel(tr ktrace.Tracer) *kernel.Kernel {
	return kernel.New(kernel.Config{Tracer: tr, AutoAdvance: true})
}
