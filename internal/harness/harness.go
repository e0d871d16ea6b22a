package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/nexus/internal/catalog"
	"github.com/roach88/nexus/internal/compiler"
	"github.com/roach88/nexus/internal/engine"
	"github.com/roach88/nexus/internal/ir"
	"github.com/roach88/nexus/internal/testutil"
)

// Option configures a run.
type Option func(*runConfig)

type runConfig struct {
	logger *slog.Logger
}

// WithLogger sets the logger passed to the catalog and the nexus.
// Runs are silent by default.
func WithLogger(logger *slog.Logger) Option {
	return func(c *runConfig) { c.logger = logger }
}

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Compile and validate the topology
//  2. Assemble a nexus with the default catalog and deterministic ids
//  3. Emit every initial fact in one call
//  4. Evaluate assertions against the closure and snapshot
//
// An error means the scenario could not run; failed assertions are
// reported in Result.Errors instead.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	return RunContext(context.Background(), scenario, opts...)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := runConfig{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&cfg)
	}

	topology, err := compiler.Load(scenario.Topology)
	if err != nil {
		return nil, fmt.Errorf("failed to load topology: %w", err)
	}

	now, err := scenario.NowTime()
	if err != nil {
		return nil, err
	}
	clock := testutil.NewStepClock(now, 0)
	ids := ir.NewSequenceGenerator(scenario.IDPrefix)
	factory := ir.NewFactory(ids, clock.Now)

	registry := catalog.Default(factory, catalog.WithLogger(cfg.logger))
	if err := checkTopology(topology, registry); err != nil {
		return nil, err
	}

	engineOpts := []engine.Option{
		engine.WithLogger(cfg.logger),
		engine.WithClock(clock),
		engine.WithIDs(ids),
	}
	if scenario.Concurrent {
		engineOpts = append(engineOpts, engine.WithConcurrentDispatch())
	}
	if scenario.MaxSteps > 0 {
		engineOpts = append(engineOpts, engine.WithMaxSteps(scenario.MaxSteps))
	}
	nexus, err := catalog.Build(topology, registry, engineOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build nexus: %w", err)
	}

	facts, err := scenario.InitialFacts(factory)
	if err != nil {
		return nil, err
	}

	closure, err := nexus.Emit(ctx, facts...)
	if err != nil {
		return nil, fmt.Errorf("emission failed: %w", err)
	}

	result := NewResult()
	result.Closure = closure
	result.Snapshot = nexus.Snapshot()
	if result.Digest, err = ir.ClosureDigest(closure); err != nil {
		return nil, err
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}

	cfg.logger.Info("scenario complete",
		"scenario", scenario.Name,
		"facts", len(closure),
		"pass", result.Pass,
	)
	return result, nil
}

// checkTopology rejects topologies with validation findings. An undeclared
// binding subject is allowed: the nexus treats it as a no-op.
func checkTopology(t *ir.Topology, known compiler.Catalog) error {
	for _, finding := range compiler.Validate(t, known) {
		if finding.Code == compiler.ErrUnknownSubject {
			continue
		}
		return fmt.Errorf("invalid topology: %w", finding)
	}
	return nil
}
