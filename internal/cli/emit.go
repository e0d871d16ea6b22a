package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/nexus/internal/catalog"
	"github.com/roach88/nexus/internal/compiler"
	"github.com/roach88/nexus/internal/engine"
	"github.com/roach88/nexus/internal/harness"
	"github.com/roach88/nexus/internal/ir"
	"github.com/roach88/nexus/internal/lineage"
	"github.com/roach88/nexus/internal/store"
)

// EmitOptions holds flags for the emit command.
type EmitOptions struct {
	*RootOptions
	Facts      string
	Database   string
	IDPrefix   string
	Now        string
	MaxSteps   int
	Concurrent bool
}

// EmitResult is the output of one emission.
type EmitResult struct {
	Nexus      string               `json:"nexus"`
	EmissionID int64                `json:"emission_id,omitempty"`
	Digest     string               `json:"digest"`
	Closure    []ir.Fact            `json:"closure"`
	Snapshot   map[string]ir.Object `json:"snapshot"`
	Order      []string             `json:"-"`
}

// NewEmitCommand creates the emit command.
func NewEmitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EmitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "emit <topology>",
		Short: "Emit facts into a topology and print the closure",
		Long: `Build a nexus from a CUE topology, emit the facts of a YAML file in one
call and print the closure as a causation tree followed by every
occasion's state.

With --db the emission is recorded in the SQLite journal.
With --id-prefix fact ids are sequential (prefix-1, prefix-2, ...)
instead of random UUIDv7s, which makes runs reproducible.

Examples:
  nexus emit ./orders.cue --facts ./facts.yaml
  nexus emit ./orders.cue --facts ./facts.yaml --db ./nexus.db
  nexus emit ./orders.cue --facts ./facts.yaml --id-prefix fact --now 2024-01-01T00:00:00Z`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEmit(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Facts, "facts", "", "path to YAML facts file (required)")
	_ = cmd.MarkFlagRequired("facts")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record the emission in this SQLite database")
	cmd.Flags().StringVar(&opts.IDPrefix, "id-prefix", "", "use sequential fact ids with this prefix")
	cmd.Flags().StringVar(&opts.Now, "now", "", "freeze fact timestamps at this RFC 3339 time")
	cmd.Flags().IntVar(&opts.MaxSteps, "max-steps", 0, "abort emissions longer than this many facts (0 = unlimited)")
	cmd.Flags().BoolVar(&opts.Concurrent, "concurrent", false, "dispatch with one goroutine per occasion")

	return cmd
}

func runEmit(opts *EmitOptions, topologyPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := formatter.Logger()

	topology, err := LoadTopology(topologyPath)
	if err != nil {
		return outputLoadError(formatter, err)
	}

	clock, err := emitClock(opts.Now)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --now", err)
	}
	var ids ir.IDGenerator = ir.UUIDv7Generator{}
	if opts.IDPrefix != "" {
		ids = ir.NewSequenceGenerator(opts.IDPrefix)
	}
	factory := ir.NewFactory(ids, clock.Now)
	registry := defaultCatalog(factory, catalog.WithLogger(logger))

	if err := checkBuildable(topology, registry, logger); err != nil {
		_ = formatter.Error(err.Code, err.Error(), nil)
		return WrapExitError(ExitFailure, "invalid topology", err)
	}

	engineOpts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithClock(clock),
		engine.WithIDs(ids),
	}
	if opts.MaxSteps > 0 {
		engineOpts = append(engineOpts, engine.WithMaxSteps(opts.MaxSteps))
	}
	if opts.Concurrent {
		engineOpts = append(engineOpts, engine.WithConcurrentDispatch())
	}
	nexus, err := catalog.Build(topology, registry, engineOpts...)
	if err != nil {
		_ = formatter.Error(ErrCodeBuildFailed, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to build nexus", err)
	}

	steps, err := harness.LoadFacts(opts.Facts)
	if err != nil {
		_ = formatter.Error(ErrCodeReadFailed, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load facts", err)
	}
	facts, err := harness.BuildFacts(factory, steps)
	if err != nil {
		_ = formatter.Error(ErrCodeReadFailed, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load facts", err)
	}

	// Interrupts cancel the emission between steps
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	closure, err := nexus.Emit(ctx, facts...)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitFailure, "emission aborted", err)
	}

	result := EmitResult{
		Nexus:    nexus.Name(),
		Closure:  closure,
		Snapshot: nexus.Snapshot(),
		Order:    nexus.Names(),
	}
	if result.Digest, err = ir.ClosureDigest(closure); err != nil {
		return WrapExitError(ExitFailure, "failed to digest closure", err)
	}

	if opts.Database != "" {
		id, err := recordEmission(ctx, opts.Database, result, logger)
		if err != nil {
			_ = formatter.Error(ErrCodeWriteFailed, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to record emission", err)
		}
		result.EmissionID = id
		logger.Debug("recorded emission", "id", id, "database", opts.Database)
	}

	if opts.Format == "json" {
		return formatter.Success(result)
	}
	return outputEmitText(formatter, result)
}

// emitClock freezes time at now when set, otherwise reads the system clock.
func emitClock(now string) (engine.Clock, error) {
	if now == "" {
		return engine.SystemClock{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, now)
	if err != nil {
		return nil, err
	}
	t = t.UTC()
	return engine.ClockFunc(func() time.Time { return t }), nil
}

// checkBuildable fails on validation findings that would stop catalog.Build
// or produce a meaningless nexus. Undeclared subjects are only warned about:
// the nexus treats such bindings as no-ops.
func checkBuildable(t *ir.Topology, known compiler.Catalog, logger *slog.Logger) *compiler.ValidationError {
	for _, finding := range compiler.Validate(t, known) {
		if finding.Code == compiler.ErrUnknownSubject {
			logger.Warn("binding to undeclared subject", "field", finding.Field, "message", finding.Message)
			continue
		}
		return &finding
	}
	return nil
}

func recordEmission(ctx context.Context, path string, result EmitResult, logger *slog.Logger) (int64, error) {
	st, err := store.Open(path, store.WithLogger(logger))
	if err != nil {
		return 0, err
	}
	defer st.Close()

	return st.WriteEmission(ctx, store.Emission{
		Nexus:    result.Nexus,
		Closure:  result.Closure,
		Snapshot: result.Snapshot,
	})
}

func outputEmitText(formatter *OutputFormatter, result EmitResult) error {
	w := formatter.Writer

	fmt.Fprintf(w, "Nexus %s: %d fact(s)\n", result.Nexus, len(result.Closure))
	fmt.Fprintf(w, "Digest: %s\n", result.Digest)
	if result.EmissionID != 0 {
		fmt.Fprintf(w, "Recorded: emission %d\n", result.EmissionID)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Closure:")
	if err := lineage.Render(w, lineage.Tree(result.Closure)); err != nil {
		return err
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Snapshot:")
	for _, name := range result.Order {
		fmt.Fprintf(w, "  %s %s\n", name, ir.Describe(result.Snapshot[name]))
	}
	return nil
}
