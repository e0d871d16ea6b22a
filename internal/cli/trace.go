package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/nexus/internal/ir"
	"github.com/roach88/nexus/internal/lineage"
	"github.com/roach88/nexus/internal/queryir"
	"github.com/roach88/nexus/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database    string
	Correlation string // trace one correlation branch
	Fact        string // trace the branch containing this fact
	Emission    int64  // trace one whole emission
	Where       []string
	Limit       int
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Correlation string                  `json:"correlation,omitempty"`
	EmissionID  int64                   `json:"emission_id,omitempty"`
	Where       []string                `json:"where,omitempty"`
	Facts       []ir.Fact               `json:"facts"`
	Emissions   []store.EmissionSummary `json:"emissions,omitempty"`
	Stats       TraceStats              `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	TotalFacts int  `json:"total_facts"`
	Roots      int  `json:"roots"`
	Depth      int  `json:"depth"`
	Consistent bool `json:"consistent"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Query recorded lineage",
		Long: `Query the emission journal.

Shows the causation tree of one correlation branch: the root fact and
every fact derived from it, across all recorded emissions. Without a
selector, lists the recorded emissions.

--where searches every recorded fact instead. Terms are field=value and
must all hold; fields are id, name, nexus, correlation_id, causation_id or
payload.<key>[.<key>...]. Payload values are YAML scalars.

Examples:
  nexus trace --db ./nexus.db
  nexus trace --db ./nexus.db --correlation fact-1
  nexus trace --db ./nexus.db --fact fact-3
  nexus trace --db ./nexus.db --emission 2 --format json
  nexus trace --db ./nexus.db --where name=PaymentDeclined --where payload.total=640`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Correlation, "correlation", "", "correlation id to trace")
	cmd.Flags().StringVar(&opts.Fact, "fact", "", "trace the branch containing this fact id")
	cmd.Flags().Int64Var(&opts.Emission, "emission", 0, "trace every fact of one emission")
	cmd.Flags().StringArrayVar(&opts.Where, "where", nil, "search facts by field=value (repeatable)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum facts returned by --where (0 = no limit)")
	cmd.MarkFlagsMutuallyExclusive("correlation", "fact", "emission", "where")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd)

	if _, err := os.Stat(opts.Database); err != nil {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("database not found: %s", opts.Database), nil)
		return WrapExitError(ExitCommandError, "database not found", err)
	}
	st, err := store.Open(opts.Database, store.WithLogger(formatter.Logger()))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	var result TraceResult
	switch {
	case len(opts.Where) > 0:
		filter, err := queryir.ParseFilter(opts.Where)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --where", err)
		}
		facts, err := st.SearchFacts(ctx, queryir.Select{Filter: filter, Limit: opts.Limit})
		if err != nil {
			var verr *queryir.ValidationError
			if errors.As(err, &verr) {
				_ = formatter.Error(ErrCodeGeneric, err.Error(), verr.Problems)
				return WrapExitError(ExitCommandError, "invalid --where", err)
			}
			return traceReadError(formatter, err)
		}
		result.Where = opts.Where
		result.Facts = facts
		if result.Facts == nil {
			result.Facts = []ir.Fact{}
		}

	case opts.Emission != 0:
		e, err := st.ReadEmission(ctx, opts.Emission)
		if err != nil {
			return traceReadError(formatter, err)
		}
		result.EmissionID = e.ID
		result.Facts = e.Closure

	case opts.Correlation != "" || opts.Fact != "":
		correlation := opts.Correlation
		if opts.Fact != "" {
			f, err := st.ReadFact(ctx, opts.Fact)
			if err != nil {
				return traceReadError(formatter, err)
			}
			correlation = f.Correlation()
			formatter.Logger().Debug("resolved fact branch", "fact", f.ID, "correlation", correlation)
		}
		facts, err := st.ReadCorrelation(ctx, correlation)
		if err != nil {
			return traceReadError(formatter, err)
		}
		result.Correlation = correlation
		result.Facts = facts

	default:
		emissions, err := st.ReadEmissions(ctx)
		if err != nil {
			return traceReadError(formatter, err)
		}
		result.Emissions = emissions
		result.Facts = []ir.Fact{}
		if opts.Format == "json" {
			return formatter.Success(result)
		}
		return outputEmissionsText(formatter, emissions)
	}

	forest := lineage.Tree(result.Facts)
	result.Stats = TraceStats{
		TotalFacts: len(result.Facts),
		Roots:      len(forest),
		Depth:      forestDepth(forest),
		Consistent: lineage.Verify(result.Facts) == nil,
	}

	if opts.Format == "json" {
		return formatter.Success(result)
	}
	return outputTraceText(formatter, result, forest)
}

// traceReadError maps journal misses to exit code 1 and everything else
// to a command error.
func traceReadError(formatter *OutputFormatter, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
		return WrapExitError(ExitFailure, "nothing recorded", err)
	}
	_ = formatter.Error(ErrCodeReadFailed, err.Error(), nil)
	return WrapExitError(ExitCommandError, "failed to read journal", err)
}

func forestDepth(forest []lineage.Node) int {
	depth := 0
	for _, n := range forest {
		if d := 1 + forestDepth(n.Children); d > depth {
			depth = d
		}
	}
	return depth
}

func outputTraceText(formatter *OutputFormatter, result TraceResult, forest []lineage.Node) error {
	w := formatter.Writer

	switch {
	case result.EmissionID != 0:
		fmt.Fprintf(w, "Emission %d\n", result.EmissionID)
	case len(result.Where) > 0:
		fmt.Fprintf(w, "Search %s\n", strings.Join(result.Where, " "))
	default:
		fmt.Fprintf(w, "Correlation %s\n", result.Correlation)
	}
	fmt.Fprintln(w)

	if err := lineage.Render(w, forest); err != nil {
		return err
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Stats: %d fact(s), %d root(s), depth %d\n",
		result.Stats.TotalFacts, result.Stats.Roots, result.Stats.Depth)
	// A search holds matches only, so missing causes are expected
	if !result.Stats.Consistent && len(result.Where) == 0 {
		fmt.Fprintln(w, "Warning: lineage is inconsistent")
	}
	return nil
}

func outputEmissionsText(formatter *OutputFormatter, emissions []store.EmissionSummary) error {
	w := formatter.Writer
	if len(emissions) == 0 {
		fmt.Fprintln(w, "No emissions recorded.")
		return nil
	}
	for _, e := range emissions {
		fmt.Fprintf(w, "#%d seq=%d nexus=%s facts=%d digest=%s recorded=%s\n",
			e.ID, e.Seq, e.Nexus, e.FactCount, shortDigest(e.Digest), e.RecordedAt.Format("2006-01-02T15:04:05Z07:00"))
	}
	return nil
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}
