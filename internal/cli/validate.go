package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/nexus/internal/compiler"
	"github.com/roach88/nexus/internal/ir"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Nexus     string                     `json:"nexus,omitempty"`
	Occasions []string                   `json:"occasions,omitempty"`
	Bindings  int                        `json:"bindings"`
	Valid     bool                       `json:"valid"`
	Errors    []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <topology>",
		Short: "Validate a topology without emitting",
		Long: `Compile a CUE topology and check it against the built-in catalog.

Reports every finding: an empty nexus name, no occasions, bindings to
undeclared subjects, unknown forms and unknown middleware kinds.

Examples:
  nexus validate ./orders.cue
  nexus validate ./topologies/orders --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	topology, err := LoadTopology(path)
	if err != nil {
		return outputLoadError(formatter, err)
	}
	formatter.Logger().Debug("compiled topology", "path", path, "occasions", len(topology.Occasions), "bindings", len(topology.Bindings))

	result := ValidationResult{
		Nexus:     topology.Name,
		Occasions: occasionNames(topology),
		Bindings:  len(topology.Bindings),
		Errors:    compiler.Validate(topology, defaultCatalog(nil)),
	}
	result.Valid = len(result.Errors) == 0

	if !result.Valid {
		return outputValidationErrors(formatter, result)
	}
	return outputValidateSuccess(formatter, result)
}

func occasionNames(t *ir.Topology) []string {
	names := make([]string, len(t.Occasions))
	for i, o := range t.Occasions {
		names[i] = o.Name
	}
	return names
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ Topology %s valid (%d occasions, %d bindings)\n",
		result.Nexus, len(result.Occasions), result.Bindings)
	return nil
}

// outputValidationErrors outputs every validation finding.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	errs := result.Errors
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}

		// Validation failures = exit code 1 (test/validation failure)
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		fmt.Fprintf(formatter.Writer, "  %s %s: %s\n", err.Code, err.Field, err.Message)
	}

	// Validation failures = exit code 1 (test/validation failure)
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
