package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/nexus/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update    bool   // regenerate golden files
	Filter    string // scenario filter (glob pattern on the scenario name)
	GoldenDir string // golden directory; defaults to <scenario dir>/golden
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Facts  int      `json:"facts"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenario>...",
		Short: "Run scenario files",
		Long: `Run YAML scenarios through the harness.

Each argument is a scenario file or a directory of scenario files.
Assertions are always evaluated; when a golden file named after the
scenario exists, the closure and snapshot must also match it.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  nexus test ./scenarios
  nexus test ./scenarios/orders.yaml --golden-dir ./testdata/golden
  nexus test ./scenarios --filter "orders_*"
  nexus test ./scenarios --update`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")
	cmd.Flags().StringVar(&opts.GoldenDir, "golden-dir", "", "directory of golden files (default <scenario dir>/golden)")

	return cmd
}

func runTests(opts *TestOptions, paths []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	scenarioFiles, err := harness.Discover(paths...)
	if err != nil {
		_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}
	if opts.Filter != "" {
		if _, err := filepath.Match(opts.Filter, ""); err != nil {
			return WrapExitError(ExitCommandError, "invalid filter pattern", err)
		}
	}

	result := TestResult{Scenarios: []ScenarioResult{}}
	for _, scenarioFile := range scenarioFiles {
		scenario, err := harness.LoadScenario(scenarioFile)
		if err != nil {
			result.add(reportScenario(formatter, ScenarioResult{
				Name:   filepath.Base(scenarioFile),
				Errors: []string{fmt.Sprintf("failed to load scenario: %v", err)},
			}, ""))
			continue
		}
		if opts.Filter != "" {
			if matched, _ := filepath.Match(opts.Filter, scenario.Name); !matched {
				continue
			}
		}
		result.add(runScenario(formatter, opts, scenario, scenarioFile))
	}

	if opts.Format == "json" {
		return outputTestJSON(formatter, result)
	}
	return outputTestText(formatter, result)
}

func (r *TestResult) add(s ScenarioResult) {
	r.Scenarios = append(r.Scenarios, s)
	r.Total++
	if s.Pass {
		r.Passed++
	} else {
		r.Failed++
	}
}

// runScenario executes a single scenario and returns the result.
func runScenario(formatter *OutputFormatter, opts *TestOptions, scenario *harness.Scenario, scenarioFile string) ScenarioResult {
	res := ScenarioResult{Name: scenario.Name}

	result, err := harness.Run(scenario, harness.WithLogger(formatter.Logger()))
	if err != nil {
		res.Errors = []string{fmt.Sprintf("execution failed: %v", err)}
		return reportScenario(formatter, res, "")
	}
	res.Facts = len(result.Closure)
	res.Errors = result.Errors

	goldenPath := goldenFilePath(opts.GoldenDir, scenarioFile, scenario.Name)
	data, err := harness.MarshalSnapshot(scenario.Name, result)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("failed to marshal snapshot: %v", err))
		return reportScenario(formatter, res, "")
	}

	if opts.Update {
		if err := writeGolden(goldenPath, data); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("failed to update golden file: %v", err))
		}
		res.Pass = len(res.Errors) == 0
		return reportScenario(formatter, res, "golden updated")
	}

	golden, err := os.ReadFile(goldenPath)
	switch {
	case os.IsNotExist(err):
		// No golden file - use assertion-based validation only
	case err != nil:
		res.Errors = append(res.Errors, fmt.Sprintf("golden comparison failed: %v", err))
	case !bytes.Equal(golden, data):
		res.Errors = append(res.Errors, "closure does not match golden file (run with --update to regenerate)")
	}

	res.Pass = len(res.Errors) == 0
	return reportScenario(formatter, res, "")
}

// reportScenario prints one scenario line in text mode.
func reportScenario(formatter *OutputFormatter, res ScenarioResult, note string) ScenarioResult {
	if formatter.Format == "json" {
		return res
	}
	w := formatter.Writer
	if res.Pass {
		if note != "" {
			fmt.Fprintf(w, "✓ %s (%s)\n", res.Name, note)
		} else {
			fmt.Fprintf(w, "✓ %s\n", res.Name)
		}
		return res
	}
	fmt.Fprintf(w, "✗ %s\n", res.Name)
	for _, e := range res.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
	return res
}

// goldenFilePath returns the golden file for a scenario.
func goldenFilePath(goldenDir, scenarioFile, name string) string {
	if goldenDir == "" {
		goldenDir = filepath.Join(filepath.Dir(scenarioFile), "golden")
	}
	return filepath.Join(goldenDir, name+".golden")
}

func writeGolden(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write golden file: %w", err)
	}
	return nil
}

// outputTestJSON outputs the test result as JSON.
func outputTestJSON(formatter *OutputFormatter, result TestResult) error {
	status := "ok"
	if result.Failed > 0 {
		status = "error"
	}

	response := CLIResponse{
		Status: status,
		Data:   result,
	}

	if result.Failed > 0 {
		response.Error = &CLIError{
			Code:    "E_TEST_FAILED",
			Message: fmt.Sprintf("%d scenario(s) failed", result.Failed),
		}
	}

	encoder := json.NewEncoder(formatter.Writer)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}

	if result.Failed > 0 {
		// Test failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}

// outputTestText outputs the test result as text.
func outputTestText(formatter *OutputFormatter, result TestResult) error {
	w := formatter.Writer

	if result.Total == 0 {
		fmt.Fprintln(w, "No scenarios found.")
		return nil
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)

	if result.Failed > 0 {
		// Test failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}

	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}
