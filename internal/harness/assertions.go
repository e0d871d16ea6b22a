package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/nexus/internal/ir"
	"github.com/roach88/nexus/internal/lineage"
)

// AssertionError is returned when an assertion fails.
// It includes the closure to help debug the failure.
type AssertionError struct {
	Type     string    // Assertion type for categorization
	Expected string    // Human-readable expected outcome
	Actual   string    // Human-readable actual outcome
	Closure  []ir.Fact // Full closure for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Closure) > 0 {
		fmt.Fprintf(&buf, "\nFull closure:\n")
		for i, f := range e.Closure {
			fmt.Fprintf(&buf, "  [%d] %s %s %s\n", i+1, f.Name, f.ID, ir.Describe(f.Payload))
		}
	}
	return buf.String()
}

// assertClosureOrder checks that the closure's names are exactly names.
// Routing is deterministic, so the whole order is asserted.
func assertClosureOrder(closure []ir.Fact, a Assertion) error {
	got := factNames(closure)
	if slices.Equal(got, a.Names) {
		return nil
	}
	return &AssertionError{
		Type:     AssertClosureOrder,
		Expected: fmt.Sprintf("%v", a.Names),
		Actual:   fmt.Sprintf("%v", got),
		Closure:  closure,
	}
}

// assertClosureCount counts facts, or only those named a.Name.
func assertClosureCount(closure []ir.Fact, a Assertion) error {
	count := 0
	for _, f := range closure {
		if a.Name == "" || f.Name == a.Name {
			count++
		}
	}
	if count == a.Count {
		return nil
	}

	what := "facts"
	if a.Name != "" {
		what = "occurrences of " + a.Name
	}
	return &AssertionError{
		Type:     AssertClosureCount,
		Expected: fmt.Sprintf("%d %s", a.Count, what),
		Actual:   fmt.Sprintf("%d %s", count, what),
		Closure:  closure,
	}
}

// assertClosureContains looks for a fact named a.Name whose payload
// contains a.Payload (subset match).
func assertClosureContains(closure []ir.Fact, a Assertion) error {
	want, err := ir.ObjectFromGo(a.Payload)
	if err != nil {
		return fmt.Errorf("closure_contains payload: %w", err)
	}
	for _, f := range closure {
		if f.Name == a.Name && ir.Contains(f.Payload, want) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertClosureContains,
		Expected: fmt.Sprintf("%s with payload %s", a.Name, ir.Describe(want)),
		Actual:   "not found in closure",
		Closure:  closure,
	}
}

// assertSnapshot compares occasion[key] with a.Expect. Int and Float
// compare by magnitude so YAML literals need not carry a decimal point.
func assertSnapshot(snapshot map[string]ir.Object, a Assertion) error {
	got, err := snapshotValue(snapshot, a)
	if err != nil {
		return err
	}
	want, err := ir.FromGo(a.Expect)
	if err != nil {
		return fmt.Errorf("snapshot expect: %w", err)
	}
	if valuesMatch(got, want) {
		return nil
	}
	return &AssertionError{
		Type:     AssertSnapshot,
		Expected: fmt.Sprintf("%s = %s", snapshotPath(a), ir.Describe(want)),
		Actual:   fmt.Sprintf("%s = %s", snapshotPath(a), ir.Describe(got)),
	}
}

// assertSnapshotLen checks the number of entries of an array or object.
func assertSnapshotLen(snapshot map[string]ir.Object, a Assertion) error {
	got, err := snapshotValue(snapshot, a)
	if err != nil {
		return err
	}

	var n int
	switch v := got.(type) {
	case ir.Array:
		n = len(v)
	case ir.Object:
		n = len(v)
	default:
		return &AssertionError{
			Type:     AssertSnapshotLen,
			Expected: fmt.Sprintf("%s to be an array or object", snapshotPath(a)),
			Actual:   ir.Describe(got),
		}
	}
	if n == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertSnapshotLen,
		Expected: fmt.Sprintf("%d entries in %s", a.Count, snapshotPath(a)),
		Actual:   fmt.Sprintf("%d entries", n),
	}
}

// assertLineage checks the closure's causation and correlation links.
func assertLineage(closure []ir.Fact) error {
	if err := lineage.Verify(closure); err != nil {
		return &AssertionError{
			Type:     AssertLineage,
			Expected: "consistent lineage",
			Actual:   err.Error(),
			Closure:  closure,
		}
	}
	return nil
}

func snapshotValue(snapshot map[string]ir.Object, a Assertion) (ir.Value, error) {
	state, ok := snapshot[a.Occasion]
	if !ok {
		return nil, &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("occasion %s in snapshot", a.Occasion),
			Actual:   "occasion not registered",
		}
	}
	if a.Key == "" {
		return state, nil
	}
	v, ok := state[a.Key]
	if !ok {
		return nil, &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("key %s in %s", a.Key, a.Occasion),
			Actual:   fmt.Sprintf("state %s", ir.Describe(state)),
		}
	}
	return v, nil
}

func snapshotPath(a Assertion) string {
	if a.Key == "" {
		return a.Occasion
	}
	return a.Occasion + "." + a.Key
}

// valuesMatch is ir.Equal except that Int and Float compare by magnitude.
func valuesMatch(got, want ir.Value) bool {
	switch w := want.(type) {
	case ir.Int, ir.Float:
		g, gok := asNumber(got)
		n, _ := asNumber(w)
		return gok && g == n
	case ir.Array:
		g, ok := got.(ir.Array)
		if !ok || len(g) != len(w) {
			return false
		}
		for i := range w {
			if !valuesMatch(g[i], w[i]) {
				return false
			}
		}
		return true
	case ir.Object:
		g, ok := got.(ir.Object)
		if !ok || len(g) != len(w) {
			return false
		}
		for k, wv := range w {
			gv, exists := g[k]
			if !exists || !valuesMatch(gv, wv) {
				return false
			}
		}
		return true
	default:
		return ir.Equal(got, want)
	}
}

func asNumber(v ir.Value) (float64, bool) {
	switch n := v.(type) {
	case ir.Int:
		return float64(n), true
	case ir.Float:
		return float64(n), true
	default:
		return 0, false
	}
}

func factNames(closure []ir.Fact) []string {
	names := make([]string, len(closure))
	for i, f := range closure {
		names[i] = f.Name
	}
	return names
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertClosureOrder:
			err = assertClosureOrder(result.Closure, assertion)
		case AssertClosureCount:
			err = assertClosureCount(result.Closure, assertion)
		case AssertClosureContains:
			err = assertClosureContains(result.Closure, assertion)
		case AssertSnapshot:
			err = assertSnapshot(result.Snapshot, assertion)
		case AssertSnapshotLen:
			err = assertSnapshotLen(result.Snapshot, assertion)
		case AssertLineage:
			err = assertLineage(result.Closure)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}
