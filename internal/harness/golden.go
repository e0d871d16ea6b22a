package harness

import (
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/nexus/internal/ir"
)

// ClosureSnapshot is the deterministic record of one run compared against
// golden files. Digests are left out so the files stay reviewable by hand.
type ClosureSnapshot struct {
	ScenarioName string
	Closure      []ir.Fact
	Snapshot     map[string]ir.Object
}

// toCanonicalMap converts the snapshot to a map[string]any for canonical
// JSON serialization.
func (s *ClosureSnapshot) toCanonicalMap() map[string]any {
	closure := make([]any, len(s.Closure))
	for i, f := range s.Closure {
		fact := map[string]any{
			"id":         f.ID,
			"name":       f.Name,
			"payload":    f.Payload,
			"created_at": f.CreatedAt.UTC().Format(time.RFC3339Nano),
		}
		if f.CorrelationID != "" {
			fact["correlation_id"] = f.CorrelationID
		}
		if f.CausationID != "" {
			fact["causation_id"] = f.CausationID
		}
		closure[i] = fact
	}

	snapshot := make(map[string]any, len(s.Snapshot))
	for name, state := range s.Snapshot {
		snapshot[name] = state
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"closure":       closure,
		"snapshot":      snapshot,
	}
}

// MarshalSnapshot renders a result as canonical JSON.
func MarshalSnapshot(name string, result *Result) ([]byte, error) {
	snap := ClosureSnapshot{
		ScenarioName: name,
		Closure:      result.Closure,
		Snapshot:     result.Snapshot,
	}
	return ir.MarshalCanonical(snap.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares its closure and snapshot
// against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the output doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...Option) (*Result, error) {
	t.Helper()

	result, err := RunContext(t.Context(), scenario, opts...)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := MarshalSnapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
