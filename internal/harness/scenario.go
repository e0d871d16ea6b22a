package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/nexus/internal/ir"
)

// Scenario defines one deterministic emission and its expectations.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Topology is the path of a CUE topology file or package directory.
	// LoadScenario resolves it relative to the scenario file.
	Topology string `yaml:"topology"`

	// IDPrefix prefixes generated fact ids. Defaults to "fact".
	IDPrefix string `yaml:"id_prefix,omitempty"`

	// Now is the RFC 3339 timestamp every fact is created at.
	// Defaults to 2024-01-01T00:00:00Z.
	Now string `yaml:"now,omitempty"`

	// Concurrent runs the emission with the actor dispatcher.
	Concurrent bool `yaml:"concurrent,omitempty"`

	// MaxSteps bounds the emission when positive.
	MaxSteps int `yaml:"max_steps,omitempty"`

	// Facts are emitted together, in order, as one Emit call.
	Facts []FactStep `yaml:"facts"`

	// Assertions validate the closure and the final snapshot.
	Assertions []Assertion `yaml:"assertions"`
}

// FactStep is one initial fact.
type FactStep struct {
	Name string `yaml:"name"`

	// ID overrides the generated id.
	ID string `yaml:"id,omitempty"`

	Payload map[string]any `yaml:"payload,omitempty"`
}

// Assertion validates the closure or the snapshot.
type Assertion struct {
	Type string `yaml:"type"`

	// Names is the expected closure order (closure_order).
	Names []string `yaml:"names,omitempty"`

	// Name filters facts (closure_count, closure_contains).
	Name string `yaml:"name,omitempty"`

	// Payload is a subset match (closure_contains).
	Payload map[string]any `yaml:"payload,omitempty"`

	// Count is the expected number of facts or entries
	// (closure_count, snapshot_len).
	Count int `yaml:"count,omitempty"`

	// Occasion and Key select a snapshot value (snapshot, snapshot_len).
	// An empty Key selects the whole state.
	Occasion string `yaml:"occasion,omitempty"`
	Key      string `yaml:"key,omitempty"`

	// Expect is the expected snapshot value (snapshot).
	Expect any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertClosureOrder    = "closure_order"
	AssertClosureCount    = "closure_count"
	AssertClosureContains = "closure_contains"
	AssertSnapshot        = "snapshot"
	AssertSnapshotLen     = "snapshot_len"
	AssertLineage         = "lineage"
)

// defaultNow is the timestamp used when a scenario does not set now.
const defaultNow = "2024-01-01T00:00:00Z"

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	// Resolve the topology relative to the scenario BEFORE validation
	if scenario.Topology != "" && !filepath.IsAbs(scenario.Topology) {
		scenario.Topology = filepath.Join(filepath.Dir(path), scenario.Topology)
	}
	if _, err := os.Stat(scenario.Topology); err != nil {
		return nil, fmt.Errorf("invalid scenario: topology not found: %s", scenario.Topology)
	}

	return scenario, nil
}

// ParseScenario decodes and validates scenario YAML. The topology path is
// taken as is.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// NowTime returns the parsed now timestamp, or the default.
func (s *Scenario) NowTime() (time.Time, error) {
	now := s.Now
	if now == "" {
		now = defaultNow
	}
	t, err := time.Parse(time.RFC3339Nano, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("now: %w", err)
	}
	return t.UTC(), nil
}

// InitialFacts converts the facts list using factory for ids and timestamps.
func (s *Scenario) InitialFacts(factory *ir.Factory) ([]ir.Fact, error) {
	return BuildFacts(factory, s.Facts)
}

// BuildFacts converts fact steps to facts, in order.
func BuildFacts(factory *ir.Factory, steps []FactStep) ([]ir.Fact, error) {
	facts := make([]ir.Fact, 0, len(steps))
	for i, step := range steps {
		if step.Name == "" {
			return nil, fmt.Errorf("facts[%d]: name is required", i)
		}
		payload, err := ir.ObjectFromGo(step.Payload)
		if err != nil {
			return nil, fmt.Errorf("facts[%d].payload: %w", i, err)
		}
		var opts []ir.FactOption
		if step.ID != "" {
			opts = append(opts, ir.WithID(step.ID))
		}
		facts = append(facts, factory.New(step.Name, payload, opts...))
	}
	return facts, nil
}

// FactsFile is a standalone list of initial facts:
//
//	facts:
//	  - name: OrderPlaced
//	    payload: {order_id: A-100, total: 420.0}
type FactsFile struct {
	Facts []FactStep `yaml:"facts"`
}

// LoadFacts reads a facts file with strict field checking.
func LoadFacts(path string) ([]FactStep, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read facts file: %w", err)
	}

	var file FactsFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	for i, step := range file.Facts {
		if step.Name == "" {
			return nil, fmt.Errorf("facts[%d]: name is required", i)
		}
	}
	return file.Facts, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Topology == "" {
		return fmt.Errorf("topology is required")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	if _, err := s.NowTime(); err != nil {
		return err
	}
	if s.MaxSteps < 0 {
		return fmt.Errorf("max_steps must be non-negative")
	}

	for i, step := range s.Facts {
		if step.Name == "" {
			return fmt.Errorf("facts[%d]: name is required", i)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertClosureOrder:
		if a.Names == nil {
			return fmt.Errorf("assertions[%d]: names list is required for closure_order", index)
		}
	case AssertClosureCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for closure_count", index)
		}
	case AssertClosureContains:
		if a.Name == "" {
			return fmt.Errorf("assertions[%d]: name is required for closure_contains", index)
		}
	case AssertSnapshot:
		if a.Occasion == "" {
			return fmt.Errorf("assertions[%d]: occasion is required for snapshot", index)
		}
		if a.Expect == nil {
			return fmt.Errorf("assertions[%d]: expect is required for snapshot", index)
		}
	case AssertSnapshotLen:
		if a.Occasion == "" || a.Key == "" {
			return fmt.Errorf("assertions[%d]: occasion and key are required for snapshot_len", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for snapshot_len", index)
		}
	case AssertLineage:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
