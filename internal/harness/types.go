package harness

import "github.com/roach88/nexus/internal/ir"

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every assertion holds.
	Pass bool `json:"pass"`

	// Closure is the emitted closure in dequeue order.
	Closure []ir.Fact `json:"closure"`

	// Snapshot is every occasion's state after the emission.
	Snapshot map[string]ir.Object `json:"snapshot"`

	// Digest is the closure digest (see ir.ClosureDigest).
	Digest string `json:"digest"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Closure:  []ir.Fact{},
		Snapshot: make(map[string]ir.Object),
		Errors:   []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
