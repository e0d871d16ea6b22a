// Package lineage inspects the correlation/causation structure of a closure.
//
// A closure returned by Nexus.Emit forms a forest: initial facts are roots,
// and every derived fact points at its immediate cause through CausationID.
// All facts descended from one root share that root's correlation identity.
package lineage

import (
	"errors"
	"fmt"

	"github.com/roach88/nexus/internal/ir"
)

// ViolationError reports a fact whose lineage is inconsistent with the
// closure it appears in.
type ViolationError struct {
	Index  int    // Position of the offending fact in the closure
	FactID string // ID of the offending fact
	Reason string
}

// Error implements the error interface.
func (e *ViolationError) Error() string {
	return fmt.Sprintf("lineage violation at [%d] %s: %s", e.Index, e.FactID, e.Reason)
}

// IsViolationError reports whether err wraps a ViolationError.
func IsViolationError(err error) bool {
	var ve *ViolationError
	return errors.As(err, &ve)
}

// Verify checks the lineage invariant of a closure.
//
// Every fact id is unique, and every fact with a causation id names a fact
// earlier in the closure and carries that parent's correlation identity.
// Initial facts are accepted as they are.
func Verify(closure []ir.Fact) error {
	seen := make(map[string]ir.Fact, len(closure))
	for i, f := range closure {
		if f.ID == "" {
			return &ViolationError{Index: i, Reason: "empty id"}
		}
		if _, dup := seen[f.ID]; dup {
			return &ViolationError{Index: i, FactID: f.ID, Reason: "duplicate id"}
		}
		if !f.IsInitial() {
			parent, ok := seen[f.CausationID]
			if !ok {
				return &ViolationError{
					Index:  i,
					FactID: f.ID,
					Reason: fmt.Sprintf("causation %q does not precede it", f.CausationID),
				}
			}
			if f.CorrelationID != parent.Correlation() {
				return &ViolationError{
					Index:  i,
					FactID: f.ID,
					Reason: fmt.Sprintf("correlation %q, parent %s has %q", f.CorrelationID, parent.ID, parent.Correlation()),
				}
			}
		}
		seen[f.ID] = f
	}
	return nil
}

// Roots returns the initial facts in closure order.
func Roots(closure []ir.Fact) []ir.Fact {
	var out []ir.Fact
	for _, f := range closure {
		if f.IsInitial() {
			out = append(out, f)
		}
	}
	return out
}

// Children returns the facts directly caused by id, in closure order.
func Children(closure []ir.Fact, id string) []ir.Fact {
	var out []ir.Fact
	for _, f := range closure {
		if f.CausationID == id {
			out = append(out, f)
		}
	}
	return out
}

// Branch returns every fact with the given correlation identity, in closure
// order. The root itself is included: its correlation identity is its own id
// unless it carries an explicit one.
func Branch(closure []ir.Fact, correlationID string) []ir.Fact {
	var out []ir.Fact
	for _, f := range closure {
		if f.Correlation() == correlationID {
			out = append(out, f)
		}
	}
	return out
}

// Ancestors returns the causal chain from the root down to the fact with
// the given id, inclusive. Returns nil when id is not in the closure.
func Ancestors(closure []ir.Fact, id string) []ir.Fact {
	byID := index(closure)
	f, ok := byID[id]
	if !ok {
		return nil
	}

	chain := []ir.Fact{f}
	for !f.IsInitial() {
		parent, ok := byID[f.CausationID]
		if !ok {
			break
		}
		chain = append(chain, parent)
		f = parent
	}

	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

func index(closure []ir.Fact) map[string]ir.Fact {
	byID := make(map[string]ir.Fact, len(closure))
	for _, f := range closure {
		byID[f.ID] = f
	}
	return byID
}
