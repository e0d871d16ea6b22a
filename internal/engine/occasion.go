package engine

import (
	"iter"

	"github.com/roach88/nexus/internal/ir"
)

// Form is a reaction: how an occasion takes up a selected fact.
//
// React may mutate occ.State and returns the derived facts in the order they
// should be routed. Returning an error aborts the whole emission.
type Form interface {
	React(occ *Occasion, d ir.Fact) ([]ir.Fact, error)
}

// FormFunc adapts a plain function to Form.
type FormFunc func(occ *Occasion, d ir.Fact) ([]ir.Fact, error)

// React calls f(occ, d).
func (f FormFunc) React(occ *Occasion, d ir.Fact) ([]ir.Fact, error) {
	return f(occ, d)
}

// binding pairs a selector with a form on one occasion.
type binding struct {
	selector Selector
	form     Form
}

// Occasion is a named reactive entity with private mutable state and an
// ordered list of bindings.
//
// INVARIANTS:
//   - State is mutated only by the occasion's own forms
//   - bindings are evaluated in installation order
//   - the nexus reads State only to snapshot it
type Occasion struct {
	name     string
	State    ir.Object
	bindings []binding
}

// NewOccasion creates an occasion. A nil state starts as an empty object.
// The state is used as given (not copied): the occasion owns it from here on.
func NewOccasion(name string, state ir.Object) *Occasion {
	if state == nil {
		state = ir.Object{}
	}
	return &Occasion{name: name, State: state}
}

// Name returns the registry key of the occasion.
func (o *Occasion) Name() string {
	return o.name
}

// Len returns the number of installed bindings.
func (o *Occasion) Len() int {
	return len(o.bindings)
}

// On appends a binding and returns the occasion for chaining.
// Identical bindings are not deduplicated. A nil selector selects every fact.
func (o *Occasion) On(selector Selector, form Form) *Occasion {
	if selector == nil {
		selector = Any()
	}
	o.bindings = append(o.bindings, binding{selector: selector, form: form})
	return o
}

// OnFunc is On for a plain reaction function.
func (o *Occasion) OnFunc(selector Selector, form func(occ *Occasion, d ir.Fact) ([]ir.Fact, error)) *Occasion {
	return o.On(selector, FormFunc(form))
}

// Handle returns the lazy sequence of facts this occasion derives from d.
//
// Bindings run strictly in installation order. For each binding whose
// selector accepts d, the form runs and every fact it returns is yielded
// before the next binding is tried. A form error is yielded once with a
// zero Fact and the sequence ends; facts already yielded stay yielded.
func (o *Occasion) Handle(d ir.Fact) iter.Seq2[ir.Fact, error] {
	return func(yield func(ir.Fact, error) bool) {
		for _, b := range o.bindings {
			if !b.selector(d) {
				continue
			}
			out, err := b.form.React(o, d)
			if err != nil {
				yield(ir.Fact{}, err)
				return
			}
			for _, f := range out {
				if !yield(f, nil) {
					return
				}
			}
		}
	}
}
