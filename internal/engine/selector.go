package engine

import (
	"slices"

	"github.com/roach88/nexus/internal/ir"
)

// Selector decides whether a fact is relevant to a binding.
type Selector func(ir.Fact) bool

// Any selects every fact.
func Any() Selector {
	return func(ir.Fact) bool { return true }
}

// Named selects facts whose name is one of names.
func Named(names ...string) Selector {
	names = slices.Clone(names)
	return func(d ir.Fact) bool {
		return slices.Contains(names, d.Name)
	}
}

// Where selects facts whose payload has key equal to value.
func Where(key string, value ir.Value) Selector {
	return func(d ir.Fact) bool {
		got, ok := d.Payload[key]
		return ok && ir.Equal(got, value)
	}
}

// Matching selects facts whose payload contains every key of want
// with an equal value (subset match).
func Matching(want ir.Object) Selector {
	want = want.Clone()
	return func(d ir.Fact) bool {
		return ir.Contains(d.Payload, want)
	}
}

// All selects facts accepted by every selector. All() selects everything.
func All(sels ...Selector) Selector {
	return func(d ir.Fact) bool {
		for _, s := range sels {
			if !s(d) {
				return false
			}
		}
		return true
	}
}

// AnyOf selects facts accepted by at least one selector.
func AnyOf(sels ...Selector) Selector {
	return func(d ir.Fact) bool {
		for _, s := range sels {
			if s(d) {
				return true
			}
		}
		return false
	}
}

// Not inverts a selector.
func Not(sel Selector) Selector {
	return func(d ir.Fact) bool { return !sel(d) }
}
