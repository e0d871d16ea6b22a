package engine

import "github.com/roach88/nexus/internal/ir"

// Middleware transforms a fact immediately before it is queued for dispatch.
// Middleware should be pure: one fact in, one (possibly modified) fact out.
type Middleware func(ir.Fact) ir.Fact

// Chain composes middleware left to right: Chain(f, g)(d) == g(f(d)).
// Chain() is the identity.
func Chain(mws ...Middleware) Middleware {
	return func(d ir.Fact) ir.Fact {
		for _, mw := range mws {
			d = mw(d)
		}
		return d
	}
}
