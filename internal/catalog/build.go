package catalog

import (
	"fmt"

	"github.com/roach88/nexus/internal/engine"
	"github.com/roach88/nexus/internal/ir"
)

// Build assembles a nexus from a compiled topology.
//
// Occasions are added in declaration order with a deep copy of their
// declared state, bindings are installed in declaration order and
// middleware is used in declaration order.
//
// A binding whose subject is not declared is installed on a detached
// occasion, so it has no effect on dispatch, mirroring Nexus.Bind.
// Unknown forms and middleware kinds are errors.
func Build(t *ir.Topology, r *Registry, opts ...engine.Option) (*engine.Nexus, error) {
	n := engine.New(t.Name, opts...)

	occasions := make(map[string]*engine.Occasion, len(t.Occasions))
	for _, spec := range t.Occasions {
		occ := engine.NewOccasion(spec.Name, spec.State.Clone())
		occasions[spec.Name] = occ
		n.Add(occ)
	}

	prehensions := make([]engine.Prehension, 0, len(t.Bindings))
	for i, b := range t.Bindings {
		form, err := r.Form(b.Form, b.Params)
		if err != nil {
			return nil, fmt.Errorf("bindings[%d] (%s): %w", i, b.Subject, err)
		}
		subject, ok := occasions[b.Subject]
		if !ok {
			subject = engine.NewOccasion(b.Subject, nil)
			occasions[b.Subject] = subject
		}
		prehensions = append(prehensions, engine.NewPrehension(subject, Selector(b.Select), form))
	}
	n.Bind(prehensions...)

	for i, m := range t.Middleware {
		mw, err := r.Middleware(m.Kind, m.Params)
		if err != nil {
			return nil, fmt.Errorf("middleware[%d]: %w", i, err)
		}
		n.Use(mw)
	}

	return n, nil
}

// Selector converts a declarative selector. Names and Match combine with
// AND; an empty spec selects every fact.
func Selector(spec ir.SelectorSpec) engine.Selector {
	var sels []engine.Selector
	if len(spec.Names) > 0 {
		sels = append(sels, engine.Named(spec.Names...))
	}
	if len(spec.Match) > 0 {
		sels = append(sels, engine.Matching(spec.Match))
	}
	switch len(sels) {
	case 0:
		return engine.Any()
	case 1:
		return sels[0]
	default:
		return engine.All(sels...)
	}
}
