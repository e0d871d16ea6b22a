// Package compiler turns declarative CUE topologies into ir.Topology values
// and validates them against a catalog of known forms and middleware.
package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/nexus/internal/ir"
)

// CompileTopology parses a CUE value into a Topology.
// Uses the CUE SDK's Go API directly (not a CLI subprocess).
//
// Expected shape:
//
//	nexus: "orders"
//	occasions: {
//		Payments: state: limit: 500.0
//		Audit: state: events: []
//	}
//	bindings: [
//		{subject: "Payments", select: names: ["OrderPlaced"], form: "orders.authorize"},
//		{subject: "Audit", form: "audit.record"},
//	]
//	middleware: [{kind: "annotate", params: {key: "source", value: "cli"}}]
//
// Occasions keep CUE field declaration order, which becomes registry order.
func CompileTopology(v cue.Value) (*ir.Topology, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	t := &ir.Topology{}

	if nameVal := lookup(v, "nexus"); nameVal.Exists() {
		name, err := nameVal.String()
		if err != nil {
			return nil, fieldError("nexus", "must be a string", nameVal)
		}
		t.Name = name
	}

	var err error
	if t.Occasions, err = parseOccasions(v); err != nil {
		return nil, err
	}
	if t.Bindings, err = parseBindings(v); err != nil {
		return nil, err
	}
	if t.Middleware, err = parseMiddleware(v); err != nil {
		return nil, err
	}
	return t, nil
}

// parseOccasions extracts occasions in declaration order.
func parseOccasions(v cue.Value) ([]ir.OccasionSpec, error) {
	occVal := lookup(v, "occasions")
	if !occVal.Exists() {
		return nil, nil
	}

	iter, err := occVal.Fields()
	if err != nil {
		return nil, fieldError("occasions", "must be a struct", occVal)
	}

	var out []ir.OccasionSpec
	for iter.Next() {
		spec := ir.OccasionSpec{Name: iter.Label(), State: ir.Object{}}

		stateVal := lookup(iter.Value(), "state")
		if stateVal.Exists() {
			state, err := toObject(stateVal, fmt.Sprintf("occasions.%s.state", spec.Name))
			if err != nil {
				return nil, err
			}
			spec.State = state
		}
		out = append(out, spec)
	}
	return out, nil
}

// parseBindings extracts bindings in list order.
func parseBindings(v cue.Value) ([]ir.BindingSpec, error) {
	listVal := lookup(v, "bindings")
	if !listVal.Exists() {
		return nil, nil
	}

	iter, err := listVal.List()
	if err != nil {
		return nil, fieldError("bindings", "must be a list", listVal)
	}

	var out []ir.BindingSpec
	for i := 0; iter.Next(); i++ {
		field := fmt.Sprintf("bindings[%d]", i)
		bv := iter.Value()

		subject, err := requiredString(bv, "subject", field)
		if err != nil {
			return nil, err
		}
		form, err := requiredString(bv, "form", field)
		if err != nil {
			return nil, err
		}
		b := ir.BindingSpec{Subject: subject, Form: form}

		selVal := lookup(bv, "select")
		if selVal.Exists() {
			if b.Select, err = parseSelector(selVal, field+".select"); err != nil {
				return nil, err
			}
		}

		if paramsVal := lookup(bv, "params"); paramsVal.Exists() {
			if b.Params, err = toObject(paramsVal, field+".params"); err != nil {
				return nil, err
			}
		}
		out = append(out, b)
	}
	return out, nil
}

func parseSelector(v cue.Value, field string) (ir.SelectorSpec, error) {
	var sel ir.SelectorSpec

	if namesVal := lookup(v, "names"); namesVal.Exists() {
		iter, err := namesVal.List()
		if err != nil {
			return sel, fieldError(field+".names", "must be a list of strings", namesVal)
		}
		for iter.Next() {
			name, err := resolve(iter.Value()).String()
			if err != nil {
				return sel, fieldError(field+".names", "must be a list of strings", iter.Value())
			}
			sel.Names = append(sel.Names, name)
		}
	}

	if matchVal := lookup(v, "match"); matchVal.Exists() {
		match, err := toObject(matchVal, field+".match")
		if err != nil {
			return sel, err
		}
		sel.Match = match
	}
	return sel, nil
}

// parseMiddleware extracts middleware in list order.
func parseMiddleware(v cue.Value) ([]ir.MiddlewareSpec, error) {
	listVal := lookup(v, "middleware")
	if !listVal.Exists() {
		return nil, nil
	}

	iter, err := listVal.List()
	if err != nil {
		return nil, fieldError("middleware", "must be a list", listVal)
	}

	var out []ir.MiddlewareSpec
	for i := 0; iter.Next(); i++ {
		field := fmt.Sprintf("middleware[%d]", i)
		kind, err := requiredString(iter.Value(), "kind", field)
		if err != nil {
			return nil, err
		}
		m := ir.MiddlewareSpec{Kind: kind}
		if paramsVal := lookup(iter.Value(), "params"); paramsVal.Exists() {
			if m.Params, err = toObject(paramsVal, field+".params"); err != nil {
				return nil, err
			}
		}
		out = append(out, m)
	}
	return out, nil
}

// resolve selects the default of a disjunction such as int | *0.
// Values without a default are returned unchanged.
func resolve(v cue.Value) cue.Value {
	if d, ok := v.Default(); ok {
		return d
	}
	return v
}

// lookup returns the field at path with its default resolved.
func lookup(v cue.Value, path string) cue.Value {
	return resolve(v.LookupPath(cue.ParsePath(path)))
}

func requiredString(v cue.Value, name, parent string) (string, error) {
	fv := lookup(v, name)
	if !fv.Exists() {
		return "", fieldError(parent+"."+name, name+" is required", v)
	}
	s, err := fv.String()
	if err != nil {
		return "", fieldError(parent+"."+name, "must be a string", fv)
	}
	return s, nil
}

func toObject(v cue.Value, field string) (ir.Object, error) {
	val, err := toValue(v, field)
	if err != nil {
		return nil, err
	}
	obj, ok := val.(ir.Object)
	if !ok {
		return nil, fieldError(field, "must be a struct", v)
	}
	return obj, nil
}

// toValue converts a concrete CUE value to an ir.Value.
// CUE ints become Int and CUE floats (500.0) become Float.
func toValue(v cue.Value, field string) (ir.Value, error) {
	v = resolve(v)
	switch v.Kind() {
	case cue.NullKind:
		return ir.Null{}, nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Bool(b), nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.String(s), nil
	case cue.IntKind:
		i, err := v.Int64()
		if err != nil {
			return nil, fieldError(field, fmt.Sprintf("integer out of range: %v", err), v)
		}
		return ir.Int(i), nil
	case cue.FloatKind:
		f, err := v.Float64()
		if err != nil {
			return nil, fieldError(field, fmt.Sprintf("invalid float: %v", err), v)
		}
		return ir.Float(f), nil
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		arr := ir.Array{}
		for i := 0; iter.Next(); i++ {
			elem, err := toValue(iter.Value(), fmt.Sprintf("%s[%d]", field, i))
			if err != nil {
				return nil, err
			}
			arr = append(arr, elem)
		}
		return arr, nil
	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		obj := ir.Object{}
		for iter.Next() {
			elem, err := toValue(iter.Value(), field+"."+iter.Label())
			if err != nil {
				return nil, err
			}
			obj[iter.Label()] = elem
		}
		return obj, nil
	default:
		return nil, fieldError(field, fmt.Sprintf("unsupported value kind: %v", v.Kind()), v)
	}
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func fieldError(field, message string, v cue.Value) *CompileError {
	return &CompileError{Field: field, Message: message, Pos: v.Pos()}
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
