package queryir

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/roach88/nexus/internal/ir"
)

var keyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidationError lists every problem found in a query.
type ValidationError struct {
	Problems []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return "invalid query: " + strings.Join(e.Problems, "; ")
}

// Validate checks that every predicate references a known field with a
// comparable value. It returns nil or a *ValidationError.
func Validate(query Query) error {
	v := &validator{}
	v.validateQuery(query)
	if len(v.problems) == 0 {
		return nil
	}
	return &ValidationError{Problems: v.problems}
}

// validator accumulates problems during traversal.
type validator struct {
	problems []string
}

func (v *validator) addProblem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) validateQuery(q Query) {
	switch query := q.(type) {
	case nil:
		v.addProblem("nil query")
	case Select:
		v.validateSelect(query)
	case *Select:
		v.validateSelect(*query)
	default:
		v.addProblem("unknown query type %T", q)
	}
}

func (v *validator) validateSelect(sel Select) {
	if sel.Limit < 0 {
		v.addProblem("negative limit %d", sel.Limit)
	}
	if sel.Filter != nil {
		v.validatePredicate(sel.Filter)
	}
}

func (v *validator) validatePredicate(p Predicate) {
	switch pred := p.(type) {
	case Equals:
		v.validateEquals(pred)
	case *Equals:
		v.validateEquals(*pred)
	case And:
		v.validateAnd(pred)
	case *And:
		v.validateAnd(*pred)
	default:
		v.addProblem("unknown predicate type %T", p)
	}
}

func (v *validator) validateEquals(eq Equals) {
	switch {
	case IsPayload(eq.Field):
		for _, key := range PayloadPath(eq.Field) {
			if !keyPattern.MatchString(key) {
				v.addProblem("field %q: invalid payload key %q", eq.Field, key)
				return
			}
		}
	case slices.Contains(Columns, eq.Field):
		if _, ok := eq.Value.(ir.String); !ok {
			v.addProblem("field %q: must compare to a string, got %s", eq.Field, ir.Describe(eq.Value))
		}
		return
	default:
		v.addProblem("unknown field %q", eq.Field)
		return
	}

	switch eq.Value.(type) {
	case ir.Array, ir.Object:
		v.addProblem("field %q: cannot compare to %s", eq.Field, ir.Describe(eq.Value))
	case nil:
		v.addProblem("field %q: missing value", eq.Field)
	}
}

func (v *validator) validateAnd(and And) {
	for _, sub := range and.Predicates {
		v.validatePredicate(sub)
	}
}
