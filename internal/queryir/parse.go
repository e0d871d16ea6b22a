package queryir

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/nexus/internal/ir"
)

// ParseFilter builds a conjunction from field=value terms. Values are YAML
// scalars for payload fields, so payload.total=420 compares a number and
// payload.paid=true a boolean; quote them to force a string. Column values
// are always strings.
//
// An empty term list yields a nil predicate.
func ParseFilter(terms []string) (Predicate, error) {
	if len(terms) == 0 {
		return nil, nil
	}
	and := And{Predicates: make([]Predicate, 0, len(terms))}
	for _, term := range terms {
		eq, err := parseTerm(term)
		if err != nil {
			return nil, err
		}
		and.Predicates = append(and.Predicates, eq)
	}
	return and, nil
}

func parseTerm(term string) (Equals, error) {
	field, raw, ok := strings.Cut(term, "=")
	field = strings.TrimSpace(field)
	if !ok || field == "" {
		return Equals{}, fmt.Errorf("filter %q: want field=value", term)
	}
	if !IsPayload(field) {
		return Equals{Field: field, Value: ir.String(raw)}, nil
	}

	var scalar any
	if err := yaml.Unmarshal([]byte(raw), &scalar); err != nil {
		return Equals{}, fmt.Errorf("filter %q: %w", term, err)
	}
	value, err := ir.FromGo(scalar)
	if err != nil {
		return Equals{}, fmt.Errorf("filter %q: %w", term, err)
	}
	return Equals{Field: field, Value: value}, nil
}
