// Package querysql compiles journal queries to parameterized SQLite.
package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/nexus/internal/ir"
	"github.com/roach88/nexus/internal/queryir"
)

// FactColumns is the column list every compiled query selects, in the
// order the store scans them.
const FactColumns = "f.id, f.name, f.payload, f.created_at, f.correlation_id, f.causation_id"

var columns = map[string]string{
	queryir.FieldID:          "f.id",
	queryir.FieldName:        "f.name",
	queryir.FieldNexus:       "e.nexus",
	queryir.FieldCorrelation: "f.correlation_id",
	queryir.FieldCausation:   "f.causation_id",
}

// Compile converts a validated query to SQL and its parameters.
//
// Every query is ordered by emission seq and closure position. Values are
// always bound as parameters, never interpolated.
func Compile(q queryir.Query) (string, []any, error) {
	if err := queryir.Validate(q); err != nil {
		return "", nil, err
	}

	var sel queryir.Select
	switch query := q.(type) {
	case queryir.Select:
		sel = query
	case *queryir.Select:
		sel = *query
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}

	var b strings.Builder
	var params []any
	b.WriteString("SELECT " + FactColumns + " FROM facts f JOIN emissions e ON e.id = f.emission_id")

	if sel.Filter != nil {
		where, whereParams, err := compilePredicate(sel.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		b.WriteString(" WHERE " + where)
		params = append(params, whereParams...)
	}

	b.WriteString(" ORDER BY e.seq ASC, f.position ASC")

	if sel.Limit > 0 {
		b.WriteString(" LIMIT ?")
		params = append(params, sel.Limit)
	}
	return b.String(), params, nil
}

func compilePredicate(p queryir.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case queryir.Equals:
		return compileEquals(pred)
	case *queryir.Equals:
		return compileEquals(*pred)
	case queryir.And:
		return compileAnd(pred)
	case *queryir.And:
		return compileAnd(*pred)
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func compileEquals(eq queryir.Equals) (string, []any, error) {
	if col, ok := columns[eq.Field]; ok {
		s, ok := eq.Value.(ir.String)
		if !ok {
			return "", nil, fmt.Errorf("field %s: want string, got %T", eq.Field, eq.Value)
		}
		return col + " = ?", []any{string(s)}, nil
	}

	path := jsonPath(eq.Field)
	switch v := eq.Value.(type) {
	case ir.Null:
		return "COALESCE(json_type(f.payload, ?), 'null') = 'null'", []any{path}, nil
	case ir.Bool:
		// json_extract turns booleans into 0 and 1; json_type keeps them apart from numbers
		return "json_type(f.payload, ?) = ?", []any{path, fmt.Sprint(bool(v))}, nil
	case ir.String:
		return "json_extract(f.payload, ?) = ?", []any{path, string(v)}, nil
	case ir.Int:
		return "json_extract(f.payload, ?) = ?", []any{path, int64(v)}, nil
	case ir.Float:
		return "json_extract(f.payload, ?) = ?", []any{path, float64(v)}, nil
	default:
		return "", nil, fmt.Errorf("field %s: cannot compare to %T", eq.Field, eq.Value)
	}
}

func compileAnd(and queryir.And) (string, []any, error) {
	if len(and.Predicates) == 0 {
		return "1 = 1", nil, nil
	}

	parts := make([]string, 0, len(and.Predicates))
	var params []any
	for _, pred := range and.Predicates {
		sql, predParams, err := compilePredicate(pred)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, "("+sql+")")
		params = append(params, predParams...)
	}
	return strings.Join(parts, " AND "), params, nil
}

// jsonPath turns payload.a.b into $.a.b.
func jsonPath(field string) string {
	return "$." + strings.Join(queryir.PayloadPath(field), ".")
}
