package queryir

import (
	"strings"

	"github.com/roach88/nexus/internal/ir"
)

// Query selects facts from the journal.
type Query interface {
	queryNode()
}

// Predicate filters facts.
type Predicate interface {
	predicateNode()
}

// Fact columns a predicate may reference directly.
const (
	FieldID          = "id"
	FieldName        = "name"
	FieldNexus       = "nexus"
	FieldCorrelation = "correlation_id"
	FieldCausation   = "causation_id"
)

// PayloadPrefix marks a field as a path into the fact payload.
const PayloadPrefix = "payload."

// Columns lists the fact columns in a stable order.
var Columns = []string{FieldID, FieldName, FieldNexus, FieldCorrelation, FieldCausation}

// Select returns facts matching Filter in journal order: emission sequence,
// then closure position.
//
//	SELECT <fact> FROM facts WHERE <filter> ORDER BY seq, position LIMIT <limit>
type Select struct {
	Filter Predicate // nil matches every fact
	Limit  int       // 0 = no limit
}

func (Select) queryNode() {}

// Equals matches facts whose field equals Value.
//
// Payload comparisons are numeric by magnitude, so Int(420) matches a
// recorded 420.0. Null matches payloads where the path is absent or null.
// Arrays and objects cannot be compared.
type Equals struct {
	Field string
	Value ir.Value
}

func (Equals) predicateNode() {}

// And matches facts satisfying every predicate. An empty And matches all.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// IsPayload reports whether field addresses the payload.
func IsPayload(field string) bool {
	return strings.HasPrefix(field, PayloadPrefix)
}

// PayloadPath returns the keys of a payload field: "payload.a.b" is [a b].
func PayloadPath(field string) []string {
	return strings.Split(strings.TrimPrefix(field, PayloadPrefix), ".")
}
