// Package queryir is the query representation for searching the emission
// journal.
//
// A Query selects recorded facts; its Predicate filters them by fact
// columns or by payload fields:
//
//	Select{
//	  Filter: And{Predicates: []Predicate{
//	    Equals{Field: "name", Value: ir.String("PaymentDeclined")},
//	    Equals{Field: "payload.order_id", Value: ir.String("B-200")},
//	  }},
//	  Limit: 10,
//	}
//
// Fields are one of the fact columns (id, name, nexus, correlation_id,
// causation_id) or a dotted payload path prefixed with "payload.".
//
// Query and Predicate are sealed: only types in this package implement
// them, so backends can switch over them exhaustively. The SQL backend
// lives in package querysql.
//
// Validate reports every problem in a query before it reaches a backend.
// ParseFilter builds a predicate from field=value terms as typed on the
// command line.
package queryir
