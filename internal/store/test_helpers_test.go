package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/nexus/internal/ir"
)

var testTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// orderClosure builds a two-branch closure the way the orders topology
// would emit it: two roots followed by one reaction each.
func orderClosure(prefix string) []ir.Fact {
	root1 := ir.NewFact("OrderPlaced",
		ir.NewObject(ir.P("order_id", ir.String("A-100")), ir.P("total", ir.Float(420))),
		ir.WithID(prefix+"-1"), ir.WithCreatedAt(testTime))
	root2 := ir.NewFact("OrderPlaced",
		ir.NewObject(ir.P("order_id", ir.String("B-200")), ir.P("total", ir.Float(640))),
		ir.WithID(prefix+"-2"), ir.WithCreatedAt(testTime))
	auth := ir.NewFact("PaymentAuthorized",
		ir.NewObject(ir.P("order_id", ir.String("A-100")), ir.P("amount", ir.Float(420))),
		ir.WithID(prefix+"-3"), ir.WithCreatedAt(testTime.Add(time.Second))).WithLineage(root1)
	decl := ir.NewFact("PaymentDeclined",
		ir.NewObject(ir.P("order_id", ir.String("B-200")), ir.P("amount", ir.Float(640))),
		ir.WithID(prefix+"-4"), ir.WithCreatedAt(testTime.Add(2*time.Second))).WithLineage(root2)
	return []ir.Fact{root1, root2, auth, decl}
}

func orderSnapshot() map[string]ir.Object {
	return map[string]ir.Object{
		"Payments": ir.NewObject(ir.P("limit", ir.Float(500))),
		"OrderDecision": ir.NewObject(ir.P("orders", ir.NewObject(
			ir.P("A-100", ir.NewObject(ir.P("status", ir.String("ACCEPTED")))),
			ir.P("B-200", ir.NewObject(ir.P("status", ir.String("REJECTED")))),
		))),
		"Audit": ir.NewObject(ir.P("events", ir.NewArray())),
	}
}

func writeTestEmission(t *testing.T, s *Store, closure []ir.Fact) int64 {
	t.Helper()
	id, err := s.WriteEmission(t.Context(), Emission{
		Nexus:      "orders",
		Closure:    closure,
		Snapshot:   orderSnapshot(),
		RecordedAt: testTime,
	})
	if err != nil {
		t.Fatalf("WriteEmission() failed: %v", err)
	}
	return id
}
