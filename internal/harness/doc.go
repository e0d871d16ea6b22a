// Package harness runs declarative nexus scenarios.
//
// A scenario names a CUE topology, the facts to emit and the assertions
// that must hold over the resulting closure and snapshot. The topology is
// compiled, assembled with the default catalog and driven through a real
// Nexus.Emit call.
//
// # Scenario Format
//
//	name: orders_happy_path
//	description: "Both orders are decided"
//	topology: orders.cue
//	id_prefix: fact
//	now: "2024-01-01T00:00:00Z"
//	facts:
//	  - name: OrderPlaced
//	    payload: {order_id: A-100, total: 420.0}
//	assertions:
//	  - type: closure_order
//	    names: [OrderPlaced, PaymentAuthorized]
//	  - type: snapshot
//	    occasion: OrderDecision
//	    key: orders
//	    expect: {A-100: {status: ACCEPTED}}
//
// # Assertion Types
//
//   - closure_order: the closure's fact names, exactly and in order
//   - closure_count: number of facts, optionally only those named name
//   - closure_contains: some fact named name whose payload contains payload
//   - snapshot: the value at occasion[key] (or the whole state) equals expect
//   - snapshot_len: the array or object at occasion[key] has count entries
//   - lineage: every derived fact's causation and correlation are consistent
//
// # Deterministic Testing
//
// Fact ids come from a sequence generator (id_prefix-1, id_prefix-2, ...)
// and every timestamp is frozen at now, so a scenario produces the same
// closure on every run. RunWithGolden compares that closure and snapshot
// with testdata/golden/<name>.golden.
//
// Regenerate golden files with:
//
//	go test ./internal/harness -update
package harness
