// Package store provides a SQLite-backed journal of emitted closures.
//
// The journal is append-only:
//   - Emissions: one row per recorded Emit call, with its closure digest
//   - Facts: every fact of the closure, in dequeue order
//   - Snapshots: every occasion's state after the emission
//
// # Ordering
//
//   - Emissions are ordered by seq INTEGER (logical clock), never timestamps
//   - Facts are ordered by (emission seq, position)
//
// # Encoding
//
// Payloads and states are stored as canonical JSON (see ir.MarshalCanonical).
// Floats always carry a decimal point, so Float and Int payload values keep
// their variant across a round trip.
//
// # Search
//
// SearchFacts runs a queryir query compiled by querysql; payload fields are
// matched with SQLite's JSON functions.
//
// # Database
//
// Open sets WAL mode, synchronous=NORMAL, foreign keys and a busy timeout
// (5s unless WithBusyTimeout says otherwise), then applies schema.sql and
// any pending migrations tracked in PRAGMA user_version.
package store
