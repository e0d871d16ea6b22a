package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/nexus/internal/ir"
)

// Emission is one recorded Emit call: its closure in dequeue order and the
// state of every occasion after it completed.
type Emission struct {
	ID            int64
	Nexus         string
	Seq           int64
	Digest        string
	EngineVersion string
	FormatVersion string
	RecordedAt    time.Time
	Closure       []ir.Fact
	Snapshot      map[string]ir.Object
}

// WriteEmission records a closure and its snapshot in one transaction and
// returns the new emission id.
//
// Seq, Digest, versions and RecordedAt are assigned by the store; values set
// by the caller are ignored, except a non-zero RecordedAt which is kept so
// tests can pin timestamps.
func (s *Store) WriteEmission(ctx context.Context, e Emission) (int64, error) {
	if e.Nexus == "" {
		return 0, fmt.Errorf("write emission: nexus name is empty")
	}
	digest, err := ir.ClosureDigest(e.Closure)
	if err != nil {
		return 0, fmt.Errorf("write emission: %w", err)
	}
	recordedAt := e.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() // no-op after Commit

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM emissions`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("next seq: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO emissions (nexus, seq, digest, fact_count, engine_version, format_version, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.Nexus, seq, digest, len(e.Closure), ir.EngineVersion, ir.FormatVersion, formatTime(recordedAt))
	if err != nil {
		return 0, fmt.Errorf("insert emission: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("emission id: %w", err)
	}

	if err := writeFacts(ctx, tx, id, e.Closure); err != nil {
		return 0, err
	}
	if err := writeSnapshot(ctx, tx, id, e.Snapshot); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit emission: %w", err)
	}
	return id, nil
}

func writeFacts(ctx context.Context, tx *sql.Tx, emissionID int64, closure []ir.Fact) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO facts (emission_id, position, id, name, payload, created_at, correlation_id, causation_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare fact insert: %w", err)
	}
	defer stmt.Close()

	for i, f := range closure {
		payload, err := marshalObject(f.Payload)
		if err != nil {
			return fmt.Errorf("marshal payload of %s: %w", f.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, emissionID, i, f.ID, f.Name, payload,
			formatTime(f.CreatedAt), f.CorrelationID, f.CausationID); err != nil {
			return fmt.Errorf("insert fact %s: %w", f.ID, err)
		}
	}
	return nil
}

func writeSnapshot(ctx context.Context, tx *sql.Tx, emissionID int64, snapshot map[string]ir.Object) error {
	for name, state := range snapshot {
		text, err := marshalObject(state)
		if err != nil {
			return fmt.Errorf("marshal state of %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO snapshots (emission_id, occasion, state) VALUES (?, ?, ?)
		`, emissionID, name, text); err != nil {
			return fmt.Errorf("insert snapshot %s: %w", name, err)
		}
	}
	return nil
}
