package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/nexus/internal/ir"
	"github.com/roach88/nexus/internal/queryir"
	"github.com/roach88/nexus/internal/querysql"
)

// ErrNotFound is returned when a requested emission or fact does not exist.
var ErrNotFound = errors.New("not found")

// EmissionSummary is an emissions row without its facts or snapshot.
type EmissionSummary struct {
	ID         int64
	Nexus      string
	Seq        int64
	Digest     string
	FactCount  int
	RecordedAt time.Time
}

// ReadEmission loads one emission with its closure and snapshot.
func (s *Store) ReadEmission(ctx context.Context, id int64) (Emission, error) {
	var (
		e        Emission
		recorded string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, nexus, seq, digest, engine_version, format_version, recorded_at
		FROM emissions WHERE id = ?
	`, id).Scan(&e.ID, &e.Nexus, &e.Seq, &e.Digest, &e.EngineVersion, &e.FormatVersion, &recorded)
	if errors.Is(err, sql.ErrNoRows) {
		return Emission{}, fmt.Errorf("emission %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Emission{}, fmt.Errorf("read emission %d: %w", id, err)
	}
	if e.RecordedAt, err = parseTime(recorded); err != nil {
		return Emission{}, err
	}

	e.Closure, err = s.queryFacts(ctx, `
		SELECT id, name, payload, created_at, correlation_id, causation_id
		FROM facts WHERE emission_id = ?
		ORDER BY position ASC
	`, id)
	if err != nil {
		return Emission{}, err
	}

	e.Snapshot, err = s.readSnapshot(ctx, id)
	if err != nil {
		return Emission{}, err
	}
	return e, nil
}

// ReadEmissions lists every recorded emission in seq order.
func (s *Store) ReadEmissions(ctx context.Context) ([]EmissionSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, nexus, seq, digest, fact_count, recorded_at
		FROM emissions
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query emissions: %w", err)
	}
	defer rows.Close()

	var out []EmissionSummary
	for rows.Next() {
		var (
			e        EmissionSummary
			recorded string
		)
		if err := rows.Scan(&e.ID, &e.Nexus, &e.Seq, &e.Digest, &e.FactCount, &recorded); err != nil {
			return nil, fmt.Errorf("scan emission: %w", err)
		}
		if e.RecordedAt, err = parseTime(recorded); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate emissions: %w", err)
	}
	return out, nil
}

// ReadCorrelation returns every fact of one correlation branch: the root
// fact whose id is correlationID plus every fact correlated to it, across
// all emissions, ordered by emission seq and then closure position.
func (s *Store) ReadCorrelation(ctx context.Context, correlationID string) ([]ir.Fact, error) {
	facts, err := s.queryFacts(ctx, `
		SELECT f.id, f.name, f.payload, f.created_at, f.correlation_id, f.causation_id
		FROM facts f
		JOIN emissions e ON e.id = f.emission_id
		WHERE f.correlation_id = ? OR (f.correlation_id = '' AND f.id = ?)
		ORDER BY e.seq ASC, f.position ASC
	`, correlationID, correlationID)
	if err != nil {
		return nil, err
	}
	if len(facts) == 0 {
		return nil, fmt.Errorf("correlation %s: %w", correlationID, ErrNotFound)
	}
	return facts, nil
}

// ReadFact returns the most recently recorded fact with the given id.
// Ids are only unique within one emission.
func (s *Store) ReadFact(ctx context.Context, id string) (ir.Fact, error) {
	facts, err := s.queryFacts(ctx, `
		SELECT f.id, f.name, f.payload, f.created_at, f.correlation_id, f.causation_id
		FROM facts f
		JOIN emissions e ON e.id = f.emission_id
		WHERE f.id = ?
		ORDER BY e.seq DESC
		LIMIT 1
	`, id)
	if err != nil {
		return ir.Fact{}, err
	}
	if len(facts) == 0 {
		return ir.Fact{}, fmt.Errorf("fact %s: %w", id, ErrNotFound)
	}
	return facts[0], nil
}

// SearchFacts returns the facts matching q across all emissions in journal
// order. No match is an empty result, not ErrNotFound.
func (s *Store) SearchFacts(ctx context.Context, q queryir.Query) ([]ir.Fact, error) {
	query, params, err := querysql.Compile(q)
	if err != nil {
		return nil, err
	}
	return s.queryFacts(ctx, query, params...)
}

func (s *Store) queryFacts(ctx context.Context, query string, args ...any) ([]ir.Fact, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query facts: %w", err)
	}
	defer rows.Close()

	var out []ir.Fact
	for rows.Next() {
		var (
			f                ir.Fact
			payload, created string
		)
		if err := rows.Scan(&f.ID, &f.Name, &payload, &created, &f.CorrelationID, &f.CausationID); err != nil {
			return nil, fmt.Errorf("scan fact: %w", err)
		}
		if f.Payload, err = unmarshalObject(payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload of %s: %w", f.ID, err)
		}
		if f.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate facts: %w", err)
	}
	return out, nil
}

func (s *Store) readSnapshot(ctx context.Context, emissionID int64) (map[string]ir.Object, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT occasion, state FROM snapshots WHERE emission_id = ?
	`, emissionID)
	if err != nil {
		return nil, fmt.Errorf("query snapshot: %w", err)
	}
	defer rows.Close()

	out := make(map[string]ir.Object)
	for rows.Next() {
		var name, text string
		if err := rows.Scan(&name, &text); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		state, err := unmarshalObject(text)
		if err != nil {
			return nil, fmt.Errorf("unmarshal state of %s: %w", name, err)
		}
		out[name] = state
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot: %w", err)
	}
	return out, nil
}
