// Package middleware provides ready-made fact transforms for Nexus.Use.
//
// Every transform returns a new fact; the input fact and its payload are
// never modified.
package middleware

import (
	"log/slog"

	"github.com/roach88/nexus/internal/engine"
	"github.com/roach88/nexus/internal/ir"
)

// Annotate sets payload[key] = value on every fact.
func Annotate(key string, value ir.Value) engine.Middleware {
	return func(d ir.Fact) ir.Fact {
		return d.WithPayload(key, ir.CloneValue(value))
	}
}

// StampCreatedAt overwrites CreatedAt with the clock's time.
func StampCreatedAt(clock engine.Clock) engine.Middleware {
	return func(d ir.Fact) ir.Fact {
		d.CreatedAt = clock.Now()
		return d
	}
}

// Rename changes the name of facts named from to to. Other facts pass through.
func Rename(from, to string) engine.Middleware {
	return func(d ir.Fact) ir.Fact {
		if d.Name != from {
			return d
		}
		return d.WithName(to)
	}
}

// Tap logs each fact at Debug level and returns it unchanged.
func Tap(logger *slog.Logger) engine.Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(d ir.Fact) ir.Fact {
		logger.Debug("fact",
			"fact", d.Name,
			"fact_id", d.ID,
			"correlation_id", d.CorrelationID,
			"causation_id", d.CausationID,
			"payload", ir.Describe(d.Payload),
		)
		return d
	}
}
