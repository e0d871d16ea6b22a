package store

import (
	"fmt"
	"time"

	"github.com/roach88/nexus/internal/ir"
)

// timeLayout is used for every TEXT timestamp column.
// Fixed-width nanoseconds keep lexical and chronological order equal.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// marshalObject converts an Object to canonical JSON TEXT for storage.
func marshalObject(obj ir.Object) (string, error) {
	if obj == nil {
		obj = ir.Object{}
	}
	data, err := ir.MarshalCanonical(obj)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// unmarshalObject parses a stored payload or state column.
func unmarshalObject(text string) (ir.Object, error) {
	v, err := ir.UnmarshalValue([]byte(text))
	if err != nil {
		return nil, err
	}
	obj, ok := v.(ir.Object)
	if !ok {
		return nil, fmt.Errorf("expected JSON object, got %T", v)
	}
	return obj, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(text string) (time.Time, error) {
	t, err := time.Parse(timeLayout, text)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", text, err)
	}
	return t, nil
}
