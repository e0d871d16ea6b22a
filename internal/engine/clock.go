package engine

import "time"

// Clock supplies CreatedAt for derived facts whose reaction left it zero.
//
// CreatedAt is informational only: routing order never depends on it.
type Clock interface {
	Now() time.Time
}

// SystemClock reads wall time in UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now calls f.
func (f ClockFunc) Now() time.Time {
	return f()
}
