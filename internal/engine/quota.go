package engine

import (
	"errors"
	"fmt"
)

// stepQuota counts dequeued facts in one emission and enforces an
// optional maximum.
//
// The router does not bound closures by default: a reaction graph that
// never stops producing facts is a modeling defect owned by the caller.
// WithMaxSteps opts into a hard limit that turns such a defect into an error.
type stepQuota struct {
	maxSteps int // 0 = unlimited
	current  int
}

func newStepQuota(maxSteps int) *stepQuota {
	return &stepQuota{maxSteps: maxSteps}
}

// check increments the step counter and validates it against the limit.
func (q *stepQuota) check(nexus string) error {
	q.current++
	if q.maxSteps > 0 && q.current > q.maxSteps {
		return &StepsExceededError{
			Nexus: nexus,
			Steps: q.current,
			Limit: q.maxSteps,
		}
	}
	return nil
}

// StepsExceededError is returned when an emission dequeues more facts
// than the configured limit. The whole emission is aborted.
type StepsExceededError struct {
	Nexus string // The nexus that ran the emission
	Steps int    // Number of steps taken, including the rejected one
	Limit int    // Maximum allowed steps
}

// Error implements the error interface.
func (e *StepsExceededError) Error() string {
	return fmt.Sprintf("nexus %s exceeded max steps: %d steps > %d limit",
		e.Nexus, e.Steps, e.Limit)
}

// IsStepsExceededError reports whether err wraps a StepsExceededError.
func IsStepsExceededError(err error) bool {
	var se *StepsExceededError
	return errors.As(err, &se)
}
