package engine

import (
	"errors"
	"fmt"
)

// ReactionError reports a form that failed while an occasion handled a fact.
//
// A reaction failure aborts the whole emission; the partial closure is
// discarded and the caller receives this error instead.
type ReactionError struct {
	// Occasion is the name of the occasion whose form failed.
	Occasion string

	// FactID identifies the fact being handled.
	FactID string

	// FactName is the name of the fact being handled.
	FactName string

	// Err is the error returned by the form.
	Err error
}

// Error implements the error interface.
func (e *ReactionError) Error() string {
	return fmt.Sprintf("occasion %s failed on %s (%s): %v", e.Occasion, e.FactName, e.FactID, e.Err)
}

// Unwrap exposes the form's error to errors.Is / errors.As.
func (e *ReactionError) Unwrap() error {
	return e.Err
}

// IsReactionError reports whether err wraps a ReactionError.
func IsReactionError(err error) bool {
	var re *ReactionError
	return errors.As(err, &re)
}

// UnregisteredSubjectError is returned by BindStrict when a prehension's
// subject is not the occasion registered under its name.
type UnregisteredSubjectError struct {
	Nexus   string
	Subject string
}

// Error implements the error interface.
func (e *UnregisteredSubjectError) Error() string {
	return fmt.Sprintf("nexus %s: subject %q is not registered", e.Nexus, e.Subject)
}

// IsUnregisteredSubjectError reports whether err wraps an UnregisteredSubjectError.
func IsUnregisteredSubjectError(err error) bool {
	var ue *UnregisteredSubjectError
	return errors.As(err, &ue)
}
