package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/nexus/internal/ir"
)

// Validation error codes (E200-E209)
const (
	ErrTopologyNameEmpty  = "E201" // nexus name is required
	ErrTopologyNoOccasion = "E202" // at least one occasion required
	ErrUnknownSubject     = "E203" // binding subject not declared
	ErrUnknownForm        = "E204" // form not in catalog
	ErrUnknownMiddleware  = "E205" // middleware kind not in catalog
	ErrEmptyOccasionName  = "E207" // occasion name is empty
)

// ValidationError represents a topology validation finding.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Catalog reports which form names and middleware kinds can be built.
// *catalog.Registry satisfies it.
type Catalog interface {
	HasForm(name string) bool
	HasMiddleware(kind string) bool
}

// Validate checks a compiled topology.
// Returns all findings (does not fail-fast). A nil known skips the
// catalog checks.
//
// A binding to an undeclared subject is legal for the engine (the binding
// simply never fires) but is almost always a typo, so it is reported.
func Validate(t *ir.Topology, known Catalog) []ValidationError {
	var errs []ValidationError

	// E201: name is required
	if strings.TrimSpace(t.Name) == "" {
		errs = append(errs, ValidationError{
			Field:   "nexus",
			Message: "nexus name is required and must be non-empty",
			Code:    ErrTopologyNameEmpty,
		})
	}

	// E202: at least one occasion
	if len(t.Occasions) == 0 {
		errs = append(errs, ValidationError{
			Field:   "occasions",
			Message: "at least one occasion is required",
			Code:    ErrTopologyNoOccasion,
		})
	}

	declared := make(map[string]bool, len(t.Occasions))
	for i, o := range t.Occasions {
		if strings.TrimSpace(o.Name) == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("occasions[%d]", i),
				Message: "occasion name must be non-empty",
				Code:    ErrEmptyOccasionName,
			})
		}
		declared[o.Name] = true
	}

	for i, b := range t.Bindings {
		// E203: subject must be declared
		if !declared[b.Subject] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("bindings[%d].subject", i),
				Message: fmt.Sprintf("occasion %q is not declared; the binding would never fire", b.Subject),
				Code:    ErrUnknownSubject,
			})
		}

		// E204: form must exist
		if known != nil && !known.HasForm(b.Form) {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("bindings[%d].form", i),
				Message: fmt.Sprintf("unknown form %q", b.Form),
				Code:    ErrUnknownForm,
			})
		}
	}

	// E205: middleware kind must exist
	if known != nil {
		for i, m := range t.Middleware {
			if !known.HasMiddleware(m.Kind) {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("middleware[%d].kind", i),
					Message: fmt.Sprintf("unknown middleware kind %q", m.Kind),
					Code:    ErrUnknownMiddleware,
				})
			}
		}
	}

	return errs
}
