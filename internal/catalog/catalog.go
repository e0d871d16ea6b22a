// Package catalog maps the form and middleware names used in declarative
// topologies to engine implementations, and assembles nexuses from
// compiled topologies.
package catalog

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/roach88/nexus/internal/engine"
	"github.com/roach88/nexus/internal/ir"
)

// FormFactory builds a form from binding params.
type FormFactory func(params ir.Object) (engine.Form, error)

// MiddlewareFactory builds a middleware from its params.
type MiddlewareFactory func(params ir.Object) (engine.Middleware, error)

// Registry holds named form and middleware factories.
//
// Thread-safety: register everything before sharing a Registry; lookups
// are read-only afterwards.
type Registry struct {
	forms      map[string]FormFactory
	middleware map[string]MiddlewareFactory
	factory    *ir.Factory
	logger     *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used by the tap middleware.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry creates an empty registry. Facts created by registered forms
// come from factory; a nil factory uses random ids and wall time.
func NewRegistry(factory *ir.Factory, opts ...Option) *Registry {
	if factory == nil {
		factory = ir.NewFactory(nil, nil)
	}
	r := &Registry{
		forms:      make(map[string]FormFactory),
		middleware: make(map[string]MiddlewareFactory),
		factory:    factory,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Factory returns the fact factory shared by the registry's forms.
func (r *Registry) Factory() *ir.Factory {
	return r.factory
}

// RegisterForm adds or replaces a form factory.
func (r *Registry) RegisterForm(name string, f FormFactory) {
	r.forms[name] = f
}

// RegisterMiddleware adds or replaces a middleware factory.
func (r *Registry) RegisterMiddleware(kind string, f MiddlewareFactory) {
	r.middleware[kind] = f
}

// HasForm reports whether name is registered.
func (r *Registry) HasForm(name string) bool {
	_, ok := r.forms[name]
	return ok
}

// HasMiddleware reports whether kind is registered.
func (r *Registry) HasMiddleware(kind string) bool {
	_, ok := r.middleware[kind]
	return ok
}

// Forms returns the registered form names, sorted.
func (r *Registry) Forms() []string {
	return sortedKeys(r.forms)
}

// MiddlewareKinds returns the registered middleware kinds, sorted.
func (r *Registry) MiddlewareKinds() []string {
	return sortedKeys(r.middleware)
}

// Form builds the named form with params.
func (r *Registry) Form(name string, params ir.Object) (engine.Form, error) {
	f, ok := r.forms[name]
	if !ok {
		return nil, fmt.Errorf("unknown form %q (known: %s)", name, strings.Join(r.Forms(), ", "))
	}
	form, err := f(params)
	if err != nil {
		return nil, fmt.Errorf("form %s: %w", name, err)
	}
	return form, nil
}

// Middleware builds the named middleware with params.
func (r *Registry) Middleware(kind string, params ir.Object) (engine.Middleware, error) {
	f, ok := r.middleware[kind]
	if !ok {
		return nil, fmt.Errorf("unknown middleware %q (known: %s)", kind, strings.Join(r.MiddlewareKinds(), ", "))
	}
	mw, err := f(params)
	if err != nil {
		return nil, fmt.Errorf("middleware %s: %w", kind, err)
	}
	return mw, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Default returns a registry with every built-in form and middleware kind.
func Default(factory *ir.Factory, opts ...Option) *Registry {
	r := NewRegistry(factory, opts...)

	r.RegisterForm("orders.authorize", r.authorize)
	r.RegisterForm("orders.decide", decide)
	r.RegisterForm("audit.record", record)
	r.RegisterForm("counter.adjust", r.adjust)
	r.RegisterForm("counter.project", project)
	r.RegisterForm("saga.step", r.sagaStep)
	r.RegisterForm("echo", r.echo)

	r.RegisterMiddleware("annotate", annotate)
	r.RegisterMiddleware("rename", rename)
	r.RegisterMiddleware("tap", r.tap)

	return r
}
