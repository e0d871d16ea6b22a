package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/nexus/internal/ir"
)

// Nexus routes facts between registered occasions.
//
// Emit computes the full causal closure of an initial batch: every fact is
// dispatched to every registered occasion in registration order, derived
// facts re-enter the same FIFO queue, and the call returns once the queue
// is empty.
//
// Thread-safety model:
//   - every method is safe from any goroutine; calls are serialized
//   - forms run while Emit holds the nexus, so a form must not call back
//     into the nexus that dispatched it
//
// INVARIANTS:
//   - registry order never changes except by Remove
//   - derived facts carry causation_id = parent id and the parent's
//     correlation identity
type Nexus struct {
	mu sync.Mutex

	name       string
	registry   *registry
	middleware []Middleware

	logger     *slog.Logger
	clock      Clock
	ids        ir.IDGenerator
	maxSteps   int // 0 = unlimited
	concurrent bool
}

// Option configures a Nexus.
type Option func(*Nexus)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(n *Nexus) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// WithClock sets the clock used for derived facts with a zero CreatedAt.
func WithClock(clock Clock) Option {
	return func(n *Nexus) {
		if clock != nil {
			n.clock = clock
		}
	}
}

// WithIDs sets the generator used for facts that arrive without an id.
func WithIDs(ids ir.IDGenerator) Option {
	return func(n *Nexus) {
		if ids != nil {
			n.ids = ids
		}
	}
}

// WithMaxSteps bounds the number of facts one Emit may dequeue.
//
// Default: 0 (unlimited). A closure that would exceed the limit aborts
// with *StepsExceededError.
func WithMaxSteps(maxSteps int) Option {
	return func(n *Nexus) {
		n.maxSteps = maxSteps
	}
}

// WithConcurrentDispatch gives every occasion its own goroutine during
// Emit. The nexus still visits occasions one at a time in registry order,
// so the closure, ids included, is identical to sequential dispatch.
func WithConcurrentDispatch() Option {
	return func(n *Nexus) {
		n.concurrent = true
	}
}

// New creates an empty nexus.
func New(name string, opts ...Option) *Nexus {
	n := &Nexus{
		name:     name,
		registry: newRegistry(),
		logger:   slog.Default(),
		clock:    SystemClock{},
		ids:      ir.UUIDGenerator{},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Name returns the nexus name.
func (n *Nexus) Name() string {
	return n.name
}

// Add registers occasions under their names and returns the nexus.
//
// A new name is appended. Re-adding a registered name replaces the occasion
// but keeps the entry's original position.
func (n *Nexus) Add(occasions ...*Occasion) *Nexus {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, occ := range occasions {
		if n.registry.put(occ) {
			n.logger.Debug("occasion replaced", "nexus", n.name, "occasion", occ.Name())
		}
	}
	return n
}

// Remove unregisters name. Reports whether it was registered.
func (n *Nexus) Remove(name string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.registry.remove(name)
}

// Bind installs each prehension onto its subject and returns the nexus.
//
// Bind does not register subjects. A prehension whose subject is not the
// registered occasion of that name is still installed, but it has no effect
// on dispatch until the subject is added.
func (n *Nexus) Bind(prehensions ...Prehension) *Nexus {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, p := range prehensions {
		subject := p.Subject()
		if !n.registered(subject) {
			n.logger.Warn("binding to unregistered occasion",
				"nexus", n.name,
				"occasion", subject.Name(),
			)
		}
		subject.On(p.Selector(), p.Form())
	}
	return n
}

// BindStrict is Bind that refuses prehensions whose subject is not
// registered. Nothing is installed when any subject is unknown.
func (n *Nexus) BindStrict(prehensions ...Prehension) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, p := range prehensions {
		if !n.registered(p.Subject()) {
			return &UnregisteredSubjectError{Nexus: n.name, Subject: p.Subject().Name()}
		}
	}
	for _, p := range prehensions {
		p.Subject().On(p.Selector(), p.Form())
	}
	return nil
}

// registered reports whether occ is the occasion registered under its name.
func (n *Nexus) registered(occ *Occasion) bool {
	got, ok := n.registry.get(occ.Name())
	return ok && got == occ
}

// Use appends middleware. Middleware runs in registration order on every
// fact, initial and derived, before it is queued.
func (n *Nexus) Use(mw Middleware) *Nexus {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.middleware = append(n.middleware, mw)
	return n
}

// Emit routes facts and returns their full causal closure in dequeue order.
//
// The closure includes the (middleware-transformed) initial facts. A form
// error aborts the call: the partial closure is discarded and a
// *ReactionError is returned. Occasion state already mutated by earlier
// reactions is not rolled back.
func (n *Nexus) Emit(ctx context.Context, facts ...ir.Fact) ([]ir.Fact, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	closure, err := n.emit(ctx, facts)
	if err != nil {
		n.logger.Error("emission aborted",
			"nexus", n.name,
			"initial", len(facts),
			"error", err,
		)
		return nil, err
	}

	n.logger.Info("emission complete",
		"nexus", n.name,
		"initial", len(facts),
		"closure", len(closure),
	)
	return closure, nil
}

func (n *Nexus) emit(ctx context.Context, facts []ir.Fact) (_ []ir.Fact, retErr error) {
	chain := Chain(n.middleware...)
	queue := newFactQueue(len(facts))
	quota := newStepQuota(n.maxSteps)
	out := make([]ir.Fact, 0, len(facts))

	for _, f := range facts {
		if f.ID == "" {
			f.ID = n.ids.Generate()
		}
		if f.Payload == nil {
			f.Payload = ir.Object{}
		}
		queue.push(chain(f))
	}

	var d dispatcher
	if n.concurrent {
		d = newActorDispatcher(n.registry.occasions())
	} else {
		d = newSequentialDispatcher(n.registry.occasions())
	}
	defer func() {
		if err := d.stop(); err != nil && retErr == nil {
			retErr = fmt.Errorf("stop dispatcher: %w", err)
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("emit %s: %w", n.name, err)
		}

		current, ok := queue.pop()
		if !ok {
			break
		}
		if err := quota.check(n.name); err != nil {
			return nil, err
		}
		out = append(out, current)

		n.logger.Debug("dispatch",
			"nexus", n.name,
			"fact", current.Name,
			"fact_id", current.ID,
			"correlation_id", current.Correlation(),
		)

		err := d.dispatch(current, func(occ *Occasion, derived ir.Fact) {
			next := chain(n.derive(current, derived))
			n.logger.Debug("derived",
				"nexus", n.name,
				"occasion", occ.Name(),
				"fact", next.Name,
				"fact_id", next.ID,
				"causation_id", next.CausationID,
			)
			queue.push(next)
		})
		if err != nil {
			return nil, err
		}
	}

	return out, nil
}

// derive rebuilds a reaction's output as a child of parent.
// Name, payload, id and CreatedAt come from the reaction; an empty id or
// zero CreatedAt is filled from the nexus id generator and clock.
func (n *Nexus) derive(parent, d ir.Fact) ir.Fact {
	child := ir.Fact{
		Name:      d.Name,
		Payload:   d.Payload,
		ID:        d.ID,
		CreatedAt: d.CreatedAt,
	}
	if child.Payload == nil {
		child.Payload = ir.Object{}
	}
	if child.ID == "" {
		child.ID = n.ids.Generate()
	}
	if child.CreatedAt.IsZero() {
		child.CreatedAt = n.clock.Now()
	}
	return child.WithLineage(parent)
}

// Snapshot returns a deep copy of every registered occasion's state,
// keyed by name. Mutating the result never affects the occasions.
func (n *Nexus) Snapshot() map[string]ir.Object {
	n.mu.Lock()
	defer n.mu.Unlock()

	snap := make(map[string]ir.Object, n.registry.len())
	for _, occ := range n.registry.occasions() {
		snap[occ.Name()] = occ.State.Clone()
	}
	return snap
}

// Names returns the registered names in dispatch order.
func (n *Nexus) Names() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.registry.names()
}

// Occasion returns the occasion registered under name.
func (n *Nexus) Occasion(name string) (*Occasion, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.registry.get(name)
}

// Len returns the number of registered occasions.
func (n *Nexus) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.registry.len()
}
