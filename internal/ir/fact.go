package ir

import (
	"time"
)

// Fact is an immutable record of something that has happened.
//
// Facts are values: every helper returns a new Fact and leaves the receiver
// untouched. Payload maps are deep-copied on construction; callers must treat
// a fact's Payload as read-only.
//
// CorrelationID and CausationID are empty when absent.
type Fact struct {
	Name          string    `json:"name"`
	Payload       Object    `json:"payload"`
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	CausationID   string    `json:"causation_id,omitempty"`
}

// FactOption customizes NewFact.
type FactOption func(*Fact)

// WithID sets an explicit fact id instead of a generated one.
func WithID(id string) FactOption {
	return func(f *Fact) { f.ID = id }
}

// WithCreatedAt sets the creation timestamp.
func WithCreatedAt(t time.Time) FactOption {
	return func(f *Fact) { f.CreatedAt = t }
}

// WithCorrelationID sets the correlation identity.
func WithCorrelationID(id string) FactOption {
	return func(f *Fact) { f.CorrelationID = id }
}

// WithCausationID sets the causation identity.
func WithCausationID(id string) FactOption {
	return func(f *Fact) { f.CausationID = id }
}

// defaultFactory backs NewFact: random UUIDv4 ids and UTC wall time.
var defaultFactory = NewFactory(UUIDGenerator{}, nil)

// NewFact constructs a fact. The id defaults to a fresh random UUID and
// CreatedAt to the current UTC time. Construction never fails.
func NewFact(name string, payload Object, opts ...FactOption) Fact {
	return defaultFactory.New(name, payload, opts...)
}

// Factory creates facts with a pluggable id source and clock,
// so tests and scenarios can fix both.
type Factory struct {
	ids IDGenerator
	now func() time.Time
}

// NewFactory creates a Factory. A nil now uses time.Now in UTC.
func NewFactory(ids IDGenerator, now func() time.Time) *Factory {
	if ids == nil {
		ids = UUIDGenerator{}
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Factory{ids: ids, now: now}
}

// New constructs a fact using the factory's id source and clock.
// Options run after defaults, so WithID overrides the generated id.
func (fc *Factory) New(name string, payload Object, opts ...FactOption) Fact {
	f := Fact{
		Name:    name,
		Payload: payload.Clone(),
	}
	if f.Payload == nil {
		f.Payload = Object{}
	}
	for _, opt := range opts {
		opt(&f)
	}
	if f.ID == "" {
		f.ID = fc.ids.Generate()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = fc.now()
	}
	return f
}

// Correlation returns the correlation identity descendants of this fact
// inherit: its own CorrelationID, or its ID when it has none.
func (f Fact) Correlation() string {
	if f.CorrelationID != "" {
		return f.CorrelationID
	}
	return f.ID
}

// IsInitial reports whether the fact has no recorded cause.
func (f Fact) IsInitial() bool {
	return f.CausationID == ""
}

// Same reports identity equality. Facts with equal fields but
// different ids are distinct.
func (f Fact) Same(other Fact) bool {
	return f.ID == other.ID
}

// WithLineage returns a copy caused by parent:
// CausationID = parent.ID, CorrelationID = parent.Correlation().
func (f Fact) WithLineage(parent Fact) Fact {
	f.CausationID = parent.ID
	f.CorrelationID = parent.Correlation()
	return f
}

// WithPayload returns a copy with key set to v. The receiver's payload
// is not modified.
func (f Fact) WithPayload(key string, v Value) Fact {
	payload := f.Payload.Clone()
	if payload == nil {
		payload = Object{}
	}
	payload[key] = v
	f.Payload = payload
	return f
}

// WithName returns a copy with a different name.
func (f Fact) WithName(name string) Fact {
	f.Name = name
	return f
}

// Field returns the payload value at key, or nil.
func (f Fact) Field(key string) Value {
	return f.Payload.Get(key)
}
