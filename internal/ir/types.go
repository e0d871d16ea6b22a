package ir

// Topology is a compiled, declarative nexus definition.
// Occasions are listed in declaration order, which becomes registry order.
type Topology struct {
	Name       string           `json:"name"`
	Occasions  []OccasionSpec   `json:"occasions"`
	Bindings   []BindingSpec    `json:"bindings"`
	Middleware []MiddlewareSpec `json:"middleware,omitempty"`
}

// OccasionSpec declares one reactive entity and its initial state.
type OccasionSpec struct {
	Name  string `json:"name"`
	State Object `json:"state"`
}

// BindingSpec declares a prehension: which facts the subject selects
// and which catalog form reacts to them.
type BindingSpec struct {
	Subject string       `json:"subject"`
	Select  SelectorSpec `json:"select"`
	Form    string       `json:"form"`
	Params  Object       `json:"params,omitempty"`
}

// SelectorSpec matches facts by name and payload subset.
// Empty Names selects every name; empty Match selects every payload.
type SelectorSpec struct {
	Names []string `json:"names,omitempty"`
	Match Object   `json:"match,omitempty"`
}

// MiddlewareSpec declares one middleware transform from the catalog.
type MiddlewareSpec struct {
	Kind   string `json:"kind"`
	Params Object `json:"params,omitempty"`
}

// Occasion returns the spec with the given name.
func (t *Topology) Occasion(name string) (OccasionSpec, bool) {
	for _, o := range t.Occasions {
		if o.Name == name {
			return o, true
		}
	}
	return OccasionSpec{}, false
}
