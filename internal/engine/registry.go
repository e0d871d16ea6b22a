package engine

// registry is the explicit ordered list of (name, occasion) entries.
//
// Dispatch order is registration order. Re-adding a name replaces the
// occasion in place: the entry keeps its original position.
type registry struct {
	entries []registryEntry
	index   map[string]int // name -> position in entries
}

type registryEntry struct {
	name     string
	occasion *Occasion
}

func newRegistry() *registry {
	return &registry{index: make(map[string]int)}
}

// put appends a new entry or replaces an existing one in place.
// Reports whether an existing entry was replaced.
func (r *registry) put(occ *Occasion) bool {
	if i, ok := r.index[occ.Name()]; ok {
		r.entries[i].occasion = occ
		return true
	}
	r.index[occ.Name()] = len(r.entries)
	r.entries = append(r.entries, registryEntry{name: occ.Name(), occasion: occ})
	return false
}

// get returns the occasion registered under name.
func (r *registry) get(name string) (*Occasion, bool) {
	i, ok := r.index[name]
	if !ok {
		return nil, false
	}
	return r.entries[i].occasion, true
}

// remove deletes name, keeping the relative order of the others.
func (r *registry) remove(name string) bool {
	i, ok := r.index[name]
	if !ok {
		return false
	}
	r.entries = append(r.entries[:i], r.entries[i+1:]...)
	delete(r.index, name)
	for j := i; j < len(r.entries); j++ {
		r.index[r.entries[j].name] = j
	}
	return true
}

// occasions returns the occasions in registry order.
// The returned slice is a copy.
func (r *registry) occasions() []*Occasion {
	out := make([]*Occasion, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.occasion
	}
	return out
}

// names returns the registered names in registry order.
func (r *registry) names() []string {
	out := make([]string, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.name
	}
	return out
}

func (r *registry) len() int {
	return len(r.entries)
}
