package engine

// Prehension is one directed way a subject occasion takes up facts:
// a selector naming which facts are relevant and a form saying how
// the subject reacts. Immutable once constructed.
type Prehension struct {
	subject  *Occasion
	selector Selector
	form     Form
}

// NewPrehension creates a prehension. A nil selector selects every fact.
func NewPrehension(subject *Occasion, selector Selector, form Form) Prehension {
	if selector == nil {
		selector = Any()
	}
	return Prehension{subject: subject, selector: selector, form: form}
}

// Subject returns the occasion the prehension installs onto.
func (p Prehension) Subject() *Occasion { return p.subject }

// Selector returns the fact predicate.
func (p Prehension) Selector() Selector { return p.selector }

// Form returns the reaction.
func (p Prehension) Form() Form { return p.form }
