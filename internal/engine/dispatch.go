package engine

import (
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/nexus/internal/ir"
)

// dispatcher delivers one dequeued fact to every registered occasion and
// hands each derived fact back to the nexus, in registry order and, within
// an occasion, in binding order.
//
// Both implementations run one occasion's forms to completion, then pass its
// derived facts on, then move to the next occasion. Forms therefore see the
// same sequence of calls on shared id generators and clocks in either mode.
type dispatcher interface {
	dispatch(current ir.Fact, derived func(occ *Occasion, d ir.Fact)) error
	stop() error
}

// collect runs occ's forms on current and materialises their output.
func collect(occ *Occasion, current ir.Fact) ([]ir.Fact, error) {
	var facts []ir.Fact
	for d, err := range occ.Handle(current) {
		if err != nil {
			return nil, err
		}
		facts = append(facts, d)
	}
	return facts, nil
}

// sequentialDispatcher runs every occasion in the nexus goroutine.
type sequentialDispatcher struct {
	occasions []*Occasion
}

func newSequentialDispatcher(occasions []*Occasion) *sequentialDispatcher {
	return &sequentialDispatcher{occasions: occasions}
}

func (s *sequentialDispatcher) dispatch(current ir.Fact, derived func(*Occasion, ir.Fact)) error {
	for _, occ := range s.occasions {
		facts, err := collect(occ, current)
		if err != nil {
			return reactionError(occ, current, err)
		}
		for _, d := range facts {
			derived(occ, d)
		}
	}
	return nil
}

func (s *sequentialDispatcher) stop() error { return nil }

// actorDispatcher runs one goroutine per occasion for the lifetime of a
// single emission. Each actor owns its occasion: only that goroutine calls
// Handle, so an occasion's state is confined to it and a panicking form
// cannot unwind the nexus goroutine.
//
// The nexus hands current to the actors one at a time in registry order and
// waits for each answer before handing it on. Output, including ids drawn
// from shared generators, is identical to sequentialDispatcher.
type actorDispatcher struct {
	actors []*actor
	group  errgroup.Group
}

type actor struct {
	occ    *Occasion
	inbox  chan ir.Fact
	outbox chan actorResult
}

type actorResult struct {
	facts []ir.Fact
	err   error
}

func newActorDispatcher(occasions []*Occasion) *actorDispatcher {
	ad := &actorDispatcher{actors: make([]*actor, 0, len(occasions))}
	for _, occ := range occasions {
		a := &actor{
			occ:    occ,
			inbox:  make(chan ir.Fact),
			outbox: make(chan actorResult),
		}
		ad.actors = append(ad.actors, a)
		ad.group.Go(a.run)
	}
	return ad
}

func (ad *actorDispatcher) dispatch(current ir.Fact, derived func(*Occasion, ir.Fact)) error {
	for _, a := range ad.actors {
		a.inbox <- current
		res := <-a.outbox
		if res.err != nil {
			return reactionError(a.occ, current, res.err)
		}
		for _, d := range res.facts {
			derived(a.occ, d)
		}
	}
	return nil
}

// stop closes every inbox and waits for the actors to exit.
func (ad *actorDispatcher) stop() error {
	for _, a := range ad.actors {
		close(a.inbox)
	}
	return ad.group.Wait()
}

func (a *actor) run() error {
	for d := range a.inbox {
		a.outbox <- a.handle(d)
	}
	return nil
}

// handle materialises the occasion's derived list for d.
// A panicking form is reported as an error instead of killing the process
// from a goroutine the caller cannot recover.
func (a *actor) handle(d ir.Fact) (res actorResult) {
	defer func() {
		if r := recover(); r != nil {
			res = actorResult{err: fmt.Errorf("panic: %v", r)}
		}
	}()
	facts, err := collect(a.occ, d)
	return actorResult{facts: facts, err: err}
}

func reactionError(occ *Occasion, current ir.Fact, err error) *ReactionError {
	return &ReactionError{
		Occasion: occ.Name(),
		FactID:   current.ID,
		FactName: current.Name,
		Err:      err,
	}
}
