package engine

import "github.com/roach88/nexus/internal/ir"

// factQueue is the FIFO work queue of one emission.
//
// The queue is unbounded so cascading reactions can enqueue arbitrarily many
// derived facts. It is owned by the goroutine running Emit and needs no
// locking.
type factQueue struct {
	facts []ir.Fact
}

// newFactQueue creates an empty queue sized for the initial batch.
func newFactQueue(capacity int) *factQueue {
	return &factQueue{facts: make([]ir.Fact, 0, max(capacity, 16))}
}

// push adds a fact to the back of the queue.
func (q *factQueue) push(f ir.Fact) {
	q.facts = append(q.facts, f)
}

// pop removes and returns the front fact.
// Returns (ir.Fact{}, false) when the queue is empty.
func (q *factQueue) pop() (ir.Fact, bool) {
	if len(q.facts) == 0 {
		return ir.Fact{}, false
	}

	f := q.facts[0]

	// Clear the slot so the backing array does not pin the payload.
	q.facts[0] = ir.Fact{}

	if len(q.facts) == 1 {
		q.facts = q.facts[:0]
	} else {
		q.facts = q.facts[1:]
	}

	return f, true
}

// len returns the number of queued facts.
func (q *factQueue) len() int {
	return len(q.facts)
}
