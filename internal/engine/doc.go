// Package engine implements the nexus fact router.
//
// An Occasion is a named entity with private state and an ordered list of
// bindings (selector + form). A Prehension installs a binding onto an
// occasion from outside. A Nexus holds an ordered registry of occasions and
// a middleware chain, and routes facts between them.
//
// Emit processing:
//  1. Each initial fact runs through the middleware chain and is queued
//  2. The front fact is dequeued and appended to the closure
//  3. Every registered occasion, in registration order, handles it
//  4. Each derived fact gets lineage from the fact that caused it, runs
//     through the middleware chain and is queued at the back
//  5. Emit returns when the queue is empty
//
// Ordering is breadth-first and fully deterministic given deterministic
// forms and ids. Dispatch may run each occasion in its own goroutine
// (WithConcurrentDispatch) without changing the closure.
//
// Nothing here bounds a closure: reaction graphs that keep producing facts
// never return unless WithMaxSteps is set.
package engine
