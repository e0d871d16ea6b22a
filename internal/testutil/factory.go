package testutil

import (
	"github.com/roach88/nexus/internal/ir"
)

// NewFactory returns a fact factory with sequential ids (prefix-1,
// prefix-2, ...) and timestamps from clock.
//
// The same scenario run twice with fresh factories produces identical
// closures and identical closure digests.
//
// A nil clock uses a frozen clock at Epoch.
func NewFactory(prefix string, clock *StepClock) *ir.Factory {
	if clock == nil {
		clock = NewStepClock(Epoch, 0)
	}
	return ir.NewFactory(ir.NewSequenceGenerator(prefix), clock.Now)
}
