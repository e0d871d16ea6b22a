package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nexus/internal/ir"
)

func TestEmit_OrdersScenario(t *testing.T) {
	fx := newOrdersFixture(t)

	a := fx.order("A-100", 420)
	b := fx.order("B-200", 640)

	closure := mustEmit(t, fx.nexus, a, b)

	require.Len(t, closure, 4)
	assert.Equal(t, []string{"OrderPlaced", "OrderPlaced", "PaymentAuthorized", "PaymentDeclined"}, factNames(closure))
	assert.Equal(t, ir.String("A-100"), closure[0].Field("order_id"))
	assert.Equal(t, ir.String("B-200"), closure[1].Field("order_id"))
	assert.Equal(t, ir.String("A-100"), closure[2].Field("order_id"))
	assert.Equal(t, ir.Float(420), closure[2].Field("amount"))
	assert.Equal(t, ir.String("B-200"), closure[3].Field("order_id"))
	assert.Equal(t, ir.Float(640), closure[3].Field("amount"))

	snap := fx.nexus.Snapshot()

	wantDecisions := ir.NewObject(
		ir.P("A-100", ir.NewObject(ir.P("amount", ir.Float(420)), ir.P("approved", ir.Bool(true)))),
		ir.P("B-200", ir.NewObject(ir.P("amount", ir.Float(640)), ir.P("approved", ir.Bool(false)))),
	)
	assert.True(t, ir.Equal(wantDecisions, snap["Payments"]["decisions"]), "decisions: %v", ir.Describe(snap["Payments"]["decisions"]))

	wantOrders := ir.NewObject(
		ir.P("A-100", ir.NewObject(ir.P("status", ir.String("ACCEPTED")))),
		ir.P("B-200", ir.NewObject(ir.P("status", ir.String("REJECTED")))),
	)
	assert.True(t, ir.Equal(wantOrders, snap["OrderDecision"]["orders"]), "orders: %v", ir.Describe(snap["OrderDecision"]["orders"]))

	events, ok := snap["Audit"]["events"].(ir.Array)
	require.True(t, ok)
	assert.Len(t, events, 4)
}

func TestEmit_Lineage(t *testing.T) {
	fx := newOrdersFixture(t)

	a := fx.order("A-100", 420)
	b := fx.order("B-200", 640)
	closure := mustEmit(t, fx.nexus, a, b)

	// Initial facts pass through unchanged.
	assert.Empty(t, closure[0].CausationID)
	assert.Empty(t, closure[1].CausationID)

	assert.Equal(t, a.ID, closure[2].CausationID)
	assert.Equal(t, a.ID, closure[2].CorrelationID)
	assert.Equal(t, b.ID, closure[3].CausationID)
	assert.Equal(t, b.ID, closure[3].CorrelationID)
}

func TestEmit_CorrelationInheritedAcrossGenerations(t *testing.T) {
	factory := testFactory()
	step := func(to string) Form {
		return FormFunc(func(*Occasion, ir.Fact) ([]ir.Fact, error) {
			return []ir.Fact{factory.New(to, nil)}, nil
		})
	}

	chain := NewOccasion("Chain", nil).
		On(Named("a"), step("b")).
		On(Named("b"), step("c"))
	n := New("chain", WithLogger(quietLogger())).Add(chain)

	root := factory.New("a", nil, ir.WithCorrelationID("request-7"))
	closure := mustEmit(t, n, root)

	require.Equal(t, []string{"a", "b", "c"}, factNames(closure))
	assert.Equal(t, root.ID, closure[1].CausationID)
	assert.Equal(t, closure[1].ID, closure[2].CausationID)
	for _, f := range closure[1:] {
		assert.Equal(t, "request-7", f.CorrelationID)
	}
}

func TestEmit_BreadthFirst(t *testing.T) {
	factory := testFactory()
	fanout := NewOccasion("Fanout", nil).OnFunc(Named("root"), func(_ *Occasion, d ir.Fact) ([]ir.Fact, error) {
		return []ir.Fact{factory.New("child-1", nil), factory.New("child-2", nil)}, nil
	})
	deeper := NewOccasion("Deeper", nil).OnFunc(Named("child-1", "child-2"), func(_ *Occasion, d ir.Fact) ([]ir.Fact, error) {
		return []ir.Fact{factory.New("grand-"+d.Name, nil)}, nil
	})
	n := New("bfs", WithLogger(quietLogger())).Add(fanout, deeper)

	closure := mustEmit(t, n, factory.New("root", nil), factory.New("root", nil))

	assert.Equal(t, []string{
		"root", "root",
		"child-1", "child-2", "child-1", "child-2",
		"grand-child-1", "grand-child-2", "grand-child-1", "grand-child-2",
	}, factNames(closure))
}

func TestEmit_Deterministic(t *testing.T) {
	run := func() string {
		fx := newOrdersFixture(t)
		closure := mustEmit(t, fx.nexus, fx.order("A-100", 420), fx.order("B-200", 640))
		digest, err := ir.ClosureDigest(closure)
		require.NoError(t, err)
		return digest
	}

	first := run()
	for range 5 {
		assert.Equal(t, first, run())
	}
}

func TestEmit_EntityIsolation(t *testing.T) {
	fx := newOrdersFixture(t)
	mustEmit(t, fx.nexus, fx.order("A-100", 420))

	snap := fx.nexus.Snapshot()
	_, ok := snap["Audit"]["decisions"]
	assert.False(t, ok, "Payments state must not leak into Audit")
	_, ok = snap["OrderDecision"]["decisions"]
	assert.False(t, ok)
	assert.Equal(t, ir.Float(500), snap["Payments"]["limit"])
}

func TestEmit_Empty(t *testing.T) {
	fx := newOrdersFixture(t)
	before := fx.nexus.Snapshot()

	closure := mustEmit(t, fx.nexus)

	assert.NotNil(t, closure)
	assert.Empty(t, closure)
	assert.Equal(t, before, fx.nexus.Snapshot())
}

func TestEmit_NoOccasions(t *testing.T) {
	n := New("empty", WithLogger(quietLogger()))
	f := ir.NewFact("ping", nil)

	closure := mustEmit(t, n, f)

	require.Len(t, closure, 1)
	assert.True(t, closure[0].Same(f))
}

func TestEmit_MiddlewareComposition(t *testing.T) {
	factory := testFactory()
	var trace []string

	tag := func(label string) Middleware {
		return func(d ir.Fact) ir.Fact {
			trace = append(trace, label+":"+d.Name)
			return d.WithPayload("seen", ir.String(label))
		}
	}

	echo := NewOccasion("Echo", nil).OnFunc(Named("ping"), func(_ *Occasion, d ir.Fact) ([]ir.Fact, error) {
		return []ir.Fact{factory.New("pong", nil)}, nil
	})
	n := New("mw", WithLogger(quietLogger())).Add(echo).Use(tag("f")).Use(tag("g"))

	closure := mustEmit(t, n, factory.New("ping", nil))

	require.Len(t, closure, 2)
	// g runs after f, so its annotation wins on both facts.
	for _, f := range closure {
		assert.Equal(t, ir.String("g"), f.Field("seen"))
	}
	assert.Equal(t, []string{"f:ping", "g:ping", "f:pong", "g:pong"}, trace)
}

func TestEmit_MiddlewareSeesLineage(t *testing.T) {
	factory := testFactory()
	var seen []ir.Fact

	echo := NewOccasion("Echo", nil).OnFunc(Named("ping"), func(_ *Occasion, d ir.Fact) ([]ir.Fact, error) {
		return []ir.Fact{factory.New("pong", nil)}, nil
	})
	n := New("mw", WithLogger(quietLogger())).Add(echo).Use(func(d ir.Fact) ir.Fact {
		seen = append(seen, d)
		return d
	})

	root := factory.New("ping", nil)
	mustEmit(t, n, root)

	require.Len(t, seen, 2)
	assert.Equal(t, root.ID, seen[1].CausationID)
}

func TestEmit_MiddlewareDoesNotMutateCallerFact(t *testing.T) {
	n := New("mw", WithLogger(quietLogger())).Use(func(d ir.Fact) ir.Fact {
		return d.WithPayload("added", ir.Bool(true))
	})

	f := ir.NewFact("ping", ir.NewObject(ir.P("k", ir.Int(1))))
	closure := mustEmit(t, n, f)

	assert.Equal(t, ir.Bool(true), closure[0].Field("added"))
	assert.Nil(t, f.Field("added"))
}

func TestEmit_DerivedDefaults(t *testing.T) {
	echo := NewOccasion("Echo", nil).OnFunc(Named("ping"), func(_ *Occasion, d ir.Fact) ([]ir.Fact, error) {
		// No id, no timestamp, no payload.
		return []ir.Fact{{Name: "pong"}}, nil
	})
	n := New("defaults",
		WithLogger(quietLogger()),
		WithIDs(ir.NewFixedGenerator("generated-1")),
		WithClock(ClockFunc(func() time.Time { return fixedNow })),
	).Add(echo)

	closure := mustEmit(t, n, ir.NewFact("ping", nil, ir.WithID("root")))

	require.Len(t, closure, 2)
	pong := closure[1]
	assert.Equal(t, "generated-1", pong.ID)
	assert.Equal(t, fixedNow, pong.CreatedAt)
	assert.NotNil(t, pong.Payload)
	assert.Equal(t, "root", pong.CausationID)
}

func TestEmit_DerivedKeepsReactionTimestamp(t *testing.T) {
	stamped := fixedNow.Add(time.Hour)
	echo := NewOccasion("Echo", nil).OnFunc(Named("ping"), func(_ *Occasion, d ir.Fact) ([]ir.Fact, error) {
		return []ir.Fact{ir.NewFact("pong", nil, ir.WithCreatedAt(stamped))}, nil
	})
	n := New("ts", WithLogger(quietLogger()), WithClock(ClockFunc(func() time.Time { return fixedNow }))).Add(echo)

	closure := mustEmit(t, n, ir.NewFact("ping", nil))

	assert.Equal(t, stamped, closure[1].CreatedAt)
}

func TestEmit_ReactionErrorAborts(t *testing.T) {
	boom := errors.New("boom")
	var audited []string

	failing := NewOccasion("Failing", nil).OnFunc(Named("bad"), func(*Occasion, ir.Fact) ([]ir.Fact, error) {
		return nil, boom
	})
	audit := NewOccasion("Audit", nil).OnFunc(Any(), func(_ *Occasion, d ir.Fact) ([]ir.Fact, error) {
		audited = append(audited, d.Name)
		return nil, nil
	})
	n := New("abort", WithLogger(quietLogger())).Add(failing, audit)

	good := ir.NewFact("good", nil)
	bad := ir.NewFact("bad", nil)
	closure, err := n.Emit(t.Context(), good, bad)

	require.Error(t, err)
	assert.Nil(t, closure)
	assert.ErrorIs(t, err, boom)
	assert.True(t, IsReactionError(err))

	var re *ReactionError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "Failing", re.Occasion)
	assert.Equal(t, bad.ID, re.FactID)
	assert.Equal(t, "bad", re.FactName)

	// Audit runs after Failing in registry order, so it never saw "bad".
	assert.Equal(t, []string{"good"}, audited)
}

func TestEmit_ContextCancelled(t *testing.T) {
	fx := newOrdersFixture(t)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	closure, err := fx.nexus.Emit(ctx, fx.order("A-100", 420))

	require.Error(t, err)
	assert.Nil(t, closure)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEmit_MaxSteps(t *testing.T) {
	factory := testFactory()
	loop := NewOccasion("Loop", nil).OnFunc(Named("tick"), func(_ *Occasion, d ir.Fact) ([]ir.Fact, error) {
		return []ir.Fact{factory.New("tick", nil)}, nil
	})
	n := New("loop", WithLogger(quietLogger()), WithMaxSteps(10)).Add(loop)

	closure, err := n.Emit(t.Context(), factory.New("tick", nil))

	require.Error(t, err)
	assert.Nil(t, closure)
	assert.True(t, IsStepsExceededError(err))

	var se *StepsExceededError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "loop", se.Nexus)
	assert.Equal(t, 11, se.Steps)
	assert.Equal(t, 10, se.Limit)
}

func TestEmit_MaxStepsExactFit(t *testing.T) {
	fx := newOrdersFixture(t, WithMaxSteps(4))

	closure := mustEmit(t, fx.nexus, fx.order("A-100", 420), fx.order("B-200", 640))
	assert.Len(t, closure, 4)
}

func TestAdd_ReAddKeepsPosition(t *testing.T) {
	var order []string
	tracker := func(label string) *Occasion {
		return NewOccasion(label[:1], nil).OnFunc(Any(), func(*Occasion, ir.Fact) ([]ir.Fact, error) {
			order = append(order, label)
			return nil, nil
		})
	}

	n := New("readd", WithLogger(quietLogger())).Add(tracker("a1"), tracker("b1"), tracker("c1"))
	n.Add(tracker("a2"))

	assert.Equal(t, []string{"a", "b", "c"}, n.Names())

	mustEmit(t, n, ir.NewFact("x", nil))
	assert.Equal(t, []string{"a2", "b1", "c1"}, order)
}

func TestAdd_ReplacedOccasionDropsOutOfSnapshot(t *testing.T) {
	old := NewOccasion("A", ir.NewObject(ir.P("v", ir.Int(1))))
	replacement := NewOccasion("A", ir.NewObject(ir.P("v", ir.Int(2))))

	n := New("replace", WithLogger(quietLogger())).Add(old).Add(replacement)

	assert.Equal(t, 1, n.Len())
	assert.Equal(t, ir.Int(2), n.Snapshot()["A"]["v"])
	got, ok := n.Occasion("A")
	require.True(t, ok)
	assert.Same(t, replacement, got)
}

func TestRemove(t *testing.T) {
	n := New("rm", WithLogger(quietLogger())).Add(
		NewOccasion("a", nil), NewOccasion("b", nil), NewOccasion("c", nil),
	)

	assert.True(t, n.Remove("b"))
	assert.False(t, n.Remove("b"))
	assert.Equal(t, []string{"a", "c"}, n.Names())

	n.Add(NewOccasion("b", nil))
	assert.Equal(t, []string{"a", "c", "b"}, n.Names())
}

func TestBind_UnregisteredSubjectIsNoOp(t *testing.T) {
	calls := 0
	ghost := NewOccasion("Ghost", nil)
	n := New("ghost", WithLogger(quietLogger()))

	n.Bind(NewPrehension(ghost, Any(), FormFunc(func(*Occasion, ir.Fact) ([]ir.Fact, error) {
		calls++
		return nil, nil
	})))

	// The binding is installed on the occasion itself.
	assert.Equal(t, 1, ghost.Len())

	closure := mustEmit(t, n, ir.NewFact("x", nil))
	assert.Len(t, closure, 1)
	assert.Zero(t, calls)
	assert.NotContains(t, n.Snapshot(), "Ghost")

	// Registering later activates the binding.
	n.Add(ghost)
	mustEmit(t, n, ir.NewFact("x", nil))
	assert.Equal(t, 1, calls)
}

func TestBind_ShadowedSubjectIsNotRegistered(t *testing.T) {
	registered := NewOccasion("A", nil)
	impostor := NewOccasion("A", nil)
	n := New("shadow", WithLogger(quietLogger())).Add(registered)

	err := n.BindStrict(NewPrehension(impostor, Any(), FormFunc(func(*Occasion, ir.Fact) ([]ir.Fact, error) {
		return nil, nil
	})))

	require.Error(t, err)
	assert.True(t, IsUnregisteredSubjectError(err))
}

func TestBindStrict(t *testing.T) {
	known := NewOccasion("Known", nil)
	ghost := NewOccasion("Ghost", nil)
	n := New("strict", WithLogger(quietLogger())).Add(known)
	noop := FormFunc(func(*Occasion, ir.Fact) ([]ir.Fact, error) { return nil, nil })

	err := n.BindStrict(NewPrehension(known, Any(), noop), NewPrehension(ghost, Any(), noop))

	var ue *UnregisteredSubjectError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "Ghost", ue.Subject)
	assert.Equal(t, "strict", ue.Nexus)
	assert.Zero(t, known.Len(), "nothing installed when any subject is unknown")

	require.NoError(t, n.BindStrict(NewPrehension(known, Any(), noop)))
	assert.Equal(t, 1, known.Len())
}

func TestSnapshot_DeepCopy(t *testing.T) {
	fx := newOrdersFixture(t)
	mustEmit(t, fx.nexus, fx.order("A-100", 420))

	snap := fx.nexus.Snapshot()
	snap["Payments"]["limit"] = ir.Float(0)
	snap["Payments"]["decisions"].(ir.Object)["A-100"] = ir.Null{}
	snap["Audit"]["events"].(ir.Array)[0] = ir.Null{}
	delete(snap, "OrderDecision")

	again := fx.nexus.Snapshot()
	assert.Equal(t, ir.Float(500), again["Payments"]["limit"])
	assert.IsType(t, ir.Object{}, again["Payments"]["decisions"].(ir.Object)["A-100"])
	assert.IsType(t, ir.Object{}, again["Audit"]["events"].(ir.Array)[0])
	assert.Contains(t, again, "OrderDecision")
}

func TestSnapshot_Unchanged_AcrossIdenticalRuns(t *testing.T) {
	snapshot := func() map[string]ir.Object {
		fx := newOrdersFixture(t)
		mustEmit(t, fx.nexus, fx.order("A-100", 420), fx.order("B-200", 640))
		return fx.nexus.Snapshot()
	}

	if diff := cmp.Diff(snapshot(), snapshot()); diff != "" {
		t.Errorf("snapshot mismatch (-first +second):\n%s", diff)
	}
}

func TestEmit_MultipleInputsEcho(t *testing.T) {
	factory := testFactory()
	echo := NewOccasion("Echo", nil).OnFunc(Not(func(d ir.Fact) bool {
		return len(d.Name) > 5 && d.Name[:5] == "echo_"
	}), func(_ *Occasion, d ir.Fact) ([]ir.Fact, error) {
		return []ir.Fact{factory.New("echo_"+d.Name, d.Payload)}, nil
	})
	n := New("echo", WithLogger(quietLogger())).Add(echo)

	in := []ir.Fact{
		factory.New("a", ir.NewObject(ir.P("n", ir.Int(1)))),
		factory.New("b", ir.NewObject(ir.P("n", ir.Int(2)))),
		factory.New("c", ir.NewObject(ir.P("n", ir.Int(3)))),
	}
	closure := mustEmit(t, n, in...)

	assert.Equal(t, []string{"a", "b", "c", "echo_a", "echo_b", "echo_c"}, factNames(closure))
	for i, f := range closure[3:] {
		assert.Equal(t, in[i].ID, f.CausationID)
		assert.Equal(t, in[i].Payload, f.Payload)
	}
}
