package catalog

import (
	"bytes"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nexus/internal/engine"
	"github.com/roach88/nexus/internal/ir"
	"github.com/roach88/nexus/internal/lineage"
	"github.com/roach88/nexus/internal/testutil"
)

func quiet() engine.Option {
	return engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func ordersTopology() *ir.Topology {
	return &ir.Topology{
		Name: "orders",
		Occasions: []ir.OccasionSpec{
			{Name: "Payments", State: ir.NewObject(ir.P("limit", ir.Float(500)))},
			{Name: "OrderDecision", State: ir.NewObject(ir.P("orders", ir.Object{}))},
			{Name: "Audit", State: ir.NewObject(ir.P("events", ir.Array{}))},
		},
		Bindings: []ir.BindingSpec{
			{Subject: "Payments", Select: ir.SelectorSpec{Names: []string{"OrderPlaced"}}, Form: "orders.authorize"},
			{Subject: "OrderDecision", Select: ir.SelectorSpec{Names: []string{"PaymentAuthorized", "PaymentDeclined"}}, Form: "orders.decide"},
			{Subject: "Audit", Form: "audit.record"},
		},
	}
}

func order(f *ir.Factory, id string, total float64) ir.Fact {
	return f.New("OrderPlaced", ir.NewObject(ir.P("order_id", ir.String(id)), ir.P("total", ir.Float(total))))
}

func names(facts []ir.Fact) []string {
	out := make([]string, len(facts))
	for i, f := range facts {
		out[i] = f.Name
	}
	return out
}

func TestDefault_Registered(t *testing.T) {
	r := Default(nil)

	assert.Equal(t, []string{
		"audit.record", "counter.adjust", "counter.project", "echo",
		"orders.authorize", "orders.decide", "saga.step",
	}, r.Forms())
	assert.Equal(t, []string{"annotate", "rename", "tap"}, r.MiddlewareKinds())
	assert.True(t, r.HasForm("echo"))
	assert.False(t, r.HasForm("nope"))
	assert.True(t, r.HasMiddleware("tap"))
	assert.False(t, r.HasMiddleware("nope"))
}

func TestBuild_OrdersScenario(t *testing.T) {
	factory := testutil.NewFactory("fact", nil)
	n, err := Build(ordersTopology(), Default(factory), quiet())
	require.NoError(t, err)

	assert.Equal(t, []string{"Payments", "OrderDecision", "Audit"}, n.Names())

	closure, err := n.Emit(t.Context(), order(factory, "A-100", 420), order(factory, "B-200", 640))
	require.NoError(t, err)

	assert.Equal(t, []string{"OrderPlaced", "OrderPlaced", "PaymentAuthorized", "PaymentDeclined"}, names(closure))
	assert.Equal(t, ir.Float(420), closure[2].Field("amount"))
	assert.Equal(t, ir.Float(640), closure[3].Field("amount"))
	require.NoError(t, lineage.Verify(closure))

	snap := n.Snapshot()
	assert.Equal(t, ir.NewObject(
		ir.P("A-100", ir.NewObject(ir.P("amount", ir.Float(420)), ir.P("approved", ir.Bool(true)))),
		ir.P("B-200", ir.NewObject(ir.P("amount", ir.Float(640)), ir.P("approved", ir.Bool(false)))),
	), snap["Payments"]["decisions"])
	assert.Equal(t, ir.NewObject(
		ir.P("A-100", ir.NewObject(ir.P("status", ir.String("ACCEPTED")))),
		ir.P("B-200", ir.NewObject(ir.P("status", ir.String("REJECTED")))),
	), snap["OrderDecision"]["orders"])
	assert.Len(t, snap["Audit"]["events"], 4)
}

func TestBuild_DoesNotShareTopologyState(t *testing.T) {
	topo := ordersTopology()
	factory := testutil.NewFactory("fact", nil)

	n, err := Build(topo, Default(factory), quiet())
	require.NoError(t, err)
	_, err = n.Emit(t.Context(), order(factory, "A-100", 420))
	require.NoError(t, err)

	assert.Empty(t, topo.Occasions[2].State["events"])
	assert.NotContains(t, topo.Occasions[0].State, "decisions")
}

func TestBuild_LimitAsInt(t *testing.T) {
	topo := ordersTopology()
	topo.Occasions[0].State["limit"] = ir.Int(500)
	factory := testutil.NewFactory("fact", nil)

	n, err := Build(topo, Default(factory), quiet())
	require.NoError(t, err)

	closure, err := n.Emit(t.Context(), order(factory, "A-100", 500))
	require.NoError(t, err)
	assert.Equal(t, "PaymentAuthorized", closure[1].Name)
}

func TestBuild_UnknownSubjectIsNoOp(t *testing.T) {
	topo := ordersTopology()
	topo.Bindings = append(topo.Bindings, ir.BindingSpec{Subject: "Ghost", Form: "echo"})
	factory := testutil.NewFactory("fact", nil)

	n, err := Build(topo, Default(factory), quiet())
	require.NoError(t, err)

	closure, err := n.Emit(t.Context(), order(factory, "A-100", 420))
	require.NoError(t, err)
	assert.Len(t, closure, 2)
	assert.NotContains(t, n.Names(), "Ghost")
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ir.Topology)
		want   string
	}{
		{
			name:   "unknown form",
			mutate: func(t *ir.Topology) { t.Bindings[0].Form = "nope" },
			want:   `unknown form "nope"`,
		},
		{
			name:   "unknown middleware",
			mutate: func(t *ir.Topology) { t.Middleware = []ir.MiddlewareSpec{{Kind: "nope"}} },
			want:   `unknown middleware "nope"`,
		},
		{
			name: "bad middleware params",
			mutate: func(t *ir.Topology) {
				t.Middleware = []ir.MiddlewareSpec{{Kind: "annotate", Params: ir.NewObject(ir.P("value", ir.Int(1)))}}
			},
			want: "key is required",
		},
		{
			name: "bad form params",
			mutate: func(t *ir.Topology) {
				t.Bindings[0].Params = ir.NewObject(ir.P("authorized", ir.NewArray(ir.Int(1))))
			},
			want: "params",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			topo := ordersTopology()
			tt.mutate(topo)

			_, err := Build(topo, Default(nil), quiet())

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestBuild_Middleware(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	topo := ordersTopology()
	topo.Middleware = []ir.MiddlewareSpec{
		{Kind: "rename", Params: ir.NewObject(ir.P("from", ir.String("legacy.OrderPlaced")), ir.P("to", ir.String("OrderPlaced")))},
		{Kind: "annotate", Params: ir.NewObject(ir.P("key", ir.String("source")), ir.P("value", ir.String("cli")))},
		{Kind: "tap"},
	}
	factory := testutil.NewFactory("fact", nil)

	n, err := Build(topo, Default(factory, WithLogger(logger)), quiet())
	require.NoError(t, err)

	legacy := factory.New("legacy.OrderPlaced", ir.NewObject(ir.P("order_id", ir.String("A-100")), ir.P("total", ir.Float(1))))
	closure, err := n.Emit(t.Context(), legacy)
	require.NoError(t, err)

	assert.Equal(t, []string{"OrderPlaced", "PaymentAuthorized"}, names(closure))
	for _, f := range closure {
		assert.Equal(t, ir.String("cli"), f.Field("source"))
	}
	assert.Contains(t, buf.String(), "fact=PaymentAuthorized")
}

func TestBuild_Counter(t *testing.T) {
	topo := &ir.Topology{
		Name: "counter_system",
		Occasions: []ir.OccasionSpec{
			{Name: "counter", State: ir.NewObject(ir.P("value", ir.Int(0)))},
			{Name: "counter_projection", State: ir.NewObject(ir.P("history", ir.Array{}))},
		},
		Bindings: []ir.BindingSpec{
			{Subject: "counter", Select: ir.SelectorSpec{Names: []string{"increment"}}, Form: "counter.adjust"},
			{Subject: "counter", Select: ir.SelectorSpec{Names: []string{"decrement"}}, Form: "counter.adjust",
				Params: ir.NewObject(ir.P("delta", ir.Int(-1)))},
			{Subject: "counter_projection", Select: ir.SelectorSpec{Names: []string{"counter_incremented", "counter_decremented"}}, Form: "counter.project"},
		},
	}
	factory := testutil.NewFactory("fact", nil)
	n, err := Build(topo, Default(factory), quiet())
	require.NoError(t, err)

	amount := func(name string, a int64) ir.Fact {
		return factory.New(name, ir.NewObject(ir.P("amount", ir.Int(a))))
	}
	closure, err := n.Emit(t.Context(), amount("increment", 5), amount("increment", 3), amount("decrement", 2))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"increment", "increment", "decrement",
		"counter_incremented", "counter_incremented", "counter_decremented",
	}, names(closure))

	snap := n.Snapshot()
	assert.Equal(t, ir.Int(6), snap["counter"]["value"])
	history := snap["counter_projection"]["history"].(ir.Array)
	require.Len(t, history, 3)
	assert.Equal(t, ir.Int(6), history[2].(ir.Object)["value"])
}

func TestBuild_Saga(t *testing.T) {
	step := func(on, status, emit string, start bool) ir.BindingSpec {
		return ir.BindingSpec{
			Subject: "order_saga",
			Select:  ir.SelectorSpec{Names: []string{on}},
			Form:    "saga.step",
			Params: ir.NewObject(
				ir.P("status", ir.String(status)),
				ir.P("emit", ir.String(emit)),
				ir.P("start", ir.Bool(start)),
			),
		}
	}
	topo := &ir.Topology{
		Name:      "order_saga",
		Occasions: []ir.OccasionSpec{{Name: "order_saga"}},
		Bindings: []ir.BindingSpec{
			step("order_created", "payment_pending", "payment_requested", true),
			step("payment_succeeded", "inventory_pending", "inventory_reserved", false),
			step("inventory_reserved", "completed", "order_completed", false),
		},
	}
	factory := testutil.NewFactory("fact", nil)
	n, err := Build(topo, Default(factory), quiet())
	require.NoError(t, err)

	orderID := ir.NewObject(ir.P("order_id", ir.String("order-123")))
	closure, err := n.Emit(t.Context(),
		factory.New("order_created", orderID),
		factory.New("payment_succeeded", orderID),
		factory.New("payment_succeeded", ir.NewObject(ir.P("order_id", ir.String("unknown")))),
	)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"order_created", "payment_succeeded", "payment_succeeded",
		"payment_requested", "inventory_reserved", "order_completed",
	}, names(closure))

	orders := n.Snapshot()["order_saga"]["orders"].(ir.Object)
	assert.Equal(t, ir.String("completed"), orders["order-123"].(ir.Object)["status"])
	assert.NotContains(t, orders, "unknown")
}

func TestBuild_EchoMultipleInputs(t *testing.T) {
	topo := &ir.Topology{
		Name:      "echo",
		Occasions: []ir.OccasionSpec{{Name: "Echo"}},
		Bindings:  []ir.BindingSpec{{Subject: "Echo", Form: "echo"}},
	}
	factory := testutil.NewFactory("fact", nil)
	n, err := Build(topo, Default(factory), quiet())
	require.NoError(t, err)

	closure, err := n.Emit(t.Context(),
		factory.New("a", ir.NewObject(ir.P("n", ir.Int(1)))),
		factory.New("b", ir.NewObject(ir.P("n", ir.Int(2)))),
	)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "echo_a", "echo_b"}, names(closure))
	assert.Equal(t, ir.Int(2), closure[3].Field("n"))
}

func TestAuthorize_MissingFields(t *testing.T) {
	factory := testutil.NewFactory("fact", nil)
	n, err := Build(ordersTopology(), Default(factory), quiet())
	require.NoError(t, err)

	_, err = n.Emit(t.Context(), factory.New("OrderPlaced", ir.NewObject(ir.P("total", ir.Float(1)))))

	require.Error(t, err)
	assert.True(t, engine.IsReactionError(err))
	assert.Contains(t, err.Error(), "order_id is required")
}

func TestSelector(t *testing.T) {
	placed := ir.NewFact("OrderPlaced", ir.NewObject(ir.P("region", ir.String("eu"))))
	shipped := ir.NewFact("OrderShipped", ir.NewObject(ir.P("region", ir.String("eu"))))

	assert.True(t, Selector(ir.SelectorSpec{})(placed))

	byName := Selector(ir.SelectorSpec{Names: []string{"OrderPlaced"}})
	assert.True(t, byName(placed))
	assert.False(t, byName(shipped))

	both := Selector(ir.SelectorSpec{
		Names: []string{"OrderPlaced"},
		Match: ir.NewObject(ir.P("region", ir.String("us"))),
	})
	assert.False(t, both(placed))

	match := Selector(ir.SelectorSpec{Match: ir.NewObject(ir.P("region", ir.String("eu")))})
	assert.True(t, match(shipped))
}

func TestAdjust_ZeroDelta(t *testing.T) {
	_, err := Default(nil).Form("counter.adjust", ir.NewObject(ir.P("delta", ir.Int(0))))
	assert.ErrorContains(t, err, "delta")
}

func TestAdjust_Amount(t *testing.T) {
	form, err := Default(testutil.NewFactory("fact", nil)).Form("counter.adjust", ir.NewObject(ir.P("delta", ir.Int(-1))))
	require.NoError(t, err)

	tests := []struct {
		name    string
		amount  ir.Value
		want    ir.Int
		wantErr string
	}{
		{"missing", nil, -1, ""},
		{"int", ir.Int(3), -3, ""},
		{"whole float", ir.Float(2), -2, ""},
		{"fractional float", ir.Float(2.5), 0, "whole number"},
		{"string", ir.String("2"), 0, "must be a number"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			occ := engine.NewOccasion("counter", ir.NewObject(ir.P("value", ir.Int(0))))
			payload := ir.Object{}
			if tt.amount != nil {
				payload["amount"] = tt.amount
			}

			out, err := form.React(occ, ir.NewFact("decrement", payload))
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				assert.Equal(t, ir.Int(0), occ.State["value"])
				return
			}
			require.NoError(t, err)
			require.Len(t, out, 1)
			assert.Equal(t, tt.want, occ.State["value"])
			assert.Equal(t, "counter_decremented", out[0].Name)
			assert.Equal(t, -tt.want, out[0].Field("amount"))
		})
	}
}
