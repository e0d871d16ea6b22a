package engine

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/nexus/internal/ir"
)

var fixedNow = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// quietLogger discards all output.
func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testFactory yields fact-1, fact-2, ... at fixedNow.
func testFactory() *ir.Factory {
	return ir.NewFactory(ir.NewSequenceGenerator("fact"), func() time.Time { return fixedNow })
}

// ordersFixture is the Payments / OrderDecision / Audit topology.
type ordersFixture struct {
	factory  *ir.Factory
	nexus    *Nexus
	payments *Occasion
	decision *Occasion
	audit    *Occasion
}

func newOrdersFixture(t *testing.T, opts ...Option) *ordersFixture {
	t.Helper()

	fx := &ordersFixture{factory: testFactory()}

	fx.payments = NewOccasion("Payments", ir.NewObject(ir.P("limit", ir.Float(500))))
	fx.decision = NewOccasion("OrderDecision", nil)
	fx.audit = NewOccasion("Audit", ir.NewObject(ir.P("events", ir.Array{})))

	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	fx.nexus = New("orders", opts...).Add(fx.payments, fx.decision, fx.audit)

	fx.nexus.Bind(
		NewPrehension(fx.payments, Named("OrderPlaced"), FormFunc(fx.authorize)),
		NewPrehension(fx.decision, Named("PaymentAuthorized", "PaymentDeclined"), FormFunc(decide)),
		NewPrehension(fx.audit, Any(), FormFunc(record)),
	)
	return fx
}

func (fx *ordersFixture) authorize(occ *Occasion, d ir.Fact) ([]ir.Fact, error) {
	orderID, ok := d.Field("order_id").(ir.String)
	if !ok {
		return nil, errors.New("order_id missing")
	}
	total, ok := d.Field("total").(ir.Float)
	if !ok {
		return nil, errors.New("total missing")
	}
	limit := occ.State["limit"].(ir.Float)
	approved := total <= limit

	occ.State.Object("decisions")[string(orderID)] = ir.NewObject(
		ir.P("amount", total),
		ir.P("approved", ir.Bool(approved)),
	)

	name := "PaymentDeclined"
	if approved {
		name = "PaymentAuthorized"
	}
	return []ir.Fact{fx.factory.New(name, ir.NewObject(
		ir.P("order_id", orderID),
		ir.P("amount", total),
	))}, nil
}

func decide(occ *Occasion, d ir.Fact) ([]ir.Fact, error) {
	status := "REJECTED"
	if d.Name == "PaymentAuthorized" {
		status = "ACCEPTED"
	}
	orderID := string(d.Field("order_id").(ir.String))
	occ.State.Object("orders")[orderID] = ir.NewObject(ir.P("status", ir.String(status)))
	return nil, nil
}

func record(occ *Occasion, d ir.Fact) ([]ir.Fact, error) {
	events, _ := occ.State["events"].(ir.Array)
	occ.State["events"] = append(events, ir.NewObject(
		ir.P("name", ir.String(d.Name)),
		ir.P("payload", d.Payload.Clone()),
	))
	return nil, nil
}

func (fx *ordersFixture) order(id string, total float64) ir.Fact {
	return fx.factory.New("OrderPlaced", ir.NewObject(
		ir.P("order_id", ir.String(id)),
		ir.P("total", ir.Float(total)),
	))
}

func factNames(facts []ir.Fact) []string {
	names := make([]string, len(facts))
	for i, f := range facts {
		names[i] = f.Name
	}
	return names
}

func factIDs(facts []ir.Fact) []string {
	ids := make([]string, len(facts))
	for i, f := range facts {
		ids[i] = f.ID
	}
	return ids
}

func mustEmit(t *testing.T, n *Nexus, facts ...ir.Fact) []ir.Fact {
	t.Helper()
	out, err := n.Emit(t.Context(), facts...)
	require.NoError(t, err)
	return out
}
