package catalog

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/roach88/nexus/internal/engine"
	"github.com/roach88/nexus/internal/ir"
)

// decodeParams decodes binding params, leaving defaults in place for
// absent keys.
func decodeParams(params ir.Object, out any) error {
	if len(params) == 0 {
		return nil
	}
	if err := ir.Decode(params, out); err != nil {
		return fmt.Errorf("params: %w", err)
	}
	return nil
}

// numeric reads an Int or Float value as float64.
func numeric(v ir.Value) (float64, bool) {
	switch n := v.(type) {
	case ir.Int:
		return float64(n), true
	case ir.Float:
		return float64(n), true
	default:
		return 0, false
	}
}

type authorizeParams struct {
	Authorized string `mapstructure:"authorized"`
	Declined   string `mapstructure:"declined"`
	LimitKey   string `mapstructure:"limit_key"`
}

type orderPlaced struct {
	OrderID string  `mapstructure:"order_id"`
	Total   float64 `mapstructure:"total"`
}

// authorize approves an order when its total is within the occasion's
// limit, records the decision and emits the outcome.
//
// State: {limit: number, decisions: {order_id: {amount, approved}}}
func (r *Registry) authorize(params ir.Object) (engine.Form, error) {
	p := authorizeParams{
		Authorized: "PaymentAuthorized",
		Declined:   "PaymentDeclined",
		LimitKey:   "limit",
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	return engine.FormFunc(func(occ *engine.Occasion, d ir.Fact) ([]ir.Fact, error) {
		var order orderPlaced
		if err := ir.Decode(d.Payload, &order); err != nil {
			return nil, err
		}
		if order.OrderID == "" {
			return nil, errors.New("order_id is required")
		}
		limit, ok := numeric(occ.State[p.LimitKey])
		if !ok {
			return nil, fmt.Errorf("state %q is not a number", p.LimitKey)
		}

		approved := order.Total <= limit
		amount := ir.Float(order.Total)
		occ.State.Object("decisions")[order.OrderID] = ir.NewObject(
			ir.P("amount", amount),
			ir.P("approved", ir.Bool(approved)),
		)

		name := p.Declined
		if approved {
			name = p.Authorized
		}
		return []ir.Fact{r.factory.New(name, ir.NewObject(
			ir.P("order_id", ir.String(order.OrderID)),
			ir.P("amount", amount),
		))}, nil
	}), nil
}

type decideParams struct {
	Accept string `mapstructure:"accept"`
}

// decide records ACCEPTED for the accept fact name and REJECTED otherwise.
//
// State: {orders: {order_id: {status}}}
func decide(params ir.Object) (engine.Form, error) {
	p := decideParams{Accept: "PaymentAuthorized"}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	return engine.FormFunc(func(occ *engine.Occasion, d ir.Fact) ([]ir.Fact, error) {
		orderID, ok := d.Field("order_id").(ir.String)
		if !ok {
			return nil, errors.New("order_id is required")
		}
		status := "REJECTED"
		if d.Name == p.Accept {
			status = "ACCEPTED"
		}
		occ.State.Object("orders")[string(orderID)] = ir.NewObject(ir.P("status", ir.String(status)))
		return nil, nil
	}), nil
}

type recordParams struct {
	Key string `mapstructure:"key"`
}

// record appends {name, payload} for every fact it sees.
func record(params ir.Object) (engine.Form, error) {
	p := recordParams{Key: "events"}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	return engine.FormFunc(func(occ *engine.Occasion, d ir.Fact) ([]ir.Fact, error) {
		events, _ := occ.State[p.Key].(ir.Array)
		occ.State[p.Key] = append(events, ir.NewObject(
			ir.P("name", ir.String(d.Name)),
			ir.P("payload", d.Payload.Clone()),
		))
		return nil, nil
	}), nil
}

type adjustParams struct {
	Delta int64  `mapstructure:"delta"`
	Emit  string `mapstructure:"emit"`
}

// adjust adds delta * payload.amount (amount defaults to 1) to state.value
// and emits counter_incremented or counter_decremented.
func (r *Registry) adjust(params ir.Object) (engine.Form, error) {
	p := adjustParams{Delta: 1}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Delta == 0 {
		return nil, errors.New("delta must not be zero")
	}
	if p.Emit == "" {
		p.Emit = "counter_incremented"
		if p.Delta < 0 {
			p.Emit = "counter_decremented"
		}
	}

	return engine.FormFunc(func(occ *engine.Occasion, d ir.Fact) ([]ir.Fact, error) {
		amount, err := counterAmount(d.Field("amount"))
		if err != nil {
			return nil, err
		}
		value, _ := occ.State["value"].(ir.Int)
		value += ir.Int(p.Delta) * amount
		occ.State["value"] = value

		return []ir.Fact{r.factory.New(p.Emit, ir.NewObject(
			ir.P("amount", amount),
			ir.P("new_value", value),
		))}, nil
	}), nil
}

// counterAmount reads payload.amount as a whole number. A missing or
// null amount counts as 1.
func counterAmount(v ir.Value) (ir.Int, error) {
	switch v.(type) {
	case nil, ir.Null:
		return 1, nil
	}
	f, ok := numeric(v)
	if !ok {
		return 0, fmt.Errorf("amount must be a number, got %s", ir.Describe(v))
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("amount must be a whole number, got %v", f)
	}
	return ir.Int(f), nil
}

// project appends {event, value} for every counter change it sees.
func project(params ir.Object) (engine.Form, error) {
	p := recordParams{Key: "history"}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	return engine.FormFunc(func(occ *engine.Occasion, d ir.Fact) ([]ir.Fact, error) {
		history, _ := occ.State[p.Key].(ir.Array)
		occ.State[p.Key] = append(history, ir.NewObject(
			ir.P("event", ir.String(d.Name)),
			ir.P("value", ir.CloneValue(d.Field("new_value"))),
		))
		return nil, nil
	}), nil
}

type sagaParams struct {
	Status string `mapstructure:"status"`
	Emit   string `mapstructure:"emit"`
	Start  bool   `mapstructure:"start"`
}

// sagaStep moves orders[order_id].status forward and emits the next step.
// Only a start step creates an order; later steps ignore unknown orders.
func (r *Registry) sagaStep(params ir.Object) (engine.Form, error) {
	var p sagaParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Status == "" {
		return nil, errors.New("status is required")
	}

	return engine.FormFunc(func(occ *engine.Occasion, d ir.Fact) ([]ir.Fact, error) {
		orderID, ok := d.Field("order_id").(ir.String)
		if !ok {
			return nil, errors.New("order_id is required")
		}
		orders := occ.State.Object("orders")
		if _, known := orders[string(orderID)]; !known && !p.Start {
			return nil, nil
		}
		orders[string(orderID)] = ir.NewObject(ir.P("status", ir.String(p.Status)))

		if p.Emit == "" {
			return nil, nil
		}
		return []ir.Fact{r.factory.New(p.Emit, ir.NewObject(ir.P("order_id", orderID)))}, nil
	}), nil
}

type echoParams struct {
	Prefix string `mapstructure:"prefix"`
}

// echo re-emits each fact as prefix+name with the same payload.
// Facts already carrying the prefix are not echoed again.
func (r *Registry) echo(params ir.Object) (engine.Form, error) {
	p := echoParams{Prefix: "echo_"}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Prefix == "" {
		return nil, errors.New("prefix must not be empty")
	}

	return engine.FormFunc(func(_ *engine.Occasion, d ir.Fact) ([]ir.Fact, error) {
		if strings.HasPrefix(d.Name, p.Prefix) {
			return nil, nil
		}
		return []ir.Fact{r.factory.New(p.Prefix+d.Name, d.Payload)}, nil
	}), nil
}
