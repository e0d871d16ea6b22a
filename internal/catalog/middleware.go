package catalog

import (
	"errors"

	"github.com/roach88/nexus/internal/engine"
	"github.com/roach88/nexus/internal/ir"
	"github.com/roach88/nexus/internal/middleware"
)

func annotate(params ir.Object) (engine.Middleware, error) {
	key, ok := params.Get("key").(ir.String)
	if !ok || key == "" {
		return nil, errors.New("key is required")
	}
	value, ok := params["value"]
	if !ok {
		return nil, errors.New("value is required")
	}
	return middleware.Annotate(string(key), value), nil
}

func rename(params ir.Object) (engine.Middleware, error) {
	var p struct {
		From string `mapstructure:"from"`
		To   string `mapstructure:"to"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.From == "" || p.To == "" {
		return nil, errors.New("from and to are required")
	}
	return middleware.Rename(p.From, p.To), nil
}

func (r *Registry) tap(ir.Object) (engine.Middleware, error) {
	return middleware.Tap(r.logger), nil
}
