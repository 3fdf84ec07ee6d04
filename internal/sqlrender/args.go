package sqlrender

import (
	"fmt"
	"strings"

	"github.com/roach88/ormsql/internal/ir"
	"github.com/roach88/ormsql/internal/sqlast"
)

// Args returns the bind arguments of the rendered statement, in
// placeholder order, taking parameter values from bindings.
//
// A multi-valued parameter contributes the element at the placeholder's
// value index; an embeddable parameter contributes the member named by the
// component path.
func (r *Rendered) Args(bindings ir.IRObject) ([]any, error) {
	args := make([]any, len(r.Params))
	for i, p := range r.Params {
		if p == nil {
			args[i] = r.Literals[i]
			continue
		}
		v, err := ParameterValue(p, bindings)
		if err != nil {
			return nil, err
		}
		if args[i], err = ir.DriverValue(v); err != nil {
			return nil, fmt.Errorf("parameter :%s: %w", p.Param, err)
		}
	}
	return args, nil
}

// ParameterValue extracts the value one placeholder binds.
func ParameterValue(p *sqlast.JdbcParameter, bindings ir.IRObject) (ir.IRValue, error) {
	v, ok := bindings[p.Param]
	if !ok {
		return nil, fmt.Errorf("parameter :%s is not bound", p.Param)
	}
	if p.ValueIndex >= 0 {
		arr, ok := v.(ir.IRArray)
		if !ok || p.ValueIndex >= len(arr) {
			return nil, fmt.Errorf("parameter :%s has no value %d", p.Param, p.ValueIndex)
		}
		v = arr[p.ValueIndex]
	}
	if p.ComponentPath == "" {
		return v, nil
	}
	for _, name := range strings.Split(p.ComponentPath, ".") {
		if ir.IsNull(v) {
			return ir.IRNull{}, nil
		}
		obj, ok := v.(ir.IRObject)
		if !ok {
			return nil, fmt.Errorf("parameter :%s: %s of a %T", p.Param, name, v)
		}
		if v, ok = obj[name]; !ok {
			v = ir.IRNull{}
		}
	}
	return v, nil
}
