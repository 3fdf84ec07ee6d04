package querysql

import (
	"strings"
	"sync"

	"github.com/roach88/ormsql/internal/ir"
	mm "github.com/roach88/ormsql/internal/metamodel"
	"github.com/roach88/ormsql/internal/queryir"
	"github.com/roach88/ormsql/internal/sqlast"
)

// BindRegistry is the translator's view of the bind parameters.
//
// Value returns the value bound to a parameter, when one is known at
// translation time; only multi-valued bindings need it. Resolve returns the
// relational type of a parameter given the type its context infers, which
// may be nil. Register receives the placeholders produced for one
// occurrence of a parameter.
type BindRegistry interface {
	Value(name string) (ir.IRValue, bool)
	Resolve(name string, inferred mm.Type) mm.Type
	Register(name string, group []*sqlast.JdbcParameter)
}

// MemoryRegistry is an in-memory BindRegistry, safe for concurrent use.
type MemoryRegistry struct {
	mu     sync.Mutex
	values map[string]ir.IRValue
	types  map[string]mm.Type
	groups map[string][][]*sqlast.JdbcParameter
}

// NewMemoryRegistry creates an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		values: make(map[string]ir.IRValue),
		types:  make(map[string]mm.Type),
		groups: make(map[string][][]*sqlast.JdbcParameter),
	}
}

// Bind sets the value of a parameter. It returns the registry for chaining.
func (r *MemoryRegistry) Bind(name string, v ir.IRValue) *MemoryRegistry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[name] = v
	return r
}

// BindAll binds every entry of values.
func (r *MemoryRegistry) BindAll(values ir.IRObject) *MemoryRegistry {
	for k, v := range values {
		r.Bind(k, v)
	}
	return r
}

// Values returns a copy of the bound values.
func (r *MemoryRegistry) Values() ir.IRObject {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(ir.IRObject, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

func (r *MemoryRegistry) Value(name string) (ir.IRValue, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.values[name]
	return v, ok
}

// Resolve keeps the first non-nil type a parameter is resolved to. Without
// any inferred type the type of the bound value is used.
func (r *MemoryRegistry) Resolve(name string, inferred mm.Type) mm.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t := r.types[name]; t != nil {
		return t
	}
	if inferred == nil {
		if v, ok := r.values[name]; ok {
			if arr, ok := v.(ir.IRArray); ok && len(arr) > 0 {
				v = arr[0]
			}
			inferred = literalType(v)
		}
	}
	if inferred != nil {
		r.types[name] = inferred
	}
	return inferred
}

func (r *MemoryRegistry) Register(name string, group []*sqlast.JdbcParameter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups[name] = append(r.groups[name], group)
}

// Bindings returns the placeholder groups registered per parameter.
func (r *MemoryRegistry) Bindings() map[string][][]*sqlast.JdbcParameter {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string][][]*sqlast.JdbcParameter, len(r.groups))
	for k, v := range r.groups {
		out[k] = v
	}
	return out
}

// parameter translates one occurrence of a parameter. Inside an IN list a
// multi-valued binding expands to one placeholder per value; the caller
// splices the returned expressions into the list.
func (t *translation) parameter(p *queryir.Parameter, inList bool) []sqlast.Expression {
	typ := t.bindings.Resolve(p.Name, t.infer.Current())
	occurrence := t.occurrences[p.Name]
	t.occurrences[p.Name]++

	values := 1
	multi := false
	if v, ok := t.bindings.Value(p.Name); ok {
		if arr, ok := v.(ir.IRArray); ok {
			if !inList {
				t.fail(ErrCodeUnsupported, "multi-valued parameter :%s outside an IN list", p.Name)
			}
			values, multi = len(arr), true
		}
	}

	var group []*sqlast.JdbcParameter
	var out []sqlast.Expression
	for i := 0; i < values; i++ {
		valueIndex := -1
		if multi {
			valueIndex = i
		}
		expr, params := t.placeholders(p.Name, occurrence, valueIndex, typ)
		group = append(group, params...)
		out = append(out, expr)
	}
	t.bindings.Register(p.Name, group)
	t.paramGroups[p.Name] = append(t.paramGroups[p.Name], group)
	return out
}

// placeholders builds the placeholders of one parameter value: one per
// leaf of an embeddable, one for the identifier of an entity, one
// otherwise.
func (t *translation) placeholders(name string, occurrence, valueIndex int, typ mm.Type) (sqlast.Expression, []*sqlast.JdbcParameter) {
	newParam := func(component int, path string, typ mm.Type) *sqlast.JdbcParameter {
		return &sqlast.JdbcParameter{
			Param: name, Occurrence: occurrence, ValueIndex: valueIndex,
			Component: component, ComponentPath: path, Type: typ,
		}
	}
	if emb, ok := typ.(*mm.Embeddable); ok {
		tuple := &sqlast.Tuple{Type: emb}
		var params []*sqlast.JdbcParameter
		for i, l := range emb.Leaves() {
			jp := newParam(i, strings.Join(l.Path, "."), l.Attribute.Type)
			params = append(params, jp)
			tuple.Elements = append(tuple.Elements, jp)
		}
		return tuple, params
	}
	if e := mm.EntityOf(typ); e != nil {
		jp := newParam(-1, "", e.Identifier().Type)
		return jp, []*sqlast.JdbcParameter{jp}
	}
	jp := newParam(-1, "", typ)
	return jp, []*sqlast.JdbcParameter{jp}
}
