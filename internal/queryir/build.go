package queryir

import (
	"github.com/roach88/ormsql/internal/ir"
	mm "github.com/roach88/ormsql/internal/metamodel"
)

// P parses a path and panics on error. Shorthand for tests and builders.
func P(path string) *Path {
	return MustParsePath(path)
}

// Lit creates an untyped literal from a Go value; its type is inferred
// from context during translation.
func Lit(v any) *Literal {
	val, err := ir.FromAny(v)
	if err != nil {
		panic(err)
	}
	return &Literal{Value: val}
}

// TypedLit creates a literal with an explicit kind.
func TypedLit(v any, kind mm.Kind) *Literal {
	l := Lit(v)
	l.Kind = kind
	return l
}

// Param creates a named parameter reference.
func Param(name string) *Parameter {
	return &Parameter{Name: name}
}

// Eq creates left = right.
func Eq(left, right Expression) *Comparison {
	return &Comparison{Left: left, Op: OpEq, Right: right}
}

// Cmp creates a comparison with any operator.
func Cmp(left Expression, op CompareOp, right Expression) *Comparison {
	return &Comparison{Left: left, Op: op, Right: right}
}

// And conjoins predicates.
func And(preds ...Predicate) *Junction {
	return &Junction{Kind: JunctionAnd, Predicates: preds}
}

// Or disjoins predicates.
func Or(preds ...Predicate) *Junction {
	return &Junction{Kind: JunctionOr, Predicates: preds}
}

// Dur creates an integral duration literal.
func Dur(magnitude int64, unit mm.TemporalUnit) *Duration {
	return &Duration{Magnitude: &Literal{Value: ir.IRInt(magnitude), Kind: mm.KindLong}, Unit: unit}
}

// Root creates an entity root with optional joins.
func Root(entity, alias string, joins ...Join) *EntityRoot {
	return &EntityRoot{FromBase: FromBase{Alias: alias, Joins: joins}, Entity: entity}
}

// Sel creates an unaliased selection list.
func Sel(exprs ...Expression) []Selection {
	out := make([]Selection, len(exprs))
	for i, e := range exprs {
		out[i] = Selection{Expr: e}
	}
	return out
}
