package querysql

import (
	"fmt"

	mm "github.com/roach88/ormsql/internal/metamodel"
	"github.com/roach88/ormsql/internal/queryir"
	"github.com/roach88/ormsql/internal/sqlast"
)

// predicate translates a boolean condition.
func (t *translation) predicate(p queryir.Predicate) sqlast.Predicate {
	switch n := p.(type) {
	case *queryir.Comparison:
		return t.comparison(n)
	case *queryir.Junction:
		if n.Kind == queryir.JunctionOr {
			return t.disjunction(n)
		}
		var out []sqlast.Predicate
		for i, sub := range n.Predicates {
			t.at(fmt.Sprintf("and[%d]", i), func() { out = append(out, t.predicate(sub)) })
		}
		return sqlast.Conjoin(out...)
	case *queryir.Not:
		t.negations++
		defer func() { t.negations-- }()
		return &sqlast.Negated{Predicate: t.predicate(n.Predicate)}
	case *queryir.InList:
		return t.inList(n)
	case *queryir.InSubquery:
		q, info := t.subquery(n.Query)
		var test sqlast.Expression
		t.infer.with(fixedType(singleType(info)), func() { test = t.expression(n.Test) })
		return &sqlast.InSubquery{Test: test, Query: q, Negated: n.Negated}
	case *queryir.Between:
		return t.between(n)
	case *queryir.Like:
		out := &sqlast.Like{Negated: n.Negated, CaseInsensitive: n.CaseInsensitive}
		t.infer.with(fixedType(mm.StringType), func() {
			out.Expr = t.expression(n.Expr)
			out.Pattern = t.expression(n.Pattern)
			if n.Escape != nil {
				out.Escape = t.expression(n.Escape)
			}
		})
		return out
	case *queryir.Nullness:
		var e sqlast.Expression
		t.infer.with(nil, func() { e = t.expression(n.Expr) })
		return &sqlast.Nullness{Expr: e, Negated: n.Negated}
	case *queryir.Exists:
		q, _ := t.subquery(n.Query)
		return &sqlast.Exists{Query: q, Negated: n.Negated}
	case *queryir.BooleanExpr:
		var e sqlast.Expression
		t.infer.with(fixedType(mm.BooleanType), func() { e = t.expression(n.Expr) })
		return &sqlast.BooleanExpression{Expr: e}
	case nil:
		panic(newAssertionFailure("nil predicate at %s", t.position()))
	}
	t.fail(ErrCodeUnsupported, "unsupported predicate %T", p)
	return nil
}

func singleType(info *partInfo) mm.Type {
	if info == nil || len(info.types) != 1 {
		return nil
	}
	return info.types[0]
}

// comparison translates a comparison. Each operand infers the type of the
// other: the left one from the right's static type, the right one from the
// translated left operand.
func (t *translation) comparison(n *queryir.Comparison) sqlast.Predicate {
	t.typeComparison(n)
	var l, r sqlast.Expression
	rt := t.staticType(n.Right)
	t.infer.with(fixedType(rt), func() { l = t.expression(n.Left) })
	t.infer.with(fixedType(l.ExprType()), func() { r = t.expression(n.Right) })
	return &sqlast.Comparison{Left: l, Op: compareOp(n.Op), Right: r}
}

// typeComparison records the use a comparison of type(x) with an entity
// type makes of that type. An equality that is not negated filters the
// rows of x; anything else only reads the type.
func (t *translation) typeComparison(n *queryir.Comparison) {
	of, lit := typeOperands(n.Left, n.Right)
	if of == nil {
		of, lit = typeOperands(n.Right, n.Left)
	}
	if of == nil {
		return
	}
	target := t.entity(lit.Entity)
	node := t.resolvePath(of.Path)
	if node.state == stateAssociation {
		node = t.navigate(node)
	}
	if node.state != stateEntity {
		return
	}
	kind := UseExpression
	if n.Op == queryir.OpEq && t.negations == 0 {
		kind = UseFilter
	}
	t.uses.Register(node.group, kind, target)
}

func typeOperands(a, b queryir.Expression) (*queryir.EntityTypeOf, *queryir.EntityTypeLiteral) {
	of, ok := a.(*queryir.EntityTypeOf)
	if !ok {
		return nil, nil
	}
	lit, ok := b.(*queryir.EntityTypeLiteral)
	if !ok {
		return nil, nil
	}
	return of, lit
}

func compareOp(op queryir.CompareOp) sqlast.CompareOp {
	switch op {
	case queryir.OpNe:
		return sqlast.OpNe
	case queryir.OpLt:
		return sqlast.OpLt
	case queryir.OpLe:
		return sqlast.OpLe
	case queryir.OpGt:
		return sqlast.OpGt
	case queryir.OpGe:
		return sqlast.OpGe
	}
	return sqlast.OpEq
}

// disjunction translates an OR. Every branch is its own conjunct: treats
// inside a branch restrict that branch only. The branches' uses are then
// merged so that only what holds in every branch survives.
func (t *translation) disjunction(n *queryir.Junction) sqlast.Predicate {
	var preds []sqlast.Predicate
	var frames []*useFrame
	for i, sub := range n.Predicates {
		t.at(fmt.Sprintf("or[%d]", i), func() {
			t.uses.pushConjunct()
			p := t.predicate(sub)
			treats, frame := t.uses.drain()
			frames = append(frames, frame)
			preds = append(preds, sqlast.Conjoin(append([]sqlast.Predicate{p}, t.treatRestrictions(treats)...)...))
		})
	}
	t.uses.mergeDisjunction(frames, t.scope.index.Owns)
	return sqlast.Disjoin(preds...)
}

// inList translates test IN (list). Multi-valued parameters in the list
// expand in place.
func (t *translation) inList(n *queryir.InList) sqlast.Predicate {
	var listType mm.Type
	for _, e := range n.List {
		if listType = t.staticType(e); listType != nil {
			break
		}
	}
	out := &sqlast.InList{Negated: n.Negated}
	t.infer.with(fixedType(listType), func() { out.Test = t.expression(n.Test) })
	t.infer.with(fixedType(out.Test.ExprType()), func() {
		for i, e := range n.List {
			t.at(fmt.Sprintf("in[%d]", i), func() {
				if p, ok := e.(*queryir.Parameter); ok {
					out.List = append(out.List, t.parameter(p, true)...)
					return
				}
				out.List = append(out.List, t.expression(e))
			})
		}
	})
	return out
}

func (t *translation) between(n *queryir.Between) sqlast.Predicate {
	bound := t.staticType(n.Low)
	if bound == nil {
		bound = t.staticType(n.High)
	}
	out := &sqlast.Between{Negated: n.Negated}
	t.infer.with(fixedType(bound), func() { out.Expr = t.expression(n.Expr) })
	t.infer.with(fixedType(out.Expr.ExprType()), func() {
		out.Low = t.expression(n.Low)
		out.High = t.expression(n.High)
	})
	return out
}
