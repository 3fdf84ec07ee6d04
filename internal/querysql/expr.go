package querysql

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/ormsql/internal/ir"
	mm "github.com/roach88/ormsql/internal/metamodel"
	"github.com/roach88/ormsql/internal/queryir"
	"github.com/roach88/ormsql/internal/sqlast"
)

// expression translates a value expression.
func (t *translation) expression(e queryir.Expression) sqlast.Expression {
	switch n := e.(type) {
	case *queryir.Path:
		return t.pathValue(t.resolvePath(n))
	case *queryir.Literal:
		return t.literal(n)
	case *queryir.Parameter:
		return t.parameter(n, false)[0]
	case *queryir.Binary:
		return t.binary(n)
	case *queryir.Negate:
		if isDuration(t.staticType(n.Operand)) {
			return t.durationValue(n)
		}
		return &sqlast.UnaryMinus{Operand: t.expression(n.Operand)}
	case *queryir.Duration:
		return t.durationValue(n)
	case *queryir.DurationBy:
		return t.durationBy(n)
	case *queryir.CaseSearched:
		return t.caseSearched(n)
	case *queryir.CaseSimple:
		return t.caseSimple(n)
	case *queryir.Coalesce:
		return t.coalesce(n)
	case *queryir.Function:
		return t.function(n)
	case *queryir.Tuple:
		return t.tuple(n)
	case *queryir.Subquery:
		return t.scalarSubquery(n)
	case *queryir.EntityTypeOf:
		return t.typeOf(n.Path)
	case *queryir.EntityTypeLiteral:
		e := t.entity(n.Entity)
		return &sqlast.Literal{Value: ir.IRString(e.DiscriminatorValue), Type: mm.StringType}
	case nil:
		panic(newAssertionFailure("nil expression at %s", t.position()))
	}
	t.fail(ErrCodeUnsupported, "unsupported expression %T", e)
	return nil
}

// literalType is the type a literal value has on its own.
func literalType(v ir.IRValue) mm.Type {
	switch v.(type) {
	case ir.IRString:
		return mm.StringType
	case ir.IRInt:
		return mm.IntegerType
	case ir.IRBool:
		return mm.BooleanType
	case ir.IRDecimal:
		return mm.DecimalType
	case ir.IRDuration:
		return mm.DurationType
	case ir.IRTimestamp:
		return mm.TimestampType
	}
	return nil
}

func basicType(b *mm.BasicType) mm.Type {
	if b == nil {
		return nil
	}
	return b
}

// literal translates a constant. An untyped literal adopts the type its
// context infers: string literals compared with temporal columns become
// temporal, literals compared with an entity take the identifier type.
func (t *translation) literal(l *queryir.Literal) sqlast.Expression {
	if d, ok := l.Value.(ir.IRDuration); ok {
		return &sqlast.Duration{
			Magnitude: &sqlast.Literal{Value: ir.IRInt(int64(d)), Type: mm.LongType},
			Unit:      mm.UnitNanosecond,
		}
	}
	if l.Kind != 0 {
		return &sqlast.Literal{Value: l.Value, Type: mm.Basic(l.Kind)}
	}
	typ := literalType(l.Value)
	inferred := t.infer.Current()
	if e := mm.EntityOf(inferred); e != nil {
		inferred = e.Identifier().Type
	}
	if b := mm.AsBasic(inferred); b != nil {
		if typ == nil || mm.Compatible(typ, b) || mm.IsKind(typ, mm.KindString) {
			typ = b
		}
	}
	return &sqlast.Literal{Value: l.Value, Type: typ}
}

// staticType computes the type of an expression from the catalog alone,
// without translating it. Parameters and subqueries have no static type.
func (t *translation) staticType(e queryir.Expression) mm.Type {
	switch n := e.(type) {
	case *queryir.Path:
		return t.pathType(n)
	case *queryir.Literal:
		if n.Kind != 0 {
			return mm.Basic(n.Kind)
		}
		return literalType(n.Value)
	case *queryir.Binary:
		l, r := t.staticType(n.Left), t.staticType(n.Right)
		switch {
		case isTemporal(l) && isTemporal(r):
			return mm.DurationType
		case isTemporal(l):
			return l
		case isTemporal(r):
			return r
		case isDuration(l) || isDuration(r):
			return mm.DurationType
		}
		return numericResult(l, r)
	case *queryir.Negate:
		return t.staticType(n.Operand)
	case *queryir.Duration:
		return mm.DurationType
	case *queryir.DurationBy:
		return mm.LongType
	case *queryir.CaseSearched:
		exprs := []queryir.Expression{n.Else}
		for _, w := range n.Whens {
			exprs = append(exprs, w.Then)
		}
		return t.firstStaticType(exprs)
	case *queryir.CaseSimple:
		exprs := []queryir.Expression{n.Else}
		for _, w := range n.Whens {
			exprs = append(exprs, w.Then)
		}
		return t.firstStaticType(exprs)
	case *queryir.Coalesce:
		return t.firstStaticType(n.Args)
	case *queryir.Function:
		if n.ReturnKind != 0 {
			return mm.Basic(n.ReturnKind)
		}
		if len(n.Args) > 0 {
			return t.staticType(n.Args[0])
		}
	case *queryir.EntityTypeOf, *queryir.EntityTypeLiteral:
		return mm.StringType
	}
	return nil
}

func (t *translation) firstStaticType(exprs []queryir.Expression) mm.Type {
	for _, e := range exprs {
		if e == nil {
			continue
		}
		if typ := t.staticType(e); typ != nil {
			return typ
		}
	}
	return nil
}

// pathType walks a path over the catalog. It returns nil for paths it
// cannot type; translating such a path reports the problem.
func (t *translation) pathType(p *queryir.Path) mm.Type {
	entry, _ := t.scope.index.Lookup(p.Alias)
	if entry == nil {
		return nil
	}
	var cur mm.Type
	switch entry.kind {
	case aliasEntity:
		cur = entry.group.Entity
	case aliasElements:
		cur = basicType(entry.attr.Type)
	case aliasIndex:
		cur = indexType(entry.attr)
	}
	for i, st := range p.Steps {
		switch {
		case st.Treat != "":
			e, ok := t.catalog.Entity(st.Treat)
			if !ok {
				return nil
			}
			cur = e
		case st.Part == queryir.PartIndex:
			if entry.attr == nil {
				return nil
			}
			cur = indexType(entry.attr)
		case st.Part == queryir.PartElement:
		default:
			var a *mm.Attribute
			switch c := cur.(type) {
			case *mm.Entity:
				a = c.Attribute(st.Attribute)
			case *mm.Embeddable:
				a = c.Attribute(st.Attribute)
			case *mm.Attribute:
				if c.TargetEntity != nil {
					a = c.TargetEntity.Attribute(st.Attribute)
				}
			case nil:
				if i == 0 && entry.kind == aliasVirtual {
					if col, ok := entry.column(st.Attribute); ok {
						cur = col.Type
						continue
					}
				}
			}
			if a == nil {
				return nil
			}
			cur = attributeType(a)
		}
	}
	return cur
}

// attributeType is the type a path ending in a has.
func attributeType(a *mm.Attribute) mm.Type {
	switch a.Kind {
	case mm.AttributeEmbedded:
		return a.EmbeddableType
	case mm.AttributeToOne:
		return a
	case mm.AttributePlural:
		if a.TargetEntity != nil {
			return a.TargetEntity
		}
	}
	return basicType(a.Type)
}

func indexType(a *mm.Attribute) mm.Type {
	if a.Collection == mm.CollectionMap {
		return mm.StringType
	}
	return mm.IntegerType
}

func isTemporal(t mm.Type) bool {
	b := mm.AsBasic(t)
	return b != nil && b.Kind.IsTemporal()
}

func isDuration(t mm.Type) bool { return mm.IsKind(t, mm.KindDuration) }

// numericResult is the type of arithmetic over a and b: the wider numeric
// kind, or whichever side is known.
func numericResult(a, b mm.Type) mm.Type {
	ba, bb := mm.AsBasic(a), mm.AsBasic(b)
	switch {
	case ba == nil:
		return b
	case bb == nil:
		return a
	case ba.Kind.IsNumeric() && bb.Kind.IsNumeric() && bb.Kind > ba.Kind:
		return b
	}
	return a
}

// binary translates arithmetic. Temporal operands are rewritten; numeric
// operands infer their types from each other.
func (t *translation) binary(b *queryir.Binary) sqlast.Expression {
	lt, rt := t.staticType(b.Left), t.staticType(b.Right)
	if isTemporal(lt) || isTemporal(rt) || isDuration(lt) || isDuration(rt) {
		return t.temporal(b, lt, rt)
	}
	var l, r sqlast.Expression
	t.infer.with(fixedType(rt), func() { l = t.expression(b.Left) })
	t.infer.with(fixedType(l.ExprType()), func() { r = t.expression(b.Right) })
	return &sqlast.BinaryArithmetic{
		Op:    arithmeticOp(b.Op),
		Left:  l,
		Right: r,
		Type:  numericResult(l.ExprType(), r.ExprType()),
	}
}

func arithmeticOp(op queryir.ArithmeticOp) sqlast.ArithmeticOp {
	switch op {
	case queryir.OpSubtract:
		return sqlast.OpSubtract
	case queryir.OpMultiply:
		return sqlast.OpMultiply
	case queryir.OpDivide:
		return sqlast.OpDivide
	case queryir.OpModulo:
		return sqlast.OpModulo
	}
	return sqlast.OpAdd
}

// branchType is the result type of case and coalesce: the first branch
// with a static type, else what the context infers.
func (t *translation) branchType(exprs []queryir.Expression) mm.Type {
	if typ := t.firstStaticType(exprs); typ != nil {
		return typ
	}
	return t.infer.Current()
}

func (t *translation) caseSearched(n *queryir.CaseSearched) sqlast.Expression {
	exprs := []queryir.Expression{n.Else}
	for _, w := range n.Whens {
		exprs = append(exprs, w.Then)
	}
	typ := t.branchType(exprs)
	out := &sqlast.CaseSearched{Type: typ}
	for i, w := range n.Whens {
		t.at(fmt.Sprintf("when[%d]", i), func() {
			var when sqlast.Predicate
			var then sqlast.Expression
			t.infer.with(nil, func() { when = t.predicate(w.When) })
			t.infer.with(fixedType(typ), func() { then = t.expression(w.Then) })
			out.Whens = append(out.Whens, sqlast.SearchedWhen{When: when, Then: then})
		})
	}
	if n.Else != nil {
		t.infer.with(fixedType(typ), func() { out.Else = t.expression(n.Else) })
	}
	return out
}

func (t *translation) caseSimple(n *queryir.CaseSimple) sqlast.Expression {
	exprs := []queryir.Expression{n.Else}
	for _, w := range n.Whens {
		exprs = append(exprs, w.Then)
	}
	typ := t.branchType(exprs)
	out := &sqlast.CaseSimple{Type: typ}
	t.infer.with(nil, func() { out.Operand = t.expression(n.Operand) })
	operandType := out.Operand.ExprType()
	for i, w := range n.Whens {
		t.at(fmt.Sprintf("when[%d]", i), func() {
			var when, then sqlast.Expression
			t.infer.with(fixedType(operandType), func() { when = t.expression(w.When) })
			t.infer.with(fixedType(typ), func() { then = t.expression(w.Then) })
			out.Whens = append(out.Whens, sqlast.SimpleWhen{When: when, Then: then})
		})
	}
	if n.Else != nil {
		t.infer.with(fixedType(typ), func() { out.Else = t.expression(n.Else) })
	}
	return out
}

func (t *translation) coalesce(n *queryir.Coalesce) sqlast.Expression {
	typ := t.branchType(n.Args)
	out := &sqlast.Function{Name: "coalesce", Type: typ}
	t.infer.with(fixedType(typ), func() {
		for _, a := range n.Args {
			out.Args = append(out.Args, t.expression(a))
		}
	})
	return out
}

// function translates a function call. Arguments see no inferred type.
func (t *translation) function(n *queryir.Function) sqlast.Expression {
	out := &sqlast.Function{Name: strings.ToLower(n.Name)}
	t.infer.with(nil, func() {
		for i, a := range n.Args {
			t.at(fmt.Sprintf("arg[%d]", i), func() { out.Args = append(out.Args, t.expression(a)) })
		}
	})
	switch {
	case n.ReturnKind != 0:
		out.Type = mm.Basic(n.ReturnKind)
	case out.Name == "count":
		out.Type = mm.LongType
	case len(out.Args) > 0:
		out.Type = out.Args[0].ExprType()
	}
	return out
}

// tuple translates a row value. Under an inferred embeddable, element i
// infers the type of leaf i.
func (t *translation) tuple(n *queryir.Tuple) sqlast.Expression {
	inferred := t.infer.Current()
	var leaves []mm.EmbeddedLeaf
	if emb, ok := inferred.(*mm.Embeddable); ok {
		leaves = emb.Leaves()
	}
	out := &sqlast.Tuple{Type: inferred}
	for i, e := range n.Elements {
		var typ mm.Type
		if i < len(leaves) {
			typ = basicType(leaves[i].Attribute.Type)
		}
		t.infer.with(fixedType(typ), func() { out.Elements = append(out.Elements, t.expression(e)) })
	}
	return out
}

// scalarSubquery translates a subquery used as a value. It is correlated:
// it sees the aliases of the enclosing scopes.
func (t *translation) scalarSubquery(n *queryir.Subquery) sqlast.Expression {
	var q sqlast.QueryPart
	var info *partInfo
	t.at("subquery", func() {
		t.withCtes(n.With, func() {
			t.infer.with(nil, func() { q, info = t.queryPart(n.Query, partOptions{correlated: true}) })
		})
	})
	out := &sqlast.ScalarSubquery{Query: q}
	if len(info.types) == 1 {
		out.Type = info.types[0]
	}
	return out
}

// subquery translates a correlated subquery of a predicate.
func (t *translation) subquery(q queryir.QueryPart) (sqlast.QueryPart, *partInfo) {
	var out sqlast.QueryPart
	var info *partInfo
	t.at("subquery", func() {
		t.infer.with(nil, func() { out, info = t.queryPart(q, partOptions{correlated: true}) })
	})
	return out, info
}

// typeOf translates type(path): the discriminator column for single-table
// hierarchies, a case over the subclass tables for joined ones, a constant
// otherwise.
func (t *translation) typeOf(p *queryir.Path) sqlast.Expression {
	n := t.resolvePath(p)
	if n.state == stateAssociation {
		n = t.navigate(n)
	}
	if n.state != stateEntity {
		t.fail(ErrCodeUnsupported, "type() of non-entity path %s", p)
	}
	t.uses.Register(n.group, UseExpression, n.entity)
	return t.typeExpression(n.group, n.entity)
}

func (t *translation) typeExpression(g *sqlast.TableGroup, static *mm.Entity) sqlast.Expression {
	switch static.Strategy() {
	case mm.InheritanceSingleTable:
		g.Resolve(sqlast.ResolvedFull)
		return col(t.rootRef(g), static.Discriminator(), mm.StringType)
	case mm.InheritanceJoined:
		sub := static.Subtree()[1:]
		if len(sub) == 0 {
			break
		}
		out := &sqlast.CaseSearched{
			Type: mm.StringType,
			Else: &sqlast.Literal{Value: ir.IRString(static.DiscriminatorValue), Type: mm.StringType},
		}
		id := static.Identifier()
		allowed := t.narrowed[g]
		// Deepest types first: a row of a subtype also has rows in the
		// tables of its supertypes.
		for i := len(sub) - 1; i >= 0; i-- {
			s := sub[i]
			if allowed != nil && !slices.Contains(allowed, s) {
				continue
			}
			tj := g.SubclassJoin(s)
			if tj == nil {
				t.interpretationFailure(g.Path, "group %s has no table for subtype %s", g.Alias, s.Name)
			}
			tj.MarkUsed()
			out.Whens = append(out.Whens, sqlast.SearchedWhen{
				When: &sqlast.Nullness{Expr: col(tj.Table, id.Column, id.Type), Negated: true},
				Then: &sqlast.Literal{Value: ir.IRString(s.DiscriminatorValue), Type: mm.StringType},
			})
		}
		g.Resolve(sqlast.ResolvedFull)
		return out
	}
	return &sqlast.Literal{Value: ir.IRString(static.DiscriminatorValue), Type: mm.StringType}
}
