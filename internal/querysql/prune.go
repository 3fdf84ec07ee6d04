package querysql

import (
	"slices"

	"github.com/roach88/ormsql/internal/ir"
	mm "github.com/roach88/ormsql/internal/metamodel"
	"github.com/roach88/ormsql/internal/sqlast"
)

// prune narrows every entity group to the types its uses allow.
//
// A group whose uses all hold for a subset of its hierarchy only loads the
// tables and columns of that subset. TREAT uses recorded for the group
// itself (a subtype root, a treated join) also need a restriction: it goes
// to the WHERE clause of the owning scope for roots and to the ON
// predicate for joins.
func (t *translation) prune() {
	for _, gu := range t.uses.Final() {
		g := gu.group
		if g.Entity == nil {
			continue
		}
		allowed := t.allowedTypes(gu)
		if allowed != nil {
			for _, s := range g.Entity.LiveSubtypes() {
				if s != g.Entity && !slices.Contains(allowed, s) {
					t.pruned = append(t.pruned, g.Alias+":"+s.Name)
				}
			}
			t.narrowed[g] = allowed
		}

		treats := gu.narrowing(true)
		if len(treats) == 0 {
			continue
		}
		r := t.typeRestriction(g, treats)
		if r == nil {
			continue
		}
		if join := t.edges[g]; join != nil {
			join.AddPredicate(r)
			continue
		}
		gu.scope.spec.Where = sqlast.Conjoin(gu.scope.spec.Where, r)
	}
}

// allowedTypes returns the types of g's hierarchy that rows of the group
// can have, or nil when the group cannot be narrowed.
//
// The narrowing uses bound the rows to their subtrees. The types in
// between the group's entity and a narrowed type stay, since their tables
// hold inherited columns. Non-narrowing uses of a subtype keep what they
// read.
func (t *translation) allowedTypes(gu *groupUses) []*mm.Entity {
	narrow := gu.narrowing(false)
	if len(narrow) == 0 {
		return nil
	}
	e := gu.group.Entity
	out := []*mm.Entity{}
	add := func(s *mm.Entity) {
		if s != e && !slices.Contains(out, s) && slices.Contains(e.Subtree(), s) {
			out = append(out, s)
		}
	}
	keep := func(s *mm.Entity) {
		add(s)
		for _, sup := range s.Supertypes() {
			add(sup)
		}
	}
	for _, s := range narrow {
		keep(s)
	}
	for _, u := range gu.entities {
		if k := gu.kinds[u]; k.Narrows() || u == e {
			continue
		}
		for _, s := range u.Subtree() {
			keep(s)
		}
	}
	if len(out) == len(e.Subtree())-1 {
		return nil
	}
	return out
}

// typeRestriction restricts the rows of g to the given types, or returns
// nil when every row of the group already has one of them.
func (t *translation) typeRestriction(g *sqlast.TableGroup, types []*mm.Entity) sqlast.Predicate {
	e := g.Entity
	switch e.Strategy() {
	case mm.InheritanceSingleTable:
		covered := 0
		var values []sqlast.Expression
		for _, s := range types {
			if s.Abstract {
				continue
			}
			values = append(values, &sqlast.Literal{Value: ir.IRString(s.DiscriminatorValue), Type: mm.StringType})
		}
		for _, s := range e.Root().LiveSubtypes() {
			if slices.Contains(types, s) {
				covered++
			}
		}
		if covered == len(e.Root().LiveSubtypes()) {
			return nil
		}
		g.Resolve(sqlast.ResolvedFull)
		disc := col(t.rootRef(g), e.Root().Discriminator(), mm.StringType)
		t.restrictions++
		if len(values) == 1 {
			return eq(disc, values[0])
		}
		return &sqlast.InList{Test: disc, List: values}

	case mm.InheritanceJoined:
		var tops []*mm.Entity
		for _, s := range types {
			if !hasAncestorIn(s, types) {
				tops = append(tops, s)
			}
		}
		var preds []sqlast.Predicate
		id := e.Identifier()
		for _, top := range tops {
			if top == e || slices.Contains(e.Supertypes(), top) {
				return nil
			}
			tj := g.SubclassJoin(top)
			if tj == nil {
				t.interpretationFailure(g.Path, "group %s has no table for subtype %s", g.Alias, top.Name)
			}
			tj.MarkUsed()
			preds = append(preds, &sqlast.Nullness{Expr: col(tj.Table, id.Column, id.Type), Negated: true})
		}
		if len(preds) == 0 {
			return nil
		}
		g.Resolve(sqlast.ResolvedFull)
		t.restrictions++
		return sqlast.Disjoin(preds...)
	}
	return nil
}

func hasAncestorIn(e *mm.Entity, types []*mm.Entity) bool {
	for _, s := range e.Supertypes() {
		if slices.Contains(types, s) {
			return true
		}
	}
	return false
}

// treatRestrictions turns the TREAT uses of a conjunct into the type
// restrictions the conjunct needs.
func (t *translation) treatRestrictions(treats []useEntry) []sqlast.Predicate {
	var out []sqlast.Predicate
	for _, u := range treats {
		if u.group.Entity == nil {
			continue
		}
		if r := t.typeRestriction(u.group, u.entity.Subtree()); r != nil {
			out = append(out, r)
		}
	}
	return out
}
