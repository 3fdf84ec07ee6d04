package querysql

import (
	"slices"

	mm "github.com/roach88/ormsql/internal/metamodel"
	"github.com/roach88/ormsql/internal/queryir"
	"github.com/roach88/ormsql/internal/sqlast"
)

// pathState is what a path denotes after some of its steps.
type pathState int

const (
	stateEntity pathState = iota + 1
	stateEmbedded
	stateAssociation
	stateElements
	stateIndex
	stateVirtual
	stateValue
)

// pathNode is the result of resolving a path expression, possibly partway.
type pathNode struct {
	state pathState
	nav   *queryir.NavigablePath
	group *sqlast.TableGroup

	// entity is the static type at the group, narrowed by treats; treat is
	// the last explicit treat, nil without one.
	entity *mm.Entity
	treat  *mm.Entity

	// Embedded state: top is the entity-level embedded attribute, emb the
	// embeddable reached so far.
	top *mm.Attribute
	emb *mm.Embeddable

	// attr is the association of stateAssociation, nil for entity-valued
	// columns of virtual tables. It is the collection of stateElements and
	// stateIndex.
	attr  *mm.Attribute
	owner *mm.Entity

	entry *aliasEntry
	value sqlast.Expression
}

// resolvePath walks the steps of p from its alias.
func (t *translation) resolvePath(p *queryir.Path) *pathNode {
	entry, _ := t.scope.index.Lookup(p.Alias)
	if entry == nil {
		t.fail(ErrCodeUnknownReference, "unknown alias %q in path %s", p.Alias, p)
	}
	n := &pathNode{nav: entry.nav, group: entry.group, entry: entry, attr: entry.attr}
	switch entry.kind {
	case aliasEntity:
		n.state = stateEntity
		n.entity = entry.group.Entity
	case aliasElements:
		n.state = stateElements
	case aliasIndex:
		n.state = stateIndex
	case aliasVirtual:
		n.state = stateVirtual
	}
	for _, step := range p.Steps {
		switch {
		case step.Treat != "":
			n = t.treatStep(n, step.Treat, p)
		case step.Part != queryir.PartNone:
			n = t.partStep(n, step.Part, p)
		default:
			n = t.attributeStep(n, step.Attribute, p)
		}
	}
	return n
}

func (t *translation) treatStep(n *pathNode, name string, p *queryir.Path) *pathNode {
	if n.state == stateAssociation {
		n = t.navigate(n)
	}
	if n.state != stateEntity {
		t.fail(ErrCodeUnsupported, "cannot treat non-entity path %s", p)
	}
	target := t.entity(name)
	switch {
	case n.entity.IsSubtypeOf(target):
		// Widening to a supertype changes nothing.
		return n
	case !target.IsSubtypeOf(n.entity):
		t.fail(ErrCodeUnknownReference, "cannot treat %s as unrelated entity %s", n.entity.Name, target.Name)
	}
	t.registerTreat(n.group, n.entity, target)
	out := *n
	out.entity = target
	out.treat = target
	out.nav = n.nav.Treat(target.Name)
	return &out
}

// registerTreat records the use a treat makes of its target type.
// Intermediate supertypes between the static and the target type are
// recorded as base treats.
func (t *translation) registerTreat(g *sqlast.TableGroup, static, target *mm.Entity) {
	kind := UseTreat
	switch t.clause {
	case clauseSelect, clauseOrderBy, clauseGroupBy, clauseSet, clauseValues:
		kind = UseOptionalTreat
	}
	t.uses.Register(g, kind, target)
	for s := target.Super(); s != nil && s != static && s.IsSubtypeOf(static); s = s.Super() {
		t.uses.Register(g, UseBaseTreat, s)
	}
}

func (t *translation) partStep(n *pathNode, part queryir.PluralPart, p *queryir.Path) *pathNode {
	if n.attr == nil || n.attr.Kind != mm.AttributePlural {
		t.fail(ErrCodeUnsupported, "%s applies to plural joins only, got %s", part, p)
	}
	out := *n
	out.nav = n.nav.Append(part.String())
	if part == queryir.PartIndex {
		if n.attr.IndexColumn == "" {
			t.fail(ErrCodeUnsupported, "collection %s has no index", n.attr.Name)
		}
		out.state = stateIndex
	}
	return &out
}

func (t *translation) attributeStep(n *pathNode, name string, p *queryir.Path) *pathNode {
	switch n.state {
	case stateAssociation:
		a := n.attr
		if a == nil {
			if name == n.owner.Identifier().Name {
				v := *n.value.(*sqlast.ColumnReference)
				v.Type = n.owner.Identifier().Type
				return &pathNode{state: stateValue, nav: n.nav.Append(name), value: &v}
			}
			return t.attributeStep(t.navigate(n), name, p)
		}
		if a.IsOwningToOne() && name == a.TargetEntity.Identifier().Name {
			ref, cols := t.attributeColumns(n.group, n.owner, a)
			id := a.TargetEntity.Identifier()
			return &pathNode{state: stateValue, nav: n.nav.Append(name), value: col(ref, cols[0], id.Type)}
		}
		return t.attributeStep(t.navigate(n), name, p)

	case stateEntity:
		a := n.entity.Attribute(name)
		if a == nil {
			// Members of subtypes resolve without an explicit treat.
			a = n.entity.AttributeInSubtypes(name)
		}
		if a == nil {
			t.fail(ErrCodeUnknownReference, "entity %s has no attribute %q", n.entity.Name, name)
		}
		if d := a.Declarer(); d != nil && d != n.group.Entity && d.IsSubtypeOf(n.group.Entity) {
			t.uses.Register(n.group, UseExpression, d)
		}
		return t.member(n, a, name, nil)

	case stateEmbedded:
		a := n.emb.Attribute(name)
		if a == nil {
			t.fail(ErrCodeUnknownReference, "embeddable %s has no attribute %q", n.emb.Name, name)
		}
		return t.member(n, a, name, n.top)

	case stateVirtual:
		c, ok := n.entry.column(name)
		if !ok {
			t.fail(ErrCodeUnknownReference, "%q has no column %q", n.entry.alias, name)
		}
		ref := n.group.Primary
		n.group.Resolve(sqlast.ResolvedFull)
		if e := mm.EntityOf(c.Type); e != nil {
			return &pathNode{
				state: stateAssociation, nav: n.nav.Append(name), group: n.group,
				value: col(ref, c.Columns[0], e), owner: e,
			}
		}
		if len(c.Columns) == 1 {
			return &pathNode{state: stateValue, nav: n.nav.Append(name), value: col(ref, c.Columns[0], c.Type)}
		}
		tuple := &sqlast.Tuple{Type: c.Type}
		for _, cn := range c.Columns {
			tuple.Elements = append(tuple.Elements, col(ref, cn, nil))
		}
		return &pathNode{state: stateValue, nav: n.nav.Append(name), value: tuple}
	}
	t.fail(ErrCodeUnsupported, "cannot dereference %q in %s", name, p)
	return nil
}

// member resolves an attribute of an entity or of an embeddable.
func (t *translation) member(n *pathNode, a *mm.Attribute, name string, top *mm.Attribute) *pathNode {
	nav := n.nav.Append(name)
	owner := n.entity
	if n.state == stateEmbedded {
		owner = n.owner
	}
	switch a.Kind {
	case mm.AttributeBasic:
		table := owner.TableOf(a)
		if top != nil {
			table = owner.TableOf(top)
		}
		ref := n.group.TableReference(table)
		if ref == nil {
			t.interpretationFailure(nav.Full(), "group %s does not join table %s", n.group.Alias, table)
		}
		if a == owner.Identifier() {
			n.group.Resolve(sqlast.ResolvedMinimal)
		} else {
			n.group.Resolve(sqlast.ResolvedFull)
		}
		var value sqlast.Expression = col(ref, a.Column, a.Type)
		if n.treat != nil {
			value = t.guardShared(n.group, n.treat, table, a.Column, value, a.Type)
		}
		return &pathNode{state: stateValue, nav: nav, value: value}

	case mm.AttributeEmbedded:
		if top == nil {
			top = a
		}
		return &pathNode{
			state: stateEmbedded, nav: nav, group: n.group, entity: n.entity, treat: n.treat,
			owner: owner, top: top, emb: a.EmbeddableType,
		}

	case mm.AttributeToOne:
		return &pathNode{state: stateAssociation, nav: nav, group: n.group, attr: a, owner: owner, top: top, treat: n.treat}

	case mm.AttributePlural:
		t.fail(ErrCodeUnsupported, "collection %s must be joined to be dereferenced", a.Name)
	}
	t.fail(ErrCodeUnsupported, "attribute %s has unknown kind", a.Name)
	return nil
}

// guardShared wraps a value read through a treat in a type check when the
// column also holds values of types outside the treated subtree.
func (t *translation) guardShared(g *sqlast.TableGroup, treat *mm.Entity, table, column string, value sqlast.Expression, typ mm.Type) sqlast.Expression {
	switch t.clause {
	case clauseSelect, clauseOrderBy, clauseGroupBy:
	default:
		return value
	}
	if !treat.ColumnSharedOutside(table, column, treat.Subtree()) {
		return value
	}
	guard := t.typeRestriction(g, treat.Subtree())
	if guard == nil {
		return value
	}
	return &sqlast.CaseSearched{Whens: []sqlast.SearchedWhen{{When: guard, Then: value}}, Type: typ}
}

// navigate joins the target of an association node.
func (t *translation) navigate(n *pathNode) *pathNode {
	if n.attr == nil {
		return t.navigateVirtual(n)
	}
	g := t.implicitJoin(n.group, n.owner, n.nav, n.attr)
	return &pathNode{state: stateEntity, nav: n.nav, group: g, entity: g.Entity}
}

// implicitJoin returns the group of an association dereferenced in an
// expression, creating an inner join on first use.
//
// Joins are reused by path within a scope. A path off a group of an
// enclosing scope reuses that scope's join when it has one; otherwise the
// target becomes a root of the current scope correlated through WHERE.
func (t *translation) implicitJoin(owner *sqlast.TableGroup, ownerEntity *mm.Entity, nav *queryir.NavigablePath, a *mm.Attribute) *sqlast.TableGroup {
	if a.Kind == mm.AttributePlural {
		t.fail(ErrCodeUnsupported, "cannot navigate through collection %s implicitly: join it", a.Name)
	}
	s := t.scope
	ownerScope := t.groupScope[owner]
	if ownerScope != nil && ownerScope != s {
		if g := ownerScope.index.Find(nav); g != nil {
			return g
		}
	}
	if g := s.index.Find(nav); g != nil {
		return g
	}

	g, pred := t.associationGroup(nav, owner, ownerEntity, a, a.TargetEntity)
	restrict := sqlast.Conjoin(append(t.baseRestrictions(g), t.subtypeRestriction(g))...)

	if ownerScope != nil && ownerScope != s {
		s.index.Register(nav, g)
		s.spec.Roots = append(s.spec.Roots, g)
		t.registerGroup(g, s)
		s.restrictions = append(s.restrictions, pred, restrict)
		return g
	}

	join := sqlast.NewTableGroupJoin(nav.Full(), sqlast.JoinInner, g, pred)
	join.Implicit = true
	join.AddPredicate(restrict)
	t.attachImplicit(owner, join, s)
	t.edges[g] = join
	s.index.Register(nav, g)
	t.registerGroup(g, s)
	return g
}

// attachImplicit places an implicit join in the join tree. Joins found while
// translating an ON predicate are nested in the joined group when they hang
// off it, and placed before it otherwise, so the predicate only references
// tables joined before it.
func (t *translation) attachImplicit(owner *sqlast.TableGroup, join *sqlast.TableGroupJoin, s *queryScope) {
	if s.onJoin == nil {
		owner.AddJoin(join)
		return
	}
	on := s.onJoin.Group
	if contains(on, owner) {
		owner.AddNestedJoin(join)
		return
	}
	for i, j := range owner.Joins {
		if contains(j.Group, on) {
			owner.Joins = slices.Insert(owner.Joins, i, join)
			return
		}
	}
	owner.AddJoin(join)
}

func contains(root, g *sqlast.TableGroup) bool {
	found := false
	root.Walk(func(x *sqlast.TableGroup) bool {
		if x == g {
			found = true
		}
		return !found
	})
	return found
}

// navigateVirtual joins the entity referenced by an entity-valued column of
// a derived, function or cte table.
func (t *translation) navigateVirtual(n *pathNode) *pathNode {
	s := t.scope
	e := n.owner
	g := s.index.Find(n.nav)
	if g == nil {
		g = t.entityGroup(n.nav, e, e.Name)
		pred := eq(t.idColumn(g), n.value)
		join := sqlast.NewTableGroupJoin(n.nav.Full(), sqlast.JoinInner, g, pred)
		join.Implicit = true
		join.AddPredicate(sqlast.Conjoin(append(t.baseRestrictions(g), t.subtypeRestriction(g))...))
		t.attachImplicit(n.group, join, s)
		t.edges[g] = join
		s.index.Register(n.nav, g)
		t.registerGroup(g, s)
	}
	return &pathNode{state: stateEntity, nav: n.nav, group: g, entity: e}
}

// pathValue converts a resolved path to the expression it denotes.
func (t *translation) pathValue(n *pathNode) sqlast.Expression {
	switch n.state {
	case stateValue:
		return n.value
	case stateEntity:
		t.uses.Register(n.group, UseExpression, n.entity)
		id := t.idColumn(n.group)
		id.Type = n.entity
		return id
	case stateEmbedded:
		ref := n.group.TableReference(n.owner.TableOf(n.top))
		if ref == nil {
			t.interpretationFailure(n.nav.Full(), "group %s does not join the table of %s", n.group.Alias, n.top.Name)
		}
		n.group.Resolve(sqlast.ResolvedFull)
		tuple := &sqlast.Tuple{Type: n.emb}
		for _, l := range n.emb.Leaves() {
			tuple.Elements = append(tuple.Elements, col(ref, l.Attribute.Column, l.Attribute.Type))
		}
		return tuple
	case stateAssociation:
		a := n.attr
		if a == nil {
			return n.value
		}
		if a.IsOwningToOne() {
			ref, cols := t.attributeColumns(n.group, n.owner, a)
			return col(ref, cols[0], a)
		}
		g := t.implicitJoin(n.group, n.owner, n.nav, a)
		id := t.idColumn(g)
		id.Type = a
		return id
	case stateElements:
		a := n.attr
		if a.TargetEntity != nil {
			t.fail(ErrCodeUnsupported, "collection %s used as a value: join it", a.Name)
		}
		n.group.Resolve(sqlast.ResolvedFull)
		return col(n.group.Primary, a.ElementColumn, a.Type)
	case stateIndex:
		a := n.attr
		n.group.Resolve(sqlast.ResolvedFull)
		var typ mm.Type = mm.IntegerType
		if a.Collection == mm.CollectionMap {
			typ = mm.StringType
		}
		return col(n.group.Primary, a.IndexColumn, typ)
	case stateVirtual:
		t.fail(ErrCodeUnsupported, "derived table %q used as a value", n.entry.alias)
	}
	panic(newAssertionFailure("unknown path state %d", n.state))
}
