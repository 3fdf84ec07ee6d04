package querysql

import (
	"fmt"
	"slices"
	"strings"

	mm "github.com/roach88/ormsql/internal/metamodel"
	"github.com/roach88/ormsql/internal/queryir"
	"github.com/roach88/ormsql/internal/sqlast"
)

// col builds a column reference on a table reference.
func col(ref sqlast.TableReference, column string, typ mm.Type) *sqlast.ColumnReference {
	return &sqlast.ColumnReference{Qualifier: ref.ReferenceAlias(), Column: column, Type: typ}
}

func eq(l, r sqlast.Expression) *sqlast.Comparison {
	return &sqlast.Comparison{Left: l, Op: sqlast.OpEq, Right: r}
}

func sqlJoinType(jt queryir.JoinType) sqlast.JoinType {
	switch jt {
	case queryir.JoinLeft:
		return sqlast.JoinLeft
	case queryir.JoinRight:
		return sqlast.JoinRight
	case queryir.JoinFull:
		return sqlast.JoinFull
	case queryir.JoinCross:
		return sqlast.JoinCross
	}
	return sqlast.JoinInner
}

// entityGroup creates the table group of an entity.
//
// The primary table is the root table for single-table and joined
// hierarchies. Joined hierarchies get an inner table join per type between
// the root and the entity (used from the start) and a lazy left table join
// per subtype of the entity. Secondary tables of every type in the
// entity's chain and subtree are lazy left table joins.
func (t *translation) entityGroup(nav *queryir.NavigablePath, e *mm.Entity, stemName string) *sqlast.TableGroup {
	stem := t.aliases.stem(stemName)
	aliases := &tableAliases{stem: stem}
	root := e.Root()
	primary := &sqlast.NamedTableReference{Table: e.PrimaryTable(), Alias: aliases.alias()}
	if e.Strategy() == mm.InheritanceJoined {
		primary.Table = root.Table
	}
	g := sqlast.NewTableGroup(nav.Full(), stem, primary)
	g.Entity = e
	t.tables[g] = aliases
	t.addEntityTables(g, e, primary, aliases)
	return g
}

func (t *translation) addEntityTables(g *sqlast.TableGroup, e *mm.Entity, primary *sqlast.NamedTableReference, aliases *tableAliases) {
	id := e.Identifier()
	pk := col(primary, id.Column, id.Type)
	if e.Strategy() == mm.InheritanceJoined {
		chain := append([]*mm.Entity{e}, e.Supertypes()...)
		slices.Reverse(chain)
		for _, s := range chain {
			if s.Table == primary.Table {
				continue
			}
			ref := &sqlast.NamedTableReference{Table: s.Table, Alias: aliases.alias()}
			tj := &sqlast.TableReferenceJoin{Type: sqlast.JoinInner, Table: ref, Predicate: eq(col(ref, id.Column, id.Type), pk), Subtype: s}
			tj.MarkUsed()
			g.TableJoins = append(g.TableJoins, tj)
		}
		for _, s := range e.Subtree()[1:] {
			ref := &sqlast.NamedTableReference{Table: s.Table, Alias: aliases.alias()}
			g.TableJoins = append(g.TableJoins, &sqlast.TableReferenceJoin{
				Type: sqlast.JoinLeft, Table: ref, Predicate: eq(col(ref, id.Column, id.Type), pk), Subtype: s,
			})
		}
	}
	seen := map[string]bool{}
	types := append(e.Supertypes(), e.Subtree()...)
	for _, s := range types {
		for _, st := range s.SecondaryTables {
			if seen[st.Name] {
				continue
			}
			seen[st.Name] = true
			ref := &sqlast.NamedTableReference{Table: st.Name, Alias: aliases.alias()}
			g.TableJoins = append(g.TableJoins, &sqlast.TableReferenceJoin{
				Type: sqlast.JoinLeft, Table: ref, Predicate: eq(col(ref, st.KeyColumn, id.Type), pk),
			})
		}
	}
}

// rootRef returns the reference of the hierarchy root table of an entity
// group, which carries the identifier.
func (t *translation) rootRef(g *sqlast.TableGroup) *sqlast.NamedTableReference {
	ref := g.TableReference(g.Entity.Root().Table)
	if ref == nil {
		t.interpretationFailure(g.Path, "no root table %s in group %s", g.Entity.Root().Table, g.Alias)
	}
	return ref
}

// idColumn references the identifier of an entity group.
func (t *translation) idColumn(g *sqlast.TableGroup) *sqlast.ColumnReference {
	id := g.Entity.Identifier()
	g.Resolve(sqlast.ResolvedMinimal)
	return col(t.rootRef(g), id.Column, id.Type)
}

// attributeColumns references the columns of an attribute of the group's
// entity, marking secondary and subclass tables used.
func (t *translation) attributeColumns(g *sqlast.TableGroup, owner *mm.Entity, a *mm.Attribute) (*sqlast.NamedTableReference, []string) {
	table := owner.TableOf(a)
	ref := g.TableReference(table)
	if ref == nil {
		t.interpretationFailure(g.Path, "attribute %s maps to table %s, which group %s does not join", a.Name, table, g.Alias)
	}
	minimal := a == owner.Identifier() || a.IsOwningToOne()
	if minimal {
		g.Resolve(sqlast.ResolvedMinimal)
	} else {
		g.Resolve(sqlast.ResolvedFull)
	}
	return ref, a.Columns()
}

// registerGroup records bookkeeping shared by every group.
func (t *translation) registerGroup(g *sqlast.TableGroup, s *queryScope) {
	t.groupScope[g] = s
	t.allGroups = append(t.allGroups, g)
}

// baseRestrictions returns the catalog restrictions of an entity group.
func (t *translation) baseRestrictions(g *sqlast.TableGroup) []sqlast.Predicate {
	if g.Entity == nil {
		return nil
	}
	var out []sqlast.Predicate
	ref := t.rootRef(g)
	for _, r := range g.Entity.BaseRestrictions() {
		c := col(ref, r.Column, nil)
		if r.IsNull {
			out = append(out, &sqlast.Nullness{Expr: c})
			continue
		}
		out = append(out, eq(c, &sqlast.Literal{Value: r.Value, Type: literalType(r.Value)}))
	}
	return out
}

// subtypeRestriction returns the restriction a group of a single-table
// subtype needs, or nil.
func (t *translation) subtypeRestriction(g *sqlast.TableGroup) sqlast.Predicate {
	e := g.Entity
	if e == nil || e.Strategy() != mm.InheritanceSingleTable || e == e.Root() {
		return nil
	}
	return t.typeRestriction(g, e.Subtree())
}

func (t *translation) declareAlias(s *queryScope, e *aliasEntry) {
	if !s.index.RegisterAlias(e) {
		t.fail(ErrCodeUnsupported, "alias %q declared twice", e.alias)
	}
}

// fromRoot translates a from-clause root and the joins below it.
func (t *translation) fromRoot(f queryir.From, s *queryScope) {
	var entry *aliasEntry
	switch r := f.(type) {
	case *queryir.EntityRoot:
		e := t.entity(r.Entity)
		nav := queryir.NewRootPath(e.Name, r.Alias)
		g := t.entityGroup(nav, e, e.Name)
		entry = &aliasEntry{alias: r.Alias, kind: aliasEntity, nav: nav, group: g}
		t.declareAlias(s, entry)
		t.addRoot(g, nav, s)
		s.restrictions = append(s.restrictions, t.baseRestrictions(g)...)
		if e.Strategy() == mm.InheritanceSingleTable && e != e.Root() {
			t.uses.Register(g, UseTreat, e)
		}
	case *queryir.DerivedRoot:
		entry = t.derivedTable(r.Alias, r.Query, r.Lateral)
	case *queryir.FunctionRoot:
		entry = t.functionTable(r.Alias, r.Function, r.Args, r.Columns, r.Lateral)
	case *queryir.CteRoot:
		entry = t.cteTable(r.Alias, r.Name)
	default:
		t.fail(ErrCodeUnsupported, "unsupported from-clause root %T", f)
	}
	if entry.kind == aliasVirtual {
		t.declareAlias(s, entry)
		t.addRoot(entry.group, entry.nav, s)
	}
	t.joins(f.Base().Joins, entry, s)
}

func (t *translation) addRoot(g *sqlast.TableGroup, nav *queryir.NavigablePath, s *queryScope) {
	s.index.Register(nav, g)
	s.spec.Roots = append(s.spec.Roots, g)
	t.registerGroup(g, s)
}

func (t *translation) joins(joins []queryir.Join, parent *aliasEntry, s *queryScope) {
	for i, j := range joins {
		t.at(fmt.Sprintf("join[%d]", i), func() {
			entry := t.join(j, parent, s)
			t.joins(j.Base().Joins, entry, s)
		})
	}
}

// join translates one explicit join hanging off parent.
func (t *translation) join(j queryir.Join, parent *aliasEntry, s *queryScope) *aliasEntry {
	alias := j.Base().Alias
	typ := sqlJoinType(j.JoinKind())
	switch jn := j.(type) {
	case *queryir.AttributeJoin:
		return t.attributeJoin(jn, parent, s)

	case *queryir.EntityJoin, *queryir.CrossJoin:
		var name string
		var on queryir.Predicate
		if ej, ok := jn.(*queryir.EntityJoin); ok {
			name, on = ej.Entity, ej.On
		} else {
			name = jn.(*queryir.CrossJoin).Entity
		}
		e := t.entity(name)
		nav := queryir.NewRootPath(e.Name, alias)
		g := t.entityGroup(nav, e, e.Name)
		entry := &aliasEntry{alias: alias, kind: aliasEntity, nav: nav, group: g}
		t.declareAlias(s, entry)
		join := sqlast.NewTableGroupJoin(nav.Full(), typ, g, nil)
		join.NonReusable = true
		t.addJoin(parent.group, join, nav, s)
		if typ == sqlast.JoinCross {
			s.restrictions = append(s.restrictions, t.baseRestrictions(g)...)
			if r := t.subtypeRestriction(g); r != nil {
				s.restrictions = append(s.restrictions, r)
			}
			return entry
		}
		if on == nil {
			t.fail(ErrCodeMissingJoinCondition, "%s join of entity %s (alias %q) has no ON condition", j.JoinKind(), e.Name, alias)
		}
		t.onCondition(join, parent.group, on, s)
		join.AddPredicate(sqlast.Conjoin(t.baseRestrictions(g)...))
		join.AddPredicate(t.subtypeRestriction(g))
		return entry

	case *queryir.DerivedJoin:
		entry := t.derivedTable(alias, jn.Query, jn.Lateral)
		return t.virtualJoin(entry, parent, typ, jn.Lateral, jn.On, s)
	case *queryir.FunctionJoin:
		entry := t.functionTable(alias, jn.Function, jn.Args, jn.Columns, jn.Lateral)
		return t.virtualJoin(entry, parent, typ, jn.Lateral, jn.On, s)
	case *queryir.CteJoin:
		entry := t.cteTable(alias, jn.Name)
		return t.virtualJoin(entry, parent, typ, false, jn.On, s)

	case *queryir.PluralPartJoin:
		if parent.attr == nil || parent.attr.Kind != mm.AttributePlural {
			t.fail(ErrCodeUnsupported, "plural part join %q needs a plural join as parent", alias)
		}
		if jn.Part == queryir.PartIndex && parent.attr.IndexColumn == "" {
			t.fail(ErrCodeUnsupported, "collection %s has no index", parent.attr.Name)
		}
		kind := aliasIndex
		if jn.Part == queryir.PartElement {
			kind = parent.kind
		}
		entry := &aliasEntry{alias: alias, kind: kind, nav: parent.nav.Append(jn.Part.String()), group: parent.group, attr: parent.attr, columns: parent.columns}
		t.declareAlias(s, entry)
		return entry
	}
	t.fail(ErrCodeUnsupported, "unsupported join %T", j)
	return nil
}

// virtualJoin attaches a derived, function or cte table as a join.
func (t *translation) virtualJoin(entry *aliasEntry, parent *aliasEntry, typ sqlast.JoinType, lateral bool, on queryir.Predicate, s *queryScope) *aliasEntry {
	t.declareAlias(s, entry)
	join := sqlast.NewTableGroupJoin(entry.nav.Full(), typ, entry.group, nil)
	join.NonReusable = true
	t.addJoin(parent.group, join, entry.nav, s)
	if on == nil {
		if typ != sqlast.JoinCross && !lateral {
			t.fail(ErrCodeMissingJoinCondition, "%s join %q has no ON condition", typ, entry.alias)
		}
		return entry
	}
	t.onCondition(join, parent.group, on, s)
	return entry
}

// addJoin attaches join below parent and registers its group.
func (t *translation) addJoin(parent *sqlast.TableGroup, join *sqlast.TableGroupJoin, nav *queryir.NavigablePath, s *queryScope) {
	parent.AddJoin(join)
	t.edges[join.Group] = join
	s.index.Register(nav, join.Group)
	t.registerGroup(join.Group, s)
}

// onCondition translates an explicit ON predicate as its own conjunct.
// Implicit joins discovered meanwhile are nested inside the join.
func (t *translation) onCondition(join *sqlast.TableGroupJoin, parent *sqlast.TableGroup, on queryir.Predicate, s *queryScope) {
	savedJoin, savedParent := s.onJoin, s.onParent
	s.onJoin, s.onParent = join, parent
	defer func() { s.onJoin, s.onParent = savedJoin, savedParent }()
	t.at("on", func() {
		t.in(clauseOn, func() { join.AddPredicate(t.conjunct(on)) })
	})
}

// attributeJoin joins an association or collection of parent.
func (t *translation) attributeJoin(j *queryir.AttributeJoin, parent *aliasEntry, s *queryScope) *aliasEntry {
	if parent.kind != aliasEntity {
		t.fail(ErrCodeUnsupported, "cannot join attribute %s of %q: not an entity", j.Attribute, parent.alias)
	}
	owner := parent.group.Entity
	a := t.resolveJoinAttribute(owner, j.Attribute)
	nav := parent.nav.AppendAliased(j.Attribute, j.Alias)
	typ := sqlJoinType(j.JoinKind())
	kind := aliasEntity
	if a.Kind == mm.AttributePlural && a.TargetEntity == nil {
		kind = aliasElements
	}

	if j.Alias == "" {
		if existing := s.index.Find(nav); existing != nil {
			if join := t.edges[existing]; join != nil {
				join.RequestType(typ)
				join.Fetched = join.Fetched || j.Fetch
			}
			return &aliasEntry{kind: kind, nav: nav, group: existing, attr: a}
		}
	}

	var g *sqlast.TableGroup
	var pred sqlast.Predicate
	switch {
	case a.Kind == mm.AttributeToOne || a.Kind == mm.AttributePlural && a.TargetEntity != nil:
		target := a.TargetEntity
		if j.Treat != "" {
			target = t.treatTarget(a.TargetEntity, j.Treat)
		}
		g, pred = t.associationGroup(nav, parent.group, owner, a, target)
	case a.Kind == mm.AttributePlural:
		g, pred = t.elementGroup(nav, parent.group, a)
	default:
		t.fail(ErrCodeUnsupported, "cannot join %s attribute %s", kindName(a), a.Name)
	}

	entry := &aliasEntry{alias: j.Alias, kind: kind, nav: nav, group: g, attr: a}
	t.declareAlias(s, entry)
	join := sqlast.NewTableGroupJoin(nav.Full(), typ, g, pred)
	join.Fetched = j.Fetch
	t.joinAttrs[join] = a
	t.addJoin(parent.group, join, nav, s)
	if g.Entity != nil {
		join.AddPredicate(sqlast.Conjoin(t.baseRestrictions(g)...))
		if j.Treat != "" && g.Entity.Strategy() == mm.InheritanceSingleTable {
			t.uses.Register(g, UseTreat, g.Entity)
		} else {
			join.AddPredicate(t.subtypeRestriction(g))
		}
	}
	if j.On != nil {
		t.onCondition(join, parent.group, j.On, s)
	}
	return entry
}

func kindName(a *mm.Attribute) string {
	switch a.Kind {
	case mm.AttributeBasic:
		return "basic"
	case mm.AttributeEmbedded:
		return "embedded"
	case mm.AttributeToOne:
		return "to-one"
	}
	return "plural"
}

// resolveJoinAttribute resolves a possibly dotted attribute name through
// embeddables to an association or collection.
func (t *translation) resolveJoinAttribute(owner *mm.Entity, dotted string) *mm.Attribute {
	names := strings.Split(dotted, ".")
	a := owner.Attribute(names[0])
	if a == nil {
		t.fail(ErrCodeUnknownReference, "entity %s has no attribute %q", owner.Name, names[0])
	}
	for _, n := range names[1:] {
		if a.Kind != mm.AttributeEmbedded {
			t.fail(ErrCodeUnsupported, "cannot dereference %s attribute %s", kindName(a), a.Name)
		}
		next := a.EmbeddableType.Attribute(n)
		if next == nil {
			t.fail(ErrCodeUnknownReference, "embeddable %s has no attribute %q", a.EmbeddableType.Name, n)
		}
		a = next
	}
	return a
}

// treatTarget resolves the entity of a treat and checks it narrows from.
func (t *translation) treatTarget(from *mm.Entity, name string) *mm.Entity {
	target := t.entity(name)
	if !target.IsSubtypeOf(from) && !from.IsSubtypeOf(target) {
		t.fail(ErrCodeUnknownReference, "cannot treat %s as unrelated entity %s", from.Name, target.Name)
	}
	if from.IsSubtypeOf(target) {
		return from
	}
	return target
}

// associationGroup creates the group of an association's target and the
// join predicate connecting it to the owner.
func (t *translation) associationGroup(nav *queryir.NavigablePath, ownerGroup *sqlast.TableGroup, owner *mm.Entity, a *mm.Attribute, target *mm.Entity) (*sqlast.TableGroup, sqlast.Predicate) {
	if a.Kind == mm.AttributePlural && a.MappedBy == "" {
		return t.linkGroup(nav, ownerGroup, a, target)
	}
	g := t.entityGroup(nav, target, a.Name)
	return g, t.associationPredicate(ownerGroup, owner, a, g)
}

// associationPredicate connects an owner group with the target group of a
// to-one or a mappedBy collection.
func (t *translation) associationPredicate(ownerGroup *sqlast.TableGroup, owner *mm.Entity, a *mm.Attribute, g *sqlast.TableGroup) sqlast.Predicate {
	if a.IsOwningToOne() {
		ref, cols := t.attributeColumns(ownerGroup, owner, a)
		return eq(t.idColumn(g), col(ref, cols[0], g.Entity.Identifier().Type))
	}
	inverse := a.Inverse()
	if inverse == nil {
		t.interpretationFailure(g.Path, "association %s has no owning side", a.Name)
	}
	ref, cols := t.attributeColumns(g, g.Entity, inverse)
	return eq(col(ref, cols[0], owner.Identifier().Type), t.idColumn(ownerGroup))
}

// linkGroup creates the group of a collection mapped through a link table:
// the link table is primary and the target tables hang off it.
func (t *translation) linkGroup(nav *queryir.NavigablePath, ownerGroup *sqlast.TableGroup, a *mm.Attribute, target *mm.Entity) (*sqlast.TableGroup, sqlast.Predicate) {
	stem := t.aliases.stem(a.Name)
	aliases := &tableAliases{stem: stem}
	link := &sqlast.NamedTableReference{Table: a.CollectionTable, Alias: aliases.alias()}
	g := sqlast.NewTableGroup(nav.Full(), stem, link)
	g.Entity = target
	g.Attribute = a
	t.tables[g] = aliases

	id := target.Identifier()
	rootTable := &sqlast.NamedTableReference{Table: target.Root().Table, Alias: aliases.alias()}
	rootJoin := &sqlast.TableReferenceJoin{
		Type:      sqlast.JoinInner,
		Table:     rootTable,
		Predicate: eq(col(rootTable, id.Column, id.Type), col(link, a.InverseColumn, id.Type)),
	}
	rootJoin.MarkUsed()
	g.TableJoins = append(g.TableJoins, rootJoin)
	t.addEntityTables(g, target, rootTable, aliases)

	ownerID := t.idColumn(ownerGroup)
	return g, eq(col(link, a.KeyColumn, ownerID.Type), ownerID)
}

// elementGroup creates the group of a collection of basic values.
func (t *translation) elementGroup(nav *queryir.NavigablePath, ownerGroup *sqlast.TableGroup, a *mm.Attribute) (*sqlast.TableGroup, sqlast.Predicate) {
	stem := t.aliases.stem(a.Name)
	aliases := &tableAliases{stem: stem}
	ref := &sqlast.NamedTableReference{Table: a.CollectionTable, Alias: aliases.alias()}
	g := sqlast.NewTableGroup(nav.Full(), stem, ref)
	g.Attribute = a
	t.tables[g] = aliases
	ownerID := t.idColumn(ownerGroup)
	return g, eq(col(ref, a.KeyColumn, ownerID.Type), ownerID)
}

// derivedTable translates a subquery in the from clause.
func (t *translation) derivedTable(alias string, q queryir.QueryPart, lateral bool) *aliasEntry {
	if lateral && !t.dialect.SupportsLateral() {
		t.fail(ErrCodeLateralUnsupported, "dialect %s does not support lateral joins", t.dialect.Name())
	}
	var part sqlast.QueryPart
	var info *partInfo
	t.at("subquery", func() {
		part, info = t.queryPart(q, partOptions{correlated: lateral})
	})
	stem := t.aliases.stem("derived")
	aliases := &tableAliases{stem: stem}
	ref := &sqlast.DerivedTableReference{Query: part, Alias: aliases.alias(), Columns: outputNames(info.outputs), Lateral: lateral}
	nav := queryir.NewRootPath("{derived}", alias)
	g := sqlast.NewTableGroup(nav.Full(), stem, ref)
	t.tables[g] = aliases
	return &aliasEntry{alias: alias, kind: aliasVirtual, nav: nav, group: g, columns: info.outputs}
}

// functionTable translates a set-returning function in the from clause.
func (t *translation) functionTable(alias, fn string, args []queryir.Expression, cols []queryir.ColumnDef, lateral bool) *aliasEntry {
	if lateral && !t.dialect.SupportsLateral() {
		t.fail(ErrCodeLateralUnsupported, "dialect %s does not support lateral joins", t.dialect.Name())
	}
	var sqlArgs []sqlast.Expression
	for i, a := range args {
		t.at(fmt.Sprintf("arg[%d]", i), func() { sqlArgs = append(sqlArgs, t.expression(a)) })
	}
	var outputs []virtualColumn
	for _, c := range cols {
		outputs = append(outputs, virtualColumn{Name: c.Name, Columns: []string{c.Name}, Type: mm.Basic(c.Kind)})
	}
	stem := t.aliases.stem(fn)
	aliases := &tableAliases{stem: stem}
	ref := &sqlast.FunctionTableReference{Function: fn, Args: sqlArgs, Alias: aliases.alias(), Columns: outputNames(outputs), Lateral: lateral}
	nav := queryir.NewRootPath("{function:"+fn+"}", alias)
	g := sqlast.NewTableGroup(nav.Full(), stem, ref)
	t.tables[g] = aliases
	return &aliasEntry{alias: alias, kind: aliasVirtual, nav: nav, group: g, columns: outputs}
}

// cteTable reads a common table expression visible from the current scope.
func (t *translation) cteTable(alias, name string) *aliasEntry {
	stmt := t.lookupCte(name)
	if stmt == nil {
		t.interpretationFailure(name, "no common table expression named %q is visible", name)
	}
	var outputs []virtualColumn
	for _, c := range stmt.Table.Columns {
		outputs = append(outputs, virtualColumn{Name: c.Name, Columns: []string{c.Name}, Type: c.Type})
	}
	stem := t.aliases.stem(stmt.Name())
	aliases := &tableAliases{stem: stem}
	ref := &sqlast.CteTableReference{Name: stmt.Name(), Alias: aliases.alias()}
	nav := queryir.NewRootPath("{cte:"+name+"}", alias)
	g := sqlast.NewTableGroup(nav.Full(), stem, ref)
	t.tables[g] = aliases
	return &aliasEntry{alias: alias, kind: aliasVirtual, nav: nav, group: g, columns: outputs}
}

func outputNames(outputs []virtualColumn) []string {
	var names []string
	for _, o := range outputs {
		names = append(names, o.Columns...)
	}
	return names
}
