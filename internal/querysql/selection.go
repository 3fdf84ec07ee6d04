package querysql

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	mm "github.com/roach88/ormsql/internal/metamodel"
	"github.com/roach88/ormsql/internal/queryir"
	"github.com/roach88/ormsql/internal/sqlast"
)

// projection is an entity selected by a top-level query. Its select item is
// a placeholder until pruning has decided which subtype tables survive;
// expandProjections then replaces it with the entity's columns.
type projection struct {
	spec   *sqlast.QuerySpec
	index  int
	group  *sqlast.TableGroup
	entity *mm.Entity
}

// selection translates one select item.
//
// At the top level an entity-valued item selects the whole entity and is
// recorded as an entity result for fetch planning. Inside subqueries,
// derived tables and CTEs it exports the identifier, typed as the entity so
// that readers of the derived table can navigate through it.
func (t *translation) selection(sel queryir.Selection, i int, s *queryScope) {
	name := t.outputName(sel, i, s)
	if p, ok := sel.Expr.(*queryir.Path); ok {
		n := t.resolvePath(p)
		if s.opts.top && n.state == stateAssociation {
			n = t.navigate(n)
		}
		if s.opts.top && n.state == stateEntity {
			t.selectEntity(n, name, s)
			return
		}
		t.selectValue(t.pathValue(n), name, sel.Alias, s)
		return
	}
	var e sqlast.Expression
	t.infer.with(nil, func() { e = t.expression(sel.Expr) })
	t.selectValue(e, name, sel.Alias, s)
}

// outputName names a select item: the CTE column name, the item's alias,
// the last attribute of a path, or its position. Names are unique within
// a query.
func (t *translation) outputName(sel queryir.Selection, i int, s *queryScope) string {
	name := fmt.Sprintf("c%d", i)
	switch {
	case i < len(s.opts.names):
		name = s.opts.names[i]
	case sel.Alias != "":
		name = sel.Alias
	default:
		if p, ok := sel.Expr.(*queryir.Path); ok {
			for j := len(p.Steps) - 1; j >= 0; j-- {
				if a := p.Steps[j].Attribute; a != "" {
					name = a
					break
				}
			}
			if len(p.Steps) == 0 {
				name = p.Alias
			}
		}
	}
	for _, o := range s.outputs {
		if o.Name == name {
			return fmt.Sprintf("%s_%d", name, i)
		}
	}
	return name
}

func (t *translation) selectEntity(n *pathNode, name string, s *queryScope) {
	g, e := n.group, n.entity
	t.uses.Register(g, UseProjection, e)
	g.Resolve(sqlast.ResolvedFull)
	t.projections = append(t.projections, &projection{spec: s.spec, index: len(s.spec.Select), group: g, entity: e})
	s.spec.Select = append(s.spec.Select, sqlast.SqlSelection{Expr: t.idColumn(g)})
	s.outputs = append(s.outputs, virtualColumn{Name: name, Columns: []string{name}, Type: e})
	s.results = append(s.results, &EntityResult{Alias: name, Nav: n.nav, Entity: e, Group: g})
}

// selectValue adds a value to the select list. Row values are spread over
// one column per component. Nested queries alias every column so that
// derived tables can be read by name; top-level columns keep the alias the
// query gave them, if any.
func (t *translation) selectValue(e sqlast.Expression, name, alias string, s *queryScope) {
	parts := sqlast.Flatten(e)
	cols := []string{name}
	if len(parts) > 1 {
		cols = componentNames(name, e, len(parts))
	}
	for i, p := range parts {
		sel := sqlast.SqlSelection{Expr: p, Alias: cols[i]}
		if s.opts.top {
			sel.Alias = ""
			if len(parts) == 1 {
				sel.Alias = alias
			}
		}
		s.spec.Select = append(s.spec.Select, sel)
	}
	s.outputs = append(s.outputs, virtualColumn{Name: name, Columns: cols, Type: e.ExprType()})
}

// componentNames names the columns of a row value: after the embeddable's
// leaf paths when the value is an embeddable, by position otherwise.
func componentNames(name string, e sqlast.Expression, n int) []string {
	out := make([]string, n)
	if emb, ok := e.ExprType().(*mm.Embeddable); ok {
		if leaves := emb.Leaves(); len(leaves) == n {
			for i, l := range leaves {
				out[i] = name + "_" + strings.Join(l.Path, "_")
			}
			return out
		}
	}
	for i := range out {
		out[i] = fmt.Sprintf("%s_%d", name, i)
	}
	return out
}

// expandProjections replaces the placeholder of every selected entity with
// its columns. Placeholders are replaced from the back of each select list
// so earlier indexes stay valid.
func (t *translation) expandProjections() {
	bySpec := map[*sqlast.QuerySpec][]*projection{}
	var specs []*sqlast.QuerySpec
	for _, p := range t.projections {
		if _, ok := bySpec[p.spec]; !ok {
			specs = append(specs, p.spec)
		}
		bySpec[p.spec] = append(bySpec[p.spec], p)
	}
	for _, spec := range specs {
		ps := bySpec[spec]
		slices.SortFunc(ps, func(a, b *projection) int { return cmp.Compare(b.index, a.index) })
		for _, p := range ps {
			cols := t.entityColumns(p.group, p.entity)
			spec.Select = slices.Replace(spec.Select, p.index, p.index+1, cols...)
		}
	}
}

// entityColumns lists the columns that load an entity: the identifier, the
// concrete type when the hierarchy has several, then every mapped column of
// the entity and of the subtypes that survived pruning.
func (t *translation) entityColumns(g *sqlast.TableGroup, e *mm.Entity) []sqlast.SqlSelection {
	allowed := t.narrowed[g]
	types := []*mm.Entity{e}
	for _, s := range e.Subtree()[1:] {
		if allowed == nil || slices.Contains(allowed, s) {
			types = append(types, s)
		}
	}

	out := []sqlast.SqlSelection{{Expr: t.idColumn(g)}}
	if len(types) > 1 {
		out = append(out, sqlast.SqlSelection{Expr: t.typeExpression(g, e)})
	}

	seen := map[string]bool{}
	add := func(ref *sqlast.NamedTableReference, column string, typ mm.Type) {
		key := ref.Alias + "." + column
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, sqlast.SqlSelection{Expr: col(ref, column, typ)})
	}
	id := e.Identifier()
	for i, typ := range types {
		attrs := typ.Attributes
		if i == 0 {
			attrs = typ.AllAttributes()
		}
		for _, a := range attrs {
			if a == id {
				continue
			}
			switch {
			case a.Kind == mm.AttributeBasic:
				add(t.tableFor(g, typ, a), a.Column, a.Type)
			case a.Kind == mm.AttributeEmbedded:
				ref := t.tableFor(g, typ, a)
				for _, l := range a.EmbeddableType.Leaves() {
					add(ref, l.Attribute.Column, l.Attribute.Type)
				}
			case a.IsOwningToOne():
				add(t.tableFor(g, typ, a), a.JoinColumn, a)
			}
		}
	}
	return out
}

func (t *translation) tableFor(g *sqlast.TableGroup, owner *mm.Entity, a *mm.Attribute) *sqlast.NamedTableReference {
	table := owner.TableOf(a)
	ref := g.TableReference(table)
	if ref == nil {
		t.interpretationFailure(g.Path, "group %s does not join table %s of %s.%s", g.Alias, table, owner.Name, a.Name)
	}
	return ref
}
