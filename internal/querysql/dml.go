package querysql

import (
	"fmt"
	"slices"

	"github.com/roach88/ormsql/internal/ir"
	mm "github.com/roach88/ormsql/internal/metamodel"
	"github.com/roach88/ormsql/internal/queryir"
	"github.com/roach88/ormsql/internal/sqlast"
)

// dmlTarget is the entity a mutation statement writes.
type dmlTarget struct {
	scope  *queryScope
	group  *sqlast.TableGroup
	entity *mm.Entity
}

// targetColumn is a column written by an insert, with the attribute it
// belongs to.
type targetColumn struct {
	attr    *mm.Attribute
	columns []string
}

// targetScope opens the scope of an update or delete: the target is the
// only root and its alias is visible to the rest of the statement.
func (t *translation) targetScope(target *queryir.EntityRoot, fn func(s *queryScope)) {
	if target == nil {
		t.fail(ErrCodeUnsupported, "mutation without target entity")
	}
	s := t.enterScope(partOptions{})
	t.in(clauseFrom, func() {
		t.at("target", func() { t.fromRoot(target, s) })
	})
	g := s.spec.Roots[0]
	t.dml = &dmlTarget{scope: s, group: g, entity: g.Entity}
	fn(s)
	s.spec.Where = sqlast.Conjoin(append([]sqlast.Predicate{s.spec.Where}, s.restrictions...)...)
	t.leaveScope(s)
}

// insertTarget checks that an entity can be inserted into with a single
// statement and resolves the listed attributes to their columns.
func (t *translation) insertTarget(target *queryir.EntityRoot, names []string) (*mm.Entity, []targetColumn) {
	if target == nil {
		t.fail(ErrCodeUnsupported, "insert without target entity")
	}
	e := t.entity(target.Entity)
	if e.Abstract {
		t.fail(ErrCodeUnsupported, "cannot insert into abstract entity %s", e.Name)
	}
	if e.Strategy() == mm.InheritanceJoined && e.PrimaryTable() != e.Root().Table {
		t.fail(ErrCodeUnsupported, "insert into %s spans the tables of its supertypes", e.Name)
	}
	var cols []targetColumn
	for _, name := range names {
		a := e.Attribute(name)
		if a == nil {
			t.fail(ErrCodeUnknownReference, "entity %s has no attribute %q", e.Name, name)
		}
		if a.Kind == mm.AttributePlural || a.Kind == mm.AttributeToOne && !a.IsOwningToOne() {
			t.fail(ErrCodeUnsupported, "cannot insert into %s attribute %s", kindName(a), a.Name)
		}
		if table := e.TableOf(a); table != e.PrimaryTable() {
			t.fail(ErrCodeUnsupported, "attribute %s maps to secondary table %s", a.Name, table)
		}
		cols = append(cols, targetColumn{attr: a, columns: a.Columns()})
	}
	return e, cols
}

// implicitInsertValues returns the columns an insert fills in on its own:
// the discriminator of a single-table hierarchy and the seed of a version
// the statement does not set.
func (t *translation) implicitInsertValues(e *mm.Entity, cols []targetColumn) ([]string, []sqlast.Expression) {
	listed := func(column string) bool {
		return slices.ContainsFunc(cols, func(c targetColumn) bool { return slices.Contains(c.columns, column) })
	}
	var names []string
	var values []sqlast.Expression
	if e.Strategy() == mm.InheritanceSingleTable && e.Discriminator() != "" && !listed(e.Discriminator()) {
		names = append(names, e.Discriminator())
		values = append(values, &sqlast.Literal{Value: ir.IRString(e.DiscriminatorValue), Type: mm.StringType})
	}
	if v := e.VersionAttribute(); v != nil && !e.IsCustomVersion() && !listed(v.Column) {
		names = append(names, v.Column)
		values = append(values, versionSeed(v))
	}
	return names, values
}

func versionSeed(v *mm.Attribute) sqlast.Expression {
	if isTemporal(basicType(v.Type)) {
		return &sqlast.Function{Name: "current_timestamp", Type: basicType(v.Type)}
	}
	return &sqlast.Literal{Value: ir.IRInt(0), Type: basicType(v.Type)}
}

func columnNames(cols []targetColumn) []string {
	var out []string
	for _, c := range cols {
		out = append(out, c.columns...)
	}
	return out
}

func (t *translation) insertValues(s *queryir.InsertValuesStatement) sqlast.Statement {
	out := &sqlast.InsertStatement{}
	out.Ctes = t.withCtes(s.With, func() {
		e, cols := t.insertTarget(s.Target, s.Columns)
		extra, extraValues := t.implicitInsertValues(e, cols)
		out.Table = &sqlast.NamedTableReference{Table: e.PrimaryTable()}
		out.Columns = append(columnNames(cols), extra...)

		// Values cannot read the target; the scope only hosts subqueries.
		scope := t.enterScope(partOptions{})
		t.in(clauseValues, func() {
			for i, row := range s.Rows {
				t.at(fmt.Sprintf("values[%d]", i), func() {
					if len(row) != len(cols) {
						t.fail(ErrCodeInsertArity, "row %d has %d values for %d attributes", i, len(row), len(cols))
					}
					var values []sqlast.Expression
					for j, v := range row {
						var x sqlast.Expression
						t.infer.with(fixedType(attributeType(cols[j].attr)), func() { x = t.expression(v) })
						parts := sqlast.Flatten(x)
						if len(parts) != len(cols[j].columns) {
							t.fail(ErrCodeInsertArity, "value %d of row %d has %d columns, attribute %s has %d",
								j, i, len(parts), cols[j].attr.Name, len(cols[j].columns))
						}
						values = append(values, parts...)
					}
					out.Values = append(out.Values, append(values, extraValues...))
				})
			}
		})
		t.leaveScope(scope)
	})
	return out
}

func (t *translation) insertSelect(s *queryir.InsertSelectStatement) sqlast.Statement {
	out := &sqlast.InsertStatement{}
	out.Ctes = t.withCtes(s.With, func() {
		e, cols := t.insertTarget(s.Target, s.Columns)
		extra, extraValues := t.implicitInsertValues(e, cols)
		out.Table = &sqlast.NamedTableReference{Table: e.PrimaryTable()}
		out.Columns = append(columnNames(cols), extra...)

		var info *partInfo
		t.at("select", func() { out.Source, info = t.queryPart(s.Query, partOptions{}) })
		width := 0
		for _, o := range info.outputs {
			width += len(o.Columns)
		}
		if want := len(columnNames(cols)); width != want {
			t.fail(ErrCodeInsertArity, "select produces %d columns, insert lists %d", width, want)
		}
		for _, v := range extraValues {
			appendConstant(out.Source, v)
		}
	})
	return out
}

// appendConstant adds a constant select item to every part of a query.
func appendConstant(q sqlast.QueryPart, v sqlast.Expression) {
	switch p := q.(type) {
	case *sqlast.QuerySpec:
		p.Select = append(p.Select, sqlast.SqlSelection{Expr: v})
	case *sqlast.QueryGroup:
		for _, part := range p.Parts {
			appendConstant(part, v)
		}
	}
}

func (t *translation) update(s *queryir.UpdateStatement) sqlast.Statement {
	out := &sqlast.UpdateStatement{}
	out.Ctes = t.withCtes(s.With, func() {
		t.targetScope(s.Target, func(scope *queryScope) {
			g := t.dml.group
			t.in(clauseSet, func() {
				for i, a := range s.Assignments {
					t.at(fmt.Sprintf("set[%d]", i), func() {
						out.Assignments = append(out.Assignments, t.assignment(g, a)...)
					})
				}
			})
			if s.Versioned {
				out.Assignments = append(out.Assignments, t.versionIncrement(g))
			}
			if s.Where != nil {
				t.at("where", func() {
					t.in(clauseWhere, func() { scope.spec.Where = t.conjunct(s.Where) })
				})
			}
		})
	})
	return out
}

// assignment translates path = value. Every column the path maps to must
// belong to the target's primary table.
func (t *translation) assignment(g *sqlast.TableGroup, a queryir.Assignment) []sqlast.Assignment {
	if a.Path == nil {
		t.fail(ErrCodeUnsupported, "assignment without target path")
	}
	target := t.pathValue(t.resolvePath(a.Path))
	var value sqlast.Expression
	t.infer.with(fixedType(target.ExprType()), func() { value = t.expression(a.Value) })

	cols, values := sqlast.Flatten(target), sqlast.Flatten(value)
	if len(cols) != len(values) {
		t.fail(ErrCodeUnsupported, "cannot assign %d values to %s (%d columns)", len(values), a.Path, len(cols))
	}
	out := make([]sqlast.Assignment, 0, len(cols))
	for i, c := range cols {
		ref, ok := c.(*sqlast.ColumnReference)
		if !ok || ref.Qualifier != g.PrimaryAlias() {
			t.fail(ErrCodeUnsupported, "cannot assign %s: not a column of table %s", a.Path, g.Primary.(*sqlast.NamedTableReference).Table)
		}
		out = append(out, sqlast.Assignment{Column: ref.Column, Value: values[i]})
	}
	return out
}

// versionIncrement bumps the version of the rows an update touches.
func (t *translation) versionIncrement(g *sqlast.TableGroup) sqlast.Assignment {
	e := g.Entity
	v := e.VersionAttribute()
	if v == nil {
		t.fail(ErrCodeNotVersioned, "entity %s has no version attribute", e.Name)
	}
	if e.IsCustomVersion() {
		t.fail(ErrCodeCustomVersion, "entity %s uses a custom version type", e.Name)
	}
	assertf(len(v.Columns()) == 1, "version of %s maps to %d columns", e.Name, len(v.Columns()))
	typ := basicType(v.Type)
	if isTemporal(typ) {
		return sqlast.Assignment{Column: v.Column, Value: &sqlast.Function{Name: "current_timestamp", Type: typ}}
	}
	ref, cols := t.attributeColumns(g, e, v)
	return sqlast.Assignment{Column: v.Column, Value: &sqlast.BinaryArithmetic{
		Op: sqlast.OpAdd, Left: col(ref, cols[0], typ),
		Right: &sqlast.Literal{Value: ir.IRInt(1), Type: typ}, Type: typ,
	}}
}

func (t *translation) delete(s *queryir.DeleteStatement) sqlast.Statement {
	out := &sqlast.DeleteStatement{}
	out.Ctes = t.withCtes(s.With, func() {
		t.targetScope(s.Target, func(scope *queryScope) {
			if s.Where != nil {
				t.at("where", func() {
					t.in(clauseWhere, func() { scope.spec.Where = t.conjunct(s.Where) })
				})
			}
		})
	})
	return out
}

// finishDML sets the table and the WHERE clause of an update or delete once
// pruning has placed its restrictions.
//
// A target that joined other tables (subclass or secondary tables, joins
// of the statement, implicit joins of the WHERE clause) cannot be written
// in place: the statement then selects the identifiers of the matching
// rows and restricts the target table to them. The subquery reuses the
// target alias, which shadows the outer one.
func (t *translation) finishDML(out sqlast.Statement) {
	var table **sqlast.NamedTableReference
	var where *sqlast.Predicate
	switch st := out.(type) {
	case *sqlast.UpdateStatement:
		table, where = &st.Table, &st.Where
	case *sqlast.DeleteStatement:
		table, where = &st.Table, &st.Where
	default:
		return
	}
	d := t.dml
	assertf(d != nil, "mutation translated without target")
	g, spec := d.group, d.scope.spec
	primary, ok := g.Primary.(*sqlast.NamedTableReference)
	assertf(ok, "mutation target %s has no physical table", g.Alias)
	*table = primary

	if len(g.Joins) == 0 && len(g.NestedJoins) == 0 && len(g.UsedTableJoins()) == 0 && len(spec.Roots) == 1 {
		*where = spec.Where
		return
	}
	id := t.idColumn(g)
	spec.Select = []sqlast.SqlSelection{{Expr: id}}
	*where = &sqlast.InSubquery{Test: col(primary, id.Column, id.Type), Query: spec}
}
