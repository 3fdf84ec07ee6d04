package sqlrender

import (
	"testing"

	pg_query "github.com/pganalyze/pg_query_go/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xwb1989/sqlparser"

	"github.com/roach88/ormsql/internal/ir"
	mm "github.com/roach88/ormsql/internal/metamodel"
	"github.com/roach88/ormsql/internal/queryir"
	"github.com/roach88/ormsql/internal/querysql"
	"github.com/roach88/ormsql/internal/sqlast"
	"github.com/roach88/ormsql/internal/testutil"
)

func col(qualifier, column string) *sqlast.ColumnReference {
	return &sqlast.ColumnReference{Qualifier: qualifier, Column: column}
}

func lit(v ir.IRValue) *sqlast.Literal {
	return &sqlast.Literal{Value: v}
}

func param(name string) *sqlast.JdbcParameter {
	return &sqlast.JdbcParameter{Param: name, ValueIndex: -1, Component: -1}
}

func eq(l, r sqlast.Expression) *sqlast.Comparison {
	return &sqlast.Comparison{Left: l, Op: sqlast.OpEq, Right: r}
}

func table(name, alias string) *sqlast.TableGroup {
	stem := alias[:len(alias)-2]
	return sqlast.NewTableGroup(name, stem, &sqlast.NamedTableReference{Table: name, Alias: alias})
}

func sel(exprs ...sqlast.Expression) []sqlast.SqlSelection {
	out := make([]sqlast.SqlSelection, len(exprs))
	for i, e := range exprs {
		out[i] = sqlast.SqlSelection{Expr: e}
	}
	return out
}

// contactQuery reads contacts with their secondary table, filtered by a
// parameter and limited by a literal.
func contactQuery() *sqlast.SelectStatement {
	g := table("contacts", "c1_0")
	supp := &sqlast.TableReferenceJoin{
		Type:      sqlast.JoinLeft,
		Table:     &sqlast.NamedTableReference{Table: "contact_supp", Alias: "c1_1"},
		Predicate: eq(col("c1_0", "id"), col("c1_1", "id")),
	}
	supp.MarkUsed()
	g.TableJoins = append(g.TableJoins, supp)
	return &sqlast.SelectStatement{Query: &sqlast.QuerySpec{
		Roots:  []*sqlast.TableGroup{g},
		Select: sel(col("c1_0", "id"), col("c1_0", "firstname")),
		Where: sqlast.Conjoin(
			eq(col("c1_0", "firstname"), param("name")),
			&sqlast.Nullness{Expr: col("c1_1", "birthday"), Negated: true},
		),
		OrderBy: []sqlast.SortSpec{{Expr: col("c1_0", "id")}},
		Fetch:   lit(ir.IRInt(10)),
	}}
}

func TestRender_Select(t *testing.T) {
	tests := []struct {
		name    string
		dialect mm.Dialect
		want    string
	}{
		{
			name:    "sqlite",
			dialect: mm.SQLite(),
			want: "select c1_0.id, c1_0.firstname from contacts c1_0" +
				" left join contact_supp c1_1 on c1_0.id = c1_1.id" +
				" where (c1_0.firstname = ? and c1_1.birthday is not null)" +
				" order by c1_0.id limit ?",
		},
		{
			name:    "postgresql",
			dialect: mm.PostgreSQL(),
			want: "select c1_0.id, c1_0.firstname from contacts c1_0" +
				" left join contact_supp c1_1 on c1_0.id = c1_1.id" +
				" where (c1_0.firstname = $1 and c1_1.birthday is not null)" +
				" order by c1_0.id limit $2",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Render(contactQuery(), tt.dialect)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.SQL)
			require.Len(t, out.Params, 2)
			assert.Equal(t, "name", out.Params[0].Param)
			assert.Nil(t, out.Params[1])
			assert.Equal(t, []any{nil, int64(10)}, out.Literals)
		})
	}
}

func TestRender_UnusedTableJoinIsSkipped(t *testing.T) {
	g := table("contacts", "c1_0")
	g.TableJoins = append(g.TableJoins, &sqlast.TableReferenceJoin{
		Type:      sqlast.JoinLeft,
		Table:     &sqlast.NamedTableReference{Table: "contact_supp", Alias: "c1_1"},
		Predicate: eq(col("c1_0", "id"), col("c1_1", "id")),
	})
	stmt := &sqlast.SelectStatement{Query: &sqlast.QuerySpec{
		Roots:  []*sqlast.TableGroup{g},
		Select: sel(col("c1_0", "id")),
	}}

	out, err := Render(stmt, mm.SQLite())
	require.NoError(t, err)
	assert.Equal(t, "select c1_0.id from contacts c1_0", out.SQL)
}

func TestRender_Args(t *testing.T) {
	out, err := Render(contactQuery(), mm.SQLite())
	require.NoError(t, err)

	args, err := out.Args(ir.IRObject{"name": ir.IRString("Ann")})
	require.NoError(t, err)
	assert.Equal(t, []any{"Ann", int64(10)}, args)

	_, err = out.Args(ir.IRObject{})
	assert.ErrorContains(t, err, "parameter :name is not bound")
}

func TestParameterValue(t *testing.T) {
	bindings := ir.IRObject{
		"ids":  ir.IRArray{ir.IRInt(1), ir.IRInt(2)},
		"name": ir.IRObject{"first": ir.IRString("Ann"), "last": ir.IRNull{}},
		"nested": ir.IRObject{
			"period": ir.IRObject{"from": ir.IRInt(7)},
		},
	}
	tests := []struct {
		name  string
		param *sqlast.JdbcParameter
		want  ir.IRValue
		err   string
	}{
		{"value index", &sqlast.JdbcParameter{Param: "ids", ValueIndex: 1}, ir.IRInt(2), ""},
		{"value index out of range", &sqlast.JdbcParameter{Param: "ids", ValueIndex: 2}, nil, "has no value 2"},
		{"component", &sqlast.JdbcParameter{Param: "name", ValueIndex: -1, ComponentPath: "first"}, ir.IRString("Ann"), ""},
		{"null component", &sqlast.JdbcParameter{Param: "name", ValueIndex: -1, ComponentPath: "last"}, ir.IRNull{}, ""},
		{"missing component", &sqlast.JdbcParameter{Param: "name", ValueIndex: -1, ComponentPath: "middle"}, ir.IRNull{}, ""},
		{"nested component", &sqlast.JdbcParameter{Param: "nested", ValueIndex: -1, ComponentPath: "period.from"}, ir.IRInt(7), ""},
		{"component of scalar", &sqlast.JdbcParameter{Param: "ids", ValueIndex: 0, ComponentPath: "first"}, nil, "first of a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParameterValue(tt.param, bindings)
			if tt.err != "" {
				assert.ErrorContains(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRender_Predicates(t *testing.T) {
	c := func(name string) *sqlast.ColumnReference { return col("c1_0", name) }
	tests := []struct {
		name string
		pred sqlast.Predicate
		want string
	}{
		{"null literal", eq(c("firstname"), lit(ir.IRNull{})), "c1_0.firstname = null"},
		{"empty in list", &sqlast.InList{Test: c("id")}, "1 = 0"},
		{"empty not in list", &sqlast.InList{Test: c("id"), Negated: true}, "1 = 1"},
		{"in list", &sqlast.InList{Test: c("id"), List: []sqlast.Expression{param("a"), param("b")}}, "c1_0.id in (?, ?)"},
		{
			"tuple is null",
			&sqlast.Nullness{Expr: &sqlast.Tuple{Elements: []sqlast.Expression{c("firstname"), c("lastname")}}},
			"(c1_0.firstname is null and c1_0.lastname is null)",
		},
		{
			"tuple is not null",
			&sqlast.Nullness{Expr: &sqlast.Tuple{Elements: []sqlast.Expression{c("firstname"), c("lastname")}}, Negated: true},
			"(c1_0.firstname is not null or c1_0.lastname is not null)",
		},
		{
			"case insensitive like",
			&sqlast.Like{Expr: c("firstname"), Pattern: param("p"), CaseInsensitive: true, Negated: true},
			"lower(c1_0.firstname) not like lower(?)",
		},
		{
			"between",
			&sqlast.Between{Expr: c("id"), Low: param("lo"), High: param("hi")},
			"c1_0.id between ? and ?",
		},
		{
			"negated disjunction",
			&sqlast.Negated{Predicate: sqlast.Disjoin(eq(c("id"), param("a")), eq(c("id"), param("b")))},
			"not ((c1_0.id = ? or c1_0.id = ?))",
		},
		{"reserved column", eq(c("order"), param("o")), `c1_0."order" = ?`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt := &sqlast.SelectStatement{Query: &sqlast.QuerySpec{
				Roots:  []*sqlast.TableGroup{table("contacts", "c1_0")},
				Select: sel(c("id")),
				Where:  tt.pred,
			}}
			out, err := Render(stmt, mm.SQLite())
			require.NoError(t, err)
			assert.Equal(t, "select c1_0.id from contacts c1_0 where "+tt.want, out.SQL)
		})
	}
}

func TestRender_SetOperations(t *testing.T) {
	part := func(tableName, alias string, ordered bool) *sqlast.QuerySpec {
		s := &sqlast.QuerySpec{
			Roots:  []*sqlast.TableGroup{table(tableName, alias)},
			Select: sel(col(alias, "x")),
		}
		if ordered {
			s.OrderBy = []sqlast.SortSpec{{Expr: col(alias, "x"), Descending: true}}
		}
		return s
	}
	group := func(op sqlast.SetOperator) *sqlast.SelectStatement {
		return &sqlast.SelectStatement{Query: &sqlast.QueryGroup{
			Operator: op,
			Parts:    []sqlast.QueryPart{part("a", "a1_0", false), part("b", "b1_0", true)},
			Fetch:    lit(ir.IRInt(5)),
		}}
	}

	t.Run("sqlite reads ordered operands through a subquery", func(t *testing.T) {
		out, err := Render(group(sqlast.SetUnion), mm.SQLite())
		require.NoError(t, err)
		assert.Equal(t, "select a1_0.x from a a1_0 union select * from (select b1_0.x from b b1_0 order by b1_0.x desc) limit ?", out.SQL)
	})

	t.Run("postgresql parenthesizes operands", func(t *testing.T) {
		out, err := Render(group(sqlast.SetUnionAll), mm.PostgreSQL())
		require.NoError(t, err)
		assert.Equal(t, "(select a1_0.x from a a1_0) union all (select b1_0.x from b b1_0 order by b1_0.x desc) limit $1", out.SQL)
	})

	t.Run("sqlite has no intersect all", func(t *testing.T) {
		_, err := Render(group(sqlast.SetIntersectAll), mm.SQLite())
		assert.ErrorContains(t, err, "intersect all")
	})
}

func TestRender_DerivedTable(t *testing.T) {
	inner := &sqlast.QuerySpec{
		Roots:  []*sqlast.TableGroup{table("contacts", "c1_0")},
		Select: sel(col("c1_0", "id")),
	}
	stmt := func(lateral bool) *sqlast.SelectStatement {
		d := sqlast.NewTableGroup("d", "d1", &sqlast.DerivedTableReference{
			Query: inner, Alias: "d1_0", Columns: []string{"n"}, Lateral: lateral,
		})
		return &sqlast.SelectStatement{Query: &sqlast.QuerySpec{
			Roots:  []*sqlast.TableGroup{d},
			Select: sel(col("d1_0", "n")),
		}}
	}

	out, err := Render(stmt(false), mm.SQLite())
	require.NoError(t, err)
	assert.Equal(t, "select d1_0.n from (select c1_0.id as n from contacts c1_0) d1_0", out.SQL)

	out, err = Render(stmt(false), mm.PostgreSQL())
	require.NoError(t, err)
	assert.Equal(t, "select d1_0.n from (select c1_0.id from contacts c1_0) d1_0(n)", out.SQL)

	_, err = Render(stmt(true), mm.SQLite())
	assert.ErrorContains(t, err, "lateral")

	out, err = Render(stmt(true), mm.PostgreSQL())
	require.NoError(t, err)
	assert.Contains(t, out.SQL, "from lateral (select")
}

func TestRender_Temporal(t *testing.T) {
	starts, ends := col("e1_0", "starts_at"), col("e1_0", "ends_at")
	tests := []struct {
		name     string
		expr     sqlast.Expression
		sqlite   string
		postgres string
	}{
		{
			name:     "add days",
			expr:     &sqlast.TimestampAdd{Unit: mm.UnitDay, Magnitude: lit(ir.IRInt(3)), Timestamp: starts},
			sqlite:   "strftime('%Y-%m-%d %H:%M:%f', e1_0.starts_at, (?) || ' days')",
			postgres: "(e1_0.starts_at + $1 * interval '1 day')",
		},
		{
			name:     "add nanoseconds",
			expr:     &sqlast.TimestampAdd{Unit: mm.UnitNanosecond, Magnitude: col("e1_0", "length"), Timestamp: starts},
			sqlite:   "strftime('%Y-%m-%d %H:%M:%f', e1_0.starts_at, (e1_0.length) / 1000000000.0 || ' seconds')",
			postgres: "(e1_0.starts_at + e1_0.length * interval '1 microsecond' / 1000)",
		},
		{
			name:     "diff in seconds",
			expr:     &sqlast.TimestampDiff{Unit: mm.UnitSecond, From: starts, To: ends},
			sqlite:   "cast((julianday(e1_0.ends_at) - julianday(e1_0.starts_at)) * 86400000000000 / 1000000000 as integer)",
			postgres: "cast(floor(extract(epoch from (e1_0.ends_at - e1_0.starts_at)) * 1000000000 / 1000000000) as bigint)",
		},
		{
			name: "diff in years",
			expr: &sqlast.TimestampDiff{Unit: mm.UnitYear, From: starts, To: ends},
			sqlite: "(((cast(strftime('%Y', e1_0.ends_at) as integer) - cast(strftime('%Y', e1_0.starts_at) as integer)) * 12 + " +
				"cast(strftime('%m', e1_0.ends_at) as integer) - cast(strftime('%m', e1_0.starts_at) as integer)) / 12)",
			postgres: "(cast(extract(year from age(e1_0.ends_at, e1_0.starts_at)) * 12 + " +
				"extract(month from age(e1_0.ends_at, e1_0.starts_at)) as bigint) / 12)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt := &sqlast.SelectStatement{Query: &sqlast.QuerySpec{
				Roots:  []*sqlast.TableGroup{table("events", "e1_0")},
				Select: sel(tt.expr),
			}}
			out, err := Render(stmt, mm.SQLite())
			require.NoError(t, err)
			assert.Equal(t, "select "+tt.sqlite+" from events e1_0", out.SQL)

			out, err = Render(stmt, mm.PostgreSQL())
			require.NoError(t, err)
			assert.Equal(t, "select "+tt.postgres+" from events e1_0", out.SQL)
			_, err = pg_query.Parse(out.SQL)
			assert.NoError(t, err)
		})
	}
}

func TestRender_Mutations(t *testing.T) {
	orders := &sqlast.NamedTableReference{Table: "orders", Alias: "o1_0"}
	tests := []struct {
		name string
		stmt sqlast.Statement
		want string
	}{
		{
			name: "insert values",
			stmt: &sqlast.InsertStatement{
				Table:   &sqlast.NamedTableReference{Table: "orders"},
				Columns: []string{"id", "number"},
				Values: [][]sqlast.Expression{
					{lit(ir.IRInt(1)), param("n")},
					{lit(ir.IRInt(2)), lit(ir.IRString("B-2"))},
				},
			},
			want: "insert into orders (id, number) values ($1, $2), ($3, $4)",
		},
		{
			name: "versioned update",
			stmt: &sqlast.UpdateStatement{
				Table: orders,
				Assignments: []sqlast.Assignment{
					{Column: "number", Value: param("n")},
					{Column: "version", Value: &sqlast.BinaryArithmetic{Op: sqlast.OpAdd, Left: col("o1_0", "version"), Right: lit(ir.IRInt(1))}},
				},
				Where: eq(col("o1_0", "id"), param("id")),
			},
			want: "update orders as o1_0 set number = $1, version = (o1_0.version + $2) where o1_0.id = $3",
		},
		{
			name: "delete",
			stmt: &sqlast.DeleteStatement{Table: orders, Where: eq(col("o1_0", "id"), param("id"))},
			want: "delete from orders as o1_0 where o1_0.id = $1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Render(tt.stmt, mm.PostgreSQL())
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.SQL)
			_, err = pg_query.Parse(out.SQL)
			assert.NoError(t, err)
		})
	}
}

func TestRender_Ctes(t *testing.T) {
	ctes := sqlast.NewCteContainer(nil)
	require.NoError(t, ctes.Add(&sqlast.CteStatement{
		Table: &sqlast.CteTable{Name: "recent", Columns: []sqlast.CteColumn{{Name: "id"}}},
		Query: &sqlast.QuerySpec{
			Roots:  []*sqlast.TableGroup{table("orders", "o1_0")},
			Select: sel(col("o1_0", "id")),
		},
	}))
	stmt := &sqlast.SelectStatement{Ctes: ctes, Query: &sqlast.QuerySpec{
		Roots:  []*sqlast.TableGroup{sqlast.NewTableGroup("recent", "r1", &sqlast.CteTableReference{Name: "recent", Alias: "r1_0"})},
		Select: sel(col("r1_0", "id")),
	}}

	out, err := Render(stmt, mm.PostgreSQL())
	require.NoError(t, err)
	assert.Equal(t, "with recent(id) as (select o1_0.id from orders o1_0) select r1_0.id from recent r1_0", out.SQL)
	_, err = pg_query.Parse(out.SQL)
	assert.NoError(t, err)
}

func TestRender_UnknownDialect(t *testing.T) {
	_, err := Render(contactQuery(), fakeDialect{})
	assert.ErrorContains(t, err, `no renderer for dialect "oracle"`)
}

type fakeDialect struct{ mm.Dialect }

func (fakeDialect) Name() string { return "oracle" }

// Translated statements must be accepted by real SQL parsers: the
// PostgreSQL text by pg_query, the SQLite text by a MySQL-flavored parser
// for the constructs both dialects share.
func TestRender_TranslatedStatementsParse(t *testing.T) {
	tests := []struct {
		name   string
		model  *mm.Model
		stmt   queryir.Statement
		mysqlx bool
	}{
		{
			name:  "embedded and secondary columns",
			model: testutil.ContactModel(),
			stmt: &queryir.SelectStatement{Query: &queryir.QuerySpec{
				From:   []queryir.From{queryir.Root("Contact", "c")},
				Select: queryir.Sel(queryir.P("c.name.first"), queryir.P("c.birthday")),
				Where:  queryir.Eq(queryir.P("c.id"), queryir.Param("id")),
			}},
			mysqlx: true,
		},
		{
			name:  "inverse one-to-one",
			model: testutil.ContactModel(),
			stmt: &queryir.SelectStatement{Query: &queryir.QuerySpec{
				From:   []queryir.From{queryir.Root("Contact", "c")},
				Select: queryir.Sel(queryir.P("c.alternativeContact.name.last")),
			}},
			mysqlx: true,
		},
		{
			name:  "single table subtype",
			model: testutil.HierarchyModel(),
			stmt: &queryir.SelectStatement{Query: &queryir.QuerySpec{
				From:   []queryir.From{queryir.Root("SpecialContact", "s")},
				Select: queryir.Sel(queryir.P("s.specialField")),
			}},
			mysqlx: true,
		},
		{
			name:  "delete with soft-deleted join",
			model: testutil.OrderModel(),
			stmt: &queryir.DeleteStatement{
				Target: queryir.Root("Order", "o"),
				Where:  queryir.Eq(queryir.P("o.customer.name"), queryir.Lit("ACME")),
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := querysql.New(tt.model, querysql.WithIDGenerator(testutil.NewFixedIDGenerator("test")))
			res, err := tr.Translate(tt.stmt)
			require.NoError(t, err)

			pg, err := Render(res.Statement, mm.PostgreSQL())
			require.NoError(t, err)
			_, err = pg_query.Parse(pg.SQL)
			assert.NoError(t, err, pg.SQL)

			lite, err := Render(res.Statement, mm.SQLite())
			require.NoError(t, err)
			if tt.mysqlx {
				_, err = sqlparser.Parse(lite.SQL)
				assert.NoError(t, err, lite.SQL)
			}
		})
	}
}
