package queryir

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ormsql/internal/ir"
	mm "github.com/roach88/ormsql/internal/metamodel"
)

func TestDecodeStatement_Select(t *testing.T) {
	doc := `
select:
  distinct: true
  from:
    - entity: Contact
      as: c
      joins:
        - join: alternativeContact
          as: a
          type: left
  select:
    - c.id
    - expr: a.name.first
      as: first
  where:
    and:
      - eq: [c.name.last, {param: last}]
      - isNotNull: c.birthday
  orderBy:
    - expr: c.id
      desc: true
  fetch: 10
`
	stmt, err := DecodeStatement([]byte(doc))
	require.NoError(t, err)

	sel, ok := stmt.(*SelectStatement)
	require.True(t, ok)
	spec, ok := sel.Query.(*QuerySpec)
	require.True(t, ok)

	assert.True(t, spec.Distinct)
	require.Len(t, spec.From, 1)
	root := spec.From[0].(*EntityRoot)
	assert.Equal(t, "Contact", root.Entity)
	assert.Equal(t, "c", root.Alias)
	require.Len(t, root.Joins, 1)
	join := root.Joins[0].(*AttributeJoin)
	assert.Equal(t, "alternativeContact", join.Attribute)
	assert.Equal(t, JoinLeft, join.JoinKind())

	require.Len(t, spec.Select, 2)
	assert.Equal(t, "c.id", spec.Select[0].Expr.(*Path).String())
	assert.Equal(t, "first", spec.Select[1].Alias)

	where := spec.Where.(*Junction)
	assert.Equal(t, JunctionAnd, where.Kind)
	require.Len(t, where.Predicates, 2)
	cmp := where.Predicates[0].(*Comparison)
	assert.Equal(t, OpEq, cmp.Op)
	assert.Equal(t, &Parameter{Name: "last"}, cmp.Right)
	assert.True(t, where.Predicates[1].(*Nullness).Negated)

	require.Len(t, spec.OrderBy, 1)
	assert.True(t, spec.OrderBy[0].Descending)
	assert.Equal(t, &Literal{Value: ir.IRInt(10)}, spec.Fetch)

	assert.True(t, Validate(stmt).Valid)
}

func TestDecodeStatement_UnionWithCte(t *testing.T) {
	doc := `
with:
  - name: big
    columns: [oid]
    query:
      from: [{entity: Order, as: o}]
      select: [o.id]
select:
  unionAll:
    - from: [{cte: big, as: b}]
      select: [b.oid]
    - from: [{entity: Order, as: o}]
      select: [o.id]
  orderBy: [{expr: {lit: 1}}]
`
	stmt, err := DecodeStatement([]byte(doc))
	require.NoError(t, err)

	sel := stmt.(*SelectStatement)
	require.Len(t, sel.With, 1)
	assert.Equal(t, "big", sel.With[0].Name)
	assert.Equal(t, []string{"oid"}, sel.With[0].Columns)

	group := sel.Query.(*QueryGroup)
	assert.Equal(t, SetUnionAll, group.Operator)
	assert.Len(t, group.Parts, 2)
	assert.Len(t, group.OrderBy, 1)
}

func TestDecodeStatement_Expressions(t *testing.T) {
	doc := `
select:
  from: [{entity: Event, as: e}]
  select:
    - add: [e.startsAt, {duration: {magnitude: 3, unit: days}}]
    - by: {duration: {sub: [e.endsAt, e.startsAt]}, unit: second}
    - dur: 1h30m
    - case:
        whens:
          - when: {gt: [e.revision, 1]}
            then: {lit: many}
        else: {lit: one}
    - coalesce: [e.endsAt, {lit: "2024-01-01T00:00:00Z", kind: timestamp}]
    - fn: upper
      args: [e.name]
      returns: string
    - type: e
    - neg: e.revision
  where:
    in:
      test: e.id
      list: [{param: ids}]
`
	stmt, err := DecodeStatement([]byte(doc))
	require.NoError(t, err)
	spec := stmt.(*SelectStatement).Query.(*QuerySpec)
	require.Len(t, spec.Select, 8)

	add := spec.Select[0].Expr.(*Binary)
	assert.Equal(t, OpAdd, add.Op)
	dur := add.Right.(*Duration)
	assert.Equal(t, mm.UnitDay, dur.Unit)

	by := spec.Select[1].Expr.(*DurationBy)
	assert.Equal(t, mm.UnitSecond, by.Unit)
	assert.Equal(t, OpSubtract, by.Duration.(*Binary).Op)

	literal := spec.Select[2].Expr.(*Duration)
	assert.Equal(t, mm.UnitMinute, literal.Unit)
	assert.Equal(t, ir.IRInt(90), literal.Magnitude.(*Literal).Value)

	cs := spec.Select[3].Expr.(*CaseSearched)
	require.Len(t, cs.Whens, 1)
	assert.Equal(t, &Literal{Value: ir.IRString("one")}, cs.Else)

	co := spec.Select[4].Expr.(*Coalesce)
	ts := co.Args[1].(*Literal)
	assert.Equal(t, mm.KindTimestamp, ts.Kind)
	assert.Equal(t, ir.NewIRTimestamp(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)), ts.Value)

	fn := spec.Select[5].Expr.(*Function)
	assert.Equal(t, "upper", fn.Name)
	assert.Equal(t, mm.KindString, fn.ReturnKind)

	assert.Equal(t, "e", spec.Select[6].Expr.(*EntityTypeOf).Path.String())
	assert.IsType(t, &Negate{}, spec.Select[7].Expr)

	inList := spec.Where.(*InList)
	assert.Equal(t, []Expression{&Parameter{Name: "ids"}}, inList.List)
}

func TestDecodeStatement_Mutations(t *testing.T) {
	t.Run("insert values", func(t *testing.T) {
		stmt, err := DecodeStatement([]byte(`
insert:
  entity: SpecialContact
  columns: [id, name, specialField]
  values:
    - [1, {tuple: [{lit: Ann}, {lit: Lee}]}, {lit: x}]
`))
		require.NoError(t, err)
		ins := stmt.(*InsertValuesStatement)
		assert.Equal(t, "SpecialContact", ins.Target.Entity)
		assert.Equal(t, []string{"id", "name", "specialField"}, ins.Columns)
		require.Len(t, ins.Rows, 1)
		assert.IsType(t, &Tuple{}, ins.Rows[0][1])
	})

	t.Run("insert select", func(t *testing.T) {
		stmt, err := DecodeStatement([]byte(`
insert:
  entity: Product
  columns: [id, sku]
  query:
    from: [{entity: Product, as: p}]
    select: [{add: [p.id, 100]}, p.sku]
`))
		require.NoError(t, err)
		assert.IsType(t, &InsertSelectStatement{}, stmt)
	})

	t.Run("versioned update", func(t *testing.T) {
		stmt, err := DecodeStatement([]byte(`
update:
  entity: Order
  as: o
  versioned: true
  set:
    - path: o.placedAt
      value: {param: when}
  where: {eq: [o.customer.name, {lit: acme}]}
`))
		require.NoError(t, err)
		upd := stmt.(*UpdateStatement)
		assert.True(t, upd.Versioned)
		require.Len(t, upd.Assignments, 1)
		assert.Equal(t, "o.placedAt", upd.Assignments[0].Path.String())
	})

	t.Run("delete", func(t *testing.T) {
		stmt, err := DecodeStatement([]byte(`
delete:
  entity: Contact
  as: c
  where: {like: {expr: c.email, pattern: {lit: "%@example.com"}, ci: true}}
`))
		require.NoError(t, err)
		del := stmt.(*DeleteStatement)
		assert.True(t, del.Where.(*Like).CaseInsensitive)
	})
}

func TestDecodeStatement_Errors(t *testing.T) {
	tests := []struct {
		name  string
		doc   string
		field string
	}{
		{name: "no statement", doc: "with: []", field: ""},
		{name: "two statements", doc: "select: {}\ndelete: {}", field: ""},
		{name: "bad from", doc: "select: {from: x, select: [c]}", field: "select"},
		{name: "bad join type", doc: "select: {from: [{entity: C, as: c, joins: [{join: a, type: sideways}]}], select: [c]}", field: "select.from[0].joins[0]"},
		{name: "bad predicate", doc: "select: {from: [{entity: C, as: c}], select: [c], where: {frob: 1}}", field: "select.where"},
		{name: "bad unit", doc: "select: {from: [{entity: C, as: c}], select: [{duration: {magnitude: 1, unit: fortnight}}]}", field: "select.select[0]"},
		{name: "comparison arity", doc: "select: {from: [{entity: C, as: c}], select: [c], where: {eq: [c]}}", field: "select.where"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeStatement([]byte(tt.doc))
			require.Error(t, err)
			var de *DecodeError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, tt.field, de.Field)
		})
	}
}

func TestCoerceLiteral(t *testing.T) {
	tests := []struct {
		name  string
		value any
		kind  mm.Kind
		want  ir.IRValue
	}{
		{name: "nil", value: nil, kind: mm.KindString, want: ir.IRNull{}},
		{name: "untyped int", value: 5, want: ir.IRInt(5)},
		{name: "int as decimal", value: 5, kind: mm.KindDecimal, want: ir.IRDecimal{Value: decimal.NewFromInt(5)}},
		{name: "string as long", value: "42", kind: mm.KindLong, want: ir.IRInt(42)},
		{name: "date", value: "2024-02-29", kind: mm.KindDate, want: ir.NewIRTimestamp(time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC))},
		{name: "duration", value: "2d", kind: mm.KindDuration, want: ir.IRDuration(48 * time.Hour)},
		{name: "uuid", value: "0190f0c4-0000-7000-8000-000000000000", kind: mm.KindUUID, want: ir.IRString("0190f0c4-0000-7000-8000-000000000000")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CoerceLiteral(tt.value, tt.kind)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := CoerceLiteral(true, mm.KindTimestamp)
	assert.Error(t, err)
	_, err = CoerceLiteral("yesterday", mm.KindDate)
	assert.Error(t, err)
}

func TestDurationOf(t *testing.T) {
	tests := []struct {
		in   time.Duration
		mag  int64
		unit mm.TemporalUnit
	}{
		{in: 14 * 24 * time.Hour, mag: 2, unit: mm.UnitWeek},
		{in: 36 * time.Hour, mag: 36, unit: mm.UnitHour},
		{in: 1500 * time.Millisecond, mag: 1500, unit: mm.UnitMillisecond},
		{in: 7, mag: 7, unit: mm.UnitNanosecond},
	}
	for _, tt := range tests {
		t.Run(tt.in.String(), func(t *testing.T) {
			d := DurationOf(tt.in)
			assert.Equal(t, tt.unit, d.Unit)
			assert.Equal(t, ir.IRInt(tt.mag), d.Magnitude.(*Literal).Value)
		})
	}
}
