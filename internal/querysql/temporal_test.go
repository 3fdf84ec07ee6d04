package querysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/roach88/ormsql/internal/ir"

	mm "github.com/roach88/ormsql/internal/metamodel"
	. "github.com/roach88/ormsql/internal/queryir"
	"github.com/roach88/ormsql/internal/sqlast"
	"github.com/roach88/ormsql/internal/testutil"
)

func selectEvent(e Expression) *SelectStatement {
	return query(&QuerySpec{From: []From{Root("Event", "e")}, Select: Sel(e)})
}

func add(l, r Expression) *Binary { return &Binary{Op: OpAdd, Left: l, Right: r} }
func sub(l, r Expression) *Binary { return &Binary{Op: OpSubtract, Left: l, Right: r} }

func TestTemporal_Arithmetic(t *testing.T) {
	tests := []struct {
		name string
		expr Expression
		want string
	}{
		{
			name: "timestamp plus duration",
			expr: add(P("e.startsAt"), Dur(3, mm.UnitDay)),
			want: "timestampadd(day,3,e1_0.starts_at)",
		},
		{
			name: "duration plus timestamp",
			expr: add(Dur(3, mm.UnitDay), P("e.startsAt")),
			want: "timestampadd(day,3,e1_0.starts_at)",
		},
		{
			name: "timestamp plus a sum of durations",
			expr: add(P("e.startsAt"), add(Dur(1, mm.UnitDay), Dur(2, mm.UnitHour))),
			want: "timestampadd(hour,2,timestampadd(day,1,e1_0.starts_at))",
		},
		{
			name: "timestamp minus duration",
			expr: sub(P("e.endsAt"), Dur(2, mm.UnitHour)),
			want: "timestampadd(hour,-2,e1_0.ends_at)",
		},
		{
			name: "scaled duration",
			expr: add(P("e.startsAt"), &Binary{Op: OpMultiply, Left: Lit(2), Right: Dur(1, mm.UnitDay)}),
			want: "timestampadd(day,(2*1),e1_0.starts_at)",
		},
		{
			name: "duration column counts nanoseconds",
			expr: add(P("e.startsAt"), P("e.length")),
			want: "timestampadd(nanosecond,e1_0.length,e1_0.starts_at)",
		},
		{
			name: "difference by unit",
			expr: &DurationBy{Duration: sub(P("e.endsAt"), P("e.startsAt")), Unit: mm.UnitHour},
			want: "timestampdiff(hour,e1_0.starts_at,e1_0.ends_at)",
		},
		{
			name: "literal duration by a finer unit",
			expr: &DurationBy{Duration: Dur(2, mm.UnitDay), Unit: mm.UnitHour},
			want: "(2*24)",
		},
		{
			name: "sum of durations uses the finer unit",
			expr: add(Dur(1, mm.UnitDay), Dur(2, mm.UnitHour)),
			want: "duration(((1*24)+2),hour)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := translate(t, testutil.OrderModel(), selectEvent(tt.expr))
			assert.Equal(t, "select "+tt.want+" from events e1_0", sqlast.Dump(res.Statement))
		})
	}
}

func TestTemporal_Errors(t *testing.T) {
	tests := []struct {
		name string
		expr Expression
		code SemanticErrorCode
	}{
		{
			name: "calendar and fixed-length durations",
			expr: add(Dur(1, mm.UnitMonth), Dur(1, mm.UnitDay)),
			code: ErrCodeMixedDurationUnits,
		},
		{
			name: "calendar duration by a fixed unit",
			expr: &DurationBy{Duration: Dur(1, mm.UnitMonth), Unit: mm.UnitDay},
			code: ErrCodeMixedDurationUnits,
		},
		{
			name: "sum of timestamps",
			expr: add(P("e.startsAt"), P("e.endsAt")),
			code: ErrCodeUnsupported,
		},
		{
			name: "timestamp divided by duration",
			expr: &Binary{Op: OpDivide, Left: P("e.startsAt"), Right: Dur(1, mm.UnitDay)},
			code: ErrCodeUnsupported,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := translateErr(t, testutil.OrderModel(), selectEvent(tt.expr))
			assert.True(t, IsSemanticError(err, tt.code), "got %v", err)
		})
	}
}

var allUnits = []mm.TemporalUnit{
	mm.UnitNanosecond, mm.UnitMicrosecond, mm.UnitMillisecond, mm.UnitSecond, mm.UnitMinute,
	mm.UnitHour, mm.UnitDay, mm.UnitWeek, mm.UnitMonth, mm.UnitQuarter, mm.UnitYear,
}

// selected translates a single-item select over Event and returns the item.
func selected(t require.TestingT, model mm.Catalog, e Expression) sqlast.Expression {
	res, err := New(model).Translate(selectEvent(e))
	require.NoError(t, err)
	spec := res.Statement.(*sqlast.SelectStatement).Query.(*sqlast.QuerySpec)
	require.Len(t, spec.Select, 1)
	return spec.Select[0].Expr
}

// ((ts + d) - ts) by unit(d) counts exactly the units d was built from,
// whatever the unit.
func TestTemporal_DurationRoundTrip(t *testing.T) {
	model := testutil.OrderModel()
	rapid.Check(t, func(rt *rapid.T) {
		unit := rapid.SampledFrom(allUnits).Draw(rt, "unit")
		n := rapid.Int64Range(1, 1_000_000).Draw(rt, "n")

		expr := selected(rt, model, &DurationBy{
			Duration: sub(add(P("e.startsAt"), Dur(n, unit)), P("e.startsAt")),
			Unit:     unit,
		})

		diff, ok := expr.(*sqlast.TimestampDiff)
		require.True(rt, ok, "got %T", expr)
		assert.Equal(rt, unit, diff.Unit)

		shifted, ok := diff.To.(*sqlast.TimestampAdd)
		require.True(rt, ok, "got %T", diff.To)
		assert.Equal(rt, unit, shifted.Unit)
		assert.Equal(rt, diff.From, shifted.Timestamp, "both sides read the same column")

		mag, ok := shifted.Magnitude.(*sqlast.Literal)
		require.True(rt, ok, "got %T", shifted.Magnitude)
		assert.Equal(rt, ir.IRInt(n), mag.Value)
	})
}

// A literal duration converted to a unit of its family is scaled by the
// conversion factor; converting to its own unit leaves it unchanged.
func TestTemporal_LiteralConversion(t *testing.T) {
	model := testutil.OrderModel()
	rapid.Check(t, func(rt *rapid.T) {
		from := rapid.SampledFrom(allUnits).Draw(rt, "from")
		var targets []mm.TemporalUnit
		for _, u := range allUnits {
			if _, err := mm.ConversionFactor(from, u); err == nil {
				targets = append(targets, u)
			}
		}
		to := rapid.SampledFrom(targets).Draw(rt, "to")
		n := rapid.Int64Range(1, 1_000_000).Draw(rt, "n")

		expr := selected(rt, model, &DurationBy{Duration: Dur(n, from), Unit: to})
		if from == to {
			lit, ok := expr.(*sqlast.Literal)
			require.True(rt, ok, "got %T", expr)
			assert.Equal(rt, ir.IRInt(n), lit.Value)
			return
		}

		factor, err := mm.ConversionFactor(from, to)
		require.NoError(rt, err)
		mul, ok := expr.(*sqlast.BinaryArithmetic)
		require.True(rt, ok, "got %T", expr)
		assert.Equal(rt, sqlast.OpMultiply, mul.Op)
		assert.Equal(rt, ir.IRInt(n), mul.Left.(*sqlast.Literal).Value)
		assert.Equal(rt, ir.IRInt(factor), mul.Right.(*sqlast.Literal).Value)
	})
}
