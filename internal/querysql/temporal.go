package querysql

import (
	"github.com/roach88/ormsql/internal/ir"
	mm "github.com/roach88/ormsql/internal/metamodel"
	"github.com/roach88/ormsql/internal/queryir"
	"github.com/roach88/ormsql/internal/sqlast"
)

// temporalState is the side channel of duration arithmetic.
//
// Durations are not rendered as values of their own. While translating the
// right operand of timestamp ± duration, timestamp holds the expression the
// duration's terms are added to, so ts + (d1 + d2) becomes
// timestampadd(d2, timestampadd(d1, ts)). scale and negate accumulate the
// scalar factors and sign flips applied to every term, and by is the unit a
// duration is being converted to by "(d) by unit".
type temporalState struct {
	timestamp     sqlast.Expression
	timestampType mm.Type
	scale         sqlast.Expression
	negate        bool
	by            mm.TemporalUnit
}

func (s temporalState) pending() bool {
	return s.scale != nil || s.negate
}

// plain runs fn with no temporal rewriting pending.
func (t *translation) plain(fn func()) {
	saved := t.tmp
	t.tmp = temporalState{}
	defer func() { t.tmp = saved }()
	fn()
}

// temporal rewrites arithmetic over timestamps and durations.
func (t *translation) temporal(b *queryir.Binary, lt, rt mm.Type) sqlast.Expression {
	left, right := b.Left, b.Right
	if b.Op == queryir.OpAdd && isDuration(lt) && isTemporal(rt) {
		left, right, lt, rt = right, left, rt, lt
	}
	// An untyped operand next to a timestamp is taken for a duration.
	durRight := isDuration(rt) || rt == nil && isTemporal(lt)

	switch {
	case b.Op == queryir.OpMultiply && isDuration(rt):
		return t.scaled(left, right)
	case b.Op == queryir.OpMultiply && isDuration(lt):
		return t.scaled(right, left)

	case isTemporal(lt) && isTemporal(rt):
		if b.Op != queryir.OpSubtract {
			t.fail(ErrCodeUnsupported, "cannot apply %s to two temporal values", b.Op)
		}
		return t.timestampDiff(left, right)

	case durRight && (isTemporal(lt) || t.tmp.timestamp != nil):
		if b.Op != queryir.OpAdd && b.Op != queryir.OpSubtract {
			t.fail(ErrCodeUnsupported, "cannot apply %s to a timestamp and a duration", b.Op)
		}
		if isTemporal(lt) && t.tmp.pending() {
			t.fail(ErrCodeUnsupported, "cannot scale or negate a temporal value")
		}
		return t.adjustTimestamp(left, right, lt, b.Op == queryir.OpSubtract)

	case isDuration(lt) && isDuration(rt):
		if b.Op != queryir.OpAdd && b.Op != queryir.OpSubtract {
			t.fail(ErrCodeUnsupported, "cannot apply %s to two durations", b.Op)
		}
		return t.durationSum(left, right, b.Op)
	}
	t.fail(ErrCodeUnsupported, "cannot apply %s to %s and %s", b.Op, typeName(lt), typeName(rt))
	return nil
}

func typeName(t mm.Type) string {
	if t == nil {
		return "an untyped value"
	}
	return t.TypeName()
}

// adjustTimestamp translates left ± right where right is a duration. The
// left operand becomes the pending timestamp of right's terms.
func (t *translation) adjustTimestamp(left, right queryir.Expression, lt mm.Type, subtract bool) sqlast.Expression {
	var base sqlast.Expression
	if isTemporal(lt) {
		t.plain(func() { base = t.expression(left) })
	} else {
		base = t.durationTerm(left)
	}
	saved := t.tmp
	defer func() { t.tmp = saved }()
	t.tmp.timestamp = base
	switch {
	case base.ExprType() != nil:
		t.tmp.timestampType = base.ExprType()
	case saved.timestampType == nil:
		t.tmp.timestampType = lt
	}
	if subtract {
		t.tmp.negate = !t.tmp.negate
	}
	return t.durationTerm(right)
}

// timestampDiff translates ts1 - ts2. The difference is counted in the
// dialect's finest native unit, then treated like any other duration.
func (t *translation) timestampDiff(left, right queryir.Expression) sqlast.Expression {
	var l, r sqlast.Expression
	t.plain(func() {
		l = t.expression(left)
		t.infer.with(fixedType(l.ExprType()), func() { r = t.expression(right) })
	})
	if t.tmp.by != 0 && !t.tmp.pending() {
		return &sqlast.TimestampDiff{Unit: t.tmp.by, From: r, To: l}
	}
	unit := t.dialect.NativeTemporalUnit()
	return t.finishDuration(&sqlast.TimestampDiff{Unit: unit, From: r, To: l}, unit)
}

// scaled translates scalar * duration by distributing the scalar over the
// duration's terms.
func (t *translation) scaled(scalar, dur queryir.Expression) sqlast.Expression {
	var factor sqlast.Expression
	t.plain(func() { factor = t.expression(scalar) })
	saved := t.tmp
	defer func() { t.tmp = saved }()
	if saved.scale != nil {
		factor = &sqlast.BinaryArithmetic{
			Op: sqlast.OpMultiply, Left: saved.scale, Right: factor,
			Type: numericResult(saved.scale.ExprType(), factor.ExprType()),
		}
	}
	t.tmp.scale = factor
	return t.durationTerm(dur)
}

// durationSum translates d1 ± d2 outside timestamp arithmetic. The result
// is counted in the finer of the two units; calendar and fixed-length
// durations cannot be combined.
func (t *translation) durationSum(left, right queryir.Expression, op queryir.ArithmeticOp) sqlast.Expression {
	l := t.durationTerm(left)
	r := t.durationTerm(right)
	ld, lok := l.(*sqlast.Duration)
	rd, rok := r.(*sqlast.Duration)
	if !lok || !rok {
		// Both sides were already converted by a pending "by".
		return &sqlast.BinaryArithmetic{Op: arithmeticOp(op), Left: l, Right: r, Type: numericResult(l.ExprType(), r.ExprType())}
	}
	if !mm.SameFamily(ld.Unit, rd.Unit) {
		t.fail(ErrCodeMixedDurationUnits, "cannot combine %s and %s durations", ld.Unit, rd.Unit)
	}
	unit := mm.Finer(ld.Unit, rd.Unit)
	lm := t.convert(ld.Magnitude, ld.Unit, unit)
	rm := t.convert(rd.Magnitude, rd.Unit, unit)
	return &sqlast.Duration{
		Magnitude: &sqlast.BinaryArithmetic{Op: arithmeticOp(op), Left: lm, Right: rm, Type: numericResult(lm.ExprType(), rm.ExprType())},
		Unit:      unit,
	}
}

// durationTerm translates an operand of duration arithmetic. Structural
// nodes consult the pending state themselves; any other duration-valued
// expression is a magnitude of nanoseconds.
func (t *translation) durationTerm(e queryir.Expression) sqlast.Expression {
	switch e.(type) {
	case *queryir.Binary, *queryir.Negate, *queryir.Duration:
		return t.expression(e)
	}
	if typ := t.staticType(e); typ != nil && !isDuration(typ) {
		t.fail(ErrCodeUnsupported, "expected a duration, got %s", typeName(typ))
	}
	var v sqlast.Expression
	t.plain(func() {
		t.infer.with(fixedType(mm.DurationType), func() { v = t.expression(e) })
	})
	if d, ok := v.(*sqlast.Duration); ok {
		return t.finishDuration(d.Magnitude, d.Unit)
	}
	return t.finishDuration(v, mm.UnitNanosecond)
}

// durationValue translates a duration literal node or the negation of a
// duration.
func (t *translation) durationValue(e queryir.Expression) sqlast.Expression {
	switch n := e.(type) {
	case *queryir.Negate:
		t.tmp.negate = !t.tmp.negate
		defer func() { t.tmp.negate = !t.tmp.negate }()
		return t.durationTerm(n.Operand)
	case *queryir.Duration:
		var mag sqlast.Expression
		t.plain(func() {
			t.infer.with(fixedType(mm.LongType), func() { mag = t.expression(n.Magnitude) })
		})
		return t.finishDuration(mag, n.Unit)
	}
	panic(newAssertionFailure("durationValue of %T", e))
}

// durationBy translates "(d) by unit": the number of units in d.
func (t *translation) durationBy(n *queryir.DurationBy) sqlast.Expression {
	saved := t.tmp
	t.tmp = temporalState{by: n.Unit}
	defer func() { t.tmp = saved }()
	return t.durationTerm(n.Duration)
}

// finishDuration applies the pending state to one term of a duration:
// scale and sign, then addition to the pending timestamp or conversion to
// the requested unit.
func (t *translation) finishDuration(mag sqlast.Expression, unit mm.TemporalUnit) sqlast.Expression {
	st := t.tmp
	if st.scale != nil {
		mag = &sqlast.BinaryArithmetic{
			Op: sqlast.OpMultiply, Left: st.scale, Right: mag,
			Type: numericResult(st.scale.ExprType(), mag.ExprType()),
		}
	}
	if st.negate {
		mag = &sqlast.UnaryMinus{Operand: mag}
	}
	switch {
	case st.timestamp != nil:
		return &sqlast.TimestampAdd{Unit: unit, Magnitude: mag, Timestamp: st.timestamp, Type: st.timestampType}
	case st.by != 0:
		return t.convert(mag, unit, st.by)
	}
	return &sqlast.Duration{Magnitude: mag, Unit: unit}
}

// convert expresses a magnitude counted in from as a count of to.
func (t *translation) convert(mag sqlast.Expression, from, to mm.TemporalUnit) sqlast.Expression {
	if from == to {
		return mag
	}
	if !mm.SameFamily(from, to) {
		t.fail(ErrCodeMixedDurationUnits, "cannot convert %s to %s", from, to)
	}
	op := sqlast.OpMultiply
	factor, err := mm.ConversionFactor(from, to)
	if err != nil {
		op = sqlast.OpDivide
		factor, err = mm.ConversionFactor(to, from)
		assertf(err == nil, "no conversion between %s and %s: %v", from, to, err)
	}
	var typ mm.Type = mm.LongType
	if op == sqlast.OpDivide {
		typ = mm.DoubleType
	}
	return &sqlast.BinaryArithmetic{
		Op: op, Left: mag,
		Right: &sqlast.Literal{Value: ir.IRInt(factor), Type: mm.LongType},
		Type:  typ,
	}
}
