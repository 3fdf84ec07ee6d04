package sqlrender

import (
	"fmt"

	mm "github.com/roach88/ormsql/internal/metamodel"
	"github.com/roach88/ormsql/internal/sqlast"
)

// SQLite date modifiers for the units they know directly.
var sqliteModifiers = map[mm.TemporalUnit]string{
	mm.UnitMinute: "minutes",
	mm.UnitHour:   "hours",
	mm.UnitDay:    "days",
	mm.UnitMonth:  "months",
	mm.UnitYear:   "years",
}

// Divisors turning sub-second magnitudes into seconds.
var subSecond = map[mm.TemporalUnit]string{
	mm.UnitNanosecond:  "1000000000.0",
	mm.UnitMicrosecond: "1000000.0",
	mm.UnitMillisecond: "1000.0",
	mm.UnitSecond:      "1.0",
}

// PostgreSQL intervals of one unit.
var pgIntervals = map[mm.TemporalUnit]string{
	mm.UnitMicrosecond: "1 microsecond",
	mm.UnitMillisecond: "1 millisecond",
	mm.UnitSecond:      "1 second",
	mm.UnitMinute:      "1 minute",
	mm.UnitHour:        "1 hour",
	mm.UnitDay:         "1 day",
	mm.UnitWeek:        "1 week",
	mm.UnitMonth:       "1 month",
	mm.UnitQuarter:     "3 months",
	mm.UnitYear:        "1 year",
}

func (r *renderer) timestampAdd(x *sqlast.TimestampAdd) {
	if r.f.postgres {
		r.WriteString("(")
		r.expr(x.Timestamp)
		r.WriteString(" + ")
		r.expr(x.Magnitude)
		if x.Unit == mm.UnitNanosecond {
			r.WriteString(" * interval '1 microsecond' / 1000)")
			return
		}
		interval, ok := pgIntervals[x.Unit]
		if !ok {
			r.errorf("unsupported temporal unit %s", x.Unit)
		}
		fmt.Fprintf(r, " * interval '%s')", interval)
		return
	}

	r.WriteString("strftime('%Y-%m-%d %H:%M:%f', ")
	r.expr(x.Timestamp)
	r.WriteString(", ")
	switch {
	case subSecond[x.Unit] != "":
		r.WriteString("(")
		r.expr(x.Magnitude)
		fmt.Fprintf(r, ") / %s || ' seconds'", subSecond[x.Unit])
	case x.Unit == mm.UnitWeek:
		r.WriteString("(")
		r.expr(x.Magnitude)
		r.WriteString(") * 7 || ' days'")
	case x.Unit == mm.UnitQuarter:
		r.WriteString("(")
		r.expr(x.Magnitude)
		r.WriteString(") * 3 || ' months'")
	case sqliteModifiers[x.Unit] != "":
		r.WriteString("(")
		r.expr(x.Magnitude)
		fmt.Fprintf(r, ") || ' %s'", sqliteModifiers[x.Unit])
	default:
		r.errorf("unsupported temporal unit %s", x.Unit)
	}
	r.WriteString(")")
}

func (r *renderer) timestampDiff(x *sqlast.TimestampDiff) {
	if x.Unit.MonthBased() {
		r.monthDiff(x)
		return
	}
	n := x.Unit.Nanos()
	if n == 0 {
		r.errorf("unsupported temporal unit %s", x.Unit)
		return
	}
	if r.f.postgres {
		r.WriteString("cast(floor(extract(epoch from (")
		r.expr(x.To)
		r.WriteString(" - ")
		r.expr(x.From)
		fmt.Fprintf(r, ")) * 1000000000 / %d) as bigint)", n)
		return
	}
	r.WriteString("cast((julianday(")
	r.expr(x.To)
	r.WriteString(") - julianday(")
	r.expr(x.From)
	fmt.Fprintf(r, ")) * 86400000000000 / %d as integer)", n)
}

// monthDiff counts whole calendar months, then scales to quarters or
// years.
func (r *renderer) monthDiff(x *sqlast.TimestampDiff) {
	months, _ := mm.ConversionFactor(x.Unit, mm.UnitMonth)
	if r.f.postgres {
		r.WriteString("(cast(extract(year from age(")
		r.expr(x.To)
		r.WriteString(", ")
		r.expr(x.From)
		r.WriteString(")) * 12 + extract(month from age(")
		r.expr(x.To)
		r.WriteString(", ")
		r.expr(x.From)
		fmt.Fprintf(r, ")) as bigint) / %d)", months)
		return
	}
	part := func(format string, e sqlast.Expression) {
		fmt.Fprintf(r, "cast(strftime('%s', ", format)
		r.expr(e)
		r.WriteString(") as integer)")
	}
	r.WriteString("(((")
	part("%Y", x.To)
	r.WriteString(" - ")
	part("%Y", x.From)
	r.WriteString(") * 12 + ")
	part("%m", x.To)
	r.WriteString(" - ")
	part("%m", x.From)
	fmt.Fprintf(r, ") / %d)", months)
}
