package metamodel

import (
	"fmt"
	"strings"
)

// Type is anything an expression can be typed as: a basic type, an entity,
// an embeddable, or an association attribute. The translator uses it for
// inference and for deciding how many columns a value spans.
type Type interface {
	TypeName() string
}

// Kind enumerates the basic (single-column) value kinds.
type Kind int

const (
	KindString Kind = iota + 1
	KindInteger
	KindLong
	KindDecimal
	KindDouble
	KindBoolean
	KindDate
	KindTime
	KindTimestamp
	KindDuration
	KindUUID
)

var kindNames = map[Kind]string{
	KindString:    "string",
	KindInteger:   "integer",
	KindLong:      "long",
	KindDecimal:   "decimal",
	KindDouble:    "double",
	KindBoolean:   "boolean",
	KindDate:      "date",
	KindTime:      "time",
	KindTimestamp: "timestamp",
	KindDuration:  "duration",
	KindUUID:      "uuid",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind maps a type name from a model file to a Kind.
func ParseKind(name string) (Kind, error) {
	lower := strings.ToLower(name)
	for k, n := range kindNames {
		if n == lower {
			return k, nil
		}
	}
	switch lower {
	case "int":
		return KindInteger, nil
	case "bool":
		return KindBoolean, nil
	case "text":
		return KindString, nil
	case "bigint":
		return KindLong, nil
	case "datetime", "instant":
		return KindTimestamp, nil
	}
	return 0, fmt.Errorf("unknown basic type %q", name)
}

// IsNumeric reports whether values of this kind participate in arithmetic.
func (k Kind) IsNumeric() bool {
	switch k {
	case KindInteger, KindLong, KindDecimal, KindDouble:
		return true
	}
	return false
}

// IsTemporal reports whether the kind is a point in time (date, time or
// timestamp). Durations are not temporal in this sense.
func (k Kind) IsTemporal() bool {
	return k == KindDate || k == KindTime || k == KindTimestamp
}

// BasicType is a single-column type. Use the package-level singletons so
// types can be compared by pointer.
type BasicType struct {
	Kind Kind
}

func (b *BasicType) TypeName() string { return b.Kind.String() }

var (
	StringType    = &BasicType{Kind: KindString}
	IntegerType   = &BasicType{Kind: KindInteger}
	LongType      = &BasicType{Kind: KindLong}
	DecimalType   = &BasicType{Kind: KindDecimal}
	DoubleType    = &BasicType{Kind: KindDouble}
	BooleanType   = &BasicType{Kind: KindBoolean}
	DateType      = &BasicType{Kind: KindDate}
	TimeType      = &BasicType{Kind: KindTime}
	TimestampType = &BasicType{Kind: KindTimestamp}
	DurationType  = &BasicType{Kind: KindDuration}
	UUIDType      = &BasicType{Kind: KindUUID}
)

// Basic returns the singleton BasicType for a kind.
func Basic(k Kind) *BasicType {
	switch k {
	case KindString:
		return StringType
	case KindInteger:
		return IntegerType
	case KindLong:
		return LongType
	case KindDecimal:
		return DecimalType
	case KindDouble:
		return DoubleType
	case KindBoolean:
		return BooleanType
	case KindDate:
		return DateType
	case KindTime:
		return TimeType
	case KindTimestamp:
		return TimestampType
	case KindDuration:
		return DurationType
	case KindUUID:
		return UUIDType
	}
	return nil
}

// AsBasic returns t as a *BasicType, or nil.
func AsBasic(t Type) *BasicType {
	b, _ := t.(*BasicType)
	return b
}

// IsKind reports whether t is a basic type of kind k.
func IsKind(t Type, k Kind) bool {
	b := AsBasic(t)
	return b != nil && b.Kind == k
}

// Compatible reports whether values of a and b may meet in a comparison or
// in the same position of a set operation. A nil type is compatible with
// anything: it has not been inferred yet.
func Compatible(a, b Type) bool {
	if a == nil || b == nil {
		return true
	}
	ba, bb := AsBasic(a), AsBasic(b)
	switch {
	case ba != nil && bb != nil:
		if ba.Kind == bb.Kind {
			return true
		}
		if ba.Kind.IsNumeric() && bb.Kind.IsNumeric() {
			return true
		}
		return ba.Kind.IsTemporal() && bb.Kind.IsTemporal()
	case ba != nil || bb != nil:
		return false
	}
	ea, eb := EntityOf(a), EntityOf(b)
	if ea != nil && eb != nil {
		return ea.Root() == eb.Root()
	}
	return a.TypeName() == b.TypeName()
}

// EntityOf returns the entity a type refers to: the entity itself, or the
// target of an association attribute.
func EntityOf(t Type) *Entity {
	switch v := t.(type) {
	case *Entity:
		return v
	case *Attribute:
		return v.TargetEntity
	}
	return nil
}

// TemporalUnit is a unit for duration arithmetic.
type TemporalUnit int

const (
	UnitNanosecond TemporalUnit = iota + 1
	UnitMicrosecond
	UnitMillisecond
	UnitSecond
	UnitMinute
	UnitHour
	UnitDay
	UnitWeek
	UnitMonth
	UnitQuarter
	UnitYear
)

var unitNames = []string{"", "nanosecond", "microsecond", "millisecond", "second", "minute", "hour", "day", "week", "month", "quarter", "year"}

// Fixed-length units expressed in nanoseconds.
var unitNanos = map[TemporalUnit]int64{
	UnitNanosecond:  1,
	UnitMicrosecond: 1_000,
	UnitMillisecond: 1_000_000,
	UnitSecond:      1_000_000_000,
	UnitMinute:      60 * 1_000_000_000,
	UnitHour:        3600 * 1_000_000_000,
	UnitDay:         86400 * 1_000_000_000,
	UnitWeek:        7 * 86400 * 1_000_000_000,
}

// Calendar units expressed in months.
var unitMonths = map[TemporalUnit]int64{
	UnitMonth:   1,
	UnitQuarter: 3,
	UnitYear:    12,
}

func (u TemporalUnit) String() string {
	if u > 0 && int(u) < len(unitNames) {
		return unitNames[u]
	}
	return fmt.Sprintf("unit(%d)", int(u))
}

// ParseTemporalUnit accepts singular or plural unit names.
func ParseTemporalUnit(s string) (TemporalUnit, error) {
	name := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "s")
	for i, n := range unitNames {
		if i > 0 && n == name {
			return TemporalUnit(i), nil
		}
	}
	return 0, fmt.Errorf("unknown temporal unit %q", s)
}

// MonthBased reports whether the unit has a calendar-dependent length.
func (u TemporalUnit) MonthBased() bool {
	_, ok := unitMonths[u]
	return ok
}

// Nanos returns the length of a fixed-length unit. Calendar units return 0.
func (u TemporalUnit) Nanos() int64 {
	return unitNanos[u]
}

// SameFamily reports whether a and b can be converted into each other
// exactly: both fixed-length, or both calendar units.
func SameFamily(a, b TemporalUnit) bool {
	return a.MonthBased() == b.MonthBased()
}

// Finer returns the finer-grained of two units of the same family.
func Finer(a, b TemporalUnit) TemporalUnit {
	if a < b {
		return a
	}
	return b
}

// ConversionFactor returns how many `to` units make one `from` unit.
// from must be at least as coarse as to, and both must be of the same family.
func ConversionFactor(from, to TemporalUnit) (int64, error) {
	if !SameFamily(from, to) {
		return 0, fmt.Errorf("cannot convert %s to %s: calendar and fixed-length units do not mix", from, to)
	}
	if from < to {
		return 0, fmt.Errorf("cannot convert %s to coarser unit %s exactly", from, to)
	}
	if from.MonthBased() {
		return unitMonths[from] / unitMonths[to], nil
	}
	return unitNanos[from] / unitNanos[to], nil
}
