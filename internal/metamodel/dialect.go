package metamodel

import "fmt"

// Dialect is the capability object the translator consults. It answers
// questions only; rendering dialect SQL is the renderer's business.
type Dialect interface {
	Name() string
	SupportsLateral() bool
	SupportsWindowFunctions() bool
	// PreferredType returns the column type used for a basic kind in DDL
	// and casts.
	PreferredType(k Kind) string
	// NativeTemporalUnit is the unit timestampdiff is computed in before
	// scaling.
	NativeTemporalUnit() TemporalUnit
}

type dialect struct {
	name       string
	lateral    bool
	windows    bool
	types      map[Kind]string
	nativeUnit TemporalUnit
}

func (d *dialect) Name() string                     { return d.name }
func (d *dialect) SupportsLateral() bool            { return d.lateral }
func (d *dialect) SupportsWindowFunctions() bool    { return d.windows }
func (d *dialect) NativeTemporalUnit() TemporalUnit { return d.nativeUnit }

func (d *dialect) PreferredType(k Kind) string {
	if t, ok := d.types[k]; ok {
		return t
	}
	return "text"
}

var sqlite = &dialect{
	name:    "sqlite",
	lateral: false,
	windows: true,
	types: map[Kind]string{
		KindString:    "text",
		KindInteger:   "integer",
		KindLong:      "integer",
		KindDecimal:   "numeric",
		KindDouble:    "real",
		KindBoolean:   "integer",
		KindDate:      "text",
		KindTime:      "text",
		KindTimestamp: "text",
		KindDuration:  "integer",
		KindUUID:      "text",
	},
	nativeUnit: UnitNanosecond,
}

var postgres = &dialect{
	name:    "postgresql",
	lateral: true,
	windows: true,
	types: map[Kind]string{
		KindString:    "varchar",
		KindInteger:   "integer",
		KindLong:      "bigint",
		KindDecimal:   "numeric",
		KindDouble:    "double precision",
		KindBoolean:   "boolean",
		KindDate:      "date",
		KindTime:      "time",
		KindTimestamp: "timestamp",
		KindDuration:  "bigint",
		KindUUID:      "uuid",
	},
	nativeUnit: UnitNanosecond,
}

// SQLite returns the SQLite capability preset.
func SQLite() Dialect { return sqlite }

// PostgreSQL returns the PostgreSQL capability preset.
func PostgreSQL() Dialect { return postgres }

// DialectByName returns a preset by name.
func DialectByName(name string) (Dialect, error) {
	switch name {
	case "sqlite", "sqlite3":
		return sqlite, nil
	case "postgres", "postgresql", "pg":
		return postgres, nil
	}
	return nil, fmt.Errorf("unknown dialect %q", name)
}
