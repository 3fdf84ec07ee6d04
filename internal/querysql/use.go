package querysql

// UseKind records how a subtype of a table group's entity is used.
//
// The kinds form a lattice ordered by how much a use tells the pruner:
//
//	            FILTER
//	              |
//	            TREAT
//	           /     \
//	  BASE_TREAT    OPTIONAL_TREAT
//	           \     /
//	          PROJECTION
//	              |
//	          EXPRESSION
//
// BASE_TREAT and OPTIONAL_TREAT are incomparable: their join is TREAT and
// their meet is PROJECTION. Only TREAT and FILTER license pruning.
type UseKind int

const (
	// UseExpression: the type is referenced by some expression.
	UseExpression UseKind = iota
	// UseProjection: the entity is selected and needs every column of its
	// live subtypes.
	UseProjection
	// UseBaseTreat: a supertype passed through on the way to a treat.
	UseBaseTreat
	// UseOptionalTreat: a treat in a position where rows of other types may
	// still appear (the select list), so values are guarded, not filtered.
	UseOptionalTreat
	// UseTreat: a treat that narrows the rows of its conjunct.
	UseTreat
	// UseFilter: rows of other types are filtered out.
	UseFilter
)

func (k UseKind) String() string {
	switch k {
	case UseExpression:
		return "EXPRESSION"
	case UseProjection:
		return "PROJECTION"
	case UseBaseTreat:
		return "BASE_TREAT"
	case UseOptionalTreat:
		return "OPTIONAL_TREAT"
	case UseTreat:
		return "TREAT"
	case UseFilter:
		return "FILTER"
	}
	return "?"
}

// level is the height of k in the lattice.
func (k UseKind) level() int {
	switch k {
	case UseExpression:
		return 0
	case UseProjection:
		return 1
	case UseBaseTreat, UseOptionalTreat:
		return 2
	case UseTreat:
		return 3
	}
	return 4
}

// Stronger returns the least upper bound of k and other.
func (k UseKind) Stronger(other UseKind) UseKind {
	if k == other {
		return k
	}
	lk, lo := k.level(), other.level()
	switch {
	case lk > lo:
		return k
	case lo > lk:
		return other
	}
	return UseTreat
}

// Weaker returns the greatest lower bound of k and other.
func (k UseKind) Weaker(other UseKind) UseKind {
	if k == other {
		return k
	}
	lk, lo := k.level(), other.level()
	switch {
	case lk < lo:
		return k
	case lo < lk:
		return other
	}
	return UseProjection
}

// Narrows reports whether the use licenses pruning of other subtypes.
func (k UseKind) Narrows() bool {
	return k == UseTreat || k == UseFilter
}
