package sqlast

import (
	mm "github.com/roach88/ormsql/internal/metamodel"
)

// TableReference is the primary table expression of a table group.
type TableReference interface {
	ReferenceAlias() string
	tableReferenceNode()
}

// NamedTableReference is a physical table with its SQL alias.
type NamedTableReference struct {
	Table string
	Alias string
}

func (r *NamedTableReference) ReferenceAlias() string { return r.Alias }
func (*NamedTableReference) tableReferenceNode()        {}

// DerivedTableReference is a subquery in the from clause.
type DerivedTableReference struct {
	Query   QueryPart
	Alias   string
	Columns []string
	Lateral bool
}

func (r *DerivedTableReference) ReferenceAlias() string { return r.Alias }
func (*DerivedTableReference) tableReferenceNode()        {}

// FunctionTableReference is a set-returning function in the from clause.
type FunctionTableReference struct {
	Function string
	Args     []Expression
	Alias    string
	Columns  []string
	Lateral  bool
}

func (r *FunctionTableReference) ReferenceAlias() string { return r.Alias }
func (*FunctionTableReference) tableReferenceNode()        {}

// CteTableReference reads a common table expression.
type CteTableReference struct {
	Name  string
	Alias string
}

func (r *CteTableReference) ReferenceAlias() string { return r.Alias }
func (*CteTableReference) tableReferenceNode()        {}

// TableReferenceJoin attaches a secondary table or a subclass table to the
// primary table of its group. It is rendered only once used.
type TableReferenceJoin struct {
	Type      JoinType
	Table     *NamedTableReference
	Predicate Predicate

	// Subtype is the entity whose own table this is, for joined
	// inheritance. Nil for secondary tables.
	Subtype *mm.Entity

	used bool
}

// Used reports whether a column of the table has been referenced.
func (j *TableReferenceJoin) Used() bool { return j.used }

// MarkUsed records a reference to the table.
func (j *TableReferenceJoin) MarkUsed() { j.used = true }

// JoinType is the kind of a SQL join.
type JoinType int

const (
	JoinInner JoinType = iota + 1
	JoinLeft
	JoinRight
	JoinFull
	JoinCross
)

func (jt JoinType) String() string {
	switch jt {
	case JoinInner:
		return "join"
	case JoinLeft:
		return "left join"
	case JoinRight:
		return "right join"
	case JoinFull:
		return "full join"
	case JoinCross:
		return "cross join"
	}
	return "?"
}
