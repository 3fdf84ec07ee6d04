package sqlast

// Statement is a complete SQL statement.
type Statement interface {
	statementNode()
}

// QueryPart is a query specification or a set-operation group.
type QueryPart interface {
	queryPartNode()
}

// SqlSelection is one item of a select list.
type SqlSelection struct {
	Expr  Expression
	Alias string
}

// SortSpec is one ORDER BY item.
type SortSpec struct {
	Expr       Expression
	Descending bool
}

// QuerySpec is a single SELECT.
type QuerySpec struct {
	Distinct bool
	Roots    []*TableGroup
	Select   []SqlSelection
	Where    Predicate
	GroupBy  []Expression
	Having   Predicate
	OrderBy  []SortSpec
	Offset   Expression
	Fetch    Expression
}

func (*QuerySpec) queryPartNode() {}

// SetOperator combines query parts.
type SetOperator int

const (
	SetUnion SetOperator = iota + 1
	SetUnionAll
	SetIntersect
	SetIntersectAll
	SetExcept
	SetExceptAll
)

func (op SetOperator) String() string {
	switch op {
	case SetUnion:
		return "union"
	case SetUnionAll:
		return "union all"
	case SetIntersect:
		return "intersect"
	case SetIntersectAll:
		return "intersect all"
	case SetExcept:
		return "except"
	case SetExceptAll:
		return "except all"
	}
	return "?"
}

// QueryGroup combines parts with a set operator.
type QueryGroup struct {
	Operator SetOperator
	Parts    []QueryPart
	OrderBy  []SortSpec
	Offset   Expression
	Fetch    Expression
}

func (*QueryGroup) queryPartNode() {}

// SelectStatement is a query with its common table expressions.
type SelectStatement struct {
	Ctes  *CteContainer
	Query QueryPart
}

func (*SelectStatement) statementNode() {}

// InsertStatement inserts Values rows or the rows of Source.
type InsertStatement struct {
	Ctes    *CteContainer
	Table   *NamedTableReference
	Columns []string
	Values  [][]Expression
	Source  QueryPart
}

func (*InsertStatement) statementNode() {}

// Assignment sets one column in an update.
type Assignment struct {
	Column string
	Value  Expression
}

// UpdateStatement updates one table.
type UpdateStatement struct {
	Ctes        *CteContainer
	Table       *NamedTableReference
	Assignments []Assignment
	Where       Predicate
}

func (*UpdateStatement) statementNode() {}

// DeleteStatement deletes from one table.
type DeleteStatement struct {
	Ctes  *CteContainer
	Table *NamedTableReference
	Where Predicate
}

func (*DeleteStatement) statementNode() {}
