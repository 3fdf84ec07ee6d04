package queryir

import (
	"github.com/roach88/ormsql/internal/ir"
	mm "github.com/roach88/ormsql/internal/metamodel"
)

// Statement is a top-level domain statement.
//
// This is a sealed interface - only types in this package implement it.
//
// Statement types:
//   - SelectStatement: a query with optional common table expressions
//   - InsertValuesStatement / InsertSelectStatement: inserts into an entity
//   - UpdateStatement: assignments to an entity's attributes
//   - DeleteStatement: deletes entity rows
type Statement interface {
	statementNode() // Marker method - seals interface to this package
}

// QueryPart is either a single query specification or a set-operation
// group of parts.
type QueryPart interface {
	queryPartNode()
}

// Expression is a value-producing node.
type Expression interface {
	expressionNode()
}

// Predicate is a boolean condition.
type Predicate interface {
	predicateNode()
}

// CteDefinition declares a named subquery visible to the statement body.
// A two-part UNION or UNION ALL body whose second part references Name is
// recursive.
type CteDefinition struct {
	Name    string
	Columns []string // optional output column names
	Query   QueryPart
}

// SelectStatement is a query.
type SelectStatement struct {
	With  []*CteDefinition
	Query QueryPart
}

func (*SelectStatement) statementNode() {}

// InsertValuesStatement inserts literal rows.
//
// Columns name attributes of the target entity; embedded attributes take a
// tuple value, associations take the target identifier.
type InsertValuesStatement struct {
	With    []*CteDefinition
	Target  *EntityRoot
	Columns []string
	Rows    [][]Expression
}

func (*InsertValuesStatement) statementNode() {}

// InsertSelectStatement inserts the rows of a query.
type InsertSelectStatement struct {
	With    []*CteDefinition
	Target  *EntityRoot
	Columns []string
	Query   QueryPart
}

func (*InsertSelectStatement) statementNode() {}

// Assignment sets one attribute in an update.
type Assignment struct {
	Path  *Path
	Value Expression
}

// UpdateStatement updates rows of an entity. Versioned requests an
// increment of the entity's version attribute.
type UpdateStatement struct {
	With        []*CteDefinition
	Target      *EntityRoot
	Versioned   bool
	Assignments []Assignment
	Where       Predicate
}

func (*UpdateStatement) statementNode() {}

// DeleteStatement deletes rows of an entity.
type DeleteStatement struct {
	With   []*CteDefinition
	Target *EntityRoot
	Where  Predicate
}

func (*DeleteStatement) statementNode() {}

// SetOperator combines the parts of a QueryGroup.
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

// Selection is one item of a select list.
type Selection struct {
	Expr  Expression
	Alias string
}

// SortItem is one ORDER BY item.
type SortItem struct {
	Expr       Expression
	Descending bool
}

// QuerySpec is a single SELECT ... FROM ... WHERE ... query.
type QuerySpec struct {
	Distinct bool
	From     []From
	Select   []Selection
	Where    Predicate
	GroupBy  []Expression
	Having   Predicate
	OrderBy  []SortItem
	Offset   Expression
	Fetch    Expression
}

func (*QuerySpec) queryPartNode() {}

// QueryGroup combines parts with a set operator. Ordering and limits at
// this level apply to the combined result.
type QueryGroup struct {
	Operator SetOperator
	Parts    []QueryPart
	OrderBy  []SortItem
	Offset   Expression
	Fetch    Expression
}

func (*QueryGroup) queryPartNode() {}

// FromBase holds what every from-clause node has: its alias and the joins
// hanging off it.
type FromBase struct {
	Alias string
	Joins []Join
}

// Base returns the shared fields of a from-clause node.
func (b *FromBase) Base() *FromBase { return b }

// From is a from-clause node: a root or a join.
type From interface {
	Base() *FromBase
	fromNode()
}

// ColumnDef declares an output column of a set-returning function.
type ColumnDef struct {
	Name string
	Kind mm.Kind
}

// EntityRoot selects from an entity.
type EntityRoot struct {
	FromBase
	Entity string
}

func (*EntityRoot) fromNode() {}

// DerivedRoot selects from a subquery. A lateral derived root sees the
// aliases declared before it.
type DerivedRoot struct {
	FromBase
	Query   QueryPart
	Lateral bool
}

func (*DerivedRoot) fromNode() {}

// FunctionRoot selects from a set-returning function.
type FunctionRoot struct {
	FromBase
	Function string
	Args     []Expression
	Columns  []ColumnDef
	Lateral  bool
}

func (*FunctionRoot) fromNode() {}

// CteRoot selects from a common table expression.
type CteRoot struct {
	FromBase
	Name string
}

func (*CteRoot) fromNode() {}

// JoinType is the kind of a join.
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
		return "inner"
	case JoinLeft:
		return "left"
	case JoinRight:
		return "right"
	case JoinFull:
		return "full"
	case JoinCross:
		return "cross"
	}
	return "?"
}

// Join is a from-clause node attached to a parent node.
type Join interface {
	From
	JoinKind() JoinType
	joinNode()
}

// AttributeJoin joins an association, embedded path or collection of the
// parent. Attribute may be dotted to traverse embeddables. Treat narrows
// the joined type; Fetch marks the join as loading the association.
type AttributeJoin struct {
	FromBase
	Attribute string
	Type      JoinType
	Treat     string
	Fetch     bool
	On        Predicate
}

func (*AttributeJoin) fromNode()            {}
func (*AttributeJoin) joinNode()            {}
func (j *AttributeJoin) JoinKind() JoinType { return defaultJoin(j.Type) }

// EntityJoin joins an unrelated entity with an explicit condition.
type EntityJoin struct {
	FromBase
	Entity string
	Type   JoinType
	On     Predicate
}

func (*EntityJoin) fromNode()            {}
func (*EntityJoin) joinNode()            {}
func (j *EntityJoin) JoinKind() JoinType { return defaultJoin(j.Type) }

// CrossJoin joins an entity without a condition.
type CrossJoin struct {
	FromBase
	Entity string
}

func (*CrossJoin) fromNode()          {}
func (*CrossJoin) joinNode()          {}
func (*CrossJoin) JoinKind() JoinType { return JoinCross }

// DerivedJoin joins a subquery.
type DerivedJoin struct {
	FromBase
	Query   QueryPart
	Lateral bool
	Type    JoinType
	On      Predicate
}

func (*DerivedJoin) fromNode()            {}
func (*DerivedJoin) joinNode()            {}
func (j *DerivedJoin) JoinKind() JoinType { return defaultJoin(j.Type) }

// FunctionJoin joins a set-returning function.
type FunctionJoin struct {
	FromBase
	Function string
	Args     []Expression
	Columns  []ColumnDef
	Lateral  bool
	Type     JoinType
	On       Predicate
}

func (*FunctionJoin) fromNode()            {}
func (*FunctionJoin) joinNode()            {}
func (j *FunctionJoin) JoinKind() JoinType { return defaultJoin(j.Type) }

// CteJoin joins a common table expression.
type CteJoin struct {
	FromBase
	Name string
	Type JoinType
	On   Predicate
}

func (*CteJoin) fromNode()            {}
func (*CteJoin) joinNode()            {}
func (j *CteJoin) JoinKind() JoinType { return defaultJoin(j.Type) }

// PluralPartJoin joins a part (the index or key) of the plural join it is
// attached to.
type PluralPartJoin struct {
	FromBase
	Part PluralPart
	Type JoinType
}

func (*PluralPartJoin) fromNode()            {}
func (*PluralPartJoin) joinNode()            {}
func (j *PluralPartJoin) JoinKind() JoinType { return defaultJoin(j.Type) }

func defaultJoin(t JoinType) JoinType {
	if t == 0 {
		return JoinInner
	}
	return t
}

// JoinCondition returns the explicit ON predicate of a join, if it has one.
func JoinCondition(j Join) Predicate {
	switch jn := j.(type) {
	case *AttributeJoin:
		return jn.On
	case *EntityJoin:
		return jn.On
	case *DerivedJoin:
		return jn.On
	case *FunctionJoin:
		return jn.On
	case *CteJoin:
		return jn.On
	}
	return nil
}

// Literal is a constant. Kind is zero when the type should be inferred from
// the context the literal appears in.
type Literal struct {
	Value ir.IRValue
	Kind  mm.Kind
}

func (*Literal) expressionNode() {}

// Parameter is a named bind parameter.
type Parameter struct {
	Name string
}

func (*Parameter) expressionNode() {}

// ArithmeticOp is a binary arithmetic operator.
type ArithmeticOp int

const (
	OpAdd ArithmeticOp = iota + 1
	OpSubtract
	OpMultiply
	OpDivide
	OpModulo
)

func (op ArithmeticOp) String() string {
	switch op {
	case OpAdd:
		return "+"
	case OpSubtract:
		return "-"
	case OpMultiply:
		return "*"
	case OpDivide:
		return "/"
	case OpModulo:
		return "%"
	}
	return "?"
}

// Binary is binary arithmetic. Operands that are temporal or durations are
// rewritten by the translator rather than rendered literally.
type Binary struct {
	Op    ArithmeticOp
	Left  Expression
	Right Expression
}

func (*Binary) expressionNode() {}

// Negate is unary minus.
type Negate struct {
	Operand Expression
}

func (*Negate) expressionNode() {}

// Duration is a magnitude of a temporal unit, such as "3 day".
type Duration struct {
	Magnitude Expression
	Unit      mm.TemporalUnit
}

func (*Duration) expressionNode() {}

// DurationBy converts a duration to a number of units: "(d) by second".
type DurationBy struct {
	Duration Expression
	Unit     mm.TemporalUnit
}

func (*DurationBy) expressionNode() {}

// SearchedWhen is one branch of a searched case.
type SearchedWhen struct {
	When Predicate
	Then Expression
}

// CaseSearched is CASE WHEN <predicate> THEN ... END.
type CaseSearched struct {
	Whens []SearchedWhen
	Else  Expression
}

func (*CaseSearched) expressionNode() {}

// SimpleWhen is one branch of a simple case.
type SimpleWhen struct {
	When Expression
	Then Expression
}

// CaseSimple is CASE <operand> WHEN <value> THEN ... END.
type CaseSimple struct {
	Operand Expression
	Whens   []SimpleWhen
	Else    Expression
}

func (*CaseSimple) expressionNode() {}

// Coalesce returns its first non-null argument.
type Coalesce struct {
	Args []Expression
}

func (*Coalesce) expressionNode() {}

// Function calls a named SQL function. ReturnKind is zero when the result
// type is the type of the first argument.
type Function struct {
	Name       string
	Args       []Expression
	ReturnKind mm.Kind
}

func (*Function) expressionNode() {}

// Tuple is a row value.
type Tuple struct {
	Elements []Expression
}

func (*Tuple) expressionNode() {}

// Subquery is a scalar or row subquery used as an expression.
type Subquery struct {
	With  []*CteDefinition
	Query QueryPart
}

func (*Subquery) expressionNode() {}

// EntityTypeOf is type(path): the concrete entity type of the path.
type EntityTypeOf struct {
	Path *Path
}

func (*EntityTypeOf) expressionNode() {}

// EntityTypeLiteral names an entity type as a value, for comparison with
// EntityTypeOf.
type EntityTypeLiteral struct {
	Entity string
}

func (*EntityTypeLiteral) expressionNode() {}

// CompareOp is a comparison operator.
type CompareOp int

const (
	OpEq CompareOp = iota + 1
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
)

func (op CompareOp) String() string {
	switch op {
	case OpEq:
		return "="
	case OpNe:
		return "<>"
	case OpLt:
		return "<"
	case OpLe:
		return "<="
	case OpGt:
		return ">"
	case OpGe:
		return ">="
	}
	return "?"
}

// Comparison compares two expressions.
type Comparison struct {
	Left  Expression
	Op    CompareOp
	Right Expression
}

func (*Comparison) predicateNode() {}

// JunctionKind is AND or OR.
type JunctionKind int

const (
	JunctionAnd JunctionKind = iota + 1
	JunctionOr
)

// Junction combines predicates.
type Junction struct {
	Kind       JunctionKind
	Predicates []Predicate
}

func (*Junction) predicateNode() {}

// Not negates a predicate.
type Not struct {
	Predicate Predicate
}

func (*Not) predicateNode() {}

// InList is test [NOT] IN (list...). A multi-valued parameter in the list
// expands to one placeholder per value.
type InList struct {
	Test    Expression
	List    []Expression
	Negated bool
}

func (*InList) predicateNode() {}

// InSubquery is test [NOT] IN (subquery).
type InSubquery struct {
	Test    Expression
	Query   QueryPart
	Negated bool
}

func (*InSubquery) predicateNode() {}

// Between is expr [NOT] BETWEEN low AND high.
type Between struct {
	Expr    Expression
	Low     Expression
	High    Expression
	Negated bool
}

func (*Between) predicateNode() {}

// Like is expr [NOT] LIKE pattern [ESCAPE escape].
type Like struct {
	Expr            Expression
	Pattern         Expression
	Escape          Expression
	Negated         bool
	CaseInsensitive bool
}

func (*Like) predicateNode() {}

// Nullness is expr IS [NOT] NULL.
type Nullness struct {
	Expr    Expression
	Negated bool
}

func (*Nullness) predicateNode() {}

// Exists is [NOT] EXISTS (subquery).
type Exists struct {
	Query   QueryPart
	Negated bool
}

func (*Exists) predicateNode() {}

// BooleanExpr uses a boolean-valued expression as a predicate.
type BooleanExpr struct {
	Expr Expression
}

func (*BooleanExpr) predicateNode() {}
