package sqlast

import (
	"github.com/roach88/ormsql/internal/ir"
	mm "github.com/roach88/ormsql/internal/metamodel"
)

// Expression is a SQL value expression. ExprType is the inferred domain
// type, which may be nil when unknown.
type Expression interface {
	ExprType() mm.Type
	expressionNode()
}

// Predicate is a SQL boolean condition.
type Predicate interface {
	predicateNode()
}

// ColumnReference is a qualified column.
type ColumnReference struct {
	Qualifier string
	Column    string
	Type      mm.Type
}

func (c *ColumnReference) ExprType() mm.Type { return c.Type }
func (*ColumnReference) expressionNode()       {}

// Literal is an inline constant. The renderer binds it as an argument
// rather than printing it, except for the null literal.
type Literal struct {
	Value ir.IRValue
	Type  mm.Type
}

func (l *Literal) ExprType() mm.Type { return l.Type }
func (*Literal) expressionNode()       {}

// JdbcParameter is one placeholder produced for a domain parameter.
//
// A single domain parameter may produce several placeholders: one per
// occurrence, one per value of a multi-valued binding (ValueIndex) and one
// per column of an embedded or tuple value (Component).
//
// ValueIndex and Component are -1 when the parameter is single-valued or
// single-column. ComponentPath names the embeddable member a component
// reads, dotted for nested embeddables.
type JdbcParameter struct {
	Param         string
	Occurrence    int
	ValueIndex    int
	Component     int
	ComponentPath string
	Type          mm.Type
}

func (p *JdbcParameter) ExprType() mm.Type { return p.Type }
func (*JdbcParameter) expressionNode()       {}

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

// BinaryArithmetic is left op right.
type BinaryArithmetic struct {
	Op    ArithmeticOp
	Left  Expression
	Right Expression
	Type  mm.Type
}

func (b *BinaryArithmetic) ExprType() mm.Type { return b.Type }
func (*BinaryArithmetic) expressionNode()       {}

// UnaryMinus negates its operand.
type UnaryMinus struct {
	Operand Expression
}

func (u *UnaryMinus) ExprType() mm.Type { return u.Operand.ExprType() }
func (*UnaryMinus) expressionNode()       {}

// SearchedWhen is one branch of a searched case.
type SearchedWhen struct {
	When Predicate
	Then Expression
}

// CaseSearched is CASE WHEN p THEN v ... [ELSE e] END.
type CaseSearched struct {
	Whens []SearchedWhen
	Else  Expression
	Type  mm.Type
}

func (c *CaseSearched) ExprType() mm.Type { return c.Type }
func (*CaseSearched) expressionNode()       {}

// SimpleWhen is one branch of a simple case.
type SimpleWhen struct {
	When Expression
	Then Expression
}

// CaseSimple is CASE x WHEN v THEN r ... [ELSE e] END.
type CaseSimple struct {
	Operand Expression
	Whens   []SimpleWhen
	Else    Expression
	Type    mm.Type
}

func (c *CaseSimple) ExprType() mm.Type { return c.Type }
func (*CaseSimple) expressionNode()       {}

// Function is a function call rendered as name(args...).
type Function struct {
	Name string
	Args []Expression
	Type mm.Type
}

func (f *Function) ExprType() mm.Type { return f.Type }
func (*Function) expressionNode()       {}

// TimestampAdd adds Magnitude units to Timestamp. The renderer maps it to
// the dialect's date arithmetic.
type TimestampAdd struct {
	Unit      mm.TemporalUnit
	Magnitude Expression
	Timestamp Expression
	Type      mm.Type
}

func (t *TimestampAdd) ExprType() mm.Type { return t.Type }
func (*TimestampAdd) expressionNode()       {}

// TimestampDiff is the number of units from From to To.
type TimestampDiff struct {
	Unit mm.TemporalUnit
	From Expression
	To   Expression
}

func (*TimestampDiff) ExprType() mm.Type { return mm.LongType }
func (*TimestampDiff) expressionNode()     {}

// Duration is a duration value: Magnitude counted in Unit. Durations are
// rendered as their magnitude; the unit is tracked for conversions.
type Duration struct {
	Magnitude Expression
	Unit      mm.TemporalUnit
}

func (*Duration) ExprType() mm.Type { return mm.DurationType }
func (*Duration) expressionNode()     {}

// Tuple is a row value (a, b, ...).
type Tuple struct {
	Elements []Expression
	Type     mm.Type
}

func (t *Tuple) ExprType() mm.Type { return t.Type }
func (*Tuple) expressionNode()       {}

// ScalarSubquery is a subquery used as a value.
type ScalarSubquery struct {
	Query QueryPart
	Type  mm.Type
}

func (s *ScalarSubquery) ExprType() mm.Type { return s.Type }
func (*ScalarSubquery) expressionNode()       {}

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

// Comparison compares two expressions. Tuples compare component-wise.
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

// Negated is NOT (p).
type Negated struct {
	Predicate Predicate
}

func (*Negated) predicateNode() {}

// InList is test [NOT] IN (list).
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

// Like is a pattern match. CaseInsensitive matches compare lower(expr)
// with lower(pattern).
type Like struct {
	Expr            Expression
	Pattern         Expression
	Escape          Expression
	Negated         bool
	CaseInsensitive bool
}

func (*Like) predicateNode() {}

// Nullness is expr IS [NOT] NULL. For tuples every component is tested.
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

// BooleanExpression tests a boolean-valued expression.
type BooleanExpression struct {
	Expr Expression
}

func (*BooleanExpression) predicateNode() {}

// Conjoin ANDs predicates, ignoring nils and flattening nested ANDs.
func Conjoin(preds ...Predicate) Predicate {
	var out []Predicate
	for _, p := range preds {
		switch v := p.(type) {
		case nil:
		case *Junction:
			if v.Kind == JunctionAnd {
				out = append(out, v.Predicates...)
			} else {
				out = append(out, v)
			}
		default:
			out = append(out, p)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return &Junction{Kind: JunctionAnd, Predicates: out}
}

// Disjoin ORs predicates, ignoring nils.
func Disjoin(preds ...Predicate) Predicate {
	var out []Predicate
	for _, p := range preds {
		if p != nil {
			out = append(out, p)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return &Junction{Kind: JunctionOr, Predicates: out}
}

// Flatten returns the components of a tuple, or e itself.
func Flatten(e Expression) []Expression {
	if t, ok := e.(*Tuple); ok {
		var out []Expression
		for _, el := range t.Elements {
			out = append(out, Flatten(el)...)
		}
		return out
	}
	return []Expression{e}
}
