package queryir

import (
	"fmt"
	"strings"
)

// ValidationResult lists structural problems found in a statement.
//
// Validation is purely syntactic: it checks that nodes are present, aliases
// are declared once and referenced in scope, and select lists are not
// empty. Type checks and model lookups happen during translation.
type ValidationResult struct {
	// Valid is true when Problems is empty.
	Valid bool

	// Problems lists human-readable descriptions, in traversal order.
	Problems []string
}

// Err returns nil for a valid result, else a *ValidationError.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return &ValidationError{Problems: r.Problems}
}

// ValidationError reports every structural problem of a statement.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid query: " + strings.Join(e.Problems, "; ")
}

// Validate checks a statement's structure.
//
// Validate is a pure function with no side effects.
func Validate(stmt Statement) ValidationResult {
	v := &validator{problems: []string{}}
	v.validateStatement(stmt)
	return ValidationResult{
		Valid:    len(v.problems) == 0,
		Problems: v.problems,
	}
}

// validator accumulates problems during traversal.
type validator struct {
	problems []string
	scopes   []map[string]bool
}

func (v *validator) addProblem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) push() { v.scopes = append(v.scopes, map[string]bool{}) }
func (v *validator) pop()  { v.scopes = v.scopes[:len(v.scopes)-1] }

// isolated runs fn with no outer scopes visible.
func (v *validator) isolated(fn func()) {
	saved := v.scopes
	v.scopes = nil
	defer func() { v.scopes = saved }()
	fn()
}

func (v *validator) declare(alias string) {
	if alias == "" {
		return
	}
	top := v.scopes[len(v.scopes)-1]
	if top[alias] {
		v.addProblem("alias %q declared twice in the same from clause", alias)
	}
	top[alias] = true
}

func (v *validator) visible(alias string) bool {
	for i := len(v.scopes) - 1; i >= 0; i-- {
		if v.scopes[i][alias] {
			return true
		}
	}
	return false
}

func (v *validator) validateStatement(stmt Statement) {
	switch s := stmt.(type) {
	case nil:
		v.addProblem("nil statement")
	case *SelectStatement:
		v.validateCtes(s.With)
		v.validateQueryPart(s.Query)
	case *InsertValuesStatement:
		v.validateCtes(s.With)
		v.validateTarget(s.Target, len(s.Columns))
		for i, row := range s.Rows {
			if len(row) != len(s.Columns) {
				v.addProblem("insert row %d has %d values for %d columns", i, len(row), len(s.Columns))
			}
			for _, e := range row {
				v.validateExpression(e)
			}
		}
		if len(s.Rows) == 0 {
			v.addProblem("insert without rows")
		}
	case *InsertSelectStatement:
		v.validateCtes(s.With)
		v.validateTarget(s.Target, len(s.Columns))
		v.validateQueryPart(s.Query)
	case *UpdateStatement:
		v.validateCtes(s.With)
		v.push()
		defer v.pop()
		v.validateTarget(s.Target, 1)
		if len(s.Assignments) == 0 && !s.Versioned {
			v.addProblem("update without assignments")
		}
		for _, a := range s.Assignments {
			v.validateExpression(a.Path)
			v.validateExpression(a.Value)
		}
		v.validatePredicate(s.Where)
	case *DeleteStatement:
		v.validateCtes(s.With)
		v.push()
		defer v.pop()
		v.validateTarget(s.Target, 1)
		v.validatePredicate(s.Where)
	default:
		v.addProblem("unknown statement type: %T", stmt)
	}
}

func (v *validator) validateTarget(target *EntityRoot, columns int) {
	if target == nil || target.Entity == "" {
		v.addProblem("statement target entity is required")
		return
	}
	if columns == 0 {
		v.addProblem("insert into %s without columns", target.Entity)
	}
	if len(v.scopes) > 0 {
		v.declare(target.Alias)
	}
}

func (v *validator) validateCtes(ctes []*CteDefinition) {
	seen := map[string]bool{}
	for _, c := range ctes {
		if c == nil || c.Name == "" {
			v.addProblem("common table expression without a name")
			continue
		}
		if seen[c.Name] {
			v.addProblem("common table expression %q declared twice", c.Name)
		}
		seen[c.Name] = true
		v.isolated(func() { v.validateQueryPart(c.Query) })
	}
}

func (v *validator) validateQueryPart(q QueryPart) {
	switch part := q.(type) {
	case nil:
		v.addProblem("nil query part")
	case *QuerySpec:
		v.validateQuerySpec(part)
	case *QueryGroup:
		if len(part.Parts) < 2 {
			v.addProblem("%s group needs at least two parts, has %d", part.Operator, len(part.Parts))
		}
		for _, p := range part.Parts {
			v.validateQueryPart(p)
		}
		for _, o := range part.OrderBy {
			if o.Expr == nil {
				v.addProblem("nil order by expression")
			}
		}
	default:
		v.addProblem("unknown query part type: %T", q)
	}
}

func (v *validator) validateQuerySpec(spec *QuerySpec) {
	v.push()
	defer v.pop()

	if len(spec.From) == 0 {
		v.addProblem("query without from clause")
	}
	for _, f := range spec.From {
		v.validateFrom(f)
	}
	if len(spec.Select) == 0 {
		v.addProblem("query without select list")
	}
	for _, s := range spec.Select {
		v.validateExpression(s.Expr)
	}
	v.validatePredicate(spec.Where)
	for _, g := range spec.GroupBy {
		v.validateExpression(g)
	}
	v.validatePredicate(spec.Having)
	for _, o := range spec.OrderBy {
		v.validateExpression(o.Expr)
	}
}

func (v *validator) validateFrom(f From) {
	if f == nil {
		v.addProblem("nil from node")
		return
	}
	switch node := f.(type) {
	case *EntityRoot:
		if node.Entity == "" {
			v.addProblem("entity root without entity name")
		}
	case *DerivedRoot:
		v.validateSubquery(node.Query, node.Lateral)
	case *FunctionRoot:
		for _, a := range node.Args {
			v.validateExpression(a)
		}
	case *CteRoot:
		if node.Name == "" {
			v.addProblem("cte root without name")
		}
	}
	v.declare(f.Base().Alias)
	for _, j := range f.Base().Joins {
		v.validateJoin(j)
	}
}

func (v *validator) validateJoin(j Join) {
	if j == nil {
		v.addProblem("nil join")
		return
	}
	lateral := false
	switch node := j.(type) {
	case *AttributeJoin:
		if node.Attribute == "" {
			v.addProblem("attribute join without attribute")
		}
	case *EntityJoin:
		if node.Entity == "" {
			v.addProblem("entity join without entity name")
		}
	case *DerivedJoin:
		lateral = node.Lateral
		v.validateSubquery(node.Query, node.Lateral)
	case *FunctionJoin:
		lateral = node.Lateral
		for _, a := range node.Args {
			v.validateExpression(a)
		}
	}
	v.declare(j.Base().Alias)
	on := JoinCondition(j)
	switch j.(type) {
	case *EntityJoin, *DerivedJoin, *FunctionJoin, *CteJoin:
		if on == nil && !lateral && j.JoinKind() != JoinCross {
			v.addProblem("%s join %q requires an ON condition", j.JoinKind(), j.Base().Alias)
		}
	}
	v.validatePredicate(on)
	for _, nested := range j.Base().Joins {
		v.validateJoin(nested)
	}
}

func (v *validator) validateSubquery(q QueryPart, correlated bool) {
	if correlated {
		v.validateQueryPart(q)
		return
	}
	v.isolated(func() { v.validateQueryPart(q) })
}

func (v *validator) validatePath(p *Path) {
	if p == nil {
		v.addProblem("nil path")
		return
	}
	if !v.visible(p.Alias) {
		v.addProblem("path %s references unknown alias %q", p, p.Alias)
	}
}

func (v *validator) validateExpression(e Expression) {
	switch expr := e.(type) {
	case nil:
		v.addProblem("nil expression")
	case *Path:
		v.validatePath(expr)
	case *Literal, *Parameter, *EntityTypeLiteral:
	case *Binary:
		v.validateExpression(expr.Left)
		v.validateExpression(expr.Right)
	case *Negate:
		v.validateExpression(expr.Operand)
	case *Duration:
		v.validateExpression(expr.Magnitude)
	case *DurationBy:
		v.validateExpression(expr.Duration)
	case *CaseSearched:
		for _, w := range expr.Whens {
			v.validatePredicate(w.When)
			v.validateExpression(w.Then)
		}
		v.validateOptional(expr.Else)
	case *CaseSimple:
		v.validateExpression(expr.Operand)
		for _, w := range expr.Whens {
			v.validateExpression(w.When)
			v.validateExpression(w.Then)
		}
		v.validateOptional(expr.Else)
	case *Coalesce:
		for _, a := range expr.Args {
			v.validateExpression(a)
		}
	case *Function:
		for _, a := range expr.Args {
			v.validateExpression(a)
		}
	case *Tuple:
		for _, el := range expr.Elements {
			v.validateExpression(el)
		}
	case *Subquery:
		v.validateCtes(expr.With)
		v.validateQueryPart(expr.Query)
	case *EntityTypeOf:
		v.validatePath(expr.Path)
	default:
		v.addProblem("unknown expression type: %T", e)
	}
}

func (v *validator) validateOptional(e Expression) {
	if e != nil {
		v.validateExpression(e)
	}
}

func (v *validator) validatePredicate(p Predicate) {
	switch pred := p.(type) {
	case nil:
	case *Comparison:
		v.validateExpression(pred.Left)
		v.validateExpression(pred.Right)
	case *Junction:
		if len(pred.Predicates) == 0 {
			v.addProblem("empty junction")
		}
		for _, sub := range pred.Predicates {
			if sub == nil {
				v.addProblem("nil predicate in junction")
				continue
			}
			v.validatePredicate(sub)
		}
	case *Not:
		v.validatePredicate(pred.Predicate)
	case *InList:
		v.validateExpression(pred.Test)
		if len(pred.List) == 0 {
			v.addProblem("empty IN list")
		}
		for _, e := range pred.List {
			v.validateExpression(e)
		}
	case *InSubquery:
		v.validateExpression(pred.Test)
		v.validateQueryPart(pred.Query)
	case *Between:
		v.validateExpression(pred.Expr)
		v.validateExpression(pred.Low)
		v.validateExpression(pred.High)
	case *Like:
		v.validateExpression(pred.Expr)
		v.validateExpression(pred.Pattern)
		v.validateOptional(pred.Escape)
	case *Nullness:
		v.validateExpression(pred.Expr)
	case *Exists:
		v.validateQueryPart(pred.Query)
	case *BooleanExpr:
		v.validateExpression(pred.Expr)
	default:
		v.addProblem("unknown predicate type: %T", p)
	}
}
