package sqlrender

import (
	"fmt"
	"regexp"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/roach88/ormsql/internal/ir"
	mm "github.com/roach88/ormsql/internal/metamodel"
	"github.com/roach88/ormsql/internal/sqlast"
)

// Rendered is a statement spelled in one dialect.
type Rendered struct {
	SQL string
	// Params has one entry per placeholder of SQL, in order. An entry is
	// nil where the placeholder binds a literal of the statement; the
	// literal's driver value is then in Literals at the same index.
	Params   []*sqlast.JdbcParameter
	Literals []any
}

// Render spells stmt in dialect d.
func Render(stmt sqlast.Statement, d mm.Dialect) (*Rendered, error) {
	if stmt == nil {
		return nil, fmt.Errorf("cannot render nil statement")
	}
	f, err := flavorOf(d)
	if err != nil {
		return nil, err
	}
	r := &renderer{f: f}
	r.statement(stmt)
	if r.err != nil {
		return nil, r.err
	}
	text, err := f.placeholders.ReplacePlaceholders(r.String())
	if err != nil {
		return nil, fmt.Errorf("replace placeholders: %w", err)
	}
	return &Rendered{SQL: text, Params: r.params, Literals: r.literals}, nil
}

// flavor holds what differs between the supported dialects.
type flavor struct {
	name         string
	placeholders sq.PlaceholderFormat
	postgres     bool
}

func flavorOf(d mm.Dialect) (*flavor, error) {
	if d == nil {
		d = mm.SQLite()
	}
	switch d.Name() {
	case "sqlite":
		return &flavor{name: "sqlite", placeholders: sq.Question}, nil
	case "postgresql":
		return &flavor{name: "postgresql", placeholders: sq.Dollar, postgres: true}, nil
	}
	return nil, fmt.Errorf("no renderer for dialect %q", d.Name())
}

type renderer struct {
	strings.Builder
	f        *flavor
	params   []*sqlast.JdbcParameter
	literals []any
	err      error
}

// errorf records the first rendering error. Rendering goes on so the
// builder stays consistent; the text is discarded.
func (r *renderer) errorf(format string, args ...any) {
	if r.err == nil {
		r.err = fmt.Errorf(format, args...)
	}
}

func (r *renderer) bind(p *sqlast.JdbcParameter, literal any) {
	r.WriteString("?")
	r.params = append(r.params, p)
	r.literals = append(r.literals, literal)
}

func (r *renderer) list(n int, sep string, fn func(i int)) {
	for i := 0; i < n; i++ {
		if i > 0 {
			r.WriteString(sep)
		}
		fn(i)
	}
}

var plainIdent = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

var reserved = map[string]bool{
	"all": true, "and": true, "as": true, "by": true, "case": true, "check": true,
	"column": true, "default": true, "desc": true, "distinct": true, "else": true,
	"end": true, "from": true, "group": true, "having": true, "in": true,
	"index": true, "join": true, "key": true, "limit": true, "not": true,
	"null": true, "offset": true, "on": true, "or": true, "order": true,
	"primary": true, "references": true, "select": true, "table": true,
	"then": true, "to": true, "union": true, "user": true, "values": true,
	"when": true, "where": true,
}

// ident quotes a name unless it is a plain lower-case identifier.
func ident(name string) string {
	if plainIdent.MatchString(name) && !reserved[name] {
		return name
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func idents(names []string) string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = ident(n)
	}
	return strings.Join(out, ", ")
}

func (r *renderer) ctes(c *sqlast.CteContainer) {
	if c == nil || c.Len() == 0 {
		return
	}
	r.WriteString("with ")
	if c.Recursive() {
		r.WriteString("recursive ")
	}
	stmts := c.Statements()
	r.list(len(stmts), ", ", func(i int) {
		s := stmts[i]
		fmt.Fprintf(r, "%s(%s) as (", ident(s.Name()), idents(s.Table.ColumnNames()))
		if s.Query == nil {
			r.errorf("cte %s has no query", s.Name())
		} else {
			r.query(s.Query, nil)
		}
		r.WriteString(")")
	})
	r.WriteString(" ")
}

func (r *renderer) statement(s sqlast.Statement) {
	switch st := s.(type) {
	case *sqlast.SelectStatement:
		r.ctes(st.Ctes)
		r.query(st.Query, nil)
	case *sqlast.InsertStatement:
		r.ctes(st.Ctes)
		fmt.Fprintf(r, "insert into %s (%s) ", ident(st.Table.Table), idents(st.Columns))
		if st.Source != nil {
			r.query(st.Source, nil)
			return
		}
		r.WriteString("values ")
		r.list(len(st.Values), ", ", func(i int) {
			r.WriteString("(")
			r.exprs(st.Values[i])
			r.WriteString(")")
		})
	case *sqlast.UpdateStatement:
		r.ctes(st.Ctes)
		fmt.Fprintf(r, "update %s as %s set ", ident(st.Table.Table), ident(st.Table.Alias))
		r.list(len(st.Assignments), ", ", func(i int) {
			fmt.Fprintf(r, "%s = ", ident(st.Assignments[i].Column))
			r.expr(st.Assignments[i].Value)
		})
		r.where(st.Where)
	case *sqlast.DeleteStatement:
		r.ctes(st.Ctes)
		fmt.Fprintf(r, "delete from %s as %s", ident(st.Table.Table), ident(st.Table.Alias))
		r.where(st.Where)
	default:
		r.errorf("unsupported statement %T", s)
	}
}

func (r *renderer) where(p sqlast.Predicate) {
	if p != nil {
		r.WriteString(" where ")
		r.pred(p)
	}
}

// query renders a query part. names, when set, rename the output columns
// of the part; SQLite has no column list on derived tables, so the names
// go on the select items instead.
func (r *renderer) query(q sqlast.QueryPart, names []string) {
	switch p := q.(type) {
	case *sqlast.QuerySpec:
		r.spec(p, names)
	case *sqlast.QueryGroup:
		r.group(p, names)
	case nil:
		r.errorf("missing query")
	default:
		r.errorf("unsupported query part %T", q)
	}
}

func (r *renderer) group(g *sqlast.QueryGroup, names []string) {
	if !r.f.postgres && (g.Operator == sqlast.SetIntersectAll || g.Operator == sqlast.SetExceptAll) {
		r.errorf("%s does not support %s", r.f.name, g.Operator)
	}
	r.list(len(g.Parts), " "+g.Operator.String()+" ", func(i int) {
		if i > 0 {
			names = nil
		}
		r.setPart(g.Parts[i], names)
	})
	r.orderAndLimits(g.OrderBy, g.Offset, g.Fetch)
}

// setPart renders an operand of a set operation. SQLite does not accept
// parenthesized operands: an operand with its own ordering, limits or
// set operator is read through a subquery instead.
func (r *renderer) setPart(q sqlast.QueryPart, names []string) {
	if r.f.postgres {
		r.WriteString("(")
		r.query(q, names)
		r.WriteString(")")
		return
	}
	if s, ok := q.(*sqlast.QuerySpec); ok && len(s.OrderBy) == 0 && s.Offset == nil && s.Fetch == nil {
		r.spec(s, names)
		return
	}
	r.WriteString("select * from (")
	r.query(q, names)
	r.WriteString(")")
}

func (r *renderer) spec(s *sqlast.QuerySpec, names []string) {
	r.WriteString("select ")
	if s.Distinct {
		r.WriteString("distinct ")
	}
	if len(s.Select) == 0 {
		r.WriteString("1")
	}
	r.list(len(s.Select), ", ", func(i int) {
		r.expr(s.Select[i].Expr)
		alias := s.Select[i].Alias
		if i < len(names) {
			alias = names[i]
		}
		if alias != "" {
			r.WriteString(" as " + ident(alias))
		}
	})
	if len(s.Roots) > 0 {
		r.WriteString(" from ")
		r.list(len(s.Roots), ", ", func(i int) { r.tableGroup(s.Roots[i]) })
	}
	r.where(s.Where)
	if len(s.GroupBy) > 0 {
		r.WriteString(" group by ")
		r.exprs(s.GroupBy)
	}
	if s.Having != nil {
		r.WriteString(" having ")
		r.pred(s.Having)
	}
	r.orderAndLimits(s.OrderBy, s.Offset, s.Fetch)
}

func (r *renderer) orderAndLimits(order []sqlast.SortSpec, offset, fetch sqlast.Expression) {
	if len(order) > 0 {
		r.WriteString(" order by ")
		r.list(len(order), ", ", func(i int) {
			r.expr(order[i].Expr)
			if order[i].Descending {
				r.WriteString(" desc")
			}
		})
	}
	switch {
	case fetch != nil:
		r.WriteString(" limit ")
		r.expr(fetch)
	case offset != nil && !r.f.postgres:
		r.WriteString(" limit -1")
	}
	if offset != nil {
		r.WriteString(" offset ")
		r.expr(offset)
	}
}

func (r *renderer) tableGroup(g *sqlast.TableGroup) {
	nested := len(g.NestedJoins) > 0
	if nested {
		r.WriteString("(")
	}
	r.table(g.Primary)
	for _, tj := range g.UsedTableJoins() {
		fmt.Fprintf(r, " %s %s %s on ", tj.Type, ident(tj.Table.Table), ident(tj.Table.Alias))
		r.pred(tj.Predicate)
	}
	for _, j := range g.NestedJoins {
		r.join(j)
	}
	if nested {
		r.WriteString(")")
	}
	for _, j := range g.Joins {
		r.join(j)
	}
}

func (r *renderer) join(j *sqlast.TableGroupJoin) {
	if !j.Renderable() {
		return
	}
	if !r.f.postgres && (j.Type == sqlast.JoinRight || j.Type == sqlast.JoinFull) {
		r.errorf("%s is not supported by %s", j.Type, r.f.name)
	}
	fmt.Fprintf(r, " %s ", j.Type)
	r.tableGroup(j.Group)
	switch {
	case j.Type == sqlast.JoinCross:
	case j.Predicate != nil:
		r.WriteString(" on ")
		r.pred(j.Predicate)
	default:
		r.WriteString(" on 1 = 1")
	}
}

func (r *renderer) table(t sqlast.TableReference) {
	switch ref := t.(type) {
	case *sqlast.NamedTableReference:
		fmt.Fprintf(r, "%s %s", ident(ref.Table), ident(ref.Alias))
	case *sqlast.DerivedTableReference:
		r.lateral(ref.Lateral)
		r.WriteString("(")
		if r.f.postgres {
			r.query(ref.Query, nil)
			fmt.Fprintf(r, ") %s(%s)", ident(ref.Alias), idents(ref.Columns))
			return
		}
		r.query(ref.Query, ref.Columns)
		fmt.Fprintf(r, ") %s", ident(ref.Alias))
	case *sqlast.FunctionTableReference:
		r.lateral(ref.Lateral)
		fmt.Fprintf(r, "%s(", ref.Function)
		r.exprs(ref.Args)
		if r.f.postgres {
			fmt.Fprintf(r, ") %s(%s)", ident(ref.Alias), idents(ref.Columns))
			return
		}
		fmt.Fprintf(r, ") %s", ident(ref.Alias))
	case *sqlast.CteTableReference:
		fmt.Fprintf(r, "%s %s", ident(ref.Name), ident(ref.Alias))
	default:
		r.errorf("unsupported table reference %T", t)
	}
}

func (r *renderer) lateral(lateral bool) {
	if !lateral {
		return
	}
	if !r.f.postgres {
		r.errorf("%s does not support lateral", r.f.name)
	}
	r.WriteString("lateral ")
}

func (r *renderer) exprs(es []sqlast.Expression) {
	r.list(len(es), ", ", func(i int) { r.expr(es[i]) })
}

// Functions written without parentheses.
var niladic = map[string]bool{
	"current_timestamp": true,
	"current_date":      true,
	"current_time":      true,
}

func (r *renderer) expr(e sqlast.Expression) {
	switch x := e.(type) {
	case *sqlast.ColumnReference:
		if x.Qualifier != "" {
			r.WriteString(ident(x.Qualifier) + ".")
		}
		r.WriteString(ident(x.Column))
	case *sqlast.Literal:
		if ir.IsNull(x.Value) {
			r.WriteString("null")
			return
		}
		v, err := ir.DriverValue(x.Value)
		if err != nil {
			r.errorf("literal: %w", err)
		}
		r.bind(nil, v)
	case *sqlast.JdbcParameter:
		r.bind(x, nil)
	case *sqlast.BinaryArithmetic:
		r.WriteString("(")
		r.expr(x.Left)
		fmt.Fprintf(r, " %s ", x.Op)
		r.expr(x.Right)
		r.WriteString(")")
	case *sqlast.UnaryMinus:
		r.WriteString("-")
		r.expr(x.Operand)
	case *sqlast.CaseSearched:
		r.WriteString("case")
		for _, w := range x.Whens {
			r.WriteString(" when ")
			r.pred(w.When)
			r.WriteString(" then ")
			r.expr(w.Then)
		}
		r.caseElse(x.Else)
	case *sqlast.CaseSimple:
		r.WriteString("case ")
		r.expr(x.Operand)
		for _, w := range x.Whens {
			r.WriteString(" when ")
			r.expr(w.When)
			r.WriteString(" then ")
			r.expr(w.Then)
		}
		r.caseElse(x.Else)
	case *sqlast.Function:
		switch {
		case niladic[x.Name] && len(x.Args) == 0:
			r.WriteString(x.Name)
		case x.Name == "count" && len(x.Args) == 0:
			r.WriteString("count(*)")
		default:
			r.WriteString(x.Name + "(")
			r.exprs(x.Args)
			r.WriteString(")")
		}
	case *sqlast.TimestampAdd:
		r.timestampAdd(x)
	case *sqlast.TimestampDiff:
		r.timestampDiff(x)
	case *sqlast.Duration:
		r.expr(x.Magnitude)
	case *sqlast.Tuple:
		r.WriteString("(")
		r.exprs(x.Elements)
		r.WriteString(")")
	case *sqlast.ScalarSubquery:
		r.WriteString("(")
		r.query(x.Query, nil)
		r.WriteString(")")
	case nil:
		r.errorf("missing expression")
	default:
		r.errorf("unsupported expression %T", e)
	}
}

func (r *renderer) caseElse(e sqlast.Expression) {
	if e != nil {
		r.WriteString(" else ")
		r.expr(e)
	}
	r.WriteString(" end")
}

func not(negated bool) string {
	if negated {
		return "not "
	}
	return ""
}

func (r *renderer) pred(p sqlast.Predicate) {
	switch x := p.(type) {
	case *sqlast.Comparison:
		r.expr(x.Left)
		fmt.Fprintf(r, " %s ", x.Op)
		r.expr(x.Right)
	case *sqlast.Junction:
		op := " and "
		if x.Kind == sqlast.JunctionOr {
			op = " or "
		}
		r.WriteString("(")
		r.list(len(x.Predicates), op, func(i int) { r.pred(x.Predicates[i]) })
		r.WriteString(")")
	case *sqlast.Negated:
		r.WriteString("not (")
		r.pred(x.Predicate)
		r.WriteString(")")
	case *sqlast.InList:
		if len(x.List) == 0 {
			// Nothing is in the empty list.
			if x.Negated {
				r.WriteString("1 = 1")
			} else {
				r.WriteString("1 = 0")
			}
			return
		}
		r.expr(x.Test)
		fmt.Fprintf(r, " %sin (", not(x.Negated))
		r.exprs(x.List)
		r.WriteString(")")
	case *sqlast.InSubquery:
		r.expr(x.Test)
		fmt.Fprintf(r, " %sin (", not(x.Negated))
		r.query(x.Query, nil)
		r.WriteString(")")
	case *sqlast.Between:
		r.expr(x.Expr)
		fmt.Fprintf(r, " %sbetween ", not(x.Negated))
		r.expr(x.Low)
		r.WriteString(" and ")
		r.expr(x.High)
	case *sqlast.Like:
		if x.CaseInsensitive {
			r.WriteString("lower(")
			r.expr(x.Expr)
			fmt.Fprintf(r, ") %slike lower(", not(x.Negated))
			r.expr(x.Pattern)
			r.WriteString(")")
		} else {
			r.expr(x.Expr)
			fmt.Fprintf(r, " %slike ", not(x.Negated))
			r.expr(x.Pattern)
		}
		if x.Escape != nil {
			r.WriteString(" escape ")
			r.expr(x.Escape)
		}
	case *sqlast.Nullness:
		r.nullness(x)
	case *sqlast.Exists:
		fmt.Fprintf(r, "%sexists (", not(x.Negated))
		r.query(x.Query, nil)
		r.WriteString(")")
	case *sqlast.BooleanExpression:
		r.expr(x.Expr)
	case nil:
		r.errorf("missing predicate")
	default:
		r.errorf("unsupported predicate %T", p)
	}
}

// nullness tests every component of a row value. A row is null when all
// of its components are.
func (r *renderer) nullness(n *sqlast.Nullness) {
	test := " is null"
	if n.Negated {
		test = " is not null"
	}
	parts := sqlast.Flatten(n.Expr)
	if len(parts) == 1 {
		r.expr(parts[0])
		r.WriteString(test)
		return
	}
	op := " and "
	if n.Negated {
		op = " or "
	}
	r.WriteString("(")
	r.list(len(parts), op, func(i int) {
		r.expr(parts[i])
		r.WriteString(test)
	})
	r.WriteString(")")
}
