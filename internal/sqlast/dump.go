package sqlast

import (
	"fmt"
	"strings"

	"github.com/roach88/ormsql/internal/ir"
)

// Dump prints a statement in a deterministic SQL-like form: literals are
// printed inline and placeholders show the parameter they bind. Dump is
// meant for debugging and golden files; use package sqlrender for SQL that
// a database accepts.
func Dump(s Statement) string {
	d := &dumper{}
	d.statement(s)
	return d.String()
}

// DumpExpression prints one expression the way Dump does.
func DumpExpression(e Expression) string {
	d := &dumper{}
	d.expr(e)
	return d.String()
}

// DumpPredicate prints one predicate the way Dump does.
func DumpPredicate(p Predicate) string {
	d := &dumper{}
	d.pred(p)
	return d.String()
}

type dumper struct {
	strings.Builder
}

func (d *dumper) list(n int, sep string, fn func(i int)) {
	for i := 0; i < n; i++ {
		if i > 0 {
			d.WriteString(sep)
		}
		fn(i)
	}
}

func (d *dumper) ctes(c *CteContainer) {
	if c == nil || c.Len() == 0 {
		return
	}
	d.WriteString("with ")
	if c.Recursive() {
		d.WriteString("recursive ")
	}
	stmts := c.Statements()
	d.list(len(stmts), ", ", func(i int) {
		s := stmts[i]
		fmt.Fprintf(d, "%s(%s) as (", s.Name(), strings.Join(s.Table.ColumnNames(), ","))
		d.query(s.Query)
		d.WriteString(")")
	})
	d.WriteString(" ")
}

func (d *dumper) statement(s Statement) {
	switch st := s.(type) {
	case *SelectStatement:
		d.ctes(st.Ctes)
		d.query(st.Query)
	case *InsertStatement:
		d.ctes(st.Ctes)
		fmt.Fprintf(d, "insert into %s (%s) ", st.Table.Table, strings.Join(st.Columns, ","))
		if st.Source != nil {
			d.query(st.Source)
			return
		}
		d.WriteString("values ")
		d.list(len(st.Values), ", ", func(i int) {
			d.WriteString("(")
			d.exprs(st.Values[i])
			d.WriteString(")")
		})
	case *UpdateStatement:
		d.ctes(st.Ctes)
		fmt.Fprintf(d, "update %s %s set ", st.Table.Table, st.Table.Alias)
		d.list(len(st.Assignments), ", ", func(i int) {
			fmt.Fprintf(d, "%s=", st.Assignments[i].Column)
			d.expr(st.Assignments[i].Value)
		})
		d.where(st.Where)
	case *DeleteStatement:
		d.ctes(st.Ctes)
		fmt.Fprintf(d, "delete from %s %s", st.Table.Table, st.Table.Alias)
		d.where(st.Where)
	default:
		fmt.Fprintf(d, "<%T>", s)
	}
}

func (d *dumper) where(p Predicate) {
	if p != nil {
		d.WriteString(" where ")
		d.pred(p)
	}
}

func (d *dumper) query(q QueryPart) {
	switch p := q.(type) {
	case *QuerySpec:
		d.spec(p)
	case *QueryGroup:
		d.list(len(p.Parts), " "+p.Operator.String()+" ", func(i int) {
			d.WriteString("(")
			d.query(p.Parts[i])
			d.WriteString(")")
		})
		d.orderAndLimits(p.OrderBy, p.Offset, p.Fetch)
	case nil:
		d.WriteString("<nil>")
	}
}

func (d *dumper) spec(s *QuerySpec) {
	d.WriteString("select ")
	if s.Distinct {
		d.WriteString("distinct ")
	}
	d.list(len(s.Select), ",", func(i int) {
		d.expr(s.Select[i].Expr)
		if a := s.Select[i].Alias; a != "" {
			d.WriteString(" " + a)
		}
	})
	if len(s.Roots) > 0 {
		d.WriteString(" from ")
		d.list(len(s.Roots), ", ", func(i int) { d.group(s.Roots[i]) })
	}
	d.where(s.Where)
	if len(s.GroupBy) > 0 {
		d.WriteString(" group by ")
		d.exprs(s.GroupBy)
	}
	if s.Having != nil {
		d.WriteString(" having ")
		d.pred(s.Having)
	}
	d.orderAndLimits(s.OrderBy, s.Offset, s.Fetch)
}

func (d *dumper) orderAndLimits(order []SortSpec, offset, fetch Expression) {
	if len(order) > 0 {
		d.WriteString(" order by ")
		d.list(len(order), ",", func(i int) {
			d.expr(order[i].Expr)
			if order[i].Descending {
				d.WriteString(" desc")
			}
		})
	}
	if offset != nil {
		d.WriteString(" offset ")
		d.expr(offset)
	}
	if fetch != nil {
		d.WriteString(" fetch ")
		d.expr(fetch)
	}
}

func (d *dumper) group(g *TableGroup) {
	nested := len(g.NestedJoins) > 0
	if nested {
		d.WriteString("(")
	}
	d.table(g.Primary)
	for _, tj := range g.UsedTableJoins() {
		fmt.Fprintf(d, " %s %s %s on ", tj.Type, tj.Table.Table, tj.Table.Alias)
		d.pred(tj.Predicate)
	}
	for _, j := range g.NestedJoins {
		d.join(j)
	}
	if nested {
		d.WriteString(")")
	}
	for _, j := range g.Joins {
		d.join(j)
	}
}

func (d *dumper) join(j *TableGroupJoin) {
	if !j.Renderable() {
		return
	}
	fmt.Fprintf(d, " %s ", j.Type)
	d.group(j.Group)
	if j.Predicate != nil {
		d.WriteString(" on ")
		d.pred(j.Predicate)
	}
}

func (d *dumper) table(t TableReference) {
	switch r := t.(type) {
	case *NamedTableReference:
		fmt.Fprintf(d, "%s %s", r.Table, r.Alias)
	case *DerivedTableReference:
		if r.Lateral {
			d.WriteString("lateral ")
		}
		d.WriteString("(")
		d.query(r.Query)
		fmt.Fprintf(d, ") %s(%s)", r.Alias, strings.Join(r.Columns, ","))
	case *FunctionTableReference:
		if r.Lateral {
			d.WriteString("lateral ")
		}
		fmt.Fprintf(d, "%s(", r.Function)
		d.exprs(r.Args)
		fmt.Fprintf(d, ") %s(%s)", r.Alias, strings.Join(r.Columns, ","))
	case *CteTableReference:
		fmt.Fprintf(d, "%s %s", r.Name, r.Alias)
	}
}

func (d *dumper) exprs(es []Expression) {
	d.list(len(es), ",", func(i int) { d.expr(es[i]) })
}

func (d *dumper) expr(e Expression) {
	switch x := e.(type) {
	case *ColumnReference:
		if x.Qualifier != "" {
			d.WriteString(x.Qualifier + ".")
		}
		d.WriteString(x.Column)
	case *Literal:
		b, err := ir.MarshalCanonical(x.Value)
		if err != nil {
			fmt.Fprintf(d, "<%v>", err)
			return
		}
		d.Write(b)
	case *JdbcParameter:
		fmt.Fprintf(d, ":%s#%d", x.Param, x.Occurrence)
		if x.ValueIndex >= 0 {
			fmt.Fprintf(d, "[%d]", x.ValueIndex)
		}
		if x.ComponentPath != "" {
			d.WriteString("." + x.ComponentPath)
		}
	case *BinaryArithmetic:
		d.WriteString("(")
		d.expr(x.Left)
		d.WriteString(x.Op.String())
		d.expr(x.Right)
		d.WriteString(")")
	case *UnaryMinus:
		d.WriteString("-")
		d.expr(x.Operand)
	case *CaseSearched:
		d.WriteString("case")
		for _, w := range x.Whens {
			d.WriteString(" when ")
			d.pred(w.When)
			d.WriteString(" then ")
			d.expr(w.Then)
		}
		d.caseElse(x.Else)
	case *CaseSimple:
		d.WriteString("case ")
		d.expr(x.Operand)
		for _, w := range x.Whens {
			d.WriteString(" when ")
			d.expr(w.When)
			d.WriteString(" then ")
			d.expr(w.Then)
		}
		d.caseElse(x.Else)
	case *Function:
		d.WriteString(x.Name + "(")
		d.exprs(x.Args)
		d.WriteString(")")
	case *TimestampAdd:
		fmt.Fprintf(d, "timestampadd(%s,", x.Unit)
		d.expr(x.Magnitude)
		d.WriteString(",")
		d.expr(x.Timestamp)
		d.WriteString(")")
	case *TimestampDiff:
		fmt.Fprintf(d, "timestampdiff(%s,", x.Unit)
		d.expr(x.From)
		d.WriteString(",")
		d.expr(x.To)
		d.WriteString(")")
	case *Duration:
		d.WriteString("duration(")
		d.expr(x.Magnitude)
		fmt.Fprintf(d, ",%s)", x.Unit)
	case *Tuple:
		d.WriteString("(")
		d.exprs(x.Elements)
		d.WriteString(")")
	case *ScalarSubquery:
		d.WriteString("(")
		d.query(x.Query)
		d.WriteString(")")
	case nil:
		d.WriteString("<nil>")
	default:
		fmt.Fprintf(d, "<%T>", e)
	}
}

func (d *dumper) caseElse(e Expression) {
	if e != nil {
		d.WriteString(" else ")
		d.expr(e)
	}
	d.WriteString(" end")
}

func not(negated bool) string {
	if negated {
		return "not "
	}
	return ""
}

func (d *dumper) pred(p Predicate) {
	switch x := p.(type) {
	case *Comparison:
		d.expr(x.Left)
		d.WriteString(x.Op.String())
		d.expr(x.Right)
	case *Junction:
		op := " and "
		if x.Kind == JunctionOr {
			op = " or "
		}
		d.WriteString("(")
		d.list(len(x.Predicates), op, func(i int) { d.pred(x.Predicates[i]) })
		d.WriteString(")")
	case *Negated:
		d.WriteString("not (")
		d.pred(x.Predicate)
		d.WriteString(")")
	case *InList:
		d.expr(x.Test)
		fmt.Fprintf(d, " %sin (", not(x.Negated))
		d.exprs(x.List)
		d.WriteString(")")
	case *InSubquery:
		d.expr(x.Test)
		fmt.Fprintf(d, " %sin (", not(x.Negated))
		d.query(x.Query)
		d.WriteString(")")
	case *Between:
		d.expr(x.Expr)
		fmt.Fprintf(d, " %sbetween ", not(x.Negated))
		d.expr(x.Low)
		d.WriteString(" and ")
		d.expr(x.High)
	case *Like:
		if x.CaseInsensitive {
			d.WriteString("lower(")
			d.expr(x.Expr)
			fmt.Fprintf(d, ") %slike lower(", not(x.Negated))
			d.expr(x.Pattern)
			d.WriteString(")")
		} else {
			d.expr(x.Expr)
			fmt.Fprintf(d, " %slike ", not(x.Negated))
			d.expr(x.Pattern)
		}
		if x.Escape != nil {
			d.WriteString(" escape ")
			d.expr(x.Escape)
		}
	case *Nullness:
		d.expr(x.Expr)
		if x.Negated {
			d.WriteString(" is not null")
		} else {
			d.WriteString(" is null")
		}
	case *Exists:
		fmt.Fprintf(d, "%sexists (", not(x.Negated))
		d.query(x.Query)
		d.WriteString(")")
	case *BooleanExpression:
		d.expr(x.Expr)
	case nil:
		d.WriteString("<nil>")
	default:
		fmt.Fprintf(d, "<%T>", p)
	}
}
