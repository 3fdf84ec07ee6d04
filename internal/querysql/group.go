package querysql

import (
	"fmt"
	"slices"

	"github.com/roach88/ormsql/internal/ir"
	mm "github.com/roach88/ormsql/internal/metamodel"
	"github.com/roach88/ormsql/internal/queryir"
	"github.com/roach88/ormsql/internal/sqlast"
)

// queryGroup translates a set operation. Every part is translated in its
// own scope with the options of the group; the parts must agree on arity,
// on column types and on what they fetch.
func (t *translation) queryGroup(q *queryir.QueryGroup, opts partOptions) (*sqlast.QueryGroup, *partInfo) {
	out := &sqlast.QueryGroup{Operator: setOperator(q.Operator)}
	var infos []*partInfo
	for i, part := range q.Parts {
		t.at(fmt.Sprintf("part[%d]", i), func() {
			p, info := t.queryPart(part, opts)
			out.Parts = append(out.Parts, p)
			infos = append(infos, info)
		})
	}
	if len(infos) == 0 {
		t.fail(ErrCodeUnsupported, "set operation without parts")
	}
	t.checkGroupParts(infos)

	info := infos[0]
	t.in(clauseOrderBy, func() {
		for i, item := range q.OrderBy {
			t.at(fmt.Sprintf("orderBy[%d]", i), func() {
				for _, c := range t.groupSortKey(item.Expr, info, out.Parts[0]) {
					out.OrderBy = append(out.OrderBy, sqlast.SortSpec{Expr: c, Descending: item.Descending})
				}
			})
		}
	})
	out.Offset, out.Fetch = t.limits(q.Offset, q.Fetch)
	return out, info
}

// checkGroupParts verifies that the parts of a set operation line up.
func (t *translation) checkGroupParts(infos []*partInfo) {
	first := infos[0]
	for i, info := range infos[1:] {
		if len(info.types) != len(first.types) {
			t.fail(ErrCodeQueryGroupArity,
				"All query parts in a query group must have the same arity: part 0 has %d, part %d has %d",
				len(first.types), i+1, len(info.types))
		}
		for j, typ := range info.types {
			if a, b := first.types[j], typ; a != nil && b != nil && !mm.Compatible(a, b) {
				t.fail(ErrCodeQueryGroupType,
					"select item %d of part %d has type %s, incompatible with %s in part 0",
					j, i+1, b.TypeName(), a.TypeName())
			}
		}
		if !slices.Equal(first.fetches, info.fetches) {
			t.fail(ErrCodeQueryGroupFetch, "part %d of the query group fetches differently from part 0", i+1)
		}
	}
}

// groupSortKey resolves an ORDER BY item of a set operation. Items can only
// name a select item of the first part, by alias or by 1-based position;
// the select item is aliased so the key can reference it.
func (t *translation) groupSortKey(e queryir.Expression, info *partInfo, first sqlast.QueryPart) []sqlast.Expression {
	pos := -1
	switch n := e.(type) {
	case *queryir.Path:
		if len(n.Steps) == 0 {
			pos = slices.IndexFunc(info.outputs, func(o virtualColumn) bool { return o.Name == n.Alias })
		}
	case *queryir.Literal:
		if v, ok := n.Value.(ir.IRInt); ok && int(v) >= 1 && int(v) <= len(info.outputs) {
			pos = int(v) - 1
		}
	}
	if pos < 0 {
		t.fail(ErrCodeUnsupported, "order by of a set operation must name a select item")
	}
	o := info.outputs[pos]
	if mm.EntityOf(o.Type) != nil {
		t.fail(ErrCodeUnsupported, "cannot order a set operation by entity %s", o.Name)
	}

	spec := firstSpec(first)
	start := 0
	for _, prev := range info.outputs[:pos] {
		start += len(prev.Columns)
	}
	out := make([]sqlast.Expression, 0, len(o.Columns))
	for i, c := range o.Columns {
		sel := &spec.Select[start+i]
		if sel.Alias == "" {
			sel.Alias = c
		}
		out = append(out, &sqlast.ColumnReference{Column: sel.Alias, Type: sel.Expr.ExprType()})
	}
	return out
}

// firstSpec returns the leftmost query specification of a query part.
func firstSpec(q sqlast.QueryPart) *sqlast.QuerySpec {
	for {
		switch p := q.(type) {
		case *sqlast.QuerySpec:
			return p
		case *sqlast.QueryGroup:
			q = p.Parts[0]
		default:
			panic(newAssertionFailure("unknown query part %T", q))
		}
	}
}
