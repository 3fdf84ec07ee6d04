package querysql

import (
	"fmt"

	"github.com/roach88/ormsql/internal/queryir"
	"github.com/roach88/ormsql/internal/sqlast"
)

// cteScope maps the CTE names declared by one WITH clause to the
// statements registered for them.
//
// Every CTE of the statement is rendered in the statement's WITH clause,
// whatever scope declared it; names generated for nested declarations are
// made unique across the statement. Visibility still follows the
// declaring scope: container chains to the enclosing scope's container.
type cteScope struct {
	parent    *cteScope
	container *sqlast.CteContainer
	names     map[string]string
}

// withCtes declares defs in a new scope and runs fn inside it. It returns
// the statement-level container when called for the outermost scope and
// nil otherwise.
func (t *translation) withCtes(defs []*queryir.CteDefinition, fn func()) *sqlast.CteContainer {
	top := t.ctes == nil
	if !top && len(defs) == 0 {
		fn()
		return nil
	}
	var container *sqlast.CteContainer
	if top {
		container = sqlast.NewCteContainer(nil)
		t.cteRoot = container
	} else {
		container = sqlast.NewCteContainer(t.ctes.container)
	}
	saved := t.ctes
	t.ctes = &cteScope{parent: saved, container: container, names: make(map[string]string)}
	defer func() { t.ctes = saved }()

	for i, def := range defs {
		t.at(fmt.Sprintf("with[%d]", i), func() { t.declareCte(def) })
	}
	fn()
	if top {
		return container
	}
	return nil
}

// lookupCte returns the statement a CTE name refers to in the current
// scope, or nil.
func (t *translation) lookupCte(name string) *sqlast.CteStatement {
	for s := t.ctes; s != nil; s = s.parent {
		if generated, ok := s.names[name]; ok {
			stmt, _ := s.container.Get(generated)
			return stmt
		}
	}
	return nil
}

// cteName generates a statement-unique name for a CTE, suffixing the
// declared name on collision.
func (t *translation) cteName(name string) string {
	if !t.cteRoot.Has(name) {
		return name
	}
	for i := 1; i <= t.cfg.CteNameRetries; i++ {
		candidate := fmt.Sprintf("%s_%d", name, i)
		if !t.cteRoot.Has(candidate) {
			return candidate
		}
	}
	t.fail(ErrCodeCteNameExhausted, "no free name for cte %q after %d attempts", name, t.cfg.CteNameRetries)
	return ""
}

func (t *translation) registerCte(declared string, stmt *sqlast.CteStatement) {
	s := t.ctes
	if _, dup := s.names[declared]; dup {
		t.fail(ErrCodeUnsupported, "cte %q declared twice in one WITH clause", declared)
	}
	if err := s.container.Add(stmt); err != nil {
		t.fail(ErrCodeUnsupported, "%v", err)
	}
	if s.container != t.cteRoot {
		if err := t.cteRoot.Add(stmt); err != nil {
			t.fail(ErrCodeUnsupported, "%v", err)
		}
	}
	s.names[declared] = stmt.Name()
}

// declareCte translates a CTE body and registers it. The first part of a
// recursive body is registered before the second part is translated, so
// that part can read it.
func (t *translation) declareCte(def *queryir.CteDefinition) {
	stmt := &sqlast.CteStatement{Table: &sqlast.CteTable{Name: t.cteName(def.Name)}}
	opts := partOptions{names: def.Columns}

	if group, ok := recursiveBody(def); ok {
		stmt.Table.Recursive = true
		first, info := t.queryPart(group.Parts[0], opts)
		stmt.Table.Columns = cteColumns(info)
		t.registerCte(def.Name, stmt)
		second, other := t.queryPart(group.Parts[1], opts)
		t.checkGroupParts([]*partInfo{info, other})
		stmt.Query = &sqlast.QueryGroup{Operator: setOperator(group.Operator), Parts: []sqlast.QueryPart{first, second}}
		return
	}

	q, info := t.queryPart(def.Query, opts)
	stmt.Table.Columns = cteColumns(info)
	stmt.Query = q
	t.registerCte(def.Name, stmt)
}

func cteColumns(info *partInfo) []sqlast.CteColumn {
	var out []sqlast.CteColumn
	for _, o := range info.outputs {
		if len(o.Columns) == 1 {
			out = append(out, sqlast.CteColumn{Name: o.Columns[0], Type: o.Type})
			continue
		}
		for _, c := range o.Columns {
			out = append(out, sqlast.CteColumn{Name: c})
		}
	}
	return out
}

// recursiveBody reports whether a CTE body is recursive: a two-part
// UNION or UNION ALL, without ordering or limits of its own, whose second
// part reads the CTE.
func recursiveBody(def *queryir.CteDefinition) (*queryir.QueryGroup, bool) {
	g, ok := def.Query.(*queryir.QueryGroup)
	if !ok || len(g.Parts) != 2 {
		return nil, false
	}
	if g.Operator != queryir.SetUnion && g.Operator != queryir.SetUnionAll {
		return nil, false
	}
	if len(g.OrderBy) > 0 || g.Offset != nil || g.Fetch != nil {
		return nil, false
	}
	return g, readsCte(g.Parts[1], def.Name)
}

// readsCte reports whether a query part reads the CTE name anywhere,
// including derived tables and subqueries.
func readsCte(q queryir.QueryPart, name string) bool {
	switch p := q.(type) {
	case *queryir.QueryGroup:
		for _, part := range p.Parts {
			if readsCte(part, name) {
				return true
			}
		}
	case *queryir.QuerySpec:
		for _, f := range p.From {
			if fromReadsCte(f, name) {
				return true
			}
		}
		for _, s := range p.Select {
			if exprReadsCte(s.Expr, name) {
				return true
			}
		}
		return predReadsCte(p.Where, name) || predReadsCte(p.Having, name)
	}
	return false
}

func fromReadsCte(f queryir.From, name string) bool {
	switch n := f.(type) {
	case *queryir.CteRoot:
		if n.Name == name {
			return true
		}
	case *queryir.CteJoin:
		if n.Name == name {
			return true
		}
	case *queryir.DerivedRoot:
		if readsCte(n.Query, name) {
			return true
		}
	case *queryir.DerivedJoin:
		if readsCte(n.Query, name) {
			return true
		}
	}
	if j, ok := f.(queryir.Join); ok && predReadsCte(queryir.JoinCondition(j), name) {
		return true
	}
	for _, j := range f.Base().Joins {
		if fromReadsCte(j, name) {
			return true
		}
	}
	return false
}

func predReadsCte(p queryir.Predicate, name string) bool {
	switch n := p.(type) {
	case *queryir.Junction:
		for _, sub := range n.Predicates {
			if predReadsCte(sub, name) {
				return true
			}
		}
	case *queryir.Not:
		return predReadsCte(n.Predicate, name)
	case *queryir.Exists:
		return readsCte(n.Query, name)
	case *queryir.InSubquery:
		return readsCte(n.Query, name) || exprReadsCte(n.Test, name)
	case *queryir.Comparison:
		return exprReadsCte(n.Left, name) || exprReadsCte(n.Right, name)
	case *queryir.InList:
		if exprReadsCte(n.Test, name) {
			return true
		}
		for _, e := range n.List {
			if exprReadsCte(e, name) {
				return true
			}
		}
	}
	return false
}

func exprReadsCte(e queryir.Expression, name string) bool {
	switch n := e.(type) {
	case *queryir.Subquery:
		return readsCte(n.Query, name)
	case *queryir.Binary:
		return exprReadsCte(n.Left, name) || exprReadsCte(n.Right, name)
	case *queryir.Function:
		for _, a := range n.Args {
			if exprReadsCte(a, name) {
				return true
			}
		}
	case *queryir.Coalesce:
		for _, a := range n.Args {
			if exprReadsCte(a, name) {
				return true
			}
		}
	}
	return false
}

func setOperator(op queryir.SetOperator) sqlast.SetOperator {
	switch op {
	case queryir.SetUnionAll:
		return sqlast.SetUnionAll
	case queryir.SetIntersect:
		return sqlast.SetIntersect
	case queryir.SetIntersectAll:
		return sqlast.SetIntersectAll
	case queryir.SetExcept:
		return sqlast.SetExcept
	case queryir.SetExceptAll:
		return sqlast.SetExceptAll
	}
	return sqlast.SetUnion
}

