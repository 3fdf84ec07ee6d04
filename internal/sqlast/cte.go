package sqlast

import (
	"fmt"

	"github.com/emirpasic/gods/maps/linkedhashmap"

	mm "github.com/roach88/ormsql/internal/metamodel"
)

// CteColumn is an output column of a common table expression.
type CteColumn struct {
	Name string
	Type mm.Type
}

// CteTable describes the relation a CTE exposes.
type CteTable struct {
	Name      string
	Columns   []CteColumn
	Recursive bool
}

// ColumnNames returns the output column names in order.
func (t *CteTable) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// CteStatement is a named subquery. Query is nil while the body of a
// recursive CTE is being translated.
type CteStatement struct {
	Table *CteTable
	Query QueryPart
}

// Name returns the CTE's name.
func (s *CteStatement) Name() string { return s.Table.Name }

// CteContainer holds the CTEs of one scope in declaration order. Lookups
// fall through to the parent container; the parent never sees its
// children's CTEs.
type CteContainer struct {
	parent     *CteContainer
	statements *linkedhashmap.Map
}

// NewCteContainer creates a container chained to parent, which may be nil.
func NewCteContainer(parent *CteContainer) *CteContainer {
	return &CteContainer{parent: parent, statements: linkedhashmap.New()}
}

// Parent returns the enclosing container.
func (c *CteContainer) Parent() *CteContainer { return c.parent }

// Add registers a CTE in this scope. Names must be unique within a scope.
func (c *CteContainer) Add(stmt *CteStatement) error {
	if _, found := c.statements.Get(stmt.Name()); found {
		return fmt.Errorf("cte %q already declared in this scope", stmt.Name())
	}
	c.statements.Put(stmt.Name(), stmt)
	return nil
}

// Has reports whether this scope (not its parents) declares name.
func (c *CteContainer) Has(name string) bool {
	_, found := c.statements.Get(name)
	return found
}

// Get looks a CTE up in this scope, then in the enclosing scopes.
func (c *CteContainer) Get(name string) (*CteStatement, bool) {
	for s := c; s != nil; s = s.parent {
		if v, found := s.statements.Get(name); found {
			return v.(*CteStatement), true
		}
	}
	return nil, false
}

// Statements returns this scope's CTEs in declaration order.
func (c *CteContainer) Statements() []*CteStatement {
	values := c.statements.Values()
	out := make([]*CteStatement, len(values))
	for i, v := range values {
		out[i] = v.(*CteStatement)
	}
	return out
}

// Len returns the number of CTEs declared in this scope.
func (c *CteContainer) Len() int { return c.statements.Size() }

// Recursive reports whether any CTE of this scope references itself.
func (c *CteContainer) Recursive() bool {
	for _, s := range c.Statements() {
		if s.Table.Recursive {
			return true
		}
	}
	return false
}
