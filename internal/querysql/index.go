package querysql

import (
	mm "github.com/roach88/ormsql/internal/metamodel"
	"github.com/roach88/ormsql/internal/queryir"
	"github.com/roach88/ormsql/internal/sqlast"
)

// aliasKind says what a from-clause alias stands for.
type aliasKind int

const (
	// aliasEntity: a root or join whose rows are entities.
	aliasEntity aliasKind = iota + 1
	// aliasElements: a join over a collection of basic values.
	aliasElements
	// aliasVirtual: a derived, function or cte table with named columns.
	aliasVirtual
	// aliasIndex: the index or key part of a plural join.
	aliasIndex
)

// virtualColumn is a named output column of a derived, function or cte
// table. Entity-valued columns carry the target identifier and navigate
// like an owning to-one.
type virtualColumn struct {
	Name    string
	Columns []string
	Type    mm.Type
}

// aliasEntry is what a from-clause alias resolves to.
type aliasEntry struct {
	alias   string
	kind    aliasKind
	nav     *queryir.NavigablePath
	group   *sqlast.TableGroup
	attr    *mm.Attribute
	columns []virtualColumn
}

func (e *aliasEntry) column(name string) (virtualColumn, bool) {
	for _, c := range e.columns {
		if c.Name == name {
			return c, true
		}
	}
	return virtualColumn{}, false
}

// fromClauseIndex maps navigable paths to table groups for one query
// scope.
//
// Child indexes are created for subqueries, CTE bodies and derived tables.
// A correlated child (a WHERE subquery, a lateral derived table) resolves
// aliases through its parent; an uncorrelated one sees only its own. A
// child stays reachable through Children after its scope closes, so
// post-processing can visit every group of the statement.
type fromClauseIndex struct {
	parent     *fromClauseIndex
	correlated bool
	groups     map[string]*sqlast.TableGroup
	owned      map[*sqlast.TableGroup]bool
	aliases    map[string]*aliasEntry
	children   []*fromClauseIndex
}

func newFromClauseIndex(parent *fromClauseIndex, correlated bool) *fromClauseIndex {
	x := &fromClauseIndex{
		parent:     parent,
		correlated: correlated,
		groups:     make(map[string]*sqlast.TableGroup),
		owned:      make(map[*sqlast.TableGroup]bool),
		aliases:    make(map[string]*aliasEntry),
	}
	if parent != nil {
		parent.children = append(parent.children, x)
	}
	return x
}

// Find returns the group registered for path in this scope, or nil.
func (x *fromClauseIndex) Find(path *queryir.NavigablePath) *sqlast.TableGroup {
	return x.groups[path.Full()]
}

// Register records the group materializing path. A path is registered at
// most once per scope.
func (x *fromClauseIndex) Register(path *queryir.NavigablePath, g *sqlast.TableGroup) {
	_, dup := x.groups[path.Full()]
	assertf(!dup, "path %s registered twice", path.Full())
	x.groups[path.Full()] = g
	x.owned[g] = true
}

// ResolveOrCreate returns the group for path, creating and registering it
// with create when the scope has none yet.
func (x *fromClauseIndex) ResolveOrCreate(path *queryir.NavigablePath, create func() *sqlast.TableGroup) *sqlast.TableGroup {
	if g := x.Find(path); g != nil {
		return g
	}
	g := create()
	x.Register(path, g)
	return g
}

// Owns reports whether g was registered in this scope.
func (x *fromClauseIndex) Owns(g *sqlast.TableGroup) bool {
	return x.owned[g]
}

// RegisterAlias declares an alias. It reports false when the alias is
// already declared in this scope.
func (x *fromClauseIndex) RegisterAlias(e *aliasEntry) bool {
	if e.alias == "" {
		return true
	}
	if _, dup := x.aliases[e.alias]; dup {
		return false
	}
	x.aliases[e.alias] = e
	return true
}

// Lookup resolves an alias in this scope, then through correlated
// parents. It also returns the index declaring the alias.
func (x *fromClauseIndex) Lookup(alias string) (*aliasEntry, *fromClauseIndex) {
	for s := x; s != nil; s = s.parent {
		if e, ok := s.aliases[alias]; ok {
			return e, s
		}
		if !s.correlated {
			break
		}
	}
	return nil, nil
}

// Children returns the indexes of nested scopes in creation order.
func (x *fromClauseIndex) Children() []*fromClauseIndex { return x.children }

// Groups returns the number of groups registered in this scope.
func (x *fromClauseIndex) Groups() int { return len(x.owned) }
