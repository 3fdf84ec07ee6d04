package sqlast

import (
	mm "github.com/roach88/ormsql/internal/metamodel"
)

// Resolution is the tri-state of a lazy table group.
type Resolution int

const (
	// Unresolved: no column of the group has been referenced.
	Unresolved Resolution = iota
	// ResolvedMinimal: only identifying or foreign-key columns were used.
	ResolvedMinimal
	// ResolvedFull: some other column was used.
	ResolvedFull
)

func (r Resolution) String() string {
	switch r {
	case ResolvedMinimal:
		return "minimal"
	case ResolvedFull:
		return "full"
	}
	return "unresolved"
}

// TableGroup is a node of the relational join tree.
//
// Entity is the static entity type of the group (nil for derived, function,
// cte and element-collection groups). Attribute is set for groups that
// materialize a plural attribute.
type TableGroup struct {
	Path      string
	Entity    *mm.Entity
	Attribute *mm.Attribute

	// Alias is the stem the table aliases derive from ("c1" gives c1_0,
	// c1_1 and so on).
	Alias   string
	Primary TableReference

	// TableJoins holds the secondary and subclass tables, rendered only
	// once used.
	TableJoins []*TableReferenceJoin

	// Joins are rendered after the group; NestedJoins are rendered inside
	// parentheses together with the group itself.
	Joins       []*TableGroupJoin
	NestedJoins []*TableGroupJoin

	resolution Resolution
}

// NewTableGroup creates an unresolved group.
func NewTableGroup(path, alias string, primary TableReference) *TableGroup {
	return &TableGroup{Path: path, Alias: alias, Primary: primary}
}

// Resolution returns the group's current resolution state.
func (g *TableGroup) Resolution() Resolution { return g.resolution }

// Resolve raises the resolution state. It never lowers it.
func (g *TableGroup) Resolve(r Resolution) {
	if r > g.resolution {
		g.resolution = r
	}
}

// PrimaryAlias returns the alias of the primary table reference.
func (g *TableGroup) PrimaryAlias() string { return g.Primary.ReferenceAlias() }

// TableReference returns the reference for a physical table of the group
// and marks secondary or subclass tables used. It returns nil when the group
// has no such table.
func (g *TableGroup) TableReference(table string) *NamedTableReference {
	if named, ok := g.Primary.(*NamedTableReference); ok && named.Table == table {
		return named
	}
	for _, tj := range g.TableJoins {
		if tj.Table.Table == table {
			tj.MarkUsed()
			return tj.Table
		}
	}
	return nil
}

// SubclassJoin returns the table join holding the own table of subtype.
func (g *TableGroup) SubclassJoin(subtype *mm.Entity) *TableReferenceJoin {
	for _, tj := range g.TableJoins {
		if tj.Subtype == subtype {
			return tj
		}
	}
	return nil
}

// UsedTableJoins returns the table joins to render, in declaration order.
func (g *TableGroup) UsedTableJoins() []*TableReferenceJoin {
	var out []*TableReferenceJoin
	for _, tj := range g.TableJoins {
		if tj.Used() {
			out = append(out, tj)
		}
	}
	return out
}

// AddJoin appends a join rendered after the group.
func (g *TableGroup) AddJoin(j *TableGroupJoin) { g.Joins = append(g.Joins, j) }

// AddNestedJoin appends a join rendered inside the group's parentheses.
func (g *TableGroup) AddNestedJoin(j *TableGroupJoin) { g.NestedJoins = append(g.NestedJoins, j) }

// FindJoin returns the reusable join registered for path, if any.
func (g *TableGroup) FindJoin(path string) *TableGroupJoin {
	for _, list := range [][]*TableGroupJoin{g.Joins, g.NestedJoins} {
		for _, j := range list {
			if j.Path == path && !j.NonReusable {
				return j
			}
		}
	}
	return nil
}

// Walk calls fn for g and every group joined below it, depth first. Walk
// stops descending below a group when fn returns false.
func (g *TableGroup) Walk(fn func(*TableGroup) bool) {
	if !fn(g) {
		return
	}
	for _, j := range g.NestedJoins {
		j.Group.Walk(fn)
	}
	for _, j := range g.Joins {
		j.Group.Walk(fn)
	}
}

// TableGroupJoin is an edge of the join tree.
type TableGroupJoin struct {
	Path      string
	Type      JoinType
	Group     *TableGroup
	Predicate Predicate

	// Implicit joins were created while dereferencing a path rather than
	// declared in the from clause.
	Implicit bool

	// Fetched joins load an association into the result.
	Fetched bool

	// NonReusable joins are never returned by FindJoin.
	NonReusable bool

	fixed bool
}

// NewTableGroupJoin creates a join edge.
func NewTableGroupJoin(path string, typ JoinType, group *TableGroup, predicate Predicate) *TableGroupJoin {
	return &TableGroupJoin{Path: path, Type: typ, Group: group, Predicate: predicate}
}

// RequestType asks for a different join kind on an existing join. The first
// request that differs from the current kind changes it; after that the kind
// is fixed. Cross joins never change. It reports whether the kind changed.
func (j *TableGroupJoin) RequestType(t JoinType) bool {
	if t == j.Type || j.fixed || j.Type == JoinCross || t == JoinCross {
		return false
	}
	j.Type = t
	j.fixed = true
	return true
}

// AddPredicate conjoins p with the join's existing predicate.
func (j *TableGroupJoin) AddPredicate(p Predicate) {
	j.Predicate = Conjoin(j.Predicate, p)
}

// Renderable reports whether the join contributes to the statement. An
// implicit left join whose group was never used and has nothing joined
// below it can be dropped without changing the result.
func (j *TableGroupJoin) Renderable() bool {
	if !j.Implicit || j.Fetched || j.Type != JoinLeft {
		return true
	}
	return j.Group.Resolution() != Unresolved || len(j.Group.Joins) > 0 || len(j.Group.NestedJoins) > 0
}
