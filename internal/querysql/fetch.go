package querysql

import (
	"slices"

	mm "github.com/roach88/ormsql/internal/metamodel"
	"github.com/roach88/ormsql/internal/queryir"
	"github.com/roach88/ormsql/internal/sqlast"
)

// FetchTiming says when a fetched association is loaded.
type FetchTiming int

const (
	// FetchImmediate loads the association with the result, by the join
	// or by a subsequent select.
	FetchImmediate FetchTiming = iota
	// FetchDelayed leaves the association to be loaded on access.
	FetchDelayed
)

func (t FetchTiming) String() string {
	if t == FetchDelayed {
		return "delayed"
	}
	return "immediate"
}

// EntityResult is an entity selected by the top-level query, with the
// plan for loading its associations.
type EntityResult struct {
	Alias   string
	Nav     *queryir.NavigablePath
	Entity  *mm.Entity
	Group   *sqlast.TableGroup
	Fetches []*Fetch
}

// Fetch is the load plan of one association of a fetch parent.
type Fetch struct {
	Attribute *mm.Attribute
	Path      string
	Timing    FetchTiming
	// Joined fetches read their columns from Group, which is joined into
	// the query.
	Joined bool
	Group  *sqlast.TableGroup
	// Circular fetches point back at an association already being fetched
	// on the way from the root.
	Circular bool
	// Source names what decided the fetch: join, graph, profile or
	// mapping.
	Source  string
	Fetches []*Fetch
}

// fetchSignature lists the fetches of the result by attribute path, for
// comparing the parts of a set operation.
func (r *EntityResult) fetchSignature() []string {
	var out []string
	var walk func(prefix string, fs []*Fetch)
	walk = func(prefix string, fs []*Fetch) {
		for _, f := range fs {
			name := prefix + f.Attribute.Name
			if f.Joined {
				out = append(out, name+":joined")
			} else {
				out = append(out, name+":"+f.Timing.String())
			}
			walk(name+".", f.Fetches)
		}
	}
	walk(r.Entity.Name+":", r.Fetches)
	return out
}

// fetchPlanner plans the fetches of the entity results of a statement.
type fetchPlanner struct {
	t    *translation
	bags int
	used map[*sqlast.TableGroupJoin]bool
}

func newFetchPlanner(t *translation) *fetchPlanner {
	return &fetchPlanner{t: t, used: make(map[*sqlast.TableGroupJoin]bool)}
}

// plan builds the fetches of every entity result of s. An explicit fetch
// join wins over the entity graph, the graph over the enabled fetch
// profiles, and profiles over the mapping.
func (p *fetchPlanner) plan(s *queryScope) {
	p.bags = 0
	graph := p.t.tr.graph
	for _, r := range s.results {
		r.Fetches = p.fetches(s, r.Group, r.Entity, r.Nav, graph, 1, nil)
	}
	for _, g := range p.t.allGroups {
		join := p.t.edges[g]
		if join != nil && join.Fetched && p.t.groupScope[g] == s && p.t.joinAttrs[join] != nil && !p.used[join] {
			p.t.fail(ErrCodeUnsupported, "fetch join %s has no owner in the select list", join.Path)
		}
	}
}

func (p *fetchPlanner) fetches(s *queryScope, g *sqlast.TableGroup, e *mm.Entity, nav *queryir.NavigablePath, graph *queryir.EntityGraph, depth int, visiting []string) []*Fetch {
	var out []*Fetch
	for _, a := range e.AllAttributes() {
		if !a.IsAssociation() && a.Kind != mm.AttributePlural {
			continue
		}
		out = append(out, p.fetch(s, g, e, a, nav.Append(a.Name), graph, depth, visiting))
	}
	return out
}

func (p *fetchPlanner) fetch(s *queryScope, g *sqlast.TableGroup, e *mm.Entity, a *mm.Attribute, nav *queryir.NavigablePath, graph *queryir.EntityGraph, depth int, visiting []string) *Fetch {
	t := p.t
	f := &Fetch{Attribute: a, Path: nav.Full(), Timing: FetchDelayed, Source: "mapping"}
	key := a.AssociationKey()
	if a.IsAssociation() && slices.Contains(visiting, key) {
		f.Circular, f.Timing = true, FetchImmediate
		return f
	}

	explicit := p.explicitJoin(g, a)
	switch {
	case explicit != nil:
		f.Source, f.Joined = "join", true
	case graph != nil && graph.Contains(a.Name):
		f.Source, f.Joined = "graph", true
	case graph != nil && graph.Mode == queryir.GraphFetch:
		f.Source = "graph"
	default:
		if style, ok := p.profileStyle(e, a); ok {
			f.Source = "profile"
			f.Joined = style == mm.FetchStyleJoin
			f.Timing = FetchImmediate
		} else {
			f.Joined = a.JoinFetch
			if a.Eager {
				f.Timing = FetchImmediate
			}
		}
	}
	if f.Joined && explicit == nil && t.cfg.MaxFetchDepth > 0 && depth > t.cfg.MaxFetchDepth {
		f.Joined = false
	}
	if !f.Joined {
		return f
	}
	f.Timing = FetchImmediate

	if a.IsBag() {
		p.bags++
		if p.bags > 1 {
			t.fail(ErrCodeMultipleBagFetch, "cannot fetch multiple bags simultaneously: %s", f.Path)
		}
	}
	if explicit != nil {
		p.used[explicit] = true
		f.Group = explicit.Group
	} else {
		f.Group = p.fetchJoin(s, g, e, a, nav)
	}
	p.loadColumns(s, f.Group, a)

	if target := f.Group.Entity; target != nil {
		var sub *queryir.EntityGraph
		if graph != nil {
			sub = graph.Sub(a.Name)
		}
		f.Fetches = p.fetches(s, f.Group, target, nav, sub, depth+1, append(slices.Clone(visiting), key))
	}
	return f
}

// explicitJoin returns the fetch join of a below g written in the query.
func (p *fetchPlanner) explicitJoin(g *sqlast.TableGroup, a *mm.Attribute) *sqlast.TableGroupJoin {
	for _, list := range [][]*sqlast.TableGroupJoin{g.Joins, g.NestedJoins} {
		for _, j := range list {
			if j.Fetched && p.t.joinAttrs[j] == a {
				return j
			}
		}
	}
	return nil
}

// profileStyle returns the style of the first enabled profile overriding
// e.a.
func (p *fetchPlanner) profileStyle(e *mm.Entity, a *mm.Attribute) (mm.FetchStyle, bool) {
	for _, name := range p.t.cfg.FetchProfiles {
		prof, ok := p.t.catalog.FetchProfile(name)
		if !ok {
			p.t.fail(ErrCodeUnknownReference, "unknown fetch profile %q", name)
		}
		if o, ok := prof.Override(e, a.Name); ok {
			return o.Style, true
		}
	}
	return 0, false
}

// fetchJoin left joins the target of a planned fetch. An implicit join of
// the same path is reused and turned into a fetch.
func (p *fetchPlanner) fetchJoin(s *queryScope, owner *sqlast.TableGroup, e *mm.Entity, a *mm.Attribute, nav *queryir.NavigablePath) *sqlast.TableGroup {
	t := p.t
	if g := s.index.Find(nav); g != nil {
		if join := t.edges[g]; join != nil {
			join.Fetched = true
		}
		return g
	}
	var g *sqlast.TableGroup
	var pred sqlast.Predicate
	if a.IsAssociation() {
		g, pred = t.associationGroup(nav, owner, e, a, a.TargetEntity)
	} else {
		g, pred = t.elementGroup(nav, owner, a)
	}
	join := sqlast.NewTableGroupJoin(nav.Full(), sqlast.JoinLeft, g, pred)
	join.Fetched = true
	if g.Entity != nil {
		join.AddPredicate(sqlast.Conjoin(t.baseRestrictions(g)...))
		join.AddPredicate(t.subtypeRestriction(g))
	}
	t.addJoin(owner, join, nav, s)
	return g
}

// loadColumns selects the columns of a joined fetch: the target entity's
// columns, or the element and index of a value collection.
func (p *fetchPlanner) loadColumns(s *queryScope, g *sqlast.TableGroup, a *mm.Attribute) {
	t := p.t
	if g.Entity != nil {
		t.uses.Register(g, UseProjection, g.Entity)
		g.Resolve(sqlast.ResolvedFull)
		t.projections = append(t.projections, &projection{spec: s.spec, index: len(s.spec.Select), group: g, entity: g.Entity})
		s.spec.Select = append(s.spec.Select, sqlast.SqlSelection{Expr: t.idColumn(g)})
		return
	}
	ref := g.Primary.(*sqlast.NamedTableReference)
	g.Resolve(sqlast.ResolvedFull)
	s.spec.Select = append(s.spec.Select, sqlast.SqlSelection{Expr: col(ref, a.KeyColumn, nil)})
	if a.IndexColumn != "" {
		s.spec.Select = append(s.spec.Select, sqlast.SqlSelection{Expr: col(ref, a.IndexColumn, nil)})
	}
	if a.ElementColumn != "" {
		s.spec.Select = append(s.spec.Select, sqlast.SqlSelection{Expr: col(ref, a.ElementColumn, a.Type)})
	}
}
