package querysql

import (
	"github.com/jzelinskie/persistent"

	mm "github.com/roach88/ormsql/internal/metamodel"
	"github.com/roach88/ormsql/internal/sqlast"
)

// useEntry is one entity-name use: how entity is used at group.
type useEntry struct {
	group  *sqlast.TableGroup
	entity *mm.Entity
	kind   UseKind
}

func useKey(g *sqlast.TableGroup, e *mm.Entity) string {
	return g.Alias + "\x00" + e.Name
}

type useMap = persistent.Map[string, useEntry]

// useFrame accumulates the uses of one conjunct or one query scope.
type useFrame struct {
	uses  *useMap
	order []string
	scope *queryScope
}

func newUseFrame(scope *queryScope) *useFrame {
	return &useFrame{uses: persistent.NewMap[string, useEntry](lessString), scope: scope}
}

func lessString(a, b string) bool { return a < b }

func (f *useFrame) merge(e useEntry) {
	key := useKey(e.group, e.entity)
	if prev, ok := f.uses.Get(key); ok {
		e.kind = prev.kind.Stronger(e.kind)
	} else {
		f.order = append(f.order, key)
	}
	f.uses.Set(key, e, nil)
}

// entries returns the frame's uses in registration order.
func (f *useFrame) entries() []useEntry {
	out := make([]useEntry, 0, len(f.order))
	for _, k := range f.order {
		if e, ok := f.uses.Get(k); ok {
			out = append(out, e)
		}
	}
	return out
}

// useTracker records entity-name uses per table group.
//
// Uses are collected in frames. A scope frame is pushed per query scope; a
// conjunct frame is pushed for every top-level conjunct (WHERE, HAVING, an
// ON predicate, each branch of an OR). Popping a conjunct hands its TREAT
// uses to the caller, which turns them into type restrictions of that
// conjunct, and passes the rest up as FILTER. Popping a scope moves the
// scope's own groups to the final map read by the pruner.
type useTracker struct {
	frames []*useFrame
	final  map[*sqlast.TableGroup]*groupUses
	order  []*sqlast.TableGroup
}

// groupUses is the final use map of one group.
type groupUses struct {
	group    *sqlast.TableGroup
	scope    *queryScope
	kinds    map[*mm.Entity]UseKind
	entities []*mm.Entity
}

func newUseTracker() *useTracker {
	return &useTracker{final: make(map[*sqlast.TableGroup]*groupUses)}
}

func (t *useTracker) top() *useFrame {
	assertf(len(t.frames) > 0, "entity-name use registered outside any scope")
	return t.frames[len(t.frames)-1]
}

func (t *useTracker) depth() int { return len(t.frames) }

// Register merges a use with the current frame's use of the same
// (group, entity) pair.
func (t *useTracker) Register(g *sqlast.TableGroup, kind UseKind, e *mm.Entity) {
	if g == nil || e == nil {
		return
	}
	t.top().merge(useEntry{group: g, entity: e, kind: kind})
}

func (t *useTracker) pushScope(s *queryScope) {
	t.frames = append(t.frames, newUseFrame(s))
}

// popScope closes a scope frame. Uses of groups the scope owns become
// final; uses of outer groups (correlation) are passed to the enclosing
// frame downgraded to EXPRESSION, since a subquery cannot narrow the rows
// of its parent.
func (t *useTracker) popScope(s *queryScope) {
	f := t.pop()
	assertf(f.scope == s, "use frames popped out of order")
	for _, e := range f.entries() {
		if s.index.Owns(e.group) {
			t.finalize(e, s)
			continue
		}
		e.kind = UseExpression
		if len(t.frames) > 0 {
			t.top().merge(e)
		}
	}
	f.uses.Destroy()
}

func (t *useTracker) finalize(e useEntry, s *queryScope) {
	gu := t.final[e.group]
	if gu == nil {
		gu = &groupUses{group: e.group, scope: s, kinds: make(map[*mm.Entity]UseKind)}
		t.final[e.group] = gu
		t.order = append(t.order, e.group)
	}
	if prev, ok := gu.kinds[e.entity]; ok {
		gu.kinds[e.entity] = prev.Stronger(e.kind)
		return
	}
	gu.kinds[e.entity] = e.kind
	gu.entities = append(gu.entities, e.entity)
}

func (t *useTracker) pushConjunct() {
	t.frames = append(t.frames, newUseFrame(nil))
}

func (t *useTracker) pop() *useFrame {
	f := t.top()
	t.frames = t.frames[:len(t.frames)-1]
	return f
}

// drain pops a conjunct frame and returns its TREAT uses. The frame's uses
// are returned with TREAT raised to FILTER: once the restriction is in
// place, rows of other types are filtered out.
func (t *useTracker) drain() (treats []useEntry, frame *useFrame) {
	f := t.pop()
	assertf(f.scope == nil, "conjunct drained across a scope boundary")
	for _, key := range f.order {
		e, _ := f.uses.Get(key)
		if e.kind == UseTreat {
			treats = append(treats, e)
			e.kind = UseFilter
			f.uses.Set(key, e, nil)
		}
	}
	return treats, f
}

// popConjunct drains a conjunct and merges what is left into the
// enclosing frame.
func (t *useTracker) popConjunct() []useEntry {
	treats, f := t.drain()
	parent := t.top()
	for _, e := range f.entries() {
		parent.merge(e)
	}
	f.uses.Destroy()
	return treats
}

// mergeDisjunction merges the drained frames of the branches of an OR
// into the enclosing frame.
//
// Uses of groups that local reports as foreign to the current scope are
// preserved as they are and merged directly. For the others, branch 0
// provides the provisional uses; each later branch either confirms a use,
// which keeps the weaker of the two kinds, or fails to, which downgrades it
// to EXPRESSION. Uses first seen in a later branch are dropped: they do not
// hold across the whole disjunction.
func (t *useTracker) mergeDisjunction(branches []*useFrame, local func(*sqlast.TableGroup) bool) {
	if len(branches) == 0 {
		return
	}
	parent := t.top()
	for _, b := range branches {
		for _, e := range b.entries() {
			if !local(e.group) {
				parent.merge(e)
			}
		}
	}

	running := branches[0].uses.Clone()
	defer running.Destroy()
	var keys []string
	for _, e := range branches[0].entries() {
		key := useKey(e.group, e.entity)
		if !local(e.group) {
			running.Delete(key)
			continue
		}
		keys = append(keys, key)
	}
	for _, b := range branches[1:] {
		for _, key := range keys {
			cur, _ := running.Get(key)
			if other, ok := b.uses.Get(key); ok {
				cur.kind = cur.kind.Weaker(other.kind)
			} else {
				cur.kind = UseExpression
			}
			running.Set(key, cur, nil)
		}
	}
	for _, key := range keys {
		e, _ := running.Get(key)
		parent.merge(e)
	}
	for _, b := range branches {
		b.uses.Destroy()
	}
}

// Final returns the final uses of every group, in the order the groups
// first received one.
func (t *useTracker) Final() []*groupUses {
	out := make([]*groupUses, 0, len(t.order))
	for _, g := range t.order {
		out = append(out, t.final[g])
	}
	return out
}

// narrowing returns the union of the subtrees of the narrowing uses of gu,
// or nil when no use narrows.
func (gu *groupUses) narrowing(onlyTreat bool) []*mm.Entity {
	var out []*mm.Entity
	seen := map[*mm.Entity]bool{}
	for _, e := range gu.entities {
		k := gu.kinds[e]
		if !k.Narrows() || onlyTreat && k != UseTreat {
			continue
		}
		for _, s := range e.Subtree() {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return out
}
