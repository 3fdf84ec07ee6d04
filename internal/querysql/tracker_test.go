package querysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mm "github.com/roach88/ormsql/internal/metamodel"
	"github.com/roach88/ormsql/internal/sqlast"
	"github.com/roach88/ormsql/internal/testutil"
)

type trackerFixture struct {
	contact, special, other *mm.Entity
	scope                   *queryScope
}

func newTrackerFixture(t *testing.T) *trackerFixture {
	t.Helper()
	m := testutil.HierarchyModel()
	f := &trackerFixture{scope: &queryScope{index: newFromClauseIndex(nil, false)}}
	var ok bool
	f.contact, ok = m.Entity("Contact")
	require.True(t, ok)
	f.special, ok = m.Entity("SpecialContact")
	require.True(t, ok)
	f.other, ok = m.Entity("OtherContact")
	require.True(t, ok)
	return f
}

// group creates a group owned by the fixture's scope unless foreign.
func (f *trackerFixture) group(alias string, foreign bool) *sqlast.TableGroup {
	g := &sqlast.TableGroup{Alias: alias, Entity: f.contact}
	if !foreign {
		f.scope.index.owned[g] = true
	}
	return g
}

func kindsOf(frame *useFrame) map[string]UseKind {
	out := make(map[string]UseKind)
	for _, e := range frame.entries() {
		out[useKey(e.group, e.entity)] = e.kind
	}
	return out
}

func TestUseTracker_SeveralUsesPerFrame(t *testing.T) {
	f := newTrackerFixture(t)
	c1, c2 := f.group("c1", false), f.group("c2", false)

	tr := newUseTracker()
	tr.pushScope(f.scope)
	tr.pushConjunct()
	tr.Register(c1, UseTreat, f.special)
	tr.Register(c1, UseProjection, f.contact)
	tr.Register(c2, UseExpression, f.contact)
	tr.Register(c1, UseOptionalTreat, f.special)
	tr.Register(c2, UseProjection, f.contact)

	treats := tr.popConjunct()
	require.Len(t, treats, 1)
	assert.Same(t, c1, treats[0].group)
	assert.Same(t, f.special, treats[0].entity)
	assert.Equal(t, UseTreat, treats[0].kind)

	tr.popScope(f.scope)
	assert.Zero(t, tr.depth())

	final := tr.Final()
	require.Len(t, final, 2)
	assert.Same(t, c1, final[0].group)
	assert.Equal(t, []*mm.Entity{f.special, f.contact}, final[0].entities)
	assert.Equal(t, map[*mm.Entity]UseKind{f.special: UseFilter, f.contact: UseProjection}, final[0].kinds)
	assert.Same(t, c2, final[1].group)
	assert.Equal(t, map[*mm.Entity]UseKind{f.contact: UseProjection}, final[1].kinds)
}

func TestUseTracker_MergeDisjunction(t *testing.T) {
	f := newTrackerFixture(t)
	c1, c2, c3 := f.group("c1", false), f.group("c2", false), f.group("c3", false)
	outer := f.group("o1", true)

	first := newUseFrame(nil)
	first.merge(useEntry{group: c1, entity: f.special, kind: UseTreat})
	first.merge(useEntry{group: c2, entity: f.contact, kind: UseProjection})
	first.merge(useEntry{group: outer, entity: f.other, kind: UseTreat})

	second := newUseFrame(nil)
	second.merge(useEntry{group: c1, entity: f.special, kind: UseOptionalTreat})
	second.merge(useEntry{group: c3, entity: f.contact, kind: UseFilter})
	second.merge(useEntry{group: outer, entity: f.contact, kind: UseExpression})

	tr := newUseTracker()
	tr.pushScope(f.scope)
	tr.mergeDisjunction([]*useFrame{first, second}, f.scope.index.Owns)

	assert.Equal(t, map[string]UseKind{
		// Foreign groups pass through untouched.
		useKey(outer, f.other):   UseTreat,
		useKey(outer, f.contact): UseExpression,
		// Confirmed by both branches: the weaker kind.
		useKey(c1, f.special): UseOptionalTreat,
		// Missing from the second branch: downgraded.
		useKey(c2, f.contact): UseExpression,
	}, kindsOf(tr.top()))
}

func TestUseFrame_CloneIsIndependent(t *testing.T) {
	f := newTrackerFixture(t)
	c1 := f.group("c1", false)

	frame := newUseFrame(nil)
	frame.merge(useEntry{group: c1, entity: f.contact, kind: UseExpression})
	frame.merge(useEntry{group: c1, entity: f.special, kind: UseTreat})

	snapshot := frame.uses.Clone()
	defer snapshot.Destroy()
	frame.merge(useEntry{group: c1, entity: f.contact, kind: UseFilter})

	got, ok := snapshot.Get(useKey(c1, f.contact))
	require.True(t, ok)
	assert.Equal(t, UseExpression, got.kind)
	got, ok = frame.uses.Get(useKey(c1, f.contact))
	require.True(t, ok)
	assert.Equal(t, UseFilter, got.kind)
}
