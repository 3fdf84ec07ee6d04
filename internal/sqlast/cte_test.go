package sqlast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cte(name string, recursive bool) *CteStatement {
	return &CteStatement{Table: &CteTable{Name: name, Recursive: recursive}}
}

func TestCteContainer_PreservesDeclarationOrder(t *testing.T) {
	c := NewCteContainer(nil)
	for _, name := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, c.Add(cte(name, false)))
	}

	var names []string
	for _, s := range c.Statements() {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, names)
	assert.Equal(t, 3, c.Len())
}

func TestCteContainer_RejectsDuplicates(t *testing.T) {
	c := NewCteContainer(nil)
	require.NoError(t, c.Add(cte("x", false)))
	assert.Error(t, c.Add(cte("x", false)))
}

func TestCteContainer_Visibility(t *testing.T) {
	outer := NewCteContainer(nil)
	require.NoError(t, outer.Add(cte("outer_cte", false)))
	inner := NewCteContainer(outer)
	require.NoError(t, inner.Add(cte("inner_cte", true)))

	_, ok := inner.Get("outer_cte")
	assert.True(t, ok, "children see outer CTEs")
	_, ok = outer.Get("inner_cte")
	assert.False(t, ok, "parents never see child CTEs")

	assert.False(t, inner.Has("outer_cte"))
	assert.True(t, inner.Recursive())
	assert.False(t, outer.Recursive())
	assert.Same(t, outer, inner.Parent())

	// Shadowing in a child scope is allowed.
	assert.NoError(t, inner.Add(cte("outer_cte", false)))
}

func TestCteTable_ColumnNames(t *testing.T) {
	table := &CteTable{Name: "t", Columns: []CteColumn{{Name: "a"}, {Name: "b"}}}
	assert.Equal(t, []string{"a", "b"}, table.ColumnNames())
}
