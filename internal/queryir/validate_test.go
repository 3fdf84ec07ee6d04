package queryir

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate_Valid(t *testing.T) {
	tests := []struct {
		name string
		stmt Statement
	}{
		{
			name: "simple select",
			stmt: &SelectStatement{Query: &QuerySpec{
				From:   []From{Root("Contact", "c")},
				Select: Sel(P("c.name.first")),
				Where:  Eq(P("c.id"), Param("id")),
			}},
		},
		{
			name: "correlated subquery sees outer alias",
			stmt: &SelectStatement{Query: &QuerySpec{
				From:   []From{Root("Order", "o")},
				Select: Sel(P("o.id")),
				Where: &Exists{Query: &QuerySpec{
					From:   []From{Root("LineItem", "l")},
					Select: Sel(P("l.id")),
					Where:  Eq(P("l.order"), P("o")),
				}},
			}},
		},
		{
			name: "lateral derived root sees preceding alias",
			stmt: &SelectStatement{Query: &QuerySpec{
				From: []From{
					Root("Order", "o"),
					&DerivedRoot{FromBase: FromBase{Alias: "d"}, Lateral: true, Query: &QuerySpec{
						From:   []From{Root("LineItem", "l")},
						Select: Sel(P("l.quantity")),
						Where:  Eq(P("l.order"), P("o")),
					}},
				},
				Select: Sel(P("o.id")),
			}},
		},
		{
			name: "union",
			stmt: &SelectStatement{Query: &QueryGroup{Operator: SetUnion, Parts: []QueryPart{
				&QuerySpec{From: []From{Root("Contact", "c")}, Select: Sel(P("c.id"))},
				&QuerySpec{From: []From{Root("Contact", "c")}, Select: Sel(P("c.id"))},
			}}},
		},
		{
			name: "cross join without condition",
			stmt: &SelectStatement{Query: &QuerySpec{
				From:   []From{Root("Contact", "c", &CrossJoin{FromBase: FromBase{Alias: "d"}, Entity: "Contact"})},
				Select: Sel(P("c.id"), P("d.id")),
			}},
		},
		{
			name: "versioned update without assignments",
			stmt: &UpdateStatement{Target: Root("Order", "o"), Versioned: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Validate(tt.stmt)
			assert.True(t, result.Valid, "problems: %v", result.Problems)
			assert.Empty(t, result.Problems)
		})
	}
}

func TestValidate_Problems(t *testing.T) {
	tests := []struct {
		name    string
		stmt    Statement
		problem string
	}{
		{
			name:    "nil statement",
			stmt:    nil,
			problem: "nil statement",
		},
		{
			name: "unknown alias",
			stmt: &SelectStatement{Query: &QuerySpec{
				From:   []From{Root("Contact", "c")},
				Select: Sel(P("x.name")),
			}},
			problem: `unknown alias "x"`,
		},
		{
			name: "duplicate alias",
			stmt: &SelectStatement{Query: &QuerySpec{
				From:   []From{Root("Contact", "c"), Root("Order", "c")},
				Select: Sel(P("c.id")),
			}},
			problem: `alias "c" declared twice`,
		},
		{
			name: "empty select",
			stmt: &SelectStatement{Query: &QuerySpec{
				From: []From{Root("Contact", "c")},
			}},
			problem: "query without select list",
		},
		{
			name: "group with one part",
			stmt: &SelectStatement{Query: &QueryGroup{Operator: SetUnion, Parts: []QueryPart{
				&QuerySpec{From: []From{Root("Contact", "c")}, Select: Sel(P("c.id"))},
			}}},
			problem: "at least two parts",
		},
		{
			name: "entity join without on",
			stmt: &SelectStatement{Query: &QuerySpec{
				From:   []From{Root("Contact", "c", &EntityJoin{FromBase: FromBase{Alias: "o"}, Entity: "Order"})},
				Select: Sel(P("c.id")),
			}},
			problem: `join "o" requires an ON condition`,
		},
		{
			name: "non-lateral derived root cannot see outer alias",
			stmt: &SelectStatement{Query: &QuerySpec{
				From: []From{
					Root("Order", "o"),
					&DerivedRoot{FromBase: FromBase{Alias: "d"}, Query: &QuerySpec{
						From:   []From{Root("LineItem", "l")},
						Select: Sel(P("l.quantity")),
						Where:  Eq(P("l.order"), P("o")),
					}},
				},
				Select: Sel(P("o.id")),
			}},
			problem: `unknown alias "o"`,
		},
		{
			name: "insert row arity",
			stmt: &InsertValuesStatement{
				Target:  Root("Contact", ""),
				Columns: []string{"id", "email"},
				Rows:    [][]Expression{{Lit(1)}},
			},
			problem: "has 1 values for 2 columns",
		},
		{
			name: "duplicate cte",
			stmt: &SelectStatement{
				With: []*CteDefinition{
					{Name: "x", Query: &QuerySpec{From: []From{Root("Contact", "c")}, Select: Sel(P("c.id"))}},
					{Name: "x", Query: &QuerySpec{From: []From{Root("Contact", "c")}, Select: Sel(P("c.id"))}},
				},
				Query: &QuerySpec{From: []From{&CteRoot{FromBase: FromBase{Alias: "x"}, Name: "x"}}, Select: Sel(P("x"))},
			},
			problem: `"x" declared twice`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Validate(tt.stmt)
			assert.False(t, result.Valid)
			found := false
			for _, p := range result.Problems {
				if strings.Contains(p, tt.problem) {
					found = true
				}
			}
			assert.True(t, found, "expected a problem containing %q, got %v", tt.problem, result.Problems)
		})
	}
}

func TestValidationResult_Err(t *testing.T) {
	ok := Validate(&SelectStatement{Query: &QuerySpec{
		From:   []From{Root("Contact", "c")},
		Select: Sel(P("c.id")),
	}})
	assert.NoError(t, ok.Err())

	bad := Validate(&SelectStatement{Query: &QuerySpec{From: []From{Root("Contact", "c")}}})
	err := bad.Err()
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)
	assert.Contains(t, err.Error(), "query without select list")
}
