package querysql

import (
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"

	mm "github.com/roach88/ormsql/internal/metamodel"
	. "github.com/roach88/ormsql/internal/queryir"
	"github.com/roach88/ormsql/internal/sqlast"
	"github.com/roach88/ormsql/internal/testutil"
)

// TestGolden compares the dumped SQL AST of representative statements with
// testdata/golden/{name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/querysql -run TestGolden -update
func TestGolden(t *testing.T) {
	tests := []struct {
		name  string
		model mm.Catalog
		stmt  Statement
	}{
		{
			name:  "contact_by_id",
			model: testutil.ContactModel(),
			stmt: query(&QuerySpec{
				From:   []From{Root("Contact", "c")},
				Select: Sel(P("c.name.first")),
				Where:  Eq(P("c.id"), Param("id")),
			}),
		},
		{
			name:  "contact_names_union",
			model: testutil.ContactModel(),
			stmt: &SelectStatement{Query: &QueryGroup{
				Operator: SetUnion,
				Parts:    []QueryPart{contactPart(P("c.name.first")), contactPart(P("c.name.last"))},
				OrderBy:  []SortItem{{Expr: P("first")}},
			}},
		},
		{
			name:  "treat_in_select",
			model: testutil.HierarchyModel(),
			stmt: query(&QuerySpec{
				From:   []From{Root("Contact", "c")},
				Select: Sel(P("treat(c as SpecialContact).specialField")),
			}),
		},
		{
			name:  "versioned_update",
			model: testutil.OrderModel(),
			stmt: &UpdateStatement{
				Target:      Root("Order", "o"),
				Versioned:   true,
				Assignments: []Assignment{{Path: P("o.number"), Value: Lit("B")}},
				Where:       Eq(P("o.id"), Param("id")),
			},
		},
		{
			name:  "delete_by_customer",
			model: testutil.OrderModel(),
			stmt: &DeleteStatement{
				Target: Root("Order", "o"),
				Where:  Eq(P("o.customer.name"), Lit("ACME")),
			},
		},
		{
			name:  "event_shifted",
			model: testutil.OrderModel(),
			stmt:  selectEvent(add(P("e.startsAt"), add(Dur(1, mm.UnitDay), Dur(2, mm.UnitHour)))),
		},
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := translate(t, tt.model, tt.stmt)
			g.Assert(t, tt.name, fmt.Appendf(nil, "%s\n%s\n", res.Kind, sqlast.Dump(res.Statement)))
		})
	}
}
