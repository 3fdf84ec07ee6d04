package querysql

import (
	"testing"

	"github.com/stretchr/testify/assert"

	mm "github.com/roach88/ormsql/internal/metamodel"
	. "github.com/roach88/ormsql/internal/queryir"
	"github.com/roach88/ormsql/internal/sqlast"
	"github.com/roach88/ormsql/internal/testutil"
)

func TestDML_Statements(t *testing.T) {
	tests := []struct {
		name  string
		model mm.Catalog
		stmt  Statement
		kind  string
		want  string
	}{
		{
			name:  "insert sets the discriminator",
			model: testutil.HierarchyModel(),
			stmt: &InsertValuesStatement{
				Target:  Root("SpecialContact", "s"),
				Columns: []string{"id", "specialField"},
				Rows:    [][]Expression{{Lit(1), Lit("x")}},
			},
			kind: "insert",
			want: `insert into contacts (id,special_field,contact_type) values (1,"x","S")`,
		},
		{
			name:  "insert seeds the version",
			model: testutil.OrderModel(),
			stmt: &InsertValuesStatement{
				Target:  Root("Order", "o"),
				Columns: []string{"id", "number"},
				Rows:    [][]Expression{{Lit(1), Lit("A-1")}, {Lit(2), Lit("A-2")}},
			},
			kind: "insert",
			want: `insert into orders (id,number,version) values (1,"A-1",0), (2,"A-2",0)`,
		},
		{
			name:  "insert from a query",
			model: testutil.OrderModel(),
			stmt: &InsertSelectStatement{
				Target:  Root("Product", "p"),
				Columns: []string{"id", "sku"},
				Query:   &QuerySpec{From: []From{Root("Order", "o")}, Select: Sel(P("o.id"), P("o.number"))},
			},
			kind: "insert",
			want: `insert into products (id,sku) select o1_0.id id,o1_0.number number from orders o1_0`,
		},
		{
			name:  "insert from a query appends the version seed",
			model: testutil.OrderModel(),
			stmt: &InsertSelectStatement{
				Target:  Root("Order", "o"),
				Columns: []string{"id", "number"},
				Query:   &QuerySpec{From: []From{Root("Product", "p")}, Select: Sel(P("p.id"), P("p.sku"))},
			},
			kind: "insert",
			want: `insert into orders (id,number,version) select p1_0.id id,p1_0.sku sku,0 from products p1_0`,
		},
		{
			name:  "versioned update",
			model: testutil.OrderModel(),
			stmt: &UpdateStatement{
				Target:      Root("Order", "o"),
				Versioned:   true,
				Assignments: []Assignment{{Path: P("o.number"), Value: Lit("B")}},
				Where:       Eq(P("o.id"), Param("id")),
			},
			kind: "update",
			want: `update orders o1_0 set number="B", version=(o1_0.version+1) where o1_0.id=:id#0`,
		},
		{
			name:  "delete in place",
			model: testutil.OrderModel(),
			stmt: &DeleteStatement{
				Target: Root("Product", "p"),
				Where:  Eq(P("p.sku"), Lit("X")),
			},
			kind: "delete",
			want: `delete from products p1_0 where p1_0.sku="X"`,
		},
		{
			name:  "delete through an implicit join",
			model: testutil.OrderModel(),
			stmt: &DeleteStatement{
				Target: Root("Order", "o"),
				Where:  Eq(P("o.customer.name"), Lit("ACME")),
			},
			kind: "delete",
			want: `delete from orders o1_0 where o1_0.id in (select o1_0.id from orders o1_0 ` +
				`join customers c1_0 on (c1_0.id=o1_0.customer_id and c1_0.deleted=false) where c1_0.name="ACME")`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := translate(t, tt.model, tt.stmt)
			assert.Equal(t, tt.kind, res.Kind)
			assert.Equal(t, tt.want, sqlast.Dump(res.Statement))
			assert.Empty(t, res.Results, "mutations select no entities")
		})
	}
}

func TestDML_Errors(t *testing.T) {
	tests := []struct {
		name  string
		model mm.Catalog
		stmt  Statement
		code  SemanticErrorCode
	}{
		{
			name:  "row too short",
			model: testutil.OrderModel(),
			stmt: &InsertValuesStatement{
				Target:  Root("Order", "o"),
				Columns: []string{"id", "number"},
				Rows:    [][]Expression{{Lit(1)}},
			},
			code: ErrCodeInsertArity,
		},
		{
			name:  "select too wide",
			model: testutil.OrderModel(),
			stmt: &InsertSelectStatement{
				Target:  Root("Product", "p"),
				Columns: []string{"id"},
				Query:   &QuerySpec{From: []From{Root("Order", "o")}, Select: Sel(P("o.id"), P("o.number"))},
			},
			code: ErrCodeInsertArity,
		},
		{
			name:  "unknown insert column",
			model: testutil.OrderModel(),
			stmt: &InsertValuesStatement{
				Target:  Root("Product", "p"),
				Columns: []string{"colour"},
				Rows:    [][]Expression{{Lit("red")}},
			},
			code: ErrCodeUnknownReference,
		},
		{
			name:  "insert into a joined subtype",
			model: testutil.AnimalModel(),
			stmt: &InsertValuesStatement{
				Target:  Root("Dog", "d"),
				Columns: []string{"barkVolume"},
				Rows:    [][]Expression{{Lit(3)}},
			},
			code: ErrCodeUnsupported,
		},
		{
			name:  "insert into a collection",
			model: testutil.OrderModel(),
			stmt: &InsertValuesStatement{
				Target:  Root("Order", "o"),
				Columns: []string{"tags"},
				Rows:    [][]Expression{{Lit("x")}},
			},
			code: ErrCodeUnsupported,
		},
		{
			name:  "versioned update without version",
			model: testutil.OrderModel(),
			stmt: &UpdateStatement{
				Target:      Root("Product", "p"),
				Versioned:   true,
				Assignments: []Assignment{{Path: P("p.sku"), Value: Lit("Y")}},
			},
			code: ErrCodeNotVersioned,
		},
		{
			name:  "versioned update with custom version",
			model: testutil.OrderModel(),
			stmt: &UpdateStatement{
				Target:      Root("Event", "e"),
				Versioned:   true,
				Assignments: []Assignment{{Path: P("e.title"), Value: Lit("T")}},
			},
			code: ErrCodeCustomVersion,
		},
		{
			name:  "assignment to a secondary table",
			model: testutil.ContactModel(),
			stmt: &UpdateStatement{
				Target:      Root("Contact", "c"),
				Assignments: []Assignment{{Path: P("c.birthday"), Value: Param("d")}},
			},
			code: ErrCodeUnsupported,
		},
		{
			name:  "mutation without target",
			model: testutil.OrderModel(),
			stmt:  &DeleteStatement{},
			code:  ErrCodeUnsupported,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := translateErr(t, tt.model, tt.stmt)
			assert.True(t, IsSemanticError(err, tt.code), "got %v", err)
		})
	}
}
