package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mm "github.com/roach88/ormsql/internal/metamodel"
	"github.com/roach88/ormsql/internal/testutil"
)

func TestDDL_OrderModel(t *testing.T) {
	assert.Equal(t, []string{
		`CREATE TABLE IF NOT EXISTS "customers" ("id" integer, "name" text, "deleted" integer, PRIMARY KEY ("id"))`,
		`CREATE TABLE IF NOT EXISTS "orders" ("id" integer, "number" text, "version" integer, "placed_at" text, "customer_id" integer, PRIMARY KEY ("id"))`,
		`CREATE TABLE IF NOT EXISTS "order_tags" ("order_id" integer, "tag" text)`,
		`CREATE TABLE IF NOT EXISTS "order_notes" ("order_id" integer, "note" text, "position" integer)`,
		`CREATE TABLE IF NOT EXISTS "line_items" ("id" integer, "quantity" integer, "price" numeric, "order_id" integer, "product_id" integer, PRIMARY KEY ("id"))`,
		`CREATE TABLE IF NOT EXISTS "products" ("id" integer, "sku" text, PRIMARY KEY ("id"))`,
		`CREATE TABLE IF NOT EXISTS "events" ("id" integer, "title" text, "revision" integer, "starts_at" text, "ends_at" text, "length" integer, PRIMARY KEY ("id"))`,
	}, DDL(testutil.OrderModel(), mm.SQLite()))
}

func TestDDL_Hierarchies(t *testing.T) {
	tests := []struct {
		name  string
		model *mm.Model
		want  []string
	}{
		{
			name:  "secondary table and embedded name",
			model: testutil.ContactModel(),
			want: []string{
				`CREATE TABLE IF NOT EXISTS "contacts" ("id" integer, "firstname" text, "lastname" text, "primary_contact_id" integer, PRIMARY KEY ("id"))`,
				`CREATE TABLE IF NOT EXISTS "contact_supp" ("id" integer, "birthday" text, PRIMARY KEY ("id"))`,
			},
		},
		{
			name:  "single table with shared column",
			model: testutil.HierarchyModel(),
			want: []string{
				`CREATE TABLE IF NOT EXISTS "contacts" ("id" integer, "contact_type" text, "firstname" text, "lastname" text, "special_field" text, "level" integer, PRIMARY KEY ("id"))`,
			},
		},
		{
			name:  "joined subtypes",
			model: testutil.AnimalModel(),
			want: []string{
				`CREATE TABLE IF NOT EXISTS "animals" ("id" integer, "name" text, "owner_id" integer, PRIMARY KEY ("id"))`,
				`CREATE TABLE IF NOT EXISTS "dogs" ("id" integer, "bark_volume" integer, PRIMARY KEY ("id"))`,
				`CREATE TABLE IF NOT EXISTS "cats" ("id" integer, "lives" integer, PRIMARY KEY ("id"))`,
				`CREATE TABLE IF NOT EXISTS "keepers" ("id" integer, "name" text, PRIMARY KEY ("id"))`,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DDL(tt.model, mm.SQLite()))
		})
	}
}

func TestDDL_PostgreSQLTypes(t *testing.T) {
	ddl := DDL(testutil.OrderModel(), mm.PostgreSQL())
	require.NotEmpty(t, ddl)
	assert.Equal(t,
		`CREATE TABLE IF NOT EXISTS "customers" ("id" bigint, "name" varchar, "deleted" boolean, PRIMARY KEY ("id"))`,
		ddl[0])
}

func TestCreateSchema(t *testing.T) {
	s := createOrderStore(t)
	ctx := context.Background()

	// a second call is a no-op
	require.NoError(t, s.CreateSchema(ctx, testutil.OrderModel()))

	rs, err := s.QueryAll(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
	require.NoError(t, err)
	var names []any
	for _, r := range rs.Rows {
		names = append(names, r[0])
	}
	assert.Equal(t, []any{
		"customers", "events", "line_items", "order_notes", "order_tags", "orders", "ormsql_runs", "products",
	}, names)
}
