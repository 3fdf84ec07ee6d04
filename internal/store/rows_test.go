package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ormsql/internal/ir"
	mm "github.com/roach88/ormsql/internal/metamodel"
	"github.com/roach88/ormsql/internal/querysql"
	"github.com/roach88/ormsql/internal/queryir"
	"github.com/roach88/ormsql/internal/sqlrender"
	"github.com/roach88/ormsql/internal/testutil"
)

func TestInsertRows(t *testing.T) {
	s := createOrderStore(t)
	ctx := context.Background()

	n, err := s.InsertRows(ctx, "customers", []Row{
		{"id": 1, "name": "ACME", "deleted": false},
		{"id": 2, "name": ir.IRString("Globex"), "deleted": ir.IRBool(true)},
		{"id": 3, "deleted": false},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	rs, err := s.QueryAll(ctx, `SELECT id, name, deleted FROM customers ORDER BY id`)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name", "deleted"}, rs.Columns)
	assert.Equal(t, [][]any{
		{int64(1), "ACME", int64(0)},
		{int64(2), "Globex", int64(1)},
		{int64(3), nil, int64(0)},
	}, rs.Rows)
	assert.Equal(t, map[string]any{"id": int64(1), "name": "ACME", "deleted": int64(0)}, rs.Maps()[0])
}

func TestInsertRows_Empty(t *testing.T) {
	s := createOrderStore(t)
	n, err := s.InsertRows(context.Background(), "customers", nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestInsertRows_Errors(t *testing.T) {
	s := createOrderStore(t)
	ctx := context.Background()

	_, err := s.InsertRows(ctx, "customers", []Row{{"id": 1, "name": []any{"a", "b"}}})
	assert.ErrorContains(t, err, "column name")

	_, err = s.InsertRows(ctx, "missing", []Row{{"id": 1}})
	assert.ErrorContains(t, err, "insert missing")

	_, err = s.InsertRows(ctx, "products", []Row{{"id": 1, "sku": "A"}, {"id": 1, "sku": "B"}})
	assert.ErrorContains(t, err, "UNIQUE")
}

// A translated and rendered statement runs against tables derived from the
// same model.
func TestTranslatedStatementsExecute(t *testing.T) {
	s := createOrderStore(t)
	ctx := context.Background()
	model := testutil.OrderModel()

	_, err := s.InsertRows(ctx, "customers", []Row{
		{"id": 1, "name": "ACME", "deleted": false},
		{"id": 2, "name": "Gone", "deleted": true},
	})
	require.NoError(t, err)
	_, err = s.InsertRows(ctx, "orders", []Row{
		{"id": 10, "number": "A-1", "version": 0, "customer_id": 1},
		{"id": 11, "number": "A-2", "version": 0, "customer_id": 1},
		{"id": 12, "number": "G-1", "version": 0, "customer_id": 2},
	})
	require.NoError(t, err)

	run := func(stmt queryir.Statement, bindings ir.IRObject) (*querysql.Result, *sqlrender.Rendered, []any) {
		t.Helper()
		tr := querysql.New(model, querysql.WithIDGenerator(testutil.NewFixedIDGenerator("test")))
		res, err := tr.Translate(stmt)
		require.NoError(t, err)
		out, err := sqlrender.Render(res.Statement, mm.SQLite())
		require.NoError(t, err)
		args, err := out.Args(bindings)
		require.NoError(t, err)
		return res, out, args
	}

	t.Run("select through a restricted join", func(t *testing.T) {
		_, out, args := run(&queryir.SelectStatement{Query: &queryir.QuerySpec{
			From:    []queryir.From{queryir.Root("Order", "o")},
			Select:  queryir.Sel(queryir.P("o.number")),
			Where:   queryir.Eq(queryir.P("o.customer.name"), queryir.Param("name")),
			OrderBy: []queryir.SortItem{{Expr: queryir.P("o.number")}},
		}}, ir.IRObject{"name": ir.IRString("ACME")})

		rs, err := s.QueryAll(ctx, out.SQL, args...)
		require.NoError(t, err, out.SQL)
		assert.Equal(t, [][]any{{"A-1"}, {"A-2"}}, rs.Rows)
	})

	t.Run("soft-deleted customers are invisible", func(t *testing.T) {
		_, out, args := run(&queryir.SelectStatement{Query: &queryir.QuerySpec{
			From:   []queryir.From{queryir.Root("Customer", "c")},
			Select: queryir.Sel(queryir.P("c.name")),
		}}, ir.IRObject{})

		rs, err := s.QueryAll(ctx, out.SQL, args...)
		require.NoError(t, err, out.SQL)
		assert.Equal(t, [][]any{{"ACME"}}, rs.Rows)
	})

	t.Run("versioned update", func(t *testing.T) {
		_, out, args := run(&queryir.UpdateStatement{
			Target:      queryir.Root("Order", "o"),
			Versioned:   true,
			Assignments: []queryir.Assignment{{Path: queryir.P("o.number"), Value: queryir.Lit("A-1b")}},
			Where:       queryir.Eq(queryir.P("o.id"), queryir.Param("id")),
		}, ir.IRObject{"id": ir.IRInt(10)})

		n, err := s.Exec(ctx, out.SQL, args...)
		require.NoError(t, err, out.SQL)
		assert.Equal(t, int64(1), n)

		rs, err := s.QueryAll(ctx, `SELECT number, version FROM orders WHERE id = 10`)
		require.NoError(t, err)
		assert.Equal(t, [][]any{{"A-1b", int64(1)}}, rs.Rows)
	})
}
