package store

import (
	"context"
	"fmt"
	"maps"
	"slices"

	sq "github.com/Masterminds/squirrel"

	"github.com/roach88/ormsql/internal/ir"
)

// Row is one fixture row keyed by column name. Values may be plain Go
// values or IR values.
type Row map[string]any

// InsertRows inserts fixture rows into table with a single INSERT.
// The column list is the union of the rows' keys in name order; a row
// without a column inserts NULL there.
func (s *Store) InsertRows(ctx context.Context, table string, rows []Row) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	seen := map[string]bool{}
	for _, r := range rows {
		for c := range r {
			seen[c] = true
		}
	}
	columns := slices.Sorted(maps.Keys(seen))

	qb := sq.Insert(quote(table)).PlaceholderFormat(sq.Question)
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = quote(c)
	}
	qb = qb.Columns(quoted...)
	for i, r := range rows {
		values := make([]any, len(columns))
		for j, c := range columns {
			v, err := driverValue(r[c])
			if err != nil {
				return 0, fmt.Errorf("insert %s row %d column %s: %w", table, i, c, err)
			}
			values[j] = v
		}
		qb = qb.Values(values...)
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return 0, fmt.Errorf("insert %s: %w", table, err)
	}
	n, err := s.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("insert %s: %w", table, err)
	}
	return n, nil
}

func driverValue(v any) (any, error) {
	switch val := v.(type) {
	case ir.IRValue:
		return ir.DriverValue(val)
	case []any, map[string]any:
		return nil, fmt.Errorf("composite value %T", v)
	}
	return v, nil
}

// ResultSet holds every row a query returned. Text columns come back as
// strings, not byte slices.
type ResultSet struct {
	Columns []string
	Rows    [][]any
}

// QueryAll executes a query and reads all of its rows.
func (s *Store) QueryAll(ctx context.Context, query string, args ...any) (*ResultSet, error) {
	rows, err := s.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	rs := &ResultSet{Columns: columns, Rows: [][]any{}}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		rs.Rows = append(rs.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return rs, nil
}

// Maps returns the rows keyed by column name.
func (rs *ResultSet) Maps() []map[string]any {
	out := make([]map[string]any, len(rs.Rows))
	for i, r := range rs.Rows {
		m := make(map[string]any, len(rs.Columns))
		for j, c := range rs.Columns {
			m[c] = r[j]
		}
		out[i] = m
	}
	return out
}
