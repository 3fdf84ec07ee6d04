package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/ormsql/internal/ir"
)

// Run is one executed statement in the run log.
type Run struct {
	Seq         int64
	Fingerprint string
	BindingHash string
	Kind        string
	SQL         string
	Bindings    ir.IRObject
	// RowsAffected is set for DML, RowCount for queries.
	RowsAffected int64
	RowCount     int
}

// RecordRun appends a run to the log.
// A second run of the same statement shape with the same bindings is not
// recorded again: the first run's seq is returned and inserted is false.
// The lookup and the insert share one transaction so an ignored duplicate
// never consumes a seq.
//
// BindingHash is computed from Bindings when empty.
func (s *Store) RecordRun(ctx context.Context, r Run) (seq int64, inserted bool, err error) {
	if r.Bindings == nil {
		r.Bindings = ir.IRObject{}
	}
	if r.BindingHash == "" {
		if r.BindingHash, err = ir.BindingHash(r.Bindings); err != nil {
			return 0, false, fmt.Errorf("record run: %w", err)
		}
	}
	bindings, err := marshalBindings(r.Bindings)
	if err != nil {
		return 0, false, fmt.Errorf("record run: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("record run: begin transaction: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	err = tx.QueryRowContext(ctx,
		`SELECT seq FROM ormsql_runs WHERE fingerprint = ? AND binding_hash = ?`,
		r.Fingerprint, r.BindingHash,
	).Scan(&seq)
	switch {
	case err == nil:
		return seq, false, nil
	case !errors.Is(err, sql.ErrNoRows):
		return 0, false, fmt.Errorf("record run: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO ormsql_runs
		(fingerprint, binding_hash, kind, sql_text, bindings, rows_affected, row_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		r.Fingerprint,
		r.BindingHash,
		r.Kind,
		r.SQL,
		bindings,
		r.RowsAffected,
		r.RowCount,
	)
	if err != nil {
		return 0, false, fmt.Errorf("record run: %w", err)
	}
	if seq, err = res.LastInsertId(); err != nil {
		return 0, false, fmt.Errorf("record run: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("record run: commit: %w", err)
	}
	return seq, true, nil
}

// ReadRuns returns the run log in seq order.
func (s *Store) ReadRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, fingerprint, binding_hash, kind, sql_text, bindings, rows_affected, row_count
		FROM ormsql_runs
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("read runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("read runs: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read runs: %w", err)
	}
	return runs, nil
}

// ReadRunsFor returns the runs of one statement shape in seq order.
func (s *Store) ReadRunsFor(ctx context.Context, fingerprint string) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, fingerprint, binding_hash, kind, sql_text, bindings, rows_affected, row_count
		FROM ormsql_runs
		WHERE fingerprint = ?
		ORDER BY seq ASC
	`, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("read runs for %s: %w", fingerprint, err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("read runs for %s: %w", fingerprint, err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func scanRun(rows *sql.Rows) (Run, error) {
	var r Run
	var bindings string
	if err := rows.Scan(&r.Seq, &r.Fingerprint, &r.BindingHash, &r.Kind, &r.SQL, &bindings, &r.RowsAffected, &r.RowCount); err != nil {
		return Run{}, err
	}
	var err error
	if r.Bindings, err = unmarshalBindings(bindings); err != nil {
		return Run{}, err
	}
	return r, nil
}

// marshalBindings converts parameter values to canonical JSON TEXT.
func marshalBindings(b ir.IRObject) (string, error) {
	data, err := ir.MarshalCanonical(b)
	if err != nil {
		return "", fmt.Errorf("marshal bindings: %w", err)
	}
	return string(data), nil
}

// unmarshalBindings parses canonical JSON TEXT. Numbers are decoded with
// json.Number so integers beyond 2^53 keep their precision. Timestamps and
// durations come back as their string forms.
func unmarshalBindings(data string) (ir.IRObject, error) {
	if data == "" || data == "{}" {
		return ir.IRObject{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("unmarshal bindings: %w", err)
	}
	v, err := ir.FromAny(raw)
	if err != nil {
		return nil, fmt.Errorf("unmarshal bindings: %w", err)
	}
	return v.(ir.IRObject), nil
}
