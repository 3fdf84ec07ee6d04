package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"slices"
	"strings"

	"github.com/google/go-cmp/cmp"

	"github.com/roach88/ormsql/internal/compiler"
	"github.com/roach88/ormsql/internal/ir"
	mm "github.com/roach88/ormsql/internal/metamodel"
	"github.com/roach88/ormsql/internal/querysql"
	"github.com/roach88/ormsql/internal/queryir"
	"github.com/roach88/ormsql/internal/sqlast"
	"github.com/roach88/ormsql/internal/sqlrender"
	"github.com/roach88/ormsql/internal/store"
	"github.com/roach88/ormsql/internal/testutil"
)

// Harness is the scenario execution engine.
// It owns the scenario's database and translator for the length of one run.
type Harness struct {
	store      *store.Store
	translator *querysql.Translator
	dialect    mm.Dialect
	logger     *slog.Logger
}

// Option configures a run.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sends translator and harness logs to l. Runs are silent by
// default.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Step and assertion failures are reported in the result; the error is
// reserved for scenarios that cannot run at all (missing model, bad
// fixtures).
//
// Execution flow:
// 1. Load the model and create its tables in a fresh in-memory database
// 2. Insert the fixtures
// 3. Execute the steps with expect validation
// 4. Evaluate the assertions
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	o := options{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&o)
	}

	model, err := compiler.LoadModel(scenario.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to load model: %w", err)
	}

	dialectName := scenario.Dialect
	if dialectName == "" {
		dialectName = "sqlite"
	}
	dialect, err := mm.DialectByName(dialectName)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	if err := st.CreateSchema(ctx, model); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	translatorOpts := []querysql.Option{
		querysql.WithDialect(dialect),
		querysql.WithFetchProfiles(scenario.FetchProfiles...),
		querysql.WithIDGenerator(testutil.NewSequenceIDGenerator(scenario.Name)),
		querysql.WithLogger(o.logger),
	}
	if scenario.MaxFetchDepth > 0 {
		translatorOpts = append(translatorOpts, querysql.WithMaxFetchDepth(scenario.MaxFetchDepth))
	}

	h := &Harness{
		store:      st,
		translator: querysql.New(model, translatorOpts...),
		dialect:    dialect,
		logger:     o.logger,
	}

	if err := h.insertFixtures(ctx, scenario.Fixtures); err != nil {
		return nil, fmt.Errorf("failed to insert fixtures: %w", err)
	}

	result := NewResult()
	for _, step := range scenario.Steps {
		h.executeStep(ctx, step, result)
	}

	actx := &AssertionContext{
		Store: st,
		Ctx:   ctx,
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}
	return result, nil
}

// insertFixtures fills the tables in name order.
func (h *Harness) insertFixtures(ctx context.Context, fixtures map[string][]map[string]any) error {
	tables := make([]string, 0, len(fixtures))
	for t := range fixtures {
		tables = append(tables, t)
	}
	slices.Sort(tables)

	for _, table := range tables {
		rows := make([]store.Row, len(fixtures[table]))
		for i, r := range fixtures[table] {
			rows[i] = store.Row(r)
		}
		n, err := h.store.InsertRows(ctx, table, rows)
		if err != nil {
			return err
		}
		h.logger.Info("fixtures inserted", "table", table, "rows", n)
	}
	return nil
}

// executeStep runs one step and appends its result. Failures are recorded
// on result; later steps still run.
func (h *Harness) executeStep(ctx context.Context, step Step, result *Result) {
	sr := StepResult{Name: step.Name}
	defer func() { result.Steps = append(result.Steps, sr) }()

	fail := func(format string, args ...any) {
		result.AddError(fmt.Sprintf("step %s: ", step.Name) + fmt.Sprintf(format, args...))
	}
	var expect ExpectClause
	if step.Expect != nil {
		expect = *step.Expect
	}

	stmt, err := queryir.DecodeStatementMap(step.Query)
	if err != nil {
		fail("decode query: %v", err)
		return
	}
	if err := queryir.Validate(stmt).Err(); err != nil {
		fail("%v", err)
		return
	}

	res, err := h.translator.Translate(stmt)
	if err != nil {
		var se *querysql.SemanticError
		if errors.As(err, &se) {
			sr.Error = string(se.Code)
		}
		switch {
		case expect.Error == "":
			fail("translate: %v", err)
		case sr.Error != expect.Error:
			fail("expected error %s, got: %v", expect.Error, err)
		}
		return
	}
	if expect.Error != "" {
		fail("expected error %s, translation succeeded", expect.Error)
	}

	sr.Kind = res.Kind
	sr.Dump = sqlast.Dump(res.Statement)
	if sr.Fingerprint, err = res.Fingerprint(); err != nil {
		fail("fingerprint: %v", err)
		return
	}
	if expect.Kind != "" && expect.Kind != sr.Kind {
		fail("expected kind %s, got %s", expect.Kind, sr.Kind)
	}

	out, err := sqlrender.Render(res.Statement, h.dialect)
	if err != nil {
		fail("render: %v", err)
		return
	}
	sr.SQL = out.SQL
	if expect.SQL != "" && strings.TrimSpace(expect.SQL) != sr.SQL {
		fail("SQL mismatch\n  expected: %s\n  actual:   %s", strings.TrimSpace(expect.SQL), sr.SQL)
	}

	bindings, err := toBindings(step.Bindings)
	if err != nil {
		fail("bindings: %v", err)
		return
	}
	if sr.Args, err = out.Args(bindings); err != nil {
		fail("bind: %v", err)
		return
	}

	if h.dialect.Name() != mm.SQLite().Name() {
		h.logger.Info("step rendered", "step", step.Name, "dialect", h.dialect.Name())
		return
	}
	if err := h.execute(ctx, res, &sr, bindings); err != nil {
		fail("execute: %v\n  sql: %s", err, sr.SQL)
		return
	}

	if expect.Rows != nil {
		if diff := cmp.Diff(normalizeRows(expect.Rows), normalizeRows(sr.Rows)); diff != "" {
			fail("rows mismatch (-expected +actual):\n%s", diff)
		}
	}
	if expect.RowsAffected != nil && *expect.RowsAffected != sr.RowsAffected {
		fail("expected %d rows affected, got %d", *expect.RowsAffected, sr.RowsAffected)
	}
}

// execute runs the rendered statement and records it in the run log.
func (h *Harness) execute(ctx context.Context, res *querysql.Result, sr *StepResult, bindings ir.IRObject) error {
	run := store.Run{
		Fingerprint: sr.Fingerprint,
		Kind:        sr.Kind,
		SQL:         sr.SQL,
		Bindings:    bindings,
	}
	if res.Kind == "select" {
		rs, err := h.store.QueryAll(ctx, sr.SQL, sr.Args...)
		if err != nil {
			return err
		}
		sr.Columns, sr.Rows = rs.Columns, rs.Rows
		run.RowCount = len(rs.Rows)
	} else {
		n, err := h.store.Exec(ctx, sr.SQL, sr.Args...)
		if err != nil {
			return err
		}
		sr.RowsAffected = n
		run.RowsAffected = n
	}
	sr.Executed = true

	seq, inserted, err := h.store.RecordRun(ctx, run)
	if err != nil {
		return err
	}
	sr.RunSeq = seq

	h.logger.Info("step executed",
		"step", sr.Name,
		"translation_id", res.ID,
		"kind", sr.Kind,
		"run_seq", seq,
		"first_run", inserted,
		"rows", len(sr.Rows),
		"rows_affected", sr.RowsAffected,
	)
	return nil
}

// toBindings converts YAML-parsed parameter values to an ir.IRObject.
func toBindings(raw map[string]any) (ir.IRObject, error) {
	out := make(ir.IRObject, len(raw))
	for name, v := range raw {
		val, err := ir.FromAny(v)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", name, err)
		}
		out[name] = val
	}
	return out, nil
}

// normalizeRows maps expected and actual cells onto the values SQLite
// returns: integers as int64, booleans as 0 or 1, integral reals as int64.
func normalizeRows(rows [][]any) [][]any {
	out := make([][]any, len(rows))
	for i, row := range rows {
		out[i] = make([]any, len(row))
		for j, v := range row {
			out[i][j] = normalizeValue(v)
		}
	}
	return out
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case int:
		return int64(val)
	case uint64:
		return int64(val)
	case bool:
		if val {
			return int64(1)
		}
		return int64(0)
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1<<53 {
			return int64(val)
		}
		return val
	case []byte:
		return string(val)
	}
	return v
}
