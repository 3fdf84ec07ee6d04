package harness

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/roach88/ormsql/internal/ir"
	"github.com/roach88/ormsql/internal/store"
)

// validIdentifier matches valid SQL identifiers (table/column names).
// Only allows alphanumeric and underscore, must start with letter or underscore.
// This prevents SQL injection via identifier interpolation.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// AssertionContext carries what state assertions need.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
}

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Steps    []StepResult // Step results for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Steps) > 0 {
		fmt.Fprintf(&buf, "\nSteps:\n")
		for i, s := range e.Steps {
			if s.SQL != "" {
				fmt.Fprintf(&buf, "  [%d] %s: %s\n", i+1, s.Name, s.SQL)
			} else {
				fmt.Fprintf(&buf, "  [%d] %s: error %s\n", i+1, s.Name, s.Error)
			}
		}
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion and returns the failure
// messages, in assertion order.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertSQLContains:
			err = assertSQLContains(result, a)
		case AssertRowCount:
			err = assertRowCount(result, a)
		case AssertSameFingerprint:
			err = assertSameFingerprint(result, a)
		case AssertFinalState:
			err = assertFinalState(actx.Ctx, actx.Store, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func stepOf(result *Result, typ, name string) (*StepResult, error) {
	s, ok := result.Step(name)
	if !ok {
		return nil, &AssertionError{
			Type:     typ,
			Expected: fmt.Sprintf("step %s", name),
			Actual:   "step not run",
			Steps:    result.Steps,
		}
	}
	return s, nil
}

// assertSQLContains checks that the rendered SQL of a step contains a
// fragment.
func assertSQLContains(result *Result, assertion Assertion) error {
	s, err := stepOf(result, AssertSQLContains, assertion.Step)
	if err != nil {
		return err
	}
	if !strings.Contains(s.SQL, assertion.Text) {
		return &AssertionError{
			Type:     AssertSQLContains,
			Expected: fmt.Sprintf("SQL of %s to contain %q", s.Name, assertion.Text),
			Actual:   s.SQL,
			Steps:    result.Steps,
		}
	}
	return nil
}

// assertRowCount checks the rows a query returned, or the rows a DML
// statement affected.
func assertRowCount(result *Result, assertion Assertion) error {
	s, err := stepOf(result, AssertRowCount, assertion.Step)
	if err != nil {
		return err
	}
	if !s.Executed {
		return &AssertionError{
			Type:     AssertRowCount,
			Expected: fmt.Sprintf("%d rows from %s", assertion.Count, s.Name),
			Actual:   "step was not executed",
			Steps:    result.Steps,
		}
	}
	count := int64(len(s.Rows))
	if s.Kind != "select" {
		count = s.RowsAffected
	}
	if count != int64(assertion.Count) {
		return &AssertionError{
			Type:     AssertRowCount,
			Expected: fmt.Sprintf("%d rows from %s", assertion.Count, s.Name),
			Actual:   fmt.Sprintf("%d rows", count),
			Steps:    result.Steps,
		}
	}
	return nil
}

// assertSameFingerprint checks that steps translated to the same statement
// shape, whatever their bindings.
func assertSameFingerprint(result *Result, assertion Assertion) error {
	var first *StepResult
	for _, name := range assertion.Steps {
		s, err := stepOf(result, AssertSameFingerprint, name)
		if err != nil {
			return err
		}
		if s.Fingerprint == "" {
			return &AssertionError{
				Type:     AssertSameFingerprint,
				Expected: fmt.Sprintf("step %s to translate", s.Name),
				Actual:   fmt.Sprintf("error %s", s.Error),
				Steps:    result.Steps,
			}
		}
		if first == nil {
			first = s
			continue
		}
		if s.Fingerprint != first.Fingerprint {
			return &AssertionError{
				Type:     AssertSameFingerprint,
				Expected: fmt.Sprintf("%s to have the shape of %s", s.Name, first.Name),
				Actual:   fmt.Sprintf("%s\n    vs %s", s.Dump, first.Dump),
				Steps:    result.Steps,
			}
		}
	}
	return nil
}

// assertFinalState checks if a table contains exactly one row matching the
// where clause, with the expected values.
//
// Security: Table and column names are validated against a whitelist pattern
// to prevent SQL injection via identifier interpolation.
func assertFinalState(ctx context.Context, st *store.Store, assertion Assertion) error {
	if assertion.Table == "" {
		return fmt.Errorf("final_state assertion requires table name")
	}
	if !validIdentifier.MatchString(assertion.Table) {
		return fmt.Errorf("invalid table name %q: must match pattern %s", assertion.Table, validIdentifier.String())
	}

	where := sq.Eq{}
	for key, v := range assertion.Where {
		if !validIdentifier.MatchString(key) {
			return fmt.Errorf("invalid column name %q in where clause: must match pattern %s", key, validIdentifier.String())
		}
		where[key] = toSQLValue(v)
	}
	query, args, err := sq.Select("*").From(assertion.Table).Where(where).ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	rs, err := st.QueryAll(ctx, query, args...)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("query table %s", assertion.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}

	whereDesc := formatWhereClause(assertion.Where)
	switch len(rs.Rows) {
	case 0:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in %s where %s", assertion.Table, whereDesc),
			Actual:   "row not found",
		}
	case 1:
	default:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one row in %s where %s", assertion.Table, whereDesc),
			Actual:   "multiple rows matched (assertion is ambiguous)",
		}
	}

	actualRow := rs.Maps()[0]
	keys := make([]string, 0, len(assertion.Expect))
	for k := range assertion.Expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	// Subset semantics: only columns named in Expect are checked.
	for _, key := range keys {
		expectedValue := assertion.Expect[key]
		actualValue, exists := actualRow[key]
		if !exists {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("field %q not present in result columns: %v", key, rs.Columns),
			}
		}
		if !stateValuesEqual(expectedValue, actualValue) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %v (type %T)", key, expectedValue, expectedValue),
				Actual:   fmt.Sprintf("field %q = %v (type %T)", key, actualValue, actualValue),
			}
		}
	}
	return nil
}

// toSQLValue converts a YAML or IR value to a SQL-compatible value.
func toSQLValue(v any) any {
	switch val := v.(type) {
	case ir.IRValue:
		if dv, err := ir.DriverValue(val); err == nil {
			return dv
		}
		return fmt.Sprintf("%v", val)
	case nil, string, int, int64, bool, float64:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}

// formatWhereClause creates a human-readable description of WHERE conditions.
func formatWhereClause(where map[string]any) string {
	if len(where) == 0 {
		return "(no conditions)"
	}

	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

// stateValuesEqual compares expected and actual values from tables.
// Handles type coercion for SQLite values which may be returned as different types.
func stateValuesEqual(expected, actual any) bool {
	if expected == nil || actual == nil {
		return expected == nil && actual == nil
	}
	if v, ok := expected.(ir.IRValue); ok {
		dv, err := ir.DriverValue(v)
		if err != nil {
			return false
		}
		expected = dv
	}
	return reflect.DeepEqual(normalizeValue(expected), normalizeValue(actual))
}
