package harness

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance scenario: a model, the rows it starts
// with, and a sequence of domain queries whose translation and execution
// are checked.
type Scenario struct {
	// Name uniquely identifies this scenario. Golden files are keyed by it.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Model is the directory of the CUE model. Relative paths are resolved
	// against the scenario file's directory.
	Model string `yaml:"model"`

	// Dialect names the SQL dialect ("sqlite" when empty). Statements are
	// only executed for sqlite; other dialects are rendered and checked.
	Dialect string `yaml:"dialect,omitempty"`

	// FetchProfiles lists the model fetch profiles enabled for every step.
	FetchProfiles []string `yaml:"fetch_profiles,omitempty"`

	// MaxFetchDepth overrides the translator's fetch depth when positive.
	MaxFetchDepth int `yaml:"max_fetch_depth,omitempty"`

	// Fixtures maps table names to the rows inserted before the first step.
	// Tables are filled in name order.
	Fixtures map[string][]map[string]any `yaml:"fixtures,omitempty"`

	// Steps are translated, rendered and executed in order against the
	// same database, so DML steps change what later steps see.
	Steps []Step `yaml:"steps"`

	// Assertions are evaluated after the last step.
	// Supported types: sql_contains, row_count, same_fingerprint, final_state
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one domain statement.
type Step struct {
	// Name identifies the step in assertions and golden files.
	Name string `yaml:"name"`

	// Query is the domain statement in the YAML query format: a map with
	// one of select, insert, update or delete, and an optional with.
	Query map[string]any `yaml:"query"`

	// Bindings are the parameter values, keyed by parameter name.
	Bindings map[string]any `yaml:"bindings,omitempty"`

	// Expect specifies the expected outcome.
	// If nil, the step only has to translate and execute without error.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies expected step behavior. Empty fields are not
// checked.
type ExpectClause struct {
	// Kind is the statement kind: select, insert, update or delete.
	Kind string `yaml:"kind,omitempty"`

	// Error is the semantic error code the translation must fail with
	// (e.g., "MISSING_JOIN_CONDITION").
	Error string `yaml:"error,omitempty"`

	// SQL is the exact rendered statement.
	SQL string `yaml:"sql,omitempty"`

	// Rows are the exact result rows of a query, in order.
	Rows [][]any `yaml:"rows,omitempty"`

	// RowsAffected is the row count reported for DML.
	RowsAffected *int64 `yaml:"rows_affected,omitempty"`
}

// Assertion validates the steps or the final database state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "sql_contains": the rendered SQL of Step contains Text
	// - "row_count": Step returned (or, for DML, affected) Count rows
	// - "same_fingerprint": all Steps translated to the same statement shape
	// - "final_state": query Table and verify expected values
	Type string `yaml:"type"`

	// Step names the step (used by sql_contains, row_count).
	Step string `yaml:"step,omitempty"`

	// Text is the expected SQL fragment (used by sql_contains).
	Text string `yaml:"text,omitempty"`

	// Count is the expected number of rows (used by row_count).
	Count int `yaml:"count,omitempty"`

	// Steps lists the steps to compare (used by same_fingerprint).
	Steps []string `yaml:"steps,omitempty"`

	// Table is the table name (used by final_state).
	Table string `yaml:"table,omitempty"`

	// Where specifies query filters (used by final_state).
	// All fields must match exactly.
	Where map[string]any `yaml:"where,omitempty"`

	// Expect contains expected column values (used by final_state).
	// Subset match - only specified columns are validated.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertSQLContains     = "sql_contains"
	AssertRowCount        = "row_count"
	AssertSameFingerprint = "same_fingerprint"
	AssertFinalState      = "final_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
//
// A relative model path is resolved against the scenario file's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Model != "" && !filepath.IsAbs(scenario.Model) {
		scenario.Model = filepath.Join(filepath.Dir(path), scenario.Model)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// FindScenarios walks dir and returns every .yaml or .yml file in path
// order.
func FindScenarios(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch filepath.Ext(path) {
		case ".yaml", ".yml":
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(files)
	return files, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Model == "" {
		return fmt.Errorf("model is required")
	}
	if info, err := os.Stat(s.Model); err != nil || !info.IsDir() {
		return fmt.Errorf("model directory not found: %s", s.Model)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for table := range s.Fixtures {
		if !validIdentifier.MatchString(table) {
			return fmt.Errorf("fixtures: invalid table name %q", table)
		}
	}

	names := map[string]bool{}
	for i, step := range s.Steps {
		if step.Name == "" {
			return fmt.Errorf("steps[%d]: name is required", i)
		}
		if names[step.Name] {
			return fmt.Errorf("steps[%d]: duplicate step name %q", i, step.Name)
		}
		names[step.Name] = true
		if len(step.Query) == 0 {
			return fmt.Errorf("steps[%d]: query is required", i)
		}
		if e := step.Expect; e != nil && e.Error != "" && (e.SQL != "" || e.Rows != nil || e.RowsAffected != nil) {
			return fmt.Errorf("steps[%d].expect: error excludes sql, rows and rows_affected", i)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion, names); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, steps map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertSQLContains, AssertRowCount:
		if a.Step == "" {
			return fmt.Errorf("assertions[%d]: step is required for %s", index, a.Type)
		}
		if !steps[a.Step] {
			return fmt.Errorf("assertions[%d]: unknown step %q", index, a.Step)
		}
		if a.Type == AssertSQLContains && a.Text == "" {
			return fmt.Errorf("assertions[%d]: text is required for sql_contains", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for row_count", index)
		}
	case AssertSameFingerprint:
		if len(a.Steps) < 2 {
			return fmt.Errorf("assertions[%d]: same_fingerprint needs at least two steps", index)
		}
		for _, name := range a.Steps {
			if !steps[name] {
				return fmt.Errorf("assertions[%d]: unknown step %q", index, name)
			}
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
