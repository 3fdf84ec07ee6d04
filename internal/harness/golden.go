package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/ormsql/internal/ir"
)

// Snapshot captures what a scenario execution produced.
// It is serialized as canonical JSON for deterministic comparison.
type Snapshot struct {
	ScenarioName string
	Steps        []StepResult
}

// toCanonicalMap converts a Snapshot to a map[string]any for canonical JSON
// serialization. Fingerprints, rendered SQL and run sequence numbers are
// left out: the dump already pins the statement shape, and the rest follows
// from it.
func (s *Snapshot) toCanonicalMap() map[string]any {
	steps := make([]any, len(s.Steps))
	for i, st := range s.Steps {
		m := map[string]any{"name": st.Name}
		if st.Error != "" {
			m["error"] = st.Error
		}
		if st.Kind != "" {
			m["kind"] = st.Kind
			m["dump"] = st.Dump
			m["args"] = append([]any{}, st.Args...)
		}
		if st.Executed {
			if st.Kind == "select" {
				rows := make([]any, len(st.Rows))
				for j, r := range st.Rows {
					rows[j] = append([]any{}, r...)
				}
				m["rows"] = rows
			} else {
				m["rows_affected"] = st.RowsAffected
			}
		}
		steps[i] = m
	}
	return map[string]any{
		"scenario_name": s.ScenarioName,
		"steps":         steps,
	}
}

func (s *Snapshot) marshal() ([]byte, error) {
	v, err := ir.FromAny(s.toCanonicalMap())
	if err != nil {
		return nil, err
	}
	return ir.MarshalCanonical(v)
}

// MarshalSnapshot returns the canonical golden bytes for a scenario result.
func MarshalSnapshot(scenarioName string, result *Result) ([]byte, error) {
	return (&Snapshot{ScenarioName: scenarioName, Steps: result.Steps}).marshal()
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file. The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares the given result against a golden file.
// This is useful when you've already run a scenario and want to compare
// the result against a golden file without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := Snapshot{
		ScenarioName: scenarioName,
		Steps:        result.Steps,
	}
	data, err := snapshot.marshal()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
