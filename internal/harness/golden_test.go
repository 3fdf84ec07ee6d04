package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGolden_Orders(t *testing.T) {
	result, err := RunWithGolden(t, loadScenario(t, "testdata/scenarios/orders.yaml"))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

// Running the same scenario twice yields the same snapshot.
func TestGolden_Deterministic(t *testing.T) {
	s := loadScenario(t, "testdata/scenarios/orders.yaml")

	first, err := Run(s)
	require.NoError(t, err)
	second, err := Run(s)
	require.NoError(t, err)

	a, err := (&Snapshot{ScenarioName: s.Name, Steps: first.Steps}).marshal()
	require.NoError(t, err)
	b, err := (&Snapshot{ScenarioName: s.Name, Steps: second.Steps}).marshal()
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))

	for i := range first.Steps {
		assert.Equal(t, first.Steps[i].Fingerprint, second.Steps[i].Fingerprint)
	}
}

func TestSnapshot_CanonicalMap(t *testing.T) {
	snap := Snapshot{
		ScenarioName: "s",
		Steps: []StepResult{
			{Name: "q", Kind: "select", Dump: "select 1", Args: []any{int64(1)}, Executed: true, Rows: [][]any{{"a", nil}}},
			{Name: "u", Kind: "update", Dump: "update t", Executed: true, RowsAffected: 2},
			{Name: "r", Kind: "select", Dump: "select 2"},
			{Name: "e", Error: "NOT_VERSIONED"},
		},
	}
	data, err := snap.marshal()
	require.NoError(t, err)
	assert.Equal(t,
		`{"scenario_name":"s","steps":[`+
			`{"args":[1],"dump":"select 1","kind":"select","name":"q","rows":[["a",null]]},`+
			`{"args":[],"dump":"update t","kind":"update","name":"u","rows_affected":2},`+
			`{"args":[],"dump":"select 2","kind":"select","name":"r"},`+
			`{"error":"NOT_VERSIONED","name":"e"}]}`,
		string(data))
}
