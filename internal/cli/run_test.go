package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runArgs(db, query string, extra ...string) []string {
	return append([]string{"--db", db, "--model", "testdata/model", "--query", query}, extra...)
}

func TestRunCommand_ExecutesAndRecords(t *testing.T) {
	db := filepath.Join(t.TempDir(), "shop.db")

	stdout, _, err := runCommand(t, NewRunCommand(&RootOptions{Format: "text"}),
		runArgs(db, "testdata/queries/all_skus.yaml", "--init", "--fixtures", "testdata/fixtures.yaml")...)
	require.NoError(t, err)
	assert.Equal(t, "id  sku\n1   A\n2   B\n(2 row(s))\n", stdout)

	stdout, _, err = runCommand(t, NewRunCommand(&RootOptions{Format: "text"}),
		runArgs(db, "testdata/queries/remove_product.yaml", "--param", "sku=A")...)
	require.NoError(t, err)
	assert.Equal(t, "1 row(s) affected\n", stdout)

	stdout, _, err = runCommand(t, NewRunCommand(&RootOptions{Format: "json"}),
		runArgs(db, "testdata/queries/all_skus.yaml")...)
	require.NoError(t, err)

	var resp struct {
		Status        string    `json:"status"`
		TranslationID string    `json:"translation_id"`
		Data          RunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, []string{"id", "sku"}, resp.Data.Columns)
	assert.Equal(t, [][]any{{float64(2), "B"}}, resp.Data.Rows)
	assert.Equal(t, "select", resp.Data.Translation.Kind)

	// Same shape, same bindings: the run log keeps the first entry.
	assert.Equal(t, int64(1), resp.Data.RunSeq)
	assert.False(t, resp.Data.FirstRun)
}

func TestRunCommand_Errors(t *testing.T) {
	db := filepath.Join(t.TempDir(), "shop.db")

	tests := []struct {
		name     string
		args     []string
		exitCode int
		want     string
	}{
		{
			name:     "no database",
			args:     []string{"--model", "testdata/model", "--query", "testdata/queries/all_skus.yaml"},
			exitCode: ExitCommandError,
			want:     "Error [E401]: no database given",
		},
		{
			name:     "postgres dialect",
			args:     runArgs(db, "testdata/queries/all_skus.yaml", "--dialect", "postgresql"),
			exitCode: ExitCommandError,
			want:     "run executes SQLite only",
		},
		{
			name:     "unbound parameter",
			args:     runArgs(db, "testdata/queries/remove_product.yaml"),
			exitCode: ExitFailure,
			want:     "Error [E104]: unbound parameters: :sku",
		},
		{
			name:     "missing table",
			args:     runArgs(db, "testdata/queries/all_skus.yaml"),
			exitCode: ExitFailure,
			want:     "Error [E402]",
		},
		{
			name:     "missing fixtures",
			args:     runArgs(db, "testdata/queries/all_skus.yaml", "--init", "--fixtures", "testdata/nope.yaml"),
			exitCode: ExitCommandError,
			want:     "read fixtures",
		},
		{
			name:     "semantic error",
			args:     runArgs(db, "testdata/queries/retitle_event.yaml"),
			exitCode: ExitFailure,
			want:     "Error [CUSTOM_VERSION]",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stdout, _, err := runCommand(t, NewRunCommand(&RootOptions{Format: "text"}), tt.args...)
			require.Error(t, err)
			assert.Equal(t, tt.exitCode, GetExitCode(err))
			assert.Contains(t, stdout, tt.want)
		})
	}
}

func TestRunCommand_LogsToStderr(t *testing.T) {
	db := filepath.Join(t.TempDir(), "shop.db")
	stdout, stderr, err := runCommand(t, NewRunCommand(&RootOptions{Format: "text"}),
		runArgs(db, "testdata/queries/all_skus.yaml", "--init", "--fixtures", "testdata/fixtures.yaml")...)
	require.NoError(t, err)

	assert.NotContains(t, stdout, "statement executed")
	assert.Contains(t, stderr, "INF")
	assert.Contains(t, stderr, "fixtures inserted")
	assert.Contains(t, stderr, "statement executed")
	assert.Contains(t, stderr, "run_seq=1")
}

func TestHistoryCommand(t *testing.T) {
	db := filepath.Join(t.TempDir(), "shop.db")
	_, _, err := runCommand(t, NewRunCommand(&RootOptions{Format: "text"}),
		runArgs(db, "testdata/queries/all_skus.yaml", "--init", "--fixtures", "testdata/fixtures.yaml")...)
	require.NoError(t, err)
	_, _, err = runCommand(t, NewRunCommand(&RootOptions{Format: "text"}),
		runArgs(db, "testdata/queries/remove_product.yaml", "--param", "sku=A")...)
	require.NoError(t, err)

	stdout, _, err := runCommand(t, NewHistoryCommand(&RootOptions{Format: "text"}), "--db", db)
	require.NoError(t, err)
	assert.Contains(t, stdout, "SEQ  KIND")
	assert.Contains(t, stdout, `{"sku":"A"}`)
	assert.Contains(t, stdout, "delete from products as p1_0 where p1_0.sku = ?")

	stdout, _, err = runCommand(t, NewHistoryCommand(&RootOptions{Format: "json"}), "--db", db)
	require.NoError(t, err)
	var resp struct {
		Data History `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	require.Len(t, resp.Data, 2)
	assert.Equal(t, int64(1), resp.Data[0].Seq)
	assert.Equal(t, "select", resp.Data[0].Kind)
	assert.Equal(t, 2, resp.Data[0].RowCount)
	assert.Equal(t, "delete", resp.Data[1].Kind)
	assert.Equal(t, int64(1), resp.Data[1].RowsAffected)
	assert.Equal(t, `{"sku":"A"}`, resp.Data[1].Bindings)

	stdout, _, err = runCommand(t, NewHistoryCommand(&RootOptions{Format: "json"}), "--db", db, "--fingerprint", resp.Data[1].Fingerprint)
	require.NoError(t, err)
	var filtered struct {
		Data History `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &filtered))
	require.Len(t, filtered.Data, 1)
	assert.Equal(t, "delete", filtered.Data[0].Kind)
}

func TestHistoryCommand_Empty(t *testing.T) {
	stdout, _, err := runCommand(t, NewHistoryCommand(&RootOptions{Format: "text"}), "--db", filepath.Join(t.TempDir(), "empty.db"))
	require.NoError(t, err)
	assert.Equal(t, "No runs recorded.\n", stdout)

	_, _, err = runCommand(t, NewHistoryCommand(&RootOptions{Format: "text"}))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
