package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ormsql/internal/compiler"
)

func TestValidateCommand_ValidModel(t *testing.T) {
	stdout, _, err := runCommand(t, NewValidateCommand(&RootOptions{Format: "text"}), "--model", "testdata/model")
	require.NoError(t, err)
	assert.Equal(t, "✓ Model valid (5 entities)\n", stdout)
}

func TestValidateCommand_Queries(t *testing.T) {
	stdout, _, err := runCommand(t, NewValidateCommand(&RootOptions{Format: "text"}),
		"--model", "testdata/model",
		"testdata/queries/all_skus.yaml",
		"testdata/queries/retitle_event.yaml",
		"testdata/queries/duplicate_alias.yaml",
	)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "validation failed with 2 error(s)")

	assert.Contains(t, stdout, "✓ Model valid (5 entities)")
	assert.Contains(t, stdout, "✓ testdata/queries/all_skus.yaml (select)")
	assert.Contains(t, stdout, "✗ testdata/queries/retitle_event.yaml\n  CUSTOM_VERSION")
	assert.Contains(t, stdout, "✗ testdata/queries/duplicate_alias.yaml\n  E103")
}

func TestValidateCommand_ModelErrors(t *testing.T) {
	stdout, _, err := runCommand(t, NewValidateCommand(&RootOptions{Format: "text"}), "--model", "testdata/badmodel")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	assert.Contains(t, stdout, "warning: ")
	assert.Contains(t, stdout, "Employee.manager")
	assert.Contains(t, stdout, "✗ Model validation failed")
	assert.Contains(t, stdout, compiler.ErrDuplicateColumn+": entity.Article.attributes.title")
}

func TestValidateCommand_CompileError(t *testing.T) {
	stdout, _, err := runCommand(t, NewValidateCommand(&RootOptions{Format: "text"}), "--model", "testdata/brokenmodel")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, ErrCodeModelInvalid+": entity.Article.attributes.title")
	assert.Contains(t, stdout, "attribute needs one of")
}

func TestValidateCommand_MissingModel(t *testing.T) {
	stdout, _, err := runCommand(t, NewValidateCommand(&RootOptions{Format: "text"}), "--model", "testdata/nope")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stdout, "Error [E005]")
}

func TestValidateCommand_JSON(t *testing.T) {
	stdout, _, err := runCommand(t, NewValidateCommand(&RootOptions{Format: "json"}), "--model", "testdata/badmodel")
	require.Error(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
		Error  *CLIError        `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)
	assert.Equal(t, 2, resp.Data.Entities)
	require.Len(t, resp.Data.Errors, 1)
	assert.Equal(t, compiler.ErrDuplicateColumn, resp.Data.Errors[0].Code)
	require.Len(t, resp.Data.Warnings, 1)
	assert.Equal(t, []string{"Employee", "Employee"}, resp.Data.Warnings[0].Path)
	require.NotNil(t, resp.Error)
	assert.Equal(t, compiler.ErrDuplicateColumn, resp.Error.Code)
	assert.Equal(t, "entity.Article.attributes.title", resp.Error.Position)
}

func TestValidateCommand_JSONValid(t *testing.T) {
	stdout, _, err := runCommand(t, NewValidateCommand(&RootOptions{Format: "json"}),
		"--model", "testdata/model", "testdata/queries/skus.yaml")
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, []QueryCheck{{File: "testdata/queries/skus.yaml", Valid: true, Kind: "select"}}, resp.Data.Queries)
}
