package cli

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCommand executes cmd with args and returns what it wrote.
func runCommand(t *testing.T, cmd *cobra.Command, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "ormsql", cmd.Use)
	assert.Contains(t, cmd.Long, "ormsql.yaml")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"translate", "validate", "run", "test", "history"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	assert.NotNil(t, cmd.PersistentFlags().Lookup("config"))
	assert.NotNil(t, cmd.PersistentFlags().Lookup("log-level"))
}

func TestTranslatorFlags(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"translate", "validate", "run"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			modelFlag := sub.Flags().Lookup("model")
			require.NotNil(t, modelFlag)
			assert.Equal(t, "m", modelFlag.Shorthand)
			for _, flag := range []string{"dialect", "profile", "max-fetch-depth"} {
				assert.NotNil(t, sub.Flags().Lookup(flag), flag)
			}
		})
	}
}

func TestRootRejectsInvalidFormat(t *testing.T) {
	_, _, err := runCommand(t, NewRootCommand(), "translate", "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "xml"`)
}

func TestRootRunsSubcommand(t *testing.T) {
	stdout, _, err := runCommand(t, NewRootCommand(),
		"translate", "--model", "testdata/model", "--query", "testdata/queries/all_skus.yaml", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, stdout, "select p1_0.id, p1_0.sku from products p1_0 order by p1_0.sku")
}
