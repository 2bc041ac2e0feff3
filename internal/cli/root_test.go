package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the root command with args against a temp database and an
// unlimited platform rate.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("SUBSKU_RATE_PER_SECOND", "0")
	t.Setenv("SUBSKU_LOG_LEVEL", "error")

	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "subsku", cmd.Use)
	assert.Contains(t, cmd.Long, "sub-units")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"serve", "dispatch", "pool", "reconcile", "test"}

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

	require.NotNil(t, cmd.PersistentFlags().Lookup("config"))
}

func TestStoreFlags(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"serve", "dispatch", "pool", "reconcile"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)
		assert.NotNil(t, sub.Flags().Lookup("db"), name)
		assert.NotNil(t, sub.Flags().Lookup("platform-state"), name)
	}

	serve, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)
	assert.NotNil(t, serve.Flags().Lookup("addr"))
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, "pool", "--format", "xml", "ABC")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestBadConfigIsCommandError(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "subsku.cue", `max_attempts: 0`)

	_, err := execute(t, "pool", "--config", cfg, "--db", filepath.Join(dir, "x.db"), "ABC")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
