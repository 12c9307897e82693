package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run executes the root command with args against a file storage in dir.
func run(t *testing.T, dir string, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--env", "", "--log-level", "error"}, args...))

	t.Setenv("CRDTJSON_PERSISTENCE", "file")
	t.Setenv("CRDTJSON_PATH", dir)
	err := cmd.Execute()
	return out.String(), err
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"put", "get", "list", "delete", "serve"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}

	assert.NotNil(t, cmd.PersistentFlags().Lookup("config"))
	assert.NotNil(t, cmd.PersistentFlags().Lookup("env"))
}

func TestPutGetList(t *testing.T) {
	dir := t.TempDir()

	out, err := run(t, dir, "", "put", "room", "players", `[{"id":"a","hp":10}]`)
	require.NoError(t, err)
	assert.Contains(t, out, "room/players updated")

	out, err = run(t, dir, "", "put", "room", "players", `[{"id":"a","hp":10}]`)
	require.NoError(t, err)
	assert.Contains(t, out, "room/players unchanged")

	out, err = run(t, dir, `[{"id":"a","hp":8}]`, "put", "room", "players")
	require.NoError(t, err)
	assert.Contains(t, out, "(1 ops)")

	out, err = run(t, dir, "", "get", "room", "players")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"a","hp":8}]`, out)

	out, err = run(t, dir, "", "get", "room")
	require.NoError(t, err)
	assert.JSONEq(t, `{"players":[{"id":"a","hp":8}]}`, out)

	out, err = run(t, dir, "", "list")
	require.NoError(t, err)
	assert.Equal(t, "room\n", out)
}

func TestDelete(t *testing.T) {
	dir := t.TempDir()

	_, err := run(t, dir, "", "put", "doc", "a", `1`)
	require.NoError(t, err)
	_, err = run(t, dir, "", "put", "doc", "b", `2`)
	require.NoError(t, err)

	_, err = run(t, dir, "", "delete", "doc", "a")
	require.NoError(t, err)
	out, err := run(t, dir, "", "get", "doc")
	require.NoError(t, err)
	assert.JSONEq(t, `{"b":2}`, out)

	_, err = run(t, dir, "", "delete", "doc")
	require.NoError(t, err)
	out, err = run(t, dir, "", "list")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := run(t, dir, "", "put", "doc", "k", `{`)
	assert.ErrorContains(t, err, "invalid JSON")

	_, err = run(t, dir, "", "get", "missing")
	assert.Error(t, err)

	_, err = run(t, dir, "", "put", "doc", "k", `1`)
	require.NoError(t, err)
	_, err = run(t, dir, "", "get", "doc", "absent")
	assert.ErrorContains(t, err, "key not found")

	_, err = run(t, dir, "", "list", "extra")
	assert.Error(t, err)
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(t.TempDir(), "crdtjson.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("log_level: loud\n"), 0o644))

	_, err := run(t, dir, "", "--config", configPath, "list")
	assert.ErrorContains(t, err, "invalid log level")
}
