package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	out, diag := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(diag)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// decode parses a JSON CLIResponse.
func decode(t *testing.T, out string) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	return resp
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := NewRootCommand()
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"compile", "validate", "query", "seed", "test"}, names)
}

func TestRootCommand_InvalidFormat(t *testing.T) {
	_, err := execute(t, "compile", "limit=1", "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestRootCommand_GlobalFlags(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"verbose", "format", "config", "db"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
	assert.Equal(t, "text", cmd.PersistentFlags().Lookup("format").DefValue)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "docquery.yaml", `
database: `+filepath.Join(dir, "docs.db")+`
defaultLimit: 5
models:
  - name: project
    refs: {ownerRef: users}
    queries:
      titleThree: {filter: {name: Project Title 3}}
`)

	t.Run("file", func(t *testing.T) {
		cmd := NewRootCommand()
		cfg, err := LoadConfig(cmd, &RootOptions{Config: cfgPath})
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "docs.db"), cfg.Database)
		assert.Equal(t, 5, cfg.DefaultLimit)
		require.Len(t, cfg.Models, 1)

		spec, ok := cfg.spec("project")
		require.True(t, ok)
		assert.Contains(t, spec.Queries, "titleThree")
	})

	t.Run("env overrides file", func(t *testing.T) {
		t.Setenv("DOCQUERY_DATABASE", "/tmp/other.db")
		cfg, err := LoadConfig(NewRootCommand(), &RootOptions{Config: cfgPath})
		require.NoError(t, err)
		assert.Equal(t, "/tmp/other.db", cfg.Database)
	})

	t.Run("missing explicit file", func(t *testing.T) {
		_, err := LoadConfig(NewRootCommand(), &RootOptions{Config: filepath.Join(dir, "nope.yaml")})
		assert.Error(t, err)
	})

	t.Run("no file", func(t *testing.T) {
		cfg, err := LoadConfig(NewRootCommand(), &RootOptions{})
		require.NoError(t, err)
		assert.Empty(t, cfg.Models)
		assert.Positive(t, cfg.DefaultLimit)
	})
}
