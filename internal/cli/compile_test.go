package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docquery/internal/queryir"
)

const limitSchema = `
limit: *20 | (int & >=1 & <=20)
`

func TestCompileCommand_Text(t *testing.T) {
	out, err := execute(t, "compile", "qType=one&limit=50&name=ends(title 3)")
	require.NoError(t, err)
	assert.Contains(t, out, `"limit":1`)
	assert.Contains(t, out, `"qType":"one"`)
	assert.Contains(t, out, "fingerprint: ")
}

func TestCompileCommand_JSON(t *testing.T) {
	out, err := execute(t, "compile", "sort=-createdAt&fields=name,-_id", "--format", "json")
	require.NoError(t, err)

	resp := decode(t, out)
	assert.Equal(t, "ok", resp.Status)
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.NotEmpty(t, data["fingerprint"])
	query, ok := data["query"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"createdAt": float64(-1)}, query["sort"])
	assert.Equal(t, "all", query["qType"])
}

func TestCompileCommand_Defaults(t *testing.T) {
	out, err := execute(t, "compile", "qType=all", "--limit", "7", "--sort", "name", "--format", "json")
	require.NoError(t, err)
	query := decode(t, out).Data.(map[string]any)["query"].(map[string]any)
	assert.Equal(t, float64(7), query["limit"])
	assert.Equal(t, map[string]any{"name": float64(1)}, query["sort"])

	// A raw value wins over the default.
	out, err = execute(t, "compile", "limit=3", "--limit", "7", "--format", "json")
	require.NoError(t, err)
	query = decode(t, out).Data.(map[string]any)["query"].(map[string]any)
	assert.Equal(t, float64(3), query["limit"])
}

func TestCompileCommand_SameFingerprint(t *testing.T) {
	a, err := execute(t, "compile", "name=x&limit=5", "--format", "json")
	require.NoError(t, err)
	b, err := execute(t, "compile", "limit=5&name=x", "--format", "json")
	require.NoError(t, err)

	fa := decode(t, a).Data.(map[string]any)["fingerprint"]
	fb := decode(t, b).Data.(map[string]any)["fingerprint"]
	assert.Equal(t, fa, fb)
}

func TestCompileCommand_ParserError(t *testing.T) {
	out, err := execute(t, "compile", "limit=ten", "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, queryir.IsParserError(err))

	resp := decode(t, out)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, string(queryir.KindParser), resp.Error.Code)
}

func TestCompileCommand_Schema(t *testing.T) {
	schemaPath := writeFile(t, t.TempDir(), "list.cue", limitSchema)

	out, err := execute(t, "compile", "name=x", "--schema", schemaPath, "--format", "json")
	require.NoError(t, err)
	query := decode(t, out).Data.(map[string]any)["query"].(map[string]any)
	assert.Equal(t, float64(20), query["limit"])

	_, err = execute(t, "compile", "limit=50", "--schema", schemaPath)
	require.Error(t, err)
	assert.True(t, queryir.IsValidationError(err))
}

func TestCompileCommand_MissingSchema(t *testing.T) {
	_, err := execute(t, "compile", "limit=5", "--schema", "/nonexistent/list.cue")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestValidateCommand(t *testing.T) {
	schemaPath := writeFile(t, t.TempDir(), "list.cue", limitSchema)

	t.Run("accepted", func(t *testing.T) {
		out, err := execute(t, "validate", schemaPath, "limit=10")
		require.NoError(t, err)
		assert.Contains(t, out, "query accepted")
	})

	t.Run("rejected text", func(t *testing.T) {
		out, err := execute(t, "validate", schemaPath, "limit=50")
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
		assert.Contains(t, out, "Error [queryValidationError]")
		assert.Contains(t, out, "@.limit")
	})

	t.Run("rejected json", func(t *testing.T) {
		out, err := execute(t, "validate", schemaPath, "limit=50", "--format", "json")
		require.Error(t, err)
		resp := decode(t, out)
		require.NotNil(t, resp.Error)
		assert.Equal(t, string(queryir.KindValidation), resp.Error.Code)
		assert.NotEmpty(t, resp.Error.Details)
	})

	t.Run("bad schema", func(t *testing.T) {
		bad := writeFile(t, t.TempDir(), "bad.cue", "limit: int &")
		_, err := execute(t, "validate", bad, "limit=10")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})
}
