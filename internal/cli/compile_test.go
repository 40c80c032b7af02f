package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile_Text(t *testing.T) {
	out, err := executeCommand(t, "compile", definitionPath("store_totals.cue"))
	require.NoError(t, err)

	assert.Contains(t, out, "✓ Compiled 3 stage(s)")
	assert.Contains(t, out, "Program: docagg_")
	assert.Contains(t, out, "Query:   "+storeTotalsQuery)
	assert.Contains(t, out, "@p1 = 1")
	assert.Contains(t, out, "group change: return current.storeId != previous.storeId;")
}

func TestCompile_JSON(t *testing.T) {
	out, err := executeCommand(t, "--format", "json", "compile", definitionPath("store_totals.yaml"))
	require.NoError(t, err)

	var resp struct {
		Status string            `json:"status"`
		Data   CompilationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "store-totals", resp.Data.Name)
	assert.Regexp(t, `^docagg_[0-9a-f]{64}$`, resp.Data.ProgramID)
	assert.Equal(t, storeTotalsQuery, resp.Data.Query)
	require.Len(t, resp.Data.Parameters, 1)
	assert.Equal(t, "@p1", resp.Data.Parameters[0].Name)
	assert.Equal(t, "return aggregate;", resp.Data.Bodies.Result)
	assert.Contains(t, resp.Data.Bodies.Combine, `"count": (aggregate.count + 1)`)
}

func TestCompile_WritesSource(t *testing.T) {
	output := filepath.Join(t.TempDir(), "program.js")

	out, err := executeCommand(t, "compile", "-o", output, definitionPath("store_totals.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote program source to "+output)

	source, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Contains(t, string(source), storeTotalsQuery)
	assert.Contains(t, string(source), "return current.storeId != previous.storeId;")
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		code     string
		contains string
	}{
		{"missing file", definitionPath("missing.yaml"), ErrCodeNotFound, "definition not found"},
		{"schema violation", definitionPath("bad_kind.cue"), ErrCodeBuildFailed, "invalid definition"},
		{"unknown member", definitionPath("bad_expression.yaml"), ErrCodeCompile, "type Sale has no field Missing"},
		{"no aggregate stage", definitionPath("bad_grammar.yaml"), ErrCodeCompile, "compiling pipeline"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := executeCommand(t, "--format", "json", "compile", tt.path)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))

			var resp CLIResponse
			require.NoError(t, json.Unmarshal([]byte(out), &resp))
			assert.Equal(t, "error", resp.Status)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.Contains(t, resp.Error.Message, tt.contains)
		})
	}
}
