package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadDocuments(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int
		wantErr string
	}{
		{name: "array", input: `[{"id":"1"},{"id":"2"}]`, want: 2},
		{name: "ndjson with blank lines", input: "{\"id\":\"1\"}\n\n  {\"id\":\"2\"}\n{\"id\":\"3\"}\n", want: 3},
		{name: "empty", input: "  \n", want: 0},
		{name: "bad array", input: `[{"id":"1"},]`, wantErr: "invalid character"},
		{name: "bad line", input: "{\"id\":\"1\"}\n{\"id\":\n", wantErr: "line 2: invalid JSON"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, err := ReadDocuments([]byte(tt.input))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, docs, tt.want)
		})
	}
}

func TestImport(t *testing.T) {
	db := filepath.Join(t.TempDir(), "docagg.db")

	out, err := executeCommand(t, "--db", db, "import", "-p", "p1", filepath.Join("testdata", "documents", "sales.json"))
	require.NoError(t, err)
	assert.Equal(t, "✓ Imported 4 document(s) into partition p1 (4 total)\n", out)

	out, err = executeCommand(t, "--db", db, "--format", "json", "import", "-p", "p1", filepath.Join("testdata", "documents", "sales.ndjson"))
	require.NoError(t, err)

	var resp struct {
		Status string       `json:"status"`
		Data   ImportResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, ImportResult{Partition: "p1", Imported: 2, Total: 6}, resp.Data)
}

func TestImport_Errors(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "docagg.db")

	t.Run("missing file", func(t *testing.T) {
		out, err := executeCommand(t, "--db", db, "import", "-p", "p1", filepath.Join(dir, "missing.json"))
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, out, "Error [E005]: reading documents")
	})

	t.Run("not an object", func(t *testing.T) {
		path := writeFile(t, dir, "numbers.json", "[1, 2]")
		out, err := executeCommand(t, "--db", db, "import", "-p", "p1", path)
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, out, "Error [E201]: importing documents")
	})

	t.Run("partition required", func(t *testing.T) {
		_, err := executeCommand(t, "--db", db, "import", filepath.Join("testdata", "documents", "sales.json"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "partition")
	})
}
