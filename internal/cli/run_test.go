package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type runResponse struct {
	Status string    `json:"status"`
	Data   RunResult `json:"data"`
	Error  *CLIError `json:"error"`
}

// seedDatabase imports the sales fixtures into p1 and p2.
func seedDatabase(t *testing.T) string {
	t.Helper()
	db := filepath.Join(t.TempDir(), "docagg.db")
	_, err := executeCommand(t, "--db", db, "import", "-p", "p1", filepath.Join("testdata", "documents", "sales.json"))
	require.NoError(t, err)
	_, err = executeCommand(t, "--db", db, "import", "-p", "p2", filepath.Join("testdata", "documents", "sales.ndjson"))
	require.NoError(t, err)
	return db
}

func runJSON(t *testing.T, args ...string) (runResponse, error) {
	t.Helper()
	out, err := executeCommand(t, append([]string{"--format", "json"}, args...)...)
	var resp runResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	return resp, err
}

func resultsJSON(t *testing.T, results []json.RawMessage) string {
	t.Helper()
	data, err := json.Marshal(results)
	require.NoError(t, err)
	return string(data)
}

func TestRun_Partitions(t *testing.T) {
	db := seedDatabase(t)

	resp, err := runJSON(t, "--db", db, "run", "-p", "p1", "-p", "p2", "-p", "empty", definitionPath("store_totals.cue"))
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.Regexp(t, `^docagg_[0-9a-f]{64}$`, resp.Data.ProgramID)
	require.Len(t, resp.Data.Partitions, 3)

	p1 := resp.Data.Partitions[0]
	assert.Equal(t, "p1", p1.Partition)
	assert.True(t, p1.Done)
	assert.Empty(t, p1.Continuation)
	assert.Equal(t, 1, p1.Pages)
	assert.Greater(t, p1.RequestCharge, 0.0)
	assert.JSONEq(t, `[{"count":2,"storeId":"A","totalAmount":4},{"count":1,"storeId":"B","totalAmount":3}]`, resultsJSON(t, p1.Results))

	p2 := resp.Data.Partitions[1]
	assert.Equal(t, "p2", p2.Partition)
	assert.JSONEq(t, `[{"count":2,"storeId":"C","totalAmount":10}]`, resultsJSON(t, p2.Results))

	empty := resp.Data.Partitions[2]
	assert.True(t, empty.Done)
	assert.Empty(t, empty.Results)
}

func TestRun_Text(t *testing.T) {
	db := seedDatabase(t)

	out, err := executeCommand(t, "--db", db, "run", "-p", "p2", definitionPath("store_totals.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, "Program: docagg_")
	assert.Contains(t, out, "Partition p2: 1 result(s) in 1 page(s)")
	assert.Contains(t, out, `{"count":2,"storeId":"C","totalAmount":10}`)
	assert.Contains(t, out, "✓ done")
}

func TestRun_MaxItems(t *testing.T) {
	db := seedDatabase(t)

	resp, err := runJSON(t, "--db", db, "run", "-p", "p1", "--max-items", "1", definitionPath("store_totals.yaml"))
	require.NoError(t, err)
	p1 := resp.Data.Partitions[0]
	assert.True(t, p1.Done)
	assert.JSONEq(t, `[{"count":2,"storeId":"A","totalAmount":4}]`, resultsJSON(t, p1.Results))
}

func TestRun_PagesAndResume(t *testing.T) {
	db := seedDatabase(t)
	cfg := writeFile(t, t.TempDir(), "docagg.yaml", "emulator:\n  page_size: 2\n  max_batches: 1\n")

	first, err := runJSON(t, "--db", db, "--config", cfg, "run", "-p", "p1", "--pages", "1", definitionPath("store_totals.yaml"))
	require.NoError(t, err)
	p1 := first.Data.Partitions[0]
	assert.False(t, p1.Done)
	assert.Equal(t, 1, p1.Pages)
	assert.Empty(t, p1.Results)
	require.NotEmpty(t, p1.Continuation)

	second, err := runJSON(t, "--db", db, "--config", cfg, "run", "-p", "p1", "--continuation", p1.Continuation, definitionPath("store_totals.yaml"))
	require.NoError(t, err)
	resumed := second.Data.Partitions[0]
	assert.True(t, resumed.Done)
	assert.JSONEq(t, `[{"count":2,"storeId":"A","totalAmount":4},{"count":1,"storeId":"B","totalAmount":3}]`, resultsJSON(t, resumed.Results))
}

func TestRun_NoProgress(t *testing.T) {
	db := seedDatabase(t)
	cfg := writeFile(t, t.TempDir(), "docagg.yaml", "emulator:\n  max_batches: -1\n")

	resp, err := runJSON(t, "--db", db, "--config", cfg, "run", "-p", "p1", definitionPath("store_totals.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeQuery, resp.Error.Code)
	assert.Equal(t, "NO_PROGRESS", resp.Data.Partitions[0].ErrorCode)
}

func TestRun_MetricsFile(t *testing.T) {
	db := seedDatabase(t)
	metricsFile := filepath.Join(t.TempDir(), "docagg.prom")

	_, err := runJSON(t, "--db", db, "run", "-p", "p1", "-p", "p2", "--metrics-file", metricsFile, definitionPath("store_totals.yaml"))
	require.NoError(t, err)

	data, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `docagg_invocations_total{outcome="ok"} 2`)
	assert.Contains(t, string(data), `docagg_registrations_total`)
	assert.Contains(t, string(data), `docagg_results_total 3`)
}

func TestRun_UsageErrors(t *testing.T) {
	db := filepath.Join(t.TempDir(), "docagg.db")

	t.Run("continuation with two partitions", func(t *testing.T) {
		out, err := executeCommand(t, "--db", db, "run", "-p", "a", "-p", "b", "--continuation", "x", definitionPath("store_totals.yaml"))
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, out, "--continuation requires exactly one --partition")
	})

	t.Run("invalid continuation", func(t *testing.T) {
		resp, err := runJSON(t, "--db", db, "run", "-p", "a", "--continuation", "not-a-token", definitionPath("store_totals.yaml"))
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
		assert.Equal(t, "INVALID_CONTINUATION", resp.Data.Partitions[0].ErrorCode)
	})

	t.Run("bad definition", func(t *testing.T) {
		_, err := executeCommand(t, "--db", db, "run", "-p", "a", definitionPath("bad_grammar.yaml"))
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})
}
