package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTest_Pass(t *testing.T) {
	out, err := executeCommand(t, "test", filepath.Join("testdata", "scenarios"))
	require.NoError(t, err)
	assert.Contains(t, out, "✓ store_totals")
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestTest_JSON(t *testing.T) {
	out, err := executeCommand(t, "--format", "json", "test", filepath.Join("testdata", "scenarios"))
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, resp.Data.Passed)
	assert.Equal(t, []ScenarioResult{{Name: "store_totals", Pass: true}}, resp.Data.Scenarios)
}

func TestTest_Failure(t *testing.T) {
	out, err := executeCommand(t, "test", filepath.Join("testdata", "failing"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ wrong_count")
	assert.Contains(t, out, "result_count")
	assert.Contains(t, out, "0 passed, 1 failed, 1 total")
}

func TestTest_Filter(t *testing.T) {
	out, err := executeCommand(t, "test", "--filter", "budget_*", filepath.Join("testdata", "scenarios"))
	require.NoError(t, err)
	assert.Equal(t, "No scenarios found.\n", out)
}

func TestTest_MissingDirectory(t *testing.T) {
	_, err := executeCommand(t, "test", filepath.Join("testdata", "missing"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTest_UpdateGolden(t *testing.T) {
	root := t.TempDir()
	copyFile(t, definitionPath("store_totals.yaml"), filepath.Join(root, "definitions"))
	copyFile(t, filepath.Join("testdata", "scenarios", "store_totals.yaml"), filepath.Join(root, "scenarios"))
	scenarios := filepath.Join(root, "scenarios")

	out, err := executeCommand(t, "test", "--update", scenarios)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ store_totals (golden updated)")

	written, err := os.ReadFile(filepath.Join(root, "golden", "store_totals.golden"))
	require.NoError(t, err)
	expected, err := os.ReadFile(filepath.Join("testdata", "golden", "store_totals.golden"))
	require.NoError(t, err)
	assert.JSONEq(t, string(expected), string(written))

	// A stale golden file fails the scenario.
	require.NoError(t, os.WriteFile(filepath.Join(root, "golden", "store_totals.golden"), []byte(`{}`), 0o644))
	out, err = executeCommand(t, "test", scenarios)
	require.Error(t, err)
	assert.Contains(t, out, "trace does not match golden file")
}
