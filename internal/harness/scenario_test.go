package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	def, err := os.ReadFile(filepath.Join("testdata", "definitions", "count_sales.yaml"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "def.yaml"), def, 0o644))
	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadScenario(t *testing.T) {
	s := loadScenario(t, "store_totals")
	assert.Equal(t, "store_totals", s.Name)
	assert.Equal(t, 2, s.Emulator.PageSize)
	assert.Len(t, s.Documents["p1"], 4)
	require.Len(t, s.Queries, 1)
	require.NotNil(t, s.Queries[0].Pages[0].Done)
	assert.True(t, *s.Queries[0].Pages[0].Done)
	require.NotNil(t, s.pipeline)
	assert.Equal(t, "Sale", s.pipeline.Source)
}

func TestLoadScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"unknown field", "name: a\ndescription: b\ndefinition: def.yaml\nflow: []\n", "field flow not found"},
		{"no name", "description: b\ndefinition: def.yaml\nqueries: [{partition: p, pages: [{}]}]\n", "name is required"},
		{"no description", "name: a\ndefinition: def.yaml\nqueries: [{partition: p, pages: [{}]}]\n", "description is required"},
		{"no definition", "name: a\ndescription: b\nqueries: [{partition: p, pages: [{}]}]\n", "definition is required"},
		{"no queries", "name: a\ndescription: b\ndefinition: def.yaml\n", "queries list is required"},
		{"no partition", "name: a\ndescription: b\ndefinition: def.yaml\nqueries: [{pages: [{}]}]\n", "partition is required"},
		{"no pages", "name: a\ndescription: b\ndefinition: def.yaml\nqueries: [{partition: p}]\n", "pages list is required"},
		{"first resumes", "name: a\ndescription: b\ndefinition: def.yaml\nqueries: [{partition: p, resume: true, pages: [{}]}]\n", "first query cannot resume"},
		{"error with results", "name: a\ndescription: b\ndefinition: def.yaml\nqueries: [{partition: p, pages: [{error: X, results: []}]}]\n", "error excludes results"},
		{"unknown assertion", "name: a\ndescription: b\ndefinition: def.yaml\nqueries: [{partition: p, pages: [{}]}]\nassertions: [{type: trace_order}]\n", `unknown assertion type "trace_order"`},
		{"results without expect", "name: a\ndescription: b\ndefinition: def.yaml\nqueries: [{partition: p, pages: [{}]}]\nassertions: [{type: results}]\n", "expect is required"},
		{"document count without partition", "name: a\ndescription: b\ndefinition: def.yaml\nqueries: [{partition: p, pages: [{}]}]\nassertions: [{type: document_count}]\n", "partition is required for document_count"},
		{"missing definition file", "name: a\ndescription: b\ndefinition: nope.yaml\nqueries: [{partition: p, pages: [{}]}]\n", "failed to read definition"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}
