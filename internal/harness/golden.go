package harness

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Snapshot is the golden form of a scenario run. It keeps what a pipeline
// definition determines and leaves out charges and ids, which follow the
// emulator's tuning.
type Snapshot struct {
	ScenarioName string         `json:"scenario_name"`
	Query        string         `json:"query"`
	Pages        []SnapshotPage `json:"pages"`
}

// SnapshotPage is one page of a Snapshot.
type SnapshotPage struct {
	Query   int               `json:"query"`
	Page    int               `json:"page"`
	Results []json.RawMessage `json:"results"`
	Done    bool              `json:"done"`
	Error   string            `json:"error,omitempty"`
}

// NewSnapshot reduces a result to its golden form.
func NewSnapshot(name string, result *Result) Snapshot {
	s := Snapshot{ScenarioName: name, Query: result.Program.Query, Pages: []SnapshotPage{}}
	for _, e := range result.Trace {
		page := SnapshotPage{Query: e.Query, Page: e.Page, Results: e.Results, Error: e.Error}
		if page.Results == nil {
			page.Results = []json.RawMessage{}
		}
		page.Done = e.Error == "" && e.Continuation == ""
		s.Pages = append(s.Pages, page)
	}
	return s
}

// RunWithGolden executes a scenario and compares its trace against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := GoldenBytes(name, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}

// GoldenBytes renders the golden file content of a result.
func GoldenBytes(name string, result *Result) ([]byte, error) {
	return json.MarshalIndent(NewSnapshot(name, result), "", "  ")
}
