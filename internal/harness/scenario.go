package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/docagg/internal/definition"
)

// Scenario is an end-to-end aggregation test.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Definition is the path of the pipeline definition, relative to the
	// scenario file.
	Definition string `yaml:"definition"`

	// Emulator tunes the emulated database.
	Emulator EmulatorOptions `yaml:"emulator,omitempty"`

	// Documents are imported before any query runs, keyed by partition.
	Documents map[string][]map[string]any `yaml:"documents"`

	// Queries run in order.
	Queries []QueryStep `yaml:"queries"`

	// Assertions validate the collected results and the final emulator state.
	Assertions []Assertion `yaml:"assertions,omitempty"`

	// pipeline is the loaded definition.
	pipeline *definition.Definition
}

// EmulatorOptions mirror the emulator's tuning options. Zero values keep
// the emulator defaults.
type EmulatorOptions struct {
	PageSize   int `yaml:"page_size,omitempty"`
	MaxBatches int `yaml:"max_batches,omitempty"`
}

// QueryStep is one driver query.
type QueryStep struct {
	Partition string `yaml:"partition"`
	MaxItems  int    `yaml:"max_items,omitempty"`

	// Resume starts from the continuation of the previous query.
	Resume bool `yaml:"resume,omitempty"`

	// Pages lists the expected outcome of each ExecuteNext call.
	Pages []PageExpect `yaml:"pages"`
}

// PageExpect is the expected outcome of one ExecuteNext call.
type PageExpect struct {
	// Results is compared as JSON when Error is empty.
	Results []any `yaml:"results"`

	// Done, when set, is compared with Response.Done.
	Done *bool `yaml:"done,omitempty"`

	// Error is the expected driver error code, such as NO_PROGRESS.
	Error string `yaml:"error,omitempty"`
}

// Assertion types.
const (
	AssertResults       = "results"
	AssertResultCount   = "result_count"
	AssertProgramCount  = "program_count"
	AssertDocumentCount = "document_count"
)

// Assertion checks the outcome of the whole scenario.
type Assertion struct {
	Type      string `yaml:"type"`
	Count     int    `yaml:"count,omitempty"`
	Partition string `yaml:"partition,omitempty"`
	Expect    []any  `yaml:"expect,omitempty"`
}

// LoadScenario loads a scenario and the definition it refers to.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	defPath := scenario.Definition
	if !filepath.IsAbs(defPath) {
		defPath = filepath.Join(filepath.Dir(path), defPath)
	}
	defData, err := os.ReadFile(defPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition: %w", err)
	}
	if scenario.pipeline, err = definition.DecodeYAML(defData); err != nil {
		return nil, err
	}
	return &scenario, nil
}

// WithDefinition attaches an already loaded definition, for scenarios built
// in code.
func (s *Scenario) WithDefinition(d *definition.Definition) *Scenario {
	s.pipeline = d
	return s
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Definition == "" {
		return fmt.Errorf("definition is required")
	}
	if len(s.Queries) == 0 {
		return fmt.Errorf("queries list is required and must be non-empty")
	}

	for i, q := range s.Queries {
		if q.Partition == "" {
			return fmt.Errorf("queries[%d]: partition is required", i)
		}
		if len(q.Pages) == 0 {
			return fmt.Errorf("queries[%d]: pages list is required and must be non-empty", i)
		}
		if q.Resume && i == 0 {
			return fmt.Errorf("queries[%d]: the first query cannot resume", i)
		}
		for j, p := range q.Pages {
			if p.Error != "" && (p.Results != nil || p.Done != nil) {
				return fmt.Errorf("queries[%d].pages[%d]: error excludes results and done", i, j)
			}
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertResults:
		if a.Expect == nil {
			return fmt.Errorf("assertions[%d]: expect is required for results", index)
		}
	case AssertResultCount, AssertProgramCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertDocumentCount:
		if a.Partition == "" {
			return fmt.Errorf("assertions[%d]: partition is required for document_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
