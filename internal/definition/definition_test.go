package definition

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docagg/internal/ast"
	"github.com/roach88/docagg/internal/pipeline"
)

func loadFixture(t *testing.T) *Definition {
	t.Helper()
	data, err := os.ReadFile("testdata/store_totals.yaml")
	require.NoError(t, err)
	d, err := DecodeYAML(data)
	require.NoError(t, err)
	return d
}

func TestDecodeYAML(t *testing.T) {
	d := loadFixture(t)
	assert.Equal(t, "store-totals", d.Name)
	assert.Equal(t, "Sale", d.Source)
	require.Len(t, d.Types, 2)
	require.Len(t, d.Pipeline, 3)
	assert.NotEmpty(t, d.Pipeline[2].Seed)
}

func TestDecodeYAML_RejectsUnknownKeys(t *testing.T) {
	_, err := DecodeYAML([]byte("source: Sale\nfilters: []\n"))
	require.Error(t, err)
}

func TestBuild_Program(t *testing.T) {
	c, err := loadFixture(t).Build()
	require.NoError(t, err)

	require.Len(t, c.Stages, 3)
	assert.Equal(t, pipeline.StageFilter, c.Stages[0].Kind)
	assert.Equal(t, pipeline.StageGroupKey, c.Stages[1].Kind)
	assert.Equal(t, pipeline.StageAggregate, c.Stages[2].Kind)
	assert.NotNil(t, c.Stages[2].Seed)

	p, err := c.Program()
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM root r WHERE r.amount > @p1 ORDER BY r.storeId", p.QueryText)
	assert.Equal(t, "return current.storeId != previous.storeId;", p.Bodies.GroupChange)
	assert.Equal(t,
		`return { "count": (aggregate.count + 1), "storeId": aggregate.storeId, "totalAmount": (aggregate.totalAmount + current.amount) };`,
		p.Bodies.Combine)
}

func TestBuild_DefaultsAndConstructors(t *testing.T) {
	d := &Definition{
		Source: "Doc",
		Types: []TypeDef{{
			Name: "Doc",
			Fields: []FieldDef{
				{Name: "Score", Kind: "decimal", Default: 0.5},
				{Name: "Label", Kind: "string", Default: "none"},
				{Name: "Cache", Kind: "string", Ignore: true},
			},
			Constructors: [][]string{{"Label"}},
		}},
		Pipeline: []StageDef{{Aggregate: "(a, c) => Doc(\"x\"){Score: a.Score + c.Score}"}},
	}
	c, err := d.Build()
	require.NoError(t, err)

	doc, ok := c.Registry.Lookup("Doc")
	require.True(t, ok)
	score, _ := doc.Field("Score")
	assert.Equal(t, ast.KindDecimal, score.Default.Kind)
	assert.Len(t, doc.Serializable(), 2)

	p, err := c.Program()
	require.NoError(t, err)
	assert.Equal(t, `return { "Score": (aggregate.Score + current.Score), "Label": "x" };`, p.Bodies.Combine)
}

func TestBuild_Errors(t *testing.T) {
	base := func() *Definition {
		return &Definition{
			Source: "Doc",
			Types: []TypeDef{{
				Name:   "Doc",
				Fields: []FieldDef{{Name: "N", Kind: "int"}},
			}},
			Pipeline: []StageDef{{Aggregate: "(a, c) => Doc{N: a.N + c.N}"}},
		}
	}

	tests := []struct {
		name    string
		mutate  func(d *Definition)
		message string
	}{
		{"no source", func(d *Definition) { d.Source = "" }, "no source type"},
		{"unknown source", func(d *Definition) { d.Source = "Other" }, "source type Other is not declared"},
		{"unknown aggregate", func(d *Definition) { d.Aggregate = "Other" }, "aggregate type Other is not declared"},
		{"bad kind", func(d *Definition) { d.Types[0].Fields[0].Kind = "integer" }, `unknown kind "integer"`},
		{"bad default", func(d *Definition) { d.Types[0].Fields[0].Default = "seven" }, "default"},
		{"unknown nested type", func(d *Definition) {
			d.Types[0].Fields = append(d.Types[0].Fields, FieldDef{Name: "Child", Kind: "object", Type: "Missing"})
		}, "unknown type Missing"},
		{"two stage kinds", func(d *Definition) { d.Pipeline[0].Where = "x => x.N > 1" }, "exactly one of"},
		{"empty stage", func(d *Definition) { d.Pipeline[0] = StageDef{} }, "exactly one of"},
		{"orphan seed", func(d *Definition) { d.Pipeline[0] = StageDef{Where: "x => x.N > 1", Seed: "x => x"} }, "seed is only valid"},
		{"syntax error", func(d *Definition) { d.Pipeline[0].Aggregate = "(a, c) =>" }, "stage 1: aggregate: line 1"},
		{"unknown member", func(d *Definition) { d.Pipeline[0].Aggregate = "(a, c) => Doc{N: a.M}" }, "type Doc has no field M"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := base()
			tt.mutate(d)
			_, err := d.Build()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}
