package chart

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datapilot/internal/sandbox"
)

type stubClient struct {
	response string
	err      error
}

func (s *stubClient) Complete(ctx context.Context, prompt string) (string, error) {
	return s.response, s.err
}

func (s *stubClient) CompleteWithSystem(ctx context.Context, system, user string) (string, error) {
	return s.response, s.err
}

func salesTable() sandbox.Canonical {
	return sandbox.Canonical{
		Columns: []string{"region", "amount", "count"},
		Rows: []map[string]any{
			{"region": "north", "amount": 100, "count": 3},
			{"region": "south", "amount": 200, "count": 5},
		},
	}
}

func TestNormalizeType(t *testing.T) {
	assert.Equal(t, "bar", NormalizeType("bar_chart"))
	assert.Equal(t, "bar", NormalizeType(""))
	assert.Equal(t, "bar", NormalizeType("histogram"))
	assert.Equal(t, "line", NormalizeType("line_chart"))
	assert.Equal(t, "pie", NormalizeType("Pie Chart"))
	assert.Equal(t, "scatter", NormalizeType("scatter_plot"))
}

func TestTemplateLoads(t *testing.T) {
	for _, typ := range []string{"bar", "line", "pie", "scatter"} {
		t.Run(typ, func(t *testing.T) {
			tmpl, err := Template(typ)
			require.NoError(t, err)
			assert.Equal(t, typ, tmpl.ChartType)
			assert.Contains(t, tmpl.Option, "series")
		})
	}
}

func TestGenerateUsesValidCompletion(t *testing.T) {
	g := NewGenerator(&stubClient{
		response: "```json\n{\"series\":[{\"type\":\"bar\",\"data\":[1,2]}]}\n```",
	})

	spec, err := g.Generate(context.Background(), "bar", salesTable())
	require.NoError(t, err)
	assert.Contains(t, spec.Option, "series")
}

func TestGenerateShapesOnMalformedCompletion(t *testing.T) {
	g := NewGenerator(&stubClient{response: "I cannot produce a chart, sorry"})

	spec, err := g.Generate(context.Background(), "bar", salesTable())
	require.NoError(t, err)

	xAxis := spec.Option["xAxis"].(map[string]any)
	assert.Equal(t, []any{"north", "south"}, xAxis["data"])
	series := spec.Option["series"].([]any)
	require.Len(t, series, 2) // amount and count
}

func TestGenerateFailsOnServiceError(t *testing.T) {
	g := NewGenerator(&stubClient{err: fmt.Errorf("connection refused")})

	_, err := g.Generate(context.Background(), "bar", salesTable())
	require.Error(t, err)
}

func TestShapePie(t *testing.T) {
	spec := Shape("pie", salesTable())
	series := spec.Option["series"].([]any)
	require.Len(t, series, 1)
	data := series[0].(map[string]any)["data"].([]any)
	require.Len(t, data, 2)
	assert.Equal(t, map[string]any{"name": "north", "value": 100}, data[0])
}

func TestShapePieNamesSlicesFromTextColumn(t *testing.T) {
	// Alphabetical column order puts the numeric column first, the way a
	// coerced ChartData map would; the text column must still name the
	// slices.
	table := sandbox.Canonical{
		Columns: []string{"amount", "region"},
		Rows: []map[string]any{
			{"amount": 100, "region": "north"},
			{"amount": 200, "region": "south"},
		},
	}

	spec := Shape("pie", table)
	series := spec.Option["series"].([]any)
	data := series[0].(map[string]any)["data"].([]any)
	require.Len(t, data, 2)
	assert.Equal(t, map[string]any{"name": "north", "value": 100}, data[0])
	assert.Equal(t, map[string]any{"name": "south", "value": 200}, data[1])
}

func TestShapeScatter(t *testing.T) {
	spec := Shape("scatter", salesTable())
	series := spec.Option["series"].([]any)
	data := series[0].(map[string]any)["data"].([]any)
	require.Len(t, data, 2)
	assert.Equal(t, []any{100, 3}, data[0])
}

func TestTransplantMovesDataOnly(t *testing.T) {
	tmpl, err := Template("bar")
	require.NoError(t, err)

	src := Shape("bar", salesTable())
	src.Option["title"] = map[string]any{"text": "generated title"}
	merged, err := Transplant(src, tmpl)
	require.NoError(t, err)

	// Data came from the source.
	xAxis := merged.Option["xAxis"].(map[string]any)
	assert.Equal(t, []any{"north", "south"}, xAxis["data"])

	// Styling came from the template, the title included.
	series := merged.Option["series"].([]any)
	first := series[0].(map[string]any)
	assert.Equal(t, map[string]any{"color": "#3b82f6"}, first["itemStyle"])

	title := merged.Option["title"].(map[string]any)
	assert.Equal(t, "Analysis", title["text"])

	grid := merged.Option["grid"].(map[string]any)
	assert.Equal(t, true, grid["containLabel"])
}

func TestTransplantClonesStylingForExtraSeries(t *testing.T) {
	tmpl, err := Template("bar")
	require.NoError(t, err)

	src := Shape("bar", salesTable()) // two series, template has one
	merged, err := Transplant(src, tmpl)
	require.NoError(t, err)

	series := merged.Option["series"].([]any)
	require.Len(t, series, 2)
	for _, s := range series {
		assert.Equal(t, map[string]any{"color": "#3b82f6"}, s.(map[string]any)["itemStyle"])
	}
}

func TestTransplantIsIdempotent(t *testing.T) {
	tmpl, err := Template("bar")
	require.NoError(t, err)

	src := Shape("bar", salesTable())
	once, err := Transplant(src, tmpl)
	require.NoError(t, err)

	twice, err := Transplant(once, tmpl)
	require.NoError(t, err)

	if diff := cmp.Diff(once.Option, twice.Option); diff != "" {
		t.Errorf("transplant not idempotent (-once +twice):\n%s", diff)
	}
}

func TestTransplantNeverMutatesTemplate(t *testing.T) {
	tmpl, err := Template("bar")
	require.NoError(t, err)
	fresh, err := Template("bar")
	require.NoError(t, err)

	src := Shape("bar", salesTable())
	_, err = Transplant(src, tmpl)
	require.NoError(t, err)

	if diff := cmp.Diff(fresh.Option, tmpl.Option); diff != "" {
		t.Errorf("template mutated by transplant:\n%s", diff)
	}
}

func TestTransplantRejectsMissingInput(t *testing.T) {
	tmpl, err := Template("bar")
	require.NoError(t, err)

	_, err = Transplant(Spec{}, tmpl)
	require.Error(t, err)

	_, err = Transplant(Shape("bar", salesTable()), Spec{})
	require.Error(t, err)
}

func TestTransplantRejectsSourceWithoutSeries(t *testing.T) {
	tmpl, err := Template("bar")
	require.NoError(t, err)

	src := Spec{ChartType: "bar", Option: map[string]any{"title": map[string]any{"text": "t"}}}
	_, err = Transplant(src, tmpl)
	require.Error(t, err)
}

func TestWriteArtifact(t *testing.T) {
	dir := t.TempDir()
	spec := Shape("bar", salesTable())

	path, err := WriteArtifact(dir, "run-1", spec)
	require.NoError(t, err)
	assert.FileExists(t, path)
}
