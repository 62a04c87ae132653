package chart

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"datapilot/internal/llm"
	"datapilot/internal/logging"
	"datapilot/internal/sandbox"
)

const generateSystemPrompt = `You are a data visualization assistant. Given a
table of analysis results and a chart type, produce an Apache ECharts option
document as JSON. Use only data from the table. Respond with ONLY the JSON
object.`

// Generator maps a canonical table plus a chart-type hint to a chart spec.
type Generator struct {
	client llm.Client
}

// NewGenerator creates a chart generator backed by the given client.
func NewGenerator(client llm.Client) *Generator {
	return &Generator{client: client}
}

// Generate produces a chart spec for the table. A malformed completion
// falls back to deterministic shaping from the table; a transport-level
// service failure is returned as an error so the run can proceed chartless.
func (g *Generator) Generate(ctx context.Context, chartType string, table sandbox.Canonical) (Spec, error) {
	chartType = NormalizeType(chartType)

	prompt := buildGeneratePrompt(chartType, table)
	raw, err := g.client.CompleteWithSystem(ctx, generateSystemPrompt, prompt)
	if err != nil {
		return Spec{}, fmt.Errorf("chart generation service: %w", err)
	}

	doc, err := llm.ExtractJSON(raw)
	if err == nil {
		var option map[string]any
		if json.Unmarshal([]byte(doc), &option) == nil && len(option) > 0 {
			return Spec{ChartType: chartType, Option: option}, nil
		}
	}

	logging.Chart("malformed chart option, shaping %s chart from table", chartType)
	return Shape(chartType, table), nil
}

func buildGeneratePrompt(chartType string, table sandbox.Canonical) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Chart type: %s\n\nColumns: %s\n\nData (CSV):\n",
		chartType, strings.Join(table.Columns, ", "))
	b.WriteString(strings.Join(table.Columns, ","))
	b.WriteString("\n")
	max := len(table.Rows)
	if max > 50 {
		max = 50
	}
	for _, row := range table.Rows[:max] {
		cells := make([]string, len(table.Columns))
		for i, c := range table.Columns {
			cells[i] = fmt.Sprintf("%v", row[c])
		}
		b.WriteString(strings.Join(cells, ","))
		b.WriteString("\n")
	}
	return b.String()
}

// Shape builds a chart option deterministically from the table:
// bar/line take the first column as categories and every numeric column as
// a series; pie takes the first two columns as name/value pairs; scatter
// takes the first two numeric columns as coordinate pairs.
func Shape(chartType string, table sandbox.Canonical) Spec {
	chartType = NormalizeType(chartType)

	var option map[string]any
	switch chartType {
	case "pie":
		option = shapePie(table)
	case "scatter":
		option = shapeScatter(table)
	default:
		option = shapeAxes(chartType, table)
	}

	return Spec{ChartType: chartType, Option: option}
}

func shapeAxes(chartType string, table sandbox.Canonical) map[string]any {
	var categories []any
	var seriesList []any

	if len(table.Columns) > 0 {
		first := table.Columns[0]
		for _, row := range table.Rows {
			categories = append(categories, fmt.Sprintf("%v", row[first]))
		}
		for _, col := range table.Columns[1:] {
			if !isNumericColumn(table, col) {
				continue
			}
			var data []any
			for _, row := range table.Rows {
				data = append(data, row[col])
			}
			seriesList = append(seriesList, map[string]any{
				"name": col,
				"type": chartType,
				"data": data,
			})
		}
	}

	var legend []any
	for _, s := range seriesList {
		legend = append(legend, s.(map[string]any)["name"])
	}

	return map[string]any{
		"xAxis":  map[string]any{"type": "category", "data": categories},
		"yAxis":  map[string]any{"type": "value"},
		"legend": map[string]any{"data": legend},
		"series": seriesList,
	}
}

func shapePie(table sandbox.Canonical) map[string]any {
	var data []any
	var legend []any
	if nameCol, valueCol, ok := pieColumns(table); ok {
		for _, row := range table.Rows {
			name := fmt.Sprintf("%v", row[nameCol])
			data = append(data, map[string]any{"name": name, "value": row[valueCol]})
			legend = append(legend, name)
		}
	}
	return map[string]any{
		"legend": map[string]any{"data": legend},
		"series": []any{map[string]any{"type": "pie", "data": data}},
	}
}

// pieColumns picks the slice-name and slice-value columns: the first
// non-numeric column names the slices, the first numeric column sizes
// them. Column order alone is not trusted because coerced maps sort their
// keys alphabetically. A table without that split falls back to the first
// two columns.
func pieColumns(table sandbox.Canonical) (string, string, bool) {
	if len(table.Columns) < 2 {
		return "", "", false
	}
	nameCol, valueCol := "", ""
	for _, col := range table.Columns {
		if isNumericColumn(table, col) {
			if valueCol == "" {
				valueCol = col
			}
		} else if nameCol == "" {
			nameCol = col
		}
	}
	if nameCol == "" || valueCol == "" {
		return table.Columns[0], table.Columns[1], true
	}
	return nameCol, valueCol, true
}

func shapeScatter(table sandbox.Canonical) map[string]any {
	var numeric []string
	for _, col := range table.Columns {
		if isNumericColumn(table, col) {
			numeric = append(numeric, col)
		}
		if len(numeric) == 2 {
			break
		}
	}

	var data []any
	if len(numeric) == 2 {
		for _, row := range table.Rows {
			data = append(data, []any{row[numeric[0]], row[numeric[1]]})
		}
	}
	return map[string]any{
		"xAxis":  map[string]any{"type": "value"},
		"yAxis":  map[string]any{"type": "value"},
		"series": []any{map[string]any{"type": "scatter", "data": data}},
	}
}

func isNumericColumn(table sandbox.Canonical, col string) bool {
	for _, row := range table.Rows {
		switch row[col].(type) {
		case int, int64, float64, float32, nil:
		default:
			return false
		}
	}
	return len(table.Rows) > 0
}
