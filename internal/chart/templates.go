package chart

import (
	"embed"
	"encoding/json"
	"fmt"
)

//go:embed templates/*.json
var templateFS embed.FS

// Template returns a fresh copy of the pre-styled option for the given
// chart type.
func Template(chartType string) (Spec, error) {
	chartType = NormalizeType(chartType)

	data, err := templateFS.ReadFile("templates/" + chartType + ".json")
	if err != nil {
		return Spec{}, fmt.Errorf("no template for chart type %q: %w", chartType, err)
	}

	var option map[string]any
	if err := json.Unmarshal(data, &option); err != nil {
		return Spec{}, fmt.Errorf("template %s is not valid JSON: %w", chartType, err)
	}

	return Spec{ChartType: chartType, Option: option}, nil
}
