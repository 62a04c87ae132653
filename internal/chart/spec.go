// Package chart generates declarative ECharts-style chart options and
// merges them into pre-styled templates.
package chart

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Spec is a chart type plus its ECharts option tree.
type Spec struct {
	ChartType string         `json:"chart_type"`
	Option    map[string]any `json:"option"`
}

// NormalizeType maps loose chart-type names to the supported canonical set
// (bar, line, pie, scatter). Unknown types default to bar.
func NormalizeType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	switch {
	case strings.Contains(t, "line"):
		return "line"
	case strings.Contains(t, "pie"), strings.Contains(t, "donut"):
		return "pie"
	case strings.Contains(t, "scatter"):
		return "scatter"
	default:
		return "bar"
	}
}

// WriteArtifact persists a chart option to <dir>/charts/<runID>.json and
// returns the written path.
func WriteArtifact(dir, runID string, spec Spec) (string, error) {
	chartsDir := filepath.Join(dir, "charts")
	if err := os.MkdirAll(chartsDir, 0755); err != nil {
		return "", fmt.Errorf("create charts directory: %w", err)
	}

	data, err := json.MarshalIndent(spec.Option, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal chart option: %w", err)
	}

	path := filepath.Join(chartsDir, runID+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write chart artifact: %w", err)
	}
	return path, nil
}
