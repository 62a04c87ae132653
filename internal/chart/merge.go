package chart

import (
	"fmt"

	"datapilot/internal/logging"
)

// Transplant copies the data-bearing leaves of src into a copy of tmpl:
// series data arrays, axis category arrays, and legend name arrays. Every
// other template field, titles included, is returned unchanged. Data never
// moves the other way; if either side is missing, the merge fails and the
// caller keeps the unmerged chart.
func Transplant(src, tmpl Spec) (Spec, error) {
	if src.Option == nil {
		return Spec{}, fmt.Errorf("transplant: source option is missing")
	}
	if tmpl.Option == nil {
		return Spec{}, fmt.Errorf("transplant: template option is missing")
	}

	out := deepCopy(tmpl.Option).(map[string]any)

	if cats, ok := extractAxisData(src.Option, "xAxis"); ok {
		setAxisData(out, "xAxis", cats)
	}
	if cats, ok := extractAxisData(src.Option, "yAxis"); ok {
		setAxisData(out, "yAxis", cats)
	}
	if names, ok := extractLegendData(src.Option); ok {
		setLegendData(out, names)
	}

	srcSeries := extractSeries(src.Option)
	if len(srcSeries) == 0 {
		return Spec{}, fmt.Errorf("transplant: source has no series data")
	}
	tmplSeries := extractSeries(out)
	if len(tmplSeries) == 0 {
		return Spec{}, fmt.Errorf("transplant: template has no series")
	}

	// One output series per source series; extra source series reuse the
	// styling of the template's last series.
	merged := make([]any, len(srcSeries))
	for i, s := range srcSeries {
		base := tmplSeries[len(tmplSeries)-1]
		if i < len(tmplSeries) {
			base = tmplSeries[i]
		}
		m := deepCopy(base).(map[string]any)
		if data, ok := s["data"]; ok {
			m["data"] = deepCopy(data)
		}
		if name, ok := s["name"].(string); ok && name != "" {
			m["name"] = name
		}
		merged[i] = m
	}
	out["series"] = merged

	logging.Chart("transplanted %d series into %s template", len(srcSeries), tmpl.ChartType)
	return Spec{ChartType: tmpl.ChartType, Option: out}, nil
}

func deepCopy(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = deepCopy(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCopy(item)
		}
		return out
	default:
		return v
	}
}

// axisObject tolerates both single-axis and axis-list forms.
func axisObject(option map[string]any, key string) (map[string]any, bool) {
	switch axis := option[key].(type) {
	case map[string]any:
		return axis, true
	case []any:
		if len(axis) > 0 {
			if m, ok := axis[0].(map[string]any); ok {
				return m, true
			}
		}
	}
	return nil, false
}

func extractAxisData(option map[string]any, key string) ([]any, bool) {
	axis, ok := axisObject(option, key)
	if !ok {
		return nil, false
	}
	data, ok := axis["data"].([]any)
	if !ok || len(data) == 0 {
		return nil, false
	}
	return data, true
}

func setAxisData(option map[string]any, key string, data []any) {
	axis, ok := axisObject(option, key)
	if !ok {
		return
	}
	// Only overwrite an axis that carries categories in the template.
	if _, has := axis["data"]; !has {
		return
	}
	axis["data"] = deepCopy(data)
}

func extractLegendData(option map[string]any) ([]any, bool) {
	legend, ok := option["legend"].(map[string]any)
	if !ok {
		return nil, false
	}
	data, ok := legend["data"].([]any)
	if !ok || len(data) == 0 {
		return nil, false
	}
	return data, true
}

func setLegendData(option map[string]any, data []any) {
	legend, ok := option["legend"].(map[string]any)
	if !ok {
		return
	}
	legend["data"] = deepCopy(data)
}

func extractSeries(option map[string]any) []map[string]any {
	switch s := option["series"].(type) {
	case []any:
		out := make([]map[string]any, 0, len(s))
		for _, item := range s {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	case map[string]any:
		return []map[string]any{s}
	}
	return nil
}
