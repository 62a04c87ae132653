package engine

import (
	"context"
	"strings"

	"datapilot/internal/dataset"
	"datapilot/internal/llm"
	"datapilot/internal/logging"
)

// classify maps the query to a Classification. Service failure or a
// malformed structured response falls back to a low-confidence default;
// the classifier never aborts the run.
func (e *Engine) classify(ctx context.Context, st *RunState, wb *dataset.Workbook) edge {
	var hint *dataset.Table
	if len(wb.Order) > 0 {
		hint = wb.Sheets[wb.Order[0]]
	}
	prompt := buildClassifyPrompt(st.Query.Text, hint, e.opts.SampleRows)

	var c Classification
	err := llm.CompleteJSON(ctx, e.client, classifySystemPrompt, prompt, &c)
	if err != nil || !validIntent(c.Intent) {
		if err != nil {
			st.logError(ErrKindClassification, "%v", err)
		} else {
			st.logError(ErrKindSchemaValidation, "unknown intent %q", c.Intent)
		}
		c = Classification{
			Intent:     "general",
			Confidence: 0.3,
			Reasoning:  "fallback classification due to service error",
		}
	}

	c.Confidence = clamp01(c.Confidence)

	// An explicit chart request overrides a general classification.
	if st.Query.ChartType != "" && c.Intent != "visualization" {
		c.Intent = "visualization"
		c.Reasoning = strings.TrimSpace(c.Reasoning + " (chart type requested explicitly)")
	}

	st.Classification = &c
	logging.Workflow("run %s classified: intent=%s confidence=%.2f", st.ID, c.Intent, c.Confidence)
	return edgeNext
}

func validIntent(intent string) bool {
	return intent == "general" || intent == "visualization"
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
