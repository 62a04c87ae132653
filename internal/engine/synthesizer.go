package engine

import (
	"context"
	"fmt"
	"strings"

	"datapilot/internal/llm"
	"datapilot/internal/logging"
)

// Contract identifiers every generated artifact must define.
const (
	contractResultsFunc = "AnalysisResults"
	contractTableFunc   = "AnalysisTable"
	contractChartFunc   = "ChartData"
)

// hasContractFunc is the mechanical layer of the review: a plain text
// scan for a required function declaration.
func hasContractFunc(code, name string) bool {
	return strings.Contains(code, "func "+name+"(")
}

// synthesize produces the run's first CodeArtifact. A service failure
// falls back to a deterministic artifact that still satisfies the
// contract, so downstream stages never see an invalid artifact.
func (e *Engine) synthesize(ctx context.Context, st *RunState) edge {
	st.Artifact = e.generateArtifact(ctx, st, buildSynthesizePrompt(st, e.opts.SampleRows))
	return edgeNext
}

// rewrite re-invokes synthesis with the review feedback and prior code
// folded into the prompt. The artifact is replaced, not amended.
func (e *Engine) rewrite(ctx context.Context, st *RunState) edge {
	logging.Workflow("run %s: rewriting after attempt %d", st.ID, st.RetryCount)
	st.Artifact = e.generateArtifact(ctx, st, buildRewritePrompt(st, e.opts.SampleRows))
	return edgeNext
}

func (e *Engine) generateArtifact(ctx context.Context, st *RunState, prompt string) *CodeArtifact {
	if st.Table == nil {
		st.logError(ErrKindCodeGeneration, "no dataset subset selected, using fallback artifact")
		return e.fallbackArtifact(st)
	}

	system := synthesizeSystemPrompt
	if st.needsChart() {
		system += synthesizeChartAddendum
	}

	raw, err := e.client.CompleteWithSystem(ctx, system, prompt)
	if err != nil {
		st.logError(ErrKindCodeGeneration, "%v", err)
		return e.fallbackArtifact(st)
	}

	code := llm.ExtractCodeBlock(raw)
	if code == "" || !strings.Contains(code, "func ") {
		st.logError(ErrKindCodeGeneration, "completion contained no code")
		return e.fallbackArtifact(st)
	}

	return &CodeArtifact{
		Code:            code,
		Description:     fmt.Sprintf("Generated analysis for: %s", st.Query.Text),
		ExpectedOutput:  "summary values plus a result table",
		RequiredColumns: referencedColumns(code, st),
	}
}

// fallbackArtifact is the deterministic template used when generation
// fails. It satisfies the output contract and echoes the input rows.
func (e *Engine) fallbackArtifact(st *RunState) *CodeArtifact {
	code := `func AnalysisResults(rows []map[string]any) map[string]any {
	return map[string]any{"row_count": len(rows), "fallback": true}
}

func AnalysisTable(rows []map[string]any) []map[string]any {
	return rows
}`
	if st.needsChart() {
		code += `

func ChartData(rows []map[string]any) map[string]any {
	return map[string]any{"row_count": len(rows)}
}`
	}
	return &CodeArtifact{
		Code:           code,
		Description:    "Fallback analysis: echo the selected data",
		ExpectedOutput: "row count plus the unmodified table",
	}
}

// referencedColumns lists the table columns the code mentions.
func referencedColumns(code string, st *RunState) []string {
	if st.Table == nil {
		return nil
	}
	var cols []string
	for _, c := range st.Table.Columns {
		if strings.Contains(code, `"`+c+`"`) {
			cols = append(cols, c)
		}
	}
	return cols
}
