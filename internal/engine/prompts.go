package engine

import (
	"fmt"
	"strings"

	"datapilot/internal/dataset"
)

const classifySystemPrompt = `You classify data-analysis questions. Given a
question and a dataset schema, decide whether the user wants a plain
analysis ("general") or a chart ("visualization"). Respond with ONLY a JSON
object:
{"intent": "general"|"visualization", "confidence": 0.0-1.0,
 "reasoning": "...", "requires_filtering": true|false,
 "suggested_subset": "name or empty"}`

const synthesizeSystemPrompt = `You write Go data-analysis code that will run
in a restricted interpreter. The code must define exactly these functions:

	func AnalysisResults(rows []map[string]any) map[string]any
	func AnalysisTable(rows []map[string]any) []map[string]any

AnalysisResults returns summary values; AnalysisTable returns the result
rows. Numeric CSV cells arrive as int or float64. Only these imports are
available: fmt, strings, strconv, math, sort, regexp, time, errors,
unicode, bytes, encoding/json. No file, network, or OS access. Return the
code in a single fenced code block with no package clause.`

const synthesizeChartAddendum = `
The code must additionally define:

	func ChartData(rows []map[string]any) map[string]any

returning the values the chart should plot (for example category names and
series values).`

const reviewSystemPrompt = `You review generated Go data-analysis code
before it is executed. Check that it defines the required functions, uses
only the columns that exist, handles type assertions safely, and answers
the question. Respond with ONLY a JSON object:
{"approved": true|false, "feedback": "...", "issues": ["..."],
 "suggestions": ["..."], "severity": "low"|"medium"|"high"|"critical"}`

const finalizeSystemPrompt = `You summarize the outcome of a data analysis
for the person who asked the question. Be concise and concrete; quote the
key numbers from the results. Plain text only.`

func schemaDescription(t *dataset.Table) string {
	if t == nil {
		return "(no table selected)"
	}
	s := t.Schema()
	var b strings.Builder
	fmt.Fprintf(&b, "Table %q: %d rows x %d columns\n", s.Name, s.RowCount, s.ColCount)
	for _, c := range s.Columns {
		fmt.Fprintf(&b, "  - %s (%s)\n", c.Name, c.Type)
	}
	return b.String()
}

func buildClassifyPrompt(query string, t *dataset.Table, sampleRows int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\nDataset:\n%s\n", query, schemaDescription(t))
	if t != nil && sampleRows > 0 {
		b.WriteString("\nSample rows:\n")
		b.WriteString(t.PreviewCSV(sampleRows))
	}
	return b.String()
}

func buildSynthesizePrompt(st *RunState, sampleRows int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\nDataset:\n%s\n", st.Query.Text, schemaDescription(st.Table))
	if st.Table != nil && sampleRows > 0 {
		b.WriteString("\nSample rows:\n")
		b.WriteString(st.Table.PreviewCSV(sampleRows))
	}
	if st.Classification != nil && st.Classification.Reasoning != "" {
		fmt.Fprintf(&b, "\nQuery interpretation: %s\n", st.Classification.Reasoning)
	}
	return b.String()
}

func buildRewritePrompt(st *RunState, sampleRows int) string {
	var b strings.Builder
	b.WriteString(buildSynthesizePrompt(st, sampleRows))

	if v := st.LastVerdict(); v != nil {
		b.WriteString("\nThe previous version of the code was rejected in review.\n")
		if v.Feedback != "" {
			fmt.Fprintf(&b, "Feedback: %s\n", v.Feedback)
		}
		for _, issue := range v.Issues {
			fmt.Fprintf(&b, "Issue: %s\n", issue)
		}
		for _, sug := range v.Suggestions {
			fmt.Fprintf(&b, "Suggestion: %s\n", sug)
		}
	}
	if st.Outcome != nil && !st.Outcome.Success && st.Outcome.Error != "" {
		fmt.Fprintf(&b, "\nThe previous version failed at execution: %s\n", st.Outcome.Error)
	}
	if st.Artifact != nil {
		fmt.Fprintf(&b, "\nPrevious code:\n```go\n%s\n```\n", st.Artifact.Code)
	}
	b.WriteString("\nWrite a corrected version.")
	return b.String()
}

func buildReviewPrompt(st *RunState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\nDataset:\n%s\n", st.Query.Text, schemaDescription(st.Table))
	if st.Artifact != nil {
		fmt.Fprintf(&b, "\nCode under review:\n```go\n%s\n```\n", st.Artifact.Code)
	}
	return b.String()
}

func buildFinalizePrompt(st *RunState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n", st.Query.Text)
	if st.Outcome != nil {
		fmt.Fprintf(&b, "\nExecution succeeded: %v\n", st.Outcome.Success)
		if st.Outcome.Error != "" {
			fmt.Fprintf(&b, "Execution error: %s\n", st.Outcome.Error)
		}
		if len(st.Outcome.Results) > 0 {
			b.WriteString("\nResult values:\n")
			for k, v := range st.Outcome.Results {
				fmt.Fprintf(&b, "  %s: %v\n", k, v)
			}
		}
		if len(st.Outcome.Table.Rows) > 0 {
			max := len(st.Outcome.Table.Rows)
			if max > 10 {
				max = 10
			}
			fmt.Fprintf(&b, "\nResult table (%d rows, showing %d):\n", len(st.Outcome.Table.Rows), max)
			b.WriteString(strings.Join(st.Outcome.Table.Columns, ","))
			b.WriteString("\n")
			for _, row := range st.Outcome.Table.Rows[:max] {
				cells := make([]string, len(st.Outcome.Table.Columns))
				for i, c := range st.Outcome.Table.Columns {
					cells[i] = fmt.Sprintf("%v", row[c])
				}
				b.WriteString(strings.Join(cells, ","))
				b.WriteString("\n")
			}
		}
	}
	return b.String()
}
