package engine

import (
	"context"
	"strings"
	"sync"
)

// MockLLMClient is a test double with injectable behavior per call.
type MockLLMClient struct {
	mu                     sync.Mutex
	CompleteFunc           func(ctx context.Context, prompt string) (string, error)
	CompleteWithSystemFunc func(ctx context.Context, system, user string) (string, error)
	calls                  []string
}

func (m *MockLLMClient) Complete(ctx context.Context, prompt string) (string, error) {
	m.record("complete")
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, prompt)
	}
	return "", nil
}

func (m *MockLLMClient) CompleteWithSystem(ctx context.Context, system, user string) (string, error) {
	m.record(stageOf(system))
	if m.CompleteWithSystemFunc != nil {
		return m.CompleteWithSystemFunc(ctx, system, user)
	}
	return "", nil
}

func (m *MockLLMClient) record(stage string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, stage)
}

// CallCount returns how many calls hit the given stage.
func (m *MockLLMClient) CallCount(stage string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c == stage {
			n++
		}
	}
	return n
}

// stageOf identifies which node issued a call by its system prompt.
func stageOf(system string) string {
	switch {
	case strings.HasPrefix(system, "You classify"):
		return "classify"
	case strings.HasPrefix(system, "You write Go"):
		return "synthesize"
	case strings.HasPrefix(system, "You review"):
		return "review"
	case strings.HasPrefix(system, "You summarize"):
		return "finalize"
	case strings.HasPrefix(system, "You are a data visualization"):
		return "chart"
	}
	return "unknown"
}

// newScriptedClient routes each workflow stage to its own response function.
func newScriptedClient(responses map[string]func(user string) (string, error)) *MockLLMClient {
	c := &MockLLMClient{}
	c.CompleteWithSystemFunc = func(ctx context.Context, system, user string) (string, error) {
		if fn, ok := responses[stageOf(system)]; ok {
			return fn(user)
		}
		return "", nil
	}
	return c
}

func fixed(response string) func(string) (string, error) {
	return func(string) (string, error) { return response, nil }
}

const approveVerdict = `{"approved": true, "feedback": "looks good", "issues": [], "suggestions": [], "severity": "low"}`

const rejectVerdict = `{"approved": false, "feedback": "wrong column", "issues": ["uses a column that does not exist"], "suggestions": ["use the score column"], "severity": "medium"}`

const generalClassification = `{"intent": "general", "confidence": 0.9, "reasoning": "plain analysis", "requires_filtering": false, "suggested_subset": ""}`

const vizClassification = `{"intent": "visualization", "confidence": 0.9, "reasoning": "chart requested", "requires_filtering": false, "suggested_subset": ""}`

const topFiveCode = "```go\n" + `import "sort"

func AnalysisResults(rows []map[string]any) map[string]any {
	return map[string]any{"row_count": len(rows)}
}

func AnalysisTable(rows []map[string]any) []map[string]any {
	sorted := make([]map[string]any, len(rows))
	copy(sorted, rows)
	sort.Slice(sorted, func(i, j int) bool {
		return asFloat(sorted[i]["score"]) > asFloat(sorted[j]["score"])
	})
	if len(sorted) > 5 {
		sorted = sorted[:5]
	}
	return sorted
}

func asFloat(v any) float64 {
	switch x := v.(type) {
	case int:
		return float64(x)
	case float64:
		return x
	}
	return 0
}` + "\n```"

const pieChartCode = "```go\n" + `func AnalysisResults(rows []map[string]any) map[string]any {
	return map[string]any{"departments": countBy(rows)}
}

func AnalysisTable(rows []map[string]any) []map[string]any {
	out := []map[string]any{}
	for dept, total := range countBy(rows) {
		out = append(out, map[string]any{"department": dept, "total": total})
	}
	return out
}

func ChartData(rows []map[string]any) map[string]any {
	names := []any{}
	values := []any{}
	for dept, total := range countBy(rows) {
		names = append(names, dept)
		values = append(values, total)
	}
	return map[string]any{"department": names, "total": values}
}

func countBy(rows []map[string]any) map[string]any {
	totals := map[string]any{}
	for _, r := range rows {
		dept, _ := r["department"].(string)
		score := 0
		if v, ok := r["score"].(int); ok {
			score = v
		}
		if prev, ok := totals[dept].(int); ok {
			totals[dept] = prev + score
		} else {
			totals[dept] = score
		}
	}
	return totals
}` + "\n```"

const missingTableCode = "```go\n" + `func AnalysisResults(rows []map[string]any) map[string]any {
	return map[string]any{"row_count": len(rows)}
}` + "\n```"

const panickingCode = "```go\n" + `func AnalysisResults(rows []map[string]any) map[string]any {
	var m map[string]int
	m["boom"] = 1
	return nil
}

func AnalysisTable(rows []map[string]any) []map[string]any {
	return rows
}` + "\n```"
