// Package engine drives a single analysis run: classify the query, pick a
// dataset subset, synthesize Go analysis code through a text-generation
// service, review and rewrite it under a bounded retry policy, execute it
// in a sandbox, and finalize an answer (plus a chart for visualization
// intents).
package engine

import (
	"time"

	"datapilot/internal/chart"
	"datapilot/internal/dataset"
	"datapilot/internal/sandbox"
)

// Query is the immutable input to a run.
type Query struct {
	Text      string `json:"text"`
	Subset    string `json:"subset,omitempty"`
	ChartType string `json:"chart_type,omitempty"`
}

// Classification is the classifier's read of the query. Created once per
// run, immutable thereafter.
type Classification struct {
	Intent            string  `json:"intent"` // general | visualization
	Confidence        float64 `json:"confidence"`
	Reasoning         string  `json:"reasoning"`
	RequiresFiltering bool    `json:"requires_filtering"`
	SuggestedSubset   string  `json:"suggested_subset"`
}

// CodeArtifact is one synthesized analysis program. Replaced wholesale on
// every Synthesize/Rewrite; exactly one is current at any time.
type CodeArtifact struct {
	Code            string   `json:"code"`
	Description     string   `json:"description"`
	ExpectedOutput  string   `json:"expected_output"`
	RequiredColumns []string `json:"required_columns"`
}

// ReviewVerdict is the outcome of one review attempt.
type ReviewVerdict struct {
	Approved    bool     `json:"approved"`
	Feedback    string   `json:"feedback"`
	Issues      []string `json:"issues"`
	Suggestions []string `json:"suggestions"`
	Severity    string   `json:"severity"` // low | medium | high | critical
}

// ExecutionOutcome is the result of one sandbox execution attempt. On
// failure the table is empty, never absent.
type ExecutionOutcome struct {
	Success      bool              `json:"success"`
	Output       string            `json:"output"`
	Table        sandbox.Canonical `json:"table"`
	Results      map[string]any    `json:"results"`
	ChartData    map[string]any    `json:"chart_data,omitempty"`
	ChartCreated bool              `json:"chart_created"`
	Artifacts    []string          `json:"artifacts"`
	Error        string            `json:"error,omitempty"`
	DurationMS   int64             `json:"duration_ms"`
}

// FinalResults is the natural-language wrap-up of a run.
type FinalResults struct {
	Answer    string `json:"answer"`
	Summary   string `json:"summary"`
	ChartType string `json:"chart_type,omitempty"`
	ChartPath string `json:"chart_path,omitempty"`
}

// RunState aggregates everything one run produces. It is exclusively owned
// by its run and mutated only by the node currently executing.
type RunState struct {
	ID             string           `json:"id"`
	Query          Query            `json:"query"`
	Classification *Classification  `json:"classification,omitempty"`
	Subset         string           `json:"subset,omitempty"`
	Table          *dataset.Table   `json:"-"`
	Artifact       *CodeArtifact    `json:"artifact,omitempty"`
	Verdicts       []ReviewVerdict  `json:"verdicts,omitempty"`
	Outcome        *ExecutionOutcome `json:"outcome,omitempty"`
	ChartSpec      *chart.Spec      `json:"chart_spec,omitempty"`
	Final          *FinalResults    `json:"final,omitempty"`
	RetryCount     int              `json:"retry_count"`
	MaxRetries     int              `json:"max_retries"`
	ErrorLog       []string         `json:"error_log,omitempty"`
	StartedAt      time.Time        `json:"started_at"`
	CompletedAt    time.Time        `json:"completed_at"`
	Completed      bool             `json:"completed"`
}

// LastVerdict returns the most recent review verdict, or nil.
func (s *RunState) LastVerdict() *ReviewVerdict {
	if len(s.Verdicts) == 0 {
		return nil
	}
	return &s.Verdicts[len(s.Verdicts)-1]
}

// Snapshot is the serializable summary of a finished run.
type Snapshot struct {
	Success           bool              `json:"success"`
	Classification    *Classification   `json:"classification,omitempty"`
	Analysis          string            `json:"analysis,omitempty"`
	Review            *ReviewVerdict    `json:"review,omitempty"`
	Execution         *ExecutionOutcome `json:"execution,omitempty"`
	FinalResults      *FinalResults     `json:"final_results,omitempty"`
	GeneratedCode     string            `json:"generated_code,omitempty"`
	ChartSpec         *chart.Spec       `json:"chart_spec,omitempty"`
	RetryCount        int               `json:"retry_count"`
	WorkflowCompleted bool              `json:"workflow_completed"`
	Errors            []string          `json:"errors,omitempty"`
}

// Snapshot condenses the state into its persisted result shape.
func (s *RunState) Snapshot() Snapshot {
	snap := Snapshot{
		Classification:    s.Classification,
		Review:            s.LastVerdict(),
		Execution:         s.Outcome,
		FinalResults:      s.Final,
		ChartSpec:         s.ChartSpec,
		RetryCount:        s.RetryCount,
		WorkflowCompleted: s.Completed,
		Errors:            s.ErrorLog,
	}
	if s.Artifact != nil {
		snap.Analysis = s.Artifact.Description
		snap.GeneratedCode = s.Artifact.Code
	}
	if s.Outcome != nil {
		snap.Success = s.Outcome.Success
	}
	return snap
}
