package engine

import (
	"context"
	"fmt"

	"datapilot/internal/chart"
	"datapilot/internal/logging"
	"datapilot/internal/sandbox"
)

// execute runs the current artifact in the sandbox. Failures never
// propagate; they either route back through Rewrite while retries remain
// or fall through to Finalize with a failure outcome.
func (e *Engine) execute(ctx context.Context, st *RunState) edge {
	var rows []map[string]any
	if st.Table != nil {
		rows = st.Table.Rows
	}

	res := e.executor.Execute(ctx, st.Artifact.Code, rows, st.needsChart())

	out := &ExecutionOutcome{
		Success:    res.Success,
		Results:    res.Results,
		ChartData:  res.ChartData,
		DurationMS: res.DurationMS,
	}

	if !res.Success {
		out.Error = res.Error
		out.Table = sandbox.Canonical{}
		st.Outcome = out
		st.logError(ErrKindExecution, "%s", res.Error)
		if st.RetryCount <= st.MaxRetries {
			return edgeFailureRetry
		}
		return edgeFailureFinal
	}

	switch {
	case len(res.Table) > 0:
		out.Table = sandbox.Coerce(res.Table)
	case len(res.Results) > 0:
		out.Table = sandbox.Coerce(res.Results)
	default:
		out.Table = sandbox.Diagnostic("code produced no output")
	}
	out.Output = fmt.Sprintf("%d result values, %d table rows", len(res.Results), len(out.Table.Rows))

	st.Outcome = out
	logging.Workflow("run %s: execution ok (%s)", st.ID, out.Output)

	if st.needsChart() {
		return edgeSuccessChart
	}
	return edgeSuccess
}

// chartGen builds the chart spec, merges it into the pre-styled template,
// and persists the option as an artifact. Every failure here degrades the
// run instead of failing it: a generation failure leaves the run
// chartless, a merge failure keeps the unmerged spec.
func (e *Engine) chartGen(ctx context.Context, st *RunState) edge {
	table := st.Outcome.Table
	if len(st.Outcome.ChartData) > 0 {
		table = sandbox.Coerce(st.Outcome.ChartData)
	}

	spec, err := e.charts.Generate(ctx, st.chartTypeHint(), table)
	if err != nil {
		st.logError(ErrKindChartGeneration, "%v", err)
		logging.Chart("run %s: proceeding without a chart: %v", st.ID, err)
		return edgeNext
	}

	if tmpl, err := chart.Template(spec.ChartType); err == nil {
		merged, err := chart.Transplant(spec, tmpl)
		if err != nil {
			st.logError(ErrKindTemplateMerge, "%v", err)
		} else {
			spec = merged
		}
	}

	st.ChartSpec = &spec
	st.Outcome.ChartCreated = true

	if e.opts.ArtifactsDir != "" {
		path, err := chart.WriteArtifact(e.opts.ArtifactsDir, st.ID, spec)
		if err != nil {
			st.logError(ErrKindChartGeneration, "persist chart: %v", err)
		} else {
			st.Outcome.Artifacts = append(st.Outcome.Artifacts, path)
		}
	}

	return edgeNext
}
