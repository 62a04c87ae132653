package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"datapilot/internal/chart"
	"datapilot/internal/dataset"
	"datapilot/internal/llm"
	"datapilot/internal/logging"
	"datapilot/internal/sandbox"
)

// Node identifies one stage of the workflow. The set is closed; routing
// goes through the transition table below.
type Node int

const (
	NodeClassify Node = iota
	NodeSelectSubset
	NodeSynthesize
	NodeReview
	NodeRewrite
	NodeExecute
	NodeChartGen
	NodeFinalize
	NodeDone
)

func (n Node) String() string {
	switch n {
	case NodeClassify:
		return "classify"
	case NodeSelectSubset:
		return "select_subset"
	case NodeSynthesize:
		return "synthesize"
	case NodeReview:
		return "review"
	case NodeRewrite:
		return "rewrite"
	case NodeExecute:
		return "execute"
	case NodeChartGen:
		return "chart_gen"
	case NodeFinalize:
		return "finalize"
	case NodeDone:
		return "done"
	}
	return fmt.Sprintf("node(%d)", int(n))
}

// edge labels a node's outcome for routing.
type edge int

const (
	edgeNext edge = iota
	edgeApproved
	edgeRejected
	edgeSuccess
	edgeSuccessChart
	edgeFailureRetry
	edgeFailureFinal
)

// transitions is the complete routing table. Every edge a handler can
// return maps to exactly one next node.
var transitions = map[Node]map[edge]Node{
	NodeClassify:     {edgeNext: NodeSelectSubset},
	NodeSelectSubset: {edgeNext: NodeSynthesize},
	NodeSynthesize:   {edgeNext: NodeReview},
	NodeReview:       {edgeApproved: NodeExecute, edgeRejected: NodeRewrite},
	NodeRewrite:      {edgeNext: NodeReview},
	NodeExecute: {
		edgeSuccess:      NodeFinalize,
		edgeSuccessChart: NodeChartGen,
		edgeFailureRetry: NodeRewrite,
		edgeFailureFinal: NodeFinalize,
	},
	NodeChartGen: {edgeNext: NodeFinalize},
	NodeFinalize: {edgeNext: NodeDone},
}

// Options tune a workflow engine.
type Options struct {
	MaxRetries   int
	SampleRows   int
	ArtifactsDir string
}

// Engine runs analysis workflows. Safe for concurrent use; all per-run
// state lives in the RunState each Run call owns.
type Engine struct {
	client   llm.Client
	executor *sandbox.Executor
	charts   *chart.Generator
	opts     Options
}

// New creates a workflow engine.
func New(client llm.Client, executor *sandbox.Executor, charts *chart.Generator, opts Options) *Engine {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.SampleRows <= 0 {
		opts.SampleRows = 5
	}
	return &Engine{
		client:   client,
		executor: executor,
		charts:   charts,
		opts:     opts,
	}
}

// Run executes one workflow to completion. The only fatal failures are
// the dataset preconditions checked up front; every node failure after
// that is recovered with a local fallback and the run completes.
func (e *Engine) Run(ctx context.Context, query Query, wb *dataset.Workbook) (*RunState, error) {
	if wb == nil || len(wb.Sheets) == 0 {
		return nil, ErrMissingDataset
	}
	totalRows := 0
	for _, t := range wb.Sheets {
		totalRows += len(t.Rows)
	}
	if totalRows == 0 {
		return nil, ErrNoData
	}

	st := &RunState{
		ID:         uuid.NewString(),
		Query:      query,
		MaxRetries: e.opts.MaxRetries,
		StartedAt:  time.Now(),
	}

	logging.Workflow("run %s started: %q", st.ID, query.Text)

	// The retry law bounds every loop in the graph; the step ceiling only
	// guards against a routing bug.
	maxSteps := int(NodeDone+1) * (st.MaxRetries + 2)

	node := NodeClassify
	for steps := 0; node != NodeDone; steps++ {
		if steps >= maxSteps {
			return nil, fmt.Errorf("run %s exceeded %d steps at node %s", st.ID, maxSteps, node)
		}

		out := e.dispatch(ctx, node, st, wb)
		next, ok := transitions[node][out]
		if !ok {
			return nil, fmt.Errorf("run %s: no transition from %s on edge %d", st.ID, node, out)
		}
		logging.WorkflowDebug("run %s: %s -> %s (retry_count=%d)", st.ID, node, next, st.RetryCount)
		node = next
	}

	logging.Workflow("run %s completed: success=%v retries=%d errors=%d",
		st.ID, st.Outcome != nil && st.Outcome.Success, st.RetryCount, len(st.ErrorLog))
	return st, nil
}

func (e *Engine) dispatch(ctx context.Context, node Node, st *RunState, wb *dataset.Workbook) edge {
	switch node {
	case NodeClassify:
		return e.classify(ctx, st, wb)
	case NodeSelectSubset:
		return e.selectSubset(st, wb)
	case NodeSynthesize:
		return e.synthesize(ctx, st)
	case NodeReview:
		return e.review(ctx, st)
	case NodeRewrite:
		return e.rewrite(ctx, st)
	case NodeExecute:
		return e.execute(ctx, st)
	case NodeChartGen:
		return e.chartGen(ctx, st)
	case NodeFinalize:
		return e.finalize(ctx, st)
	}
	return edgeNext
}

// needsChart reports whether this run must produce a chart.
func (st *RunState) needsChart() bool {
	if st.Query.ChartType != "" {
		return true
	}
	return st.Classification != nil && st.Classification.Intent == "visualization"
}

// chartTypeHint resolves the requested chart type, defaulting to bar.
func (st *RunState) chartTypeHint() string {
	if st.Query.ChartType != "" {
		return st.Query.ChartType
	}
	return "bar"
}
