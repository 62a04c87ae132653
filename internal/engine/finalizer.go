package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"datapilot/internal/logging"
)

// finalize produces the natural-language wrap-up. A service failure falls
// back to a canned answer keyed off the success flag.
func (e *Engine) finalize(ctx context.Context, st *RunState) edge {
	success := st.Outcome != nil && st.Outcome.Success

	answer, err := e.client.CompleteWithSystem(ctx, finalizeSystemPrompt, buildFinalizePrompt(st))
	if err != nil || strings.TrimSpace(answer) == "" {
		if err != nil {
			st.logError(ErrKindServiceOverload, "finalizer: %v", err)
		}
		answer = cannedAnswer(success)
	}

	final := &FinalResults{
		Answer:  answer,
		Summary: summaryLine(st, success),
	}
	if st.ChartSpec != nil {
		final.ChartType = st.ChartSpec.ChartType
		if st.Outcome != nil && len(st.Outcome.Artifacts) > 0 {
			final.ChartPath = st.Outcome.Artifacts[len(st.Outcome.Artifacts)-1]
		}
	}

	st.Final = final
	st.Completed = true
	st.CompletedAt = time.Now()
	logging.Workflow("run %s finalized: success=%v", st.ID, success)
	return edgeNext
}

func cannedAnswer(success bool) string {
	if success {
		return "The analysis completed successfully. See the result table for details."
	}
	return "The analysis could not be completed. The generated code failed to execute; see the error log for details."
}

func summaryLine(st *RunState, success bool) string {
	if !success {
		return fmt.Sprintf("Analysis failed after %d review attempts.", st.RetryCount)
	}
	rows := 0
	if st.Outcome != nil {
		rows = len(st.Outcome.Table.Rows)
	}
	if st.ChartSpec != nil {
		return fmt.Sprintf("Analysis produced %d result rows and a %s chart.", rows, st.ChartSpec.ChartType)
	}
	return fmt.Sprintf("Analysis produced %d result rows.", rows)
}
