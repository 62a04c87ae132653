// Package sandbox executes generated Go analysis code in an embedded Yaegi
// interpreter with import restrictions, panic containment, and a timeout.
//
// The code under execution must declare the contract functions:
//
//	func AnalysisResults(rows []map[string]any) map[string]any
//	func AnalysisTable(rows []map[string]any) []map[string]any
//
// and, for visualization runs:
//
//	func ChartData(rows []map[string]any) map[string]any
package sandbox

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"datapilot/internal/logging"
)

// Result is the raw outcome of executing the contract functions.
type Result struct {
	Success    bool
	Results    map[string]any
	Table      []map[string]any
	ChartData  map[string]any
	Error      string
	DurationMS int64
}

// Executor runs analysis code in a fresh interpreter per execution.
type Executor struct {
	timeout         time.Duration
	allowedPackages map[string]bool
	deniedPackages  map[string]bool
}

// NewExecutor creates an executor with the given timeout. A zero timeout
// defaults to 10 seconds.
func NewExecutor(timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Executor{
		timeout: timeout,
		allowedPackages: map[string]bool{
			"fmt":           true,
			"strings":       true,
			"strconv":       true,
			"math":          true,
			"sort":          true,
			"regexp":        true,
			"time":          true,
			"errors":        true,
			"unicode":       true,
			"bytes":         true,
			"encoding/json": true,
		},
		deniedPackages: map[string]bool{
			"os":        true,
			"os/exec":   true,
			"net":       true,
			"net/http":  true,
			"syscall":   true,
			"unsafe":    true,
			"plugin":    true,
			"runtime":   true,
			"reflect":   true,
			"io/ioutil": true,
		},
	}
}

// Sanitize strips denylisted import lines from code, then validates the
// remaining imports against the allowlist. Non-import lines are untouched.
func (e *Executor) Sanitize(code string) (string, error) {
	lines := strings.Split(code, "\n")
	out := make([]string, 0, len(lines))

	inImportBlock := false
	var kept []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(trimmed, "import ("):
			inImportBlock = true
			out = append(out, line)
			continue
		case inImportBlock && strings.HasPrefix(trimmed, ")"):
			inImportBlock = false
			out = append(out, line)
			continue
		}

		var pkg string
		switch {
		case inImportBlock && trimmed != "":
			pkg = importPath(trimmed)
		case strings.HasPrefix(trimmed, "import "):
			pkg = importPath(strings.TrimPrefix(trimmed, "import "))
		}

		if pkg != "" {
			if e.deniedPackages[pkg] {
				logging.Sandbox("stripped forbidden import %q", pkg)
				continue
			}
			kept = append(kept, pkg)
		}
		out = append(out, line)
	}

	var forbidden []string
	for _, pkg := range kept {
		if !e.allowedPackages[pkg] {
			forbidden = append(forbidden, pkg)
		}
	}
	if len(forbidden) > 0 {
		return "", fmt.Errorf("disallowed imports: %v", forbidden)
	}

	return strings.Join(out, "\n"), nil
}

// importPath extracts the quoted package path from an import line,
// tolerating aliases.
func importPath(s string) string {
	start := strings.Index(s, `"`)
	if start == -1 {
		return ""
	}
	end := strings.Index(s[start+1:], `"`)
	if end == -1 {
		return ""
	}
	return s[start+1 : start+1+end]
}

// Execute sanitizes and runs the code against the given rows, reading the
// contract functions back from the interpreter namespace. Execution
// failures, panics, and timeouts become a failed Result, never an error
// propagated to the caller's goroutine.
func (e *Executor) Execute(ctx context.Context, code string, rows []map[string]any, needChart bool) Result {
	start := time.Now()

	fail := func(format string, args ...interface{}) Result {
		msg := fmt.Sprintf(format, args...)
		logging.Sandbox("execution failed: %s", msg)
		return Result{Error: msg, DurationMS: time.Since(start).Milliseconds()}
	}

	sanitized, err := e.Sanitize(code)
	if err != nil {
		return fail("import validation: %v", err)
	}

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return fail("failed to load stdlib: %v", err)
	}

	if _, err := i.Eval(wrapCode(sanitized)); err != nil {
		return fail("code evaluation failed: %v", err)
	}

	resultsFn, err := lookupFunc[func([]map[string]any) map[string]any](i, "main.AnalysisResults")
	if err != nil {
		return fail("%v", err)
	}
	tableFn, err := lookupFunc[func([]map[string]any) []map[string]any](i, "main.AnalysisTable")
	if err != nil {
		return fail("%v", err)
	}
	var chartFn func([]map[string]any) map[string]any
	if needChart {
		chartFn, err = lookupFunc[func([]map[string]any) map[string]any](i, "main.ChartData")
		if err != nil {
			return fail("%v", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type callResult struct {
		results map[string]any
		table   []map[string]any
		chart   map[string]any
		err     error
	}
	done := make(chan callResult, 1)

	go func() {
		var cr callResult
		defer func() {
			if r := recover(); r != nil {
				cr.err = fmt.Errorf("panic in generated code: %v", r)
			}
			done <- cr
		}()
		cr.results = resultsFn(rows)
		cr.table = tableFn(rows)
		if chartFn != nil {
			cr.chart = chartFn(rows)
		}
	}()

	select {
	case cr := <-done:
		if cr.err != nil {
			return fail("%v", cr.err)
		}
		logging.Sandbox("execution ok in %v (%d result keys, %d table rows)",
			time.Since(start), len(cr.results), len(cr.table))
		return Result{
			Success:    true,
			Results:    cr.results,
			Table:      cr.table,
			ChartData:  cr.chart,
			DurationMS: time.Since(start).Milliseconds(),
		}
	case <-ctx.Done():
		return fail("execution timed out: %v", ctx.Err())
	}
}

func lookupFunc[T any](i *interp.Interpreter, name string) (T, error) {
	var zero T
	v, err := i.Eval(name)
	if err != nil {
		return zero, fmt.Errorf("%s not found: %w", name, err)
	}
	fn, ok := v.Interface().(T)
	if !ok {
		return zero, fmt.Errorf("%s has incorrect signature", name)
	}
	return fn, nil
}

func wrapCode(code string) string {
	if strings.Contains(code, "package main") {
		return code
	}
	return "package main\n\n" + code
}
