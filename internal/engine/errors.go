package engine

import (
	"errors"
	"fmt"
)

// ErrorKind tags an entry in the run's error log with the stage it came
// from. Every kind except the fatal sentinels below is recovered with a
// node-local fallback.
type ErrorKind string

const (
	ErrKindClassification    ErrorKind = "classification"
	ErrKindCodeGeneration    ErrorKind = "code_generation"
	ErrKindReviewService     ErrorKind = "review_service"
	ErrKindContractViolation ErrorKind = "contract_violation"
	ErrKindExecution         ErrorKind = "execution"
	ErrKindChartGeneration   ErrorKind = "chart_generation"
	ErrKindTemplateMerge     ErrorKind = "template_merge"
	ErrKindServiceOverload   ErrorKind = "service_overload"
	ErrKindSchemaValidation  ErrorKind = "schema_validation"
	ErrKindSubsetSelection   ErrorKind = "subset_selection"
)

// Fatal preconditions. These abort the run before any node executes.
var (
	ErrNoData         = errors.New("dataset has no rows")
	ErrMissingDataset = errors.New("no dataset provided")
)

// logError appends a tagged entry to the run's error log.
func (s *RunState) logError(kind ErrorKind, format string, args ...interface{}) {
	s.ErrorLog = append(s.ErrorLog, fmt.Sprintf("%s: %s", kind, fmt.Sprintf(format, args...)))
}
