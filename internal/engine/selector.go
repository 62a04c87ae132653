package engine

import (
	"strings"

	"datapilot/internal/dataset"
	"datapilot/internal/logging"
)

// subsetCategory is one recognizable group of sheet names.
type subsetCategory struct {
	name     string
	keywords []string
	index    int // positional fallback when no sheet name matches
}

var subsetCategories = []subsetCategory{
	{name: "back_office", keywords: []string{"back", "office"}, index: 0},
	{name: "call_center", keywords: []string{"call", "center"}, index: 1},
	{name: "leaders", keywords: []string{"leader", "leadership"}, index: 2},
	{name: "retail", keywords: []string{"retail", "sales"}, index: 3},
}

// selectSubset resolves the sheet the run operates on. Precedence: an
// explicit subset name, then the classifier's suggestion, then keywords in
// the query itself. The reserved "summary" subset concatenates every sheet
// row-wise. An unresolvable subset logs a non-fatal error and leaves the
// table nil; the synthesizer fails gracefully downstream.
func (e *Engine) selectSubset(st *RunState, wb *dataset.Workbook) edge {
	candidates := []string{st.Query.Subset}
	if st.Classification != nil {
		candidates = append(candidates, st.Classification.SuggestedSubset)
	}
	candidates = append(candidates, st.Query.Text)

	for _, cand := range candidates {
		cand = strings.ToLower(strings.TrimSpace(cand))
		if cand == "" {
			continue
		}

		if isSummaryRequest(cand) {
			tables := make([]*dataset.Table, 0, len(wb.Order))
			for _, name := range wb.Order {
				tables = append(tables, wb.Sheets[name])
			}
			st.Table = dataset.Concat("summary", tables...)
			st.Subset = "summary"
			logging.Dataset("run %s: summary subset from %d sheets (%d rows)",
				st.ID, len(tables), len(st.Table.Rows))
			return edgeNext
		}

		// Exact sheet name wins over keyword heuristics.
		for _, name := range wb.Order {
			if strings.ToLower(name) == cand {
				st.Table = wb.Sheets[name]
				st.Subset = name
				return edgeNext
			}
		}

		if cat, ok := matchCategory(cand); ok {
			if name, ok := sheetForCategory(wb, cat); ok {
				st.Table = wb.Sheets[name]
				st.Subset = name
				logging.Dataset("run %s: subset %q via category %s", st.ID, name, cat.name)
				return edgeNext
			}
		}
	}

	// A single-sheet workbook needs no selection.
	if len(wb.Order) == 1 {
		name := wb.Order[0]
		st.Table = wb.Sheets[name]
		st.Subset = name
		return edgeNext
	}

	st.logError(ErrKindSubsetSelection, "could not resolve a dataset subset for %q", st.Query.Text)
	logging.Dataset("run %s: no subset resolved", st.ID)
	return edgeNext
}

func isSummaryRequest(s string) bool {
	return s == "summary" || strings.Contains(s, "summary") || strings.Contains(s, "all sheets")
}

// matchCategory finds the first category with a keyword in s.
func matchCategory(s string) (subsetCategory, bool) {
	for _, cat := range subsetCategories {
		for _, kw := range cat.keywords {
			if strings.Contains(s, kw) {
				return cat, true
			}
		}
	}
	return subsetCategory{}, false
}

// sheetForCategory picks the first sheet whose name contains one of the
// category's keywords, falling back to the category's fixed position.
func sheetForCategory(wb *dataset.Workbook, cat subsetCategory) (string, bool) {
	for _, name := range wb.Order {
		lower := strings.ToLower(name)
		for _, kw := range cat.keywords {
			if strings.Contains(lower, kw) {
				return name, true
			}
		}
	}
	if cat.index < len(wb.Order) {
		return wb.Order[cat.index], true
	}
	return "", false
}
