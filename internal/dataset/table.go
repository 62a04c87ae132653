// Package dataset loads CSV workbooks into typed in-memory tables and
// exposes the pure schema and sample views the analysis workflow consumes.
package dataset

import (
	"fmt"
	"strings"
)

// Row is one record keyed by column name.
type Row = map[string]any

// Table is an ordered, typed collection of rows.
type Table struct {
	Name    string
	Columns []string
	Types   map[string]string // column -> string|int|float|bool
	Rows    []Row
}

// ColumnInfo describes a single column.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// TableSchema is the machine-readable description of a table's shape.
type TableSchema struct {
	Name     string       `json:"name"`
	RowCount int          `json:"row_count"`
	ColCount int          `json:"col_count"`
	Columns  []ColumnInfo `json:"columns"`
}

// Schema returns shape, column names and type tags. Pure.
func (t *Table) Schema() TableSchema {
	cols := make([]ColumnInfo, 0, len(t.Columns))
	for _, c := range t.Columns {
		typ := t.Types[c]
		if typ == "" {
			typ = "string"
		}
		cols = append(cols, ColumnInfo{Name: c, Type: typ})
	}
	return TableSchema{
		Name:     t.Name,
		RowCount: len(t.Rows),
		ColCount: len(t.Columns),
		Columns:  cols,
	}
}

// Sample returns up to n rows from the top of the table. Pure.
func (t *Table) Sample(n int) []Row {
	if n < 0 {
		n = 0
	}
	if n > len(t.Rows) {
		n = len(t.Rows)
	}
	out := make([]Row, n)
	copy(out, t.Rows[:n])
	return out
}

// PreviewCSV renders up to n rows as CSV text for prompt construction.
func (t *Table) PreviewCSV(n int) string {
	var b strings.Builder
	b.WriteString(strings.Join(t.Columns, ","))
	b.WriteString("\n")
	for _, row := range t.Sample(n) {
		cells := make([]string, len(t.Columns))
		for i, c := range t.Columns {
			cells[i] = fmt.Sprintf("%v", row[c])
		}
		b.WriteString(strings.Join(cells, ","))
		b.WriteString("\n")
	}
	return b.String()
}

// Concat joins tables row-wise. The result's column set is the ordered
// union of the inputs' columns; cells missing from a source row are nil.
func Concat(name string, tables ...*Table) *Table {
	out := &Table{Name: name, Types: make(map[string]string)}
	seen := make(map[string]bool)

	for _, t := range tables {
		if t == nil {
			continue
		}
		for _, c := range t.Columns {
			if !seen[c] {
				seen[c] = true
				out.Columns = append(out.Columns, c)
				out.Types[c] = t.Types[c]
			}
		}
	}

	for _, t := range tables {
		if t == nil {
			continue
		}
		for _, row := range t.Rows {
			merged := make(Row, len(out.Columns))
			for _, c := range out.Columns {
				if v, ok := row[c]; ok {
					merged[c] = v
				} else {
					merged[c] = nil
				}
			}
			out.Rows = append(out.Rows, merged)
		}
	}

	return out
}
