package sandbox

import (
	"fmt"
	"sort"
)

// Canonical is a normalized tabular view of an arbitrary execution output:
// an ordered column list plus uniform rows.
type Canonical struct {
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
}

// Coerce converts an arbitrary value read back from the interpreter into a
// canonical table:
//
//   - nil            -> empty table
//   - scalar         -> one row, one "value" column
//   - list of maps   -> one row per record, columns are the key union
//   - list of scalars-> one row per element under a "value" column
//   - map of equal-length lists -> one row per index, one column per key
//   - map of scalars (or ragged lists) -> a single row
func Coerce(v any) Canonical {
	switch val := v.(type) {
	case nil:
		return Canonical{}
	case []map[string]any:
		records := make([]any, len(val))
		for i, r := range val {
			records[i] = r
		}
		return coerceRecords(records)
	case []any:
		if len(val) == 0 {
			return Canonical{}
		}
		if _, ok := asRecord(val[0]); ok {
			return coerceRecords(val)
		}
		return coerceScalars(val)
	case map[string]any:
		return coerceMap(val)
	default:
		return Canonical{
			Columns: []string{"value"},
			Rows:    []map[string]any{{"value": val}},
		}
	}
}

// Diagnostic builds the single-row table that represents a failed or
// uncoercible execution.
func Diagnostic(msg string) Canonical {
	return Canonical{
		Columns: []string{"error"},
		Rows:    []map[string]any{{"error": msg}},
	}
}

func asRecord(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func coerceRecords(records []any) Canonical {
	var columns []string
	seen := make(map[string]bool)
	for _, r := range records {
		m, ok := asRecord(r)
		if !ok {
			continue
		}
		keys := sortedKeys(m)
		for _, k := range keys {
			if !seen[k] {
				seen[k] = true
				columns = append(columns, k)
			}
		}
	}

	rows := make([]map[string]any, 0, len(records))
	for _, r := range records {
		m, ok := asRecord(r)
		if !ok {
			m = map[string]any{"value": r}
			if !seen["value"] {
				seen["value"] = true
				columns = append(columns, "value")
			}
		}
		row := make(map[string]any, len(columns))
		for _, c := range columns {
			if v, has := m[c]; has {
				row[c] = v
			} else {
				row[c] = nil
			}
		}
		rows = append(rows, row)
	}

	return Canonical{Columns: columns, Rows: rows}
}

func coerceScalars(items []any) Canonical {
	rows := make([]map[string]any, len(items))
	for i, v := range items {
		rows[i] = map[string]any{"value": v}
	}
	return Canonical{Columns: []string{"value"}, Rows: rows}
}

func coerceMap(m map[string]any) Canonical {
	if len(m) == 0 {
		return Canonical{}
	}

	keys := sortedKeys(m)

	// A map whose values are all lists of one common length pivots to
	// one row per index. Anything else collapses to a single row.
	length := -1
	allLists := true
	for _, k := range keys {
		list, ok := m[k].([]any)
		if !ok {
			allLists = false
			break
		}
		if length == -1 {
			length = len(list)
		} else if len(list) != length {
			allLists = false
			break
		}
	}

	if allLists && length >= 0 {
		rows := make([]map[string]any, length)
		for i := 0; i < length; i++ {
			row := make(map[string]any, len(keys))
			for _, k := range keys {
				row[k] = m[k].([]any)[i]
			}
			rows[i] = row
		}
		return Canonical{Columns: keys, Rows: rows}
	}

	row := make(map[string]any, len(keys))
	for _, k := range keys {
		row[k] = flattenCell(m[k])
	}
	return Canonical{Columns: keys, Rows: []map[string]any{row}}
}

// flattenCell stringifies composite values so a single-row table stays flat.
func flattenCell(v any) any {
	switch v.(type) {
	case []any, map[string]any:
		return fmt.Sprintf("%v", v)
	default:
		return v
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
