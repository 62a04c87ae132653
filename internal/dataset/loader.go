package dataset

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"datapilot/internal/logging"
)

// Workbook is a named collection of tables loaded from disk. Each CSV file
// in the source directory becomes one sheet, keyed by its base filename.
type Workbook struct {
	Path   string
	Order  []string
	Sheets map[string]*Table
}

// Load reads a workbook from a directory of CSV files or from a single
// CSV file.
func Load(path string) (*Workbook, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat dataset path: %w", err)
	}

	wb := &Workbook{
		Path:   path,
		Sheets: make(map[string]*Table),
	}

	if !info.IsDir() {
		t, err := LoadCSV(path)
		if err != nil {
			return nil, err
		}
		wb.Sheets[t.Name] = t
		wb.Order = []string{t.Name}
		return wb, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		t, err := LoadCSV(filepath.Join(path, name))
		if err != nil {
			logging.Dataset("skipping %s: %v", name, err)
			continue
		}
		wb.Sheets[t.Name] = t
		wb.Order = append(wb.Order, t.Name)
	}

	if len(wb.Sheets) == 0 {
		return nil, fmt.Errorf("no readable CSV files under %s", path)
	}

	logging.Dataset("loaded workbook %s: %d sheets", path, len(wb.Sheets))
	return wb, nil
}

// LoadCSV reads a single CSV file into a typed table. Fully-empty rows
// and fully-empty columns are dropped; headers are trimmed.
func LoadCSV(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s is empty", path)
	}

	headers := make([]string, len(records[0]))
	for i, h := range records[0] {
		headers[i] = strings.TrimSpace(h)
	}

	// Drop fully-empty data rows.
	var dataRows [][]string
	for _, rec := range records[1:] {
		empty := true
		for _, cell := range rec {
			if strings.TrimSpace(cell) != "" {
				empty = false
				break
			}
		}
		if !empty {
			dataRows = append(dataRows, rec)
		}
	}

	// Drop columns with no header and no data.
	keep := make([]int, 0, len(headers))
	for i, h := range headers {
		if h != "" {
			keep = append(keep, i)
			continue
		}
		hasData := false
		for _, rec := range dataRows {
			if i < len(rec) && strings.TrimSpace(rec[i]) != "" {
				hasData = true
				break
			}
		}
		if hasData {
			headers[i] = fmt.Sprintf("column_%d", i+1)
			keep = append(keep, i)
		}
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	t := &Table{
		Name:  name,
		Types: make(map[string]string),
	}
	for _, i := range keep {
		t.Columns = append(t.Columns, headers[i])
	}

	colTypes := make([]string, len(keep))
	for _, rec := range dataRows {
		row := make(Row, len(keep))
		for ci, i := range keep {
			var cell string
			if i < len(rec) {
				cell = strings.TrimSpace(rec[i])
			}
			v, typ := parseCell(cell)
			row[headers[i]] = v
			colTypes[ci] = widenType(colTypes[ci], typ)
		}
		t.Rows = append(t.Rows, row)
	}

	for ci, c := range t.Columns {
		typ := colTypes[ci]
		if typ == "" {
			typ = "string"
		}
		t.Types[c] = typ
		// A column widened back to string keeps its parsed values; the
		// type tag records the weakest common type, not a reparse.
	}

	return t, nil
}

// parseCell converts a CSV cell to its narrowest Go value.
func parseCell(cell string) (any, string) {
	if cell == "" {
		return nil, ""
	}
	if i, err := strconv.ParseInt(cell, 10, 64); err == nil {
		return int(i), "int"
	}
	if f, err := strconv.ParseFloat(cell, 64); err == nil {
		return f, "float"
	}
	if b, err := strconv.ParseBool(cell); err == nil {
		return b, "bool"
	}
	return cell, "string"
}

// widenType returns the narrowest type that admits both tags.
func widenType(a, b string) string {
	switch {
	case a == "" || a == b:
		return b
	case b == "":
		return a
	case (a == "int" && b == "float") || (a == "float" && b == "int"):
		return "float"
	default:
		return "string"
	}
}
