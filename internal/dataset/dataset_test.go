package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadCSVTypesAndCleanup(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, "sales.csv",
		"region , amount,rate,active\n"+
			"north,100,0.5,true\n"+
			",,,\n"+
			"south,200,1.5,false\n")

	tbl, err := LoadCSV(path)
	require.NoError(t, err)

	assert.Equal(t, "sales", tbl.Name)
	assert.Equal(t, []string{"region", "amount", "rate", "active"}, tbl.Columns)
	require.Len(t, tbl.Rows, 2) // fully-empty row dropped

	assert.Equal(t, "string", tbl.Types["region"])
	assert.Equal(t, "int", tbl.Types["amount"])
	assert.Equal(t, "float", tbl.Types["rate"])
	assert.Equal(t, "bool", tbl.Types["active"])

	assert.Equal(t, 100, tbl.Rows[0]["amount"])
	assert.Equal(t, 1.5, tbl.Rows[1]["rate"])
	assert.Equal(t, false, tbl.Rows[1]["active"])
}

func TestLoadCSVMixedColumnWidensType(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, "mixed.csv", "v\n1\n2.5\nabc\n")

	tbl, err := LoadCSV(path)
	require.NoError(t, err)
	assert.Equal(t, "string", tbl.Types["v"])
}

func TestLoadWorkbookDirectory(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "b_second.csv", "x\n1\n")
	writeCSV(t, dir, "a_first.csv", "y\n2\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip me"), 0644))

	wb, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, []string{"a_first", "b_second"}, wb.Order)
	require.Contains(t, wb.Sheets, "a_first")
	require.Contains(t, wb.Sheets, "b_second")
}

func TestLoadEmptyDirectoryFails(t *testing.T) {
	_, err := Load(t.TempDir())
	require.Error(t, err)
}

func TestSchemaAndSample(t *testing.T) {
	tbl := &Table{
		Name:    "t",
		Columns: []string{"a", "b"},
		Types:   map[string]string{"a": "int", "b": "string"},
		Rows: []Row{
			{"a": 1, "b": "x"},
			{"a": 2, "b": "y"},
			{"a": 3, "b": "z"},
		},
	}

	s := tbl.Schema()
	assert.Equal(t, 3, s.RowCount)
	assert.Equal(t, 2, s.ColCount)
	assert.Equal(t, []ColumnInfo{{"a", "int"}, {"b", "string"}}, s.Columns)

	assert.Len(t, tbl.Sample(2), 2)
	assert.Len(t, tbl.Sample(10), 3)
}

func TestConcatColumnUnion(t *testing.T) {
	t1 := &Table{
		Name:    "one",
		Columns: []string{"a", "b"},
		Types:   map[string]string{"a": "int", "b": "string"},
		Rows:    []Row{{"a": 1, "b": "x"}},
	}
	t2 := &Table{
		Name:    "two",
		Columns: []string{"b", "c"},
		Types:   map[string]string{"b": "string", "c": "float"},
		Rows:    []Row{{"b": "y", "c": 2.5}},
	}

	got := Concat("summary", t1, t2)

	assert.Equal(t, []string{"a", "b", "c"}, got.Columns)
	want := []Row{
		{"a": 1, "b": "x", "c": nil},
		{"a": nil, "b": "y", "c": 2.5},
	}
	if diff := cmp.Diff(want, got.Rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestPreviewCSV(t *testing.T) {
	tbl := &Table{
		Columns: []string{"a", "b"},
		Rows:    []Row{{"a": 1, "b": "x"}},
	}
	assert.Equal(t, "a,b\n1,x\n", tbl.PreviewCSV(5))
}
