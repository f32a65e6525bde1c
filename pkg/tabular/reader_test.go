package tabular

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestReadCSV(t *testing.T) {
	path := writeFile(t, "dict.csv", "\ufeffROI_INDEX, ROI_NAME ,HEMISPHERE\n47,Right Hippocampus,R\n\n48,Left Hippocampus\n")

	tbl, err := NewReader(path).Read()
	require.NoError(t, err)
	assert.Equal(t, []string{"ROI_INDEX", "ROI_NAME", "HEMISPHERE"}, tbl.Headers)
	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, "Right Hippocampus", tbl.Rows[0]["ROI_NAME"])
	assert.Equal(t, "", tbl.Rows[1]["HEMISPHERE"])
	assert.True(t, tbl.Has("HEMISPHERE"))
	assert.False(t, tbl.Has("SIDE"))
}

func TestExcelRoundTrip(t *testing.T) {
	src := &Table{
		Headers: []string{"PTID", "Age", "702"},
		Rows: []Row{
			{"PTID": "a", "Age": "70.5", "702": "1400000"},
			{"PTID": "b", "Age": "68", "702": "1350000"},
		},
	}
	path := filepath.Join(t.TempDir(), "ref.xlsx")
	wb := NewWorkbook()
	require.NoError(t, wb.AddSheet("Reference", src))
	require.NoError(t, wb.AddSheet("Empty", &Table{Headers: []string{"x"}}))
	require.NoError(t, wb.SaveAs(path))

	got, err := NewReader(path).Read()
	require.NoError(t, err)
	assert.Equal(t, src.Headers, got.Headers)
	assert.Equal(t, src.Rows, got.Rows)

	got, err = NewReader(path).WithSheet("Empty").Read()
	require.NoError(t, err)
	assert.Empty(t, got.Rows)
}

func TestReadRecords_Ragged(t *testing.T) {
	path := writeFile(t, "map.csv", "701,Brain,1,2,3\n509,Ventricles,4,,11\n")

	records, err := ReadRecords(path)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, []string{"509", "Ventricles", "4", "", "11"}, records[1])
}

func TestRead_MissingFile(t *testing.T) {
	_, err := NewReader(filepath.Join(t.TempDir(), "none.csv")).Read()
	assert.Error(t, err)
	_, err = ReadRecords(filepath.Join(t.TempDir(), "none.csv"))
	assert.Error(t, err)
}
