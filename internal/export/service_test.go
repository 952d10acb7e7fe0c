package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"finxtract/constants"
	"finxtract/internal/consolidate"
	"finxtract/internal/orchestrator"
)

func sampleRecord() *consolidate.Record {
	assets := constants.TemplateField{Category: "BalanceSheet", Subcategory: "Assets", Field: "Total assets"}
	return &consolidate.Record{
		Years: []int{2023, 2022},
		Cells: map[constants.TemplateField]map[int]consolidate.Cell{
			assets: {
				1: {Value: "352,755", Year: 2023, PageIndex: 3, Confidence: 0.9},
				2: {Value: "338,736", Year: 2022, PageIndex: 3, Confidence: 0.9},
			},
		},
	}
}

func sampleReport() *orchestrator.RunReport {
	return &orchestrator.RunReport{
		RunID:        "11111111-2222-3333-4444-555555555555",
		DocumentPath: "/inbox/annual_report.pdf",
		State:        constants.RunDone,
		PagesTotal:   42,
		CallCount:    48,
		CostSpentUSD: 0.91,
		StartedAt:    time.Now().UTC().Add(-time.Minute),
		FinishedAt:   time.Now().UTC(),
	}
}

func TestRecordXLSXLayout(t *testing.T) {
	svc := NewService(nil)

	data, err := svc.RecordXLSX(sampleRecord(), sampleReport())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	// Header row: triple columns then the years in slot order.
	for i, want := range []string{"Category", "Subcategory", "Field", "2023", "2022"} {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		v, err := f.GetCellValue("Statements", cell)
		require.NoError(t, err)
		require.Equal(t, want, v)
	}

	// Total assets sits at its template-order row with both year values.
	row := rowOf(t, f, "Total assets")
	require.Positive(t, row)
	v, _ := f.GetCellValue("Statements", cellName(4, row))
	require.Equal(t, "352,755", v)
	v, _ = f.GetCellValue("Statements", cellName(5, row))
	require.Equal(t, "338,736", v)

	// An unpopulated field's year cells stay empty.
	empty := rowOf(t, f, "Goodwill")
	require.Positive(t, empty)
	v, _ = f.GetCellValue("Statements", cellName(4, empty))
	require.Empty(t, v)
}

func TestRecordXLSXRunSheet(t *testing.T) {
	svc := NewService(nil)

	data, err := svc.RecordXLSX(sampleRecord(), sampleReport())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	v, err := f.GetCellValue("Run", "B1")
	require.NoError(t, err)
	require.Equal(t, "11111111-2222-3333-4444-555555555555", v)
	v, _ = f.GetCellValue("Run", "B3")
	require.Equal(t, "DONE", v)
}

func TestWriteRecordXLSXNamesFileAfterRun(t *testing.T) {
	svc := NewService(nil)
	dir := t.TempDir()

	path, err := svc.WriteRecordXLSX(dir, sampleRecord(), sampleReport())
	require.NoError(t, err)
	require.Contains(t, path, "annual_report_11111111-2222-3333-4444-555555555555.xlsx")

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	_ = f.Close()
}

func cellName(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}

func rowOf(t *testing.T, f *excelize.File, field string) int {
	t.Helper()
	rows, err := f.GetRows("Statements")
	require.NoError(t, err)
	for i, r := range rows {
		if len(r) >= 3 && r[2] == field {
			return i + 1
		}
	}
	return 0
}
