package export

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"finxtract/constants"
	"finxtract/internal/consolidate"
	"finxtract/internal/orchestrator"
)

// Service turns a consolidated record into an XLSX workbook. The statement
// sheet lays fields out in template order with one column per reported year;
// a second sheet carries the run diagnostics so a reviewer can judge how much
// to trust the numbers.
type Service struct {
	logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

// RecordXLSX returns the workbook as bytes.
func (s *Service) RecordXLSX(record *consolidate.Record, report *orchestrator.RunReport) ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	const sheet = "Statements"
	idx, err := f.NewSheet(sheet)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	_ = f.DeleteSheet("Sheet1")

	write := func(col, row int, v any) {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(sheet, cell, v)
	}

	headers := []string{"Category", "Subcategory", "Field"}
	for i, h := range headers {
		write(i+1, 1, h)
	}
	for i, year := range record.Years {
		write(len(headers)+i+1, 1, year)
	}

	row := 2
	for _, field := range constants.Template() {
		write(1, row, field.Category)
		write(2, row, field.Subcategory)
		write(3, row, field.Field)
		for i, year := range record.Years {
			cell, ok := record.Cell(field, i+1)
			if !ok || cell.Year != year {
				continue
			}
			write(len(headers)+i+1, row, cell.Value)
		}
		row++
	}

	if report != nil {
		if err := writeRunSheet(f, report); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("serialize workbook: %w", err)
	}
	s.logger.Info("export.xlsx.done",
		"rows", row-1,
		"years", len(record.Years),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// WriteRecordXLSX writes the workbook under outDir, named after the run.
func (s *Service) WriteRecordXLSX(outDir string, record *consolidate.Record, report *orchestrator.RunReport) (string, error) {
	data, err := s.RecordXLSX(record, report)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	name := "extraction.xlsx"
	if report != nil {
		base := strings.TrimSuffix(filepath.Base(report.DocumentPath), filepath.Ext(report.DocumentPath))
		if base == "" || base == "." {
			base = report.RunID
		}
		name = fmt.Sprintf("%s_%s.xlsx", base, report.RunID)
	}
	path := filepath.Join(outDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write workbook: %w", err)
	}
	return path, nil
}

func writeRunSheet(f *excelize.File, report *orchestrator.RunReport) error {
	const sheet = "Run"
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("create run sheet: %w", err)
	}
	write := func(row int, k string, v any) {
		cell, _ := excelize.CoordinatesToCellName(1, row)
		_ = f.SetCellValue(sheet, cell, k)
		cell, _ = excelize.CoordinatesToCellName(2, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
	write(1, "Run ID", report.RunID)
	write(2, "Document", report.DocumentPath)
	write(3, "State", string(report.State))
	write(4, "Pages Total", report.PagesTotal)
	write(5, "Pages Selected", len(report.Selected))
	write(6, "Low Confidence", report.LowConfidence)
	write(7, "Degraded", report.Degraded)
	write(8, "Failed Pages", len(report.FailedPages))
	write(9, "Skipped Pages", len(report.SkippedPages))
	write(10, "Call Count", report.CallCount)
	write(11, "Cost (USD)", report.CostSpentUSD)
	write(12, "Started", report.StartedAt.Format(time.RFC3339))
	write(13, "Finished", report.FinishedAt.Format(time.RFC3339))
	return nil
}
