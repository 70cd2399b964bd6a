// Package payslip renders the payslip register for an approved run as an
// Excel workbook. One workbook per batch, one row per employee.
package payslip

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/corehr/payroll-engine/internal/application/port"
	"github.com/corehr/payroll-engine/internal/domain/entity"
)

const sheetName = "Payslips"

// ExcelRenderer writes payslip registers into outputDir
type ExcelRenderer struct {
	outputDir string
	logger    *zap.Logger
}

// NewExcelRenderer creates a new Excel renderer
func NewExcelRenderer(outputDir string, logger *zap.Logger) (*ExcelRenderer, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &ExcelRenderer{outputDir: outputDir, logger: logger}, nil
}

// Render writes the register for one batch and returns the file path.
// File names include the fingerprint so regenerations never clobber a
// previously distributed register.
func (r *ExcelRenderer) Render(ctx context.Context, run *entity.PayrollRun, batch *entity.PayslipBatch, lines []port.PayLine) (string, error) {
	r.logger.Info("Rendering payslip register",
		zap.String("run_id", run.RunID),
		zap.String("batch_id", batch.ID),
		zap.Int("lines", len(lines)))

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return "", fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		r.logger.Warn("Failed to drop default sheet", zap.Error(err))
	}

	r.setCell(f, "A1", "Entity")
	r.setCell(f, "B1", run.Entity)
	r.setCell(f, "A2", "Period")
	r.setCell(f, "B2", run.PayrollPeriod)
	r.setCell(f, "A3", "Run")
	r.setCell(f, "B3", run.RunID)
	r.setCell(f, "A4", "Total Net Pay")
	r.setCell(f, "B4", run.TotalNetPay.StringFixed(2))

	header := []string{"Employee ID", "Full Name", "Gross", "Deductions", "Net"}
	for col, title := range header {
		cell, err := excelize.CoordinatesToCellName(col+1, 6)
		if err != nil {
			return "", fmt.Errorf("failed to address header cell: %w", err)
		}
		r.setCell(f, cell, title)
	}

	for i, line := range lines {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		row := i + 7
		r.setCell(f, fmt.Sprintf("A%d", row), line.EmployeeID)
		r.setCell(f, fmt.Sprintf("B%d", row), line.FullName)
		r.setCell(f, fmt.Sprintf("C%d", row), line.Gross.StringFixed(2))
		r.setCell(f, fmt.Sprintf("D%d", row), line.Deductions.StringFixed(2))
		r.setCell(f, fmt.Sprintf("E%d", row), line.Net.StringFixed(2))
	}

	short := batch.Fingerprint
	if len(short) > 12 {
		short = short[:12]
	}
	outputPath := filepath.Join(r.outputDir, fmt.Sprintf("payslips_%s_%s.xlsx", run.RunID, short))
	if err := f.SaveAs(outputPath); err != nil {
		return "", fmt.Errorf("failed to save payslip register: %w", err)
	}

	r.logger.Info("Payslip register rendered", zap.String("output_path", outputPath))
	return outputPath, nil
}

// setCell sets a cell value, logging instead of failing on a bad address
func (r *ExcelRenderer) setCell(f *excelize.File, cell string, value interface{}) {
	if err := f.SetCellValue(sheetName, cell, value); err != nil {
		r.logger.Warn("Failed to set cell value",
			zap.String("cell", cell),
			zap.Error(err))
	}
}
