package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/fiscalops/apbots/internal/entity"
	"github.com/fiscalops/apbots/internal/repository"
)

const (
	logSheet     = "Process Log"
	summarySheet = "Summary"
)

// Service renders run bookkeeping as XLSX workbooks.
type Service struct {
	runs   repository.RunRepository
	logs   repository.ProcessLogRepository
	logger *slog.Logger
}

func NewService(runs repository.RunRepository, logs repository.ProcessLogRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{runs: runs, logs: logs, logger: logger}
}

// RunReport returns an XLSX workbook with one row per processed
// document and a summary sheet with the run's counters.
func (s *Service) RunReport(ctx context.Context, runID string) ([]byte, error) {
	start := time.Now()

	run, err := s.runs.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	rows, err := s.logs.ListByRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("query process log: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", logSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		return nil, err
	}
	activeIndex, _ := f.GetSheetIndex(logSheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{"Filename", "Voucher ID", "Invoice", "Amount", "Status", "Message", "Processed At"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(logSheet, cell, h)
	}

	counters := entity.RunCounters{}
	for i, r := range rows {
		row := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(logSheet, cell, v)
		}
		write(1, r.Filename)
		write(2, r.Identifier)
		write(3, r.Invoice)
		write(4, r.Amount)
		write(5, string(r.Status))
		write(6, r.Message)
		write(7, r.CreatedAt.UTC().Format(time.RFC3339))
		counters.Record(r.Status)
	}

	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetCellStyle(logSheet, "A1", "G1", style)
		_ = f.SetCellStyle(summarySheet, "A1", "A9", style)
	}
	_ = f.SetColWidth(logSheet, "A", "A", 40) // filename
	_ = f.SetColWidth(logSheet, "B", "C", 18)
	_ = f.SetColWidth(logSheet, "D", "E", 12)
	_ = f.SetColWidth(logSheet, "F", "F", 60) // message
	_ = f.SetColWidth(logSheet, "G", "G", 22)

	message := ""
	if run.Message != nil {
		message = *run.Message
	}
	summary := [][2]any{
		{"Run ID", run.RunID},
		{"Bot", run.BotName},
		{"Status", string(run.Status)},
		{"Test Mode", run.TestMode},
		{"Processed", counters.Processed},
		{"Successes", counters.Successes},
		{"Duplicates", counters.Duplicates},
		{"Failures", counters.Failures},
		{"Message", message},
	}
	for i, kv := range summary {
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", i+1), kv[0])
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", i+1), kv[1])
	}
	_ = f.SetColWidth(summarySheet, "A", "A", 14)
	_ = f.SetColWidth(summarySheet, "B", "B", 40)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"run_id", runID,
		"rows", len(rows),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}
