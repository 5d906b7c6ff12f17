package documents

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// PaylineItem is one earnings or deduction line requested by HR.
type PaylineItem struct {
	TabName         string  `json:"tab_name"`
	HRRequestor     string  `json:"hr_requestor"`
	MonthRequested  string  `json:"month_requested"`
	Site            string  `json:"site"`
	EmplID          string  `json:"emplid"`
	EmplRcd         int     `json:"empl_rcd"`
	ErnDedCode      string  `json:"ern_ded_code"`
	Amount          float64 `json:"amount"`
	EarningsBeginDt string  `json:"earnings_begin_dt"`
	EarningsEndDt   string  `json:"earnings_end_dt"`
	Notes           *string `json:"notes"`
}

// PaylineError is a row a human has to look at.
type PaylineError struct {
	RowNumber int    `json:"row_number"`
	TabName   string `json:"tab_name"`
	Error     string `json:"error"`
}

// PaylineBatch is the extraction result of one payline workbook.
type PaylineBatch struct {
	Items  []PaylineItem  `json:"items"`
	Errors []PaylineError `json:"errors"`
}

// TrimToFirstPeriod keeps items up to the first change of
// month_requested. Later tabs belong to another payroll period.
func (b *PaylineBatch) TrimToFirstPeriod() (dropped int) {
	if len(b.Items) == 0 {
		return 0
	}
	first := normalizePeriod(b.Items[0].MonthRequested)
	for i, it := range b.Items {
		if normalizePeriod(it.MonthRequested) != first {
			dropped = len(b.Items) - i
			b.Items = b.Items[:i]
			return dropped
		}
	}
	return 0
}

// MoveInvalid moves items whose emplid is not six digits to Errors.
// The row number is the item's position in the batch, starting at 1.
func (b *PaylineBatch) MoveInvalid() {
	kept := b.Items[:0]
	for i, it := range b.Items {
		it.EmplID = strings.TrimSpace(it.EmplID)
		if len(it.EmplID) != 6 || digitsOnly(it.EmplID) != it.EmplID {
			b.Errors = append(b.Errors, PaylineError{
				RowNumber: i + 1,
				TabName:   it.TabName,
				Error:     fmt.Sprintf("invalid emplid %q", it.EmplID),
			})
			continue
		}
		kept = append(kept, it)
	}
	b.Items = kept
}

func normalizePeriod(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Workbook limits.
const (
	maxSheets       = 6
	maxRowsPerSheet = 200
)

var dateHeaderHints = []string{"date", "begin", "end", "month"}

// Sheet is one worksheet rendered as a pipe table.
type Sheet struct {
	Name           string
	HRRequestor    string
	MonthRequested string
	Rows           int
	Table          string
}

// Workbook is the text rendering of a payline spreadsheet.
type Workbook struct {
	Sheets   []Sheet
	Warnings []string
}

// Text renders every sheet for the model.
func (w Workbook) Text() string {
	var b strings.Builder
	for _, s := range w.Sheets {
		fmt.Fprintf(&b, "## Sheet %q (hr_requestor=%q, month_requested=%q, rows=%d)\n%s\n\n",
			s.Name, s.HRRequestor, s.MonthRequested, s.Rows, s.Table)
	}
	for _, warn := range w.Warnings {
		b.WriteString("Warning: " + warn + "\n")
	}
	return strings.TrimSpace(b.String())
}

// ReadWorkbook renders the first sheets of an xlsx file as pipe tables.
// The first non-empty row of a sheet is its header; serial numbers in
// date-like columns are rendered as M/D/YYYY.
func ReadWorkbook(path string) (Workbook, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return Workbook{}, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	var wb Workbook
	for _, name := range f.GetSheetList() {
		if len(wb.Sheets) >= maxSheets {
			wb.Warnings = append(wb.Warnings, fmt.Sprintf("Workbook truncated to first %d sheets", maxSheets))
			break
		}
		rows, err := f.GetRows(name)
		if err != nil {
			return Workbook{}, fmt.Errorf("read sheet %q: %w", name, err)
		}
		sheet, warn := renderSheet(name, rows)
		if warn != "" {
			wb.Warnings = append(wb.Warnings, warn)
		}
		if sheet.Table != "" {
			wb.Sheets = append(wb.Sheets, sheet)
		}
	}
	return wb, nil
}

func renderSheet(name string, rows [][]string) (Sheet, string) {
	s := Sheet{Name: name}
	s.HRRequestor, s.MonthRequested = parseSheetName(name)

	var header []string
	var dateCols map[int]bool
	var lines []string
	warn := ""
	for _, row := range rows {
		if blank(row) {
			continue
		}
		if header == nil {
			header = row
			dateCols = dateColumns(header)
			lines = append(lines, strings.Join(header, " | "), strings.Repeat("--- | ", len(header)-1)+"---")
			continue
		}
		if s.Rows >= maxRowsPerSheet {
			warn = fmt.Sprintf("Sheet '%s' truncated after %d rows", name, maxRowsPerSheet)
			break
		}
		cells := make([]string, len(header))
		for i := range cells {
			if i < len(row) {
				cells[i] = row[i]
			}
			if dateCols[i] {
				cells[i] = formatSerialDate(cells[i])
			}
		}
		lines = append(lines, strings.Join(cells, " | "))
		s.Rows++
	}
	s.Table = strings.Join(lines, "\n")
	return s, warn
}

// parseSheetName splits "VERONICA_OCTOBER 2025" into requestor and month.
func parseSheetName(name string) (string, string) {
	name = strings.TrimSpace(name)
	requestor, rest, ok := strings.Cut(name, "_")
	if !ok {
		return name, ""
	}
	return strings.TrimSpace(requestor), strings.TrimSpace(strings.ReplaceAll(rest, "_", " "))
}

func dateColumns(header []string) map[int]bool {
	out := map[int]bool{}
	for i, h := range header {
		h = strings.ToLower(h)
		for _, hint := range dateHeaderHints {
			if strings.Contains(h, hint) {
				out[i] = true
				break
			}
		}
	}
	return out
}

func formatSerialDate(v string) string {
	n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return v
	}
	t, err := excelize.ExcelDateToTime(n, false)
	if err != nil {
		return v
	}
	return fmt.Sprintf("%d/%d/%d", int(t.Month()), t.Day(), t.Year())
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
