package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	apperrors "healthetl/internal/errors"
	"healthetl/pkg/contracts/domain"
)

// ExcelLoader reads a snapshot from one sheet of an xlsx workbook
type ExcelLoader struct {
	path   string
	sheet  string
	logger *slog.Logger
}

// NewExcelLoader creates a loader for the workbook at path.
// An empty sheet name selects the first sheet.
func NewExcelLoader(path, sheet string, logger *slog.Logger) *ExcelLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExcelLoader{path: path, sheet: sheet, logger: logger}
}

// Source returns the workbook path read by the loader
func (l *ExcelLoader) Source() string {
	return l.path
}

// Load reads the sheet. The first row is the header.
func (l *ExcelLoader) Load(ctx context.Context) (*domain.Table, error) {
	if _, err := os.Stat(l.path); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, l.path)
	}

	f, err := excelize.OpenFile(l.path)
	if err != nil {
		return nil, apperrors.NewParsingError("failed to open workbook", err).WithContext("path", l.path)
	}
	defer f.Close()

	sheet := l.sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}

	// Raw values keep date cells as serials instead of their display format
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, apperrors.NewParsingError(fmt.Sprintf("failed to read sheet %q", sheet), err).
			WithContext("path", l.path)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, apperrors.NewSchemaError("sheet is empty").WithContext("sheet", sheet)
	}

	date1904 := false
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		date1904 = *props.Date1904
	}
	dateCols := dateColumns(rows[0])

	// GetRows keeps blank rows between data rows
	data := make([][]string, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		for _, col := range dateCols {
			if col < len(row) {
				row[col] = dateCell(f, sheet, col+1, i+2, row[col], date1904)
			}
		}
		data = append(data, row)
	}

	table, err := buildTable(rows[0], data)
	if err != nil {
		return nil, err
	}

	l.logger.InfoContext(ctx, "source_loaded",
		slog.String("path", l.path),
		slog.String("sheet", sheet),
		slog.Int("rows", table.Len()),
		slog.Int("columns", len(table.Columns)))
	return table, nil
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if cell != "" {
			return false
		}
	}
	return true
}

// dateColumns returns the positions of the admission and discharge columns
func dateColumns(header []string) []int {
	var cols []int
	for i, name := range header {
		if name == domain.ColumnAdmissionDate || name == domain.ColumnDischargeDate {
			cols = append(cols, i)
		}
	}
	return cols
}

// dateCell renders a numeric date serial as an ISO date. Text cells and
// values that are not serials are returned unchanged.
func dateCell(f *excelize.File, sheet string, col, row int, raw string, date1904 bool) string {
	serial, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return raw
	}
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return raw
	}
	if typ, _ := f.GetCellType(sheet, cell); typ == excelize.CellTypeSharedString || typ == excelize.CellTypeInlineString {
		return raw
	}

	t, err := excelize.ExcelDateToTime(serial, date1904)
	if err != nil {
		return raw
	}
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
		return t.Format(time.DateOnly)
	}
	return t.Format(time.DateTime)
}
