package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	apperrors "healthetl/internal/errors"
	"healthetl/pkg/contracts/domain"
)

// ErrSourceNotFound reports that the snapshot does not exist
var ErrSourceNotFound = errors.New("source not found")

// Loader produces a Table from a named raw source
type Loader interface {
	Load(ctx context.Context) (*domain.Table, error)
	Source() string
}

// nullMarkers are the cell values read as missing
var nullMarkers = map[string]struct{}{
	"":     {},
	"NA":   {},
	"N/A":  {},
	"n/a":  {},
	"NaN":  {},
	"nan":  {},
	"-NaN": {},
	"null": {},
	"NULL": {},
	"None": {},
	"#N/A": {},
	"<NA>": {},
}

// IsNullMarker reports whether a raw cell value stands for a missing value
func IsNullMarker(s string) bool {
	_, ok := nullMarkers[s]
	return ok
}

// New returns the loader matching the file extension of path
func New(path string, logger *slog.Logger) Loader {
	return NewWithSheet(path, "", logger)
}

// NewWithSheet is New with an explicit worksheet for xlsx sources
func NewWithSheet(path, sheet string, logger *slog.Logger) Loader {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return NewExcelLoader(path, sheet, logger)
	default:
		return NewCSVLoader(path, logger)
	}
}

// buildTable maps a header row and data rows onto patient records.
// Rows shorter than the header are padded with nulls.
func buildTable(header []string, rows [][]string) (*domain.Table, error) {
	if len(header) == 0 {
		return nil, apperrors.NewSchemaError("source has no header row")
	}
	header = normalizeHeader(header)

	index := make(map[string]int, len(header))
	for i, name := range header {
		if _, dup := index[name]; dup {
			return nil, apperrors.NewSchemaError(fmt.Sprintf("duplicate column %q", name))
		}
		index[name] = i
	}

	var missing []string
	for _, col := range domain.RequiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, apperrors.NewSchemaError("missing required columns: " + strings.Join(missing, ", ")).
			WithContext("columns", missing)
	}

	required := make(map[string]struct{}, len(domain.RequiredColumns))
	for _, col := range domain.RequiredColumns {
		required[col] = struct{}{}
	}
	var extraCols []string
	var extraIdx []int
	for i, name := range header {
		if _, ok := required[name]; !ok {
			extraCols = append(extraCols, name)
			extraIdx = append(extraIdx, i)
		}
	}

	table := &domain.Table{
		Columns:      header,
		ExtraColumns: extraCols,
		Rows:         make([]domain.PatientRecord, 0, len(rows)),
	}

	for n, row := range rows {
		if len(row) > len(header) {
			return nil, apperrors.NewParsingError(
				fmt.Sprintf("row %d has %d fields, header has %d", n+1, len(row), len(header)), nil).
				WithContext("row", n+1)
		}
		cell := func(col int) domain.Null[string] {
			if col >= len(row) || IsNullMarker(row[col]) {
				return domain.None[string]()
			}
			return domain.Some(row[col])
		}

		age, err := parseAge(cell(index[domain.ColumnAge]))
		if err != nil {
			return nil, apperrors.NewParsingError(fmt.Sprintf("row %d", n+1), err).WithContext("row", n+1)
		}

		rec := domain.PatientRecord{
			Age:               age,
			Gender:            cell(index[domain.ColumnGender]),
			MedicalCondition:  cell(index[domain.ColumnMedicalCondition]),
			AdmissionDate:     cell(index[domain.ColumnAdmissionDate]),
			DischargeDate:     cell(index[domain.ColumnDischargeDate]),
			ReadmissionStatus: cell(index[domain.ColumnReadmissionStatus]),
		}
		if len(extraIdx) > 0 {
			rec.Extra = make([]domain.Null[string], len(extraIdx))
			for j, col := range extraIdx {
				rec.Extra[j] = cell(col)
			}
		}
		table.Rows = append(table.Rows, rec)
	}

	return table, nil
}

// parseAge accepts integers and integral floats such as "45.0"
func parseAge(raw domain.Null[string]) (domain.Null[int], error) {
	if !raw.Valid {
		return domain.None[int](), nil
	}
	s := strings.TrimSpace(raw.Value)
	if v, err := strconv.Atoi(s); err == nil {
		return domain.Some(v), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int(f)) {
		return domain.None[int](), fmt.Errorf("invalid %s value %q", domain.ColumnAge, raw.Value)
	}
	return domain.Some(int(f)), nil
}

func normalizeHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		out[i] = strings.TrimSpace(h)
	}
	return out
}
