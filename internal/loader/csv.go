package loader

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	apperrors "healthetl/internal/errors"
	"healthetl/pkg/contracts/domain"
)

// CSVLoader reads a comma-delimited snapshot with a header row
type CSVLoader struct {
	path   string
	logger *slog.Logger
}

// NewCSVLoader creates a loader for the file at path
func NewCSVLoader(path string, logger *slog.Logger) *CSVLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVLoader{path: path, logger: logger}
}

// Source returns the file path read by the loader
func (l *CSVLoader) Source() string {
	return l.path
}

// Load reads the whole file. A missing file returns ErrSourceNotFound.
func (l *CSVLoader) Load(ctx context.Context) (*domain.Table, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, l.path)
		}
		return nil, apperrors.NewParsingError("failed to open source", err).WithContext("path", l.path)
	}
	defer f.Close()

	table, err := l.read(ctx, f)
	if err != nil {
		return nil, err
	}

	l.logger.InfoContext(ctx, "source_loaded",
		slog.String("path", l.path),
		slog.Int("rows", table.Len()),
		slog.Int("columns", len(table.Columns)))
	return table, nil
}

func (l *CSVLoader) read(ctx context.Context, r io.Reader) (*domain.Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, apperrors.NewSchemaError("source is empty").WithContext("path", l.path)
		}
		return nil, apperrors.NewParsingError("failed to read header", err).WithContext("path", l.path)
	}

	var rows [][]string
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, apperrors.NewParsingError("failed to read record", err).WithContext("path", l.path)
		}
		rows = append(rows, record)
	}

	return buildTable(header, rows)
}
