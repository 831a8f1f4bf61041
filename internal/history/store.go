package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"healthetl/internal/config"
	apperrors "healthetl/internal/errors"
	"healthetl/internal/infrastructure"
	"healthetl/internal/operations"
)

// timestampLayout sorts lexically in chronological order
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// DefaultListLimit bounds List when no limit is given
const DefaultListLimit = 50

// RunRecord is the persisted summary of one pipeline run
type RunRecord struct {
	ID                      string                  `json:"id"`
	RunDate                 string                  `json:"run_date"`
	Trigger                 string                  `json:"trigger"`
	Status                  string                  `json:"status"`
	StartedAt               time.Time               `json:"started_at"`
	FinishedAt              time.Time               `json:"finished_at"`
	DurationMS              int64                   `json:"duration_ms"`
	RecordCount             int                     `json:"record_count"`
	AverageLengthOfStayDays float64                 `json:"average_length_of_stay_days"`
	ReadmissionRatePercent  float64                 `json:"readmission_rate_percent"`
	RowsIn                  int                     `json:"rows_in"`
	RowsDropped             int                     `json:"rows_dropped"`
	Keys                    []string                `json:"keys"`
	Error                   string                  `json:"error,omitempty"`
	Steps                   []operations.StepResult `json:"steps"`
}

// FromResponse flattens a run response into a record
func FromResponse(resp *operations.RunResponse) RunRecord {
	rec := RunRecord{
		ID:         resp.ID,
		RunDate:    resp.RunDate,
		Trigger:    resp.Trigger,
		Status:     string(resp.Status),
		StartedAt:  resp.StartedAt,
		FinishedAt: resp.FinishedAt,
		DurationMS: resp.Duration.Milliseconds(),
		Error:      resp.Error,
		Steps:      resp.Steps,
		Keys:       []string{},
	}
	if resp.Metrics != nil {
		rec.RecordCount = resp.Metrics.RecordCount
		rec.AverageLengthOfStayDays = resp.Metrics.AverageLengthOfStayDays
		rec.ReadmissionRatePercent = resp.Metrics.ReadmissionRatePercent
	}
	if resp.Report != nil {
		rec.RowsIn = resp.Report.RowsIn
		rec.RowsDropped = resp.Report.RowsDropped()
	}
	if resp.Published != nil {
		rec.Keys = append(rec.Keys, resp.Published.Keys...)
	}
	if rec.Steps == nil {
		rec.Steps = []operations.StepResult{}
	}
	return rec
}

// ListOptions filters List results
type ListOptions struct {
	Limit   int
	RunDate string
	Status  string
}

// Store persists run records in a SQL database
type Store struct {
	db      *sql.DB
	dialect dialect
	logger  *slog.Logger
}

// Open connects to the configured database and applies migrations
func Open(ctx context.Context, cfg config.HistoryConfig, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	d, err := dialectFor(cfg.Driver)
	if err != nil {
		return nil, apperrors.NewConfigError("unsupported history driver", err)
	}

	dsn := cfg.DSN
	if d.name == "sqlite" {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("create db directory: %w", err)
			}
		}
		if !strings.Contains(dsn, "?") {
			dsn += "?_journal_mode=WAL&_busy_timeout=5000"
		}
	}

	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.name, err)
	}
	if d.name == "sqlite" {
		// SQLite allows a single writer
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(10 * time.Minute)
	}

	s := &Store{
		db:      db,
		dialect: d,
		logger:  infrastructure.WithComponent(logger, "history"),
	}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	s.logger.InfoContext(ctx, "history_store_opened", slog.String("driver", d.name))
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.migrations {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Record stores the outcome of a run
func (s *Store) Record(ctx context.Context, resp *operations.RunResponse) error {
	if resp == nil {
		return errors.New("nil run response")
	}
	rec := FromResponse(resp)

	keys, err := json.Marshal(rec.Keys)
	if err != nil {
		return fmt.Errorf("encode keys: %w", err)
	}
	steps, err := json.Marshal(rec.Steps)
	if err != nil {
		return fmt.Errorf("encode steps: %w", err)
	}

	_, err = s.db.ExecContext(ctx, s.dialect.rebind(
		`INSERT INTO etl_runs (id, run_date, trigger_source, status, started_at, finished_at,
		 duration_ms, record_count, avg_length_of_stay, readmission_rate, rows_in, rows_dropped,
		 published_keys, error_message, steps_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		rec.ID, rec.RunDate, rec.Trigger, rec.Status,
		formatTime(rec.StartedAt), formatTime(rec.FinishedAt),
		rec.DurationMS, rec.RecordCount, rec.AverageLengthOfStayDays, rec.ReadmissionRatePercent,
		rec.RowsIn, rec.RowsDropped, string(keys), rec.Error, string(steps),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", rec.ID, err)
	}

	s.logger.DebugContext(ctx, "run_recorded",
		slog.String("run_id", rec.ID),
		slog.String("status", rec.Status))
	return nil
}

const selectColumns = `SELECT id, run_date, trigger_source, status, started_at, finished_at,
	duration_ms, record_count, avg_length_of_stay, readmission_rate, rows_in, rows_dropped,
	published_keys, error_message, steps_json FROM etl_runs`

// Get returns the run with the given ID
func (s *Store) Get(ctx context.Context, id string) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.rebind(selectColumns+` WHERE id = ?`), id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("run " + id)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// List returns runs newest first
func (s *Store) List(ctx context.Context, opts ListOptions) ([]RunRecord, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	var (
		where []string
		args  []interface{}
	)
	if opts.RunDate != "" {
		where = append(where, "run_date = ?")
		args = append(args, opts.RunDate)
	}
	if opts.Status != "" {
		where = append(where, "status = ?")
		args = append(args, opts.Status)
	}

	query := selectColumns
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	records := make([]RunRecord, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(sc scanner) (*RunRecord, error) {
	var (
		rec                 RunRecord
		started, finished   string
		keysJSON, stepsJSON string
	)
	err := sc.Scan(
		&rec.ID, &rec.RunDate, &rec.Trigger, &rec.Status, &started, &finished,
		&rec.DurationMS, &rec.RecordCount, &rec.AverageLengthOfStayDays, &rec.ReadmissionRatePercent,
		&rec.RowsIn, &rec.RowsDropped, &keysJSON, &rec.Error, &stepsJSON,
	)
	if err != nil {
		return nil, err
	}

	if rec.StartedAt, err = parseTime(started); err != nil {
		return nil, fmt.Errorf("run %s started_at: %w", rec.ID, err)
	}
	if rec.FinishedAt, err = parseTime(finished); err != nil {
		return nil, fmt.Errorf("run %s finished_at: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(keysJSON), &rec.Keys); err != nil {
		return nil, fmt.Errorf("run %s keys: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(stepsJSON), &rec.Steps); err != nil {
		return nil, fmt.Errorf("run %s steps: %w", rec.ID, err)
	}
	return &rec, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(timestampLayout, s)
}
