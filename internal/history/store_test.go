package history

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthetl/internal/config"
	apperrors "healthetl/internal/errors"
	"healthetl/internal/operations"
	"healthetl/internal/publish"
	"healthetl/internal/shared/testutil"
	"healthetl/pkg/contracts/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := config.HistoryConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "nested", "history.db"),
	}
	s, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func completedRun(id string, started time.Time) *operations.RunResponse {
	return &operations.RunResponse{
		ID:         id,
		RunDate:    "2024-03-15",
		Trigger:    operations.TriggerSchedule,
		Status:     operations.OperationStatusCompleted,
		StartedAt:  started,
		FinishedAt: started.Add(1500 * time.Millisecond),
		Duration:   1500 * time.Millisecond,
		Steps: []operations.StepResult{
			{ID: operations.StepIDLoad, Name: operations.StepNameLoad, Status: operations.StepStatusCompleted, DurationMS: 10},
			{ID: operations.StepIDPublish, Name: operations.StepNamePublish, Status: operations.StepStatusCompleted, DurationMS: 20},
		},
		Metrics: &domain.KPISummary{AverageLengthOfStayDays: 4, ReadmissionRatePercent: 50, RecordCount: 4},
		Report:  &domain.CleaningReport{RowsIn: 5, DroppedIncomplete: 1},
		Published: &publish.Published{
			Sink: "memory://",
			Keys: []string{
				"healthcare_data/processed/cleaned_data_2024-03-15.csv",
				"healthcare_data/metrics/kpi_summary_2024-03-15.json",
			},
		},
	}
}

func TestRecordAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	started := time.Date(2024, 3, 15, 2, 0, 0, 123456789, time.UTC)

	require.NoError(t, s.Record(ctx, completedRun("run-1", started)))

	rec, err := s.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-15", rec.RunDate)
	assert.Equal(t, "completed", rec.Status)
	assert.Equal(t, operations.TriggerSchedule, rec.Trigger)
	assert.True(t, rec.StartedAt.Equal(started))
	assert.Equal(t, int64(1500), rec.DurationMS)
	assert.Equal(t, 4, rec.RecordCount)
	assert.Equal(t, 4.0, rec.AverageLengthOfStayDays)
	assert.Equal(t, 50.0, rec.ReadmissionRatePercent)
	assert.Equal(t, 5, rec.RowsIn)
	assert.Equal(t, 1, rec.RowsDropped)
	assert.Len(t, rec.Keys, 2)
	require.Len(t, rec.Steps, 2)
	assert.Equal(t, operations.StepStatusCompleted, rec.Steps[1].Status)
}

func TestGetMissingRun(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Get(context.Background(), "nope")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrTypeNotFound, apperrors.TypeOf(err))
}

func TestListNewestFirstWithFilters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 15, 2, 0, 0, 0, time.UTC)

	require.NoError(t, s.Record(ctx, completedRun("first", base)))
	require.NoError(t, s.Record(ctx, completedRun("second", base.Add(time.Hour))))

	failed := completedRun("third", base.Add(2*time.Hour))
	failed.RunDate = "2024-03-16"
	failed.Status = operations.OperationStatusFailed
	failed.Error = "records failed validation"
	failed.Metrics, failed.Report, failed.Published = nil, nil, nil
	require.NoError(t, s.Record(ctx, failed))

	all, err := s.List(ctx, ListOptions{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"third", "second", "first"}, []string{all[0].ID, all[1].ID, all[2].ID})
	assert.Empty(t, all[0].Keys)
	assert.Equal(t, "records failed validation", all[0].Error)

	limited, err := s.List(ctx, ListOptions{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "third", limited[0].ID)

	byDate, err := s.List(ctx, ListOptions{RunDate: "2024-03-15"})
	require.NoError(t, err)
	assert.Len(t, byDate, 2)

	byStatus, err := s.List(ctx, ListOptions{Status: "failed"})
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	assert.Equal(t, "third", byStatus[0].ID)
}

func TestListEmpty(t *testing.T) {
	s := openTestStore(t)

	records, err := s.List(context.Background(), ListOptions{})
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestReopenKeepsRecords(t *testing.T) {
	cfg := config.HistoryConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "history.db")}
	ctx := context.Background()

	s, err := Open(ctx, cfg, nil)
	require.NoError(t, err)
	require.NoError(t, s.Record(ctx, completedRun("run-1", time.Now())))
	require.NoError(t, s.Close())

	s, err = Open(ctx, cfg, nil)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Get(ctx, "run-1")
	assert.NoError(t, err)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.HistoryConfig{Driver: "oracle", DSN: "x"}, nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrTypeConfig, apperrors.TypeOf(err))
}

func TestRebind(t *testing.T) {
	pg, err := dialectFor("postgres")
	require.NoError(t, err)
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2 LIMIT $3",
		pg.rebind("SELECT a FROM t WHERE x = ? AND y = ? LIMIT ?"))

	my, err := dialectFor("mysql")
	require.NoError(t, err)
	assert.Equal(t, "WHERE x = ?", my.rebind("WHERE x = ?"))
}

type stubRunner struct {
	resp *operations.RunResponse
	err  error
}

func (s stubRunner) Execute(context.Context, operations.RunRequest) (*operations.RunResponse, error) {
	return s.resp, s.err
}

func TestRecordingRunnerRecordsFailedRuns(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	resp := completedRun("failed-run", time.Now())
	resp.Status = operations.OperationStatusFailed
	runErr := errors.New("boom")

	got, err := s.Wrap(stubRunner{resp: resp, err: runErr}).Execute(ctx, operations.RunRequest{})
	assert.ErrorIs(t, err, runErr)
	assert.Same(t, resp, got)

	rec, err := s.Get(ctx, "failed-run")
	require.NoError(t, err)
	assert.Equal(t, "failed", rec.Status)
}

func TestRecordingRunnerSkipsRejectedRuns(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Wrap(stubRunner{err: operations.ErrRunInProgress}).Execute(context.Background(), operations.RunRequest{})
	assert.ErrorIs(t, err, operations.ErrRunInProgress)

	records, err := s.List(context.Background(), ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRecordingRunnerLogsRecordFailures(t *testing.T) {
	logger, capture := testutil.NewLogCapture()
	s, err := Open(context.Background(), config.HistoryConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "history.db"),
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	resp := completedRun("dup", time.Now())
	runner := s.Wrap(stubRunner{resp: resp})

	_, err = runner.Execute(context.Background(), operations.RunRequest{})
	require.NoError(t, err)
	got, err := runner.Execute(context.Background(), operations.RunRequest{})
	require.NoError(t, err, "a duplicate record must not fail the run")
	assert.Same(t, resp, got)

	rec := testutil.RequireLogged(t, capture, slog.LevelWarn, "run_record_failed")
	assert.Equal(t, "dup", rec.Attrs["run_id"])
	assert.Equal(t, "history", rec.Attrs["component"])
}
