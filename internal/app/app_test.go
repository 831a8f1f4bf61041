package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthetl/internal/config"
	"healthetl/internal/history"
	"healthetl/internal/operations"
	"healthetl/internal/operations/testutil"
	"healthetl/internal/publish"
	"healthetl/internal/storage"
)

func testConfig(t *testing.T, source string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Pipeline.SourcePath = source
	cfg.Storage.Backend = "memory"
	cfg.History.DSN = filepath.Join(t.TempDir(), "history.db")
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Server.RateLimit.Enabled = false
	cfg.Server.ShutdownTimeout = 5 * time.Second
	cfg.Schedule.Retry.MaxAttempts = 1
	cfg.Telemetry.MetricExporter = "none"
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config) (*Application, *storage.MemorySink) {
	t.Helper()
	sink := storage.NewMemorySink()
	a, err := NewWithConfig(context.Background(), cfg, nil, WithSink(sink))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close(context.Background()) })
	return a, sink
}

func TestRunOncePublishesAndRecords(t *testing.T) {
	cfg := testConfig(t, testutil.WriteSource(t, testutil.SourceCSV))
	a, sink := newTestApp(t, cfg)

	resp, err := a.RunOnce(context.Background(), testutil.RunDate, false)
	require.NoError(t, err)
	assert.Equal(t, operations.OperationStatusCompleted, resp.Status)
	assert.Equal(t, "2024-03-15", resp.RunDate)
	assert.Equal(t, operations.TriggerCLI, resp.Trigger)

	_, ok := sink.Get(publish.DataKey(cfg.Pipeline.Namespace, testutil.RunDate))
	assert.True(t, ok)
	_, ok = sink.Get(publish.MetricsKey(cfg.Pipeline.Namespace, testutil.RunDate))
	assert.True(t, ok)

	runs, err := a.History.List(context.Background(), history.ListOptions{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, resp.ID, runs[0].ID)
	assert.Equal(t, "completed", runs[0].Status)
}

func TestRunOnceDryRunWritesNothing(t *testing.T) {
	cfg := testConfig(t, testutil.WriteSource(t, testutil.SourceCSV))
	a, sink := newTestApp(t, cfg)

	resp, err := a.RunOnce(context.Background(), testutil.RunDate, true)
	require.NoError(t, err)
	assert.Equal(t, operations.OperationStatusCompleted, resp.Status)
	assert.Empty(t, sink.Keys())
}

func TestRunOnceMissingSourceIsSkipped(t *testing.T) {
	cfg := testConfig(t, testutil.MissingSource(t))
	a, sink := newTestApp(t, cfg)

	resp, err := a.RunOnce(context.Background(), testutil.RunDate, false)
	require.NoError(t, err)
	assert.Equal(t, operations.OperationStatusSkipped, resp.Status)
	assert.Empty(t, sink.Keys())
}

func TestRunOnceWithoutHistory(t *testing.T) {
	cfg := testConfig(t, testutil.WriteSource(t, testutil.SourceCSV))
	cfg.History.Driver = ""
	a, _ := newTestApp(t, cfg)

	assert.Nil(t, a.History)
	_, err := a.RunOnce(context.Background(), testutil.RunDate, false)
	require.NoError(t, err)

	status := a.HealthService.HealthCheck(context.Background())
	assert.Equal(t, "disabled", status.Services["history"].Status)
}

func TestAdminAPIRunsSynchronously(t *testing.T) {
	cfg := testConfig(t, testutil.WriteSource(t, testutil.SourceCSV))
	a, sink := newTestApp(t, cfg)
	require.NotNil(t, a.Server)
	handler := a.Server.Handler

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/runs?wait=true", nil)
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp operations.RunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, operations.OperationStatusCompleted, resp.Status)
	assert.Equal(t, operations.TriggerManual, resp.Trigger)
	assert.Len(t, sink.Keys(), 2)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/"+resp.ID, nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Count)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServeStopsOnCancel(t *testing.T) {
	cfg := testConfig(t, testutil.WriteSource(t, testutil.SourceCSV))
	cfg.Schedule.WatchSource = true
	a, _ := newTestApp(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestNewRejectsBadSchedule(t *testing.T) {
	cfg := testConfig(t, testutil.WriteSource(t, testutil.SourceCSV))
	cfg.Schedule.Spec = "every so often"

	_, err := NewWithConfig(context.Background(), cfg, nil, WithSink(storage.NewMemorySink()))
	assert.ErrorContains(t, err, "scheduler")
}
