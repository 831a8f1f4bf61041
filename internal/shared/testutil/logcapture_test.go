package testutil

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogCaptureKeepsBoundAttrs(t *testing.T) {
	logger, capture := NewLogCapture()

	logger.With(slog.String("component", "history")).
		Warn("run_record_failed", slog.String("run_id", "r1"))
	logger.WithGroup("http").Info("request completed", slog.Int("status", 200))

	rec := RequireLogged(t, capture, slog.LevelWarn, "run_record_failed")
	assert.Equal(t, "history", rec.Attrs["component"])
	assert.Equal(t, "r1", rec.Attrs["run_id"])

	rec, ok := capture.Find("request completed")
	assert.True(t, ok)
	assert.EqualValues(t, 200, rec.Attrs["http.status"])
	assert.Len(t, capture.Records(), 2)
}

func TestLogCaptureCountAndErrors(t *testing.T) {
	logger, capture := NewLogCapture()
	logger.Info("tick")
	logger.Info("tick")
	logger.Debug("tock")

	assert.Equal(t, 2, capture.Count("tick"))
	assert.Equal(t, 0, capture.Count("tic"))
	AssertNoErrors(t, capture)
}
