package operations_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthetl/internal/operations"
	"healthetl/internal/operations/testutil"
)

func TestStatusBroadcasterLifecycle(t *testing.T) {
	hub := &testutil.MockEventHub{}
	sb := operations.NewStatusBroadcaster(hub, nil)
	defer sb.Stop()

	steps := []operations.Step{
		testutil.CreateSuccessfulStage("load"),
		testutil.CreateSuccessfulStage("publish", "load"),
	}
	sb.CreateRun("run-1", "2024-03-15", steps)
	sb.StartRun("run-1")
	sb.StartStep("run-1", "load")

	snapshot, ok := sb.GetSnapshot("run-1")
	require.True(t, ok)
	assert.Equal(t, "running", snapshot.Status)
	assert.Equal(t, "load", snapshot.CurrentStep)
	assert.Equal(t, "2024-03-15", snapshot.RunDate)

	sb.CompleteStep("run-1", "load", map[string]interface{}{"rows": 5})
	sb.SkipStep("run-1", "publish", "no input")
	sb.FinishRun("run-1", operations.OperationStatusSkipped, "Run finished without input")

	snapshot, ok = sb.GetSnapshot("run-1")
	require.True(t, ok)
	assert.Equal(t, "skipped", snapshot.Status)
	assert.Equal(t, 100, snapshot.Progress)
	assert.NotNil(t, snapshot.CompletedAt)
	assert.Equal(t, "completed", snapshot.Steps[0].Status)
	assert.Equal(t, 5, snapshot.Steps[0].Metadata["rows"])
	assert.Equal(t, "no input", snapshot.Steps[1].Message)

	last, ok := hub.Last()
	require.True(t, ok)
	assert.Equal(t, operations.EventTypeRunComplete, last.Type)
	assert.Equal(t, "run-1", last.Step)

	latest, ok := sb.Latest()
	require.True(t, ok)
	assert.Equal(t, "run-1", latest.RunID)
}

func TestStatusBroadcasterFailure(t *testing.T) {
	hub := &testutil.MockEventHub{}
	sb := operations.NewStatusBroadcaster(hub, nil)
	defer sb.Stop()

	sb.CreateRun("run-2", "2024-03-15", []operations.Step{testutil.CreateSuccessfulStage("validate")})
	sb.FailStep("run-2", "validate", errors.New("age out of range"))
	sb.FailRun("run-2", operations.OperationStatusFailed, errors.New("validation failed"))

	snapshot, _ := sb.GetSnapshot("run-2")
	assert.Equal(t, "failed", snapshot.Status)
	assert.Equal(t, "validation failed", snapshot.Error)
	assert.Equal(t, "age out of range", snapshot.Steps[0].Error)
	assert.Equal(t, 1, hub.Count(operations.EventTypeRunError))
}

func TestStatusBroadcasterSnapshotIsACopy(t *testing.T) {
	sb := operations.NewStatusBroadcaster(nil, nil)
	defer sb.Stop()

	sb.CreateRun("run-3", "2024-03-15", []operations.Step{testutil.CreateSuccessfulStage("load")})
	snapshot, _ := sb.GetSnapshot("run-3")
	snapshot.Steps[0].Status = "tampered"

	again, _ := sb.GetSnapshot("run-3")
	assert.Equal(t, "pending", again.Steps[0].Status)
}

func TestStatusBroadcasterCleanup(t *testing.T) {
	sb := operations.NewStatusBroadcaster(nil, nil)
	defer sb.Stop()

	sb.CreateRun("old", "2024-03-14", nil)
	sb.FinishRun("old", operations.OperationStatusCompleted, "done")
	sb.CreateRun("active", "2024-03-15", nil)
	sb.StartRun("active")

	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, 1, sb.CleanupOldRuns(time.Millisecond))

	_, ok := sb.GetSnapshot("old")
	assert.False(t, ok)
	_, ok = sb.GetSnapshot("active")
	assert.True(t, ok)
}

func TestStatusBroadcasterStopIsSafe(t *testing.T) {
	sb := operations.NewStatusBroadcaster(nil, nil)
	sb.Stop()
	sb.Stop()

	done := make(chan struct{})
	go func() {
		sb.StartRun("after-stop")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("update after Stop blocked")
	}
}
