package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startWatcher(t *testing.T, path string, debounce time.Duration) *atomic.Int32 {
	t.Helper()
	var fired atomic.Int32
	w, err := NewSourceWatcher(path, debounce, func(context.Context) {
		fired.Add(1)
	}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return &fired
}

func TestSourceWatcherTriggersOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "patients.csv")
	require.NoError(t, os.WriteFile(path, []byte("a\n"), 0o644))

	fired := startWatcher(t, path, 20*time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("a\nb\n"), 0o644))
	assert.Eventually(t, func() bool { return fired.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestSourceWatcherDebouncesBursts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "patients.csv")

	fired := startWatcher(t, path, 200*time.Millisecond)

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte{byte('a' + i), '\n'}, 0o644))
	}
	assert.Eventually(t, func() bool { return fired.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
}

func TestSourceWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "patients.csv")

	fired := startWatcher(t, path, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.csv"), []byte("x\n"), 0o644))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}

func TestNewSourceWatcherMissingDirectory(t *testing.T) {
	_, err := NewSourceWatcher(filepath.Join(t.TempDir(), "missing", "patients.csv"), 0, func(context.Context) {}, nil)
	assert.Error(t, err)
}
