package testutil

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

// LogRecord is a captured log entry with its attributes flattened, including
// those bound through Logger.With
type LogRecord struct {
	Level   slog.Level
	Message string
	Attrs   map[string]any
}

// LogCapture is a slog.Handler that keeps every record in memory
type LogCapture struct {
	store *logStore
	attrs []slog.Attr
	group string
}

type logStore struct {
	mu      sync.Mutex
	records []LogRecord
}

// NewLogCapture returns a logger writing into a fresh capture
func NewLogCapture() (*slog.Logger, *LogCapture) {
	c := &LogCapture{store: &logStore{}}
	return slog.New(c), c
}

// Enabled captures every level
func (c *LogCapture) Enabled(context.Context, slog.Level) bool {
	return true
}

// Handle stores r
func (c *LogCapture) Handle(_ context.Context, r slog.Record) error {
	attrs := make(map[string]any, len(c.attrs)+r.NumAttrs())
	for _, a := range c.attrs {
		attrs[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		attrs[c.key(a.Key)] = a.Value.Any()
		return true
	})

	c.store.mu.Lock()
	c.store.records = append(c.store.records, LogRecord{Level: r.Level, Message: r.Message, Attrs: attrs})
	c.store.mu.Unlock()
	return nil
}

// WithAttrs returns a handler sharing the same store
func (c *LogCapture) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := &LogCapture{store: c.store, group: c.group}
	next.attrs = append(append(next.attrs, c.attrs...), attrs...)
	for i := len(c.attrs); i < len(next.attrs); i++ {
		next.attrs[i].Key = c.key(next.attrs[i].Key)
	}
	return next
}

// WithGroup prefixes later attribute keys with name
func (c *LogCapture) WithGroup(name string) slog.Handler {
	return &LogCapture{store: c.store, attrs: c.attrs, group: c.key(name)}
}

func (c *LogCapture) key(k string) string {
	if c.group == "" {
		return k
	}
	return c.group + "." + k
}

// Records returns a copy of everything captured so far
func (c *LogCapture) Records() []LogRecord {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	return append([]LogRecord(nil), c.store.records...)
}

// Find returns the first record whose message contains msg
func (c *LogCapture) Find(msg string) (LogRecord, bool) {
	for _, r := range c.Records() {
		if strings.Contains(r.Message, msg) {
			return r, true
		}
	}
	return LogRecord{}, false
}

// Count returns how many records carry exactly msg
func (c *LogCapture) Count(msg string) int {
	n := 0
	for _, r := range c.Records() {
		if r.Message == msg {
			n++
		}
	}
	return n
}

// RequireLogged fails the test unless a record with msg was captured at level
func RequireLogged(t testing.TB, c *LogCapture, level slog.Level, msg string) LogRecord {
	t.Helper()
	for _, r := range c.Records() {
		if r.Level == level && strings.Contains(r.Message, msg) {
			return r
		}
	}
	for _, r := range c.Records() {
		t.Logf("captured [%s] %s %v", r.Level, r.Message, r.Attrs)
	}
	t.Fatalf("no %s log containing %q", level, msg)
	return LogRecord{}
}

// AssertNoErrors fails the test if anything was logged at error level
func AssertNoErrors(t testing.TB, c *LogCapture) {
	t.Helper()
	for _, r := range c.Records() {
		if r.Level >= slog.LevelError {
			t.Errorf("unexpected error log: %s %v", r.Message, r.Attrs)
		}
	}
}
