package storage

import (
	"context"
	"sort"
	"sync"
)

// Object is a stored body with its content type
type Object struct {
	ContentType string
	Body        []byte
}

// MemorySink keeps objects in memory and counts writes
type MemorySink struct {
	mu      sync.RWMutex
	objects map[string]Object
	writes  int
}

// NewMemorySink creates an empty sink
func NewMemorySink() *MemorySink {
	return &MemorySink{objects: make(map[string]Object)}
}

// Name returns the sink identifier
func (s *MemorySink) Name() string {
	return "memory://"
}

// Put stores a copy of body under key
func (s *MemorySink) Put(ctx context.Context, key, contentType string, body []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = Object{ContentType: contentType, Body: append([]byte(nil), body...)}
	s.writes++
	return nil
}

// Get returns the object stored under key
func (s *MemorySink) Get(key string) (Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	return obj, ok
}

// Keys returns the stored keys in lexical order
func (s *MemorySink) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Writes returns the number of successful Put calls
func (s *MemorySink) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}
