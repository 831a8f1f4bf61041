package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	apperrors "healthetl/internal/errors"
)

// FileSink writes objects as files below a root directory
type FileSink struct {
	root   string
	logger *slog.Logger
}

// NewFileSink creates the root directory if needed
func NewFileSink(root string, logger *slog.Logger) (*FileSink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, apperrors.NewStorageError("failed to create output directory", err).WithContext("dir", root)
	}
	return &FileSink{root: root, logger: logger}, nil
}

// Name returns the sink identifier
func (s *FileSink) Name() string {
	return "file://" + filepath.ToSlash(s.root)
}

// Path returns the file path backing key
func (s *FileSink) Path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

// Put writes body to a temp file next to the target and renames it into place
func (s *FileSink) Put(ctx context.Context, key, contentType string, body []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	target := s.Path(key)
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return apperrors.NewStorageError("failed to create directory", err).WithContext("key", key)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return apperrors.NewStorageError("failed to create temp file", err).WithContext("key", key)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		cleanup()
		return apperrors.NewStorageError("failed to write object", err).WithContext("key", key)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return apperrors.NewStorageError("failed to sync object", err).WithContext("key", key)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return apperrors.NewStorageError("failed to close object", err).WithContext("key", key)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		cleanup()
		return apperrors.NewStorageError("failed to set permissions", err).WithContext("key", key)
	}
	if err := os.Rename(tmpName, target); err != nil {
		cleanup()
		return apperrors.NewStorageError(fmt.Sprintf("failed to replace %s", target), err).WithContext("key", key)
	}

	s.logger.DebugContext(ctx, "object_written",
		slog.String("sink", s.Name()),
		slog.String("key", key),
		slog.String("content_type", contentType),
		slog.Int("bytes", len(body)))
	return nil
}
