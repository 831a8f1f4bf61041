package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"google.golang.org/api/googleapi"

	"healthetl/internal/config"
	apperrors "healthetl/internal/errors"
)

// ErrInvalidKey reports a key that cannot name an object
var ErrInvalidKey = errors.New("invalid object key")

// Sink stores objects under slash-separated keys
type Sink interface {
	// Put writes body under key, replacing any existing object
	Put(ctx context.Context, key, contentType string, body []byte) error
	// Name identifies the sink in logs and run records
	Name() string
}

// New builds the sink selected by cfg.Backend
func New(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (Sink, error) {
	switch cfg.Backend {
	case "file":
		return NewFileSink(cfg.Dir, logger)
	case "gcs":
		return NewGCSSink(ctx, cfg, logger)
	case "memory":
		return NewMemorySink(), nil
	default:
		return nil, apperrors.NewConfigError(fmt.Sprintf("unknown storage backend %q", cfg.Backend), nil)
	}
}

// ValidateKey rejects empty, absolute and parent-relative keys
func ValidateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	if path.Clean(key) != key {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." || part == "." {
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return nil
}

// IsRetryable reports whether a failed Put may succeed when repeated
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, ErrInvalidKey) || errors.Is(err, context.Canceled) {
		return false
	}
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return gErr.Code == http.StatusRequestTimeout ||
			gErr.Code == http.StatusTooManyRequests ||
			gErr.Code >= http.StatusInternalServerError
	}
	return apperrors.IsStorage(err)
}
