package storage

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	gcs "google.golang.org/api/storage/v1"

	"healthetl/internal/config"
	apperrors "healthetl/internal/errors"
)

// GCSSink writes objects to a Google Cloud Storage bucket
type GCSSink struct {
	service *gcs.Service
	bucket  string
	timeout time.Duration
	logger  *slog.Logger
}

// NewGCSSink creates a sink for cfg.Bucket. Credentials come from
// cfg.CredentialsFile when set, otherwise from application default credentials.
func NewGCSSink(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger, extra ...option.ClientOption) (*GCSSink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Bucket == "" {
		return nil, apperrors.NewConfigError("gcs storage requires a bucket", nil)
	}

	opts := []option.ClientOption{option.WithScopes(gcs.DevstorageReadWriteScope)}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	opts = append(opts, extra...)

	service, err := gcs.NewService(ctx, opts...)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to create storage client", err)
	}

	return &GCSSink{
		service: service,
		bucket:  cfg.Bucket,
		timeout: cfg.Timeout,
		logger:  logger,
	}, nil
}

// Name returns the sink identifier
func (s *GCSSink) Name() string {
	return "gs://" + s.bucket
}

// Put uploads body as key. Inserting an existing name replaces the object.
func (s *GCSSink) Put(ctx context.Context, key, contentType string, body []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	obj := &gcs.Object{Name: key, ContentType: contentType}
	stored, err := s.service.Objects.Insert(s.bucket, obj).
		Media(bytes.NewReader(body), googleapi.ContentType(contentType)).
		Context(ctx).
		Do()
	if err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("failed to upload %s", key), err).
			WithContext("bucket", s.bucket).
			WithContext("key", key)
	}

	s.logger.DebugContext(ctx, "object_written",
		slog.String("sink", s.Name()),
		slog.String("key", key),
		slog.Int64("generation", stored.Generation),
		slog.Int("bytes", len(body)))
	return nil
}
