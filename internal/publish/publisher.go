// Package publish writes the cleaned table and KPI summary of a run to a
// storage sink under date-stamped keys.
package publish

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"healthetl/internal/exporter"
	"healthetl/internal/storage"
	"healthetl/pkg/contracts/domain"
)

// DefaultNamespace prefixes every published key
const DefaultNamespace = "healthcare_data"

// DateLayout stamps keys with the run's calendar date
const DateLayout = "2006-01-02"

const (
	contentTypeCSV  = "text/csv"
	contentTypeJSON = "application/json"
)

// DataKey returns the key of the cleaned table for date
func DataKey(namespace string, date time.Time) string {
	return fmt.Sprintf("%s/processed/cleaned_data_%s.csv", namespace, date.Format(DateLayout))
}

// MetricsKey returns the key of the KPI summary for date
func MetricsKey(namespace string, date time.Time) string {
	return fmt.Sprintf("%s/metrics/kpi_summary_%s.json", namespace, date.Format(DateLayout))
}

// Published describes the objects written for a run
type Published struct {
	Sink  string   `json:"sink"`
	Keys  []string `json:"keys"`
	Bytes int      `json:"bytes"`
}

// Publisher serialises transform results and hands them to a sink
type Publisher struct {
	sink      storage.Sink
	namespace string
	logger    *slog.Logger
}

// NewPublisher creates a publisher writing below namespace
func NewPublisher(sink storage.Sink, namespace string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Publisher{sink: sink, namespace: namespace, logger: logger}
}

// WithSink returns a copy of the publisher writing to sink
func (p *Publisher) WithSink(sink storage.Sink) *Publisher {
	clone := *p
	clone.sink = sink
	return &clone
}

// Publish writes the table as CSV and the metrics as JSON for runDate,
// replacing objects from an earlier publish of the same date. A nil result
// performs no writes.
func (p *Publisher) Publish(ctx context.Context, result *domain.TransformResult, runDate time.Time) (*Published, error) {
	if result == nil || result.Table == nil {
		p.logger.WarnContext(ctx, "publish_skipped", slog.String("reason", "no transform result"))
		return nil, nil
	}

	table, err := exporter.EncodeTable(result.Table, exporter.TableOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to encode table: %w", err)
	}
	metrics, err := exporter.EncodeMetrics(result.Metrics)
	if err != nil {
		return nil, err
	}

	objects := []struct {
		key         string
		contentType string
		body        []byte
	}{
		{DataKey(p.namespace, runDate), contentTypeCSV, table},
		{MetricsKey(p.namespace, runDate), contentTypeJSON, metrics},
	}

	out := &Published{Sink: p.sink.Name()}
	for _, obj := range objects {
		if err := p.sink.Put(ctx, obj.key, obj.contentType, obj.body); err != nil {
			return out, fmt.Errorf("failed to publish %s: %w", obj.key, err)
		}
		out.Keys = append(out.Keys, obj.key)
		out.Bytes += len(obj.body)
	}

	p.logger.InfoContext(ctx, "publish_completed",
		slog.String("sink", out.Sink),
		slog.Any("keys", out.Keys),
		slog.Int("bytes", out.Bytes),
		slog.Int("record_count", result.Metrics.RecordCount))
	return out, nil
}
