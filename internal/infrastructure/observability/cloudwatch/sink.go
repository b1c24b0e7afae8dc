package cloudwatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/dreschagin/reskpoints/internal/application/port"
	"github.com/dreschagin/reskpoints/internal/domain/entity"
)

// Sink отправляет пакеты ingestion в CloudWatch: выборки как метрики, ошибки как структурированные логи.
type Sink struct {
	metrics port.MetricsPublisher
	logs    port.LogPublisher
}

var _ port.MetricSink = (*Sink)(nil)

// NewSink создает sink. Любой из издателей может быть nil.
func NewSink(metrics port.MetricsPublisher, logs port.LogPublisher) *Sink {
	return &Sink{metrics: metrics, logs: logs}
}

// FlushMetrics публикует пакет и сразу сбрасывает буфер издателя
func (s *Sink) FlushMetrics(ctx context.Context, batch []*entity.MetricSample) error {
	if s.metrics == nil || len(batch) == 0 {
		return nil
	}
	if err := s.metrics.PublishBatch(ctx, batch); err != nil {
		return fmt.Errorf("cloudwatch metrics: %w", err)
	}
	if err := s.metrics.Flush(ctx); err != nil {
		return fmt.Errorf("cloudwatch metrics: %w", err)
	}
	return nil
}

// FlushErrors публикует события ошибок в CloudWatch Logs
func (s *Sink) FlushErrors(ctx context.Context, batch []*entity.ErrorEvent) error {
	if s.logs == nil || len(batch) == 0 {
		return nil
	}

	entries := make([]port.LogEntry, 0, len(batch))
	for _, e := range batch {
		entries = append(entries, ErrorLogEntry(e))
	}

	return errors.Join(
		wrapLogs(s.logs.PublishBatch(ctx, entries)),
		wrapLogs(s.logs.Flush(ctx)),
	)
}

func wrapLogs(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("cloudwatch logs: %w", err)
}

// ErrorLogEntry преобразует событие ошибки в запись лога; уровень выводится из severity.
func ErrorLogEntry(e *entity.ErrorEvent) port.LogEntry {
	fields := map[string]interface{}{
		"error_id": e.ID,
		"severity": e.Severity.String(),
		"category": e.Category.String(),
		"provider": e.Provider.String(),
		"model":    e.ModelName,
	}
	if e.Code != "" {
		fields["code"] = e.Code
	}
	if e.Endpoint != "" {
		fields["endpoint"] = e.Endpoint
	}
	if e.RequestID != "" {
		fields["request_id"] = e.RequestID
	}
	if e.CorrelationID != "" {
		fields["correlation_id"] = e.CorrelationID
	}
	if len(e.Tags) > 0 {
		fields["tags"] = e.Tags
	}
	if len(e.Metadata) > 0 {
		fields["metadata"] = e.Metadata
	}

	return port.LogEntry{
		Timestamp: e.Timestamp,
		Level:     port.LevelForSeverity(e.Severity),
		Message:   e.Message,
		Fields:    fields,
	}
}
