package port

import (
	"context"

	"github.com/dreschagin/reskpoints/internal/domain/entity"
)

// MetricSink принимает сброшенные пакеты из буфера ingestion (Port).
// Пустые пакеты должны обрабатываться как no-op.
type MetricSink interface {
	FlushMetrics(ctx context.Context, batch []*entity.MetricSample) error
	FlushErrors(ctx context.Context, batch []*entity.ErrorEvent) error
}

// ErrorObserver получает каждое принятое событие ошибки
type ErrorObserver interface {
	OnError(ctx context.Context, event *entity.ErrorEvent)
}
