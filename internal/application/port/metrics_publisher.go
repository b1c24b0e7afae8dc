package port

import (
	"context"

	"github.com/dreschagin/reskpoints/internal/domain/entity"
)

// MetricsPublisher defines the interface for publishing AI usage samples to external observability platforms.
type MetricsPublisher interface {
	// PublishBatch publishes multiple samples in a single operation.
	// Implementations should handle batching constraints (e.g., CloudWatch's 1000 metrics/request limit).
	PublishBatch(ctx context.Context, samples []*entity.MetricSample) error

	// PublishSingle publishes a single sample immediately.
	PublishSingle(ctx context.Context, sample *entity.MetricSample) error

	// Flush forces immediate publication of any buffered samples.
	Flush(ctx context.Context) error
}
