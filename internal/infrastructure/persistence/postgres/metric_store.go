package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dreschagin/reskpoints/internal/application/port"
	"github.com/dreschagin/reskpoints/internal/domain/entity"
	"github.com/dreschagin/reskpoints/internal/domain/repository"
	"github.com/dreschagin/reskpoints/internal/domain/valueobject"
)

const (
	insertMetric = `
		INSERT INTO ai_metrics (id, timestamp, metric_type, value, unit, provider, model_name, model_size,
			endpoint, user_id, project_id, session_id, request_id, tags)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT DO NOTHING
	`

	insertError = `
		INSERT INTO ai_errors (id, timestamp, severity, category, message, code, details, provider, model_name,
			endpoint, user_id, project_id, session_id, request_id, stack_trace, correlation_id, tags, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT DO NOTHING
	`

	selectModelMetrics = `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE metric_type = 'error_rate' AND value = 0),
			COUNT(*) FILTER (WHERE metric_type = 'error_rate' AND value > 0),
			COALESCE(AVG(value) FILTER (WHERE metric_type = 'latency'), 0),
			COALESCE(percentile_cont(0.50) WITHIN GROUP (ORDER BY value) FILTER (WHERE metric_type = 'latency'), 0),
			COALESCE(percentile_cont(0.95) WITHIN GROUP (ORDER BY value) FILTER (WHERE metric_type = 'latency'), 0),
			COALESCE(percentile_cont(0.99) WITHIN GROUP (ORDER BY value) FILTER (WHERE metric_type = 'latency'), 0),
			COALESCE(AVG(value) FILTER (WHERE metric_type = 'throughput'), 0),
			COALESCE(AVG(value) FILTER (WHERE metric_type = 'error_rate'), 0),
			COALESCE(SUM(value) FILTER (WHERE metric_type = 'cost'), 0),
			COALESCE(AVG(value) FILTER (WHERE metric_type = 'cost'), 0),
			COALESCE(SUM(value) FILTER (WHERE metric_type = 'token_usage'), 0),
			COALESCE(AVG(value) FILTER (WHERE metric_type = 'token_usage'), 0)
		FROM ai_metrics
		WHERE provider = $1 AND model_name = $2 AND timestamp >= $3 AND timestamp <= $4
	`
)

// MetricStore сохраняет пакеты ingestion в Timescale и строит отчеты по моделям
type MetricStore struct {
	db *sql.DB
}

var (
	_ port.MetricSink                   = (*MetricStore)(nil)
	_ repository.MetricReportRepository = (*MetricStore)(nil)
)

// NewMetricStore создает новый PostgreSQL store
func NewMetricStore(db *sql.DB) *MetricStore {
	return &MetricStore{db: db}
}

// FlushMetrics сохраняет пакет выборок одной транзакцией
func (s *MetricStore) FlushMetrics(ctx context.Context, batch []*entity.MetricSample) error {
	if len(batch) == 0 {
		return nil
	}

	return s.insertBatch(ctx, insertMetric, len(batch), func(i int) ([]interface{}, error) {
		return metricArgs(batch[i])
	})
}

// FlushErrors сохраняет пакет ошибок одной транзакцией
func (s *MetricStore) FlushErrors(ctx context.Context, batch []*entity.ErrorEvent) error {
	if len(batch) == 0 {
		return nil
	}

	return s.insertBatch(ctx, insertError, len(batch), func(i int) ([]interface{}, error) {
		return errorArgs(batch[i])
	})
}

func (s *MetricStore) insertBatch(ctx context.Context, query string, n int, args func(int) ([]interface{}, error)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		row, err := args(i)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return fmt.Errorf("failed to insert row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ModelMetrics агрегирует измерения модели за диапазон одним запросом
func (s *MetricStore) ModelMetrics(
	ctx context.Context,
	provider valueobject.Provider,
	model string,
	timeRange valueobject.TimeRange,
) (*entity.ModelMetricsReport, error) {
	report := &entity.ModelMetricsReport{
		Provider:    provider,
		ModelName:   model,
		WindowStart: timeRange.Start(),
		WindowEnd:   timeRange.End(),
	}

	err := s.db.QueryRowContext(ctx, selectModelMetrics,
		provider.String(),
		model,
		timeRange.Start(),
		timeRange.End(),
	).Scan(
		&report.TotalSamples,
		&report.SuccessfulRequests,
		&report.FailedRequests,
		&report.AvgLatency,
		&report.P50Latency,
		&report.P95Latency,
		&report.P99Latency,
		&report.AvgThroughput,
		&report.AvgErrorRate,
		&report.TotalCost,
		&report.AvgCost,
		&report.TotalTokens,
		&report.AvgTokens,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query model metrics: %w", err)
	}

	return report, nil
}

// Ping проверяет доступность базы для /readyz
func (s *MetricStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
