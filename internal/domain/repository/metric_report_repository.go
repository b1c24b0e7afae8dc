package repository

import (
	"context"

	"github.com/dreschagin/reskpoints/internal/domain/entity"
	"github.com/dreschagin/reskpoints/internal/domain/valueobject"
)

// MetricReportRepository строит отчеты по сохраненным измерениям (Port)
type MetricReportRepository interface {
	// ModelMetrics возвращает сводку по модели за диапазон времени
	ModelMetrics(
		ctx context.Context,
		provider valueobject.Provider,
		model string,
		timeRange valueobject.TimeRange,
	) (*entity.ModelMetricsReport, error)
}
