package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dreschagin/reskpoints/internal/application/dto"
	"github.com/dreschagin/reskpoints/internal/application/port"
	"github.com/dreschagin/reskpoints/internal/domain/entity"
	"github.com/dreschagin/reskpoints/internal/domain/repository"
	"github.com/dreschagin/reskpoints/internal/domain/valueobject"
	"github.com/dreschagin/reskpoints/pkg/logger"
)

// DefaultModelMetricsWindow - окно отчета по умолчанию
const DefaultModelMetricsWindow = 24 * time.Hour

// ModelMetricsCacheKey возвращает ключ кеша отчета по модели
func ModelMetricsCacheKey(provider valueobject.Provider, model string, window time.Duration) string {
	key := fmt.Sprintf("model_metrics:%s:%s", provider, model)
	if window != DefaultModelMetricsWindow {
		key += ":" + window.String()
	}
	return key
}

// GetModelMetricsUseCase возвращает сводку по модели с кешированием (cache-aside)
type GetModelMetricsUseCase struct {
	repository repository.MetricReportRepository
	cache      port.Cache
	cacheTTL   time.Duration
	clock      port.Clock
	logger     *logger.Logger
}

// NewGetModelMetricsUseCase создает новый use case с кешированием
func NewGetModelMetricsUseCase(
	repository repository.MetricReportRepository,
	cache port.Cache,
	cacheTTL time.Duration,
	clock port.Clock,
	logger *logger.Logger,
) *GetModelMetricsUseCase {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	if clock == nil {
		clock = port.SystemClock{}
	}
	return &GetModelMetricsUseCase{
		repository: repository,
		cache:      cache,
		cacheTTL:   cacheTTL,
		clock:      clock,
		logger:     logger,
	}
}

// Execute возвращает отчет по модели за window.
// Если хранилище недоступно, возвращается пустой отчет.
func (uc *GetModelMetricsUseCase) Execute(
	ctx context.Context,
	provider valueobject.Provider,
	model string,
	window time.Duration,
) (*dto.ModelMetricsDTO, error) {
	if window <= 0 {
		window = DefaultModelMetricsWindow
	}

	timeRange, err := valueobject.NewTimeRangeEndingAt(uc.clock.Now(), window)
	if err != nil {
		return nil, fmt.Errorf("invalid window: %w", err)
	}

	// Если кеш не настроен, используем стандартный путь
	if uc.cache == nil {
		return uc.executeWithoutCache(ctx, provider, model, timeRange), nil
	}

	cacheKey := ModelMetricsCacheKey(provider, model, window)

	var cached dto.ModelMetricsDTO
	err = uc.cache.Get(ctx, cacheKey, &cached)
	if err == nil {
		uc.logger.Debug("Cache hit for model metrics", "provider", provider.String(), "model", model)
		return &cached, nil
	}
	if !errors.Is(err, port.ErrCacheMiss) {
		uc.logger.Warn("Model metrics cache read failed", "error", err)
	}

	// Cache miss - получаем из хранилища
	report := uc.executeWithoutCache(ctx, provider, model, timeRange)

	if err := uc.cache.SetWithTTL(ctx, cacheKey, report, uc.cacheTTL); err != nil {
		uc.logger.Warn("Failed to cache model metrics", "error", err)
	}

	return report, nil
}

// executeWithoutCache строит отчет без кеширования
func (uc *GetModelMetricsUseCase) executeWithoutCache(
	ctx context.Context,
	provider valueobject.Provider,
	model string,
	timeRange valueobject.TimeRange,
) *dto.ModelMetricsDTO {
	empty := &entity.ModelMetricsReport{
		Provider:    provider,
		ModelName:   model,
		WindowStart: timeRange.Start(),
		WindowEnd:   timeRange.End(),
	}

	if uc.repository == nil {
		return dto.FromModelReport(empty)
	}

	report, err := uc.repository.ModelMetrics(ctx, provider, model, timeRange)
	if err != nil {
		uc.logger.Error("Failed to fetch model metrics", err,
			"provider", provider.String(),
			"model", model,
		)
		return dto.FromModelReport(empty)
	}

	return dto.FromModelReport(report)
}
