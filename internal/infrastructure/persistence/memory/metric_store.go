package memory

import (
	"context"
	"sync"

	"github.com/dreschagin/reskpoints/internal/application/port"
	"github.com/dreschagin/reskpoints/internal/domain/entity"
	"github.com/dreschagin/reskpoints/internal/domain/repository"
	"github.com/dreschagin/reskpoints/internal/domain/service"
	"github.com/dreschagin/reskpoints/internal/domain/valueobject"
)

// DefaultMaxSamples ограничивает объем хранимых выборок
const DefaultMaxSamples = 100000

// MetricStore хранит сброшенные выборки в памяти и строит отчеты через MetricAggregator.
// При переполнении вытесняются самые старые выборки. Ошибки только подсчитываются.
type MetricStore struct {
	mu         sync.RWMutex
	samples    []*entity.MetricSample
	maxSamples int
	errorCount int
	aggregator *service.MetricAggregator
}

var (
	_ port.MetricSink                   = (*MetricStore)(nil)
	_ repository.MetricReportRepository = (*MetricStore)(nil)
)

func NewMetricStore(maxSamples int) *MetricStore {
	if maxSamples <= 0 {
		maxSamples = DefaultMaxSamples
	}
	return &MetricStore{
		maxSamples: maxSamples,
		aggregator: service.NewMetricAggregator(),
	}
}

func (s *MetricStore) FlushMetrics(_ context.Context, batch []*entity.MetricSample) error {
	if len(batch) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.samples = append(s.samples, batch...)
	if over := len(s.samples) - s.maxSamples; over > 0 {
		s.samples = append([]*entity.MetricSample(nil), s.samples[over:]...)
	}
	return nil
}

func (s *MetricStore) FlushErrors(_ context.Context, batch []*entity.ErrorEvent) error {
	s.mu.Lock()
	s.errorCount += len(batch)
	s.mu.Unlock()
	return nil
}

// ModelMetrics строит отчет по выборкам модели, попавшим в диапазон
func (s *MetricStore) ModelMetrics(
	_ context.Context,
	provider valueobject.Provider,
	model string,
	timeRange valueobject.TimeRange,
) (*entity.ModelMetricsReport, error) {
	s.mu.RLock()
	var matched []*entity.MetricSample
	for _, m := range s.samples {
		if m.Provider() == provider && m.ModelName() == model && timeRange.Contains(m.Timestamp()) {
			matched = append(matched, m)
		}
	}
	s.mu.RUnlock()

	report := &entity.ModelMetricsReport{
		Provider:    provider,
		ModelName:   model,
		WindowStart: timeRange.Start(),
		WindowEnd:   timeRange.End(),
	}
	s.aggregator.BuildModelReport(report, matched)
	return report, nil
}

// Stats возвращает число хранимых выборок и принятых ошибок
func (s *MetricStore) Stats() (samples, errors int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.samples), s.errorCount
}
