package service

import (
	"errors"
	"sort"

	"github.com/dreschagin/reskpoints/internal/domain/entity"
	"github.com/dreschagin/reskpoints/internal/domain/valueobject"
)

// MetricAggregator предоставляет сервисы для агрегации измерений (Domain Service)
// Содержит бизнес-логику, которая не принадлежит одной конкретной сущности
type MetricAggregator struct{}

// NewMetricAggregator создает новый MetricAggregator
func NewMetricAggregator() *MetricAggregator {
	return &MetricAggregator{}
}

// CalculateAverage вычисляет среднее значение измерений
func (a *MetricAggregator) CalculateAverage(samples []*entity.MetricSample) (float64, error) {
	if len(samples) == 0 {
		return 0, errors.New("no metrics to aggregate")
	}

	var sum float64
	for _, s := range samples {
		sum += s.Value().Raw()
	}

	return sum / float64(len(samples)), nil
}

// CalculateSum вычисляет сумму значений
func (a *MetricAggregator) CalculateSum(samples []*entity.MetricSample) float64 {
	var sum float64
	for _, s := range samples {
		sum += s.Value().Raw()
	}
	return sum
}

// FilterByType оставляет измерения заданного типа
func (a *MetricAggregator) FilterByType(samples []*entity.MetricSample, metricType valueobject.MetricType) []*entity.MetricSample {
	var out []*entity.MetricSample
	for _, s := range samples {
		if s.Type() == metricType {
			out = append(out, s)
		}
	}
	return out
}

// SortByValue сортирует измерения по значению
func (a *MetricAggregator) SortByValue(samples []*entity.MetricSample, descending bool) []*entity.MetricSample {
	sorted := make([]*entity.MetricSample, len(samples))
	copy(sorted, samples)

	sort.Slice(sorted, func(i, j int) bool {
		if descending {
			return sorted[i].Value().Raw() > sorted[j].Value().Raw()
		}
		return sorted[i].Value().Raw() < sorted[j].Value().Raw()
	})

	return sorted
}

// CalculatePercentile вычисляет процентиль (0-100) с линейной интерполяцией
func (a *MetricAggregator) CalculatePercentile(samples []*entity.MetricSample, p float64) (float64, error) {
	if len(samples) == 0 {
		return 0, errors.New("no metrics to aggregate")
	}

	if p < 0 || p > 100 {
		return 0, errors.New("percentile must be between 0 and 100")
	}

	values := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = s.Value().Raw()
	}

	return percentile(values, p/100), nil
}

// BuildModelReport строит отчет по измерениям одной модели.
// Успешные и неуспешные запросы считаются по error_rate: 0 - успех, >0 - ошибка.
func (a *MetricAggregator) BuildModelReport(report *entity.ModelMetricsReport, samples []*entity.MetricSample) {
	report.TotalSamples = int64(len(samples))

	for _, s := range a.FilterByType(samples, valueobject.ErrorRate) {
		if s.Value().Raw() == 0 {
			report.SuccessfulRequests++
		} else {
			report.FailedRequests++
		}
	}

	latency := a.FilterByType(samples, valueobject.Latency)
	report.AvgLatency, _ = a.CalculateAverage(latency)
	report.P50Latency, _ = a.CalculatePercentile(latency, 50)
	report.P95Latency, _ = a.CalculatePercentile(latency, 95)
	report.P99Latency, _ = a.CalculatePercentile(latency, 99)

	report.AvgThroughput, _ = a.CalculateAverage(a.FilterByType(samples, valueobject.Throughput))
	report.AvgErrorRate, _ = a.CalculateAverage(a.FilterByType(samples, valueobject.ErrorRate))

	cost := a.FilterByType(samples, valueobject.Cost)
	report.TotalCost = a.CalculateSum(cost)
	report.AvgCost, _ = a.CalculateAverage(cost)

	tokens := a.FilterByType(samples, valueobject.TokenUsage)
	report.TotalTokens = a.CalculateSum(tokens)
	report.AvgTokens, _ = a.CalculateAverage(tokens)
}
