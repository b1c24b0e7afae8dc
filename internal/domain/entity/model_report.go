package entity

import (
	"time"

	"github.com/dreschagin/reskpoints/internal/domain/valueobject"
)

// ModelMetricsReport - сводка измерений одной модели за окно времени
type ModelMetricsReport struct {
	Provider           valueobject.Provider
	ModelName          string
	WindowStart        time.Time
	WindowEnd          time.Time
	TotalSamples       int64
	SuccessfulRequests int64
	FailedRequests     int64
	AvgLatency         float64
	P50Latency         float64
	P95Latency         float64
	P99Latency         float64
	AvgThroughput      float64
	AvgErrorRate       float64
	TotalCost          float64
	AvgCost            float64
	TotalTokens        float64
	AvgTokens          float64
}

// IsEmpty сообщает, что за окно не было ни одного измерения
func (r *ModelMetricsReport) IsEmpty() bool {
	return r == nil || r.TotalSamples == 0
}
