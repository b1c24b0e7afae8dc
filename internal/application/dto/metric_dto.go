package dto

import (
	"time"

	"github.com/dreschagin/reskpoints/internal/domain/entity"
)

// MetricRequest - входящее измерение от клиента
type MetricRequest struct {
	Timestamp  *time.Time        `json:"timestamp,omitempty"`
	MetricType string            `json:"metric_type"`
	Value      float64           `json:"value"`
	Unit       string            `json:"unit"`
	Provider   string            `json:"provider"`
	ModelName  string            `json:"model_name"`
	ModelSize  string            `json:"model_size,omitempty"`
	Endpoint   string            `json:"endpoint,omitempty"`
	UserID     string            `json:"user_id,omitempty"`
	ProjectID  string            `json:"project_id,omitempty"`
	SessionID  string            `json:"session_id,omitempty"`
	RequestID  string            `json:"request_id,omitempty"`
	Tags       map[string]string `json:"tags,omitempty"`
}

// MetricBatchRequest - пакет измерений
type MetricBatchRequest struct {
	Metrics []MetricRequest `json:"metrics"`
}

// MetricDTO представляет измерение для передачи между слоями
type MetricDTO struct {
	ID         string            `json:"id"`
	Timestamp  time.Time         `json:"timestamp"`
	MetricType string            `json:"metric_type"`
	Value      float64           `json:"value"`
	Unit       string            `json:"unit"`
	Provider   string            `json:"provider"`
	ModelName  string            `json:"model_name"`
	Endpoint   string            `json:"endpoint,omitempty"`
	Tags       map[string]string `json:"tags,omitempty"`
}

// FromEntity конвертирует Domain Entity в DTO
func FromEntity(sample *entity.MetricSample) *MetricDTO {
	return &MetricDTO{
		ID:         sample.ID(),
		Timestamp:  sample.Timestamp(),
		MetricType: sample.Type().String(),
		Value:      sample.Value().Raw(),
		Unit:       sample.Value().Unit(),
		Provider:   sample.Provider().String(),
		ModelName:  sample.ModelName(),
		Endpoint:   sample.Endpoint(),
		Tags:       sample.Tags(),
	}
}

// ToMetricDTOs конвертирует слайс Entity в слайс DTO
func ToMetricDTOs(samples []*entity.MetricSample) []*MetricDTO {
	dtos := make([]*MetricDTO, len(samples))
	for i, s := range samples {
		dtos[i] = FromEntity(s)
	}
	return dtos
}

// SubmissionDTO - ответ на прием измерений или ошибок
type SubmissionDTO struct {
	Accepted int      `json:"accepted"`
	IDs      []string `json:"ids"`
}

// ModelMetricsDTO - отчет по модели за окно времени
type ModelMetricsDTO struct {
	Provider           string    `json:"provider"`
	ModelName          string    `json:"model_name"`
	WindowStart        time.Time `json:"window_start"`
	WindowEnd          time.Time `json:"window_end"`
	TotalSamples       int64     `json:"total_samples"`
	SuccessfulRequests int64     `json:"successful_requests"`
	FailedRequests     int64     `json:"failed_requests"`
	AvgLatency         float64   `json:"avg_latency"`
	P50Latency         float64   `json:"p50_latency"`
	P95Latency         float64   `json:"p95_latency"`
	P99Latency         float64   `json:"p99_latency"`
	AvgThroughput      float64   `json:"avg_throughput"`
	AvgErrorRate       float64   `json:"avg_error_rate"`
	TotalCost          float64   `json:"total_cost"`
	AvgCost            float64   `json:"avg_cost"`
	TotalTokens        float64   `json:"total_tokens"`
	AvgTokens          float64   `json:"avg_tokens"`
}

// FromModelReport конвертирует отчет в DTO
func FromModelReport(r *entity.ModelMetricsReport) *ModelMetricsDTO {
	return &ModelMetricsDTO{
		Provider:           r.Provider.String(),
		ModelName:          r.ModelName,
		WindowStart:        r.WindowStart,
		WindowEnd:          r.WindowEnd,
		TotalSamples:       r.TotalSamples,
		SuccessfulRequests: r.SuccessfulRequests,
		FailedRequests:     r.FailedRequests,
		AvgLatency:         r.AvgLatency,
		P50Latency:         r.P50Latency,
		P95Latency:         r.P95Latency,
		P99Latency:         r.P99Latency,
		AvgThroughput:      r.AvgThroughput,
		AvgErrorRate:       r.AvgErrorRate,
		TotalCost:          r.TotalCost,
		AvgCost:            r.AvgCost,
		TotalTokens:        r.TotalTokens,
		AvgTokens:          r.AvgTokens,
	}
}
