package valueobject

import "fmt"

// MetricType представляет тип метрики AI API (Value Object)
type MetricType string

const (
	Latency      MetricType = "latency"
	Throughput   MetricType = "throughput"
	ErrorRate    MetricType = "error_rate"
	Accuracy     MetricType = "accuracy"
	TokenUsage   MetricType = "token_usage"
	Cost         MetricType = "cost"
	Availability MetricType = "availability"
	Custom       MetricType = "custom"
)

// Validate проверяет валидность типа метрики
func (mt MetricType) Validate() error {
	switch mt {
	case Latency, Throughput, ErrorRate, Accuracy, TokenUsage, Cost, Availability, Custom:
		return nil
	default:
		return fmt.Errorf("invalid metric type: %q", string(mt))
	}
}

// String возвращает строковое представление типа метрики
func (mt MetricType) String() string {
	return string(mt)
}

// IsScore сообщает, что значение метрики является долей в диапазоне [0, 1]
func (mt MetricType) IsScore() bool {
	return mt == Accuracy || mt == Availability
}

// AllMetricTypes возвращает список всех допустимых типов метрик
func AllMetricTypes() []MetricType {
	return []MetricType{Latency, Throughput, ErrorRate, Accuracy, TokenUsage, Cost, Availability, Custom}
}
