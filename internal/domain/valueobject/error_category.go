package valueobject

import "fmt"

// ErrorCategory классифицирует ошибки AI API
type ErrorCategory string

const (
	CategoryRateLimit          ErrorCategory = "rate_limit"
	CategoryTimeout            ErrorCategory = "timeout"
	CategoryAuthentication     ErrorCategory = "authentication"
	CategoryAuthorization      ErrorCategory = "authorization"
	CategoryQuotaExceeded      ErrorCategory = "quota_exceeded"
	CategoryInvalidInput       ErrorCategory = "invalid_input"
	CategoryModelError         ErrorCategory = "model_error"
	CategoryNetworkError       ErrorCategory = "network_error"
	CategoryValidation         ErrorCategory = "validation"
	CategoryServiceUnavailable ErrorCategory = "service_unavailable"
	CategoryLatency            ErrorCategory = "latency"
	CategoryMetricAnomaly      ErrorCategory = "metric_anomaly"
	CategoryUnknown            ErrorCategory = "unknown"
)

// Validate проверяет категорию ошибки
func (c ErrorCategory) Validate() error {
	switch c {
	case CategoryRateLimit, CategoryTimeout, CategoryAuthentication, CategoryAuthorization,
		CategoryQuotaExceeded, CategoryInvalidInput, CategoryModelError, CategoryNetworkError, CategoryValidation,
		CategoryServiceUnavailable, CategoryLatency, CategoryMetricAnomaly, CategoryUnknown:
		return nil
	default:
		return fmt.Errorf("invalid error category: %q", string(c))
	}
}

func (c ErrorCategory) String() string {
	return string(c)
}
