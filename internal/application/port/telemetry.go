package port

// Telemetry собирает счетчики прикладного слоя (Prometheus в Infrastructure слое)
type Telemetry interface {
	ObserveMetricSubmitted(metricType, provider string)
	ObserveErrorReported(severity, category, provider string)
	ObserveFlush(kind, result string)
	ObserveDropped(kind string, count int)
	ObserveTicketCreated(category, priority string)
	ObserveTicketEscalated(rule string)
}

// NopTelemetry ничего не записывает
type NopTelemetry struct{}

func (NopTelemetry) ObserveMetricSubmitted(string, string) {}
func (NopTelemetry) ObserveErrorReported(string, string, string) {}
func (NopTelemetry) ObserveFlush(string, string) {}
func (NopTelemetry) ObserveDropped(string, int) {}
func (NopTelemetry) ObserveTicketCreated(string, string) {}
func (NopTelemetry) ObserveTicketEscalated(string) {}
