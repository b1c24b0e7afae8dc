package valueobject

// SeriesKey идентифицирует временной ряд для анализа аномалий
type SeriesKey struct {
	Provider   Provider
	Model      string
	MetricType MetricType
}

// NewSeriesKey создает ключ ряда
func NewSeriesKey(provider Provider, model string, metricType MetricType) SeriesKey {
	return SeriesKey{Provider: provider, Model: model, MetricType: metricType}
}

// String возвращает ключ в формате "provider:model:metric_type"
func (k SeriesKey) String() string {
	return string(k.Provider) + ":" + k.Model + ":" + string(k.MetricType)
}
