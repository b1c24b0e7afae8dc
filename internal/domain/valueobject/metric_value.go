package valueobject

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

// MetricValue представляет значение метрики с единицей измерения (Value Object)
// Иммутабельный объект
type MetricValue struct {
	value float64
	unit  string
}

// NewMetricValue создает новый MetricValue с валидацией
func NewMetricValue(value float64, unit string) (MetricValue, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return MetricValue{}, errors.New("value must be a finite number")
	}

	if value < 0 {
		return MetricValue{}, errors.New("value cannot be negative")
	}

	unit = strings.TrimSpace(unit)
	if unit == "" {
		return MetricValue{}, errors.New("unit cannot be empty")
	}

	return MetricValue{
		value: value,
		unit:  unit,
	}, nil
}

// Raw возвращает числовое значение
func (mv MetricValue) Raw() float64 {
	return mv.value
}

// Unit возвращает единицу измерения
func (mv MetricValue) Unit() string {
	return mv.unit
}

// String возвращает значение и единицу без лишних нулей: "1000 ms", "0.25 ratio"
func (mv MetricValue) String() string {
	return strconv.FormatFloat(mv.value, 'f', -1, 64) + " " + mv.unit
}

// Equals сравнивает два MetricValue
func (mv MetricValue) Equals(other MetricValue) bool {
	return mv.value == other.value && mv.unit == other.unit
}
