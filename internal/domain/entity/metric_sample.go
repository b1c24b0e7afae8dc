package entity

import (
	"errors"
	"strings"
	"time"

	"github.com/dreschagin/reskpoints/internal/domain/valueobject"
	"github.com/google/uuid"
)

// MetricSample представляет одно измерение AI API (Aggregate Root)
// Иммутабелен после создания
type MetricSample struct {
	id         string
	timestamp  time.Time
	metricType valueobject.MetricType
	value      valueobject.MetricValue
	provider   valueobject.Provider
	modelName  string
	modelSize  string
	endpoint   string
	userID     string
	projectID  string
	sessionID  string
	requestID  string
	tags       map[string]string
}

// MetricSampleParams содержит поля для создания MetricSample
type MetricSampleParams struct {
	ID         string
	Timestamp  time.Time
	MetricType valueobject.MetricType
	Value      valueobject.MetricValue
	Provider   valueobject.Provider
	ModelName  string
	ModelSize  string
	Endpoint   string
	UserID     string
	ProjectID  string
	SessionID  string
	RequestID  string
	Tags       map[string]string
}

// NewMetricSample создает новое измерение (Factory Method)
func NewMetricSample(p MetricSampleParams) (*MetricSample, error) {
	if err := p.MetricType.Validate(); err != nil {
		return nil, err
	}
	if err := p.Provider.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.ModelName) == "" {
		return nil, errors.New("model_name cannot be empty")
	}
	if p.Value.Unit() == "" {
		return nil, errors.New("metric value is required")
	}
	if p.Timestamp.IsZero() {
		return nil, errors.New("timestamp cannot be zero")
	}

	id := p.ID
	if id == "" {
		id = uuid.New().String()
	}

	tags := make(map[string]string, len(p.Tags))
	for k, v := range p.Tags {
		tags[k] = v
	}

	return &MetricSample{
		id:         id,
		timestamp:  p.Timestamp,
		metricType: p.MetricType,
		value:      p.Value,
		provider:   p.Provider,
		modelName:  strings.TrimSpace(p.ModelName),
		modelSize:  p.ModelSize,
		endpoint:   p.Endpoint,
		userID:     p.UserID,
		projectID:  p.ProjectID,
		sessionID:  p.SessionID,
		requestID:  p.RequestID,
		tags:       tags,
	}, nil
}

// ID возвращает идентификатор измерения
func (m *MetricSample) ID() string {
	return m.id
}

// Timestamp возвращает время измерения
func (m *MetricSample) Timestamp() time.Time {
	return m.timestamp
}

// Type возвращает тип метрики
func (m *MetricSample) Type() valueobject.MetricType {
	return m.metricType
}

// Value возвращает значение метрики
func (m *MetricSample) Value() valueobject.MetricValue {
	return m.value
}

func (m *MetricSample) Provider() valueobject.Provider {
	return m.provider
}

func (m *MetricSample) ModelName() string {
	return m.modelName
}

func (m *MetricSample) ModelSize() string {
	return m.modelSize
}

func (m *MetricSample) Endpoint() string {
	return m.endpoint
}

func (m *MetricSample) UserID() string {
	return m.userID
}

func (m *MetricSample) ProjectID() string {
	return m.projectID
}

func (m *MetricSample) SessionID() string {
	return m.sessionID
}

func (m *MetricSample) RequestID() string {
	return m.requestID
}

// Tags возвращает копию тегов
func (m *MetricSample) Tags() map[string]string {
	result := make(map[string]string, len(m.tags))
	for k, v := range m.tags {
		result[k] = v
	}
	return result
}

// SeriesKey возвращает ключ ряда (provider, model, metric_type)
func (m *MetricSample) SeriesKey() valueobject.SeriesKey {
	return valueobject.NewSeriesKey(m.provider, m.modelName, m.metricType)
}
