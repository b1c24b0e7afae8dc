package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/dreschagin/reskpoints/internal/domain/entity"
	"github.com/dreschagin/reskpoints/internal/domain/valueobject"
)

// ValidationError описывает некорректное поле входных данных
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// SubmissionValidator проверяет входные данные на границе системы (Domain Service).
// Ядро получает только прошедшие проверку значения.
type SubmissionValidator struct {
	maxClockSkew time.Duration
	now          func() time.Time
}

// NewSubmissionValidator создает валидатор. maxClockSkew ограничивает метки времени из будущего.
func NewSubmissionValidator(maxClockSkew time.Duration, now func() time.Time) *SubmissionValidator {
	if now == nil {
		now = time.Now
	}
	return &SubmissionValidator{maxClockSkew: maxClockSkew, now: now}
}

// MetricInput - сырые поля измерения до создания сущности
type MetricInput struct {
	MetricType valueobject.MetricType
	Value      float64
	Unit       string
	Provider   valueobject.Provider
	ModelName  string
	Timestamp  time.Time
}

// ValidateMetric проверяет измерение
func (v *SubmissionValidator) ValidateMetric(in MetricInput) error {
	if err := in.MetricType.Validate(); err != nil {
		return invalid("metric_type", "%v", err)
	}
	if err := in.Provider.Validate(); err != nil {
		return invalid("provider", "%v", err)
	}
	if strings.TrimSpace(in.ModelName) == "" {
		return invalid("model_name", "is required")
	}
	if strings.TrimSpace(in.Unit) == "" {
		return invalid("unit", "is required")
	}
	if in.Value < 0 {
		return invalid("value", "cannot be negative")
	}
	if in.MetricType.IsScore() && in.Value > 1 {
		return invalid("value", "%s must be between 0 and 1", in.MetricType)
	}
	if err := v.validateTimestamp(in.Timestamp); err != nil {
		return err
	}
	return nil
}

// ValidateError проверяет событие ошибки
func (v *SubmissionValidator) ValidateError(event *entity.ErrorEvent) error {
	if event == nil {
		return invalid("", "error event is required")
	}
	if err := event.Severity.Validate(); err != nil {
		return invalid("severity", "%v", err)
	}
	if err := event.Category.Validate(); err != nil {
		return invalid("category", "%v", err)
	}
	if strings.TrimSpace(event.Message) == "" {
		return invalid("message", "is required")
	}
	if event.Provider != "" {
		if err := event.Provider.Validate(); err != nil {
			return invalid("provider", "%v", err)
		}
	}
	return v.validateTimestamp(event.Timestamp)
}

// TicketInput - поля тикета, созданного вручную
type TicketInput struct {
	Title    string
	Priority valueobject.TicketPriority
	Severity valueobject.Severity
	Category valueobject.TicketCategory
}

// ValidateTicket проверяет тикет, созданный вручную
func (v *SubmissionValidator) ValidateTicket(in TicketInput) error {
	if strings.TrimSpace(in.Title) == "" {
		return invalid("title", "is required")
	}
	if err := in.Priority.Validate(); err != nil {
		return invalid("priority", "%v", err)
	}
	if err := in.Severity.ValidateForTicket(); err != nil {
		return invalid("severity", "%v", err)
	}
	if in.Category != "" {
		if err := in.Category.Validate(); err != nil {
			return invalid("category", "%v", err)
		}
	}
	return nil
}

// ValidateStatusChange проверяет запрос на смену статуса
func (v *SubmissionValidator) ValidateStatusChange(id string, status valueobject.TicketStatus, actor string) error {
	if strings.TrimSpace(id) == "" {
		return invalid("id", "is required")
	}
	if err := status.Validate(); err != nil {
		return invalid("status", "%v", err)
	}
	if strings.TrimSpace(actor) == "" {
		return invalid("actor", "is required")
	}
	return nil
}

func (v *SubmissionValidator) validateTimestamp(ts time.Time) error {
	if ts.IsZero() || v.maxClockSkew <= 0 {
		return nil
	}
	if ts.After(v.now().Add(v.maxClockSkew)) {
		return invalid("timestamp", "cannot be in the future")
	}
	return nil
}
