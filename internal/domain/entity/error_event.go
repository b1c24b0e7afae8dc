package entity

import (
	"time"

	"github.com/dreschagin/reskpoints/internal/domain/valueobject"
)

// ErrorEvent описывает ошибку AI API, присланную клиентом или синтезированную детектором аномалий.
// После попадания в буфер ingestion событие не изменяется.
type ErrorEvent struct {
	ID              string
	Timestamp       time.Time
	Severity        valueobject.Severity
	Category        valueobject.ErrorCategory
	Message         string
	Code            string
	Details         map[string]interface{}
	Provider        valueobject.Provider
	ModelName       string
	Endpoint        string
	UserID          string
	ProjectID       string
	SessionID       string
	RequestID       string
	StackTrace      string
	CorrelationID   string
	Resolved        bool
	ResolutionNotes string
	ResolvedAt      *time.Time
	Tags            map[string]string
	Metadata        map[string]interface{}
}

// IsCritical сообщает, требует ли событие немедленного оповещения
func (e *ErrorEvent) IsCritical() bool {
	return e.Severity == valueobject.SeverityCritical
}

// IsAnomaly сообщает, что событие синтезировано детектором аномалий
func (e *ErrorEvent) IsAnomaly() bool {
	return e.Category == valueobject.CategoryMetricAnomaly
}
