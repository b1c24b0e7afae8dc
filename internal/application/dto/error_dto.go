package dto

import (
	"time"

	"github.com/dreschagin/reskpoints/internal/domain/entity"
)

// ErrorRequest - входящее событие ошибки
type ErrorRequest struct {
	Timestamp     *time.Time             `json:"timestamp,omitempty"`
	Severity      string                 `json:"severity"`
	Category      string                 `json:"category"`
	Message       string                 `json:"message"`
	Code          string                 `json:"code,omitempty"`
	Details       map[string]interface{} `json:"details,omitempty"`
	Provider      string                 `json:"provider,omitempty"`
	ModelName     string                 `json:"model_name,omitempty"`
	Endpoint      string                 `json:"endpoint,omitempty"`
	UserID        string                 `json:"user_id,omitempty"`
	ProjectID     string                 `json:"project_id,omitempty"`
	SessionID     string                 `json:"session_id,omitempty"`
	RequestID     string                 `json:"request_id,omitempty"`
	StackTrace    string                 `json:"stack_trace,omitempty"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	Tags          map[string]string      `json:"tags,omitempty"`
}

// ErrorDTO представляет событие ошибки
type ErrorDTO struct {
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	Severity  string                 `json:"severity"`
	Category  string                 `json:"category"`
	Message   string                 `json:"message"`
	Code      string                 `json:"code,omitempty"`
	Provider  string                 `json:"provider,omitempty"`
	ModelName string                 `json:"model_name,omitempty"`
	Endpoint  string                 `json:"endpoint,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// FromErrorEvent конвертирует событие в DTO
func FromErrorEvent(e *entity.ErrorEvent) *ErrorDTO {
	return &ErrorDTO{
		ID:        e.ID,
		Timestamp: e.Timestamp,
		Severity:  e.Severity.String(),
		Category:  e.Category.String(),
		Message:   e.Message,
		Code:      e.Code,
		Provider:  e.Provider.String(),
		ModelName: e.ModelName,
		Endpoint:  e.Endpoint,
		Metadata:  e.Metadata,
	}
}
