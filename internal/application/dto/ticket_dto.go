package dto

import (
	"time"

	"github.com/dreschagin/reskpoints/internal/domain/entity"
	"github.com/dreschagin/reskpoints/internal/domain/service"
)

// TicketRequest - тикет, созданный вручную
type TicketRequest struct {
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Priority    string            `json:"priority"`
	Severity    string            `json:"severity"`
	Category    string            `json:"category,omitempty"`
	AssigneeID  string            `json:"assignee_id,omitempty"`
	ReporterID  string            `json:"reporter_id,omitempty"`
	Provider    string            `json:"provider,omitempty"`
	ModelName   string            `json:"model_name,omitempty"`
	ErrorIDs    []string          `json:"error_ids,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`
}

// StatusUpdateRequest - запрос на смену статуса
type StatusUpdateRequest struct {
	Status string `json:"status"`
	Actor  string `json:"actor"`
	Notes  string `json:"notes,omitempty"`
}

// TicketDTO представляет тикет для API и живой ленты
type TicketDTO struct {
	ID              string                 `json:"id"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
	Title           string                 `json:"title"`
	Description     string                 `json:"description"`
	Status          string                 `json:"status"`
	Priority        string                 `json:"priority"`
	Category        string                 `json:"category"`
	Severity        string                 `json:"severity"`
	AssigneeID      string                 `json:"assignee_id,omitempty"`
	ReporterID      string                 `json:"reporter_id,omitempty"`
	Team            string                 `json:"team,omitempty"`
	Provider        string                 `json:"provider,omitempty"`
	ModelName       string                 `json:"model_name,omitempty"`
	ErrorIDs        []string               `json:"error_ids"`
	SLADeadline     time.Time              `json:"sla_deadline"`
	Overdue         bool                   `json:"overdue"`
	Escalated       bool                   `json:"escalated"`
	EscalatedAt     *time.Time             `json:"escalated_at,omitempty"`
	ResolutionNotes string                 `json:"resolution_notes,omitempty"`
	ResolvedAt      *time.Time             `json:"resolved_at,omitempty"`
	ClosedAt        *time.Time             `json:"closed_at,omitempty"`
	Tags            map[string]string      `json:"tags,omitempty"`
	Workflow        []entity.WorkflowEvent `json:"workflow"`
}

// FromTicket конвертирует тикет в DTO на момент now
func FromTicket(t *entity.Ticket, now time.Time) *TicketDTO {
	errorIDs := t.ErrorIDs
	if errorIDs == nil {
		errorIDs = []string{}
	}
	return &TicketDTO{
		ID:              t.ID,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
		Title:           t.Title,
		Description:     t.Description,
		Status:          t.Status.String(),
		Priority:        t.Priority.String(),
		Category:        t.Category.String(),
		Severity:        t.Severity.String(),
		AssigneeID:      t.AssigneeID,
		ReporterID:      t.ReporterID,
		Team:            t.Team,
		Provider:        t.Provider.String(),
		ModelName:       t.ModelName,
		ErrorIDs:        errorIDs,
		SLADeadline:     t.SLADeadline,
		Overdue:         t.IsOverdue(now),
		Escalated:       t.Escalated,
		EscalatedAt:     t.EscalatedAt,
		ResolutionNotes: t.ResolutionNotes,
		ResolvedAt:      t.ResolvedAt,
		ClosedAt:        t.ClosedAt,
		Tags:            t.Tags,
		Workflow:        t.Workflow,
	}
}

// ToTicketDTOs конвертирует слайс тикетов
func ToTicketDTOs(tickets []*entity.Ticket, now time.Time) []*TicketDTO {
	dtos := make([]*TicketDTO, len(tickets))
	for i, t := range tickets {
		dtos[i] = FromTicket(t, now)
	}
	return dtos
}

// TicketMetricsDTO - сводка по тикетам
type TicketMetricsDTO struct {
	Total              int            `json:"total"`
	ByStatus           map[string]int `json:"by_status"`
	BySeverity         map[string]int `json:"by_severity"`
	AvgResolutionHours float64        `json:"avg_resolution_hours"`
	OverdueCount       int            `json:"overdue_count"`
	EscalatedCount     int            `json:"escalated_count"`
	GeneratedAt        time.Time      `json:"generated_at"`
}

// FromTicketStatistics конвертирует статистику в DTO
func FromTicketStatistics(s service.TicketStatistics, now time.Time) *TicketMetricsDTO {
	out := &TicketMetricsDTO{
		Total:              s.Total,
		ByStatus:           make(map[string]int, len(s.ByStatus)),
		BySeverity:         make(map[string]int, len(s.BySeverity)),
		AvgResolutionHours: s.AvgResolutionHours,
		OverdueCount:       s.OverdueCount,
		EscalatedCount:     s.EscalatedCount,
		GeneratedAt:        now,
	}
	for k, v := range s.ByStatus {
		out.ByStatus[string(k)] = v
	}
	for k, v := range s.BySeverity {
		out.BySeverity[string(k)] = v
	}
	return out
}
