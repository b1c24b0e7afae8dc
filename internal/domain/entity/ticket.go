package entity

import (
	"time"

	"github.com/dreschagin/reskpoints/internal/domain/valueobject"
)

// Workflow actions
const (
	ActionCreated      = "created"
	ActionStatusChange = "status_change"
	ActionEscalation   = "escalation"
	ActionErrorLinked  = "error_linked"
)

// SystemActor используется для действий, выполненных без участия пользователя
const SystemActor = "system"

// WorkflowEvent - запись журнала аудита тикета (append-only)
type WorkflowEvent struct {
	Timestamp time.Time                `json:"timestamp"`
	Actor     string                   `json:"actor"`
	Action    string                   `json:"action"`
	OldStatus valueobject.TicketStatus `json:"old_status,omitempty"`
	NewStatus valueobject.TicketStatus `json:"new_status,omitempty"`
	Notes     string                   `json:"notes,omitempty"`
}

// Ticket - инцидент, которым управляет TicketLifecycle (Aggregate Root).
// Тикеты никогда не удаляются, только закрываются.
type Ticket struct {
	ID              string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Title           string
	Description     string
	Status          valueobject.TicketStatus
	Priority        valueobject.TicketPriority
	Category        valueobject.TicketCategory
	Severity        valueobject.Severity
	AssigneeID      string
	ReporterID      string
	Team            string
	Provider        valueobject.Provider
	ModelName       string
	Endpoint        string
	UserID          string
	ProjectID       string
	ErrorIDs        []string
	SLADeadline     time.Time
	Escalated       bool
	EscalatedAt     *time.Time
	ResolutionNotes string
	ResolvedAt      *time.Time
	ClosedAt        *time.Time
	Tags            map[string]string
	Workflow        []WorkflowEvent
}

// Age возвращает возраст тикета относительно now
func (t *Ticket) Age(now time.Time) time.Duration {
	return now.Sub(t.CreatedAt)
}

// IsOverdue проверяет нарушение SLA: дедлайн прошел, а тикет не закрыт
func (t *Ticket) IsOverdue(now time.Time) bool {
	return !t.SLADeadline.IsZero() && now.After(t.SLADeadline) && t.Status != valueobject.StatusClosed
}

// IsClosed сообщает, что тикет закрыт
func (t *Ticket) IsClosed() bool {
	return t.Status == valueobject.StatusClosed
}

// HasError проверяет, привязана ли ошибка к тикету
func (t *Ticket) HasError(errorID string) bool {
	for _, id := range t.ErrorIDs {
		if id == errorID {
			return true
		}
	}
	return false
}

// LinkError добавляет идентификатор ошибки, сохраняя множество без дублей
func (t *Ticket) LinkError(errorID string) bool {
	if errorID == "" || t.HasError(errorID) {
		return false
	}
	t.ErrorIDs = append(t.ErrorIDs, errorID)
	return true
}

// Record добавляет событие в журнал аудита
func (t *Ticket) Record(event WorkflowEvent) {
	t.Workflow = append(t.Workflow, event)
}

// Clone возвращает глубокую копию тикета для читателей хранилища
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}

	c := *t
	c.ErrorIDs = append([]string(nil), t.ErrorIDs...)
	c.Workflow = append([]WorkflowEvent(nil), t.Workflow...)
	c.EscalatedAt = cloneTime(t.EscalatedAt)
	c.ResolvedAt = cloneTime(t.ResolvedAt)
	c.ClosedAt = cloneTime(t.ClosedAt)
	if t.Tags != nil {
		c.Tags = make(map[string]string, len(t.Tags))
		for k, v := range t.Tags {
			c.Tags[k] = v
		}
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
