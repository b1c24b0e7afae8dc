package dto

import "time"

// Alert kinds
const (
	AlertKindCriticalError = "critical_error"
	AlertKindEscalation    = "escalation"
)

// AlertDTO представляет alert для оповещения (NATS, WebSocket, лог)
type AlertDTO struct {
	ID        string     `json:"id"`
	Timestamp time.Time  `json:"timestamp"`
	Kind      string     `json:"kind"`
	Level     string     `json:"level"` // "high", "critical"
	Message   string     `json:"message"`
	Error     *ErrorDTO  `json:"error,omitempty"`
	Ticket    *TicketDTO `json:"ticket,omitempty"`
	Rule      string     `json:"rule,omitempty"`
}

// Ticket event types
const (
	TicketEventCreated       = "created"
	TicketEventStatusChanged = "status_changed"
	TicketEventEscalated     = "escalated"
	TicketEventErrorLinked   = "error_linked"
)

// TicketEventDTO сообщает об изменении тикета
type TicketEventDTO struct {
	Type      string     `json:"type"`
	Timestamp time.Time  `json:"timestamp"`
	Ticket    *TicketDTO `json:"ticket"`
}

// EscalationStatusDTO - состояние движка эскалации
type EscalationStatusDTO struct {
	Running          bool      `json:"running"`
	Interval         string    `json:"interval"`
	LastRunAt        time.Time `json:"last_run_at,omitempty"`
	LastEscalated    []string  `json:"last_escalated"`
	TotalEscalations int64     `json:"total_escalations"`
	LastError        string    `json:"last_error,omitempty"`
}
