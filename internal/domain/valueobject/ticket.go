package valueobject

import "fmt"

// TicketStatus представляет состояние тикета
type TicketStatus string

const (
	StatusOpen       TicketStatus = "open"
	StatusInProgress TicketStatus = "in_progress"
	StatusPending    TicketStatus = "pending"
	StatusResolved   TicketStatus = "resolved"
	StatusClosed     TicketStatus = "closed"
	StatusReopened   TicketStatus = "reopened"
)

func (s TicketStatus) Validate() error {
	switch s {
	case StatusOpen, StatusInProgress, StatusPending, StatusResolved, StatusClosed, StatusReopened:
		return nil
	default:
		return fmt.Errorf("invalid ticket status: %q", string(s))
	}
}

func (s TicketStatus) String() string {
	return string(s)
}

// AllTicketStatuses возвращает все состояния тикета
func AllTicketStatuses() []TicketStatus {
	return []TicketStatus{StatusOpen, StatusInProgress, StatusPending, StatusResolved, StatusClosed, StatusReopened}
}

// TicketPriority представляет приоритет тикета
type TicketPriority string

const (
	PriorityCritical TicketPriority = "critical"
	PriorityHigh     TicketPriority = "high"
	PriorityMedium   TicketPriority = "medium"
	PriorityLow      TicketPriority = "low"
)

func (p TicketPriority) Validate() error {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
		return nil
	default:
		return fmt.Errorf("invalid ticket priority: %q", string(p))
	}
}

func (p TicketPriority) String() string {
	return string(p)
}

// Rank возвращает порядковый вес: critical=3 ... low=0, неизвестное значение = -1
func (p TicketPriority) Rank() int {
	switch p {
	case PriorityCritical:
		return 3
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 0
	default:
		return -1
	}
}

// TicketCategory группирует тикеты по зоне ответственности
type TicketCategory string

const (
	TicketCategoryPerformance    TicketCategory = "performance"
	TicketCategoryCost           TicketCategory = "cost"
	TicketCategorySecurity       TicketCategory = "security"
	TicketCategoryDataQuality    TicketCategory = "data_quality"
	TicketCategoryInfrastructure TicketCategory = "infrastructure"
	TicketCategoryGeneral        TicketCategory = "general"
)

func (c TicketCategory) Validate() error {
	switch c {
	case TicketCategoryPerformance, TicketCategoryCost, TicketCategorySecurity,
		TicketCategoryDataQuality, TicketCategoryInfrastructure, TicketCategoryGeneral:
		return nil
	default:
		return fmt.Errorf("invalid ticket category: %q", string(c))
	}
}

func (c TicketCategory) String() string {
	return string(c)
}
