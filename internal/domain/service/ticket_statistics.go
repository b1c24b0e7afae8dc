package service

import (
	"sort"
	"time"

	"github.com/dreschagin/reskpoints/internal/domain/entity"
	"github.com/dreschagin/reskpoints/internal/domain/valueobject"
)

// TicketStatistics - сводка по всем тикетам
type TicketStatistics struct {
	Total              int                              `json:"total"`
	ByStatus           map[valueobject.TicketStatus]int `json:"by_status"`
	BySeverity         map[valueobject.Severity]int     `json:"by_severity"`
	AvgResolutionHours float64                          `json:"avg_resolution_hours"`
	OverdueCount       int                              `json:"overdue_count"`
	EscalatedCount     int                              `json:"escalated_count"`
}

// TicketAggregator считает статистику по тикетам (Domain Service)
type TicketAggregator struct{}

// NewTicketAggregator создает новый TicketAggregator
func NewTicketAggregator() *TicketAggregator {
	return &TicketAggregator{}
}

// Summarize строит сводку на момент now
func (a *TicketAggregator) Summarize(tickets []*entity.Ticket, now time.Time) TicketStatistics {
	stats := TicketStatistics{
		Total:      len(tickets),
		ByStatus:   make(map[valueobject.TicketStatus]int),
		BySeverity: make(map[valueobject.Severity]int),
	}

	var (
		resolvedHours float64
		resolved      int
	)
	for _, t := range tickets {
		stats.ByStatus[t.Status]++
		stats.BySeverity[t.Severity]++

		if t.IsOverdue(now) {
			stats.OverdueCount++
		}
		if t.Escalated {
			stats.EscalatedCount++
		}
		if t.ResolvedAt != nil {
			resolvedHours += t.ResolvedAt.Sub(t.CreatedAt).Hours()
			resolved++
		}
	}

	if resolved > 0 {
		stats.AvgResolutionHours = resolvedHours / float64(resolved)
	}
	return stats
}

// SortByCreated сортирует тикеты по времени создания
func (a *TicketAggregator) SortByCreated(tickets []*entity.Ticket, descending bool) []*entity.Ticket {
	sorted := make([]*entity.Ticket, len(tickets))
	copy(sorted, tickets)

	sort.SliceStable(sorted, func(i, j int) bool {
		if descending {
			return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
		}
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	return sorted
}
