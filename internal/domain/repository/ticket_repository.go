package repository

import (
	"context"
	"errors"
	"time"

	"github.com/dreschagin/reskpoints/internal/domain/entity"
	"github.com/dreschagin/reskpoints/internal/domain/valueobject"
)

// ErrTicketNotFound возвращается, когда тикета с таким идентификатором нет
var ErrTicketNotFound = errors.New("ticket not found")

// TicketFilter задает условия выборки тикетов. Пустые поля не ограничивают выборку.
// Unresolved отбрасывает тикеты в статусах resolved и closed.
type TicketFilter struct {
	Status       valueobject.TicketStatus
	Priority     valueobject.TicketPriority
	Assignee     string
	Provider     valueobject.Provider
	ModelName    string
	Category     valueobject.TicketCategory
	Unresolved   bool
	CreatedAfter time.Time
	Limit        int
}

// Matches проверяет тикет на соответствие фильтру
func (f TicketFilter) Matches(t *entity.Ticket) bool {
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.Priority != "" && t.Priority != f.Priority {
		return false
	}
	if f.Assignee != "" && t.AssigneeID != f.Assignee {
		return false
	}
	if f.Provider != "" && t.Provider != f.Provider {
		return false
	}
	if f.ModelName != "" && t.ModelName != f.ModelName {
		return false
	}
	if f.Category != "" && t.Category != f.Category {
		return false
	}
	if f.Unresolved && (t.Status == valueobject.StatusResolved || t.Status == valueobject.StatusClosed) {
		return false
	}
	if !f.CreatedAfter.IsZero() && t.CreatedAt.Before(f.CreatedAfter) {
		return false
	}
	return true
}

// TicketRepository определяет интерфейс хранилища тикетов (Port)
// Реализация будет в Infrastructure слое
type TicketRepository interface {
	// Create сохраняет новый тикет
	Create(ctx context.Context, ticket *entity.Ticket) error

	// FindByID возвращает копию тикета или ErrTicketNotFound
	FindByID(ctx context.Context, id string) (*entity.Ticket, error)

	// Update атомарно применяет fn к тикету. Если fn вернула ошибку, тикет не меняется.
	// Возвращает копию сохраненного тикета.
	Update(ctx context.Context, id string, fn func(*entity.Ticket) error) (*entity.Ticket, error)

	// List возвращает тикеты по фильтру, новые первыми
	List(ctx context.Context, filter TicketFilter) ([]*entity.Ticket, error)

	// ListOpen возвращает все тикеты со статусом, отличным от closed
	ListOpen(ctx context.Context) ([]*entity.Ticket, error)
}
