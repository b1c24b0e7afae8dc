// Package memory holds in-process stores used when no database is configured.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/dreschagin/reskpoints/internal/domain/entity"
	"github.com/dreschagin/reskpoints/internal/domain/repository"
)

// TicketRepository хранит тикеты в памяти. Читатели получают копии.
type TicketRepository struct {
	mu      sync.RWMutex
	tickets map[string]*entity.Ticket
}

var _ repository.TicketRepository = (*TicketRepository)(nil)

func NewTicketRepository() *TicketRepository {
	return &TicketRepository{tickets: make(map[string]*entity.Ticket)}
}

func (r *TicketRepository) Create(_ context.Context, ticket *entity.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tickets[ticket.ID] = ticket.Clone()
	return nil
}

func (r *TicketRepository) FindByID(_ context.Context, id string) (*entity.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tickets[id]
	if !ok {
		return nil, repository.ErrTicketNotFound
	}
	return t.Clone(), nil
}

// Update выполняет fn над копией под блокировкой записи и сохраняет копию только при успехе
func (r *TicketRepository) Update(_ context.Context, id string, fn func(*entity.Ticket) error) (*entity.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.tickets[id]
	if !ok {
		return nil, repository.ErrTicketNotFound
	}

	working := current.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}

	r.tickets[id] = working
	return working.Clone(), nil
}

func (r *TicketRepository) List(_ context.Context, filter repository.TicketFilter) ([]*entity.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*entity.Ticket, 0, len(r.tickets))
	for _, t := range r.tickets {
		if filter.Matches(t) {
			out = append(out, t.Clone())
		}
	}
	sortNewestFirst(out)

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *TicketRepository) ListOpen(_ context.Context) ([]*entity.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*entity.Ticket, 0, len(r.tickets))
	for _, t := range r.tickets {
		if !t.IsClosed() {
			out = append(out, t.Clone())
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func sortNewestFirst(tickets []*entity.Ticket) {
	sort.Slice(tickets, func(i, j int) bool {
		if tickets[i].CreatedAt.Equal(tickets[j].CreatedAt) {
			return tickets[i].ID > tickets[j].ID
		}
		return tickets[i].CreatedAt.After(tickets[j].CreatedAt)
	})
}
