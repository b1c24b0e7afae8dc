package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dreschagin/reskpoints/internal/domain/entity"
	"github.com/dreschagin/reskpoints/internal/domain/repository"
)

const insertTicketEvent = `
	INSERT INTO ticket_events (ticket_id, timestamp, actor, action, old_status, new_status, notes)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
`

// TicketRepository реализует repository.TicketRepository для PostgreSQL.
// Update блокирует строку (SELECT ... FOR UPDATE) на время выполнения fn.
type TicketRepository struct {
	db *sql.DB
}

var _ repository.TicketRepository = (*TicketRepository)(nil)

// NewTicketRepository создает новый PostgreSQL repository
func NewTicketRepository(db *sql.DB) *TicketRepository {
	return &TicketRepository{db: db}
}

// Create сохраняет тикет и его начальный журнал
func (r *TicketRepository) Create(ctx context.Context, ticket *entity.Ticket) error {
	args, err := ticketArgs(ticket)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := fmt.Sprintf(`INSERT INTO tickets (%s) VALUES (%s)`, ticketColumns, placeholders(len(args)))
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert ticket: %w", err)
	}

	if err := insertEvents(ctx, tx, ticket.ID, ticket.Workflow); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// FindByID находит тикет по идентификатору
func (r *TicketRepository) FindByID(ctx context.Context, id string) (*entity.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id = $1`

	ticket, err := scanTicket(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrTicketNotFound
		}
		return nil, fmt.Errorf("failed to scan ticket: %w", err)
	}
	return ticket, nil
}

// Update применяет fn внутри транзакции. Ошибка fn откатывает транзакцию.
func (r *TicketRepository) Update(ctx context.Context, id string, fn func(*entity.Ticket) error) (*entity.Ticket, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id = $1 FOR UPDATE`
	ticket, err := scanTicket(tx.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrTicketNotFound
		}
		return nil, fmt.Errorf("failed to lock ticket: %w", err)
	}

	recorded := len(ticket.Workflow)
	if err := fn(ticket); err != nil {
		return nil, err
	}

	args, err := ticketArgs(ticket)
	if err != nil {
		return nil, err
	}

	// id остается $1, остальные колонки обновляются целиком
	columns := strings.Split(ticketColumns, ",")
	sets := make([]string, 0, len(columns)-1)
	for i, col := range columns[1:] {
		sets = append(sets, fmt.Sprintf("%s = $%d", strings.TrimSpace(col), i+2))
	}
	update := `UPDATE tickets SET ` + strings.Join(sets, ", ") + ` WHERE id = $1`
	if _, err := tx.ExecContext(ctx, update, args...); err != nil {
		return nil, fmt.Errorf("failed to update ticket: %w", err)
	}

	if recorded < len(ticket.Workflow) {
		if err := insertEvents(ctx, tx, ticket.ID, ticket.Workflow[recorded:]); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return ticket, nil
}

// List возвращает тикеты по фильтру, новые первыми
func (r *TicketRepository) List(ctx context.Context, filter repository.TicketFilter) ([]*entity.Ticket, error) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(column string, value string) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if filter.Status != "" {
		add("status", filter.Status.String())
	}
	if filter.Priority != "" {
		add("priority", filter.Priority.String())
	}
	if filter.Assignee != "" {
		add("assignee_id", filter.Assignee)
	}
	if filter.Provider != "" {
		add("provider", filter.Provider.String())
	}
	if filter.ModelName != "" {
		add("model_name", filter.ModelName)
	}
	if filter.Category != "" {
		add("category", filter.Category.String())
	}
	if filter.Unresolved {
		conds = append(conds, "status NOT IN ('resolved', 'closed')")
	}
	if !filter.CreatedAfter.IsZero() {
		args = append(args, filter.CreatedAfter)
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}

	query := `SELECT ` + ticketColumns + ` FROM tickets`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	return r.query(ctx, query, args...)
}

// ListOpen возвращает все незакрытые тикеты
func (r *TicketRepository) ListOpen(ctx context.Context) ([]*entity.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE status <> 'closed' ORDER BY created_at DESC`
	return r.query(ctx, query)
}

func (r *TicketRepository) query(ctx context.Context, query string, args ...interface{}) ([]*entity.Ticket, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tickets: %w", err)
	}
	defer rows.Close()

	var tickets []*entity.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ticket row: %w", err)
		}
		tickets = append(tickets, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return tickets, nil
}

func insertEvents(ctx context.Context, tx *sql.Tx, ticketID string, events []entity.WorkflowEvent) error {
	for _, e := range events {
		_, err := tx.ExecContext(ctx, insertTicketEvent,
			ticketID,
			e.Timestamp,
			e.Actor,
			e.Action,
			e.OldStatus.String(),
			e.NewStatus.String(),
			e.Notes,
		)
		if err != nil {
			return fmt.Errorf("failed to insert ticket event: %w", err)
		}
	}
	return nil
}

func placeholders(n int) string {
	ph := make([]string, n)
	for i := range ph {
		ph[i] = fmt.Sprintf("$%d", i+1)
	}
	return strings.Join(ph, ", ")
}
