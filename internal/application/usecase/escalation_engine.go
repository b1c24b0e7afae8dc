package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dreschagin/reskpoints/internal/application/dto"
	"github.com/dreschagin/reskpoints/internal/application/port"
	"github.com/dreschagin/reskpoints/internal/domain/repository"
	"github.com/dreschagin/reskpoints/internal/domain/service"
	"github.com/dreschagin/reskpoints/internal/domain/valueobject"
	"github.com/dreschagin/reskpoints/pkg/logger"
	"github.com/google/uuid"
)

// EscalationSnapshot - состояние движка эскалации
type EscalationSnapshot struct {
	StartedAt        time.Time
	Interval         time.Duration
	Running          bool
	LastRunAt        time.Time
	LastError        string
	LastEscalated    []string
	TotalEscalations int64
}

// EscalationEngine периодически проверяет незакрытые тикеты и эскалирует просроченные
type EscalationEngine struct {
	lifecycle *TicketLifecycle
	rules     []service.EscalationRule
	notifier  port.AlertNotifier
	clock     port.Clock
	log       *logger.Logger
	interval  time.Duration

	runMu sync.Mutex

	loopMu   sync.Mutex
	cancel   context.CancelFunc
	loopDone chan struct{}

	mu               sync.RWMutex
	startedAt        time.Time
	running          bool
	lastRunAt        time.Time
	lastError        string
	lastEscalated    []string
	totalEscalations int64
}

// NewEscalationEngine создает движок. Пустой список правил означает правила по умолчанию.
func NewEscalationEngine(
	lifecycle *TicketLifecycle,
	rules []service.EscalationRule,
	notifier port.AlertNotifier,
	clock port.Clock,
	log *logger.Logger,
	interval time.Duration,
) *EscalationEngine {
	if len(rules) == 0 {
		rules = service.DefaultEscalationRules()
	}
	if clock == nil {
		clock = port.SystemClock{}
	}
	if interval <= 0 {
		interval = 300 * time.Second
	}

	return &EscalationEngine{
		lifecycle: lifecycle,
		rules:     append([]service.EscalationRule(nil), rules...),
		notifier:  notifier,
		clock:     clock,
		log:       log,
		interval:  interval,
		startedAt: clock.Now(),
	}
}

// Start запускает периодическую проверку в фоне. Повторный вызов ничего не делает.
func (e *EscalationEngine) Start(ctx context.Context) {
	e.loopMu.Lock()
	defer e.loopMu.Unlock()

	if e.cancel != nil {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.loopDone = make(chan struct{})
	e.setRunning(true)

	go e.run(loopCtx, e.loopDone)
}

// Stop отменяет цикл и ждет завершения текущей проверки
func (e *EscalationEngine) Stop(ctx context.Context) error {
	e.loopMu.Lock()
	cancel, done := e.cancel, e.loopDone
	e.loopMu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to stop escalation loop: %w", ctx.Err())
	}
}

func (e *EscalationEngine) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer e.setRunning(false)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, _ = e.RunOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce выполняет одну проверку и возвращает идентификаторы эскалированных тикетов.
// Проверки сериализуются.
func (e *EscalationEngine) RunOnce(ctx context.Context) (escalated []string, err error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("escalation scan panic: %v", r)
			e.updateFailure(e.clock.Now(), err)
			e.log.Error("Escalation scan panicked", err)
		}
	}()

	tickets, err := e.lifecycle.ListOpenTickets(ctx)
	runAt := e.clock.Now()
	if err != nil {
		wrappedErr := fmt.Errorf("escalation scan failed: %w", err)
		e.updateFailure(runAt, wrappedErr)
		e.log.Error("Escalation scan failed", wrappedErr)
		return nil, wrappedErr
	}

	escalated = []string{}
	for _, t := range tickets {
		rule, ok := service.FirstMatchingRule(e.rules, t, runAt)
		if !ok {
			continue
		}

		updated, applied, err := e.lifecycle.Escalate(ctx, t.ID, rule)
		switch {
		case errors.Is(err, repository.ErrTicketNotFound):
			e.log.Debug("Ticket disappeared during escalation scan", "ticket_id", t.ID)
			continue
		case err != nil:
			e.log.Error("Failed to escalate ticket", err, "ticket_id", t.ID, "rule", rule.Name)
			continue
		case !applied:
			continue
		}

		escalated = append(escalated, updated.ID)
		e.log.Warn("Ticket escalated",
			"ticket_id", updated.ID,
			"title", updated.Title,
			"rule", rule.Name,
		)
		e.notify(ctx, rule, updated.ID, dto.FromTicket(updated, runAt))
	}

	e.updateSuccess(runAt, escalated)

	if len(escalated) > 0 {
		e.log.Info("Escalation scan completed",
			"open_tickets", len(tickets),
			"escalated", len(escalated),
		)
	}
	return escalated, nil
}

// Snapshot возвращает копию состояния движка
func (e *EscalationEngine) Snapshot() EscalationSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return EscalationSnapshot{
		StartedAt:        e.startedAt,
		Interval:         e.interval,
		Running:          e.running,
		LastRunAt:        e.lastRunAt,
		LastError:        e.lastError,
		LastEscalated:    append([]string(nil), e.lastEscalated...),
		TotalEscalations: e.totalEscalations,
	}
}

// Rules возвращает копию действующих правил
func (e *EscalationEngine) Rules() []service.EscalationRule {
	return append([]service.EscalationRule(nil), e.rules...)
}

func (e *EscalationEngine) notify(ctx context.Context, rule service.EscalationRule, ticketID string, ticket *dto.TicketDTO) {
	if e.notifier == nil {
		return
	}

	e.notifier.Notify(ctx, &dto.AlertDTO{
		ID:        uuid.New().String(),
		Timestamp: e.clock.Now(),
		Kind:      dto.AlertKindEscalation,
		Level:     string(valueobject.PriorityHigh),
		Message:   fmt.Sprintf("Ticket %s escalated: %s", ticketID, ticket.Title),
		Ticket:    ticket,
		Rule:      rule.Name,
	})
}

func (e *EscalationEngine) setRunning(running bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.running = running
}

func (e *EscalationEngine) updateFailure(runAt time.Time, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.lastRunAt = runAt
	e.lastError = err.Error()
}

func (e *EscalationEngine) updateSuccess(runAt time.Time, escalated []string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.lastRunAt = runAt
	e.lastError = ""
	e.lastEscalated = append([]string(nil), escalated...)
	e.totalEscalations += int64(len(escalated))
}
