package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dreschagin/reskpoints/internal/application/dto"
	"github.com/dreschagin/reskpoints/internal/application/port"
	"github.com/dreschagin/reskpoints/internal/domain/entity"
	"github.com/dreschagin/reskpoints/internal/domain/repository"
	"github.com/dreschagin/reskpoints/internal/domain/service"
	"github.com/dreschagin/reskpoints/internal/domain/valueobject"
	"github.com/dreschagin/reskpoints/pkg/logger"
	"github.com/google/uuid"
)

// TicketMetricsCacheKey - ключ кеша сводки по тикетам
const TicketMetricsCacheKey = "tickets:metrics"

// NewTicket - данные тикета, созданного вручную
type NewTicket struct {
	Title       string
	Description string
	Priority    valueobject.TicketPriority
	Severity    valueobject.Severity
	Category    valueobject.TicketCategory
	AssigneeID  string
	ReporterID  string
	Provider    valueobject.Provider
	ModelName   string
	ErrorIDs    []string
	Tags        map[string]string
}

// TicketLifecycle управляет созданием тикетов, переходами статусов, SLA и назначением
type TicketLifecycle struct {
	repo       repository.TicketRepository
	policy     *service.TicketPolicy
	assigner   *service.Assigner
	aggregator *service.TicketAggregator
	cache      port.Cache
	cacheTTL   time.Duration
	events     port.TicketEventPublisher
	telemetry  port.Telemetry
	clock      port.Clock
	logger     *logger.Logger

	// счетчик изменений тикетов для записи сводки в кеш
	generation atomic.Uint64
}

// NewTicketLifecycle создает use case. cache и events могут быть nil.
func NewTicketLifecycle(
	repo repository.TicketRepository,
	assigner *service.Assigner,
	cache port.Cache,
	cacheTTL time.Duration,
	events port.TicketEventPublisher,
	telemetry port.Telemetry,
	clock port.Clock,
	logger *logger.Logger,
) *TicketLifecycle {
	if assigner == nil {
		assigner = service.NewAssigner(nil)
	}
	if cacheTTL <= 0 {
		cacheTTL = 60 * time.Second
	}
	if telemetry == nil {
		telemetry = port.NopTelemetry{}
	}
	if clock == nil {
		clock = port.SystemClock{}
	}

	return &TicketLifecycle{
		repo:       repo,
		policy:     service.NewTicketPolicy(),
		assigner:   assigner,
		aggregator: service.NewTicketAggregator(),
		cache:      cache,
		cacheTTL:   cacheTTL,
		events:     events,
		telemetry:  telemetry,
		clock:      clock,
		logger:     logger,
	}
}

// CreateFromError открывает тикет по событию ошибки
func (uc *TicketLifecycle) CreateFromError(ctx context.Context, event *entity.ErrorEvent) (*entity.Ticket, error) {
	now := uc.clock.Now()

	// 1. Серьезность, приоритет и категория
	severity := uc.policy.Severity(event.Severity)
	priority := uc.policy.Priority(event.Severity, event.Category)

	ticket := &entity.Ticket{
		ID:          uuid.New().String(),
		CreatedAt:   now,
		UpdatedAt:   now,
		Title:       uc.policy.Title(event),
		Description: uc.policy.Description(event),
		Status:      valueobject.StatusOpen,
		Priority:    priority,
		Category:    uc.policy.Category(event.Category),
		Severity:    severity,
		Provider:    event.Provider,
		ModelName:   event.ModelName,
		Endpoint:    event.Endpoint,
		UserID:      event.UserID,
		ProjectID:   event.ProjectID,
		ErrorIDs:    []string{event.ID},
		// 2. SLA
		SLADeadline: uc.policy.SLADeadline(now, severity, priority),
		Tags: map[string]string{
			"auto_generated": "true",
			"source":         "error_detection",
		},
	}

	// 3. Автоназначение
	uc.assign(ticket)

	ticket.Record(entity.WorkflowEvent{
		Timestamp: now,
		Actor:     entity.SystemActor,
		Action:    entity.ActionCreated,
		NewStatus: ticket.Status,
		Notes:     "Created from error " + event.ID,
	})

	if err := uc.create(ctx, ticket); err != nil {
		return nil, err
	}

	uc.logger.Info("Created automatic ticket",
		"ticket_id", ticket.ID,
		"error_id", event.ID,
		"title", ticket.Title,
		"priority", ticket.Priority.String(),
		"assignee", ticket.AssigneeID,
	)

	return ticket, nil
}

// SubmitTicket создает тикет вручную. Правила назначения применяются, если исполнитель не указан.
func (uc *TicketLifecycle) SubmitTicket(ctx context.Context, in NewTicket) (*entity.Ticket, error) {
	now := uc.clock.Now()

	category := in.Category
	if category == "" {
		category = valueobject.TicketCategoryGeneral
	}

	tags := make(map[string]string, len(in.Tags))
	for k, v := range in.Tags {
		tags[k] = v
	}

	ticket := &entity.Ticket{
		ID:          uuid.New().String(),
		CreatedAt:   now,
		UpdatedAt:   now,
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Status:      valueobject.StatusOpen,
		Priority:    in.Priority,
		Category:    category,
		Severity:    in.Severity,
		AssigneeID:  in.AssigneeID,
		ReporterID:  in.ReporterID,
		Provider:    in.Provider,
		ModelName:   in.ModelName,
		SLADeadline: uc.policy.SLADeadline(now, in.Severity, in.Priority),
		Tags:        tags,
	}
	for _, id := range in.ErrorIDs {
		ticket.LinkError(id)
	}

	if ticket.AssigneeID == "" {
		uc.assign(ticket)
	}

	actor := in.ReporterID
	if actor == "" {
		actor = entity.SystemActor
	}
	ticket.Record(entity.WorkflowEvent{
		Timestamp: now,
		Actor:     actor,
		Action:    entity.ActionCreated,
		NewStatus: ticket.Status,
	})

	if err := uc.create(ctx, ticket); err != nil {
		return nil, err
	}
	return ticket, nil
}

// UpdateStatus атомарно переводит тикет в новый статус и пишет событие в журнал
func (uc *TicketLifecycle) UpdateStatus(
	ctx context.Context,
	id string,
	newStatus valueobject.TicketStatus,
	actor string,
	notes string,
) (*entity.Ticket, error) {
	var oldStatus valueobject.TicketStatus

	updated, err := uc.repo.Update(ctx, id, func(t *entity.Ticket) error {
		if err := service.ValidateTransition(t.Status, newStatus); err != nil {
			return err
		}

		now := uc.clock.Now()
		oldStatus = t.Status

		t.Status = newStatus
		t.UpdatedAt = now

		switch newStatus {
		case valueobject.StatusInProgress:
			if t.AssigneeID == "" {
				t.AssigneeID = actor
			}
		case valueobject.StatusResolved:
			at := now
			t.ResolvedAt = &at
			t.ResolutionNotes = notes
		case valueobject.StatusClosed:
			at := now
			t.ClosedAt = &at
		}

		t.Record(entity.WorkflowEvent{
			Timestamp: now,
			Actor:     actor,
			Action:    entity.ActionStatusChange,
			OldStatus: oldStatus,
			NewStatus: newStatus,
			Notes:     notes,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.logger.Info("Ticket status updated",
		"ticket_id", id,
		"from", oldStatus.String(),
		"to", newStatus.String(),
		"actor", actor,
	)

	uc.afterMutation(ctx, dto.TicketEventStatusChanged, updated)
	return updated, nil
}

// Escalate применяет правило эскалации к тикету. Правило перепроверяется на свежей копии,
// поэтому параллельное изменение тикета не приводит к лишней эскалации.
// Возвращает false, если правило больше не подходит.
func (uc *TicketLifecycle) Escalate(ctx context.Context, id string, rule service.EscalationRule) (*entity.Ticket, bool, error) {
	errNoLongerMatches := errors.New("rule no longer matches")

	updated, err := uc.repo.Update(ctx, id, func(t *entity.Ticket) error {
		now := uc.clock.Now()
		if !rule.Matches(t, now) {
			return errNoLongerMatches
		}
		rule.Apply(t, now)
		return nil
	})
	if errors.Is(err, errNoLongerMatches) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	uc.telemetry.ObserveTicketEscalated(rule.Name)
	uc.afterMutation(ctx, dto.TicketEventEscalated, updated)
	return updated, true, nil
}

// LinkErrorToRecentTicket прикрепляет ошибку к открытому тикету той же модели и категории,
// созданному не раньше window назад. Возвращает nil, если подходящего тикета нет.
func (uc *TicketLifecycle) LinkErrorToRecentTicket(
	ctx context.Context,
	event *entity.ErrorEvent,
	window time.Duration,
) (*entity.Ticket, error) {
	now := uc.clock.Now()
	recent, err := uc.repo.List(ctx, repository.TicketFilter{
		Provider:     event.Provider,
		ModelName:    event.ModelName,
		Category:     uc.policy.Category(event.Category),
		Unresolved:   true,
		CreatedAfter: now.Add(-window),
		Limit:        1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find recent ticket: %w", err)
	}
	if len(recent) == 0 {
		return nil, nil
	}
	candidate := recent[0]

	updated, err := uc.repo.Update(ctx, candidate.ID, func(t *entity.Ticket) error {
		if !t.LinkError(event.ID) {
			return nil
		}
		now := uc.clock.Now()
		t.UpdatedAt = now
		t.Record(entity.WorkflowEvent{
			Timestamp: now,
			Actor:     entity.SystemActor,
			Action:    entity.ActionErrorLinked,
			OldStatus: t.Status,
			NewStatus: t.Status,
			Notes:     "Linked error " + event.ID,
		})
		return nil
	})
	if errors.Is(err, repository.ErrTicketNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to link error to ticket: %w", err)
	}

	uc.afterMutation(ctx, dto.TicketEventErrorLinked, updated)
	return updated, nil
}

// GetTicket возвращает тикет по идентификатору
func (uc *TicketLifecycle) GetTicket(ctx context.Context, id string) (*entity.Ticket, error) {
	return uc.repo.FindByID(ctx, id)
}

// ListTickets возвращает тикеты по фильтру
func (uc *TicketLifecycle) ListTickets(ctx context.Context, filter repository.TicketFilter) ([]*entity.Ticket, error) {
	return uc.repo.List(ctx, filter)
}

// ListOpenTickets возвращает все незакрытые тикеты
func (uc *TicketLifecycle) ListOpenTickets(ctx context.Context) ([]*entity.Ticket, error) {
	return uc.repo.ListOpen(ctx)
}

// GetMetrics возвращает сводку по тикетам. Результат кешируется на cacheTTL
// и сбрасывается при каждом изменении тикетов.
func (uc *TicketLifecycle) GetMetrics(ctx context.Context) (*dto.TicketMetricsDTO, error) {
	if uc.cache != nil {
		var cached dto.TicketMetricsDTO
		if err := uc.cache.Get(ctx, TicketMetricsCacheKey, &cached); err == nil {
			uc.logger.Debug("Cache hit for ticket metrics")
			return &cached, nil
		} else if !errors.Is(err, port.ErrCacheMiss) {
			uc.logger.Warn("Ticket metrics cache read failed", "error", err)
		}
	}

	// сводка, посчитанная на фоне изменения, в кеш не пишется
	generation := uc.generation.Load()

	tickets, err := uc.repo.List(ctx, repository.TicketFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}

	now := uc.clock.Now()
	metrics := dto.FromTicketStatistics(uc.aggregator.Summarize(tickets, now), now)

	if uc.cache != nil && uc.generation.Load() == generation {
		if err := uc.cache.SetWithTTL(ctx, TicketMetricsCacheKey, metrics, uc.cacheTTL); err != nil {
			uc.logger.Warn("Failed to cache ticket metrics", "error", err)
		}
	}

	return metrics, nil
}

func (uc *TicketLifecycle) assign(ticket *entity.Ticket) {
	if rule, ok := uc.assigner.Assign(ticket); ok {
		uc.logger.Debug("Auto-assigned ticket",
			"ticket_id", ticket.ID,
			"rule", rule,
			"assignee", ticket.AssigneeID,
			"team", ticket.Team,
		)
	}
}

func (uc *TicketLifecycle) create(ctx context.Context, ticket *entity.Ticket) error {
	if err := uc.repo.Create(ctx, ticket); err != nil {
		return fmt.Errorf("failed to store ticket: %w", err)
	}

	uc.telemetry.ObserveTicketCreated(ticket.Category.String(), ticket.Priority.String())
	uc.afterMutation(ctx, dto.TicketEventCreated, ticket)
	return nil
}

// afterMutation сбрасывает кеш сводки и публикует событие тикета
func (uc *TicketLifecycle) afterMutation(ctx context.Context, eventType string, ticket *entity.Ticket) {
	uc.generation.Add(1)

	if uc.cache != nil {
		if err := uc.cache.Delete(ctx, TicketMetricsCacheKey); err != nil {
			uc.logger.Warn("Failed to invalidate ticket metrics cache", "error", err)
		}
	}

	if uc.events != nil {
		now := uc.clock.Now()
		uc.events.PublishTicketEvent(ctx, &dto.TicketEventDTO{
			Type:      eventType,
			Timestamp: now,
			Ticket:    dto.FromTicket(ticket, now),
		})
	}
}
