package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dreschagin/reskpoints/internal/domain/entity"
	"github.com/dreschagin/reskpoints/internal/domain/valueobject"
	"github.com/dreschagin/reskpoints/pkg/logger"
)

// IncidentBridgeConfig задает порог серьезности и окно дедупликации
type IncidentBridgeConfig struct {
	MinSeverity valueobject.Severity
	DedupWindow time.Duration
}

// IncidentBridge открывает тикеты по принятым ошибкам.
// Ошибка ниже порога игнорируется; повтор в пределах окна прикрепляется к уже открытому тикету.
type IncidentBridge struct {
	lifecycle *TicketLifecycle
	cfg       IncidentBridgeConfig
	logger    *logger.Logger

	// поиск дубликата и создание тикета сериализуются только внутри ключа дедупликации
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// NewIncidentBridge создает мост между ingestion и тикетами
func NewIncidentBridge(lifecycle *TicketLifecycle, cfg IncidentBridgeConfig, logger *logger.Logger) *IncidentBridge {
	if cfg.MinSeverity == "" {
		cfg.MinSeverity = valueobject.SeverityMedium
	}
	return &IncidentBridge{
		lifecycle: lifecycle,
		cfg:       cfg,
		logger:    logger,
		locks:     make(map[string]*keyLock),
	}
}

// OnError реализует port.ErrorObserver. Сбои логируются и не возвращаются отправителю.
func (b *IncidentBridge) OnError(ctx context.Context, event *entity.ErrorEvent) {
	if event == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Incident bridge panic", fmt.Errorf("%v", r), "error_id", event.ID)
		}
	}()

	if !event.Severity.AtLeast(b.cfg.MinSeverity) {
		b.logger.Debug("Error below ticket threshold",
			"error_id", event.ID,
			"severity", event.Severity.String(),
		)
		return
	}

	unlock := b.lock(b.dedupKey(event))
	defer unlock()

	if b.cfg.DedupWindow > 0 {
		linked, err := b.lifecycle.LinkErrorToRecentTicket(ctx, event, b.cfg.DedupWindow)
		if err != nil {
			b.logger.Warn("Dedup lookup failed, opening a new ticket", "error_id", event.ID, "error", err)
		}
		if linked != nil {
			b.logger.Info("Error attached to existing ticket",
				"error_id", event.ID,
				"ticket_id", linked.ID,
			)
			return
		}
	}

	if _, err := b.lifecycle.CreateFromError(ctx, event); err != nil {
		b.logger.Error("Failed to open ticket from error", err, "error_id", event.ID)
	}
}

// dedupKey совпадает с условием поиска дубликата: провайдер, модель и категория тикета
func (b *IncidentBridge) dedupKey(event *entity.ErrorEvent) string {
	category := b.lifecycle.policy.Category(event.Category)
	return event.Provider.String() + "|" + event.ModelName + "|" + category.String()
}

func (b *IncidentBridge) lock(key string) func() {
	b.mu.Lock()
	l, ok := b.locks[key]
	if !ok {
		l = &keyLock{}
		b.locks[key] = l
	}
	l.refs++
	b.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		b.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(b.locks, key)
		}
		b.mu.Unlock()
	}
}
