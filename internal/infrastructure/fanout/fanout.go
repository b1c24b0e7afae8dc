// Package fanout combines several adapters behind one application port.
package fanout

import (
	"context"
	"errors"
	"fmt"

	"github.com/dreschagin/reskpoints/internal/application/dto"
	"github.com/dreschagin/reskpoints/internal/application/port"
	"github.com/dreschagin/reskpoints/internal/domain/entity"
	"github.com/dreschagin/reskpoints/pkg/logger"
)

// NamedSink - sink с именем для сообщений об ошибках
type NamedSink struct {
	Name string
	Sink port.MetricSink
}

// Sinks вызывает каждый sink по порядку и объединяет ошибки через errors.Join.
// Отказ одного sink не мешает остальным получить пакет.
type Sinks struct {
	sinks []NamedSink
}

var _ port.MetricSink = (*Sinks)(nil)

func NewSinks(sinks ...NamedSink) *Sinks {
	return &Sinks{sinks: sinks}
}

// Len возвращает число подключенных sink
func (f *Sinks) Len() int {
	return len(f.sinks)
}

func (f *Sinks) FlushMetrics(ctx context.Context, batch []*entity.MetricSample) error {
	if len(batch) == 0 {
		return nil
	}
	var errs []error
	for _, s := range f.sinks {
		if err := s.Sink.FlushMetrics(ctx, batch); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (f *Sinks) FlushErrors(ctx context.Context, batch []*entity.ErrorEvent) error {
	if len(batch) == 0 {
		return nil
	}
	var errs []error
	for _, s := range f.sinks {
		if err := s.Sink.FlushErrors(ctx, batch); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Notifiers рассылает алерт всем получателям
type Notifiers []port.AlertNotifier

var _ port.AlertNotifier = Notifiers(nil)

func (n Notifiers) Notify(ctx context.Context, alert *dto.AlertDTO) {
	for _, notifier := range n {
		notifier.Notify(ctx, alert)
	}
}

// TicketEvents рассылает события тикетов всем подписчикам
type TicketEvents []port.TicketEventPublisher

var _ port.TicketEventPublisher = TicketEvents(nil)

func (p TicketEvents) PublishTicketEvent(ctx context.Context, event *dto.TicketEventDTO) {
	for _, publisher := range p {
		publisher.PublishTicketEvent(ctx, event)
	}
}

// LogNotifier пишет алерты в лог сервиса
type LogNotifier struct {
	logger *logger.Logger
}

var _ port.AlertNotifier = (*LogNotifier)(nil)

func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{logger: log}
}

func (n *LogNotifier) Notify(_ context.Context, alert *dto.AlertDTO) {
	if alert == nil {
		return
	}

	kv := []interface{}{
		"alert_id", alert.ID,
		"kind", alert.Kind,
		"level", alert.Level,
	}
	if alert.Rule != "" {
		kv = append(kv, "rule", alert.Rule)
	}
	if alert.Ticket != nil {
		kv = append(kv, "ticket_id", alert.Ticket.ID)
	}
	if alert.Error != nil {
		kv = append(kv, "error_id", alert.Error.ID, "provider", alert.Error.Provider)
	}

	n.logger.Warn("ALERT: "+alert.Message, kv...)
}
