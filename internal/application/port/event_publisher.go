package port

import (
	"context"

	"github.com/dreschagin/reskpoints/internal/application/dto"
)

// EventPublisher defines the interface for publishing events to a message broker
type EventPublisher interface {
	// PublishEvent publishes an event to the specified subject
	PublishEvent(ctx context.Context, subject string, event interface{}) error

	// Close closes the connection to the message broker
	Close() error
}

// AlertNotifier delivers alerts. Delivery is best-effort: implementations log failures and never block the caller for long.
type AlertNotifier interface {
	Notify(ctx context.Context, alert *dto.AlertDTO)
}

// TicketEventPublisher announces ticket mutations to live subscribers
type TicketEventPublisher interface {
	PublishTicketEvent(ctx context.Context, event *dto.TicketEventDTO)
}
