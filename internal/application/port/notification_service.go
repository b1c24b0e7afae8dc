package port

import "github.com/dreschagin/reskpoints/internal/application/dto"

// NotificationService рассылает события подключенным клиентам живой ленты (Port)
// Реализация будет в Infrastructure слое (WebSocket Hub)
type NotificationService interface {
	// BroadcastAlert отправляет alert всем подключенным клиентам
	BroadcastAlert(alert *dto.AlertDTO)

	// BroadcastTicketEvent отправляет событие тикета всем подключенным клиентам
	BroadcastTicketEvent(event *dto.TicketEventDTO)

	// ClientCount возвращает количество подключенных клиентов
	ClientCount() int
}
