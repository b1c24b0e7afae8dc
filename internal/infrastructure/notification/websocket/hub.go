package websocket

import (
	"context"
	"sync"

	"github.com/dreschagin/reskpoints/internal/application/dto"
	"github.com/dreschagin/reskpoints/internal/application/port"
	"github.com/dreschagin/reskpoints/pkg/logger"
)

// Hub управляет WebSocket клиентами и рассылает алерты и события тикетов.
// Реализует port.NotificationService, port.AlertNotifier и port.TicketEventPublisher.
type Hub struct {
	clients map[*Client]bool

	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu sync.RWMutex

	logger *logger.Logger
}

var (
	_ port.NotificationService  = (*Hub)(nil)
	_ port.AlertNotifier        = (*Hub)(nil)
	_ port.TicketEventPublisher = (*Hub)(nil)
)

// NewHub создает новый WebSocket hub
func NewHub(logger *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run обслуживает регистрацию и рассылку до отмены ctx.
// При остановке все клиентские каналы закрываются.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("WebSocket hub started")

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("Client registered", "total_clients", total)

		case client := <-h.unregister:
			h.mu.Lock()
			h.dropLocked(client)
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("Client unregistered", "total_clients", total)

		case msg := <-h.broadcast:
			h.deliver(msg)

		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for client := range h.clients {
				h.dropLocked(client)
			}
			h.mu.Unlock()
			h.logger.Info("WebSocket hub stopped")
			return
		}
	}
}

// deliver рассылает сообщение подписанным клиентам; медленный клиент с заполненным каналом отключается
func (h *Hub) deliver(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		if !client.Subscription().Matches(msg) {
			continue
		}
		select {
		case client.send <- msg:
		default:
			h.dropLocked(client)
			h.logger.Warn("Client channel full, disconnected", "type", msg.Type)
		}
	}
}

func (h *Hub) dropLocked(client *Client) {
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
}

// Register регистрирует нового клиента. После остановки hub клиент сразу отключается.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.send)
	}
}

// Unregister удаляет клиента
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// BroadcastAlert ставит алерт в очередь рассылки
func (h *Hub) BroadcastAlert(alert *dto.AlertDTO) {
	h.enqueue(Message{Type: MessageAlert, Alert: alert})
}

// BroadcastTicketEvent ставит событие тикета в очередь рассылки
func (h *Hub) BroadcastTicketEvent(event *dto.TicketEventDTO) {
	h.enqueue(Message{Type: MessageTicketEvent, Ticket: event})
}

// Notify реализует port.AlertNotifier
func (h *Hub) Notify(_ context.Context, alert *dto.AlertDTO) {
	h.BroadcastAlert(alert)
}

// PublishTicketEvent реализует port.TicketEventPublisher
func (h *Hub) PublishTicketEvent(_ context.Context, event *dto.TicketEventDTO) {
	h.BroadcastTicketEvent(event)
}

func (h *Hub) enqueue(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("Broadcast channel full, dropping message", "type", msg.Type)
	}
}

// ClientCount возвращает количество подключенных клиентов
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
