package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dreschagin/reskpoints/pkg/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10

	// входящие кадры - pong, close и команды подписки
	maxControlSize = 1024

	sendBuffer = 64
)

// Client - подписчик живой ленты алертов и событий тикетов
type Client struct {
	conn   *websocket.Conn
	hub    *Hub
	send   chan Message
	logger *logger.Logger

	mu  sync.RWMutex
	sub Subscription
}

// NewClient создает клиента с начальной подпиской
func NewClient(hub *Hub, conn *websocket.Conn, sub Subscription, logger *logger.Logger) *Client {
	return &Client{
		conn:   conn,
		hub:    hub,
		send:   make(chan Message, sendBuffer),
		logger: logger,
		sub:    sub,
	}
}

// Subscription возвращает текущий фильтр клиента
func (c *Client) Subscription() Subscription {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sub
}

// handleControl применяет команду подписки; при ошибке фильтр не меняется
func (c *Client) handleControl(raw []byte) error {
	sub, err := parseControl(raw)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.sub = sub
	c.mu.Unlock()
	return nil
}

// ReadPump читает команды подписки до закрытия соединения
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxControlSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error("WebSocket set read deadline error", err)
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket read error", err)
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		if err := c.handleControl(raw); err != nil {
			c.logger.Warn("WebSocket control message rejected",
				"remote_addr", c.conn.RemoteAddr().String(),
				"error", err.Error(),
			)
		}
	}
}

// WritePump отправляет сообщения ленты и ping до закрытия канала send
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				// hub отключил клиента
				_ = c.write(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				c.logger.Error("WebSocket write error", err, "type", msg.Type)
				return
			}

		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) write(kind int, payload []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(kind, payload)
}
