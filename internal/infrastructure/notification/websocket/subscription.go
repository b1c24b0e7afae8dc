package websocket

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dreschagin/reskpoints/internal/application/dto"
)

// Типы сообщений живой ленты
const (
	MessageAlert       = "alert"
	MessageTicketEvent = "ticket_event"
)

// Message - сообщение ленты. Заполнено ровно одно из полей Alert и Ticket.
type Message struct {
	Type   string              `json:"type"`
	Alert  *dto.AlertDTO       `json:"alert,omitempty"`
	Ticket *dto.TicketEventDTO `json:"ticket,omitempty"`
}

// source возвращает провайдера и модель, к которым относится сообщение
func (m Message) source() (provider, model string) {
	switch {
	case m.Alert != nil && m.Alert.Error != nil:
		return m.Alert.Error.Provider, m.Alert.Error.ModelName
	case m.Alert != nil && m.Alert.Ticket != nil:
		return m.Alert.Ticket.Provider, m.Alert.Ticket.ModelName
	case m.Ticket != nil && m.Ticket.Ticket != nil:
		return m.Ticket.Ticket.Provider, m.Ticket.Ticket.ModelName
	}
	return "", ""
}

// Subscription - фильтр клиента ленты. Пустые поля означают "все".
type Subscription struct {
	Types    map[string]bool
	Provider string
	Model    string
}

// ParseSubscription разбирает список типов через запятую и фильтры источника
func ParseSubscription(types, provider, model string) (Subscription, error) {
	sub := Subscription{
		Provider: strings.TrimSpace(provider),
		Model:    strings.TrimSpace(model),
	}

	for _, raw := range strings.Split(types, ",") {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		if name != MessageAlert && name != MessageTicketEvent {
			return Subscription{}, fmt.Errorf("unknown message type %q", name)
		}
		if sub.Types == nil {
			sub.Types = make(map[string]bool, 2)
		}
		sub.Types[name] = true
	}

	return sub, nil
}

// Matches проверяет, нужно ли сообщение подписчику.
// Сообщение без провайдера или модели проходит фильтр по источнику.
func (s Subscription) Matches(msg Message) bool {
	if len(s.Types) > 0 && !s.Types[msg.Type] {
		return false
	}

	provider, model := msg.source()
	if s.Provider != "" && provider != "" && !strings.EqualFold(s.Provider, provider) {
		return false
	}
	if s.Model != "" && model != "" && s.Model != model {
		return false
	}
	return true
}

// controlMessage - команда клиента, присланная по открытому соединению
type controlMessage struct {
	Action   string   `json:"action"`
	Types    []string `json:"types"`
	Provider string   `json:"provider"`
	Model    string   `json:"model"`
}

const actionSubscribe = "subscribe"

func parseControl(raw []byte) (Subscription, error) {
	var ctl controlMessage
	if err := json.Unmarshal(raw, &ctl); err != nil {
		return Subscription{}, fmt.Errorf("invalid control message: %w", err)
	}
	if ctl.Action != actionSubscribe {
		return Subscription{}, fmt.Errorf("unknown action %q", ctl.Action)
	}
	return ParseSubscription(strings.Join(ctl.Types, ","), ctl.Provider, ctl.Model)
}
