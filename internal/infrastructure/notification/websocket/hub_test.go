package websocket

import (
	"context"
	"testing"
	"time"

	"github.com/dreschagin/reskpoints/internal/application/dto"
	"github.com/dreschagin/reskpoints/pkg/logger"
)

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()

	hub := NewHub(logger.New("error"))
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub, cancel
}

func receive(t *testing.T, c *Client) (Message, bool) {
	t.Helper()

	select {
	case msg, ok := <-c.send:
		return msg, ok
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return Message{}, false
	}
}

func TestHub_BroadcastsAlertsAndTicketEvents(t *testing.T) {
	hub, _ := startHub(t)

	a := NewClient(hub, nil, Subscription{}, logger.New("error"))
	b := NewClient(hub, nil, Subscription{}, logger.New("error"))
	hub.Register(a)
	hub.Register(b)

	hub.Notify(context.Background(), &dto.AlertDTO{ID: "alert-1", Kind: dto.AlertKindCriticalError})
	hub.PublishTicketEvent(context.Background(), &dto.TicketEventDTO{Type: dto.TicketEventCreated})

	for _, c := range []*Client{a, b} {
		first, _ := receive(t, c)
		if first.Type != MessageAlert {
			t.Fatalf("expected alert first, got %s", first.Type)
		}
		if first.Alert == nil || first.Alert.ID != "alert-1" {
			t.Fatalf("unexpected alert payload: %#v", first.Alert)
		}

		second, _ := receive(t, c)
		if second.Type != MessageTicketEvent {
			t.Fatalf("expected ticket event second, got %s", second.Type)
		}
	}

	if hub.ClientCount() != 2 {
		t.Fatalf("expected 2 clients, got %d", hub.ClientCount())
	}
}

func TestHub_SlowClientIsDisconnected(t *testing.T) {
	hub, _ := startHub(t)

	slow := NewClient(hub, nil, Subscription{}, logger.New("error"))
	hub.Register(slow)

	for i := 0; i <= sendBuffer; i++ {
		hub.BroadcastAlert(&dto.AlertDTO{Kind: dto.AlertKindEscalation})
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("slow client was not disconnected")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_StopClosesClients(t *testing.T) {
	hub, cancel := startHub(t)

	c := NewClient(hub, nil, Subscription{}, logger.New("error"))
	hub.Register(c)
	cancel()

	if _, ok := receive(t, c); ok {
		t.Fatal("expected client channel to be closed")
	}

	// после остановки регистрация и отключение не блокируются
	late := NewClient(hub, nil, Subscription{}, logger.New("error"))
	hub.Register(late)
	hub.Unregister(late)
}

func TestHub_DeliversBySubscription(t *testing.T) {
	hub, _ := startHub(t)

	all := NewClient(hub, nil, Subscription{}, logger.New("error"))
	tickets := NewClient(hub, nil, Subscription{Types: map[string]bool{MessageTicketEvent: true}}, logger.New("error"))
	openai := NewClient(hub, nil, Subscription{Provider: "openai"}, logger.New("error"))
	for _, c := range []*Client{all, tickets, openai} {
		hub.Register(c)
	}

	hub.BroadcastAlert(&dto.AlertDTO{
		ID:    "anthropic-alert",
		Kind:  dto.AlertKindCriticalError,
		Error: &dto.ErrorDTO{Provider: "anthropic", ModelName: "claude"},
	})
	hub.BroadcastTicketEvent(&dto.TicketEventDTO{
		Type:   dto.TicketEventCreated,
		Ticket: &dto.TicketDTO{ID: "openai-ticket", Provider: "openai"},
	})

	if msg, _ := receive(t, all); msg.Type != MessageAlert {
		t.Fatalf("unfiltered client: expected alert first, got %s", msg.Type)
	}
	if msg, _ := receive(t, all); msg.Type != MessageTicketEvent {
		t.Fatalf("unfiltered client: expected ticket event second, got %s", msg.Type)
	}
	if msg, _ := receive(t, tickets); msg.Ticket == nil || msg.Ticket.Ticket.ID != "openai-ticket" {
		t.Fatalf("ticket subscriber got %+v", msg)
	}
	if msg, _ := receive(t, openai); msg.Ticket == nil || msg.Ticket.Ticket.ID != "openai-ticket" {
		t.Fatalf("openai subscriber got %+v", msg)
	}
}

func TestClient_HandleControl(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantErr  bool
		wantType string
		provider string
	}{
		{name: "subscribe", raw: `{"action":"subscribe","types":["alert"],"provider":"openai"}`, wantType: MessageAlert, provider: "openai"},
		{name: "unknown action", raw: `{"action":"unsubscribe"}`, wantErr: true},
		{name: "unknown type", raw: `{"action":"subscribe","types":["metrics"]}`, wantErr: true},
		{name: "not json", raw: `subscribe alert`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			initial := Subscription{Model: "gpt-4o"}
			c := NewClient(nil, nil, initial, logger.New("error"))

			err := c.handleControl([]byte(tt.raw))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if got := c.Subscription(); got.Model != initial.Model || len(got.Types) != 0 {
					t.Fatalf("subscription changed on error: %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			got := c.Subscription()
			if !got.Types[tt.wantType] || len(got.Types) != 1 {
				t.Fatalf("types = %v, want only %s", got.Types, tt.wantType)
			}
			if got.Provider != tt.provider || got.Model != "" {
				t.Fatalf("unexpected source filter: %+v", got)
			}
		})
	}
}

func TestSubscription_Matches(t *testing.T) {
	alert := Message{Type: MessageAlert, Alert: &dto.AlertDTO{Error: &dto.ErrorDTO{Provider: "openai", ModelName: "gpt-4o"}}}
	escalation := Message{Type: MessageAlert, Alert: &dto.AlertDTO{Kind: dto.AlertKindEscalation}}

	tests := []struct {
		name string
		sub  Subscription
		msg  Message
		want bool
	}{
		{"empty filter", Subscription{}, alert, true},
		{"type filtered out", Subscription{Types: map[string]bool{MessageTicketEvent: true}}, alert, false},
		{"provider case insensitive", Subscription{Provider: "OpenAI"}, alert, true},
		{"other provider", Subscription{Provider: "anthropic"}, alert, false},
		{"other model", Subscription{Model: "gpt-4o-mini"}, alert, false},
		{"message without source", Subscription{Provider: "anthropic"}, escalation, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.sub.Matches(tt.msg); got != tt.want {
				t.Fatalf("Matches = %v, want %v", got, tt.want)
			}
		})
	}
}
