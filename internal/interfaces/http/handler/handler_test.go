package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dreschagin/reskpoints/internal/application/dto"
	"github.com/dreschagin/reskpoints/internal/application/usecase"
	wsInfra "github.com/dreschagin/reskpoints/internal/infrastructure/notification/websocket"
	"github.com/dreschagin/reskpoints/internal/interfaces/http/middleware"
	"github.com/dreschagin/reskpoints/pkg/logger"
)

func TestWriteError_MapsKindToStatus(t *testing.T) {
	tests := []struct {
		err     error
		status  int
		kind    string
		message string
	}{
		{&usecase.Error{Kind: usecase.KindValidation, Message: "title: is required"}, http.StatusBadRequest, "validation", "title: is required"},
		{&usecase.Error{Kind: usecase.KindNotFound, Message: "ticket not found"}, http.StatusNotFound, "not_found", "ticket not found"},
		{&usecase.Error{Kind: usecase.KindInvalidTransition, Message: "closed -> in_progress"}, http.StatusConflict, "invalid_transition", "closed -> in_progress"},
		{&usecase.Error{Kind: usecase.KindUnavailable, Message: "ingestion is shutting down"}, http.StatusServiceUnavailable, "unavailable", "ingestion is shutting down"},
		{fmt.Errorf("wrapped: %w", &usecase.Error{Kind: usecase.KindInternal, Message: "db password leaked"}), http.StatusInternalServerError, "internal", "internal server error"},
		{errors.New("raw failure"), http.StatusInternalServerError, "internal", "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, logger.New("error"), httptest.NewRequest(http.MethodGet, "/", nil), tt.err)

			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			var body middleware.ErrorBody
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Error.Kind != tt.kind || body.Error.Message != tt.message {
				t.Fatalf("body = %+v, want kind=%s message=%s", body.Error, tt.kind, tt.message)
			}
		})
	}
}

func TestMetricsAPIHandler_ParseWindow(t *testing.T) {
	h := NewMetricsAPIHandler(nil, 7*24*time.Hour, logger.New("error"))

	tests := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{"", 24 * time.Hour, false},
		{"90m", 90 * time.Minute, false},
		{"6h", 6 * time.Hour, false},
		{"7d", 7 * 24 * time.Hour, false},
		{"8d", 0, true},
		{"0s", 0, true},
		{"-1h", 0, true},
		{"soon", 0, true},
		{"xd", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := h.parseWindow(tt.raw)
			if tt.wantErr {
				if usecase.KindOf(err) != usecase.KindValidation {
					t.Fatalf("parseWindow(%q) error = %v, want validation error", tt.raw, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseWindow(%q) unexpected error: %v", tt.raw, err)
			}
			if got != tt.want {
				t.Fatalf("parseWindow(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestWebSocketHandler_CheckOrigin(t *testing.T) {
	h := NewWebSocketHandler(nil, []string{"https://ops.example.com", " "}, middleware.AuthConfig{}, logger.New("error"))

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"https://ops.example.com", true},
		{"https://ops.example.com/dashboard", true},
		{"https://evil.example.com", false},
		{"not a url", false},
	}

	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := h.checkOrigin(r); got != tt.want {
				t.Fatalf("checkOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}

func TestWebSocketHandler_RejectsUnknownMessageType(t *testing.T) {
	h := NewWebSocketHandler(nil, nil, middleware.AuthConfig{}, logger.New("error"))

	rec := httptest.NewRecorder()
	h.HandleConnection(rec, httptest.NewRequest(http.MethodGet, "/ws?types=alert,metrics", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestWebSocketHandler_DeliversOnlySubscribedMessages(t *testing.T) {
	hub := wsInfra.NewHub(logger.New("error"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	h := NewWebSocketHandler(hub, nil, middleware.AuthConfig{}, logger.New("error"))
	srv := httptest.NewServer(http.HandlerFunc(h.HandleConnection))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?types=ticket_event&provider=openai"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client was not registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.Notify(ctx, &dto.AlertDTO{ID: "alert-1", Kind: dto.AlertKindCriticalError})
	hub.PublishTicketEvent(ctx, &dto.TicketEventDTO{
		Type:   dto.TicketEventCreated,
		Ticket: &dto.TicketDTO{ID: "anthropic-ticket", Provider: "anthropic"},
	})
	hub.PublishTicketEvent(ctx, &dto.TicketEventDTO{
		Type:   dto.TicketEventCreated,
		Ticket: &dto.TicketDTO{ID: "openai-ticket", Provider: "openai"},
	})

	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("set deadline: %v", err)
	}
	var msg wsInfra.Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != wsInfra.MessageTicketEvent || msg.Ticket == nil || msg.Ticket.Ticket.ID != "openai-ticket" {
		t.Fatalf("unexpected first message: %+v", msg)
	}
	if msg.Alert != nil {
		t.Fatal("ticket event must not carry an alert payload")
	}
}
