package handler

import (
	"net/http"
	"strconv"

	"github.com/dreschagin/reskpoints/internal/application/dto"
	"github.com/dreschagin/reskpoints/internal/application/usecase"
	"github.com/dreschagin/reskpoints/internal/interfaces/http/middleware"
	"github.com/dreschagin/reskpoints/pkg/logger"
)

// TicketAPIHandler обрабатывает API тикетов
type TicketAPIHandler struct {
	service *usecase.SubmissionService
	logger  *logger.Logger
}

// NewTicketAPIHandler создает новый handler
func NewTicketAPIHandler(service *usecase.SubmissionService, logger *logger.Logger) *TicketAPIHandler {
	return &TicketAPIHandler{service: service, logger: logger}
}

// Create открывает тикет вручную
func (h *TicketAPIHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.TicketRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	ticket, err := h.service.SubmitTicket(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	w.Header().Set("Location", "/api/v1/tickets/"+ticket.ID)
	middleware.WriteJSON(w, http.StatusCreated, ticket)
}

// Get возвращает тикет по идентификатору
func (h *TicketAPIHandler) Get(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.service.GetTicket(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, ticket)
}

// List возвращает тикеты по фильтрам status, priority, assignee и limit
func (h *TicketAPIHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	q := usecase.TicketQuery{
		Status:   query.Get("status"),
		Priority: query.Get("priority"),
		Assignee: query.Get("assignee"),
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, h.logger, r, &usecase.Error{Kind: usecase.KindValidation, Message: "limit: must be an integer", Err: err})
			return
		}
		q.Limit = limit
	}

	tickets, err := h.service.ListTickets(r.Context(), q)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"tickets": tickets,
		"count":   len(tickets),
	})
}

// UpdateStatus переводит тикет в новый статус
func (h *TicketAPIHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req dto.StatusUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	ticket, err := h.service.UpdateTicketStatus(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, ticket)
}

// Metrics возвращает сводную статистику по тикетам
func (h *TicketAPIHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.service.GetTicketMetrics(r.Context())
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, metrics)
}
