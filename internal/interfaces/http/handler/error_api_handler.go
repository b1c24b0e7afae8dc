package handler

import (
	"net/http"

	"github.com/dreschagin/reskpoints/internal/application/dto"
	"github.com/dreschagin/reskpoints/internal/application/usecase"
	"github.com/dreschagin/reskpoints/internal/interfaces/http/middleware"
	"github.com/dreschagin/reskpoints/pkg/logger"
)

// ErrorAPIHandler принимает события ошибок AI-сервисов
type ErrorAPIHandler struct {
	service *usecase.SubmissionService
	logger  *logger.Logger
}

func NewErrorAPIHandler(service *usecase.SubmissionService, logger *logger.Logger) *ErrorAPIHandler {
	return &ErrorAPIHandler{service: service, logger: logger}
}

// SubmitError принимает одно событие ошибки
func (h *ErrorAPIHandler) SubmitError(w http.ResponseWriter, r *http.Request) {
	var req dto.ErrorRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	event, err := h.service.SubmitError(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	middleware.WriteJSON(w, http.StatusAccepted, event)
}
