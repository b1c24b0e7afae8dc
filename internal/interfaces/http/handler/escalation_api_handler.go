package handler

import (
	"net/http"

	"github.com/dreschagin/reskpoints/internal/application/dto"
	"github.com/dreschagin/reskpoints/internal/application/usecase"
	"github.com/dreschagin/reskpoints/internal/interfaces/http/middleware"
)

// EscalationStatusProvider отдает снимок состояния движка эскалации
type EscalationStatusProvider interface {
	Snapshot() usecase.EscalationSnapshot
}

type EscalationAPIHandler struct {
	engine EscalationStatusProvider
}

// NewEscalationAPIHandler создает handler. engine может быть nil, если эскалация выключена.
func NewEscalationAPIHandler(engine EscalationStatusProvider) *EscalationAPIHandler {
	return &EscalationAPIHandler{engine: engine}
}

// Status возвращает состояние движка эскалации
func (h *EscalationAPIHandler) Status(w http.ResponseWriter, _ *http.Request) {
	if h.engine == nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, string(usecase.KindUnavailable), "escalation engine is disabled")
		return
	}

	s := h.engine.Snapshot()
	lastEscalated := s.LastEscalated
	if lastEscalated == nil {
		lastEscalated = []string{}
	}

	middleware.WriteJSON(w, http.StatusOK, dto.EscalationStatusDTO{
		Running:          s.Running,
		Interval:         s.Interval.String(),
		LastRunAt:        s.LastRunAt,
		LastEscalated:    lastEscalated,
		TotalEscalations: s.TotalEscalations,
		LastError:        s.LastError,
	})
}
