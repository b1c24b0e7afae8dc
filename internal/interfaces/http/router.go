package http

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dreschagin/reskpoints/internal/infrastructure/observability/metrics"
	"github.com/dreschagin/reskpoints/internal/interfaces/http/handler"
	"github.com/dreschagin/reskpoints/internal/interfaces/http/middleware"
	"github.com/dreschagin/reskpoints/pkg/config"
	"github.com/dreschagin/reskpoints/pkg/logger"
)

const readinessTimeout = 2 * time.Second

// Pinger - зависимость, доступность которой проверяет /readyz
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers - обработчики API
type Handlers struct {
	Metrics    *handler.MetricsAPIHandler
	Errors     *handler.ErrorAPIHandler
	Tickets    *handler.TicketAPIHandler
	Escalation *handler.EscalationAPIHandler
	WebSocket  *handler.WebSocketHandler
}

// Router настраивает маршруты приложения
type Router struct {
	mux       *http.ServeMux
	handlers  Handlers
	metrics   *metrics.Metrics
	gatherer  prometheus.Gatherer
	readiness map[string]Pinger
	limiter   *middleware.IPRateLimiter
	security  config.SecurityConfig
	logger    *logger.Logger
}

// NewRouter создает новый router. metrics и gatherer могут быть nil.
func NewRouter(
	handlers Handlers,
	m *metrics.Metrics,
	gatherer prometheus.Gatherer,
	readiness map[string]Pinger,
	security config.SecurityConfig,
	logger *logger.Logger,
) *Router {
	rt := &Router{
		mux:       http.NewServeMux(),
		handlers:  handlers,
		metrics:   m,
		gatherer:  gatherer,
		readiness: readiness,
		security:  security,
		logger:    logger,
	}
	if security.RateLimitRPS > 0 {
		rt.limiter = middleware.NewIPRateLimiter(security.RateLimitRPS, security.RateLimitBurst)
	}
	return rt
}

// Setup настраивает все маршруты
func (rt *Router) Setup() http.Handler {
	// Пробы не требуют авторизации
	rt.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	rt.mux.HandleFunc("GET /readyz", rt.ready)

	if rt.gatherer != nil {
		rt.mux.Handle("GET /metrics", promhttp.HandlerFor(rt.gatherer, promhttp.HandlerOpts{}))
	}

	auth := middleware.Auth(middleware.AuthConfig{
		Enabled:     rt.security.AuthEnabled,
		BearerToken: rt.security.AuthToken,
	}, rt.logger)

	read := func(h http.HandlerFunc) http.Handler {
		return auth(middleware.Compression(h))
	}
	write := func(h http.HandlerFunc) http.Handler {
		var next http.Handler = h
		if rt.limiter != nil {
			next = middleware.RateLimit(rt.limiter)(next)
		}
		return auth(next)
	}

	h := rt.handlers

	// Прием данных
	rt.mux.Handle("POST /api/v1/metrics", write(h.Metrics.SubmitMetrics))
	rt.mux.Handle("POST /api/v1/errors", write(h.Errors.SubmitError))
	rt.mux.Handle("GET /api/v1/models/{provider}/{model}/metrics", read(h.Metrics.GetModelMetrics))

	// Тикеты
	rt.mux.Handle("POST /api/v1/tickets", write(h.Tickets.Create))
	rt.mux.Handle("GET /api/v1/tickets", read(h.Tickets.List))
	rt.mux.Handle("GET /api/v1/tickets/metrics", read(h.Tickets.Metrics))
	rt.mux.Handle("GET /api/v1/tickets/{id}", read(h.Tickets.Get))
	rt.mux.Handle("POST /api/v1/tickets/{id}/status", write(h.Tickets.UpdateStatus))

	rt.mux.Handle("GET /api/v1/escalations/status", read(h.Escalation.Status))

	// WebSocket
	if h.WebSocket != nil {
		rt.mux.Handle("GET /ws", auth(http.HandlerFunc(h.WebSocket.HandleConnection)))
	}

	// Применяем middleware
	var handler http.Handler = rt.mux
	handler = middleware.Logger(rt.logger)(handler)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(handler)
	}
	handler = middleware.Recovery(rt.logger)(handler)

	return handler
}

// Close останавливает фоновые задачи router
func (rt *Router) Close() {
	if rt.limiter != nil {
		rt.limiter.Stop()
	}
}

func (rt *Router) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	failed := make(map[string]string)
	for name, p := range rt.readiness {
		if p == nil {
			continue
		}
		if err := p.Ping(ctx); err != nil {
			rt.logger.Warn("Readiness check failed", "dependency", name, "error", err)
			failed[name] = err.Error()
		}
	}

	if len(failed) > 0 {
		middleware.WriteJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "not_ready",
			"checks": failed,
		})
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
