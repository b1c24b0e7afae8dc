package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dreschagin/reskpoints/internal/application/dto"
	"github.com/dreschagin/reskpoints/internal/application/usecase"
	"github.com/dreschagin/reskpoints/internal/interfaces/http/middleware"
	"github.com/dreschagin/reskpoints/pkg/logger"
)

const defaultReportWindow = 24 * time.Hour

// MetricsAPIHandler обрабатывает прием измерений и отчеты по моделям
type MetricsAPIHandler struct {
	service   *usecase.SubmissionService
	maxWindow time.Duration
	logger    *logger.Logger
}

// NewMetricsAPIHandler создает новый handler
func NewMetricsAPIHandler(
	service *usecase.SubmissionService,
	maxWindow time.Duration,
	logger *logger.Logger,
) *MetricsAPIHandler {
	if maxWindow <= 0 {
		maxWindow = 30 * 24 * time.Hour
	}

	return &MetricsAPIHandler{
		service:   service,
		maxWindow: maxWindow,
		logger:    logger,
	}
}

// metricSubmission принимает как одиночный объект, так и {"metrics": [...]}
type metricSubmission struct {
	dto.MetricRequest
	Metrics []dto.MetricRequest `json:"metrics"`
}

// SubmitMetrics принимает одно измерение или пакет
func (h *MetricsAPIHandler) SubmitMetrics(w http.ResponseWriter, r *http.Request) {
	var body metricSubmission
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	if body.Metrics != nil {
		result, err := h.service.SubmitMetrics(r.Context(), body.Metrics)
		if err != nil {
			writeError(w, h.logger, r, err)
			return
		}
		middleware.WriteJSON(w, http.StatusAccepted, result)
		return
	}

	metric, err := h.service.SubmitMetric(r.Context(), body.MetricRequest)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusAccepted, metric)
}

// GetModelMetrics возвращает отчет по модели за окно ?window= (24h по умолчанию)
func (h *MetricsAPIHandler) GetModelMetrics(w http.ResponseWriter, r *http.Request) {
	window, err := h.parseWindow(r.URL.Query().Get("window"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	report, err := h.service.GetModelMetrics(r.Context(), r.PathValue("provider"), r.PathValue("model"), window)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, report)
}

// parseWindow понимает длительности Go ("90m", "24h") и дни ("7d")
func (h *MetricsAPIHandler) parseWindow(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return defaultReportWindow, nil
	}

	var (
		window time.Duration
		err    error
	)
	if days, ok := strings.CutSuffix(raw, "d"); ok {
		var n int
		n, err = strconv.Atoi(days)
		window = time.Duration(n) * 24 * time.Hour
	} else {
		window, err = time.ParseDuration(raw)
	}
	if err != nil {
		return 0, &usecase.Error{Kind: usecase.KindValidation, Message: "window: invalid duration " + strconv.Quote(raw), Err: err}
	}
	if window <= 0 || window > h.maxWindow {
		return 0, &usecase.Error{Kind: usecase.KindValidation, Message: "window: out of allowed range"}
	}

	return window, nil
}
