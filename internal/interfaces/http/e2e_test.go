package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dreschagin/reskpoints/internal/application/dto"
	"github.com/dreschagin/reskpoints/internal/application/usecase"
	"github.com/dreschagin/reskpoints/internal/domain/valueobject"
	"github.com/dreschagin/reskpoints/internal/infrastructure/observability/metrics"
	"github.com/dreschagin/reskpoints/internal/infrastructure/persistence/memory"
	"github.com/dreschagin/reskpoints/internal/interfaces/http/handler"
	"github.com/dreschagin/reskpoints/internal/interfaces/http/middleware"
	"github.com/dreschagin/reskpoints/pkg/config"
	"github.com/dreschagin/reskpoints/pkg/logger"
)

const testToken = "test-token"

type testStack struct {
	server  *httptest.Server
	buffer  *usecase.IngestionBuffer
	store   *memory.MetricStore
	tickets *memory.TicketRepository
	ready   *fakePinger
}

type fakePinger struct {
	err error
}

func (p *fakePinger) Ping(context.Context) error {
	return p.err
}

func newTestServer(t *testing.T, security config.SecurityConfig) *testStack {
	t.Helper()
	log := logger.New("error")

	registry := prometheus.NewRegistry()
	telemetry := metrics.New(registry)

	store := memory.NewMetricStore(0)
	tickets := memory.NewTicketRepository()

	buffer := usecase.NewIngestionBuffer(usecase.IngestionConfig{}, nil, store, nil, telemetry, nil, log)
	lifecycle := usecase.NewTicketLifecycle(tickets, nil, nil, 0, nil, telemetry, nil, log)
	buffer.AddObserver(usecase.NewIncidentBridge(lifecycle, usecase.IncidentBridgeConfig{
		MinSeverity: valueobject.SeverityHigh,
		DedupWindow: time.Hour,
	}, log))

	modelMetrics := usecase.NewGetModelMetricsUseCase(store, nil, 0, nil, log)
	svc := usecase.NewSubmissionService(buffer, lifecycle, modelMetrics, nil, nil, log)
	engine := usecase.NewEscalationEngine(lifecycle, nil, nil, nil, log, time.Minute)

	ready := &fakePinger{}
	router := NewRouter(
		Handlers{
			Metrics:    handler.NewMetricsAPIHandler(svc, 0, log),
			Errors:     handler.NewErrorAPIHandler(svc, log),
			Tickets:    handler.NewTicketAPIHandler(svc, log),
			Escalation: handler.NewEscalationAPIHandler(engine),
		},
		telemetry,
		registry,
		map[string]Pinger{"postgres": ready},
		security,
		log,
	)
	t.Cleanup(router.Close)

	server := httptest.NewServer(router.Setup())
	t.Cleanup(server.Close)

	return &testStack{server: server, buffer: buffer, store: store, tickets: tickets, ready: ready}
}

func doRequest(t *testing.T, client *http.Client, method, url string, body string, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewReader([]byte(body)))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dest interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func expectError(t *testing.T, resp *http.Response, status int, kind string) {
	t.Helper()
	if resp.StatusCode != status {
		resp.Body.Close()
		t.Fatalf("expected status %d, got %d", status, resp.StatusCode)
	}
	var body middleware.ErrorBody
	decodeBody(t, resp, &body)
	if body.Error.Kind != kind {
		t.Fatalf("expected error kind %q, got %q (%s)", kind, body.Error.Kind, body.Error.Message)
	}
	if body.Error.Message == "" {
		t.Fatal("expected error message")
	}
}

func TestE2EHealthEndpoints(t *testing.T) {
	stack := newTestServer(t, config.SecurityConfig{})
	client := stack.server.Client()

	for _, path := range []string{"/healthz", "/readyz"} {
		resp := doRequest(t, client, http.MethodGet, stack.server.URL+path, "", nil)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200 for %s, got %d", path, resp.StatusCode)
		}
	}

	stack.ready.err = errors.New("connection refused")
	resp := doRequest(t, client, http.MethodGet, stack.server.URL+"/readyz", "", nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when database is down, got %d", resp.StatusCode)
	}
	var payload map[string]interface{}
	decodeBody(t, resp, &payload)
	if payload["status"] != "not_ready" {
		t.Fatalf("unexpected readiness payload: %v", payload)
	}
}

func TestE2ESubmitMetrics(t *testing.T) {
	stack := newTestServer(t, config.SecurityConfig{})
	client := stack.server.Client()
	url := stack.server.URL + "/api/v1/metrics"

	resp := doRequest(t, client, http.MethodPost, url,
		`{"metric_type":"latency","value":120,"unit":"ms","provider":"openai","model_name":"gpt-4"}`, nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202 for single metric, got %d", resp.StatusCode)
	}
	var single dto.MetricDTO
	decodeBody(t, resp, &single)
	if single.ID == "" || single.MetricType != "latency" {
		t.Fatalf("unexpected metric response: %+v", single)
	}

	resp = doRequest(t, client, http.MethodPost, url, `{"metrics":[
		{"metric_type":"latency","value":180,"unit":"ms","provider":"openai","model_name":"gpt-4"},
		{"metric_type":"cost","value":0.02,"unit":"usd","provider":"openai","model_name":"gpt-4"}
	]}`, nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202 for batch, got %d", resp.StatusCode)
	}
	var batch dto.SubmissionDTO
	decodeBody(t, resp, &batch)
	if batch.Accepted != 2 || len(batch.IDs) != 2 {
		t.Fatalf("unexpected batch response: %+v", batch)
	}

	if pending, _ := stack.buffer.Pending(); pending != 3 {
		t.Fatalf("expected 3 pending samples, got %d", pending)
	}
	if err := stack.buffer.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if samples, _ := stack.store.Stats(); samples != 3 {
		t.Fatalf("expected 3 stored samples, got %d", samples)
	}

	resp = doRequest(t, client, http.MethodGet, stack.server.URL+"/api/v1/models/openai/gpt-4/metrics?window=1h", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for model metrics, got %d", resp.StatusCode)
	}
	var report dto.ModelMetricsDTO
	decodeBody(t, resp, &report)
	if report.TotalSamples != 3 || report.AvgLatency != 150 || report.TotalCost != 0.02 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestE2EValidationErrors(t *testing.T) {
	stack := newTestServer(t, config.SecurityConfig{})
	client := stack.server.Client()
	base := stack.server.URL

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		kind   string
	}{
		{"unknown metric type", http.MethodPost, "/api/v1/metrics", `{"metric_type":"bogus","value":1,"provider":"openai","model_name":"gpt-4"}`, http.StatusBadRequest, "validation"},
		{"empty batch", http.MethodPost, "/api/v1/metrics", `{"metrics":[]}`, http.StatusBadRequest, "validation"},
		{"malformed json", http.MethodPost, "/api/v1/metrics", `{"metric_type":`, http.StatusBadRequest, "validation"},
		{"empty body", http.MethodPost, "/api/v1/errors", ``, http.StatusBadRequest, "validation"},
		{"error without message", http.MethodPost, "/api/v1/errors", `{"severity":"high","category":"timeout"}`, http.StatusBadRequest, "validation"},
		{"ticket without title", http.MethodPost, "/api/v1/tickets", `{"priority":"high","severity":"high"}`, http.StatusBadRequest, "validation"},
		{"bad window", http.MethodGet, "/api/v1/models/openai/gpt-4/metrics?window=yesterday", ``, http.StatusBadRequest, "validation"},
		{"unknown provider", http.MethodGet, "/api/v1/models/acme/gpt-4/metrics", ``, http.StatusBadRequest, "validation"},
		{"bad limit", http.MethodGet, "/api/v1/tickets?limit=many", ``, http.StatusBadRequest, "validation"},
		{"missing ticket", http.MethodGet, "/api/v1/tickets/does-not-exist", ``, http.StatusNotFound, "not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doRequest(t, client, tt.method, base+tt.path, tt.body, nil)
			expectError(t, resp, tt.status, tt.kind)
		})
	}
}

func TestE2ETicketWorkflow(t *testing.T) {
	stack := newTestServer(t, config.SecurityConfig{})
	client := stack.server.Client()
	base := stack.server.URL

	resp := doRequest(t, client, http.MethodPost, base+"/api/v1/tickets",
		`{"title":"GPT-4 latency regression","priority":"high","severity":"high","category":"performance","provider":"openai","model_name":"gpt-4"}`, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 for ticket, got %d", resp.StatusCode)
	}
	var created dto.TicketDTO
	decodeBody(t, resp, &created)
	if created.ID == "" || created.Status != "open" {
		t.Fatalf("unexpected ticket: %+v", created)
	}
	if got := resp.Header.Get("Location"); got != "/api/v1/tickets/"+created.ID {
		t.Fatalf("unexpected Location header %q", got)
	}

	resp = doRequest(t, client, http.MethodGet, base+"/api/v1/tickets/"+created.ID, "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for ticket lookup, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	statusURL := base + "/api/v1/tickets/" + created.ID + "/status"
	resp = doRequest(t, client, http.MethodPost, statusURL, `{"status":"closed","actor":"oncall"}`, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for close, got %d", resp.StatusCode)
	}
	var closed dto.TicketDTO
	decodeBody(t, resp, &closed)
	if closed.Status != "closed" || closed.ClosedAt == nil {
		t.Fatalf("unexpected closed ticket: %+v", closed)
	}

	resp = doRequest(t, client, http.MethodPost, statusURL, `{"status":"in_progress","actor":"oncall"}`, nil)
	expectError(t, resp, http.StatusConflict, "invalid_transition")

	resp = doRequest(t, client, http.MethodPost, statusURL, `{"status":"open"}`, nil)
	expectError(t, resp, http.StatusBadRequest, "validation")

	resp = doRequest(t, client, http.MethodGet, base+"/api/v1/tickets?status=closed&limit=10", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for list, got %d", resp.StatusCode)
	}
	var list struct {
		Tickets []dto.TicketDTO `json:"tickets"`
		Count   int             `json:"count"`
	}
	decodeBody(t, resp, &list)
	if list.Count != 1 || list.Tickets[0].ID != created.ID {
		t.Fatalf("unexpected ticket list: %+v", list)
	}

	resp = doRequest(t, client, http.MethodGet, base+"/api/v1/tickets/metrics", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for ticket metrics, got %d", resp.StatusCode)
	}
	var stats dto.TicketMetricsDTO
	decodeBody(t, resp, &stats)
	if stats.Total != 1 || stats.ByStatus["closed"] != 1 {
		t.Fatalf("unexpected ticket metrics: %+v", stats)
	}
}

func TestE2ECriticalErrorOpensTicket(t *testing.T) {
	stack := newTestServer(t, config.SecurityConfig{})
	client := stack.server.Client()
	base := stack.server.URL

	body := `{"severity":"critical","category":"service_unavailable","message":"upstream returned 503","provider":"anthropic","model_name":"claude-3"}`
	resp := doRequest(t, client, http.MethodPost, base+"/api/v1/errors", body, nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202 for error, got %d", resp.StatusCode)
	}
	var first dto.ErrorDTO
	decodeBody(t, resp, &first)

	// Повтор в окне дедупликации прикрепляется к тому же тикету
	resp = doRequest(t, client, http.MethodPost, base+"/api/v1/errors", body, nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202 for repeated error, got %d", resp.StatusCode)
	}
	var second dto.ErrorDTO
	decodeBody(t, resp, &second)

	// Ниже порога тикет не открывается
	resp = doRequest(t, client, http.MethodPost, base+"/api/v1/errors",
		`{"severity":"low","category":"timeout","message":"slow response","provider":"anthropic","model_name":"claude-3"}`, nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202 for low severity error, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doRequest(t, client, http.MethodGet, base+"/api/v1/tickets", "", nil)
	var list struct {
		Tickets []dto.TicketDTO `json:"tickets"`
		Count   int             `json:"count"`
	}
	decodeBody(t, resp, &list)
	if list.Count != 1 {
		t.Fatalf("expected exactly one incident ticket, got %d", list.Count)
	}
	ids := strings.Join(list.Tickets[0].ErrorIDs, ",")
	if !strings.Contains(ids, first.ID) || !strings.Contains(ids, second.ID) {
		t.Fatalf("expected both error ids on ticket, got %v", list.Tickets[0].ErrorIDs)
	}
	if list.Tickets[0].Severity != "critical" {
		t.Fatalf("expected critical ticket, got %s", list.Tickets[0].Severity)
	}
}

func TestE2EAuthAndRateLimit(t *testing.T) {
	stack := newTestServer(t, config.SecurityConfig{
		AuthEnabled:    true,
		AuthToken:      testToken,
		RateLimitRPS:   0.001,
		RateLimitBurst: 2,
	})
	client := stack.server.Client()
	url := stack.server.URL + "/api/v1/metrics"
	body := `{"metric_type":"latency","value":90,"unit":"ms","provider":"google","model_name":"gemini-pro"}`

	resp := doRequest(t, client, http.MethodPost, url, body, nil)
	expectError(t, resp, http.StatusUnauthorized, "unauthorized")

	auth := map[string]string{"Authorization": "Bearer " + testToken}
	for i := 0; i < 2; i++ {
		resp = doRequest(t, client, http.MethodPost, url, body, auth)
		resp.Body.Close()
		if resp.StatusCode != http.StatusAccepted {
			t.Fatalf("request %d: expected 202, got %d", i, resp.StatusCode)
		}
	}

	resp = doRequest(t, client, http.MethodPost, url, body, auth)
	expectError(t, resp, http.StatusTooManyRequests, "rate_limited")

	// Чтение не ограничивается, health не требует токена
	resp = doRequest(t, client, http.MethodGet, stack.server.URL+"/api/v1/tickets", "", auth)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for read route, got %d", resp.StatusCode)
	}
	resp = doRequest(t, client, http.MethodGet, stack.server.URL+"/healthz", "", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for healthz, got %d", resp.StatusCode)
	}
}

func TestE2EEscalationStatusAndPrometheus(t *testing.T) {
	stack := newTestServer(t, config.SecurityConfig{})
	client := stack.server.Client()

	resp := doRequest(t, client, http.MethodGet, stack.server.URL+"/api/v1/escalations/status", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for escalation status, got %d", resp.StatusCode)
	}
	var status dto.EscalationStatusDTO
	decodeBody(t, resp, &status)
	if status.Interval != "1m0s" || status.Running {
		t.Fatalf("unexpected escalation status: %+v", status)
	}

	resp = doRequest(t, client, http.MethodPost, stack.server.URL+"/api/v1/metrics",
		`{"metric_type":"throughput","value":42,"unit":"rps","provider":"azure","model_name":"gpt-35-turbo"}`, nil)
	resp.Body.Close()

	resp = doRequest(t, client, http.MethodGet, stack.server.URL+"/metrics", "", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for /metrics, got %d", resp.StatusCode)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	text := buf.String()
	for _, want := range []string{
		`reskpoints_metrics_submitted_total{metric_type="throughput",provider="azure"} 1`,
		`reskpoints_http_requests_total`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in /metrics output", want)
		}
	}
}

func TestE2EEscalationDisabled(t *testing.T) {
	h := handler.NewEscalationAPIHandler(nil)

	rec := httptest.NewRecorder()
	h.Status(rec, httptest.NewRequest(http.MethodGet, "/api/v1/escalations/status", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}
