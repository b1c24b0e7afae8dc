//go:build integration
// +build integration

package http

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"

	"github.com/dreschagin/reskpoints/internal/application/dto"
	"github.com/dreschagin/reskpoints/internal/application/usecase"
	"github.com/dreschagin/reskpoints/internal/infrastructure/persistence/postgres"
	"github.com/dreschagin/reskpoints/internal/interfaces/http/handler"
	"github.com/dreschagin/reskpoints/pkg/config"
	"github.com/dreschagin/reskpoints/pkg/logger"
)

const integrationToken = "integration-token"

func getenv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func TestE2EIntegrationPostgres(t *testing.T) {
	dsn := getenv("INTEGRATION_POSTGRES_DSN", "host=localhost port=5432 user=postgres password=postgres dbname=reskpoints sslmode=disable")
	ctx := context.Background()

	db := connectPostgres(t, dsn)
	t.Cleanup(func() { _ = db.Close() })
	if err := postgres.Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cleanupTables(t, db)

	server, buffer := integrationServer(t, db)
	client := server.Client()
	auth := map[string]string{"Authorization": "Bearer " + integrationToken}

	resp := doRequest(t, client, http.MethodPost, server.URL+"/api/v1/metrics", `{"metrics":[
		{"metric_type":"latency","value":200,"unit":"ms","provider":"openai","model_name":"gpt-4o"},
		{"metric_type":"error_rate","value":0,"unit":"percent","provider":"openai","model_name":"gpt-4o"}
	]}`, auth)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202 for metrics, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doRequest(t, client, http.MethodPost, server.URL+"/api/v1/errors",
		`{"severity":"critical","category":"timeout","message":"completion timed out","provider":"openai","model_name":"gpt-4o"}`, auth)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202 for error, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	if err := buffer.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	resp = doRequest(t, client, http.MethodGet, server.URL+"/api/v1/models/openai/gpt-4o/metrics?window=1h", "", auth)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for model metrics, got %d", resp.StatusCode)
	}
	var report dto.ModelMetricsDTO
	decodeBody(t, resp, &report)
	if report.TotalSamples != 2 || report.SuccessfulRequests != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}

	resp = doRequest(t, client, http.MethodGet, server.URL+"/api/v1/tickets?status=open", "", auth)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for tickets, got %d", resp.StatusCode)
	}
	var list struct {
		Tickets []dto.TicketDTO `json:"tickets"`
		Count   int             `json:"count"`
	}
	decodeBody(t, resp, &list)
	if list.Count != 1 {
		t.Fatalf("expected one incident ticket, got %d", list.Count)
	}

	resp = doRequest(t, client, http.MethodPost, server.URL+"/api/v1/tickets/"+list.Tickets[0].ID+"/status",
		`{"status":"resolved","actor":"integration","notes":"raised timeout"}`, auth)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for status update, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	readyResp := doRequest(t, client, http.MethodGet, server.URL+"/readyz", "", nil)
	if readyResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for readyz, got %d", readyResp.StatusCode)
	}
	readyResp.Body.Close()
}

func integrationServer(t *testing.T, db *sql.DB) (*httptest.Server, *usecase.IngestionBuffer) {
	t.Helper()
	log := logger.New("error")

	store := postgres.NewMetricStore(db)
	tickets := postgres.NewTicketRepository(db)

	buffer := usecase.NewIngestionBuffer(usecase.IngestionConfig{}, nil, store, nil, nil, nil, log)
	lifecycle := usecase.NewTicketLifecycle(tickets, nil, nil, 0, nil, nil, nil, log)
	buffer.AddObserver(usecase.NewIncidentBridge(lifecycle, usecase.IncidentBridgeConfig{DedupWindow: time.Hour}, log))
	modelMetrics := usecase.NewGetModelMetricsUseCase(store, nil, 0, nil, log)
	svc := usecase.NewSubmissionService(buffer, lifecycle, modelMetrics, nil, nil, log)

	router := NewRouter(
		Handlers{
			Metrics:    handler.NewMetricsAPIHandler(svc, 0, log),
			Errors:     handler.NewErrorAPIHandler(svc, log),
			Tickets:    handler.NewTicketAPIHandler(svc, log),
			Escalation: handler.NewEscalationAPIHandler(nil),
		},
		nil,
		nil,
		map[string]Pinger{"postgres": store},
		config.SecurityConfig{AuthEnabled: true, AuthToken: integrationToken},
		log,
	)
	t.Cleanup(router.Close)

	server := httptest.NewServer(router.Setup())
	t.Cleanup(server.Close)
	return server, buffer
}

func connectPostgres(t *testing.T, dsn string) *sql.DB {
	t.Helper()
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Skipf("postgres is not reachable: %v", err)
	}
	return db
}

func cleanupTables(t *testing.T, db *sql.DB) {
	t.Helper()
	for _, table := range []string{"ticket_events", "tickets", "ai_errors", "ai_metrics"} {
		if _, err := db.Exec("DELETE FROM " + table); err != nil {
			t.Fatalf("cleanup %s: %v", table, err)
		}
	}
}
