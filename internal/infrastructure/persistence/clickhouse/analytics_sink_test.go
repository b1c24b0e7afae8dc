package clickhouse

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dreschagin/reskpoints/internal/domain/entity"
	"github.com/dreschagin/reskpoints/internal/domain/valueobject"
	"github.com/dreschagin/reskpoints/pkg/logger"
)

type fakeBatch struct {
	rows      [][]any
	appendErr error
	sent      bool
	aborted   bool
}

func (b *fakeBatch) Append(v ...any) error {
	if b.appendErr != nil {
		return b.appendErr
	}
	b.rows = append(b.rows, v)
	return nil
}

func (b *fakeBatch) Send() error {
	b.sent = true
	return nil
}

func (b *fakeBatch) Abort() error {
	b.aborted = true
	return nil
}

type fakeConn struct {
	queries []string
	execs   []string
	batch   *fakeBatch
	execErr error
}

func (c *fakeConn) prepare(_ context.Context, query string) (batch, error) {
	c.queries = append(c.queries, query)
	return c.batch, nil
}

func (c *fakeConn) Exec(_ context.Context, query string, _ ...any) error {
	c.execs = append(c.execs, query)
	return c.execErr
}

func (c *fakeConn) Close() error { return nil }

func TestAnalyticsSink_FlushMetrics(t *testing.T) {
	conn := &fakeConn{batch: &fakeBatch{}}
	sink := newAnalyticsSink(conn, logger.New("error"))

	value, _ := valueobject.NewMetricValue(512, "tokens")
	sample, err := entity.NewMetricSample(entity.MetricSampleParams{
		Timestamp:  time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC),
		MetricType: valueobject.TokenUsage,
		Value:      value,
		Provider:   valueobject.ProviderAnthropic,
		ModelName:  "claude-3",
		ProjectID:  "proj-1",
		Tags:       map[string]string{"env": "prod"},
	})
	if err != nil {
		t.Fatalf("failed to create sample: %v", err)
	}

	if err := sink.FlushMetrics(context.Background(), []*entity.MetricSample{sample}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(conn.queries) != 1 || !strings.Contains(conn.queries[0], "usage_analytics") {
		t.Fatalf("unexpected queries: %v", conn.queries)
	}
	if !conn.batch.sent || len(conn.batch.rows) != 1 {
		t.Fatalf("expected one row sent, got %d (sent=%v)", len(conn.batch.rows), conn.batch.sent)
	}
	row := conn.batch.rows[0]
	if len(row) != 11 {
		t.Fatalf("expected 11 columns, got %d", len(row))
	}
	if row[2] != "token_usage" || row[3] != 512.0 || row[5] != "anthropic" || row[9] != "proj-1" {
		t.Errorf("unexpected row %v", row)
	}
}

func TestAnalyticsSink_FlushErrors(t *testing.T) {
	conn := &fakeConn{batch: &fakeBatch{}}
	sink := newAnalyticsSink(conn, logger.New("error"))

	events := []*entity.ErrorEvent{
		{ID: "err-1", Severity: valueobject.SeverityHigh, Category: valueobject.CategoryTimeout, Message: "timeout"},
		{ID: "err-2", Severity: valueobject.SeverityLow, Category: valueobject.CategoryUnknown},
	}
	if err := sink.FlushErrors(context.Background(), events); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(conn.queries[0], "error_analytics") {
		t.Fatalf("unexpected query %s", conn.queries[0])
	}
	if len(conn.batch.rows) != 2 || conn.batch.rows[1][1] != "err-2" {
		t.Fatalf("unexpected rows %v", conn.batch.rows)
	}
}

func TestAnalyticsSink_EmptyBatchIsNoop(t *testing.T) {
	conn := &fakeConn{batch: &fakeBatch{}}
	sink := newAnalyticsSink(conn, logger.New("error"))

	if err := sink.FlushMetrics(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := sink.FlushErrors(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(conn.queries) != 0 {
		t.Fatalf("expected no batches, got %d", len(conn.queries))
	}
}

func TestAnalyticsSink_AppendFailureAborts(t *testing.T) {
	conn := &fakeConn{batch: &fakeBatch{appendErr: errors.New("bad column")}}
	sink := newAnalyticsSink(conn, logger.New("error"))

	err := sink.FlushErrors(context.Background(), []*entity.ErrorEvent{{ID: "err-1"}})
	if err == nil {
		t.Fatal("expected error")
	}
	if !conn.batch.aborted || conn.batch.sent {
		t.Fatalf("expected batch aborted and not sent (aborted=%v sent=%v)", conn.batch.aborted, conn.batch.sent)
	}
}

func TestAnalyticsSink_EnsureSchema(t *testing.T) {
	conn := &fakeConn{}
	sink := newAnalyticsSink(conn, logger.New("error"))

	if err := sink.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(conn.execs) != 2 {
		t.Fatalf("expected 2 DDL statements, got %d", len(conn.execs))
	}

	conn.execErr = errors.New("readonly")
	if err := sink.EnsureSchema(context.Background()); err == nil {
		t.Fatal("expected DDL failure to be returned")
	}
}
