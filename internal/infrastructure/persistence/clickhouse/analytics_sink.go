// Package clickhouse writes flushed ingestion batches into ClickHouse analytics tables.
package clickhouse

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/dreschagin/reskpoints/internal/application/port"
	"github.com/dreschagin/reskpoints/internal/domain/entity"
	"github.com/dreschagin/reskpoints/pkg/config"
	"github.com/dreschagin/reskpoints/pkg/logger"
)

const (
	usageInsert = `
		INSERT INTO usage_analytics (
			timestamp, sample_id, metric_type, value, unit,
			provider, model, endpoint, user_id, project_id, tags
		)`

	errorInsert = `
		INSERT INTO error_analytics (
			timestamp, error_id, severity, category, code, message,
			provider, model, endpoint, request_id
		)`
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS usage_analytics (
		timestamp   DateTime64(3, 'UTC'),
		sample_id   String,
		metric_type LowCardinality(String),
		value       Float64,
		unit        LowCardinality(String),
		provider    LowCardinality(String),
		model       LowCardinality(String),
		endpoint    String,
		user_id     String,
		project_id  String,
		tags        Map(String, String)
	) ENGINE = MergeTree
	PARTITION BY toYYYYMM(timestamp)
	ORDER BY (provider, model, metric_type, timestamp)`,
	`CREATE TABLE IF NOT EXISTS error_analytics (
		timestamp  DateTime64(3, 'UTC'),
		error_id   String,
		severity   LowCardinality(String),
		category   LowCardinality(String),
		code       String,
		message    String,
		provider   LowCardinality(String),
		model      LowCardinality(String),
		endpoint   String,
		request_id String
	) ENGINE = MergeTree
	PARTITION BY toYYYYMM(timestamp)
	ORDER BY (severity, category, timestamp)`,
}

type batch interface {
	Append(v ...any) error
	Send() error
	Abort() error
}

type conn interface {
	prepare(ctx context.Context, query string) (batch, error)
	Exec(ctx context.Context, query string, args ...any) error
	Close() error
}

type driverConn struct {
	driver.Conn
}

func (c driverConn) prepare(ctx context.Context, query string) (batch, error) {
	return c.PrepareBatch(ctx, query)
}

// AnalyticsSink реализует port.MetricSink поверх ClickHouse
type AnalyticsSink struct {
	conn   conn
	logger *logger.Logger
}

var _ port.MetricSink = (*AnalyticsSink)(nil)

// NewAnalyticsSink подключается к ClickHouse и создает таблицы при необходимости
func NewAnalyticsSink(ctx context.Context, cfg config.ClickHouseConfig, log *logger.Logger) (*AnalyticsSink, error) {
	opts := &clickhouse.Options{
		Addr: cfg.Addresses,
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout:     cfg.DialTimeout,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionZSTD,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
	}
	if cfg.TLSEnabled {
		opts.TLS = &tls.Config{}
	}

	c, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.Ping(pingCtx); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	s := newAnalyticsSink(driverConn{c}, log)
	if err := s.EnsureSchema(ctx); err != nil {
		c.Close()
		return nil, err
	}

	log.Info("Connected to ClickHouse", "addresses", cfg.Addresses, "database", cfg.Database)
	return s, nil
}

func newAnalyticsSink(c conn, log *logger.Logger) *AnalyticsSink {
	return &AnalyticsSink{conn: c, logger: log}
}

// EnsureSchema создает таблицы usage_analytics и error_analytics
func (s *AnalyticsSink) EnsureSchema(ctx context.Context) error {
	for _, ddl := range schema {
		if err := s.conn.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("failed to create analytics table: %w", err)
		}
	}
	return nil
}

// FlushMetrics вставляет пакет выборок в usage_analytics
func (s *AnalyticsSink) FlushMetrics(ctx context.Context, samples []*entity.MetricSample) error {
	if len(samples) == 0 {
		return nil
	}

	return s.insert(ctx, usageInsert, len(samples), func(b batch, i int) error {
		m := samples[i]
		return b.Append(
			m.Timestamp(),
			m.ID(),
			m.Type().String(),
			m.Value().Raw(),
			m.Value().Unit(),
			m.Provider().String(),
			m.ModelName(),
			m.Endpoint(),
			m.UserID(),
			m.ProjectID(),
			m.Tags(),
		)
	})
}

// FlushErrors вставляет пакет ошибок в error_analytics
func (s *AnalyticsSink) FlushErrors(ctx context.Context, events []*entity.ErrorEvent) error {
	if len(events) == 0 {
		return nil
	}

	return s.insert(ctx, errorInsert, len(events), func(b batch, i int) error {
		e := events[i]
		return b.Append(
			e.Timestamp,
			e.ID,
			e.Severity.String(),
			e.Category.String(),
			e.Code,
			e.Message,
			e.Provider.String(),
			e.ModelName,
			e.Endpoint,
			e.RequestID,
		)
	})
}

func (s *AnalyticsSink) insert(ctx context.Context, query string, n int, appendRow func(batch, int) error) error {
	b, err := s.conn.prepare(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for i := 0; i < n; i++ {
		if err := appendRow(b, i); err != nil {
			if abortErr := b.Abort(); abortErr != nil {
				s.logger.Warn("Failed to abort ClickHouse batch", "error", abortErr)
			}
			return fmt.Errorf("failed to append row: %w", err)
		}
	}

	if err := b.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}

// Close закрывает соединение
func (s *AnalyticsSink) Close() error {
	return s.conn.Close()
}
