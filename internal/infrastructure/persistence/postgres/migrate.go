package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations выполняются по порядку; каждая идемпотентна
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS ai_metrics (
		id          TEXT NOT NULL,
		timestamp   TIMESTAMPTZ NOT NULL,
		metric_type TEXT NOT NULL,
		value       DOUBLE PRECISION NOT NULL,
		unit        TEXT NOT NULL,
		provider    TEXT NOT NULL,
		model_name  TEXT NOT NULL,
		model_size  TEXT NOT NULL DEFAULT '',
		endpoint    TEXT NOT NULL DEFAULT '',
		user_id     TEXT NOT NULL DEFAULT '',
		project_id  TEXT NOT NULL DEFAULT '',
		session_id  TEXT NOT NULL DEFAULT '',
		request_id  TEXT NOT NULL DEFAULT '',
		tags        JSONB,
		PRIMARY KEY (id, timestamp)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ai_metrics_model
		ON ai_metrics (provider, model_name, metric_type, timestamp DESC)`,
	`CREATE TABLE IF NOT EXISTS ai_errors (
		id             TEXT NOT NULL,
		timestamp      TIMESTAMPTZ NOT NULL,
		severity       TEXT NOT NULL,
		category       TEXT NOT NULL,
		message        TEXT NOT NULL,
		code           TEXT NOT NULL DEFAULT '',
		details        JSONB,
		provider       TEXT NOT NULL DEFAULT '',
		model_name     TEXT NOT NULL DEFAULT '',
		endpoint       TEXT NOT NULL DEFAULT '',
		user_id        TEXT NOT NULL DEFAULT '',
		project_id     TEXT NOT NULL DEFAULT '',
		session_id     TEXT NOT NULL DEFAULT '',
		request_id     TEXT NOT NULL DEFAULT '',
		stack_trace    TEXT NOT NULL DEFAULT '',
		correlation_id TEXT NOT NULL DEFAULT '',
		tags           JSONB,
		metadata       JSONB,
		PRIMARY KEY (id, timestamp)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ai_errors_severity
		ON ai_errors (severity, timestamp DESC)`,
	// hypertables only when the timescaledb extension is installed
	`DO $$
	BEGIN
		IF EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'timescaledb') THEN
			PERFORM create_hypertable('ai_metrics', 'timestamp', if_not_exists => TRUE);
			PERFORM create_hypertable('ai_errors', 'timestamp', if_not_exists => TRUE);
		END IF;
	END
	$$`,
	`CREATE TABLE IF NOT EXISTS tickets (
		id               TEXT PRIMARY KEY,
		created_at       TIMESTAMPTZ NOT NULL,
		updated_at       TIMESTAMPTZ NOT NULL,
		title            TEXT NOT NULL,
		description      TEXT NOT NULL DEFAULT '',
		status           TEXT NOT NULL,
		priority         TEXT NOT NULL,
		category         TEXT NOT NULL,
		severity         TEXT NOT NULL,
		assignee_id      TEXT NOT NULL DEFAULT '',
		reporter_id      TEXT NOT NULL DEFAULT '',
		team             TEXT NOT NULL DEFAULT '',
		provider         TEXT NOT NULL DEFAULT '',
		model_name       TEXT NOT NULL DEFAULT '',
		endpoint         TEXT NOT NULL DEFAULT '',
		user_id          TEXT NOT NULL DEFAULT '',
		project_id       TEXT NOT NULL DEFAULT '',
		error_ids        TEXT[] NOT NULL DEFAULT '{}',
		sla_deadline     TIMESTAMPTZ NOT NULL,
		escalated        BOOLEAN NOT NULL DEFAULT FALSE,
		escalated_at     TIMESTAMPTZ,
		resolution_notes TEXT NOT NULL DEFAULT '',
		resolved_at      TIMESTAMPTZ,
		closed_at        TIMESTAMPTZ,
		tags             JSONB,
		workflow         JSONB NOT NULL DEFAULT '[]'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tickets_status ON tickets (status, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS ticket_events (
		id         BIGSERIAL PRIMARY KEY,
		ticket_id  TEXT NOT NULL REFERENCES tickets (id),
		timestamp  TIMESTAMPTZ NOT NULL,
		actor      TEXT NOT NULL,
		action     TEXT NOT NULL,
		old_status TEXT NOT NULL DEFAULT '',
		new_status TEXT NOT NULL DEFAULT '',
		notes      TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ticket_events_ticket ON ticket_events (ticket_id, timestamp)`,
}

// Migrate создает таблицы ai_metrics, ai_errors, tickets и ticket_events
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
