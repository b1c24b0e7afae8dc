package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/dreschagin/reskpoints/internal/domain/entity"
	"github.com/dreschagin/reskpoints/internal/domain/valueobject"
)

const ticketColumns = `id, created_at, updated_at, title, description, status, priority, category, severity,
	assignee_id, reporter_id, team, provider, model_name, endpoint, user_id, project_id, error_ids,
	sla_deadline, escalated, escalated_at, resolution_notes, resolved_at, closed_at, tags, workflow`

// metricArgs раскладывает выборку по колонкам ai_metrics
func metricArgs(m *entity.MetricSample) ([]interface{}, error) {
	tags, err := marshalJSON(m.Tags())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tags: %w", err)
	}

	return []interface{}{
		m.ID(),
		m.Timestamp(),
		m.Type().String(),
		m.Value().Raw(),
		m.Value().Unit(),
		m.Provider().String(),
		m.ModelName(),
		m.ModelSize(),
		m.Endpoint(),
		m.UserID(),
		m.ProjectID(),
		m.SessionID(),
		m.RequestID(),
		tags,
	}, nil
}

// errorArgs раскладывает событие по колонкам ai_errors
func errorArgs(e *entity.ErrorEvent) ([]interface{}, error) {
	details, err := marshalJSON(e.Details)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal details: %w", err)
	}
	tags, err := marshalJSON(e.Tags)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tags: %w", err)
	}
	metadata, err := marshalJSON(e.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	return []interface{}{
		e.ID,
		e.Timestamp,
		e.Severity.String(),
		e.Category.String(),
		e.Message,
		e.Code,
		details,
		e.Provider.String(),
		e.ModelName,
		e.Endpoint,
		e.UserID,
		e.ProjectID,
		e.SessionID,
		e.RequestID,
		e.StackTrace,
		e.CorrelationID,
		tags,
		metadata,
	}, nil
}

// ticketArgs раскладывает тикет по колонкам ticketColumns
func ticketArgs(t *entity.Ticket) ([]interface{}, error) {
	tags, err := marshalJSON(t.Tags)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tags: %w", err)
	}
	workflow, err := json.Marshal(t.Workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal workflow: %w", err)
	}

	errorIDs := t.ErrorIDs
	if errorIDs == nil {
		errorIDs = []string{}
	}

	return []interface{}{
		t.ID,
		t.CreatedAt,
		t.UpdatedAt,
		t.Title,
		t.Description,
		t.Status.String(),
		t.Priority.String(),
		t.Category.String(),
		t.Severity.String(),
		t.AssigneeID,
		t.ReporterID,
		t.Team,
		t.Provider.String(),
		t.ModelName,
		t.Endpoint,
		t.UserID,
		t.ProjectID,
		pq.Array(errorIDs),
		t.SLADeadline,
		t.Escalated,
		nullTime(t.EscalatedAt),
		t.ResolutionNotes,
		nullTime(t.ResolvedAt),
		nullTime(t.ClosedAt),
		tags,
		workflow,
	}, nil
}

// scanTicket сканирует строку tickets в Domain Entity
func scanTicket(row interface {
	Scan(dest ...interface{}) error
}) (*entity.Ticket, error) {
	var (
		t                               entity.Ticket
		status, priority, category      string
		severity, provider              string
		errorIDs                        []string
		escalatedAt, resolvedAt, closed sql.NullTime
		tags, workflow                  []byte
	)

	err := row.Scan(
		&t.ID,
		&t.CreatedAt,
		&t.UpdatedAt,
		&t.Title,
		&t.Description,
		&status,
		&priority,
		&category,
		&severity,
		&t.AssigneeID,
		&t.ReporterID,
		&t.Team,
		&provider,
		&t.ModelName,
		&t.Endpoint,
		&t.UserID,
		&t.ProjectID,
		pq.Array(&errorIDs),
		&t.SLADeadline,
		&t.Escalated,
		&escalatedAt,
		&t.ResolutionNotes,
		&resolvedAt,
		&closed,
		&tags,
		&workflow,
	)
	if err != nil {
		return nil, err
	}

	t.Status = valueobject.TicketStatus(status)
	t.Priority = valueobject.TicketPriority(priority)
	t.Category = valueobject.TicketCategory(category)
	t.Severity = valueobject.Severity(severity)
	t.Provider = valueobject.Provider(provider)
	t.ErrorIDs = errorIDs
	t.EscalatedAt = timePtr(escalatedAt)
	t.ResolvedAt = timePtr(resolvedAt)
	t.ClosedAt = timePtr(closed)

	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &t.Tags); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
		}
	}
	if len(workflow) > 0 {
		if err := json.Unmarshal(workflow, &t.Workflow); err != nil {
			return nil, fmt.Errorf("failed to unmarshal workflow: %w", err)
		}
	}

	return &t, nil
}

// marshalJSON возвращает nil для пустых map, чтобы в колонку попал NULL
func marshalJSON[M ~map[K]V, K comparable, V any](m M) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return json.Marshal(m)
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
