package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dreschagin/reskpoints/internal/application/port"
	"github.com/dreschagin/reskpoints/internal/domain/entity"
)

// ArchiveSink складывает сброшенные события ошибок в объектное хранилище
// как NDJSON-файлы с ключами "{prefix}/YYYY/MM/DD/{HHMMSS}-{uuid}.ndjson".
// Выборки метрик не архивируются.
type ArchiveSink struct {
	storage port.ObjectStorage
	prefix  string
	now     func() time.Time
}

var _ port.MetricSink = (*ArchiveSink)(nil)

func NewArchiveSink(storage port.ObjectStorage, prefix string) *ArchiveSink {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = "errors"
	}
	return &ArchiveSink{
		storage: storage,
		prefix:  prefix,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

type archivedError struct {
	ID            string                 `json:"id"`
	Timestamp     string                 `json:"timestamp"`
	Severity      string                 `json:"severity"`
	Category      string                 `json:"category"`
	Message       string                 `json:"message"`
	Code          string                 `json:"code,omitempty"`
	Provider      string                 `json:"provider,omitempty"`
	ModelName     string                 `json:"model_name,omitempty"`
	Endpoint      string                 `json:"endpoint,omitempty"`
	RequestID     string                 `json:"request_id,omitempty"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	Details       map[string]interface{} `json:"details,omitempty"`
	Tags          map[string]string      `json:"tags,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

func (s *ArchiveSink) FlushMetrics(context.Context, []*entity.MetricSample) error {
	return nil
}

// FlushErrors загружает пакет одним объектом
func (s *ArchiveSink) FlushErrors(ctx context.Context, batch []*entity.ErrorEvent) error {
	if len(batch) == 0 {
		return nil
	}

	body, err := encodeErrors(batch)
	if err != nil {
		return err
	}

	key := s.objectKey(s.now())
	if _, err := s.storage.PutObject(ctx, key, "application/x-ndjson", body); err != nil {
		return fmt.Errorf("failed to archive %d errors: %w", len(batch), err)
	}
	return nil
}

func (s *ArchiveSink) objectKey(at time.Time) string {
	return path.Join(
		s.prefix,
		at.Format("2006/01/02"),
		at.Format("150405")+"-"+uuid.NewString()+".ndjson",
	)
}

func encodeErrors(batch []*entity.ErrorEvent) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)

	for _, e := range batch {
		rec := archivedError{
			ID:            e.ID,
			Timestamp:     e.Timestamp.UTC().Format(time.RFC3339),
			Severity:      e.Severity.String(),
			Category:      e.Category.String(),
			Message:       e.Message,
			Code:          e.Code,
			Provider:      e.Provider.String(),
			ModelName:     e.ModelName,
			Endpoint:      e.Endpoint,
			RequestID:     e.RequestID,
			CorrelationID: e.CorrelationID,
			Details:       e.Details,
			Tags:          e.Tags,
			Metadata:      e.Metadata,
		}
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("failed to encode error %s: %w", e.ID, err)
		}
	}

	return buf.Bytes(), nil
}
