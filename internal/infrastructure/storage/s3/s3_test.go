package s3

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dreschagin/reskpoints/internal/domain/entity"
	"github.com/dreschagin/reskpoints/internal/domain/valueobject"
	"github.com/dreschagin/reskpoints/internal/infrastructure/awsconfig"
)

type fakeS3 struct {
	key         string
	contentType string
	body        []byte
	err         error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.key = *in.Key
	f.contentType = *in.ContentType
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.body = body
	return &s3.PutObjectOutput{}, nil
}

func TestObjectStorage_PublicURL(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		path     bool
		expected string
	}{
		{"aws default", "", false, "https://archive.s3.amazonaws.com/errors/2026/04/01/a%20b.ndjson"},
		{"path style", "http://localhost:4566/", true, "http://localhost:4566/archive/errors/2026/04/01/a%20b.ndjson"},
		{"virtual host", "https://storage.example.net", false, "https://archive.storage.example.net/errors/2026/04/01/a%20b.ndjson"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newObjectStorage(&fakeS3{}, Config{
				Bucket:       "archive",
				AWS:          awsconfig.Options{Endpoint: tt.endpoint},
				UsePathStyle: tt.path,
				URLMode:      URLModePublic,
			})

			got := s.publicURL("errors/2026/04/01/a b.ndjson")
			if got != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestObjectStorage_PutObject(t *testing.T) {
	api := &fakeS3{}
	s := newObjectStorage(api, Config{Bucket: "archive", URLMode: URLModePublic})

	url, err := s.PutObject(context.Background(), "errors/x.ndjson", "application/x-ndjson", []byte("{}\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if url != "https://archive.s3.amazonaws.com/errors/x.ndjson" {
		t.Errorf("unexpected url %s", url)
	}
	if api.key != "errors/x.ndjson" || !bytes.Equal(api.body, []byte("{}\n")) {
		t.Errorf("unexpected upload %s %q", api.key, api.body)
	}

	if _, err := s.PutObject(context.Background(), " ", "text/plain", nil); err == nil {
		t.Error("expected error for empty key")
	}
}

func TestArchiveSink_FlushErrors(t *testing.T) {
	api := &fakeS3{}
	sink := NewArchiveSink(newObjectStorage(api, Config{Bucket: "archive", URLMode: URLModePublic}), "/errors/")
	sink.now = func() time.Time { return time.Date(2026, 4, 1, 9, 30, 15, 0, time.UTC) }

	batch := []*entity.ErrorEvent{
		{
			ID:        "err-1",
			Timestamp: time.Date(2026, 4, 1, 9, 30, 0, 0, time.UTC),
			Severity:  valueobject.SeverityHigh,
			Category:  valueobject.CategoryRateLimit,
			Message:   "Rate limit exceeded",
			Provider:  valueobject.ProviderOpenAI,
			ModelName: "gpt-4",
		},
		{ID: "err-2", Severity: valueobject.SeverityLow, Category: valueobject.CategoryUnknown},
	}

	if err := sink.FlushErrors(context.Background(), batch); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.HasPrefix(api.key, "errors/2026/04/01/093015-") || !strings.HasSuffix(api.key, ".ndjson") {
		t.Errorf("unexpected key %s", api.key)
	}
	if api.contentType != "application/x-ndjson" {
		t.Errorf("unexpected content type %s", api.contentType)
	}

	scanner := bufio.NewScanner(bytes.NewReader(api.body))
	var lines []archivedError
	for scanner.Scan() {
		var rec archivedError
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("invalid json line: %v", err)
		}
		lines = append(lines, rec)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0].Timestamp != "2026-04-01T09:30:00Z" || lines[0].ModelName != "gpt-4" {
		t.Errorf("unexpected first record %+v", lines[0])
	}
}

func TestArchiveSink_EmptyAndFailures(t *testing.T) {
	api := &fakeS3{err: errors.New("access denied")}
	sink := NewArchiveSink(newObjectStorage(api, Config{Bucket: "archive"}), "")
	ctx := context.Background()

	if err := sink.FlushErrors(ctx, nil); err != nil {
		t.Fatalf("expected empty batch to be a no-op, got %v", err)
	}
	if err := sink.FlushMetrics(ctx, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := sink.FlushErrors(ctx, []*entity.ErrorEvent{{ID: "err-1"}}); err == nil {
		t.Fatal("expected upload failure to be returned")
	}
	if sink.prefix != "errors" {
		t.Errorf("expected default prefix, got %s", sink.prefix)
	}
}
