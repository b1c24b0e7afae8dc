package nats

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/dreschagin/reskpoints/internal/application/dto"
	"github.com/dreschagin/reskpoints/pkg/logger"
)

type publishCall struct {
	subject string
	data    []byte
}

type fakeJetStream struct {
	calls []publishCall
	err   error
}

func (f *fakeJetStream) PublishAsync(subj string, data []byte, _ ...nats.PubOpt) (nats.PubAckFuture, error) {
	f.calls = append(f.calls, publishCall{subject: subj, data: data})
	return nil, f.err
}

func TestNATSPublisher_Subjects(t *testing.T) {
	js := &fakeJetStream{}
	p := newPublisher(nil, js, "reskpoints", logger.New("error"))
	ctx := context.Background()

	p.Notify(ctx, &dto.AlertDTO{ID: "a-1", Kind: dto.AlertKindCriticalError, Timestamp: time.Now()})
	p.PublishTicketEvent(ctx, &dto.TicketEventDTO{Type: dto.TicketEventEscalated, Ticket: &dto.TicketDTO{ID: "t-1"}})

	if len(js.calls) != 2 {
		t.Fatalf("expected 2 publishes, got %d", len(js.calls))
	}
	if js.calls[0].subject != "reskpoints.alerts.critical_error" {
		t.Fatalf("unexpected alert subject: %s", js.calls[0].subject)
	}
	if js.calls[1].subject != "reskpoints.tickets.escalated" {
		t.Fatalf("unexpected ticket subject: %s", js.calls[1].subject)
	}

	var decoded dto.AlertDTO
	if err := json.Unmarshal(js.calls[0].data, &decoded); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if decoded.ID != "a-1" {
		t.Fatalf("unexpected payload: %+v", decoded)
	}
}

func TestNATSPublisher_FailuresAreSwallowedByNotify(t *testing.T) {
	js := &fakeJetStream{err: errors.New("no responders")}
	p := newPublisher(nil, js, "", logger.New("error"))

	p.Notify(context.Background(), &dto.AlertDTO{Kind: dto.AlertKindEscalation})

	if err := p.PublishEvent(context.Background(), "x", map[string]string{"a": "b"}); err == nil {
		t.Fatal("expected PublishEvent to return the broker error")
	}
	if js.calls[0].subject != "reskpoints.alerts.escalation" {
		t.Fatalf("expected default prefix, got %s", js.calls[0].subject)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close() without connection error = %v", err)
	}
}
