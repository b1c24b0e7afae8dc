package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/dreschagin/reskpoints/internal/application/dto"
	"github.com/dreschagin/reskpoints/internal/application/port"
	"github.com/dreschagin/reskpoints/pkg/logger"
)

// asyncPublisher - часть JetStreamContext, которая нужна издателю
type asyncPublisher interface {
	PublishAsync(subj string, data []byte, opts ...nats.PubOpt) (nats.PubAckFuture, error)
}

// NATSPublisher публикует алерты и события тикетов в NATS JetStream
type NATSPublisher struct {
	nc     *nats.Conn
	js     asyncPublisher
	prefix string
	logger *logger.Logger
}

var (
	_ port.EventPublisher       = (*NATSPublisher)(nil)
	_ port.AlertNotifier        = (*NATSPublisher)(nil)
	_ port.TicketEventPublisher = (*NATSPublisher)(nil)
)

// NewNATSPublisher подключается к NATS и создает поток для subjects "{prefix}.>"
func NewNATSPublisher(natsURL, prefix string, log *logger.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("reskpoints"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn("NATS disconnected", "error", err.Error())
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	if err := ensureStream(js, prefix); err != nil {
		log.Warn("JetStream stream is not available, publishing without it", "error", err)
	}

	log.Info("Connected to NATS", "url", natsURL, "prefix", prefix)

	return newPublisher(nc, js, prefix, log), nil
}

func newPublisher(nc *nats.Conn, js asyncPublisher, prefix string, log *logger.Logger) *NATSPublisher {
	if prefix == "" {
		prefix = "reskpoints"
	}
	return &NATSPublisher{
		nc:     nc,
		js:     js,
		prefix: prefix,
		logger: log,
	}
}

func ensureStream(js nats.JetStreamContext, prefix string) error {
	name := "RESKPOINTS"
	_, err := js.StreamInfo(name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return err
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:     name,
		Subjects: []string{prefix + ".>"},
		MaxAge:   7 * 24 * time.Hour,
		Storage:  nats.FileStorage,
	})
	return err
}

// PublishEvent публикует событие в subject (асинхронно)
func (p *NATSPublisher) PublishEvent(ctx context.Context, subject string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := p.js.PublishAsync(subject, data); err != nil {
		p.logger.Error("Failed to publish event", err, "subject", subject)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("Event published",
		"subject", subject,
		"size", len(data),
	)

	return nil
}

// Notify публикует алерт в "{prefix}.alerts.{kind}"
func (p *NATSPublisher) Notify(ctx context.Context, alert *dto.AlertDTO) {
	if alert == nil {
		return
	}
	_ = p.PublishEvent(ctx, p.AlertSubject(alert.Kind), alert)
}

// PublishTicketEvent публикует событие тикета в "{prefix}.tickets.{type}"
func (p *NATSPublisher) PublishTicketEvent(ctx context.Context, event *dto.TicketEventDTO) {
	if event == nil {
		return
	}
	_ = p.PublishEvent(ctx, p.TicketSubject(event.Type), event)
}

// AlertSubject возвращает subject для вида алерта
func (p *NATSPublisher) AlertSubject(kind string) string {
	return p.prefix + ".alerts." + kind
}

// TicketSubject возвращает subject для события тикета
func (p *NATSPublisher) TicketSubject(eventType string) string {
	return p.prefix + ".tickets." + eventType
}

// Close дожидается неподтвержденных публикаций и закрывает соединение
func (p *NATSPublisher) Close() error {
	if p.nc == nil {
		return nil
	}

	p.logger.Info("Closing NATS connection")
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
		return fmt.Errorf("failed to drain NATS connection: %w", err)
	}
	return nil
}
