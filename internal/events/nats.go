package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Publisher is the subset of *nats.Conn the bridge needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher forwards every workflow event to NATS as JSON on
// "<prefix>.<kind>", e.g. clientflow.task.approved.
type NATSPublisher struct {
	conn   Publisher
	prefix string
	logger *slog.Logger
}

// NewNATSPublisher creates a handler publishing on conn.
func NewNATSPublisher(conn Publisher, prefix string, logger *slog.Logger) *NATSPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSPublisher{
		conn:   conn,
		prefix: prefix,
		logger: logger.With("component", "nats_publisher"),
	}
}

// Subject returns the subject an event of kind is published on.
func (p *NATSPublisher) Subject(kind Kind) string {
	if p.prefix == "" {
		return string(kind)
	}
	return p.prefix + "." + string(kind)
}

// HandleEvent implements EventHandler.
func (p *NATSPublisher) HandleEvent(_ context.Context, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	subject := p.Subject(event.Kind)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish %s: %w", subject, err)
	}

	p.logger.Debug("published event", "subject", subject, "event_id", event.ID)
	return nil
}

// ConnectNATS dials url with reconnect settings suited to a long-running server.
func ConnectNATS(url string, logger *slog.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}
	nc, err := nats.Connect(url,
		nats.Name("clientflow"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(1*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("disconnected from NATS", "error", err)
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	return nc, nil
}
