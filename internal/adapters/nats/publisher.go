package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/wastemap/internal/core/domain"
)

// Publisher implements ports.BinEventPublisher using NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher enables JetStream on conn and makes sure the bins stream exists.
func NewPublisher(conn *nats.Conn) (*Publisher, error) {
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	if err := ensureStreams(js); err != nil {
		return nil, err
	}
	return &Publisher{conn: conn, js: js}, nil
}

// PublishBinEvent publishes event on wastemap.bins.<kind>.
func (p *Publisher) PublishBinEvent(ctx context.Context, event *domain.BinEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(SubjectBinEvents+event.Kind, data, nats.Context(ctx))
	return err
}

// IsConnected reports the state of the underlying connection.
func (p *Publisher) IsConnected() bool {
	return p.conn.IsConnected()
}
