package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/wastemap/internal/core/domain"
)

// Subscriber implements ports.BinEventSubscriber using NATS JetStream.
type Subscriber struct {
	js      nats.JetStreamContext
	durable string
	subs    []*nats.Subscription
}

// NewSubscriber creates a subscriber sharing conn. Each map host should use
// its own durable name so that every host sees every event.
func NewSubscriber(conn *nats.Conn, durable string) (*Subscriber, error) {
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	if err := ensureStreams(js); err != nil {
		return nil, err
	}
	return &Subscriber{js: js, durable: durable}, nil
}

func (s *Subscriber) SubscribeBinEvents(ctx context.Context, handler func(ctx context.Context, event *domain.BinEvent) error) error {
	sub, err := s.js.Subscribe(SubjectBinEvents+">", func(msg *nats.Msg) {
		var event domain.BinEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			// Poison message; redelivery would not help.
			_ = msg.Term()
			return
		}
		if err := handler(ctx, &event); err != nil {
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	},
		nats.Durable(s.durable),
		nats.ManualAck(),
		nats.MaxDeliver(3),
		nats.DeliverNew(),
	)
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)
	return nil
}

// Close unsubscribes. The connection is owned by the caller.
func (s *Subscriber) Close() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
}
