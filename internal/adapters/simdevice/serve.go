package simdevice

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	natsadapter "github.com/samirrijal/wastemap/internal/adapters/nats"
	"github.com/samirrijal/wastemap/internal/core/domain"
	"github.com/samirrijal/wastemap/internal/core/ports"
)

// Serve answers the device location protocol for id on conn until ctx is done.
func (d *Device) Serve(ctx context.Context, conn *nats.Conn, id string) error {
	subj := natsadapter.SubjectsFor(id)
	log := slog.Default().With("component", "simdevice", "device", id)

	var (
		mu      sync.Mutex
		current ports.Subscription
	)
	stopWatch := func() {
		mu.Lock()
		defer mu.Unlock()
		if current != nil {
			current.Remove()
			current = nil
		}
	}

	reply := func(msg *nats.Msg, r natsadapter.DeviceReply) {
		data, _ := json.Marshal(r)
		if err := msg.Respond(data); err != nil {
			log.Warn("reply failed", "subject", msg.Subject, "error", err)
		}
	}
	publish := func(subject string, v any) {
		data, err := json.Marshal(v)
		if err != nil {
			return
		}
		if err := conn.Publish(subject, data); err != nil {
			log.Warn("publish failed", "subject", subject, "error", err)
		}
	}

	handlers := map[string]nats.MsgHandler{
		subj.Services: func(msg *nats.Msg) {
			on, _ := d.ServicesEnabled(ctx)
			reply(msg, natsadapter.DeviceReply{Enabled: on})
		},
		subj.Permission: func(msg *nats.Msg) {
			ok, err := d.RequestPermission(ctx)
			if err != nil {
				reply(msg, natsadapter.DeviceReply{Error: err.Error()})
				return
			}
			reply(msg, natsadapter.DeviceReply{Granted: ok})
		},
		subj.Watch: func(msg *nats.Msg) {
			var req natsadapter.WatchRequest
			if err := json.Unmarshal(msg.Data, &req); err != nil {
				reply(msg, natsadapter.DeviceReply{Error: "bad watch request"})
				return
			}
			stopWatch()
			opts := ports.WatchOptions{
				MinInterval: time.Duration(req.MinIntervalMS) * time.Millisecond,
				MinDistance: req.MinDistance,
			}
			if req.HighAccuracy {
				opts.Accuracy = ports.AccuracyHigh
			}
			// The reply goes out before the first fix so the host has its
			// subscription confirmed when fixes start arriving.
			reply(msg, natsadapter.DeviceReply{})
			sub, err := d.WatchPosition(ctx, opts,
				func(f domain.PositionFix) { publish(subj.Position, f) },
				func(err error) { publish(subj.Errors, natsadapter.DeviceError{Message: err.Error()}) },
			)
			if err != nil {
				publish(subj.Errors, natsadapter.DeviceError{Message: err.Error()})
				return
			}
			mu.Lock()
			current = sub
			mu.Unlock()
		},
		subj.Unwatch: func(*nats.Msg) { stopWatch() },
	}

	var subs []*nats.Subscription
	for subject, h := range handlers {
		s, err := conn.Subscribe(subject, h)
		if err != nil {
			for _, s := range subs {
				_ = s.Unsubscribe()
			}
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		subs = append(subs, s)
	}
	log.Info("simulated device serving", "subjects", len(subs))

	<-ctx.Done()
	stopWatch()
	for _, s := range subs {
		_ = s.Unsubscribe()
	}
	return nil
}
