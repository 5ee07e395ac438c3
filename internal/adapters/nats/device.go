package natsadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/wastemap/internal/core/domain"
	"github.com/samirrijal/wastemap/internal/core/ports"
)

// DeviceSubjects are the per-device subjects of the location protocol.
// Queries are request/reply; fixes and errors are plain publishes.
type DeviceSubjects struct {
	Services   string
	Permission string
	Watch      string
	Unwatch    string
	Position   string
	Errors     string
}

// SubjectsFor returns the subjects used by device id.
func SubjectsFor(id string) DeviceSubjects {
	base := "wastemap.device." + id + "."
	return DeviceSubjects{
		Services:   base + "services",
		Permission: base + "permission",
		Watch:      base + "watch",
		Unwatch:    base + "unwatch",
		Position:   base + "position",
		Errors:     base + "errors",
	}
}

// DeviceReply is the answer to every device request.
type DeviceReply struct {
	Enabled bool   `json:"enabled,omitempty"`
	Granted bool   `json:"granted,omitempty"`
	Error   string `json:"error,omitempty"`
}

// WatchRequest asks the device to start streaming fixes.
type WatchRequest struct {
	HighAccuracy  bool    `json:"high_accuracy"`
	MinIntervalMS int64   `json:"min_interval_ms"`
	MinDistance   float64 `json:"min_distance"`
}

// DeviceError is published by the device when its position stream fails.
type DeviceError struct {
	Message string `json:"message"`
}

// ErrDevice wraps failures reported by the device itself.
var ErrDevice = errors.New("device error")

// DeviceProvider implements ports.LocationProvider for a device that speaks
// the location protocol over NATS.
type DeviceProvider struct {
	conn     *nats.Conn
	subjects DeviceSubjects
	timeout  time.Duration
	log      *slog.Logger
}

// NewDeviceProvider talks to device id over conn. Each request is bounded by timeout.
func NewDeviceProvider(conn *nats.Conn, id string, timeout time.Duration) *DeviceProvider {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &DeviceProvider{
		conn:     conn,
		subjects: SubjectsFor(id),
		timeout:  timeout,
		log:      slog.Default().With("component", "device_provider", "device", id),
	}
}

func (d *DeviceProvider) request(ctx context.Context, subject string, payload any) (DeviceReply, error) {
	var reply DeviceReply
	data := []byte("{}")
	if payload != nil {
		var err error
		if data, err = json.Marshal(payload); err != nil {
			return reply, err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	msg, err := d.conn.RequestWithContext(ctx, subject, data)
	if err != nil {
		return reply, fmt.Errorf("request %s: %w", subject, err)
	}
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return reply, fmt.Errorf("decode reply from %s: %w", subject, err)
	}
	if reply.Error != "" {
		return reply, fmt.Errorf("%w: %s", ErrDevice, reply.Error)
	}
	return reply, nil
}

func (d *DeviceProvider) ServicesEnabled(ctx context.Context) (bool, error) {
	reply, err := d.request(ctx, d.subjects.Services, nil)
	if err != nil {
		return false, err
	}
	return reply.Enabled, nil
}

func (d *DeviceProvider) RequestPermission(ctx context.Context) (bool, error) {
	reply, err := d.request(ctx, d.subjects.Permission, nil)
	if err != nil {
		return false, err
	}
	return reply.Granted, nil
}

// WatchPosition subscribes to fixes before asking the device to start, so
// the first fix cannot be missed.
func (d *DeviceProvider) WatchPosition(ctx context.Context, opts ports.WatchOptions, onFix func(domain.PositionFix), onErr func(error)) (ports.Subscription, error) {
	w := &deviceWatch{conn: d.conn, unwatch: d.subjects.Unwatch}

	fixes, err := d.conn.Subscribe(d.subjects.Position, func(msg *nats.Msg) {
		var fix domain.PositionFix
		if err := json.Unmarshal(msg.Data, &fix); err != nil {
			d.log.Warn("dropping undecodable fix", "error", err)
			return
		}
		if w.active() {
			onFix(fix)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe positions: %w", err)
	}
	w.subs = append(w.subs, fixes)

	errs, err := d.conn.Subscribe(d.subjects.Errors, func(msg *nats.Msg) {
		var de DeviceError
		if err := json.Unmarshal(msg.Data, &de); err != nil || de.Message == "" {
			de.Message = string(msg.Data)
		}
		if w.active() {
			onErr(fmt.Errorf("%w: %s", ErrDevice, de.Message))
		}
	})
	if err != nil {
		w.Remove()
		return nil, fmt.Errorf("subscribe errors: %w", err)
	}
	w.subs = append(w.subs, errs)

	req := WatchRequest{
		HighAccuracy:  opts.Accuracy == ports.AccuracyHigh,
		MinIntervalMS: opts.MinInterval.Milliseconds(),
		MinDistance:   opts.MinDistance,
	}
	if _, err := d.request(ctx, d.subjects.Watch, req); err != nil {
		w.Remove()
		return nil, err
	}
	return w, nil
}

type deviceWatch struct {
	conn    *nats.Conn
	unwatch string

	mu      sync.Mutex
	subs    []*nats.Subscription
	removed bool
}

func (w *deviceWatch) active() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return !w.removed
}

// Remove is idempotent. Fixes that arrive after it are discarded.
func (w *deviceWatch) Remove() {
	w.mu.Lock()
	if w.removed {
		w.mu.Unlock()
		return
	}
	w.removed = true
	subs := w.subs
	w.subs = nil
	w.mu.Unlock()

	for _, s := range subs {
		_ = s.Unsubscribe()
	}
	_ = w.conn.Publish(w.unwatch, nil)
}
