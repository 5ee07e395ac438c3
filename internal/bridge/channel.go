package bridge

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/samirrijal/wastemap/internal/pkg/eventloop"
	"github.com/samirrijal/wastemap/internal/pkg/metrics"
)

var ErrHandlerRegistered = errors.New("bridge: inbound handler already registered")

// Transport writes one frame to the surface. It may block; the channel calls
// it from its own writer goroutine, never from the loop.
type Transport interface {
	WriteFrame(ctx context.Context, frame []byte) error
}

// Handler receives inbound surface messages on the loop goroutine.
type Handler func(Message)

// flushOrder is the order in which buffered state is replayed on readiness:
// markers first so that a buffered navigation can find its target.
var flushOrder = []Type{
	TypeUpdateLocations,
	TypeSetSelectionMode,
	TypeUpdateUserPosition,
	TypeNavigateToLocation,
}

// resyncTypes are replayed to a surface that reconnects.
var resyncTypes = map[Type]bool{
	TypeUpdateLocations:    true,
	TypeSetSelectionMode:   true,
	TypeUpdateUserPosition: true,
}

func buffered(t Type) bool {
	for _, b := range flushOrder {
		if b == t {
			return true
		}
	}
	return false
}

type frame struct {
	to   Transport
	typ  Type
	data []byte
}

// Channel is the host end of the message channel.
//
// Send, OnReceive and ClearHandler must be called on the loop. Attach, Detach
// and Deliver are called by transports from any goroutine.
type Channel struct {
	loop *eventloop.Loop
	log  *slog.Logger

	out       chan frame
	closeOnce sync.Once
	quit      chan struct{}
	wg        sync.WaitGroup

	// Loop-confined.
	transport Transport
	ready     bool
	handler   Handler
	pending   map[Type]Message
	delivered map[Type]Message
}

// NewChannel creates a channel whose outbound queue holds queueSize frames.
func NewChannel(loop *eventloop.Loop, queueSize int, log *slog.Logger) *Channel {
	if queueSize <= 0 {
		queueSize = 64
	}
	if log == nil {
		log = slog.Default()
	}
	c := &Channel{
		loop:      loop,
		log:       log.With("component", "bridge"),
		out:       make(chan frame, queueSize),
		quit:      make(chan struct{}),
		pending:   make(map[Type]Message),
		delivered: make(map[Type]Message),
	}
	c.wg.Add(1)
	go c.writer()
	return c
}

func (c *Channel) writer() {
	defer c.wg.Done()
	for {
		select {
		case f := <-c.out:
			if err := f.to.WriteFrame(context.Background(), f.data); err != nil {
				metrics.BridgeMessagesDropped.WithLabelValues("write_failed").Inc()
				c.log.Warn("surface write failed", "type", f.typ, "error", err)
				continue
			}
			metrics.BridgeMessagesSent.WithLabelValues(string(f.typ)).Inc()
		case <-c.quit:
			return
		}
	}
}

// Close stops the writer goroutine. Frames still queued are discarded.
func (c *Channel) Close() {
	c.closeOnce.Do(func() { close(c.quit) })
	c.wg.Wait()
}

// Send queues m for the surface and returns immediately.
func (c *Channel) Send(m Message) {
	t := m.MessageType()
	if c.transport == nil || !c.ready {
		if buffered(t) {
			c.pending[t] = m
			metrics.BridgeMessagesBuffered.WithLabelValues(string(t)).Inc()
			return
		}
		metrics.BridgeMessagesDropped.WithLabelValues("not_ready").Inc()
		c.log.Debug("dropping message, surface not ready", "type", t)
		return
	}
	c.enqueue(m)
}

func (c *Channel) enqueue(m Message) {
	t := m.MessageType()
	data, err := Encode(m)
	if err != nil {
		metrics.BridgeMessagesDropped.WithLabelValues("encode_failed").Inc()
		c.log.Error("encode message", "type", t, "error", err)
		return
	}
	select {
	case c.out <- frame{to: c.transport, typ: t, data: data}:
		if resyncTypes[t] {
			c.delivered[t] = m
		}
	default:
		metrics.BridgeMessagesDropped.WithLabelValues("queue_full").Inc()
		c.log.Warn("outbound queue full, dropping message", "type", t)
	}
}

// Ready reports whether the surface has announced itself.
func (c *Channel) Ready() bool {
	return c.transport != nil && c.ready
}

// OnReceive registers the single inbound handler.
func (c *Channel) OnReceive(h Handler) error {
	if c.handler != nil {
		return ErrHandlerRegistered
	}
	c.handler = h
	return nil
}

// ClearHandler drops the inbound handler registration.
func (c *Channel) ClearHandler() {
	c.handler = nil
}

// Attach makes t the current surface transport. The channel stays not-ready
// until t delivers surfaceReady.
func (c *Channel) Attach(t Transport) {
	c.loop.Post(func() {
		if c.transport != nil && c.transport != t {
			c.requeueDelivered()
		}
		c.transport = t
		c.ready = false
		c.log.Info("surface attached")
	})
}

// Detach forgets t if it is still the current transport.
func (c *Channel) Detach(t Transport) {
	c.loop.Post(func() {
		if c.transport != t {
			return
		}
		c.transport = nil
		c.ready = false
		c.requeueDelivered()
		c.log.Info("surface detached")
	})
}

// requeueDelivered moves the last delivered state back into the buffer so
// the next surface is brought up to date. Newer pending state wins.
func (c *Channel) requeueDelivered() {
	for t, m := range c.delivered {
		if _, ok := c.pending[t]; !ok {
			c.pending[t] = m
		}
	}
	c.delivered = make(map[Type]Message)
}

// Deliver decodes a frame received from transport from. Malformed frames are
// logged and dropped; nothing escapes to the caller.
func (c *Channel) Deliver(from Transport, data []byte) {
	m, err := Decode(data)
	if err != nil {
		reason := "malformed"
		if errors.Is(err, ErrUnknownType) {
			reason = "unknown_type"
		}
		metrics.BridgeMessagesDropped.WithLabelValues(reason).Inc()
		c.log.Warn("dropping inbound frame", "error", err, "bytes", len(data))
		return
	}
	if !Inbound(m.MessageType()) {
		metrics.BridgeMessagesDropped.WithLabelValues("wrong_direction").Inc()
		c.log.Warn("dropping host-bound frame of outbound type", "type", m.MessageType())
		return
	}
	metrics.BridgeMessagesReceived.WithLabelValues(string(m.MessageType())).Inc()
	c.loop.Post(func() { c.dispatch(from, m) })
}

func (c *Channel) dispatch(from Transport, m Message) {
	if from != c.transport {
		c.log.Debug("ignoring frame from stale surface", "type", m.MessageType())
		return
	}
	if _, ok := m.(SurfaceReady); ok {
		// A surface that reloads in place announces itself again with an
		// empty marker layer, so replay what it had as well.
		c.requeueDelivered()
		c.ready = true
		c.flush()
	}
	if c.handler == nil {
		return
	}
	c.handler(m)
}

func (c *Channel) flush() {
	for _, t := range flushOrder {
		m, ok := c.pending[t]
		if !ok {
			continue
		}
		delete(c.pending, t)
		c.enqueue(m)
	}
}
