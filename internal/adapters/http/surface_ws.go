package http

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/wastemap/internal/bridge"
	"github.com/samirrijal/wastemap/internal/pkg/metrics"
)

// wsTransport adapts one websocket to bridge.Transport. Writes from the
// channel's writer goroutine and the ping goroutine are serialised.
type wsTransport struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (t *wsTransport) WriteFrame(_ context.Context, frame []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn.WriteMessage(websocket.TextMessage, frame)
}

func (t *wsTransport) ping() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn.WriteMessage(websocket.PingMessage, nil)
}

// SurfaceSocketHandler connects an embedded map page to the bridge channel.
// The newest connection wins; frames from a replaced socket are ignored.
func SurfaceSocketHandler(ch *bridge.Channel, pingEvery time.Duration) func(*websocket.Conn) {
	if pingEvery <= 0 {
		pingEvery = 30 * time.Second
	}
	return func(c *websocket.Conn) {
		defer c.Close()

		remote := c.RemoteAddr().String()
		log := slog.Default().With("component", "surface_ws", "remote", remote)
		log.Info("surface connected")

		t := &wsTransport{conn: c}
		ch.Attach(t)
		metrics.ActiveSurfaces.Inc()

		// Keep-alive ping
		done := make(chan struct{})
		go func() {
			ticker := time.NewTicker(pingEvery)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if err := t.ping(); err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()

		for {
			mt, msg, err := c.ReadMessage()
			if err != nil {
				break
			}
			if mt != websocket.TextMessage {
				continue
			}
			ch.Deliver(t, msg)
		}

		close(done)
		ch.Detach(t)
		metrics.ActiveSurfaces.Dec()
		log.Info("surface disconnected")
	}
}
