package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wastemap",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "wastemap",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	// Bridge channel
	BridgeMessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wastemap",
		Subsystem: "bridge",
		Name:      "messages_sent_total",
		Help:      "Messages written to the map surface",
	}, []string{"type"})

	BridgeMessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wastemap",
		Subsystem: "bridge",
		Name:      "messages_received_total",
		Help:      "Messages decoded from the map surface",
	}, []string{"type"})

	BridgeMessagesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wastemap",
		Subsystem: "bridge",
		Name:      "messages_dropped_total",
		Help:      "Messages dropped by the bridge channel",
	}, []string{"reason"})

	BridgeMessagesBuffered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wastemap",
		Subsystem: "bridge",
		Name:      "messages_buffered_total",
		Help:      "Messages held until the surface reported ready",
	}, []string{"type"})

	ActiveSurfaces = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "wastemap",
		Subsystem: "ws",
		Name:      "active_surfaces",
		Help:      "Current number of connected map surfaces",
	})

	// GPS tracking
	GPSStateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wastemap",
		Subsystem: "gps",
		Name:      "state_transitions_total",
		Help:      "GPS tracker state transitions",
	}, []string{"from", "to"})

	GPSFixesForwarded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "wastemap",
		Subsystem: "gps",
		Name:      "fixes_forwarded_total",
		Help:      "Position fixes forwarded to the map surface",
	})

	GPSEnablePollTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "wastemap",
		Subsystem: "gps",
		Name:      "enable_poll_timeouts_total",
		Help:      "Times the location-services poll gave up",
	})

	// Geocoding
	GeocodeRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "wastemap",
		Subsystem: "geocode",
		Name:      "request_duration_seconds",
		Help:      "Latency of geocoding requests",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"outcome"})

	GeocodeStaleResponses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "wastemap",
		Subsystem: "geocode",
		Name:      "stale_responses_total",
		Help:      "Geocoding responses discarded because a newer query superseded them",
	})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wastemap",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache hits",
	}, []string{"operation"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wastemap",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total cache misses",
	}, []string{"operation"})

	// Database pool metrics
	DBPoolConnsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "wastemap",
		Subsystem: "db",
		Name:      "pool_conns_open",
		Help:      "Total connections open in the database pool",
	})

	DBPoolConnsAcquired = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "wastemap",
		Subsystem: "db",
		Name:      "pool_conns_acquired",
		Help:      "Connections currently acquired from the database pool",
	})

	DBPoolConnsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "wastemap",
		Subsystem: "db",
		Name:      "pool_conns_idle",
		Help:      "Idle connections in the database pool",
	})
)

// Middleware records request metrics.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Response().StatusCode())
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		method := c.Method()

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(duration)

		return err
	}
}

// Handler returns a Fiber handler serving Prometheus /metrics endpoint.
func Handler() fiber.Handler {
	handler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	return func(c *fiber.Ctx) error {
		handler(c.Context())
		return nil
	}
}

type poolStat interface {
	AcquiredConns() int32
	IdleConns() int32
	TotalConns() int32
}

// UpdateDBPoolMetrics copies pgxpool stats into the pool gauges.
func UpdateDBPoolMetrics(stat poolStat) {
	if stat == nil {
		return
	}
	DBPoolConnsAcquired.Set(float64(stat.AcquiredConns()))
	DBPoolConnsIdle.Set(float64(stat.IdleConns()))
	DBPoolConnsOpen.Set(float64(stat.TotalConns()))
}
