package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/wastemap/internal/pkg/metrics"
)

const requestTimeout = 15 * time.Second

// SetupRoutes registers the map page, surface socket, REST, GraphQL and ops routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	// Prometheus metrics
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	// The surface socket is registered before compression and rate limiting:
	// it is long-lived and carries its own framing.
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/surface", websocket.New(SurfaceSocketHandler(deps.Bridge.Channel(), deps.PingInterval)))

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))
	app.Use(requestid.New())
	app.Use(RequestIDLogMiddleware())
	app.Use(AccessLogMiddleware())

	// Rate limiting: 300 requests per minute per IP. Search typing and
	// state polling from a single client are bursty.
	app.Use(limiter.New(limiter.Config{
		Max:        300,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return newError(c, fiber.StatusTooManyRequests, "rate_limited", "too many requests, please try again later")
		},
	}))

	// Security headers + API version. The map page is meant to be embedded
	// in a WebView, so framing is limited to the same origin.
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "SAMEORIGIN")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", "1.0.0")
		return c.Next()
	})

	app.Use(ETagMiddleware())
	app.Use(CachingMiddleware())

	// Health & readiness (no timeout, fast internal checks)
	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	// Embedded map page
	app.Get("/map", MapPageHandler(deps))

	with := func(h fiber.Handler) fiber.Handler { return timeout.NewWithContext(h, requestTimeout) }

	// Map control API: the host-side buttons, prompts and search box.
	m := app.Group("/v1/map")
	m.Get("/", with(MapStateHandler(deps)))
	m.Get("/props", with(MapPropsHandler(deps)))
	m.Patch("/props", with(PatchMapPropsHandler(deps)))
	m.Put("/locations", with(PutMapLocationsHandler(deps)))
	m.Post("/center", with(CenterOnMeHandler(deps)))
	m.Post("/pick/cancel", with(CancelPickHandler(deps)))
	m.Get("/search", with(SearchStateHandler(deps)))
	m.Put("/search", with(SetSearchQueryHandler(deps)))
	m.Post("/search/select", with(SelectSearchResultHandler(deps)))
	m.Get("/alerts", with(AlertsHandler(deps)))
	m.Post("/prompts/:kind", with(RespondPromptHandler(deps)))
	m.Post("/retry", with(RetrySurfaceHandler(deps)))

	// Collection points
	v1 := app.Group("/v1")
	v1.Get("/bins.geojson", with(BinsGeoJSONHandler(deps)))
	v1.Get("/bins", with(ListBinsHandler(deps)))
	v1.Post("/bins", with(CreateBinHandler(deps)))
	v1.Get("/bins/nearby", with(NearbyBinsHandler(deps)))
	v1.Post("/bins/pick", with(PickBinLocationHandler(deps)))
	v1.Get("/bins/draft", with(DraftPointHandler(deps)))
	v1.Get("/bins/:id", with(GetBinHandler(deps)))
	v1.Patch("/bins/:id", with(UpdateBinStatusHandler(deps)))

	// GraphQL
	app.Post("/graphql", GraphQLHandler(deps))

	// API documentation (Swagger UI)
	SetupDocs(app)
}
