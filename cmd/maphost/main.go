package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/samirrijal/wastemap/internal/adapters/http"
	natsadapter "github.com/samirrijal/wastemap/internal/adapters/nats"
	"github.com/samirrijal/wastemap/internal/adapters/postgres"
	"github.com/samirrijal/wastemap/internal/adapters/simdevice"
	"github.com/samirrijal/wastemap/internal/adapters/valkey"
	"github.com/samirrijal/wastemap/internal/core/domain"
	"github.com/samirrijal/wastemap/internal/core/ports"
	"github.com/samirrijal/wastemap/internal/core/usecases"
	"github.com/samirrijal/wastemap/internal/geocode"
	"github.com/samirrijal/wastemap/internal/gps"
	"github.com/samirrijal/wastemap/internal/mapbridge"
	"github.com/samirrijal/wastemap/internal/pkg/config"
	"github.com/samirrijal/wastemap/internal/pkg/logging"
	"github.com/samirrijal/wastemap/internal/pkg/telemetry"
	"github.com/samirrijal/wastemap/internal/surface"
)

func main() {
	cfg, err := config.Load("wastemap-maphost")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format, "wastemap-maphost")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	// Database
	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()
	go db.ReportPoolStats(ctx, 15*time.Second)

	deps := &http.Dependencies{
		Page: surface.PageConfig{
			Title:   cfg.Map.Title,
			Center:  domain.GeoPoint{Lat: cfg.Map.CenterLat, Lon: cfg.Map.CenterLon},
			TileURL: cfg.Map.TileURL,
		},
		PingInterval: cfg.Channel.PingInterval,
		DB:           db,
	}

	// Cache
	var geoCache ports.CacheService
	cache, err := valkey.New(cfg.Valkey.Addr, "wastemap:")
	if err != nil {
		slog.Warn("valkey unavailable, geocoding is uncached", "error", err)
	} else {
		defer cache.Close()
		geoCache = cache
		deps.Cache = cache
	}

	// NATS
	var (
		events ports.BinEventPublisher
		sub    ports.BinEventSubscriber
	)
	nc, err := natsadapter.Connect(cfg.NATS.URL, "wastemap-maphost")
	if err != nil {
		slog.Warn("nats unavailable, bin changes from other hosts will not be seen", "error", err)
	} else {
		defer nc.Drain()
		if pub, err := natsadapter.NewPublisher(nc); err != nil {
			slog.Warn("nats publisher", "error", err)
		} else {
			events = pub
			deps.NATS = pub
		}
		host, _ := os.Hostname()
		if s, err := natsadapter.NewSubscriber(nc, "maphost-"+host); err != nil {
			slog.Warn("nats subscriber", "error", err)
		} else {
			defer s.Close()
			sub = s
		}
	}

	// Location services
	var provider ports.LocationProvider
	switch cfg.GPS.Source {
	case "nats":
		if nc == nil {
			log.Fatal("gps.source=nats needs a NATS connection")
		}
		provider = natsadapter.NewDeviceProvider(nc, cfg.GPS.DeviceID, 5*time.Second)
	default:
		center := domain.GeoPoint{Lat: cfg.Map.CenterLat, Lon: cfg.Map.CenterLon}
		provider = simdevice.New(simdevice.Loop(center, 150, 12), true, true)
		slog.Info("using simulated device", "center", center.String())
	}

	// Geocoding
	var geocoder ports.Geocoder = geocode.NewNominatim(geocode.NominatimConfig{
		BaseURL:   cfg.Geocode.BaseURL,
		UserAgent: cfg.Geocode.UserAgent,
		Limit:     cfg.Geocode.Limit,
		Timeout:   cfg.Geocode.Timeout,
	})
	if geoCache != nil {
		geocoder = geocode.NewCached(geocoder, geoCache, cfg.Geocode.CacheTTL)
	}
	deps.Geocoder = geocoder

	// Map component
	alerts := mapbridge.NewAlertBoard()
	bridge := mapbridge.New(
		mapbridge.Props{
			DefaultCenter: deps.Page.Center,
			IsDarkMode:    cfg.Map.DarkMode,
		},
		mapbridge.Callbacks{
			OnTrashSelect: func(l domain.TrashLocation) {
				slog.Info("bin tapped", "id", l.ID, "label", l.Label, "status", l.Status)
			},
			OnLocationSelect: func(p domain.GeoPoint) {
				slog.Info("location picked", "point", p.String())
			},
		},
		mapbridge.Deps{
			Provider: provider,
			Geocoder: geocoder,
			Notifier: alerts,
			GPS: gps.Config{
				PollInterval: cfg.GPS.PollInterval,
				PollTimeout:  cfg.GPS.PollTimeout,
				Watch: ports.WatchOptions{
					Accuracy:    ports.AccuracyHigh,
					MinInterval: cfg.GPS.MinInterval,
					MinDistance: cfg.GPS.MinDistance,
				},
			},
			Debounce:      cfg.Geocode.Debounce,
			SearchTimeout: cfg.Geocode.Timeout,
			QueueSize:     cfg.Channel.QueueSize,
		},
	)
	if err := bridge.Mount(ctx); err != nil {
		log.Fatalf("mount map: %v", err)
	}
	defer bridge.Unmount()
	deps.Bridge = bridge
	deps.Alerts = alerts

	// Use cases
	binRepo := postgres.NewBinRepo(db)
	bins := usecases.NewBinService(binRepo, events)
	locSync := usecases.NewLocationSync(binRepo, bridge)
	bins.SetRefresher(locSync)
	deps.Bins = bins

	go func() {
		if err := locSync.Run(ctx, sub); err != nil && ctx.Err() == nil {
			slog.Error("location sync stopped", "error", err)
		}
	}()

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024,
		AppName:      "Wastemap",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "http://localhost:3000, http://localhost:5173",
		AllowMethods: "GET,POST,PUT,PATCH,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept",
		MaxAge:       3600,
	}))

	http.SetupRoutes(app, deps)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("map host starting", "addr", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}
