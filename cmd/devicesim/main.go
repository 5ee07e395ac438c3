// Command devicesim serves a simulated phone location service over NATS for
// a map host running with gps.source=nats.
//
// SIGUSR1 toggles location services and SIGUSR2 toggles the permission grant,
// which is enough to walk the map through every GPS alert by hand.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	natsadapter "github.com/samirrijal/wastemap/internal/adapters/nats"
	"github.com/samirrijal/wastemap/internal/adapters/simdevice"
	"github.com/samirrijal/wastemap/internal/core/domain"
	"github.com/samirrijal/wastemap/internal/pkg/config"
	"github.com/samirrijal/wastemap/internal/pkg/logging"
)

func main() {
	cfg, err := config.Load("wastemap-devicesim")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format, "wastemap-devicesim")

	deviceID := cfg.GPS.DeviceID
	if len(os.Args) > 1 {
		deviceID = os.Args[1]
	}

	nc, err := natsadapter.Connect(cfg.NATS.URL, "wastemap-devicesim-"+deviceID)
	if err != nil {
		log.Fatalf("nats: %v", err)
	}
	defer nc.Drain()

	center := domain.GeoPoint{Lat: cfg.Map.CenterLat, Lon: cfg.Map.CenterLon}
	dev := simdevice.New(simdevice.Loop(center, 150, 12), true, true,
		simdevice.WithStep(5*time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)

	done := make(chan error, 1)
	go func() { done <- dev.Serve(ctx, nc, deviceID) }()

	enabled, grant := true, true
	for {
		select {
		case sig := <-sigs:
			switch sig {
			case syscall.SIGUSR1:
				enabled = !enabled
				dev.SetServicesEnabled(enabled)
				slog.Info("location services toggled", "enabled", enabled)
			case syscall.SIGUSR2:
				grant = !grant
				dev.SetGrant(grant)
				slog.Info("permission grant toggled", "grant", grant)
			default:
				slog.Info("received signal, shutting down device", "signal", sig.String())
				cancel()
				<-done
				return
			}
		case err := <-done:
			if err != nil {
				log.Fatalf("serve: %v", err)
			}
			return
		}
	}
}
