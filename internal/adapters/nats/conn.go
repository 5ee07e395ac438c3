package natsadapter

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	// SubjectBinEvents carries domain.BinEvent JSON, one subject per kind.
	SubjectBinEvents = "wastemap.bins."
	streamBins       = "WASTEMAP_BINS"
)

// Connect opens a NATS connection that keeps retrying in the background.
func Connect(url, name string) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return conn, nil
}

// ensureStreams creates or updates the bins stream.
func ensureStreams(js nats.JetStreamContext) error {
	cfg := nats.StreamConfig{
		Name:      streamBins,
		Subjects:  []string{SubjectBinEvents + ">"},
		Retention: nats.InterestPolicy,
		MaxAge:    24 * time.Hour,
		Storage:   nats.FileStorage,
	}
	if _, err := js.AddStream(&cfg); err != nil {
		// Stream may already exist, try update
		if _, err := js.UpdateStream(&cfg); err != nil {
			return fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
		}
	}
	return nil
}
