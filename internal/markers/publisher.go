package markers

import (
	"log/slog"

	"github.com/samirrijal/wastemap/internal/bridge"
	"github.com/samirrijal/wastemap/internal/core/domain"
	"github.com/samirrijal/wastemap/internal/pkg/eventloop"
)

// Sender is the outbound half of the bridge channel.
type Sender interface {
	Send(bridge.Message)
}

// Publisher turns location-list updates into updateLocations messages.
//
// All methods run on the loop. Any number of SetLocations calls made during
// one loop turn produce a single send at the start of the next turn.
type Publisher struct {
	loop *eventloop.Loop
	out  Sender
	log  *slog.Logger

	current   []domain.TrashLocation
	index     *Index
	sent      []domain.TrashLocation
	hasSent   bool
	scheduled bool
}

func NewPublisher(loop *eventloop.Loop, out Sender, log *slog.Logger) *Publisher {
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{loop: loop, out: out, log: log.With("component", "markers"), index: NewIndex(nil)}
}

// SetLocations records the desired marker set.
func (p *Publisher) SetLocations(locs []domain.TrashLocation) {
	valid := make([]domain.TrashLocation, 0, len(locs))
	for _, l := range locs {
		if !l.Coordinates.Valid() {
			p.log.Warn("skipping location with invalid coordinates", "label", l.Label, "coordinates", l.Coordinates)
			continue
		}
		valid = append(valid, l)
	}
	p.current = valid
	p.index = NewIndex(valid)
	if p.scheduled {
		return
	}
	p.scheduled = p.loop.Post(p.publish)
}

// Flush publishes a pending list now instead of at the end of the turn.
// Messages that refer to a marker, such as navigation, must follow it.
func (p *Publisher) Flush() {
	if p.scheduled {
		p.publish()
	}
}

func (p *Publisher) publish() {
	p.scheduled = false
	next := Dedupe(p.current)
	if p.hasSent && SameList(p.sent, next) {
		return
	}
	p.sent = next
	p.hasSent = true
	p.out.Send(bridge.UpdateLocations{Locations: next})
}

// Locations returns the most recently set list.
func (p *Publisher) Locations() []domain.TrashLocation {
	return append([]domain.TrashLocation(nil), p.current...)
}

// Resolve maps a marker tap to a location in the current list.
func (p *Publisher) Resolve(key string, at domain.GeoPoint) (domain.TrashLocation, bool) {
	return p.index.Resolve(key, at)
}
