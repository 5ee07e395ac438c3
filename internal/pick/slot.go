// Package pick hands the next map tap to whichever component asked for it.
package pick

import "github.com/samirrijal/wastemap/internal/core/domain"

// Callback receives a picked coordinate.
type Callback func(domain.GeoPoint)

// Slot holds at most one pending callback. It is confined to the event loop
// and needs no locking.
type Slot struct {
	cb Callback
}

// Begin stores cb, replacing any callback already waiting.
func (s *Slot) Begin(cb Callback) {
	s.cb = cb
}

// Take returns the pending callback and empties the slot.
func (s *Slot) Take() (Callback, bool) {
	cb := s.cb
	s.cb = nil
	return cb, cb != nil
}

// Cancel empties the slot without running the callback.
func (s *Slot) Cancel() {
	s.cb = nil
}

// Active reports whether a callback is waiting.
func (s *Slot) Active() bool {
	return s.cb != nil
}
