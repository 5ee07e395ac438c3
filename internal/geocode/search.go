package geocode

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/facebookgo/clock"

	"github.com/samirrijal/wastemap/internal/bridge"
	"github.com/samirrijal/wastemap/internal/core/domain"
	"github.com/samirrijal/wastemap/internal/core/ports"
	"github.com/samirrijal/wastemap/internal/pkg/eventloop"
	"github.com/samirrijal/wastemap/internal/pkg/metrics"
)

var ErrNoSuchResult = errors.New("no such search result")

const (
	DefaultDebounce = 500 * time.Millisecond
	DefaultTimeout  = 10 * time.Second
)

// Prompt actions understood by Respond.
const (
	ActionRetry   = "retry"
	ActionDismiss = "dismiss"
)

// Sender is the outbound half of the bridge channel.
type Sender interface {
	Send(bridge.Message)
}

// State is what the search box renders.
type State struct {
	Query     string                `json:"query"`
	Results   []domain.SearchResult `json:"results"`
	Searching bool                  `json:"searching"`
}

// SearchOption configures a Search.
type SearchOption func(*Search)

func WithSearchClock(c clock.Clock) SearchOption { return func(s *Search) { s.clk = c } }

func WithDebounce(d time.Duration) SearchOption {
	return func(s *Search) {
		if d > 0 {
			s.debounce = d
		}
	}
}

// WithRequestTimeout bounds each geocoding request.
func WithRequestTimeout(d time.Duration) SearchOption {
	return func(s *Search) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithSearchLogger(l *slog.Logger) SearchOption { return func(s *Search) { s.log = l } }

// OnSearchChange registers fn to run on the loop whenever State changes.
func OnSearchChange(fn func(State)) SearchOption { return func(s *Search) { s.onChange = fn } }

// Search is the debounced search box controller. It is confined to the
// event loop; geocoder calls run on their own goroutines.
type Search struct {
	loop     *eventloop.Loop
	geocoder ports.Geocoder
	out      Sender
	notify   ports.Notifier
	clk      clock.Clock
	debounce time.Duration
	timeout  time.Duration
	log      *slog.Logger
	onChange func(State)

	ctx     context.Context
	cancel  context.CancelFunc
	stopped bool

	query     string
	results   []domain.SearchResult
	searching bool
	// gen is bumped by every query change; responses carrying an older
	// value are discarded.
	gen      uint64
	timer    *clock.Timer
	inflight context.CancelFunc
}

func NewSearch(loop *eventloop.Loop, geocoder ports.Geocoder, out Sender, notify ports.Notifier, opts ...SearchOption) *Search {
	s := &Search{
		loop:     loop,
		geocoder: geocoder,
		out:      out,
		notify:   notify,
		clk:      clock.New(),
		debounce: DefaultDebounce,
		timeout:  DefaultTimeout,
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With("component", "geocode")
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// Start ties in-flight requests to ctx.
func (s *Search) Start(ctx context.Context) {
	s.cancel()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.stopped = false
}

// Stop cancels the pending debounce and any request in flight. Late
// responses are discarded.
func (s *Search) Stop() {
	s.gen++
	s.stopTimer()
	s.cancelInflight()
	s.cancel()
	s.stopped = true
	s.searching = false
}

// State returns the current search box state.
func (s *Search) State() State {
	return State{
		Query:     s.query,
		Results:   append([]domain.SearchResult(nil), s.results...),
		Searching: s.searching,
	}
}

// SetQuery records new input. Blank input clears the results at once;
// anything else is looked up after the debounce interval of quiet.
func (s *Search) SetQuery(q string) {
	if s.stopped {
		return
	}
	s.query = q
	s.gen++
	s.stopTimer()
	s.cancelInflight()

	if strings.TrimSpace(q) == "" {
		s.results = nil
		s.searching = false
		s.changed()
		return
	}

	gen := s.gen
	s.timer = s.clk.AfterFunc(s.debounce, func() {
		s.loop.Post(func() { s.fire(gen) })
	})
	s.changed()
}

func (s *Search) fire(gen uint64) {
	if gen != s.gen || s.stopped {
		return
	}
	s.timer = nil
	s.searching = true
	s.changed()

	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	s.inflight = cancel
	q := strings.TrimSpace(s.query)
	go func() {
		results, err := s.geocoder.Search(ctx, q)
		cancel()
		s.loop.Post(func() { s.complete(gen, results, err) })
	}()
}

func (s *Search) complete(gen uint64, results []domain.SearchResult, err error) {
	if gen != s.gen {
		metrics.GeocodeStaleResponses.Inc()
		s.log.Debug("discarding stale geocode response", "gen", gen, "current", s.gen)
		return
	}
	s.inflight = nil
	s.searching = false
	if err != nil {
		s.log.Warn("geocode search failed", "query", s.query, "error", err)
		s.results = nil
		s.notify.Show(searchFailedAlert(s.clk.Now()))
		s.changed()
		return
	}
	s.results = results
	s.changed()
}

// Select picks result i: the box is cleared and the map recentres on the
// result, opening a marker popup if one sits at those coordinates.
func (s *Search) Select(i int) (domain.SearchResult, error) {
	if i < 0 || i >= len(s.results) {
		return domain.SearchResult{}, ErrNoSuchResult
	}
	r := s.results[i]

	s.query = ""
	s.results = nil
	s.searching = false
	s.gen++
	s.stopTimer()
	s.cancelInflight()
	s.changed()

	s.out.Send(bridge.CenterOnPosition{Position: r.Coordinates})
	s.out.Send(bridge.NavigateToLocation{Location: domain.TrashLocation{
		Label:       r.Label,
		Coordinates: r.Coordinates,
	}})
	return r, nil
}

// Respond handles the answer to the search failure alert.
func (s *Search) Respond(kind domain.AlertKind, action string) bool {
	if kind != domain.AlertSearchFailed {
		return false
	}
	s.notify.Dismiss(kind)
	if action == ActionRetry {
		s.SetQuery(s.query)
	}
	return true
}

func (s *Search) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Search) cancelInflight() {
	if s.inflight != nil {
		s.inflight()
		s.inflight = nil
	}
}

func (s *Search) changed() {
	if s.onChange != nil {
		s.onChange(s.State())
	}
}

func searchFailedAlert(now time.Time) domain.Alert {
	return domain.Alert{
		Kind:    domain.AlertSearchFailed,
		Title:   "Search Failed",
		Message: "The place search could not be completed. Check your connection and try again.",
		Actions: []domain.AlertAction{
			{ID: ActionRetry, Label: "Retry"},
			{ID: ActionDismiss, Label: "Dismiss", Cancel: true},
		},
		Time: now,
	}
}
