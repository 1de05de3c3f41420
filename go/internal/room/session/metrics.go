package session

import (
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Recorder measures the user's reaction to the gate opening: the delay from
// the gate-opened signal to the reserve click, and how many clicks landed
// anywhere else in between. Tracking is bounded by the Countdown Engine's
// one-shot transition; clicks before the gate opens are not counted.
type Recorder struct {
	clock clockwork.Clock

	mu           sync.Mutex
	gateOpenedAt *time.Time
	strayClicks  int
	tracking     bool
}

func NewRecorder(clock clockwork.Clock) *Recorder {
	return &Recorder{clock: clock}
}

// GateOpened starts tracking. Wired to the Countdown Engine's one-shot, so
// it runs at most once per session.
func (r *Recorder) GateOpened(at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gateOpenedAt != nil {
		return
	}
	r.gateOpenedAt = &at
	r.strayClicks = 0
	r.tracking = true
	log.Info().Time("appeared_at", at).Msg("reserve action unlocked")
}

// RecordStrayClick counts a click that was not the reserve action. No-op
// outside the tracking window.
func (r *Recorder) RecordStrayClick() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.tracking {
		return
	}
	r.strayClicks++
	log.Debug().Int("count", r.strayClicks).Msg("stray click")
}

// Reaction is the measured outcome of one reserve click.
type Reaction struct {
	// Seconds from gate open to click, rounded to two decimals. Zero when the
	// click happened without a recorded gate opening.
	Seconds     float64
	StrayClicks int
	ClickedAt   time.Time
}

// ReserveClicked stops tracking and returns the reaction measurement.
func (r *Recorder) ReserveClicked() Reaction {
	r.mu.Lock()
	defer r.mu.Unlock()

	clickedAt := r.clock.Now()
	out := Reaction{StrayClicks: r.strayClicks, ClickedAt: clickedAt}
	if r.gateOpenedAt != nil {
		ms := clickedAt.Sub(*r.gateOpenedAt).Milliseconds()
		out.Seconds = math.Round(float64(ms)/10) / 100
	}
	r.tracking = false

	log.Info().
		Float64("reaction_sec", out.Seconds).
		Int("stray_clicks", out.StrayClicks).
		Msg("reserve clicked")
	return out
}

// StrayClicks returns the current count without stopping tracking.
func (r *Recorder) StrayClicks() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.strayClicks
}
