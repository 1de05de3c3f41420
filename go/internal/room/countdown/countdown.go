// Package countdown derives the seconds remaining until a room's
// ticket-release instant and fires a one-shot signal the first time that
// number reaches zero ("gate opened").
package countdown

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// PreWindow is how long before the release instant the countdown becomes a
// true seconds-to-gate number. Outside it the value includes the lead-in to
// the window and is not expected to track wall time smoothly.
const PreWindow = 30 * time.Second

// TickPeriod is the fixed recompute cadence.
const TickPeriod = time.Second

// Engine computes secondsLeft for a release instant and owns the gate-open
// latch. Every read of time goes through the injected clock so tests can
// drive it with a fake.
//
// The per-tick rule is hybrid: recompute from absolute time, but if the
// recomputed value is within one second of the naive decrement, decrement
// instead. Recomputing corrects clock drift; preferring the decrement keeps
// the displayed number from jittering when the tick lands slightly off the
// second boundary.
type Engine struct {
	clock clockwork.Clock

	mu           sync.Mutex
	releaseAt    *time.Time
	secondsLeft  int64
	gateOpened   bool
	gateOpenedAt time.Time
	onGateOpen   []func(at time.Time)
}

func New(clock clockwork.Clock) *Engine {
	return &Engine{clock: clock}
}

// OnGateOpen registers a callback for the one-shot gate-opened signal. If the
// gate has already opened, the callback fires immediately with the original
// opening timestamp.
func (e *Engine) OnGateOpen(fn func(at time.Time)) {
	e.mu.Lock()
	if e.gateOpened {
		at := e.gateOpenedAt
		e.mu.Unlock()
		fn(at)
		return
	}
	e.onGateOpen = append(e.onGateOpen, fn)
	e.mu.Unlock()
}

// SetReleaseAt installs (or replaces) the release instant and recomputes
// immediately. A room whose release time is already in the past opens the
// gate right away; a missing release time behaves the same, fail-open, so a
// data gap never locks the user out.
func (e *Engine) SetReleaseAt(t time.Time) {
	e.mu.Lock()
	e.releaseAt = &t
	e.secondsLeft = e.compute(e.clock.Now())
	fire, at := e.latchLocked()
	e.mu.Unlock()
	e.fireGateOpen(fire, at)
}

// SecondsLeft returns the last computed value.
func (e *Engine) SecondsLeft() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.secondsLeft
}

// GateOpened reports whether the one-shot signal has fired, and when.
func (e *Engine) GateOpened() (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gateOpenedAt, e.gateOpened
}

// Tick advances the countdown once. Exposed so tests can step it without the
// ticker goroutine; Run calls it on every period.
func (e *Engine) Tick() {
	e.mu.Lock()
	now := e.clock.Now()
	recomputed := e.compute(now)
	naive := e.secondsLeft - 1
	if naive < 0 {
		naive = 0
	}
	diff := recomputed - naive
	if diff > 1 || diff < -1 {
		if e.releaseAt != nil {
			log.Debug().
				Int64("recomputed", recomputed).
				Int64("naive", naive).
				Msg("countdown drift correction")
		}
		e.secondsLeft = recomputed
	} else {
		e.secondsLeft = naive
	}
	fire, at := e.latchLocked()
	e.mu.Unlock()
	e.fireGateOpen(fire, at)
}

// Run recomputes once immediately, then on every tick until ctx is done.
func (e *Engine) Run(ctx context.Context) {
	e.mu.Lock()
	e.secondsLeft = e.compute(e.clock.Now())
	fire, at := e.latchLocked()
	e.mu.Unlock()
	e.fireGateOpen(fire, at)

	ticker := e.clock.NewTicker(TickPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			e.Tick()
		}
	}
}

// compute implements the countdown contract. Caller holds the lock.
//
//	unknown release  -> 0 (fail-open)
//	now >= T         -> 0
//	now <  T - 30s   -> secondsToWindow + 30
//	otherwise        -> seconds to T, clamped to [0, 30]
func (e *Engine) compute(now time.Time) int64 {
	if e.releaseAt == nil {
		return 0
	}
	t := *e.releaseAt
	if !now.Before(t) {
		return 0
	}
	windowStart := t.Add(-PreWindow)
	if now.Before(windowStart) {
		return int64(windowStart.Sub(now)/time.Second) + int64(PreWindow/time.Second)
	}
	left := int64(t.Sub(now) / time.Second)
	if left < 0 {
		left = 0
	}
	if max := int64(PreWindow / time.Second); left > max {
		left = max
	}
	return left
}

// latchLocked arms the one-shot when secondsLeft first reaches zero. Caller
// holds the lock; the returned callbacks are invoked after it is released.
func (e *Engine) latchLocked() ([]func(time.Time), time.Time) {
	if e.secondsLeft != 0 || e.gateOpened {
		return nil, time.Time{}
	}
	e.gateOpened = true
	e.gateOpenedAt = e.clock.Now()
	fire := e.onGateOpen
	e.onGateOpen = nil
	return fire, e.gateOpenedAt
}

func (e *Engine) fireGateOpen(fns []func(time.Time), at time.Time) {
	if len(fns) == 0 {
		return
	}
	log.Info().Time("opened_at", at).Msg("reservation gate opened")
	for _, fn := range fns {
		fn(at)
	}
}
