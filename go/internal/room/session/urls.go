package session

import (
	"net/url"
	"strconv"
)

// bookingURLLocked builds the destination URL for the queue and seat-select
// screens. Every parameter is best-effort: a value that was never recorded is
// simply omitted, and the destination renders with what it gets.
func (c *Controller) bookingURLLocked(base string) string {
	v := url.Values{}
	if s, ok := c.cfg.Store.Get(KeyReactionSec); ok {
		v.Set("rtSec", s)
	}
	if s, ok := c.cfg.Store.Get(KeyStrayClicks); ok {
		v.Set("nrClicks", s)
	}
	if c.totalStartMs > 0 {
		v.Set("tStart", strconv.FormatInt(c.totalStartMs, 10))
	}
	if c.hallID != nil {
		v.Set("hallId", strconv.FormatInt(*c.hallID, 10))
	}
	if c.state.MatchID != nil {
		v.Set("matchId", strconv.FormatInt(*c.state.MatchID, 10))
	}
	if c.reserveDate != "" {
		v.Set("date", c.reserveDate)
	}
	v.Set("round", "1")
	return base + "?" + v.Encode()
}

// resultURLLocked is the end-of-match destination, flagged as a failed run.
func (c *Controller) resultURLLocked() string {
	v := url.Values{}
	v.Set("failed", "true")
	if s, ok := c.cfg.Store.Get(KeyReactionSec); ok {
		v.Set("rtSec", s)
	}
	if s, ok := c.cfg.Store.Get(KeyStrayClicks); ok {
		v.Set("nrClicks", s)
	}
	if c.totalStartMs > 0 {
		v.Set("tStart", strconv.FormatInt(c.totalStartMs, 10))
	}
	return c.cfg.Paths.Result + "?" + v.Encode()
}
