package session

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/tickget/roomsession/go/clients/tickget_api_client"
)

// RequestExit is the explicit leave-room action. It confirms with the user,
// then runs the departure sequence: best-effort exit call, failure statistic
// when the gate had opened, carry-over cleanup, unsubscribe, redirect home.
// Returns true when the session actually ended.
func (c *Controller) RequestExit() bool {
	return c.exit(ExitReasonExplicitButton)
}

// HandleBackNavigation is the history-trap handler. A back press is treated
// exactly like the explicit exit: same confirmation, same departure sequence.
// The trap is re-armed first so a declined prompt leaves the user where they
// were, still trapped.
func (c *Controller) HandleBackNavigation() bool {
	c.cfg.Shell.PushHistoryTrap()
	return c.exit(ExitReasonBackNavigation)
}

func (c *Controller) exit(reason ExitReason) bool {
	c.mu.Lock()
	if c.exiting || c.state.Phase == PhaseExited {
		c.mu.Unlock()
		return false
	}
	c.mu.Unlock()

	if !c.cfg.Shell.Confirm(exitPrompt) {
		log.Debug().Str("reason", string(reason)).Msg("exit declined")
		return false
	}

	c.mu.Lock()
	if c.exiting || c.state.Phase == PhaseExited {
		c.mu.Unlock()
		return false
	}
	c.exiting = true
	c.guard.ExitReason = reason
	matchID := c.state.MatchID
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
	defer cancel()

	resp, err := c.cfg.API.ExitRoom(ctx, c.cfg.RoomID, tickget_api_client.ExitRoomRequest{
		UserID:   c.cfg.UserID,
		UserName: c.cfg.UserName,
	})
	if err != nil {
		log.Warn().Err(err).Int64("room_id", c.cfg.RoomID).Msg("exit notification failed")
	} else {
		log.Info().
			Int("left_user_count", resp.LeftUserCount).
			Str("room_status", resp.RoomStatus).
			Msg("left room")
	}

	if _, opened := c.countdown.GateOpened(); opened {
		trigger := "EXIT@room"
		if reason == ExitReasonBackNavigation {
			trigger = fmt.Sprintf("BACK@%s", ExitReasonBackNavigation)
		}
		if err := c.cfg.API.ReportMatchFailure(ctx, matchID, trigger); err != nil {
			log.Warn().Err(err).Str("trigger", trigger).Msg("match failure report failed")
		}
	}

	c.cfg.Store.Delete(KeyRoomSummary)

	c.mu.Lock()
	c.state.Phase = PhaseExited
	handle := c.handle
	c.handle = nil
	c.mu.Unlock()
	if handle != nil {
		c.cfg.Subscriber.Unsubscribe(handle)
	}

	c.cfg.Shell.Navigate(c.cfg.Paths.Home)
	return true
}

// selfEvictedLocked decides what a USER_LEFT naming the local user means.
// During the reload grace window it is the previous connection's teardown;
// after the queue window has been spawned it is the primary tab's natural
// departure. Only a genuine eviction ends the session here.
func (c *Controller) selfEvictedLocked() []effect {
	now := c.clock.Now()
	if !c.guard.ReloadGraceDeadline.IsZero() && now.Before(c.guard.ReloadGraceDeadline) {
		log.Info().Time("grace_deadline", c.guard.ReloadGraceDeadline).
			Msg("self leave within reload grace window, suppressed")
		return nil
	}
	if c.guard.HasSpawnedSecondaryTab {
		log.Info().Msg("self leave after queue window spawned, informational only")
		return nil
	}
	if c.state.Phase == PhaseExited {
		return nil
	}

	c.state.Phase = PhaseExited
	handle := c.handle
	c.handle = nil
	home := c.cfg.Paths.Home
	log.Warn().Int64("room_id", c.cfg.RoomID).Msg("evicted from room by server")

	return []effect{func() {
		c.cfg.Store.Delete(KeyRoomSummary)
		if handle != nil {
			c.cfg.Subscriber.Unsubscribe(handle)
		}
		c.cfg.Shell.Alert("You have been removed from the room.")
		c.cfg.Shell.Navigate(home)
	}}
}
