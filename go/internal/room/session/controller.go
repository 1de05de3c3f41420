// Package session implements the client-side room session controller: it
// owns one user's in-memory view of a shared room, applies idempotent
// transitions from an unordered event stream, runs the release countdown,
// and arbitrates the ways a session can end.
package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/tickget/roomsession/go/clients/tickget_api_client"
	"github.com/tickget/roomsession/go/internal/room/countdown"
	"github.com/tickget/roomsession/go/internal/room/events"
	"github.com/tickget/roomsession/go/internal/room/subscription"
)

// RoomAPI is the outbound side-effect surface. *tickget_api_client.TickgetClient
// implements it; tests use fakes.
type RoomAPI interface {
	GetRoomDetail(ctx context.Context, roomID int64) (*tickget_api_client.RoomDetail, error)
	JoinRoom(ctx context.Context, roomID int64, req tickget_api_client.JoinRoomRequest) (*tickget_api_client.JoinRoomResponse, error)
	ExitRoom(ctx context.Context, roomID int64, req tickget_api_client.ExitRoomRequest) (*tickget_api_client.ExitRoomResponse, error)
	ReportMatchFailure(ctx context.Context, matchID *int64, trigger string) error
}

// Subscriber is the slice of the subscription manager the controller needs.
type Subscriber interface {
	Subscribe(ctx context.Context, roomID string, h subscription.MessageHandler) (*subscription.Handle, error)
	Unsubscribe(h *subscription.Handle)
}

// Paths are the navigation destinations the controller redirects to.
type Paths struct {
	Home       string
	Queue      string
	SeatSelect string
	Result     string
}

func DefaultPaths() Paths {
	return Paths{
		Home:       "/",
		Queue:      "/booking/waiting",
		SeatSelect: "/booking/select-seat",
		Result:     "/booking/game-result",
	}
}

// ReloadGrace is how long after a reload-detected session start that
// self-eviction events are discarded as leftovers of the previous connection.
const ReloadGrace = 5 * time.Second

// sideEffectTimeout bounds the best-effort outbound calls (departure notice,
// failure statistics) so they can never hang navigation.
const sideEffectTimeout = 5 * time.Second

const exitPrompt = "Are you sure you want to leave the room?"

// Config wires a Controller. RoomID, UserID, API, Shell, Store and
// Subscriber are required.
type Config struct {
	RoomID   int64
	UserID   int64
	UserName string

	Clock      clockwork.Clock
	API        RoomAPI
	Shell      Shell
	Store      KeyedStore
	Subscriber Subscriber
	Paths      Paths

	// Seed carried over from the join/create response. When nil the
	// controller fetches the room detail itself at Start.
	Seed *tickget_api_client.RoomDetail

	// ReleaseAt overrides the release instant from the seed, for sessions
	// created with an explicit start time.
	ReleaseAt *time.Time
}

// Controller is the room session controller. All state behind the mutex is
// owned exclusively by it; external readers get copies via Snapshot. Public
// methods may be called from any goroutine in any order, so every transition
// must stay idempotent.
type Controller struct {
	cfg   Config
	clock clockwork.Clock

	countdown *countdown.Engine
	metrics   *Recorder

	mu           sync.Mutex
	state        RoomState
	guard        GuardState
	hasDequeued  bool
	exiting      bool
	handle       *subscription.Handle
	hallID       *int64
	reserveDate  string // YYYY-MM-DD
	totalStartMs int64
}

func New(cfg Config) (*Controller, error) {
	if cfg.RoomID == 0 {
		return nil, errors.New("session: room ID is required")
	}
	if cfg.UserID == 0 {
		return nil, errors.New("session: user ID is required")
	}
	if cfg.API == nil || cfg.Shell == nil || cfg.Store == nil || cfg.Subscriber == nil {
		return nil, errors.New("session: API, Shell, Store and Subscriber are required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Paths == (Paths{}) {
		cfg.Paths = DefaultPaths()
	}

	c := &Controller{
		cfg:   cfg,
		clock: cfg.Clock,
		state: RoomState{
			RoomID: cfg.RoomID,
			Phase:  PhaseWaiting,
		},
		guard: GuardState{ExitReason: ExitReasonNone},
	}

	c.countdown = countdown.New(cfg.Clock)
	c.metrics = NewRecorder(cfg.Clock)
	c.countdown.OnGateOpen(c.metrics.GateOpened)

	// Reload detection happens once, from the navigation-timing record. A
	// reload arms the grace window that swallows the stale eviction the old
	// connection's teardown produces.
	if cfg.Shell.NavigationKind() == NavigationReload {
		c.guard.ReloadGraceDeadline = c.clock.Now().Add(ReloadGrace)
		log.Info().
			Int64("room_id", cfg.RoomID).
			Time("grace_deadline", c.guard.ReloadGraceDeadline).
			Msg("reload detected, arming eviction grace window")
	}

	// Arm the back-navigation trap before anything can navigate.
	cfg.Shell.PushHistoryTrap()

	c.totalStartMs = ensureTotalStart(cfg.Store, c.clock)

	return c, nil
}

// Start seeds the room state, establishes the topic subscription, and starts
// the countdown. A subscription failure degrades the session to
// no-live-updates rather than failing it, so Start only errors on a dead
// context.
func (c *Controller) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.seed(ctx)

	// A session starting from a bare room ID re-issues the join so this
	// connection is mapped to the room server-side. Best-effort: a failure
	// (already joined, transient 5xx) degrades, it does not abort.
	if c.cfg.Seed == nil {
		c.join(ctx)
	}

	handle, err := c.cfg.Subscriber.Subscribe(ctx, strconv.FormatInt(c.cfg.RoomID, 10), c.handleRaw)
	if err != nil {
		log.Error().Err(err).Int64("room_id", c.cfg.RoomID).
			Msg("room subscription failed, continuing without live updates")
	} else {
		c.mu.Lock()
		c.handle = handle
		c.mu.Unlock()
	}

	go c.countdown.Run(ctx)
	return nil
}

// seed populates RoomState from the carried-over response, the room detail
// endpoint, or failing both, a roster holding only the local user.
func (c *Controller) seed(ctx context.Context) {
	detail := c.cfg.Seed
	if detail == nil {
		var err error
		detail, err = c.cfg.API.GetRoomDetail(ctx, c.cfg.RoomID)
		if err != nil {
			log.Warn().Err(err).Int64("room_id", c.cfg.RoomID).
				Msg("room detail fetch failed, seeding roster with local user only")
			detail = nil
		}
	}

	c.mu.Lock()
	if detail != nil {
		if len(detail.RoomMembers) > 0 {
			c.state.Roster = append([]events.Member(nil), detail.RoomMembers...)
		}
		c.state.Capacity = detail.MaxUserCount
		if detail.HostID != nil {
			v := *detail.HostID
			c.state.HostUserID = &v
		}
		if detail.HallID != 0 {
			v := detail.HallID
			c.hallID = &v
		}
	}
	if len(c.state.Roster) == 0 {
		c.state.Roster = []events.Member{{
			UserID:    c.cfg.UserID,
			Username:  c.cfg.UserName,
			EnteredAt: c.clock.Now().UnixMilli(),
		}}
	}
	c.mu.Unlock()

	releaseAt := c.cfg.ReleaseAt
	if releaseAt == nil && detail != nil && detail.StartTime != "" {
		if t, err := time.Parse(time.RFC3339, detail.StartTime); err == nil {
			releaseAt = &t
		} else {
			log.Warn().Str("start_time", detail.StartTime).Msg("unparseable room start time")
		}
	}
	if releaseAt != nil {
		c.mu.Lock()
		c.reserveDate = releaseAt.Format("2006-01-02")
		c.mu.Unlock()
		c.countdown.SetReleaseAt(*releaseAt)
	}
}

// join maps this connection onto the room. A join response can carry the
// match ID and a fresher roster than the detail snapshot.
func (c *Controller) join(ctx context.Context) {
	resp, err := c.cfg.API.JoinRoom(ctx, c.cfg.RoomID, tickget_api_client.JoinRoomRequest{
		UserID:   c.cfg.UserID,
		UserName: c.cfg.UserName,
	})
	if err != nil {
		log.Warn().Err(err).Int64("room_id", c.cfg.RoomID).Msg("room join failed, continuing")
		return
	}

	c.mu.Lock()
	if resp.MatchID != nil && c.state.MatchID == nil {
		v := *resp.MatchID
		c.state.MatchID = &v
	}
	if len(resp.RoomMembers) > 0 {
		c.state.Roster = append([]events.Member(nil), resp.RoomMembers...)
	}
	c.mu.Unlock()
	log.Info().Int64("room_id", c.cfg.RoomID).Msg("joined room")
}

// handleRaw is the stable subscription callback: decode at the boundary,
// then hand the canonical event to the dispatcher. Malformed and unknown
// messages are logged and dropped here so the dispatcher never sees them.
func (c *Controller) handleRaw(data []byte) {
	ev, err := events.Parse(data)
	if err != nil {
		if errors.Is(err, events.ErrUnknownType) {
			log.Info().Err(err).Msg("dropping unrecognized room event")
		} else {
			log.Warn().Err(err).Msg("dropping malformed room event")
		}
		return
	}
	c.HandleEvent(ev)
}

// HandleEvent applies one canonical event. State mutates under the lock;
// side effects (navigation, network calls) run strictly after the mutation
// is committed and the lock released, which is what guarantees the dequeue
// latch is visible to any teardown the navigation provokes.
func (c *Controller) HandleEvent(ev events.Event) {
	c.mu.Lock()
	effects := c.dispatchLocked(ev)
	c.mu.Unlock()
	for _, effect := range effects {
		effect()
	}
}

type effect func()

func (c *Controller) dispatchLocked(ev events.Event) []effect {
	switch ev.Type {
	case events.TypeRosterUpdate:
		c.replaceRosterLocked(ev.Roster)

	case events.TypeUserJoined:
		if ev.Roster != nil {
			c.replaceRosterLocked(ev.Roster)
			return nil
		}
		if ev.UserID == nil {
			log.Warn().Str("event", string(ev.Type)).Msg("join event without user ID, dropping")
			return nil
		}
		c.upsertMemberLocked(*ev.UserID, ev.Username, ev.Timestamp)

	case events.TypeUserLeft:
		if ev.Roster != nil {
			c.replaceRosterLocked(ev.Roster)
			return nil
		}
		if ev.UserID == nil {
			log.Warn().Str("event", string(ev.Type)).Msg("leave event without user ID, dropping")
			return nil
		}
		if *ev.UserID == c.cfg.UserID {
			return c.selfEvictedLocked()
		}
		c.removeMemberLocked(*ev.UserID)

	case events.TypeHostChanged:
		if ev.NewHostID == nil {
			log.Warn().Str("new_host_id", ev.RawHostID).
				Msg("host change with unparseable host ID, ignoring")
			return nil
		}
		v := *ev.NewHostID
		c.state.HostUserID = &v
		log.Info().Int64("host_user_id", v).Msg("room host changed")

	case events.TypeQueueStatusUpdate:
		entry, ok := ev.QueueStatusFor(c.cfg.UserID)
		if !ok {
			// Expected before the user enters the queue; not an error.
			log.Debug().Int64("user_id", c.cfg.UserID).Msg("queue status without local user")
			return nil
		}
		qs := QueueStatus{
			Ahead:  entry.Ahead,
			Behind: entry.Behind,
			Total:  entry.Total,
		}
		if entry.LastUpdated > 0 {
			qs.LastUpdatedAt = time.UnixMilli(entry.LastUpdated)
		}
		c.state.QueueStatus = &qs
		if c.state.QueueBaseline == 0 && qs.LiveTotal() > 0 {
			c.state.QueueBaseline = qs.LiveTotal()
		}
		if c.state.Phase == PhaseWaiting {
			c.state.Phase = PhaseQueueing
		}

	case events.TypeUserDequeued:
		return c.dequeuedLocked(ev)

	case events.TypeMatchEnded:
		return c.matchEndedLocked(ev)

	default:
		log.Info().Str("event_type", string(ev.Type)).Msg("unknown event type, ignoring")
	}
	return nil
}

func (c *Controller) replaceRosterLocked(roster []events.Member) {
	c.state.Roster = append([]events.Member(nil), roster...)
	log.Debug().Int("members", len(roster)).Msg("roster replaced wholesale")
}

// upsertMemberLocked keeps the roster keyed by user ID: a duplicate join
// refreshes the display name in place instead of appending.
func (c *Controller) upsertMemberLocked(userID int64, username string, at time.Time) {
	for i := range c.state.Roster {
		if c.state.Roster[i].UserID == userID {
			if username != "" {
				c.state.Roster[i].Username = username
			}
			return
		}
	}
	if username == "" {
		username = fmt.Sprintf("User%d", userID)
	}
	enteredAt := at
	if enteredAt.IsZero() {
		enteredAt = c.clock.Now()
	}
	c.state.Roster = append(c.state.Roster, events.Member{
		UserID:    userID,
		Username:  username,
		EnteredAt: enteredAt.UnixMilli(),
	})
	log.Debug().Int64("user_id", userID).Str("username", username).Msg("member joined")
}

func (c *Controller) removeMemberLocked(userID int64) {
	for i := range c.state.Roster {
		if c.state.Roster[i].UserID == userID {
			c.state.Roster = append(c.state.Roster[:i], c.state.Roster[i+1:]...)
			log.Debug().Int64("user_id", userID).Msg("member left")
			return
		}
	}
}

// dequeuedLocked handles USER_DEQUEUED. The latch makes replays no-ops; the
// match ID is first-write-wins; the navigation runs as a post-commit effect.
func (c *Controller) dequeuedLocked(ev events.Event) []effect {
	if ev.UserID == nil {
		log.Warn().Msg("dequeue event without user ID, dropping")
		return nil
	}
	if *ev.UserID != c.cfg.UserID {
		log.Debug().Int64("user_id", *ev.UserID).Msg("another user dequeued")
		return nil
	}
	if c.hasDequeued {
		log.Debug().Msg("duplicate dequeue for local user, ignoring")
		return nil
	}
	c.hasDequeued = true

	if ev.MatchID != nil {
		if c.state.MatchID == nil {
			v := *ev.MatchID
			c.state.MatchID = &v
		} else if *c.state.MatchID != *ev.MatchID {
			log.Warn().
				Int64("match_id", *c.state.MatchID).
				Int64("conflicting_match_id", *ev.MatchID).
				Msg("dequeue carried a conflicting match ID, keeping first")
		}
	}
	c.state.Phase = PhaseDequeued
	log.Info().Int64("user_id", c.cfg.UserID).Msg("local user dequeued")

	dest := c.bookingURLLocked(c.cfg.Paths.SeatSelect)
	return []effect{func() {
		c.cfg.Shell.Navigate(dest)
	}}
}

// matchEndedLocked handles MATCH_ENDED. The failure statistic is only sent
// when the gate had already opened for this user; a user who never had a
// chance to act did not fail.
func (c *Controller) matchEndedLocked(ev events.Event) []effect {
	if c.state.Phase == PhaseMatchEnded || c.state.Phase == PhaseExited {
		return nil
	}
	c.state.Phase = PhaseMatchEnded

	matchID := c.state.MatchID
	if ev.MatchID != nil {
		v := *ev.MatchID
		matchID = &v
	}
	_, gateOpened := c.countdown.GateOpened()
	dest := c.resultURLLocked()

	return []effect{func() {
		if gateOpened {
			ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
			if err := c.cfg.API.ReportMatchFailure(ctx, matchID, "MATCH_ENDED@room"); err != nil {
				log.Warn().Err(err).Msg("match failure report failed")
			}
			cancel()
		}
		c.cfg.Shell.Alert("The match has ended. Moving to the results screen.")
		c.cfg.Shell.Navigate(dest)
	}}
}

// ReserveClicked is the user acting on the unlocked reservation. It stops the
// reaction measurement, persists it for the downstream screens, opens the
// queue window in a secondary browsing context, and marks that context as the
// session owner.
func (c *Controller) ReserveClicked() (string, error) {
	reaction := c.metrics.ReserveClicked()
	c.cfg.Store.Set(KeyReactionSec, strconv.FormatFloat(reaction.Seconds, 'f', 2, 64))
	c.cfg.Store.Set(KeyStrayClicks, strconv.Itoa(reaction.StrayClicks))

	c.mu.Lock()
	dest := c.bookingURLLocked(c.cfg.Paths.Queue)
	if c.state.Phase == PhaseWaiting {
		c.state.Phase = PhaseQueueing
	}
	c.mu.Unlock()

	if err := c.cfg.Shell.OpenWindow(dest); err != nil {
		log.Warn().Err(err).Msg("could not open queue window")
		return dest, err
	}

	c.mu.Lock()
	c.guard.HasSpawnedSecondaryTab = true
	c.mu.Unlock()
	return dest, nil
}

// RecordStrayClick forwards a non-reserve click to the metrics recorder.
func (c *Controller) RecordStrayClick() {
	c.metrics.RecordStrayClick()
}

// Snapshot returns a copy of the room state for readers.
func (c *Controller) Snapshot() RoomState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// GuardSnapshot returns a copy of the local-only guard state.
func (c *Controller) GuardSnapshot() GuardState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.guard
}

// SecondsLeft exposes the countdown value.
func (c *Controller) SecondsLeft() int64 {
	return c.countdown.SecondsLeft()
}

// GateOpened reports the one-shot gate signal.
func (c *Controller) GateOpened() (time.Time, bool) {
	return c.countdown.GateOpened()
}

// Countdown exposes the engine for callers that drive ticks themselves.
func (c *Controller) Countdown() *countdown.Engine {
	return c.countdown
}

// Close is the unmount-time cleanup. The unsubscribe is skipped when the
// session latched into DEQUEUED during this lifetime or moved to a secondary
// tab: the destination view still needs the subscription during its own
// mount window.
func (c *Controller) Close() {
	c.mu.Lock()
	handle := c.handle
	c.handle = nil
	keepAlive := c.hasDequeued || c.guard.HasSpawnedSecondaryTab
	c.mu.Unlock()

	if handle == nil {
		return
	}
	if keepAlive {
		log.Debug().Int64("room_id", c.cfg.RoomID).
			Msg("skipping unsubscribe, session continuing elsewhere")
		return
	}
	c.cfg.Subscriber.Unsubscribe(handle)
}
