package session

import (
	"time"

	"github.com/tickget/roomsession/go/internal/room/events"
)

// Phase is the session lifecycle position for the local user.
type Phase string

const (
	PhaseWaiting    Phase = "WAITING"
	PhaseQueueing   Phase = "QUEUEING"
	PhaseDequeued   Phase = "DEQUEUED"
	PhaseMatchEnded Phase = "MATCH_ENDED"
	PhaseExited     Phase = "EXITED"
)

// QueueStatus is the local user's position in the ticketing queue, replaced
// wholesale on each QUEUE_STATUS_UPDATE.
type QueueStatus struct {
	Ahead         int
	Behind        int
	Total         int
	LastUpdatedAt time.Time
}

// Rank is the user's 1-based position.
func (q QueueStatus) Rank() int { return q.Ahead + 1 }

// LiveTotal is the queue population derived from ahead/behind, which stays
// accurate when the server's own total lags.
func (q QueueStatus) LiveTotal() int { return q.Ahead + 1 + q.Behind }

// RoomState is the authoritative client-side snapshot for one room. It is
// owned exclusively by the Controller; everything else reads copies.
type RoomState struct {
	RoomID     int64
	HostUserID *int64
	Roster     []events.Member
	Capacity   int

	// QueueStatus is nil until the user has entered the queue.
	QueueStatus *QueueStatus

	// QueueBaseline is the first observed queue total, latched once and used
	// as the fixed denominator for progress display.
	QueueBaseline int

	// MatchID is assigned at most once, on the first dequeue event that
	// carries one. A later conflicting value is a protocol anomaly and is
	// ignored.
	MatchID *int64

	Phase Phase
}

// DisplayRoster returns the roster in presentation order: host first, then
// insertion order. Storage order is untouched.
func (s *RoomState) DisplayRoster() []events.Member {
	if s.HostUserID == nil {
		out := make([]events.Member, len(s.Roster))
		copy(out, s.Roster)
		return out
	}
	out := make([]events.Member, 0, len(s.Roster))
	for _, m := range s.Roster {
		if m.UserID == *s.HostUserID {
			out = append(out, m)
		}
	}
	for _, m := range s.Roster {
		if m.UserID != *s.HostUserID {
			out = append(out, m)
		}
	}
	return out
}

// clone deep-copies the state for handing out snapshots.
func (s *RoomState) clone() RoomState {
	out := *s
	out.Roster = make([]events.Member, len(s.Roster))
	copy(out.Roster, s.Roster)
	if s.HostUserID != nil {
		v := *s.HostUserID
		out.HostUserID = &v
	}
	if s.MatchID != nil {
		v := *s.MatchID
		out.MatchID = &v
	}
	if s.QueueStatus != nil {
		v := *s.QueueStatus
		out.QueueStatus = &v
	}
	return out
}

// ExitReason records which path ended (or is ending) the session locally.
type ExitReason string

const (
	ExitReasonNone           ExitReason = "none"
	ExitReasonExplicitButton ExitReason = "explicit-button"
	ExitReasonBackNavigation ExitReason = "back-navigation"
)

// GuardState is local-only session bookkeeping, never transmitted.
type GuardState struct {
	// ReloadGraceDeadline: self-eviction events arriving before this instant
	// are discarded. Set only when the page load was a reload, to keep a
	// stale eviction from the torn-down previous connection from reading as
	// "you were kicked" on the new one.
	ReloadGraceDeadline time.Time

	// HasSpawnedSecondaryTab: once the reserve click opens the queue window,
	// the live session belongs to that window and self-evictions here are
	// informational only.
	HasSpawnedSecondaryTab bool

	ExitReason ExitReason
}
