package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Type is the canonical event discriminator after boundary normalization.
// The wire carries naming variants for the same semantic event
// (USER_ENTERED for USER_JOINED, USER_EXITED for USER_LEFT); those collapse
// to one Type here so the dispatcher never branches on protocol vintage.
type Type string

const (
	TypeUserJoined        Type = "USER_JOINED"
	TypeUserLeft          Type = "USER_LEFT"
	TypeHostChanged       Type = "HOST_CHANGED"
	TypeQueueStatusUpdate Type = "QUEUE_STATUS_UPDATE"
	TypeUserDequeued      Type = "USER_DEQUEUED"
	TypeMatchEnded        Type = "MATCH_ENDED"

	// TypeRosterUpdate covers the bulk forms (ROOM_UPDATE, MEMBERS_UPDATE,
	// or a bare roomMembers array) that replace the roster wholesale.
	TypeRosterUpdate Type = "ROSTER_UPDATE"
)

// ErrUnknownType marks an event tag this client does not recognize. The
// server may introduce new types at any time; callers log and drop.
var ErrUnknownType = errors.New("unknown event type")

// Event is the canonical, fully-decoded inbound event. Which fields are
// populated depends on Type; pointers distinguish "absent" from zero.
type Event struct {
	Type      Type
	RoomID    int64
	Timestamp time.Time
	Message   string

	// Membership events.
	UserID           *int64
	Username         string
	TotalUsersInRoom int

	// Non-nil means "replace the roster wholesale".
	Roster []Member

	// HOST_CHANGED. NewHostID is nil when the wire value did not parse to a
	// finite integer; RawHostID keeps the original text for the warning log.
	NewHostID *int64
	RawHostID string

	// USER_DEQUEUED.
	MatchID *int64

	// QUEUE_STATUS_UPDATE, keyed by stringified user ID.
	QueueStatuses map[string]QueueEntry
}

// QueueStatusFor looks up the entry for a user ID. Keys are strings on the
// wire; the lookup stringifies the ID so a numeric-keyed serialization from
// an older server lands on the same entry.
func (e *Event) QueueStatusFor(userID int64) (QueueEntry, bool) {
	q, ok := e.QueueStatuses[fmt.Sprintf("%d", userID)]
	return q, ok
}

type joinLeftPayload struct {
	UserID           *FlexID `json:"userId"`
	Username         string  `json:"username"`
	UserNameAlt      string  `json:"userName"`
	TotalUsersInRoom int     `json:"totalUsersInRoom"`
}

type hostChangedPayload struct {
	NewHostID json.RawMessage `json:"newHostId"`
}

type dequeuedPayload struct {
	UserID    *FlexID `json:"userId"`
	MatchID   *FlexID `json:"matchId"`
	Timestamp int64   `json:"timestamp"`
}

type queueStatusPayload struct {
	QueueStatuses map[string]QueueEntry `json:"queueStatuses"`
}

type matchEndedPayload struct {
	MatchID *FlexID `json:"matchId"`
}

// Parse decodes a raw topic message into a canonical Event. It returns
// ErrUnknownType (wrapped) for tags this client does not handle, and a plain
// error for JSON that does not decode at all. Missing subject identifiers are
// not an error here; the dispatcher decides whether an event without one is
// usable.
func Parse(data []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Event{}, fmt.Errorf("decode envelope: %w", err)
	}
	return Normalize(&env)
}

// Normalize maps a decoded envelope onto the canonical Event shape.
func Normalize(env *Envelope) (Event, error) {
	ev := Event{
		RoomID:  env.RoomID,
		Message: env.Message,
	}
	if env.Timestamp > 0 {
		ev.Timestamp = time.UnixMilli(env.Timestamp)
	}

	tag := env.Tag()
	switch tag {
	case "USER_JOINED", "USER_ENTERED":
		ev.Type = TypeUserJoined
		normalizeMembership(&ev, env)

	case "USER_LEFT", "USER_EXITED":
		ev.Type = TypeUserLeft
		normalizeMembership(&ev, env)

	case "HOST_CHANGED":
		ev.Type = TypeHostChanged
		var p hostChangedPayload
		if len(env.Payload) > 0 {
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				return Event{}, fmt.Errorf("decode HOST_CHANGED payload: %w", err)
			}
		}
		ev.RawHostID = string(p.NewHostID)
		// A JSON null is a no-op for FlexID, so it must be screened out here
		// or a null host ID would read as user 0.
		raw := bytes.TrimSpace(p.NewHostID)
		if len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
			var id FlexID
			if id.UnmarshalJSON(raw) == nil {
				n := int64(id)
				ev.NewHostID = &n
			}
		}

	case "QUEUE_STATUS_UPDATE":
		ev.Type = TypeQueueStatusUpdate
		var p queueStatusPayload
		if len(env.Payload) > 0 {
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				return Event{}, fmt.Errorf("decode QUEUE_STATUS_UPDATE payload: %w", err)
			}
		}
		ev.QueueStatuses = p.QueueStatuses

	case "USER_DEQUEUED":
		ev.Type = TypeUserDequeued
		var p dequeuedPayload
		if len(env.Payload) > 0 {
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				return Event{}, fmt.Errorf("decode USER_DEQUEUED payload: %w", err)
			}
		}
		if p.UserID != nil {
			n := int64(*p.UserID)
			ev.UserID = &n
		}
		if p.MatchID != nil {
			n := int64(*p.MatchID)
			ev.MatchID = &n
		}
		if ev.Timestamp.IsZero() && p.Timestamp > 0 {
			ev.Timestamp = time.UnixMilli(p.Timestamp)
		}

	case "MATCH_ENDED":
		ev.Type = TypeMatchEnded
		var p matchEndedPayload
		if len(env.Payload) > 0 {
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				return Event{}, fmt.Errorf("decode MATCH_ENDED payload: %w", err)
			}
		}
		if p.MatchID != nil {
			n := int64(*p.MatchID)
			ev.MatchID = &n
		}

	case "ROOM_UPDATE", "MEMBERS_UPDATE":
		ev.Type = TypeRosterUpdate
		ev.Roster = env.RoomMembers

	case "":
		// Legacy servers sometimes push a bare roster with no tag at all.
		if env.RoomMembers != nil {
			ev.Type = TypeRosterUpdate
			ev.Roster = env.RoomMembers
			return ev, nil
		}
		return Event{}, fmt.Errorf("%w: (empty tag)", ErrUnknownType)

	default:
		return Event{}, fmt.Errorf("%w: %s", ErrUnknownType, tag)
	}

	return ev, nil
}

// normalizeMembership fills the subject fields for join/leave events from
// whichever generation of the envelope carried them.
func normalizeMembership(ev *Event, env *Envelope) {
	var p joinLeftPayload
	if len(env.Payload) > 0 {
		// Best-effort; a malformed payload leaves the legacy flat fields.
		_ = json.Unmarshal(env.Payload, &p)
	}

	id := p.UserID
	if id == nil {
		id = env.UserID
	}
	if id != nil {
		n := int64(*id)
		ev.UserID = &n
	}

	for _, name := range []string{p.Username, p.UserNameAlt, env.Username, env.UserNameAlt} {
		if name != "" {
			ev.Username = name
			break
		}
	}
	ev.TotalUsersInRoom = p.TotalUsersInRoom

	// The bulk form can ride on the same tags.
	if ev.UserID == nil && env.RoomMembers != nil {
		ev.Roster = env.RoomMembers
	}
}
