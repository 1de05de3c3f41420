package events

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Envelope is the wire shape of a room event as published on the room topic.
// The server has shipped two generations of this format: the current one keys
// the discriminator as "eventType" and nests type-specific fields under
// "payload"; the legacy one uses "type" and flattens the subject fields onto
// the envelope itself, sometimes with a top-level "roomMembers" array carrying
// a full roster. Both must parse.
type Envelope struct {
	EventType  string          `json:"eventType"`
	LegacyType string          `json:"type"`
	RoomID     int64           `json:"roomId"`
	Timestamp  int64           `json:"timestamp"` // epoch millis
	Message    string          `json:"message"`
	Payload    json.RawMessage `json:"payload"`

	// Legacy flat fields and bulk roster form.
	RoomMembers []Member  `json:"roomMembers"`
	UserID      *FlexID   `json:"userId"`
	Username    string    `json:"username"`
	UserNameAlt string    `json:"userName"`
}

// Tag returns the discriminator, preferring the current field name over the
// legacy alias.
func (e *Envelope) Tag() string {
	if e.EventType != "" {
		return e.EventType
	}
	return e.LegacyType
}

// Member is one roster entry. The display-name key arrives as either
// "username" or "userName" depending on server version.
type Member struct {
	UserID    int64  `json:"userId"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	EnteredAt int64  `json:"enteredAt,omitempty"` // epoch millis
}

func (m *Member) UnmarshalJSON(data []byte) error {
	var aux struct {
		UserID      FlexID `json:"userId"`
		Username    string `json:"username"`
		UserNameAlt string `json:"userName"`
		AvatarURL   string `json:"avatarUrl"`
		EnteredAt   int64  `json:"enteredAt"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	m.UserID = int64(aux.UserID)
	m.Username = aux.Username
	if m.Username == "" {
		m.Username = aux.UserNameAlt
	}
	m.AvatarURL = aux.AvatarURL
	m.EnteredAt = aux.EnteredAt
	return nil
}

// FlexID is a numeric identifier that some server versions serialize as a
// JSON number and others as a numeric string ("42"). Anything that does not
// parse to an integer is a decode error.
type FlexID int64

func (f *FlexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("parse id %q: %w", s, err)
		}
		*f = FlexID(n)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexID(n)
	return nil
}

// QueueEntry is one user's position in the ticketing queue as pushed by the
// server. LastUpdated is epoch millis.
type QueueEntry struct {
	Ahead       int   `json:"ahead"`
	Behind      int   `json:"behind"`
	Total       int   `json:"total"`
	LastUpdated int64 `json:"lastUpdated"`
}

// Rank is the user's 1-based position in the queue.
func (q QueueEntry) Rank() int { return q.Ahead + 1 }

// LiveTotal is the current queue population derived from the entry itself.
// The server's "total" field has historically lagged, so the client derives
// it from ahead/behind instead.
func (q QueueEntry) LiveTotal() int { return q.Ahead + 1 + q.Behind }
