package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCurrentJoin(t *testing.T) {
	raw := []byte(`{
		"eventType": "USER_JOINED",
		"roomId": 12,
		"timestamp": 1700000000000,
		"payload": {"userId": 7, "username": "alice", "totalUsersInRoom": 3}
	}`)

	ev, err := Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, TypeUserJoined, ev.Type)
	assert.Equal(t, int64(12), ev.RoomID)
	require.NotNil(t, ev.UserID)
	assert.Equal(t, int64(7), *ev.UserID)
	assert.Equal(t, "alice", ev.Username)
	assert.Equal(t, 3, ev.TotalUsersInRoom)
	assert.Equal(t, int64(1700000000000), ev.Timestamp.UnixMilli())
}

func TestParseLegacyEnterAliases(t *testing.T) {
	// Legacy generation: "type" discriminator, USER_ENTERED alias, flat
	// subject fields, string-typed user ID, "userName" casing.
	raw := []byte(`{
		"type": "USER_ENTERED",
		"roomId": 12,
		"userId": "7",
		"userName": "alice"
	}`)

	ev, err := Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, TypeUserJoined, ev.Type)
	require.NotNil(t, ev.UserID)
	assert.Equal(t, int64(7), *ev.UserID)
	assert.Equal(t, "alice", ev.Username)
}

func TestParseLegacyExitAlias(t *testing.T) {
	raw := []byte(`{"type": "USER_EXITED", "roomId": 12, "userId": 9, "username": "bob"}`)

	ev, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, TypeUserLeft, ev.Type)
	require.NotNil(t, ev.UserID)
	assert.Equal(t, int64(9), *ev.UserID)
}

func TestParsePrefersEventTypeOverLegacyType(t *testing.T) {
	raw := []byte(`{
		"eventType": "USER_LEFT",
		"type": "USER_ENTERED",
		"payload": {"userId": 4}
	}`)

	ev, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, TypeUserLeft, ev.Type)
}

func TestParseJoinWithoutUserIDKeepsRosterRideAlong(t *testing.T) {
	raw := []byte(`{
		"type": "USER_JOINED",
		"roomMembers": [
			{"userId": 1, "username": "alice"},
			{"userId": 2, "userName": "bob"}
		]
	}`)

	ev, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, TypeUserJoined, ev.Type)
	assert.Nil(t, ev.UserID)
	require.Len(t, ev.Roster, 2)
	assert.Equal(t, "bob", ev.Roster[1].Username)
}

func TestParseHostChanged(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantID  *int64
		wantRaw string
	}{
		{"numeric", `{"newHostId": 42}`, int64Ptr(42), "42"},
		{"numeric string", `{"newHostId": "42"}`, int64Ptr(42), `"42"`},
		{"garbage", `{"newHostId": "abc"}`, nil, `"abc"`},
		{"null", `{"newHostId": null}`, nil, "null"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := []byte(`{"eventType": "HOST_CHANGED", "roomId": 1, "payload": ` + tt.payload + `}`)
			ev, err := Parse(raw)
			require.NoError(t, err)
			assert.Equal(t, TypeHostChanged, ev.Type)
			assert.Equal(t, tt.wantRaw, ev.RawHostID)
			if tt.wantID == nil {
				assert.Nil(t, ev.NewHostID)
			} else {
				require.NotNil(t, ev.NewHostID)
				assert.Equal(t, *tt.wantID, *ev.NewHostID)
			}
		})
	}
}

func TestParseQueueStatusUpdate(t *testing.T) {
	raw := []byte(`{
		"eventType": "QUEUE_STATUS_UPDATE",
		"roomId": 5,
		"payload": {"queueStatuses": {
			"7": {"ahead": 2, "behind": 4, "total": 6, "lastUpdated": 1700000000000},
			"9": {"ahead": 0, "behind": 0, "total": 1}
		}}
	}`)

	ev, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, TypeQueueStatusUpdate, ev.Type)

	entry, ok := ev.QueueStatusFor(7)
	require.True(t, ok)
	assert.Equal(t, 3, entry.Rank())
	assert.Equal(t, 7, entry.LiveTotal())

	_, ok = ev.QueueStatusFor(8)
	assert.False(t, ok)
}

func TestParseDequeued(t *testing.T) {
	raw := []byte(`{
		"eventType": "USER_DEQUEUED",
		"roomId": 5,
		"payload": {"userId": "7", "matchId": 301}
	}`)

	ev, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, TypeUserDequeued, ev.Type)
	require.NotNil(t, ev.UserID)
	assert.Equal(t, int64(7), *ev.UserID)
	require.NotNil(t, ev.MatchID)
	assert.Equal(t, int64(301), *ev.MatchID)
}

func TestParseBulkRosterForms(t *testing.T) {
	for _, tag := range []string{"ROOM_UPDATE", "MEMBERS_UPDATE"} {
		raw := []byte(`{"eventType": "` + tag + `", "roomMembers": [{"userId": 1}]}`)
		ev, err := Parse(raw)
		require.NoError(t, err, tag)
		assert.Equal(t, TypeRosterUpdate, ev.Type, tag)
		assert.Len(t, ev.Roster, 1, tag)
	}

	// Bare roster with no tag at all.
	raw := []byte(`{"roomMembers": [{"userId": 1}, {"userId": 2}]}`)
	ev, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, TypeRosterUpdate, ev.Type)
	assert.Len(t, ev.Roster, 2)
}

func TestParseUnknownType(t *testing.T) {
	_, err := Parse([]byte(`{"eventType": "SOMETHING_NEW", "roomId": 1}`))
	require.ErrorIs(t, err, ErrUnknownType)

	_, err = Parse([]byte(`{"roomId": 1}`))
	require.ErrorIs(t, err, ErrUnknownType)
}

func TestParseMalformed(t *testing.T) {
	_, err := Parse([]byte(`{not json`))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnknownType)
}

func TestFlexIDRejectsNonNumericString(t *testing.T) {
	var f FlexID
	require.Error(t, f.UnmarshalJSON([]byte(`"abc"`)))
	require.NoError(t, f.UnmarshalJSON([]byte(`"123"`)))
	assert.Equal(t, FlexID(123), f)
	require.NoError(t, f.UnmarshalJSON([]byte(`null`)))
}

func int64Ptr(v int64) *int64 { return &v }
