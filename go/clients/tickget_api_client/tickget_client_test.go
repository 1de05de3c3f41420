package tickget_api_client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetRoomDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/rooms/42", r.URL.Path)
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"roomId": 42,
			"roomName": "front row rush",
			"hostId": 7,
			"hallId": 3,
			"startTime": "2026-03-01T20:00:00Z",
			"maxUserCount": 6,
			"roomMembers": [
				{"userId": 7, "username": "host"},
				{"userId": 100, "userName": "me"}
			]
		}`))
	}))
	defer srv.Close()

	c := NewTickgetClient(srv.URL, "token-1")
	detail, err := c.GetRoomDetail(context.Background(), 42)
	require.NoError(t, err)

	assert.Equal(t, int64(42), detail.RoomID)
	require.NotNil(t, detail.HostID)
	assert.Equal(t, int64(7), *detail.HostID)
	require.Len(t, detail.RoomMembers, 2)
	assert.Equal(t, "me", detail.RoomMembers[1].Username, "userName casing must decode too")
}

func TestJoinRoom(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/rooms/42/join", r.URL.Path)

		var req JoinRoomRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, int64(100), req.UserID)
		assert.Equal(t, "me", req.UserName)

		_, _ = w.Write([]byte(`{"roomId": 42, "matchId": 301, "roomMembers": [{"userId": 100}]}`))
	}))
	defer srv.Close()

	c := NewTickgetClient(srv.URL, "")
	resp, err := c.JoinRoom(context.Background(), 42, JoinRoomRequest{UserID: 100, UserName: "me"})
	require.NoError(t, err)
	require.NotNil(t, resp.MatchID)
	assert.Equal(t, int64(301), *resp.MatchID)
}

func TestExitRoom(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/rooms/42/exit", r.URL.Path)

		var req ExitRoomRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, int64(100), req.UserID)

		_, _ = w.Write([]byte(`{"leftUserCount": 3, "roomStatus": "OPEN", "unsubscriptionTopic": "room.events.42"}`))
	}))
	defer srv.Close()

	c := NewTickgetClient(srv.URL, "")
	resp, err := c.ExitRoom(context.Background(), 42, ExitRoomRequest{UserID: 100, UserName: "me"})
	require.NoError(t, err)
	assert.Equal(t, 3, resp.LeftUserCount)
	assert.Equal(t, "room.events.42", resp.UnsubscriptionTopic)
}

func TestReportMatchFailure(t *testing.T) {
	var got MatchFailureReport
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/stats/seats/failed", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewTickgetClient(srv.URL, "")
	matchID := int64(301)
	require.NoError(t, c.ReportMatchFailure(context.Background(), &matchID, "MATCH_ENDED@room"))
	require.NotNil(t, got.MatchID)
	assert.Equal(t, int64(301), *got.MatchID)
	assert.Equal(t, "MATCH_ENDED@room", got.Trigger)
}

func TestEnqueue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tickets/301/queue", r.URL.Path)
		_, _ = w.Write([]byte(`{"positionAhead": 4, "positionBehind": 9}`))
	}))
	defer srv.Close()

	c := NewTickgetClient(srv.URL, "")
	resp, err := c.Enqueue(context.Background(), 301, EnqueueRequest{ClickMiss: 2, Duration: 1.23})
	require.NoError(t, err)
	assert.Equal(t, 4, resp.PositionAhead)
	assert.Equal(t, 9, resp.PositionBehind)
}

func TestErrorStatusSurfacesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "room is full"}`, http.StatusConflict)
	}))
	defer srv.Close()

	c := NewTickgetClient(srv.URL, "")
	_, err := c.JoinRoom(context.Background(), 42, JoinRoomRequest{UserID: 100})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "409")
	assert.Contains(t, err.Error(), "room is full")
}
