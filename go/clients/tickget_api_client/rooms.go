package tickget_api_client

import (
	"context"
	"fmt"

	"github.com/tickget/roomsession/go/internal/room/events"
)

// RoomDetail is the GET /rooms/{id} snapshot used to seed a session that
// starts from a bare room identifier.
type RoomDetail struct {
	RoomID         int64           `json:"roomId"`
	RoomName       string          `json:"roomName"`
	HostID         *int64          `json:"hostId"`
	HallID         int64           `json:"hallId"`
	HallName       string          `json:"hallName"`
	HallSize       string          `json:"hallSize"`
	Difficulty     string          `json:"difficulty"`
	StartTime      string          `json:"startTime"` // RFC 3339
	MaxUserCount   int             `json:"maxUserCount"`
	TotalSeat      *int            `json:"totalSeat"`
	BotCount       int             `json:"botCount"`
	ThumbnailType  string          `json:"thumbnailType"`
	ThumbnailValue string          `json:"thumbnailValue"`
	RoomMembers    []events.Member `json:"roomMembers"`
}

type JoinRoomRequest struct {
	UserID   int64  `json:"userId"`
	UserName string `json:"userName"`
}

type JoinRoomResponse struct {
	RoomID      int64           `json:"roomId"`
	MatchID     *int64          `json:"matchId"`
	RoomMembers []events.Member `json:"roomMembers"`
}

type ExitRoomRequest struct {
	UserID   int64  `json:"userId"`
	UserName string `json:"userName"`
}

type ExitRoomResponse struct {
	LeftUserCount       int    `json:"leftUserCount"`
	RoomStatus          string `json:"roomStatus"`
	UnsubscriptionTopic string `json:"unsubscriptionTopic"`
}

// GetRoomDetail fetches the room snapshot. GET /rooms/{roomId}
func (c *TickgetClient) GetRoomDetail(ctx context.Context, roomID int64) (*RoomDetail, error) {
	var out RoomDetail
	endpoint := fmt.Sprintf("%s/%d", RoomsEndpoint, roomID)
	if err := c.Get(ctx, endpoint, &out); err != nil {
		return nil, fmt.Errorf("get room detail: %w", err)
	}
	return &out, nil
}

// JoinRoom maps the caller's session onto the room. POST /rooms/{roomId}/join
func (c *TickgetClient) JoinRoom(ctx context.Context, roomID int64, req JoinRoomRequest) (*JoinRoomResponse, error) {
	var out JoinRoomResponse
	endpoint := fmt.Sprintf("%s/%d/join", RoomsEndpoint, roomID)
	if err := c.Post(ctx, endpoint, req, &out); err != nil {
		return nil, fmt.Errorf("join room: %w", err)
	}
	return &out, nil
}

// ExitRoom notifies the server of departure. DELETE /rooms/{roomId}/exit
func (c *TickgetClient) ExitRoom(ctx context.Context, roomID int64, req ExitRoomRequest) (*ExitRoomResponse, error) {
	var out ExitRoomResponse
	endpoint := fmt.Sprintf("%s/%d/exit", RoomsEndpoint, roomID)
	if err := c.Delete(ctx, endpoint, req, &out); err != nil {
		return nil, fmt.Errorf("exit room: %w", err)
	}
	return &out, nil
}
