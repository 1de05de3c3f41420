package tickget_api_client

import (
	"context"
	"fmt"
)

type EnqueueRequest struct {
	ClickMiss int     `json:"clickMiss"`
	Duration  float64 `json:"duration"`
}

type EnqueueResponse struct {
	PositionAhead  int `json:"positionAhead"`
	PositionBehind int `json:"positionBehind"`
}

// Enqueue registers the user in the ticketing queue for a match, carrying the
// reaction metrics measured at the gate. POST /tickets/{matchId}/queue
func (c *TickgetClient) Enqueue(ctx context.Context, matchID int64, req EnqueueRequest) (*EnqueueResponse, error) {
	var out EnqueueResponse
	endpoint := fmt.Sprintf(QueueEndpoint, matchID)
	if err := c.Post(ctx, endpoint, req, &out); err != nil {
		return nil, fmt.Errorf("enqueue: %w", err)
	}
	return &out, nil
}
