package tickget_api_client

import (
	"context"
	"fmt"
)

// MatchFailureReport is the best-effort statistics payload recorded when a
// user who had a live shot at the gate ends the session without a booking.
type MatchFailureReport struct {
	MatchID *int64 `json:"matchId,omitempty"`
	Trigger string `json:"trigger"`
}

// ReportMatchFailure sends the failure statistic. Callers treat any error as
// log-and-continue; this call must never block navigation or cleanup.
func (c *TickgetClient) ReportMatchFailure(ctx context.Context, matchID *int64, trigger string) error {
	report := MatchFailureReport{MatchID: matchID, Trigger: trigger}
	if err := c.Post(ctx, StatsSeatsEndpoint, report, nil); err != nil {
		return fmt.Errorf("report match failure: %w", err)
	}
	return nil
}
