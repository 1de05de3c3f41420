package tickget_api_client

import (
	"github.com/tickget/roomsession/go/clients"
)

// TickgetClient talks to the room, ticketing, and stats services behind the
// Tickget API gateway.
type TickgetClient struct {
	*clients.BaseClient
}

func NewTickgetClient(baseURL string, authToken string) *TickgetClient {
	client := &TickgetClient{
		BaseClient: clients.NewBaseClient(baseURL),
	}

	if authToken != "" {
		client.SetHeader(AuthorizationHeader, "Bearer "+authToken)
	}
	client.SetHeader("Accept", "application/json")

	return client
}
