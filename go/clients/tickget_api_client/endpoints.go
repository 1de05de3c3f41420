package tickget_api_client

const (
	AuthorizationHeader = "Authorization"

	RoomsEndpoint      = "/rooms"
	StatsSeatsEndpoint = "/stats/seats/failed"
	QueueEndpoint      = "/tickets/%d/queue"
)
