package contracts

// Exchanges
const (
	ExchangeRideTopic      = "ride_topic"
	ExchangeLocationFanout = "location_fanout"
)

// Queues
const (
	QueueRideStatus          = "ride_status"
	QueueLocationUpdatesRide = "location_updates_ride"
)

// Routing patterns
const (
	RouteRideStatusPrefix = "ride.status." // {status}
	RouteRideStatusAll    = "ride.status.*"
)

const ProducerSimulator = "simulator-service"
