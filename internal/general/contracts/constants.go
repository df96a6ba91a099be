package contracts

import "strings"

// Exchanges
const (
	ExchangeCarTopic  = "car_topic"
	ExchangeRideTopic = "ride_topic"
)

// Queues
const (
	QueueCarAcknowledgements = "car_acknowledgements"
	QueueCarStateUpdates     = "car_state_updates"
	QueueCarCommands         = "car_commands"
	QueueRideInitialisations = "ride_initialisations"
)

// Routing patterns
const (
	RouteCarCommandPrefix   = "car.command." // {car_id}.{ride|lock}
	RouteCarAckPrefix       = "car.ack."     // {car_id}
	RouteCarStatePrefix     = "car.state."   // {car_id}
	RouteRideInitialisation = "ride.initialisation"
)

// Command kinds, the last segment of a command routing key.
const (
	CommandRide = "ride"
	CommandLock = "lock"
)

// Producers
const (
	ProducerCarService = "car-service"
	ProducerCarAgent   = "car-agent"
)

// CommandRoute is the routing key a car listens on for one command kind.
func CommandRoute(carID, kind string) string {
	return RouteCarCommandPrefix + carID + "." + kind
}

// AckRoute is the routing key a car replies on.
func AckRoute(carID string) string {
	return RouteCarAckPrefix + carID
}

// StateRoute is the routing key a car reports telemetry on.
func StateRoute(carID string) string {
	return RouteCarStatePrefix + carID
}

// CarIDFromRoute extracts the car id from a car.{kind}.{car_id}[.…] routing key.
func CarIDFromRoute(routingKey string) (string, bool) {
	parts := strings.Split(routingKey, ".")
	if len(parts) < 3 || parts[0] != "car" || parts[2] == "" {
		return "", false
	}
	return parts[2], true
}

// CommandKindFromRoute returns "ride" or "lock" for a command routing key.
func CommandKindFromRoute(routingKey string) (string, bool) {
	if !strings.HasPrefix(routingKey, RouteCarCommandPrefix) {
		return "", false
	}
	parts := strings.Split(routingKey, ".")
	if len(parts) != 4 {
		return "", false
	}
	switch parts[3] {
	case CommandRide, CommandLock:
		return parts[3], true
	default:
		return "", false
	}
}
