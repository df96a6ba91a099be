package rabbitmq

import (
	"fmt"

	"car-fleet/internal/general/contracts"

	amqp "github.com/rabbitmq/amqp091-go"
)

type binding struct {
	queue      string
	exchange   string
	routingKey string
}

// topology is the full set of durable bindings shared by car-service and car-agent.
var topology = []binding{
	{contracts.QueueCarAcknowledgements, contracts.ExchangeCarTopic, contracts.RouteCarAckPrefix + "*"},
	{contracts.QueueCarStateUpdates, contracts.ExchangeCarTopic, contracts.RouteCarStatePrefix + "*"},
	{contracts.QueueCarCommands, contracts.ExchangeCarTopic, contracts.RouteCarCommandPrefix + "*.*"},
	{contracts.QueueRideInitialisations, contracts.ExchangeRideTopic, contracts.RouteRideInitialisation},
}

func declareTopology(ch *amqp.Channel) error {
	// 1. Exchanges
	for _, name := range []string{contracts.ExchangeCarTopic, contracts.ExchangeRideTopic} {
		if err := ch.ExchangeDeclare(name, "topic", true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", name, err)
		}
	}

	// 2. Queues and bindings
	declared := make(map[string]bool, len(topology))
	for _, b := range topology {
		if !declared[b.queue] {
			if _, err := ch.QueueDeclare(b.queue, true, false, false, false, nil); err != nil {
				return fmt.Errorf("declare queue %s: %w", b.queue, err)
			}
			declared[b.queue] = true
		}
		if err := ch.QueueBind(b.queue, b.routingKey, b.exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}

	return nil
}
