package ports

import (
	"context"
	"time"

	"car-fleet/internal/general/contracts"
	"car-fleet/internal/general/messaging"
	"car-fleet/internal/general/rabbitmq"
)

// CommandGateway sends commands to cars and awaits their acknowledgements.
type CommandGateway interface {
	Send(ctx context.Context, dest messaging.Destination, correlationID string, payload any) error
	SendAndAwaitReply(ctx context.Context, dest messaging.Destination, key string, payload any, timeout time.Duration) (contracts.CarAcknowledgement, error)
	Deliver(ctx context.Context, ack contracts.CarAcknowledgement) bool
}

// MessageConsumer keeps a queue consumer attached until ctx is done.
type MessageConsumer interface {
	ConsumeForever(ctx context.Context, queue, consumerTag string, prefetch int, handler rabbitmq.Handler) error
}
