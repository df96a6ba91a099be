package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"car-fleet/internal/general/contracts"
	"car-fleet/internal/general/logger"
	"car-fleet/internal/general/metrics"
	"car-fleet/internal/general/rabbitmq"
)

// ErrReplyTimeout is returned when no acknowledgement arrives within the timeout.
var ErrReplyTimeout = errors.New("messaging: no reply before timeout")

// Publisher is the outbound side of the broker.
type Publisher interface {
	Publish(ctx context.Context, msg rabbitmq.Message) error
}

// Destination addresses one command. Kind labels metrics (ride, lock).
type Destination struct {
	Exchange   string
	RoutingKey string
	ReplyTo    string
	Kind       string
}

// CarCommand returns the destination of a command for carID, replying on car.ack.{carID}.
func CarCommand(carID, kind string) Destination {
	return Destination{
		Exchange:   contracts.ExchangeCarTopic,
		RoutingKey: contracts.CommandRoute(carID, kind),
		ReplyTo:    contracts.AckRoute(carID),
		Kind:       kind,
	}
}

// Gateway sends commands and correlates acknowledgements back to waiting callers.
type Gateway struct {
	publisher Publisher
	waits     *Registry
	logger    *logger.Logger
}

func NewGateway(publisher Publisher, waits *Registry, logger *logger.Logger) *Gateway {
	return &Gateway{publisher: publisher, waits: waits, logger: logger}
}

// Send publishes payload without waiting for a reply.
func (g *Gateway) Send(ctx context.Context, dest Destination, correlationID string, payload any) error {
	return g.publisher.Publish(ctx, rabbitmq.Message{
		Exchange:      dest.Exchange,
		RoutingKey:    dest.RoutingKey,
		CorrelationID: correlationID,
		ReplyTo:       dest.ReplyTo,
		Body:          payload,
	})
}

// SendAndAwaitReply publishes payload under key and blocks until the matching
// acknowledgement arrives, timeout elapses (ErrReplyTimeout) or ctx is done.
// The wait is registered before publishing so a fast reply cannot be missed.
func (g *Gateway) SendAndAwaitReply(
	ctx context.Context,
	dest Destination,
	key string,
	payload any,
	timeout time.Duration,
) (contracts.CarAcknowledgement, error) {
	replies, release, err := g.waits.Register(key)
	if err != nil {
		return contracts.CarAcknowledgement{}, err
	}
	defer release()

	start := time.Now()
	if err := g.Send(ctx, dest, key, payload); err != nil {
		metrics.CommandsSent.WithLabelValues(dest.Kind, "publish_failed").Inc()
		return contracts.CarAcknowledgement{}, fmt.Errorf("send %s: %w", dest.RoutingKey, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ack := <-replies:
		metrics.AckLatency.WithLabelValues(dest.Kind).Observe(time.Since(start).Seconds())
		outcome := "confirmed"
		if !ack.Confirms {
			outcome = "rejected"
		}
		metrics.CommandsSent.WithLabelValues(dest.Kind, outcome).Inc()
		return ack, nil
	case <-timer.C:
		metrics.CommandsSent.WithLabelValues(dest.Kind, "timeout").Inc()
		return contracts.CarAcknowledgement{}, ErrReplyTimeout
	case <-ctx.Done():
		metrics.CommandsSent.WithLabelValues(dest.Kind, "cancelled").Inc()
		return contracts.CarAcknowledgement{}, ctx.Err()
	}
}

// Deliver routes an inbound acknowledgement to its waiter. Unmatched replies are
// logged and dropped; they are never an error for the consumer.
func (g *Gateway) Deliver(ctx context.Context, ack contracts.CarAcknowledgement) bool {
	if g.waits.Resolve(ack.CorrelationKey, ack) {
		return true
	}
	g.logger.Debug(ctx, "ack_unmatched", "Acknowledgement matched no pending command", map[string]any{
		"correlation_key": ack.CorrelationKey,
		"car_id":          ack.CarID,
	})
	return false
}
