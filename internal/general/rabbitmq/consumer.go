package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"time"

	"car-fleet/internal/general/metrics"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrRequeue asks Consume to return the delivery to the queue instead of dropping it.
var ErrRequeue = errors.New("rabbitmq: requeue delivery")

// Handler processes one delivery. nil acks; ErrRequeue nacks with requeue; any other error drops.
type Handler func(context.Context, amqp.Delivery) error

// newConsumerChannel returns a fresh channel with prefetch (QoS) applied.
func (client *Client) newConsumerChannel(prefetch int) (*amqp.Channel, error) {
	client.mu.RLock()
	conn := client.conn
	client.mu.RUnlock()

	// quick fail if no connection
	if conn == nil || conn.IsClosed() {
		return nil, errors.New("rabbitmq: connection is not ready")
	}

	// open a new channel
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("rabbitmq: open channel: %w", err)
	}

	// set prefetch if requested
	if prefetch < 0 {
		prefetch = 1
	}
	if prefetch > 0 {
		if err := ch.Qos(prefetch, 0, false); err != nil {
			_ = ch.Close()
			return nil, fmt.Errorf("rabbitmq: set QoS (prefetch=%d): %w", prefetch, err)
		}
	}

	return ch, nil
}

// Consume starts consuming messages from a queue with manual acks.
// It returns when ctx is done or the channel closes.
func (client *Client) Consume(
	ctx context.Context,
	queue string,
	consumerTag string,
	prefetch int,
	handler Handler,
) error {
	// open a fresh channel for this consumer, apply QoS if prefetch > 0
	ch, err := client.newConsumerChannel(prefetch)
	if err != nil {
		return err
	}
	defer ch.Close()

	deliveries, err := ch.Consume(
		queue,
		consumerTag,
		false, // autoAck
		false, // exclusive
		false, // noLocal (ignored by RabbitMQ)
		false, // noWait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("rabbitmq: consume(%s): %w", queue, err)
	}

	chClosed := ch.NotifyClose(make(chan *amqp.Error, 1))

	for {
		select {
		case <-ctx.Done():
			if consumerTag != "" {
				_ = ch.Cancel(consumerTag, false)
			}
			return nil

		case cerr := <-chClosed:
			if cerr != nil {
				return fmt.Errorf("rabbitmq: channel closed while consuming %s: %w", queue, cerr)
			}
			return nil

		case d, ok := <-deliveries:
			if !ok {
				// deliveries stream ended
				return nil
			}

			hCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			err := handler(hCtx, d)
			cancel()

			switch {
			case err == nil:
				_ = d.Ack(false)
				metrics.MessagesConsumed.WithLabelValues(queue, "ack").Inc()
			case errors.Is(err, ErrRequeue):
				_ = d.Nack(false, true)
				metrics.MessagesConsumed.WithLabelValues(queue, "requeue").Inc()
			default:
				_ = d.Nack(false, false) // drop poison message
				metrics.MessagesConsumed.WithLabelValues(queue, "drop").Inc()
			}
		}
	}
}

// ConsumeForever keeps a consumer attached across reconnects until ctx is done.
func (client *Client) ConsumeForever(ctx context.Context, queue, consumerTag string, prefetch int, handler Handler) error {
	backoff := 500 * time.Millisecond
	for {
		err := client.Consume(ctx, queue, consumerTag, prefetch, handler)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			client.logger.Error(client.logCtx, "rabbitmq_consumer_interrupted",
				"Consumer stopped; re-attaching", err,
				map[string]any{"queue": queue, "backoff_ms": backoff.Milliseconds()})
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		if backoff < 10*time.Second {
			backoff *= 2
		}
	}
}
