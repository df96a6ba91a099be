package service

import (
	"context"
	"encoding/json"
	"fmt"

	"car-fleet/internal/domain/apperr"
	"car-fleet/internal/domain/geo"
	"car-fleet/internal/general/contracts"
	"car-fleet/internal/general/rabbitmq"
	"car-fleet/internal/ports"

	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"
)

// RunBackgroundConsumers attaches the acknowledgement and telemetry consumers
// and blocks until ctx is cancelled or one of them fails for good.
func (service *carService) RunBackgroundConsumers(ctx context.Context, prefetch int) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return service.consumer.ConsumeForever(ctx, contracts.QueueCarAcknowledgements, "car-service-acks", prefetch, service.handleAck)
	})
	g.Go(func() error {
		return service.consumer.ConsumeForever(ctx, contracts.QueueCarStateUpdates, "car-service-state", prefetch, service.handleStateUpdate)
	})

	return g.Wait()
}

// handleAck hands an acknowledgement to whoever awaits it. Unmatched acks are acked and dropped.
func (service *carService) handleAck(ctx context.Context, d amqp.Delivery) error {
	var ack contracts.CarAcknowledgement
	if err := json.Unmarshal(d.Body, &ack); err != nil {
		service.logger.Error(ctx, "car_ack_decode_failed", "Failed to decode car acknowledgement", err,
			map[string]any{"size": len(d.Body), "routing_key": d.RoutingKey})
		return fmt.Errorf("decode: %w", err)
	}

	// the AMQP property is authoritative when the body omits the key
	if ack.CorrelationKey == "" {
		ack.CorrelationKey = d.CorrelationId
	}
	if ack.CarID == "" {
		ack.CarID, _ = contracts.CarIDFromRoute(d.RoutingKey)
	}
	if ack.CorrelationKey == "" {
		service.logger.Warn(ctx, "car_ack_uncorrelated", "Dropping acknowledgement without correlation key", map[string]any{
			"routing_key": d.RoutingKey,
		})
		return nil
	}

	service.gateway.Deliver(ctx, ack)
	return nil
}

// handleStateUpdate applies telemetry. The car id comes from the routing key.
func (service *carService) handleStateUpdate(ctx context.Context, d amqp.Delivery) error {
	carID, ok := contracts.CarIDFromRoute(d.RoutingKey)
	if !ok {
		service.logger.Warn(ctx, "car_state_unroutable", "Dropping state update with malformed routing key", map[string]any{
			"routing_key": d.RoutingKey,
		})
		return fmt.Errorf("malformed routing key %q", d.RoutingKey)
	}

	var msg contracts.CarStateUpdate
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		service.logger.Error(ctx, "car_state_decode_failed", "Failed to decode car state update", err,
			map[string]any{"size": len(d.Body), "car_id": carID})
		return fmt.Errorf("decode: %w", err)
	}

	_, err := service.applyState(ctx, ports.StateUpdate{
		CarID:            carID,
		RemainingRangeKm: msg.RemainingRangeKm,
		Location:         geo.Point{Latitude: msg.Location.Lat, Longitude: msg.Location.Lng},
		Online:           msg.Online,
		ObservedAt:       msg.ObservedAt,
	}, sourceBroker)

	switch {
	case err == nil:
		return nil
	case apperr.IsExpected(err):
		// unknown car or invalid payload: redelivery cannot fix it
		service.logger.Warn(ctx, "car_state_rejected", err.Error(), map[string]any{"car_id": carID})
		return err
	case d.Redelivered:
		service.logger.Error(ctx, "car_state_dropped", "Dropping state update after retry", err, map[string]any{"car_id": carID})
		return err
	default:
		service.logger.Error(ctx, "car_state_apply_failed", "Failed to apply state update; requeueing once", err, map[string]any{"car_id": carID})
		return rabbitmq.ErrRequeue
	}
}
