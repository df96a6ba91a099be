package service

import (
	"context"
	"time"

	"car-fleet/internal/general/contracts"
	"car-fleet/internal/general/messaging"
)

var rideInitialisation = messaging.Destination{
	Exchange:   contracts.ExchangeRideTopic,
	RoutingKey: contracts.RouteRideInitialisation,
	Kind:       "ride_initialisation",
}

// notifyRideStarted publishes RideInitialisation with bounded retries.
// The ride has already started; a lost notification is logged, never rolled back.
func (service *carService) notifyRideStarted(ctx context.Context, msg contracts.RideInitialisation) {
	var err error
	for attempt := 1; attempt <= service.opts.NotifyAttempts; attempt++ {
		msg.SentAt = service.clock.Now()
		if err = service.gateway.Send(ctx, rideInitialisation, msg.CorrelationID, msg); err == nil {
			service.logger.Debug(ctx, "ride_initialisation_published", "Published ride initialisation", map[string]any{
				"attempt": attempt,
			})
			return
		}

		if attempt < service.opts.NotifyAttempts {
			time.Sleep(time.Duration(attempt) * service.opts.NotifyBackoff)
		}
	}

	service.logger.Error(ctx, "ride_initialisation_lost", "Gave up publishing ride initialisation", err, map[string]any{
		"attempts": service.opts.NotifyAttempts,
	})
}
