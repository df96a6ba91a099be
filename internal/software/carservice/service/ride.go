package service

import (
	"context"
	"errors"
	"fmt"

	"car-fleet/internal/domain/apperr"
	"car-fleet/internal/domain/car"
	"car-fleet/internal/domain/ride"
	"car-fleet/internal/general/contracts"
	"car-fleet/internal/general/messaging"
	"car-fleet/internal/general/metrics"
	"car-fleet/internal/ports"
)

// StartRide asks the car to accept a ride and waits for its acknowledgement.
// No transaction is open while waiting.
func (service *carService) StartRide(ctx context.Context, userID, carID string) (ports.RideResult, error) {
	result, err := service.startRide(ctx, userID, carID)
	metrics.RideStarts.WithLabelValues(resultLabel(err)).Inc()
	return result, err
}

func (service *carService) startRide(ctx context.Context, userID, carID string) (ports.RideResult, error) {
	userID, err := requireUser(userID)
	if err != nil {
		return ports.RideResult{}, err
	}
	carID, err = normalizeCarID(carID)
	if err != nil {
		return ports.RideResult{}, err
	}
	ctx = service.logger.WithCarID(ctx, carID)

	// 1. admission + ride attempt
	var attempt *ride.Ride
	err = service.uow.WithinTx(ctx, func(ctx context.Context) error {
		c, err := service.cars.GetForUpdate(ctx, carID)
		if err != nil {
			return err
		}
		now := service.clock.Now()
		if !c.CanBeRidden(userID, now) {
			return apperr.NotAvailable("car %s is not available", carID)
		}

		attempt, err = ride.NewRide(userID, carID, now)
		if err != nil {
			return err
		}
		return service.rides.Create(ctx, attempt)
	})
	if err != nil {
		return ports.RideResult{}, err
	}
	ctx = service.logger.WithRideID(ctx, attempt.ID)

	// 2. command round trip
	key := rideKey(attempt.ID, carID)
	req := contracts.CarRideRequest{
		RideID:         attempt.ID,
		CarID:          carID,
		UserID:         userID,
		CorrelationKey: key,
		Envelope: contracts.Envelope{
			CorrelationID: key,
			Producer:      contracts.ProducerCarService,
			SentAt:        service.clock.Now(),
		},
	}

	ack, err := service.gateway.SendAndAwaitReply(ctx, messaging.CarCommand(carID, contracts.CommandRide), key, req, service.opts.AckTimeout)
	switch {
	case errors.Is(err, messaging.ErrReplyTimeout):
		return ports.RideResult{}, service.onCarSilent(ctx, carID, attempt.ID)
	case err != nil:
		reason := ride.ReasonSendFailed
		if ctx.Err() != nil {
			reason = ride.ReasonCancelled
		}
		service.failAttempt(ctx, attempt.ID, reason)
		return ports.RideResult{}, fmt.Errorf("ride request to car %s: %w", carID, err)
	case !ack.Confirms:
		service.failAttempt(ctx, attempt.ID, ride.ReasonRejected)
		service.logger.Warn(ctx, "ride_rejected", "Car rejected the ride request", nil)
		return ports.RideResult{}, apperr.NotAvailable("car %s rejected the ride", carID)
	}

	// 3. confirmation
	var (
		result  ports.RideResult
		outcome error
	)
	err = service.uow.WithinTx(context.WithoutCancel(ctx), func(ctx context.Context) error {
		c, err := service.cars.GetForUpdate(ctx, carID)
		if err != nil {
			return err
		}
		r, err := service.rides.Get(ctx, attempt.ID)
		if err != nil {
			return err
		}

		now := service.clock.Now()
		if !c.CanBeRidden(userID, now) || r.State != ride.StateRequested {
			// the car changed hands while we waited; record the loss and keep the car as is
			if err := r.Fail(ctx, now, ride.ReasonCarTaken); err != nil && !errors.Is(err, ride.ErrInvalidTransition) {
				return err
			}
			outcome = apperr.NotAvailable("car %s was taken while waiting for its acknowledgement", carID)
			return service.rides.Save(ctx, r)
		}

		if err := r.Confirm(ctx, now); err != nil {
			return err
		}
		if err := service.rides.Save(ctx, r); err != nil {
			return err
		}

		c.StartRide(car.RideRef{ID: r.ID, UserID: r.UserID, State: r.State}, now)
		if err := service.cars.Save(ctx, c); err != nil {
			return err
		}

		result = newRideResult(r, c)
		return nil
	})
	if err != nil {
		service.logger.Error(ctx, "ride_confirm_failed", "Failed to record confirmed ride", err, nil)
		return ports.RideResult{}, err
	}
	if outcome != nil {
		service.logger.Warn(ctx, "ride_lost_race", outcome.Error(), nil)
		return ports.RideResult{}, outcome
	}

	service.logger.Info(ctx, "ride_started", "Ride started", map[string]any{"user_id": userID})

	// 4. tell ride tracking, detached from the request
	go service.notifyRideStarted(context.WithoutCancel(ctx), contracts.RideInitialisation{
		RideID:    result.RideID,
		CarID:     carID,
		UserID:    userID,
		StartedAt: *result.StartedAt,
		Envelope: contracts.Envelope{
			CorrelationID: key,
			Producer:      contracts.ProducerCarService,
		},
	})

	return result, nil
}

// onCarSilent handles a missing acknowledgement: the car is marked offline and
// the pending ride attempt, if any, fails. The returned error is always OfflineTimeout.
func (service *carService) onCarSilent(ctx context.Context, carID, rideID string) error {
	ctx = context.WithoutCancel(ctx)
	now := service.clock.Now()

	err := service.uow.WithinTx(ctx, func(ctx context.Context) error {
		c, err := service.cars.GetForUpdate(ctx, carID)
		if err != nil {
			return err
		}
		c.MarkOffline(now)
		if err := service.cars.Save(ctx, c); err != nil {
			return err
		}

		if rideID == "" {
			return nil
		}
		r, err := service.rides.Get(ctx, rideID)
		if err != nil {
			return err
		}
		if err := r.Fail(ctx, now, ride.ReasonCarOffline); err != nil {
			return err
		}
		return service.rides.Save(ctx, r)
	})
	if err != nil {
		service.logger.Error(ctx, "car_offline_write_failed", "Failed to record silent car as offline", err, nil)
	} else {
		service.logger.Warn(ctx, "car_marked_offline", "Car did not acknowledge in time and was marked offline", map[string]any{
			"timeout_ms": service.opts.AckTimeout.Milliseconds(),
		})
	}

	return apperr.OfflineTimeout("car %s did not acknowledge within %s", carID, service.opts.AckTimeout)
}

// failAttempt moves a REQUESTED ride to FAILED. Errors are logged, not returned.
func (service *carService) failAttempt(ctx context.Context, rideID, reason string) {
	ctx = context.WithoutCancel(ctx)
	err := service.uow.WithinTx(ctx, func(ctx context.Context) error {
		r, err := service.rides.Get(ctx, rideID)
		if err != nil {
			return err
		}
		if err := r.Fail(ctx, service.clock.Now(), reason); err != nil {
			return err
		}
		return service.rides.Save(ctx, r)
	})
	if err != nil {
		service.logger.Error(ctx, "ride_fail_write_failed", "Failed to record failed ride attempt", err, map[string]any{"reason": reason})
	}
}

func newRideResult(r *ride.Ride, c *car.Car) ports.RideResult {
	return ports.RideResult{
		RideID:    r.ID,
		CarID:     r.CarID,
		UserID:    r.UserID,
		State:     r.State.String(),
		StartedAt: r.StartedAt,
		EndedAt:   r.EndedAt,
		Car:       ports.NewCarView(c),
	}
}
