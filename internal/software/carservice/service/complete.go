package service

import (
	"context"

	"car-fleet/internal/domain/apperr"
	"car-fleet/internal/ports"
)

// CompleteRide ends the user's ride in progress and releases the car.
func (service *carService) CompleteRide(ctx context.Context, userID, carID string) (ports.RideResult, error) {
	userID, err := requireUser(userID)
	if err != nil {
		return ports.RideResult{}, err
	}
	carID, err = normalizeCarID(carID)
	if err != nil {
		return ports.RideResult{}, err
	}
	ctx = service.logger.WithCarID(ctx, carID)

	var result ports.RideResult
	err = service.uow.WithinTx(ctx, func(ctx context.Context) error {
		c, err := service.cars.GetForUpdate(ctx, carID)
		if err != nil {
			return err
		}
		if !c.RiddenBy(userID) {
			return apperr.NotAllowed("user %s has no ride in progress on car %s", userID, carID)
		}

		r, err := service.rides.Get(ctx, c.CurrentRide.ID)
		if err != nil {
			return err
		}

		now := service.clock.Now()
		if err := r.Complete(ctx, now); err != nil {
			return err
		}
		if err := service.rides.Save(ctx, r); err != nil {
			return err
		}

		c.EndRide(now)
		if err := service.cars.Save(ctx, c); err != nil {
			return err
		}

		result = newRideResult(r, c)
		return nil
	})
	if err != nil {
		return ports.RideResult{}, err
	}

	service.logger.Info(service.logger.WithRideID(ctx, result.RideID), "ride_completed", "Ride completed", map[string]any{"user_id": userID})
	return result, nil
}
